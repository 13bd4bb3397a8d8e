package extract

import (
	"github.com/tsawler/deckform/model"
	"github.com/tsawler/deckform/pptx"
)

// table reads a:tbl into a dense grid. Rows shorter than the widest row
// are padded with synthetic cells; merge continuation cells stay in place.
func (e *extractor) table(sc *slideContext, el *pptx.Node) (*model.Table, error) {
	tbl := el.Child("graphic").Child("graphicData").Child("tbl")
	if tbl == nil {
		return nil, &model.UnsupportedPartError{Part: sc.part.Part, Reason: "table frame has no a:tbl"}
	}

	rows := tbl.ChildrenNamed("tr")
	cols := 0
	for _, tr := range rows {
		if n := len(tr.ChildrenNamed("tc")); n > cols {
			cols = n
		}
	}

	t := model.NewTable(len(rows), cols)
	for r, tr := range rows {
		for c, tc := range tr.ChildrenNamed("tc") {
			t.Cells[r][c] = e.cell(sc, tc, r, c)
		}
	}
	return t, nil
}

func (e *extractor) cell(sc *slideContext, tc *pptx.Node, row, col int) model.Cell {
	cell := model.Cell{Row: row, Col: col, Locator: sc.tree.Locator(tc)}
	h, _ := tc.AttrBool("hMerge")
	v, _ := tc.AttrBool("vMerge")
	cell.Merged = h || v

	body := tc.Child("txBody")
	if body == nil {
		return cell
	}
	paras := e.paragraphs(sc, body)
	cell.Text = paragraphText(paras)

	// The first text run stands for the whole cell.
	for _, p := range paras {
		for _, run := range p.Runs {
			if run.Kind != model.RunText {
				continue
			}
			cell.FontSize = run.Format.Size
			cell.Bold = run.Format.Bold
			cell.Italic = run.Format.Italic
			return cell
		}
	}
	return cell
}
