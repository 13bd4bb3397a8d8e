package reconcile

import (
	"fmt"
	"strings"

	"github.com/tsawler/deckform/model"
	"github.com/tsawler/deckform/overlay"
	"github.com/tsawler/deckform/pptx"
)

// writeTable schedules cell edits. Each changed cell keeps its paragraph
// and run structure: line k of the new text goes into the first run of
// paragraph k, the cell's other runs are blanked, and surplus paragraphs
// are dropped. Cells the container does not have are skipped with a
// warning.
func (r *reconciler) writeTable(tree *pptx.SlideTree, s *model.Shape, te *overlay.TableEdit) (*pptx.Splicer, error) {
	var sp pptx.Splicer
	for _, key := range cellKeys(te) {
		edit := te.Cells[key]
		cell := s.Table.Cell(edit.Row, edit.Col)
		if cell == nil || cell.Synthetic || cell.Locator == "" {
			r.warn(model.Warning{
				Code:    model.WarnCellSkipped,
				ShapeID: s.ID,
				Message: fmt.Sprintf("cell %s does not exist in the container", key),
			})
			continue
		}
		if !strings.HasPrefix(cell.Locator, s.Locator+"/") {
			return nil, drift(s, tree.Part, cell.Locator)
		}
		tc := tree.Lookup(cell.Locator)
		if tc == nil || tc.Local != "tc" || !sameText(cellText(tc), cell.Text) {
			return nil, drift(s, tree.Part, cell.Locator)
		}
		if sameText(edit.Text, cell.Text) {
			continue
		}
		if err := writeCell(&sp, tree, tc, edit.Text); err != nil {
			return nil, err
		}
	}
	return &sp, nil
}

// cellText reads a cell's text the way extraction does: paragraphs joined
// by newlines.
func cellText(tc *pptx.Node) string {
	paras := tc.Child("txBody").ChildrenNamed("p")
	lines := make([]string, len(paras))
	for i, p := range paras {
		var sb strings.Builder
		for _, c := range p.Children {
			switch c.Local {
			case "r", "fld":
				sb.WriteString(c.Child("t").Text())
			case "br":
				sb.WriteString("\n")
			}
		}
		lines[i] = sb.String()
	}
	return strings.Join(lines, "\n")
}

func writeCell(sp *pptx.Splicer, tree *pptx.SlideTree, tc *pptx.Node, text string) error {
	lines := strings.Split(text, "\n")
	body := tc.Child("txBody")
	if body == nil {
		markup := cellBody(tc.Prefix, lines)
		if tc.SelfClosing {
			q := tc.QName()
			sp.Replace(tc.Start, tc.End, []byte("<"+q+">"+markup+"</"+q+">"))
		} else {
			sp.Insert(tc.InnerStart, []byte(markup))
		}
		return nil
	}

	paras := body.ChildrenNamed("p")
	if len(paras) == 0 {
		var sb strings.Builder
		for _, line := range lines {
			sb.WriteString(cellParagraph(body.Prefix, nil, line))
		}
		sp.Insert(body.InnerEnd, []byte(sb.String()))
		return nil
	}

	for i, line := range lines {
		if i < len(paras) {
			if err := writeCellParagraph(sp, tree, paras[i], line); err != nil {
				return err
			}
			continue
		}
		tmpl := paras[0]
		var props []byte
		if r := tmpl.Child("r"); r != nil && r.Child("rPr") != nil {
			props = tree.Raw(r.Child("rPr"))
		} else if end := tmpl.Child("endParaRPr"); end != nil {
			props = asRunProperties(tree.Tree, end)
		}
		sp.Insert(paras[len(paras)-1].End, []byte(cellParagraph(tmpl.Prefix, props, line)))
	}
	for _, p := range paras[min(len(lines), len(paras)):] {
		sp.Replace(p.Start, p.End, nil)
	}
	return nil
}

// writeCellParagraph puts line into the first run of p and blanks the
// rest.
func writeCellParagraph(sp *pptx.Splicer, tree *pptx.SlideTree, p *pptx.Node, line string) error {
	runs := p.ChildrenNamed("r")
	for _, c := range p.Children {
		if c.Local == "br" || c.Local == "fld" {
			sp.Replace(c.Start, c.End, nil)
		}
	}
	if len(runs) > 0 {
		setRunText(sp, runs[0], line)
		for _, r := range runs[1:] {
			setRunText(sp, r, "")
		}
		return nil
	}
	if line == "" {
		return nil
	}

	var props []byte
	end := p.Child("endParaRPr")
	if end != nil {
		props = asRunProperties(tree.Tree, end)
	}
	run, err := runMarkup(p.Prefix, props, model.Format{}, line)
	if err != nil {
		return err
	}
	switch {
	case p.SelfClosing:
		q := p.QName()
		sp.Replace(p.Start, p.End, append(append([]byte("<"+q+">"), run...), "</"+q+">"...))
	case end != nil:
		sp.Insert(end.Start, run)
	default:
		sp.Insert(p.InnerEnd, run)
	}
	return nil
}

func cellParagraph(prefix string, props []byte, line string) string {
	q := qname(prefix, "p")
	if line == "" {
		return "<" + q + "/>"
	}
	run, err := runMarkup(prefix, props, model.Format{}, line)
	if err != nil {
		run, _ = runMarkup(prefix, nil, model.Format{}, line)
	}
	return "<" + q + ">" + string(run) + "</" + q + ">"
}

func cellBody(prefix string, lines []string) string {
	var sb strings.Builder
	sb.WriteString("<" + qname(prefix, "txBody") + "><" + qname(prefix, "bodyPr") + "/><" + qname(prefix, "lstStyle") + "/>")
	for _, line := range lines {
		sb.WriteString(cellParagraph(prefix, nil, line))
	}
	sb.WriteString("</" + qname(prefix, "txBody") + ">")
	return sb.String()
}
