package extract

import (
	"strings"

	"github.com/tsawler/deckform/model"
	"github.com/tsawler/deckform/pptx"
)

// paragraphs reads the a:p children of a text body.
func (e *extractor) paragraphs(sc *slideContext, body *pptx.Node) []model.Paragraph {
	paras := make([]model.Paragraph, 0)
	for _, p := range body.ChildrenNamed("p") {
		paras = append(paras, e.paragraph(sc, p))
	}
	return paras
}

func (e *extractor) paragraph(sc *slideContext, p *pptx.Node) model.Paragraph {
	para := model.Paragraph{Runs: make([]model.Run, 0)}
	if pPr := p.Child("pPr"); pPr != nil {
		if lvl, ok := pPr.AttrInt("lvl"); ok {
			para.Level = int(lvl)
		}
		para.Alignment = pPr.AttrString("algn")
		para.Defaults = FormatOf(pPr.Child("defRPr"))
	}
	if para.Defaults.IsZero() {
		para.Defaults = FormatOf(p.Child("endParaRPr"))
	}

	for _, c := range p.Children {
		var run model.Run
		switch c.Local {
		case "r":
			text := c.Child("t").Text()
			leading, _, trailing := model.SplitBoundary(text)
			run = model.Run{
				Text:   text,
				Kind:   model.RunText,
				Format: FormatOf(c.Child("rPr")),
				Boundary: model.Boundary{
					Part:        sc.part.Part,
					Locator:     sc.tree.Locator(c),
					Leading:     leading,
					Trailing:    trailing,
					Fingerprint: text,
				},
			}
		case "br":
			run = model.Run{
				Text:     "\n",
				Kind:     model.RunBreak,
				Format:   FormatOf(c.Child("rPr")),
				Boundary: model.Boundary{Part: sc.part.Part, Locator: sc.tree.Locator(c)},
			}
		case "fld":
			text := c.Child("t").Text()
			run = model.Run{
				Text:     text,
				Kind:     model.RunField,
				Format:   FormatOf(c.Child("rPr")),
				Boundary: model.Boundary{Part: sc.part.Part, Locator: sc.tree.Locator(c), Fingerprint: text},
			}
		default:
			continue
		}
		para.Runs = append(para.Runs, run)
	}
	return para
}

// FormatOf decodes the attributes and children of a run properties element
// (a:rPr, a:defRPr, a:endParaRPr). Anything not stated stays nil.
func FormatOf(rPr *pptx.Node) model.Format {
	var f model.Format
	if rPr == nil {
		return f
	}
	if v, ok := rPr.AttrBool("b"); ok {
		f.Bold = model.Bool(v)
	}
	if v, ok := rPr.AttrBool("i"); ok {
		f.Italic = model.Bool(v)
	}
	if u, ok := rPr.AttrValue("u"); ok {
		f.Underline = model.Bool(u != "none")
	}
	if s, ok := rPr.AttrValue("strike"); ok {
		f.Strike = model.Bool(s != "noStrike")
	}
	if sz, ok := rPr.AttrInt("sz"); ok {
		f.Size = model.Float(float64(sz) / 100)
	}
	if bl, ok := rPr.AttrInt("baseline"); ok {
		f.Baseline = model.Int(int(bl))
	}
	if tf := rPr.Child("latin").AttrString("typeface"); tf != "" {
		f.Font = model.String(tf)
	}
	if clr := rPr.Child("solidFill").Child("srgbClr"); clr != nil {
		if val := clr.AttrString("val"); val != "" {
			f.Color = model.String(strings.ToUpper(val))
		}
	}
	return f
}

// paragraphText joins the text of every paragraph with newlines.
func paragraphText(paras []model.Paragraph) string {
	lines := make([]string, len(paras))
	for i, p := range paras {
		lines[i] = p.Text()
	}
	return strings.Join(lines, "\n")
}
