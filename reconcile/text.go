package reconcile

import (
	"strconv"
	"strings"

	"github.com/tsawler/deckform/extract"
	"github.com/tsawler/deckform/model"
	"github.com/tsawler/deckform/pptx"
)

// runElements maps run kinds to the element a boundary must name.
var runElements = map[model.RunKind]string{
	model.RunText:  "r",
	model.RunField: "fld",
	model.RunBreak: "br",
}

// textWriter writes one shape's paragraphs into its a:txBody.
type textWriter struct {
	tree  *pptx.SlideTree
	shape *model.Shape
	sp    pptx.Splicer
	used  map[*pptx.Node]bool
}

// writeText schedules the edits that turn the shape's text body into
// paras. Every boundary is checked before any edit is scheduled, so a
// drifted shape produces no edits at all.
//
// Runs bound to an element of the paragraph they land in are edited in
// place; any other run is inserted as new markup cloned from its source
// element or a neighbour. Paragraphs beyond the edit are removed, extra
// ones are cloned from the last paragraph, and runs the edit no longer
// mentions have their text cleared.
func writeText(tree *pptx.SlideTree, el *pptx.Node, s *model.Shape, paras []model.Paragraph) (*pptx.Splicer, error) {
	body := el.Child("txBody")
	if body == nil {
		return nil, drift(s, tree.Part, s.Locator+"/txBody")
	}
	w := &textWriter{tree: tree, shape: s, used: make(map[*pptx.Node]bool)}

	bound := make([][]*pptx.Node, len(paras))
	for i, p := range paras {
		bound[i] = make([]*pptx.Node, len(p.Runs))
		for j, run := range p.Runs {
			n, err := w.resolve(run)
			if err != nil {
				return nil, err
			}
			bound[i][j] = n
		}
	}

	orig := body.ChildrenNamed("p")
	canon := s.Text.Paragraphs
	for i, p := range paras {
		if i >= len(orig) {
			break
		}
		var c *model.Paragraph
		if i < len(canon) {
			c = &canon[i]
		}
		if err := w.paragraph(orig[i], c, p, bound[i]); err != nil {
			return nil, err
		}
	}

	switch {
	case len(paras) == 0 && len(orig) > 0:
		// A text body keeps one paragraph.
		if err := w.paragraph(orig[0], nil, model.Paragraph{}, nil); err != nil {
			return nil, err
		}
		for _, p := range orig[1:] {
			w.sp.Replace(p.Start, p.End, nil)
		}
	case len(paras) < len(orig):
		for _, p := range orig[len(paras):] {
			w.sp.Replace(p.Start, p.End, nil)
		}
	case len(paras) > len(orig):
		var tmpl *pptx.Node
		at, prefix := body.InnerEnd, "a"
		if len(orig) > 0 {
			tmpl = orig[len(orig)-1]
			at, prefix = tmpl.End, tmpl.Prefix
		}
		for i := len(orig); i < len(paras); i++ {
			markup, err := w.newParagraph(prefix, tmpl, paras[i], bound[i])
			if err != nil {
				return nil, err
			}
			w.sp.Insert(at, markup)
		}
	}
	return &w.sp, nil
}

// resolve finds the element a run's boundary names, or nil for a run the
// editor created.
func (w *textWriter) resolve(run model.Run) (*pptx.Node, error) {
	b := run.Boundary
	if b.IsZero() {
		return nil, nil
	}
	if b.Part != w.tree.Part || !strings.HasPrefix(b.Locator, w.shape.Locator+"/") {
		return nil, drift(w.shape, b.Part, b.Locator)
	}
	n := w.tree.Lookup(b.Locator)
	if n == nil || n.Local != runElements[run.Kind] {
		return nil, drift(w.shape, b.Part, b.Locator)
	}
	if run.Kind != model.RunBreak && !sameText(n.Child("t").Text(), b.Fingerprint) {
		return nil, drift(w.shape, b.Part, b.Locator)
	}
	return n, nil
}

func (w *textWriter) paragraph(pEl *pptx.Node, canon *model.Paragraph, p model.Paragraph, bound []*pptx.Node) error {
	if pEl.SelfClosing {
		if len(p.Runs) == 0 && p.Level == 0 && p.Alignment == "" {
			return nil
		}
		markup, err := w.newParagraph(pEl.Prefix, pEl, p, bound)
		if err != nil {
			return err
		}
		w.sp.Replace(pEl.Start, pEl.End, markup)
		return nil
	}

	pPr := pEl.Child("pPr")
	if canon != nil && (canon.Level != p.Level || canon.Alignment != p.Alignment) {
		if err := w.paragraphProps(pEl, pPr, p); err != nil {
			return err
		}
	}

	at := pEl.InnerStart
	if pPr != nil {
		at = pPr.End
	}
	last := -1
	tmpl := pEl.Child("r")
	for j, run := range p.Runs {
		n := bound[j]
		if n != nil && n.Parent == pEl && n.Start > last && !w.used[n] {
			w.used[n] = true
			if err := w.update(n, run); err != nil {
				return err
			}
			last, at = n.Start, n.End
			if n.Local == "r" {
				tmpl = n
			}
			continue
		}
		markup, err := w.newRun(pEl.Prefix, run, n, tmpl, pEl.Child("endParaRPr"))
		if err != nil {
			return err
		}
		w.sp.Insert(at, markup)
	}

	for _, c := range pEl.Children {
		if w.used[c] {
			continue
		}
		switch c.Local {
		case "r":
			w.setText(c, "")
		case "br", "fld":
			w.sp.Replace(c.Start, c.End, nil)
		}
	}
	return nil
}

func (w *textWriter) paragraphProps(pEl, pPr *pptx.Node, p model.Paragraph) error {
	var src []byte
	if pPr != nil {
		src = w.tree.Raw(pPr)
	}
	out, err := paragraphPropsMarkup(pEl.Prefix, src, p)
	if err != nil {
		return err
	}
	if pPr != nil {
		w.sp.Replace(pPr.Start, pPr.End, out)
	} else {
		w.sp.Insert(pEl.InnerStart, out)
	}
	return nil
}

// update edits a run element kept in place.
func (w *textWriter) update(n *pptx.Node, run model.Run) error {
	if n.Local != "r" {
		return nil
	}
	if !sameText(n.Child("t").Text(), run.Text) {
		w.setText(n, run.Text)
	}
	rPr := n.Child("rPr")
	if !formatChanged(run.Format, extract.FormatOf(rPr)) {
		return nil
	}
	var src []byte
	if rPr != nil {
		src = w.tree.Raw(rPr)
	}
	out, _, err := renderRPr(n.Prefix, src, run.Format)
	if err != nil {
		return err
	}
	if rPr != nil {
		w.sp.Replace(rPr.Start, rPr.End, out)
	} else {
		w.sp.Insert(n.InnerStart, out)
	}
	return nil
}

func (w *textWriter) setText(r *pptx.Node, text string) {
	setRunText(&w.sp, r, text)
}

// setRunText replaces the content of a run's a:t.
func setRunText(sp *pptx.Splicer, r *pptx.Node, text string) {
	t := r.Child("t")
	switch {
	case t == nil:
		if text != "" {
			q := qname(r.Prefix, "t")
			sp.Insert(r.InnerEnd, []byte("<"+q+">"+pptx.EscapeText(text)+"</"+q+">"))
		}
	case t.SelfClosing:
		if text != "" {
			q := t.QName()
			sp.Replace(t.Start, t.End, []byte("<"+q+">"+pptx.EscapeText(text)+"</"+q+">"))
		}
	case t.Text() != text:
		sp.Replace(t.InnerStart, t.InnerEnd, []byte(pptx.EscapeText(text)))
	}
}

// newRun builds markup for a run that has no element in place. src is the
// element the run was bound to elsewhere, if any; tmpl and endPara supply
// properties for runs the editor created.
func (w *textWriter) newRun(prefix string, run model.Run, src, tmpl, endPara *pptx.Node) ([]byte, error) {
	switch run.Kind {
	case model.RunBreak:
		if src != nil {
			return append([]byte(nil), w.tree.Raw(src)...), nil
		}
		return []byte("<" + qname(prefix, "br") + "/>"), nil
	case model.RunField:
		if src != nil {
			return append([]byte(nil), w.tree.Raw(src)...), nil
		}
	}

	var props []byte
	switch {
	case src != nil && src.Local == "r":
		if rPr := src.Child("rPr"); rPr != nil {
			props = w.tree.Raw(rPr)
		}
	case tmpl != nil:
		if rPr := tmpl.Child("rPr"); rPr != nil {
			props = w.tree.Raw(rPr)
		}
	case endPara != nil:
		props = asRunProperties(w.tree.Tree, endPara)
	}
	return runMarkup(prefix, props, run.Format, run.Text)
}

func runMarkup(prefix string, props []byte, f model.Format, text string) ([]byte, error) {
	rPr, changed, err := renderRPr(prefix, props, f)
	if err != nil {
		return nil, err
	}
	var sb strings.Builder
	sb.WriteString("<" + qname(prefix, "r") + ">")
	if props != nil || changed {
		sb.Write(rPr)
	}
	t := qname(prefix, "t")
	sb.WriteString("<" + t + ">" + pptx.EscapeText(text) + "</" + t + ">")
	sb.WriteString("</" + qname(prefix, "r") + ">")
	return []byte(sb.String()), nil
}

// newParagraph builds a paragraph cloned from tmpl's properties.
func (w *textWriter) newParagraph(prefix string, tmpl *pptx.Node, p model.Paragraph, bound []*pptx.Node) ([]byte, error) {
	var sb strings.Builder
	q := qname(prefix, "p")
	sb.WriteString("<" + q + ">")

	var (
		pPrSrc  []byte
		runTmpl *pptx.Node
		endPara *pptx.Node
	)
	if tmpl != nil {
		if pPr := tmpl.Child("pPr"); pPr != nil {
			pPrSrc = w.tree.Raw(pPr)
		}
		runTmpl = tmpl.Child("r")
		endPara = tmpl.Child("endParaRPr")
	}

	pPr, err := paragraphPropsMarkup(prefix, pPrSrc, p)
	if err != nil {
		return nil, err
	}
	sb.Write(pPr)

	for j, run := range p.Runs {
		var src *pptx.Node
		if j < len(bound) {
			src = bound[j]
		}
		markup, err := w.newRun(prefix, run, src, runTmpl, endPara)
		if err != nil {
			return nil, err
		}
		sb.Write(markup)
	}
	if endPara != nil {
		sb.Write(w.tree.Raw(endPara))
	}
	sb.WriteString("</" + q + ">")
	return []byte(sb.String()), nil
}

// paragraphPropsMarkup returns src with the level and alignment of p, or
// nothing when neither src nor p states any.
func paragraphPropsMarkup(prefix string, src []byte, p model.Paragraph) ([]byte, error) {
	if src == nil && p.Level == 0 && p.Alignment == "" {
		return nil, nil
	}
	if src == nil {
		src = []byte("<" + qname(prefix, "pPr") + "/>")
	}
	tree, pPr, err := parseFragment(src)
	if err != nil {
		return nil, err
	}
	var changes []pptx.AttrChange
	if lvl, ok := pPr.AttrInt("lvl"); (ok && int(lvl) != p.Level) || (!ok && p.Level != 0) {
		changes = append(changes, pptx.AttrChange{Name: "lvl", Value: strconv.Itoa(p.Level)})
	}
	if algn := pPr.AttrString("algn"); algn != p.Alignment {
		if p.Alignment == "" {
			changes = append(changes, pptx.AttrChange{Name: "algn", Remove: true})
		} else {
			changes = append(changes, pptx.AttrChange{Name: "algn", Value: p.Alignment})
		}
	}
	if len(changes) == 0 {
		return src, nil
	}
	tag, err := pptx.RewriteStartTag(tree.StartTag(pPr), changes)
	if err != nil {
		return nil, err
	}
	out := append(append([]byte(nil), tag...), src[pPr.InnerStart:]...)
	return out, nil
}

func drift(s *model.Shape, part, locator string) error {
	return &model.StructuralDriftError{ShapeID: s.ID, Part: part, Locator: locator}
}
