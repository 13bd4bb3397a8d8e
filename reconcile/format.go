package reconcile

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tsawler/deckform/extract"
	"github.com/tsawler/deckform/model"
	"github.com/tsawler/deckform/pptx"
)

// fillElements are the mutually exclusive fill children of a:rPr.
var fillElements = []string{"noFill", "solidFill", "gradFill", "blipFill", "pattFill", "grpFill"}

// afterLatin are the a:rPr children that follow a:latin in schema order.
var afterLatin = map[string]bool{
	"ea":             true,
	"cs":             true,
	"sym":            true,
	"hlinkClick":     true,
	"hlinkMouseOver": true,
	"rtl":            true,
	"extLst":         true,
}

// renderRPr returns run properties carrying want. src is the markup of an
// existing properties element, or nil for none. Bytes of src are kept
// except where a field set in want differs from what src states; nil
// fields of want leave src alone. The bool reports whether anything
// changed.
func renderRPr(prefix string, src []byte, want model.Format) ([]byte, bool, error) {
	if src == nil {
		src = []byte("<" + qname(prefix, "rPr") + "/>")
	}
	tree, rPr, err := parseFragment(src)
	if err != nil {
		return nil, false, err
	}

	have := extract.FormatOf(rPr)
	attrs := attrChanges(want, have)
	color := want.Color != nil && !sameColor(*want.Color, have.Color)
	font := want.Font != nil && (have.Font == nil || *have.Font != *want.Font)
	if len(attrs) == 0 && !color && !font {
		return src, false, nil
	}

	if rPr.SelfClosing && (color || font) {
		src = expand(tree, rPr)
		if tree, rPr, err = parseFragment(src); err != nil {
			return nil, false, err
		}
	}

	var sp pptx.Splicer
	if len(attrs) > 0 {
		tag, err := pptx.RewriteStartTag(tree.StartTag(rPr), attrs)
		if err != nil {
			return nil, false, err
		}
		sp.Replace(rPr.Start, rPr.InnerStart, tag)
	}
	if color {
		if err := colorEdit(&sp, tree, rPr, *want.Color); err != nil {
			return nil, false, err
		}
	}
	if font {
		if err := fontEdit(&sp, tree, rPr, *want.Font); err != nil {
			return nil, false, err
		}
	}
	out, err := sp.Apply(src)
	return out, true, err
}

func parseFragment(src []byte) (*pptx.Tree, *pptx.Node, error) {
	tree, err := pptx.ParseTree(src)
	if err != nil {
		return nil, nil, err
	}
	el := tree.Element()
	if el == nil {
		return nil, nil, fmt.Errorf("empty properties fragment")
	}
	return tree, el, nil
}

// formatChanged reports whether any field set in want differs from have.
func formatChanged(want, have model.Format) bool {
	if len(attrChanges(want, have)) > 0 {
		return true
	}
	if want.Color != nil && !sameColor(*want.Color, have.Color) {
		return true
	}
	return want.Font != nil && (have.Font == nil || *have.Font != *want.Font)
}

func attrChanges(want, have model.Format) []pptx.AttrChange {
	var out []pptx.AttrChange
	flag := func(name string, w, h *bool, on, off string) {
		if w == nil || (h != nil && *h == *w) {
			return
		}
		v := off
		if *w {
			v = on
		}
		out = append(out, pptx.AttrChange{Name: name, Value: v})
	}
	flag("b", want.Bold, have.Bold, "1", "0")
	flag("i", want.Italic, have.Italic, "1", "0")
	flag("u", want.Underline, have.Underline, "sng", "none")
	flag("strike", want.Strike, have.Strike, "sngStrike", "noStrike")

	if want.Size != nil {
		sz := hundredths(*want.Size)
		if have.Size == nil || hundredths(*have.Size) != sz {
			out = append(out, pptx.AttrChange{Name: "sz", Value: strconv.Itoa(sz)})
		}
	}
	if want.Baseline != nil && (have.Baseline == nil || *have.Baseline != *want.Baseline) {
		out = append(out, pptx.AttrChange{Name: "baseline", Value: strconv.Itoa(*want.Baseline)})
	}
	return out
}

func hundredths(pt float64) int {
	return int(math.Round(pt * 100))
}

func normColor(c string) string {
	return strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(c), "#"))
}

func sameColor(want string, have *string) bool {
	return have != nil && normColor(want) == normColor(*have)
}

func colorEdit(sp *pptx.Splicer, tree *pptx.Tree, rPr *pptx.Node, color string) error {
	p := rPr.Prefix
	val := normColor(color)
	fill := "<" + qname(p, "solidFill") + "><" + qname(p, "srgbClr") + ` val="` + pptx.EscapeAttr(val) + `"/></` + qname(p, "solidFill") + ">"

	if solid := rPr.Child("solidFill"); solid != nil {
		if clr := solid.Child("srgbClr"); clr != nil {
			tag, err := pptx.RewriteStartTag(tree.StartTag(clr), []pptx.AttrChange{{Name: "val", Value: val}})
			if err != nil {
				return err
			}
			sp.Replace(clr.Start, clr.InnerStart, tag)
			return nil
		}
	}
	for _, name := range fillElements {
		if old := rPr.Child(name); old != nil {
			sp.Replace(old.Start, old.End, []byte(fill))
			return nil
		}
	}
	at := rPr.InnerStart
	if ln := rPr.Child("ln"); ln != nil {
		at = ln.End
	}
	sp.Insert(at, []byte(fill))
	return nil
}

func fontEdit(sp *pptx.Splicer, tree *pptx.Tree, rPr *pptx.Node, font string) error {
	if latin := rPr.Child("latin"); latin != nil {
		tag, err := pptx.RewriteStartTag(tree.StartTag(latin), []pptx.AttrChange{{Name: "typeface", Value: font}})
		if err != nil {
			return err
		}
		sp.Replace(latin.Start, latin.InnerStart, tag)
		return nil
	}
	at := rPr.InnerEnd
	for _, c := range rPr.Children {
		if afterLatin[c.Local] {
			at = c.Start
			break
		}
	}
	sp.Insert(at, []byte("<"+qname(rPr.Prefix, "latin")+` typeface="`+pptx.EscapeAttr(font)+`"/>`))
	return nil
}

// expand rewrites a self-closing element as a start and end tag pair.
func expand(tree *pptx.Tree, n *pptx.Node) []byte {
	tag := tree.StartTag(n)
	out := make([]byte, 0, len(tag)+len(n.QName())+3)
	out = append(out, bytes.TrimSuffix(tag, []byte("/>"))...)
	out = append(out, '>')
	out = append(out, "</"+n.QName()+">"...)
	return out
}

// asRunProperties copies a properties element such as a:endParaRPr under
// the a:rPr name.
func asRunProperties(tree *pptx.Tree, n *pptx.Node) []byte {
	raw := tree.Raw(n)
	from, to := n.QName(), qname(n.Prefix, "rPr")
	out := append([]byte("<"+to), raw[len(from)+1:]...)
	if closeTag := "</" + from + ">"; !n.SelfClosing && bytes.HasSuffix(out, []byte(closeTag)) {
		out = append(out[:len(out)-len(closeTag)], "</"+to+">"...)
	}
	return out
}

func qname(prefix, local string) string {
	if prefix == "" {
		return local
	}
	return prefix + ":" + local
}
