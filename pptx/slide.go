package pptx

import (
	"fmt"
	"math"

	"github.com/tsawler/deckform/model"
)

// SlideTree is a parsed slide part.
type SlideTree struct {
	*Tree
	Part   string
	CSld   *Node
	SpTree *Node
}

// ParseSlide parses a slide part and locates its shape tree.
func ParseSlide(part string, data []byte) (*SlideTree, error) {
	tree, err := ParseTree(data)
	if err != nil {
		return nil, fmt.Errorf("slide %s: %w", part, err)
	}
	root := tree.Element()
	if root == nil || root.Local != "sld" {
		return nil, fmt.Errorf("slide %s: root element is not a slide", part)
	}
	cSld := root.Child("cSld")
	spTree := cSld.Child("spTree")
	if spTree == nil {
		return nil, fmt.Errorf("slide %s: no shape tree", part)
	}
	return &SlideTree{Tree: tree, Part: part, CSld: cSld, SpTree: spTree}, nil
}

// Lookup resolves a locator relative to the slide's cSld element.
func (s *SlideTree) Lookup(locator string) *Node {
	return s.CSld.Find(locator)
}

// Locator returns the locator of n within the slide.
func (s *SlideTree) Locator(n *Node) string {
	return n.Path(s.CSld)
}

// RawShape is a shape element found in a shape tree, in document order.
type RawShape struct {
	Element  *Node
	Locator  string
	Children []RawShape // members of a group
}

// shapeElements are the spTree children that are placeable shapes.
var shapeElements = map[string]bool{
	"sp":           true,
	"pic":          true,
	"graphicFrame": true,
	"grpSp":        true,
	"cxnSp":        true,
	"contentPart":  true,
}

// Shapes returns the top-level shapes of the slide.
func (s *SlideTree) Shapes() []RawShape {
	return s.collect(s.SpTree)
}

func (s *SlideTree) collect(container *Node) []RawShape {
	var out []RawShape
	for _, c := range container.Children {
		el := c
		if c.Local == "AlternateContent" && c.Space == NsMarkupCompat {
			el = resolveAlternate(c)
			if el == nil {
				continue
			}
		}
		if !shapeElements[el.Local] {
			continue
		}
		rs := RawShape{Element: el, Locator: s.Locator(el)}
		if el.Local == "grpSp" {
			rs.Children = s.collect(el)
		}
		out = append(out, rs)
	}
	return out
}

// resolveAlternate picks the shape inside mc:AlternateContent: the first
// Choice holding a shape element, else the Fallback.
func resolveAlternate(ac *Node) *Node {
	pick := func(branch *Node) *Node {
		for _, c := range branch.Children {
			if shapeElements[c.Local] {
				return c
			}
		}
		return nil
	}
	for _, choice := range ac.ChildrenNamed("Choice") {
		if el := pick(choice); el != nil {
			return el
		}
	}
	if fb := ac.Child("Fallback"); fb != nil {
		return pick(fb)
	}
	return nil
}

// NonVisual returns the cNvPr element of a shape.
func NonVisual(el *Node) *Node {
	for _, c := range el.Children {
		if len(c.Local) > 2 && c.Local[:2] == "nv" {
			return c.Child("cNvPr")
		}
	}
	return nil
}

// NonVisualProps returns the nvPr element of a shape.
func NonVisualProps(el *Node) *Node {
	for _, c := range el.Children {
		if len(c.Local) > 2 && c.Local[:2] == "nv" {
			return c.Child("nvPr")
		}
	}
	return nil
}

// Transform holds placement decoded from an xfrm element.
type Transform struct {
	Rect     model.Rect
	Rotation float64 // degrees
	FlipH    bool
	FlipV    bool
	Child    model.Rect // chOff/chExt, groups only
	Present  bool
}

// ShapeTransform decodes a shape's xfrm: spPr/a:xfrm for shapes, pictures
// and connectors, p:xfrm for graphic frames, grpSpPr/a:xfrm for groups.
func ShapeTransform(el *Node) Transform {
	var xfrm *Node
	switch el.Local {
	case "graphicFrame":
		xfrm = el.Child("xfrm")
	case "grpSp":
		xfrm = el.Child("grpSpPr").Child("xfrm")
	default:
		xfrm = el.Child("spPr").Child("xfrm")
	}
	return decodeXfrm(xfrm)
}

func decodeXfrm(xfrm *Node) Transform {
	if xfrm == nil {
		return Transform{}
	}
	t := Transform{Present: true}
	if off := xfrm.Child("off"); off != nil {
		t.Rect.Left, _ = off.AttrInt("x")
		t.Rect.Top, _ = off.AttrInt("y")
	}
	if ext := xfrm.Child("ext"); ext != nil {
		t.Rect.Width, _ = ext.AttrInt("cx")
		t.Rect.Height, _ = ext.AttrInt("cy")
	}
	if off := xfrm.Child("chOff"); off != nil {
		t.Child.Left, _ = off.AttrInt("x")
		t.Child.Top, _ = off.AttrInt("y")
	}
	if ext := xfrm.Child("chExt"); ext != nil {
		t.Child.Width, _ = ext.AttrInt("cx")
		t.Child.Height, _ = ext.AttrInt("cy")
	}
	if rot, ok := xfrm.AttrInt("rot"); ok {
		t.Rotation = normalizeRotation(float64(rot) / 60000)
	}
	t.FlipH, _ = xfrm.AttrBool("flipH")
	t.FlipV, _ = xfrm.AttrBool("flipV")
	return t
}

// normalizeRotation maps degrees into [0, 360).
func normalizeRotation(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}
