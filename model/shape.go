package model

import (
	"path"
	"strings"
)

// Kind is the closed set of shape variants.
type Kind int

const (
	KindUnknown Kind = iota
	KindTextContainer
	KindTable
	KindPicture
	KindGroup
	KindChart
	KindSmartArt
	KindLine
	KindAutoShape
	KindPlaceholder
)

func (k Kind) String() string {
	switch k {
	case KindTextContainer:
		return "textbox"
	case KindTable:
		return "table"
	case KindPicture:
		return "picture"
	case KindGroup:
		return "group"
	case KindChart:
		return "chart"
	case KindSmartArt:
		return "smartart"
	case KindLine:
		return "line"
	case KindAutoShape:
		return "autoshape"
	case KindPlaceholder:
		return "placeholder"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String. Unrecognized names map to
// KindUnknown.
func ParseKind(s string) Kind {
	switch strings.ToLower(s) {
	case "textbox":
		return KindTextContainer
	case "table":
		return KindTable
	case "picture":
		return KindPicture
	case "group":
		return KindGroup
	case "chart":
		return KindChart
	case "smartart":
		return KindSmartArt
	case "line":
		return KindLine
	case "autoshape":
		return KindAutoShape
	case "placeholder":
		return KindPlaceholder
	default:
		return KindUnknown
	}
}

// Shape is any placeable element on a slide.
type Shape struct {
	ID          string // unique within the document, never reused
	Name        string // human label, not unique
	Kind        Kind
	Geometry    Rect    // relative to the parent group's original box when ParentID is set
	Rotation    float64 // degrees
	ParentID    string  // enclosing group, if any
	Placeholder string  // placeholder type (title, body, ...), if any
	Locator     string  // structural path of the shape element within its slide part

	// Payloads. At most one of Table, Picture, Group, Opaque is set;
	// Text may accompany Opaque only for autoshapes and placeholders.
	Text    *TextBody
	Table   *Table
	Picture *Picture
	Group   *Group
	Opaque  *OpaqueInfo
}

// TextBody is the payload of text-bearing shapes.
type TextBody struct {
	Paragraphs []Paragraph
}

// Picture is the payload of picture shapes.
type Picture struct {
	Image          ImageRef
	Crop           *Crop
	RecognizedText string // filled only when picture text recognition is enabled

	// Override is set by reconciliation when an image overlay applies. It
	// holds an asset name, or a URL when External is true.
	Override string
	External bool
}

// Resolve returns the logical image name used when resolving the picture to
// bytes: the override when present, the original reference otherwise.
func (p *Picture) Resolve() string {
	if p.Override != "" {
		return p.Override
	}
	return p.Image.Name
}

// Crop holds the source rectangle insets in thousandths of a percent.
type Crop struct {
	Left, Top, Right, Bottom int
}

// ImageRef is a logical reference to image bytes; it carries no pixel data.
type ImageRef struct {
	Name        string // e.g. image3.png
	Part        string // e.g. ppt/media/image3.png
	RelID       string // relationship id within the slide part
	ContentType string
	Size        int64
}

// Key returns the name without its extension, used for override matching.
func (r ImageRef) Key() string {
	return strings.TrimSuffix(r.Name, path.Ext(r.Name))
}

// Group holds child shapes whose geometry is relative to Original.
type Group struct {
	Children []*Shape
	Original Rect // the group's child coordinate box (chOff/chExt)
}

// OpaqueInfo is read-only metadata for shapes without structured editing.
type OpaqueInfo struct {
	Element string // local element name, e.g. graphicFrame
	URI     string // graphicData uri, if any
	Detail  string // free-form description (chart type, preset geometry, decode error)
}

// IsText reports whether the shape carries an editable text payload.
func (s *Shape) IsText() bool {
	return s.Text != nil && s.Table == nil
}

// Clone returns a deep copy of the shape and its children.
func (s *Shape) Clone() *Shape {
	if s == nil {
		return nil
	}
	out := *s
	if s.Text != nil {
		out.Text = &TextBody{Paragraphs: cloneParagraphs(s.Text.Paragraphs)}
	}
	if s.Table != nil {
		out.Table = s.Table.Clone()
	}
	if s.Picture != nil {
		p := *s.Picture
		if s.Picture.Crop != nil {
			c := *s.Picture.Crop
			p.Crop = &c
		}
		out.Picture = &p
	}
	if s.Group != nil {
		out.Group = &Group{
			Children: cloneShapes(s.Group.Children),
			Original: s.Group.Original,
		}
	}
	if s.Opaque != nil {
		o := *s.Opaque
		out.Opaque = &o
	}
	return &out
}

func cloneShapes(in []*Shape) []*Shape {
	if in == nil {
		return nil
	}
	out := make([]*Shape, len(in))
	for i, s := range in {
		out[i] = s.Clone()
	}
	return out
}
