// Package overlay holds pending edits to a document, one record per shape
// and edit kind.
//
// An overlay store knows nothing about documents: it accepts entries for
// shape ids that may not exist and never validates payloads against the
// model. Validation happens when overlays are reconciled.
//
// A Put for a (shape, kind) pair replaces the previous entry of that kind
// entirely. Text, table and image entries for the same shape coexist.
package overlay

import (
	"time"

	"github.com/tsawler/deckform/model"
)

// Kind tags the payload of an overlay.
type Kind string

const (
	KindText  Kind = "text"
	KindTable Kind = "table"
	KindImage Kind = "image"
)

// Kinds lists every kind in a fixed order.
var Kinds = []Kind{KindText, KindTable, KindImage}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindText || k == KindTable || k == KindImage
}

func (k Kind) order() int {
	switch k {
	case KindText:
		return 0
	case KindTable:
		return 1
	case KindImage:
		return 2
	}
	return 3
}

// Overlay is one pending edit. Exactly the payload matching Kind is set.
type Overlay struct {
	ShapeID   string     `json:"shape_id"`
	Kind      Kind       `json:"kind"`
	Text      *TextEdit  `json:"text,omitempty"`
	Table     *TableEdit `json:"table,omitempty"`
	Image     *ImageEdit `json:"image,omitempty"`
	UpdatedAt time.Time  `json:"updated_at,omitzero"`
}

// TextEdit replaces a shape's whole paragraph sequence.
//
// Runs normally name their source element through their boundary token.
// When Positional is set the runs carry no tokens and address the
// extracted runs by (paragraph, run) position instead, as older editors
// do.
type TextEdit struct {
	Paragraphs []model.Paragraph `json:"paragraphs"`
	Positional bool              `json:"positional,omitempty"`
}

// TableEdit is a sparse set of cell changes. Rows and Cols declare the
// grid the editor worked with; zero means "as extracted".
type TableEdit struct {
	Rows  int                 `json:"rows,omitempty"`
	Cols  int                 `json:"cols,omitempty"`
	Cells map[string]CellEdit `json:"changes"`
}

// CellEdit is one changed cell, keyed by model.CellKey(Row, Col).
type CellEdit struct {
	Row          int     `json:"row"`
	Col          int     `json:"col"`
	Text         string  `json:"text"`
	OriginalText *string `json:"original_text,omitempty"`
}

// ImageEdit substitutes a picture's image, either with an uploaded asset
// or an external URL.
type ImageEdit struct {
	ImageRef         string `json:"image_ref,omitempty"`
	UploadedAt       string `json:"uploaded_at,omitempty"` // ISO 8601, as sent by the editor
	OriginalFilename string `json:"original_filename,omitempty"`
	SizeBytes        int64  `json:"size_bytes,omitempty"`

	ImageURL   string `json:"image_url,omitempty"`
	IsExternal bool   `json:"is_external,omitempty"`
}

// NewText builds a text overlay.
func NewText(shapeID string, paras []model.Paragraph) Overlay {
	return Overlay{ShapeID: shapeID, Kind: KindText, Text: &TextEdit{Paragraphs: paras}}
}

// NewTable builds a table overlay from cell edits.
func NewTable(shapeID string, rows, cols int, cells ...CellEdit) Overlay {
	te := &TableEdit{Rows: rows, Cols: cols, Cells: make(map[string]CellEdit, len(cells))}
	for _, c := range cells {
		te.Cells[model.CellKey(c.Row, c.Col)] = c
	}
	return Overlay{ShapeID: shapeID, Kind: KindTable, Table: te}
}

// NewImage builds an image overlay referencing an uploaded asset.
func NewImage(shapeID, imageRef string) Overlay {
	return Overlay{ShapeID: shapeID, Kind: KindImage, Image: &ImageEdit{ImageRef: imageRef}}
}

// NewImageURL builds an image overlay pointing at an external URL.
func NewImageURL(shapeID, url string) Overlay {
	return Overlay{ShapeID: shapeID, Kind: KindImage, Image: &ImageEdit{ImageURL: url, IsExternal: true}}
}

// Clone returns a deep copy.
func (o Overlay) Clone() Overlay {
	out := o
	if o.Text != nil {
		paras := make([]model.Paragraph, len(o.Text.Paragraphs))
		for i, p := range o.Text.Paragraphs {
			paras[i] = p
			paras[i].Runs = append([]model.Run(nil), p.Runs...)
		}
		out.Text = &TextEdit{Paragraphs: paras, Positional: o.Text.Positional}
	}
	if o.Table != nil {
		te := *o.Table
		te.Cells = make(map[string]CellEdit, len(o.Table.Cells))
		for k, c := range o.Table.Cells {
			if c.OriginalText != nil {
				s := *c.OriginalText
				c.OriginalText = &s
			}
			te.Cells[k] = c
		}
		out.Table = &te
	}
	if o.Image != nil {
		ie := *o.Image
		out.Image = &ie
	}
	return out
}

// Set is every overlay recorded for one shape.
type Set struct {
	Text  *Overlay
	Table *Overlay
	Image *Overlay
}

// Get returns the overlay of the given kind, or nil.
func (s Set) Get(kind Kind) *Overlay {
	switch kind {
	case KindText:
		return s.Text
	case KindTable:
		return s.Table
	case KindImage:
		return s.Image
	}
	return nil
}

func (s *Set) put(o Overlay) {
	switch o.Kind {
	case KindText:
		s.Text = &o
	case KindTable:
		s.Table = &o
	case KindImage:
		s.Image = &o
	}
}

// Empty reports whether the set holds nothing.
func (s Set) Empty() bool {
	return s.Text == nil && s.Table == nil && s.Image == nil
}

// Group collects overlays into sets by shape id. Later entries of the same
// kind win.
func Group(overlays []Overlay) map[string]Set {
	out := make(map[string]Set)
	for _, o := range overlays {
		s := out[o.ShapeID]
		s.put(o)
		out[o.ShapeID] = s
	}
	return out
}
