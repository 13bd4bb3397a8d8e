package model

import "time"

// Document represents a complete presentation with extracted structure
type Document struct {
	Metadata    Metadata
	SlideWidth  int64 // EMUs
	SlideHeight int64 // EMUs
	Slides      []*Slide
}

// Metadata contains document-level information
type Metadata struct {
	Title          string
	Author         string
	Subject        string
	Keywords       []string
	Creator        string
	LastModifiedBy string
	Modified       time.Time
	// Custom metadata
	Custom map[string]string
}

// Slide is an ordered sequence of shapes.
type Slide struct {
	Index  int    // 1-based, stable for the session
	Part   string // e.g. ppt/slides/slide3.xml
	Layout string // layout name, if known
	Notes  string // speaker notes, read-only
	Shapes []*Shape
}

// NewDocument creates a new empty document
func NewDocument() *Document {
	return &Document{
		Metadata: Metadata{
			Custom: make(map[string]string),
		},
		Slides: make([]*Slide, 0),
	}
}

// AddSlide appends a slide and assigns its 1-based index.
func (d *Document) AddSlide(slide *Slide) {
	slide.Index = len(d.Slides) + 1
	d.Slides = append(d.Slides, slide)
}

// GetSlide returns a slide by number (1-indexed)
func (d *Document) GetSlide(number int) *Slide {
	if number < 1 || number > len(d.Slides) {
		return nil
	}
	return d.Slides[number-1]
}

// SlideCount returns the total number of slides
func (d *Document) SlideCount() int {
	return len(d.Slides)
}

// Walk visits every shape depth-first in document order. The ancestors
// slice holds the enclosing groups, outermost first, and must not be
// retained. Returning false from fn skips the shape's children.
func (d *Document) Walk(fn func(s *Shape, ancestors []*Shape) bool) {
	for _, slide := range d.Slides {
		walkShapes(slide.Shapes, nil, fn)
	}
}

func walkShapes(shapes []*Shape, ancestors []*Shape, fn func(*Shape, []*Shape) bool) {
	for _, s := range shapes {
		if !fn(s, ancestors) {
			continue
		}
		if s.Group != nil {
			walkShapes(s.Group.Children, append(ancestors, s), fn)
		}
	}
}

// ExtractText returns the plain text of every text-bearing shape, one
// paragraph per line.
func (d *Document) ExtractText() string {
	var text string
	d.Walk(func(s *Shape, _ []*Shape) bool {
		if s.Text != nil {
			for _, p := range s.Text.Paragraphs {
				text += p.Text() + "\n"
			}
		}
		return true
	})
	return text
}

// Clone returns a deep copy of the document. Reconciliation works on clones
// so the canonical model is never mutated.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := &Document{
		Metadata:    d.Metadata,
		SlideWidth:  d.SlideWidth,
		SlideHeight: d.SlideHeight,
		Slides:      make([]*Slide, len(d.Slides)),
	}
	out.Metadata.Keywords = append([]string(nil), d.Metadata.Keywords...)
	out.Metadata.Custom = make(map[string]string, len(d.Metadata.Custom))
	for k, v := range d.Metadata.Custom {
		out.Metadata.Custom[k] = v
	}
	for i, s := range d.Slides {
		ns := *s
		ns.Shapes = cloneShapes(s.Shapes)
		out.Slides[i] = &ns
	}
	return out
}

// Index is an arena view of a document: every shape addressable by id,
// with parent links stored as ids rather than pointers.
type Index struct {
	shapes  map[string]*Shape
	parents map[string]string
	slides  map[string]int
}

// Index builds a lookup table over all shapes, including group children.
func (d *Document) Index() *Index {
	idx := &Index{
		shapes:  make(map[string]*Shape),
		parents: make(map[string]string),
		slides:  make(map[string]int),
	}
	for _, slide := range d.Slides {
		slideIndex := slide.Index
		walkShapes(slide.Shapes, nil, func(s *Shape, ancestors []*Shape) bool {
			idx.shapes[s.ID] = s
			idx.slides[s.ID] = slideIndex
			if len(ancestors) > 0 {
				idx.parents[s.ID] = ancestors[len(ancestors)-1].ID
			}
			return true
		})
	}
	return idx
}

// Shape returns the shape with the given id, or nil.
func (x *Index) Shape(id string) *Shape {
	return x.shapes[id]
}

// SlideOf returns the 1-based slide index holding the shape, or 0.
func (x *Index) SlideOf(id string) int {
	return x.slides[id]
}

// Len returns the number of indexed shapes.
func (x *Index) Len() int {
	return len(x.shapes)
}

// Ancestors returns the enclosing groups of a shape, outermost first.
func (x *Index) Ancestors(id string) []*Shape {
	var chain []*Shape
	for p, ok := x.parents[id]; ok; p, ok = x.parents[p] {
		chain = append([]*Shape{x.shapes[p]}, chain...)
	}
	return chain
}

// Absolute returns the absolute geometry of a shape, composing any
// enclosing groups.
func (x *Index) Absolute(id string) (Rect, bool) {
	s := x.shapes[id]
	if s == nil {
		return Rect{}, false
	}
	return AbsoluteGeometry(s, x.Ancestors(id)), true
}
