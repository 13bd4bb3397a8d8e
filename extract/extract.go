// Package extract turns a presentation container into the canonical
// document model.
//
// Extraction is tolerant: a shape whose representation cannot be decoded
// becomes [model.KindUnknown] and is reported as a warning, and a slide
// part that cannot be parsed yields an empty slide plus a warning. Only an
// unreadable container is fatal.
//
//	doc, warnings, err := extract.Extract(data, extract.DefaultOptions())
//	if err != nil {
//		return err // errors.Is(err, model.ErrUnreadableContainer)
//	}
//	for _, w := range warnings {
//		log.Println(w)
//	}
package extract

import (
	"fmt"
	"log/slog"

	"github.com/tsawler/deckform/model"
	"github.com/tsawler/deckform/opc"
	"github.com/tsawler/deckform/pptx"
)

// Recognizer reads text out of image bytes. *ocr.Client satisfies it.
type Recognizer interface {
	RecognizeImage(data []byte) (string, error)
}

// Options configures extraction.
type Options struct {
	// Logger receives debug output for skipped and downgraded content.
	// Nil discards.
	Logger *slog.Logger

	// RecognizePictureText runs Recognizer over every embedded picture and
	// stores the result in Picture.RecognizedText.
	RecognizePictureText bool
	Recognizer           Recognizer

	// InheritPlaceholderGeometry fills the placement of placeholders that
	// carry no transform of their own from the slide layout, then the
	// slide master.
	InheritPlaceholderGeometry bool
}

// DefaultOptions returns options for standard extraction.
func DefaultOptions() Options {
	return Options{InheritPlaceholderGeometry: true}
}

// Extract reads a container held in memory.
func Extract(container []byte, opts Options) (*model.Document, []model.Warning, error) {
	r, err := pptx.OpenBytes(container)
	if err != nil {
		return nil, nil, err
	}
	return FromReader(r, opts)
}

// FromReader extracts the document behind an opened reader.
func FromReader(r *pptx.Reader, opts Options) (*model.Document, []model.Warning, error) {
	e := newExtractor(r, opts)
	doc := model.NewDocument()
	doc.Metadata = r.Metadata()
	doc.SlideWidth, doc.SlideHeight = r.SlideSize()

	for _, sp := range r.Slides() {
		doc.AddSlide(e.slide(sp))
	}

	e.log.Debug("extraction complete",
		"slides", doc.SlideCount(),
		"warnings", len(e.warnings))
	return doc, e.warnings, nil
}

// extractor holds per-document state.
type extractor struct {
	r        *pptx.Reader
	pkg      *opc.Package
	opts     Options
	log      *slog.Logger
	types    *opc.ContentTypes
	inherit  *inheritance
	warnings []model.Warning
}

func newExtractor(r *pptx.Reader, opts Options) *extractor {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	e := &extractor{
		r:       r,
		pkg:     r.Package(),
		opts:    opts,
		log:     log,
		inherit: newInheritance(r.Package()),
	}
	if ct, err := e.pkg.ContentTypes(); err == nil {
		e.types = ct
	} else {
		log.Debug("content types unreadable", "error", err)
	}
	return e
}

func (e *extractor) warn(w model.Warning) {
	e.log.Warn("extraction warning", "code", w.Code, "shape", w.ShapeID, "message", w.Message)
	e.warnings = append(e.warnings, w)
}

// slideContext is the state shared by all shapes of one slide.
type slideContext struct {
	part   pptx.SlidePart
	tree   *pptx.SlideTree
	layout string // layout part name, if any
}

func (e *extractor) slide(sp pptx.SlidePart) *model.Slide {
	slide := &model.Slide{
		Part:   sp.Part,
		Layout: sp.Layout,
		Notes:  e.r.Notes(sp.Index),
		Shapes: make([]*model.Shape, 0),
	}

	tree, err := e.r.SlideTree(sp.Index)
	if err != nil {
		e.warn(model.Warning{
			Code:    model.WarnSlideUnreadable,
			Message: fmt.Sprintf("slide %d (%s) skipped: %v", sp.Index, sp.Part, err),
			Err:     err,
		})
		return slide
	}

	sc := &slideContext{part: sp, tree: tree}
	if layouts := sp.Rels.ByType(opc.RelTypeSlideLayout); len(layouts) > 0 {
		sc.layout = sp.Rels.Resolve(layouts[0])
	}

	for n, raw := range tree.Shapes() {
		id := fmt.Sprintf("slide_%d_shape_%d", sp.Index-1, n)
		slide.Shapes = append(slide.Shapes, e.shape(sc, raw, id, nil))
	}
	return slide
}

// shape builds one shape. parent is the enclosing group, already built.
func (e *extractor) shape(sc *slideContext, raw pptx.RawShape, id string, parent *model.Shape) *model.Shape {
	el := raw.Element
	s := &model.Shape{
		ID:      id,
		Kind:    Classify(el),
		Locator: raw.Locator,
	}
	if c := pptx.NonVisual(el); c != nil {
		s.Name = c.AttrString("name")
	}

	ph := placeholderOf(el)
	if ph != nil {
		s.Placeholder = placeholderType(ph)
	}

	tr := pptx.ShapeTransform(el)
	s.Geometry, s.Rotation = tr.Rect, tr.Rotation
	if !tr.Present && ph != nil && parent == nil && e.opts.InheritPlaceholderGeometry {
		if rect, ok := e.inherit.lookup(sc.layout, ph); ok {
			s.Geometry = rect
		}
	}
	if parent != nil {
		s.ParentID = parent.ID
		orig := parent.Group.Original
		s.Geometry = s.Geometry.Offset(-orig.Left, -orig.Top)
	}

	var err error
	switch s.Kind {
	case model.KindPicture:
		err = e.picture(sc, s, el)
	case model.KindTable:
		s.Table, err = e.table(sc, el)
	case model.KindGroup:
		s.Group = &model.Group{Original: tr.Rect}
		if tr.Child.Width > 0 || tr.Child.Height > 0 {
			s.Group.Original = tr.Child
		}
		for k, child := range raw.Children {
			s.Group.Children = append(s.Group.Children,
				e.shape(sc, child, fmt.Sprintf("%s_child_%d", id, k), s))
		}
	case model.KindTextContainer, model.KindPlaceholder:
		s.Text = &model.TextBody{Paragraphs: e.paragraphs(sc, el.Child("txBody"))}
	case model.KindAutoShape:
		s.Opaque = &model.OpaqueInfo{Element: el.Local, Detail: presetOf(el)}
		if body := el.Child("txBody"); body != nil {
			s.Text = &model.TextBody{Paragraphs: e.paragraphs(sc, body)}
		}
	case model.KindChart:
		s.Opaque = &model.OpaqueInfo{Element: el.Local, URI: graphicURI(el), Detail: e.chartType(sc, el)}
	case model.KindLine:
		s.Opaque = &model.OpaqueInfo{Element: el.Local, Detail: presetOf(el)}
	default:
		s.Opaque = &model.OpaqueInfo{Element: el.Local, URI: graphicURI(el)}
	}

	if err != nil {
		e.downgrade(sc, s, el, err)
	}
	return s
}

// downgrade turns a shape that failed to decode into an unknown shape.
func (e *extractor) downgrade(sc *slideContext, s *model.Shape, el *pptx.Node, err error) {
	up, ok := err.(*model.UnsupportedPartError)
	if !ok {
		up = &model.UnsupportedPartError{ShapeID: s.ID, Part: sc.part.Part, Reason: "decode failed", Err: err}
	}
	up.ShapeID = s.ID
	if up.Part == "" {
		up.Part = sc.part.Part
	}

	s.Kind = model.KindUnknown
	s.Text, s.Table, s.Picture, s.Group = nil, nil, nil, nil
	s.Opaque = &model.OpaqueInfo{Element: el.Local, URI: graphicURI(el), Detail: up.Error()}
	e.warn(model.WarningFromError(up))
}
