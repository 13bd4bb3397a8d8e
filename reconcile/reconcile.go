// Package reconcile merges a canonical document with pending overlays.
//
// Apply produces the effective document shown to an editor. Materialize
// writes the same edits into the original container, touching only the
// bytes that must change: every part, shape and run without an edit is
// carried over byte for byte.
//
// Both paths ignore overlays that name shapes the document does not have
// and overlays that fail validation, reporting each as a warning. Neither
// path mutates its inputs.
package reconcile

import (
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/text/unicode/norm"

	"github.com/tsawler/deckform/model"
	"github.com/tsawler/deckform/overlay"
)

// Assets resolves uploaded asset names to their bytes.
type Assets interface {
	ReadAsset(name string) ([]byte, error)
}

// Options configures reconciliation.
type Options struct {
	// Logger receives ignored overlays and skipped shapes. Nil discards.
	Logger *slog.Logger

	// Assets supplies image bytes for image overlays during Materialize.
	// Without it image overlays that reference uploads are skipped.
	Assets Assets
}

// target is every applicable overlay of one shape.
type target struct {
	shape *model.Shape
	part  string // slide part holding the shape
	text  *overlay.TextEdit
	table *overlay.TableEdit
	image *overlay.ImageEdit
}

type reconciler struct {
	log      *slog.Logger
	warnings []model.Warning
}

func newReconciler(opts Options) *reconciler {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &reconciler{log: log}
}

func (r *reconciler) warn(w model.Warning) {
	r.log.Warn("reconcile warning", "code", w.Code, "shape", w.ShapeID, "message", w.Message)
	r.warnings = append(r.warnings, w)
}

func (r *reconciler) mismatch(s *model.Shape, kind overlay.Kind) {
	r.warn(model.Warning{
		Code:    model.WarnKindMismatch,
		ShapeID: s.ID,
		Message: fmt.Sprintf("%s overlay does not apply to a %s shape", kind, s.Kind),
	})
}

// targets validates overlays against doc and returns them grouped per
// shape, in shape id order.
func (r *reconciler) targets(doc *model.Document, overlays []overlay.Overlay) []*target {
	idx := doc.Index()
	sorted := append([]overlay.Overlay(nil), overlays...)
	overlay.Sort(sorted)

	byID := make(map[string]*target)
	var out []*target
	for _, o := range sorted {
		if err := overlay.Validate(o); err != nil {
			r.warn(model.WarningFromError(err))
			continue
		}
		s := idx.Shape(o.ShapeID)
		if s == nil {
			r.log.Debug("overlay names unknown shape", "shape", o.ShapeID, "kind", o.Kind)
			r.warn(model.WarningFromError(&model.OverlayShapeNotFoundError{ShapeID: o.ShapeID}))
			continue
		}

		t := byID[s.ID]
		if t == nil {
			t = &target{shape: s}
			if slide := doc.GetSlide(idx.SlideOf(s.ID)); slide != nil {
				t.part = slide.Part
			}
			byID[s.ID] = t
			out = append(out, t)
		}

		switch o.Kind {
		case overlay.KindText:
			if s.Text == nil || s.Table != nil {
				r.mismatch(s, o.Kind)
				continue
			}
			t.text = o.Text
		case overlay.KindTable:
			if s.Table == nil {
				r.mismatch(s, o.Kind)
				continue
			}
			t.table = o.Table
		case overlay.KindImage:
			if s.Picture == nil {
				r.mismatch(s, o.Kind)
				continue
			}
			t.image = o.Image
		}
	}
	return out
}

// Apply returns the effective document: a copy of doc with every
// applicable overlay merged in. A text overlay replaces the shape's
// paragraphs outright; a table overlay overwrites the cells it names; an
// image overlay changes which image the picture resolves to.
func Apply(doc *model.Document, overlays []overlay.Overlay, opts Options) (*model.Document, []model.Warning) {
	r := newReconciler(opts)
	out := doc.Clone()
	for _, t := range r.targets(out, overlays) {
		s := t.shape
		if t.text != nil {
			s.Text.Paragraphs = resolveText(s.Text.Paragraphs, t.text)
		}
		if t.table != nil {
			r.applyTable(s, t.table)
		}
		if t.image != nil {
			applyImage(s.Picture, t.image)
		}
	}
	return out, r.warnings
}

func (r *reconciler) applyTable(s *model.Shape, te *overlay.TableEdit) {
	tbl := s.Table
	rows, cols := tbl.Rows, tbl.Cols
	if te.Rows > 0 {
		rows = te.Rows
	}
	if te.Cols > 0 {
		cols = te.Cols
	}
	if rows != tbl.Rows || cols != tbl.Cols {
		r.log.Debug("resizing table to overlay grid", "shape", s.ID,
			"from", fmt.Sprintf("%dx%d", tbl.Rows, tbl.Cols), "to", fmt.Sprintf("%dx%d", rows, cols))
		tbl.Resize(rows, cols)
	}

	for _, key := range cellKeys(te) {
		edit := te.Cells[key]
		cell := tbl.Cell(edit.Row, edit.Col)
		if cell == nil {
			r.warn(model.Warning{
				Code:    model.WarnCellSkipped,
				ShapeID: s.ID,
				Message: fmt.Sprintf("cell %s is outside the %dx%d grid", key, tbl.Rows, tbl.Cols),
			})
			continue
		}
		if cell.OriginalText == nil {
			orig := cell.Text
			if edit.OriginalText != nil {
				orig = *edit.OriginalText
			}
			cell.OriginalText = &orig
		}
		cell.Text = edit.Text
	}
}

func applyImage(p *model.Picture, ie *overlay.ImageEdit) {
	if ie.ImageURL != "" {
		p.Override, p.External = ie.ImageURL, true
		return
	}
	p.Override, p.External = ie.ImageRef, false
}

// ResolveImage returns the image a shape resolves to: the override set by
// an image overlay when present, the extracted image otherwise. Shapes
// without a picture resolve to "".
func ResolveImage(s *model.Shape) string {
	if s == nil || s.Picture == nil {
		return ""
	}
	return s.Picture.Resolve()
}

func cellKeys(te *overlay.TableEdit) []string {
	keys := make([]string, 0, len(te.Cells))
	for k := range te.Cells {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := te.Cells[keys[i]], te.Cells[keys[j]]
		if a.Row != b.Row {
			return a.Row < b.Row
		}
		return a.Col < b.Col
	})
	return keys
}

// resolveText turns an edit's paragraphs into the shape's new paragraphs.
// Positional edits are bound to the extracted text runs by position, and
// boundary whitespace the editor stripped is restored.
func resolveText(canon []model.Paragraph, te *overlay.TextEdit) []model.Paragraph {
	out := make([]model.Paragraph, len(te.Paragraphs))
	for i, p := range te.Paragraphs {
		np := p
		np.Runs = make([]model.Run, len(p.Runs))
		textRun := 0
		for j, run := range p.Runs {
			if te.Positional && run.Kind == model.RunText {
				run = bindPositional(canon, i, textRun, run)
				textRun++
			}
			switch run.Kind {
			case model.RunBreak:
				run.Text = "\n"
			case model.RunText:
				run.Text = restoreWhitespace(run.Text, run.Boundary)
			}
			np.Runs[j] = run
		}
		out[i] = np
	}
	return out
}

// bindPositional gives run the boundary of the n-th text run of paragraph
// i, keeping the whitespace the editor sent.
func bindPositional(canon []model.Paragraph, i, n int, run model.Run) model.Run {
	if i >= len(canon) {
		return run
	}
	for _, c := range canon[i].Runs {
		if c.Kind != model.RunText {
			continue
		}
		if n == 0 {
			b := c.Boundary
			b.Leading, b.Trailing = run.Boundary.Leading, run.Boundary.Trailing
			run.Boundary = b
			return run
		}
		n--
	}
	return run
}

// restoreWhitespace puts back the leading and trailing whitespace of the
// source run when the edited text arrives without it. Text that is empty
// or only whitespace is kept as sent.
func restoreWhitespace(text string, b model.Boundary) string {
	leading, core, trailing := model.SplitBoundary(text)
	if core == "" {
		return text
	}
	if leading == "" && b.Leading != "" {
		text = b.Leading + text
	}
	if trailing == "" && b.Trailing != "" {
		text += b.Trailing
	}
	return text
}

// sameText compares texts after NFC normalization.
func sameText(a, b string) bool {
	return a == b || norm.NFC.String(a) == norm.NFC.String(b)
}
