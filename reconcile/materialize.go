package reconcile

import (
	"errors"
	"fmt"
	"sort"

	"github.com/tsawler/deckform/model"
	"github.com/tsawler/deckform/opc"
	"github.com/tsawler/deckform/overlay"
	"github.com/tsawler/deckform/pptx"
)

// partEdit accumulates the splices of one slide part.
type partEdit struct {
	tree  *pptx.SlideTree
	err   error
	edits pptx.Splicer
}

type materializer struct {
	*reconciler
	pkg    *opc.Package
	w      *opc.Writer
	assets Assets
	parts  map[string]*partEdit
	media  map[string]string // asset name -> media part
	rels   map[string]string // slide part + target -> relationship id
}

// Materialize writes overlays into container and returns the new container
// bytes. doc must be the document extracted from container; its boundaries
// and locators name the elements to edit.
//
// Only the bytes an edit must change are rewritten. Parts without edits
// are copied raw, and with no applicable overlay the result equals
// container byte for byte. A shape whose elements no longer match doc is
// skipped with a StructuralDriftError warning. The error is non-nil only
// when the container cannot be read or written.
func Materialize(container []byte, doc *model.Document, overlays []overlay.Overlay, opts Options) ([]byte, []model.Warning, error) {
	pkg, err := opc.OpenBytes(container)
	if err != nil {
		return nil, nil, err
	}
	m := &materializer{
		reconciler: newReconciler(opts),
		pkg:        pkg,
		w:          opc.NewWriter(pkg),
		assets:     opts.Assets,
		parts:      make(map[string]*partEdit),
		media:      make(map[string]string),
		rels:       make(map[string]string),
	}

	for _, t := range m.targets(doc, overlays) {
		m.target(t)
	}
	if err := m.flush(); err != nil {
		return nil, m.warnings, err
	}

	out, err := m.w.Bytes()
	if err != nil {
		return nil, m.warnings, fmt.Errorf("writing container: %w", err)
	}
	m.log.Debug("export complete", "parts_changed", m.w.Changed(), "warnings", len(m.warnings))
	return out, m.warnings, nil
}

// part parses a slide part once per export.
func (m *materializer) part(name string) (*partEdit, error) {
	if pe, ok := m.parts[name]; ok {
		return pe, pe.err
	}
	pe := &partEdit{}
	data, err := m.pkg.Part(name)
	if err == nil {
		pe.tree, err = pptx.ParseSlide(name, data)
	}
	pe.err = err
	m.parts[name] = pe
	return pe, err
}

func (m *materializer) target(t *target) {
	s := t.shape
	pe, err := m.part(t.part)
	if err != nil {
		m.log.Debug("slide part unreadable", "part", t.part, "error", err)
		m.fail(drift(s, t.part, s.Locator))
		return
	}
	el := pe.tree.Lookup(s.Locator)
	if el == nil {
		m.fail(drift(s, t.part, s.Locator))
		return
	}

	if t.text != nil {
		paras := resolveText(s.Text.Paragraphs, t.text)
		m.collect(pe, func() (*pptx.Splicer, error) { return writeText(pe.tree, el, s, paras) })
	}
	if t.table != nil {
		m.collect(pe, func() (*pptx.Splicer, error) { return m.writeTable(pe.tree, s, t.table) })
	}
	if t.image != nil {
		m.collect(pe, func() (*pptx.Splicer, error) { return m.writeImage(pe.tree, el, s, t.image) })
	}
}

// collect merges one edit's splices into its part, or reports why the
// edit was skipped.
func (m *materializer) collect(pe *partEdit, write func() (*pptx.Splicer, error)) {
	sp, err := write()
	if err != nil {
		m.fail(err)
		return
	}
	pe.edits.Merge(sp)
}

func (m *materializer) fail(err error) {
	var ae *assetError
	var sd *model.StructuralDriftError
	switch {
	case errors.As(err, &ae):
		w := model.Warning{Code: model.WarnAssetUnavailable, Message: err.Error(), Err: err}
		m.warn(w)
	case errors.As(err, &sd):
		m.warn(model.WarningFromError(err))
	default:
		m.warn(model.Warning{Code: model.WarnUnsupportedPart, Message: err.Error(), Err: err})
	}
}

// flush applies the splices of every edited part to the plan.
func (m *materializer) flush() error {
	names := make([]string, 0, len(m.parts))
	for name, pe := range m.parts {
		if pe.err == nil && pe.edits.Len() > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		pe := m.parts[name]
		data, err := pe.edits.Apply(pe.tree.Data)
		if err != nil {
			return fmt.Errorf("editing %s: %w", name, err)
		}
		if err := m.w.Replace(name, data); err != nil {
			return err
		}
	}
	return nil
}
