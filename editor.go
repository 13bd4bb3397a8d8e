package deckform

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tsawler/deckform/assets"
	"github.com/tsawler/deckform/extract"
	"github.com/tsawler/deckform/format"
	"github.com/tsawler/deckform/internal/fileutil"
	"github.com/tsawler/deckform/model"
	"github.com/tsawler/deckform/ocr"
	"github.com/tsawler/deckform/overlay"
	"github.com/tsawler/deckform/reconcile"
)

// Editor provides a fluent interface for reading and editing a
// presentation. Each configuration method returns a new Editor instance,
// making it safe for concurrent use and allowing method chaining.
type Editor struct {
	// Source
	filename string
	data     []byte
	loaded   bool

	// Configuration
	options EditOptions

	// Accumulated error (fail-fast)
	err error

	// Warnings accumulated while configuring, such as skipped change entries
	warnings []Warning
}

// clone creates a shallow copy of the Editor with a deep copy of options.
// This ensures immutability - each chain method returns a new instance.
func (e *Editor) clone() *Editor {
	return &Editor{
		filename: e.filename,
		data:     e.data,
		loaded:   e.loaded,
		options:  e.options.clone(),
		err:      e.err,
		warnings: append([]Warning(nil), e.warnings...),
	}
}

// WithLogger sends debug output about skipped content and ignored edits to
// log.
func (e *Editor) WithLogger(log *slog.Logger) *Editor {
	newEd := e.clone()
	newEd.options.logger = log
	return newEd
}

// RecognizePictureText reads text inside pictures with Tesseract during
// extraction. Without OCR support compiled in (-tags ocr), extraction
// proceeds and reports a warning.
func (e *Editor) RecognizePictureText() *Editor {
	newEd := e.clone()
	newEd.options.recognizePictureText = true
	return newEd
}

// WithRecognizer reads text inside pictures with r during extraction.
func (e *Editor) WithRecognizer(r extract.Recognizer) *Editor {
	newEd := e.clone()
	newEd.options.recognizePictureText = true
	newEd.options.recognizer = r
	return newEd
}

// OwnGeometryOnly leaves placeholders without a transform of their own at
// zero size instead of inheriting the layout's geometry.
func (e *Editor) OwnGeometryOnly() *Editor {
	newEd := e.clone()
	newEd.options.inheritGeometry = false
	return newEd
}

// WithOverlays adds pending edits.
func (e *Editor) WithOverlays(overlays ...overlay.Overlay) *Editor {
	newEd := e.clone()
	for _, o := range overlays {
		newEd.options.overlays = append(newEd.options.overlays, o.Clone())
	}
	return newEd
}

// WithChanges adds the edits of a bulk change payload: a JSON object from
// shape id to that shape's text and table edits. Entries that cannot be
// decoded are skipped with a warning.
func (e *Editor) WithChanges(payload []byte) *Editor {
	newEd := e.clone()
	overlays, bad, err := overlay.DecodeChanges(payload)
	if err != nil {
		newEd.err = err
		return newEd
	}
	for _, b := range bad {
		newEd.warnings = append(newEd.warnings, model.WarningFromError(b))
	}
	newEd.options.overlays = append(newEd.options.overlays, overlays...)
	return newEd
}

// WithImageChanges adds the edits of an image change payload: a JSON
// object from shape id to image substitution.
func (e *Editor) WithImageChanges(payload []byte) *Editor {
	newEd := e.clone()
	overlays, err := overlay.DecodeImageChanges(payload)
	if err != nil {
		newEd.err = err
		return newEd
	}
	newEd.options.overlays = append(newEd.options.overlays, overlays...)
	return newEd
}

// WithAssets resolves the image_ref of image edits through a.
func (e *Editor) WithAssets(a reconcile.Assets) *Editor {
	newEd := e.clone()
	newEd.options.assets = a
	return newEd
}

// WithAssetDir resolves the image_ref of image edits against an asset
// directory written by a session.
func (e *Editor) WithAssetDir(dir string) *Editor {
	newEd := e.clone()
	store, err := assets.OpenDir(dir, assets.Options{})
	if err != nil {
		newEd.err = err
		return newEd
	}
	newEd.options.assets = store
	return newEd
}

// load returns the container bytes, rejecting files that are plainly not
// presentations.
func (e *Editor) load() ([]byte, error) {
	if e.loaded {
		return e.data, nil
	}
	if e.filename == "" {
		return nil, fmt.Errorf("no filename specified")
	}
	if f := format.Detect(e.filename); f != format.Unknown && !f.IsPresentation() {
		return nil, &model.UnreadableContainerError{Reason: fmt.Sprintf("%s is a %s file, not a presentation", filepath.Base(e.filename), f)}
	}
	data, err := os.ReadFile(e.filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", e.filename, err)
	}
	if f := format.DetectFromMagic(data); f != format.Unknown && !f.IsPresentation() {
		return nil, &model.UnreadableContainerError{Reason: fmt.Sprintf("%s contains a %s document, not a presentation", filepath.Base(e.filename), f)}
	}
	return data, nil
}

// extract reads the canonical document.
func (e *Editor) extract(data []byte) (*model.Document, []Warning, error) {
	var warnings []Warning
	opts := e.options.extractOptions()
	if e.options.recognizePictureText && e.options.recognizer == nil {
		client, err := ocr.NewWithOptions(ocr.DefaultOptions())
		if err != nil {
			warnings = append(warnings, Warning{
				Code:    model.WarnRecognitionFailed,
				Message: "picture text recognition unavailable",
				Err:     err,
			})
		} else {
			defer client.Close()
			opts.RecognizePictureText = true
			opts.Recognizer = client
		}
	}

	doc, extracted, err := extract.Extract(data, opts)
	if err != nil {
		return nil, nil, err
	}
	return doc, append(warnings, extracted...), nil
}

// Document returns the canonical document, exactly as extracted, without
// any pending edits.
func (e *Editor) Document() (*model.Document, []Warning, error) {
	if e.err != nil {
		return nil, nil, e.err
	}
	data, err := e.load()
	if err != nil {
		return nil, nil, err
	}
	doc, warnings, err := e.extract(data)
	if err != nil {
		return nil, nil, err
	}
	return doc, append(append([]Warning(nil), e.warnings...), warnings...), nil
}

// Effective returns the document with every pending edit applied.
func (e *Editor) Effective() (*model.Document, []Warning, error) {
	doc, warnings, err := e.Document()
	if err != nil {
		return nil, nil, err
	}
	eff, applied := reconcile.Apply(doc, e.options.overlays, e.options.reconcileOptions())
	return eff, append(warnings, applied...), nil
}

// Records returns the effective document as per-slide shape records, the
// form handed to a rendering layer.
func (e *Editor) Records() ([]model.SlideRecord, []Warning, error) {
	doc, warnings, err := e.Effective()
	if err != nil {
		return nil, nil, err
	}
	return doc.Records(), warnings, nil
}

// SlideCount returns the number of slides.
func (e *Editor) SlideCount() (int, error) {
	doc, _, err := e.Document()
	if err != nil {
		return 0, err
	}
	return doc.SlideCount(), nil
}

// Export writes the pending edits into a copy of the container. Parts the
// edits do not touch are carried over byte for byte.
func (e *Editor) Export() ([]byte, []Warning, error) {
	if e.err != nil {
		return nil, nil, e.err
	}
	data, err := e.load()
	if err != nil {
		return nil, nil, err
	}
	doc, warnings, err := e.extract(data)
	if err != nil {
		return nil, nil, err
	}
	out, applied, err := reconcile.Materialize(data, doc, e.options.overlays, e.options.reconcileOptions())
	if err != nil {
		return nil, nil, err
	}
	all := append(append([]Warning(nil), e.warnings...), warnings...)
	return out, append(all, applied...), nil
}

// ExportTo writes the edited container to filename. An existing file is
// replaced only once the new container is fully on disk.
func (e *Editor) ExportTo(filename string) ([]Warning, error) {
	out, warnings, err := e.Export()
	if err != nil {
		return nil, err
	}
	if err := fileutil.WriteFile(filename, out, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", filename, err)
	}
	return warnings, nil
}
