package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/tsawler/deckform"
	"github.com/tsawler/deckform/assets"
	"github.com/tsawler/deckform/internal/fileutil"
	"github.com/tsawler/deckform/model"
	"github.com/tsawler/deckform/ocr"
	"github.com/tsawler/deckform/overlay"
	"github.com/tsawler/deckform/session"
)

// ExtractCmd prints the shape records of a presentation.
type ExtractCmd struct {
	Path      string `arg:"" help:"Presentation to read" type:"existingfile"`
	Changes   string `help:"Apply this bulk change payload first" type:"existingfile"`
	Images    string `help:"Apply this image change payload first" type:"existingfile"`
	Canonical bool   `help:"Print the shapes as extracted, ignoring changes"`
	OCR       bool   `help:"Read text inside pictures"`
	Out       string `short:"o" help:"Write JSON here instead of stdout" type:"path"`
}

// extractOutput is what extract prints.
type extractOutput struct {
	Slides   []model.SlideRecord `json:"slides"`
	Warnings []string            `json:"warnings,omitempty"`
}

func (c *ExtractCmd) Run(a *app) error {
	ed := deckform.Open(c.Path).WithLogger(a.log)
	if c.OCR || a.cfg.OCR {
		ed = ed.RecognizePictureText()
	}
	if c.Changes != "" {
		data, err := os.ReadFile(c.Changes)
		if err != nil {
			return fmt.Errorf("failed to read changes: %w", err)
		}
		ed = ed.WithChanges(data)
	}
	if c.Images != "" {
		data, err := os.ReadFile(c.Images)
		if err != nil {
			return fmt.Errorf("failed to read image changes: %w", err)
		}
		ed = ed.WithImageChanges(data)
	}

	var (
		records  []model.SlideRecord
		warnings []model.Warning
		err      error
	)
	if c.Canonical {
		var doc *model.Document
		doc, warnings, err = ed.Document()
		if err == nil {
			records = doc.Records()
		}
	} else {
		records, warnings, err = ed.Records()
	}
	if err != nil {
		return err
	}

	out := extractOutput{Slides: records}
	for _, w := range warnings {
		out.Warnings = append(out.Warnings, w.String())
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}
	data = append(data, '\n')
	if c.Out == "" {
		_, err = a.out.Write(data)
		return err
	}
	return fileutil.WriteFile(c.Out, data, 0o644)
}

// EditFlags are the flags shared by the commands that stage changes in a
// session before writing something out.
type EditFlags struct {
	Changes string            `help:"Bulk change payload to save" type:"existingfile"`
	Images  string            `help:"Image change payload to save" type:"existingfile"`
	Upload  map[string]string `help:"Upload a picture for a shape (shape_id=file)" placeholder:"SHAPE=FILE"`
	Assets  string            `help:"Asset directory holding images the changes refer to" type:"existingdir"`
}

// stage saves the edits into s.
func (e *EditFlags) stage(ctx context.Context, a *app, s *session.Session) ([]model.Warning, error) {
	var warnings []model.Warning

	if e.Assets != "" {
		n, err := importAssets(ctx, e.Assets, s.Assets())
		if err != nil {
			return nil, err
		}
		a.log.Debug("assets imported", "dir", e.Assets, "count", n)
	}

	if e.Changes != "" {
		data, err := os.ReadFile(e.Changes)
		if err != nil {
			return nil, fmt.Errorf("failed to read changes: %w", err)
		}
		stats, saved, err := s.Save(ctx, data)
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, saved...)
		a.log.Info("changes saved",
			"shapes", stats.ShapesSuccess,
			"failed", stats.ShapesFailed,
			"paragraphs", stats.ParagraphsSaved,
			"runs", stats.RunsSaved,
			"tables", stats.TablesSaved)
	}

	if e.Images != "" {
		data, err := os.ReadFile(e.Images)
		if err != nil {
			return nil, fmt.Errorf("failed to read image changes: %w", err)
		}
		saved, err := s.SaveImageChanges(ctx, data)
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, saved...)
	}

	if len(e.Upload) > 0 {
		shapes := make([]string, 0, len(e.Upload))
		for shape := range e.Upload {
			shapes = append(shapes, shape)
		}
		sort.Strings(shapes)

		payload := make(map[string]overlay.ImageEdit, len(shapes))
		for _, shape := range shapes {
			file := e.Upload[shape]
			data, err := os.ReadFile(file)
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", file, err)
			}
			asset, err := s.UploadImage(ctx, filepath.Base(file), data)
			if err != nil {
				return nil, fmt.Errorf("uploading %s: %w", file, err)
			}
			payload[shape] = overlay.ImageEdit{
				ImageRef:         asset.Name,
				UploadedAt:       asset.CreatedAt.UTC().Format(time.RFC3339),
				OriginalFilename: asset.OriginalName,
				SizeBytes:        asset.Size,
			}
			a.log.Info("image uploaded", "shape", shape, "name", asset.Name)
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		saved, err := s.SaveImageChanges(ctx, data)
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, saved...)
	}
	return warnings, nil
}

// importAssets copies every image of an asset directory into dst.
func importAssets(ctx context.Context, dir string, dst assets.Store) (int, error) {
	src, err := assets.OpenDir(dir, assets.Options{})
	if err != nil {
		return 0, err
	}
	list, err := src.List()
	if err != nil {
		return 0, err
	}
	for _, asset := range list {
		data, _, err := src.Open(asset.Name)
		if err != nil {
			return 0, err
		}
		if err := dst.Import(ctx, asset, data); err != nil {
			return 0, fmt.Errorf("importing %s: %w", asset.Name, err)
		}
	}
	return len(list), nil
}

// ApplyCmd writes changes into a presentation.
type ApplyCmd struct {
	Path string `arg:"" help:"Presentation to edit" type:"existingfile"`
	Out  string `short:"o" required:"" help:"Output presentation path" type:"path"`
	EditFlags `embed:""`
	Session string `help:"Resume this persisted session and keep its changes"`
	Keep    bool   `help:"Persist the session under the data directory"`
}

func (c *ApplyCmd) Run(a *app) error {
	container, err := os.ReadFile(c.Path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", c.Path, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ExportTimeout)
	defer cancel()

	persist := c.Keep || c.Session != ""
	m, cleanup, err := a.manager(persist)
	if err != nil {
		return err
	}
	defer cleanup()

	var (
		s        *session.Session
		warnings []model.Warning
	)
	if c.Session != "" {
		s, warnings, err = m.Resume(ctx, c.Session, container)
	} else {
		s, warnings, err = m.Open(ctx, container)
	}
	if err != nil {
		return err
	}
	defer m.Close(s.ID())
	if persist {
		a.log.Info("session", "id", s.ID(), "dir", filepath.Join(a.cfg.DataDir, s.ID()))
	}

	staged, err := c.stage(ctx, a, s)
	if err != nil {
		return err
	}
	warnings = append(warnings, staged...)

	out, exported, err := s.Export(ctx)
	if err != nil {
		return err
	}
	warnings = append(warnings, exported...)
	if err := fileutil.WriteFile(c.Out, out, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", c.Out, err)
	}

	a.report(warnings)
	a.log.Info("presentation written", "path", c.Out, "bytes", len(out))
	return nil
}

// BundleCmd snapshots a presentation with its changes.
type BundleCmd struct {
	Path string `arg:"" help:"Presentation to snapshot" type:"existingfile"`
	Out  string `short:"o" required:"" help:"Output bundle path (.tar.xz)" type:"path"`
	EditFlags `embed:""`
}

func (c *BundleCmd) Run(a *app) error {
	container, err := os.ReadFile(c.Path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", c.Path, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ExportTimeout)
	defer cancel()

	m, cleanup, err := a.manager(false)
	if err != nil {
		return err
	}
	defer cleanup()

	s, warnings, err := m.Open(ctx, container)
	if err != nil {
		return err
	}
	defer m.Close(s.ID())

	staged, err := c.stage(ctx, a, s)
	if err != nil {
		return err
	}
	warnings = append(warnings, staged...)

	err = fileutil.Write(c.Out, 0o644, func(w io.Writer) error {
		return s.Bundle(ctx, w)
	})
	if err != nil {
		return err
	}

	a.report(warnings)
	a.log.Info("bundle written", "path", c.Out)
	return nil
}

// RestoreCmd exports the presentation held in a bundle with its changes
// applied.
type RestoreCmd struct {
	Bundle  string `arg:"" help:"Bundle to read" type:"existingfile"`
	Out     string `short:"o" required:"" help:"Output presentation path" type:"path"`
	Changes string `help:"Also write the bundle's changes as a bulk payload here" type:"path"`
}

func (c *RestoreCmd) Run(a *app) error {
	f, err := os.Open(c.Bundle)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", c.Bundle, err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ExportTimeout)
	defer cancel()

	m, cleanup, err := a.manager(false)
	if err != nil {
		return err
	}
	defer cleanup()

	s, warnings, err := m.OpenBundle(ctx, f)
	if err != nil {
		return err
	}
	defer m.Close(s.ID())

	out, exported, err := s.Export(ctx)
	if err != nil {
		return err
	}
	warnings = append(warnings, exported...)
	if err := fileutil.WriteFile(c.Out, out, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", c.Out, err)
	}

	if c.Changes != "" {
		changes, err := s.GetChanges(ctx)
		if err != nil {
			return err
		}
		if err := fileutil.WriteFile(c.Changes, changes, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", c.Changes, err)
		}
	}

	a.report(warnings)
	a.log.Info("presentation written", "path", c.Out, "bytes", len(out))
	return nil
}

// manager builds a session manager from the configuration. Unless persist
// is set, sessions live in memory and vanish when the command exits.
func (a *app) manager(persist bool) (*session.Manager, func(), error) {
	cfg := a.cfg.Session(a.log)
	if !persist {
		cfg.DataDir = ""
		cfg.OverlayBackend = session.BackendMemory
	}

	cleanup := func() {}
	if cfg.RecognizePictureText {
		client, err := ocr.NewWithOptions(ocr.DefaultOptions())
		if err != nil {
			a.log.Warn("picture text recognition unavailable", "error", err)
			cfg.RecognizePictureText = false
		} else {
			cfg.Recognizer = client
			cleanup = func() { client.Close() }
		}
	}
	return session.NewManager(cfg), cleanup, nil
}

// report logs warnings.
func (a *app) report(warnings []model.Warning) {
	for _, w := range warnings {
		a.log.Warn(w.Message, "code", w.Code, "shape", w.ShapeID)
	}
}
