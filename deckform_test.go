package deckform

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/tsawler/deckform/assets"
	"github.com/tsawler/deckform/internal/testpptx"
	"github.com/tsawler/deckform/model"
	"github.com/tsawler/deckform/overlay"
)

const (
	bodyID  = "slide_0_shape_0"
	gridID  = "slide_0_shape_1"
	photoID = "slide_0_shape_2"
)

func deck(t *testing.T) []byte {
	t.Helper()
	box := testpptx.Box{X: 10, Y: 10, CX: 1000, CY: 500}
	return testpptx.New().
		Media("image1.png", testpptx.PNG(t, 4, 4, color.White)).
		AddSlide(testpptx.Slide{
			Shapes: []string{
				testpptx.TextBox(2, "Body", box, testpptx.Para(testpptx.Run("Hello", `lang="en-US"`))),
				testpptx.Table(3, "Grid", box, [][]string{{"Name", "Qty"}, {"Apple", ""}}),
				testpptx.Picture(4, "Photo", "rId7", box),
			},
			Rels: []testpptx.Rel{{ID: "rId7", Type: testpptx.RelImage, Target: "../media/image1.png"}},
		}).
		Build(t)
}

func bodyText(t *testing.T, doc *model.Document) string {
	t.Helper()
	s := doc.Index().Shape(bodyID)
	if s == nil || s.Text == nil || len(s.Text.Paragraphs) == 0 {
		t.Fatalf("body shape missing")
	}
	return s.Text.Paragraphs[0].Text()
}

type fakeRecognizer string

func (f fakeRecognizer) RecognizeImage([]byte) (string, error) {
	return string(f), nil
}

// ============================================================================
// Opening
// ============================================================================

func TestOpen(t *testing.T) {
	// Test with non-existent file
	if _, _, err := Open("nonexistent.pptx").Document(); err == nil {
		t.Error("expected error for non-existent file")
	}
	if _, _, err := Open("").Document(); err == nil {
		t.Error("expected error for empty filename")
	}
}

func TestOpen_NotAPresentation(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		data []byte
	}{
		{"report.docx", deck(t)},
		{"notes.pptx", []byte("plain text")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			if err := os.WriteFile(path, tt.data, 0o644); err != nil {
				t.Fatalf("WriteFile failed: %v", err)
			}
			if _, _, err := Open(path).Document(); !errors.Is(err, model.ErrUnreadableContainer) {
				t.Errorf("err = %v, want ErrUnreadableContainer", err)
			}
		})
	}
}

func TestFromBytes_Document(t *testing.T) {
	doc, warnings, err := FromBytes(deck(t)).Document()
	if err != nil {
		t.Fatalf("Document failed: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings:\n%s", FormatWarnings(warnings))
	}
	if doc.SlideCount() != 1 {
		t.Fatalf("SlideCount = %d", doc.SlideCount())
	}
	idx := doc.Index()
	if idx.Shape(gridID).Table == nil || idx.Shape(photoID).Picture == nil {
		t.Error("table or picture not extracted")
	}
	if n := Must(FromBytes(deck(t)).SlideCount()); n != 1 {
		t.Errorf("SlideCount() = %d", n)
	}
}

// ============================================================================
// Edits
// ============================================================================

func TestEditor_Immutability(t *testing.T) {
	base := FromBytes(deck(t))
	edited := base.WithChanges([]byte(fmt.Sprintf(`{%q: {"txt": "Changed"}}`, bodyID)))

	if got := bodyText(t, MustValue(base.Effective())); got != "Hello" {
		t.Errorf("base effective = %q", got)
	}
	if got := bodyText(t, MustValue(edited.Effective())); got != "Changed" {
		t.Errorf("edited effective = %q", got)
	}
	// The canonical document ignores edits.
	if got := bodyText(t, MustValue(edited.Document())); got != "Hello" {
		t.Errorf("edited canonical = %q", got)
	}
}

func TestEditor_Changes(t *testing.T) {
	payload := fmt.Sprintf(`{
		%q: {"type": "table", "changes": {"row1_col0": {"row": 1, "col": 0, "text": "Pear"}}},
		"slide_0_shape_7": {"unknown": 1},
		"slide_9_shape_0": {"txt": "ghost"}
	}`, gridID)

	records, warnings, err := FromBytes(deck(t)).WithChanges([]byte(payload)).Records()
	if err != nil {
		t.Fatalf("Records failed: %v", err)
	}
	codes := map[model.WarningCode]int{}
	for _, w := range warnings {
		codes[w.Code]++
	}
	if codes[model.WarnMalformedOverlay] != 1 || codes[model.WarnShapeNotFound] != 1 || len(warnings) != 2 {
		t.Errorf("warnings:\n%s", FormatWarnings(warnings))
	}
	if len(records) != 1 || len(records[0].Shapes) != 3 {
		t.Fatalf("records = %+v", records)
	}

	if _, _, err := FromBytes(deck(t)).WithChanges([]byte("not json")).Records(); err == nil {
		t.Error("invalid payload accepted")
	}
	if _, _, err := FromBytes(deck(t)).WithImageChanges([]byte("[]")).Export(); err == nil {
		t.Error("invalid image payload accepted")
	}
}

func TestEditor_WithOverlays(t *testing.T) {
	o := overlay.NewTable(gridID, 0, 0, overlay.CellEdit{Row: 0, Col: 1, Text: "Count"})
	doc, warnings, err := FromBytes(deck(t)).WithOverlays(o).Effective()
	if err != nil || len(warnings) != 0 {
		t.Fatalf("Effective = %v, %v", warnings, err)
	}
	if got := doc.Index().Shape(gridID).Table.Cell(0, 1).Text; got != "Count" {
		t.Errorf("cell = %q", got)
	}
}

// ============================================================================
// Export
// ============================================================================

func TestEditor_Export(t *testing.T) {
	dir := t.TempDir()
	store, err := assets.OpenDir(dir, assets.Options{})
	if err != nil {
		t.Fatalf("OpenDir failed: %v", err)
	}
	a, err := store.Put(context.Background(), "logo.png", testpptx.PNG(t, 2, 2, color.Black))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	data := deck(t)
	if out := MustValue(FromBytes(data).Export()); string(out) != string(data) {
		t.Error("export without edits changed the container")
	}

	out, warnings, err := FromBytes(data).
		WithChanges([]byte(fmt.Sprintf(`{%q: {"txt": "Exported"}}`, bodyID))).
		WithImageChanges([]byte(fmt.Sprintf(`{%q: {"image_ref": %q}}`, photoID, a.Name))).
		WithAssetDir(dir).
		Export()
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings:\n%s", FormatWarnings(warnings))
	}

	doc := MustValue(FromBytes(out).Document())
	if got := bodyText(t, doc); got != "Exported" {
		t.Errorf("exported text = %q", got)
	}
	if got := doc.Index().Shape(photoID).Picture.Image.Name; got != a.Name {
		t.Errorf("exported image = %q, want %q", got, a.Name)
	}
}

func TestEditor_ExportTo(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.pptx")
	if err := os.WriteFile(src, deck(t), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	dst := filepath.Join(dir, "out.pptx")
	if err := os.WriteFile(dst, []byte("stale"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	// A failed export leaves the existing output alone.
	if _, err := Open(filepath.Join(dir, "missing.pptx")).ExportTo(dst); err == nil {
		t.Fatal("expected error for a missing source")
	}
	if data, _ := os.ReadFile(dst); string(data) != "stale" {
		t.Errorf("output after failed export = %q", data)
	}

	_, err := Open(src).
		WithOverlays(overlay.NewText(bodyID, []model.Paragraph{{Runs: []model.Run{{Text: "Saved"}}}})).
		ExportTo(dst)
	if err != nil {
		t.Fatalf("ExportTo failed: %v", err)
	}
	if got := bodyText(t, MustValue(Open(dst).Document())); got != "Saved" {
		t.Errorf("written text = %q", got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("directory holds %d entries, want in.pptx and out.pptx", len(entries))
	}
}

func TestEditor_ImageWithoutAssets(t *testing.T) {
	_, warnings, err := FromBytes(deck(t)).
		WithOverlays(overlay.NewImage(photoID, "uploaded_1_missing.png")).
		Export()
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if len(warnings) != 1 || warnings[0].Code != model.WarnAssetUnavailable {
		t.Errorf("warnings:\n%s", FormatWarnings(warnings))
	}
}

// ============================================================================
// Picture text
// ============================================================================

func TestEditor_WithRecognizer(t *testing.T) {
	doc := MustValue(FromBytes(deck(t)).WithRecognizer(fakeRecognizer("SALE")).Document())
	if got := doc.Index().Shape(photoID).Picture.RecognizedText; got != "SALE" {
		t.Errorf("RecognizedText = %q", got)
	}

	plain := MustValue(FromBytes(deck(t)).Document())
	if got := plain.Index().Shape(photoID).Picture.RecognizedText; got != "" {
		t.Errorf("recognition ran without being requested: %q", got)
	}
}

// ============================================================================
// Helpers
// ============================================================================

func TestMust(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Must did not panic")
		}
	}()
	Must(0, errors.New("boom"))
}

func TestMustValue(t *testing.T) {
	if got := MustValue("ok", []Warning{{Code: model.WarnKindMismatch}}, nil); got != "ok" {
		t.Errorf("MustValue = %q", got)
	}
	defer func() {
		if recover() == nil {
			t.Error("MustValue did not panic")
		}
	}()
	MustValue("", nil, errors.New("boom"))
}
