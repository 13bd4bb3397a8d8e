package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tsawler/deckform"
	"github.com/tsawler/deckform/assets"
	"github.com/tsawler/deckform/internal/config"
	"github.com/tsawler/deckform/internal/logging"
	"github.com/tsawler/deckform/internal/testpptx"
	"github.com/tsawler/deckform/model"
	"github.com/tsawler/deckform/session"
)

const (
	bodyID  = "slide_0_shape_0"
	gridID  = "slide_0_shape_1"
	photoID = "slide_0_shape_2"
)

// Helper functions

func testApp(t *testing.T) (*app, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return &app{
		cfg: config.Config{
			LogLevel:       "error",
			LogFormat:      "text",
			DataDir:        filepath.Join(t.TempDir(), "data"),
			OverlayBackend: session.BackendSQLite,
			MaxUploadBytes: 1 << 20,
			ExportTimeout:  time.Minute,
		},
		log: logging.New(io.Discard, logging.LevelError, logging.FormatText),
		out: &out,
	}, &out
}

func createTestFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	return path
}

func createTestDeck(t *testing.T, dir string) string {
	t.Helper()
	box := testpptx.Box{X: 10, Y: 10, CX: 1000, CY: 500}
	data := testpptx.New().
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
	return createTestFile(t, dir, "deck.pptx", data)
}

func createTestChanges(t *testing.T, dir, text string) string {
	t.Helper()
	payload := fmt.Sprintf(`{%q: {"txt": %q}, %q: {"type": "table", "changes": {"row1_col1": {"row": 1, "col": 1, "text": "3"}}}}`,
		bodyID, text, gridID)
	return createTestFile(t, dir, "changes.json", []byte(payload))
}

func readDeck(t *testing.T, path string) *model.Index {
	t.Helper()
	doc, _, err := deckform.Open(path).Document()
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return doc.Index()
}

func shapeText(t *testing.T, idx *model.Index, id string) string {
	t.Helper()
	s := idx.Shape(id)
	if s == nil || s.Text == nil || len(s.Text.Paragraphs) == 0 {
		t.Fatalf("shape %s has no text", id)
	}
	return s.Text.Paragraphs[0].Text()
}

func cellText(t *testing.T, idx *model.Index, id string, row, col int) string {
	t.Helper()
	s := idx.Shape(id)
	if s == nil || s.Table == nil {
		t.Fatalf("shape %s has no table", id)
	}
	return s.Table.Cell(row, col).Text
}

// ============================================================================
// Version
// ============================================================================

func TestVersionCmd_Run(t *testing.T) {
	a, out := testApp(t)
	if err := (&VersionCmd{}).Run(a); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(out.String(), version) {
		t.Errorf("output = %q", out.String())
	}
}

// ============================================================================
// Extract
// ============================================================================

func TestExtractCmd_Run(t *testing.T) {
	dir := t.TempDir()
	deck := createTestDeck(t, dir)
	changes := createTestChanges(t, dir, "Edited")

	tests := []struct {
		name string
		cmd  ExtractCmd
		want string
	}{
		{"canonical", ExtractCmd{Path: deck, Changes: changes, Canonical: true}, "Hello"},
		{"effective", ExtractCmd{Path: deck, Changes: changes}, "Edited"},
		{"no changes", ExtractCmd{Path: deck}, "Hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, out := testApp(t)
			if err := tt.cmd.Run(a); err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			var got extractOutput
			if err := json.Unmarshal(out.Bytes(), &got); err != nil {
				t.Fatalf("output is not JSON: %v\n%s", err, out.String())
			}
			if len(got.Slides) != 1 || len(got.Slides[0].Shapes) != 3 {
				t.Fatalf("slides = %+v", got.Slides)
			}
			body := got.Slides[0].Shapes[0]
			if body.ID != bodyID || len(body.Text) == 0 || body.Text[0].Text() != tt.want {
				t.Errorf("body = %+v, want text %q", body, tt.want)
			}
		})
	}
}

func TestExtractCmd_Run_OutFile(t *testing.T) {
	dir := t.TempDir()
	deck := createTestDeck(t, dir)
	outPath := filepath.Join(dir, "records.json")

	a, stdout := testApp(t)
	if err := (&ExtractCmd{Path: deck, Out: outPath}).Run(a); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stdout.Len() != 0 {
		t.Error("records also written to stdout")
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	if !bytes.Contains(data, []byte(`"tableData"`)) {
		t.Errorf("records missing table data:\n%s", data)
	}
}

func TestExtractCmd_Run_Errors(t *testing.T) {
	dir := t.TempDir()
	deck := createTestDeck(t, dir)
	notes := createTestFile(t, dir, "notes.txt", []byte("hello"))
	badChanges := createTestFile(t, dir, "bad.json", []byte("[1, 2"))

	tests := []struct {
		name string
		cmd  ExtractCmd
	}{
		{"not a presentation", ExtractCmd{Path: notes}},
		{"malformed changes", ExtractCmd{Path: deck, Changes: badChanges}},
		{"missing changes", ExtractCmd{Path: deck, Changes: filepath.Join(dir, "missing.json")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := testApp(t)
			if err := tt.cmd.Run(a); err == nil {
				t.Error("expected error")
			}
		})
	}
}

// ============================================================================
// Apply
// ============================================================================

func TestApplyCmd_Run(t *testing.T) {
	dir := t.TempDir()
	deck := createTestDeck(t, dir)
	cat := createTestFile(t, dir, "cat.png", testpptx.PNG(t, 2, 2, color.Black))
	outPath := filepath.Join(dir, "out.pptx")

	a, _ := testApp(t)
	cmd := &ApplyCmd{Path: deck, Out: outPath}
	cmd.Changes = createTestChanges(t, dir, "Applied")
	cmd.Upload = map[string]string{photoID: cat}
	if err := cmd.Run(a); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	idx := readDeck(t, outPath)
	if got := shapeText(t, idx, bodyID); got != "Applied" {
		t.Errorf("body = %q", got)
	}
	if got := cellText(t, idx, gridID, 1, 1); got != "3" {
		t.Errorf("cell = %q", got)
	}
	name := idx.Shape(photoID).Picture.Image.Name
	if !strings.HasPrefix(name, "uploaded_") || !strings.HasSuffix(name, "_cat.png") {
		t.Errorf("picture = %q", name)
	}

	// Nothing is persisted unless asked.
	if _, err := os.Stat(a.cfg.DataDir); !os.IsNotExist(err) {
		t.Errorf("data dir created: %v", err)
	}
}

func TestApplyCmd_Run_AssetDir(t *testing.T) {
	dir := t.TempDir()
	deck := createTestDeck(t, dir)

	// An asset directory written earlier, referenced by name.
	storeDir := filepath.Join(dir, "images")
	store, err := assets.OpenDir(storeDir, assets.Options{})
	if err != nil {
		t.Fatalf("OpenDir failed: %v", err)
	}
	asset, err := store.Put(context.Background(), "logo.png", testpptx.PNG(t, 2, 2, color.Black))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	images := createTestFile(t, dir, "images.json", []byte(fmt.Sprintf(`{%q: {"image_ref": %q}}`, photoID, asset.Name)))

	a, _ := testApp(t)
	outPath := filepath.Join(dir, "out.pptx")
	cmd := &ApplyCmd{Path: deck, Out: outPath}
	cmd.Images = images
	cmd.Assets = storeDir
	if err := cmd.Run(a); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := readDeck(t, outPath).Shape(photoID).Picture.Image.Name; got != asset.Name {
		t.Errorf("picture = %q, want %q", got, asset.Name)
	}
}

func TestApplyCmd_Run_Resume(t *testing.T) {
	dir := t.TempDir()
	deck := createTestDeck(t, dir)
	a, _ := testApp(t)

	first := &ApplyCmd{Path: deck, Out: filepath.Join(dir, "first.pptx"), Keep: true}
	first.Changes = createTestChanges(t, dir, "Persisted")
	if err := first.Run(a); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}

	entries, err := os.ReadDir(a.cfg.DataDir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("data dir entries = %v, %v", entries, err)
	}
	id := entries[0].Name()
	if _, err := os.Stat(filepath.Join(a.cfg.DataDir, id, "overlays.db")); err != nil {
		t.Errorf("overlay database missing: %v", err)
	}

	// Resuming without new changes keeps the stored ones.
	second := &ApplyCmd{Path: deck, Out: filepath.Join(dir, "second.pptx"), Session: id}
	if err := second.Run(a); err != nil {
		t.Fatalf("resumed Run failed: %v", err)
	}
	if got := shapeText(t, readDeck(t, second.Out), bodyID); got != "Persisted" {
		t.Errorf("resumed body = %q", got)
	}

	unknown := &ApplyCmd{Path: deck, Out: filepath.Join(dir, "third.pptx"), Session: "7c1f0a8e-0000-4000-8000-000000000000"}
	if err := unknown.Run(a); err == nil {
		t.Error("expected error for unknown session")
	}
}

// ============================================================================
// Bundle and restore
// ============================================================================

func TestBundleCmd_Restore(t *testing.T) {
	dir := t.TempDir()
	deck := createTestDeck(t, dir)
	cat := createTestFile(t, dir, "cat.png", testpptx.PNG(t, 3, 3, color.Black))
	bundlePath := filepath.Join(dir, "snapshot.tar.xz")

	a, _ := testApp(t)
	b := &BundleCmd{Path: deck, Out: bundlePath}
	b.Changes = createTestChanges(t, dir, "Snapshot")
	b.Upload = map[string]string{photoID: cat}
	if err := b.Run(a); err != nil {
		t.Fatalf("Bundle failed: %v", err)
	}

	outPath := filepath.Join(dir, "restored.pptx")
	changesPath := filepath.Join(dir, "restored.json")
	r := &RestoreCmd{Bundle: bundlePath, Out: outPath, Changes: changesPath}
	if err := r.Run(a); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	idx := readDeck(t, outPath)
	if got := shapeText(t, idx, bodyID); got != "Snapshot" {
		t.Errorf("body = %q", got)
	}
	if got := idx.Shape(photoID).Picture.Image.Name; !strings.HasSuffix(got, "_cat.png") {
		t.Errorf("picture = %q", got)
	}

	data, err := os.ReadFile(changesPath)
	if err != nil {
		t.Fatalf("changes not written: %v", err)
	}
	var changes map[string]json.RawMessage
	if err := json.Unmarshal(data, &changes); err != nil {
		t.Fatalf("changes are not JSON: %v", err)
	}
	if _, ok := changes[bodyID]; !ok {
		t.Errorf("changes = %s", data)
	}
}

func TestRestoreCmd_Run_Corrupt(t *testing.T) {
	dir := t.TempDir()
	bad := createTestFile(t, dir, "bad.tar.xz", []byte("not a bundle"))
	a, _ := testApp(t)
	err := (&RestoreCmd{Bundle: bad, Out: filepath.Join(dir, "out.pptx")}).Run(a)
	if err == nil {
		t.Fatal("expected error")
	}
	if _, statErr := os.Stat(filepath.Join(dir, "out.pptx")); !os.IsNotExist(statErr) {
		t.Error("output written for a corrupt bundle")
	}
}

func TestRestoreCmd_Run_KeepsExistingOutput(t *testing.T) {
	dir := t.TempDir()
	bad := createTestFile(t, dir, "bad.tar.xz", []byte("not a bundle"))
	outPath := createTestFile(t, dir, "out.pptx", []byte("previous"))

	a, _ := testApp(t)
	if err := (&RestoreCmd{Bundle: bad, Out: outPath}).Run(a); err == nil {
		t.Fatal("expected error")
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("output removed: %v", err)
	}
	if string(data) != "previous" {
		t.Errorf("output = %q", data)
	}
}

func TestBundleCmd_Run_Overwrite(t *testing.T) {
	dir := t.TempDir()
	deck := createTestDeck(t, dir)
	bundlePath := createTestFile(t, dir, "snapshot.tar.xz", []byte("previous"))

	a, _ := testApp(t)
	if err := (&BundleCmd{Path: deck, Out: bundlePath}).Run(a); err != nil {
		t.Fatalf("Bundle failed: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			t.Errorf("temp file %s left behind", e.Name())
		}
	}

	r := &RestoreCmd{Bundle: bundlePath, Out: filepath.Join(dir, "restored.pptx")}
	if err := r.Run(a); err != nil {
		t.Fatalf("Restore of the replaced bundle failed: %v", err)
	}
	if got := shapeText(t, readDeck(t, r.Out), bodyID); got != "Hello" {
		t.Errorf("body = %q", got)
	}
}
