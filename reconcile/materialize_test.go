package reconcile

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"strings"
	"testing"

	"github.com/tsawler/deckform/internal/testpptx"
	"github.com/tsawler/deckform/model"
	"github.com/tsawler/deckform/opc"
	"github.com/tsawler/deckform/overlay"
)

type memAssets map[string][]byte

func (m memAssets) ReadAsset(name string) ([]byte, error) {
	data, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("asset %s not found", name)
	}
	return data, nil
}

func materialize(t *testing.T, data []byte, doc *model.Document, overlays []overlay.Overlay, opts Options) ([]byte, []model.Warning) {
	t.Helper()
	out, warnings, err := Materialize(data, doc, overlays, opts)
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	return out, warnings
}

func partOf(t *testing.T, data []byte, name string) string {
	t.Helper()
	pkg, err := opc.OpenBytes(data)
	if err != nil {
		t.Fatalf("OpenBytes failed: %v", err)
	}
	part, err := pkg.Part(name)
	if err != nil {
		t.Fatalf("Part(%s) failed: %v", name, err)
	}
	return string(part)
}

func mustContain(t *testing.T, xml, want string) {
	t.Helper()
	if !strings.Contains(xml, want) {
		t.Errorf("part does not contain %s\n%s", want, xml)
	}
}

// ============================================================================
// Byte preservation
// ============================================================================

func TestMaterialize_Identity(t *testing.T) {
	data := deck(t)
	doc := extractDeck(t, data)

	out, warnings := materialize(t, data, doc, nil, Options{})
	if !bytes.Equal(out, data) {
		t.Error("no overlays: container changed")
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}

	// Overlays restating the extracted content change nothing either.
	same := []overlay.Overlay{
		textOverlay(t, doc, bodyID),
		overlay.NewTable(gridID, 0, 0, overlay.CellEdit{Row: 0, Col: 0, Text: "Name"}),
	}
	out, warnings = materialize(t, data, doc, same, Options{})
	if !bytes.Equal(out, data) {
		t.Error("restating overlays: container changed")
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
}

func TestMaterialize_UnreadableContainer(t *testing.T) {
	doc := extractDeck(t, deck(t))
	_, _, err := Materialize([]byte("not a zip"), doc, nil, Options{})
	if !errors.Is(err, model.ErrUnreadableContainer) {
		t.Fatalf("err = %v, want ErrUnreadableContainer", err)
	}
}

// ============================================================================
// Text
// ============================================================================

func TestMaterialize_TextInPlace(t *testing.T) {
	data := deck(t)
	doc := extractDeck(t, data)
	o := textOverlay(t, doc, bodyID)
	o.Text.Paragraphs[0].Runs[0].Text = "Goodbye"

	out, warnings := materialize(t, data, doc, []overlay.Overlay{o}, Options{})
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	xml := partOf(t, out, slidePart)
	mustContain(t, xml, `<a:r><a:rPr lang="en-US" b="1"/><a:t>  Goodbye </a:t></a:r><a:r><a:rPr lang="en-US"/><a:t>world</a:t></a:r>`)

	for _, name := range []string{"ppt/presentation.xml", "ppt/media/image1.png", "ppt/slides/_rels/slide1.xml.rels"} {
		if partOf(t, out, name) != partOf(t, data, name) {
			t.Errorf("untouched part %s changed", name)
		}
	}

	again := extractDeck(t, out)
	if got := again.Index().Shape(bodyID).Text.Paragraphs[0].Text(); got != "  Goodbye world" {
		t.Errorf("re-extracted text = %q", got)
	}
}

func TestMaterialize_Format(t *testing.T) {
	data := deck(t)
	doc := extractDeck(t, data)
	o := textOverlay(t, doc, bodyID)
	o.Text.Paragraphs[0].Runs[1].Format = model.Format{Bold: model.Bool(true), Color: model.String("#00ff00")}

	out, _ := materialize(t, data, doc, []overlay.Overlay{o}, Options{})
	xml := partOf(t, out, slidePart)
	mustContain(t, xml, `<a:rPr lang="en-US" b="1"><a:solidFill><a:srgbClr val="00FF00"/></a:solidFill></a:rPr><a:t>world</a:t>`)

	run := extractDeck(t, out).Index().Shape(bodyID).Text.Paragraphs[0].Runs[1]
	if run.Format.Bold == nil || !*run.Format.Bold || run.Format.Color == nil || *run.Format.Color != "00FF00" {
		t.Errorf("re-extracted format = %+v", run.Format)
	}
}

func TestMaterialize_NewRun(t *testing.T) {
	data := deck(t)
	doc := extractDeck(t, data)
	o := textOverlay(t, doc, bodyID)
	p := &o.Text.Paragraphs[0]
	p.Runs = append(p.Runs, model.Run{Text: "!", Format: model.Format{Italic: model.Bool(true)}})

	out, _ := materialize(t, data, doc, []overlay.Overlay{o}, Options{})
	mustContain(t, partOf(t, out, slidePart),
		`<a:t>world</a:t></a:r><a:r><a:rPr lang="en-US" i="1"/><a:t>!</a:t></a:r><a:endParaRPr`)
}

func TestMaterialize_Paragraphs(t *testing.T) {
	data := deck(t)
	doc := extractDeck(t, data)

	tests := []struct {
		name  string
		edit  func(te *overlay.TextEdit)
		texts []string
	}{
		{
			name: "append",
			edit: func(te *overlay.TextEdit) {
				te.Paragraphs = append(te.Paragraphs, model.Paragraph{Runs: []model.Run{{Text: "Third"}}})
			},
			texts: []string{"  Hello world", "Second", "Third"},
		},
		{
			name:  "remove",
			edit:  func(te *overlay.TextEdit) { te.Paragraphs = te.Paragraphs[:1] },
			texts: []string{"  Hello world"},
		},
		{
			name:  "empty",
			edit:  func(te *overlay.TextEdit) { te.Paragraphs = nil },
			texts: []string{""},
		},
		{
			name: "break and alignment",
			edit: func(te *overlay.TextEdit) {
				p := &te.Paragraphs[1]
				p.Alignment = "ctr"
				p.Runs = append(p.Runs, model.Run{Kind: model.RunBreak}, model.Run{Text: "line"})
			},
			texts: []string{"  Hello world", "Second\nline"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := textOverlay(t, doc, bodyID)
			tt.edit(o.Text)
			out, warnings := materialize(t, data, doc, []overlay.Overlay{o}, Options{})
			if len(warnings) != 0 {
				t.Fatalf("unexpected warnings: %v", warnings)
			}
			paras := extractDeck(t, out).Index().Shape(bodyID).Text.Paragraphs
			if len(paras) != len(tt.texts) {
				t.Fatalf("got %d paragraphs, want %d", len(paras), len(tt.texts))
			}
			for i, want := range tt.texts {
				if got := paras[i].Text(); got != want {
					t.Errorf("paragraph %d = %q, want %q", i, got, want)
				}
			}
		})
	}

	o := textOverlay(t, doc, bodyID)
	o.Text.Paragraphs = append(o.Text.Paragraphs, model.Paragraph{Runs: []model.Run{{Text: "Third"}}})
	out, _ := materialize(t, data, doc, []overlay.Overlay{o}, Options{})
	mustContain(t, partOf(t, out, slidePart),
		`<a:p><a:r><a:rPr lang="en-US"/><a:t>Third</a:t></a:r><a:endParaRPr lang="en-US"/></a:p></p:txBody>`)
}

func TestMaterialize_EmptyTextOverlay(t *testing.T) {
	data := deck(t)
	doc := extractDeck(t, data)

	out, warnings := materialize(t, data, doc, []overlay.Overlay{overlay.NewText(bodyID, nil)}, Options{})
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}

	paras := extractDeck(t, out).Index().Shape(bodyID).Text.Paragraphs
	if len(paras) != 1 || paras[0].Text() != "" {
		t.Fatalf("re-extracted paragraphs = %+v, want one empty paragraph", paras)
	}

	// Only the paragraphs change; the rest of the shape and slide is kept.
	before, after := partOf(t, data, slidePart), partOf(t, out, slidePart)
	open := `<p:txBody><a:bodyPr wrap="square"/><a:lstStyle/>`
	bi, ai := strings.Index(before, open), strings.Index(after, open)
	if bi < 0 || ai < 0 || before[:bi] != after[:ai] {
		t.Error("markup before the text body changed")
	}
	bj, aj := strings.Index(before, "</p:txBody>"), strings.Index(after, "</p:txBody>")
	if bj < 0 || aj < 0 || before[bj:] != after[aj:] {
		t.Error("markup after the text body changed")
	}
}

func TestMaterialize_UnwritableText(t *testing.T) {
	data := deck(t)
	doc := extractDeck(t, data)

	for _, text := range []string{"line\vbreak", "bell\x01", "bad\xffutf8"} {
		t.Run(fmt.Sprintf("%q", text), func(t *testing.T) {
			o := textOverlay(t, doc, bodyID)
			o.Text.Paragraphs[0].Runs[0].Text = text
			cell := overlay.NewTable(gridID, 0, 0, overlay.CellEdit{Row: 1, Col: 1, Text: "3"})

			out, warnings := materialize(t, data, doc, []overlay.Overlay{o, cell}, Options{})
			if len(warnings) != 1 || warnings[0].Code != model.WarnMalformedOverlay || warnings[0].ShapeID != bodyID {
				t.Fatalf("warnings = %v, want one malformed overlay for %s", warnings, bodyID)
			}

			// The output stays well-formed and the valid edit still lands.
			idx := extractDeck(t, out).Index()
			if got := idx.Shape(bodyID).Text.Paragraphs[0].Text(); got != "  Hello world" {
				t.Errorf("body = %q", got)
			}
			if got := idx.Shape(gridID).Table.Cell(1, 1).Text; got != "3" {
				t.Errorf("cell = %q", got)
			}
		})
	}

	bad := overlay.NewTable(gridID, 0, 0, overlay.CellEdit{Row: 0, Col: 0, Text: "tab\vbed"})
	out, warnings := materialize(t, data, doc, []overlay.Overlay{bad}, Options{})
	if len(warnings) != 1 || warnings[0].Code != model.WarnMalformedOverlay {
		t.Errorf("cell warnings = %v", warnings)
	}
	if !bytes.Equal(out, data) {
		t.Error("rejected cell edit changed the container")
	}
}

func TestMaterialize_SoftBreak(t *testing.T) {
	data := deck(t)
	doc := extractDeck(t, data)

	overlays, errs, err := overlay.DecodeChanges([]byte(`{"` + bodyID + `": {"txt": "one\u000btwo"}}`))
	if err != nil || len(errs) != 0 {
		t.Fatalf("DecodeChanges = %v, %v", errs, err)
	}
	out, warnings := materialize(t, data, doc, overlays, Options{})
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	paras := extractDeck(t, out).Index().Shape(bodyID).Text.Paragraphs
	if len(paras) != 1 || paras[0].Text() != "one\ntwo" {
		t.Fatalf("re-extracted paragraphs = %+v", paras)
	}
	mustContain(t, partOf(t, out, slidePart), "<a:br")
}

// deckWithTitle is deck with different text in the body's first run.
func deckWithTitle(t *testing.T, first string) []byte {
	t.Helper()
	box := testpptx.Box{X: 10, Y: 10, CX: 1000, CY: 500}
	return testpptx.New().
		Media("image1.png", testpptx.PNG(t, 4, 4, color.White)).
		AddSlide(testpptx.Slide{
			Shapes: []string{
				testpptx.TextBox(2, "Body", box,
					testpptx.Para(testpptx.Run(first, `lang="en-US" b="1"`), testpptx.Run("world", `lang="en-US"`)),
					testpptx.Para(testpptx.Run("Second", `lang="en-US"`))),
				testpptx.Table(3, "Grid", box, [][]string{{"Name", "Qty"}, {"Apple", ""}}),
				testpptx.Picture(4, "Photo", "rId7", box),
			},
			Rels: []testpptx.Rel{{ID: "rId7", Type: testpptx.RelImage, Target: "../media/image1.png"}},
		}).
		Build(t)
}

func TestMaterialize_Drift(t *testing.T) {
	doc := extractDeck(t, deck(t))
	drifted := deckWithTitle(t, "Howdy")

	o := textOverlay(t, doc, bodyID)
	o.Text.Paragraphs[1].Runs[0].Text = "Edited"

	out, warnings := materialize(t, drifted, doc, []overlay.Overlay{o}, Options{})
	if !bytes.Equal(out, drifted) {
		t.Error("drifted shape was written")
	}
	if len(warnings) != 1 || warnings[0].Code != model.WarnStructuralDrift || warnings[0].ShapeID != bodyID {
		t.Fatalf("warnings = %v", warnings)
	}
	var sd *model.StructuralDriftError
	if !errors.As(warnings[0].Err, &sd) || sd.Part != slidePart {
		t.Errorf("warning error = %v", warnings[0].Err)
	}

	// Other shapes are still written.
	cell := overlay.NewTable(gridID, 0, 0, overlay.CellEdit{Row: 0, Col: 1, Text: "Count"})
	out, warnings = materialize(t, drifted, doc, []overlay.Overlay{o, cell}, Options{})
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v", warnings)
	}
	again := extractDeck(t, out).Index()
	if got := again.Shape(gridID).Table.Cell(0, 1).Text; got != "Count" {
		t.Errorf("cell text = %q", got)
	}
	if got := again.Shape(bodyID).Text.Paragraphs[1].Text(); got != "Second" {
		t.Errorf("drifted shape text = %q", got)
	}
}

// ============================================================================
// Tables
// ============================================================================

func TestMaterialize_Table(t *testing.T) {
	data := deck(t)
	doc := extractDeck(t, data)
	o := overlay.NewTable(gridID, 0, 0,
		overlay.CellEdit{Row: 1, Col: 0, Text: "Pear"},
		overlay.CellEdit{Row: 1, Col: 1, Text: "5\nsix"},
		overlay.CellEdit{Row: 0, Col: 1, Text: "Qty"},
		overlay.CellEdit{Row: 7, Col: 7, Text: "nowhere"},
	)

	out, warnings := materialize(t, data, doc, []overlay.Overlay{o}, Options{})
	if len(warnings) != 1 || warnings[0].Code != model.WarnCellSkipped {
		t.Fatalf("warnings = %v", warnings)
	}
	mustContain(t, partOf(t, out, slidePart), `<a:r><a:rPr lang="en-US" sz="1400" b="1"/><a:t>Pear</a:t></a:r>`)

	tbl := extractDeck(t, out).Index().Shape(gridID).Table
	want := [][]string{{"Name", "Qty"}, {"Pear", "5\nsix"}}
	for r, row := range want {
		for c, text := range row {
			if got := tbl.Cell(r, c).Text; got != text {
				t.Errorf("cell %d,%d = %q, want %q", r, c, got, text)
			}
		}
	}
	if b := tbl.Cell(1, 0).Bold; b == nil || !*b {
		t.Error("cell formatting lost")
	}
}

func TestMaterialize_TableShrinkLines(t *testing.T) {
	data := testpptx.New().
		Shapes(testpptx.Table(3, "Grid", testpptx.Box{}, [][]string{{"a"}})).
		Build(t)
	doc := extractDeck(t, data)
	id := "slide_0_shape_0"

	grow := overlay.NewTable(id, 0, 0, overlay.CellEdit{Row: 0, Col: 0, Text: "one\ntwo\nthree"})
	out, _ := materialize(t, data, doc, []overlay.Overlay{grow}, Options{})
	grown := extractDeck(t, out)
	if got := grown.Index().Shape(id).Table.Cell(0, 0).Text; got != "one\ntwo\nthree" {
		t.Fatalf("grown cell = %q", got)
	}

	shrink := overlay.NewTable(id, 0, 0, overlay.CellEdit{Row: 0, Col: 0, Text: "only"})
	out, _ = materialize(t, out, grown, []overlay.Overlay{shrink}, Options{})
	if got := extractDeck(t, out).Index().Shape(id).Table.Cell(0, 0).Text; got != "only" {
		t.Errorf("shrunk cell = %q", got)
	}
}

// ============================================================================
// Images
// ============================================================================

func TestMaterialize_ImageUpload(t *testing.T) {
	data := deck(t)
	doc := extractDeck(t, data)
	upload := []byte("\xff\xd8\xff\xe0 not really a jpeg")
	assets := memAssets{"uploaded_1_cat.jpg": upload}

	out, warnings := materialize(t, data, doc, []overlay.Overlay{overlay.NewImage(photoID, "uploaded_1_cat.jpg")}, Options{Assets: assets})
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}

	if got := partOf(t, out, "ppt/media/uploaded_1_cat.jpg"); got != string(upload) {
		t.Error("uploaded media part has wrong bytes")
	}
	if partOf(t, out, "ppt/media/image1.png") != partOf(t, data, "ppt/media/image1.png") {
		t.Error("original media changed")
	}
	mustContain(t, partOf(t, out, "ppt/slides/_rels/slide1.xml.rels"), `Id="rId8"`)
	mustContain(t, partOf(t, out, slidePart), `<a:blip r:embed="rId8"/>`)

	pkg, err := opc.OpenBytes(out)
	if err != nil {
		t.Fatalf("OpenBytes failed: %v", err)
	}
	types, err := pkg.ContentTypes()
	if err != nil {
		t.Fatalf("ContentTypes failed: %v", err)
	}
	if ct := types.ContentType("ppt/media/uploaded_1_cat.jpg"); ct != "image/jpeg" {
		t.Errorf("content type = %q", ct)
	}

	pic := extractDeck(t, out).Index().Shape(photoID).Picture
	if pic.Image.Part != "ppt/media/uploaded_1_cat.jpg" || pic.Crop == nil {
		t.Errorf("re-extracted picture = %+v", pic)
	}
}

func TestMaterialize_ImageExternal(t *testing.T) {
	data := deck(t)
	doc := extractDeck(t, data)
	url := "https://example.com/cat.png"

	out, warnings := materialize(t, data, doc, []overlay.Overlay{overlay.NewImageURL(photoID, url)}, Options{})
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	mustContain(t, partOf(t, out, slidePart), `<a:blip r:link="rId8"/>`)
	rels := partOf(t, out, "ppt/slides/_rels/slide1.xml.rels")
	mustContain(t, rels, `Target="`+url+`"`)
	mustContain(t, rels, `TargetMode="External"`)
}

func TestMaterialize_AssetUnavailable(t *testing.T) {
	data := deck(t)
	doc := extractDeck(t, data)
	o := overlay.NewImage(photoID, "uploaded_1_missing.png")

	for name, assets := range map[string]Assets{"no store": nil, "missing": memAssets{}} {
		t.Run(name, func(t *testing.T) {
			out, warnings := materialize(t, data, doc, []overlay.Overlay{o}, Options{Assets: assets})
			if !hasCode(warnings, model.WarnAssetUnavailable) {
				t.Errorf("warnings = %v", warnings)
			}
			if !bytes.Equal(out, data) {
				t.Error("container changed")
			}
		})
	}
}
