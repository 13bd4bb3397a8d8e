// Package testpptx builds small, real presentation containers for tests.
// Shapes are supplied as spTree XML fragments produced by the helpers in
// shapes.go, so each test states exactly the markup it exercises.
package testpptx

import (
	"archive/zip"
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sort"
	"strings"
	"testing"
)

// Namespace declarations used on slide roots.
const (
	NsP = "http://schemas.openxmlformats.org/presentationml/2006/main"
	NsA = "http://schemas.openxmlformats.org/drawingml/2006/main"
	NsR = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"

	RelImage = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/image"
	RelChart = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/chart"

	relSlide       = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide"
	relSlideLayout = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/slideLayout"
	relNotes       = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/notesSlide"
	relOfficeDoc   = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument"
	relCoreProps   = "http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties"
)

// Rel is an extra slide relationship.
type Rel struct {
	ID     string
	Type   string
	Target string
}

// Slide describes one slide of the fixture.
type Slide struct {
	Shapes []string // spTree children
	Rels   []Rel    // beyond the layout (rId1) and notes relationships
	Notes  string
	Raw    string // full slide XML; overrides Shapes when set
}

// Builder accumulates fixture content.
type Builder struct {
	slides     []Slide
	media      map[string][]byte
	title      string
	author     string
	reverseIDs bool
	layout     []string
	extra      map[string]string
}

// New returns an empty builder.
func New() *Builder {
	return &Builder{media: make(map[string][]byte), extra: make(map[string]string)}
}

// AddSlide appends a slide.
func (b *Builder) AddSlide(s Slide) *Builder {
	b.slides = append(b.slides, s)
	return b
}

// Shapes appends a slide holding the given shapes.
func (b *Builder) Shapes(shapes ...string) *Builder {
	return b.AddSlide(Slide{Shapes: shapes})
}

// Media adds ppt/media/name.
func (b *Builder) Media(name string, data []byte) *Builder {
	b.media[name] = data
	return b
}

// Title sets the core title and author.
func (b *Builder) Title(title, author string) *Builder {
	b.title = title
	b.author = author
	return b
}

// Part adds an arbitrary part, such as a chart referenced by a slide.
func (b *Builder) Part(name, content string) *Builder {
	b.extra[name] = content
	return b
}

// Layout sets the spTree children of the shared slide layout.
func (b *Builder) Layout(shapes ...string) *Builder {
	b.layout = shapes
	return b
}

// ReverseSlideOrder lists the slides in sldIdLst in reverse file order,
// so that presentation order differs from part names.
func (b *Builder) ReverseSlideOrder() *Builder {
	b.reverseIDs = true
	return b
}

// Build writes the container.
func (b *Builder) Build(t testing.TB) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	write := func(name, content string) {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("Failed to create %s in zip: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}

	write("[Content_Types].xml", b.contentTypes())
	write("_rels/.rels", rels(
		Rel{"rId1", relOfficeDoc, "ppt/presentation.xml"},
		Rel{"rId2", relCoreProps, "docProps/core.xml"},
	))
	write("docProps/core.xml", b.coreXML())
	write("ppt/presentation.xml", b.presentationXML())

	presRels := make([]Rel, 0, len(b.slides))
	for i := range b.slides {
		presRels = append(presRels, Rel{fmt.Sprintf("rId%d", i+2), relSlide, fmt.Sprintf("slides/slide%d.xml", i+1)})
	}
	write("ppt/_rels/presentation.xml.rels", rels(presRels...))
	write("ppt/slideLayouts/slideLayout1.xml", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<p:sldLayout xmlns:p="`+NsP+`" xmlns:a="`+NsA+`" xmlns:r="`+NsR+`"><p:cSld name="Title and Content"><p:spTree>`+
		strings.Join(b.layout, "")+`</p:spTree></p:cSld></p:sldLayout>`)

	for i, s := range b.slides {
		n := i + 1
		slideRels := []Rel{{"rId1", relSlideLayout, "../slideLayouts/slideLayout1.xml"}}
		if s.Notes != "" {
			slideRels = append(slideRels, Rel{"rIdNotes", relNotes, fmt.Sprintf("../notesSlides/notesSlide%d.xml", n)})
			write(fmt.Sprintf("ppt/notesSlides/notesSlide%d.xml", n), notesXML(s.Notes))
		}
		slideRels = append(slideRels, s.Rels...)
		write(fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", n), rels(slideRels...))
		if s.Raw != "" {
			write(fmt.Sprintf("ppt/slides/slide%d.xml", n), s.Raw)
		} else {
			write(fmt.Sprintf("ppt/slides/slide%d.xml", n), SlideXML(s.Shapes...))
		}
	}

	extras := make([]string, 0, len(b.extra))
	for name := range b.extra {
		extras = append(extras, name)
	}
	sort.Strings(extras)
	for _, name := range extras {
		write(name, b.extra[name])
	}

	names := make([]string, 0, len(b.media))
	for name := range b.media {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: "ppt/media/" + name, Method: zip.Store})
		if err != nil {
			t.Fatalf("Failed to create media %s: %v", name, err)
		}
		if _, err := w.Write(b.media[name]); err != nil {
			t.Fatalf("Failed to write media %s: %v", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		t.Fatalf("Failed to close zip: %v", err)
	}
	return buf.Bytes()
}

// SlideXML wraps shapes in a complete slide part.
func SlideXML(shapes ...string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<p:sld xmlns:a="` + NsA + `" xmlns:r="` + NsR + `" xmlns:p="` + NsP + `"><p:cSld><p:spTree><p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr><p:grpSpPr/>` +
		strings.Join(shapes, "") +
		`</p:spTree></p:cSld><p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr></p:sld>`
}

func (b *Builder) contentTypes() string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">`)
	sb.WriteString(`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>`)
	sb.WriteString(`<Default Extension="xml" ContentType="application/xml"/>`)
	if len(b.media) > 0 {
		sb.WriteString(`<Default Extension="png" ContentType="image/png"/>`)
	}
	sb.WriteString(`<Override PartName="/ppt/presentation.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.presentation.main+xml"/>`)
	for i := range b.slides {
		fmt.Fprintf(&sb, `<Override PartName="/ppt/slides/slide%d.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slide+xml"/>`, i+1)
	}
	sb.WriteString(`</Types>`)
	return sb.String()
}

func (b *Builder) presentationXML() string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<p:presentation xmlns:a="` + NsA + `" xmlns:r="` + NsR + `" xmlns:p="` + NsP + `"><p:sldIdLst>`)
	for i := range b.slides {
		k := i
		if b.reverseIDs {
			k = len(b.slides) - 1 - i
		}
		fmt.Fprintf(&sb, `<p:sldId id="%d" r:id="rId%d"/>`, 256+k, k+2)
	}
	sb.WriteString(`</p:sldIdLst><p:sldSz cx="9144000" cy="6858000"/><p:notesSz cx="6858000" cy="9144000"/></p:presentation>`)
	return sb.String()
}

func (b *Builder) coreXML() string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">` +
		`<dc:title>` + Escape(b.title) + `</dc:title><dc:creator>` + Escape(b.author) + `</dc:creator>` +
		`<dcterms:modified xsi:type="dcterms:W3CDTF">2024-03-01T10:00:00Z</dcterms:modified></cp:coreProperties>`
}

func notesXML(text string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<p:notes xmlns:a="` + NsA + `" xmlns:p="` + NsP + `"><p:cSld><p:spTree>` +
		`<p:sp><p:nvSpPr><p:cNvPr id="2" name="Slide Image"/><p:cNvSpPr/><p:nvPr><p:ph type="sldImg"/></p:nvPr></p:nvSpPr><p:spPr/></p:sp>` +
		`<p:sp><p:nvSpPr><p:cNvPr id="3" name="Notes"/><p:cNvSpPr/><p:nvPr><p:ph type="body" idx="1"/></p:nvPr></p:nvSpPr><p:spPr/>` +
		`<p:txBody><a:bodyPr/><a:p><a:r><a:t>` + Escape(text) + `</a:t></a:r></a:p></p:txBody></p:sp>` +
		`</p:spTree></p:cSld></p:notes>`
}

func rels(items ...Rel) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`)
	for _, r := range items {
		fmt.Fprintf(&sb, `<Relationship Id="%s" Type="%s" Target="%s"/>`, r.ID, r.Type, r.Target)
	}
	sb.WriteString(`</Relationships>`)
	return sb.String()
}

// PNG returns an encoded solid-color image.
func PNG(t testing.TB, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode png: %v", err)
	}
	return buf.Bytes()
}

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

// Escape escapes text for element content and attributes.
func Escape(s string) string {
	return escaper.Replace(s)
}
