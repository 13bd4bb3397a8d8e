// Package pptx provides PPTX (Office Open XML Presentation) container
// reading: presentation part graph, slide order, per-slide relationships,
// notes, core properties, and byte-offset XML trees of slide parts.
package pptx

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"

	"github.com/tsawler/deckform/model"
	"github.com/tsawler/deckform/opc"
)

// XML namespaces used in PPTX files.
const (
	NsPresentationML = "http://schemas.openxmlformats.org/presentationml/2006/main"
	NsDrawingML      = "http://schemas.openxmlformats.org/drawingml/2006/main"
	NsRelationships  = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	NsMarkupCompat   = "http://schemas.openxmlformats.org/markup-compatibility/2006"

	defaultPresentationPart = "ppt/presentation.xml"
)

// SlidePart describes one slide in presentation order.
type SlidePart struct {
	Index     int    // 1-based presentation order
	Part      string // e.g. ppt/slides/slide3.xml
	Layout    string // layout name, if known
	NotesPart string
	Rels      *opc.Relationships
}

// Reader provides access to PPTX container content.
type Reader struct {
	pkg          *opc.Package
	presPart     string
	slides       []SlidePart
	slideWidth   int64
	slideHeight  int64
	meta         model.Metadata
	layoutCache  map[string]string
	slideErrors  map[int]error
	presentation *xmlquery.Node
}

// Open opens a PPTX file for reading.
func Open(filename string) (*Reader, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}
	return OpenBytes(data)
}

// OpenBytes opens a PPTX container held in memory.
func OpenBytes(data []byte) (*Reader, error) {
	pkg, err := opc.OpenBytes(data)
	if err != nil {
		return nil, err
	}
	return FromPackage(pkg)
}

// FromPackage reads presentation structure from an opened package.
func FromPackage(pkg *opc.Package) (*Reader, error) {
	r := &Reader{
		pkg:         pkg,
		layoutCache: make(map[string]string),
		slideErrors: make(map[int]error),
		meta:        model.Metadata{Custom: make(map[string]string)},
	}

	// Validate required parts exist
	if err := r.validate(); err != nil {
		return nil, err
	}

	// Parse presentation to get slide order and size
	if err := r.parsePresentation(); err != nil {
		return nil, &model.UnreadableContainerError{Reason: "invalid presentation part", Err: err}
	}

	if err := r.parseSlides(); err != nil {
		return nil, &model.UnreadableContainerError{Reason: "invalid slide list", Err: err}
	}

	// Metadata is optional
	r.parseCoreProperties()

	return r, nil
}

// validate checks that required parts exist and locates the presentation
// part through the package relationships.
func (r *Reader) validate() error {
	if !r.pkg.Has(opc.ContentTypesPart) {
		return &model.UnreadableContainerError{Reason: "missing required part: " + opc.ContentTypesPart}
	}

	r.presPart = defaultPresentationPart
	if rels, err := r.pkg.Rels(""); err == nil {
		if docs := rels.ByType(opc.RelTypeOfficeDocument); len(docs) > 0 {
			r.presPart = rels.Resolve(docs[0])
		}
	}
	if !r.pkg.Has(r.presPart) {
		return &model.UnreadableContainerError{Reason: "missing required part: " + r.presPart}
	}
	return nil
}

// parsePresentation parses the main presentation part.
func (r *Reader) parsePresentation() error {
	data, err := r.pkg.Part(r.presPart)
	if err != nil {
		return err
	}
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parsing %s: %w", r.presPart, err)
	}
	r.presentation = doc

	if sz := xmlquery.FindOne(doc, "//*[local-name()='sldSz']"); sz != nil {
		fmt.Sscanf(sz.SelectAttr("cx"), "%d", &r.slideWidth)
		fmt.Sscanf(sz.SelectAttr("cy"), "%d", &r.slideHeight)
	}
	return nil
}

// parseSlides resolves slide parts in sldIdLst order. Slides missing from
// sldIdLst but related from the presentation are appended in file-number
// order.
func (r *Reader) parseSlides() error {
	presRels, err := r.pkg.Rels(r.presPart)
	if err != nil {
		return err
	}

	seen := make(map[string]bool)
	var ordered []string
	for _, n := range xmlquery.Find(r.presentation, "//*[local-name()='sldIdLst']/*[local-name()='sldId']") {
		rel, ok := presRels.ByID(relAttr(n))
		if !ok || rel.External {
			continue
		}
		part := presRels.Resolve(rel)
		if seen[part] || !r.pkg.Has(part) {
			continue
		}
		seen[part] = true
		ordered = append(ordered, part)
	}

	var extra []string
	for _, rel := range presRels.ByType(opc.RelTypeSlide) {
		part := presRels.Resolve(rel)
		if !seen[part] && r.pkg.Has(part) {
			seen[part] = true
			extra = append(extra, part)
		}
	}
	sort.Slice(extra, func(i, j int) bool {
		return extractSlideNumber(extra[i]) < extractSlideNumber(extra[j])
	})
	ordered = append(ordered, extra...)

	r.slides = make([]SlidePart, 0, len(ordered))
	for i, part := range ordered {
		sp := SlidePart{Index: i + 1, Part: part}
		rels, err := r.pkg.Rels(part)
		if err != nil {
			// A slide with unreadable relationships is still listed; its
			// shapes fail later and are reported per slide.
			r.slideErrors[sp.Index] = err
			rels = &opc.Relationships{Source: part}
		}
		sp.Rels = rels
		if layouts := rels.ByType(opc.RelTypeSlideLayout); len(layouts) > 0 {
			sp.Layout = r.layoutName(rels.Resolve(layouts[0]))
		}
		if notes := rels.ByType(opc.RelTypeNotesSlide); len(notes) > 0 {
			sp.NotesPart = rels.Resolve(notes[0])
		}
		r.slides = append(r.slides, sp)
	}
	return nil
}

// relAttr returns the r:id attribute of an element.
func relAttr(n *xmlquery.Node) string {
	for _, a := range n.Attr {
		if a.Name.Local == "id" && a.Name.Space != "" {
			return a.Value
		}
	}
	return ""
}

// extractSlideNumber extracts the slide number from a path like "ppt/slides/slide1.xml"
func extractSlideNumber(p string) int {
	name := strings.TrimPrefix(path.Base(p), "slide")
	name = strings.TrimSuffix(name, ".xml")
	var num int
	fmt.Sscanf(name, "%d", &num)
	return num
}

// layoutName returns the cSld name of a slide layout part.
func (r *Reader) layoutName(part string) string {
	if name, ok := r.layoutCache[part]; ok {
		return name
	}
	name := ""
	if data, err := r.pkg.Part(part); err == nil {
		if doc, err := xmlquery.Parse(bytes.NewReader(data)); err == nil {
			if cSld := xmlquery.FindOne(doc, "//*[local-name()='cSld']"); cSld != nil {
				name = cSld.SelectAttr("name")
			}
		}
	}
	r.layoutCache[part] = name
	return name
}

// Notes returns the speaker notes of a slide, one line per paragraph. The
// slide image placeholder is skipped.
func (r *Reader) Notes(index int) string {
	sp, ok := r.slidePart(index)
	if !ok || sp.NotesPart == "" {
		return ""
	}
	data, err := r.pkg.Part(sp.NotesPart)
	if err != nil {
		return ""
	}
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return ""
	}

	var lines []string
	for _, shape := range xmlquery.Find(doc, "//*[local-name()='spTree']/*[local-name()='sp']") {
		if ph := xmlquery.FindOne(shape, ".//*[local-name()='ph']"); ph != nil {
			if t := ph.SelectAttr("type"); t == "sldImg" || t == "sldNum" {
				continue
			}
		}
		for _, p := range xmlquery.Find(shape, ".//*[local-name()='txBody']/*[local-name()='p']") {
			var sb strings.Builder
			for _, t := range xmlquery.Find(p, ".//*[local-name()='t']") {
				sb.WriteString(t.InnerText())
			}
			if line := sb.String(); line != "" {
				lines = append(lines, line)
			}
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// parseCoreProperties parses Dublin Core metadata.
func (r *Reader) parseCoreProperties() {
	part := "docProps/core.xml"
	if rels, err := r.pkg.Rels(""); err == nil {
		if core := rels.ByType(opc.RelTypeCoreProperties); len(core) > 0 {
			part = rels.Resolve(core[0])
		}
	}
	data, err := r.pkg.Part(part)
	if err != nil {
		return
	}
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return
	}

	text := func(local string) string {
		if n := xmlquery.FindOne(doc, "//*[local-name()='"+local+"']"); n != nil {
			return strings.TrimSpace(n.InnerText())
		}
		return ""
	}
	r.meta.Title = text("title")
	r.meta.Author = text("creator")
	r.meta.Subject = text("subject")
	r.meta.LastModifiedBy = text("lastModifiedBy")
	if kw := text("keywords"); kw != "" {
		for _, k := range strings.Split(kw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				r.meta.Keywords = append(r.meta.Keywords, k)
			}
		}
	}
	if mod := text("modified"); mod != "" {
		if ts, err := time.Parse(time.RFC3339, mod); err == nil {
			r.meta.Modified = ts
		}
	}
	if app := r.appName(); app != "" {
		r.meta.Creator = app
	}
}

// appName reads the producing application from docProps/app.xml.
func (r *Reader) appName() string {
	data, err := r.pkg.Part("docProps/app.xml")
	if err != nil {
		return ""
	}
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	if n := xmlquery.FindOne(doc, "//*[local-name()='Application']"); n != nil {
		return strings.TrimSpace(n.InnerText())
	}
	return ""
}

// Package returns the underlying container.
func (r *Reader) Package() *opc.Package {
	return r.pkg
}

// PresentationPart returns the name of the main presentation part.
func (r *Reader) PresentationPart() string {
	return r.presPart
}

// SlideCount returns the number of slides.
func (r *Reader) SlideCount() int {
	return len(r.slides)
}

// Slides returns the slides in presentation order.
func (r *Reader) Slides() []SlidePart {
	return append([]SlidePart(nil), r.slides...)
}

// SlideSize returns the slide size in EMUs.
func (r *Reader) SlideSize() (width, height int64) {
	return r.slideWidth, r.slideHeight
}

// Metadata returns document metadata.
func (r *Reader) Metadata() model.Metadata {
	meta := r.meta
	meta.Keywords = append([]string(nil), r.meta.Keywords...)
	meta.Custom = make(map[string]string, len(r.meta.Custom))
	for k, v := range r.meta.Custom {
		meta.Custom[k] = v
	}
	return meta
}

func (r *Reader) slidePart(index int) (SlidePart, bool) {
	if index < 1 || index > len(r.slides) {
		return SlidePart{}, false
	}
	return r.slides[index-1], true
}

// SlideTree parses the slide at index (1-based).
func (r *Reader) SlideTree(index int) (*SlideTree, error) {
	sp, ok := r.slidePart(index)
	if !ok {
		return nil, fmt.Errorf("slide %d out of range [1, %d]", index, len(r.slides))
	}
	if err := r.slideErrors[index]; err != nil {
		return nil, err
	}
	data, err := r.pkg.Part(sp.Part)
	if err != nil {
		return nil, err
	}
	return ParseSlide(sp.Part, data)
}
