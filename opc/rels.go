package opc

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
)

// Relationship types used by presentations.
const (
	RelTypeOfficeDocument = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument"
	RelTypeCoreProperties = "http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties"
	RelTypeSlide          = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide"
	RelTypeSlideLayout    = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/slideLayout"
	RelTypeSlideMaster    = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/slideMaster"
	RelTypeNotesSlide     = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/notesSlide"
	RelTypeImage          = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/image"
	RelTypeChart          = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/chart"
	RelTypeHyperlink      = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/hyperlink"

	nsPackageRels = "http://schemas.openxmlformats.org/package/2006/relationships"
)

// Relationship is one entry of a rels part.
type Relationship struct {
	ID       string
	Type     string
	Target   string
	External bool
}

// Relationships is the parsed rels part of one source part.
type Relationships struct {
	Source string
	items  []Relationship
}

// ParseRelationships parses a rels part.
func ParseRelationships(source string, data []byte) (*Relationships, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing relationships of %q: %w", source, err)
	}
	nodes, err := xmlquery.QueryAll(doc, "//*[local-name()='Relationship']")
	if err != nil {
		return nil, fmt.Errorf("querying relationships of %q: %w", source, err)
	}
	rels := &Relationships{Source: source, items: make([]Relationship, 0, len(nodes))}
	for _, n := range nodes {
		rels.items = append(rels.items, Relationship{
			ID:       n.SelectAttr("Id"),
			Type:     n.SelectAttr("Type"),
			Target:   n.SelectAttr("Target"),
			External: strings.EqualFold(n.SelectAttr("TargetMode"), "External"),
		})
	}
	return rels, nil
}

// All returns the relationships in document order.
func (r *Relationships) All() []Relationship {
	return append([]Relationship(nil), r.items...)
}

// ByID looks up a relationship by id.
func (r *Relationships) ByID(id string) (Relationship, bool) {
	for _, rel := range r.items {
		if rel.ID == id {
			return rel, true
		}
	}
	return Relationship{}, false
}

// ByType returns every relationship of the given type.
func (r *Relationships) ByType(relType string) []Relationship {
	var out []Relationship
	for _, rel := range r.items {
		if rel.Type == relType {
			out = append(out, rel)
		}
	}
	return out
}

// Resolve returns the part name a relationship points to. External
// targets are returned unchanged.
func (r *Relationships) Resolve(rel Relationship) string {
	if rel.External {
		return rel.Target
	}
	return ResolveTarget(r.Source, rel.Target)
}

// NextID returns an unused id of the form rIdN.
func (r *Relationships) NextID() string {
	max := 0
	for _, rel := range r.items {
		if n, err := strconv.Atoi(strings.TrimPrefix(rel.ID, "rId")); err == nil && n > max {
			max = n
		}
	}
	return "rId" + strconv.Itoa(max+1)
}

// InsertRelationship returns rels with rel appended before the closing
// Relationships tag. All existing bytes are preserved.
func InsertRelationship(rels []byte, rel Relationship) ([]byte, error) {
	el := fmt.Sprintf(`<Relationship Id="%s" Type="%s" Target="%s"`,
		escapeAttr(rel.ID), escapeAttr(rel.Type), escapeAttr(rel.Target))
	if rel.External {
		el += ` TargetMode="External"`
	}
	el += "/>"
	return insertBeforeClose(rels, "Relationships", el)
}

// NewRelationshipsPart returns a rels part holding a single relationship.
func NewRelationshipsPart(rel Relationship) []byte {
	empty := []byte(xmlHeader + `<Relationships xmlns="` + nsPackageRels + `"></Relationships>`)
	out, _ := InsertRelationship(empty, rel)
	return out
}

const xmlHeader = "<?xml version=\"1.0\" encoding=\"UTF-8\" standalone=\"yes\"?>\r\n"

// insertBeforeClose inserts el before the closing tag of the root element
// named local, expanding a self-closing root if needed.
func insertBeforeClose(data []byte, local, el string) ([]byte, error) {
	closeTag := []byte("</" + local + ">")
	if i := bytes.LastIndex(data, closeTag); i >= 0 {
		out := make([]byte, 0, len(data)+len(el))
		out = append(out, data[:i]...)
		out = append(out, el...)
		out = append(out, data[i:]...)
		return out, nil
	}

	open := bytes.LastIndex(data, []byte("<"+local))
	if open < 0 {
		return nil, fmt.Errorf("root element %s not found", local)
	}
	end := bytes.Index(data[open:], []byte("/>"))
	if end < 0 {
		return nil, fmt.Errorf("root element %s is not closed", local)
	}
	end += open
	out := make([]byte, 0, len(data)+len(el)+len(closeTag))
	out = append(out, data[:end]...)
	out = append(out, '>')
	out = append(out, el...)
	out = append(out, closeTag...)
	out = append(out, data[end+2:]...)
	return out, nil
}

var attrEscaper = strings.NewReplacer(`&`, "&amp;", `<`, "&lt;", `>`, "&gt;", `"`, "&quot;")

func escapeAttr(s string) string {
	return attrEscaper.Replace(s)
}
