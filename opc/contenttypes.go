package opc

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/antchfx/xmlquery"
)

// ContentTypesPart is the name of the content types part.
const ContentTypesPart = "[Content_Types].xml"

// ContentTypes maps parts to their declared media types.
type ContentTypes struct {
	defaults  map[string]string // lower-case extension without dot
	overrides map[string]string // part name without leading slash
}

// ParseContentTypes parses a [Content_Types].xml part.
func ParseContentTypes(data []byte) (*ContentTypes, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing content types: %w", err)
	}
	ct := &ContentTypes{
		defaults:  make(map[string]string),
		overrides: make(map[string]string),
	}
	for _, n := range xmlquery.Find(doc, "//*[local-name()='Default']") {
		ct.defaults[strings.ToLower(n.SelectAttr("Extension"))] = n.SelectAttr("ContentType")
	}
	for _, n := range xmlquery.Find(doc, "//*[local-name()='Override']") {
		ct.overrides[normalize(n.SelectAttr("PartName"))] = n.SelectAttr("ContentType")
	}
	return ct, nil
}

// ContentType returns the media type of a part: its override if declared,
// else the default for its extension.
func (c *ContentTypes) ContentType(part string) string {
	if v, ok := c.overrides[normalize(part)]; ok {
		return v
	}
	return c.defaults[extOf(part)]
}

// HasDefault reports whether a default is declared for ext.
func (c *ContentTypes) HasDefault(ext string) bool {
	_, ok := c.defaults[strings.ToLower(strings.TrimPrefix(ext, "."))]
	return ok
}

// PartsOfType returns override part names declared with the given type.
func (c *ContentTypes) PartsOfType(contentType string) []string {
	var out []string
	for part, v := range c.overrides {
		if v == contentType {
			out = append(out, part)
		}
	}
	return out
}

// InsertDefault returns data with a Default element for ext added.
func InsertDefault(data []byte, ext, contentType string) ([]byte, error) {
	el := fmt.Sprintf(`<Default Extension="%s" ContentType="%s"/>`,
		escapeAttr(strings.TrimPrefix(ext, ".")), escapeAttr(contentType))
	return insertBeforeClose(data, "Types", el)
}

// MediaContentType returns the media type for an image extension, or ""
// when the extension is not a supported image.
func MediaContentType(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "png":
		return "image/png"
	case "jpg", "jpeg", "jpe":
		return "image/jpeg"
	case "gif":
		return "image/gif"
	case "bmp":
		return "image/bmp"
	case "tif", "tiff":
		return "image/tiff"
	case "webp":
		return "image/webp"
	case "svg":
		return "image/svg+xml"
	case "emf":
		return "image/x-emf"
	case "wmf":
		return "image/x-wmf"
	default:
		return ""
	}
}

func extOf(part string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(part), "."))
}
