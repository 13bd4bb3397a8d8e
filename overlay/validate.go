package overlay

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/tsawler/deckform/model"
)

// Validate checks an overlay's shape without consulting any document.
// Failures are *model.MalformedOverlayError.
func Validate(o Overlay) error {
	bad := func(format string, args ...any) error {
		return &model.MalformedOverlayError{ShapeID: o.ShapeID, Kind: string(o.Kind), Reason: fmt.Sprintf(format, args...)}
	}

	if strings.TrimSpace(o.ShapeID) == "" {
		return bad("empty shape id")
	}
	if !o.Kind.Valid() {
		return bad("unknown kind %q", o.Kind)
	}

	payloads := 0
	for _, set := range []bool{o.Text != nil, o.Table != nil, o.Image != nil} {
		if set {
			payloads++
		}
	}
	if payloads != 1 || o.payloadKind() != o.Kind {
		return bad("payload does not match kind")
	}

	switch o.Kind {
	case KindText:
		return validateText(o.Text, bad)
	case KindTable:
		return validateTable(o.Table, bad)
	default:
		return validateImage(o.Image, bad)
	}
}

func (o Overlay) payloadKind() Kind {
	switch {
	case o.Text != nil:
		return KindText
	case o.Table != nil:
		return KindTable
	case o.Image != nil:
		return KindImage
	}
	return ""
}

func validateText(te *TextEdit, bad func(string, ...any) error) error {
	for i, p := range te.Paragraphs {
		for j, r := range p.Runs {
			switch r.Kind {
			case model.RunText, model.RunField:
			case model.RunBreak:
				if r.Text != "\n" && r.Text != "" {
					return bad("paragraph %d run %d: break carries text %q", i, j, r.Text)
				}
			default:
				return bad("paragraph %d run %d: unknown run kind %d", i, j, r.Kind)
			}
			for _, text := range []string{r.Text, r.Boundary.Leading, r.Boundary.Trailing} {
				if reason := unwritable(text); reason != "" {
					return bad("paragraph %d run %d: %s", i, j, reason)
				}
			}
			if r.Format.Font != nil {
				if reason := unwritable(*r.Format.Font); reason != "" {
					return bad("paragraph %d run %d: font %s", i, j, reason)
				}
			}
		}
		if reason := unwritable(p.Alignment); reason != "" {
			return bad("paragraph %d: alignment %s", i, reason)
		}
	}
	return nil
}

func validateTable(te *TableEdit, bad func(string, ...any) error) error {
	if te.Rows < 0 || te.Cols < 0 {
		return bad("negative table dimensions %dx%d", te.Rows, te.Cols)
	}
	for key, c := range te.Cells {
		row, col, err := model.ParseCellKey(key)
		if err != nil {
			return bad("%v", err)
		}
		if row != c.Row || col != c.Col {
			return bad("cell key %s names (%d,%d)", key, c.Row, c.Col)
		}
		if row < 0 || col < 0 {
			return bad("negative cell position %s", key)
		}
		if (te.Rows > 0 && row >= te.Rows) || (te.Cols > 0 && col >= te.Cols) {
			return bad("cell %s outside declared %dx%d grid", key, te.Rows, te.Cols)
		}
		if reason := unwritable(c.Text); reason != "" {
			return bad("cell %s: %s", key, reason)
		}
		if c.OriginalText != nil {
			if reason := unwritable(*c.OriginalText); reason != "" {
				return bad("cell %s original text: %s", key, reason)
			}
		}
	}
	return nil
}

func validateImage(ie *ImageEdit, bad func(string, ...any) error) error {
	switch {
	case ie.ImageRef != "" && ie.ImageURL != "":
		return bad("both image_ref and image_url set")
	case ie.ImageRef == "" && ie.ImageURL == "":
		return bad("neither image_ref nor image_url set")
	case ie.IsExternal && ie.ImageURL == "":
		return bad("external image without image_url")
	}
	if ie.ImageRef != "" {
		if strings.ContainsAny(ie.ImageRef, `/\`) || ie.ImageRef == "." || ie.ImageRef == ".." {
			return bad("image_ref %q is not a plain asset name", ie.ImageRef)
		}
		return nil
	}
	u, err := url.Parse(ie.ImageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return bad("image_url %q is not an absolute http(s) URL", ie.ImageURL)
	}
	return nil
}

// unwritable describes why s cannot be stored as XML character data, or
// returns "" when it can.
func unwritable(s string) string {
	if !utf8.ValidString(s) {
		return "invalid UTF-8"
	}
	for _, r := range s {
		if r == '\v' {
			return "vertical tab; send a break run instead"
		}
		if !isXMLChar(r) {
			return fmt.Sprintf("character %U is not allowed in XML", r)
		}
	}
	return ""
}

// isXMLChar reports whether r matches the XML 1.0 Char production.
func isXMLChar(r rune) bool {
	switch {
	case r == 0x09 || r == 0x0A || r == 0x0D:
		return true
	case r >= 0x20 && r <= 0xD7FF:
		return true
	case r >= 0xE000 && r <= 0xFFFD:
		return true
	case r >= 0x10000 && r <= 0x10FFFF:
		return true
	}
	return false
}
