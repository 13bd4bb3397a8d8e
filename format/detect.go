// Package format provides container format detection for deckform.
package format

import (
	"archive/zip"
	"bytes"
	"io"
	"path/filepath"
	"strings"

	"github.com/antchfx/xmlquery"
)

// Format represents a container format.
type Format int

const (
	// Unknown indicates an unrecognized format.
	Unknown Format = iota
	// PPTX indicates a PowerPoint presentation (.pptx).
	PPTX
	// PPTM indicates a macro-enabled presentation (.pptm).
	PPTM
	// POTX indicates a presentation template (.potx).
	POTX
	// DOCX indicates a Word document (.docx). Recognized so callers can
	// report a precise reason when the wrong OOXML flavor is supplied.
	DOCX
	// XLSX indicates an Excel workbook (.xlsx).
	XLSX
)

// Main part content types declared in [Content_Types].xml.
const (
	ctPresentation  = "application/vnd.openxmlformats-officedocument.presentationml.presentation.main+xml"
	ctMacroEnabled  = "application/vnd.ms-powerpoint.presentation.macroEnabled.main+xml"
	ctTemplate      = "application/vnd.openxmlformats-officedocument.presentationml.template.main+xml"
	presentationXML = "ppt/presentation.xml"
)

// String returns the string representation of the format.
func (f Format) String() string {
	switch f {
	case PPTX:
		return "PPTX"
	case PPTM:
		return "PPTM"
	case POTX:
		return "POTX"
	case DOCX:
		return "DOCX"
	case XLSX:
		return "XLSX"
	default:
		return "Unknown"
	}
}

// Extension returns the typical file extension for the format.
func (f Format) Extension() string {
	switch f {
	case PPTX:
		return ".pptx"
	case PPTM:
		return ".pptm"
	case POTX:
		return ".potx"
	case DOCX:
		return ".docx"
	case XLSX:
		return ".xlsx"
	default:
		return ""
	}
}

// IsPresentation reports whether the format can be edited.
func (f Format) IsPresentation() bool {
	return f == PPTX || f == PPTM || f == POTX
}

// Detect determines file format from filename extension.
func Detect(filename string) Format {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pptx":
		return PPTX
	case ".pptm":
		return PPTM
	case ".potx":
		return POTX
	case ".docx":
		return DOCX
	case ".xlsx":
		return XLSX
	default:
		return Unknown
	}
}

// IsZIP reports whether data starts with a ZIP local file header.
func IsZIP(data []byte) bool {
	return len(data) >= 4 && data[0] == 0x50 && data[1] == 0x4B && data[2] == 0x03 && data[3] == 0x04
}

// DetectFromMagic checks magic bytes and, for ZIP archives, the archive
// contents. Returns Unknown if the data is not an OOXML container.
func DetectFromMagic(data []byte) Format {
	if !IsZIP(data) {
		return Unknown
	}
	f, err := DetectFromReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Unknown
	}
	return f
}

// DetectFromReader inspects the content to determine format.
// This is more reliable than extension-based detection and can
// distinguish between the presentation flavors.
func DetectFromReader(r io.ReaderAt, size int64) (Format, error) {
	magic := make([]byte, 4)
	n, err := r.ReadAt(magic, 0)
	if err != nil && err != io.EOF {
		return Unknown, err
	}
	if !IsZIP(magic[:n]) {
		return Unknown, nil
	}
	return detectZIPFormat(r, size)
}

// detectZIPFormat inspects a ZIP archive. A presentation must carry
// ppt/presentation.xml; its declared content type picks the flavor.
func detectZIPFormat(r io.ReaderAt, size int64) (Format, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return Unknown, err
	}

	var hasPresentation bool
	var contentTypes *zip.File
	for _, f := range zr.File {
		switch {
		case f.Name == "[Content_Types].xml":
			contentTypes = f
		case f.Name == presentationXML:
			hasPresentation = true
		case strings.HasPrefix(f.Name, "word/"):
			return DOCX, nil
		case strings.HasPrefix(f.Name, "xl/"):
			return XLSX, nil
		}
	}
	if !hasPresentation {
		return Unknown, nil
	}
	if contentTypes == nil {
		return PPTX, nil
	}

	switch mainContentType(contentTypes) {
	case ctMacroEnabled:
		return PPTM, nil
	case ctTemplate:
		return POTX, nil
	}
	return PPTX, nil
}

// mainContentType returns the content type declared for
// /ppt/presentation.xml, or "" when it cannot be read.
func mainContentType(f *zip.File) string {
	rc, err := f.Open()
	if err != nil {
		return ""
	}
	defer rc.Close()
	doc, err := xmlquery.Parse(io.LimitReader(rc, 1<<20))
	if err != nil {
		return ""
	}
	n := xmlquery.FindOne(doc, "//*[local-name()='Override'][@PartName='/"+presentationXML+"']")
	if n == nil {
		return ""
	}
	return n.SelectAttr("ContentType")
}
