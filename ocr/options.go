package ocr

import (
	"bytes"
	"errors"
)

// ErrUnsupportedImage is returned for picture data Tesseract cannot read,
// such as vector metafiles.
var ErrUnsupportedImage = errors.New("image format not supported for recognition")

// PageSegMode represents page segmentation modes for OCR.
// These control how Tesseract analyzes the picture layout.
type PageSegMode int

// Page segmentation modes (matching gosseract.PageSegMode values).
const (
	PSM_OSD_ONLY               PageSegMode = 0  // Orientation and script detection only
	PSM_AUTO_OSD               PageSegMode = 1  // Automatic with OSD
	PSM_AUTO_ONLY              PageSegMode = 2  // Automatic, no OSD or OCR
	PSM_AUTO                   PageSegMode = 3  // Fully automatic (default)
	PSM_SINGLE_COLUMN          PageSegMode = 4  // Single column of variable sizes
	PSM_SINGLE_BLOCK_VERT_TEXT PageSegMode = 5  // Single uniform block of vertically aligned text
	PSM_SINGLE_BLOCK           PageSegMode = 6  // Single uniform block of text
	PSM_SINGLE_LINE            PageSegMode = 7  // Single text line
	PSM_SINGLE_WORD            PageSegMode = 8  // Single word
	PSM_CIRCLE_WORD            PageSegMode = 9  // Single word in a circle
	PSM_SINGLE_CHAR            PageSegMode = 10 // Single character
	PSM_SPARSE_TEXT            PageSegMode = 11 // Find as much text as possible
	PSM_SPARSE_TEXT_OSD        PageSegMode = 12 // Sparse text with OSD
	PSM_RAW_LINE               PageSegMode = 13 // Treat image as single text line
)

// Options configures a recognition client.
type Options struct {
	Languages   []string // e.g. eng, deu; joined with "+"
	PageSegMode PageSegMode
}

// DefaultOptions suits slide pictures: sparse text, English.
func DefaultOptions() Options {
	return Options{Languages: []string{"eng"}, PageSegMode: PSM_SPARSE_TEXT}
}

// Recognizable reports whether data is a raster format Tesseract decodes.
func Recognizable(data []byte) bool {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return true
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return true
	case bytes.HasPrefix(data, []byte("GIF8")):
		return true
	case bytes.HasPrefix(data, []byte("BM")):
		return true
	case bytes.HasPrefix(data, []byte("II*\x00")), bytes.HasPrefix(data, []byte("MM\x00*")):
		return true
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return true
	}
	return false
}
