// Package deckform provides a fluent API for reading a presentation,
// applying pending edits to it and writing the edited file.
//
// Basic usage:
//
//	doc, warnings, err := deckform.Open("deck.pptx").Document()
//	if err != nil {
//	    // handle error
//	}
//	if len(warnings) > 0 {
//	    log.Println("Warnings:", deckform.FormatWarnings(warnings))
//	}
//
// Applying edits:
//
//	out, warnings, err := deckform.Open("deck.pptx").
//	    WithChanges(payload).
//	    WithAssetDir("uploads").
//	    Export()
//
// For sessions that accumulate edits over time, see the session package.
package deckform

import (
	"github.com/tsawler/deckform/model"
)

// Warning is a non-fatal problem reported alongside a result.
type Warning = model.Warning

// FormatWarnings renders warnings one per line.
func FormatWarnings(warnings []Warning) string {
	return model.FormatWarnings(warnings)
}

// Open returns an Editor for a presentation file. The file is read when a
// terminal operation runs.
//
// Example:
//
//	doc, warnings, err := deckform.Open("deck.pptx").Document()
func Open(filename string) *Editor {
	return &Editor{
		filename: filename,
		options:  defaultOptions(),
	}
}

// FromBytes returns an Editor for a presentation held in memory. The
// caller must not modify data afterwards.
func FromBytes(data []byte) *Editor {
	return &Editor{
		data:    data,
		loaded:  true,
		options: defaultOptions(),
	}
}

// Must is a helper that wraps a call to a function returning (T, error)
// and panics if the error is non-nil. It is intended for use in scripts
// or tests where error handling would be cumbersome.
//
// Example:
//
//	count := deckform.Must(deckform.Open("deck.pptx").SlideCount())
func Must[T any](val T, err error) T {
	if err != nil {
		panic(err)
	}
	return val
}

// MustValue is a helper that wraps a terminal operation returning
// (T, []Warning, error) and panics if the error is non-nil. It discards
// warnings and returns just the value.
//
// Example:
//
//	doc := deckform.MustValue(deckform.Open("deck.pptx").Document())
func MustValue[T any](val T, _ []Warning, err error) T {
	if err != nil {
		panic(err)
	}
	return val
}
