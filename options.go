package deckform

import (
	"log/slog"

	"github.com/tsawler/deckform/extract"
	"github.com/tsawler/deckform/overlay"
	"github.com/tsawler/deckform/reconcile"
)

// EditOptions holds configuration for reading and editing.
type EditOptions struct {
	logger *slog.Logger

	// Extraction
	recognizePictureText bool
	recognizer           extract.Recognizer
	inheritGeometry      bool

	// Pending edits, in the order given; later entries for the same shape
	// and kind win.
	overlays []overlay.Overlay
	assets   reconcile.Assets
}

// defaultOptions returns the default options.
func defaultOptions() EditOptions {
	return EditOptions{
		inheritGeometry: true,
	}
}

// clone creates a deep copy of EditOptions.
func (o EditOptions) clone() EditOptions {
	newOpts := o
	if o.overlays != nil {
		newOpts.overlays = make([]overlay.Overlay, len(o.overlays))
		for i, ov := range o.overlays {
			newOpts.overlays[i] = ov.Clone()
		}
	}
	return newOpts
}

func (o EditOptions) extractOptions() extract.Options {
	return extract.Options{
		Logger:                     o.logger,
		RecognizePictureText:       o.recognizePictureText && o.recognizer != nil,
		Recognizer:                 o.recognizer,
		InheritPlaceholderGeometry: o.inheritGeometry,
	}
}

func (o EditOptions) reconcileOptions() reconcile.Options {
	return reconcile.Options{Logger: o.logger, Assets: o.assets}
}
