package model

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Every typed error below unwraps to one of these.
var (
	// ErrUnreadableContainer indicates the input is not a valid container. Fatal.
	ErrUnreadableContainer = errors.New("unreadable container")
	// ErrUnsupportedPart indicates a shape's representation could not be decoded.
	ErrUnsupportedPart = errors.New("unsupported part")
	// ErrStructuralDrift indicates a boundary no longer resolves in the container.
	ErrStructuralDrift = errors.New("structural drift")
	// ErrOverlayShapeNotFound indicates an overlay names a shape the model lacks.
	ErrOverlayShapeNotFound = errors.New("overlay shape not found")
	// ErrMalformedOverlay indicates an overlay entry cannot be applied.
	ErrMalformedOverlay = errors.New("malformed overlay")
)

// UnreadableContainerError aborts extraction or export.
type UnreadableContainerError struct {
	Reason string
	Err    error
}

func (e *UnreadableContainerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unreadable container: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("unreadable container: %s", e.Reason)
}

func (e *UnreadableContainerError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrUnreadableContainer, e.Err}
	}
	return []error{ErrUnreadableContainer}
}

// UnsupportedPartError downgrades a single shape to KindUnknown.
type UnsupportedPartError struct {
	ShapeID string
	Part    string
	Reason  string
	Err     error
}

func (e *UnsupportedPartError) Error() string {
	msg := fmt.Sprintf("unsupported part %s (shape %s): %s", e.Part, e.ShapeID, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UnsupportedPartError) Unwrap() error {
	return ErrUnsupportedPart
}

// StructuralDriftError skips one shape's edit during export.
type StructuralDriftError struct {
	ShapeID string
	Part    string
	Locator string
}

func (e *StructuralDriftError) Error() string {
	return fmt.Sprintf("structural drift: shape %s: element %q not found in %s", e.ShapeID, e.Locator, e.Part)
}

func (e *StructuralDriftError) Unwrap() error {
	return ErrStructuralDrift
}

// OverlayShapeNotFoundError marks an overlay entry that was ignored.
type OverlayShapeNotFoundError struct {
	ShapeID string
}

func (e *OverlayShapeNotFoundError) Error() string {
	return fmt.Sprintf("overlay shape not found: %s", e.ShapeID)
}

func (e *OverlayShapeNotFoundError) Unwrap() error {
	return ErrOverlayShapeNotFound
}

// MalformedOverlayError marks an overlay entry that was ignored.
type MalformedOverlayError struct {
	ShapeID string
	Kind    string
	Reason  string
}

func (e *MalformedOverlayError) Error() string {
	return fmt.Sprintf("malformed %s overlay for shape %s: %s", e.Kind, e.ShapeID, e.Reason)
}

func (e *MalformedOverlayError) Unwrap() error {
	return ErrMalformedOverlay
}

// WarningCode classifies a warning.
type WarningCode string

const (
	WarnUnsupportedPart   WarningCode = "unsupported_part"
	WarnStructuralDrift   WarningCode = "structural_drift"
	WarnShapeNotFound     WarningCode = "shape_not_found"
	WarnMalformedOverlay  WarningCode = "malformed_overlay"
	WarnKindMismatch      WarningCode = "kind_mismatch"
	WarnAssetUnavailable  WarningCode = "asset_unavailable"
	WarnSlideUnreadable   WarningCode = "slide_unreadable"
	WarnRecognitionFailed WarningCode = "recognition_failed"
	WarnCellSkipped       WarningCode = "cell_skipped"
)

// Warning is a non-fatal problem reported alongside a successful result.
type Warning struct {
	Code    WarningCode
	ShapeID string
	Message string
	Err     error
}

func (w Warning) String() string {
	if w.ShapeID != "" {
		return fmt.Sprintf("[%s] %s: %s", w.Code, w.ShapeID, w.Message)
	}
	return fmt.Sprintf("[%s] %s", w.Code, w.Message)
}

// WarningFromError builds a warning from one of the taxonomy errors.
func WarningFromError(err error) Warning {
	w := Warning{Message: err.Error(), Err: err}
	var (
		up *UnsupportedPartError
		sd *StructuralDriftError
		nf *OverlayShapeNotFoundError
		mo *MalformedOverlayError
	)
	switch {
	case errors.As(err, &up):
		w.Code, w.ShapeID = WarnUnsupportedPart, up.ShapeID
	case errors.As(err, &sd):
		w.Code, w.ShapeID = WarnStructuralDrift, sd.ShapeID
	case errors.As(err, &nf):
		w.Code, w.ShapeID = WarnShapeNotFound, nf.ShapeID
	case errors.As(err, &mo):
		w.Code, w.ShapeID = WarnMalformedOverlay, mo.ShapeID
	default:
		w.Code = "error"
	}
	return w
}

// FormatWarnings renders warnings one per line.
func FormatWarnings(warnings []Warning) string {
	lines := make([]string, len(warnings))
	for i, w := range warnings {
		lines[i] = w.String()
	}
	return strings.Join(lines, "\n")
}
