package model

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// Paragraph is an ordered sequence of runs. Its index within a text body is
// positional, not an identity.
type Paragraph struct {
	Runs      []Run  `json:"runs"`
	Level     int    `json:"level,omitempty"`     // bullet/indent level (0-8)
	Alignment string `json:"alignment,omitempty"` // l, ctr, r, just
	Defaults  Format `json:"defaults"`            // paragraph-level run defaults, read-only
}

// Text returns the paragraph's plain text: every run's text in order.
func (p Paragraph) Text() string {
	var sb strings.Builder
	for _, r := range p.Runs {
		sb.WriteString(r.Text)
	}
	return sb.String()
}

// RunKind distinguishes editable text runs from read-only inline elements.
type RunKind int

const (
	RunText  RunKind = iota // a:r
	RunField                // a:fld (slide number, date); text is read-only
	RunBreak                // a:br; text is always "\n"
)

// Run is the atomic unit of formatting.
type Run struct {
	Text     string   `json:"text"`
	Kind     RunKind  `json:"kind,omitempty"`
	Format   Format   `json:"format"`
	Boundary Boundary `json:"boundary"`
}

// Editable reports whether the writer may change the run's text.
func (r Run) Editable() bool {
	return r.Kind == RunText
}

// Format is a formatting snapshot. A nil field means "inherit from the
// container's style chain".
type Format struct {
	Bold      *bool    `json:"bold,omitempty"`
	Italic    *bool    `json:"italic,omitempty"`
	Underline *bool    `json:"underline,omitempty"`
	Strike    *bool    `json:"strike,omitempty"`
	Font      *string  `json:"font,omitempty"`
	Size      *float64 `json:"size,omitempty"`     // points
	Color     *string  `json:"color,omitempty"`    // RRGGBB, upper case
	Baseline  *int     `json:"baseline,omitempty"` // thousandths of a percent; >0 superscript, <0 subscript
}

// IsZero reports whether every field inherits.
func (f Format) IsZero() bool {
	return f.Bold == nil && f.Italic == nil && f.Underline == nil && f.Strike == nil &&
		f.Font == nil && f.Size == nil && f.Color == nil && f.Baseline == nil
}

// Equal compares two snapshots field by field, treating nil as distinct
// from any explicit value.
func (f Format) Equal(o Format) bool {
	return eqPtr(f.Bold, o.Bold) && eqPtr(f.Italic, o.Italic) &&
		eqPtr(f.Underline, o.Underline) && eqPtr(f.Strike, o.Strike) &&
		eqPtr(f.Font, o.Font) && eqPtr(f.Size, o.Size) &&
		eqColor(f.Color, o.Color) && eqPtr(f.Baseline, o.Baseline)
}

func eqPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func eqColor(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return strings.EqualFold(strings.TrimPrefix(*a, "#"), strings.TrimPrefix(*b, "#"))
}

// Bool, String, Float and Int return pointers for Format literals.
func Bool(v bool) *bool        { return &v }
func String(v string) *string  { return &v }
func Float(v float64) *float64 { return &v }
func Int(v int) *int           { return &v }

// Boundary identifies a run's original low-level formatting element so that
// writing back reuses it instead of synthesizing a new one. It is opaque to
// clients: it travels as a token and must be returned unchanged.
type Boundary struct {
	Part        string // container part holding the run
	Locator     string // structural path of the run element within Part
	Leading     string // whitespace that preceded the run's core text
	Trailing    string // whitespace that followed the run's core text
	Fingerprint string // the run's source text, used to detect drift
}

// IsZero reports whether the boundary is empty, as for runs created by the
// editor that have no source element.
func (b Boundary) IsZero() bool {
	return b.Part == "" && b.Locator == ""
}

type boundaryWire struct {
	P string `json:"p"`
	L string `json:"l"`
	A string `json:"a,omitempty"`
	Z string `json:"z,omitempty"`
	F string `json:"f,omitempty"`
}

// MarshalText encodes the boundary as an opaque token.
func (b Boundary) MarshalText() ([]byte, error) {
	if b.IsZero() {
		return []byte{}, nil
	}
	raw, err := json.Marshal(boundaryWire{P: b.Part, L: b.Locator, A: b.Leading, Z: b.Trailing, F: b.Fingerprint})
	if err != nil {
		return nil, err
	}
	out := make([]byte, base64.RawURLEncoding.EncodedLen(len(raw)))
	base64.RawURLEncoding.Encode(out, raw)
	return out, nil
}

// UnmarshalText decodes a token produced by MarshalText.
func (b *Boundary) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*b = Boundary{}
		return nil
	}
	raw := make([]byte, base64.RawURLEncoding.DecodedLen(len(text)))
	n, err := base64.RawURLEncoding.Decode(raw, text)
	if err != nil {
		return fmt.Errorf("decoding boundary token: %w", err)
	}
	var w boundaryWire
	if err := json.Unmarshal(raw[:n], &w); err != nil {
		return fmt.Errorf("decoding boundary token: %w", err)
	}
	*b = Boundary{Part: w.P, Locator: w.L, Leading: w.A, Trailing: w.Z, Fingerprint: w.F}
	return nil
}

// SplitBoundary separates leading and trailing whitespace (including
// zero-width characters) from a run's core text.
func SplitBoundary(text string) (leading, core, trailing string) {
	isBoundary := func(r rune) bool {
		return unicode.IsSpace(r) || r == '\u200b' || r == '\u200c' || r == '\u200d' || r == '\u2060'
	}
	trimmedLeft := strings.TrimLeftFunc(text, isBoundary)
	leading = text[:len(text)-len(trimmedLeft)]
	core = strings.TrimRightFunc(trimmedLeft, isBoundary)
	trailing = trimmedLeft[len(core):]
	return leading, core, trailing
}

func cloneParagraphs(in []Paragraph) []Paragraph {
	if in == nil {
		return nil
	}
	out := make([]Paragraph, len(in))
	for i, p := range in {
		out[i] = p
		out[i].Runs = append([]Run(nil), p.Runs...)
	}
	return out
}
