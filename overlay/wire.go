package overlay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tsawler/deckform/model"
)

// The bulk change form exchanged with editors maps shape ids to payloads:
//
//	{"slide_0_shape_1": {"txt": [ {paragraph}, ... ]},
//	 "slide_0_shape_2": {"type": "table", "rows": 2, "cols": 3,
//	                     "changes": {"row0_col1": {"row": 0, "col": 1, "text": "x"}}}}
//
// A shape carrying both text and table edits nests the table payload under
// "table". "txt" may also be a plain string, one paragraph per line. A run's
// "boundary" is either the opaque token produced at extraction or, from
// older editors, an object {"leading", "trailing"}; the latter makes the
// text edit positional.

type wirePayload struct {
	Txt     json.RawMessage     `json:"txt,omitempty"`
	Type    string              `json:"type,omitempty"`
	Rows    int                 `json:"rows,omitempty"`
	Cols    int                 `json:"cols,omitempty"`
	Changes map[string]CellEdit `json:"changes,omitempty"`
	Table   *wirePayload        `json:"table,omitempty"`
	Image   *ImageEdit          `json:"image,omitempty"`
}

type wireParagraph struct {
	Runs      []wireRun    `json:"runs"`
	Level     int          `json:"level,omitempty"`
	Alignment string       `json:"alignment,omitempty"`
	Defaults  model.Format `json:"defaults"`
}

type wireRun struct {
	Text     string          `json:"text"`
	Kind     model.RunKind   `json:"kind,omitempty"`
	Format   model.Format    `json:"format"`
	Boundary json.RawMessage `json:"boundary,omitempty"`
}

type legacyBoundary struct {
	Leading  string `json:"leading"`
	Trailing string `json:"trailing"`
}

// DecodeChanges parses a bulk change payload. Entries that cannot be
// understood are skipped and reported as *model.MalformedOverlayError; a
// payload that is not a JSON object fails as a whole.
func DecodeChanges(data []byte) ([]Overlay, []error, error) {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, nil, fmt.Errorf("decoding changes: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var (
		out  []Overlay
		errs []error
	)
	for _, id := range ids {
		overlays, err := decodeEntry(id, entries[id])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, overlays...)
	}
	return out, errs, nil
}

func decodeEntry(id string, raw json.RawMessage) ([]Overlay, error) {
	malformed := func(kind, format string, args ...any) error {
		return &model.MalformedOverlayError{ShapeID: id, Kind: kind, Reason: fmt.Sprintf(format, args...)}
	}

	var p wirePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, malformed("", "%v", err)
	}

	var out []Overlay
	if len(p.Txt) > 0 && !bytes.Equal(bytes.TrimSpace(p.Txt), []byte("null")) {
		te, err := decodeText(p.Txt)
		if err != nil {
			return nil, malformed(string(KindText), "%v", err)
		}
		out = append(out, Overlay{ShapeID: id, Kind: KindText, Text: te})
	}

	table := p.Table
	if p.Type == "table" {
		table = &p
	}
	if table != nil {
		if table.Type != "table" || table.Changes == nil {
			return nil, malformed(string(KindTable), "table payload without changes")
		}
		te := &TableEdit{Rows: table.Rows, Cols: table.Cols, Cells: table.Changes}
		out = append(out, Overlay{ShapeID: id, Kind: KindTable, Table: te})
	}

	if p.Image != nil {
		out = append(out, Overlay{ShapeID: id, Kind: KindImage, Image: p.Image})
	}

	if len(out) == 0 {
		return nil, malformed("", "unrecognized payload")
	}
	return out, nil
}

func decodeText(raw json.RawMessage) (*TextEdit, error) {
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		lines := strings.Split(plain, "\n")
		paras := make([]model.Paragraph, len(lines))
		for i, line := range lines {
			paras[i].Runs = softBreakRuns(line)
		}
		return &TextEdit{Paragraphs: paras}, nil
	}

	var wire []wireParagraph
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, err
	}
	te := &TextEdit{Paragraphs: make([]model.Paragraph, len(wire))}
	for i, wp := range wire {
		p := model.Paragraph{Level: wp.Level, Alignment: wp.Alignment, Defaults: wp.Defaults, Runs: make([]model.Run, len(wp.Runs))}
		for j, wr := range wp.Runs {
			run := model.Run{Text: wr.Text, Kind: wr.Kind, Format: wr.Format}
			legacy, err := decodeBoundary(wr.Boundary, &run.Boundary)
			if err != nil {
				return nil, fmt.Errorf("paragraph %d run %d: %w", i, j, err)
			}
			if legacy {
				te.Positional = true
			}
			p.Runs[j] = run
		}
		te.Paragraphs[i] = p
	}
	return te, nil
}

// softBreakRuns splits a line at vertical tabs, the soft line break of
// plain text, into text runs separated by break runs.
func softBreakRuns(line string) []model.Run {
	runs := []model.Run{}
	for k, seg := range strings.Split(line, "\v") {
		if k > 0 {
			runs = append(runs, model.Run{Text: "\n", Kind: model.RunBreak})
		}
		if seg != "" {
			runs = append(runs, model.Run{Text: seg})
		}
	}
	return runs
}

// decodeBoundary fills b from a token string or a legacy object and
// reports whether the legacy form was used.
func decodeBoundary(raw json.RawMessage, b *model.Boundary) (bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return false, nil
	}
	if raw[0] == '{' {
		var lb legacyBoundary
		if err := json.Unmarshal(raw, &lb); err != nil {
			return false, err
		}
		*b = model.Boundary{Leading: lb.Leading, Trailing: lb.Trailing}
		return true, nil
	}
	return false, json.Unmarshal(raw, b)
}

// EncodeChanges renders the text and table overlays in the bulk form.
// Image overlays are exchanged through EncodeImageChanges.
func EncodeChanges(overlays []Overlay) ([]byte, error) {
	out := make(map[string]map[string]any)
	for id, set := range Group(overlays) {
		var table map[string]any
		if set.Table != nil {
			table = map[string]any{
				"type":    "table",
				"changes": set.Table.Table.Cells,
				"rows":    set.Table.Table.Rows,
				"cols":    set.Table.Table.Cols,
			}
		}
		switch {
		case set.Text != nil:
			entry := map[string]any{"txt": set.Text.Text.Paragraphs}
			if table != nil {
				entry["table"] = table
			}
			out[id] = entry
		case table != nil:
			out[id] = table
		}
	}
	return json.Marshal(out)
}

// DecodeImageChanges parses a shape id -> image payload map.
func DecodeImageChanges(data []byte) ([]Overlay, error) {
	var entries map[string]ImageEdit
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decoding image changes: %w", err)
	}
	out := make([]Overlay, 0, len(entries))
	for id, ie := range entries {
		out = append(out, Overlay{ShapeID: id, Kind: KindImage, Image: &ie})
	}
	Sort(out)
	return out, nil
}

// EncodeImageChanges renders image overlays as a shape id -> payload map.
func EncodeImageChanges(overlays []Overlay) ([]byte, error) {
	out := make(map[string]ImageEdit)
	for _, o := range overlays {
		if o.Kind == KindImage && o.Image != nil {
			out[o.ShapeID] = *o.Image
		}
	}
	return json.Marshal(out)
}
