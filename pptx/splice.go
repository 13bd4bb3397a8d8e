package pptx

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// Edit replaces Data[Start:End] with Text. Start == End inserts.
type Edit struct {
	Start, End int
	Text       []byte
	seq        int
}

// Splicer collects byte-range edits against one part.
type Splicer struct {
	edits []Edit
}

// Replace schedules a replacement of data[start:end].
func (s *Splicer) Replace(start, end int, text []byte) {
	s.edits = append(s.edits, Edit{Start: start, End: end, Text: text, seq: len(s.edits)})
}

// Insert schedules an insertion at offset at.
func (s *Splicer) Insert(at int, text []byte) {
	s.Replace(at, at, text)
}

// Merge schedules every edit of o after the edits already held.
func (s *Splicer) Merge(o *Splicer) {
	for _, e := range o.edits {
		s.Replace(e.Start, e.End, e.Text)
	}
}

// Len returns the number of scheduled edits.
func (s *Splicer) Len() int {
	return len(s.edits)
}

// Apply returns data with every edit applied. Bytes outside the edited
// ranges are preserved exactly. Overlapping edits are an error.
func (s *Splicer) Apply(data []byte) ([]byte, error) {
	if len(s.edits) == 0 {
		return data, nil
	}
	edits := append([]Edit(nil), s.edits...)
	sort.SliceStable(edits, func(i, j int) bool {
		if edits[i].Start != edits[j].Start {
			return edits[i].Start < edits[j].Start
		}
		if edits[i].End != edits[j].End {
			return edits[i].End < edits[j].End
		}
		return edits[i].seq < edits[j].seq
	})

	var out bytes.Buffer
	out.Grow(len(data))
	pos := 0
	for _, e := range edits {
		if e.Start < pos || e.End < e.Start || e.End > len(data) {
			return nil, fmt.Errorf("edit [%d,%d) overlaps a previous edit or is out of range", e.Start, e.End)
		}
		out.Write(data[pos:e.Start])
		out.Write(e.Text)
		pos = e.End
	}
	out.Write(data[pos:])
	return out.Bytes(), nil
}

// attrSpan locates one attribute inside a start tag.
type attrSpan struct {
	name             string
	start, end       int // whole attribute, name through closing quote
	valStart, valEnd int
}

// scanAttrs returns the attributes of a start tag in source order and the
// offset where new attributes may be inserted (before "/>" or ">").
func scanAttrs(tag []byte) ([]attrSpan, int, error) {
	i := 1
	for i < len(tag) && !isSpace(tag[i]) && tag[i] != '/' && tag[i] != '>' {
		i++
	}
	var spans []attrSpan
	for {
		for i < len(tag) && isSpace(tag[i]) {
			i++
		}
		if i >= len(tag) {
			return nil, 0, fmt.Errorf("unterminated start tag")
		}
		if tag[i] == '/' || tag[i] == '>' {
			insert := i
			for insert > 0 && isSpace(tag[insert-1]) {
				insert--
			}
			return spans, insert, nil
		}
		start := i
		for i < len(tag) && tag[i] != '=' && !isSpace(tag[i]) {
			i++
		}
		name := string(tag[start:i])
		for i < len(tag) && (isSpace(tag[i]) || tag[i] == '=') {
			i++
		}
		if i >= len(tag) || (tag[i] != '"' && tag[i] != '\'') {
			return nil, 0, fmt.Errorf("malformed attribute %q", name)
		}
		quote := tag[i]
		valStart := i + 1
		end := bytes.IndexByte(tag[valStart:], quote)
		if end < 0 {
			return nil, 0, fmt.Errorf("unterminated attribute %q", name)
		}
		valEnd := valStart + end
		i = valEnd + 1
		spans = append(spans, attrSpan{name: name, start: start, end: i, valStart: valStart, valEnd: valEnd})
	}
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

// AttrQName returns the attribute name as written in a start tag for the
// given local name, e.g. "r:embed" for "embed".
func AttrQName(tag []byte, local string) (string, bool) {
	spans, _, err := scanAttrs(tag)
	if err != nil {
		return "", false
	}
	for _, sp := range spans {
		name := sp.name
		if i := strings.IndexByte(name, ':'); i >= 0 {
			name = name[i+1:]
		}
		if name == local {
			return sp.name, true
		}
	}
	return "", false
}

// AttrChange sets (Remove false) or removes an attribute by its written
// name, e.g. "b" or "r:embed".
type AttrChange struct {
	Name   string
	Value  string
	Remove bool
}

// RewriteStartTag applies attribute changes to a start tag, keeping every
// other byte of the tag. New attributes are appended in change order.
func RewriteStartTag(tag []byte, changes []AttrChange) ([]byte, error) {
	spans, insertAt, err := scanAttrs(tag)
	if err != nil {
		return nil, err
	}
	var s Splicer
	for _, ch := range changes {
		found := false
		for _, sp := range spans {
			if sp.name != ch.Name {
				continue
			}
			found = true
			if ch.Remove {
				start := sp.start
				for start > 0 && isSpace(tag[start-1]) {
					start--
				}
				s.Replace(start, sp.end, nil)
			} else {
				s.Replace(sp.valStart, sp.valEnd, []byte(EscapeAttr(ch.Value)))
			}
			break
		}
		if !found && !ch.Remove {
			s.Insert(insertAt, []byte(" "+ch.Name+`="`+EscapeAttr(ch.Value)+`"`))
		}
	}
	return s.Apply(tag)
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "\n", "&#10;", "\t", "&#9;")
)

// EscapeText escapes element content.
func EscapeText(s string) string {
	return textEscaper.Replace(s)
}

// EscapeAttr escapes a double-quoted attribute value.
func EscapeAttr(s string) string {
	return attrEscaper.Replace(s)
}
