package pptx

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Node is an element of a parsed part. Offsets index the part's bytes so
// that edits can splice the original text instead of re-serializing it.
type Node struct {
	Space  string // namespace URL
	Local  string
	Prefix string // prefix as written in the source, possibly empty
	Attr   []xml.Attr

	Parent   *Node
	Children []*Node
	Index    int // position among siblings with the same local name

	Start       int // offset of '<' of the start tag
	InnerStart  int // offset just past the start tag
	InnerEnd    int // offset of the end tag ('<' of "</")
	End         int // offset just past the end tag
	SelfClosing bool

	text strings.Builder
}

// Tree is a parsed part.
type Tree struct {
	Data []byte
	Root *Node // document node; its children are the top-level elements
}

// ParseTree parses XML data into a tree with byte offsets.
func ParseTree(data []byte) (*Tree, error) {
	base := 0
	if bytes.HasPrefix(data, utf8BOM) {
		base = len(utf8BOM)
	}
	dec := xml.NewDecoder(bytes.NewReader(data[base:]))
	root := &Node{Local: "#document", End: len(data), InnerEnd: len(data)}
	stack := []*Node{root}

	for {
		before := base + int(dec.InputOffset())
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing xml at offset %d: %w", before, err)
		}
		after := base + int(dec.InputOffset())

		switch t := tok.(type) {
		case xml.StartElement:
			parent := stack[len(stack)-1]
			n := &Node{
				Space:      t.Name.Space,
				Local:      t.Name.Local,
				Prefix:     rawPrefix(data[before:after]),
				Attr:       append([]xml.Attr(nil), t.Attr...),
				Parent:     parent,
				Start:      before,
				InnerStart: after,
			}
			for _, sib := range parent.Children {
				if sib.Local == n.Local {
					n.Index++
				}
			}
			parent.Children = append(parent.Children, n)
			stack = append(stack, n)

		case xml.EndElement:
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			n.End = after
			if after == before {
				n.SelfClosing = true
				n.InnerEnd = n.InnerStart
			} else {
				n.InnerEnd = before
			}

		case xml.CharData:
			if len(stack) > 1 {
				stack[len(stack)-1].text.Write(t)
			}
		}
	}
	if len(stack) != 1 {
		return nil, fmt.Errorf("parsing xml: unclosed element %s", stack[len(stack)-1].Local)
	}
	return &Tree{Data: data, Root: root}, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// rawPrefix returns the prefix of a start tag as written.
func rawPrefix(tag []byte) string {
	if len(tag) < 2 || tag[0] != '<' {
		return ""
	}
	end := bytes.IndexAny(tag[1:], " \t\r\n/>")
	if end < 0 {
		return ""
	}
	name := tag[1 : 1+end]
	if i := bytes.IndexByte(name, ':'); i >= 0 {
		return string(name[:i])
	}
	return ""
}

// Element returns the document element.
func (t *Tree) Element() *Node {
	if len(t.Root.Children) == 0 {
		return nil
	}
	return t.Root.Children[0]
}

// Raw returns the source bytes of n, tags included.
func (t *Tree) Raw(n *Node) []byte {
	return t.Data[n.Start:n.End]
}

// StartTag returns the source bytes of n's start tag.
func (t *Tree) StartTag(n *Node) []byte {
	return t.Data[n.Start:n.InnerStart]
}

// Text returns the character data directly inside the element.
func (n *Node) Text() string {
	if n == nil {
		return ""
	}
	return n.text.String()
}

// QName returns the element name as written, e.g. "a:r".
func (n *Node) QName() string {
	if n.Prefix == "" {
		return n.Local
	}
	return n.Prefix + ":" + n.Local
}

// Is reports whether the node has the given namespace and local name.
func (n *Node) Is(space, local string) bool {
	return n != nil && n.Local == local && n.Space == space
}

// AttrValue returns the value of an unqualified attribute.
func (n *Node) AttrValue(local string) (string, bool) {
	return n.AttrNS("", local)
}

// AttrNS returns the value of a namespaced attribute.
func (n *Node) AttrNS(space, local string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Name.Local == local && a.Name.Space == space {
			return a.Value, true
		}
	}
	return "", false
}

// AttrString returns an unqualified attribute, or "".
func (n *Node) AttrString(local string) string {
	v, _ := n.AttrValue(local)
	return v
}

// AttrInt returns an unqualified integer attribute.
func (n *Node) AttrInt(local string) (int64, bool) {
	v, ok := n.AttrValue(local)
	if !ok {
		return 0, false
	}
	i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, false
	}
	return i, true
}

// AttrBool returns an unqualified xsd:boolean attribute.
func (n *Node) AttrBool(local string) (bool, bool) {
	v, ok := n.AttrValue(local)
	if !ok {
		return false, false
	}
	switch strings.TrimSpace(v) {
	case "1", "true":
		return true, true
	case "0", "false":
		return false, true
	}
	return false, false
}

// Child returns the first child element with the given local name.
func (n *Node) Child(local string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Local == local {
			return c
		}
	}
	return nil
}

// ChildrenNamed returns the child elements with the given local name.
func (n *Node) ChildrenNamed(local string) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.Children {
		if c.Local == local {
			out = append(out, c)
		}
	}
	return out
}

// Descendant returns the first descendant, depth-first, with the given
// local name.
func (n *Node) Descendant(local string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Local == local {
			return c
		}
		if d := c.Descendant(local); d != nil {
			return d
		}
	}
	return nil
}

// Walk visits n's descendants depth-first. Returning false from fn skips
// the node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	for _, c := range n.Children {
		if fn(c) {
			c.Walk(fn)
		}
	}
}

// Path returns the locator of n relative to base: local names with
// same-name sibling indexes, e.g. "spTree/sp[2]/txBody/p[0]/r[1]". A
// leading "[0]" is omitted.
func (n *Node) Path(base *Node) string {
	var segs []string
	for cur := n; cur != nil && cur != base; cur = cur.Parent {
		segs = append(segs, cur.Local+"["+strconv.Itoa(cur.Index)+"]")
	}
	for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
		segs[i], segs[j] = segs[j], segs[i]
	}
	if len(segs) > 0 {
		segs[0] = strings.TrimSuffix(segs[0], "[0]")
	}
	return strings.Join(segs, "/")
}

// Find resolves a locator produced by Path against n. A segment without
// an index selects the first element of that name.
func (n *Node) Find(locator string) *Node {
	if locator == "" {
		return nil
	}
	cur := n
	for _, seg := range strings.Split(locator, "/") {
		name, idx, ok := parseSegment(seg)
		if !ok {
			return nil
		}
		var next *Node
		for _, c := range cur.Children {
			if c.Local == name && c.Index == idx {
				next = c
				break
			}
		}
		if next == nil {
			return nil
		}
		cur = next
	}
	return cur
}

func parseSegment(seg string) (string, int, bool) {
	open := strings.IndexByte(seg, '[')
	if open < 0 {
		return seg, 0, seg != ""
	}
	if !strings.HasSuffix(seg, "]") || open == 0 {
		return "", 0, false
	}
	idx, err := strconv.Atoi(seg[open+1 : len(seg)-1])
	if err != nil || idx < 0 {
		return "", 0, false
	}
	return seg[:open], idx, true
}
