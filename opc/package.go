package opc

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/tsawler/deckform/model"
)

// maxPartSize bounds the decompressed size of a single part.
const maxPartSize = 256 << 20

// Package is a read-only view of a container held in memory.
type Package struct {
	data  []byte
	zr    *zip.Reader
	files map[string]*zip.File
	order []string
}

// OpenBytes parses a container. The data slice is retained and must not be
// modified while the package is in use.
func OpenBytes(data []byte) (*Package, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &model.UnreadableContainerError{Reason: "not a zip archive", Err: err}
	}
	p := &Package{
		data:  data,
		zr:    zr,
		files: make(map[string]*zip.File, len(zr.File)),
		order: make([]string, 0, len(zr.File)),
	}
	for _, f := range zr.File {
		name := normalize(f.Name)
		if _, dup := p.files[name]; dup {
			return nil, &model.UnreadableContainerError{Reason: fmt.Sprintf("duplicate part %s", name)}
		}
		p.files[name] = f
		p.order = append(p.order, name)
	}
	return p, nil
}

// Data returns the original container bytes.
func (p *Package) Data() []byte {
	return p.data
}

// Has reports whether the named part exists.
func (p *Package) Has(name string) bool {
	_, ok := p.files[normalize(name)]
	return ok
}

// Names returns part names in archive order.
func (p *Package) Names() []string {
	return append([]string(nil), p.order...)
}

// Size returns the uncompressed size of a part, or -1 if it is missing.
func (p *Package) Size(name string) int64 {
	f, ok := p.files[normalize(name)]
	if !ok {
		return -1
	}
	return int64(f.UncompressedSize64)
}

// Part returns the decompressed content of a part.
func (p *Package) Part(name string) ([]byte, error) {
	f, ok := p.files[normalize(name)]
	if !ok {
		return nil, fmt.Errorf("part not found: %s", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("opening part %s: %w", name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxPartSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading part %s: %w", name, err)
	}
	if len(data) > maxPartSize {
		return nil, fmt.Errorf("part %s exceeds %d bytes", name, maxPartSize)
	}
	return data, nil
}

// Rels parses the relationships of a source part. The package-level
// relationships use the empty source name. A missing rels part yields an
// empty set.
func (p *Package) Rels(source string) (*Relationships, error) {
	name := RelsPath(source)
	if !p.Has(name) {
		return &Relationships{Source: source}, nil
	}
	data, err := p.Part(name)
	if err != nil {
		return nil, err
	}
	return ParseRelationships(source, data)
}

// ContentTypes parses [Content_Types].xml.
func (p *Package) ContentTypes() (*ContentTypes, error) {
	data, err := p.Part(ContentTypesPart)
	if err != nil {
		return nil, err
	}
	return ParseContentTypes(data)
}

// RelsPath returns the relationships part for a source part, e.g.
// ppt/slides/slide1.xml -> ppt/slides/_rels/slide1.xml.rels.
func RelsPath(source string) string {
	source = normalize(source)
	if source == "" {
		return "_rels/.rels"
	}
	dir, file := path.Split(source)
	return dir + "_rels/" + file + ".rels"
}

// ResolveTarget resolves a relationship target against its source part.
func ResolveTarget(source, target string) string {
	if strings.HasPrefix(target, "/") {
		return normalize(target)
	}
	return normalize(path.Join(path.Dir(normalize(source)), target))
}

// RelativeTarget is the inverse of ResolveTarget: it expresses part as a
// target relative to source.
func RelativeTarget(source, part string) string {
	from := strings.Split(path.Dir(normalize(source)), "/")
	to := strings.Split(normalize(part), "/")
	if from[0] == "." {
		from = nil
	}
	i := 0
	for i < len(from) && i < len(to)-1 && from[i] == to[i] {
		i++
	}
	var sb strings.Builder
	for j := i; j < len(from); j++ {
		sb.WriteString("../")
	}
	sb.WriteString(strings.Join(to[i:], "/"))
	return sb.String()
}

func normalize(name string) string {
	return strings.TrimPrefix(path.Clean("/"+name), "/")
}
