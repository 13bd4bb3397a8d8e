package opc

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path"
)

// Writer records a mutation plan against a package. Nothing is written
// until Bytes is called; the source package is never modified.
type Writer struct {
	pkg      *Package
	replaced map[string][]byte
	added    map[string][]byte
	addOrder []string
}

// NewWriter starts an empty plan against pkg.
func NewWriter(pkg *Package) *Writer {
	return &Writer{
		pkg:      pkg,
		replaced: make(map[string][]byte),
		added:    make(map[string][]byte),
	}
}

// Changed reports whether the plan holds any mutation.
func (w *Writer) Changed() bool {
	return len(w.replaced) > 0 || len(w.added) > 0
}

// Has reports whether the part exists in the source or was added.
func (w *Writer) Has(name string) bool {
	name = normalize(name)
	_, added := w.added[name]
	return added || w.pkg.Has(name)
}

// Part returns the current content of a part, reflecting earlier
// replacements in this plan.
func (w *Writer) Part(name string) ([]byte, error) {
	name = normalize(name)
	if data, ok := w.replaced[name]; ok {
		return data, nil
	}
	if data, ok := w.added[name]; ok {
		return data, nil
	}
	return w.pkg.Part(name)
}

// Replace sets new content for an existing part.
func (w *Writer) Replace(name string, data []byte) error {
	name = normalize(name)
	if _, ok := w.added[name]; ok {
		w.added[name] = data
		return nil
	}
	if !w.pkg.Has(name) {
		return fmt.Errorf("cannot replace missing part %s", name)
	}
	w.replaced[name] = data
	return nil
}

// Add creates a new part. Existing parts are never overwritten.
func (w *Writer) Add(name string, data []byte) error {
	name = normalize(name)
	if w.Has(name) {
		return fmt.Errorf("part %s already exists", name)
	}
	w.added[name] = data
	w.addOrder = append(w.addOrder, name)
	return nil
}

// UniqueName returns a part name in dir derived from base that is not used
// by the source or the plan.
func (w *Writer) UniqueName(dir, stem, ext string) string {
	candidate := path.Join(dir, stem+ext)
	for i := 1; w.Has(candidate); i++ {
		candidate = path.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
	}
	return candidate
}

// AddRelationship appends a relationship to source's rels part, creating
// the part if needed, and returns the new relationship id.
func (w *Writer) AddRelationship(source, relType, target string) (string, error) {
	return w.addRelationship(source, Relationship{Type: relType, Target: target})
}

// AddExternalRelationship is AddRelationship for a target outside the
// package, such as a URL.
func (w *Writer) AddExternalRelationship(source, relType, target string) (string, error) {
	return w.addRelationship(source, Relationship{Type: relType, Target: target, External: true})
}

func (w *Writer) addRelationship(source string, rel Relationship) (string, error) {
	relsName := RelsPath(source)
	if !w.Has(relsName) {
		rel.ID = "rId1"
		return rel.ID, w.Add(relsName, NewRelationshipsPart(rel))
	}
	data, err := w.Part(relsName)
	if err != nil {
		return "", err
	}
	rels, err := ParseRelationships(source, data)
	if err != nil {
		return "", err
	}
	rel.ID = rels.NextID()
	updated, err := InsertRelationship(data, rel)
	if err != nil {
		return "", fmt.Errorf("updating %s: %w", relsName, err)
	}
	return rel.ID, w.Replace(relsName, updated)
}

// EnsureDefault declares a default content type for ext unless one exists.
func (w *Writer) EnsureDefault(ext, contentType string) error {
	data, err := w.Part(ContentTypesPart)
	if err != nil {
		return err
	}
	ct, err := ParseContentTypes(data)
	if err != nil {
		return err
	}
	if ct.HasDefault(ext) {
		return nil
	}
	updated, err := InsertDefault(data, ext, contentType)
	if err != nil {
		return fmt.Errorf("updating content types: %w", err)
	}
	return w.Replace(ContentTypesPart, updated)
}

// Bytes serializes the plan into a fresh buffer. With no mutations the
// original bytes are returned unchanged. Parts that were not replaced are
// copied without recompression.
func (w *Writer) Bytes() ([]byte, error) {
	if !w.Changed() {
		return append([]byte(nil), w.pkg.data...), nil
	}

	var buf bytes.Buffer
	buf.Grow(len(w.pkg.data))
	zw := zip.NewWriter(&buf)
	if w.pkg.zr.Comment != "" {
		if err := zw.SetComment(w.pkg.zr.Comment); err != nil {
			return nil, err
		}
	}

	for _, f := range w.pkg.zr.File {
		data, ok := w.replaced[normalize(f.Name)]
		if !ok {
			if err := zw.Copy(f); err != nil {
				return nil, fmt.Errorf("copying part %s: %w", f.Name, err)
			}
			continue
		}
		fh := &zip.FileHeader{
			Name:         f.Name,
			Comment:      f.Comment,
			Method:       f.Method,
			Modified:     f.Modified,
			// legacy MS-DOS fields, used when the entry has no extended timestamp
			ModifiedTime: f.ModifiedTime,
			ModifiedDate: f.ModifiedDate,
		}
		if err := writeEntry(zw, fh, data); err != nil {
			return nil, err
		}
	}

	for _, name := range w.addOrder {
		fh := &zip.FileHeader{Name: name, Method: zip.Deflate}
		if err := writeEntry(zw, fh, w.added[name]); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing container: %w", err)
	}
	return buf.Bytes(), nil
}

func writeEntry(zw *zip.Writer, fh *zip.FileHeader, data []byte) error {
	ew, err := zw.CreateHeader(fh)
	if err != nil {
		return fmt.Errorf("creating part %s: %w", fh.Name, err)
	}
	if _, err := ew.Write(data); err != nil {
		return fmt.Errorf("writing part %s: %w", fh.Name, err)
	}
	return nil
}
