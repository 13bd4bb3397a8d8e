package reconcile

import (
	"fmt"
	"path"
	"strings"

	"github.com/tsawler/deckform/extract"
	"github.com/tsawler/deckform/model"
	"github.com/tsawler/deckform/opc"
	"github.com/tsawler/deckform/overlay"
	"github.com/tsawler/deckform/pptx"
)

// assetError marks an image overlay whose asset could not be used.
type assetError struct {
	name string
	err  error
}

func (e *assetError) Error() string {
	return fmt.Sprintf("asset %s: %v", e.name, e.err)
}

func (e *assetError) Unwrap() error {
	return e.err
}

// writeImage points a picture's blip at the overlay's image. The original
// media part is left alone, since other pictures may share it: an upload
// becomes a new media part with its own relationship, and a URL becomes
// an external link. Placement and cropping are untouched.
func (m *materializer) writeImage(tree *pptx.SlideTree, el *pptx.Node, s *model.Shape, ie *overlay.ImageEdit) (*pptx.Splicer, error) {
	blip := extract.Blip(el)
	if blip == nil {
		return nil, drift(s, tree.Part, s.Locator)
	}
	embed, _ := blip.AttrNS(pptx.NsRelationships, "embed")
	link, _ := blip.AttrNS(pptx.NsRelationships, "link")
	current := embed
	if current == "" {
		current = link
	}
	if current != s.Picture.Image.RelID {
		return nil, drift(s, tree.Part, s.Locator)
	}

	tag := tree.StartTag(blip)
	prefix := "r"
	for _, local := range []string{"embed", "link"} {
		if name, ok := pptx.AttrQName(tag, local); ok {
			if i := strings.IndexByte(name, ':'); i >= 0 {
				prefix = name[:i]
			}
			break
		}
	}

	var changes []pptx.AttrChange
	if ie.ImageURL != "" {
		id, err := m.externalRel(tree.Part, ie.ImageURL)
		if err != nil {
			return nil, err
		}
		changes = []pptx.AttrChange{
			{Name: prefix + ":embed", Remove: true},
			{Name: prefix + ":link", Value: id},
		}
	} else {
		id, err := m.mediaRel(tree.Part, ie.ImageRef)
		if err != nil {
			return nil, err
		}
		changes = []pptx.AttrChange{
			{Name: prefix + ":embed", Value: id},
			{Name: prefix + ":link", Remove: true},
		}
	}

	out, err := pptx.RewriteStartTag(tag, changes)
	if err != nil {
		return nil, err
	}
	var sp pptx.Splicer
	sp.Replace(blip.Start, blip.InnerStart, out)
	return &sp, nil
}

// mediaRel adds the asset as a media part once per export and relates it
// to part once per slide.
func (m *materializer) mediaRel(part, name string) (string, error) {
	media, ok := m.media[name]
	if !ok {
		if m.assets == nil {
			return "", &assetError{name: name, err: fmt.Errorf("no asset store configured")}
		}
		ext := strings.ToLower(path.Ext(name))
		contentType := opc.MediaContentType(ext)
		if contentType == "" {
			return "", &assetError{name: name, err: fmt.Errorf("unsupported image type %q", ext)}
		}
		data, err := m.assets.ReadAsset(name)
		if err != nil {
			return "", &assetError{name: name, err: err}
		}

		media = m.w.UniqueName("ppt/media", strings.TrimSuffix(name, path.Ext(name)), ext)
		if err := m.w.Add(media, data); err != nil {
			return "", err
		}
		if err := m.w.EnsureDefault(ext, contentType); err != nil {
			return "", err
		}
		m.media[name] = media
	}

	key := part + "\x00" + media
	if id, ok := m.rels[key]; ok {
		return id, nil
	}
	id, err := m.w.AddRelationship(part, opc.RelTypeImage, opc.RelativeTarget(part, media))
	if err != nil {
		return "", err
	}
	m.rels[key] = id
	return id, nil
}

func (m *materializer) externalRel(part, url string) (string, error) {
	key := part + "\x00" + url
	if id, ok := m.rels[key]; ok {
		return id, nil
	}
	id, err := m.w.AddExternalRelationship(part, opc.RelTypeImage, url)
	if err != nil {
		return "", err
	}
	m.rels[key] = id
	return id, nil
}
