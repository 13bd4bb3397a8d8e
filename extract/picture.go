package extract

import (
	"bytes"
	"path"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/tsawler/deckform/model"
	"github.com/tsawler/deckform/pptx"
)

// picture resolves the blip of a picture shape to its media part.
func (e *extractor) picture(sc *slideContext, s *model.Shape, el *pptx.Node) error {
	blip := Blip(el)
	pic := &model.Picture{}

	embed, _ := blip.AttrNS(pptx.NsRelationships, "embed")
	link, _ := blip.AttrNS(pptx.NsRelationships, "link")
	relID := embed
	if relID == "" {
		relID = link
	}
	if relID == "" {
		return &model.UnsupportedPartError{Part: sc.part.Part, Reason: "picture has no image reference"}
	}

	rel, ok := sc.part.Rels.ByID(relID)
	if !ok {
		return &model.UnsupportedPartError{Part: sc.part.Part, Reason: "image relationship " + relID + " not found"}
	}
	pic.Image.RelID = relID

	if rel.External || embed == "" {
		// Linked images live outside the container.
		pic.Image.Name = path.Base(rel.Target)
	} else {
		part := sc.part.Rels.Resolve(rel)
		if !e.pkg.Has(part) {
			return &model.UnsupportedPartError{Part: part, Reason: "image part missing"}
		}
		pic.Image.Name = path.Base(part)
		pic.Image.Part = part
		pic.Image.Size = e.pkg.Size(part)
		if e.types != nil {
			pic.Image.ContentType = e.types.ContentType(part)
		}
	}

	if src := blip.Parent.Child("srcRect"); src != nil {
		crop := &model.Crop{}
		l, _ := src.AttrInt("l")
		t, _ := src.AttrInt("t")
		r, _ := src.AttrInt("r")
		b, _ := src.AttrInt("b")
		crop.Left, crop.Top, crop.Right, crop.Bottom = int(l), int(t), int(r), int(b)
		if *crop != (model.Crop{}) {
			pic.Crop = crop
		}
	}

	s.Picture = pic
	if e.opts.RecognizePictureText && e.opts.Recognizer != nil && pic.Image.Part != "" {
		e.recognize(s)
	}
	return nil
}

// recognize fills RecognizedText. Failure is a warning, never a downgrade.
func (e *extractor) recognize(s *model.Shape) {
	data, err := e.pkg.Part(s.Picture.Image.Part)
	if err == nil {
		var text string
		text, err = e.opts.Recognizer.RecognizeImage(data)
		if err == nil {
			s.Picture.RecognizedText = text
			return
		}
	}
	e.warn(model.Warning{
		Code:    model.WarnRecognitionFailed,
		ShapeID: s.ID,
		Message: "picture text recognition failed: " + err.Error(),
		Err:     err,
	})
}

// chartType names the plot of a chart, e.g. "barChart". Charts stay
// opaque, so a part that cannot be read only leaves the detail empty.
func (e *extractor) chartType(sc *slideContext, el *pptx.Node) string {
	ref := el.Child("graphic").Child("graphicData").Child("chart")
	if ref == nil {
		return ""
	}
	var relID string
	for _, a := range ref.Attr {
		if a.Name.Local == "id" && a.Name.Space != "" {
			relID = a.Value
		}
	}
	rel, ok := sc.part.Rels.ByID(relID)
	if !ok || rel.External {
		return ""
	}
	part := sc.part.Rels.Resolve(rel)
	data, err := e.pkg.Part(part)
	if err != nil {
		e.log.Debug("chart part unreadable", "part", part, "error", err)
		return ""
	}
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		e.log.Debug("chart part unparsable", "part", part, "error", err)
		return ""
	}
	var kinds []string
	for _, n := range xmlquery.Find(doc, "//*[local-name()='plotArea']/*") {
		if strings.HasSuffix(n.Data, "Chart") {
			kinds = append(kinds, n.Data)
		}
	}
	return strings.Join(kinds, "+")
}
