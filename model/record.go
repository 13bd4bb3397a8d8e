package model

// ShapeRecord is the JSON form of a shape handed to the rendering layer.
// Child geometry is relative to the parent group, as in the model.
type ShapeRecord struct {
	ID          string        `json:"id"`
	Type        string        `json:"type"`
	Name        string        `json:"name,omitempty"`
	Left        int64         `json:"left"`
	Top         int64         `json:"top"`
	Width       int64         `json:"width"`
	Height      int64         `json:"height"`
	Rotation    float64       `json:"rotation"`
	ParentGroup string        `json:"parent_group,omitempty"`
	Placeholder string        `json:"placeholder,omitempty"`
	Text        []Paragraph   `json:"text,omitempty"`
	TableData   [][]Cell      `json:"tableData,omitempty"`
	ImageRef    string        `json:"image_ref,omitempty"`
	ImageURL    string        `json:"image_url,omitempty"`
	ChildShapes []ShapeRecord `json:"child_shapes,omitempty"`
}

// SlideRecord groups the records of one slide.
type SlideRecord struct {
	Index  int           `json:"index"`
	Layout string        `json:"layout,omitempty"`
	Notes  string        `json:"notes,omitempty"`
	Shapes []ShapeRecord `json:"shapes"`
}

// Record converts the shape and its children.
func (s *Shape) Record() ShapeRecord {
	rec := ShapeRecord{
		ID:          s.ID,
		Type:        s.Kind.String(),
		Name:        s.Name,
		Left:        s.Geometry.Left,
		Top:         s.Geometry.Top,
		Width:       s.Geometry.Width,
		Height:      s.Geometry.Height,
		Rotation:    s.Rotation,
		ParentGroup: s.ParentID,
		Placeholder: s.Placeholder,
	}
	if s.Text != nil && s.Table == nil {
		rec.Text = s.Text.Paragraphs
		if rec.Text == nil {
			rec.Text = []Paragraph{}
		}
	}
	if s.Table != nil {
		rec.TableData = s.Table.Cells
	}
	if s.Picture != nil {
		if s.Picture.External {
			rec.ImageURL = s.Picture.Override
			rec.ImageRef = s.Picture.Image.Name
		} else {
			rec.ImageRef = s.Picture.Resolve()
		}
	}
	if s.Group != nil {
		rec.ChildShapes = make([]ShapeRecord, 0, len(s.Group.Children))
		for _, c := range s.Group.Children {
			rec.ChildShapes = append(rec.ChildShapes, c.Record())
		}
	}
	return rec
}

// Records converts every slide of the document.
func (d *Document) Records() []SlideRecord {
	out := make([]SlideRecord, 0, len(d.Slides))
	for _, slide := range d.Slides {
		sr := SlideRecord{
			Index:  slide.Index,
			Layout: slide.Layout,
			Notes:  slide.Notes,
			Shapes: make([]ShapeRecord, 0, len(slide.Shapes)),
		}
		for _, s := range slide.Shapes {
			sr.Shapes = append(sr.Shapes, s.Record())
		}
		out = append(out, sr)
	}
	return out
}
