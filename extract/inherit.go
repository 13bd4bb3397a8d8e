package extract

import (
	"github.com/tsawler/deckform/model"
	"github.com/tsawler/deckform/opc"
	"github.com/tsawler/deckform/pptx"
)

// placeholderSet indexes the placeholder placements of a layout or master.
type placeholderSet struct {
	byIdx  map[string]model.Rect
	byType map[string]model.Rect
	parent string // master of a layout
}

// inheritance resolves placeholder geometry through layouts and masters.
// Parsed parts are cached for the life of one extraction.
type inheritance struct {
	pkg   *opc.Package
	cache map[string]*placeholderSet
}

func newInheritance(pkg *opc.Package) *inheritance {
	return &inheritance{pkg: pkg, cache: make(map[string]*placeholderSet)}
}

// lookup finds the placement a slide placeholder inherits, trying the
// layout first and then its master.
func (h *inheritance) lookup(layoutPart string, ph *pptx.Node) (model.Rect, bool) {
	idx := ph.AttrString("idx")
	typ := placeholderType(ph)
	part := layoutPart
	for depth := 0; part != "" && depth < 2; depth++ {
		set := h.load(part)
		if set == nil {
			return model.Rect{}, false
		}
		if r, ok := set.match(idx, typ); ok {
			return r, true
		}
		part = set.parent
	}
	return model.Rect{}, false
}

func (s *placeholderSet) match(idx, typ string) (model.Rect, bool) {
	if idx != "" {
		if r, ok := s.byIdx[idx]; ok {
			return r, true
		}
	}
	if r, ok := s.byType[typ]; ok {
		return r, true
	}
	// A slide title may sit on a layout's centered title and vice versa.
	switch typ {
	case "title":
		r, ok := s.byType["ctrTitle"]
		return r, ok
	case "ctrTitle":
		r, ok := s.byType["title"]
		return r, ok
	}
	return model.Rect{}, false
}

func (h *inheritance) load(part string) *placeholderSet {
	if set, ok := h.cache[part]; ok {
		return set
	}
	var set *placeholderSet
	defer func() { h.cache[part] = set }()

	data, err := h.pkg.Part(part)
	if err != nil {
		return nil
	}
	tree, err := pptx.ParseTree(data)
	if err != nil {
		return nil
	}
	set = &placeholderSet{byIdx: make(map[string]model.Rect), byType: make(map[string]model.Rect)}
	spTree := tree.Element().Child("cSld").Child("spTree")
	if spTree == nil {
		return set
	}
	for _, el := range spTree.Children {
		ph := placeholderOf(el)
		if ph == nil {
			continue
		}
		tr := pptx.ShapeTransform(el)
		if !tr.Present {
			continue
		}
		if idx := ph.AttrString("idx"); idx != "" {
			if _, dup := set.byIdx[idx]; !dup {
				set.byIdx[idx] = tr.Rect
			}
		}
		if typ := placeholderType(ph); typ != "" {
			if _, dup := set.byType[typ]; !dup {
				set.byType[typ] = tr.Rect
			}
		}
	}

	if rels, err := h.pkg.Rels(part); err == nil {
		if masters := rels.ByType(opc.RelTypeSlideMaster); len(masters) > 0 {
			set.parent = rels.Resolve(masters[0])
		}
	}
	return set
}
