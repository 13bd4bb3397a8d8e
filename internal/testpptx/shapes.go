package testpptx

import (
	"fmt"
	"strings"
)

// Box is a placement in EMUs.
type Box struct {
	X, Y, CX, CY int64
}

func (b Box) xfrm() string {
	return fmt.Sprintf(`<a:xfrm><a:off x="%d" y="%d"/><a:ext cx="%d" cy="%d"/></a:xfrm>`, b.X, b.Y, b.CX, b.CY)
}

// Run returns an a:r element. rPr holds raw attributes for a:rPr, or ""
// for a run without properties.
func Run(text, rPr string) string {
	props := ""
	if rPr != "" {
		props = `<a:rPr ` + rPr + `/>`
	}
	return `<a:r>` + props + `<a:t>` + Escape(text) + `</a:t></a:r>`
}

// Break returns an a:br element.
func Break() string {
	return `<a:br><a:rPr lang="en-US"/></a:br>`
}

// Field returns a slide number field.
func Field(text string) string {
	return `<a:fld id="{B6F15528-21DE-4FAA-801E-634DDDAF4B2B}" type="slidenum"><a:rPr lang="en-US"/><a:t>` + Escape(text) + `</a:t></a:fld>`
}

// Para wraps runs in a paragraph.
func Para(runs ...string) string {
	if len(runs) == 0 {
		return `<a:p><a:endParaRPr lang="en-US"/></a:p>`
	}
	return `<a:p>` + strings.Join(runs, "") + `<a:endParaRPr lang="en-US"/></a:p>`
}

// TextBox returns a p:sp text box.
func TextBox(id int, name string, box Box, paras ...string) string {
	return fmt.Sprintf(`<p:sp><p:nvSpPr><p:cNvPr id="%d" name="%s"/><p:cNvSpPr txBox="1"/><p:nvPr/></p:nvSpPr>`, id, Escape(name)) +
		`<p:spPr>` + box.xfrm() + `<a:prstGeom prst="rect"><a:avLst/></a:prstGeom></p:spPr>` +
		`<p:txBody><a:bodyPr wrap="square"/><a:lstStyle/>` + strings.Join(paras, "") + `</p:txBody></p:sp>`
}

// Placeholder returns a p:sp placeholder with text.
func Placeholder(id int, name, phType string, paras ...string) string {
	return fmt.Sprintf(`<p:sp><p:nvSpPr><p:cNvPr id="%d" name="%s"/><p:cNvSpPr><a:spLocks noGrp="1"/></p:cNvSpPr><p:nvPr><p:ph type="%s"/></p:nvPr></p:nvSpPr><p:spPr/>`, id, Escape(name), phType) +
		`<p:txBody><a:bodyPr/><a:lstStyle/>` + strings.Join(paras, "") + `</p:txBody></p:sp>`
}

// AutoShape returns a p:sp preset shape without text.
func AutoShape(id int, name, preset string, box Box) string {
	return fmt.Sprintf(`<p:sp><p:nvSpPr><p:cNvPr id="%d" name="%s"/><p:cNvSpPr/><p:nvPr/></p:nvSpPr>`, id, Escape(name)) +
		`<p:spPr>` + box.xfrm() + `<a:prstGeom prst="` + preset + `"><a:avLst/></a:prstGeom></p:spPr></p:sp>`
}

// Picture returns a p:pic referencing relID.
func Picture(id int, name, relID string, box Box) string {
	return fmt.Sprintf(`<p:pic><p:nvPicPr><p:cNvPr id="%d" name="%s"/><p:cNvPicPr><a:picLocks noChangeAspect="1"/></p:cNvPicPr><p:nvPr/></p:nvPicPr>`, id, Escape(name)) +
		`<p:blipFill><a:blip r:embed="` + relID + `"/><a:srcRect l="1000" t="2000"/><a:stretch><a:fillRect/></a:stretch></p:blipFill>` +
		`<p:spPr>` + box.xfrm() + `<a:prstGeom prst="rect"><a:avLst/></a:prstGeom></p:spPr></p:pic>`
}

// Table returns a p:graphicFrame table. Rows may be ragged.
func Table(id int, name string, box Box, rows [][]string) string {
	cols := 0
	for _, r := range rows {
		if len(r) > cols {
			cols = len(r)
		}
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, `<p:graphicFrame><p:nvGraphicFramePr><p:cNvPr id="%d" name="%s"/><p:cNvGraphicFramePr><a:graphicFrameLocks noGrp="1"/></p:cNvGraphicFramePr><p:nvPr/></p:nvGraphicFramePr>`, id, Escape(name))
	fmt.Fprintf(&sb, `<p:xfrm><a:off x="%d" y="%d"/><a:ext cx="%d" cy="%d"/></p:xfrm>`, box.X, box.Y, box.CX, box.CY)
	sb.WriteString(`<a:graphic><a:graphicData uri="http://schemas.openxmlformats.org/drawingml/2006/table"><a:tbl><a:tblPr firstRow="1" bandRow="1"/><a:tblGrid>`)
	for c := 0; c < cols; c++ {
		sb.WriteString(`<a:gridCol w="1000000"/>`)
	}
	sb.WriteString(`</a:tblGrid>`)
	for _, r := range rows {
		sb.WriteString(`<a:tr h="370840">`)
		for _, cell := range r {
			sb.WriteString(`<a:tc><a:txBody><a:bodyPr/><a:lstStyle/><a:p>`)
			if cell != "" {
				sb.WriteString(Run(cell, `lang="en-US" sz="1400" b="1"`))
			}
			sb.WriteString(`<a:endParaRPr lang="en-US"/></a:p></a:txBody><a:tcPr/></a:tc>`)
		}
		sb.WriteString(`</a:tr>`)
	}
	sb.WriteString(`</a:tbl></a:graphicData></a:graphic></p:graphicFrame>`)
	return sb.String()
}

// Chart returns a p:graphicFrame chart referencing relID.
func Chart(id int, name, relID string, box Box) string {
	return graphicFrame(id, name, box, "http://schemas.openxmlformats.org/drawingml/2006/chart",
		`<c:chart xmlns:c="http://schemas.openxmlformats.org/drawingml/2006/chart" r:id="`+relID+`"/>`)
}

// SmartArt returns a p:graphicFrame diagram.
func SmartArt(id int, name string, box Box) string {
	return graphicFrame(id, name, box, "http://schemas.openxmlformats.org/drawingml/2006/diagram",
		`<dgm:relIds xmlns:dgm="http://schemas.openxmlformats.org/drawingml/2006/diagram" r:dm="rId90" r:lo="rId91" r:qs="rId92" r:cs="rId93"/>`)
}

// OLEObject returns a graphic frame whose content is not understood.
func OLEObject(id int, name string, box Box) string {
	return graphicFrame(id, name, box, "http://schemas.openxmlformats.org/presentationml/2006/ole",
		`<p:oleObj progId="Package" r:id="rId99"/>`)
}

func graphicFrame(id int, name string, box Box, uri, content string) string {
	return fmt.Sprintf(`<p:graphicFrame><p:nvGraphicFramePr><p:cNvPr id="%d" name="%s"/><p:cNvGraphicFramePr/><p:nvPr/></p:nvGraphicFramePr>`, id, Escape(name)) +
		fmt.Sprintf(`<p:xfrm><a:off x="%d" y="%d"/><a:ext cx="%d" cy="%d"/></p:xfrm>`, box.X, box.Y, box.CX, box.CY) +
		`<a:graphic><a:graphicData uri="` + uri + `">` + content + `</a:graphicData></a:graphic></p:graphicFrame>`
}

// Connector returns a p:cxnSp line.
func Connector(id int, name string, box Box) string {
	return fmt.Sprintf(`<p:cxnSp><p:nvCxnSpPr><p:cNvPr id="%d" name="%s"/><p:cNvCxnSpPr/><p:nvPr/></p:nvCxnSpPr>`, id, Escape(name)) +
		`<p:spPr>` + box.xfrm() + `<a:prstGeom prst="line"><a:avLst/></a:prstGeom></p:spPr></p:cxnSp>`
}

// Group returns a p:grpSp. child is the group's child coordinate box.
func Group(id int, name string, box, child Box, children ...string) string {
	return fmt.Sprintf(`<p:grpSp><p:nvGrpSpPr><p:cNvPr id="%d" name="%s"/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr>`, id, Escape(name)) +
		fmt.Sprintf(`<p:grpSpPr><a:xfrm><a:off x="%d" y="%d"/><a:ext cx="%d" cy="%d"/><a:chOff x="%d" y="%d"/><a:chExt cx="%d" cy="%d"/></a:xfrm></p:grpSpPr>`,
			box.X, box.Y, box.CX, box.CY, child.X, child.Y, child.CX, child.CY) +
		strings.Join(children, "") + `</p:grpSp>`
}

// ContentPart returns an ink content part, a shape element with no
// structured representation.
func ContentPart(relID string) string {
	return `<p:contentPart r:id="` + relID + `"/>`
}
