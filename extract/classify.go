package extract

import (
	"strings"

	"github.com/tsawler/deckform/model"
	"github.com/tsawler/deckform/pptx"
)

// graphicData URIs.
const (
	uriTable    = "http://schemas.openxmlformats.org/drawingml/2006/table"
	uriChart    = "http://schemas.openxmlformats.org/drawingml/2006/chart"
	uriDiagram  = "http://schemas.openxmlformats.org/drawingml/2006/diagram"
	uriChartEx  = "http://schemas.microsoft.com/office/drawing/2014/chartex"
	defaultType = "obj"
)

// linePresets are preset geometries that draw a line.
var linePresets = map[string]bool{
	"line":               true,
	"lineInv":            true,
	"straightConnector1": true,
	"bentConnector2":     true,
	"bentConnector3":     true,
	"curvedConnector3":   true,
}

// Classify decides a shape element's kind. The checks run in a fixed
// order and the first match wins, so every element gets exactly one kind:
// picture, group, table, chart, SmartArt, text-bearing shape, line,
// autoshape, and finally unknown.
func Classify(el *pptx.Node) model.Kind {
	if el == nil {
		return model.KindUnknown
	}
	if Blip(el) != nil {
		return model.KindPicture
	}
	if el.Local == "grpSp" {
		return model.KindGroup
	}

	uri := graphicURI(el)
	switch {
	case uri == uriTable:
		return model.KindTable
	case uri == uriChart || uri == uriChartEx || strings.HasSuffix(uri, "/chart"):
		return model.KindChart
	case uri == uriDiagram:
		return model.KindSmartArt
	}

	if el.Local == "sp" && el.Child("txBody") != nil {
		switch {
		case placeholderOf(el) != nil:
			return model.KindPlaceholder
		case isTextBox(el):
			return model.KindTextContainer
		default:
			return model.KindAutoShape
		}
	}

	if el.Local == "cxnSp" || (el.Local == "sp" && linePresets[presetOf(el)]) {
		return model.KindLine
	}
	if el.Local == "sp" {
		return model.KindAutoShape
	}
	return model.KindUnknown
}

// Blip returns the a:blip of a picture, or of a shape filled with one.
func Blip(el *pptx.Node) *pptx.Node {
	switch el.Local {
	case "pic":
		return el.Child("blipFill").Child("blip")
	case "sp":
		return el.Child("spPr").Child("blipFill").Child("blip")
	}
	return nil
}

func graphicURI(el *pptx.Node) string {
	if el.Local != "graphicFrame" {
		return ""
	}
	return el.Child("graphic").Child("graphicData").AttrString("uri")
}

func presetOf(el *pptx.Node) string {
	return el.Child("spPr").Child("prstGeom").AttrString("prst")
}

func isTextBox(el *pptx.Node) bool {
	for _, c := range el.Children {
		if c.Local == "nvSpPr" {
			v, _ := c.Child("cNvSpPr").AttrBool("txBox")
			return v
		}
	}
	return false
}

// placeholderOf returns the p:ph element of a shape, if any.
func placeholderOf(el *pptx.Node) *pptx.Node {
	return pptx.NonVisualProps(el).Child("ph")
}

// placeholderType returns the placeholder type, defaulting as the file
// format does.
func placeholderType(ph *pptx.Node) string {
	if t := ph.AttrString("type"); t != "" {
		return t
	}
	return defaultType
}
