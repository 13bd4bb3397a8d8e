package pptx

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"github.com/tsawler/deckform/internal/testpptx"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("Failed to create %s in zip: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Failed to close zip: %v", err)
	}
	return buf.Bytes()
}

func TestParseTree_Offsets(t *testing.T) {
	src := `<?xml version="1.0"?>` + "\n" +
		`<a:p xmlns:a="` + NsDrawingML + `"><a:r><a:rPr b="1"/><a:t>Hi &amp; bye</a:t></a:r><a:r><a:t/></a:r></a:p>`
	tree, err := ParseTree([]byte(src))
	if err != nil {
		t.Fatalf("ParseTree failed: %v", err)
	}

	p := tree.Element()
	if !p.Is(NsDrawingML, "p") || p.Prefix != "a" || p.QName() != "a:p" {
		t.Fatalf("root = %s (%s)", p.QName(), p.Space)
	}
	runs := p.ChildrenNamed("r")
	if len(runs) != 2 || runs[1].Index != 1 {
		t.Fatalf("runs = %d", len(runs))
	}

	tNode := runs[0].Child("t")
	if tNode.Text() != "Hi & bye" {
		t.Errorf("Text() = %q", tNode.Text())
	}
	if got := string(tree.Data[tNode.InnerStart:tNode.InnerEnd]); got != "Hi &amp; bye" {
		t.Errorf("inner span = %q", got)
	}
	if got := string(tree.Raw(tNode)); got != "<a:t>Hi &amp; bye</a:t>" {
		t.Errorf("Raw() = %q", got)
	}

	rPr := runs[0].Child("rPr")
	if !rPr.SelfClosing || string(tree.Raw(rPr)) != `<a:rPr b="1"/>` {
		t.Errorf("rPr raw = %q, self-closing %v", tree.Raw(rPr), rPr.SelfClosing)
	}
	if v, ok := rPr.AttrBool("b"); !ok || !v {
		t.Error("AttrBool(b) failed")
	}

	empty := runs[1].Child("t")
	if !empty.SelfClosing || empty.InnerStart != empty.InnerEnd || empty.Text() != "" {
		t.Errorf("empty a:t = %+v", empty)
	}
}

func TestParseTree_BOM(t *testing.T) {
	src := append([]byte{0xEF, 0xBB, 0xBF}, []byte(`<root><child/></root>`)...)
	tree, err := ParseTree(src)
	if err != nil {
		t.Fatalf("ParseTree failed: %v", err)
	}
	child := tree.Element().Child("child")
	if string(tree.Raw(child)) != "<child/>" {
		t.Errorf("Raw(child) = %q", tree.Raw(child))
	}
}

func TestParseTree_Malformed(t *testing.T) {
	for _, src := range []string{`<a><b></a>`, `<a>`, `<a b="1></a>`} {
		if _, err := ParseTree([]byte(src)); err == nil {
			t.Errorf("ParseTree(%q) should fail", src)
		}
	}
}

func TestPathAndFind(t *testing.T) {
	data := testpptx.SlideXML(
		testpptx.TextBox(2, "a", testpptx.Box{}, testpptx.Para(testpptx.Run("x", ""))),
		testpptx.Picture(3, "b", "rId2", testpptx.Box{}),
		testpptx.TextBox(4, "c", testpptx.Box{},
			testpptx.Para(testpptx.Run("one", "")),
			testpptx.Para(testpptx.Run("two", ""), testpptx.Run("three", ""))),
	)
	st, err := ParseSlide("ppt/slides/slide1.xml", []byte(data))
	if err != nil {
		t.Fatalf("ParseSlide failed: %v", err)
	}
	shapes := st.Shapes()
	third := shapes[2].Element
	run := third.Child("txBody").ChildrenNamed("p")[1].ChildrenNamed("r")[1]

	loc := st.Locator(run)
	if loc != "spTree/sp[1]/txBody[0]/p[1]/r[1]" {
		t.Errorf("Locator() = %q", loc)
	}
	if st.Lookup(loc) != run {
		t.Error("Lookup(Locator(run)) != run")
	}
	if st.Lookup("spTree/sp[1]/txBody/p[1]/r[1]") != run {
		t.Error("segments without index should select the first")
	}
	for _, bad := range []string{"", "spTree/sp[9]", "spTree/sp[x]", "spTree/[1]"} {
		if st.Lookup(bad) != nil {
			t.Errorf("Lookup(%q) should be nil", bad)
		}
	}
}

func TestShapes_AlternateContentAndGroups(t *testing.T) {
	group := testpptx.Group(10, "grp", testpptx.Box{X: 100, Y: 100, CX: 200, CY: 200}, testpptx.Box{CX: 200, CY: 200},
		testpptx.TextBox(11, "inner", testpptx.Box{X: 10, Y: 10, CX: 20, CY: 20}, testpptx.Para()),
		testpptx.Connector(12, "line", testpptx.Box{}),
	)
	alt := `<mc:AlternateContent xmlns:mc="` + NsMarkupCompat + `"><mc:Choice Requires="p14">` +
		`<p:contentPart xmlns:p14="http://schemas.microsoft.com/office/powerpoint/2010/main" r:id="rId7"/>` +
		`</mc:Choice><mc:Fallback>` + testpptx.Picture(13, "ink", "rId8", testpptx.Box{}) + `</mc:Fallback></mc:AlternateContent>`

	st, err := ParseSlide("ppt/slides/slide1.xml", []byte(testpptx.SlideXML(group, alt)))
	if err != nil {
		t.Fatalf("ParseSlide failed: %v", err)
	}
	shapes := st.Shapes()
	if len(shapes) != 2 {
		t.Fatalf("Shapes() = %d, want 2", len(shapes))
	}
	if len(shapes[0].Children) != 2 || shapes[0].Children[1].Element.Local != "cxnSp" {
		t.Errorf("group children = %+v", shapes[0].Children)
	}
	tr := ShapeTransform(shapes[0].Element)
	if tr.Child.Width != 200 || tr.Rect.Left != 100 {
		t.Errorf("group transform = %+v", tr)
	}
	if shapes[1].Element.Local != "contentPart" || !strings.HasPrefix(shapes[1].Locator, "spTree/AlternateContent") {
		t.Errorf("alternate content shape = %s at %s", shapes[1].Element.Local, shapes[1].Locator)
	}
}

func TestParseSlide_NotASlide(t *testing.T) {
	if _, err := ParseSlide("x.xml", []byte(`<p:notes xmlns:p="`+NsPresentationML+`"/>`)); err == nil {
		t.Error("expected error for non-slide root")
	}
}

func TestRotation(t *testing.T) {
	data := testpptx.SlideXML(`<p:sp><p:nvSpPr><p:cNvPr id="2" name="r"/><p:cNvSpPr/><p:nvPr/></p:nvSpPr>` +
		`<p:spPr><a:xfrm rot="-5400000" flipH="1"><a:off x="1" y="2"/><a:ext cx="3" cy="4"/></a:xfrm></p:spPr></p:sp>`)
	st, err := ParseSlide("s.xml", []byte(data))
	if err != nil {
		t.Fatalf("ParseSlide failed: %v", err)
	}
	tr := ShapeTransform(st.Shapes()[0].Element)
	if tr.Rotation != 270 || !tr.FlipH {
		t.Errorf("transform = %+v", tr)
	}
}
