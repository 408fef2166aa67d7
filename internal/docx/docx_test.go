package docx

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"
)

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
	`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
	`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
	`<Default Extension="xml" ContentType="application/xml"/>` +
	`</Types>`

func buildPackage(t *testing.T, parts map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)
	if _, ok := parts["[Content_Types].xml"]; !ok {
		parts["[Content_Types].xml"] = contentTypesXML
	}
	for name, content := range parts {
		entry, err := writer.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := entry.Write([]byte(content)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close package: %v", err)
	}
	return buf.Bytes()
}

func openPackage(t *testing.T, parts map[string]string) *Document {
	t.Helper()
	doc, err := OpenBytes(buildPackage(t, parts))
	if err != nil {
		t.Fatalf("open package: %v", err)
	}
	return doc
}

func bodyDoc(inner string) string {
	return `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		inner + `</w:body></w:document>`
}

func run(text string) string {
	return `<w:r><w:t>` + text + `</w:t></w:r>`
}

func para(text string) string {
	return `<w:p>` + run(text) + `</w:p>`
}

func documentText(t *testing.T, doc *Document) string {
	t.Helper()
	content, ok := doc.part(documentPart)
	if !ok {
		t.Fatal("document part missing")
	}
	return content
}

func TestReplaceTextSubstitutesKnownTokens(t *testing.T) {
	doc := openPackage(t, map[string]string{
		documentPart: bodyDoc(para("Dear «LEADS_CHNAME», re «DL_CODE»")),
	})
	doc.ReplaceText(map[string]string{"LEADS_CHNAME": "JUAN DELA CRUZ"})

	content := documentText(t, doc)
	if !strings.Contains(content, "Dear JUAN DELA CRUZ, re «DL_CODE»") {
		t.Fatalf("unexpected content: %s", content)
	}
}

func TestReplaceTextEscapesXML(t *testing.T) {
	doc := openPackage(t, map[string]string{
		documentPart: bodyDoc(para("«COMPANY»")),
	})
	doc.ReplaceText(map[string]string{"COMPANY": "A&B <Holdings>"})

	if !strings.Contains(documentText(t, doc), "A&amp;B &lt;Holdings&gt;") {
		t.Fatalf("value not escaped: %s", documentText(t, doc))
	}
}

func TestReplaceTextCoversHeadersAndFooters(t *testing.T) {
	doc := openPackage(t, map[string]string{
		documentPart:       bodyDoc(para("body")),
		"word/header1.xml": `<w:hdr xmlns:w="ns">` + para("«AREA»") + `</w:hdr>`,
		"word/footer1.xml": `<w:ftr xmlns:w="ns">` + para("«AREA»") + `</w:ftr>`,
	})
	doc.ReplaceText(map[string]string{"AREA": "CEBU"})

	header, _ := doc.part("word/header1.xml")
	footer, _ := doc.part("word/footer1.xml")
	if !strings.Contains(header, ">CEBU<") || !strings.Contains(footer, ">CEBU<") {
		t.Fatalf("header/footer not rewritten: %s / %s", header, footer)
	}
}

func TestClearTokensBlanksLeftovers(t *testing.T) {
	doc := openPackage(t, map[string]string{
		documentPart: bodyDoc(para("kept «UNFILLED» tail")),
	})
	doc.ClearTokens()

	content := documentText(t, doc)
	if strings.Contains(content, "«") {
		t.Fatalf("token survived clear: %s", content)
	}
	if !strings.Contains(content, "kept  tail") {
		t.Fatalf("surrounding text damaged: %s", content)
	}
}

func TestTokensListsDistinctSorted(t *testing.T) {
	doc := openPackage(t, map[string]string{
		documentPart: bodyDoc(para("«B» «A» «B»")),
	})
	tokens := doc.Tokens()
	if len(tokens) != 2 || tokens[0] != "A" || tokens[1] != "B" {
		t.Fatalf("unexpected tokens: %v", tokens)
	}
}

func manifestTable(rows ...string) string {
	var sb strings.Builder
	sb.WriteString(`<w:tbl><w:tblPr/>`)
	for _, row := range rows {
		sb.WriteString(`<w:tr><w:tc>` + para(row) + `</w:tc></w:tr>`)
	}
	sb.WriteString(`</w:tbl>`)
	return sb.String()
}

func TestFillTableRowScopesToOneRow(t *testing.T) {
	doc := openPackage(t, map[string]string{
		documentPart: bodyDoc(manifestTable("«LEADS_CHNAME»", "«LEADS_CHNAME»")),
	})
	if err := doc.FillTableRow(0, map[string]string{"LEADS_CHNAME": "FIRST"}); err != nil {
		t.Fatalf("fill row 0: %v", err)
	}
	if err := doc.FillTableRow(1, map[string]string{"LEADS_CHNAME": "SECOND"}); err != nil {
		t.Fatalf("fill row 1: %v", err)
	}

	content := documentText(t, doc)
	first := strings.Index(content, "FIRST")
	second := strings.Index(content, "SECOND")
	if first < 0 || second < 0 || first > second {
		t.Fatalf("rows filled out of order: %s", content)
	}
}

func TestClearTableRowBlanksSlot(t *testing.T) {
	doc := openPackage(t, map[string]string{
		documentPart: bodyDoc(manifestTable("«LEADS_CHNAME»", "«LEADS_CHNAME»")),
	})
	if err := doc.FillTableRow(0, map[string]string{"LEADS_CHNAME": "ONLY"}); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if err := doc.ClearTableRow(1); err != nil {
		t.Fatalf("clear: %v", err)
	}

	content := documentText(t, doc)
	if strings.Contains(content, "«") {
		t.Fatalf("cleared row still holds token: %s", content)
	}
	if !strings.Contains(content, "ONLY") {
		t.Fatalf("filled row lost its value: %s", content)
	}
}

func TestMainTableRowCountIgnoresNestedRows(t *testing.T) {
	nested := `<w:tr><w:tc><w:tbl><w:tr><w:tc>` + para("inner") + `</w:tc></w:tr></w:tbl></w:tc></w:tr>`
	table := `<w:tbl><w:tblPr/>` + nested + `<w:tr><w:tc>` + para("outer") + `</w:tc></w:tr></w:tbl>`
	doc := openPackage(t, map[string]string{documentPart: bodyDoc(table)})

	count, err := doc.MainTableRowCount()
	if err != nil {
		t.Fatalf("row count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 top-level rows, got %d", count)
	}
}

func TestFillTableRowOutOfRange(t *testing.T) {
	doc := openPackage(t, map[string]string{
		documentPart: bodyDoc(manifestTable("«X»")),
	})
	if err := doc.FillTableRow(5, map[string]string{"X": "v"}); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

var pngStub = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func TestReplaceImagesWiresMediaAndRelationship(t *testing.T) {
	doc := openPackage(t, map[string]string{
		documentPart: bodyDoc(para("«IMAGE_BARCODE»")),
	})
	img := Image{Data: pngStub, WidthEMU: Inches(2), HeightEMU: Inches(0.5)}
	if err := doc.ReplaceImages(map[string]Image{"IMAGE_BARCODE": img}); err != nil {
		t.Fatalf("replace images: %v", err)
	}

	content := documentText(t, doc)
	if strings.Contains(content, "«IMAGE_BARCODE»") {
		t.Fatalf("token survived: %s", content)
	}
	if !strings.Contains(content, "<w:drawing>") {
		t.Fatalf("no drawing inserted: %s", content)
	}

	types, _ := doc.part("[Content_Types].xml")
	if !strings.Contains(types, `Extension="png"`) {
		t.Fatalf("png content type missing: %s", types)
	}
	rels, _ := doc.part("word/_rels/document.xml.rels")
	if !strings.Contains(rels, "relationships/image") {
		t.Fatalf("image relationship missing: %s", rels)
	}

	data, err := doc.Bytes()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	reopened, err := OpenBytes(data)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	found := false
	for name := range reopened.parts {
		if strings.HasPrefix(name, "word/media/") {
			found = true
		}
	}
	if !found {
		t.Fatal("media part missing after round trip")
	}
}

func TestReplaceTextBoxImageOnlyTouchesBoxes(t *testing.T) {
	box := `<w:p><w:r><w:pict><w:txbxContent>` + para("«IMAGE_SIGNATURE»") + `</w:txbxContent></w:pict></w:r></w:p>`
	doc := openPackage(t, map[string]string{
		documentPart: bodyDoc(box + para("«IMAGE_SIGNATURE»")),
	})
	img := Image{Data: pngStub, WidthEMU: Inches(1.5), HeightEMU: Inches(0.75)}
	if err := doc.ReplaceTextBoxImage("IMAGE_SIGNATURE", img); err != nil {
		t.Fatalf("replace: %v", err)
	}

	content := documentText(t, doc)
	if !strings.Contains(content, "<w:drawing>") {
		t.Fatalf("no drawing inside text box: %s", content)
	}
	if strings.Count(content, "«IMAGE_SIGNATURE»") != 1 {
		t.Fatalf("token outside box should remain: %s", content)
	}
}

func TestCombineKeepsShellSectionProperties(t *testing.T) {
	shellBody := para("placeholder") +
		`<w:sectPr><w:headerReference r:id="rId7" xmlns:r="ns"/></w:sectPr>`
	shell := openPackage(t, map[string]string{
		documentPart:       bodyDoc(shellBody),
		"word/header1.xml": `<w:hdr>` + para("letterhead") + `</w:hdr>`,
	})
	content := openPackage(t, map[string]string{
		documentPart: bodyDoc(para("Dear «LEADS_CHNAME»") + `<w:sectPr/>`),
	})

	merged, err := Combine(shell, content)
	if err != nil {
		t.Fatalf("combine: %v", err)
	}

	body := documentText(t, merged)
	if !strings.Contains(body, "Dear «LEADS_CHNAME»") {
		t.Fatalf("content body missing: %s", body)
	}
	if strings.Contains(body, "placeholder") {
		t.Fatalf("shell body not replaced: %s", body)
	}
	if !strings.Contains(body, `<w:headerReference r:id="rId7"`) {
		t.Fatalf("shell section properties lost: %s", body)
	}
	if _, ok := merged.part("word/header1.xml"); !ok {
		t.Fatal("header part lost in merge")
	}
}

func TestCombineCarriesReferencedMedia(t *testing.T) {
	shell := openPackage(t, map[string]string{
		documentPart: bodyDoc(para("shell") + `<w:sectPr/>`),
	})
	contentRels := `<?xml version="1.0"?>` +
		`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
		`<Relationship Id="rId5" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="media/image1.png"/>` +
		`</Relationships>`
	content := openPackage(t, map[string]string{
		documentPart: bodyDoc(
			`<w:p><w:r><w:drawing><a:blip r:embed="rId5" xmlns:a="ns" xmlns:r="ns"/></w:drawing></w:r></w:p>` +
				`<w:sectPr/>`),
		"word/_rels/document.xml.rels": contentRels,
		"word/media/image1.png":        string(pngStub),
	})

	merged, err := Combine(shell, content)
	if err != nil {
		t.Fatalf("combine: %v", err)
	}

	body := documentText(t, merged)
	if strings.Contains(body, `"rId5"`) {
		t.Fatalf("relationship id not remapped: %s", body)
	}
	carried := false
	for name := range merged.parts {
		if strings.HasPrefix(name, "word/media/") {
			carried = true
		}
	}
	if !carried {
		t.Fatal("referenced media not carried into merged package")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	doc := openPackage(t, map[string]string{
		documentPart: bodyDoc(para("«NAME»")),
	})
	clone := doc.Clone()
	clone.ReplaceText(map[string]string{"NAME": "CHANGED"})

	if strings.Contains(documentText(t, doc), "CHANGED") {
		t.Fatal("mutating clone affected original")
	}
	if !strings.Contains(documentText(t, clone), "CHANGED") {
		t.Fatal("clone not rewritten")
	}
}
