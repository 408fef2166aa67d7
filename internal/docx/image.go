package docx

import (
	"fmt"
	"strings"
)

// WordprocessingML sizes drawings in English Metric Units: 914400 per inch.
const emuPerInch = 914400

// Image is an inline picture to substitute for a token. Data must be PNG.
type Image struct {
	Data      []byte
	WidthEMU  int64
	HeightEMU int64
}

// Inches sizes an image dimension in EMUs from inches.
func Inches(v float64) int64 { return int64(v * emuPerInch) }

// ReplaceImages substitutes each «NAME» token present in values with an inline
// picture, replacing the run that carries the token. The PNG bytes are stored
// under word/media and wired into the part's relationships.
func (d *Document) ReplaceImages(values map[string]Image) error {
	if len(values) == 0 {
		return nil
	}
	for token, img := range values {
		if err := d.replaceImageToken(token, img); err != nil {
			return err
		}
	}
	return nil
}

func (d *Document) replaceImageToken(token string, img Image) error {
	marked := Token(token)
	for _, partName := range d.textPartNames() {
		content, ok := d.part(partName)
		if !ok {
			continue
		}
		for {
			idx := strings.Index(content, marked)
			if idx < 0 {
				break
			}
			run, ok := enclosingRun(content, idx)
			if !ok {
				// Token outside a run; blank it so it never leaks into output.
				content = strings.Replace(content, marked, "", 1)
				continue
			}
			relID, err := d.addImagePart(partName, img.Data)
			if err != nil {
				return err
			}
			drawing := d.inlineDrawingXML(relID, token, img.WidthEMU, img.HeightEMU)
			content = content[:run.start] + drawing + content[run.end:]
		}
		d.setPart(partName, content)
	}
	return nil
}

// enclosingRun finds the <w:r> element containing byte offset idx.
func enclosingRun(content string, idx int) (element, bool) {
	offset := 0
	for {
		run, ok := findElement(content, "w:r", offset)
		if !ok || run.start > idx {
			return element{}, false
		}
		if run.end > idx {
			return run, true
		}
		offset = run.end
	}
}

// addImagePart stores PNG bytes as a fresh media part, registers the png
// content type and appends a relationship to the owning part. Returns the new
// relationship ID.
func (d *Document) addImagePart(ownerPart string, data []byte) (string, error) {
	mediaName := fmt.Sprintf("word/media/dlgen_image%d.png", d.nextShapeID)
	d.nextShapeID++
	d.parts[mediaName] = data
	d.order = append(d.order, mediaName)

	if err := d.ensurePNGContentType(); err != nil {
		return "", err
	}
	return d.addRelationship(ownerPart, "http://schemas.openxmlformats.org/officeDocument/2006/relationships/image", "media/"+strings.TrimPrefix(mediaName, "word/media/"))
}

func (d *Document) ensurePNGContentType() error {
	const partName = "[Content_Types].xml"
	content, ok := d.part(partName)
	if !ok {
		return fmt.Errorf("package has no %s", partName)
	}
	if strings.Contains(content, `Extension="png"`) {
		return nil
	}
	const decl = `<Default Extension="png" ContentType="image/png"/>`
	closing := strings.LastIndex(content, "</Types>")
	if closing < 0 {
		return fmt.Errorf("malformed %s", partName)
	}
	d.setPart(partName, content[:closing]+decl+content[closing:])
	return nil
}

// addRelationship appends a relationship entry to the .rels part of owner,
// creating the rels part when absent. Target is relative to the owner's
// directory, per OPC convention.
func (d *Document) addRelationship(ownerPart, relType, target string) (string, error) {
	relsName := relsPartName(ownerPart)
	content, ok := d.part(relsName)
	if !ok {
		content = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
			`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`
	}

	relID := fmt.Sprintf("rIdDlgen%d", d.nextShapeID)
	d.nextShapeID++
	entry := fmt.Sprintf(`<Relationship Id="%s" Type="%s" Target="%s"/>`, relID, relType, target)
	closing := strings.LastIndex(content, "</Relationships>")
	if closing < 0 {
		return "", fmt.Errorf("malformed relationships part %s", relsName)
	}
	d.setPart(relsName, content[:closing]+entry+content[closing:])
	return relID, nil
}

func relsPartName(ownerPart string) string {
	slash := strings.LastIndex(ownerPart, "/")
	if slash < 0 {
		return "_rels/" + ownerPart + ".rels"
	}
	return ownerPart[:slash+1] + "_rels/" + ownerPart[slash+1:] + ".rels"
}

// inlineDrawingXML renders a run carrying one inline picture sized in EMUs.
func (d *Document) inlineDrawingXML(relID, name string, widthEMU, heightEMU int64) string {
	id := d.nextShapeID
	d.nextShapeID++
	return fmt.Sprintf(`<w:r><w:drawing>`+
		`<wp:inline distT="0" distB="0" distL="0" distR="0" xmlns:wp="http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing">`+
		`<wp:extent cx="%d" cy="%d"/>`+
		`<wp:docPr id="%d" name="%s"/>`+
		`<a:graphic xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">`+
		`<a:graphicData uri="http://schemas.openxmlformats.org/drawingml/2006/picture">`+
		`<pic:pic xmlns:pic="http://schemas.openxmlformats.org/drawingml/2006/picture">`+
		`<pic:nvPicPr><pic:cNvPr id="%d" name="%s"/><pic:cNvPicPr/></pic:nvPicPr>`+
		`<pic:blipFill><a:blip xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" r:embed="%s"/><a:stretch><a:fillRect/></a:stretch></pic:blipFill>`+
		`<pic:spPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="%d" cy="%d"/></a:xfrm>`+
		`<a:prstGeom prst="rect"><a:avLst/></a:prstGeom></pic:spPr>`+
		`</pic:pic></a:graphicData></a:graphic></wp:inline></w:drawing></w:r>`,
		widthEMU, heightEMU, id, name, id, name, relID, widthEMU, heightEMU)
}
