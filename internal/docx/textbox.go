package docx

import "strings"

// ReplaceTextBoxImage substitutes a «NAME» token with an inline picture, but
// only where the token sits inside a floating text box. Signature templates
// place the signatory image in a text box anchored over the closing block;
// occurrences of the same token outside any box are left for the regular text
// pass to clear.
func (d *Document) ReplaceTextBoxImage(token string, img Image) error {
	marked := Token(token)
	for _, partName := range d.textPartNames() {
		content, ok := d.part(partName)
		if !ok || !strings.Contains(content, marked) {
			continue
		}

		offset := 0
		for {
			box, found := findElement(content, "w:txbxContent", offset)
			if !found {
				break
			}
			region := content[box.start:box.end]
			idx := strings.Index(region, marked)
			if idx < 0 {
				offset = box.end
				continue
			}
			run, ok := enclosingRun(region, idx)
			if !ok {
				region = strings.Replace(region, marked, "", 1)
				content = content[:box.start] + region + content[box.end:]
				// Region shrank; rescan the same box.
				continue
			}
			relID, err := d.addImagePart(partName, img.Data)
			if err != nil {
				return err
			}
			drawing := d.inlineDrawingXML(relID, token, img.WidthEMU, img.HeightEMU)
			region = region[:run.start] + drawing + region[run.end:]
			content = content[:box.start] + region + content[box.end:]
			// The replacement changed region length; continue scanning from the
			// start of this box in the updated content.
		}
		d.setPart(partName, content)
	}
	return nil
}
