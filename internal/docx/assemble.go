package docx

import (
	"fmt"
	"regexp"
	"strings"
)

// Clone returns a deep copy of the document. Template prototypes are cloned
// once per record so the cached bytes are never mutated.
func (d *Document) Clone() *Document {
	clone := &Document{
		parts:       make(map[string][]byte, len(d.parts)),
		order:       append([]string(nil), d.order...),
		nextShapeID: d.nextShapeID,
	}
	for name, data := range d.parts {
		clone.parts[name] = append([]byte(nil), data...)
	}
	return clone
}

var (
	bodyPattern    = regexp.MustCompile(`(?s)(<w:body(?:\s[^>]*)?>)(.*)(</w:body>)`)
	sectPrPattern  = regexp.MustCompile(`(?s)<w:sectPr(?:\s[^>]*)?>.*</w:sectPr>|<w:sectPr(?:\s[^>]*)?/>`)
	relRefPattern  = regexp.MustCompile(`r:(?:embed|id|link)="([^"]+)"`)
	relDefPattern  = regexp.MustCompile(`<Relationship\s+[^>]*/?>`)
	relAttrPattern = regexp.MustCompile(`(\w+)="([^"]*)"`)
)

// Combine merges a letter content template into a header/footer shell. The
// shell keeps its headers, footers and section properties; its body is
// replaced by the content template's body. Resources the content body
// references by relationship ID are carried across under fresh IDs.
func Combine(shell, content *Document) (*Document, error) {
	merged := shell.Clone()

	contentDoc, ok := content.part(documentPart)
	if !ok {
		return nil, fmt.Errorf("content package has no %s", documentPart)
	}
	shellDoc, ok := merged.part(documentPart)
	if !ok {
		return nil, fmt.Errorf("shell package has no %s", documentPart)
	}

	contentGroups := bodyPattern.FindStringSubmatch(contentDoc)
	if contentGroups == nil {
		return nil, fmt.Errorf("content document has no body")
	}
	body := sectPrPattern.ReplaceAllString(contentGroups[2], "")

	body, err := carryRelationships(merged, content, body)
	if err != nil {
		return nil, err
	}

	shellGroups := bodyPattern.FindStringSubmatch(shellDoc)
	if shellGroups == nil {
		return nil, fmt.Errorf("shell document has no body")
	}
	sectPr := sectPrPattern.FindString(shellGroups[2])

	start := strings.Index(shellDoc, shellGroups[1])
	end := strings.LastIndex(shellDoc, shellGroups[3])
	merged.setPart(documentPart, shellDoc[:start+len(shellGroups[1])]+body+sectPr+shellDoc[end:])
	return merged, nil
}

// carryRelationships rewrites relationship references inside body so they
// resolve against the merged package, copying media parts as needed.
func carryRelationships(merged, content *Document, body string) (string, error) {
	refs := relRefPattern.FindAllStringSubmatch(body, -1)
	if len(refs) == 0 {
		return body, nil
	}

	rels, err := parseRelationships(content, documentPart)
	if err != nil {
		return "", err
	}

	remapped := make(map[string]string)
	for _, ref := range refs {
		oldID := ref[1]
		if _, done := remapped[oldID]; done {
			continue
		}
		rel, ok := rels[oldID]
		if !ok {
			return "", fmt.Errorf("content body references unknown relationship %s", oldID)
		}

		target := rel.target
		if data, found := content.parts["word/"+target]; found {
			copied := fmt.Sprintf("word/media/dlgen_carry%d%s", merged.nextShapeID, extension(target))
			merged.nextShapeID++
			merged.parts[copied] = append([]byte(nil), data...)
			merged.order = append(merged.order, copied)
			target = strings.TrimPrefix(copied, "word/")
		}
		newID, err := merged.addRelationship(documentPart, rel.relType, target)
		if err != nil {
			return "", err
		}
		remapped[oldID] = newID
	}

	for oldID, newID := range remapped {
		body = strings.ReplaceAll(body, `"`+oldID+`"`, `"`+newID+`"`)
	}
	return body, nil
}

type relationship struct {
	relType string
	target  string
}

func parseRelationships(d *Document, ownerPart string) (map[string]relationship, error) {
	relsContent, ok := d.part(relsPartName(ownerPart))
	if !ok {
		return map[string]relationship{}, nil
	}
	rels := make(map[string]relationship)
	for _, def := range relDefPattern.FindAllString(relsContent, -1) {
		var id string
		var rel relationship
		for _, attr := range relAttrPattern.FindAllStringSubmatch(def, -1) {
			switch attr[1] {
			case "Id":
				id = attr[2]
			case "Type":
				rel.relType = attr[2]
			case "Target":
				rel.target = attr[2]
			}
		}
		if id != "" {
			rels[id] = rel
		}
	}
	return rels, nil
}

func extension(target string) string {
	dot := strings.LastIndex(target, ".")
	if dot < 0 {
		return ""
	}
	return target[dot:]
}
