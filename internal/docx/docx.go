package docx

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

const documentPart = "word/document.xml"

// Document is an opened DOCX package. Parts are kept as raw bytes; text
// operations rewrite the XML of text-bearing parts in place. A Document is not
// safe for concurrent mutation; fill one fresh copy per record.
type Document struct {
	parts map[string][]byte
	order []string

	nextShapeID int
}

// Open reads a DOCX package from disk.
func Open(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return OpenBytes(data)
}

// OpenBytes reads a DOCX package from memory.
func OpenBytes(data []byte) (*Document, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open document package: %w", err)
	}

	doc := &Document{parts: make(map[string][]byte, len(reader.File)), nextShapeID: 1000}
	for _, file := range reader.File {
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("open part %s: %w", file.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read part %s: %w", file.Name, err)
		}
		doc.parts[file.Name] = content
		doc.order = append(doc.order, file.Name)
	}

	if _, ok := doc.parts[documentPart]; !ok {
		return nil, errors.New("package has no word/document.xml")
	}
	return doc, nil
}

// Bytes serializes the package back into DOCX form.
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)
	for _, name := range d.order {
		part, ok := d.parts[name]
		if !ok {
			continue
		}
		entry, err := writer.Create(name)
		if err != nil {
			return nil, fmt.Errorf("create zip entry %s: %w", name, err)
		}
		if _, err := entry.Write(part); err != nil {
			return nil, fmt.Errorf("write zip entry %s: %w", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize package: %w", err)
	}
	return buf.Bytes(), nil
}

// Save writes the package to disk.
func (d *Document) Save(path string) error {
	data, err := d.Bytes()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (d *Document) part(name string) (string, bool) {
	data, ok := d.parts[name]
	return string(data), ok
}

func (d *Document) setPart(name string, content string) {
	if _, exists := d.parts[name]; !exists {
		d.order = append(d.order, name)
	}
	d.parts[name] = []byte(content)
}

// textPartNames returns every part holding text-bearing regions: the body plus
// all header and footer parts, in deterministic order.
func (d *Document) textPartNames() []string {
	names := []string{documentPart}
	var extras []string
	for name := range d.parts {
		if strings.HasPrefix(name, "word/header") || strings.HasPrefix(name, "word/footer") {
			if strings.HasSuffix(name, ".xml") {
				extras = append(extras, name)
			}
		}
	}
	sort.Strings(extras)
	return append(names, extras...)
}
