// Package extract reads the text out of uploaded documents.
package extract

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMaxBytes bounds a single document.
const DefaultMaxBytes = 20 << 20

// ErrTooLarge is returned when a document exceeds the size limit.
var ErrTooLarge = errors.New("document exceeds size limit")

// Document is the text of one input file.
type Document struct {
	Name string `json:"name"`
	Ext  string `json:"ext"`
	Text string `json:"text"`
}

// Extractor turns TXT, Markdown, DOCX, PDF and XLSX files into plain text.
// Unknown extensions are read as text.
type Extractor struct {
	MaxBytes int64
}

// NewExtractor returns an Extractor with the default size limit.
func NewExtractor() *Extractor {
	return &Extractor{MaxBytes: DefaultMaxBytes}
}

// Supported lists the extensions with a dedicated reader.
func Supported() []string {
	return []string{".txt", ".md", ".docx", ".pdf", ".xlsx"}
}

// Extract reads the file at path.
func (e *Extractor) Extract(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer f.Close()
	return e.ExtractReader(f, filepath.Base(path))
}

// ExtractReader reads a document from r; name decides the format.
func (e *Extractor) ExtractReader(r io.Reader, name string) (*Document, error) {
	limit := e.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	content, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if int64(len(content)) > limit {
		return nil, fmt.Errorf("%s: %w", name, ErrTooLarge)
	}
	ext := strings.ToLower(filepath.Ext(name))
	text, err := e.ExtractBytes(content, ext)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &Document{Name: name, Ext: ext, Text: text}, nil
}

// ExtractBytes extracts text from content by extension (with leading dot).
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	switch strings.ToLower(ext) {
	case ".pdf":
		return extractPDF(content)
	case ".docx":
		return extractDOCX(content)
	case ".xlsx":
		return extractExcel(content)
	default:
		return extractPlain(content)
	}
}
