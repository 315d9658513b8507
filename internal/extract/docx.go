package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const (
	docxDefaultPart  = "word/document.xml"
	contentTypesPart = "[Content_Types].xml"
	docxMainType     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

var (
	overrideRe  = regexp.MustCompile(`<Override\s[^>]*>`)
	partNameRe  = regexp.MustCompile(`PartName="([^"]+)"`)
	paragraphRe = regexp.MustCompile(`(?s)<w:p[ >].*?</w:p>`)
	runTextRe   = regexp.MustCompile(`<w:t(?:\s[^>]*)?>([^<]*)</w:t>`)
	breakRe     = regexp.MustCompile(`<w:(?:tab|br)\b[^>]*/>`)
)

var xmlEntities = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&amp;", "&")

func readZipFile(zr *zip.Reader, name string) ([]byte, bool, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, true, err
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		return data, true, err
	}
	return nil, false, nil
}

// mainDocumentPart reads the body part name from [Content_Types].xml. Some
// generators write word/document2.xml instead of the usual name.
func mainDocumentPart(zr *zip.Reader) string {
	data, found, err := readZipFile(zr, contentTypesPart)
	if !found || err != nil {
		return docxDefaultPart
	}
	for _, o := range overrideRe.FindAllString(string(data), -1) {
		if !strings.Contains(o, `ContentType="`+docxMainType+`"`) {
			continue
		}
		if m := partNameRe.FindStringSubmatch(o); m != nil {
			return strings.TrimPrefix(m[1], "/")
		}
	}
	return docxDefaultPart
}

// extractDOCX returns one line per non-empty paragraph. Runs inside a
// paragraph are joined without separators since Word splits words across runs.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}
	part := mainDocumentPart(zr)
	body, found, err := readZipFile(zr, part)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: read %s: %w", part, err)
	}
	if !found {
		return "", fmt.Errorf("extract DOCX: %s not found", part)
	}

	var lines []string
	for _, p := range paragraphRe.FindAllString(string(body), -1) {
		p = breakRe.ReplaceAllString(p, "<w:t> </w:t>")
		var b strings.Builder
		for _, run := range runTextRe.FindAllStringSubmatch(p, -1) {
			b.WriteString(xmlEntities.Replace(run[1]))
		}
		if line := strings.TrimSpace(b.String()); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}
