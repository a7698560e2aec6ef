// Package pdf handles PDF text extraction, path resolution, and opening.
package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// DOI pattern: 10.XXXX/... where XXXX is 4+ digits
var doiPattern = regexp.MustCompile(`10\.\d{4,9}/[^\s<>"{}|\\^~\[\]` + "`" + `]+`)

// arXiv identifiers as printed in the margin of arXiv PDFs: arXiv:2106.15928v2
var arxivPattern = regexp.MustCompile(`(?i)arXiv:\s*(\d{4}\.\d{4,5})(v\d+)?`)

// maxScanPages bounds how much of the document is searched for identifiers.
const maxScanPages = 2

// ErrNoTextExtracted indicates the PDF has no extractable text (likely scanned).
var ErrNoTextExtracted = errors.New("no text could be extracted from PDF")

// Metadata is what can be recovered from a PDF's first pages.
type Metadata struct {
	DOI     string
	ArXivID string
	Title   string
}

// ExtractMetadata reads the first pages of a PDF and looks for a DOI, an
// arXiv identifier, and a title.
func ExtractMetadata(data []byte) (Metadata, error) {
	text, err := ExtractTextReader(bytes.NewReader(data), int64(len(data)), maxScanPages)
	if err != nil {
		return Metadata{}, fmt.Errorf("reading PDF: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return Metadata{}, ErrNoTextExtracted
	}
	return MetadataFromText(text), nil
}

// MetadataFromText applies the identifier and title heuristics to plain text.
func MetadataFromText(text string) Metadata {
	return Metadata{
		DOI:     findDOI(text),
		ArXivID: findArXivID(text),
		Title:   findTitle(text),
	}
}

// ExtractTextReader extracts text from the first maxPages pages of a PDF reader.
func ExtractTextReader(r io.ReaderAt, size int64, maxPages int) (text string, err error) {
	// The PDF parser panics on some malformed inputs.
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("malformed PDF: %v", rec)
		}
	}()

	pdfReader, err := pdf.NewReader(r, size)
	if err != nil {
		return "", err
	}

	if maxPages <= 0 || maxPages > pdfReader.NumPage() {
		maxPages = pdfReader.NumPage()
	}

	var builder strings.Builder
	for i := 1; i <= maxPages; i++ {
		page := pdfReader.Page(i)
		if page.V.IsNull() {
			continue
		}

		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		builder.WriteString(pageText)
		builder.WriteString("\n")
	}

	return builder.String(), nil
}

// findDOI finds a DOI in text.
func findDOI(text string) string {
	for _, match := range doiPattern.FindAllString(text, -1) {
		// Remove trailing punctuation
		match = strings.TrimRight(match, ".,;:)")
		if isValidDOI(match) {
			return match
		}
	}
	return ""
}

// findArXivID finds an arXiv identifier (without version) in text.
func findArXivID(text string) string {
	m := arxivPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

// findTitle returns the first substantial line, which is usually the title.
func findTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) > 20 && !isHeaderLine(line) && !arxivPattern.MatchString(line) {
			return line
		}
	}
	return ""
}

// isValidDOI performs basic validation on a DOI.
func isValidDOI(doi string) bool {
	if len(doi) < 10 {
		return false
	}
	if !strings.HasPrefix(doi, "10.") {
		return false
	}
	slashIdx := strings.Index(doi, "/")
	return slashIdx != -1 && slashIdx < len(doi)-1
}

// isHeaderLine checks if a line is likely a header/footer.
func isHeaderLine(line string) bool {
	lower := strings.ToLower(line)
	if strings.Contains(lower, "journal") {
		return true
	}
	if strings.Contains(lower, "volume") && strings.Contains(lower, "issue") {
		return true
	}
	if strings.Contains(lower, "copyright") || strings.Contains(lower, "preprint") {
		return true
	}
	if strings.Contains(lower, "article") && strings.Contains(lower, "published") {
		return true
	}
	return false
}
