// Package document decides whether a note PDF belongs to the monitored
// provider by inspecting the text of its first page.
package document

import (
	"bytes"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/mtorres/chrono-archiver/internal/utils"
)

// Classifier reports whether a marker string appears on a PDF's first page.
type Classifier interface {
	ContainsMarker(pdfBytes []byte, marker string) bool
}

type pdfClassifier struct {
	logger *utils.Logger
}

func NewClassifier(logger *utils.Logger) Classifier {
	return &pdfClassifier{logger: logger}
}

// ContainsMarker returns true iff marker occurs as an exact substring of the
// extracted first-page text. Unparseable bytes, a document with no pages,
// or a page yielding no text all count as "not found": archival is gated on
// positive identification, so anything short of that answers false rather
// than failing the request.
func (c *pdfClassifier) ContainsMarker(pdfBytes []byte, marker string) (found bool) {
	// the pdf package panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			c.logger.Debug(nil, "PDF parsing panicked: %v", r)
			found = false
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(pdfBytes), int64(len(pdfBytes)))
	if err != nil {
		c.logger.Debug(nil, "Failed to parse PDF: %v", err)
		return false
	}

	if reader.NumPage() == 0 {
		return false
	}

	page := reader.Page(1)
	if page.V.IsNull() {
		return false
	}

	text, err := page.GetPlainText(nil)
	if err != nil {
		c.logger.Debug(nil, "Failed to extract first-page text: %v", err)
		return false
	}

	return strings.Contains(text, marker)
}
