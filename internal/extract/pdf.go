package extract

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// extractPDF extracts text page by page. Unreadable pages are skipped so a
// single bad page does not fail the whole document; only a document that
// cannot be opened at all is an error.
func extractPDF(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}
	var texts []string
	numPages := r.NumPage()
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := pageText(page)
		if err != nil {
			continue
		}
		if text != "" {
			texts = append(texts, text)
		}
	}
	return joinPages(texts), nil
}

// pageText recovers from parser panics inside the pdf library so they count
// as a per-page failure rather than crashing ingestion.
func pageText(page pdf.Page) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page text panic: %v", r)
		}
	}()
	return page.GetPlainText(nil)
}

func joinPages(pages []string) string {
	var buf bytes.Buffer
	for i, p := range pages {
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(p)
	}
	return buf.String()
}
