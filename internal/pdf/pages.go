// Package pdfutil inspects catalogue PDFs before they are filed.
package pdfutil

import (
	"bytes"
	"fmt"
	"log"

	pdf "github.com/ledongthuc/pdf"

	"github.com/GBSLIT/FairForm/internal/model"
)

const pdfContentType = "application/pdf"

// PageCount returns the number of pages in the PDF held by data.
func PageCount(data []byte) (n int, err error) {
	// the reader panics on some truncated cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("new pdf reader: %w", err)
	}
	return doc.NumPage(), nil
}

// TotalPages sums the page counts of every PDF in files. Files that are not
// PDFs, or cannot be parsed, count as zero.
func TotalPages(files []model.Attachment) int {
	total := 0
	for _, f := range files {
		if !isPDF(f) {
			continue
		}
		n, err := PageCount(f.Data)
		if err != nil {
			log.Printf("page count of %s: %v", f.Filename, err)
			continue
		}
		total += n
	}
	return total
}

func isPDF(f model.Attachment) bool {
	return f.ContentType == pdfContentType || bytes.HasPrefix(f.Data, []byte("%PDF-"))
}
