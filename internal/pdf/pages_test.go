package pdfutil

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GBSLIT/FairForm/internal/model"
)

// minimalPDF writes a valid document with the given number of blank pages.
func minimalPDF(pages int) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}
	kids := make([]string, pages)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pages))
	for i := 0; i < pages; i++ {
		obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func TestPageCount(t *testing.T) {
	n, err := PageCount(minimalPDF(3))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestPageCountRejectsGarbage(t *testing.T) {
	_, err := PageCount([]byte("not a pdf"))
	assert.Error(t, err)
}

func TestTotalPages(t *testing.T) {
	files := []model.Attachment{
		{Filename: "a.pdf", ContentType: "application/pdf", Data: minimalPDF(2)},
		{Filename: "b.pdf", Data: minimalPDF(5)},
		{Filename: "photo.jpg", ContentType: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff}},
		{Filename: "broken.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4 truncated")},
	}
	assert.Equal(t, 7, TotalPages(files))
	assert.Zero(t, TotalPages(nil))
}
