package document

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/gen2brain/go-fitz"
)

// pointsPerInch is the PDF user-space resolution; scale 1 renders at 72 DPI
const pointsPerInch = 72

type pdfDocument struct {
	doc *fitz.Document
}

func openPDF(data []byte) (*pdfDocument, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	return &pdfDocument{doc: doc}, nil
}

func (p *pdfDocument) NumPage() int {
	return p.doc.NumPage()
}

func (p *pdfDocument) Text(page int) (string, error) {
	text, err := p.doc.Text(page)
	if err != nil {
		return "", fmt.Errorf("reading text of page %d: %w", page+1, err)
	}
	return text, nil
}

func (p *pdfDocument) Render(page int, scale float64) ([]byte, error) {
	img, err := p.doc.ImageDPI(page, pointsPerInch*scale)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page %d: %w", page+1, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func (p *pdfDocument) Close() error {
	return p.doc.Close()
}
