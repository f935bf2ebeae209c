package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joaoarmando-ctrl/pretorian-nfse1/internal/ocr"
)

// Defaults for the optical-recognition fallback
const (
	DefaultMinTextLength = 20
	DefaultRenderScale   = 2.0
	DefaultOCRTimeout    = 30 * time.Second
)

// Config tunes when and how a page falls back to OCR
type Config struct {
	Language      string        // OCR language hint, default ocr.DefaultLanguage
	MinTextLength int           // pages with fewer trimmed runes are treated as image-only
	RenderScale   float64       // rasterization scale relative to 72 DPI
	OCRTimeout    time.Duration // per-page recognition budget
}

// Page is the text acquired for one page
type Page struct {
	Number int    `json:"number"` // 1-indexed
	Text   string `json:"text"`
	OCR    bool   `json:"ocr"`
}

// Result holds the ordered pages of a document and any page-level problems
type Result struct {
	Pages    []Page   `json:"pages"`
	Warnings []string `json:"warnings,omitempty"`
}

// Texts returns the page texts in page order
func (r *Result) Texts() []string {
	texts := make([]string, len(r.Pages))
	for i, p := range r.Pages {
		texts[i] = p.Text
	}
	return texts
}

// Extractor acquires per-page text, rasterizing sparse pages and routing them
// through an OCR engine. OCR failures never fail the document: the page
// degrades to empty text and a warning is recorded.
type Extractor struct {
	open   Opener
	engine ocr.Engine
	cfg    Config
}

// NewExtractor creates an Extractor that opens documents with Open
func NewExtractor(engine ocr.Engine, cfg Config) *Extractor {
	return NewExtractorWithOpener(Open, engine, cfg)
}

// NewExtractorWithOpener creates an Extractor with a custom opener for testing
func NewExtractorWithOpener(open Opener, engine ocr.Engine, cfg Config) *Extractor {
	if cfg.Language == "" {
		cfg.Language = ocr.DefaultLanguage
	}
	if cfg.MinTextLength <= 0 {
		cfg.MinTextLength = DefaultMinTextLength
	}
	if cfg.RenderScale <= 0 {
		cfg.RenderScale = DefaultRenderScale
	}
	if cfg.OCRTimeout <= 0 {
		cfg.OCRTimeout = DefaultOCRTimeout
	}
	return &Extractor{open: open, engine: engine, cfg: cfg}
}

// Extract returns the text of every page of the document. progress, when
// non-nil, is called after each page with the completed percentage.
// Only a document that cannot be opened returns an error.
func (e *Extractor) Extract(ctx context.Context, name string, data []byte, progress func(int)) (*Result, error) {
	doc, err := e.open(name, data)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	n := doc.NumPage()
	if n <= 0 {
		return nil, fmt.Errorf("opening %s: %w", name, ErrEmptyDocument)
	}

	res := &Result{Pages: make([]Page, 0, n)}
	for i := 0; i < n; i++ {
		page := Page{Number: i + 1}

		text, err := doc.Text(i)
		if err != nil {
			slog.Warn("Failed to read text layer", "file", name, "page", page.Number, "error", err)
		}
		page.Text = strings.TrimSpace(text)

		if utf8.RuneCountInString(page.Text) < e.cfg.MinTextLength {
			page.OCR = true
			ocrText, warning := e.recognizePage(ctx, doc, i)
			page.Text = ocrText
			if warning != "" {
				slog.Warn("OCR fallback produced no text", "file", name, "page", page.Number, "reason", warning)
				res.Warnings = append(res.Warnings, fmt.Sprintf("page %d: %s", page.Number, warning))
			}
		}

		res.Pages = append(res.Pages, page)
		if progress != nil {
			progress(int(math.Round(float64(i+1) / float64(n) * 100)))
		}
	}

	return res, nil
}

// recognizePage rasterizes a page and runs OCR under the configured timeout.
// It returns the recognized text, or "" and a reason.
func (e *Extractor) recognizePage(ctx context.Context, doc Document, page int) (string, string) {
	if e.engine == nil {
		return "", "no text layer and OCR is disabled"
	}

	img, err := doc.Render(page, e.cfg.RenderScale)
	if err != nil {
		return "", fmt.Sprintf("rasterization failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.OCRTimeout)
	defer cancel()

	type outcome struct {
		text string
		err  error
	}
	// buffered so an engine that overruns the deadline can still finish and exit
	done := make(chan outcome, 1)
	go func() {
		text, err := e.engine.Recognize(ctx, img, e.cfg.Language)
		done <- outcome{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Sprintf("OCR timed out after %s", e.cfg.OCRTimeout)
		}
		return "", fmt.Sprintf("OCR aborted: %v", ctx.Err())
	case out := <-done:
		if out.err != nil {
			return "", fmt.Sprintf("OCR failed: %v", out.err)
		}
		text := ocr.CleanText(out.text)
		if text == "" {
			return "", "OCR found no text"
		}
		return text, ""
	}
}
