package ocr

import "context"

// DefaultLanguage is the recognition hint used for Brazilian invoices
const DefaultLanguage = "por+eng"

// Engine defines the interface for optical character recognition
type Engine interface {
	// Recognize returns the text found in a PNG image.
	// Implementations must stop work when ctx is done.
	Recognize(ctx context.Context, image []byte, lang string) (string, error)
	// Close releases any resources held by the engine
	Close() error
}

// transcribePrompt is the shared prompt used by the vision model engines
const transcribePrompt = `You are an OCR engine. The image is one page of a Brazilian municipal service invoice (NFS-e).

Transcribe every piece of text you can read, in reading order, exactly as printed.

Important:
- Keep labels and their values on the same line when they appear side by side
- Preserve numbers, dates, currency amounts and punctuation exactly (e.g. "R$ 1.500,00", "03/04/2024", "12.345.678/0001-90")
- Do not translate, summarize or correct anything
- Do not add commentary before or after the text
- Do not use markdown code blocks`

func promptFor(lang string) string {
	if lang == "" {
		return transcribePrompt
	}
	return transcribePrompt + "\n- Expected languages (tesseract codes): " + lang
}
