package ocr

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Tesseract implements the Engine interface by shelling out to the tesseract CLI
type Tesseract struct {
	binary      string
	tessdataDir string
	psm         int
	runner      Runner
}

// TesseractConfig configures the tesseract engine
type TesseractConfig struct {
	Binary      string // binary name or absolute path; "tesseract" when empty
	TessdataDir string
	PSM         int // page segmentation mode, 0 leaves the tesseract default
}

// NewTesseract creates a new Tesseract engine
func NewTesseract(cfg TesseractConfig) *Tesseract {
	return NewTesseractWithRunner(cfg, execRunner{})
}

// NewTesseractWithRunner creates a Tesseract engine with a custom runner for testing
func NewTesseractWithRunner(cfg TesseractConfig, runner Runner) *Tesseract {
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	return &Tesseract{
		binary:      cfg.Binary,
		tessdataDir: cfg.TessdataDir,
		psm:         cfg.PSM,
		runner:      runner,
	}
}

// Recognize writes the image to a temporary file and runs
// tesseract <file> stdout -l <lang>
func (t *Tesseract) Recognize(ctx context.Context, image []byte, lang string) (string, error) {
	if lang == "" {
		lang = DefaultLanguage
	}

	tmp, err := os.CreateTemp("", "nfse-ocr-*.png")
	if err != nil {
		return "", fmt.Errorf("creating temp image: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(image); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing temp image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing temp image: %w", err)
	}

	args := []string{tmp.Name(), "stdout", "-l", lang}
	if t.psm > 0 {
		args = append(args, "--psm", strconv.Itoa(t.psm))
	}
	if t.tessdataDir != "" {
		args = append(args, "--tessdata-dir", t.tessdataDir)
	}

	out, errb, err := t.runner.Run(ctx, t.binary, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("tesseract: %w", ctxErr)
		}
		return "", fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(truncate(string(errb), 512)))
	}

	return CleanText(string(out)), nil
}

// Close is a no-op for the CLI engine
func (t *Tesseract) Close() error {
	return nil
}
