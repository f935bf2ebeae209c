package document

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/heic"
)

// imageDocument is a scanned page with no text layer
type imageDocument struct {
	png []byte
}

func openImage(data []byte) (*imageDocument, error) {
	var img image.Image
	var err error

	// Go's standard image package doesn't support HEIC (common on iPhones)
	if isHEICFormat(data) {
		img, err = heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			if strings.Contains(err.Error(), "unknown format") {
				return nil, fmt.Errorf("unsupported document format. Supported formats: PDF, JPEG, PNG, GIF, HEIC, HEIF. Error: %w", err)
			}
			return nil, fmt.Errorf("decoding image: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return &imageDocument{png: buf.Bytes()}, nil
}

func (d *imageDocument) NumPage() int { return 1 }

func (d *imageDocument) Text(page int) (string, error) {
	if page != 0 {
		return "", fmt.Errorf("page %d out of range", page+1)
	}
	return "", nil
}

// Render returns the scan as decoded; scanned images are already at capture resolution
func (d *imageDocument) Render(page int, scale float64) ([]byte, error) {
	if page != 0 {
		return nil, fmt.Errorf("page %d out of range", page+1)
	}
	return d.png, nil
}

func (d *imageDocument) Close() error { return nil }

// isHEICFormat checks if the image data is in HEIC/HEIF format
// HEIC files carry an ftyp box at offset 4 with a HEIF-family brand
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}
