package pdfextract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

var ErrNoText = errors.New("pdf has no extractable text")

// ExtractText returns the plain text of a PDF with whitespace runs collapsed, cut to at most
// maxRunes runes when maxRunes is positive.
func ExtractText(raw []byte, maxRunes int) (string, error) {
	if len(raw) == 0 {
		return "", ErrNoText
	}
	pdfReader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("open pdf failed: %w", err)
	}
	plainReader, err := pdfReader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text failed: %w", err)
	}
	out, err := io.ReadAll(plainReader)
	if err != nil {
		return "", fmt.Errorf("read pdf text failed: %w", err)
	}

	text := truncate(normalize(string(out)), maxRunes)
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

func normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func truncate(text string, maxRunes int) string {
	runes := []rune(text)
	if maxRunes <= 0 || len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes])
}
