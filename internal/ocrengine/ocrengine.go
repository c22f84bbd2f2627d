// Package ocrengine binds Tesseract in-process via gosseract for the header
// and full OCR tiers of the extraction pipeline.
package ocrengine

import (
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/local/tipificador/internal/errs"
)

// Engine renders no images itself; it turns a PNG into text.
type Engine struct {
	lang string
	psm  int
}

func New(lang string, psm int) *Engine {
	return &Engine{lang: lang, psm: psm}
}

// Text runs OCR over png, trying the configured language first and falling
// back to "eng" once if the primary invocation fails. Returns the text from
// whichever attempt succeeded.
func (e *Engine) Text(png []byte) (string, error) {
	text, err := e.run(png, e.lang)
	if err == nil {
		return text, nil
	}
	if e.lang == "eng" {
		return "", errs.NewInternal("tesseract ocr failed", err)
	}
	text, fallbackErr := e.run(png, "eng")
	if fallbackErr != nil {
		return "", errs.NewInternal("tesseract ocr failed (primary and eng fallback)", fallbackErr)
	}
	return text, nil
}

func (e *Engine) run(png []byte, lang string) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(splitLang(lang)...); err != nil {
		return "", err
	}
	if e.psm != 0 {
		if err := client.SetPageSegMode(gosseract.PageSegMode(e.psm)); err != nil {
			return "", err
		}
	}
	if err := client.SetImageFromBytes(png); err != nil {
		return "", err
	}
	text, err := client.Text()
	if err != nil {
		return "", err
	}
	return text, nil
}

func splitLang(lang string) []string {
	return strings.Split(lang, "+")
}
