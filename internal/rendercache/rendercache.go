// Package rendercache serves thumbnail, preview, and text artifacts for a
// job's pages, rendering lazily and persisting results under the job's
// scratch cache directory.
package rendercache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/local/tipificador/internal/errs"
	"github.com/local/tipificador/internal/pageindex"
	"github.com/local/tipificador/internal/pdfengine"
)

// Source resolves a page index entry to an opened document, by pdf index.
type Source interface {
	Open(pdfIdx int) (*pdfengine.Doc, error)
}

type Cache struct {
	cacheDir   string
	index      pageindex.Index
	src        Source
	thumbWidth int
	viewWidth  int
	cacheView  bool
}

func New(cacheDir string, index pageindex.Index, src Source, thumbWidth, viewWidth int, cacheView bool) *Cache {
	return &Cache{
		cacheDir:   cacheDir,
		index:      index,
		src:        src,
		thumbWidth: thumbWidth,
		viewWidth:  viewWidth,
		cacheView:  cacheView,
	}
}

func (c *Cache) path(kind string, g int, ext string) string {
	return filepath.Join(c.cacheDir, fmt.Sprintf("%s_%d.%s", kind, g, ext))
}

// Thumb returns the thumbnail PNG for global page g, rendering and caching
// it on first access.
func (c *Cache) Thumb(g int) ([]byte, error) {
	path := c.path("thumb", g, "png")
	if data, err := os.ReadFile(path); err == nil {
		return data, nil
	}
	ref, err := c.index.Resolve(g)
	if err != nil {
		return nil, err
	}
	doc, err := c.src.Open(ref.PdfIdx)
	if err != nil {
		return nil, err
	}
	defer doc.Close()
	png, err := doc.RenderPNGWidth(ref.LocalPage, c.thumbWidth)
	if err != nil {
		return nil, err
	}
	_ = os.WriteFile(path, png, 0o644)
	return png, nil
}

// View returns the preview PNG for global page g. Persisted to disk only
// when view caching is enabled by configuration.
func (c *Cache) View(g int) ([]byte, error) {
	path := c.path("view", g, "png")
	if c.cacheView {
		if data, err := os.ReadFile(path); err == nil {
			return data, nil
		}
	}
	ref, err := c.index.Resolve(g)
	if err != nil {
		return nil, err
	}
	doc, err := c.src.Open(ref.PdfIdx)
	if err != nil {
		return nil, err
	}
	defer doc.Close()
	png, err := doc.RenderPNGWidth(ref.LocalPage, c.viewWidth)
	if err != nil {
		return nil, err
	}
	if c.cacheView {
		_ = os.WriteFile(path, png, 0o644)
	}
	return png, nil
}

// EmbeddedText returns the page's embedded text, caching it as text_{g}.txt.
func (c *Cache) EmbeddedText(g int) (string, error) {
	path := c.path("text", g, "txt")
	if data, err := os.ReadFile(path); err == nil {
		return string(data), nil
	}
	ref, err := c.index.Resolve(g)
	if err != nil {
		return "", err
	}
	doc, err := c.src.Open(ref.PdfIdx)
	if err != nil {
		return "", err
	}
	defer doc.Close()
	text, err := doc.ExtractText(ref.LocalPage)
	if err != nil {
		return "", err
	}
	_ = os.WriteFile(path, []byte(text), 0o644)
	return text, nil
}

// OcrText reads a previously cached OCR result for global page g. suffix is
// "" for full-page OCR or "_head" for header-only OCR. Reports false if
// nothing has been cached yet — callers run OCR themselves and store the
// result via PutOcrText.
func (c *Cache) OcrText(g int, suffix string) (string, bool) {
	path := c.path("ocr"+suffix, g, "txt")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// PutOcrText caches an OCR result for global page g.
func (c *Cache) PutOcrText(g int, suffix, text string) error {
	path := c.path("ocr"+suffix, g, "txt")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return errs.NewInternal("write ocr cache", err)
	}
	return nil
}
