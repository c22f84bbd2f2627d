// Package ocrtier implements the tiered text extractor used for automatic
// classification: embedded text first, then header OCR, then full-page
// OCR, each tier short-circuiting as soon as it yields a strong rule match.
package ocrtier

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/local/tipificador/internal/classify"
	"github.com/local/tipificador/internal/errs"
	"github.com/local/tipificador/internal/metrics"
	"github.com/local/tipificador/internal/pageindex"
	"github.com/local/tipificador/internal/pdfengine"
	"github.com/local/tipificador/internal/rendercache"
)

// Source opens the document holding a given page index entry.
type Source interface {
	Open(pdfIdx int) (*pdfengine.Doc, error)
}

// Config mirrors the OCR-relevant slice of the ambient configuration.
type Config struct {
	Enabled     bool
	Lang        string
	DPI         int
	HeaderDPI   int
	HeaderRatio float64
	PSM         int
	MinTextLen  int
	Workers     int
}

// Ocr turns a rendered page image into text.
type Ocr interface {
	Text(png []byte) (string, error)
}

// Extractor combines page rendering, OCR, and the rule classifier to
// produce a text fragment rich enough for classification on the least
// amount of work.
type Extractor struct {
	cfg   Config
	src   Source
	cache *rendercache.Cache
	ocr   Ocr
	index pageindex.Index
}

func New(cfg Config, src Source, cache *rendercache.Cache, ocr Ocr, index pageindex.Index) *Extractor {
	return &Extractor{cfg: cfg, src: src, cache: cache, ocr: ocr, index: index}
}

// CancelFunc reports whether the enclosing operation should stop, polled at
// tier boundaries.
type CancelFunc func() bool

// TextForClassification runs the three-tier extraction for global page g.
func (x *Extractor) TextForClassification(g int, cancel CancelFunc) (string, error) {
	if cancel != nil && cancel() {
		return "", errs.NewCancelled()
	}

	embedded, err := x.cache.EmbeddedText(g)
	if err != nil {
		return "", err
	}
	trimmed := strings.TrimSpace(embedded)
	useful := len(trimmed) >= x.cfg.MinTextLen

	if useful {
		if classify.Classify(embedded, false) != "" {
			return embedded, nil
		}
	}

	if !x.cfg.Enabled {
		return embedded, nil
	}

	if cancel != nil && cancel() {
		return "", errs.NewCancelled()
	}

	headerText, err := x.headerOcr(g)
	if err == nil && classify.Classify(headerText, false) != "" {
		return headerText, nil
	}
	if useful {
		return embedded, nil
	}

	if cancel != nil && cancel() {
		return "", errs.NewCancelled()
	}

	fullText, err := x.fullOcr(g)
	if err != nil {
		return "", err
	}
	return fullText, nil
}

func (x *Extractor) headerOcr(g int) (string, error) {
	if text, ok := x.cache.OcrText(g, "_head"); ok {
		return text, nil
	}
	start := time.Now()
	ref, err := x.index.Resolve(g)
	if err != nil {
		return "", err
	}
	doc, err := x.src.Open(ref.PdfIdx)
	if err != nil {
		return "", err
	}
	defer doc.Close()

	headerDpi := x.cfg.HeaderDPI
	if headerDpi > x.cfg.DPI || headerDpi == 0 {
		headerDpi = x.cfg.DPI
	}
	png, err := doc.RenderHeaderCropPNG(ref.LocalPage, headerDpi, x.cfg.HeaderRatio)
	if err != nil {
		metrics.ObserveOcrTier("header", "render_error", time.Since(start))
		return "", err
	}
	text, err := x.ocr.Text(png)
	if err != nil {
		metrics.ObserveOcrTier("header", "error", time.Since(start))
		return "", errs.NewInternal("header ocr", err)
	}
	metrics.ObserveOcrTier("header", "ok", time.Since(start))
	_ = x.cache.PutOcrText(g, "_head", text)
	return text, nil
}

func (x *Extractor) fullOcr(g int) (string, error) {
	if text, ok := x.cache.OcrText(g, ""); ok {
		return text, nil
	}
	start := time.Now()
	ref, err := x.index.Resolve(g)
	if err != nil {
		return "", err
	}
	doc, err := x.src.Open(ref.PdfIdx)
	if err != nil {
		return "", err
	}
	defer doc.Close()

	png, err := doc.RenderPNGAtDPI(ref.LocalPage, x.cfg.DPI)
	if err != nil {
		metrics.ObserveOcrTier("full", "render_error", time.Since(start))
		return "", err
	}
	text, err := x.ocr.Text(png)
	if err != nil {
		metrics.ObserveOcrTier("full", "error", time.Since(start))
		return "", errs.NewInternal("full ocr", err)
	}
	metrics.ObserveOcrTier("full", "ok", time.Since(start))
	_ = x.cache.PutOcrText(g, "", text)
	return text, nil
}

// RunAll drives TextForClassification over every page in the index with a
// bounded worker pool, returning a map from global index to text. Stops and
// returns the first error encountered, including cancellation: pages not
// yet started are skipped, pages already running finish their current call.
func (x *Extractor) RunAll(cancel CancelFunc) (map[int]string, error) {
	workers := x.cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	results := make([]string, x.index.TotalPages())

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(workers)
	for i := 0; i < x.index.TotalPages(); i++ {
		i := i
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			text, err := x.TextForClassification(i, cancel)
			if err != nil {
				return err
			}
			results[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[int]string, len(results))
	for i, t := range results {
		out[i] = t
	}
	return out, nil
}
