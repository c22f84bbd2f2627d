// Package pdfengine wraps go-fitz (MuPDF) for page rendering, text and
// coordinate-block extraction, and pdfcpu for page concatenation.
package pdfengine

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"regexp"
	"strconv"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/local/tipificador/internal/errs"
)

// TextBlock is a fragment of text positioned on a page, in PDF points with
// the origin at the top-left corner.
type TextBlock struct {
	X    float64
	Y    float64
	Text string
}

// Doc is an opened PDF document. Callers must call Close when done.
type Doc struct {
	path string
	doc  *fitz.Document
}

// Open opens the PDF at path. A document that fails to parse is reported as
// CorruptPdf, matching the admission contract in the component design.
func Open(path string) (*Doc, error) {
	d, err := fitz.New(path)
	if err != nil {
		return nil, errs.NewCorruptPdf("open pdf: " + err.Error())
	}
	if d.NumPage() == 0 {
		d.Close()
		return nil, errs.NewCorruptPdf("pdf has no pages")
	}
	return &Doc{path: path, doc: d}, nil
}

func (d *Doc) Close() error { return d.doc.Close() }

func (d *Doc) PageCount() int { return d.doc.NumPage() }

// PageSize returns the page's width and height in points.
func (d *Doc) PageSize(pageIdx int) (width, height float64, err error) {
	if pageIdx < 0 || pageIdx >= d.doc.NumPage() {
		return 0, 0, errs.NewNotFound("page index out of range")
	}
	img, err := d.doc.ImageDPI(pageIdx, 72.0)
	if err != nil {
		return 0, 0, errs.NewCorruptPdf("render page for sizing: " + err.Error())
	}
	b := img.Bounds()
	return float64(b.Dx()), float64(b.Dy()), nil
}

// RenderPNGWidth renders pageIdx as a PNG scaled so its width matches
// targetWidth, preserving aspect ratio.
func (d *Doc) RenderPNGWidth(pageIdx, targetWidth int) ([]byte, error) {
	if pageIdx < 0 || pageIdx >= d.doc.NumPage() {
		return nil, errs.NewNotFound("page index out of range")
	}
	base, err := d.doc.ImageDPI(pageIdx, 72.0)
	if err != nil {
		return nil, errs.NewCorruptPdf("render page: " + err.Error())
	}
	baseWidth := base.Bounds().Dx()
	if baseWidth == 0 {
		return nil, errs.NewCorruptPdf("page has zero width")
	}
	zoom := float64(targetWidth) / float64(baseWidth) * 72.0
	img, err := d.doc.ImageDPI(pageIdx, zoom)
	if err != nil {
		return nil, errs.NewCorruptPdf("render page at target width: " + err.Error())
	}
	return encodePNG(img)
}

// RenderPNGAtDPI renders pageIdx at the given DPI. zoom = dpi / 72.0, the
// same ratio the reference implementation always uses for OCR rendering.
func (d *Doc) RenderPNGAtDPI(pageIdx int, dpi int) ([]byte, error) {
	if pageIdx < 0 || pageIdx >= d.doc.NumPage() {
		return nil, errs.NewNotFound("page index out of range")
	}
	img, err := d.doc.ImageDPI(pageIdx, float64(dpi))
	if err != nil {
		return nil, errs.NewCorruptPdf("render page at dpi: " + err.Error())
	}
	return encodePNG(img)
}

// RenderHeaderCropPNG renders only the top headerRatio fraction of pageIdx at
// the given DPI, used for the cheaper header-only OCR tier.
func (d *Doc) RenderHeaderCropPNG(pageIdx int, dpi int, headerRatio float64) ([]byte, error) {
	if pageIdx < 0 || pageIdx >= d.doc.NumPage() {
		return nil, errs.NewNotFound("page index out of range")
	}
	img, err := d.doc.ImageDPI(pageIdx, float64(dpi))
	if err != nil {
		return nil, errs.NewCorruptPdf("render page for header crop: " + err.Error())
	}
	b := img.Bounds()
	cropHeight := int(float64(b.Dy()) * headerRatio)
	if cropHeight < 1 {
		cropHeight = 1
	}
	cropRect := image.Rect(b.Min.X, b.Min.Y, b.Max.X, b.Min.Y+cropHeight)
	cropped := image.NewRGBA(cropRect)
	copyRect(cropped, cropRect, img)
	return encodePNG(cropped)
}

func copyRect(dst *image.RGBA, r image.Rectangle, src image.Image) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			dst.Set(x, y, src.At(x, y))
		}
	}
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, errs.NewInternal("encode png", err)
	}
	return buf.Bytes(), nil
}

// ExtractText returns the page's embedded text layer, unmodified.
func (d *Doc) ExtractText(pageIdx int) (string, error) {
	if pageIdx < 0 || pageIdx >= d.doc.NumPage() {
		return "", errs.NewNotFound("page index out of range")
	}
	text, err := d.doc.Text(pageIdx)
	if err != nil {
		return "", errs.NewCorruptPdf("extract text: " + err.Error())
	}
	return text, nil
}

var (
	pTagRegex = regexp.MustCompile(`<p\b[^>]*style="([^"]*)"[^>]*>(.*?)</p>`)
	leftRegex = regexp.MustCompile(`left:\s*([\d.]+)pt`)
	topRegex  = regexp.MustCompile(`top:\s*([\d.]+)pt`)
	tagStrip  = regexp.MustCompile(`<[^>]+>`)
)

// ExtractBlocks returns positioned text fragments for pageIdx, parsed from
// go-fitz's HTML rendering. Blocks without parseable coordinates are
// dropped rather than returned with a zero position, since a zero position
// would be indistinguishable from a real top-left fragment.
func (d *Doc) ExtractBlocks(pageIdx int) ([]TextBlock, error) {
	if pageIdx < 0 || pageIdx >= d.doc.NumPage() {
		return nil, errs.NewNotFound("page index out of range")
	}
	html, err := d.doc.HTML(pageIdx, false)
	if err != nil {
		return nil, errs.NewCorruptPdf("extract html: " + err.Error())
	}
	var blocks []TextBlock
	for _, m := range pTagRegex.FindAllStringSubmatch(html, -1) {
		style, inner := m[1], m[2]
		lm := leftRegex.FindStringSubmatch(style)
		tm := topRegex.FindStringSubmatch(style)
		if lm == nil || tm == nil {
			continue
		}
		x, errX := strconv.ParseFloat(lm[1], 64)
		y, errY := strconv.ParseFloat(tm[1], 64)
		if errX != nil || errY != nil {
			continue
		}
		text := tagStrip.ReplaceAllString(inner, "")
		if text == "" {
			continue
		}
		blocks = append(blocks, TextBlock{X: x, Y: y, Text: text})
	}
	return blocks, nil
}

// PageRef identifies one page of a source document for concatenation.
type PageRef struct {
	SourcePath string
	PageIdx    int // 0-based
}

// Concatenate builds a new PDF from the given ordered page references and
// returns its bytes. Consecutive runs from the same source file are merged
// into a single pdfcpu trim/collect call to avoid re-opening a source for
// every page.
func Concatenate(pages []PageRef) ([]byte, error) {
	if len(pages) == 0 {
		return nil, errs.NewInternal("concatenate with no pages", nil)
	}

	tmpOut, err := os.CreateTemp("", "tipificador-assembly-*.pdf")
	if err != nil {
		return nil, errs.NewInternal("create temp output", err)
	}
	outPath := tmpOut.Name()
	tmpOut.Close()
	defer os.Remove(outPath)

	var parts []string
	i := 0
	for i < len(pages) {
		j := i + 1
		for j < len(pages) && pages[j].SourcePath == pages[i].SourcePath && pages[j].PageIdx == pages[j-1].PageIdx+1 {
			j++
		}
		partPath, err := extractRun(pages[i].SourcePath, pages[i].PageIdx, pages[j-1].PageIdx)
		if err != nil {
			for _, p := range parts {
				os.Remove(p)
			}
			return nil, err
		}
		parts = append(parts, partPath)
		i = j
	}
	defer func() {
		for _, p := range parts {
			os.Remove(p)
		}
	}()

	if len(parts) == 1 {
		data, err := os.ReadFile(parts[0])
		if err != nil {
			return nil, errs.NewInternal("read single-part assembly output", err)
		}
		return data, nil
	}

	if err := api.MergeCreateFile(parts, outPath, false, nil); err != nil {
		return nil, errs.NewInternal("merge assembly parts", err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, errs.NewInternal("read merged assembly output", err)
	}
	return data, nil
}

// extractRun trims sourcePath down to the inclusive 0-based page range
// [fromIdx, toIdx] and returns the path to a temp file holding the result.
func extractRun(sourcePath string, fromIdx, toIdx int) (string, error) {
	tmp, err := os.CreateTemp("", "tipificador-run-*.pdf")
	if err != nil {
		return "", errs.NewInternal("create temp run file", err)
	}
	path := tmp.Name()
	tmp.Close()

	pageSelect := make([]string, 0, toIdx-fromIdx+1)
	for p := fromIdx; p <= toIdx; p++ {
		pageSelect = append(pageSelect, strconv.Itoa(p+1))
	}
	if err := api.TrimFile(sourcePath, path, pageSelect, nil); err != nil {
		os.Remove(path)
		return "", errs.NewInternal(fmt.Sprintf("trim pages %v from %s", pageSelect, sourcePath), err)
	}
	return path, nil
}
