// Package jobapi implements the job controller: admission of source PDFs,
// lazy preview/text serving, automatic per-page classification, and final
// assembly into a downloadable archive.
package jobapi

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/local/tipificador/internal/assembly"
	"github.com/local/tipificador/internal/classify"
	"github.com/local/tipificador/internal/errs"
	"github.com/local/tipificador/internal/filetype"
	"github.com/local/tipificador/internal/invoice"
	"github.com/local/tipificador/internal/metrics"
	"github.com/local/tipificador/internal/ocrengine"
	"github.com/local/tipificador/internal/ocrtier"
	"github.com/local/tipificador/internal/pageindex"
	"github.com/local/tipificador/internal/pdfengine"
	"github.com/local/tipificador/internal/rendercache"
	"github.com/local/tipificador/internal/scratch"
)

// Meta is the on-disk record for one job, written atomically by scratch.WriteMeta.
type Meta struct {
	JobID           string             `json:"jobId"`
	Files           []string           `json:"files"`
	TotalPages      int                `json:"totalPages"`
	PageIndex       []pageindex.Ref    `json:"pageIndex"`
	CreatedAt       float64            `json:"createdAt"`
	Classifications map[string]*string `json:"classifications"`
}

// UploadFile is one admitted source document's raw bytes and original name.
type UploadFile struct {
	Name string
	Data []byte
}

// Controller ties the scratch store, render cache, OCR tier, classifier,
// invoice extractor, and assembly stage together behind the job lifecycle.
type Controller struct {
	store       *scratch.Store
	maxFiles    int
	maxFileSize int64
	thumbWidth  int
	viewWidth   int
	cacheView   bool
	ocrCfg      ocrtier.Config
	ocrLang     string
	ocrPsm      int
	sniffer     *filetype.Detector
}

type Options struct {
	MaxFiles    int
	MaxFileSize int64
	ThumbWidth  int
	ViewWidth   int
	CacheView   bool
	Ocr         ocrtier.Config
}

func New(store *scratch.Store, opts Options) *Controller {
	return &Controller{
		store:       store,
		maxFiles:    opts.MaxFiles,
		maxFileSize: opts.MaxFileSize,
		thumbWidth:  opts.ThumbWidth,
		viewWidth:   opts.ViewWidth,
		cacheView:   opts.CacheView,
		ocrCfg:      opts.Ocr,
		ocrLang:     opts.Ocr.Lang,
		ocrPsm:      opts.Ocr.PSM,
		sniffer:     filetype.New(),
	}
}

// Admit creates a new job from the given uploaded files, in upload order.
func (c *Controller) Admit(files []UploadFile) (*Meta, error) {
	if len(files) == 0 {
		return nil, errs.NewBadInput("no files uploaded")
	}
	if len(files) > c.maxFiles {
		return nil, errs.NewTooLarge(fmt.Sprintf("too many files: %d exceeds limit %d", len(files), c.maxFiles))
	}
	for _, f := range files {
		if int64(len(f.Data)) > c.maxFileSize {
			return nil, errs.NewTooLarge(fmt.Sprintf("file %s exceeds max size", f.Name))
		}
		if !c.sniffer.IsPDF(f.Data) {
			return nil, errs.NewBadInput(fmt.Sprintf("file %s is not a pdf", f.Name))
		}
	}

	id, err := c.store.MkJob()
	if err != nil {
		return nil, err
	}
	dir := c.store.JobDir(id)

	names := make([]string, len(files))
	pageCounts := make([]int, len(files))
	for i, f := range files {
		path := filepath.Join(dir, "pdfs", fmt.Sprintf("src_%d.pdf", i))
		if err := os.WriteFile(path, f.Data, 0o644); err != nil {
			c.store.RemoveJob(id)
			return nil, errs.NewInternal("write source pdf", err)
		}
		doc, err := pdfengine.Open(path)
		if err != nil {
			c.store.RemoveJob(id)
			return nil, err
		}
		pageCounts[i] = doc.PageCount()
		doc.Close()
		names[i] = f.Name
	}

	index := pageindex.Build(pageCounts)
	meta := &Meta{
		JobID:           id,
		Files:           names,
		TotalPages:      index.TotalPages(),
		PageIndex:       []pageindex.Ref(index),
		CreatedAt:       float64(time.Now().Unix()),
		Classifications: make(map[string]*string),
	}
	if err := scratch.WriteMeta(c.store.JobMetaPath(id), meta); err != nil {
		c.store.RemoveJob(id)
		return nil, err
	}
	return meta, nil
}

func (c *Controller) readMeta(jobID string) (*Meta, error) {
	var meta Meta
	if err := scratch.ReadMeta(c.store.JobMetaPath(jobID), &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Get returns job shape without mutating anything.
func (c *Controller) Get(jobID string) (*Meta, error) {
	return c.readMeta(jobID)
}

func (c *Controller) pdfPath(jobID string, pdfIdx int) string {
	return filepath.Join(c.store.JobDir(jobID), "pdfs", fmt.Sprintf("src_%d.pdf", pdfIdx))
}

type docSource struct {
	jobID string
	c     *Controller
}

func (s docSource) Open(pdfIdx int) (*pdfengine.Doc, error) {
	return pdfengine.Open(s.c.pdfPath(s.jobID, pdfIdx))
}

func (c *Controller) cache(jobID string, index pageindex.Index) *rendercache.Cache {
	cacheDir := filepath.Join(c.store.JobDir(jobID), "cache")
	return rendercache.New(cacheDir, index, docSource{jobID: jobID, c: c}, c.thumbWidth, c.viewWidth, c.cacheView)
}

// Thumb returns the thumbnail PNG for global page g of jobID.
func (c *Controller) Thumb(jobID string, g int) ([]byte, error) {
	meta, err := c.readMeta(jobID)
	if err != nil {
		return nil, err
	}
	return c.cache(jobID, pageindex.Index(meta.PageIndex)).Thumb(g)
}

// View returns the preview PNG for global page g of jobID.
func (c *Controller) View(jobID string, g int) ([]byte, error) {
	meta, err := c.readMeta(jobID)
	if err != nil {
		return nil, err
	}
	return c.cache(jobID, pageindex.Index(meta.PageIndex)).View(g)
}

// OcrText returns full-page OCR text for global page g, running OCR if not
// already cached or if refresh is requested.
func (c *Controller) OcrText(jobID string, g int, refresh bool) (string, error) {
	meta, err := c.readMeta(jobID)
	if err != nil {
		return "", err
	}
	index := pageindex.Index(meta.PageIndex)
	rc := c.cache(jobID, index)
	if !refresh {
		if text, ok := rc.OcrText(g, ""); ok {
			return text, nil
		}
	}
	if !c.ocrCfg.Enabled {
		return "", errs.NewOcrDisabled("ocr is disabled")
	}
	ocr := ocrengine.New(c.ocrLang, c.ocrPsm)
	ref, err := index.Resolve(g)
	if err != nil {
		return "", err
	}
	doc, err := docSource{jobID: jobID, c: c}.Open(ref.PdfIdx)
	if err != nil {
		return "", err
	}
	png, err := doc.RenderPNGAtDPI(ref.LocalPage, c.ocrCfg.DPI)
	doc.Close()
	if err != nil {
		return "", err
	}
	text, err := ocr.Text(png)
	if err != nil {
		return "", err
	}
	_ = rc.PutOcrText(g, "", text)
	return text, nil
}

// AutoClassifyResult is the per-page category map returned to the caller,
// with every page's value guaranteed non-null.
type AutoClassifyResult map[string]classify.Category

// AutoClassify runs the tiered OCR extractor and rule classifier with
// per-PDF propagation over every page of jobID, persisting the result onto
// the job's meta record.
func (c *Controller) AutoClassify(jobID string, cancel ocrtier.CancelFunc) (AutoClassifyResult, error) {
	if !c.ocrCfg.Enabled {
		return nil, errs.NewOcrDisabled("OCR is disabled on this server")
	}
	meta, err := c.readMeta(jobID)
	if err != nil {
		return nil, err
	}
	index := pageindex.Index(meta.PageIndex)
	rc := c.cache(jobID, index)
	ocr := ocrengine.New(c.ocrLang, c.ocrPsm)
	x := ocrtier.New(c.ocrCfg, docSource{jobID: jobID, c: c}, rc, ocr, index)

	texts, err := x.RunAll(cancel)
	if err != nil {
		return nil, err
	}

	pages := make([]classify.Page, 0, len(texts))
	for g, text := range texts {
		pages = append(pages, classify.Page{Global: g, PdfIdx: index[g].PdfIdx, Text: text})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Global < pages[j].Global })

	result := classify.Propagate(pages)

	out := make(AutoClassifyResult, len(result))
	persisted := make(map[string]*string, len(result))
	for g, cat := range result {
		catCopy := string(cat)
		key := strconv.Itoa(g)
		out[key] = cat
		persisted[key] = &catCopy
	}
	meta.Classifications = persisted
	if err := scratch.WriteMeta(c.store.JobMetaPath(jobID), meta); err != nil {
		return nil, err
	}
	return out, nil
}

// ProcessRequest is the decoded /process request body.
type ProcessRequest struct {
	Classifications map[string]*string
	NitOverride     string
	OcfeOverride    string
	KeepJob         bool
}

// ProcessResult is the final archive and its suggested download name.
type ProcessResult struct {
	ArchiveName string
	Data        []byte
}

// Process runs the invoice metadata extractor and assembly stage, then
// removes the job's scratch directory unless KeepJob was requested.
func (c *Controller) Process(jobID string, req ProcessRequest) (*ProcessResult, error) {
	meta, err := c.readMeta(jobID)
	if err != nil {
		return nil, err
	}
	index := pageindex.Index(meta.PageIndex)
	rc := c.cache(jobID, index)

	classification := make(map[int]classify.Category)
	for key, val := range req.Classifications {
		g, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		if g < 0 || g >= index.TotalPages() {
			continue
		}
		if val == nil {
			continue
		}
		classification[g] = classify.Category(*val)
	}

	fevGlobals := make([]int, 0)
	for g, cat := range classification {
		if cat == classify.FEV {
			fevGlobals = append(fevGlobals, g)
		}
	}
	if len(fevGlobals) == 0 {
		return nil, errs.NewFevRequired("at least one page must be classified FEV")
	}
	sort.Ints(fevGlobals)

	fevPages := make([]invoice.Page, 0, len(fevGlobals))
	for _, g := range fevGlobals {
		ref, err := index.Resolve(g)
		if err != nil {
			return nil, err
		}
		doc, err := docSource{jobID: jobID, c: c}.Open(ref.PdfIdx)
		if err != nil {
			return nil, err
		}
		text, errText := rc.EmbeddedText(g)
		blocks, errBlocks := doc.ExtractBlocks(ref.LocalPage)
		_, height, errSize := doc.PageSize(ref.LocalPage)
		doc.Close()
		if errText != nil {
			return nil, errText
		}
		if errBlocks != nil {
			return nil, errBlocks
		}
		if errSize != nil {
			return nil, errSize
		}
		fevPages = append(fevPages, invoice.Page{Text: text, Blocks: blocks, Height: height})
	}

	nit, code := invoice.Extract(fevPages, req.NitOverride, req.OcfeOverride)
	if nit == "" || code == "" {
		var nitPtr, codePtr *string
		if nit != "" {
			nitPtr = &nit
		}
		if code != "" {
			codePtr = &code
		}
		return nil, errs.NewUnresolved("could not determine nit/invoice code", nitPtr, codePtr)
	}

	resolver := assembly.ResolverFromIndex(index, func(pdfIdx int) string { return c.pdfPath(jobID, pdfIdx) })
	pageText := func(g int) string {
		text, _ := rc.EmbeddedText(g)
		return text
	}
	start := time.Now()
	outputs, err := assembly.Build(classification, resolver, pageText, nit, code)
	if err != nil {
		return nil, err
	}
	archive, err := assembly.Zip(outputs)
	if err != nil {
		return nil, err
	}
	metrics.ObserveAssembly(time.Since(start))

	if !req.KeepJob {
		c.store.RemoveJob(jobID)
	}

	return &ProcessResult{
		ArchiveName: code + ".zip",
		Data:        archive,
	}, nil
}

// Sweep removes expired job directories older than ttl. Best-effort.
func (c *Controller) Sweep(ttl time.Duration) {
	c.store.Sweep(ttl)
}
