// Package batch implements the batch orchestrator: archive expansion into
// per-package jobs, a one-worker-per-batch sequential processing loop,
// cooperative cancellation, retry, and consolidated archive output.
package batch

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/local/tipificador/internal/errs"
	"github.com/local/tipificador/internal/jobapi"
	"github.com/local/tipificador/internal/metrics"
	"github.com/local/tipificador/internal/ocrtier"
	"github.com/local/tipificador/internal/scratch"
)

// PackageStatus is one of the closed set of per-package lifecycle states.
type PackageStatus string

const (
	PkgPending    PackageStatus = "pending"
	PkgProcessing PackageStatus = "processing"
	PkgDone       PackageStatus = "done"
	PkgError      PackageStatus = "error"
	PkgCancelled  PackageStatus = "cancelled"
)

// Status is one of the closed set of batch lifecycle states.
type Status string

const (
	Ready      Status = "ready"
	Processing Status = "processing"
	Cancelling Status = "cancelling"
	Cancelled  Status = "cancelled"
	Done       Status = "done"
	Partial    Status = "partial"
	Err        Status = "error"
	Pending    Status = "pending"
)

// Package is one top-level folder from the expanded archive.
type Package struct {
	Name         string        `json:"name"`
	Folder       string        `json:"folder"`
	Status       PackageStatus `json:"status"`
	JobID        string        `json:"jobId,omitempty"`
	ResultFile   string        `json:"resultFile,omitempty"`
	DownloadName string        `json:"downloadName,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// Meta is the atomically-written batch metadata record.
type Meta struct {
	BatchID         string    `json:"batchId"`
	Status          Status    `json:"status"`
	Packages        []Package `json:"packages"`
	AllZip          string    `json:"allZip,omitempty"`
	CancelRequested bool      `json:"cancelRequested"`
	CreatedAt       float64   `json:"createdAt"`
}

// Controller drives batch admission and lifecycle.
type Controller struct {
	store      *scratch.Store
	jobs       *jobapi.Controller
	maxPkgs    int
	maxBytes   int64
	workersMu  sync.Mutex
	inFlight   map[string]bool
}

type Options struct {
	MaxPackages int
	MaxBytes    int64
}

func New(store *scratch.Store, jobs *jobapi.Controller, opts Options) *Controller {
	return &Controller{
		store:    store,
		jobs:     jobs,
		maxPkgs:  opts.MaxPackages,
		maxBytes: opts.MaxBytes,
		inFlight: make(map[string]bool),
	}
}

// Admit expands archiveData (a ZIP) into the batch's input directory,
// discovers top-level package folders, and persists batch meta as ready.
func (c *Controller) Admit(archiveData []byte) (*Meta, error) {
	if int64(len(archiveData)) > c.maxBytes {
		return nil, errs.NewTooLarge("batch archive exceeds max bytes")
	}
	id, err := c.store.MkBatch()
	if err != nil {
		return nil, err
	}
	dir := c.store.BatchDir(id)
	inputDir := filepath.Join(dir, "input")

	if err := safeExtractZip(archiveData, inputDir); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	entries, err := os.ReadDir(inputDir)
	if err != nil {
		os.RemoveAll(dir)
		return nil, errs.NewInternal("read expanded batch input", err)
	}
	var packages []Package
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), "__") {
			continue
		}
		packages = append(packages, Package{
			Name:   e.Name(),
			Folder: e.Name(),
			Status: PkgPending,
		})
	}
	if len(packages) == 0 {
		os.RemoveAll(dir)
		return nil, errs.NewBadInput("archive contains no package folders")
	}
	if len(packages) > c.maxPkgs {
		os.RemoveAll(dir)
		return nil, errs.NewTooLarge(fmt.Sprintf("too many packages: %d exceeds limit %d", len(packages), c.maxPkgs))
	}
	sort.Slice(packages, func(i, j int) bool { return packages[i].Name < packages[j].Name })

	meta := &Meta{
		BatchID:   id,
		Status:    Ready,
		Packages:  packages,
		CreatedAt: float64(time.Now().Unix()),
	}
	if err := scratch.WriteMeta(c.store.BatchMetaPath(id), meta); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	return meta, nil
}

func safeExtractZip(data []byte, destDir string) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return errs.NewBadInput("invalid zip archive: " + err.Error())
	}
	for _, f := range zr.File {
		name := f.Name
		if name == "" || strings.HasSuffix(name, "/") {
			continue
		}
		cleaned := filepath.Clean(name)
		if strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
			return errs.NewBadInput("zip entry uses an unsafe path: " + name)
		}
		target := filepath.Join(destDir, cleaned)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return errs.NewInternal("create extraction directory", err)
		}
		src, err := f.Open()
		if err != nil {
			return errs.NewBadInput("read zip entry " + name + ": " + err.Error())
		}
		out, err := os.Create(target)
		if err != nil {
			src.Close()
			return errs.NewInternal("create extracted file", err)
		}
		_, copyErr := io.Copy(out, src)
		src.Close()
		out.Close()
		if copyErr != nil {
			return errs.NewInternal("write extracted file", copyErr)
		}
	}
	return nil
}

func (c *Controller) readMeta(batchID string) (*Meta, error) {
	var meta Meta
	if err := scratch.ReadMeta(c.store.BatchMetaPath(batchID), &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (c *Controller) writeMeta(meta *Meta) error {
	return scratch.WriteMeta(c.store.BatchMetaPath(meta.BatchID), meta)
}

// Get returns the batch's metadata after running status reconciliation.
func (c *Controller) Get(batchID string) (*Meta, error) {
	meta, err := c.readMeta(batchID)
	if err != nil {
		return nil, err
	}
	return c.reconcile(meta)
}

// reconcile recomputes package and batch status from on-disk evidence,
// persisting only if something changed. Pure aside from the write.
func (c *Controller) reconcile(meta *Meta) (*Meta, error) {
	resultsDir := filepath.Join(c.store.BatchDir(meta.BatchID), "results")
	changed := false

	for i := range meta.Packages {
		pkg := &meta.Packages[i]
		if pkg.Status == PkgDone {
			continue
		}
		resultFile := pkg.ResultFile
		if resultFile == "" {
			resultFile = pkg.Name + ".zip"
		}
		if _, err := os.Stat(filepath.Join(resultsDir, resultFile)); err == nil {
			pkg.ResultFile = resultFile
			pkg.Status = PkgDone
			pkg.Error = ""
			changed = true
		}
	}

	if _, err := os.Stat(filepath.Join(resultsDir, "all.zip")); err == nil && meta.AllZip != "all.zip" {
		meta.AllZip = "all.zip"
		changed = true
	}

	if changed {
		meta.Status = deriveStatus(meta)
		if err := c.writeMeta(meta); err != nil {
			return nil, err
		}
	}
	return meta, nil
}

func deriveStatus(meta *Meta) Status {
	var done, errored, pending int
	for _, p := range meta.Packages {
		switch p.Status {
		case PkgDone:
			done++
		case PkgError:
			errored++
		case PkgPending, PkgProcessing:
			pending++
		}
	}
	switch {
	case pending > 0:
		return Processing
	case errored > 0 && done > 0:
		return Partial
	case errored > 0:
		return Err
	case done > 0:
		return Done
	default:
		if meta.Status == "" {
			return Pending
		}
		return meta.Status
	}
}

// Start spawns the background worker unless the batch is already processing
// or done, in which case the call is a no-op (idempotent).
func (c *Controller) Start(batchID string) (*Meta, error) {
	meta, err := c.readMeta(batchID)
	if err != nil {
		return nil, err
	}
	if meta.Status == Processing || meta.Status == Done {
		return meta, nil
	}
	meta.Status = Processing
	meta.CancelRequested = false
	if err := c.writeMeta(meta); err != nil {
		return nil, err
	}
	c.spawnWorker(batchID, nil)
	return meta, nil
}

// RetryErrors relaunches the worker restricted to packages currently in the
// error state.
func (c *Controller) RetryErrors(batchID string) (*Meta, error) {
	meta, err := c.readMeta(batchID)
	if err != nil {
		return nil, err
	}
	var targets []string
	for _, p := range meta.Packages {
		if p.Status == PkgError {
			targets = append(targets, p.Name)
			p.Status = PkgPending
		}
	}
	if len(targets) == 0 {
		return meta, nil
	}
	for i := range meta.Packages {
		if meta.Packages[i].Status == PkgError {
			meta.Packages[i].Status = PkgPending
			meta.Packages[i].Error = ""
		}
	}
	meta.Status = Processing
	meta.CancelRequested = false
	if err := c.writeMeta(meta); err != nil {
		return nil, err
	}
	c.spawnWorker(batchID, targets)
	return meta, nil
}

// Cancel requests cancellation. A batch that has not started transitions
// directly to cancelled; a running batch transitions to cancelling and the
// worker drains cooperatively.
func (c *Controller) Cancel(batchID string) (*Meta, error) {
	meta, err := c.readMeta(batchID)
	if err != nil {
		return nil, err
	}
	if meta.Status != Processing {
		meta.Status = Cancelled
		for i := range meta.Packages {
			if meta.Packages[i].Status == PkgPending {
				meta.Packages[i].Status = PkgCancelled
			}
		}
		if err := c.writeMeta(meta); err != nil {
			return nil, err
		}
		return meta, nil
	}
	meta.Status = Cancelling
	meta.CancelRequested = true
	if err := c.writeMeta(meta); err != nil {
		return nil, err
	}
	return meta, nil
}

func (c *Controller) spawnWorker(batchID string, targetNames []string) {
	c.workersMu.Lock()
	if c.inFlight[batchID] {
		c.workersMu.Unlock()
		return
	}
	c.inFlight[batchID] = true
	c.workersMu.Unlock()

	go func() {
		metrics.IncBatchWorkers()
		defer metrics.DecBatchWorkers()
		defer func() {
			c.workersMu.Lock()
			delete(c.inFlight, batchID)
			c.workersMu.Unlock()
		}()
		c.runWorker(batchID, targetNames)
	}()
}

func (c *Controller) runWorker(batchID string, targetNames []string) {
	targetSet := make(map[string]bool, len(targetNames))
	for _, n := range targetNames {
		targetSet[n] = true
	}

	meta, err := c.readMeta(batchID)
	if err != nil {
		return
	}
	inputDir := filepath.Join(c.store.BatchDir(batchID), "input")
	resultsDir := filepath.Join(c.store.BatchDir(batchID), "results")
	os.MkdirAll(resultsDir, 0o755)

	cancelled := false
	for i := range meta.Packages {
		pkg := &meta.Packages[i]
		latest, _ := c.readMeta(batchID)
		if latest != nil && latest.CancelRequested {
			cancelled = true
			break
		}
		if len(targetSet) > 0 && !targetSet[pkg.Name] {
			continue
		}
		if pkg.Status == PkgDone {
			continue
		}

		pkg.Status = PkgProcessing
		pkg.Error = ""
		c.writeMeta(meta)

		if err := c.processPackage(batchID, pkg, inputDir, resultsDir); err != nil {
			if errs.IsCancelled(err) {
				pkg.Status = PkgCancelled
				pkg.Error = "cancelled"
				cancelled = true
				metrics.IncBatchPackageStatus(string(pkg.Status))
				c.writeMeta(meta)
				break
			}
			pkg.Status = PkgError
			pkg.Error = err.Error()
		}
		metrics.IncBatchPackageStatus(string(pkg.Status))
		c.writeMeta(meta)
	}

	c.consolidate(meta, resultsDir)

	if cancelled {
		meta.Status = Cancelled
		meta.CancelRequested = false
		for i := range meta.Packages {
			if meta.Packages[i].Status == PkgPending || meta.Packages[i].Status == PkgProcessing {
				meta.Packages[i].Status = PkgCancelled
				metrics.IncBatchPackageStatus(string(PkgCancelled))
			}
		}
	} else {
		meta.Status = deriveStatus(meta)
	}
	c.writeMeta(meta)
}

func (c *Controller) processPackage(batchID string, pkg *Package, inputDir, resultsDir string) error {
	pkgDir := filepath.Join(inputDir, pkg.Folder)
	pdfPaths, err := collectPdfPaths(pkgDir)
	if err != nil {
		return err
	}
	if len(pdfPaths) == 0 {
		return errs.NewBadInput("package contains no pdf files")
	}

	var files []jobapi.UploadFile
	for _, p := range pdfPaths {
		data, err := os.ReadFile(p)
		if err != nil {
			return errs.NewInternal("read package pdf", err)
		}
		files = append(files, jobapi.UploadFile{Name: filepath.Base(p), Data: data})
	}

	job, err := c.jobs.Admit(files)
	if err != nil {
		return err
	}
	pkg.JobID = job.JobID

	cancel := ocrtier.CancelFunc(func() bool {
		m, err := c.readMeta(batchID)
		return err == nil && m.CancelRequested
	})
	classifications, err := c.jobs.AutoClassify(job.JobID, cancel)
	if err != nil {
		return err
	}

	req := jobapi.ProcessRequest{
		Classifications: classificationsToPtrMap(classifications),
		KeepJob:         false,
	}
	result, err := c.jobs.Process(job.JobID, req)
	if err != nil {
		return err
	}

	resultFilename := pkg.Name + ".zip"
	if err := os.WriteFile(filepath.Join(resultsDir, resultFilename), result.Data, 0o644); err != nil {
		return errs.NewInternal("write package result", err)
	}
	pkg.ResultFile = resultFilename
	pkg.DownloadName = result.ArchiveName
	pkg.Status = PkgDone
	return nil
}

func classificationsToPtrMap(result jobapi.AutoClassifyResult) map[string]*string {
	out := make(map[string]*string, len(result))
	for k, v := range result {
		s := string(v)
		out[k] = &s
	}
	return out
}

func collectPdfPaths(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".pdf") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, errs.NewInternal("walk package directory", err)
	}
	sort.Strings(paths)
	return paths, nil
}

// consolidate builds all.zip from every done package's result file, named
// by its download name.
func (c *Controller) consolidate(meta *Meta, resultsDir string) {
	allPath := filepath.Join(resultsDir, "all.zip")
	f, err := os.Create(allPath)
	if err != nil {
		return
	}
	defer f.Close()
	zw := zip.NewWriter(f)
	for _, pkg := range meta.Packages {
		if pkg.Status != PkgDone || pkg.ResultFile == "" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(resultsDir, pkg.ResultFile))
		if err != nil {
			continue
		}
		arcname := pkg.DownloadName
		if arcname == "" {
			arcname = pkg.ResultFile
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: arcname, Method: zip.Deflate})
		if err != nil {
			continue
		}
		w.Write(data)
	}
	zw.Close()
	meta.AllZip = "all.zip"
}

// DownloadPackage returns the result archive bytes for one package.
func (c *Controller) DownloadPackage(batchID, pkgName string) ([]byte, error) {
	meta, err := c.Get(batchID)
	if err != nil {
		return nil, err
	}
	for _, pkg := range meta.Packages {
		if pkg.Name == pkgName && pkg.ResultFile != "" {
			return os.ReadFile(filepath.Join(c.store.BatchDir(batchID), "results", pkg.ResultFile))
		}
	}
	return nil, errs.NewNotFound("package result not found")
}

// DownloadAll returns the consolidated archive bytes.
func (c *Controller) DownloadAll(batchID string) ([]byte, error) {
	meta, err := c.Get(batchID)
	if err != nil {
		return nil, err
	}
	if meta.AllZip == "" {
		return nil, errs.NewNotFound("consolidated archive not available yet")
	}
	return os.ReadFile(filepath.Join(c.store.BatchDir(batchID), "results", meta.AllZip))
}
