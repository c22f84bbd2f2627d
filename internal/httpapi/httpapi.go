// Package httpapi is the thin HTTP veneer: route registration, request
// decoding, and error-kind-to-status mapping. All business logic lives in
// jobapi and batch.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/local/tipificador/internal/batch"
	"github.com/local/tipificador/internal/blobstore"
	"github.com/local/tipificador/internal/errs"
	"github.com/local/tipificador/internal/jobapi"
	"github.com/local/tipificador/internal/metrics"
	"github.com/local/tipificador/internal/ocrtier"
)

const maxUploadMemory = 64 << 20

// API wires the job and batch controllers into an http.ServeMux.
type API struct {
	jobs       *jobapi.Controller
	batches    *batch.Controller
	blobRegion string
}

func New(jobs *jobapi.Controller, batches *batch.Controller) *API {
	return &API{jobs: jobs, batches: batches}
}

// WithBlobRegion sets the AWS region used to open an object-store client for
// the /batch/from-object-store route. Left empty, that route reports
// Internal rather than guessing a region.
func (a *API) WithBlobRegion(region string) *API {
	a.blobRegion = region
	return a
}

func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", handleHealth)

	mux.HandleFunc("POST /jobs", a.handleAdmit)
	mux.HandleFunc("GET /jobs/{id}", a.handleGetJob)
	mux.HandleFunc("GET /jobs/{id}/pages/{g}/thumb.png", a.handleThumb)
	mux.HandleFunc("GET /jobs/{id}/pages/{g}/view.png", a.handleView)
	mux.HandleFunc("GET /jobs/{id}/pages/{g}/ocr.txt", a.handleOcrText)
	mux.HandleFunc("POST /jobs/{id}/auto-classify", a.handleAutoClassify)
	mux.HandleFunc("POST /jobs/{id}/process", a.handleProcess)

	mux.HandleFunc("POST /batch", a.handleBatchAdmit)
	mux.HandleFunc("POST /batch/from-object-store", a.handleBatchFromObjectStore)
	mux.HandleFunc("GET /batch/{id}", a.handleBatchGet)
	mux.HandleFunc("POST /batch/{id}/start", a.handleBatchStart)
	mux.HandleFunc("POST /batch/{id}/cancel", a.handleBatchCancel)
	mux.HandleFunc("POST /batch/{id}/retry-errors", a.handleBatchRetry)
	mux.HandleFunc("GET /batch/{id}/download/all.zip", a.handleBatchDownloadAll)
	mux.HandleFunc("GET /batch/{id}/download/{pkg}.zip", a.handleBatchDownloadPackage)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResp struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// unresolvedResp carries nitDetected/ocfeDetected as present-but-null when
// neither was found, per the 422 contract.
type unresolvedResp struct {
	Error        string  `json:"error"`
	Message      string  `json:"message"`
	NitDetected  *string `json:"nitDetected"`
	OcfeDetected *string `json:"ocfeDetected"`
}

func writeError(w http.ResponseWriter, err error) {
	status := errs.StatusCode(err)
	kind := errs.KindOf(err)
	if status >= 500 {
		log.Error().Err(err).Str("kind", kind.String()).Msg("request failed")
	}
	if e, ok := errs.As(err); ok && e.Kind == errs.Unresolved {
		writeJSON(w, status, unresolvedResp{
			Error:        kind.String(),
			Message:      err.Error(),
			NitDetected:  e.NitDetected,
			OcfeDetected: e.OcfeDetected,
		})
		return
	}
	writeJSON(w, status, errorResp{Error: kind.String(), Message: err.Error()})
}

func pageParam(r *http.Request) (int, error) {
	g, err := strconv.Atoi(r.PathValue("g"))
	if err != nil || g < 0 {
		return 0, errs.NewBadInput("invalid page index")
	}
	return g, nil
}

func (a *API) handleAdmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, errs.NewBadInput("invalid multipart form: "+err.Error()))
		return
	}
	form := r.MultipartForm
	if form == nil || len(form.File["files"]) == 0 {
		writeError(w, errs.NewBadInput("no files uploaded under field \"files\""))
		return
	}

	var uploads []jobapi.UploadFile
	for _, fh := range form.File["files"] {
		f, err := fh.Open()
		if err != nil {
			writeError(w, errs.NewBadInput("cannot open uploaded file: "+err.Error()))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, errs.NewBadInput("cannot read uploaded file: "+err.Error()))
			return
		}
		uploads = append(uploads, jobapi.UploadFile{Name: fh.Filename, Data: data})
	}

	meta, err := a.jobs.Admit(uploads)
	if err != nil {
		metrics.IncJobAdmitted(errs.KindOf(err).String())
		writeError(w, err)
		return
	}
	metrics.IncJobAdmitted("ok")
	writeJSON(w, http.StatusCreated, meta)
}

func (a *API) handleGetJob(w http.ResponseWriter, r *http.Request) {
	meta, err := a.jobs.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (a *API) handleThumb(w http.ResponseWriter, r *http.Request) {
	g, err := pageParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	png, err := a.jobs.Thumb(r.PathValue("id"), g)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func (a *API) handleView(w http.ResponseWriter, r *http.Request) {
	g, err := pageParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	png, err := a.jobs.View(r.PathValue("id"), g)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func (a *API) handleOcrText(w http.ResponseWriter, r *http.Request) {
	g, err := pageParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	refresh := r.URL.Query().Get("refresh") == "1" || r.URL.Query().Get("refresh") == "true"
	text, err := a.jobs.OcrText(r.PathValue("id"), g, refresh)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(text))
}

func (a *API) handleAutoClassify(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	cancel := ocrtier.CancelFunc(func() bool { return false })
	result, err := a.jobs.AutoClassify(jobID, cancel)
	if err != nil {
		writeError(w, err)
		return
	}
	for _, cat := range result {
		metrics.IncPageClassified(string(cat))
	}
	// AutoClassify fails with OcrDisabled when OCR is off, so a result means it is on.
	writeJSON(w, http.StatusOK, map[string]any{
		"classifications": result,
		"ocrEnabled":      true,
	})
}

type processReq struct {
	Classifications map[string]*string `json:"classifications"`
	NitOverride     string              `json:"nitOverride"`
	OcfeOverride    string              `json:"ocfeOverride"`
	KeepJob         bool                `json:"keepJob"`
}

func (a *API) handleProcess(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	var req processReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.NewBadInput("invalid json body: "+err.Error()))
		return
	}
	result, err := a.jobs.Process(jobID, jobapi.ProcessRequest{
		Classifications: req.Classifications,
		NitOverride:     req.NitOverride,
		OcfeOverride:    req.OcfeOverride,
		KeepJob:         req.KeepJob,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+result.ArchiveName+`"`)
	_, _ = w.Write(result.Data)
}

func (a *API) handleBatchAdmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, errs.NewBadInput("invalid multipart form: "+err.Error()))
		return
	}
	form := r.MultipartForm
	files := form.File["file"]
	if len(files) != 1 {
		writeError(w, errs.NewBadInput("expected exactly one file under field \"file\""))
		return
	}
	fh := files[0]
	if !strings.HasSuffix(strings.ToLower(fh.Filename), ".zip") {
		writeError(w, errs.NewBadInput("batch archive must be a .zip file"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		writeError(w, errs.NewBadInput("cannot open archive: "+err.Error()))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		writeError(w, errs.NewBadInput("cannot read archive: "+err.Error()))
		return
	}

	meta, err := a.batches.Admit(data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, meta)
}

type batchFromObjectStoreReq struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// handleBatchFromObjectStore admits a batch archive already sitting in an
// object store, fetching it by bucket/key before running normal admission.
func (a *API) handleBatchFromObjectStore(w http.ResponseWriter, r *http.Request) {
	var req batchFromObjectStoreReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.NewBadInput("invalid json body: "+err.Error()))
		return
	}
	if req.Bucket == "" || req.Key == "" {
		writeError(w, errs.NewBadInput("bucket and key are required"))
		return
	}
	if a.blobRegion == "" {
		writeError(w, errs.NewInternal("object store region not configured", nil))
		return
	}

	ctx := r.Context()
	store, err := blobstore.New(ctx, req.Bucket, a.blobRegion)
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := store.Get(ctx, req.Key)
	if err != nil {
		writeError(w, err)
		return
	}

	meta, err := a.batches.Admit(data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, meta)
}

func (a *API) handleBatchGet(w http.ResponseWriter, r *http.Request) {
	meta, err := a.batches.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (a *API) handleBatchStart(w http.ResponseWriter, r *http.Request) {
	meta, err := a.batches.Start(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (a *API) handleBatchCancel(w http.ResponseWriter, r *http.Request) {
	meta, err := a.batches.Cancel(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (a *API) handleBatchRetry(w http.ResponseWriter, r *http.Request) {
	meta, err := a.batches.RetryErrors(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (a *API) handleBatchDownloadAll(w http.ResponseWriter, r *http.Request) {
	data, err := a.batches.DownloadAll(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="TIPIFICADO_LOTE.zip"`)
	_, _ = w.Write(data)
}

func (a *API) handleBatchDownloadPackage(w http.ResponseWriter, r *http.Request) {
	pkg := r.PathValue("pkg")
	data, err := a.batches.DownloadPackage(r.PathValue("id"), pkg)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+pkg+`.zip"`)
	_, _ = w.Write(data)
}
