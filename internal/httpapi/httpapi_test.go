package httpapi

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/tipificador/internal/batch"
	"github.com/local/tipificador/internal/errs"
	"github.com/local/tipificador/internal/jobapi"
	"github.com/local/tipificador/internal/ocrtier"
	"github.com/local/tipificador/internal/scratch"
)

func newTestAPI(t *testing.T) *API {
	t.Helper()
	store := scratch.New(t.TempDir())
	jobs := jobapi.New(store, jobapi.Options{
		MaxFiles:    10,
		MaxFileSize: 1 << 20,
		ThumbWidth:  200,
		ViewWidth:   800,
		Ocr:         ocrtier.Config{Enabled: false},
	})
	batches := batch.New(store, jobs, batch.Options{MaxPackages: 10, MaxBytes: 1 << 20})
	return New(jobs, batches)
}

func newMux(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	newTestAPI(t).RegisterRoutes(mux)
	return mux
}

func TestHandleHealth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	newMux(t).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandleGetJob_NotFound(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/jobs/0123456789abcdef0123456789abcdef", nil)
	rec := httptest.NewRecorder()
	newMux(t).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_found")
}

func TestHandleAdmit_RejectsNonPdfFile(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("files", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("not a pdf"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/jobs", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	newMux(t).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "bad_input")
}

func TestHandleAdmit_RejectsMissingFilesField(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/jobs", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	newMux(t).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleBatchAdmit_RejectsNonZipFilename(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "archive.tar")
	require.NoError(t, err)
	_, err = part.Write([]byte("not a zip"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/batch", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	newMux(t).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "batch archive must be a .zip file")
}

func TestHandleBatchFromObjectStore_RejectsMalformedJson(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/batch/from-object-store", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	newMux(t).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleBatchFromObjectStore_RequiresBucketAndKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/batch/from-object-store", bytes.NewBufferString(`{"bucket":"","key":""}`))
	rec := httptest.NewRecorder()
	newMux(t).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleBatchFromObjectStore_MissingRegionReportsInternal(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/batch/from-object-store", bytes.NewBufferString(`{"bucket":"archives","key":"batch.zip"}`))
	rec := httptest.NewRecorder()
	newMux(t).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWriteError_UnresolvedCarriesNullDetectionFields(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, errs.NewUnresolved("missing nit and ocfe", nil, nil))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t, `{"error":"unresolved","message":"missing nit and ocfe","nitDetected":null,"ocfeDetected":null}`, rec.Body.String())
}

func TestWriteError_NonUnresolvedOmitsDetectionFields(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, errs.NewBadInput("bad input"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"bad_input","message":"bad input"}`, rec.Body.String())
}

func TestHandleThumb_InvalidPageParam(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/jobs/0123456789abcdef0123456789abcdef/pages/-1/thumb.png", nil)
	rec := httptest.NewRecorder()
	newMux(t).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
