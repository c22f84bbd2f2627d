package batch

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/tipificador/internal/errs"
	"github.com/local/tipificador/internal/scratch"
)

func TestDeriveStatus(t *testing.T) {
	cases := []struct {
		name string
		pkgs []Package
		want Status
	}{
		{"any pending forces processing", []Package{{Status: PkgDone}, {Status: PkgPending}}, Processing},
		{"any in-flight forces processing", []Package{{Status: PkgDone}, {Status: PkgProcessing}}, Processing},
		{"errors and done is partial", []Package{{Status: PkgDone}, {Status: PkgError}}, Partial},
		{"errors only is error", []Package{{Status: PkgError}, {Status: PkgError}}, Err},
		{"done only is done", []Package{{Status: PkgDone}, {Status: PkgDone}}, Done},
		{"all cancelled falls through to prior status", []Package{{Status: PkgCancelled}}, Cancelled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			meta := &Meta{Status: Cancelled, Packages: tc.pkgs}
			assert.Equal(t, tc.want, deriveStatus(meta))
		})
	}
}

func TestSafeExtractZip_RejectsPathTraversal(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("../escape.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("evil"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	dest := t.TempDir()
	err = safeExtractZip(buf.Bytes(), dest)
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.BadInput, e.Kind)
}

func TestSafeExtractZip_ExtractsNestedFiles(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range []string{"pkg1/a.pdf", "pkg1/sub/b.pdf", "pkg2/c.pdf"} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(name))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	dest := t.TempDir()
	require.NoError(t, safeExtractZip(buf.Bytes(), dest))

	for _, name := range []string{"pkg1/a.pdf", "pkg1/sub/b.pdf", "pkg2/c.pdf"} {
		assert.FileExists(t, filepath.Join(dest, name))
	}
}

func TestReconcile_PicksUpCompletedResultsFromDisk(t *testing.T) {
	dir := t.TempDir()
	store := scratch.New(dir)
	c := &Controller{store: store, inFlight: make(map[string]bool)}

	batchID, err := store.MkBatch()
	require.NoError(t, err)

	resultsDir := filepath.Join(store.BatchDir(batchID), "results")
	require.NoError(t, os.WriteFile(filepath.Join(resultsDir, "pkg-a.zip"), []byte("data"), 0o644))

	meta := &Meta{
		BatchID: batchID,
		Status:  Processing,
		Packages: []Package{
			{Name: "pkg-a", Folder: "pkg-a", Status: PkgProcessing},
			{Name: "pkg-b", Folder: "pkg-b", Status: PkgPending},
		},
	}

	got, err := c.reconcile(meta)
	require.NoError(t, err)
	assert.Equal(t, PkgDone, got.Packages[0].Status)
	assert.Equal(t, "pkg-a.zip", got.Packages[0].ResultFile)
	assert.Equal(t, PkgPending, got.Packages[1].Status)
	assert.Equal(t, Processing, got.Status, "a pending package keeps the batch in processing")
}

func TestCancel_RunningBatchRequestsCooperativeDrain(t *testing.T) {
	dir := t.TempDir()
	store := scratch.New(dir)
	c := &Controller{store: store, inFlight: make(map[string]bool)}

	batchID, err := store.MkBatch()
	require.NoError(t, err)

	meta := &Meta{
		BatchID: batchID,
		Status:  Processing,
		Packages: []Package{
			{Name: "pkg-1", Folder: "pkg-1", Status: PkgDone},
			{Name: "pkg-2", Folder: "pkg-2", Status: PkgPending},
			{Name: "pkg-3", Folder: "pkg-3", Status: PkgPending},
		},
	}
	require.NoError(t, c.writeMeta(meta))

	got, err := c.Cancel(batchID)
	require.NoError(t, err)
	assert.Equal(t, Cancelling, got.Status, "a running batch cancels cooperatively, not instantly")
	assert.True(t, got.CancelRequested)
	assert.Equal(t, PkgDone, got.Packages[0].Status, "work already finished is never unwound")
}

func TestCancel_PendingBatchCancelsImmediately(t *testing.T) {
	dir := t.TempDir()
	store := scratch.New(dir)
	c := &Controller{store: store, inFlight: make(map[string]bool)}

	batchID, err := store.MkBatch()
	require.NoError(t, err)

	meta := &Meta{
		BatchID: batchID,
		Status:  Pending,
		Packages: []Package{
			{Name: "pkg-1", Folder: "pkg-1", Status: PkgPending},
		},
	}
	require.NoError(t, c.writeMeta(meta))

	got, err := c.Cancel(batchID)
	require.NoError(t, err)
	assert.Equal(t, Cancelled, got.Status)
	assert.Equal(t, PkgCancelled, got.Packages[0].Status)
}

func TestCollectPdfPaths_SortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.PDF"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.pdf"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	paths, err := collectPdfPaths(dir)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Join(dir, "a.pdf"), paths[0])
	assert.Equal(t, filepath.Join(dir, "b.PDF"), paths[1])
}
