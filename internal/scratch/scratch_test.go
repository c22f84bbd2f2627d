package scratch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/tipificador/internal/errs"
)

type sampleMeta struct {
	CreatedAt float64 `json:"createdAt"`
	Name      string  `json:"name"`
}

func TestWriteMetaReadMetaRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meta.json")

	want := sampleMeta{CreatedAt: 123, Name: "batch-1"}
	require.NoError(t, WriteMeta(path, &want))

	var got sampleMeta
	require.NoError(t, ReadMeta(path, &got))
	assert.Equal(t, want, got)
}

func TestReadMeta_MissingFileIsNotFound(t *testing.T) {
	dir := t.TempDir()
	err := ReadMeta(filepath.Join(dir, "missing.json"), &sampleMeta{})
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.NotFound, e.Kind)
}

func TestReadMeta_MalformedFileIsMetaBusy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meta.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	err := ReadMeta(path, &sampleMeta{})
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.MetaBusy, e.Kind)
}

func TestStore_MkJobAndMkBatchLayout(t *testing.T) {
	root := t.TempDir()
	s := New(root)

	jobID, err := s.MkJob()
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(s.JobDir(jobID), "pdfs"))
	assert.DirExists(t, filepath.Join(s.JobDir(jobID), "cache"))

	batchID, err := s.MkBatch()
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(s.BatchDir(batchID), "input"))
	assert.DirExists(t, filepath.Join(s.BatchDir(batchID), "results"))
}

func TestStore_Sweep(t *testing.T) {
	root := t.TempDir()
	s := New(root)

	oldID, err := s.MkJob()
	require.NoError(t, err)
	require.NoError(t, WriteMeta(s.JobMetaPath(oldID), &sampleMeta{
		CreatedAt: float64(time.Now().Add(-2 * time.Hour).Unix()),
	}))

	freshID, err := s.MkJob()
	require.NoError(t, err)
	require.NoError(t, WriteMeta(s.JobMetaPath(freshID), &sampleMeta{
		CreatedAt: float64(time.Now().Unix()),
	}))

	s.Sweep(time.Hour)

	assert.NoDirExists(t, s.JobDir(oldID))
	assert.DirExists(t, s.JobDir(freshID))
}
