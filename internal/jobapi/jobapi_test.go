package jobapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/tipificador/internal/errs"
	"github.com/local/tipificador/internal/ocrtier"
	"github.com/local/tipificador/internal/pageindex"
	"github.com/local/tipificador/internal/scratch"
)

func newTestController(t *testing.T) *Controller {
	t.Helper()
	store := scratch.New(t.TempDir())
	return New(store, Options{
		MaxFiles:    10,
		MaxFileSize: 1 << 20,
		ThumbWidth:  200,
		ViewWidth:   800,
		Ocr:         ocrtier.Config{Enabled: false},
	})
}

func TestAdmit_RejectsNonPdfUpload(t *testing.T) {
	c := newTestController(t)
	_, err := c.Admit([]UploadFile{{Name: "notes.txt", Data: []byte("plain text, not a pdf")}})
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.BadInput, e.Kind)
}

func TestAdmit_RejectsEmptyUpload(t *testing.T) {
	c := newTestController(t)
	_, err := c.Admit(nil)
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.BadInput, e.Kind)
}

func TestAdmit_RejectsTooManyFiles(t *testing.T) {
	c := newTestController(t)
	c.maxFiles = 1
	files := []UploadFile{
		{Name: "a.txt", Data: []byte("a")},
		{Name: "b.txt", Data: []byte("b")},
	}
	_, err := c.Admit(files)
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.TooLarge, e.Kind)
}

func TestAutoClassify_RejectsWhenOcrDisabled(t *testing.T) {
	c := newTestController(t)
	jobID, err := c.store.MkJob()
	require.NoError(t, err)

	index := pageindex.Build([]int{1})
	meta := &Meta{
		JobID:           jobID,
		TotalPages:      index.TotalPages(),
		PageIndex:       []pageindex.Ref(index),
		Classifications: make(map[string]*string),
	}
	require.NoError(t, scratch.WriteMeta(c.store.JobMetaPath(jobID), meta))

	_, err = c.AutoClassify(jobID, nil)
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.OcrDisabled, e.Kind)
}

func TestProcess_RequiresAtLeastOneFevPage(t *testing.T) {
	c := newTestController(t)
	jobID, err := c.store.MkJob()
	require.NoError(t, err)

	index := pageindex.Build([]int{1})
	meta := &Meta{
		JobID:           jobID,
		TotalPages:      index.TotalPages(),
		PageIndex:       []pageindex.Ref(index),
		Classifications: make(map[string]*string),
	}
	require.NoError(t, scratch.WriteMeta(c.store.JobMetaPath(jobID), meta))

	hev := "HEV"
	_, err = c.Process(jobID, ProcessRequest{Classifications: map[string]*string{"0": &hev}})
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.FevRequired, e.Kind)
}
