// Package scratch implements the on-disk job/batch layout and the atomic
// metadata read/write discipline that every other component builds on.
package scratch

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/local/tipificador/internal/errs"
	"github.com/local/tipificador/internal/tipid"
)

// Store roots all job and batch directories under a configurable path.
type Store struct {
	root string
}

func New(root string) *Store {
	return &Store{root: root}
}

func (s *Store) Root() string { return s.root }

func (s *Store) JobDir(id string) string { return filepath.Join(s.root, id) }
func (s *Store) BatchDir(id string) string { return filepath.Join(s.root, "batches", id) }
func (s *Store) JobMetaPath(id string) string {
	return filepath.Join(s.JobDir(id), "meta.json")
}
func (s *Store) BatchMetaPath(id string) string {
	return filepath.Join(s.BatchDir(id), "meta.json")
}

// MkJob creates a fresh job directory tree and returns its new identifier.
func (s *Store) MkJob() (string, error) {
	id := tipid.New()
	dir := s.JobDir(id)
	for _, sub := range []string{"pdfs", "cache"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return "", errs.NewInternal("create job directory", err)
		}
	}
	return id, nil
}

// MkBatch creates a fresh batch directory tree and returns its new identifier.
func (s *Store) MkBatch() (string, error) {
	id := tipid.New()
	dir := s.BatchDir(id)
	for _, sub := range []string{"input", "results"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return "", errs.NewInternal("create batch directory", err)
		}
	}
	return id, nil
}

// RemoveJob deletes a job's scratch directory. Best-effort.
func (s *Store) RemoveJob(id string) {
	_ = os.RemoveAll(s.JobDir(id))
}

// WriteMeta serialises v to JSON and writes it atomically: temp file in the
// same directory, fsync, then rename over the target. A crash between write
// and rename leaves the prior file intact.
func WriteMeta(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errs.NewInternal("marshal meta", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.NewInternal("create meta directory", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return errs.NewInternal("create temp meta file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errs.NewInternal("write temp meta file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errs.NewInternal("fsync temp meta file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errs.NewInternal("close temp meta file", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errs.NewInternal("rename meta file", err)
	}
	return nil
}

// ReadMeta reads and decodes the JSON meta file at path into v, retrying up
// to three times with a 50ms backoff on parse failure to tolerate a reader
// racing an in-progress atomic write. Missing files report NotFound; a meta
// file that remains malformed after retries reports MetaBusy.
func ReadMeta(path string, v any) error {
	const attempts = 3
	const backoff = 50 * time.Millisecond

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return errs.NewNotFound("meta does not exist")
		}
		return errs.NewInternal("stat meta file", err)
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return errs.NewNotFound("meta does not exist")
			}
			lastErr = err
		} else if err := json.Unmarshal(data, v); err != nil {
			lastErr = err
		} else {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(backoff)
		}
	}
	return errs.NewMetaBusy("meta temporarily busy: " + lastErr.Error())
}

// Sweep removes job directories under root whose name is a valid identifier
// and whose recorded createdAt is older than ttl. Best-effort: individual
// failures are swallowed so one bad entry does not stop the sweep.
func (s *Store) Sweep(ttl time.Duration) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return
	}
	now := time.Now()
	for _, e := range entries {
		if !e.IsDir() || !tipid.Valid(e.Name()) {
			continue
		}
		dir := filepath.Join(s.root, e.Name())
		var meta struct {
			CreatedAt float64 `json:"createdAt"`
		}
		if err := ReadMeta(filepath.Join(dir, "meta.json"), &meta); err != nil {
			continue
		}
		created := time.Unix(int64(meta.CreatedAt), 0)
		if meta.CreatedAt > 0 && now.Sub(created) > ttl {
			_ = os.RemoveAll(dir)
		}
	}
}
