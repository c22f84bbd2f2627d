// Package localindex maintains a rebuildable sqlite cache of job and batch
// metadata scanned from the scratch root. tipctl rebuilds it from the
// scratch root on every invocation and lists jobs and batches from it.
package localindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/local/tipificador/internal/tipid"
)

// Index is a sqlite-backed cache over a scratch root's job and batch
// directories.
type Index struct {
	db   *sql.DB
	root string
}

// Open opens (creating if absent) the sqlite cache at dbPath and ensures its
// schema exists.
func Open(dbPath, scratchRoot string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(context.Background(), `PRAGMA journal_mode=WAL;`); err != nil {
		db.Close()
		return nil, err
	}
	schema := `
CREATE TABLE IF NOT EXISTS jobs (
  job_id TEXT PRIMARY KEY,
  total_pages INTEGER NOT NULL DEFAULT 0,
  created_unix INTEGER NOT NULL DEFAULT 0,
  classified_pages INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS batches (
  batch_id TEXT PRIMARY KEY,
  status TEXT NOT NULL DEFAULT '',
  packages_total INTEGER NOT NULL DEFAULT 0,
  packages_done INTEGER NOT NULL DEFAULT 0,
  packages_error INTEGER NOT NULL DEFAULT 0,
  created_unix INTEGER NOT NULL DEFAULT 0
);
`
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Index{db: db, root: scratchRoot}, nil
}

func (x *Index) Close() error { return x.db.Close() }

type jobMeta struct {
	JobID           string             `json:"jobId"`
	TotalPages      int                `json:"totalPages"`
	CreatedAt       float64            `json:"createdAt"`
	Classifications map[string]*string `json:"classifications"`
}

type batchMeta struct {
	BatchID  string `json:"batchId"`
	Status   string `json:"status"`
	Packages []struct {
		Status string `json:"status"`
	} `json:"packages"`
	CreatedAt float64 `json:"createdAt"`
}

// Rebuild clears and repopulates the cache by scanning the scratch root.
func (x *Index) Rebuild(ctx context.Context) error {
	if _, err := x.db.ExecContext(ctx, `DELETE FROM jobs`); err != nil {
		return err
	}
	if _, err := x.db.ExecContext(ctx, `DELETE FROM batches`); err != nil {
		return err
	}

	entries, err := os.ReadDir(x.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if e.Name() == "batches" {
			if err := x.rebuildBatches(ctx); err != nil {
				return err
			}
			continue
		}
		if !tipid.Valid(e.Name()) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(x.root, e.Name(), "meta.json"))
		if err != nil {
			continue
		}
		var m jobMeta
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}
		classified := 0
		for _, v := range m.Classifications {
			if v != nil {
				classified++
			}
		}
		if _, err := x.db.ExecContext(ctx,
			`INSERT INTO jobs(job_id, total_pages, created_unix, classified_pages) VALUES (?, ?, ?, ?)`,
			m.JobID, m.TotalPages, int64(m.CreatedAt), classified); err != nil {
			return err
		}
	}
	return nil
}

func (x *Index) rebuildBatches(ctx context.Context) error {
	batchesDir := filepath.Join(x.root, "batches")
	entries, err := os.ReadDir(batchesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if !e.IsDir() || !tipid.Valid(e.Name()) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(batchesDir, e.Name(), "meta.json"))
		if err != nil {
			continue
		}
		var m batchMeta
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}
		var done, errored int
		for _, p := range m.Packages {
			switch p.Status {
			case "done":
				done++
			case "error":
				errored++
			}
		}
		if _, err := x.db.ExecContext(ctx,
			`INSERT INTO batches(batch_id, status, packages_total, packages_done, packages_error, created_unix) VALUES (?, ?, ?, ?, ?, ?)`,
			m.BatchID, m.Status, len(m.Packages), done, errored, int64(m.CreatedAt)); err != nil {
			return err
		}
	}
	return nil
}

// JobRow is one listed job.
type JobRow struct {
	JobID           string
	TotalPages      int
	ClassifiedPages int
	CreatedAt       time.Time
}

// ListJobs returns every cached job, most recent first.
func (x *Index) ListJobs(ctx context.Context) ([]JobRow, error) {
	rows, err := x.db.QueryContext(ctx, `SELECT job_id, total_pages, classified_pages, created_unix FROM jobs ORDER BY created_unix DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []JobRow
	for rows.Next() {
		var r JobRow
		var created int64
		if err := rows.Scan(&r.JobID, &r.TotalPages, &r.ClassifiedPages, &created); err != nil {
			return nil, err
		}
		r.CreatedAt = time.Unix(created, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

// BatchRow is one listed batch.
type BatchRow struct {
	BatchID       string
	Status        string
	PackagesTotal int
	PackagesDone  int
	PackagesError int
	CreatedAt     time.Time
}

// ListBatches returns every cached batch, most recent first.
func (x *Index) ListBatches(ctx context.Context) ([]BatchRow, error) {
	rows, err := x.db.QueryContext(ctx, `SELECT batch_id, status, packages_total, packages_done, packages_error, created_unix FROM batches ORDER BY created_unix DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BatchRow
	for rows.Next() {
		var r BatchRow
		var created int64
		if err := rows.Scan(&r.BatchID, &r.Status, &r.PackagesTotal, &r.PackagesDone, &r.PackagesError, &created); err != nil {
			return nil, err
		}
		r.CreatedAt = time.Unix(created, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Batch returns one cached batch by id.
func (x *Index) Batch(ctx context.Context, id string) (*BatchRow, error) {
	var r BatchRow
	var created int64
	err := x.db.QueryRowContext(ctx,
		`SELECT batch_id, status, packages_total, packages_done, packages_error, created_unix FROM batches WHERE batch_id = ?`, id,
	).Scan(&r.BatchID, &r.Status, &r.PackagesTotal, &r.PackagesDone, &r.PackagesError, &created)
	if err != nil {
		return nil, err
	}
	r.CreatedAt = time.Unix(created, 0)
	return &r, nil
}
