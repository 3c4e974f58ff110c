// Package cache persists the most recent upload across restarts.
//
// The store holds exactly one logical record: the raw blob plus its metadata.
// Writing a new record is last-writer-wins. Every operation here is an
// optimization for the caller, never a correctness requirement; callers are
// expected to swallow errors.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fairlens/backend/internal/models"
)

// Record is the persisted pair for the "latest upload" slot.
type Record struct {
	Metadata models.UploadMetadata `json:"metadata"`
	HasBlob  bool                  `json:"hasBlob"`
	SavedAt  time.Time             `json:"savedAt"`
}

// Store is a single-slot persistent store backed by SQLite for metadata and a
// sibling slot file for the blob. The blob file is written via temp file +
// rename so a concurrent open never observes a half-written blob, and the
// metadata row is replaced in a single statement so a concurrent load never
// observes a half-written record.
type Store struct {
	db       *sql.DB
	dir      string
	blobPath string
}

const schema = `
CREATE TABLE IF NOT EXISTS latest_upload (
	slot INTEGER PRIMARY KEY CHECK (slot = 1),
	name TEXT NOT NULL,
	size INTEGER NOT NULL,
	content_type TEXT NOT NULL,
	content_preview TEXT NOT NULL,
	has_blob INTEGER NOT NULL DEFAULT 0,
	saved_at_unix_ms INTEGER NOT NULL
);`

// Open creates or opens the cache under dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "latest.db"))
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing cache schema: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Store{
		db:       db,
		dir:      dir,
		blobPath: filepath.Join(dir, "latest.blob"),
	}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save overwrites the slot with a fully materialized blob and its metadata.
func (s *Store) Save(ctx context.Context, blob io.Reader, meta models.UploadMetadata) error {
	if err := s.SaveBlob(ctx, blob); err != nil {
		return err
	}
	return s.writeMetadata(ctx, meta, true)
}

// SaveMetadata overwrites the slot's metadata without touching the blob. Used
// for the placeholder and refined writes of the large-file path.
func (s *Store) SaveMetadata(ctx context.Context, meta models.UploadMetadata) error {
	return s.writeMetadata(ctx, meta, s.blobExists())
}

// SaveBlob streams blob into the slot file. The data lands in a temp file
// first and is renamed into place once complete.
func (s *Store) SaveBlob(ctx context.Context, blob io.Reader) error {
	tmp, err := os.CreateTemp(s.dir, "latest.blob.partial-*")
	if err != nil {
		return fmt.Errorf("creating blob temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, blob); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing blob temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.blobPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("publishing blob: %w", err)
	}

	// Mark the blob present if a metadata row already exists. The large-file
	// path writes placeholder metadata before spooling, so this is the common
	// ordering.
	_, err = s.db.ExecContext(ctx, `UPDATE latest_upload SET has_blob = 1 WHERE slot = 1`)
	if err != nil {
		return fmt.Errorf("marking blob saved: %w", err)
	}
	return nil
}

// Load reads the slot. An empty store returns (Record{}, false, nil).
func (s *Store) Load(ctx context.Context) (Record, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, size, content_type, content_preview, has_blob, saved_at_unix_ms
		FROM latest_upload WHERE slot = 1`)

	var rec Record
	var hasBlob int
	var savedAtMs int64
	err := row.Scan(
		&rec.Metadata.Name,
		&rec.Metadata.Size,
		&rec.Metadata.Type,
		&rec.Metadata.ContentPreview,
		&hasBlob,
		&savedAtMs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("loading cache record: %w", err)
	}

	rec.HasBlob = hasBlob == 1 && s.blobExists()
	rec.SavedAt = time.UnixMilli(savedAtMs)
	return rec, true, nil
}

// OpenBlob opens the cached blob for reading.
func (s *Store) OpenBlob() (io.ReadCloser, error) {
	f, err := os.Open(s.blobPath)
	if err != nil {
		return nil, fmt.Errorf("opening cached blob: %w", err)
	}
	return f, nil
}

// Delete removes the slot record and its blob.
func (s *Store) Delete(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM latest_upload`); err != nil {
		return fmt.Errorf("deleting cache record: %w", err)
	}
	if err := os.Remove(s.blobPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting cached blob: %w", err)
	}
	return nil
}

func (s *Store) writeMetadata(ctx context.Context, meta models.UploadMetadata, hasBlob bool) error {
	blobFlag := 0
	if hasBlob {
		blobFlag = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO latest_upload
			(slot, name, size, content_type, content_preview, has_blob, saved_at_unix_ms)
		VALUES (1, ?, ?, ?, ?, ?, ?)`,
		meta.Name, meta.Size, meta.Type, meta.ContentPreview, blobFlag, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("writing cache metadata: %w", err)
	}
	return nil
}

func (s *Store) blobExists() bool {
	_, err := os.Stat(s.blobPath)
	return err == nil
}
