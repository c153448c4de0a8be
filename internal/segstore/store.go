// Package segstore is the segment descriptor catalog: a small sqlite
// database recording, for each logical stream, the ordered list of
// (file_index, file_offset, size, flags) ranges an fdstream.Stream or
// fdlist.List should be rebuilt from, plus a table mapping a Range's
// opaque file_index to whatever a particular Handle implementation
// needs to locate that external file (a local path, an NNTP message-id
// set, an S3 bucket/key). Grounded on the teacher's internal/db
// (connection setup, WAL pragma, migration style) generalized away
// from its NZB-import-specific schema.
package segstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/gaby/fdata/internal/fderrors"
)

// Store wraps the catalog's sqlite connection.
type Store struct {
	sql *sql.DB
}

// Open opens (creating if needed) the catalog at path and runs
// migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fderrors.Wrap("segstore.Open", fderrors.IO, fderrors.OpenFailed, err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fderrors.Wrap("segstore.Open", fderrors.IO, fderrors.OpenFailed, err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	s := &Store{sql: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.sql.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS streams (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			segments_count INTEGER NOT NULL DEFAULT 0,
			total_bytes INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS stream_segments (
			stream_id TEXT NOT NULL,
			seg_index INTEGER NOT NULL,
			file_index INTEGER NOT NULL,
			file_offset INTEGER NOT NULL,
			size INTEGER NOT NULL,
			flags INTEGER NOT NULL,
			seg_key BLOB,
			PRIMARY KEY(stream_id, seg_index)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_stream_segments_stream ON stream_segments(stream_id);`,
		`CREATE TABLE IF NOT EXISTS external_files (
			file_index INTEGER PRIMARY KEY,
			descriptor TEXT NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.sql.Exec(stmt); err != nil {
			es := err.Error()
			if strings.Contains(es, "duplicate") || strings.Contains(es, "already exists") {
				continue
			}
			return fderrors.Wrap("segstore.migrate", fderrors.IO, fderrors.WriteFailed, err)
		}
	}
	return nil
}

// SegmentRow is one row of a stream's segment list, in the shape
// fdstream.AppendSegment/fdlist.AppendElement expect.
type SegmentRow struct {
	Index      int32
	FileIndex  int32
	FileOffset int64
	Size       uint64
	Flags      uint32
	Key        []byte
}

// CreateStream inserts a new stream catalog entry and returns its id.
func (s *Store) CreateStream(label string, createdAt int64) (string, error) {
	id := uuid.NewString()
	_, err := s.sql.Exec(`INSERT INTO streams(id, label, created_at) VALUES (?, ?, ?)`, id, label, createdAt)
	if err != nil {
		return "", fderrors.Wrap("segstore.Store.CreateStream", fderrors.IO, fderrors.WriteFailed, err)
	}
	return id, nil
}

// AppendSegment records the next segment of streamID and returns its
// assigned index.
func (s *Store) AppendSegment(streamID string, fileIndex int32, fileOffset int64, size uint64, flags uint32, key []byte) (int32, error) {
	row := s.sql.QueryRow(`SELECT segments_count, total_bytes FROM streams WHERE id = ?`, streamID)
	var count int32
	var total uint64
	if err := row.Scan(&count, &total); err != nil {
		return 0, fderrors.Wrap("segstore.Store.AppendSegment", fderrors.IO, fderrors.ReadFailed, err)
	}
	if _, err := s.sql.Exec(`INSERT INTO stream_segments(stream_id, seg_index, file_index, file_offset, size, flags, seg_key)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, streamID, count, fileIndex, fileOffset, size, flags, key); err != nil {
		return 0, fderrors.Wrap("segstore.Store.AppendSegment", fderrors.IO, fderrors.WriteFailed, err)
	}
	if _, err := s.sql.Exec(`UPDATE streams SET segments_count = ?, total_bytes = ? WHERE id = ?`, count+1, total+size, streamID); err != nil {
		return 0, fderrors.Wrap("segstore.Store.AppendSegment", fderrors.IO, fderrors.WriteFailed, err)
	}
	return count, nil
}

// LoadSegments returns streamID's full segment list, ordered by index.
func (s *Store) LoadSegments(streamID string) ([]SegmentRow, error) {
	rows, err := s.sql.Query(`SELECT seg_index, file_index, file_offset, size, flags, seg_key
		FROM stream_segments WHERE stream_id = ? ORDER BY seg_index ASC`, streamID)
	if err != nil {
		return nil, fderrors.Wrap("segstore.Store.LoadSegments", fderrors.IO, fderrors.ReadFailed, err)
	}
	defer rows.Close()
	var out []SegmentRow
	for rows.Next() {
		var r SegmentRow
		if err := rows.Scan(&r.Index, &r.FileIndex, &r.FileOffset, &r.Size, &r.Flags, &r.Key); err != nil {
			return nil, fderrors.Wrap("segstore.Store.LoadSegments", fderrors.IO, fderrors.ReadFailed, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// RegisterExternalFile records the backend-specific descriptor a
// Handle should dereference for fileIndex (a local path, an NNTP
// message-id-set identifier, an S3 bucket/key, ...).
func (s *Store) RegisterExternalFile(fileIndex int32, descriptor string) error {
	_, err := s.sql.Exec(`INSERT INTO external_files(file_index, descriptor) VALUES (?, ?)
		ON CONFLICT(file_index) DO UPDATE SET descriptor = excluded.descriptor`, fileIndex, descriptor)
	if err != nil {
		return fderrors.Wrap("segstore.Store.RegisterExternalFile", fderrors.IO, fderrors.WriteFailed, err)
	}
	return nil
}

// ExternalFileDescriptor resolves fileIndex's registered descriptor.
func (s *Store) ExternalFileDescriptor(fileIndex int32) (string, error) {
	var descriptor string
	err := s.sql.QueryRow(`SELECT descriptor FROM external_files WHERE file_index = ?`, fileIndex).Scan(&descriptor)
	if err == sql.ErrNoRows {
		return "", fderrors.New("segstore.Store.ExternalFileDescriptor", fderrors.Runtime, fderrors.ValueMissing)
	}
	if err != nil {
		return "", fderrors.Wrap("segstore.Store.ExternalFileDescriptor", fderrors.IO, fderrors.ReadFailed, err)
	}
	return descriptor, nil
}
