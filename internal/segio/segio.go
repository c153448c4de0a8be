// Package segio is the reference local-disk Handle implementation:
// segments are byte ranges of files on the local filesystem, addressed
// by file_index into a caller-supplied path table. Reads use positioned
// pread(2) (golang.org/x/sys/unix, already part of the teacher's
// dependency set for unix.Unmount) instead of a shared seek cursor, so
// concurrent reads of different ranges of the same file never race on
// an *os.File's offset.
package segio

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/gaby/fdata/internal/fdhandle"
	"github.com/gaby/fdata/internal/fdstream"
	"github.com/gaby/fdata/internal/fderrors"
)

// FileTable resolves an opaque file_index to the local path a segment's
// bytes live in.
type FileTable interface {
	PathForFileIndex(fileIndex int32) (string, error)
}

// MapFileTable is the simplest FileTable: a static index -> path map.
type MapFileTable map[int32]string

func (m MapFileTable) PathForFileIndex(fileIndex int32) (string, error) {
	p, ok := m[fileIndex]
	if !ok {
		return "", fderrors.New("segio.MapFileTable.PathForFileIndex", fderrors.Runtime, fderrors.ValueMissing)
	}
	return p, nil
}

// Handle is an fdstream.Handle backed by local files, opening (and
// caching) one *os.File descriptor per distinct file_index encountered.
// ReadSegmentData is always preceded by SeekSegmentOffset for the same
// segment (fdstream.Stream.segmentBytes's contract), so the sought
// offset is stashed per file_index and consumed by the following pread.
type Handle struct {
	fdstream.NopWriteHandle
	table    FileTable
	open     map[int32]*os.File
	lastSeek map[int32]int64
}

// New constructs a segio Handle over table.
func New(table FileTable) *Handle {
	return &Handle{table: table, open: make(map[int32]*os.File), lastSeek: make(map[int32]int64)}
}

func (h *Handle) fileFor(fileIndex int32) (*os.File, error) {
	if f, ok := h.open[fileIndex]; ok {
		return f, nil
	}
	path, err := h.table.PathForFileIndex(fileIndex)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fderrors.Wrap("segio.Handle.fileFor", fderrors.IO, fderrors.OpenFailed, err)
	}
	h.open[fileIndex] = f
	return f, nil
}

// SeekSegmentOffset validates fileOffset is reachable (the file opens
// successfully) and records it for the ReadSegmentData call that
// follows; pread needs no actual lseek, so this never touches the
// descriptor's position.
func (h *Handle) SeekSegmentOffset(io any, stream *fdstream.Stream, segIdx int32, fileIndex int32, fileOffset int64, whence fdstream.Whence) (int64, error) {
	if _, err := h.fileFor(fileIndex); err != nil {
		return 0, err
	}
	h.lastSeek[fileIndex] = fileOffset
	return fileOffset, nil
}

// ReadSegmentData fills dst via pread(2) at the offset SeekSegmentOffset
// last recorded for fileIndex, requiring an exact-size read (a short
// read past EOF is the client's bug to avoid by declaring accurate
// segment sizes).
func (h *Handle) ReadSegmentData(io any, stream *fdstream.Stream, segIdx int32, fileIndex int32, dst []byte, size uint64, readFlags fdhandle.ReadFlags) (uint64, error) {
	f, err := h.fileFor(fileIndex)
	if err != nil {
		return 0, err
	}
	offset := h.lastSeek[fileIndex]
	n, err := unix.Pread(int(f.Fd()), dst[:size], offset)
	if err != nil {
		return 0, fderrors.Wrap("segio.Handle.ReadSegmentData", fderrors.IO, fderrors.ReadFailed, err)
	}
	return uint64(n), nil
}

// Free closes every opened file descriptor.
func (h *Handle) Free() error {
	var firstErr error
	for idx, f := range h.open {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(h.open, idx)
	}
	return firstErr
}

// Clone returns a Handle sharing the same file table but with its own
// independent set of open descriptors.
func (h *Handle) Clone() (fdhandle.DataHandle, error) {
	return New(h.table), nil
}
