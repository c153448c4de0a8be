package segio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gaby/fdata/internal/fdstream"
	"github.com/gaby/fdata/internal/fderrors"
)

func writeTempFile(t *testing.T, contents []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "segment.bin")
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestSeekThenReadSegmentData(t *testing.T) {
	path := writeTempFile(t, []byte("0123456789abcdef"))
	h := New(MapFileTable{0: path})

	if _, err := h.SeekSegmentOffset(nil, nil, 0, 0, 6, fdstream.SeekSet); err != nil {
		t.Fatalf("SeekSegmentOffset: %v", err)
	}
	dst := make([]byte, 4)
	n, err := h.ReadSegmentData(nil, nil, 0, 0, dst, 4, 0)
	if err != nil {
		t.Fatalf("ReadSegmentData: %v", err)
	}
	if n != 4 || string(dst) != "6789" {
		t.Fatalf("ReadSegmentData = %q (n=%d), want %q (n=4)", dst, n, "6789")
	}
}

func TestReadSegmentDataReadsAtEachSeekOffset(t *testing.T) {
	path := writeTempFile(t, []byte("0123456789abcdef"))
	h := New(MapFileTable{0: path})

	if _, err := h.SeekSegmentOffset(nil, nil, 0, 0, 0, fdstream.SeekSet); err != nil {
		t.Fatalf("SeekSegmentOffset: %v", err)
	}
	first := make([]byte, 3)
	if _, err := h.ReadSegmentData(nil, nil, 0, 0, first, 3, 0); err != nil {
		t.Fatalf("ReadSegmentData (first): %v", err)
	}
	if string(first) != "012" {
		t.Fatalf("first read = %q, want %q", first, "012")
	}

	if _, err := h.SeekSegmentOffset(nil, nil, 0, 0, 10, fdstream.SeekSet); err != nil {
		t.Fatalf("SeekSegmentOffset: %v", err)
	}
	second := make([]byte, 3)
	if _, err := h.ReadSegmentData(nil, nil, 0, 0, second, 3, 0); err != nil {
		t.Fatalf("ReadSegmentData (second): %v", err)
	}
	if string(second) != "abc" {
		t.Fatalf("second read = %q, want %q", second, "abc")
	}
}

func TestFileForReusesOpenDescriptor(t *testing.T) {
	path := writeTempFile(t, []byte("hello"))
	h := New(MapFileTable{0: path})

	f1, err := h.fileFor(0)
	if err != nil {
		t.Fatalf("fileFor: %v", err)
	}
	f2, err := h.fileFor(0)
	if err != nil {
		t.Fatalf("fileFor: %v", err)
	}
	if f1 != f2 {
		t.Fatal("fileFor must return the same *os.File for a repeated fileIndex")
	}
}

func TestUnknownFileIndexIsError(t *testing.T) {
	h := New(MapFileTable{})
	if _, err := h.SeekSegmentOffset(nil, nil, 0, 99, 0, fdstream.SeekSet); !fderrors.Is(err, fderrors.Runtime, fderrors.ValueMissing) {
		t.Fatalf("expected ValueMissing for an unregistered file index, got %v", err)
	}
}

func TestFreeClosesAllDescriptors(t *testing.T) {
	pathA := writeTempFile(t, []byte("a"))
	pathB := writeTempFile(t, []byte("b"))
	h := New(MapFileTable{0: pathA, 1: pathB})

	if _, err := h.fileFor(0); err != nil {
		t.Fatalf("fileFor(0): %v", err)
	}
	if _, err := h.fileFor(1); err != nil {
		t.Fatalf("fileFor(1): %v", err)
	}
	if err := h.Free(); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if len(h.open) != 0 {
		t.Fatalf("Free must clear the open descriptor table, got %d entries", len(h.open))
	}
}

func TestCloneIsIndependentDescriptorSet(t *testing.T) {
	path := writeTempFile(t, []byte("hello"))
	h := New(MapFileTable{0: path})
	if _, err := h.fileFor(0); err != nil {
		t.Fatalf("fileFor: %v", err)
	}

	cloned, err := h.Clone()
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	clone, ok := cloned.(*Handle)
	if !ok {
		t.Fatalf("Clone() returned %T, want *Handle", cloned)
	}
	if len(clone.open) != 0 {
		t.Fatal("a freshly cloned Handle must not share the parent's open descriptors")
	}
}
