package fdstream

import (
	"testing"

	"github.com/gaby/fdata/internal/fdbuffer"
	"github.com/gaby/fdata/internal/fdcache"
	"github.com/gaby/fdata/internal/fdclock"
	"github.com/gaby/fdata/internal/fderrors"
	"github.com/gaby/fdata/internal/fdhandle"
)

// memHandle serves segments out of an in-memory file keyed by fileIndex.
type memHandle struct {
	NopWriteHandle
	files map[int32][]byte
	seeks int
	reads int
}

func newMemHandle(files map[int32][]byte) *memHandle {
	return &memHandle{files: files}
}

func (h *memHandle) Free() error                        { return nil }
func (h *memHandle) Clone() (fdhandle.DataHandle, error) { return h, nil }

func (h *memHandle) SeekSegmentOffset(io any, stream *Stream, segIdx int32, fileIndex int32, fileOffset int64, whence Whence) (int64, error) {
	h.seeks++
	return fileOffset, nil
}

func (h *memHandle) ReadSegmentData(io any, stream *Stream, segIdx int32, fileIndex int32, dst []byte, size uint64, readFlags fdhandle.ReadFlags) (uint64, error) {
	h.reads++
	f := h.files[fileIndex]
	n := copy(dst[:size], f)
	return uint64(n), nil
}

func TestStreamReadBufferAcrossSegments(t *testing.T) {
	h := newMemHandle(map[int32][]byte{
		0: []byte("hello "),
		1: []byte("world"),
	})
	s := New(h, h, false, 4, fdclock.NewCounter())
	if _, err := s.AppendSegment(0, 0, 6, 0); err != nil {
		t.Fatalf("AppendSegment: %v", err)
	}
	if _, err := s.AppendSegment(1, 0, 5, 0); err != nil {
		t.Fatalf("AppendSegment: %v", err)
	}
	if s.GetDataSize() != 11 {
		t.Fatalf("GetDataSize() = %d, want 11", s.GetDataSize())
	}

	dst := make([]byte, 11)
	n, err := s.ReadBuffer(nil, dst)
	if err != nil {
		t.Fatalf("ReadBuffer: %v", err)
	}
	if n != 11 || string(dst) != "hello world" {
		t.Fatalf("ReadBuffer = %q (n=%d), want %q", dst, n, "hello world")
	}
}

func TestStreamReadBufferClampsToRemaining(t *testing.T) {
	h := newMemHandle(map[int32][]byte{0: []byte("abc")})
	s := New(h, h, false, 4, fdclock.NewCounter())
	if _, err := s.AppendSegment(0, 0, 3, 0); err != nil {
		t.Fatalf("AppendSegment: %v", err)
	}
	if _, err := s.SeekOffset(0, SeekSet); err != nil {
		t.Fatalf("SeekOffset: %v", err)
	}
	dst := make([]byte, 10)
	n, err := s.ReadBuffer(nil, dst)
	if err != nil {
		t.Fatalf("ReadBuffer: %v", err)
	}
	if n != 3 {
		t.Fatalf("ReadBuffer clamped n = %d, want 3", n)
	}
}

func TestStreamSeekAtEndIsLegalNextReadIsZero(t *testing.T) {
	h := newMemHandle(map[int32][]byte{0: []byte("abc")})
	s := New(h, h, false, 4, fdclock.NewCounter())
	if _, err := s.AppendSegment(0, 0, 3, 0); err != nil {
		t.Fatalf("AppendSegment: %v", err)
	}
	off, err := s.SeekOffset(3, SeekSet)
	if err != nil {
		t.Fatalf("SeekOffset at data_size: %v", err)
	}
	if off != 3 {
		t.Fatalf("SeekOffset returned %d, want 3", off)
	}
	n, err := s.ReadBuffer(nil, make([]byte, 10))
	if err != nil {
		t.Fatalf("ReadBuffer: %v", err)
	}
	if n != 0 {
		t.Fatalf("ReadBuffer past end = %d, want 0", n)
	}
}

func TestStreamSeekNegativeRejected(t *testing.T) {
	h := newMemHandle(map[int32][]byte{0: []byte("abc")})
	s := New(h, h, false, 4, fdclock.NewCounter())
	if _, err := s.AppendSegment(0, 0, 3, 0); err != nil {
		t.Fatalf("AppendSegment: %v", err)
	}
	if _, err := s.SeekOffset(-1, SeekSet); !fderrors.Is(err, fderrors.Runtime, fderrors.ValueOutOfBounds) {
		t.Fatalf("expected ValueOutOfBounds, got %v", err)
	}
}

func TestStreamSegmentCacheAvoidsRepeatedReads(t *testing.T) {
	h := newMemHandle(map[int32][]byte{0: []byte("abcdef")})
	s := New(h, h, false, 4, fdclock.NewCounter())
	if _, err := s.AppendSegment(0, 0, 6, 0); err != nil {
		t.Fatalf("AppendSegment: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := s.SeekOffset(0, SeekSet); err != nil {
			t.Fatalf("SeekOffset: %v", err)
		}
		dst := make([]byte, 6)
		if _, err := s.ReadBuffer(nil, dst); err != nil {
			t.Fatalf("ReadBuffer: %v", err)
		}
	}
	if h.reads != 1 {
		t.Fatalf("expected the segment to be fetched once and cached, got %d reads", h.reads)
	}
}

func TestStreamWriteBufferWithNopWriteHandle(t *testing.T) {
	h := newMemHandle(map[int32][]byte{0: []byte("data")})
	s := New(h, h, false, 0, fdclock.NewCounter())
	if _, err := s.AppendSegment(0, 0, 4, 0); err != nil {
		t.Fatalf("AppendSegment: %v", err)
	}
	_, err := s.WriteBuffer(nil, []byte("data"))
	if !fderrors.Is(err, fderrors.Runtime, fderrors.Generic) {
		t.Fatalf("expected Runtime/Generic from NopWriteHandle, got %v", err)
	}
}

func TestStreamGetDataCachesWholeStream(t *testing.T) {
	h := newMemHandle(map[int32][]byte{0: []byte("abcdef")})
	s := New(h, h, false, 4, fdclock.NewCounter())
	if _, err := s.AppendSegment(0, 0, 6, 0); err != nil {
		t.Fatalf("AppendSegment: %v", err)
	}

	clientCache := fdcache.New[*fdbuffer.Buffer](2)
	buf1, err := s.GetData(nil, clientCache)
	if err != nil {
		t.Fatalf("GetData: %v", err)
	}
	if string(buf1.Data()) != "abcdef" {
		t.Fatalf("GetData = %q, want %q", buf1.Data(), "abcdef")
	}
	buf2, err := s.GetData(nil, clientCache)
	if err != nil {
		t.Fatalf("GetData (cached): %v", err)
	}
	if buf2 != buf1 {
		t.Fatal("second GetData call should return the cached buffer instance")
	}
}
