// Package fdstream implements the stream from spec.md §4.7: an ordered
// list of segments exposing one contiguous, seekable, readable logical
// address space, grounded on the teacher's segment-walking streamer
// (internal/streamer) and NNTP body-fetch client generalized away from
// Usenet specifics.
package fdstream

import (
	"github.com/gaby/fdata/internal/fdbuffer"
	"github.com/gaby/fdata/internal/fdcache"
	"github.com/gaby/fdata/internal/fdclock"
	"github.com/gaby/fdata/internal/fderrors"
	"github.com/gaby/fdata/internal/fdhandle"
	"github.com/gaby/fdata/internal/fdrange"
)

// Whence selects the reference point for SeekOffset, mirroring
// spec.md §4.7's SEEK_SET/SEEK_CUR/SEEK_END.
type Whence int

const (
	SeekSet Whence = iota
	SeekCur
	SeekEnd
)

// Handle is the stream's callback trait.
type Handle interface {
	fdhandle.DataHandle

	// ReadSegmentData must fill dst[:size] and return size exactly; a
	// short read is Io::ReadFailed (spec.md §4.7).
	ReadSegmentData(io any, stream *Stream, segIdx int32, fileIndex int32, dst []byte, size uint64, readFlags fdhandle.ReadFlags) (uint64, error)

	// SeekSegmentOffset must return the passed-in fileOffset; any other
	// return is Io::SeekFailed.
	SeekSegmentOffset(io any, stream *Stream, segIdx int32, fileIndex int32, fileOffset int64, whence Whence) (int64, error)

	// WriteSegmentData mirrors the read path. Implementations with no
	// write support should return an fderrors.Runtime/Generic error;
	// embedding NopWriteHandle provides exactly that, and WriteBuffer
	// passes the handle's error through unchanged.
	WriteSegmentData(io any, stream *Stream, segIdx int32, fileIndex int32, src []byte, size uint64) (uint64, error)
}

// NopWriteHandle can be embedded by a Handle implementation with no
// write support, satisfying WriteSegmentData with the documented
// Runtime/Generic failure (spec.md §9 Open Question 3).
type NopWriteHandle struct{}

func (NopWriteHandle) WriteSegmentData(io any, stream *Stream, segIdx int32, fileIndex int32, src []byte, size uint64) (uint64, error) {
	return 0, fderrors.New("fdstream.NopWriteHandle.WriteSegmentData", fderrors.Runtime, fderrors.Generic)
}

type segment struct {
	dataRange fdrange.Range
	timestamp int64
}

// Stream is the (segments, mapped ranges, data_size, cursor) aggregate
// from spec.md §3/§4.7.
type Stream struct {
	clock   fdclock.Clock
	handle  Handle
	dataHandle    fdhandle.DataHandle
	handleManaged bool

	segments []segment
	mapped   []fdrange.MappedRange
	dataSize uint64
	dirty    bool
	timestamp int64 // stream-level timestamp, bumped on every segment mutation

	currentOffset        int64
	currentSegmentIndex   int32
	currentSegmentOffset  int64

	// segmentCache memoizes a whole segment's decoded bytes, keyed by
	// (file_index, file_offset, segment_timestamp), so repeated
	// sub-range reads of the same segment don't re-invoke the seek/read
	// callbacks. It is internal and distinct from any cache the client
	// passes in for the whole-stream GetData optimization.
	segmentCache *fdcache.Cache[*fdbuffer.Buffer]
}

// New constructs an empty stream. segmentCacheCapacity sizes the
// internal per-segment buffer memo (0 disables it).
func New(handle Handle, dataHandle fdhandle.DataHandle, managed bool, segmentCacheCapacity int, clock fdclock.Clock) *Stream {
	if clock == nil {
		clock = fdclock.Monotonic()
	}
	return &Stream{
		clock:         clock,
		handle:        handle,
		dataHandle:    dataHandle,
		handleManaged: managed,
		segmentCache:  fdcache.New[*fdbuffer.Buffer](segmentCacheCapacity),
	}
}

func (s *Stream) ensureMapped() {
	if !s.dirty {
		return
	}
	mapped := make([]fdrange.MappedRange, len(s.segments))
	var off int64
	for i, seg := range s.segments {
		mapped[i] = fdrange.MappedRange{LogicalOffset: off, Size: seg.dataRange.Size}
		off += int64(seg.dataRange.Size)
	}
	s.mapped = mapped
	s.dirty = false
}

func (s *Stream) bumpTimestamp() { s.timestamp = s.clock.Now() }

// NumberOfSegments returns the current segment count.
func (s *Stream) NumberOfSegments() int { return len(s.segments) }

// GetDataSize returns the sum of segment sizes.
func (s *Stream) GetDataSize() uint64 { return s.dataSize }

// GetSegmentByIndex returns segment i's range.
func (s *Stream) GetSegmentByIndex(i int32) (fdrange.Range, error) {
	if i < 0 || int(i) >= len(s.segments) {
		return fdrange.Range{}, fderrors.New("fdstream.Stream.GetSegmentByIndex", fderrors.Runtime, fderrors.ValueOutOfBounds)
	}
	return s.segments[i].dataRange, nil
}

// ResizeSegments grows or shrinks the segment array, marking mapped
// ranges dirty.
func (s *Stream) ResizeSegments(n int) error {
	if n < 0 {
		return fderrors.New("fdstream.Stream.ResizeSegments", fderrors.Arguments, fderrors.ValueLessThanZero)
	}
	if n <= len(s.segments) {
		s.segments = s.segments[:n]
	} else {
		grown := make([]segment, n)
		copy(grown, s.segments)
		for i := len(s.segments); i < n; i++ {
			grown[i].dataRange.FileIndex = -1
		}
		s.segments = grown
	}
	s.dirty = true
	s.bumpTimestamp()
	return nil
}

// SetSegmentByIndex mutates segment i in place, adjusting data_size by
// new_size - old_size and bumping the stream timestamp.
func (s *Stream) SetSegmentByIndex(i int32, fileIndex int32, offset int64, size uint64, flags uint32) error {
	if i < 0 || int(i) >= len(s.segments) {
		return fderrors.New("fdstream.Stream.SetSegmentByIndex", fderrors.Runtime, fderrors.ValueOutOfBounds)
	}
	r, err := fdrange.New(fileIndex, offset, size, flags)
	if err != nil {
		return err
	}
	wasSet := s.segments[i].dataRange.FileIndex != -1
	old := s.segments[i].dataRange.Size
	s.segments[i].dataRange = r
	s.segments[i].timestamp = s.clock.Now()
	if wasSet {
		s.dataSize = s.dataSize - old + size
	} else {
		s.dataSize += size
	}
	s.dirty = true
	s.bumpTimestamp()
	return nil
}

// AppendSegment appends a new segment, returning its index.
func (s *Stream) AppendSegment(fileIndex int32, offset int64, size uint64, flags uint32) (int32, error) {
	r, err := fdrange.New(fileIndex, offset, size, flags)
	if err != nil {
		return 0, err
	}
	idx := int32(len(s.segments))
	s.segments = append(s.segments, segment{dataRange: r, timestamp: s.clock.Now()})
	s.dataSize += size
	s.dirty = true
	s.bumpTimestamp()
	return idx, nil
}

func (s *Stream) segmentIndexAtOffset(off int64) (int32, int64, error) {
	s.ensureMapped()
	n := len(s.segments)
	if n == 0 || off < 0 || uint64(off) >= s.dataSize {
		return 0, 0, fderrors.New("fdstream.Stream.segmentIndexAtOffset", fderrors.Runtime, fderrors.ValueOutOfBounds)
	}
	guess := int(int64(n) * off / int64(s.dataSize))
	if guess < 0 {
		guess = 0
	} else if guess >= n {
		guess = n - 1
	}
	if s.mapped[guess].Contains(off) {
		return int32(guess), off - s.mapped[guess].LogicalOffset, nil
	}
	if s.mapped[guess].End() <= off {
		for i := guess; i < n; i++ {
			if s.mapped[i].Contains(off) {
				return int32(i), off - s.mapped[i].LogicalOffset, nil
			}
		}
	} else {
		for i := guess; i >= 0; i-- {
			if s.mapped[i].Contains(off) {
				return int32(i), off - s.mapped[i].LogicalOffset, nil
			}
		}
	}
	return 0, 0, fderrors.New("fdstream.Stream.segmentIndexAtOffset", fderrors.Runtime, fderrors.ValueOutOfBounds)
}

// SeekOffset repositions the cursor. off<data_size recomputes
// (currentSegmentIndex, currentSegmentOffset); off==data_size and
// beyond is legal, the next read returns 0.
func (s *Stream) SeekOffset(off int64, whence Whence) (int64, error) {
	var resolved int64
	switch whence {
	case SeekSet:
		resolved = off
	case SeekCur:
		resolved = s.currentOffset + off
	case SeekEnd:
		resolved = int64(s.dataSize) + off
	default:
		return 0, fderrors.New("fdstream.Stream.SeekOffset", fderrors.Arguments, fderrors.UnsupportedValue)
	}
	if resolved < 0 {
		return 0, fderrors.New("fdstream.Stream.SeekOffset", fderrors.Runtime, fderrors.ValueOutOfBounds)
	}
	s.currentOffset = resolved
	if uint64(resolved) < s.dataSize {
		idx, segOff, err := s.segmentIndexAtOffset(resolved)
		if err != nil {
			return 0, err
		}
		s.currentSegmentIndex = idx
		s.currentSegmentOffset = segOff
	} else {
		s.currentSegmentIndex = int32(len(s.segments))
		s.currentSegmentOffset = 0
	}
	return resolved, nil
}

// segmentBytes returns the full decoded contents of segment idx,
// fetching via seek+read on a cache miss.
func (s *Stream) segmentBytes(io any, idx int32) ([]byte, error) {
	seg := s.segments[idx]
	want := fdcache.Identifier{FileIndex: seg.dataRange.FileIndex, Offset: seg.dataRange.Offset, Timestamp: seg.timestamp}
	slot := fdcache.Slot(int(idx), s.segmentCache.NumberOfEntries())
	if buf, ok := s.segmentCache.Lookup(slot, want); ok {
		return buf.Data(), nil
	}

	newOff, err := s.handle.SeekSegmentOffset(io, s, idx, seg.dataRange.FileIndex, seg.dataRange.Offset, SeekSet)
	if err != nil {
		return nil, fderrors.Wrap("fdstream.Stream.segmentBytes", fderrors.IO, fderrors.SeekFailed, err)
	}
	if newOff != seg.dataRange.Offset {
		return nil, fderrors.New("fdstream.Stream.segmentBytes", fderrors.IO, fderrors.SeekFailed)
	}

	buf, err := fdbuffer.New(int(seg.dataRange.Size))
	if err != nil {
		return nil, err
	}
	n, err := s.handle.ReadSegmentData(io, s, idx, seg.dataRange.FileIndex, buf.Data(), seg.dataRange.Size, 0)
	if err != nil {
		return nil, fderrors.Wrap("fdstream.Stream.segmentBytes", fderrors.IO, fderrors.ReadFailed, err)
	}
	if n != seg.dataRange.Size {
		return nil, fderrors.New("fdstream.Stream.segmentBytes", fderrors.IO, fderrors.ReadFailed)
	}

	if slot >= 0 {
		_ = s.segmentCache.SetValueByIndex(slot, want, buf)
	}
	return buf.Data(), nil
}

// ReadBuffer copies up to len(dst) bytes starting at the cursor into
// dst, walking segments as needed, and returns the number of bytes
// copied. n is clamped to data_size - current_offset.
func (s *Stream) ReadBuffer(io any, dst []byte) (int, error) {
	s.ensureMapped()
	remaining := int64(s.dataSize) - s.currentOffset
	if remaining < 0 {
		remaining = 0
	}
	want := int64(len(dst))
	if want > remaining {
		want = remaining
	}
	if want == 0 {
		return 0, nil
	}

	written := int64(0)
	for written < want {
		if int(s.currentSegmentIndex) >= len(s.segments) {
			break
		}
		segData, err := s.segmentBytes(io, s.currentSegmentIndex)
		if err != nil {
			return int(written), err
		}
		avail := int64(len(segData)) - s.currentSegmentOffset
		take := want - written
		if take > avail {
			take = avail
		}
		copy(dst[written:written+take], segData[s.currentSegmentOffset:s.currentSegmentOffset+take])
		written += take
		s.currentOffset += take
		s.currentSegmentOffset += take
		if s.currentSegmentOffset >= int64(len(segData)) {
			s.currentSegmentIndex++
			s.currentSegmentOffset = 0
		}
	}
	return int(written), nil
}

// WriteBuffer delegates to the handle's WriteSegmentData for the
// segment under the cursor. Per spec.md §9 Open Question 3, an
// implementation with no write support should supply NopWriteHandle.
func (s *Stream) WriteBuffer(io any, src []byte) (int, error) {
	if len(src) == 0 {
		return 0, nil
	}
	if int(s.currentSegmentIndex) >= len(s.segments) {
		return 0, fderrors.New("fdstream.Stream.WriteBuffer", fderrors.Runtime, fderrors.ValueOutOfBounds)
	}
	seg := s.segments[s.currentSegmentIndex]
	n, err := s.handle.WriteSegmentData(io, s, s.currentSegmentIndex, seg.dataRange.FileIndex, src, uint64(len(src)))
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// GetData reads the entire logical stream into one buffer, cached at
// slot 0 under identifier (0, 0, stream_timestamp) so repeat calls
// after no mutation skip re-reading (spec.md §4.7's whole-stream
// optimization). cache is client-supplied and distinct from the
// internal per-segment cache.
func (s *Stream) GetData(io any, cache *fdcache.Cache[*fdbuffer.Buffer]) (*fdbuffer.Buffer, error) {
	want := fdcache.Identifier{FileIndex: 0, Offset: 0, Timestamp: s.timestamp}
	slot := fdcache.Slot(0, cache.NumberOfEntries())
	if buf, ok := cache.Lookup(slot, want); ok {
		return buf, nil
	}

	buf, err := fdbuffer.New(int(s.dataSize))
	if err != nil {
		return nil, err
	}
	if _, err := s.SeekOffset(0, SeekSet); err != nil {
		return nil, err
	}
	n, err := s.ReadBuffer(io, buf.Data())
	if err != nil {
		return nil, err
	}
	if uint64(n) != s.dataSize {
		return nil, fderrors.New("fdstream.Stream.GetData", fderrors.IO, fderrors.ReadFailed)
	}
	if slot >= 0 {
		if err := cache.SetValueByIndex(slot, want, buf); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// Close tears down the stream's segment arrays and frees its data
// handle if managed.
func (s *Stream) Close() error {
	s.mapped = nil
	s.segments = nil
	if s.handleManaged && s.dataHandle != nil {
		return s.dataHandle.Free()
	}
	return nil
}

// Clone produces an independent stream with its own cursor reset to 0,
// cloning the data handle whenever the stream has one, owned or not.
func (s *Stream) Clone() (*Stream, error) {
	out := &Stream{
		clock: s.clock, handle: s.handle, handleManaged: s.handleManaged,
		dataSize: s.dataSize, dirty: s.dirty, timestamp: s.timestamp,
		segmentCache: fdcache.New[*fdbuffer.Buffer](s.segmentCache.NumberOfEntries()),
	}
	out.segments = append([]segment(nil), s.segments...)
	out.mapped = append([]fdrange.MappedRange(nil), s.mapped...)
	if s.dataHandle != nil {
		cloned, err := s.dataHandle.Clone()
		if err != nil {
			return nil, err
		}
		out.dataHandle = cloned
	}
	return out, nil
}
