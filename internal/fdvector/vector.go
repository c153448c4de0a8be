// Package fdvector implements the fixed-size-element specialization of
// fdlist from spec.md §4.5: the client fixes element_data_size at
// construction, and each segment of physical size S contributes
// S/element_data_size elements instead of one element per segment. A
// segment whose size is not a multiple of element_data_size is accepted
// on append but rejected with ValueOutOfBounds when its elements are
// looked up, read or written.
package fdvector

import (
	"github.com/gaby/fdata/internal/fdcache"
	"github.com/gaby/fdata/internal/fdclock"
	"github.com/gaby/fdata/internal/fderrors"
	"github.com/gaby/fdata/internal/fdhandle"
	"github.com/gaby/fdata/internal/fdlist"
)

// Handle is the vector's read/write callback trait. Unlike fdlist.Handle,
// it is invoked once per element with the element index (not the
// segment index), that element's own file offset and element_data_size
// as size, since one segment spans many elements.
type Handle[V any] interface {
	fdhandle.DataHandle

	ReadElementData(io any, vec *Vector[V], elementIndex int32, cache *fdcache.Cache[V],
		fileIndex int32, fileOffset int64, size uint64,
		rangeFlags fdhandle.RangeFlags, readFlags fdhandle.ReadFlags) error

	WriteElementData(io any, vec *Vector[V], elementIndex int32, cache *fdcache.Cache[V],
		fileIndex int32, fileOffset int64, size uint64,
		rangeFlags fdhandle.RangeFlags) error
}

type listAdapter[V any] struct {
	vec *Vector[V]
}

func (a listAdapter[V]) Free() error                             { return a.vec.handle.Free() }
func (a listAdapter[V]) Clone() (fdhandle.DataHandle, error)      { return a.vec.handle.Clone() }

func (a listAdapter[V]) ReadElementData(io any, list *fdlist.List[V], segIdx int32, cache *fdcache.Cache[V],
	fileIndex int32, fileOffset int64, size uint64, rangeFlags fdhandle.RangeFlags, readFlags fdhandle.ReadFlags) error {
	return a.vec.readSegment(io, segIdx, cache, fileIndex, fileOffset, size, rangeFlags, readFlags)
}

func (a listAdapter[V]) WriteElementData(io any, list *fdlist.List[V], segIdx int32, cache *fdcache.Cache[V],
	fileIndex int32, fileOffset int64, size uint64, rangeFlags fdhandle.RangeFlags) error {
	return a.vec.writeSegment(io, segIdx, cache, fileIndex, fileOffset, size, rangeFlags)
}

// Vector wraps an fdlist.List of segments, deriving element-index
// arithmetic from a fixed per-element byte size.
type Vector[V any] struct {
	list              *fdlist.List[V]
	handle            Handle[V]
	elementDataSize   uint64
}

// New constructs a vector. elementDataSize must be > 0.
func New[V any](handle Handle[V], dataHandle fdhandle.DataHandle, managed bool, elementDataSize uint64, clock fdclock.Clock) (*Vector[V], error) {
	if elementDataSize == 0 {
		return nil, fderrors.New("fdvector.New", fderrors.Arguments, fderrors.ValueZeroOrLess)
	}
	v := &Vector[V]{handle: handle, elementDataSize: elementDataSize}
	v.list = fdlist.New[V](listAdapter[V]{vec: v}, dataHandle, managed, clock)
	return v, nil
}

func (v *Vector[V]) readSegment(io any, segIdx int32, cache *fdcache.Cache[V], fileIndex int32, fileOffset int64, size uint64, rangeFlags fdhandle.RangeFlags, readFlags fdhandle.ReadFlags) error {
	if size%v.elementDataSize != 0 {
		return fderrors.New("fdvector.Vector.readSegment", fderrors.Runtime, fderrors.ValueOutOfBounds)
	}
	elementIndex, err := v.firstElementIndexOfSegment(segIdx)
	if err != nil {
		return err
	}
	count := size / v.elementDataSize
	for i := uint64(0); i < count; i++ {
		off := fileOffset + int64(i*v.elementDataSize)
		if err := v.handle.ReadElementData(io, v, elementIndex+int32(i), cache, fileIndex, off, v.elementDataSize, rangeFlags, readFlags); err != nil {
			return err
		}
	}
	return nil
}

func (v *Vector[V]) writeSegment(io any, segIdx int32, cache *fdcache.Cache[V], fileIndex int32, fileOffset int64, size uint64, rangeFlags fdhandle.RangeFlags) error {
	if size%v.elementDataSize != 0 {
		return fderrors.New("fdvector.Vector.writeSegment", fderrors.Runtime, fderrors.ValueOutOfBounds)
	}
	elementIndex, err := v.firstElementIndexOfSegment(segIdx)
	if err != nil {
		return err
	}
	count := size / v.elementDataSize
	for i := uint64(0); i < count; i++ {
		off := fileOffset + int64(i*v.elementDataSize)
		if err := v.handle.WriteElementData(io, v, elementIndex+int32(i), cache, fileIndex, off, v.elementDataSize, rangeFlags); err != nil {
			return err
		}
	}
	return nil
}

func (v *Vector[V]) firstElementIndexOfSegment(segIdx int32) (int32, error) {
	e, err := v.list.ElementByIndex(segIdx)
	if err != nil {
		return 0, err
	}
	if e.DataRange.Size%v.elementDataSize != 0 {
		return 0, fderrors.New("fdvector.Vector.firstElementIndexOfSegment", fderrors.Runtime, fderrors.ValueOutOfBounds)
	}
	return int32(uint64(e.LogicalOffset) / v.elementDataSize), nil
}

// NumberOfElements returns data_size / element_data_size.
func (v *Vector[V]) NumberOfElements() int64 {
	return int64(v.list.DataSize() / v.elementDataSize)
}

// ElementDataSize returns the fixed per-element size fixed at
// construction.
func (v *Vector[V]) ElementDataSize() uint64 { return v.elementDataSize }

// AppendSegment declares a new physical segment. size must be an exact
// multiple of element_data_size: spec.md §4.5 requires exact division,
// treating a remainder as a client bug reported lazily at element
// lookup rather than rejected eagerly here (mirroring the teacher
// library's segment-declaration-time leniency).
func (v *Vector[V]) AppendSegment(fileIndex int32, offset int64, size uint64, flags uint32) (int32, error) {
	return v.list.AppendElement(fileIndex, offset, size, flags)
}

// GetElementIndexAtOffset maps a logical offset to
// (segmentIndex, elementIndex, offsetWithinElement) by first locating
// the covering segment, then dividing the residual by
// element_data_size.
func (v *Vector[V]) GetElementIndexAtOffset(off int64) (segmentIndex int32, elementIndex int32, offsetWithinElement int64, err error) {
	segIdx, residual, err := v.list.ElementIndexAtValueOffset(off)
	if err != nil {
		return 0, 0, 0, err
	}
	first, err := v.firstElementIndexOfSegment(segIdx)
	if err != nil {
		return 0, 0, 0, err
	}
	within := uint64(residual) % v.elementDataSize
	elementIndex = first + int32(uint64(residual)/v.elementDataSize)
	return segIdx, elementIndex, int64(within), nil
}

// GetElementValue fetches the value at a global element index, checking
// the cache first at slot `elementIndex mod capacity` per spec.md §4.5's
// "deposit its value at the element-index cache slot".
func (v *Vector[V]) GetElementValue(io any, elementIndex int32, cache *fdcache.Cache[V], readFlags fdhandle.ReadFlags) (V, error) {
	var zero V
	if elementIndex < 0 || int64(elementIndex) >= v.NumberOfElements() {
		return zero, fderrors.New("fdvector.Vector.GetElementValue", fderrors.Runtime, fderrors.ValueOutOfBounds)
	}
	segIdx, residual, err := v.list.ElementIndexAtValueOffset(int64(elementIndex) * int64(v.elementDataSize))
	if err != nil {
		return zero, err
	}
	_ = residual
	seg, err := v.list.ElementByIndex(segIdx)
	if err != nil {
		return zero, err
	}
	first, err := v.firstElementIndexOfSegment(segIdx)
	if err != nil {
		return zero, err
	}
	withinSegmentIdx := elementIndex - first
	fileOffset := seg.DataRange.Offset + int64(uint64(withinSegmentIdx)*v.elementDataSize)

	// The element's cache identifier borrows its owning segment's
	// timestamp, since an individual vector element has no mutation
	// state of its own — only the segment it belongs to does.
	want := fdcache.Identifier{FileIndex: seg.DataRange.FileIndex, Offset: fileOffset, Timestamp: seg.Timestamp}
	slot := fdcache.Slot(int(elementIndex), cache.NumberOfEntries())
	if readFlags&fdhandle.IgnoreCache == 0 {
		if val, ok := cache.Lookup(slot, want); ok {
			return val, nil
		}
	}
	if err := v.handle.ReadElementData(io, v, elementIndex, cache, seg.DataRange.FileIndex, fileOffset, v.elementDataSize, seg.DataRange.Flags, readFlags); err != nil {
		return zero, fderrors.Wrap("fdvector.Vector.GetElementValue", fderrors.IO, fderrors.ReadFailed, err)
	}
	val, ok := cache.Lookup(slot, want)
	if !ok {
		return zero, fderrors.New("fdvector.Vector.GetElementValue", fderrors.Runtime, fderrors.ValueMissing)
	}
	return val, nil
}

// IdentifierForElement resolves the cache identifier a read callback
// must deposit its value under for elementIndex, sparing callback
// authors from re-deriving the segment lookup themselves.
func (v *Vector[V]) IdentifierForElement(elementIndex int32) (fdcache.Identifier, error) {
	segIdx, _, err := v.list.ElementIndexAtValueOffset(int64(elementIndex) * int64(v.elementDataSize))
	if err != nil {
		return fdcache.Identifier{}, err
	}
	seg, err := v.list.ElementByIndex(segIdx)
	if err != nil {
		return fdcache.Identifier{}, err
	}
	first, err := v.firstElementIndexOfSegment(segIdx)
	if err != nil {
		return fdcache.Identifier{}, err
	}
	fileOffset := seg.DataRange.Offset + int64(uint64(elementIndex-first)*v.elementDataSize)
	return fdcache.Identifier{FileIndex: seg.DataRange.FileIndex, Offset: fileOffset, Timestamp: seg.Timestamp}, nil
}

// SetElementValue is the deposit half of the element-value contract —
// called by the client's read callback during its own execution. The
// caller must pass the owning segment's current timestamp (obtainable
// via IdentifierForElement) so the deposited identifier matches what
// GetElementValue will look up.
func (v *Vector[V]) SetElementValue(elementIndex int32, cache *fdcache.Cache[V], fileIndex int32, fileOffset int64, timestamp int64, value V) error {
	id := fdcache.Identifier{FileIndex: fileIndex, Offset: fileOffset, Timestamp: timestamp}
	slot := fdcache.Slot(int(elementIndex), cache.NumberOfEntries())
	if slot < 0 {
		return fderrors.New("fdvector.Vector.SetElementValue", fderrors.Runtime, fderrors.ValueMissing)
	}
	return cache.SetValueByIndex(slot, id, value)
}

// Close tears down the underlying list.
func (v *Vector[V]) Close() error { return v.list.Close() }
