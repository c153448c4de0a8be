// Package fdarea implements the offset-keyed specialization of fdlist
// from spec.md §4.6: like fdvector, but callers address elements by
// logical byte offset rather than element index, and the read callback
// receives (element_value_offset, file_index, file_offset, size, flags).
package fdarea

import (
	"github.com/gaby/fdata/internal/fdcache"
	"github.com/gaby/fdata/internal/fdclock"
	"github.com/gaby/fdata/internal/fderrors"
	"github.com/gaby/fdata/internal/fdhandle"
	"github.com/gaby/fdata/internal/fdlist"
)

// Handle is the area's read/write callback trait. elementValueOffset is
// the logical offset of the start of the containing element (a multiple
// of element_data_size), per spec.md §4.6.
type Handle[V any] interface {
	fdhandle.DataHandle

	ReadElementData(io any, area *Area[V], elementValueOffset int64, cache *fdcache.Cache[V],
		fileIndex int32, fileOffset int64, size uint64,
		rangeFlags fdhandle.RangeFlags, readFlags fdhandle.ReadFlags) error

	WriteElementData(io any, area *Area[V], elementValueOffset int64, cache *fdcache.Cache[V],
		fileIndex int32, fileOffset int64, size uint64,
		rangeFlags fdhandle.RangeFlags) error
}

type listAdapter[V any] struct{ area *Area[V] }

func (a listAdapter[V]) Free() error                        { return a.area.handle.Free() }
func (a listAdapter[V]) Clone() (fdhandle.DataHandle, error) { return a.area.handle.Clone() }

func (a listAdapter[V]) ReadElementData(io any, list *fdlist.List[V], segIdx int32, cache *fdcache.Cache[V],
	fileIndex int32, fileOffset int64, size uint64, rangeFlags fdhandle.RangeFlags, readFlags fdhandle.ReadFlags) error {
	return a.area.readSegment(io, segIdx, cache, fileIndex, fileOffset, size, rangeFlags, readFlags)
}

func (a listAdapter[V]) WriteElementData(io any, list *fdlist.List[V], segIdx int32, cache *fdcache.Cache[V],
	fileIndex int32, fileOffset int64, size uint64, rangeFlags fdhandle.RangeFlags) error {
	return a.area.writeSegment(io, segIdx, cache, fileIndex, fileOffset, size, rangeFlags)
}

// Area wraps an fdlist.List of segments, indexed by the logical offset
// of fixed-size element boundaries rather than a running element count.
type Area[V any] struct {
	list            *fdlist.List[V]
	handle          Handle[V]
	elementDataSize uint64
}

// New constructs an area. elementDataSize must be > 0.
func New[V any](handle Handle[V], dataHandle fdhandle.DataHandle, managed bool, elementDataSize uint64, clock fdclock.Clock) (*Area[V], error) {
	if elementDataSize == 0 {
		return nil, fderrors.New("fdarea.New", fderrors.Arguments, fderrors.ValueZeroOrLess)
	}
	a := &Area[V]{handle: handle, elementDataSize: elementDataSize}
	a.list = fdlist.New[V](listAdapter[V]{area: a}, dataHandle, managed, clock)
	return a, nil
}

func (a *Area[V]) readSegment(io any, segIdx int32, cache *fdcache.Cache[V], fileIndex int32, fileOffset int64, size uint64, rangeFlags fdhandle.RangeFlags, readFlags fdhandle.ReadFlags) error {
	if size%a.elementDataSize != 0 {
		return fderrors.New("fdarea.Area.readSegment", fderrors.Runtime, fderrors.ValueOutOfBounds)
	}
	seg, err := a.list.ElementByIndex(segIdx)
	if err != nil {
		return err
	}
	count := size / a.elementDataSize
	for i := uint64(0); i < count; i++ {
		elementValueOffset := seg.LogicalOffset + int64(i*a.elementDataSize)
		off := fileOffset + int64(i*a.elementDataSize)
		if err := a.handle.ReadElementData(io, a, elementValueOffset, cache, fileIndex, off, a.elementDataSize, rangeFlags, readFlags); err != nil {
			return err
		}
	}
	return nil
}

func (a *Area[V]) writeSegment(io any, segIdx int32, cache *fdcache.Cache[V], fileIndex int32, fileOffset int64, size uint64, rangeFlags fdhandle.RangeFlags) error {
	if size%a.elementDataSize != 0 {
		return fderrors.New("fdarea.Area.writeSegment", fderrors.Runtime, fderrors.ValueOutOfBounds)
	}
	seg, err := a.list.ElementByIndex(segIdx)
	if err != nil {
		return err
	}
	count := size / a.elementDataSize
	for i := uint64(0); i < count; i++ {
		elementValueOffset := seg.LogicalOffset + int64(i*a.elementDataSize)
		off := fileOffset + int64(i*a.elementDataSize)
		if err := a.handle.WriteElementData(io, a, elementValueOffset, cache, fileIndex, off, a.elementDataSize, rangeFlags); err != nil {
			return err
		}
	}
	return nil
}

// AppendSegment declares a new physical segment, same exact-division
// requirement as fdvector.
func (a *Area[V]) AppendSegment(fileIndex int32, offset int64, size uint64, flags uint32) (int32, error) {
	return a.list.AppendElement(fileIndex, offset, size, flags)
}

// ElementDataSize returns the fixed per-element size.
func (a *Area[V]) ElementDataSize() uint64 { return a.elementDataSize }

func (a *Area[V]) elementBoundary(off int64) int64 {
	return (off / int64(a.elementDataSize)) * int64(a.elementDataSize)
}

// GetElementValueAtOffset resolves the element covering off (rounding
// down to the nearest element boundary) and returns its value, checking
// the cache first at slot floor(off/element_data_size) mod capacity.
func (a *Area[V]) GetElementValueAtOffset(io any, off int64, cache *fdcache.Cache[V], readFlags fdhandle.ReadFlags) (V, error) {
	var zero V
	segIdx, residual, err := a.list.ElementIndexAtValueOffset(off)
	if err != nil {
		return zero, err
	}
	seg, err := a.list.ElementByIndex(segIdx)
	if err != nil {
		return zero, err
	}
	if seg.DataRange.Size%a.elementDataSize != 0 {
		return zero, fderrors.New("fdarea.Area.GetElementValueAtOffset", fderrors.Runtime, fderrors.ValueOutOfBounds)
	}
	_ = residual
	elementValueOffset := a.elementBoundary(off)
	withinSegmentOffset := elementValueOffset - seg.LogicalOffset
	fileOffset := seg.DataRange.Offset + withinSegmentOffset

	slotIndex := int(elementValueOffset / int64(a.elementDataSize))
	want := fdcache.Identifier{FileIndex: seg.DataRange.FileIndex, Offset: fileOffset, Timestamp: seg.Timestamp}
	slot := fdcache.Slot(slotIndex, cache.NumberOfEntries())
	if readFlags&fdhandle.IgnoreCache == 0 {
		if val, ok := cache.Lookup(slot, want); ok {
			return val, nil
		}
	}
	if err := a.handle.ReadElementData(io, a, elementValueOffset, cache, seg.DataRange.FileIndex, fileOffset, a.elementDataSize, seg.DataRange.Flags, readFlags); err != nil {
		return zero, fderrors.Wrap("fdarea.Area.GetElementValueAtOffset", fderrors.IO, fderrors.ReadFailed, err)
	}
	val, ok := cache.Lookup(slot, want)
	if !ok {
		return zero, fderrors.New("fdarea.Area.GetElementValueAtOffset", fderrors.Runtime, fderrors.ValueMissing)
	}
	return val, nil
}

// IdentifierForOffset resolves the cache identifier a read callback
// must deposit its value under for the element covering off.
func (a *Area[V]) IdentifierForOffset(off int64) (fdcache.Identifier, error) {
	segIdx, _, err := a.list.ElementIndexAtValueOffset(off)
	if err != nil {
		return fdcache.Identifier{}, err
	}
	seg, err := a.list.ElementByIndex(segIdx)
	if err != nil {
		return fdcache.Identifier{}, err
	}
	elementValueOffset := a.elementBoundary(off)
	fileOffset := seg.DataRange.Offset + (elementValueOffset - seg.LogicalOffset)
	return fdcache.Identifier{FileIndex: seg.DataRange.FileIndex, Offset: fileOffset, Timestamp: seg.Timestamp}, nil
}

// SetElementValue is the deposit half of the element-value contract.
func (a *Area[V]) SetElementValue(elementValueOffset int64, cache *fdcache.Cache[V], id fdcache.Identifier, value V) error {
	slotIndex := int(elementValueOffset / int64(a.elementDataSize))
	slot := fdcache.Slot(slotIndex, cache.NumberOfEntries())
	if slot < 0 {
		return fderrors.New("fdarea.Area.SetElementValue", fderrors.Runtime, fderrors.ValueMissing)
	}
	return cache.SetValueByIndex(slot, id, value)
}

// Close tears down the underlying list.
func (a *Area[V]) Close() error { return a.list.Close() }
