// Package fdlist implements the list and list-element primitives from
// spec.md §4.4: an ordered array of independently cached segments whose
// per-element values are not necessarily raw bytes. Vector (fdvector)
// and area (fdarea) are both specializations of this package; stream
// (fdstream) does not import it and keeps its own copy of the same
// mapped-range bookkeeping for byte-oriented segments.
package fdlist

import (
	"sort"

	"github.com/gaby/fdata/internal/fdcache"
	"github.com/gaby/fdata/internal/fdclock"
	"github.com/gaby/fdata/internal/fderrors"
	"github.com/gaby/fdata/internal/fdhandle"
	"github.com/gaby/fdata/internal/fdrange"
)

// Handle is the client-supplied callback trait for a list of V-valued
// elements (spec.md §6's read_element_data/write_element_data row).
type Handle[V any] interface {
	fdhandle.DataHandle

	// ReadElementData is invoked on a cache miss. It is expected to call
	// List.SetElementValue(index, cache, value) during its execution to
	// deposit the computed value (spec.md §4.8).
	ReadElementData(io any, list *List[V], index int32, cache *fdcache.Cache[V],
		fileIndex int32, fileOffset int64, size uint64,
		rangeFlags fdhandle.RangeFlags, readFlags fdhandle.ReadFlags) error

	// WriteElementData mirrors the read path; implementations that don't
	// support writes should return an fderrors.Runtime/Generic error.
	WriteElementData(io any, list *List[V], index int32, cache *fdcache.Cache[V],
		fileIndex int32, fileOffset int64, size uint64,
		rangeFlags fdhandle.RangeFlags) error
}

type element[V any] struct {
	dataRange     fdrange.Range
	logicalOffset int64
	mappedSize    uint64
	hasMappedSize bool
	timestamp     int64
}

// Element is a read-only snapshot returned by ElementByIndex/
// ElementByOffset. Per spec.md §9's "Parent back-pointers" design note,
// it carries only an index into the parent's arena — not an owning
// pointer back into the list — so callers must pass the owning *List
// back into List methods that need fresh state (GetElementValue,
// SetElementValue, DataRangeByIndex, ...).
type Element struct {
	Index         int32
	DataRange     fdrange.Range
	LogicalOffset int64
	MappedSize    uint64
	HasMappedSize bool
	Timestamp     int64
}

// List is the (elements, mapped ranges, data_size, dirty flag, data
// handle, callbacks, cursor-free) aggregate from spec.md §3/§4.4.
type List[V any] struct {
	clock   fdclock.Clock
	handle  Handle[V]
	dataHandle    fdhandle.DataHandle
	handleManaged bool

	elements []element[V]
	mapped   []fdrange.MappedRange
	dataSize uint64
	dirty    bool

	// UseBinarySearch substitutes a binary search over the cumulative
	// mapped-offset array for the default two-sided linear probe in
	// ElementIndexAtValueOffset, per spec.md §9 Open Question 4.
	UseBinarySearch bool
}

// New constructs an empty list bound to the given callbacks and data
// handle. managed mirrors spec.md's DATA_HANDLE_MANAGED flag: when true,
// Close invokes dataHandle.Free exactly once.
func New[V any](handle Handle[V], dataHandle fdhandle.DataHandle, managed bool, clock fdclock.Clock) *List[V] {
	if clock == nil {
		clock = fdclock.Monotonic()
	}
	return &List[V]{clock: clock, handle: handle, dataHandle: dataHandle, handleManaged: managed}
}

// Empty resets the list to its just-constructed state. Idempotent:
// calling Empty twice in a row is equivalent to calling it once
// (spec.md §8's "Idempotent empty" law).
func (l *List[V]) Empty() {
	l.elements = l.elements[:0]
	l.mapped = l.mapped[:0]
	l.dataSize = 0
	l.dirty = false
}

// Resize grows or shrinks the element array to exactly n slots. Newly
// created slots are "unset" (IsElementSet reports false) until a
// SetElementByIndex/AppendElement populates them. Per the original
// library's libfdata_list_resize_elements, this only touches capacity
// and marks mapped ranges dirty — it never recomputes them eagerly.
func (l *List[V]) Resize(n int) error {
	if n < 0 {
		return fderrors.New("fdlist.List.Resize", fderrors.Arguments, fderrors.ValueLessThanZero)
	}
	if n <= len(l.elements) {
		l.elements = l.elements[:n]
	} else {
		grown := make([]element[V], n)
		copy(grown, l.elements)
		for i := len(l.elements); i < n; i++ {
			grown[i].dataRange.FileIndex = -1
		}
		l.elements = grown
	}
	l.dirty = true
	return nil
}

// NumberOfElements returns the element array's current length.
func (l *List[V]) NumberOfElements() int { return len(l.elements) }

// IsElementSet reports whether a slot has been populated by
// SetElementByIndex/AppendElement. A slot created only by Resize (or
// never touched) is unset.
func (l *List[V]) IsElementSet(i int) bool {
	if i < 0 || i >= len(l.elements) {
		return false
	}
	return l.elements[i].dataRange.FileIndex != -1
}

// DataSize returns the cumulative size of every contained range
// (spec.md §3's data_size invariant).
func (l *List[V]) DataSize() uint64 { return l.dataSize }

func (l *List[V]) ensureMapped() error {
	if !l.dirty {
		return nil
	}
	mapped := make([]fdrange.MappedRange, len(l.elements))
	var off int64
	for i, e := range l.elements {
		mapped[i] = fdrange.MappedRange{LogicalOffset: off, Size: e.dataRange.Size}
		off += int64(e.dataRange.Size)
	}
	l.mapped = mapped
	l.dirty = false
	return nil
}

// ElementByIndex returns a snapshot of the element at i.
func (l *List[V]) ElementByIndex(i int32) (Element, error) {
	if i < 0 || int(i) >= len(l.elements) {
		return Element{}, fderrors.New("fdlist.List.ElementByIndex", fderrors.Runtime, fderrors.ValueOutOfBounds)
	}
	if err := l.ensureMapped(); err != nil {
		return Element{}, err
	}
	return l.snapshot(i), nil
}

func (l *List[V]) snapshot(i int32) Element {
	e := l.elements[i]
	m := l.mapped[i]
	return Element{
		Index:         i,
		DataRange:     e.dataRange,
		LogicalOffset: m.LogicalOffset,
		MappedSize:    e.mappedSize,
		HasMappedSize: e.hasMappedSize,
		Timestamp:     e.timestamp,
	}
}

// ElementByOffset returns the element whose mapped range contains
// logicalOff, or (Element{}, false, nil) if none matches — spec.md's
// "returns Ok(None) if none matches".
func (l *List[V]) ElementByOffset(logicalOff int64) (Element, bool, error) {
	idx, _, err := l.ElementIndexAtValueOffset(logicalOff)
	if err != nil {
		if fderrors.Is(err, fderrors.Runtime, fderrors.ValueOutOfBounds) {
			return Element{}, false, nil
		}
		return Element{}, false, err
	}
	e, err := l.ElementByIndex(idx)
	if err != nil {
		return Element{}, false, err
	}
	return e, true, nil
}

// DataRangeByIndex returns the raw range for element i.
func (l *List[V]) DataRangeByIndex(i int32) (fdrange.Range, error) {
	if i < 0 || int(i) >= len(l.elements) {
		return fdrange.Range{}, fderrors.New("fdlist.List.DataRangeByIndex", fderrors.Runtime, fderrors.ValueOutOfBounds)
	}
	return l.elements[i].dataRange, nil
}

// SetDataRangeByIndex overwrites element i's range in place, bumping
// its timestamp and marking mapped ranges dirty.
func (l *List[V]) SetDataRangeByIndex(i int32, fileIndex int32, offset int64, size uint64, flags uint32) error {
	return l.SetElementByIndex(i, fileIndex, offset, size, flags)
}

// SetElementByIndex creates a new element at slot i if it was unset, or
// mutates it in place otherwise. data_size is adjusted by
// new_size - old_size. Always sets the mapped-ranges dirty flag and
// bumps the element's own timestamp (never the list's — spec.md §4.4).
func (l *List[V]) SetElementByIndex(i int32, fileIndex int32, offset int64, size uint64, flags uint32) error {
	if i < 0 || int(i) >= len(l.elements) {
		return fderrors.New("fdlist.List.SetElementByIndex", fderrors.Runtime, fderrors.ValueOutOfBounds)
	}
	r, err := fdrange.New(fileIndex, offset, size, flags)
	if err != nil {
		return err
	}
	old := l.elements[i].dataRange.Size
	wasSet := l.IsElementSet(int(i))
	l.elements[i].dataRange = r
	l.elements[i].timestamp = l.clock.Now()
	if wasSet {
		l.dataSize = l.dataSize - old + size
	} else {
		l.dataSize += size
	}
	l.dirty = true
	return nil
}

// AppendElement appends a new element at the end of the list, assigns
// it the next index, sets its logical offset to the list's current
// data_size, and returns that index.
func (l *List[V]) AppendElement(fileIndex int32, offset int64, size uint64, flags uint32) (int32, error) {
	r, err := fdrange.New(fileIndex, offset, size, flags)
	if err != nil {
		return 0, err
	}
	idx := int32(len(l.elements))
	l.elements = append(l.elements, element[V]{dataRange: r, logicalOffset: int64(l.dataSize), timestamp: l.clock.Now()})
	l.dataSize += size
	l.dirty = true
	return idx, nil
}

// InsertMerging is the range-list coalescing behavior documented in
// original_source/libfdata's libfdata_range_list_insert_range: if the
// new range is contiguous with the last appended element (same
// FileIndex and Flags, offset == previous element's end), it extends
// that element in place instead of appending a redundant adjacent one.
// No other package in this repository calls it.
func (l *List[V]) InsertMerging(fileIndex int32, offset int64, size uint64, flags uint32) (int32, error) {
	if n := len(l.elements); n > 0 {
		last := &l.elements[n-1]
		if last.dataRange.FileIndex == fileIndex && last.dataRange.Flags == flags &&
			last.dataRange.Offset+int64(last.dataRange.Size) == offset {
			newSize := last.dataRange.Size + size
			idx := int32(n - 1)
			return idx, l.SetElementByIndex(idx, fileIndex, last.dataRange.Offset, newSize, flags)
		}
	}
	return l.AppendElement(fileIndex, offset, size, flags)
}

// ElementIndexAtValueOffset locates the element whose half-open mapped
// range [mapped_off, mapped_off+size) contains off, returning its index
// and the offset within that element. Implements spec.md §4.4's
// documented two-sided linear probe by default; set UseBinarySearch to
// substitute the Open-Question-4-sanctioned binary search instead.
func (l *List[V]) ElementIndexAtValueOffset(off int64) (int32, int64, error) {
	if err := l.ensureMapped(); err != nil {
		return 0, 0, err
	}
	n := len(l.elements)
	if n == 0 || off < 0 || uint64(off) >= l.dataSize {
		return 0, 0, fderrors.New("fdlist.List.ElementIndexAtValueOffset", fderrors.Runtime, fderrors.ValueOutOfBounds)
	}
	if l.UseBinarySearch {
		idx := sort.Search(n, func(i int) bool { return l.mapped[i].End() > off })
		if idx >= n {
			return 0, 0, fderrors.New("fdlist.List.ElementIndexAtValueOffset", fderrors.Runtime, fderrors.ValueOutOfBounds)
		}
		return int32(idx), off - l.mapped[idx].LogicalOffset, nil
	}

	guess := int(int64(n) * off / int64(l.dataSize))
	if guess < 0 {
		guess = 0
	} else if guess >= n {
		guess = n - 1
	}
	if l.mapped[guess].Contains(off) {
		return int32(guess), off - l.mapped[guess].LogicalOffset, nil
	}
	if l.mapped[guess].End() <= off {
		for i := guess; i < n; i++ {
			if l.mapped[i].Contains(off) {
				return int32(i), off - l.mapped[i].LogicalOffset, nil
			}
		}
	} else {
		for i := guess; i >= 0; i-- {
			if l.mapped[i].Contains(off) {
				return int32(i), off - l.mapped[i].LogicalOffset, nil
			}
		}
	}
	return 0, 0, fderrors.New("fdlist.List.ElementIndexAtValueOffset", fderrors.Runtime, fderrors.ValueOutOfBounds)
}

// ElementIndexAtValueIndex iterates elements, subtracting size/valueSize
// from vi until it lands within an element's span, returning that
// element's index and the residual offset (in value units) within it.
// Used by fdvector, whose elements are fixed-size values rather than
// one element per segment.
func (l *List[V]) ElementIndexAtValueIndex(vi int32, valueSize uint64) (int32, int64, error) {
	if valueSize == 0 {
		return 0, 0, fderrors.New("fdlist.List.ElementIndexAtValueIndex", fderrors.Arguments, fderrors.ValueZeroOrLess)
	}
	remaining := int64(vi)
	for i, e := range l.elements {
		count := int64(e.dataRange.Size / valueSize)
		if remaining < count {
			return int32(i), remaining, nil
		}
		remaining -= count
	}
	return 0, 0, fderrors.New("fdlist.List.ElementIndexAtValueIndex", fderrors.Runtime, fderrors.ValueOutOfBounds)
}

// GetElementValue implements the read side of spec.md §4.8: a cache hit
// returns immediately; otherwise the read callback is invoked and is
// expected to deposit a value via SetElementValue before returning.
func (l *List[V]) GetElementValue(io any, idx int32, cache *fdcache.Cache[V], readFlags fdhandle.ReadFlags) (V, error) {
	var zero V
	if idx < 0 || int(idx) >= len(l.elements) {
		return zero, fderrors.New("fdlist.List.GetElementValue", fderrors.Runtime, fderrors.ValueOutOfBounds)
	}
	e := l.elements[idx]
	want := fdcache.Identifier{FileIndex: e.dataRange.FileIndex, Offset: e.dataRange.Offset, Timestamp: e.timestamp}

	if readFlags&fdhandle.IgnoreCache == 0 {
		slot := fdcache.Slot(int(idx), cache.NumberOfEntries())
		if v, ok := cache.Lookup(slot, want); ok {
			return v, nil
		}
	}

	if l.handle == nil {
		return zero, fderrors.New("fdlist.List.GetElementValue", fderrors.Runtime, fderrors.ValueMissing)
	}
	if err := l.handle.ReadElementData(io, l, idx, cache, e.dataRange.FileIndex, e.dataRange.Offset, e.dataRange.Size, e.dataRange.Flags, readFlags); err != nil {
		return zero, fderrors.Wrap("fdlist.List.GetElementValue", fderrors.IO, fderrors.ReadFailed, err)
	}

	slot := fdcache.Slot(int(idx), cache.NumberOfEntries())
	v, ok := cache.Lookup(slot, want)
	if !ok {
		return zero, fderrors.New("fdlist.List.GetElementValue", fderrors.Runtime, fderrors.ValueMissing)
	}
	return v, nil
}

// SetElementValue is the half of spec.md §4.8's contract the read
// callback must call during its own execution: it deposits value into
// the element's cache slot under the element's current identifier.
func (l *List[V]) SetElementValue(idx int32, cache *fdcache.Cache[V], value V) error {
	if idx < 0 || int(idx) >= len(l.elements) {
		return fderrors.New("fdlist.List.SetElementValue", fderrors.Runtime, fderrors.ValueOutOfBounds)
	}
	e := l.elements[idx]
	id := fdcache.Identifier{FileIndex: e.dataRange.FileIndex, Offset: e.dataRange.Offset, Timestamp: e.timestamp}
	slot := fdcache.Slot(int(idx), cache.NumberOfEntries())
	if slot < 0 {
		return fderrors.New("fdlist.List.SetElementValue", fderrors.Runtime, fderrors.ValueMissing)
	}
	return cache.SetValueByIndex(slot, id, value)
}

// Close drops the list's segments and mapped-ranges arrays, and — if
// the list owns its data handle — frees it exactly once. Per spec.md
// §5's drop order: mapped-ranges array, then segments array, then the
// data handle.
func (l *List[V]) Close() error {
	l.mapped = nil
	l.elements = nil
	if l.handleManaged && l.dataHandle != nil {
		return l.dataHandle.Free()
	}
	return nil
}

// Clone produces an independent List sharing no mutable state, cloning
// the data handle via the client's Clone callback whenever the list has
// one, owned or not (spec.md §8's Clone identity law: every read-only accessor on the
// clone must agree with the source).
func (l *List[V]) Clone() (*List[V], error) {
	out := &List[V]{clock: l.clock, handle: l.handle, handleManaged: l.handleManaged, dirty: l.dirty, dataSize: l.dataSize}
	out.elements = append([]element[V](nil), l.elements...)
	out.mapped = append([]fdrange.MappedRange(nil), l.mapped...)
	if l.dataHandle != nil {
		cloned, err := l.dataHandle.Clone()
		if err != nil {
			return nil, err
		}
		out.dataHandle = cloned
	}
	return out, nil
}
