// Package fdrange implements the range and mapped-range primitives from
// spec.md §4.1: the on-disk extent descriptor and its projection into a
// container's contiguous logical address space. Every other fd* package
// builds on these two value types.
package fdrange

import (
	"math"

	"github.com/gaby/fdata/internal/fderrors"
)

// Range is an immutable-after-set on-disk extent descriptor: a byte
// span inside one of the client's external files, plus an opaque flags
// word the core never interprets.
type Range struct {
	FileIndex int32
	Offset    int64
	Size      uint64
	Flags     uint32
}

// New builds a validated Range. size must fit in i64 and offset must be
// non-negative, matching spec.md §4.1's setter contract.
func New(fileIndex int32, offset int64, size uint64, flags uint32) (Range, error) {
	var r Range
	if err := r.Set(fileIndex, offset, size, flags); err != nil {
		return Range{}, err
	}
	return r, nil
}

// Set validates and assigns all four fields atomically: on failure r is
// left unchanged (strong exception safety per spec.md §4.11).
func (r *Range) Set(fileIndex int32, offset int64, size uint64, flags uint32) error {
	if offset < 0 {
		return fderrors.New("fdrange.Range.Set", fderrors.Arguments, fderrors.ValueLessThanZero)
	}
	if size > uint64(math.MaxInt64) {
		return fderrors.New("fdrange.Range.Set", fderrors.Arguments, fderrors.ValueExceedsMax)
	}
	r.FileIndex = fileIndex
	r.Offset = offset
	r.Size = size
	r.Flags = flags
	return nil
}

// Clone returns a value copy. Range has no owned pointers, so this is
// just `r`, exposed as a method for parity with the other containers'
// Clone contracts (spec.md §8 "Clone identity" law).
func (r Range) Clone() Range { return r }

// SizeOnly returns just the size, the cheap accessor spec.md calls out
// separately from the full getter (range readers rarely need the other
// three fields, e.g. list data_size bookkeeping).
func (r Range) SizeOnly() uint64 { return r.Size }

// MappedRange is a Range's projection onto a container's contiguous
// logical address space: a logical offset plus a size, computed whenever
// a container's CALCULATE_MAPPED_RANGES flag is set (spec.md §3/§4.4).
type MappedRange struct {
	LogicalOffset int64
	Size          uint64
}

// NewMapped builds a validated MappedRange with the same field constraints as
// Range.
func NewMapped(logicalOffset int64, size uint64) (MappedRange, error) {
	var m MappedRange
	if err := m.Set(logicalOffset, size); err != nil {
		return MappedRange{}, err
	}
	return m, nil
}

func (m *MappedRange) Set(logicalOffset int64, size uint64) error {
	if logicalOffset < 0 {
		return fderrors.New("fdrange.MappedRange.Set", fderrors.Arguments, fderrors.ValueLessThanZero)
	}
	if size > uint64(math.MaxInt64) {
		return fderrors.New("fdrange.MappedRange.Set", fderrors.Arguments, fderrors.ValueExceedsMax)
	}
	m.LogicalOffset = logicalOffset
	m.Size = size
	return nil
}

func (m MappedRange) Clone() MappedRange { return m }

// End returns the exclusive end of the mapped range, the value most
// lookups compare against (spec.md §3's half-open-interval invariant).
func (m MappedRange) End() int64 { return m.LogicalOffset + int64(m.Size) }

// Contains reports whether a logical offset falls within [start, end).
func (m MappedRange) Contains(offset int64) bool {
	return offset >= m.LogicalOffset && offset < m.End()
}
