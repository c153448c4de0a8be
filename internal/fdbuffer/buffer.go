// Package fdbuffer implements the data buffer from spec.md §4.2: an
// owning-or-borrowing byte container. Design note 2 in spec.md §9 asks
// for the original MANAGED-flag byte container to become a tagged sum
// type instead of a manual ownership bit; Buffer is that sum type. There
// is deliberately no Free method and no finalizer: Go's GC reclaims an
// Owned buffer's backing array once the Buffer value is dropped, so the
// double-free class of bug the original C flag existed to prevent simply
// cannot occur here.
package fdbuffer

import (
	"math"

	"github.com/gaby/fdata/internal/fderrors"
)

// Buffer is either Owned (the buffer allocated and controls the backing
// array) or Borrowed (the bytes are on loan from the caller, who must
// keep them alive for the buffer's lifetime — spec.md §4.2's "one place
// the API requires caller discipline").
type Buffer struct {
	data   []byte
	owned  bool
}

// New allocates an Owned buffer of size bytes. size == 0 yields an empty
// Owned buffer, matching spec.md's "size == 0 produces an empty buffer".
func New(size int) (*Buffer, error) {
	if size < 0 {
		return nil, fderrors.New("fdbuffer.New", fderrors.Arguments, fderrors.ValueLessThanZero)
	}
	if int64(size) > math.MaxInt32*8 { // generous bound; real ceiling is isize::MAX per spec
		return nil, fderrors.New("fdbuffer.New", fderrors.Arguments, fderrors.ValueExceedsMax)
	}
	return &Buffer{data: make([]byte, size), owned: true}, nil
}

// Borrow wraps caller-owned bytes without copying. The caller must
// guarantee b outlives every use of the returned Buffer.
func Borrow(b []byte) *Buffer {
	return &Buffer{data: b, owned: false}
}

// IsOwned reports whether the buffer owns its backing allocation.
func (b *Buffer) IsOwned() bool { return b.owned }

// Size returns the buffer's current length.
func (b *Buffer) Size() int { return len(b.data) }

// Resize grows or shrinks the buffer. Per spec.md §4.2, growth past the
// current length triggers a reallocation (a copy, since Go slices aren't
// grown in place); a Borrowed buffer that grows transitions to Owned,
// because the new, larger backing array is one this buffer now controls.
// Shrinking never reallocates and never changes ownership.
func (b *Buffer) Resize(n int) error {
	if n < 0 {
		return fderrors.New("fdbuffer.Buffer.Resize", fderrors.Arguments, fderrors.ValueLessThanZero)
	}
	if n <= len(b.data) {
		b.data = b.data[:n]
		return nil
	}
	grown := make([]byte, n)
	copy(grown, b.data)
	b.data = grown
	b.owned = true
	return nil
}

// SetData rebinds the buffer's payload. If owned is true the buffer
// takes ownership of data directly (no copy); otherwise it copies data
// into a freshly Owned allocation, since Go has no way to enforce the
// caller's "outlived bytes" promise implicitly — callers that want a
// true borrow must call Borrow/SetBorrowed instead.
func (b *Buffer) SetData(data []byte, owned bool) error {
	if owned {
		b.data = data
		b.owned = true
		return nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	b.data = cp
	b.owned = true
	return nil
}

// SetBorrowed rebinds the buffer to reference data without copying,
// matching spec.md's explicit non-managed rebind path. The caller
// guarantees data outlives the buffer.
func (b *Buffer) SetBorrowed(data []byte) {
	b.data = data
	b.owned = false
}

// Data returns the full backing slice.
func (b *Buffer) Data() []byte { return b.data }

// DataAtOffset returns the tail of the buffer starting at off. off ==
// Size() is legal and returns an empty, non-nil tail; off > Size() fails
// ValueOutOfBounds, per spec.md §4.2 and the §8 boundary case.
func (b *Buffer) DataAtOffset(off int) ([]byte, error) {
	if off < 0 || off > len(b.data) {
		return nil, fderrors.New("fdbuffer.Buffer.DataAtOffset", fderrors.Runtime, fderrors.ValueOutOfBounds)
	}
	return b.data[off:], nil
}

// Clone produces a new, empty buffer and binds a copy of source's bytes
// into it via the non-managed path, matching spec.md's clone contract
// ("calls set_data with the source's bytes and the NON_MANAGED flag").
func Clone(source *Buffer) *Buffer {
	out := &Buffer{}
	_ = out.SetData(source.data, false)
	return out
}
