package fdbuffer

import (
	"bytes"
	"testing"

	"github.com/gaby/fdata/internal/fderrors"
)

func TestNewOwnedEmpty(t *testing.T) {
	b, err := New(0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !b.IsOwned() {
		t.Fatal("New buffer must be owned")
	}
	if b.Size() != 0 {
		t.Fatalf("Size() = %d, want 0", b.Size())
	}
}

func TestNewNegativeSizeRejected(t *testing.T) {
	_, err := New(-1)
	if !fderrors.Is(err, fderrors.Arguments, fderrors.ValueLessThanZero) {
		t.Fatalf("expected ValueLessThanZero, got %v", err)
	}
}

func TestBorrowIsNotOwned(t *testing.T) {
	src := []byte("hello")
	b := Borrow(src)
	if b.IsOwned() {
		t.Fatal("Borrow must not be owned")
	}
	if !bytes.Equal(b.Data(), src) {
		t.Fatal("Borrow must reference the same bytes")
	}
}

func TestResizeShrinkKeepsOwnership(t *testing.T) {
	b := Borrow([]byte("hello world"))
	if err := b.Resize(5); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if b.IsOwned() {
		t.Fatal("shrinking must not change ownership")
	}
	if string(b.Data()) != "hello" {
		t.Fatalf("Data() = %q, want %q", b.Data(), "hello")
	}
}

func TestResizeGrowTransitionsToOwned(t *testing.T) {
	b := Borrow([]byte("hi"))
	if err := b.Resize(5); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if !b.IsOwned() {
		t.Fatal("growing a Borrowed buffer must make it Owned")
	}
	if b.Size() != 5 {
		t.Fatalf("Size() = %d, want 5", b.Size())
	}
}

func TestDataAtOffsetBoundary(t *testing.T) {
	b, _ := New(4)
	tail, err := b.DataAtOffset(4)
	if err != nil {
		t.Fatalf("DataAtOffset(size): %v", err)
	}
	if len(tail) != 0 {
		t.Fatalf("expected empty tail, got %d bytes", len(tail))
	}
	if _, err := b.DataAtOffset(5); !fderrors.Is(err, fderrors.Runtime, fderrors.ValueOutOfBounds) {
		t.Fatalf("expected ValueOutOfBounds, got %v", err)
	}
}

func TestCloneCopiesBytes(t *testing.T) {
	src, _ := New(3)
	copy(src.Data(), []byte{1, 2, 3})
	clone := Clone(src)
	clone.Data()[0] = 9
	if src.Data()[0] == 9 {
		t.Fatal("Clone must not share backing array with source")
	}
}
