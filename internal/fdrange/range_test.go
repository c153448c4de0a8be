package fdrange

import (
	"testing"

	"github.com/gaby/fdata/internal/fderrors"
)

func TestRangeNewValid(t *testing.T) {
	r, err := New(3, 128, 64, 0x1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if r.FileIndex != 3 || r.Offset != 128 || r.Size != 64 || r.Flags != 0x1 {
		t.Fatalf("unexpected range: %+v", r)
	}
}

func TestRangeNewNegativeOffset(t *testing.T) {
	_, err := New(0, -1, 0, 0)
	if !fderrors.Is(err, fderrors.Arguments, fderrors.ValueLessThanZero) {
		t.Fatalf("expected ValueLessThanZero, got %v", err)
	}
}

func TestRangeSetLeavesUnchangedOnFailure(t *testing.T) {
	r := Range{FileIndex: 1, Offset: 10, Size: 20, Flags: 5}
	err := r.Set(2, -5, 30, 6)
	if err == nil {
		t.Fatal("expected error")
	}
	if r.FileIndex != 1 || r.Offset != 10 || r.Size != 20 || r.Flags != 5 {
		t.Fatalf("range mutated on failed Set: %+v", r)
	}
}

func TestRangeCloneIsValueCopy(t *testing.T) {
	r := Range{FileIndex: 1, Offset: 2, Size: 3, Flags: 4}
	c := r.Clone()
	c.FileIndex = 99
	if r.FileIndex == 99 {
		t.Fatal("Clone shares state with source")
	}
}

func TestMappedRangeContainsHalfOpen(t *testing.T) {
	m, err := NewMapped(10, 5)
	if err != nil {
		t.Fatalf("NewMapped: %v", err)
	}
	if m.Contains(9) {
		t.Fatal("should not contain offset before start")
	}
	if !m.Contains(10) {
		t.Fatal("should contain start offset")
	}
	if !m.Contains(14) {
		t.Fatal("should contain last valid offset")
	}
	if m.Contains(15) {
		t.Fatal("end offset must be excluded (half-open)")
	}
	if m.End() != 15 {
		t.Fatalf("End() = %d, want 15", m.End())
	}
}

func TestMappedRangeNegativeOffsetRejected(t *testing.T) {
	_, err := NewMapped(-1, 10)
	if !fderrors.Is(err, fderrors.Arguments, fderrors.ValueLessThanZero) {
		t.Fatalf("expected ValueLessThanZero, got %v", err)
	}
}
