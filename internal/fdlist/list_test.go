package fdlist

import (
	"testing"

	"github.com/gaby/fdata/internal/fdcache"
	"github.com/gaby/fdata/internal/fdclock"
	"github.com/gaby/fdata/internal/fderrors"
	"github.com/gaby/fdata/internal/fdhandle"
)

// recordingHandle deposits fileOffset (as an int) as the element's value,
// and counts how many times each element index was actually read.
type recordingHandle struct {
	reads map[int32]int
}

func newRecordingHandle() *recordingHandle { return &recordingHandle{reads: map[int32]int{}} }

func (h *recordingHandle) Free() error                        { return nil }
func (h *recordingHandle) Clone() (fdhandle.DataHandle, error) { return newRecordingHandle(), nil }

func (h *recordingHandle) ReadElementData(io any, list *List[int], index int32, cache *fdcache.Cache[int],
	fileIndex int32, fileOffset int64, size uint64, rangeFlags fdhandle.RangeFlags, readFlags fdhandle.ReadFlags) error {
	h.reads[index]++
	return list.SetElementValue(index, cache, int(fileOffset))
}

func (h *recordingHandle) WriteElementData(io any, list *List[int], index int32, cache *fdcache.Cache[int],
	fileIndex int32, fileOffset int64, size uint64, rangeFlags fdhandle.RangeFlags) error {
	return fderrors.New("recordingHandle.WriteElementData", fderrors.Runtime, fderrors.Generic)
}

func newTestList() (*List[int], *recordingHandle) {
	h := newRecordingHandle()
	l := New[int](h, fdhandle.NopDataHandle{}, false, fdclock.NewCounter())
	return l, h
}

func TestAppendElementTracksDataSizeAndOffset(t *testing.T) {
	l, _ := newTestList()
	i0, err := l.AppendElement(0, 0, 10, 0)
	if err != nil {
		t.Fatalf("AppendElement: %v", err)
	}
	i1, err := l.AppendElement(0, 10, 20, 0)
	if err != nil {
		t.Fatalf("AppendElement: %v", err)
	}
	if i0 != 0 || i1 != 1 {
		t.Fatalf("unexpected indices: %d, %d", i0, i1)
	}
	if l.DataSize() != 30 {
		t.Fatalf("DataSize() = %d, want 30", l.DataSize())
	}
	e1, err := l.ElementByIndex(1)
	if err != nil {
		t.Fatalf("ElementByIndex: %v", err)
	}
	if e1.LogicalOffset != 10 {
		t.Fatalf("LogicalOffset = %d, want 10", e1.LogicalOffset)
	}
}

func TestElementIndexAtValueOffsetBothStrategiesAgree(t *testing.T) {
	l, _ := newTestList()
	sizes := []uint64{7, 3, 40, 1, 19}
	var cum int64
	for _, s := range sizes {
		if _, err := l.AppendElement(0, cum, s, 0); err != nil {
			t.Fatalf("AppendElement: %v", err)
		}
		cum += int64(s)
	}
	total := cum

	for off := int64(0); off < total; off++ {
		l.UseBinarySearch = false
		idxLinear, resLinear, err := l.ElementIndexAtValueOffset(off)
		if err != nil {
			t.Fatalf("linear probe at %d: %v", off, err)
		}
		l.UseBinarySearch = true
		idxBinary, resBinary, err := l.ElementIndexAtValueOffset(off)
		if err != nil {
			t.Fatalf("binary search at %d: %v", off, err)
		}
		if idxLinear != idxBinary || resLinear != resBinary {
			t.Fatalf("strategies disagree at offset %d: linear=(%d,%d) binary=(%d,%d)",
				off, idxLinear, resLinear, idxBinary, resBinary)
		}
	}
}

func TestElementIndexAtValueOffsetOutOfBounds(t *testing.T) {
	l, _ := newTestList()
	if _, err := l.AppendElement(0, 0, 5, 0); err != nil {
		t.Fatalf("AppendElement: %v", err)
	}
	if _, _, err := l.ElementIndexAtValueOffset(5); !fderrors.Is(err, fderrors.Runtime, fderrors.ValueOutOfBounds) {
		t.Fatalf("expected ValueOutOfBounds at data_size boundary, got %v", err)
	}
	if _, _, err := l.ElementIndexAtValueOffset(-1); !fderrors.Is(err, fderrors.Runtime, fderrors.ValueOutOfBounds) {
		t.Fatalf("expected ValueOutOfBounds for negative offset, got %v", err)
	}
}

func TestResizeDoesNotEagerlyRecomputeMappedRanges(t *testing.T) {
	l, _ := newTestList()
	if _, err := l.AppendElement(0, 0, 10, 0); err != nil {
		t.Fatalf("AppendElement: %v", err)
	}
	if err := l.Resize(3); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if !l.dirty || len(l.mapped) == 3 {
		t.Fatal("Resize must only mark mapped ranges dirty, not recompute them")
	}
	if l.NumberOfElements() != 3 {
		t.Fatalf("NumberOfElements() = %d, want 3", l.NumberOfElements())
	}
	if l.IsElementSet(1) || l.IsElementSet(2) {
		t.Fatal("newly grown slots must be unset")
	}
	if err := l.SetElementByIndex(1, 0, 20, 5, 0); err != nil {
		t.Fatalf("SetElementByIndex: %v", err)
	}
	if !l.IsElementSet(1) {
		t.Fatal("SetElementByIndex must mark the slot set")
	}
}

func TestGetElementValueCachesAcrossCalls(t *testing.T) {
	l, h := newTestList()
	if _, err := l.AppendElement(5, 123, 8, 0); err != nil {
		t.Fatalf("AppendElement: %v", err)
	}
	cache := fdcache.New[int](4)

	v1, err := l.GetElementValue(nil, 0, cache, 0)
	if err != nil {
		t.Fatalf("GetElementValue: %v", err)
	}
	if v1 != 123 {
		t.Fatalf("value = %d, want 123", v1)
	}
	v2, err := l.GetElementValue(nil, 0, cache, 0)
	if err != nil {
		t.Fatalf("GetElementValue (cached): %v", err)
	}
	if v2 != 123 {
		t.Fatalf("cached value = %d, want 123", v2)
	}
	if h.reads[0] != 1 {
		t.Fatalf("expected exactly one callback invocation, got %d", h.reads[0])
	}
}

func TestGetElementValueIgnoreCacheForcesRead(t *testing.T) {
	l, h := newTestList()
	if _, err := l.AppendElement(0, 50, 4, 0); err != nil {
		t.Fatalf("AppendElement: %v", err)
	}
	cache := fdcache.New[int](4)
	if _, err := l.GetElementValue(nil, 0, cache, 0); err != nil {
		t.Fatalf("GetElementValue: %v", err)
	}
	if _, err := l.GetElementValue(nil, 0, cache, fdhandle.IgnoreCache); err != nil {
		t.Fatalf("GetElementValue with IgnoreCache: %v", err)
	}
	if h.reads[0] != 2 {
		t.Fatalf("expected IgnoreCache to force a second read, got %d reads", h.reads[0])
	}
}

func TestSetElementByIndexBumpsTimestampNotDataSizeTwice(t *testing.T) {
	l, _ := newTestList()
	if _, err := l.AppendElement(0, 0, 10, 0); err != nil {
		t.Fatalf("AppendElement: %v", err)
	}
	before, err := l.ElementByIndex(0)
	if err != nil {
		t.Fatalf("ElementByIndex: %v", err)
	}
	if err := l.SetElementByIndex(0, 0, 0, 25, 0); err != nil {
		t.Fatalf("SetElementByIndex: %v", err)
	}
	if l.DataSize() != 25 {
		t.Fatalf("DataSize() = %d, want 25 after resizing the only element", l.DataSize())
	}
	after, err := l.ElementByIndex(0)
	if err != nil {
		t.Fatalf("ElementByIndex: %v", err)
	}
	if after.Timestamp == before.Timestamp {
		t.Fatal("SetElementByIndex must bump the element's timestamp")
	}
}

func TestInsertMergingCoalescesAdjacentRanges(t *testing.T) {
	l, _ := newTestList()
	if _, err := l.AppendElement(1, 0, 10, 0); err != nil {
		t.Fatalf("AppendElement: %v", err)
	}
	idx, err := l.InsertMerging(1, 10, 5, 0)
	if err != nil {
		t.Fatalf("InsertMerging: %v", err)
	}
	if idx != 0 {
		t.Fatalf("InsertMerging should extend element 0 in place, got new index %d", idx)
	}
	if l.NumberOfElements() != 1 {
		t.Fatalf("NumberOfElements() = %d, want 1 (merged)", l.NumberOfElements())
	}
	r, err := l.DataRangeByIndex(0)
	if err != nil {
		t.Fatalf("DataRangeByIndex: %v", err)
	}
	if r.Size != 15 {
		t.Fatalf("merged size = %d, want 15", r.Size)
	}
}

func TestInsertMergingAppendsWhenNotAdjacent(t *testing.T) {
	l, _ := newTestList()
	if _, err := l.AppendElement(1, 0, 10, 0); err != nil {
		t.Fatalf("AppendElement: %v", err)
	}
	idx, err := l.InsertMerging(1, 50, 5, 0)
	if err != nil {
		t.Fatalf("InsertMerging: %v", err)
	}
	if idx != 1 {
		t.Fatalf("expected a new element at index 1, got %d", idx)
	}
	if l.NumberOfElements() != 2 {
		t.Fatalf("NumberOfElements() = %d, want 2", l.NumberOfElements())
	}
}

func TestEmptyIsIdempotent(t *testing.T) {
	l, _ := newTestList()
	if _, err := l.AppendElement(0, 0, 10, 0); err != nil {
		t.Fatalf("AppendElement: %v", err)
	}
	l.Empty()
	l.Empty()
	if l.NumberOfElements() != 0 || l.DataSize() != 0 {
		t.Fatal("Empty must reset to a zero-element, zero-size state")
	}
}

func TestElementByOffsetNoneMatches(t *testing.T) {
	l, _ := newTestList()
	if _, err := l.AppendElement(0, 0, 10, 0); err != nil {
		t.Fatalf("AppendElement: %v", err)
	}
	_, ok, err := l.ElementByOffset(1000)
	if err != nil {
		t.Fatalf("ElementByOffset: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for an offset past data_size")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	l, _ := newTestList()
	if _, err := l.AppendElement(0, 0, 10, 0); err != nil {
		t.Fatalf("AppendElement: %v", err)
	}
	clone, err := l.Clone()
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	if _, err := clone.AppendElement(0, 10, 5, 0); err != nil {
		t.Fatalf("AppendElement on clone: %v", err)
	}
	if l.NumberOfElements() == clone.NumberOfElements() {
		t.Fatal("mutating the clone must not affect the source")
	}
}
