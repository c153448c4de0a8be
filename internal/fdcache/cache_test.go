package fdcache

import "testing"

func TestSlotCapacityZeroIsSentinel(t *testing.T) {
	if s := Slot(5, 0); s != -1 {
		t.Fatalf("Slot with capacity 0 = %d, want -1", s)
	}
}

func TestSlotNegativeIndexWraps(t *testing.T) {
	if s := Slot(-1, 4); s != 3 {
		t.Fatalf("Slot(-1, 4) = %d, want 3", s)
	}
}

func TestSlotModulo(t *testing.T) {
	if s := Slot(9, 4); s != 1 {
		t.Fatalf("Slot(9, 4) = %d, want 1", s)
	}
}

func TestCacheCapacityZeroAlwaysMisses(t *testing.T) {
	c := New[int](0)
	if c.NumberOfEntries() != 0 {
		t.Fatalf("NumberOfEntries() = %d, want 0", c.NumberOfEntries())
	}
	slot := Slot(0, c.NumberOfEntries())
	if _, ok := c.Lookup(slot, Identifier{}); ok {
		t.Fatal("capacity-0 cache must always miss")
	}
}

func TestCacheHitRequiresExactIdentifier(t *testing.T) {
	c := New[string](4)
	id := Identifier{FileIndex: 1, Offset: 100, Timestamp: 7}
	slot := Slot(2, c.NumberOfEntries())
	if err := c.SetValueByIndex(slot, id, "value"); err != nil {
		t.Fatalf("SetValueByIndex: %v", err)
	}
	if v, ok := c.Lookup(slot, id); !ok || v != "value" {
		t.Fatalf("expected hit with value %q, got ok=%v v=%q", "value", ok, v)
	}
	stale := id
	stale.Timestamp = 8
	if _, ok := c.Lookup(slot, stale); ok {
		t.Fatal("stale timestamp must miss")
	}
}

func TestCacheNumberOfCacheValues(t *testing.T) {
	c := New[int](3)
	if c.NumberOfCacheValues() != 0 {
		t.Fatal("fresh cache must report 0 occupied slots")
	}
	_ = c.SetValueByIndex(0, Identifier{}, 1)
	_ = c.SetValueByIndex(1, Identifier{Offset: 1}, 2)
	if n := c.NumberOfCacheValues(); n != 2 {
		t.Fatalf("NumberOfCacheValues() = %d, want 2", n)
	}
}

func TestCacheClear(t *testing.T) {
	c := New[int](2)
	_ = c.SetValueByIndex(0, Identifier{}, 42)
	c.Clear()
	if c.NumberOfCacheValues() != 0 {
		t.Fatal("Clear must empty every slot")
	}
}

func TestCacheOutOfRangeIndexIsError(t *testing.T) {
	c := New[int](2)
	if _, err := c.ValueByIndex(5); err == nil {
		t.Fatal("expected error for out-of-range index")
	}
	if err := c.SetValueByIndex(-1, Identifier{}, 1); err == nil {
		t.Fatal("expected error for negative index")
	}
}
