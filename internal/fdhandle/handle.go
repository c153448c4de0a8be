// Package fdhandle carries the shared callback-surface types from
// spec.md §6: the data-handle lifecycle trait, flag constants, and the
// opaque io parameter every read/seek/write callback receives. Each fd*
// container package (fdlist, fdvector, fdarea, fdstream, fdbtree) defines
// its own Handle interface embedding DataHandle, since their read/write
// callback signatures differ by container shape; only the lifecycle and
// flag vocabulary is common enough to live here without creating an
// import cycle.
package fdhandle

// Flags are the container-level bits from spec.md §6. Bit positions are
// not meaningful outside this package — spec.md only recommends them for
// ABI continuity with the original library, which this rewrite does not
// need to preserve.
type Flags uint32

const (
	// DataHandleManaged marks a container as owning its data handle: Free
	// must be called exactly once on teardown.
	DataHandleManaged Flags = 0x01
	// DataHandleNonManaged marks a container as borrowing its data
	// handle: Free must never be called.
	DataHandleNonManaged Flags = 0x02
	// CalculateMappedRanges is the container-internal dirty bit gating
	// lazy mapped-range recomputation (spec.md §3's invariant).
	CalculateMappedRanges Flags = 0x80
)

// ReadFlags qualifies a single read operation.
type ReadFlags uint32

// IgnoreCache forces a read to bypass any cached value and re-invoke the
// read callback (spec.md §4.8's read_flags parameter).
const IgnoreCache ReadFlags = 0x01

// RangeFlags is the opaque, client-defined per-range flags word (e.g.
// sparse/compressed markers) threaded back into read callbacks unchanged
// by the core, per spec.md §3.
type RangeFlags = uint32

// DataHandle is the free/clone trait spec.md §6 calls out: arbitrary
// client state threaded through every callback, with no, one, or two of
// Free/Clone ever invoked depending on the container's data-handle
// ownership flag.
type DataHandle interface {
	// Free releases any resources the handle owns. Only ever called if
	// the owning container was constructed with DataHandleManaged.
	Free() error
	// Clone produces an independent copy of the handle's state, used
	// when a container itself is cloned.
	Clone() (DataHandle, error)
}

// NopDataHandle is a zero-state DataHandle for clients with nothing to
// free or clone — e.g. a handle whose real state lives in an enclosing
// Go struct field rather than a dedicated lifecycle object.
type NopDataHandle struct{}

func (NopDataHandle) Free() error                   { return nil }
func (NopDataHandle) Clone() (DataHandle, error)     { return NopDataHandle{}, nil }
