// Package codec provides decode callbacks for compressed segments,
// instantiating spec.md §1's "a user callback decodes a segment's
// bytes" for the two compression schemes the retrieved pack's storage
// layer supports. Neither fdlist, fdvector, fdarea, fdstream, nor
// fdbtree import this package directly: a client wires a
// codec.DecodeSegment call into its own Handle implementation's read callback, keeping the
// core free of any particular compression format per spec.md §1's
// Non-goals.
package codec

import (
	"bytes"
	"io"

	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"

	"github.com/gaby/fdata/internal/fderrors"
	"github.com/gaby/fdata/internal/fdhandle"
)

// Algorithm selects which decompressor DecodeSegment applies.
type Algorithm int

const (
	// None passes data through unchanged.
	None Algorithm = iota
	// LZ4 decompresses an lz4-framed segment (range flag FlagCompressedLZ4).
	LZ4
	// XZ decompresses an xz-framed segment (range flag FlagCompressedXZ).
	XZ
)

// Range flag bits a client's Handle can OR into fdrange.Range.Flags to
// tell its own read callback which codec to apply; the core threads
// RangeFlags back to callbacks unchanged and never inspects them.
const (
	FlagCompressedLZ4 fdhandle.RangeFlags = 1 << 0
	FlagCompressedXZ  fdhandle.RangeFlags = 1 << 1
)

// AlgorithmForFlags inspects a segment's range flags and returns which
// codec its bytes were compressed with, or None if neither bit is set.
func AlgorithmForFlags(flags fdhandle.RangeFlags) Algorithm {
	switch {
	case flags&FlagCompressedLZ4 != 0:
		return LZ4
	case flags&FlagCompressedXZ != 0:
		return XZ
	default:
		return None
	}
}

// DecodeSegment decompresses src according to algo, returning the
// decoded bytes. decodedSize, if non-zero, pre-sizes the output buffer.
func DecodeSegment(algo Algorithm, src []byte, decodedSize int) ([]byte, error) {
	switch algo {
	case None:
		return src, nil
	case LZ4:
		return decodeLZ4(src, decodedSize)
	case XZ:
		return decodeXZ(src, decodedSize)
	default:
		return nil, fderrors.New("codec.DecodeSegment", fderrors.Arguments, fderrors.UnsupportedValue)
	}
}

func decodeLZ4(src []byte, decodedSize int) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(src))
	out := make([]byte, 0, decodedSize)
	buf := bytes.NewBuffer(out)
	if _, err := io.Copy(buf, r); err != nil {
		return nil, fderrors.Wrap("codec.decodeLZ4", fderrors.Compression, fderrors.InvalidData, err)
	}
	return buf.Bytes(), nil
}

func decodeXZ(src []byte, decodedSize int) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fderrors.Wrap("codec.decodeXZ", fderrors.Compression, fderrors.InvalidData, err)
	}
	out := make([]byte, 0, decodedSize)
	buf := bytes.NewBuffer(out)
	if _, err := io.Copy(buf, r); err != nil {
		return nil, fderrors.Wrap("codec.decodeXZ", fderrors.Compression, fderrors.InvalidData, err)
	}
	return buf.Bytes(), nil
}

// EncodeLZ4 compresses src with the default lz4 frame settings, for
// tests and for clients that want to round-trip data through the
// local cache in compressed form.
func EncodeLZ4(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(src); err != nil {
		return nil, fderrors.Wrap("codec.EncodeLZ4", fderrors.Compression, fderrors.Generic, err)
	}
	if err := w.Close(); err != nil {
		return nil, fderrors.Wrap("codec.EncodeLZ4", fderrors.Compression, fderrors.Generic, err)
	}
	return buf.Bytes(), nil
}
