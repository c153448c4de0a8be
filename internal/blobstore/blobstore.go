// Package blobstore is the S3-backed Handle: a segment's file_index
// selects an object key, and the read callback issues a ranged
// GetObject for [offset, offset+size) rather than downloading the
// whole object, generalizing the teacher's one-handle-per-local-file
// model to a remote object store. Grounded on the retrieved pack's
// memcp storage layer (its S3 persistence backend), since the teacher
// itself never talks to a remote blob store.
package blobstore

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/gaby/fdata/internal/fderrors"
	"github.com/gaby/fdata/internal/fdhandle"
	"github.com/gaby/fdata/internal/fdstream"
)

// KeyTable resolves a segment's opaque file_index to an S3 object key.
type KeyTable interface {
	KeyForFileIndex(fileIndex int32) (string, error)
}

// MapKeyTable is the simplest KeyTable: a static index -> key map.
type MapKeyTable map[int32]string

func (m MapKeyTable) KeyForFileIndex(fileIndex int32) (string, error) {
	k, ok := m[fileIndex]
	if !ok {
		return "", fderrors.New("blobstore.MapKeyTable.KeyForFileIndex", fderrors.Runtime, fderrors.ValueMissing)
	}
	return k, nil
}

// Handle is an fdstream.Handle backed by ranged S3 GetObject calls. It
// carries no write support; uploading segments is out of scope.
type Handle struct {
	fdstream.NopWriteHandle

	client *s3.Client
	bucket string
	table  KeyTable
}

// New builds a blobstore Handle against bucket using client.
func New(client *s3.Client, bucket string, table KeyTable) *Handle {
	return &Handle{client: client, bucket: bucket, table: table}
}

// NewFromEnv loads AWS credentials/region from the standard SDK
// resolution chain (environment, shared config, instance profile),
// mirroring how launix-de-memcp's S3 persistence backend constructs
// its client.
func NewFromEnv(ctx context.Context, region, bucket string, table KeyTable) (*Handle, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fderrors.Wrap("blobstore.NewFromEnv", fderrors.Runtime, fderrors.InitializeFailed, err)
	}
	return New(s3.NewFromConfig(cfg), bucket, table), nil
}

// SeekSegmentOffset is a pure validation step: it confirms fileIndex
// resolves to a known key and echoes fileOffset back unchanged, as
// fdstream.Handle requires.
func (h *Handle) SeekSegmentOffset(io any, stream *fdstream.Stream, segIdx int32, fileIndex int32, fileOffset int64, whence fdstream.Whence) (int64, error) {
	if _, err := h.table.KeyForFileIndex(fileIndex); err != nil {
		return 0, err
	}
	return fileOffset, nil
}

// ReadSegmentData issues a ranged GetObject for
// [fileOffset, fileOffset+size) and copies the body into dst.
// ReadSegmentData is always preceded by SeekSegmentOffset for the same
// segment, but the range itself comes from the segment's declared
// offset/size rather than any handle-side cursor, since S3 objects
// have no positioned-read primitive of their own.
func (h *Handle) ReadSegmentData(ioArg any, stream *fdstream.Stream, segIdx int32, fileIndex int32, dst []byte, size uint64, readFlags fdhandle.ReadFlags) (uint64, error) {
	key, err := h.table.KeyForFileIndex(fileIndex)
	if err != nil {
		return 0, err
	}
	seg, err := stream.GetSegmentByIndex(segIdx)
	if err != nil {
		return 0, err
	}
	rng := fmt.Sprintf("bytes=%d-%d", seg.Offset, seg.Offset+int64(size)-1)

	ctx := context.Background()
	if c, ok := ioArg.(context.Context); ok && c != nil {
		ctx = c
	}
	out, err := h.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(key),
		Range:  aws.String(rng),
	})
	if err != nil {
		return 0, fderrors.Wrap("blobstore.Handle.ReadSegmentData", fderrors.IO, fderrors.ReadFailed, err)
	}
	defer out.Body.Close()

	n, err := io.ReadFull(out.Body, dst[:size])
	if err != nil {
		return uint64(n), fderrors.Wrap("blobstore.Handle.ReadSegmentData", fderrors.IO, fderrors.ReadFailed, err)
	}
	return uint64(n), nil
}

// Free is a no-op: the S3 client has no per-handle resources to release.
func (h *Handle) Free() error { return nil }

// Clone returns a Handle sharing the same client, bucket, and key
// table; the SDK client is safe for concurrent use.
func (h *Handle) Clone() (fdhandle.DataHandle, error) {
	return New(h.client, h.bucket, h.table), nil
}
