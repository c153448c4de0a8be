// Package fdfuse mounts a named set of fdstream.Stream values as a
// flat, read-only FUSE filesystem, one file per registered stream.
// Grounded on the teacher's internal/fusefs (mount/unmount lifecycle,
// stale-mount detach, directory/file fs.Node pattern) generalized away
// from its NZB-import-specific directory tree.
package fdfuse

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"golang.org/x/sys/unix"

	"github.com/gaby/fdata/internal/fdstream"
	"github.com/gaby/fdata/internal/fderrors"
)

// MountOptions configures a single mount point.
type MountOptions struct {
	Mountpoint string
	AllowOther bool
	FSName     string
}

// Mount is a live FUSE connection; Close unmounts it.
type Mount struct {
	conn *fuse.Conn
}

func (m *Mount) Close() error {
	if m.conn != nil {
		return m.conn.Close()
	}
	return nil
}

// detachStale best-effort unmounts a leftover mountpoint left in a
// disconnected state by a prior crashed process.
func detachStale(mp string) {
	if strings.TrimSpace(mp) == "" {
		return
	}
	for i := 0; i < 3; i++ {
		_ = unix.Unmount(mp, unix.MNT_DETACH)
		_, _ = exec.Command("fusermount3", "-uz", mp).CombinedOutput()
		_, _ = exec.Command("umount", "-l", mp).CombinedOutput()
		time.Sleep(150 * time.Millisecond)
	}
}

// Start mounts filesystem at opts.Mountpoint, serving until ctx is
// canceled.
func Start(ctx context.Context, opts MountOptions, filesystem fs.FS) (*Mount, error) {
	if opts.Mountpoint == "" {
		return nil, fderrors.New("fdfuse.Start", fderrors.Arguments, fderrors.ValueMissing)
	}
	detachStale(opts.Mountpoint)
	if err := os.MkdirAll(opts.Mountpoint, 0o755); err != nil {
		return nil, fderrors.Wrap("fdfuse.Start", fderrors.IO, fderrors.OpenFailed, err)
	}
	name := opts.FSName
	if name == "" {
		name = "fdata"
	}
	mountOpts := []fuse.MountOption{fuse.ReadOnly(), fuse.FSName(name), fuse.Subtype(name)}
	if opts.AllowOther {
		mountOpts = append(mountOpts, fuse.AllowOther())
	}
	c, err := fuse.Mount(opts.Mountpoint, mountOpts...)
	if err != nil {
		return nil, fderrors.Wrap("fdfuse.Start", fderrors.IO, fderrors.OpenFailed, err)
	}
	m := &Mount{conn: c}
	go func() { _ = fs.Serve(c, filesystem) }()
	go func() {
		<-ctx.Done()
		_ = c.Close()
	}()
	return m, nil
}

// Entry is one stream exposed as a file.
type Entry struct {
	Name   string
	Stream *fdstream.Stream
	mu     sync.Mutex
}

// StreamFS is the read-only flat filesystem: every registered Entry
// shows up as a single file at the mount root.
type StreamFS struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewStreamFS constructs an empty registry.
func NewStreamFS() *StreamFS {
	return &StreamFS{entries: make(map[string]*Entry)}
}

// Register adds or replaces the file exposing stream under name.
func (s *StreamFS) Register(name string, stream *fdstream.Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[name] = &Entry{Name: name, Stream: stream}
}

// Unregister removes name from the root listing.
func (s *StreamFS) Unregister(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, name)
}

func (s *StreamFS) Root() (fs.Node, error) {
	return &streamRoot{fs: s}, nil
}

type streamRoot struct{ fs *StreamFS }

func (n *streamRoot) Attr(ctx context.Context, a *fuse.Attr) error {
	a.Mode = os.ModeDir | 0o555
	return nil
}

func (n *streamRoot) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	n.fs.mu.RLock()
	defer n.fs.mu.RUnlock()
	out := make([]fuse.Dirent, 0, len(n.fs.entries))
	for name := range n.fs.entries {
		out = append(out, fuse.Dirent{Name: name, Type: fuse.DT_File})
	}
	return out, nil
}

func (n *streamRoot) Lookup(ctx context.Context, name string) (fs.Node, error) {
	n.fs.mu.RLock()
	e, ok := n.fs.entries[name]
	n.fs.mu.RUnlock()
	if !ok {
		return nil, fuse.ENOENT
	}
	return &streamFile{entry: e}, nil
}

type streamFile struct{ entry *Entry }

func (n *streamFile) Attr(ctx context.Context, a *fuse.Attr) error {
	a.Mode = 0o444
	a.Size = n.entry.Stream.GetDataSize()
	a.Mtime = time.Now()
	return nil
}

// Read serves req.Size bytes at req.Offset by seeking the stream's
// shared cursor under the entry's mutex; fdstream.Stream's cursor is
// not itself concurrency-safe, so concurrent reads of one file
// serialize here the same way the teacher serializes per-import
// segment fetches.
func (n *streamFile) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	n.entry.mu.Lock()
	defer n.entry.mu.Unlock()

	if req.Offset < 0 {
		return fuse.EIO
	}
	size := n.entry.Stream.GetDataSize()
	if uint64(req.Offset) >= size {
		resp.Data = nil
		return nil
	}
	if _, err := n.entry.Stream.SeekOffset(req.Offset, fdstream.SeekSet); err != nil {
		return fuse.EIO
	}
	buf := make([]byte, req.Size)
	n2, err := n.entry.Stream.ReadBuffer(ctx, buf)
	if err != nil {
		return fuse.EIO
	}
	resp.Data = buf[:n2]
	return nil
}

var (
	_ fs.FS                  = (*StreamFS)(nil)
	_ fs.Node                = (*streamRoot)(nil)
	_ fs.HandleReadDirAller  = (*streamRoot)(nil)
	_ fs.NodeStringLookuper  = (*streamRoot)(nil)
	_ fs.Node                = (*streamFile)(nil)
	_ fs.HandleReader        = (*streamFile)(nil)
)
