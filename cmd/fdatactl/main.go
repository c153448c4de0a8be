// Command fdatactl is the demo CLI wiring the fdata core containers to
// the domain packages: a local segment catalog (segstore), a local-file
// or Usenet Handle (segio/nntpseg), and an optional FUSE mount
// (fdfuse). Flag-based like the teacher's cmd/edrmount.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gaby/fdata/internal/fdclock"
	"github.com/gaby/fdata/internal/fdconfig"
	"github.com/gaby/fdata/internal/fdfuse"
	"github.com/gaby/fdata/internal/fdstream"
	"github.com/gaby/fdata/internal/nntp"
	"github.com/gaby/fdata/internal/nntpseg"
	"github.com/gaby/fdata/internal/nzb"
	"github.com/gaby/fdata/internal/segio"
	"github.com/gaby/fdata/internal/segstore"
)

func main() {
	var cfgPath string
	var mountFlag bool
	flag.StringVar(&cfgPath, "config", "/config/fdatactl.json", "path to config file (json)")
	flag.BoolVar(&mountFlag, "fuse", false, "mount the registered streams at config.fuse.mountpoint")
	flag.Parse()

	if err := fdconfig.EnsureConfigFile(cfgPath); err != nil {
		log.Fatalf("fdatactl: config bootstrap: %v", err)
	}
	cfg, err := fdconfig.Load(cfgPath)
	if err != nil {
		log.Fatalf("fdatactl: config load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("fdatactl: config validate: %v", err)
	}

	store, err := segstore.Open(cfg.Paths.CatalogDB)
	if err != nil {
		log.Fatalf("fdatactl: segstore open: %v", err)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	streams := fdfuse.NewStreamFS()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Println("usage: fdatactl [-config path] [-fuse] <import-local|import-nzb|normalize-nzb> <stream-label> <path>")
		os.Exit(2)
	}

	switch args[0] {
	case "normalize-nzb":
		if len(args) != 2 {
			log.Fatalf("fdatactl: normalize-nzb requires <path>")
		}
		if err := nzb.NormalizeCanonical(args[1]); err != nil {
			log.Fatalf("fdatactl: normalize-nzb: %v", err)
		}
		return
	case "import-local":
		if len(args) != 3 {
			log.Fatalf("fdatactl: import-local requires <stream-label> <path>")
		}
		if err := importLocalFile(store, streams, args[1], args[2]); err != nil {
			log.Fatalf("fdatactl: import-local: %v", err)
		}
	case "import-nzb":
		if len(args) != 3 {
			log.Fatalf("fdatactl: import-nzb requires <label-prefix> <path>")
		}
		if !cfg.NNTP.Enabled {
			log.Fatalf("fdatactl: import-nzb requires config.nntp.enabled=true")
		}
		if err := importNZB(ctx, cfg, store, streams, args[1], args[2]); err != nil {
			log.Fatalf("fdatactl: import-nzb: %v", err)
		}
	default:
		log.Fatalf("fdatactl: unknown command %q", args[0])
	}

	if mountFlag {
		mount, err := fdfuse.Start(ctx, fdfuse.MountOptions{
			Mountpoint: cfg.FUSE.Mountpoint,
			AllowOther: cfg.FUSE.AllowOther,
			FSName:     "fdata",
		}, streams)
		if err != nil {
			log.Fatalf("fdatactl: fuse mount: %v", err)
		}
		defer mount.Close()
		log.Printf("fdatactl: mounted at %s", cfg.FUSE.Mountpoint)
		<-ctx.Done()
	}
}

// importLocalFile registers path as a single-segment stream addressed
// through segio, the local-file Handle.
func importLocalFile(store *segstore.Store, streams *fdfuse.StreamFS, label, path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return err
	}
	streamID, err := store.CreateStream(label, time.Now().Unix())
	if err != nil {
		return err
	}
	const fileIndex = int32(0)
	if _, err := store.AppendSegment(streamID, fileIndex, 0, uint64(st.Size()), 0, nil); err != nil {
		return err
	}
	if err := store.RegisterExternalFile(fileIndex, path); err != nil {
		return err
	}

	table := segio.MapFileTable{fileIndex: path}
	handle := segio.New(table)
	stream := fdstream.New(handle, handle, true, 8, fdclock.Monotonic())
	if _, err := stream.AppendSegment(fileIndex, 0, uint64(st.Size()), 0); err != nil {
		return err
	}
	streams.Register(label, stream)
	log.Printf("fdatactl: registered local stream label=%s bytes=%d", label, st.Size())
	return nil
}

// importNZB registers every file entry of an NZB document as its own
// stream, addressed through nntpseg against the configured provider.
func importNZB(ctx context.Context, cfg fdconfig.Config, store *segstore.Store, streams *fdfuse.StreamFS, labelPrefix, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	descriptors, err := nntpseg.LoadNZB(f)
	if err != nil {
		return err
	}

	pool := nntp.NewPool(nntp.Config{
		Host: cfg.NNTP.Host, Port: cfg.NNTP.Port, SSL: cfg.NNTP.SSL,
		User: cfg.NNTP.User, Pass: cfg.NNTP.Pass, Timeout: 15 * time.Second,
	}, cfg.NNTP.Connections)

	for _, fd := range descriptors {
		label := labelPrefix + "/" + fd.Filename
		streamID, err := store.CreateStream(label, time.Now().Unix())
		if err != nil {
			return err
		}
		table := make(nntpseg.MapMessageIDTable, len(fd.Segments))
		handle := nntpseg.New(pool, table, cfg.Paths.CacheDir, cfg.Paths.CacheMaxBytes, func() context.Context { return ctx })
		stream := fdstream.New(handle, handle, true, 32, fdclock.Monotonic())

		for i, seg := range fd.Segments {
			fileIndex := int32(i)
			table[fileIndex] = seg.MessageID
			if _, err := store.AppendSegment(streamID, fileIndex, 0, seg.Size, 0, nil); err != nil {
				return err
			}
			if _, err := stream.AppendSegment(fileIndex, 0, seg.Size, 0); err != nil {
				return err
			}
		}
		streams.Register(label, stream)
		log.Printf("fdatactl: registered nzb stream label=%s segments=%d", label, len(fd.Segments))
	}
	return nil
}
