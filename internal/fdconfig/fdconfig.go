// Package fdconfig is fdatactl's configuration, a trimmed version of
// the teacher's internal/config: the same JSON-tagged-struct +
// Default()/Load()/Validate() shape, scoped to what a demo CLI wiring
// segstore, segio, nntpseg, codec, blobstore, and fdfuse together
// actually needs (no library/Plex/FileBot/watch/runner sections).
package fdconfig

import (
	"encoding/json"
	"os"

	"github.com/gaby/fdata/internal/fderrors"
)

// Paths configures where fdatactl keeps its catalog and local cache.
type Paths struct {
	CatalogDB     string `json:"catalog_db"`
	CacheDir      string `json:"cache_dir"`
	CacheMaxBytes int64  `json:"cache_max_bytes"`
}

// NNTP configures the Usenet provider nntpseg dials.
type NNTP struct {
	Enabled     bool   `json:"enabled"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	SSL         bool   `json:"ssl"`
	User        string `json:"user"`
	Pass        string `json:"pass"`
	Connections int    `json:"connections"`
}

// S3 configures the blobstore backend.
type S3 struct {
	Enabled bool   `json:"enabled"`
	Bucket  string `json:"bucket"`
	Region  string `json:"region"`
	Prefix  string `json:"prefix"`
}

// FUSE configures fdfuse's mount.
type FUSE struct {
	Enabled    bool   `json:"enabled"`
	Mountpoint string `json:"mountpoint"`
	AllowOther bool   `json:"allow_other"`
}

// Config is fdatactl's top-level configuration document.
type Config struct {
	Paths Paths `json:"paths"`
	NNTP  NNTP  `json:"nntp"`
	S3    S3    `json:"s3"`
	FUSE  FUSE  `json:"fuse"`
}

// Default returns a config usable out of the box against a local cache
// directory with every network-backed provider disabled.
func Default() Config {
	return Config{
		Paths: Paths{
			CatalogDB:     "/var/lib/fdata/catalog.db",
			CacheDir:      "/var/cache/fdata",
			CacheMaxBytes: 20 * 1024 * 1024 * 1024,
		},
		NNTP: NNTP{Enabled: false, Port: 563, SSL: true, Connections: 8},
		S3:   S3{Enabled: false},
		FUSE: FUSE{Enabled: false, Mountpoint: "/mnt/fdata"},
	}
}

// Load overlays path's JSON contents onto Default(). A missing file is
// not an error: the caller gets defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fderrors.Wrap("fdconfig.Load", fderrors.IO, fderrors.OpenFailed, err)
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, fderrors.Wrap("fdconfig.Load", fderrors.Input, fderrors.InvalidData, err)
	}
	return cfg, nil
}

// Validate rejects configurations that would fail later in a more
// confusing way (an enabled provider missing its required fields).
func (c Config) Validate() error {
	if c.Paths.CatalogDB == "" {
		return fderrors.New("fdconfig.Config.Validate", fderrors.Arguments, fderrors.InvalidValue)
	}
	if c.NNTP.Enabled && (c.NNTP.Host == "" || c.NNTP.User == "") {
		return fderrors.New("fdconfig.Config.Validate", fderrors.Arguments, fderrors.InvalidValue)
	}
	if c.S3.Enabled && c.S3.Bucket == "" {
		return fderrors.New("fdconfig.Config.Validate", fderrors.Arguments, fderrors.InvalidValue)
	}
	if c.FUSE.Enabled && c.FUSE.Mountpoint == "" {
		return fderrors.New("fdconfig.Config.Validate", fderrors.Arguments, fderrors.InvalidValue)
	}
	return nil
}

// EnsureConfigFile writes a safe default config at path if none exists
// yet, mirroring the teacher's first-run bootstrap UX.
func EnsureConfigFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fderrors.Wrap("fdconfig.EnsureConfigFile", fderrors.IO, fderrors.OpenFailed, err)
	}
	b, err := json.MarshalIndent(Default(), "", "  ")
	if err != nil {
		return fderrors.Wrap("fdconfig.EnsureConfigFile", fderrors.Output, fderrors.InsufficientSpace, err)
	}
	b = append(b, '\n')
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fderrors.Wrap("fdconfig.EnsureConfigFile", fderrors.IO, fderrors.WriteFailed, err)
	}
	return nil
}
