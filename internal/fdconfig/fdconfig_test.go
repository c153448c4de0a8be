package fdconfig

import (
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default() config must validate cleanly, got %v", err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Paths.CatalogDB != Default().Paths.CatalogDB {
		t.Fatalf("missing-file Load() = %+v, want defaults", cfg)
	}
}

func TestEnsureConfigFileThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fdatactl.json")
	if err := EnsureConfigFile(path); err != nil {
		t.Fatalf("EnsureConfigFile: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Paths.CatalogDB != Default().Paths.CatalogDB {
		t.Fatalf("round-tripped config = %+v, want defaults", cfg)
	}

	if err := EnsureConfigFile(path); err != nil {
		t.Fatalf("second EnsureConfigFile must not error on an existing file: %v", err)
	}
}

func TestValidateRejectsIncompleteProviders(t *testing.T) {
	cfg := Default()
	cfg.NNTP.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for NNTP enabled without host/user")
	}

	cfg = Default()
	cfg.S3.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for S3 enabled without bucket")
	}

	cfg = Default()
	cfg.FUSE.Enabled = true
	cfg.FUSE.Mountpoint = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for FUSE enabled without mountpoint")
	}

	cfg = Default()
	cfg.Paths.CatalogDB = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty catalog db path")
	}
}
