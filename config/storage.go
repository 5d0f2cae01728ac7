package config

import (
	"errors"
	"path/filepath"
	"strings"
	"time"
)

// StorageConfig names the storage areas and where the filesystem blob store keeps them.
type StorageConfig struct {
	// FailedArea receives objects whose scan did not pass.
	FailedArea string `env:"Q_BUCKET"`
	// CleanArea receives objects whose scan passed.
	CleanArea string `env:"DMZ_BUCKET"`
	// Root is the directory holding one subdirectory per area.
	Root string `env:"BLOBSTORE_ROOT" envDefault:"/var/lib/scanworker/areas"`
}

// Sanitize trims whitespace from area names.
func (s *StorageConfig) Sanitize() {
	s.FailedArea = strings.TrimSpace(s.FailedArea)
	s.CleanArea = strings.TrimSpace(s.CleanArea)
	s.Root = strings.TrimSpace(s.Root)
}

// Validate requires both destination areas.
func (s *StorageConfig) Validate() error {
	var errs []error
	if s.FailedArea == "" {
		errs = append(errs, errors.New("Q_BUCKET is required"))
	}
	if s.CleanArea == "" {
		errs = append(errs, errors.New("DMZ_BUCKET is required"))
	}
	if s.Root == "" {
		errs = append(errs, errors.New("BLOBSTORE_ROOT is required"))
	}
	return errors.Join(errs...)
}

// ScannerConfig controls how clamscan is invoked.
type ScannerConfig struct {
	// Path is the scanner executable.
	Path string `env:"SCANNER_PATH" envDefault:"/usr/bin/clamscan"`

	// TempDir is passed to the scanner as --tempdir and stripped from its output.
	TempDir string `env:"SCANNER_TEMP_DIR" envDefault:"/tmp"`

	// StagingDir is where objects are downloaded before scanning.
	StagingDir string `env:"SCANNER_STAGING_DIR" envDefault:"/tmp"`

	// Timeout bounds one scanner invocation.
	Timeout time.Duration `env:"SCANNER_TIMEOUT" envDefault:"5m"`
}

// Sanitize applies guardrails to scanner configuration values.
func (s *ScannerConfig) Sanitize() {
	if s.Path = strings.TrimSpace(s.Path); s.Path == "" {
		s.Path = "/usr/bin/clamscan"
	}
	if s.TempDir = strings.TrimSpace(s.TempDir); s.TempDir == "" {
		s.TempDir = "/tmp"
	}
	if s.StagingDir = strings.TrimSpace(s.StagingDir); s.StagingDir == "" {
		s.StagingDir = "/tmp"
	}
	s.TempDir = filepath.Clean(s.TempDir)
	s.StagingDir = filepath.Clean(s.StagingDir)
	if s.Timeout < time.Second {
		s.Timeout = time.Second
	}
}
