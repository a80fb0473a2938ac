package storage

import (
	"errors"
	"fmt"
)

// Backend names.
const (
	BackendLocal = "local"
	BackendBlob  = "blob"
)

// ErrBackend reports an unusable storage selection.
var ErrBackend = errors.New("storage: invalid backend configuration")

// Config selects and parameterizes a backend. There is no implicit default:
// the backend must be named.
type Config struct {
	Backend    string `yaml:"backend" validate:"required,oneof=local blob"`
	LocalDir   string `yaml:"local_dir" default:"data"`
	BlobURL    string `yaml:"blob_url"`
	BlobToken  string `yaml:"blob_token"`
	BlobPrefix string `yaml:"blob_prefix" default:"regime"`
}

// Open builds the configured Store.
func Open(cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendLocal:
		if cfg.LocalDir == "" {
			return nil, fmt.Errorf("%w: local_dir is empty", ErrBackend)
		}
		return NewLocalStore(cfg.LocalDir)
	case BackendBlob:
		if cfg.BlobURL == "" || cfg.BlobToken == "" {
			return nil, fmt.Errorf("%w: blob backend needs blob_url and a token", ErrBackend)
		}
		return NewBlobStore(cfg.BlobURL, cfg.BlobPrefix, cfg.BlobToken), nil
	}
	return nil, fmt.Errorf("%w: unknown backend %q", ErrBackend, cfg.Backend)
}
