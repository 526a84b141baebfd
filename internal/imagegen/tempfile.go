package imagegen

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TempStore writes images to scoped temporary files for providers that
// upload from a file stream.
type TempStore struct {
	dir    string
	logger zerolog.Logger
	remove func(string) error
}

// NewTempStore returns a store rooted at dir. An empty dir uses os.TempDir.
func NewTempStore(dir string, logger *zerolog.Logger) *TempStore {
	l := zerolog.New(io.Discard)
	if logger != nil {
		l = *logger
	}
	return &TempStore{dir: dir, logger: l, remove: os.Remove}
}

// Materialize writes ref to a new file and returns its path and a release
// function. The file is removed on the first release call; later calls are
// no-ops. A failed write leaves nothing behind.
func (s *TempStore) Materialize(ref ImageRef) (string, func(), error) {
	if ref.Empty() {
		return "", nil, invalidf("empty image")
	}
	dir := s.dir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", nil, fmt.Errorf("tempstore: ensure dir: %w", err)
	}
	path := filepath.Join(dir, "dressup-"+uuid.NewString()+Extension(ref.ContentType))
	if err := os.WriteFile(path, ref.Data, 0o600); err != nil {
		s.cleanup(path)
		return "", nil, fmt.Errorf("tempstore: write: %w", err)
	}
	var once sync.Once
	release := func() {
		once.Do(func() { s.cleanup(path) })
	}
	return path, release, nil
}

// MaterializeWire decodes a data URI and materializes it.
func (s *TempStore) MaterializeWire(wire string) (string, func(), error) {
	ref, err := Decode(wire)
	if err != nil {
		return "", nil, err
	}
	return s.Materialize(ref)
}

func (s *TempStore) cleanup(path string) {
	if err := s.remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		warn := &ResourceCleanupWarning{Path: path, Err: err}
		s.logger.Warn().Err(warn).Str("path", path).Msg("tempstore: cleanup failed")
	}
}
