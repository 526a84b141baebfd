package gallery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/maykecorrea/dressup/internal/imagegen"
)

const metaSuffix = ".meta.json"

// FileStore keeps images on the local filesystem, one directory per owner,
// with a JSON sidecar holding the item metadata.
type FileStore struct {
	basePath string
	now      func() time.Time
}

// NewFileStore initializes a FileStore rooted at basePath.
func NewFileStore(basePath string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("gallery: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("gallery: ensure base path: %w", err)
	}
	return &FileStore{basePath: basePath, now: time.Now}, nil
}

func (s *FileStore) Save(ctx context.Context, owner string, img imagegen.ImageRef) (Item, error) {
	if err := ctx.Err(); err != nil {
		return Item{}, err
	}
	owner, err := checkOwner(owner)
	if err != nil {
		return Item{}, err
	}
	if img.Empty() {
		return Item{}, fmt.Errorf("%w: image is empty", imagegen.ErrInvalidRequest)
	}
	item, ref := newItem(img, s.now())
	dir := filepath.Join(s.basePath, owner)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Item{}, fmt.Errorf("gallery: ensure directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, item.Key), ref.Data, 0o644); err != nil {
		return Item{}, fmt.Errorf("gallery: write file: %w", err)
	}
	meta, err := json.Marshal(item)
	if err != nil {
		return Item{}, err
	}
	if err := os.WriteFile(filepath.Join(dir, item.Key+metaSuffix), meta, 0o644); err != nil {
		_ = os.Remove(filepath.Join(dir, item.Key))
		return Item{}, fmt.Errorf("gallery: write metadata: %w", err)
	}
	return item, nil
}

// List returns the owner's items, newest first.
func (s *FileStore) List(ctx context.Context, owner string) ([]Item, error) {
	owner, err := checkOwner(owner)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(s.basePath, owner)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return []Item{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("gallery: read directory: %w", err)
	}
	items := make([]Item, 0, len(entries)/2)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), metaSuffix) {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("gallery: read metadata: %w", err)
		}
		var item Item
		if err := json.Unmarshal(raw, &item); err != nil {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].Key < items[j].Key
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

func (s *FileStore) Open(ctx context.Context, owner, key string) (imagegen.ImageRef, error) {
	full, err := s.path(owner, key)
	if err != nil {
		return imagegen.ImageRef{}, err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, os.ErrNotExist) {
		return imagegen.ImageRef{}, ErrNotFound
	}
	if err != nil {
		return imagegen.ImageRef{}, fmt.Errorf("gallery: read file: %w", err)
	}
	return imagegen.Sniff(data, ""), nil
}

func (s *FileStore) Delete(ctx context.Context, owner, key string) error {
	full, err := s.path(owner, key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("gallery: remove file: %w", err)
	}
	if err := os.Remove(full + metaSuffix); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("gallery: remove metadata: %w", err)
	}
	return nil
}

func (s *FileStore) path(owner, key string) (string, error) {
	owner, err := checkOwner(owner)
	if err != nil {
		return "", err
	}
	key, err = checkKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, owner, key), nil
}

var _ Store = (*FileStore)(nil)
