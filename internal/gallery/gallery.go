// Package gallery stores the composed images a user chose to keep.
package gallery

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/maykecorrea/dressup/internal/imagegen"
)

var (
	// ErrNotFound is returned when the owner has no image under the key.
	ErrNotFound = errors.New("gallery: image not found")
	// ErrInvalidKey is returned for keys that could address another object.
	ErrInvalidKey = errors.New("gallery: invalid key")
	// ErrInvalidOwner is returned for an empty or unsafe owner id.
	ErrInvalidOwner = errors.New("gallery: invalid owner")
)

// Item describes one stored image.
type Item struct {
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	Width       int       `json:"width,omitempty"`
	Height      int       `json:"height,omitempty"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists images per owner.
type Store interface {
	Save(ctx context.Context, owner string, img imagegen.ImageRef) (Item, error)
	List(ctx context.Context, owner string) ([]Item, error)
	Open(ctx context.Context, owner, key string) (imagegen.ImageRef, error)
	Delete(ctx context.Context, owner, key string) error
}

// newItem sniffs img and assigns it a fresh key.
func newItem(img imagegen.ImageRef, now time.Time) (Item, imagegen.ImageRef) {
	ref := imagegen.Sniff(img.Data, img.ContentType)
	item := Item{
		Key:         uuid.NewString() + imagegen.Extension(ref.ContentType),
		ContentType: ref.ContentType,
		Size:        int64(len(ref.Data)),
		CreatedAt:   now.UTC(),
	}
	if w, h, ok := imagegen.Dimensions(ref); ok {
		item.Width, item.Height = w, h
	}
	return item, ref
}

func checkOwner(owner string) (string, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" || strings.ContainsAny(owner, `/\`) || owner == "." || owner == ".." {
		return "", ErrInvalidOwner
	}
	return owner, nil
}

// checkKey accepts a single path element.
func checkKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || strings.ContainsAny(key, `/\`) || path.Clean(key) != key || key == "." || key == ".." || strings.HasSuffix(key, metaSuffix) {
		return "", ErrInvalidKey
	}
	return key, nil
}
