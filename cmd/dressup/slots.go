package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/maykecorrea/dressup/internal/catalog"
	"github.com/maykecorrea/dressup/internal/imagegen"
)

// readImage loads a local image file and detects its content type.
func readImage(path string) (imagegen.ImageRef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return imagegen.ImageRef{}, err
	}
	if len(data) == 0 {
		return imagegen.ImageRef{}, fmt.Errorf("%s is empty", path)
	}
	return imagegen.Sniff(data, mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))), nil
}

// parseSlot reads one --slot value:
//
//	top=@shirt.png                 garment image
//	pants=black slim jeans         garment description
//	coat=catalog:denim-jacket-blue stock garment hint
func parseSlot(raw string, cat *catalog.Catalog, read func(string) (imagegen.ImageRef, error)) (imagegen.GarmentSlot, error) {
	name, value, ok := strings.Cut(raw, "=")
	if !ok {
		return imagegen.GarmentSlot{}, fmt.Errorf("slot %q: expected slot=value", raw)
	}
	id, ok := imagegen.ParseSlotID(name)
	if !ok {
		return imagegen.GarmentSlot{}, fmt.Errorf("slot %q: unknown slot %q", raw, name)
	}
	value = strings.TrimSpace(value)
	switch {
	case strings.HasPrefix(value, "@"):
		img, err := read(strings.TrimPrefix(value, "@"))
		if err != nil {
			return imagegen.GarmentSlot{}, fmt.Errorf("slot %s: %w", id, err)
		}
		return imagegen.GarmentSlot{ID: id, Image: &img}, nil
	case strings.HasPrefix(value, "catalog:"):
		g, err := cat.Get(strings.TrimPrefix(value, "catalog:"))
		if err != nil {
			return imagegen.GarmentSlot{}, fmt.Errorf("slot %s: %w", id, err)
		}
		return imagegen.GarmentSlot{ID: id, Description: g.Name + ": " + g.AIHint}, nil
	case value == "":
		return imagegen.GarmentSlot{}, fmt.Errorf("slot %s: empty value", id)
	}
	return imagegen.GarmentSlot{ID: id, Description: value}, nil
}
