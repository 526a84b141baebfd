// Package catalog serves the stock garments offered to users.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/maykecorrea/dressup/internal/imagegen"
)

//go:embed garments.yaml
var defaultData []byte

// ErrNotFound is returned when no garment has the requested id.
var ErrNotFound = errors.New("catalog: garment not found")

// Garment is one stock item.
type Garment struct {
	ID           string          `yaml:"id" json:"id"`
	Name         string          `yaml:"name" json:"name"`
	Slot         imagegen.SlotID `yaml:"slot" json:"slot"`
	ImageSrc     string          `yaml:"image_src" json:"image_src"`
	PurchaseLink string          `yaml:"purchase_link" json:"purchase_link"`
	AIHint       string          `yaml:"ai_hint" json:"ai_hint"`
}

type document struct {
	Garments []Garment `yaml:"garments"`
}

// Catalog is an immutable, ordered set of garments.
type Catalog struct {
	items []Garment
	byID  map[string]int
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultData)
}

// Parse reads a YAML catalog. Names default to the title-cased id and
// slots default to top.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	title := cases.Title(language.English)
	c := &Catalog{byID: make(map[string]int, len(doc.Garments))}
	for _, g := range doc.Garments {
		g.ID = strings.TrimSpace(g.ID)
		if g.ID == "" {
			return nil, errors.New("catalog: garment without id")
		}
		if _, dup := c.byID[g.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate garment %q", g.ID)
		}
		if strings.TrimSpace(g.Name) == "" {
			g.Name = title.String(strings.ReplaceAll(g.ID, "-", " "))
		}
		if strings.TrimSpace(string(g.Slot)) == "" {
			g.Slot = imagegen.SlotTop
		}
		slot, ok := imagegen.ParseSlotID(string(g.Slot))
		if !ok {
			return nil, fmt.Errorf("catalog: garment %q: unknown slot %q", g.ID, g.Slot)
		}
		g.Slot = slot
		c.byID[g.ID] = len(c.items)
		c.items = append(c.items, g)
	}
	return c, nil
}

// List returns the garments in catalog order.
func (c *Catalog) List() []Garment {
	out := make([]Garment, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Catalog) Get(id string) (Garment, error) {
	idx, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return Garment{}, ErrNotFound
	}
	return c.items[idx], nil
}
