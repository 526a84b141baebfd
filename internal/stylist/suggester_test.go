package stylist

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/maykecorrea/dressup/internal/imagegen"
)

type stubModel struct {
	out    string
	err    error
	prompt string
	images int
}

func (s *stubModel) GenerateJSON(ctx context.Context, prompt string, images ...imagegen.ImageRef) (string, error) {
	s.prompt = prompt
	s.images = len(images)
	return s.out, s.err
}

func TestSuggestParsesFencedJSON(t *testing.T) {
	model := &stubModel{out: "Here you go:\n```json\n" + `{"suggestions":[
		{"item":"White sneakers","reason":"Keeps it casual","purchase_link":"https://shop.example.com/sneakers"},
		{"item":"Leather belt","reason":"Ties the look","purchaseLink":"https://shop.example.com/belt"},
		{"item":"Silver watch","reason":"Subtle accent","purchase_link":"not a link"},
		{"item":"  ","reason":"ignored"}
	]}` + "\n```"}
	s := NewSuggester(model, nil)
	got, err := s.Suggest(context.Background(), Request{Garment: "Blue Denim Jacket", Preferences: "casual, neutral colors", Language: "en"})
	if err != nil {
		t.Fatalf("Suggest error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("suggestions = %d, want 3", len(got))
	}
	if got[0].PurchaseLink != "https://shop.example.com/sneakers" {
		t.Fatalf("first link = %q", got[0].PurchaseLink)
	}
	if got[1].PurchaseLink != "https://shop.example.com/belt" {
		t.Fatalf("camel case link not accepted: %q", got[1].PurchaseLink)
	}
	if got[2].PurchaseLink != "" {
		t.Fatalf("invalid link should be dropped, got %q", got[2].PurchaseLink)
	}
	if !strings.Contains(model.prompt, "Blue Denim Jacket") || !strings.Contains(model.prompt, "casual, neutral colors") {
		t.Fatalf("prompt missing inputs: %s", model.prompt)
	}
}

func TestSuggestForwardsImage(t *testing.T) {
	model := &stubModel{out: `{"suggestions":[{"item":"Scarf","reason":"warmth"}]}`}
	s := NewSuggester(model, nil)
	img := &imagegen.ImageRef{Data: []byte{1}, ContentType: "image/png"}
	if _, err := s.Suggest(context.Background(), Request{Image: img}); err != nil {
		t.Fatalf("Suggest error: %v", err)
	}
	if model.images != 1 {
		t.Fatalf("images = %d, want 1", model.images)
	}
}

func TestSuggestRequiresGarment(t *testing.T) {
	s := NewSuggester(&stubModel{}, nil)
	if _, err := s.Suggest(context.Background(), Request{}); !errors.Is(err, imagegen.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestSuggestEmptyIsRefusal(t *testing.T) {
	s := NewSuggester(&stubModel{out: `{"suggestions":[]}`}, nil)
	if _, err := s.Suggest(context.Background(), Request{Garment: "dress"}); !errors.Is(err, imagegen.ErrProviderRefused) {
		t.Fatalf("expected refusal, got %v", err)
	}
}

func TestSuggestGarbageIsTransport(t *testing.T) {
	s := NewSuggester(&stubModel{out: "sorry"}, nil)
	if _, err := s.Suggest(context.Background(), Request{Garment: "dress"}); !errors.Is(err, imagegen.ErrProviderTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestExtractJSONFragment(t *testing.T) {
	tests := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"noise {\"a\":1} tail":    `{"a":1}`,
		"   ":                     "",
	}
	for in, want := range tests {
		if got := extractJSONFragment(in); got != want {
			t.Fatalf("extractJSONFragment(%q) = %q, want %q", in, got, want)
		}
	}
}
