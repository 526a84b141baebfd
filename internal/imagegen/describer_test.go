package imagegen

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type stubVision struct {
	text    string
	err     error
	calls   int
	prompts []string
}

func (s *stubVision) DescribeImage(ctx context.Context, img ImageRef, prompt string) (string, error) {
	s.calls++
	s.prompts = append(s.prompts, prompt)
	return s.text, s.err
}

var _ VisionModel = (*stubVision)(nil)

func TestDescribeEmptyOutputIsRefusal(t *testing.T) {
	vision := &stubVision{text: "  \n"}
	d, err := NewDescriber(DescriberOptions{Model: vision})
	if err != nil {
		t.Fatalf("NewDescriber error: %v", err)
	}
	res, err := d.Describe(context.Background(), *img("G"))
	if !errors.Is(err, ErrProviderRefused) {
		t.Fatalf("expected ErrProviderRefused, got %v", err)
	}
	if res.Description != "" {
		t.Fatalf("no description should be returned, got %q", res.Description)
	}
	if vision.calls != 1 {
		t.Fatalf("calls = %d, want 1", vision.calls)
	}
}

func TestDescribeDefaultsToPortuguese(t *testing.T) {
	vision := &stubVision{text: " Camiseta branca de algodão. "}
	d, err := NewDescriber(DescriberOptions{Model: vision})
	if err != nil {
		t.Fatalf("NewDescriber error: %v", err)
	}
	res, err := d.Describe(context.Background(), *img("G"))
	if err != nil {
		t.Fatalf("Describe error: %v", err)
	}
	if res.Description != "Camiseta branca de algodão." {
		t.Fatalf("description = %q", res.Description)
	}
	if res.Language != "pt-BR" {
		t.Fatalf("language = %q", res.Language)
	}
	if !strings.Contains(vision.prompts[0], "Portuguese") {
		t.Fatalf("prompt should ask for Portuguese: %s", vision.prompts[0])
	}
}

func TestDescribeTransportPropagates(t *testing.T) {
	vision := &stubVision{err: errors.New("connection reset")}
	d, _ := NewDescriber(DescriberOptions{Model: vision})
	_, err := d.Describe(context.Background(), *img("G"))
	if !errors.Is(err, ErrProviderTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestDescribeCachesByContent(t *testing.T) {
	vision := &stubVision{text: "denim jacket"}
	d, _ := NewDescriber(DescriberOptions{Model: vision, Language: "en", CacheTTL: time.Minute})
	for i := 0; i < 3; i++ {
		if _, err := d.Describe(context.Background(), *img("same")); err != nil {
			t.Fatalf("Describe error: %v", err)
		}
	}
	if vision.calls != 1 {
		t.Fatalf("calls = %d, want 1", vision.calls)
	}
	if _, err := d.DescribeIn(context.Background(), *img("same"), "es"); err != nil {
		t.Fatalf("DescribeIn error: %v", err)
	}
	if vision.calls != 2 {
		t.Fatalf("a new language should miss the cache, calls = %d", vision.calls)
	}
}

func TestDescribeRequiresImage(t *testing.T) {
	d, _ := NewDescriber(DescriberOptions{Model: &stubVision{text: "x"}})
	if _, err := d.Describe(context.Background(), ImageRef{}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestMatchDescriptionLanguage(t *testing.T) {
	tests := []struct {
		prefs []string
		want  string
	}{
		{prefs: []string{"en-US"}, want: "en"},
		{prefs: []string{"id"}, want: "id"},
		{prefs: []string{"fr"}, want: "pt-BR"},
		{prefs: nil, want: "pt-BR"},
	}
	for _, tc := range tests {
		if got := MatchDescriptionLanguage("pt-BR", tc.prefs...); got != tc.want {
			t.Fatalf("MatchDescriptionLanguage(%v) = %q, want %q", tc.prefs, got, tc.want)
		}
	}
}
