// Package stylist recommends complementary items for a selected garment.
package stylist

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/maykecorrea/dressup/internal/imagegen"
)

const maxSuggestions = 6

// Request describes the garment and what the user likes.
type Request struct {
	Garment     string
	Preferences string
	Language    string
	Image       *imagegen.ImageRef
}

// Suggestion is one complementary item with a reason and where to buy it.
type Suggestion struct {
	Item         string `json:"item"`
	Reason       string `json:"reason"`
	PurchaseLink string `json:"purchase_link,omitempty"`
}

// Suggester asks a JSON model for style suggestions.
type Suggester struct {
	model  imagegen.JSONModel
	logger *zerolog.Logger
}

type suggestionPayload struct {
	Suggestions []struct {
		Item            string `json:"item"`
		Reason          string `json:"reason"`
		PurchaseLink    string `json:"purchase_link"`
		PurchaseLinkAlt string `json:"purchaseLink"`
	} `json:"suggestions"`
}

func NewSuggester(model imagegen.JSONModel, logger *zerolog.Logger) *Suggester {
	if logger == nil {
		l := zerolog.New(io.Discard)
		logger = &l
	}
	return &Suggester{model: model, logger: logger}
}

// Suggest returns the model's suggestions. Entries without an item are
// skipped and links that are not absolute http(s) URLs are dropped.
func (s *Suggester) Suggest(ctx context.Context, req Request) ([]Suggestion, error) {
	garment := strings.TrimSpace(req.Garment)
	if garment == "" && (req.Image == nil || req.Image.Empty()) {
		return nil, fmt.Errorf("%w: garment is required", imagegen.ErrInvalidRequest)
	}
	var images []imagegen.ImageRef
	if req.Image != nil && !req.Image.Empty() {
		images = append(images, *req.Image)
	}
	raw, err := s.model.GenerateJSON(ctx, buildPrompt(req), images...)
	if err != nil {
		return nil, err
	}
	payload, err := parsePayload[suggestionPayload](raw)
	if err != nil {
		return nil, imagegen.Transport("stylist", 0, fmt.Errorf("parse suggestions: %w", err))
	}
	out := make([]Suggestion, 0, len(payload.Suggestions))
	for _, item := range payload.Suggestions {
		name := strings.TrimSpace(item.Item)
		if name == "" {
			continue
		}
		link := validLink(item.PurchaseLink)
		if link == "" {
			link = validLink(item.PurchaseLinkAlt)
		}
		out = append(out, Suggestion{Item: name, Reason: strings.TrimSpace(item.Reason), PurchaseLink: link})
		if len(out) == maxSuggestions {
			break
		}
	}
	if len(out) == 0 {
		return nil, imagegen.Refused("stylist", "no suggestions")
	}
	s.logger.Debug().Int("count", len(out)).Msg("stylist: suggestions ready")
	return out, nil
}

func buildPrompt(req Request) string {
	lang := strings.TrimSpace(req.Language)
	if lang == "" {
		lang = imagegen.DefaultDescriptionLanguage
	}
	sb := &strings.Builder{}
	sb.WriteString("You are a personal stylist. Based on the selected garment and the user's preferences, suggest complementary items. ")
	sb.WriteString("Provide a reason for each suggestion and a purchase link. ")
	sb.WriteString(`Respond strictly with JSON matching this schema: {"suggestions":[{"item":string,"reason":string,"purchase_link":string}]}. `)
	fmt.Fprintf(sb, "Write item and reason in the language with tag %q.\n", lang)
	if g := strings.TrimSpace(req.Garment); g != "" {
		fmt.Fprintf(sb, "Selected garment: %s\n", g)
	} else {
		sb.WriteString("Selected garment: the one shown in the image\n")
	}
	fmt.Fprintf(sb, "User preferences: %s", strings.TrimSpace(req.Preferences))
	return sb.String()
}

func validLink(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	return u.String()
}
