package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/maykecorrea/dressup/internal/imagegen"
	"github.com/maykecorrea/dressup/internal/infra"
)

const providerName = "gemini"

const (
	defaultImageModel  = "gemini-2.5-flash-image"
	defaultVisionModel = "gemini-2.0-flash"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("gemini: api key is required")

// blockedFinishReasons mark candidates stopped by safety filters.
var blockedFinishReasons = map[string]struct{}{
	"SAFETY":                   {},
	"PROHIBITED_CONTENT":       {},
	"BLOCKLIST":                {},
	"SPII":                     {},
	"IMAGE_SAFETY":             {},
	"IMAGE_PROHIBITED_CONTENT": {},
}

type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Options configures the Gemini client.
type Options struct {
	APIKey      string
	ImageModel  string
	VisionModel string
	Logger      *infra.Logger
}

// Client edits images and reads them through the Gemini API.
type Client struct {
	models      generator
	imageModel  string
	visionModel string
	logger      *infra.Logger
}

// NewClient builds a client backed by the genai SDK.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	key := strings.TrimSpace(opts.APIKey)
	if key == "" {
		return nil, ErrMissingAPIKey
	}
	sdk, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return newClient(sdk.Models, opts), nil
}

func newClient(models generator, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		l := zerolog.New(io.Discard)
		logger = &l
	}
	image := strings.TrimSpace(opts.ImageModel)
	if image == "" {
		image = defaultImageModel
	}
	vision := strings.TrimSpace(opts.VisionModel)
	if vision == "" {
		vision = defaultVisionModel
	}
	return &Client{models: models, imageModel: image, visionModel: vision, logger: logger}
}

func (c *Client) Name() string {
	return providerName
}

// Edit sends the images followed by the instruction and returns the first
// inline image of the answer.
func (c *Client) Edit(ctx context.Context, req imagegen.EditRequest) (imagegen.ImageRef, error) {
	if len(req.Images) == 0 {
		return imagegen.ImageRef{}, fmt.Errorf("%w: gemini: no input images", imagegen.ErrInvalidRequest)
	}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
		Temperature:        float32Ptr(0.4),
	}
	if aspect := strings.TrimSpace(req.Options.AspectRatio); aspect != "" {
		config.ImageConfig = &genai.ImageConfig{AspectRatio: aspect}
	}
	resp, err := c.generate(ctx, c.imageModel, userContent(req.Instruction, req.Images), config)
	if err != nil {
		return imagegen.ImageRef{}, err
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				out := imagegen.Sniff(part.InlineData.Data, part.InlineData.MIMEType)
				c.logger.Debug().
					Str("model", c.imageModel).
					Int("inputs", len(req.Images)).
					Str("content_type", out.ContentType).
					Msg("gemini: edited image")
				return out, nil
			}
		}
	}
	return imagegen.ImageRef{}, imagegen.Refused(providerName, "no image in response")
}

// DescribeImage returns the text answer of the vision model for img.
func (c *Client) DescribeImage(ctx context.Context, img imagegen.ImageRef, prompt string) (string, error) {
	resp, err := c.generate(ctx, c.visionModel, userContent(prompt, []imagegen.ImageRef{img}), &genai.GenerateContentConfig{
		Temperature: float32Ptr(0.3),
	})
	if err != nil {
		return "", err
	}
	return responseText(resp), nil
}

// GenerateJSON asks the vision model for a JSON answer.
func (c *Client) GenerateJSON(ctx context.Context, prompt string, images ...imagegen.ImageRef) (string, error) {
	resp, err := c.generate(ctx, c.visionModel, userContent(prompt, images), &genai.GenerateContentConfig{
		Temperature:      float32Ptr(0.6),
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", err
	}
	return responseText(resp), nil
}

func (c *Client) generate(ctx context.Context, model string, content *genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	resp, err := c.models.GenerateContent(ctx, model, []*genai.Content{content}, config)
	if err != nil {
		return nil, imagegen.Transport(providerName, 0, err)
	}
	if resp == nil {
		return nil, imagegen.Transport(providerName, 0, errors.New("empty response"))
	}
	if fb := resp.PromptFeedback; fb != nil {
		reason := string(fb.BlockReason)
		if reason != "" && reason != "BLOCKED_REASON_UNSPECIFIED" {
			return nil, imagegen.Refused(providerName, coalesce(fb.BlockReasonMessage, reason))
		}
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
		if _, blocked := blockedFinishReasons[string(resp.Candidates[0].FinishReason)]; blocked && !hasOutput(resp) {
			return nil, imagegen.Refused(providerName, string(resp.Candidates[0].FinishReason))
		}
	}
	return resp, nil
}

func userContent(text string, images []imagegen.ImageRef) *genai.Content {
	parts := make([]*genai.Part, 0, len(images)+1)
	for _, img := range images {
		if img.Empty() {
			continue
		}
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.ContentType))
	}
	parts = append(parts, genai.NewPartFromText(strings.TrimSpace(text)))
	return &genai.Content{Role: "user", Parts: parts}
}

func hasOutput(resp *genai.GenerateContentResponse) bool {
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil {
				continue
			}
			if part.Text != "" || (part.InlineData != nil && len(part.InlineData.Data) > 0) {
				return true
			}
		}
	}
	return false
}

func responseText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.Text != "" && !part.Thought {
				sb.WriteString(part.Text)
			}
		}
		if sb.Len() > 0 {
			break
		}
	}
	return strings.TrimSpace(sb.String())
}

func float32Ptr(v float32) *float32 {
	return &v
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

var (
	_ imagegen.Editor      = (*Client)(nil)
	_ imagegen.VisionModel = (*Client)(nil)
)
