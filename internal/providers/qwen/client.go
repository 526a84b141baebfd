package qwen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/maykecorrea/dressup/internal/imagegen"
	"github.com/maykecorrea/dressup/internal/infra"
)

const providerName = "qwen"

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("qwen: api key is required")

// refusalCodes are DashScope error codes raised by content moderation.
var refusalCodes = map[string]struct{}{
	"DataInspectionFailed":   {},
	"data_inspection_failed": {},
	"IPInfringementSuspect":  {},
}

// Options configures the DashScope Qwen image edit client.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	Watermark      bool
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client edits images through DashScope's multimodal generation endpoint.
// Every input image travels inline as a data URI next to the instruction.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	watermark  bool
	httpClient *http.Client
	logger     *infra.Logger
}

type generationRequest struct {
	Model      string           `json:"model"`
	Input      generationInput  `json:"input"`
	Parameters generationParams `json:"parameters"`
}

type generationInput struct {
	Messages []generationMessage `json:"messages"`
}

type generationMessage struct {
	Role    string              `json:"role"`
	Content []generationContent `json:"content"`
}

type generationContent struct {
	Image string `json:"image,omitempty"`
	Text  string `json:"text,omitempty"`
}

type generationParams struct {
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Size           string `json:"size,omitempty"`
	Watermark      *bool  `json:"watermark,omitempty"`
}

type generationResponse struct {
	Output struct {
		Choices []struct {
			FinishReason string `json:"finish_reason"`
			Message      struct {
				Content []struct {
					Image string `json:"image"`
					Text  string `json:"text"`
				} `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 90 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://dashscope-intl.aliyuncs.com/api/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "qwen-image-edit-plus"
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		watermark:  opts.Watermark,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Name identifies the provider in errors and logs.
func (c *Client) Name() string {
	return providerName
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// AspectRatioSize maps an aspect ratio to a DashScope output size.
func AspectRatioSize(aspect string) string {
	switch strings.TrimSpace(aspect) {
	case "16:9":
		return "1664*928"
	case "4:3":
		return "1472*1104"
	case "3:4":
		return "1140*1472"
	case "9:16":
		return "928*1664"
	case "1:1":
		return "1328*1328"
	default:
		return ""
	}
}

// Edit sends the base image, the references and the instruction in one
// message and downloads the resulting image.
func (c *Client) Edit(ctx context.Context, req imagegen.EditRequest) (imagegen.ImageRef, error) {
	if !c.HasCredentials() {
		return imagegen.ImageRef{}, imagegen.Transport(providerName, 0, ErrMissingAPIKey)
	}
	if len(req.Images) == 0 {
		return imagegen.ImageRef{}, fmt.Errorf("%w: qwen: no input images", imagegen.ErrInvalidRequest)
	}
	content := make([]generationContent, 0, len(req.Images)+1)
	for _, img := range req.Images {
		content = append(content, generationContent{Image: imagegen.Encode(img)})
	}
	content = append(content, generationContent{Text: strings.TrimSpace(req.Instruction)})

	watermark := c.watermark
	payload := generationRequest{
		Model: c.model,
		Input: generationInput{Messages: []generationMessage{{Role: "user", Content: content}}},
		Parameters: generationParams{
			NegativePrompt: strings.TrimSpace(req.Options.NegativePrompt),
			Watermark:      &watermark,
		},
	}
	size := strings.ReplaceAll(strings.TrimSpace(req.Options.Size), "x", "*")
	if size == "" {
		size = AspectRatioSize(req.Options.AspectRatio)
	}
	payload.Parameters.Size = size

	body, err := json.Marshal(payload)
	if err != nil {
		return imagegen.ImageRef{}, fmt.Errorf("qwen: encode request: %w", err)
	}
	endpoint := c.baseURL + "/services/aigc/multimodal-generation/generation"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return imagegen.ImageRef{}, fmt.Errorf("qwen: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return imagegen.ImageRef{}, imagegen.Transport(providerName, 0, fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return imagegen.ImageRef{}, imagegen.Transport(providerName, resp.StatusCode, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode >= 300 {
		var detail errorResponse
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Message != "" {
			if _, ok := refusalCodes[detail.Code]; ok {
				return imagegen.ImageRef{}, imagegen.Refused(providerName, detail.Message)
			}
			return imagegen.ImageRef{}, imagegen.Transport(providerName, resp.StatusCode, fmt.Errorf("%s (%s)", detail.Message, detail.Code))
		}
		return imagegen.ImageRef{}, imagegen.Transport(providerName, resp.StatusCode, errors.New(strings.TrimSpace(string(raw))))
	}

	var decoded generationResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return imagegen.ImageRef{}, imagegen.Transport(providerName, resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	if decoded.Code != "" {
		if _, ok := refusalCodes[decoded.Code]; ok {
			return imagegen.ImageRef{}, imagegen.Refused(providerName, decoded.Message)
		}
		return imagegen.ImageRef{}, imagegen.Transport(providerName, resp.StatusCode, fmt.Errorf("%s (%s)", decoded.Message, decoded.Code))
	}
	imageURL := firstImageURL(decoded)
	if imageURL == "" {
		return imagegen.ImageRef{}, imagegen.Refused(providerName, "empty image url")
	}
	out, err := c.download(ctx, imageURL)
	if err != nil {
		return imagegen.ImageRef{}, err
	}
	c.logger.Debug().
		Str("model", c.model).
		Str("request_id", decoded.RequestID).
		Str("content_type", out.ContentType).
		Int("inputs", len(req.Images)).
		Msg("qwen: edited image")
	return out, nil
}

func (c *Client) download(ctx context.Context, imageURL string) (imagegen.ImageRef, error) {
	parsed, err := url.Parse(strings.TrimSpace(imageURL))
	if err != nil || parsed.Scheme == "" {
		return imagegen.ImageRef{}, imagegen.Transport(providerName, 0, fmt.Errorf("invalid image url: %s", imageURL))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return imagegen.ImageRef{}, fmt.Errorf("qwen: build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return imagegen.ImageRef{}, imagegen.Transport(providerName, 0, fmt.Errorf("download image: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return imagegen.ImageRef{}, imagegen.Transport(providerName, resp.StatusCode, errors.New("download image"))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return imagegen.ImageRef{}, imagegen.Transport(providerName, resp.StatusCode, fmt.Errorf("read image: %w", err))
	}
	if len(data) == 0 {
		return imagegen.ImageRef{}, imagegen.Refused(providerName, "empty image body")
	}
	return imagegen.Sniff(data, resp.Header.Get("Content-Type")), nil
}

func firstImageURL(resp generationResponse) string {
	for _, choice := range resp.Output.Choices {
		for _, content := range choice.Message.Content {
			if u := strings.TrimSpace(content.Image); u != "" {
				return u
			}
		}
	}
	return ""
}

var _ imagegen.Editor = (*Client)(nil)
