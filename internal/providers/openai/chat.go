package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/maykecorrea/dressup/internal/imagegen"
)

const defaultChatModel = "gpt-4o-mini"

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature,omitempty"`
	ResponseFormat *chatFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string     `json:"role"`
	Content []chatPart `json:"content"`
}

type chatPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		FinishReason string `json:"finish_reason"`
		Message      struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
	} `json:"choices"`
}

// DescribeImage asks the chat model for a text answer about img.
func (c *Client) DescribeImage(ctx context.Context, img imagegen.ImageRef, prompt string) (string, error) {
	return c.chat(ctx, prompt, []imagegen.ImageRef{img}, nil, 0.3)
}

// GenerateJSON asks the chat model for a JSON object answer.
func (c *Client) GenerateJSON(ctx context.Context, prompt string, images ...imagegen.ImageRef) (string, error) {
	return c.chat(ctx, prompt, images, &chatFormat{Type: "json_object"}, 0.6)
}

func (c *Client) chat(ctx context.Context, prompt string, images []imagegen.ImageRef, format *chatFormat, temperature float64) (string, error) {
	if !c.HasCredentials() {
		return "", imagegen.Transport(providerName, 0, ErrMissingAPIKey)
	}
	parts := []chatPart{{Type: "text", Text: prompt}}
	for _, img := range images {
		if img.Empty() {
			continue
		}
		parts = append(parts, chatPart{Type: "image_url", ImageURL: &chatImageURL{URL: imagegen.Encode(img)}})
	}
	payload := chatRequest{
		Model:          c.chatModel,
		Temperature:    temperature,
		ResponseFormat: format,
		Messages:       []chatMessage{{Role: "user", Content: parts}},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return "", fmt.Errorf("openai: encode chat request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", &buf)
	if err != nil {
		return "", fmt.Errorf("openai: build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", imagegen.Transport(providerName, 0, fmt.Errorf("http request: %w", err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", imagegen.Transport(providerName, resp.StatusCode, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode >= 300 {
		return "", classifyFailure(resp.StatusCode, raw)
	}
	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", imagegen.Transport(providerName, resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	if len(out.Choices) == 0 {
		return "", imagegen.Transport(providerName, resp.StatusCode, errors.New("no choices"))
	}
	choice := out.Choices[0]
	if choice.Message.Refusal != "" {
		return "", imagegen.Refused(providerName, choice.Message.Refusal)
	}
	if choice.FinishReason == "content_filter" {
		return "", imagegen.Refused(providerName, "content filter")
	}
	return strings.TrimSpace(choice.Message.Content), nil
}

var _ imagegen.VisionModel = (*Client)(nil)
