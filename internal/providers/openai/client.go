package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/maykecorrea/dressup/internal/imagegen"
	"github.com/maykecorrea/dressup/internal/infra"
)

const providerName = "openai"

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("openai: api key is required")

// refusalCodes are error codes returned when the safety system rejects a request.
var refusalCodes = map[string]struct{}{
	"moderation_blocked":       {},
	"content_policy_violation": {},
}

// Materializer turns an image into a file on disk for the duration of one call.
type Materializer interface {
	Materialize(ref imagegen.ImageRef) (string, func(), error)
}

// Options configures the images edit client.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	Size           string
	Quality        string
	InputFidelity  string
	ChatModel      string
	Files          Materializer
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client calls the /images/edits endpoint with the base image first and the
// garment references after it, streamed from temporary files.
type Client struct {
	apiKey        string
	baseURL       string
	model         string
	size          string
	quality       string
	inputFidelity string
	chatModel     string
	files         Materializer
	httpClient    *http.Client
	logger        *infra.Logger
}

type editResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
	OutputFormat string `json:"output_format"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// NewClient constructs a client with defaults matching gpt-image-1 edits.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	files := opts.Files
	if files == nil {
		files = imagegen.NewTempStore("", logger)
	}
	return &Client{
		apiKey:        strings.TrimSpace(opts.APIKey),
		baseURL:       baseURL,
		model:         coalesce(opts.Model, "gpt-image-1"),
		size:          coalesce(opts.Size, "1024x1024"),
		quality:       coalesce(opts.Quality, "high"),
		inputFidelity: coalesce(opts.InputFidelity, "high"),
		chatModel:     coalesce(opts.ChatModel, defaultChatModel),
		files:         files,
		httpClient:    httpClient,
		logger:        logger,
	}, nil
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// Name identifies the provider in errors and logs.
func (c *Client) Name() string {
	return providerName
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

type formFile struct {
	path        string
	contentType string
}

// Edit materializes every input image, uploads them as one multipart
// request and decodes the base64 image in the response. Temporary files are
// released before Edit returns, whatever the outcome.
func (c *Client) Edit(ctx context.Context, req imagegen.EditRequest) (imagegen.ImageRef, error) {
	if !c.HasCredentials() {
		return imagegen.ImageRef{}, imagegen.Transport(providerName, 0, ErrMissingAPIKey)
	}
	if len(req.Images) == 0 {
		return imagegen.ImageRef{}, fmt.Errorf("%w: openai: no input images", imagegen.ErrInvalidRequest)
	}

	files := make([]formFile, 0, len(req.Images))
	for _, img := range req.Images {
		path, release, err := c.files.Materialize(img)
		if err != nil {
			return imagegen.ImageRef{}, err
		}
		defer release()
		files = append(files, formFile{path: path, contentType: img.ContentType})
	}

	fields := [][2]string{
		{"model", c.model},
		{"prompt", strings.TrimSpace(req.Instruction)},
		{"size", coalesce(req.Options.Size, c.size)},
		{"quality", coalesce(req.Options.Quality, c.quality)},
		{"n", "1"},
	}
	if strings.HasPrefix(c.model, "gpt-image-1") {
		fields = append(fields, [2]string{"input_fidelity", coalesce(req.Options.InputFidelity, c.inputFidelity)})
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	done := make(chan struct{})
	go func() {
		defer close(done)
		err := writeForm(mw, fields, files)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()
	defer func() {
		pr.Close()
		<-done
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/images/edits", pr)
	if err != nil {
		return imagegen.ImageRef{}, fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
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
		return imagegen.ImageRef{}, classifyFailure(resp.StatusCode, raw)
	}

	var decoded editResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return imagegen.ImageRef{}, imagegen.Transport(providerName, resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	if len(decoded.Data) == 0 || strings.TrimSpace(decoded.Data[0].B64JSON) == "" {
		return imagegen.ImageRef{}, imagegen.Refused(providerName, "no image in response")
	}
	data, err := base64.StdEncoding.DecodeString(decoded.Data[0].B64JSON)
	if err != nil {
		return imagegen.ImageRef{}, imagegen.Transport(providerName, resp.StatusCode, fmt.Errorf("decode image: %w", err))
	}
	hint := ""
	if decoded.OutputFormat != "" {
		hint = "image/" + decoded.OutputFormat
	}
	out := imagegen.Sniff(data, hint)
	c.logger.Debug().
		Str("model", c.model).
		Int("inputs", len(files)).
		Str("content_type", out.ContentType).
		Dur("took", time.Since(start)).
		Msg("openai: edited image")
	return out, nil
}

func classifyFailure(status int, raw []byte) error {
	var detail errorResponse
	if err := json.Unmarshal(raw, &detail); err == nil && detail.Error.Message != "" {
		if _, ok := refusalCodes[detail.Error.Code]; ok {
			return imagegen.Refused(providerName, detail.Error.Message)
		}
		return imagegen.Transport(providerName, status, fmt.Errorf("%s (%s)", detail.Error.Message, coalesce(detail.Error.Code, detail.Error.Type)))
	}
	return imagegen.Transport(providerName, status, errors.New(strings.TrimSpace(string(raw))))
}

func writeForm(mw *multipart.Writer, fields [][2]string, files []formFile) error {
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return err
		}
	}
	name := "image"
	if len(files) > 1 {
		name = "image[]"
	}
	for _, f := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, name, filepath.Base(f.path)))
		header.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(header)
		if err != nil {
			return err
		}
		if err := copyFile(part, f.path); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(dst io.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.Copy(dst, src)
	return err
}

var _ imagegen.Editor = (*Client)(nil)
