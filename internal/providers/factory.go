package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/maykecorrea/dressup/internal/imagegen"
	"github.com/maykecorrea/dressup/internal/infra"
	"github.com/maykecorrea/dressup/internal/providers/gemini"
	"github.com/maykecorrea/dressup/internal/providers/openai"
	"github.com/maykecorrea/dressup/internal/providers/qwen"
)

const (
	OpenAI = "openai"
	Gemini = "gemini"
	Qwen   = "qwen"
)

// ErrUnknownProvider is returned for an unsupported IMAGE_PROVIDER value.
var ErrUnknownProvider = errors.New("providers: unknown image provider")

// KeySource looks up stored API keys when none is configured in the environment.
type KeySource interface {
	Token(ctx context.Context, provider string) (string, error)
}

// Settings selects and configures the remote models.
type Settings struct {
	Provider string

	OpenAIAPIKey        string
	OpenAIBaseURL       string
	OpenAIImageModel    string
	OpenAIImageSize     string
	OpenAIImageQuality  string
	OpenAIInputFidelity string
	OpenAIChatModel     string

	GeminiAPIKey      string
	GeminiImageModel  string
	GeminiVisionModel string

	QwenAPIKey     string
	QwenBaseURL    string
	QwenImageModel string

	Timeout       time.Duration
	RatePerMinute int
	TempDir       string
}

// Set holds the models the service talks to. Vision and JSON may be nil when
// no provider with those abilities has credentials.
type Set struct {
	Editor imagegen.Editor
	Vision imagegen.VisionModel
	JSON   imagegen.JSONModel
}

// Build constructs the configured editor plus the best available vision and
// JSON models. Missing keys are looked up in keys when it is non-nil.
func Build(ctx context.Context, s Settings, keys KeySource, logger *infra.Logger) (*Set, error) {
	openAIKey := resolveKey(ctx, s.OpenAIAPIKey, OpenAI, keys, logger)
	geminiKey := resolveKey(ctx, s.GeminiAPIKey, Gemini, keys, logger)
	qwenKey := resolveKey(ctx, s.QwenAPIKey, Qwen, keys, logger)

	var (
		openAIClient *openai.Client
		geminiClient *gemini.Client
	)
	if openAIKey != "" {
		c, err := openai.NewClient(openai.Options{
			APIKey:         openAIKey,
			BaseURL:        s.OpenAIBaseURL,
			Model:          s.OpenAIImageModel,
			Size:           s.OpenAIImageSize,
			Quality:        s.OpenAIImageQuality,
			InputFidelity:  s.OpenAIInputFidelity,
			ChatModel:      s.OpenAIChatModel,
			Files:          imagegen.NewTempStore(s.TempDir, logger),
			Logger:         logger,
			RequestTimeout: s.Timeout,
		})
		if err != nil {
			return nil, err
		}
		openAIClient = c
	}
	if geminiKey != "" {
		c, err := gemini.NewClient(ctx, gemini.Options{
			APIKey:      geminiKey,
			ImageModel:  s.GeminiImageModel,
			VisionModel: s.GeminiVisionModel,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		geminiClient = c
	}

	set := &Set{}
	switch provider := strings.ToLower(strings.TrimSpace(s.Provider)); provider {
	case "", OpenAI:
		if openAIClient == nil {
			return nil, fmt.Errorf("providers: %s selected without api key", OpenAI)
		}
		set.Editor = openAIClient
	case Gemini:
		if geminiClient == nil {
			return nil, fmt.Errorf("providers: %s selected without api key", Gemini)
		}
		set.Editor = geminiClient
	case Qwen:
		if qwenKey == "" {
			return nil, fmt.Errorf("providers: %s selected without api key", Qwen)
		}
		c, err := qwen.NewClient(qwen.Options{
			APIKey:         qwenKey,
			BaseURL:        s.QwenBaseURL,
			Model:          s.QwenImageModel,
			Logger:         logger,
			RequestTimeout: s.Timeout,
		})
		if err != nil {
			return nil, err
		}
		set.Editor = c
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	set.Editor = NewThrottle(set.Editor, s.RatePerMinute)

	// Prefer the vision model of the selected provider, then any other one.
	switch {
	case geminiClient != nil && (set.Editor.Name() == Gemini || openAIClient == nil):
		set.Vision, set.JSON = geminiClient, geminiClient
	case openAIClient != nil:
		set.Vision, set.JSON = openAIClient, openAIClient
	}
	logger.Info().
		Str("editor", set.Editor.Name()).
		Bool("vision", set.Vision != nil).
		Msg("providers ready")
	return set, nil
}

func resolveKey(ctx context.Context, configured, provider string, keys KeySource, logger *infra.Logger) string {
	if key := strings.TrimSpace(configured); key != "" {
		return key
	}
	if keys == nil {
		return ""
	}
	key, err := keys.Token(ctx, provider)
	if err != nil {
		logger.Warn().Err(err).Str("provider", provider).Msg("failed to load stored api key")
		return ""
	}
	return key
}
