package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/maykecorrea/dressup/internal/gallery"
	"github.com/maykecorrea/dressup/internal/imagegen"
	"github.com/maykecorrea/dressup/internal/providers"
)

var rootCmd = &cobra.Command{
	Use:           "dressup",
	Short:         "Virtual try-on from the command line",
	Long:          "dressup dresses a person photo in garment images or descriptions, one provider edit per garment, without running the API.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if path := viper.GetString("config"); path != "" {
			viper.SetConfigFile(path)
			if err := viper.ReadInConfig(); err != nil {
				return fmt.Errorf("read config %s: %w", path, err)
			}
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("DRESSUP")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("openai-api-key", "DRESSUP_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = viper.BindEnv("gemini-api-key", "DRESSUP_GEMINI_API_KEY", "GEMINI_API_KEY")
	_ = viper.BindEnv("qwen-api-key", "DRESSUP_QWEN_API_KEY", "QWEN_API_KEY")
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "YAML config file")
	flags.String("provider", providers.OpenAI, "image provider (openai, gemini, qwen)")
	flags.Duration("timeout", 2*time.Minute, "per step provider timeout")
	flags.String("storage-path", "./storage", "gallery directory")
	flags.String("owner", "local", "gallery owner id")
	flags.String("language", imagegen.DefaultDescriptionLanguage, "description language")
	flags.Bool("json", false, "output JSON")
	flags.BoolP("verbose", "v", false, "debug logging")
	for _, name := range []string{"config", "provider", "timeout", "storage-path", "owner", "language", "json", "verbose"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(composeCmd())
	rootCmd.AddCommand(describeCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(galleryCmd())
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if viper.GetBool("verbose") {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().
		Timestamp().
		Str("cmd", "dressup").
		Logger()
}

// buildModels wires the provider set from flags, config file and environment.
func buildModels(ctx context.Context, logger *zerolog.Logger) (*providers.Set, error) {
	return providers.Build(ctx, providers.Settings{
		Provider:            viper.GetString("provider"),
		OpenAIAPIKey:        viper.GetString("openai-api-key"),
		OpenAIBaseURL:       viper.GetString("openai-base-url"),
		OpenAIImageModel:    viper.GetString("openai-image-model"),
		OpenAIImageSize:     viper.GetString("openai-image-size"),
		OpenAIImageQuality:  viper.GetString("openai-image-quality"),
		OpenAIInputFidelity: viper.GetString("openai-input-fidelity"),
		OpenAIChatModel:     viper.GetString("openai-chat-model"),
		GeminiAPIKey:        viper.GetString("gemini-api-key"),
		GeminiImageModel:    viper.GetString("gemini-image-model"),
		GeminiVisionModel:   viper.GetString("gemini-vision-model"),
		QwenAPIKey:          viper.GetString("qwen-api-key"),
		QwenBaseURL:         viper.GetString("qwen-base-url"),
		QwenImageModel:      viper.GetString("qwen-image-model"),
		Timeout:             viper.GetDuration("timeout"),
		TempDir:             viper.GetString("temp-dir"),
	}, nil, logger)
}

func openGallery() (*gallery.FileStore, error) {
	return gallery.NewFileStore(viper.GetString("storage-path"))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
