package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/maykecorrea/dressup/internal/cancel"
	"github.com/maykecorrea/dressup/internal/catalog"
	"github.com/maykecorrea/dressup/internal/gallery"
	"github.com/maykecorrea/dressup/internal/http/handlers"
	"github.com/maykecorrea/dressup/internal/http/httpapi"
	"github.com/maykecorrea/dressup/internal/imagegen"
	"github.com/maykecorrea/dressup/internal/infra"
	"github.com/maykecorrea/dressup/internal/infra/credentials"
	"github.com/maykecorrea/dressup/internal/infra/geoip"
	"github.com/maykecorrea/dressup/internal/providers"
	"github.com/maykecorrea/dressup/internal/stylist"
	"github.com/maykecorrea/dressup/internal/users"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()
	sqlRunner := infra.NewSQLRunner(dbpool, logger)

	set, err := providers.Build(ctx, providers.Settings{
		Provider:            cfg.ImageProvider,
		OpenAIAPIKey:        cfg.OpenAIAPIKey,
		OpenAIBaseURL:       cfg.OpenAIBaseURL,
		OpenAIImageModel:    cfg.OpenAIImageModel,
		OpenAIImageSize:     cfg.OpenAIImageSize,
		OpenAIImageQuality:  cfg.OpenAIImageQuality,
		OpenAIInputFidelity: cfg.OpenAIInputFidelity,
		OpenAIChatModel:     cfg.OpenAIChatModel,
		GeminiAPIKey:        cfg.GeminiAPIKey,
		GeminiImageModel:    cfg.GeminiImageModel,
		GeminiVisionModel:   cfg.GeminiVisionModel,
		QwenAPIKey:          cfg.QwenAPIKey,
		QwenBaseURL:         cfg.QwenBaseURL,
		QwenImageModel:      cfg.QwenImageModel,
		Timeout:             cfg.ProviderTimeout,
		RatePerMinute:       cfg.ProviderRatePerMin,
		TempDir:             cfg.TempDir,
	}, credentials.NewStore(sqlRunner), &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure image provider")
	}

	var cancels cancel.Registry = cancel.NewMemoryRegistry(cancel.DefaultTTL)
	if cfg.RedisAddr != "" {
		rdb, err := infra.NewRedisClient(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer rdb.Close()
		cancels = cancel.NewRedisRegistry(rdb, cancel.DefaultTTL)
	}

	policy, err := imagegen.ParseRefusalPolicy(cfg.RefusalPolicy)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid refusal policy")
	}
	composer, err := imagegen.NewComposer(imagegen.ComposerOptions{
		Editor:          set.Editor,
		Policy:          policy,
		StepTimeout:     cfg.ProviderTimeout,
		LookParallelism: cfg.LookParallelism,
		Cancel:          cancels,
		Logger:          &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build composer")
	}

	store, err := openGallery(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.GalleryBackend).Msg("failed to open gallery")
	}

	cat, err := catalog.Default()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load catalog")
	}

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	defer resolver.Close()

	app := handlers.NewApp(logger, cfg.JWTSecret)
	app.MaxUploadBytes = cfg.MaxUploadBytes
	app.DB = dbpool
	app.Users = users.NewStore(sqlRunner)
	app.Composer = composer
	app.Catalog = cat
	app.Gallery = store
	app.Cancel = cancels
	if set.Vision != nil {
		describer, err := imagegen.NewDescriber(imagegen.DescriberOptions{
			Model:    set.Vision,
			Language: cfg.DescriptionLanguage,
			CacheTTL: cfg.DescriptionCacheTTL,
			Logger:   &logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to build describer")
		}
		app.Describer = describer
	} else {
		logger.Warn().Msg("no vision model configured: garment descriptions disabled")
		app.Describer = unavailableDescriber{}
	}
	if set.JSON != nil {
		app.Stylist = stylist.NewSuggester(set.JSON, &logger)
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:             logger,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMin,
		DefaultLocale:      cfg.DescriptionLanguage,
		CountryLookup:      resolver.Lookup(),
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("provider", set.Editor.Name()).Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

func openGallery(ctx context.Context, cfg *infra.Config) (gallery.Store, error) {
	if cfg.GalleryBackend == "minio" {
		return gallery.NewMinioStore(ctx, gallery.MinioOptions{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	}
	return gallery.NewFileStore(cfg.StoragePath)
}

var errNoVision = errors.New("no vision model configured")

type unavailableDescriber struct{}

func (unavailableDescriber) DescribeIn(context.Context, imagegen.ImageRef, string) (imagegen.DescriptionResult, error) {
	return imagegen.DescriptionResult{}, imagegen.Transport("vision", 0, errNoVision)
}
