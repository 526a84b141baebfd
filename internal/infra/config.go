package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	JWTSecret          string
	CORSAllowedOrigins []string
	GeoIPDBPath        string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
	MaxUploadBytes     int64

	ImageProvider       string
	OpenAIAPIKey        string
	OpenAIBaseURL       string
	OpenAIImageModel    string
	OpenAIImageSize     string
	OpenAIImageQuality  string
	OpenAIInputFidelity string
	OpenAIChatModel     string
	GeminiAPIKey        string
	GeminiImageModel    string
	GeminiVisionModel   string
	QwenAPIKey          string
	QwenBaseURL         string
	QwenImageModel      string
	ProviderTimeout     time.Duration
	ProviderRatePerMin  int

	RefusalPolicy       string
	LookParallelism     int
	DescriptionLanguage string
	DescriptionCacheTTL time.Duration
	TempDir             string

	GalleryBackend string
	StoragePath    string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	RedisAddr     string
	RedisPassword string
	RedisUseTLS   bool
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 30)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 300)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		MaxUploadBytes:     int64(getEnvInt("MAX_UPLOAD_MB", 25)) << 20,

		ImageProvider:       strings.ToLower(getEnv("IMAGE_PROVIDER", "openai")),
		OpenAIAPIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:       getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIImageModel:    getEnv("OPENAI_IMAGE_MODEL", "gpt-image-1"),
		OpenAIImageSize:     getEnv("OPENAI_IMAGE_SIZE", "1024x1536"),
		OpenAIImageQuality:  getEnv("OPENAI_IMAGE_QUALITY", "high"),
		OpenAIInputFidelity: getEnv("OPENAI_INPUT_FIDELITY", "high"),
		OpenAIChatModel:     getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		GeminiAPIKey:        os.Getenv("GEMINI_API_KEY"),
		GeminiImageModel:    getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
		GeminiVisionModel:   getEnv("GEMINI_VISION_MODEL", "gemini-2.0-flash"),
		QwenAPIKey:          os.Getenv("QWEN_API_KEY"),
		QwenBaseURL:         getEnv("QWEN_BASE_URL", "https://dashscope-intl.aliyuncs.com/api/v1"),
		QwenImageModel:      getEnv("QWEN_IMAGE_MODEL", "qwen-image-edit-plus"),
		ProviderTimeout:     time.Second * time.Duration(getEnvInt("PROVIDER_TIMEOUT_SECONDS", 120)),
		ProviderRatePerMin:  getEnvInt("PROVIDER_RATE_PER_MINUTE", 0),

		RefusalPolicy:       strings.ToLower(getEnv("REFUSAL_POLICY", "abort")),
		LookParallelism:     getEnvInt("LOOK_PARALLELISM", 2),
		DescriptionLanguage: getEnv("DESCRIPTION_LANGUAGE", "pt-BR"),
		DescriptionCacheTTL: time.Minute * time.Duration(getEnvInt("DESCRIPTION_CACHE_MINUTES", 30)),
		TempDir:             os.Getenv("TEMP_DIR"),

		GalleryBackend: strings.ToLower(getEnv("GALLERY_BACKEND", "fs")),
		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		MinioEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "dressup-gallery"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisUseTLS:   getEnvBool("REDIS_USE_TLS", false),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	switch cfg.GalleryBackend {
	case "fs":
	case "minio":
		if cfg.MinioEndpoint == "" {
			return nil, fmt.Errorf("MINIO_ENDPOINT is required when GALLERY_BACKEND=minio")
		}
	default:
		return nil, fmt.Errorf("GALLERY_BACKEND must be fs or minio, got %q", cfg.GalleryBackend)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
