package config

import (
	"log"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"storybook-server/internal/logger"
)

// Config is the full application configuration, loaded once at startup.
type Config struct {
	AppEnv     string `env:"APP_ENV" env-default:"development"`
	Logger     logger.Config
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	AI         AIConfig
	Images     ImageConfig
	Storage    StorageConfig
	Economy    EconomyConfig
	Generation GenerationConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string   `env:"SERVER_PORT" env-default:"8080"`
	AllowedOrigins  []string `env:"CORS_ALLOWED_ORIGINS" env-default:"http://localhost:3000"`
	ShutdownTimeout int      `env:"SERVER_SHUTDOWN_TIMEOUT_SEC" env-default:"15"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL string `env:"DATABASE_URL" env-required:"true"`
}

// RedisConfig holds settings for the token store.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD" env-default:""`
	DB       int    `env:"REDIS_DB" env-default:"0"`
}

// JWTConfig holds token signing settings.
type JWTConfig struct {
	Secret            string `env:"JWT_SECRET" env-required:"true"`
	AccessTTLMinutes  int    `env:"JWT_ACCESS_TTL_MIN" env-default:"30"`
	RefreshTTLMinutes int    `env:"JWT_REFRESH_TTL_MIN" env-default:"10080"` // 7 days
}

// AIConfig holds settings for the text-generation provider.
type AIConfig struct {
	APIKey     string `env:"OPENAI_API_KEY" env-default:""`
	BaseURL    string `env:"OPENAI_BASE_URL" env-default:""`
	Model      string `env:"OPENAI_MODEL" env-default:"gpt-4o-mini"`
	TimeoutSec int    `env:"AI_TIMEOUT_SEC" env-default:"120"`
}

// ImageConfig holds settings for the image-generation provider and the
// placeholder fallback.
type ImageConfig struct {
	APIKey             string `env:"IMAGE_API_KEY" env-default:""`
	Model              string `env:"IMAGE_MODEL" env-default:"dall-e-3"`
	Size               string `env:"IMAGE_SIZE" env-default:"1024x1024"`
	TimeoutSec         int    `env:"IMAGE_TIMEOUT_SEC" env-default:"120"`
	DownloadTimeoutSec int    `env:"IMAGE_DOWNLOAD_TIMEOUT_SEC" env-default:"30"`
	PromptStyleSuffix  string `env:"IMAGE_PROMPT_STYLE_SUFFIX" env-default:", children's book illustration, warm and friendly, soft watercolor style, bright colors, no text"`
	PlaceholderBaseURL string `env:"PLACEHOLDER_BASE_URL" env-default:"https://placehold.co"`
	PlaceholderWidth   int    `env:"PLACEHOLDER_WIDTH" env-default:"1024"`
	PlaceholderHeight  int    `env:"PLACEHOLDER_HEIGHT" env-default:"1024"`
}

// StorageConfig selects and configures the durable blob backend.
// Mode "none" is a valid offline mode in which inline images are served as-is.
type StorageConfig struct {
	Mode            string `env:"STORAGE_MODE" env-default:"none"` // none, local, gcs
	LocalPath       string `env:"STORAGE_LOCAL_PATH" env-default:"./data/images"`
	PublicBaseURL   string `env:"STORAGE_PUBLIC_BASE_URL" env-default:""`
	Bucket          string `env:"STORAGE_GCS_BUCKET" env-default:""`
	CredentialsPath string `env:"STORAGE_GCS_CREDENTIALS_PATH" env-default:""`
	JPEGQuality     int    `env:"STORAGE_JPEG_QUALITY" env-default:"80"`
}

// EconomyConfig holds the coin economy constants. Injected into the ledger,
// user and story services rather than read as ambient state.
type EconomyConfig struct {
	AnonymousStartingCoins int64 `env:"ECONOMY_ANONYMOUS_STARTING_COINS" env-default:"50"`
	RegistrationBonus      int64 `env:"ECONOMY_REGISTRATION_BONUS" env-default:"100"`
	ReferralBonus          int64 `env:"ECONOMY_REFERRAL_BONUS" env-default:"0"` // 0 disables referrer payout
	CostPerPage            int64 `env:"ECONOMY_COST_PER_PAGE" env-default:"10"`
}

// GenerationConfig bounds the per-story generation work.
type GenerationConfig struct {
	MaxConcurrentImages int `env:"GENERATION_MAX_CONCURRENT_IMAGES" env-default:"4"`
}

// Load reads configuration from the environment and an optional .env file.
func Load() *Config {
	// Missing .env is fine; env vars win either way.
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	return &cfg
}
