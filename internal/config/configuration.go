package config

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	// API Configuration
	APIPort int `mapstructure:"API_PORT"`

	// Database Configuration
	DatabaseDSN     string `mapstructure:"DATABASE_DSN" validate:"required"`
	DatabaseRetries int    `mapstructure:"DATABASE_RETRIES"`

	// Storage Configuration
	StorageDir string `mapstructure:"STORAGE_DIR"`

	// AI Provider Configuration
	GeminiAPIKey   string `mapstructure:"GEMINI_API_KEY"`
	GeminiModel    string `mapstructure:"GEMINI_MODEL"`
	OpenAIBaseURL  string `mapstructure:"OPENAI_BASE_URL"`
	OpenAIAPIKey   string `mapstructure:"OPENAI_API_KEY"`
	FallbackModel  string `mapstructure:"FALLBACK_MODEL"`
	EmbeddingModel string `mapstructure:"EMBEDDING_MODEL"`

	// Worker Configuration
	WorkerID           string `mapstructure:"WORKER_ID"`
	MaxDurationSeconds int    `mapstructure:"MAX_DURATION_SECONDS"`

	// External tool paths
	YtdlpPath    string `mapstructure:"YTDLP_PATH"`
	WhisperPath  string `mapstructure:"WHISPER_PATH"`
	WhisperModel string `mapstructure:"WHISPER_MODEL"`
}

// use reflect to bind environment variables based on mapstructure tags
func bindEnv(c Config) {
	val := reflect.ValueOf(c)
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		fieldVal := val.Field(i)
		tag := field.Tag.Get("mapstructure")

		if tag != "" {
			viper.BindEnv(tag)
		}

		// Handle nested structs
		if field.Type.Kind() == reflect.Struct && tag == "" {
			nestedTyp := fieldVal.Type()
			for j := 0; j < fieldVal.NumField(); j++ {
				nestedField := nestedTyp.Field(j)
				nestedTag := nestedField.Tag.Get("mapstructure")
				if nestedTag != "" {
					viper.BindEnv(nestedTag)
				}
			}
		}
	}
}

func LoadConfig(ctx context.Context) (*Config, error) {
	bindEnv(Config{})
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("API_PORT", 8080)
	viper.SetDefault("DATABASE_RETRIES", 10)
	viper.SetDefault("STORAGE_DIR", "/data")
	viper.SetDefault("GEMINI_MODEL", "gemini-2.0-flash")
	viper.SetDefault("FALLBACK_MODEL", "gpt-4o-mini")
	viper.SetDefault("EMBEDDING_MODEL", "text-embedding-004")
	viper.SetDefault("MAX_DURATION_SECONDS", 600)
	viper.SetDefault("YTDLP_PATH", "yt-dlp")
	viper.SetDefault("WHISPER_PATH", "whisper-cli")

	cfg := Config{}
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	slog.Info("Loaded configuration", "api_port", cfg.APIPort, "storage_dir", cfg.StorageDir)

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}
