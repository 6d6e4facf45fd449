package config

import (
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	AnthropicAPIKey string `envconfig:"ANTHROPIC_API_KEY"`
	AnthropicModel  string `envconfig:"ANTHROPIC_MODEL" default:"claude-sonnet-4-5-20250929"`

	SupermemoryAPIKey string `envconfig:"SUPERMEMORY_API_KEY"`
	SupermemoryAPIURL string `envconfig:"SUPERMEMORY_API_URL" default:"https://api.supermemory.ai"`

	CanvasToken  string `envconfig:"CANVAS_TOKEN"`
	CanvasAPIURL string `envconfig:"CANVAS_API_URL" default:"https://canvas.instructure.com/api/v1"`

	// Origins allowed to call the API from a browser.
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:5173,http://localhost:3000"`

	UploadDir string `envconfig:"UPLOAD_DIR" default:"uploads"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"studybuddy-materials"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	// Enables the placeholder web-search fallback when no real integration exists.
	WebSearchStub bool `envconfig:"WEB_SEARCH_STUB" default:"true"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("STUDYBUDDY", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasAnthropic() bool {
	return c.AnthropicAPIKey != ""
}

func (c *Config) HasSupermemory() bool {
	return c.SupermemoryAPIKey != ""
}

func (c *Config) HasCanvas() bool {
	return c.CanvasToken != ""
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}
