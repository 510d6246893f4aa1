// Package config assembles runtime settings for calsnap. Values are layered:
// built-in defaults, then an optional YAML file, then environment variables.
// Command-line flags are applied last by the cobra commands.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFile is read when present and no explicit path is given.
const DefaultFile = "calsnap.yaml"

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Uploads  UploadsConfig  `yaml:"uploads"`
	OCR      OCRConfig      `yaml:"ocr"`
	Parser   ParserConfig   `yaml:"parser"`
	LLM      LLMConfig      `yaml:"llm"`
	Google   GoogleConfig   `yaml:"google"`
	Session  SessionConfig  `yaml:"session"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	LogLevel string         `yaml:"log_level"`
}

type ServerConfig struct {
	Port      string `yaml:"port"`
	PublicURL string `yaml:"public_url"`
	StaticDir string `yaml:"static_dir"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"` // sqlite, memory
	DSN    string `yaml:"dsn"`
}

type UploadsConfig struct {
	Backend  string   `yaml:"backend"` // disk, s3
	Dir      string   `yaml:"dir"`
	MaxBytes int64    `yaml:"max_bytes"`
	S3       S3Config `yaml:"s3"`
}

type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Prefix    string `yaml:"prefix"`
}

type OCRConfig struct {
	Provider string `yaml:"provider"` // vision, openai, ollama, gemini
	Model    string `yaml:"model"`
}

type ParserConfig struct {
	Provider    string  `yaml:"provider"` // openai, ollama, gemini
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	SendImage   bool    `yaml:"send_image"`
}

// LLMConfig holds provider credentials shared by OCR and parsing.
type LLMConfig struct {
	OpenAIKey   string `yaml:"openai_api_key"`
	OpenAIModel string `yaml:"openai_model"`
	OllamaURL   string `yaml:"ollama_url"`
	OllamaModel string `yaml:"ollama_model"`
	GeminiKey   string `yaml:"gemini_api_key"`
	GeminiModel string `yaml:"gemini_model"`
}

type GoogleConfig struct {
	ClientID         string `yaml:"client_id"`
	ClientSecret     string `yaml:"client_secret"`
	RedirectURL      string `yaml:"redirect_url"`
	CalendarID       string `yaml:"calendar_id"`
	Timezone         string `yaml:"timezone"`
	CloudCredentials string `yaml:"cloud_credentials"`
	VisionAPIKey     string `yaml:"vision_api_key"`
}

type SessionConfig struct {
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
}

type PipelineConfig struct {
	JobTimeout      time.Duration `yaml:"job_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoadDefaults populates c with development defaults.
func (c *Config) LoadDefaults() {
	c.Server = ServerConfig{Port: "5000", PublicURL: "http://localhost:5000"}
	c.Storage = StorageConfig{Driver: "sqlite", DSN: "calsnap.db"}
	c.Uploads = UploadsConfig{
		Backend:  "disk",
		Dir:      "uploads",
		MaxBytes: 10 * 1024 * 1024,
		S3:       S3Config{Region: "us-east-1", Prefix: "uploads/"},
	}
	c.OCR = OCRConfig{Provider: "vision"}
	c.Parser = ParserConfig{Provider: "openai", Temperature: 0.1, SendImage: true}
	c.LLM = LLMConfig{
		OpenAIModel: "gpt-4o",
		OllamaURL:   "http://localhost:11434",
		OllamaModel: "mistral-small3.2:24b",
		GeminiModel: "gemini-1.5-flash",
	}
	c.Google = GoogleConfig{CalendarID: "primary", Timezone: "UTC"}
	c.Session = SessionConfig{Secret: "calsnap-dev-secret", TTL: 30 * 24 * time.Hour}
	c.Pipeline = PipelineConfig{ShutdownTimeout: 30 * time.Second}
	c.LogLevel = "info"
}

// Load builds a Config from defaults, the YAML file at path (or DefaultFile
// when path is empty and the file exists) and the environment.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if err := cfg.loadFile(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	cfg.loadEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() {
	setString(&c.Server.Port, "PORT")
	setString(&c.Server.PublicURL, "PUBLIC_URL")
	setString(&c.Server.StaticDir, "STATIC_DIR")

	setString(&c.Storage.Driver, "CALSNAP_STORE")
	setString(&c.Storage.DSN, "CALSNAP_DSN")

	setString(&c.Uploads.Backend, "UPLOAD_BACKEND")
	setString(&c.Uploads.Dir, "UPLOAD_DIR")
	if v := os.Getenv("UPLOAD_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Uploads.MaxBytes = n
		}
	}
	setString(&c.Uploads.S3.Bucket, "S3_BUCKET")
	setString(&c.Uploads.S3.Region, "S3_REGION")
	setString(&c.Uploads.S3.Endpoint, "S3_ENDPOINT")
	setString(&c.Uploads.S3.AccessKey, "S3_ACCESS_KEY")
	setString(&c.Uploads.S3.SecretKey, "S3_SECRET_KEY")

	setString(&c.OCR.Provider, "OCR_PROVIDER")
	setString(&c.OCR.Model, "OCR_MODEL")
	setString(&c.Parser.Provider, "PARSER_PROVIDER")
	setString(&c.Parser.Model, "PARSER_MODEL")

	setString(&c.LLM.OpenAIKey, "OPENAI_API_KEY")
	setString(&c.LLM.OpenAIModel, "OPENAI_MODEL")
	setString(&c.LLM.OllamaURL, "OLLAMA_HOST")
	setString(&c.LLM.OllamaURL, "OLLAMA_URL")
	setString(&c.LLM.OllamaModel, "OLLAMA_MODEL")
	setString(&c.LLM.GeminiKey, "GEMINI_API_KEY")
	setString(&c.LLM.GeminiModel, "GEMINI_MODEL")

	setString(&c.Google.ClientID, "GOOGLE_CLIENT_ID")
	setString(&c.Google.ClientSecret, "GOOGLE_CLIENT_SECRET")
	setString(&c.Google.RedirectURL, "GOOGLE_REDIRECT_URI")
	setString(&c.Google.CalendarID, "CALENDAR_ID")
	setString(&c.Google.Timezone, "CALENDAR_TIMEZONE")
	setString(&c.Google.CloudCredentials, "GOOGLE_CLOUD_CREDENTIALS")
	setString(&c.Google.VisionAPIKey, "GOOGLE_VISION_API_KEY")

	setString(&c.Session.Secret, "SESSION_SECRET")
	setString(&c.LogLevel, "LOG_LEVEL")
}

// setString overwrites dst with the environment value when it is non-empty.
func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate rejects settings that cannot be wired.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unsupported storage driver: %s", c.Storage.Driver)
	}
	switch c.Uploads.Backend {
	case "disk":
	case "s3":
		if c.Uploads.S3.Bucket == "" {
			return fmt.Errorf("uploads.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unsupported upload backend: %s", c.Uploads.Backend)
	}
	switch c.OCR.Provider {
	case "vision", "openai", "ollama", "gemini":
	default:
		return fmt.Errorf("unsupported OCR provider: %s", c.OCR.Provider)
	}
	switch c.Parser.Provider {
	case "openai", "ollama", "gemini":
	default:
		return fmt.Errorf("unsupported parser provider: %s", c.Parser.Provider)
	}
	if c.Uploads.MaxBytes <= 0 {
		return fmt.Errorf("uploads.max_bytes must be positive")
	}
	if _, err := time.LoadLocation(c.Google.Timezone); err != nil {
		return fmt.Errorf("invalid calendar timezone %q: %w", c.Google.Timezone, err)
	}
	return nil
}

// RedirectURL is the OAuth callback URL, derived from the public URL unless set.
func (c *Config) RedirectURL() string {
	if c.Google.RedirectURL != "" {
		return c.Google.RedirectURL
	}
	return c.Server.PublicURL + "/auth/google/callback"
}

// DefaultModel returns the configured model for an LLM provider.
func (c *Config) DefaultModel(provider string) string {
	switch provider {
	case "openai":
		return c.LLM.OpenAIModel
	case "ollama":
		return c.LLM.OllamaModel
	case "gemini":
		return c.LLM.GeminiModel
	default:
		return ""
	}
}
