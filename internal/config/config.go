// Package config assembles the renderhub runtime settings.
//
// Values come from three layers, later ones winning: built-in defaults, an
// optional YAML file (RENDERHUB_CONFIG, with ${VAR} expansion) and the process
// environment, which may itself be seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage provider names.
const (
	ProviderNone    = "none"
	ProviderS3      = "s3"
	ProviderLocalFS = "localfs"
	ProviderGDrive  = "gdrive"
)

// S3 URL modes.
const (
	URLModePublic    = "public"
	URLModePresigned = "presigned"
)

// Config is the root configuration.
type Config struct {
	HTTP     HTTPConfig    `yaml:"http"`
	Log      LogConfig     `yaml:"log"`
	Render   RenderConfig  `yaml:"render"`
	Storage  StorageConfig `yaml:"storage"`
	Webhook  WebhookConfig `yaml:"webhook"`
	Sinks    SinkConfig    `yaml:"sinks"`
	Shutdown time.Duration `yaml:"shutdownTimeout"`
}

type HTTPConfig struct {
	Port           string        `yaml:"port"`
	PublicBaseURL  string        `yaml:"publicBaseUrl"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
	WriteTimeout   time.Duration `yaml:"writeTimeout"`
	IdleTimeout    time.Duration `yaml:"idleTimeout"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	CORSOrigins    []string      `yaml:"corsAllowedOrigins"`
	RateLimitRPS   float64       `yaml:"rateLimitRps"`
	RateLimitBurst int           `yaml:"rateLimitBurst"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	BufferSize int    `yaml:"bufferSize"`
}

type RenderConfig struct {
	RendererBaseURL string `yaml:"rendererBaseUrl"`
	RendersDir      string `yaml:"rendersDir"`
	Codec           string `yaml:"codec"`
	RetainCancelled bool   `yaml:"retainCancelled"`
}

type StorageConfig struct {
	Provider       string       `yaml:"provider"`
	UploadRequired bool         `yaml:"uploadRequired"`
	KeyPrefix      string       `yaml:"keyPrefix"`
	S3             S3Config     `yaml:"s3"`
	Local          LocalConfig  `yaml:"local"`
	GDrive         GDriveConfig `yaml:"gdrive"`
}

type S3Config struct {
	Bucket     string        `yaml:"bucket"`
	Region     string        `yaml:"region"`
	URLMode    string        `yaml:"urlMode"`
	PresignTTL time.Duration `yaml:"presignTtl"`
}

type LocalConfig struct {
	Root    string `yaml:"root"`
	BaseURL string `yaml:"baseUrl"`
}

type GDriveConfig struct {
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
	RefreshToken string `yaml:"refreshToken"`
	FolderID     string `yaml:"folderId"`
}

type WebhookConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int           `yaml:"concurrency"`
	RedisAddr   string        `yaml:"redisAddr"`
	RedisKey    string        `yaml:"redisKey"`
}

// SinkConfig enables optional log entry sinks. Empty values disable them.
type SinkConfig struct {
	DatabaseURL  string `yaml:"databaseUrl"`
	AMQPURL      string `yaml:"amqpUrl"`
	AMQPExchange string `yaml:"amqpExchange"`

	// CloudWatchGroup enables the CloudWatch Logs mirror. The region is
	// AWS_REGION.
	CloudWatchGroup  string `yaml:"cloudWatchGroup"`
	CloudWatchStream string `yaml:"cloudWatchStream"`
}

// Load builds the configuration. path overrides RENDERHUB_CONFIG; when both
// are empty no YAML file is read.
func Load(path string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	var cfg Config
	if path == "" {
		path = os.Getenv("RENDERHUB_CONFIG")
	}
	if path != "" {
		if err := loadYAML(filepath.Clean(path), &cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path) // #nosec G304 - operator-supplied config path
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var errs envErrors

	envString("HTTP_PORT", &cfg.HTTP.Port)
	envString("PORT", &cfg.HTTP.Port)
	envString("PUBLIC_BASE_URL", &cfg.HTTP.PublicBaseURL)
	errs.add(envDuration("HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout))
	errs.add(envDuration("HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout))
	errs.add(envDuration("HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout))
	errs.add(envDuration("HTTP_REQUEST_TIMEOUT", &cfg.HTTP.RequestTimeout))
	envList("CORS_ALLOWED_ORIGINS", &cfg.HTTP.CORSOrigins)
	errs.add(envFloat("RATE_LIMIT_RPS", &cfg.HTTP.RateLimitRPS))
	errs.add(envInt("RATE_LIMIT_BURST", &cfg.HTTP.RateLimitBurst))

	envString("LOG_LEVEL", &cfg.Log.Level)
	envString("LOG_FORMAT", &cfg.Log.Format)
	errs.add(envInt("LOG_BUFFER_SIZE", &cfg.Log.BufferSize))

	envString("RENDERER_HTTP_BASEURL", &cfg.Render.RendererBaseURL)
	envString("RENDERS_DIR", &cfg.Render.RendersDir)
	envString("RENDER_CODEC", &cfg.Render.Codec)
	errs.add(envBool("RENDER_RETAIN_CANCELLED", &cfg.Render.RetainCancelled))

	envString("STORAGE_PROVIDER", &cfg.Storage.Provider)
	errs.add(envBool("UPLOAD_REQUIRED", &cfg.Storage.UploadRequired))
	envString("S3_KEY_PREFIX", &cfg.Storage.KeyPrefix)
	envString("S3_BUCKET", &cfg.Storage.S3.Bucket)
	envString("AWS_REGION", &cfg.Storage.S3.Region)
	envString("S3_URL_MODE", &cfg.Storage.S3.URLMode)
	errs.add(envDuration("S3_PRESIGN_TTL", &cfg.Storage.S3.PresignTTL))
	envString("STORAGE_LOCAL_ROOT", &cfg.Storage.Local.Root)
	envString("STORAGE_LOCAL_BASEURL", &cfg.Storage.Local.BaseURL)
	envString("GDRIVE_CLIENT_ID", &cfg.Storage.GDrive.ClientID)
	envString("GDRIVE_CLIENT_SECRET", &cfg.Storage.GDrive.ClientSecret)
	envString("GDRIVE_REFRESH_TOKEN", &cfg.Storage.GDrive.RefreshToken)
	envString("GDRIVE_FOLDER_ID", &cfg.Storage.GDrive.FolderID)

	errs.add(envDuration("WEBHOOK_TIMEOUT", &cfg.Webhook.Timeout))
	errs.add(envInt("WEBHOOK_CONCURRENCY", &cfg.Webhook.Concurrency))
	envString("WEBHOOK_REDIS_ADDR", &cfg.Webhook.RedisAddr)
	envString("WEBHOOK_REDIS_KEY", &cfg.Webhook.RedisKey)

	envString("LOG_SINK_DATABASE_URL", &cfg.Sinks.DatabaseURL)
	envString("LOG_SINK_AMQP_URL", &cfg.Sinks.AMQPURL)
	envString("LOG_SINK_AMQP_EXCHANGE", &cfg.Sinks.AMQPExchange)
	envString("CLOUDWATCH_LOG_GROUP", &cfg.Sinks.CloudWatchGroup)
	envString("CLOUDWATCH_LOG_STREAM", &cfg.Sinks.CloudWatchStream)

	errs.add(envDuration("SHUTDOWN_TIMEOUT", &cfg.Shutdown))

	return errs.err()
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Port == "" {
		cfg.HTTP.Port = "8989"
	}
	if cfg.HTTP.PublicBaseURL == "" {
		cfg.HTTP.PublicBaseURL = "http://localhost:" + cfg.HTTP.Port
	}
	cfg.HTTP.PublicBaseURL = strings.TrimRight(cfg.HTTP.PublicBaseURL, "/")
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 60 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.RequestTimeout == 0 {
		cfg.HTTP.RequestTimeout = 30 * time.Second
	}
	if len(cfg.HTTP.CORSOrigins) == 0 {
		cfg.HTTP.CORSOrigins = []string{"*"}
	}
	if cfg.HTTP.RateLimitRPS == 0 {
		cfg.HTTP.RateLimitRPS = 10
	}
	if cfg.HTTP.RateLimitBurst == 0 {
		cfg.HTTP.RateLimitBurst = 20
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Log.BufferSize <= 0 {
		cfg.Log.BufferSize = 200
	}

	if cfg.Render.RendererBaseURL == "" {
		cfg.Render.RendererBaseURL = "http://localhost:3000"
	}
	cfg.Render.RendererBaseURL = strings.TrimRight(cfg.Render.RendererBaseURL, "/")
	if cfg.Render.RendersDir == "" {
		cfg.Render.RendersDir = "renders"
	}
	if cfg.Render.Codec == "" {
		cfg.Render.Codec = "h264"
	}

	if cfg.Storage.Provider == "" {
		cfg.Storage.Provider = ProviderS3
	}
	cfg.Storage.Provider = strings.ToLower(cfg.Storage.Provider)
	if cfg.Storage.KeyPrefix == "" {
		cfg.Storage.KeyPrefix = "renders"
	}
	cfg.Storage.KeyPrefix = strings.Trim(cfg.Storage.KeyPrefix, "/")
	if cfg.Storage.S3.Region == "" {
		cfg.Storage.S3.Region = "us-east-1"
	}
	if cfg.Storage.S3.URLMode == "" {
		cfg.Storage.S3.URLMode = URLModePublic
	}
	if cfg.Storage.S3.PresignTTL == 0 {
		cfg.Storage.S3.PresignTTL = 15 * time.Minute
	}
	if cfg.Storage.Local.Root == "" {
		cfg.Storage.Local.Root = "artifacts"
	}
	if cfg.Storage.Local.BaseURL == "" {
		cfg.Storage.Local.BaseURL = cfg.HTTP.PublicBaseURL + "/artifacts"
	}

	if cfg.Webhook.Timeout == 0 {
		cfg.Webhook.Timeout = 5 * time.Second
	}
	if cfg.Webhook.Concurrency <= 0 {
		cfg.Webhook.Concurrency = 8
	}
	if cfg.Webhook.RedisKey == "" {
		cfg.Webhook.RedisKey = "renderhub:webhooks"
	}

	if cfg.Sinks.AMQPExchange == "" {
		cfg.Sinks.AMQPExchange = "renderhub.logs"
	}
	if cfg.Sinks.CloudWatchStream == "" {
		cfg.Sinks.CloudWatchStream = "default-stream"
	}

	if cfg.Shutdown == 0 {
		cfg.Shutdown = 30 * time.Second
	}
}

// Validate rejects settings that cannot work together.
func (c *Config) Validate() error {
	switch c.Storage.Provider {
	case ProviderNone, ProviderS3, ProviderLocalFS, ProviderGDrive:
	default:
		return fmt.Errorf("storage.provider: unknown provider %q", c.Storage.Provider)
	}
	switch c.Storage.S3.URLMode {
	case URLModePublic, URLModePresigned:
	default:
		return fmt.Errorf("storage.s3.urlMode: must be %q or %q", URLModePublic, URLModePresigned)
	}
	if c.Storage.UploadRequired && c.Storage.Provider == ProviderNone {
		return fmt.Errorf("storage.uploadRequired: no storage provider configured")
	}
	if c.Log.BufferSize < 1 {
		return fmt.Errorf("log.bufferSize: must be positive")
	}
	if c.HTTP.RateLimitRPS < 0 {
		return fmt.Errorf("http.rateLimitRps: must not be negative")
	}
	return nil
}

// StorageMissing explains why no artifact storage is usable, or returns ""
// when the selected provider has what it needs.
func (c *Config) StorageMissing() string {
	switch c.Storage.Provider {
	case ProviderNone:
		return "STORAGE_PROVIDER is none"
	case ProviderS3:
		if c.Storage.S3.Bucket == "" {
			return "S3_BUCKET is not set"
		}
	case ProviderGDrive:
		g := c.Storage.GDrive
		if g.ClientID == "" || g.ClientSecret == "" || g.RefreshToken == "" {
			return "GDRIVE_CLIENT_ID, GDRIVE_CLIENT_SECRET and GDRIVE_REFRESH_TOKEN are required"
		}
	}
	return ""
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	if strings.Contains(c.HTTP.Port, ":") {
		return c.HTTP.Port
	}
	return ":" + c.HTTP.Port
}
