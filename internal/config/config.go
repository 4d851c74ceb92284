package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. XRAY_SERVER_PORT.
const EnvPrefix = "XRAY"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Model     ModelConfig     `mapstructure:"model"`
	Inference InferenceConfig `mapstructure:"inference"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Report    ReportConfig    `mapstructure:"report"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	PublicBaseURL   string        `mapstructure:"public_base_url"`
	AllowedOrigin   string        `mapstructure:"allowed_origin"`
}

type ModelConfig struct {
	Path         string   `mapstructure:"path"`
	MetadataPath string   `mapstructure:"metadata_path"`
	LibraryPath  string   `mapstructure:"library_path"`
	Labels       []string `mapstructure:"labels"`
	ImageSize    int      `mapstructure:"image_size"`
}

type InferenceConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type UploadConfig struct {
	Dir     string `mapstructure:"dir"`
	MaxSize int64  `mapstructure:"max_size"`
	// MaxPixels bounds the declared width*height of an uploaded image.
	MaxPixels int64 `mapstructure:"max_pixels"`
}

type ReportConfig struct {
	Dir   string `mapstructure:"dir"`
	Title string `mapstructure:"title"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// Load reads an optional YAML file at configPath, then .env, then XRAY_*
// environment variables. A missing file is not an error.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil && !isNotFound(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Plain PORT is what most hosting platforms set.
	if port := os.Getenv("PORT"); port != "" && os.Getenv(EnvPrefix+"_SERVER_PORT") == "" {
		cfg.Server.Port = ":" + port
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func isNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.public_base_url", "")
	v.SetDefault("server.allowed_origin", "*")

	v.SetDefault("model.path", "models/pneumonia.onnx")
	v.SetDefault("model.metadata_path", "models/model_metadata.json")
	v.SetDefault("model.library_path", "")
	v.SetDefault("model.labels", []string{"Normal", "Pneumonia"})
	v.SetDefault("model.image_size", 128)

	v.SetDefault("inference.timeout", 30*time.Second)

	v.SetDefault("upload.dir", "static/uploads")
	v.SetDefault("upload.max_size", 10*1024*1024)
	v.SetDefault("upload.max_pixels", 40_000_000)

	v.SetDefault("report.dir", "static/reports")
	v.SetDefault("report.title", "Chest X-Ray Analysis Report")

	v.SetDefault("database.path", "data/reports.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if len(c.Model.Labels) < 2 {
		return fmt.Errorf("model.labels needs at least 2 labels, got %d", len(c.Model.Labels))
	}
	if c.Model.ImageSize <= 0 {
		return fmt.Errorf("model.image_size must be positive, got %d", c.Model.ImageSize)
	}
	if c.Upload.MaxSize <= 0 {
		return fmt.Errorf("upload.max_size must be positive, got %d", c.Upload.MaxSize)
	}
	if c.Upload.MaxPixels <= 0 {
		return fmt.Errorf("upload.max_pixels must be positive, got %d", c.Upload.MaxPixels)
	}
	if c.Server.Port == "" {
		return errors.New("server.port is empty")
	}
	return nil
}
