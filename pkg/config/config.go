// Package config は環境変数と .env ファイルからアプリケーション設定を読み込みます。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定です。
type Config struct {
	APIKey string `env:"GOOGLE_API_KEY"`
	Model  string `env:"MODEL_NAME" envDefault:"gemini-2.5-flash"`
	Addr   string `env:"AUTOSAGE_ADDR" envDefault:":8501"`

	MaxAttempts    int           `env:"AUTOSAGE_MAX_ATTEMPTS" envDefault:"3"`
	RetryBaseDelay time.Duration `env:"AUTOSAGE_RETRY_BASE_DELAY" envDefault:"10s"`

	MaxUploadBytes     int64 `env:"AUTOSAGE_MAX_UPLOAD_BYTES" envDefault:"20971520"`
	PreviewMaxDim      int   `env:"AUTOSAGE_PREVIEW_MAX_DIM" envDefault:"640"`
	CompressImages     bool  `env:"AUTOSAGE_COMPRESS_IMAGES" envDefault:"false"`
	CompressionQuality int   `env:"AUTOSAGE_COMPRESSION_QUALITY" envDefault:"75"`

	LogLevel  string `env:"AUTOSAGE_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"AUTOSAGE_LOG_FORMAT" envDefault:"text"`
}

// Load は .env ファイル（存在する場合）を読み込んだ後、環境変数から Config を生成します。
// files を省略した場合はカレントディレクトリの .env を対象にします。
// 既に設定済みの環境変数は .env の値で上書きされません。
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("%s の読み込みに失敗しました: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("環境変数の解析に失敗しました: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate は設定値の範囲を検証します。API キーの有無は検証しません。
func (c *Config) Validate() error {
	var errs []error
	if c.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("AUTOSAGE_MAX_ATTEMPTS must be >= 1: %d", c.MaxAttempts))
	}
	if c.RetryBaseDelay < 0 {
		errs = append(errs, fmt.Errorf("AUTOSAGE_RETRY_BASE_DELAY must not be negative: %s", c.RetryBaseDelay))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("AUTOSAGE_MAX_UPLOAD_BYTES must be positive: %d", c.MaxUploadBytes))
	}
	if c.PreviewMaxDim <= 0 {
		errs = append(errs, fmt.Errorf("AUTOSAGE_PREVIEW_MAX_DIM must be positive: %d", c.PreviewMaxDim))
	}
	if c.CompressionQuality < 1 || c.CompressionQuality > 100 {
		errs = append(errs, fmt.Errorf("AUTOSAGE_COMPRESSION_QUALITY must be between 1 and 100: %d", c.CompressionQuality))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("AUTOSAGE_LOG_FORMAT must be text or json: %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// HasAPIKey は API キーが設定されているかを返します。
func (c *Config) HasAPIKey() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// SlogLevel は LogLevel を slog.Level に変換します。
func (c *Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("AUTOSAGE_LOG_LEVEL is invalid: %w", err)
	}
	return lvl, nil
}
