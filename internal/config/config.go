package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"feedgen/internal/domain"

	"gopkg.in/yaml.v3"
)

// Config представляет основную конфигурацию генератора фидов.
// Содержит настройки сервера, логгера, приложения, хранилища, источника данных и блокировок.
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Logger   LoggerConfig   `json:"logger" yaml:"logger"`
	App      AppConfig      `json:"app" yaml:"app"`
	Storage  StorageConfig  `json:"storage" yaml:"storage"`
	Catalog  CatalogConfig  `json:"catalog" yaml:"catalog"`
	Database DatabaseConfig `json:"database" yaml:"database"`
	Lock     LockConfig     `json:"lock" yaml:"lock"`
}

// ServerConfig содержит настройки HTTP-сервера, отдающего готовые фиды.
type ServerConfig struct {
	Address string `json:"address" yaml:"address"`
}

// LoggerConfig содержит настройки системы логирования.
// Output: console (stdout/stderr) или file (File и ErrorFile).
type LoggerConfig struct {
	Level     string `json:"level" yaml:"level"`
	Output    string `json:"output" yaml:"output"`
	File      string `json:"file" yaml:"file"`
	ErrorFile string `json:"error_file" yaml:"error_file"`
}

// AppConfig содержит настройки генерации и сжатия фидов.
// Списки ZipFeeds и GzipFeeds задаются независимо от полного набора фидов.
type AppConfig struct {
	SiteURL        string   `json:"site_url" yaml:"site_url"`
	OfferLimit     int      `json:"offer_limit" yaml:"offer_limit"`
	ChunkSize      int      `json:"chunk_size" yaml:"chunk_size"`
	StagingDir     string   `json:"staging_dir" yaml:"staging_dir"`
	ZipFeeds       []string `json:"zip_feeds" yaml:"zip_feeds"`
	GzipFeeds      []string `json:"gzip_feeds" yaml:"gzip_feeds"`
	LockTTL        string   `json:"lock_ttl" yaml:"lock_ttl"`
	UpdateInterval string   `json:"update_interval" yaml:"update_interval"`
	ZipInterval    string   `json:"zip_interval" yaml:"zip_interval"`
	GzipInterval   string   `json:"gzip_interval" yaml:"gzip_interval"`
}

// StorageConfig описывает объектное хранилище: s3 (MinIO/S3) или fs (локальный каталог).
type StorageConfig struct {
	Driver       string `json:"driver" yaml:"driver"`
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
	AccessKey    string `json:"access_key" yaml:"access_key"`
	SecretKey    string `json:"secret_key" yaml:"secret_key"`
	Bucket       string `json:"bucket" yaml:"bucket"`
	Region       string `json:"region" yaml:"region"`
	UseSSL       bool   `json:"use_ssl" yaml:"use_ssl"`
	PublicPolicy bool   `json:"public_policy" yaml:"public_policy"`
	Root         string `json:"root" yaml:"root"`
}

// CatalogConfig описывает источник категорий и предложений: postgres или http.
type CatalogConfig struct {
	Driver  string `json:"driver" yaml:"driver"`
	BaseURL string `json:"base_url" yaml:"base_url"`
	Timeout string `json:"timeout" yaml:"timeout"`
}

// DatabaseConfig содержит параметры подключения к PostgreSQL.
type DatabaseConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DBName   string `json:"dbname" yaml:"dbname"`
	SSLMode  string `json:"sslmode" yaml:"sslmode"`
}

// LockConfig описывает хранилище блокировок команд: redis или file.
type LockConfig struct {
	Driver   string `json:"driver" yaml:"driver"`
	Address  string `json:"address" yaml:"address"`
	Password string `json:"password" yaml:"password"`
	Dir      string `json:"dir" yaml:"dir"`
}

// DSN возвращает строку подключения к PostgreSQL в формате URI.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.Username),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.DBName,
		c.SSLMode)
}

// Load загружает конфигурацию из JSON- или YAML-файла (по расширению .yml/.yaml).
// Незаданные поля получают значения по умолчанию, секреты можно
// переопределить переменными окружения FEEDGEN_*.
func Load(configPath string) (*Config, error) {
	cfg := New()
	fileData, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(fileData, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML from file %s: %w", configPath, err)
		}
	default:
		if err := json.Unmarshal(fileData, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON from file %s: %w", configPath, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("FEEDGEN_STORAGE_SECRET_KEY"); v != "" {
		c.Storage.SecretKey = v
	}
	if v := os.Getenv("FEEDGEN_DATABASE_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("FEEDGEN_LOCK_PASSWORD"); v != "" {
		c.Lock.Password = v
	}
}

// New создает новый экземпляр Config со значениями по умолчанию.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Address: ":8080",
		},
		Logger: LoggerConfig{
			Level:     "info",
			Output:    "console",
			File:      "feedgen.log",
			ErrorFile: "feedgen_error.log",
		},
		App: AppConfig{
			OfferLimit:     500,
			ChunkSize:      1024,
			StagingDir:     os.TempDir(),
			ZipFeeds:       []string{string(domain.FeedExample2)},
			GzipFeeds:      []string{string(domain.FeedExample)},
			LockTTL:        "1h",
			UpdateInterval: "24h",
		},
		Storage: StorageConfig{
			Driver: "s3",
			Bucket: "feeds",
			Root:   "data",
		},
		Catalog: CatalogConfig{
			Driver:  "postgres",
			Timeout: "30s",
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
		},
		Lock: LockConfig{
			Driver: "file",
			Dir:    os.TempDir(),
		},
	}
}

// Validate проверяет корректность конфигурации.
// Возвращает ошибку с описанием первой найденной проблемы.
func (c *Config) Validate() error {
	if _, err := url.ParseRequestURI(c.App.SiteURL); err != nil {
		return fmt.Errorf("invalid app.site_url: %q", c.App.SiteURL)
	}
	if c.App.OfferLimit <= 0 {
		return fmt.Errorf("app.offer_limit must be a positive number")
	}
	if c.App.ChunkSize <= 0 {
		return fmt.Errorf("app.chunk_size must be a positive number")
	}
	if c.App.StagingDir == "" {
		return fmt.Errorf("app.staging_dir is not set")
	}
	if _, err := ParseFeedNames(c.App.ZipFeeds); err != nil {
		return fmt.Errorf("invalid app.zip_feeds: %w", err)
	}
	if _, err := ParseFeedNames(c.App.GzipFeeds); err != nil {
		return fmt.Errorf("invalid app.gzip_feeds: %w", err)
	}
	if _, err := time.ParseDuration(c.App.LockTTL); err != nil {
		return fmt.Errorf("invalid app.lock_ttl: %w", err)
	}
	for key, value := range map[string]string{
		"app.update_interval": c.App.UpdateInterval,
		"app.zip_interval":    c.App.ZipInterval,
		"app.gzip_interval":   c.App.GzipInterval,
	} {
		if _, err := ParseInterval(value); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}
	switch c.Storage.Driver {
	case "s3":
		if c.Storage.Endpoint == "" {
			return fmt.Errorf("storage.endpoint is not set")
		}
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is not set")
		}
	case "fs":
		if c.Storage.Root == "" {
			return fmt.Errorf("storage.root is not set")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	switch c.Catalog.Driver {
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is not set")
		}
		if c.Database.Username == "" {
			return fmt.Errorf("database username is not set")
		}
	case "http":
		if _, err := url.ParseRequestURI(c.Catalog.BaseURL); err != nil {
			return fmt.Errorf("invalid catalog.base_url: %q", c.Catalog.BaseURL)
		}
	default:
		return fmt.Errorf("unknown catalog.driver %q", c.Catalog.Driver)
	}
	if _, err := time.ParseDuration(c.Catalog.Timeout); err != nil {
		return fmt.Errorf("invalid catalog.timeout: %w", err)
	}
	switch c.Lock.Driver {
	case "redis":
		if c.Lock.Address == "" {
			return fmt.Errorf("lock.address is not set")
		}
	case "file":
		if c.Lock.Dir == "" {
			return fmt.Errorf("lock.dir is not set")
		}
	default:
		return fmt.Errorf("unknown lock.driver %q", c.Lock.Driver)
	}
	return nil
}

// ParseFeedNames преобразует список имен из конфигурации в FeedName.
func ParseFeedNames(names []string) ([]domain.FeedName, error) {
	result := make([]domain.FeedName, 0, len(names))
	for _, s := range names {
		name, err := domain.ParseFeedName(s)
		if err != nil {
			return nil, err
		}
		result = append(result, name)
	}
	return result, nil
}

// ParseInterval разбирает интервал расписания. Пустая строка означает, что задача отключена.
func ParseInterval(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval must be positive, got %s", s)
	}
	return d, nil
}
