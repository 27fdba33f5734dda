// config реализует конфигурацию forum-service: загрузка из YAML/ENV с предсказуемым приоритетом.
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/adhocore/gronx"
	"github.com/ilyakaznacheev/cleanenv"
)

// Драйверы документного хранилища.
const (
	DriverMongo  = "mongo"
	DriverPebble = "pebble"
)

// Config — корневая конфигурация сервиса.
// Приоритет источников:
//  1. явный путь, переданный в MustLoad/Load;
//  2. переменная окружения CONFIG_PATH;
//  3. файл ./local.yaml из рабочей директории;
//  4. переменные окружения.
type Config struct {
	Env         string            `yaml:"env" env:"ENV" env-default:"local"`
	HTTP        HTTPConfig        `yaml:"http"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Store       StoreConfig       `yaml:"store"`
	Users       UsersConfig       `yaml:"users"`
	Cache       CacheConfig       `yaml:"cache"`
	S3          S3Config          `yaml:"s3"`
	Attachments AttachmentsConfig `yaml:"attachments"`
	Auth        AuthConfig        `yaml:"auth"`
	Limits      LimitsConfig      `yaml:"limits"`
	Ratings     RatingsConfig     `yaml:"ratings"`
	Index       IndexConfig       `yaml:"index"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Timeouts    TimeoutConfig     `yaml:"timeouts"`
}

// HTTPConfig — публичный HTTP API.
type HTTPConfig struct {
	Host string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
}

// MetricsConfig — отдельный листенер для /livez, /healthz, /metrics.
type MetricsConfig struct {
	Host string `yaml:"host" env:"METRICS_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"METRICS_PORT" env-default:"9090"`
}

// Addr возвращает адрес в формате host:port.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

// Addr возвращает адрес в формате host:port.
func (m MetricsConfig) Addr() string {
	return net.JoinHostPort(m.Host, m.Port)
}

// StoreConfig — документное хранилище сообщений и каналов.
type StoreConfig struct {
	// mongo | pebble.
	Driver string `yaml:"driver" env:"STORE_DRIVER" env-default:"mongo"`
	// URL MongoDB (для driver=mongo). Для change stream нужен replica set.
	URL string `yaml:"url" env:"DATABASE_URL"`
	// Каталог pebble (для driver=pebble).
	PebblePath string `yaml:"pebble_path" env:"PEBBLE_PATH" env-default:"./data/forum"`
}

// UsersConfig — каталог пользователей (PostgreSQL). Пустой URL отключает каталог:
// все авторы отображаются как "Unknown User".
type UsersConfig struct {
	DatabaseURL string `yaml:"database_url" env:"USERS_DATABASE_URL"`
}

// CacheConfig — Redis-кэш отображаемых данных авторов. Пустой URL отключает кэш.
type CacheConfig struct {
	RedisURL string        `yaml:"redis_url" env:"REDIS_URL"`
	TTL      time.Duration `yaml:"ttl" env:"CACHE_TTL" env-default:"5m"`
	Prefix   string        `yaml:"prefix" env:"CACHE_PREFIX" env-default:"forum:user:"`
}

// S3Config — объектное хранилище вложений (MinIO). Пустой endpoint отключает вложения.
type S3Config struct {
	Endpoint      string        `yaml:"endpoint" env:"S3_ENDPOINT"`
	RootUser      string        `yaml:"root_user" env:"S3_ROOT_USER"`
	RootPassword  string        `yaml:"root_password" env:"S3_ROOT_PASSWORD"`
	Bucket        string        `yaml:"bucket" env:"S3_BUCKET" env-default:"attachments"`
	UseSSL        bool          `yaml:"use_ssl" env:"S3_USE_SSL" env-default:"false"`
	PresignTTL    time.Duration `yaml:"presign_ttl" env:"S3_PRESIGN_TTL" env-default:"15m"`
	PublicBaseURL string        `yaml:"public_base_url" env:"S3_PUBLIC_BASE_URL"`
}

// AttachmentsConfig — ограничения на вложения.
type AttachmentsConfig struct {
	MaxSizeBytes        int64    `yaml:"max_size_bytes" env:"ATTACHMENTS_MAX_SIZE" env-default:"5242880"`
	AllowedContentTypes []string `yaml:"allowed_content_types" env:"ATTACHMENTS_ALLOWED_TYPES" env-default:"image/jpeg,image/png,image/gif,application/pdf"`
}

// AuthConfig — проверка bearer-токенов (HS256). Выпуск токенов вне сервиса.
// Без секрета сервис не стартует: все маршруты API требуют субъекта.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	Issuer    string `yaml:"issuer" env:"JWT_ISSUER"`
	Audience  string `yaml:"audience" env:"JWT_AUDIENCE"`
}

// LimitsConfig — лимиты на контент, глубину и выдачу поиска.
type LimitsConfig struct {
	// Максимальная глубина ответа. Корень = 0.
	MaxDepth    int32 `yaml:"max_depth" env:"MAX_DEPTH" env-default:"32"`
	MaxContent  int   `yaml:"max_content" env:"MAX_CONTENT" env-default:"10000"`
	SearchPage  int   `yaml:"search_page" env:"SEARCH_PAGE" env-default:"100"`
	Suggestions int   `yaml:"suggestions" env:"SUGGESTIONS_LIMIT" env-default:"10"`
}

// RatingsConfig — параметры OCC-цикла голосования.
type RatingsConfig struct {
	MaxRetries   int           `yaml:"max_retries" env:"RATING_MAX_RETRIES" env-default:"5"`
	RetryBackoff time.Duration `yaml:"retry_backoff" env:"RATING_RETRY_BACKOFF" env-default:"10ms"`
}

// IndexConfig — обслуживание вторичных индексов.
type IndexConfig struct {
	// Cron-выражение периодической перестройки.
	RebuildCron string `yaml:"rebuild_cron" env:"INDEX_REBUILD_CRON" env-default:"0 */6 * * *"`
	// Подписка на поток изменений хранилища (записи других реплик).
	// Собственные записи попадают в индекс синхронно и без неё. С выключенной
	// подпиской чужие записи видны в выдаче только после ближайшей перестройки.
	// Для mongo нужен replica set; на standalone-инстансе выключайте через
	// INDEX_WATCH=false (false в YAML перекрывается env-default).
	Watch bool `yaml:"watch" env:"INDEX_WATCH" env-default:"true"`
}

// RateLimitConfig — лимит частоты записей на субъекта. rps=0 отключает лимит.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" env:"RATE_LIMIT_RPS" env-default:"5"`
	Burst int     `yaml:"burst" env:"RATE_LIMIT_BURST" env-default:"10"`
}

// TimeoutConfig — сервисные таймауты.
type TimeoutConfig struct {
	// Общий дедлайн обработки запроса.
	Service time.Duration `yaml:"service" env:"SERVICE_TIMEOUT" env-default:"5s"`
	// Дедлайн полного сканирования (поиск, статистика, перестройка индекса).
	Scan time.Duration `yaml:"scan" env:"SCAN_TIMEOUT" env-default:"10s"`
}

// MustLoad — обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
// После чтения файла ENV-переменные накладываются поверх значений из YAML.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}

	if path == "" {
		if _, err := os.Stat("local.yaml"); err == nil {
			path = "local.yaml"
		}
	}

	var cfg Config

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", path, err)
		}

		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate — базовая валидация значений.
func (c *Config) validate() error {
	switch c.Store.Driver {
	case DriverMongo:
		if c.Store.URL == "" {
			return fmt.Errorf("store.url is required for driver %q", DriverMongo)
		}
	case DriverPebble:
		if c.Store.PebblePath == "" {
			return fmt.Errorf("store.pebble_path is required for driver %q", DriverPebble)
		}
	default:
		return fmt.Errorf("store.driver must be %q or %q", DriverMongo, DriverPebble)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}

	if c.Limits.MaxDepth <= 0 {
		return fmt.Errorf("limits.max_depth must be > 0")
	}

	if c.Limits.MaxContent <= 0 {
		return fmt.Errorf("limits.max_content must be > 0")
	}

	if c.Limits.SearchPage <= 0 {
		return fmt.Errorf("limits.search_page must be > 0")
	}

	if c.Limits.Suggestions <= 0 {
		return fmt.Errorf("limits.suggestions must be > 0")
	}

	if c.Ratings.MaxRetries <= 0 {
		return fmt.Errorf("ratings.max_retries must be > 0")
	}

	if c.Ratings.RetryBackoff < 0 {
		return fmt.Errorf("ratings.retry_backoff must be >= 0")
	}

	if c.Index.RebuildCron != "" && !gronx.IsValid(c.Index.RebuildCron) {
		return fmt.Errorf("index.rebuild_cron %q is not a valid cron expression", c.Index.RebuildCron)
	}

	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must be >= 0")
	}

	if c.RateLimit.RPS > 0 && c.RateLimit.Burst == 0 {
		return fmt.Errorf("rate_limit.burst must be > 0 when rps is set")
	}

	if c.Attachments.MaxSizeBytes <= 0 {
		return fmt.Errorf("attachments.max_size_bytes must be > 0")
	}

	if c.Timeouts.Service <= 0 {
		return fmt.Errorf("timeouts.service must be > 0")
	}

	if c.Timeouts.Scan <= 0 {
		return fmt.Errorf("timeouts.scan must be > 0")
	}

	if c.S3.Endpoint != "" && c.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when s3.endpoint is set")
	}

	return nil
}
