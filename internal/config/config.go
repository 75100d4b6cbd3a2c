package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Editor   EditorConfig   `mapstructure:"editor"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Clamd    ClamdConfig    `mapstructure:"clamd"`
	Theme    ThemeConfig    `mapstructure:"theme"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port           int           `mapstructure:"port"`
	PublicBaseURL  string        `mapstructure:"public_base_url"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	InternalSecret string        `mapstructure:"internal_secret"`
	PageCacheTTL   time.Duration `mapstructure:"page_cache_ttl"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
	MaxAssets      int           `mapstructure:"max_assets"`
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SlowQuery       time.Duration `mapstructure:"slow_query"`
}

// RedisConfig 包含 Redis 连接配置。
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint         string `mapstructure:"endpoint"`
	PublicEndpoint   string `mapstructure:"public_endpoint"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	UseSSL           bool   `mapstructure:"use_ssl"`
	Bucket           string `mapstructure:"bucket"`
	Region           string `mapstructure:"region"`
	BucketLookup     string `mapstructure:"bucket_lookup"`
	AutoCreateBucket bool   `mapstructure:"auto_create_bucket"`
}

// AuthConfig holds token signing keys and login protection settings.
type AuthConfig struct {
	PrivateKeyPath        string        `mapstructure:"private_key_path"`
	PublicKeyPath         string        `mapstructure:"public_key_path"`
	AccessTokenTTL        time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL       time.Duration `mapstructure:"refresh_token_ttl"`
	LoginRateLimitPerHour int           `mapstructure:"login_rate_limit_per_hour"`
	LoginLockThreshold    int           `mapstructure:"login_lock_threshold"`
	LoginLockTTL          time.Duration `mapstructure:"login_lock_ttl"`
	CookieDomain          string        `mapstructure:"cookie_domain"`
}

// EditorConfig configures the editing session client side.
type EditorConfig struct {
	APIBaseURL    string        `mapstructure:"api_base_url"`
	AutosaveDelay time.Duration `mapstructure:"autosave_delay"`
	SaveTimeout   time.Duration `mapstructure:"save_timeout"`
}

// WorkerConfig configures the publish worker.
type WorkerConfig struct {
	Concurrency     int           `mapstructure:"concurrency"`
	Thumbnails      bool          `mapstructure:"thumbnails"`
	ThumbnailWidth  int           `mapstructure:"thumbnail_width"`
	ThumbnailHeight int           `mapstructure:"thumbnail_height"`
	BrowserTimeout  time.Duration `mapstructure:"browser_timeout"`
}

// ClamdConfig points at the virus scanner; an empty address disables scanning.
type ClamdConfig struct {
	Addr string `mapstructure:"addr"`
}

// ThemeConfig locates extra theme manifests.
type ThemeConfig struct {
	Dir string `mapstructure:"dir"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Load reads configuration solely from environment variables (with optional defaults).
func Load() (*Config, error) {
	cfg, err := read()
	if err != nil {
		return nil, err
	}
	if err := validate(*cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEditor reads only what an editing client needs; server settings are
// neither required nor validated.
func LoadEditor() (*EditorConfig, error) {
	cfg, err := read()
	if err != nil {
		return nil, err
	}
	if err := validateEditor(cfg.Editor); err != nil {
		return nil, err
	}
	return &cfg.Editor, nil
}

// LoadDatabase reads only the database section, for tools such as the admin
// command that never touch Redis or MinIO. override runs before validation.
func LoadDatabase(override func(*DatabaseConfig)) (DatabaseConfig, error) {
	cfg, err := read()
	if err != nil {
		return DatabaseConfig{}, err
	}
	if override != nil {
		override(&cfg.Database)
	}
	if err := validateDatabase(cfg.Database); err != nil {
		return DatabaseConfig{}, err
	}
	return cfg.Database, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func read() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.API.AllowedOrigins = splitList(cfg.API.AllowedOrigins)
	return &cfg, nil
}

// splitList accepts both a real list and a single comma separated env value.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.public_base_url", "http://localhost:8080")
	v.SetDefault("api.page_cache_ttl", 5*time.Minute)
	v.SetDefault("api.max_upload_bytes", 10<<20)
	v.SetDefault("api.max_assets", 100)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "wedsite")
	v.SetDefault("database.user", "wedsite")
	v.SetDefault("database.password", "wedsite")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.slow_query", 200*time.Millisecond)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.public_endpoint", "http://localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "wedsite")
	v.SetDefault("minio.bucket_lookup", "auto")
	v.SetDefault("minio.auto_create_bucket", true)
	v.SetDefault("auth.access_token_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_token_ttl", 7*24*time.Hour)
	v.SetDefault("auth.login_rate_limit_per_hour", 10)
	v.SetDefault("auth.login_lock_threshold", 5)
	v.SetDefault("auth.login_lock_ttl", 15*time.Minute)
	v.SetDefault("editor.api_base_url", "http://localhost:8080")
	v.SetDefault("editor.autosave_delay", 3*time.Second)
	v.SetDefault("editor.save_timeout", 15*time.Second)
	v.SetDefault("worker.concurrency", 10)
	v.SetDefault("worker.thumbnails", true)
	v.SetDefault("worker.thumbnail_width", 1200)
	v.SetDefault("worker.thumbnail_height", 800)
	v.SetDefault("worker.browser_timeout", 60*time.Second)
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                       "API_PORT",
		"api.public_base_url":            "PUBLIC_BASE_URL",
		"api.allowed_origins":            "ALLOWED_ORIGINS",
		"api.internal_secret":            "INTERNAL_API_SECRET",
		"api.page_cache_ttl":             "PAGE_CACHE_TTL",
		"api.max_upload_bytes":           "MAX_UPLOAD_BYTES",
		"api.max_assets":                 "MAX_ASSETS_PER_USER",
		"database.host":                  "DATABASE_HOST",
		"database.port":                  "DATABASE_PORT",
		"database.name":                  "POSTGRES_DB",
		"database.user":                  "POSTGRES_USER",
		"database.password":              "POSTGRES_PASSWORD",
		"database.sslmode":               "DATABASE_SSLMODE",
		"database.max_open_conns":        "DATABASE_MAX_OPEN_CONNS",
		"database.max_idle_conns":        "DATABASE_MAX_IDLE_CONNS",
		"database.conn_max_lifetime":     "DATABASE_CONN_MAX_LIFETIME",
		"database.slow_query":            "DATABASE_SLOW_QUERY",
		"redis.host":                     "REDIS_HOST",
		"redis.port":                     "REDIS_PORT",
		"minio.endpoint":                 "MINIO_ENDPOINT",
		"minio.public_endpoint":          "MINIO_PUBLIC_ENDPOINT",
		"minio.access_key_id":            "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":        "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":                  "MINIO_USE_SSL",
		"minio.bucket":                   "MINIO_BUCKET",
		"minio.region":                   "MINIO_REGION",
		"minio.bucket_lookup":            "MINIO_BUCKET_LOOKUP",
		"minio.auto_create_bucket":       "MINIO_AUTO_CREATE_BUCKET",
		"auth.private_key_path":          "JWT_PRIVATE_KEY_PATH",
		"auth.public_key_path":           "JWT_PUBLIC_KEY_PATH",
		"auth.access_token_ttl":          "JWT_ACCESS_TOKEN_TTL",
		"auth.refresh_token_ttl":         "JWT_REFRESH_TOKEN_TTL",
		"auth.login_rate_limit_per_hour": "LOGIN_RATE_LIMIT_PER_HOUR",
		"auth.login_lock_threshold":      "LOGIN_LOCK_THRESHOLD",
		"auth.login_lock_ttl":            "LOGIN_LOCK_TTL",
		"auth.cookie_domain":             "COOKIE_DOMAIN",
		"editor.api_base_url":            "EDITOR_API_BASE_URL",
		"editor.autosave_delay":          "EDITOR_AUTOSAVE_DELAY",
		"editor.save_timeout":            "EDITOR_SAVE_TIMEOUT",
		"worker.concurrency":             "WORKER_CONCURRENCY",
		"worker.thumbnails":              "WORKER_THUMBNAILS",
		"worker.thumbnail_width":         "WORKER_THUMBNAIL_WIDTH",
		"worker.thumbnail_height":        "WORKER_THUMBNAIL_HEIGHT",
		"worker.browser_timeout":         "WORKER_BROWSER_TIMEOUT",
		"clamd.addr":                     "CLAMD_ADDR",
		"theme.dir":                      "THEME_DIR",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if cfg.API.MaxUploadBytes <= 0 {
		return errors.New("api max upload bytes must be positive")
	}
	if err := validateDatabase(cfg.Database); err != nil {
		return err
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	if cfg.MinIO.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if cfg.MinIO.AccessKeyID == "" {
		return errors.New("minio access key id is required")
	}
	if cfg.MinIO.SecretAccessKey == "" {
		return errors.New("minio secret access key is required")
	}
	if cfg.MinIO.Bucket == "" {
		return errors.New("minio bucket is required")
	}
	if cfg.Auth.PrivateKeyPath == "" || cfg.Auth.PublicKeyPath == "" {
		return errors.New("jwt key paths are required")
	}
	if cfg.Auth.AccessTokenTTL <= 0 || cfg.Auth.RefreshTokenTTL <= 0 {
		return errors.New("token ttls must be positive")
	}
	if cfg.Worker.Concurrency <= 0 {
		return errors.New("worker concurrency must be positive")
	}
	return validateEditor(cfg.Editor)
}

func validateDatabase(cfg DatabaseConfig) error {
	switch {
	case cfg.Host == "":
		return errors.New("database host is required")
	case cfg.Port <= 0:
		return errors.New("database port must be positive")
	case cfg.Name == "":
		return errors.New("database name is required")
	case cfg.User == "":
		return errors.New("database user is required")
	case cfg.Password == "":
		return errors.New("database password is required")
	case cfg.SSLMode == "":
		return errors.New("database sslmode is required")
	}
	return nil
}

func validateEditor(cfg EditorConfig) error {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return errors.New("editor api base url is required")
	}
	if cfg.AutosaveDelay <= 0 {
		return errors.New("editor autosave delay must be positive")
	}
	if cfg.SaveTimeout <= 0 {
		return errors.New("editor save timeout must be positive")
	}
	return nil
}
