package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. FEESETTLE_DATABASE_PASSWORD
const EnvPrefix = "FEESETTLE"

// Lock backends
const (
	LockBackendRedis = "redis"
	LockBackendLocal = "local"
)

// AllocationStrategies lists the accepted fee.allocation_strategy values
var AllocationStrategies = []string{"even", "balance"}

// Config is the full process configuration
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	CORS      CORSConfig      `mapstructure:"cors"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Fee       FeeConfig       `mapstructure:"fee"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Port string `mapstructure:"port"`
}

// IsProduction reports whether the stricter production checks apply
func (a AppConfig) IsProduction() bool {
	return a.Env == "production"
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, console
	Output string `mapstructure:"output"` // stdout, stderr, or file path
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int           `mapstructure:"conn_max_lifetime"`  // minutes
	ConnMaxIdleTime int           `mapstructure:"conn_max_idle_time"` // minutes
	LogLevel        string        `mapstructure:"log_level"`
	SlowQuery       time.Duration `mapstructure:"slow_query"`
}

// DSN returns a postgres URL with user and password escaped
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     d.DBName,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig holds bearer token validation settings. Tokens are issued by
// the identity service; this process only verifies them.
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// CORSConfig leaves cross-origin requests disabled while AllowOrigins is empty
type CORSConfig struct {
	AllowOrigins []string      `mapstructure:"allow_origins"`
	AllowMethods []string      `mapstructure:"allow_methods"`
	AllowHeaders []string      `mapstructure:"allow_headers"`
	MaxAge       time.Duration `mapstructure:"max_age"`
}

type HTTPConfig struct {
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxHeaderBytes  int           `mapstructure:"max_header_bytes"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`

	// MaxBodyBytes caps JSON request bodies; 0 selects the middleware default
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`

	// SwaggerEnabled serves the API docs under /swagger. SwaggerAllowedIPs
	// limits them to single IPs or CIDRs; empty allows every client.
	SwaggerEnabled    bool     `mapstructure:"swagger_enabled"`
	SwaggerAllowedIPs []string `mapstructure:"swagger_allowed_ips"`
}

type TelemetryConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	CollectorEndpoint string        `mapstructure:"collector_endpoint"`
	SamplingRatio     float64       `mapstructure:"sampling_ratio"`
	ServiceName       string        `mapstructure:"service_name"` // defaults to app.name
	Insecure          bool          `mapstructure:"insecure"`
	DBTraceEnabled    bool          `mapstructure:"db_trace_enabled"`
	DBLogFullSQL      bool          `mapstructure:"db_log_full_sql"` // statement text with values
	DBSlowQueryThresh time.Duration `mapstructure:"db_slow_query_threshold"`
}

// FeeConfig holds the fee engine policies
type FeeConfig struct {
	AllocationStrategy string        `mapstructure:"allocation_strategy"`
	DueDateOffsetDays  int           `mapstructure:"due_date_offset_days"`
	GenerationLockTTL  time.Duration `mapstructure:"generation_lock_ttl"`
	PaymentLockTTL     time.Duration `mapstructure:"payment_lock_ttl"`
	PaymentLockWait    time.Duration `mapstructure:"payment_lock_wait"`
	LockBackend        string        `mapstructure:"lock_backend"`
	IdempotencyTTL     time.Duration `mapstructure:"idempotency_ttl"`
	InvoicePrefix      string        `mapstructure:"invoice_prefix"`
	ReceiptPrefix      string        `mapstructure:"receipt_prefix"`

	// Daily job persisting OVERDUE statuses, at HH:MM UTC
	OverdueRefreshEnabled bool `mapstructure:"overdue_refresh_enabled"`
	OverdueRefreshHour    int  `mapstructure:"overdue_refresh_hour"`
	OverdueRefreshMinute  int  `mapstructure:"overdue_refresh_minute"`
}

// StorageConfig points at the S3-compatible bucket holding year archives
type StorageConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Bucket         string        `mapstructure:"bucket"`
	Region         string        `mapstructure:"region"`
	Endpoint       string        `mapstructure:"endpoint"`
	AccessKey      string        `mapstructure:"access_key"`
	SecretKey      string        `mapstructure:"secret_key"`
	UsePathStyle   bool          `mapstructure:"use_path_style"`
	KeyPrefix      string        `mapstructure:"key_prefix"`
	PresignExpires time.Duration `mapstructure:"presign_expires"`
}

// defaults registers every key. Viper only consults the environment for
// keys it knows about, so secrets are listed with empty values too.
var defaults = map[string]any{
	"app.name": "feesettle-backend",
	"app.env":  "development",
	"app.port": "8080",

	"database.host":               "localhost",
	"database.port":               5432,
	"database.user":               "postgres",
	"database.password":           "",
	"database.dbname":             "feesettle",
	"database.sslmode":            "disable",
	"database.max_open_conns":     25,
	"database.max_idle_conns":     5,
	"database.conn_max_lifetime":  60,
	"database.conn_max_idle_time": 30,
	"database.log_level":          "warn",
	"database.slow_query":         200 * time.Millisecond,

	"redis.enabled":  true,
	"redis.host":     "localhost",
	"redis.port":     6379,
	"redis.password": "",
	"redis.db":       0,

	"jwt.secret": "",
	"jwt.issuer": "feesettle-identity",

	"cors.allow_origins": []string{},
	"cors.allow_methods": []string{"GET", "POST", "OPTIONS"},
	"cors.allow_headers": []string{"Content-Type", "Authorization", "X-Request-ID", "Idempotency-Key"},
	"cors.max_age":       12 * time.Hour,

	"http.read_timeout":     15 * time.Second,
	"http.write_timeout":    60 * time.Second,
	"http.idle_timeout":     60 * time.Second,
	"http.shutdown_timeout": 10 * time.Second,
	"http.max_header_bytes": 1 << 20,
	"http.trusted_proxies":  []string{},
	"http.max_body_bytes":   0,

	"http.swagger_enabled":     false,
	"http.swagger_allowed_ips": []string{},

	"log.level":  "info",
	"log.format": "console",
	"log.output": "stdout",

	"telemetry.enabled":                 false,
	"telemetry.collector_endpoint":      "localhost:4317",
	"telemetry.sampling_ratio":          1.0,
	"telemetry.service_name":            "",
	"telemetry.insecure":                false,
	"telemetry.db_trace_enabled":        false,
	"telemetry.db_log_full_sql":         false,
	"telemetry.db_slow_query_threshold": 200 * time.Millisecond,

	"fee.allocation_strategy":     "even",
	"fee.due_date_offset_days":    30,
	"fee.generation_lock_ttl":     5 * time.Minute,
	"fee.payment_lock_ttl":        30 * time.Second,
	"fee.payment_lock_wait":       5 * time.Second,
	"fee.lock_backend":            LockBackendRedis,
	"fee.idempotency_ttl":         24 * time.Hour,
	"fee.invoice_prefix":          "INV",
	"fee.receipt_prefix":          "RCP",
	"fee.overdue_refresh_enabled": true,
	"fee.overdue_refresh_hour":    1,
	"fee.overdue_refresh_minute":  0,

	"storage.enabled":         false,
	"storage.bucket":          "",
	"storage.region":          "us-east-1",
	"storage.endpoint":        "",
	"storage.access_key":      "",
	"storage.secret_key":      "",
	"storage.use_path_style":  false,
	"storage.key_prefix":      "",
	"storage.presign_expires": 15 * time.Minute,
}

// Load reads config.{yaml,toml,json} from ., ./config or /etc/feesettle if
// present, then applies FEESETTLE_* environment overrides on top of the
// built-in defaults.
func Load() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/feesettle")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate returns the first inconsistency found
func (c *Config) Validate() error {
	checks := []func() error{
		c.Database.validate,
		c.Fee.validate,
		c.validateBackends,
		c.validateProduction,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %g", c.Telemetry.SamplingRatio)
	}
	return nil
}

func (d DatabaseConfig) validate() error {
	switch {
	case d.MaxOpenConns <= 0:
		return errors.New("database.max_open_conns must be positive")
	case d.MaxIdleConns < 0:
		return errors.New("database.max_idle_conns cannot be negative")
	case d.MaxIdleConns > d.MaxOpenConns:
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			d.MaxIdleConns, d.MaxOpenConns)
	}
	return nil
}

func (f FeeConfig) validate() error {
	switch {
	case !slices.Contains(AllocationStrategies, f.AllocationStrategy):
		return fmt.Errorf("fee.allocation_strategy must be one of %s, got %q",
			strings.Join(AllocationStrategies, ", "), f.AllocationStrategy)
	case f.DueDateOffsetDays < 0:
		return errors.New("fee.due_date_offset_days cannot be negative")
	case f.LockBackend != LockBackendRedis && f.LockBackend != LockBackendLocal:
		return fmt.Errorf("fee.lock_backend must be %q or %q, got %q", LockBackendRedis, LockBackendLocal, f.LockBackend)
	case f.PaymentLockWait > f.PaymentLockTTL:
		return fmt.Errorf("fee.payment_lock_wait (%s) cannot exceed fee.payment_lock_ttl (%s)",
			f.PaymentLockWait, f.PaymentLockTTL)
	case f.InvoicePrefix == f.ReceiptPrefix:
		return errors.New("fee.invoice_prefix and fee.receipt_prefix must differ")
	case f.OverdueRefreshHour < 0 || f.OverdueRefreshHour > 23 ||
		f.OverdueRefreshMinute < 0 || f.OverdueRefreshMinute > 59:
		return fmt.Errorf("fee.overdue_refresh_hour/minute must form a valid time of day, got %02d:%02d",
			f.OverdueRefreshHour, f.OverdueRefreshMinute)
	}
	return nil
}

func (c *Config) validateBackends() error {
	if c.Fee.LockBackend == LockBackendRedis && !c.Redis.Enabled {
		return errors.New("fee.lock_backend=redis requires redis.enabled")
	}
	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return errors.New("storage.bucket is required when storage is enabled")
	}
	return nil
}

func (c *Config) validateProduction() error {
	if !c.App.IsProduction() {
		return nil
	}
	switch {
	case c.JWT.Secret == "":
		return errors.New("jwt.secret is required in production")
	case len(c.JWT.Secret) < 32:
		return errors.New("jwt.secret must be at least 32 characters in production")
	case c.Database.Password == "":
		return errors.New("database.password is required in production")
	case c.Database.SSLMode == "disable":
		return errors.New("database.sslmode cannot be 'disable' in production")
	case slices.Contains(c.CORS.AllowOrigins, "*"):
		return errors.New("cors.allow_origins cannot contain '*' in production")
	case c.Telemetry.DBLogFullSQL:
		return errors.New("telemetry.db_log_full_sql must be false in production")
	}
	return nil
}
