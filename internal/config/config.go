package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable of the API process.
type Config struct {
	Version   string          `mapstructure:"version"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Files     FilesConfig     `mapstructure:"files"`
	Summarize SummarizeConfig `mapstructure:"summarize"`
	Mail      MailConfig      `mapstructure:"mail"`
	Reminders RemindersConfig `mapstructure:"reminders"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	// Peers whose X-Forwarded-For is believed. CIDRs or bare addresses.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
	// Per-IP token bucket applied to the unauthenticated auth routes.
	AuthRateBurst  int     `mapstructure:"auth_rate_burst"`
	AuthRatePerSec float64 `mapstructure:"auth_rate_per_sec"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type AuthConfig struct {
	JWTSecret  string        `mapstructure:"jwt_secret"`
	Issuer     string        `mapstructure:"issuer"`
	AccessTTL  time.Duration `mapstructure:"access_ttl"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
	ResetTTL   time.Duration `mapstructure:"reset_ttl"`
	BcryptCost int           `mapstructure:"bcrypt_cost"`
	// ExposeResetToken returns the reset token in the API response. Development only.
	ExposeResetToken bool   `mapstructure:"expose_reset_token"`
	ResetURL         string `mapstructure:"reset_url"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type AuditConfig struct {
	QueueSize      int           `mapstructure:"queue_size"`
	EnqueueTimeout time.Duration `mapstructure:"enqueue_timeout"`
}

type FilesConfig struct {
	Backend        string   `mapstructure:"backend"`
	Dir            string   `mapstructure:"dir"`
	MaxUploadBytes int64    `mapstructure:"max_upload_bytes"`
	S3             S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Bucket       string `mapstructure:"bucket"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	Prefix       string `mapstructure:"prefix"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

type SummarizeConfig struct {
	Endpoint     string        `mapstructure:"endpoint"`
	APIKey       string        `mapstructure:"api_key"`
	Model        string        `mapstructure:"model"`
	Timeout      time.Duration `mapstructure:"timeout"`
	CacheSize    int           `mapstructure:"cache_size"`
	RatePerMin   int           `mapstructure:"rate_per_min"`
	MaxInputSize int64         `mapstructure:"max_input_size"`
}

type MailConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	From       string `mapstructure:"from"`
	FromName   string `mapstructure:"from_name"`
	Encryption string `mapstructure:"encryption"`
}

type RemindersConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Schedule string        `mapstructure:"schedule"`
	Window   time.Duration `mapstructure:"window"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("version", "dev")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.max_body_bytes", 1<<20)
	v.SetDefault("http.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("http.trusted_proxies", []string{})
	v.SetDefault("http.auth_rate_burst", 10)
	v.SetDefault("http.auth_rate_per_sec", 1.0)

	v.SetDefault("log.level", "info")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "lawdesk")
	v.SetDefault("auth.access_ttl", 24*time.Hour)
	v.SetDefault("auth.refresh_ttl", 14*24*time.Hour)
	v.SetDefault("auth.reset_ttl", time.Hour)
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("auth.expose_reset_token", false)
	v.SetDefault("auth.reset_url", "http://localhost:3000/reset-password")

	v.SetDefault("redis.url", "")

	v.SetDefault("audit.queue_size", 1024)
	v.SetDefault("audit.enqueue_timeout", 50*time.Millisecond)

	v.SetDefault("files.backend", "fs")
	v.SetDefault("files.dir", "./uploads")
	v.SetDefault("files.max_upload_bytes", 10<<20)
	v.SetDefault("files.s3.bucket", "")
	v.SetDefault("files.s3.region", "us-east-1")
	v.SetDefault("files.s3.endpoint", "")
	v.SetDefault("files.s3.access_key", "")
	v.SetDefault("files.s3.secret_key", "")
	v.SetDefault("files.s3.prefix", "documents/")
	v.SetDefault("files.s3.use_path_style", false)

	v.SetDefault("summarize.endpoint", "")
	v.SetDefault("summarize.api_key", "")
	v.SetDefault("summarize.model", "")
	v.SetDefault("summarize.timeout", 60*time.Second)
	v.SetDefault("summarize.cache_size", 256)
	v.SetDefault("summarize.rate_per_min", 20)
	v.SetDefault("summarize.max_input_size", 2<<20)

	v.SetDefault("mail.host", "")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from", "no-reply@lawdesk.local")
	v.SetDefault("mail.from_name", "Lawdesk")
	v.SetDefault("mail.encryption", "STARTTLS")

	v.SetDefault("reminders.enabled", true)
	v.SetDefault("reminders.schedule", "0 8 * * *")
	v.SetDefault("reminders.window", 72*time.Hour)
}

// Load reads configuration from an optional YAML file, LAWDESK_* environment
// variables and built-in defaults, in decreasing priority order env > file > default.
// An empty path searches lawdesk.yaml in the working directory and /etc/lawdesk.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("lawdesk")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/lawdesk/")
	}

	v.SetEnvPrefix("LAWDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the process cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if len(strings.TrimSpace(c.Auth.JWTSecret)) < 16 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 16 characters"))
	}
	if c.Auth.AccessTTL <= 0 {
		errs = append(errs, errors.New("auth.access_ttl must be positive"))
	}
	if c.Auth.RefreshTTL <= c.Auth.AccessTTL {
		errs = append(errs, errors.New("auth.refresh_ttl must exceed auth.access_ttl"))
	}
	switch c.Files.Backend {
	case "fs":
		if strings.TrimSpace(c.Files.Dir) == "" {
			errs = append(errs, errors.New("files.dir is required for the fs backend"))
		}
	case "s3":
		if strings.TrimSpace(c.Files.S3.Bucket) == "" {
			errs = append(errs, errors.New("files.s3.bucket is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("files.backend %q is not one of fs, s3", c.Files.Backend))
	}
	for _, p := range c.HTTP.TrustedProxies {
		if !validProxy(p) {
			errs = append(errs, fmt.Errorf("http.trusted_proxies entry %q is not an address or CIDR", p))
		}
	}
	if c.Audit.QueueSize <= 0 {
		errs = append(errs, errors.New("audit.queue_size must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func validProxy(raw string) bool {
	raw = strings.TrimSpace(raw)
	if _, err := netip.ParsePrefix(raw); err == nil {
		return true
	}
	_, err := netip.ParseAddr(raw)
	return err == nil
}
