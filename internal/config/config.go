package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	CastOS    CastOSConfig
	Tracker   TrackerConfig
	Poller    PollerConfig
	Clerk     ClerkConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	R2        R2Config
	Report    ReportConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis address was configured. Without Redis the
// gateway keeps snapshots in memory and tracks submissions in-process.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// CastOSConfig points at the casting optimization backend.
type CastOSConfig struct {
	BaseURL           string
	Timeout           int // seconds
	ServiceToken      string
	RequestsPerSecond float64
	Burst             int
}

type TrackerConfig struct {
	PollInterval  time.Duration
	MaxWait       time.Duration
	MaxPolls      int
	RetryAttempts int
	RetryBackoff  time.Duration
}

type PollerConfig struct {
	Interval time.Duration
}

type ClerkConfig struct {
	Issuer   string
	Audience string
	// GatewayMode trusts X-User-* headers from a ForwardAuth proxy
	GatewayMode bool
}

type JWTConfig struct {
	Secret string
}

type RateLimitConfig struct {
	SubmitPerHour int
	ExportPerHour int
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type ReportConfig struct {
	URLExpiry time.Duration
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("CASTOS_SERVICE_TOKEN")
	readSecret("JWT_SECRET")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("castos.base_url", "CASTOS_BASE_URL")
	_ = viper.BindEnv("castos.timeout", "CASTOS_TIMEOUT")
	_ = viper.BindEnv("castos.service_token", "CASTOS_SERVICE_TOKEN")
	_ = viper.BindEnv("castos.requests_per_second", "CASTOS_REQUESTS_PER_SECOND")
	_ = viper.BindEnv("castos.burst", "CASTOS_BURST")
	_ = viper.BindEnv("tracker.poll_interval", "TRACKER_POLL_INTERVAL")
	_ = viper.BindEnv("tracker.max_wait", "TRACKER_MAX_WAIT")
	_ = viper.BindEnv("tracker.max_polls", "TRACKER_MAX_POLLS")
	_ = viper.BindEnv("tracker.retry_attempts", "TRACKER_RETRY_ATTEMPTS")
	_ = viper.BindEnv("tracker.retry_backoff", "TRACKER_RETRY_BACKOFF")
	_ = viper.BindEnv("poller.interval", "POLLER_INTERVAL")
	_ = viper.BindEnv("clerk.issuer", "CLERK_ISSUER")
	_ = viper.BindEnv("clerk.audience", "CLERK_AUDIENCE")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("ratelimit.submit_per_hour", "RATELIMIT_SUBMIT_PER_HOUR")
	_ = viper.BindEnv("ratelimit.export_per_hour", "RATELIMIT_EXPORT_PER_HOUR")
	_ = viper.BindEnv("auth.gateway_mode", "GATEWAY_MODE")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("report.url_expiry", "REPORT_URL_EXPIRY")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// CastOS backend defaults
	viper.SetDefault("castos.base_url", "http://localhost:8080")
	viper.SetDefault("castos.timeout", 30)
	viper.SetDefault("castos.requests_per_second", 10)
	viper.SetDefault("castos.burst", 20)

	// Polling defaults: 3s per-project detail, 10s collection refresh
	viper.SetDefault("tracker.poll_interval", "3s")
	viper.SetDefault("tracker.max_wait", "15m")
	viper.SetDefault("tracker.max_polls", 0)
	viper.SetDefault("tracker.retry_attempts", 1)
	viper.SetDefault("tracker.retry_backoff", "2s")
	viper.SetDefault("poller.interval", "10s")

	viper.SetDefault("ratelimit.submit_per_hour", 20)
	viper.SetDefault("ratelimit.export_per_hour", 30)
	viper.SetDefault("report.url_expiry", "24h")

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		CastOS: CastOSConfig{
			BaseURL:           strings.TrimRight(viper.GetString("castos.base_url"), "/"),
			Timeout:           viper.GetInt("castos.timeout"),
			ServiceToken:      viper.GetString("castos.service_token"),
			RequestsPerSecond: viper.GetFloat64("castos.requests_per_second"),
			Burst:             viper.GetInt("castos.burst"),
		},
		Tracker: TrackerConfig{
			PollInterval:  viper.GetDuration("tracker.poll_interval"),
			MaxWait:       viper.GetDuration("tracker.max_wait"),
			MaxPolls:      viper.GetInt("tracker.max_polls"),
			RetryAttempts: viper.GetInt("tracker.retry_attempts"),
			RetryBackoff:  viper.GetDuration("tracker.retry_backoff"),
		},
		Poller: PollerConfig{
			Interval: viper.GetDuration("poller.interval"),
		},
		Clerk: ClerkConfig{
			Issuer:      strings.TrimRight(viper.GetString("clerk.issuer"), "/"),
			Audience:    viper.GetString("clerk.audience"),
			GatewayMode: viper.GetBool("auth.gateway_mode"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("jwt.secret"),
		},
		RateLimit: RateLimitConfig{
			SubmitPerHour: viper.GetInt("ratelimit.submit_per_hour"),
			ExportPerHour: viper.GetInt("ratelimit.export_per_hour"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
		Report: ReportConfig{
			URLExpiry: viper.GetDuration("report.url_expiry"),
		},
	}

	return cfg, nil
}
