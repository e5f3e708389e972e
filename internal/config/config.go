// Package config loads shelfsync configuration for the sync client, shelfd
// and the tooling commands from a YAML file, the environment, and defaults.
package config

import "time"

// Remote backend kinds.
const (
	RemoteSQLite   = "sqlite"
	RemotePostgres = "postgres"
	RemoteHTTP     = "http"
)

// Bus kinds.
const (
	BusLocal = "local"
	BusRedis = "redis"
)

// Config is the root configuration.
type Config struct {
	App       AppConfig       `yaml:"app"`
	Log       LogConfig       `yaml:"log"`
	Remote    RemoteConfig    `yaml:"remote"`
	Assets    AssetsConfig    `yaml:"assets"`
	Shelf     ShelfConfig     `yaml:"shelf"`
	Feed      FeedConfig      `yaml:"feed"`
	Local     LocalConfig     `yaml:"local"`
	Server    ServerConfig    `yaml:"server"`
	Bus       BusConfig       `yaml:"bus"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Environment string `yaml:"environment" env:"SHELF_ENV" env-default:"development"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// RemoteConfig selects and configures the persistent store.
type RemoteConfig struct {
	Kind        string        `yaml:"kind"         env:"SHELF_REMOTE"           env-default:"sqlite"`
	SQLitePath  string        `yaml:"sqlite_path"  env:"SHELF_SQLITE_PATH"      env-default:"./shelfsync.db"`
	PostgresDSN string        `yaml:"postgres_dsn" env:"SHELF_POSTGRES_DSN"`
	MaxConns    int32         `yaml:"max_conns"    env:"SHELF_POSTGRES_MAX_CONNS" env-default:"10"`
	BaseURL     string        `yaml:"base_url"     env:"SHELF_REMOTE_URL"       env-default:"http://localhost:8420"`
	Timeout     time.Duration `yaml:"timeout"      env:"SHELF_REMOTE_TIMEOUT"   env-default:"10s"`
}

// AssetsConfig controls image reference resolution.
type AssetsConfig struct {
	// BaseURL is the storage host stored paths resolve against. Empty means
	// only absolute URLs and local asset paths resolve.
	BaseURL     string `yaml:"base_url"     env:"SHELF_ASSET_BASE_URL"`
	LocalPrefix string `yaml:"local_prefix" env:"SHELF_ASSET_LOCAL_PREFIX" env-default:"assets/"`
	Bucket      string `yaml:"bucket"       env:"SHELF_ASSET_BUCKET"       env-default:"assets"`
}

// ShelfConfig holds grid settings.
type ShelfConfig struct {
	Capacity         int     `yaml:"capacity"          env:"SHELF_CAPACITY"          env-default:"8"`
	EmptyProbability float64 `yaml:"empty_probability" env:"SHELF_EMPTY_PROBABILITY" env-default:"0.3"`
}

// FeedConfig tunes the change feed listener.
type FeedConfig struct {
	MinRefetchInterval time.Duration `yaml:"min_refetch_interval" env:"FEED_MIN_REFETCH_INTERVAL" env-default:"250ms"`
	ReconnectBackoff   time.Duration `yaml:"reconnect_backoff"    env:"FEED_RECONNECT_BACKOFF"    env-default:"500ms"`
	MaxBackoff         time.Duration `yaml:"max_backoff"          env:"FEED_MAX_BACKOFF"          env-default:"30s"`
}

// LocalConfig points at on-device state.
type LocalConfig struct {
	// StatePath is the badger directory. Empty disables local state.
	StatePath string `yaml:"state_path" env:"SHELF_STATE_PATH"`
}

// ServerConfig holds shelfd HTTP settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"             env:"SHELFD_ADDR"             env-default:":8420"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SHELFD_READ_TIMEOUT"     env-default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"SHELFD_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHELFD_SHUTDOWN_TIMEOUT" env-default:"10s"`
	WriteRate       float64       `yaml:"write_rate"       env:"SHELFD_WRITE_RATE"       env-default:"20"`
	WriteBurst      int           `yaml:"write_burst"      env:"SHELFD_WRITE_BURST"      env-default:"40"`
	CORSOrigins     []string      `yaml:"cors_origins"     env:"SHELFD_CORS_ORIGINS"     env-default:"*" env-separator:","`
	Heartbeat       time.Duration `yaml:"heartbeat"        env:"SHELFD_HEARTBEAT"        env-default:"30s"`
	// Advertise announces the server on the local network via mDNS.
	Advertise bool   `yaml:"advertise" env:"SHELFD_MDNS" env-default:"false"`
	Name      string `yaml:"name"      env:"SHELFD_NAME" env-default:"shelfd"`
}

// BusConfig selects how shelfd instances share change events.
type BusConfig struct {
	Kind      string `yaml:"kind"       env:"SHELF_BUS"           env-default:"local"`
	RedisAddr string `yaml:"redis_addr" env:"SHELF_REDIS_ADDR"    env-default:"localhost:6379"`
	Channel   string `yaml:"channel"    env:"SHELF_BUS_CHANNEL"   env-default:"shelfsync:changes"`
}

// TelemetryConfig enables OTLP tracing.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"      env:"OTEL_ENABLED"      env-default:"false"`
	Endpoint    string `yaml:"endpoint"     env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"OTEL_SERVICE_NAME" env-default:"shelfsync"`
}
