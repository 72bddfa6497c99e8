package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	JWT       JWTConfig
	Redis     RedisConfig
	Database  DatabaseConfig
	Kafka     KafkaConfig
	WebSocket WebSocketConfig
	Access    AccessConfig
	Internal  InternalConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type JWTConfig struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// RedisConfig enables the presence mirror, the access cache and the
// cross-instance relay. An empty URL runs the service on a single instance.
type RedisConfig struct {
	URL          string
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
	RelayChannel string
	PresenceTTL  time.Duration
}

func (c RedisConfig) Enabled() bool { return c.URL != "" }

// DatabaseConfig points at the access assignment store. Driver is
// "postgres", "mysql" or empty to disable it.
type DatabaseConfig struct {
	Driver       string
	DSN          string
	Host         string
	Port         string
	User         string
	Password     string
	DBName       string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

func (c DatabaseConfig) Enabled() bool { return c.Driver != "" }

type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

type WebSocketConfig struct {
	SendQueueSize    int
	MaxMessageSize   int64
	AuthorizeTimeout time.Duration

	// Handshakes allowed per client IP and window; zero disables the limit.
	HandshakeLimit  int
	HandshakeWindow time.Duration
}

type AccessConfig struct {
	PrivilegedRoles []string
	CacheTTL        time.Duration
}

type InternalConfig struct {
	APIKey string
}

type LogConfig struct {
	Level  string
	Format string
}

func LoadConfig() (*Config, error) {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	v := viper.New()
	v.SetDefault("REALTIME_HOST", "")
	v.SetDefault("REALTIME_PORT", "8080")
	v.SetDefault("REALTIME_READ_TIMEOUT", 15*time.Second)
	v.SetDefault("REALTIME_WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("REALTIME_IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("REALTIME_SHUTDOWN_TIMEOUT", 30*time.Second)
	v.SetDefault("REALTIME_ALLOWED_ORIGINS", "*")
	v.SetDefault("JWT_ISSUER", "office-backend")
	v.SetDefault("JWT_ACCESS_TTL", 15*time.Minute)
	v.SetDefault("JWT_REFRESH_TTL", 7*24*time.Hour)
	v.SetDefault("REDIS_MAX_RETRIES", 3)
	v.SetDefault("REDIS_POOL_SIZE", 100)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 10)
	v.SetDefault("REDIS_DIAL_TIMEOUT", 5*time.Second)
	v.SetDefault("REDIS_READ_TIMEOUT", 3*time.Second)
	v.SetDefault("REDIS_WRITE_TIMEOUT", 3*time.Second)
	v.SetDefault("REDIS_RELAY_CHANNEL", "realtime:events")
	v.SetDefault("REDIS_PRESENCE_TTL", 3*time.Minute)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_NAME", "office")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 20)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("KAFKA_TOPIC", "office.realtime.events")
	v.SetDefault("KAFKA_GROUP_ID", "office-realtime")
	v.SetDefault("WS_SEND_QUEUE_SIZE", 256)
	v.SetDefault("WS_MAX_MESSAGE_SIZE", 64<<10)
	v.SetDefault("WS_AUTHORIZE_TIMEOUT", 5*time.Second)
	v.SetDefault("WS_HANDSHAKE_LIMIT", 30)
	v.SetDefault("WS_HANDSHAKE_WINDOW", time.Minute)
	v.SetDefault("ACCESS_PRIVILEGED_ROLES", "ADMIN,GEOMETRA")
	v.SetDefault("ACCESS_CACHE_TTL", 2*time.Minute)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("REALTIME_HOST"),
			Port:            v.GetString("REALTIME_PORT"),
			ReadTimeout:     v.GetDuration("REALTIME_READ_TIMEOUT"),
			WriteTimeout:    v.GetDuration("REALTIME_WRITE_TIMEOUT"),
			IdleTimeout:     v.GetDuration("REALTIME_IDLE_TIMEOUT"),
			ShutdownTimeout: v.GetDuration("REALTIME_SHUTDOWN_TIMEOUT"),
			AllowedOrigins:  splitList(v.GetString("REALTIME_ALLOWED_ORIGINS")),
		},
		JWT: JWTConfig{
			Secret:     v.GetString("JWT_SECRET"),
			Issuer:     v.GetString("JWT_ISSUER"),
			AccessTTL:  v.GetDuration("JWT_ACCESS_TTL"),
			RefreshTTL: v.GetDuration("JWT_REFRESH_TTL"),
		},
		Redis: RedisConfig{
			URL:          v.GetString("REDIS_URL"),
			MaxRetries:   v.GetInt("REDIS_MAX_RETRIES"),
			DialTimeout:  v.GetDuration("REDIS_DIAL_TIMEOUT"),
			ReadTimeout:  v.GetDuration("REDIS_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("REDIS_WRITE_TIMEOUT"),
			PoolSize:     v.GetInt("REDIS_POOL_SIZE"),
			MinIdleConns: v.GetInt("REDIS_MIN_IDLE_CONNS"),
			RelayChannel: v.GetString("REDIS_RELAY_CHANNEL"),
			PresenceTTL:  v.GetDuration("REDIS_PRESENCE_TTL"),
		},
		Database: DatabaseConfig{
			Driver:       strings.ToLower(v.GetString("DB_DRIVER")),
			DSN:          v.GetString("DB_DSN"),
			Host:         v.GetString("DB_HOST"),
			Port:         v.GetString("DB_PORT"),
			User:         v.GetString("DB_USER"),
			Password:     v.GetString("DB_PASSWORD"),
			DBName:       v.GetString("DB_NAME"),
			SSLMode:      v.GetString("DB_SSLMODE"),
			MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(v.GetString("KAFKA_BROKERS")),
			Topic:   v.GetString("KAFKA_TOPIC"),
			GroupID: v.GetString("KAFKA_GROUP_ID"),
		},
		WebSocket: WebSocketConfig{
			SendQueueSize:    v.GetInt("WS_SEND_QUEUE_SIZE"),
			MaxMessageSize:   v.GetInt64("WS_MAX_MESSAGE_SIZE"),
			AuthorizeTimeout: v.GetDuration("WS_AUTHORIZE_TIMEOUT"),
			HandshakeLimit:   v.GetInt("WS_HANDSHAKE_LIMIT"),
			HandshakeWindow:  v.GetDuration("WS_HANDSHAKE_WINDOW"),
		},
		Access: AccessConfig{
			PrivilegedRoles: splitList(v.GetString("ACCESS_PRIVILEGED_ROLES")),
			CacheTTL:        v.GetDuration("ACCESS_CACHE_TTL"),
		},
		Internal: InternalConfig{
			APIKey: v.GetString("INTERNAL_API_KEY"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.JWT.AccessTTL <= 0 {
		errs = append(errs, errors.New("JWT_ACCESS_TTL must be positive"))
	}
	switch c.Database.Driver {
	case "", "postgres", "mysql":
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver))
	}
	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Addr is the listen address of the HTTP server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// PostgresDSN builds a DSN from the discrete settings when DSN is empty.
func (c DatabaseConfig) PostgresDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

func (c DatabaseConfig) MySQLDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
