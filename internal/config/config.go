package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Position conflict policies
const (
	ConflictPolicyReject = "reject"
	ConflictPolicyUpsert = "upsert"
)

// Price sources
const (
	PriceSourcePostgres = "postgres"
	PriceSourceRedis    = "redis"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Log         LogConfig
	Positions   PositionsConfig
	Aggregation AggregationConfig
	PriceSource string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	MigrationsPath string
}

// RedisConfig holds the Redis price store configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Brokers     []string
	EventsTopic string
	PricesTopic string
	GroupID     string
	Enabled     bool
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Pretty bool
}

// PositionsConfig holds position lifecycle settings
type PositionsConfig struct {
	ConflictPolicy string
}

// AggregationConfig holds aggregator settings
type AggregationConfig struct {
	AccountConcurrency int
}

// Load reads configuration from environment variables, after loading a
// .env file when one exists
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", "postgres"),
			DBName:         getEnv("DB_NAME", "portfolioservice"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MigrationsPath: getEnv("DB_MIGRATIONS_PATH", "db/migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:     splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			EventsTopic: getEnv("KAFKA_EVENTS_TOPIC", "portfolio-events"),
			PricesTopic: getEnv("KAFKA_PRICES_TOPIC", "price-updates"),
			GroupID:     getEnv("KAFKA_GROUP_ID", "portfolio-service"),
			Enabled:     getEnvAsBool("KAFKA_ENABLED", true),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Pretty: getEnvAsBool("LOG_PRETTY", false),
		},
		Positions: PositionsConfig{
			ConflictPolicy: strings.ToLower(getEnv("POSITION_CONFLICT_POLICY", ConflictPolicyReject)),
		},
		Aggregation: AggregationConfig{
			AccountConcurrency: getEnvAsInt("AGGREGATION_ACCOUNT_CONCURRENCY", 4),
		},
		PriceSource: strings.ToLower(getEnv("PRICE_SOURCE", PriceSourcePostgres)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that enumerated settings hold known values
func (c *Config) Validate() error {
	switch c.Positions.ConflictPolicy {
	case ConflictPolicyReject, ConflictPolicyUpsert:
	default:
		return fmt.Errorf("POSITION_CONFLICT_POLICY must be %q or %q, got %q",
			ConflictPolicyReject, ConflictPolicyUpsert, c.Positions.ConflictPolicy)
	}

	switch c.PriceSource {
	case PriceSourcePostgres, PriceSourceRedis:
	default:
		return fmt.Errorf("PRICE_SOURCE must be %q or %q, got %q",
			PriceSourcePostgres, PriceSourceRedis, c.PriceSource)
	}

	if c.Aggregation.AccountConcurrency < 1 {
		return fmt.Errorf("AGGREGATION_ACCOUNT_CONCURRENCY must be positive, got %d", c.Aggregation.AccountConcurrency)
	}
	return nil
}

// ConnectionString returns the PostgreSQL connection URL. Credentials are
// escaped so passwords may contain URL delimiters.
func (d *DatabaseConfig) ConnectionString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, d.Port),
		Path:     "/" + d.DBName,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

// Address returns the host:port the HTTP server listens on
func (s *ServerConfig) Address() string {
	return s.Host + ":" + s.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
