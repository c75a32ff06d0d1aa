// Package config reads settings from the environment and an optional .env file.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port           int
	Host           string
	MetricsEnabled bool
	Production     bool
}

// DatabaseConfig selects and addresses the store.
type DatabaseConfig struct {
	Type     string // "postgres", "mongo" or "memory"
	URI      string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// SessionConfig controls the session cookie.
type SessionConfig struct {
	Secret     string
	CookieName string
	MaxAge     time.Duration
}

// RedisConfig enables cross-instance event relay when Addr is set.
type RedisConfig struct {
	Addr    string
	Channel string
}

// KafkaConfig enables publishing new messages to a topic when Brokers is set.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type TracingConfig struct {
	Endpoint    string
	ServiceName string
	SampleRatio float64
}

type PresenceConfig struct {
	FlushInterval time.Duration
}

// Config is everything cmd/server needs to start.
type Config struct {
	Server         *ServerConfig
	Database       *DatabaseConfig
	Session        *SessionConfig
	Redis          *RedisConfig
	Kafka          *KafkaConfig
	Tracing        *TracingConfig
	Presence       *PresenceConfig
	AllowedOrigins []string
	Debug          bool
}

func DefaultConfig() *ServerConfig {
	return &ServerConfig{
		Port:           8080,
		Host:           "0.0.0.0",
		MetricsEnabled: true,
	}
}

func DefaultDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		Type:    "postgres",
		Port:    5432,
		Name:    "chitchat",
		SSLMode: "require",
	}
}

func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		CookieName: "__session",
		MaxAge:     30 * 24 * time.Hour,
	}
}

// LoadConfig applies environment overrides on top of the defaults.
func LoadConfig() (*Config, error) {
	// First .env found wins; cmd/server is two levels below the root.
	envLocations := []string{".env", "../../.env", "../../../.env"}

	envLoaded := false
	for _, location := range envLocations {
		if err := godotenv.Load(location); err == nil {
			envLoaded = true
			break
		}
	}
	if !envLoaded {
		_ = godotenv.Load()
	}

	serverConfig := DefaultConfig()
	if port, ok := getEnvInt("PORT"); ok {
		serverConfig.Port = port
	}
	if host := os.Getenv("HOST"); host != "" {
		serverConfig.Host = host
	}
	if metricsEnabled := os.Getenv("METRICS_ENABLED"); metricsEnabled != "" {
		serverConfig.MetricsEnabled = metricsEnabled == "true"
	}
	serverConfig.Production = os.Getenv("APP_ENV") == "production"

	dbConfig, err := loadDatabaseConfig()
	if err != nil {
		return nil, err
	}

	sessionConfig := DefaultSessionConfig()
	sessionConfig.Secret = os.Getenv("SESSION_SECRET")
	if sessionConfig.Secret == "" {
		if serverConfig.Production {
			return nil, fmt.Errorf("SESSION_SECRET environment variable is required in production")
		}
		log.Printf("Warning: SESSION_SECRET not set, using an insecure development secret")
		sessionConfig.Secret = "chit-chat-dev-secret"
	}
	sessionConfig.CookieName = getEnvOrDefault("SESSION_COOKIE_NAME", sessionConfig.CookieName)
	if maxAge, ok := getEnvDuration("SESSION_MAX_AGE"); ok {
		sessionConfig.MaxAge = maxAge
	}

	presence := &PresenceConfig{FlushInterval: 10 * time.Second}
	if interval, ok := getEnvDuration("PRESENCE_FLUSH_INTERVAL"); ok {
		presence.FlushInterval = interval
	}

	tracing := &TracingConfig{
		Endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceName: getEnvOrDefault("OTEL_SERVICE_NAME", "chit-chat"),
		SampleRatio: 1.0,
	}
	if s := os.Getenv("OTEL_TRACES_SAMPLER_ARG"); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 && f <= 1 {
			tracing.SampleRatio = f
		}
	}

	config := &Config{
		Server:   serverConfig,
		Database: dbConfig,
		Session:  sessionConfig,
		Redis: &RedisConfig{
			Addr:    os.Getenv("REDIS_ADDR"),
			Channel: getEnvOrDefault("REDIS_EVENTS_CHANNEL", "chit-chat:events"),
		},
		Kafka: &KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnvOrDefault("KAFKA_TOPIC_MESSAGES", "messages.new"),
		},
		Tracing:        tracing,
		Presence:       presence,
		AllowedOrigins: []string{"*"},
		Debug:          false,
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		config.AllowedOrigins = splitList(origins)
	}
	if debug := os.Getenv("DEBUG"); debug == "true" {
		config.Debug = true
	}

	return config, nil
}

func loadDatabaseConfig() (*DatabaseConfig, error) {
	dbConfig := DefaultDatabaseConfig()
	if dbType := os.Getenv("DB_TYPE"); dbType != "" {
		dbConfig.Type = dbType
	}

	switch dbConfig.Type {
	case "memory":
		return dbConfig, nil
	case "mongo":
		dbConfig.URI = getEnvOrDefault("MONGODB_URI", "mongodb://localhost:27017")
		dbConfig.Name = getEnvOrDefault("DB_NAME", dbConfig.Name)
		return dbConfig, nil
	case "postgres":
	default:
		log.Printf("Warning: Unsupported DB_TYPE '%s'. Defaulting to 'postgres'.", dbConfig.Type)
		dbConfig.Type = "postgres"
	}

	// DATABASE_URL overrides the individual DB_* settings.
	if uri := os.Getenv("DATABASE_URL"); uri != "" {
		dbConfig.URI = uri
		dbConfig.SSLMode = getSSLModeFromURI(uri)
		return dbConfig, nil
	}

	dbConfig.Host = getEnvOrDefault("DB_HOST", "localhost")
	if port, ok := getEnvInt("DB_PORT"); ok {
		dbConfig.Port = port
	}

	dbConfig.User = os.Getenv("DB_USER")
	if dbConfig.User == "" {
		return nil, fmt.Errorf("DB_USER environment variable is required when DB_TYPE is postgres and DATABASE_URL is not set")
	}
	dbConfig.Password = os.Getenv("DB_PASSWORD")
	if dbConfig.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD environment variable is required when DB_TYPE is postgres and DATABASE_URL is not set")
	}
	dbConfig.Name = getEnvOrDefault("DB_NAME", dbConfig.Name)
	dbConfig.SSLMode = getEnvOrDefault("DB_SSL_MODE", "require")

	dbConfig.URI = fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		dbConfig.User,
		dbConfig.Password,
		dbConfig.Host,
		dbConfig.Port,
		dbConfig.Name,
		dbConfig.SSLMode,
	)
	return dbConfig, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Warning: ignoring invalid %s=%q", key, v)
		return 0, false
	}
	return n, true
}

func getEnvDuration(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("Warning: ignoring invalid %s=%q", key, v)
		return 0, false
	}
	return d, true
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getSSLModeFromURI returns the sslmode DSN parameter, or "require".
func getSSLModeFromURI(uri string) string {
	parts := strings.SplitN(uri, "?", 2)
	if len(parts) == 2 {
		for _, param := range strings.Split(parts[1], "&") {
			kv := strings.SplitN(param, "=", 2)
			if len(kv) == 2 && kv[0] == "sslmode" {
				return kv[1]
			}
		}
	}
	return "require"
}
