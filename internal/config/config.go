package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port        string
	Host        string
	Environment string

	// Storage
	StoreDriver  string // mongo | sqlite
	SQLitePath   string
	MongoURI     string
	DatabaseName string
	MongoTimeout int

	// Audience directory (users, courses, enrollments)
	DirectoryDriver  string // mongo | http
	DirectoryURL     string
	DirectoryTimeout time.Duration
	DirectoryToken   string

	// JWT
	JWTSecret     string
	JWTExpiration int

	// HTTP
	AllowedOrigins    []string
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitDuration time.Duration

	// Delivery
	FanoutWorkers int
	WSSendBuffer  int

	// Logging
	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Host:        getEnv("HOST", "0.0.0.0"),
		Environment: getEnv("ENV", "development"),

		StoreDriver:  getEnv("STORE_DRIVER", "mongo"),
		SQLitePath:   getEnv("SQLITE_PATH", "notifications.db"),
		MongoURI:     getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DatabaseName: getEnv("DATABASE_NAME", "edu_notify"),
		MongoTimeout: getEnvAsInt("MONGO_TIMEOUT", 10),

		DirectoryDriver:  getEnv("DIRECTORY_DRIVER", "mongo"),
		DirectoryURL:     getEnv("DIRECTORY_URL", "http://localhost:8081"),
		DirectoryTimeout: getEnvAsDuration("DIRECTORY_TIMEOUT", 5*time.Second),
		DirectoryToken:   getEnv("DIRECTORY_TOKEN", ""),

		JWTSecret:     getEnv("JWT_SECRET", "your-secret-key"),
		JWTExpiration: getEnvAsInt("JWT_EXPIRATION", 24), // hours

		AllowedOrigins:    getEnvAsSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		RateLimitEnabled:  getEnvAsBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: getEnvAsInt("RATE_LIMIT_REQUESTS", 30),
		RateLimitDuration: getEnvAsDuration("RATE_LIMIT_DURATION", time.Minute),

		FanoutWorkers: getEnvAsInt("FANOUT_WORKERS", 32),
		WSSendBuffer:  getEnvAsInt("WS_SEND_BUFFER", 256),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 5),
		LogMaxAgeDays: getEnvAsInt("LOG_MAX_AGE_DAYS", 30),
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Printf("Invalid integer for %s, using default %d", key, defaultValue)
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("Invalid duration for %s, using default %s", key, defaultValue)
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
