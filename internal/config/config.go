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
	Port           string
	Host           string
	Env            string
	AllowedOrigins []string

	// MongoDB
	MongoURI     string
	DatabaseName string
	MongoTimeout int

	// JWT
	JWTSecret     string
	JWTExpiration int

	// Redis (group pub/sub transport). When disabled the server runs with
	// the in-process broker and cannot reach sessions on other processes.
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// WebSocket keepalive: clients ping every PingInterval, the session is
	// considered dead after PingTimeoutMultiplier intervals of silence.
	PingInterval          time.Duration
	PingTimeoutMultiplier int

	// Upper bound on a single transport publish call.
	PublishTimeout time.Duration

	// Base URL used to build admin action links in notifications.
	BackendURL string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	return &Config{
		Port:           getEnv("PORT", "8080"),
		Host:           getEnv("HOST", "0.0.0.0"),
		Env:            getEnv("ENV", "development"),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:3000"), ","),

		MongoURI:     getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DatabaseName: getEnv("DATABASE_NAME", "elearn_portal"),
		MongoTimeout: getEnvAsInt("MONGO_TIMEOUT", 10),

		JWTSecret:     getEnv("JWT_SECRET", "your-secret-key"),
		JWTExpiration: getEnvAsInt("JWT_EXPIRATION", 24), // hours

		RedisEnabled:  getEnvAsBool("REDIS_ENABLED", false),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		PingInterval:          time.Duration(getEnvAsInt("WS_PING_INTERVAL", 30)) * time.Second,
		PingTimeoutMultiplier: getEnvAsInt("WS_PING_TIMEOUT_MULTIPLIER", 3),

		PublishTimeout: time.Duration(getEnvAsInt("PUBLISH_TIMEOUT", 5)) * time.Second,

		BackendURL: getEnv("BACKEND_URL", "http://localhost:8080"),
	}
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
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
