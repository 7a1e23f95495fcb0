package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/fjod/go_cart/session-cart/internal/catalog"
	"github.com/fjod/go_cart/session-cart/internal/cart"
	"github.com/joho/godotenv"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
)

type Config struct {
	HTTPPort            string
	DBPath              string
	SessionBackend      string
	SessionTTL          time.Duration
	RedisAddr           string
	RedisPassword       string
	MongoURI            string
	MongoDBName         string
	MongoMaxPoolSize    uint64
	MongoConnectTimeout time.Duration
	CartSessionKey      string
	ProductLookup       catalog.Lookup
	OptionLookup        catalog.Lookup
	RequestTimeout      time.Duration
	ShutdownTimeout     time.Duration
	Development         bool
}

// Load reads the configuration from the environment. Values from a .env file
// in the working directory are used for variables that are not set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		HTTPPort:       getEnv("HTTP_PORT", "8080"),
		DBPath:         getEnv("DB_PATH", "./catalog.db"),
		SessionBackend: getEnv("SESSION_BACKEND", BackendMemory),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		MongoURI:       getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:    getEnv("MONGO_DB_NAME", "sessiondb"),
		CartSessionKey: getEnv("CART_SESSION_KEY", cart.DefaultSessionKey),
		Development:    getEnv("APP_ENV", "production") == "development",
	}

	var err error
	if cfg.SessionTTL, err = getDuration("SESSION_TTL", 14*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = getDuration("REQUEST_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.MongoConnectTimeout, err = getDuration("MONGO_CONNECT_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.MongoMaxPoolSize, err = getUint("MONGO_MAX_POOL_SIZE", 50); err != nil {
		return nil, err
	}
	if cfg.ProductLookup, err = getLookup("CART_PRODUCT_LOOKUP"); err != nil {
		return nil, err
	}
	if cfg.OptionLookup, err = getLookup("CART_OPTION_LOOKUP"); err != nil {
		return nil, err
	}

	switch cfg.SessionBackend {
	case BackendMemory, BackendRedis, BackendMongo:
	default:
		return nil, fmt.Errorf("unknown SESSION_BACKEND %q", cfg.SessionBackend)
	}

	return cfg, nil
}

func (c *Config) Lookups() catalog.Lookups {
	return catalog.Lookups{Product: c.ProductLookup, Option: c.OptionLookup}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getUint(key string, defaultValue uint64) (uint64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

// getLookup parses a JSON object such as {"active": true}.
func getLookup(key string) (catalog.Lookup, error) {
	value := os.Getenv(key)
	if value == "" {
		return nil, nil
	}
	var l catalog.Lookup
	if err := json.Unmarshal([]byte(value), &l); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	return l, nil
}
