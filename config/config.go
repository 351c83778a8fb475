package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Redis    RedisConfig
	Cart     CartConfig
	Metrics  MetricsConfig
}

type ServerConfig struct {
	Port        string
	GinMode     string
	Environment string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

// CartConfig carries the cart engine policy constants.
type CartConfig struct {
	ExpirationWindow      time.Duration
	MaxQuantityPerItem    int
	TaxRate               decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	ShippingCost          decimal.Decimal
	HighValueThreshold    decimal.Decimal
	SweepSchedule         string
	CatalogCacheTTL       time.Duration
	SessionCookieName     string
	SessionCookieMaxAge   time.Duration
}

type MetricsConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxQty, err := strconv.Atoi(getEnv("CART_MAX_QUANTITY_PER_ITEM", "10"))
	if err != nil || maxQty <= 0 {
		return nil, fmt.Errorf("invalid CART_MAX_QUANTITY_PER_ITEM %q", getEnv("CART_MAX_QUANTITY_PER_ITEM", "10"))
	}

	cart := CartConfig{
		ExpirationWindow:    parseDuration(getEnv("CART_EXPIRATION_WINDOW", "72h"), 72*time.Hour),
		MaxQuantityPerItem:  maxQty,
		SweepSchedule:       getEnv("CART_SWEEP_SCHEDULE", "@every 15m"),
		CatalogCacheTTL:     parseDuration(getEnv("CATALOG_CACHE_TTL", "5m"), 5*time.Minute),
		SessionCookieName:   getEnv("CART_SESSION_COOKIE", "cart_session_id"),
		SessionCookieMaxAge: parseDuration(getEnv("CART_SESSION_COOKIE_MAX_AGE", "720h"), 30*24*time.Hour),
	}

	money := []struct {
		key    string
		def    string
		target *decimal.Decimal
	}{
		{"CART_TAX_RATE", "0.18", &cart.TaxRate},
		{"CART_FREE_SHIPPING_THRESHOLD", "50000", &cart.FreeShippingThreshold},
		{"CART_SHIPPING_COST", "5000", &cart.ShippingCost},
		{"CART_HIGH_VALUE_THRESHOLD", "100000", &cart.HighValueThreshold},
	}
	for _, m := range money {
		value, err := decimal.NewFromString(getEnv(m.key, m.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", m.key, err)
		}
		*m.target = value
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			GinMode:     getEnv("GIN_MODE", "debug"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", "1234"),
			DBName:   getEnv("DB_NAME", "neatify"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "your-secret-key"),
		},
		CORS: CORSConfig{
			AllowedOrigins: parseSlice(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		},
		Redis: RedisConfig{
			Enabled:  parseBool(getEnv("REDIS_ENABLED", "false")),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Cart: cart,
		Metrics: MetricsConfig{
			Enabled: parseBool(getEnv("METRICS_ENABLED", "true")),
		},
	}

	return config, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	duration, err := time.ParseDuration(s)
	if err != nil {
		log.Printf("Invalid duration %s, using default %s", s, fallback)
		return fallback
	}
	return duration
}

func parseBool(s string) bool {
	v, err := strconv.ParseBool(s)
	return err == nil && v
}

func parseSlice(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
