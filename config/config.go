package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Database struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

type Redis struct {
	Host     string
	Port     string
	Password string
}

func (r Redis) Addr() string {
	return r.Host + ":" + r.Port
}

type Stripe struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
	SuccessURL    string
	CancelURL     string
}

type Config struct {
	Port        string
	StoreDriver string // postgres or memory
	Database    Database
	Redis       Redis

	KafkaBroker string
	KafkaTopic  string

	JWTSecret string
	Stripe    Stripe

	CartExpiry         time.Duration
	CartExpiryMaxRetry int
	AsynqConcurrency   int

	JaegerEndpoint string
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first when present.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:        getEnv("PORT", "8080"),
		StoreDriver: getEnv("STORE_DRIVER", "postgres"),
		Database: Database{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Name:     getEnv("DB_NAME", "marketplacedb"),
		},
		Redis: Redis{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		KafkaBroker: getEnv("KAFKA_BROKER", "localhost:9092"),
		KafkaTopic:  getEnv("KAFKA_TOPIC", "order_events"),
		JWTSecret:   getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		Stripe: Stripe{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			Currency:      getEnv("STRIPE_CURRENCY", "usd"),
			SuccessURL:    getEnv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/orders?success=true"),
			CancelURL:     getEnv("CHECKOUT_CANCEL_URL", "http://localhost:3000/cart"),
		},
		CartExpiry:         time.Duration(getEnvInt("CART_EXPIRY_MINUTES", 30)) * time.Minute,
		CartExpiryMaxRetry: getEnvInt("CART_EXPIRY_MAX_RETRY", 10000),
		AsynqConcurrency:   getEnvInt("ASYNQ_CONCURRENCY", 10),
		JaegerEndpoint:     getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
