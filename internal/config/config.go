package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"stockcaisse/backend/internal/domain"
)

type Config struct {
	Port                   string
	AllowedOrigin          string
	DatabaseURL            string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	AuthSecret             string
	AccessTokenTTLMinutes  int
	PurchaseFundingMode    domain.FundingMode
	RestockCacheTTLSeconds int
	IdempotencyTTLSeconds  int
	TxMaxRetries           int
}

// Load reads the process environment. A .env file in the working
// directory, when present, fills variables that are not already set.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] WARN: .env not loaded: %v", err)
	}

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	funding := domain.FundingMode(strings.ToLower(getEnv("PURCHASE_FUNDING_MODE", string(domain.FundingCashRegister))))
	if !funding.Valid() {
		log.Printf("[config] WARN: unknown PURCHASE_FUNDING_MODE %q, using %s", funding, domain.FundingCashRegister)
		funding = domain.FundingCashRegister
	}

	return Config{
		Port:                   getEnv("PORT", "8080"),
		AllowedOrigin:          getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                redisDB,
		AuthSecret:             strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:  positiveInt("ACCESS_TOKEN_TTL_MINUTES", 480),
		PurchaseFundingMode:    funding,
		RestockCacheTTLSeconds: positiveInt("RESTOCK_CACHE_TTL_SECONDS", 60),
		IdempotencyTTLSeconds:  positiveInt("IDEMPOTENCY_TTL_SECONDS", 86400),
		TxMaxRetries:           positiveInt("TX_MAX_RETRIES", 3),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) RestockCacheTTL() time.Duration {
	return time.Duration(c.RestockCacheTTLSeconds) * time.Second
}

func (c Config) IdempotencyTTL() time.Duration {
	return time.Duration(c.IdempotencyTTLSeconds) * time.Second
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func positiveInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
