package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every setting the application needs.
type Config struct {
	DBUser          string
	DBPassword      string
	DBHost          string
	DBPort          string
	DBName          string
	DSN             string
	JWTSecretKey    string
	ListenAddr      string
	AllowedOrigins  []string
	SettlementDelay time.Duration
}

// Load reads the .env file at path (if it exists) and builds the Config
// from the environment.
func Load(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := &Config{
		DBUser:       os.Getenv("POSTGRES_USER"),
		DBPassword:   os.Getenv("POSTGRES_PASSWORD"),
		DBHost:       os.Getenv("POSTGRES_HOST"),
		DBPort:       os.Getenv("POSTGRES_PORT"),
		DBName:       os.Getenv("POSTGRES_DB"),
		JWTSecretKey: os.Getenv("JWT_SECRET_KEY"),
		ListenAddr:   os.Getenv("LISTEN_ADDR"),
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}

	cfg.DSN = fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, strings.TrimSpace(o))
		}
	} else {
		cfg.AllowedOrigins = []string{"http://localhost:3000"}
	}

	cfg.SettlementDelay = 15 * time.Second
	if raw := os.Getenv("SETTLEMENT_DELAY_SECONDS"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs < 0 {
			return nil, fmt.Errorf("invalid SETTLEMENT_DELAY_SECONDS: %q", raw)
		}
		cfg.SettlementDelay = time.Duration(secs) * time.Second
	}

	return cfg, nil
}
