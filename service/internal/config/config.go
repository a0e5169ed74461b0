// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds the relay's configuration values.
type Config struct {
	Addr      string // listen address for HTTP and websockets
	GinMode   string // gin mode: release, debug or test
	LogLevel  string
	LogFormat string // "text" or "json"

	JWTSecret string
	JWTIssuer string
	TokenTTL  time.Duration

	RedisAddr     string // empty keeps the action log in memory
	RedisPassword string
	RedisDB       int
	LogTTL        time.Duration // how long a session's records outlive its last write

	DatabaseURL string // empty disables the results store

	ContentFile    string // empty uses the built-in pools
	ContentEdition string // empty uses the catalog default

	ComputerPolicy      string
	ComputerDelayMin    time.Duration
	ComputerDelayMax    time.Duration
	TurnTimeout         time.Duration
	ReconnectGrace      time.Duration // wait before a computer takes a dropped seat
	ForfeitOnDisconnect bool
}

// Load reads a .env file if present, then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.WithError(err).Warn(".env file could not be loaded")
	}
	return FromEnv()
}

// FromEnv builds the configuration from environment variables alone.
func FromEnv() (Config, error) {
	var errs []error
	cfg := Config{
		Addr:      getEnvWithDefault("LISTEN_ADDR", ":8080"),
		GinMode:   getEnvWithDefault("GIN_MODE", "release"),
		LogLevel:  getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvWithDefault("LOG_FORMAT", "text"),

		JWTSecret: os.Getenv("JWT_SECRET"),
		JWTIssuer: getEnvWithDefault("JWT_ISSUER", "ludo-relay"),
		TokenTTL:  getEnvAsDuration("TOKEN_TTL", 24*time.Hour, &errs),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvAsInt("REDIS_DB", 0, &errs),
		LogTTL:        getEnvAsDuration("ACTION_LOG_TTL", 24*time.Hour, &errs),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		ContentFile:    os.Getenv("CONTENT_FILE"),
		ContentEdition: os.Getenv("CONTENT_EDITION"),

		ComputerPolicy:      getEnvWithDefault("COMPUTER_POLICY", "greedy"),
		ComputerDelayMin:    getEnvAsDuration("COMPUTER_DELAY_MIN", 400*time.Millisecond, &errs),
		ComputerDelayMax:    getEnvAsDuration("COMPUTER_DELAY_MAX", 1200*time.Millisecond, &errs),
		TurnTimeout:         getEnvAsDuration("TURN_TIMEOUT", 45*time.Second, &errs),
		ReconnectGrace:      getEnvAsDuration("RECONNECT_GRACE", 10*time.Second, &errs),
		ForfeitOnDisconnect: getEnvAsBool("FORFEIT_ON_DISCONNECT", false, &errs),
	}
	if cfg.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is not set"))
	}
	if cfg.ComputerDelayMax < cfg.ComputerDelayMin {
		errs = append(errs, fmt.Errorf("COMPUTER_DELAY_MAX %s is below COMPUTER_DELAY_MIN %s", cfg.ComputerDelayMax, cfg.ComputerDelayMin))
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat))
	}
	return cfg, errors.Join(errs...)
}

// ConfigureLogger applies the level and format to the standard logrus logger.
func (c Config) ConfigureLogger() error {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	if c.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// getEnvWithDefault retrieves the value of an environment variable or returns a default value if not set.
func getEnvWithDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int, errs *[]error) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be an integer: %w", key, err))
		return defaultValue
	}
	return n
}

func getEnvAsDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be a duration: %w", key, err))
		return defaultValue
	}
	return d
}

func getEnvAsBool(key string, defaultValue bool, errs *[]error) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be a boolean: %w", key, err))
		return defaultValue
	}
	return b
}
