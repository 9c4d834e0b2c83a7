package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Port          string        `env:"PORT" envDefault:"3000"`
	StorageDriver string        `env:"STORAGE_DRIVER" envDefault:"memory"`
	DatabaseURL   string        `env:"DATABASE_URL" envDefault:"pokerdash.db"`
	FrontendURLs  []string      `env:"FRONTEND_URL" envDefault:"http://localhost:3001" envSeparator:","`
	CookieName    string        `env:"SESSION_COOKIE" envDefault:"sessionId"`
	CookieTTL     time.Duration `env:"SESSION_COOKIE_TTL" envDefault:"24h"`
	CookieSecure  bool          `env:"COOKIE_SECURE" envDefault:"false"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat     string        `env:"LOG_FORMAT" envDefault:"console"`
	OTelEndpoint  string        `env:"OTEL_ENDPOINT"`
	PingInterval  time.Duration `env:"WS_PING_INTERVAL" envDefault:"15s"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load dotenv: %w", err)
	}
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	c.FrontendURLs = trimOrigins(c.FrontendURLs)
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	switch c.StorageDriver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required for storage driver %q", c.StorageDriver)
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q (want memory, sqlite or postgres)", c.StorageDriver)
	}
	if c.CookieName == "" {
		return errors.New("SESSION_COOKIE must not be empty")
	}
	if c.PingInterval <= 0 {
		return errors.New("WS_PING_INTERVAL must be positive")
	}
	return nil
}

func trimOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, o := range in {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}
