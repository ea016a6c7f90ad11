package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string `env:"LENDING_HTTP_ADDR" envDefault:":8080"`
	GRPCAddr string `env:"LENDING_GRPC_ADDR" envDefault:":50051"`

	DBDriver string `env:"LENDING_DB_DRIVER" envDefault:"sqlite"`
	DBDSN    string `env:"LENDING_DB_DSN" envDefault:"lending.db"`

	RedisAddr      string `env:"LENDING_REDIS_ADDR" envDefault:"localhost:6379"`
	RabbitURL      string `env:"LENDING_RABBIT_URL"`
	RabbitExchange string `env:"LENDING_RABBIT_EXCHANGE" envDefault:"lending.events"`

	BlobDir     string `env:"LENDING_BLOB_DIR" envDefault:"./blobs"`
	BlobBaseURL string `env:"LENDING_BLOB_BASE_URL" envDefault:"/content"`

	PlanCacheSize   int           `env:"LENDING_PLAN_CACHE_SIZE" envDefault:"64"`
	SweepInterval   time.Duration `env:"LENDING_SWEEP_INTERVAL" envDefault:"1h"`
	DispatchWorkers int           `env:"LENDING_DISPATCH_WORKERS" envDefault:"4"`
	DispatchQueue   int           `env:"LENDING_DISPATCH_QUEUE" envDefault:"1000"`
	TaskTimeout     time.Duration `env:"LENDING_TASK_TIMEOUT" envDefault:"10s"`

	DeliveryFeeCents int64         `env:"LENDING_DELIVERY_FEE_CENTS" envDefault:"499"`
	ReturnWindow     time.Duration `env:"LENDING_RETURN_WINDOW" envDefault:"168h"`

	OTelEndpoint string   `env:"LENDING_OTEL_ENDPOINT"`
	CORSOrigins  []string `env:"LENDING_CORS_ORIGINS" envDefault:"*" envSeparator:","`
	LogLevel     string   `env:"LENDING_LOG_LEVEL" envDefault:"info"`
	LogJSON      bool     `env:"LENDING_LOG_JSON"`
}

// Load reads the given dotenv files (missing files are ignored) and then the
// process environment. Variables already set win over dotenv values.
func Load(dotenvFiles ...string) (Config, error) {
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.DBDriver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("LENDING_DB_DRIVER must be mysql or sqlite, got %q", c.DBDriver)
	}
	if c.DBDSN == "" {
		return errors.New("LENDING_DB_DSN is required")
	}
	if c.DispatchWorkers < 1 || c.DispatchQueue < 1 {
		return errors.New("dispatcher needs at least one worker and one queue slot")
	}
	if c.SweepInterval <= 0 {
		return errors.New("LENDING_SWEEP_INTERVAL must be positive")
	}
	if c.DeliveryFeeCents < 0 {
		return errors.New("LENDING_DELIVERY_FEE_CENTS must not be negative")
	}
	if c.ReturnWindow <= 0 {
		return errors.New("LENDING_RETURN_WINDOW must be positive")
	}
	return nil
}
