package config

import (
	"fmt"
	"time"

	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/database"
	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/progress"
	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/storage"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable, e.g.
// CLOUDDRIVE_STORAGE_DRIVER.
const Prefix = "CLOUDDRIVE"

type Config struct {
	GRPCPort    string `envconfig:"GRPC_PORT" default:"50051" validate:"required,numeric"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090" validate:"required,numeric"`
	DevMode     bool   `envconfig:"DEV_MODE" default:"false"`
	LogLevel    string `envconfig:"LOG_LEVEL"`
	TraceStdout bool   `envconfig:"TRACE_STDOUT" default:"false"`

	Database database.Config `envconfig:"DATABASE"`
	Storage  storage.Config  `envconfig:"STORAGE"`
	Progress progress.Config `envconfig:"PROGRESS"`
	Upload   UploadConfig    `envconfig:"UPLOAD"`
	Auth     AuthConfig      `envconfig:"AUTH"`
	Worker   WorkerConfig    `envconfig:"THUMBNAIL"`
}

type UploadConfig struct {
	MaxSize       int64         `envconfig:"MAX_SIZE" default:"536870912" validate:"gt=0"`
	MaxConcurrent int64         `envconfig:"MAX_CONCURRENT" default:"8" validate:"gt=0"`
	DedupLock     bool          `envconfig:"DEDUP_LOCK" default:"false"`
	SpoolDir      string        `envconfig:"SPOOL_DIR"`
	PresignTTL    time.Duration `envconfig:"PRESIGN_TTL" default:"168h" validate:"gt=0"`
}

type AuthConfig struct {
	// JWTSecret enables bearer token auth. Empty trusts the user-id header.
	JWTSecret string `envconfig:"JWT_SECRET"`
}

type WorkerConfig struct {
	Workers   int `envconfig:"WORKERS" default:"2" validate:"gte=0"`
	QueueSize int `envconfig:"QUEUE_SIZE" default:"64" validate:"gt=0"`
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
