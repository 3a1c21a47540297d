package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3100"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"debug"`
	// APIKey is only enforced by the HTTP server, see RequireAPIKey.
	APIKey string `envconfig:"API_KEY"`
}

type StoreEnv struct {
	Type       string `envconfig:"STORE_TYPE" default:"yaml"`
	SQLitePath string `envconfig:"SQLITE_PATH" default:".riggerhire/riggerhire.db"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".riggerhire/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"riggerhire/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-southeast-2"`
}

type PaymentEnv struct {
	SuccessRate       float64       `envconfig:"PAYMENT_SUCCESS_RATE" default:"0.95"`
	Latency           time.Duration `envconfig:"PAYMENT_LATENCY" default:"1s"`
	EscrowLatency     time.Duration `envconfig:"ESCROW_LATENCY" default:"500ms"`
	ReconcileInterval time.Duration `envconfig:"PAYMENT_RECONCILE_INTERVAL" default:"1m"`
	StaleAfter        time.Duration `envconfig:"PAYMENT_STALE_AFTER" default:"5m"`
}

type ActorSyncEnv struct {
	PollInterval   time.Duration `envconfig:"ACTORSYNC_POLL_INTERVAL" default:"5s"`
	InitialBackoff time.Duration `envconfig:"ACTORSYNC_INITIAL_BACKOFF" default:"1s"`
	MaxBackoff     time.Duration `envconfig:"ACTORSYNC_MAX_BACKOFF" default:"10m"`
}

type EventEnv struct {
	// LogDir enables the daily JSONL event log when set.
	LogDir string `envconfig:"EVENT_LOG_DIR"`
}

type Env struct {
	BaseEnv
	StoreEnv
	StorageEnv
	PaymentEnv
	ActorSyncEnv
	EventEnv
}

const namespace = "RIGGERHIRE"

var ErrMissingAPIKey = errors.New("RIGGERHIRE_API_KEY is required")

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	if err := env.validate(); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

func (e *Env) validate() error {
	switch e.StoreEnv.Type {
	case "yaml", "sqlite":
	default:
		return fmt.Errorf("unknown STORE_TYPE %q", e.StoreEnv.Type)
	}
	switch e.StorageEnv.Type {
	case "local":
	case "s3":
		if e.S3Bucket == "" {
			return errors.New("S3_BUCKET is required when STORAGE_TYPE=s3")
		}
	default:
		return fmt.Errorf("unknown STORAGE_TYPE %q", e.StorageEnv.Type)
	}
	if e.SuccessRate < 0 || e.SuccessRate > 1 {
		return fmt.Errorf("PAYMENT_SUCCESS_RATE must be within [0, 1], got %v", e.SuccessRate)
	}
	return nil
}

// RequireAPIKey fails when the HTTP server would run unauthenticated.
func (e *BaseEnv) RequireAPIKey() error {
	if e.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelDebug
	}
	return level
}
