package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

var ErrInvalidConfig = errors.New("invalid configuration")

const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Liveness holds the timing and failure policy shared by the heartbeat
// emitter and the liveness monitor. It is loaded once and never mutated.
type Liveness struct {
	HeartbeatInterval        time.Duration
	FailedHeartbeatTolerance float64
	ShutdownOnError          bool

	StaggerMin time.Duration
	StaggerMax time.Duration
}

// DeadAfter is the heartbeat age after which a running job is considered dead.
func (l Liveness) DeadAfter() time.Duration {
	return time.Duration(l.FailedHeartbeatTolerance * float64(l.HeartbeatInterval))
}

type Config struct {
	Liveness Liveness

	StoreBackend string
	DatabaseURL  string
	RedisAddr    string
	RedisDB      int

	OpsAddr          string
	LogLevel         string
	LogFormat        string
	EmitterStatusURL string
}

func DefaultLiveness() Liveness {
	return Liveness{
		HeartbeatInterval:        10 * time.Second,
		FailedHeartbeatTolerance: 3,
		ShutdownOnError:          true,
		StaggerMin:               time.Second,
		StaggerMax:               9 * time.Second,
	}
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from the given lookup function.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	defaults := DefaultLiveness()
	env := envReader{lookup: lookup}

	cfg := Config{
		Liveness: Liveness{
			HeartbeatInterval:        env.duration("HEARTBEAT_INTERVAL", defaults.HeartbeatInterval),
			FailedHeartbeatTolerance: env.float("FAILED_HEARTBEAT_TOLERANCE", defaults.FailedHeartbeatTolerance),
			ShutdownOnError:          env.bool("SHUTDOWN_ON_ERROR", defaults.ShutdownOnError),
			StaggerMin:               env.duration("MONITOR_STAGGER_MIN", defaults.StaggerMin),
			StaggerMax:               env.duration("MONITOR_STAGGER_MAX", defaults.StaggerMax),
		},
		StoreBackend:     env.string("STORE_BACKEND", BackendPostgres),
		DatabaseURL:      env.string("DATABASE_URL", ""),
		RedisAddr:        env.string("REDIS_ADDR", ""),
		RedisDB:          env.int("REDIS_DB", 0),
		OpsAddr:          env.string("OPS_ADDR", ":9090"),
		LogLevel:         env.string("LOG_LEVEL", "info"),
		LogFormat:        env.string("LOG_FORMAT", "json"),
		EmitterStatusURL: env.string("EMITTER_STATUS_URL", ""),
	}

	if env.err != nil {
		return Config{}, env.err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if err := c.Liveness.Validate(); err != nil {
		return err
	}

	switch c.StoreBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s backend: %w", c.StoreBackend, ErrInvalidConfig)
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the %s backend: %w", c.StoreBackend, ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("unknown store backend %q: %w", c.StoreBackend, ErrInvalidConfig)
	}

	return nil
}

func (l Liveness) Validate() error {
	if l.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive, got %s: %w", l.HeartbeatInterval, ErrInvalidConfig)
	}

	if !(l.FailedHeartbeatTolerance > 0) {
		return fmt.Errorf("failed heartbeat tolerance must be positive, got %v: %w", l.FailedHeartbeatTolerance, ErrInvalidConfig)
	}

	if l.FailedHeartbeatTolerance*float64(l.HeartbeatInterval) >= math.MaxInt64 {
		return fmt.Errorf("dead-after window %v x %s does not fit in a duration: %w",
			l.FailedHeartbeatTolerance, l.HeartbeatInterval, ErrInvalidConfig)
	}

	if l.StaggerMin < 0 || l.StaggerMax < l.StaggerMin {
		return fmt.Errorf("invalid stagger range [%s, %s]: %w", l.StaggerMin, l.StaggerMax, ErrInvalidConfig)
	}

	return nil
}

// envReader records the first parse failure so Load can report it once.
type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (r *envReader) raw(key string) (string, bool) {
	value, ok := r.lookup(key)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

func (r *envReader) fail(key, value string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("parse %s=%q: %v: %w", key, value, err, ErrInvalidConfig)
	}
}

func (r *envReader) string(key, def string) string {
	if value, ok := r.raw(key); ok {
		return value
	}
	return def
}

func (r *envReader) duration(key string, def time.Duration) time.Duration {
	value, ok := r.raw(key)
	if !ok {
		return def
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		r.fail(key, value, err)
		return def
	}
	return parsed
}

func (r *envReader) float(key string, def float64) float64 {
	value, ok := r.raw(key)
	if !ok {
		return def
	}

	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		r.fail(key, value, err)
		return def
	}
	return parsed
}

func (r *envReader) int(key string, def int) int {
	value, ok := r.raw(key)
	if !ok {
		return def
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		r.fail(key, value, err)
		return def
	}
	return parsed
}

func (r *envReader) bool(key string, def bool) bool {
	value, ok := r.raw(key)
	if !ok {
		return def
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		r.fail(key, value, err)
		return def
	}
	return parsed
}
