package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func lookupFrom(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(lookupFrom(map[string]string{
		"DATABASE_URL": "postgres://localhost/overseer",
	}))
	require.NoError(t, err)

	require.Equal(t, DefaultLiveness(), cfg.Liveness)
	require.Equal(t, BackendPostgres, cfg.StoreBackend)
	require.Equal(t, ":9090", cfg.OpsAddr)
	require.Equal(t, 30*time.Second, cfg.Liveness.DeadAfter())
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(lookupFrom(map[string]string{
		"HEARTBEAT_INTERVAL":         "2s",
		"FAILED_HEARTBEAT_TOLERANCE": "2.5",
		"SHUTDOWN_ON_ERROR":          "false",
		"MONITOR_STAGGER_MIN":        "0s",
		"MONITOR_STAGGER_MAX":        "500ms",
		"STORE_BACKEND":              "redis",
		"REDIS_ADDR":                 "localhost:6379",
		"REDIS_DB":                   "3",
	}))
	require.NoError(t, err)

	require.Equal(t, 2*time.Second, cfg.Liveness.HeartbeatInterval)
	require.InDelta(t, 2.5, cfg.Liveness.FailedHeartbeatTolerance, 1e-9)
	require.False(t, cfg.Liveness.ShutdownOnError)
	require.Equal(t, 500*time.Millisecond, cfg.Liveness.StaggerMax)
	require.Equal(t, 3, cfg.RedisDB)
	require.Equal(t, 5*time.Second, cfg.Liveness.DeadAfter())
}

func TestFromEnvRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "unparsable interval",
			env:  map[string]string{"DATABASE_URL": "x", "HEARTBEAT_INTERVAL": "soon"},
		},
		{
			name: "zero interval",
			env:  map[string]string{"DATABASE_URL": "x", "HEARTBEAT_INTERVAL": "0s"},
		},
		{
			name: "negative tolerance",
			env:  map[string]string{"DATABASE_URL": "x", "FAILED_HEARTBEAT_TOLERANCE": "-1"},
		},
		{
			name: "tolerance overflows duration",
			env:  map[string]string{"DATABASE_URL": "x", "FAILED_HEARTBEAT_TOLERANCE": "1e300"},
		},
		{
			name: "infinite tolerance",
			env:  map[string]string{"DATABASE_URL": "x", "FAILED_HEARTBEAT_TOLERANCE": "Inf"},
		},
		{
			name: "nan tolerance",
			env:  map[string]string{"DATABASE_URL": "x", "FAILED_HEARTBEAT_TOLERANCE": "NaN"},
		},
		{
			name: "inverted stagger range",
			env:  map[string]string{"DATABASE_URL": "x", "MONITOR_STAGGER_MIN": "5s", "MONITOR_STAGGER_MAX": "1s"},
		},
		{
			name: "missing database url",
			env:  map[string]string{},
		},
		{
			name: "missing redis address",
			env:  map[string]string{"STORE_BACKEND": "redis"},
		},
		{
			name: "unknown backend",
			env:  map[string]string{"STORE_BACKEND": "etcd"},
		},
		{
			name: "bad bool",
			env:  map[string]string{"DATABASE_URL": "x", "SHUTDOWN_ON_ERROR": "maybe"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(lookupFrom(tt.env))
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLivenessValidateBoundsDeadAfterWindow(t *testing.T) {
	cfg := DefaultLiveness()
	cfg.HeartbeatInterval = time.Hour
	cfg.FailedHeartbeatTolerance = 1e5

	require.NoError(t, cfg.Validate())
	require.Equal(t, 1e5*float64(time.Hour), float64(cfg.DeadAfter()))

	cfg.FailedHeartbeatTolerance = 1e12
	require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}
