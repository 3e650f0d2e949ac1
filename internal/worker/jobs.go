package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vin-jex/job-overseer/internal/observability"
	"github.com/vin-jex/job-overseer/internal/store"
)

const defaultSleep = time.Second

type sleepPayload struct {
	DurationMS int `json:"duration_ms"`
}

// SleepJob waits for payload.duration_ms (default one second) or until the
// job context ends. It stands in for real job logic.
func SleepJob(ctx context.Context, job *store.Job) error {
	duration := defaultSleep

	if len(job.Payload) > 0 {
		var payload sleepPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		if payload.DurationMS > 0 {
			duration = time.Duration(payload.DurationMS) * time.Millisecond
		}
	}

	observability.LoggerFromContext(ctx).Debug("sleep job running", "duration", duration)

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
