package liveness

import (
	"math/rand/v2"
	"time"

	"github.com/vin-jex/job-overseer/internal/config"
)

// Threshold returns the cutoff for one monitor cycle. Jobs with a last
// heartbeat strictly before it are dead.
func Threshold(now time.Time, cfg config.Liveness) time.Time {
	return now.Add(-cfg.DeadAfter())
}

// Stagger yields the extra delay added to each monitor sleep.
type Stagger interface {
	Next() time.Duration
}

// UniformStagger draws uniformly from [Min, Max] at millisecond granularity.
type UniformStagger struct {
	Min time.Duration
	Max time.Duration

	// Rand is used when set; the global generator otherwise.
	Rand *rand.Rand
}

func NewUniformStagger(cfg config.Liveness) *UniformStagger {
	return &UniformStagger{Min: cfg.StaggerMin, Max: cfg.StaggerMax}
}

func (s *UniformStagger) Next() time.Duration {
	lo := s.Min.Milliseconds()
	hi := s.Max.Milliseconds()
	if hi <= lo {
		return time.Duration(lo) * time.Millisecond
	}

	span := hi - lo + 1
	var n int64
	if s.Rand != nil {
		n = s.Rand.Int64N(span)
	} else {
		n = rand.Int64N(span)
	}

	return time.Duration(lo+n) * time.Millisecond
}

// NoStagger always returns zero.
type NoStagger struct{}

func (NoStagger) Next() time.Duration { return 0 }
