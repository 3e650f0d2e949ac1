package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "overseer"

const (
	LoopEmitter = "emitter"
	LoopMonitor = "monitor"
)

// Metrics holds the liveness collectors. A nil *Metrics records nothing.
type Metrics struct {
	heartbeats        prometheus.Counter
	heartbeatsSkipped prometheus.Counter
	cycles            *prometheus.CounterVec
	cycleErrors       *prometheus.CounterVec
	deadJobsFound     prometheus.Counter
	jobsReset         prometheus.Counter
	stagger           prometheus.Histogram
	lastCycle         *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them on reg.
// prometheus.DefaultRegisterer is used when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_total",
			Help:      "Heartbeats recorded for the currently running job.",
		}),
		heartbeatsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_skipped_total",
			Help:      "Emitter cycles that found no running job.",
		}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed loop cycles by loop.",
		}, []string{"loop"}),
		cycleErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycle_errors_total",
			Help:      "Loop cycles that ended in an error by loop.",
		}, []string{"loop"}),
		deadJobsFound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_jobs_found_total",
			Help:      "Jobs reported dead by the store.",
		}),
		jobsReset: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_reset_total",
			Help:      "Dead jobs reset to a re-runnable state.",
		}),
		stagger: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "monitor_stagger_seconds",
			Help:      "Random stagger added to the monitor sleep.",
			Buckets:   []float64{0.5, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		}),
		lastCycle: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Unix time the loop last finished a cycle.",
		}, []string{"loop"}),
	}

	reg.MustRegister(
		m.heartbeats,
		m.heartbeatsSkipped,
		m.cycles,
		m.cycleErrors,
		m.deadJobsFound,
		m.jobsReset,
		m.stagger,
		m.lastCycle,
	)

	return m
}

func (m *Metrics) HeartbeatRecorded() {
	if m == nil {
		return
	}
	m.heartbeats.Inc()
}

func (m *Metrics) HeartbeatSkipped() {
	if m == nil {
		return
	}
	m.heartbeatsSkipped.Inc()
}

func (m *Metrics) CycleFinished(loop string, at time.Time, err error) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(loop).Inc()
	m.lastCycle.WithLabelValues(loop).Set(float64(at.UnixNano()) / float64(time.Second))
	if err != nil {
		m.cycleErrors.WithLabelValues(loop).Inc()
	}
}

func (m *Metrics) DeadJobsFound(n int) {
	if m == nil {
		return
	}
	m.deadJobsFound.Add(float64(n))
}

func (m *Metrics) JobReset() {
	if m == nil {
		return
	}
	m.jobsReset.Inc()
}

func (m *Metrics) StaggerDrawn(d time.Duration) {
	if m == nil {
		return
	}
	m.stagger.Observe(d.Seconds())
}
