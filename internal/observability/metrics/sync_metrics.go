package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config carries the constant labels applied to every metric.
type Config struct {
	ServiceName string
	Environment string
}

const (
	SyncJobReasonDeadlineExceeded = "deadline_exceeded"
	SyncJobReasonUpstream         = "upstream"
	SyncJobReasonUniqueViolation  = "unique_violation"
	SyncJobReasonUnknown          = "unknown"
)

const (
	ProfileResultSucceeded = "succeeded"
	ProfileResultFailed    = "failed"
	ProfileResultSkipped   = "skipped"
)

const (
	UpstreamEndpointDirectory = "directory"
	UpstreamEndpointLedger    = "ledger"

	UpstreamResultOK      = "ok"
	UpstreamResultTimeout = "timeout"
	UpstreamResultError   = "error"
)

// SyncMetrics captures resolution and package sync health signals.
type SyncMetrics struct {
	jobRuns           *prometheus.CounterVec
	jobDuration       *prometheus.HistogramVec
	jobTimeouts       *prometheus.CounterVec
	jobErrors         *prometheus.CounterVec
	profilesProcessed *prometheus.CounterVec
	upstreamCalls     *prometheus.CounterVec
	upstreamDuration  *prometheus.HistogramVec
	runLoopLag        prometheus.Observer
}

var (
	syncMetricsOnce sync.Once
	syncMetrics     *SyncMetrics
)

// Sync returns the singleton sync metrics registry.
func Sync() *SyncMetrics {
	return SyncWithConfig(Config{})
}

// SyncWithConfig returns the singleton sync metrics registry using config labels.
func SyncWithConfig(cfg Config) *SyncMetrics {
	syncMetricsOnce.Do(func() {
		syncMetrics = newSyncMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return syncMetrics
}

// ResetSyncMetricsForTest resets the sync metrics singleton for tests.
func ResetSyncMetricsForTest() {
	syncMetricsOnce = sync.Once{}
	syncMetrics = nil
}

func newSyncMetrics(registerer prometheus.Registerer, cfg Config) *SyncMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "crmlink"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "crmlink_sync_job_runs_total",
		Help:        "Sync job runs by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "crmlink_sync_job_duration_seconds",
		Help:        "Sync job latency to protect cache freshness.",
		Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300, 600, 1800},
		ConstLabels: constLabels,
	}, []string{"job"})
	jobTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "crmlink_sync_job_timeouts_total",
		Help:        "Sync job timeouts that threaten cache freshness.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "crmlink_sync_job_errors_total",
		Help:        "Sync job errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	profilesProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "crmlink_sync_profiles_total",
		Help:        "Profiles processed by sync jobs, by result.",
		ConstLabels: constLabels,
	}, []string{"job", "result"})
	upstreamCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "crmlink_upstream_calls_total",
		Help:        "CRM upstream calls by endpoint and result.",
		ConstLabels: constLabels,
	}, []string{"endpoint", "result"})
	upstreamDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "crmlink_upstream_call_duration_seconds",
		Help:        "CRM upstream call latency.",
		Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		ConstLabels: constLabels,
	}, []string{"endpoint"})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "crmlink_sync_runloop_lag_seconds",
		Help:        "Resync run loop lag beyond the configured interval.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: constLabels,
	})

	registerer.MustRegister(
		jobRuns,
		jobDuration,
		jobTimeouts,
		jobErrors,
		profilesProcessed,
		upstreamCalls,
		upstreamDuration,
		runLoopLag,
	)

	return &SyncMetrics{
		jobRuns:           jobRuns,
		jobDuration:       jobDuration,
		jobTimeouts:       jobTimeouts,
		jobErrors:         jobErrors,
		profilesProcessed: profilesProcessed,
		upstreamCalls:     upstreamCalls,
		upstreamDuration:  upstreamDuration,
		runLoopLag:        runLoopLag,
	}
}

func (m *SyncMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *SyncMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *SyncMetrics) IncJobTimeout(job string) {
	if m == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

func (m *SyncMetrics) IncJobError(job string, err error) {
	if m == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, classifyJobError(err)).Inc()
}

func (m *SyncMetrics) IncProfileResult(job, result string) {
	if m == nil {
		return
	}
	m.profilesProcessed.WithLabelValues(job, result).Inc()
}

func (m *SyncMetrics) ObserveUpstreamCall(endpoint, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.upstreamCalls.WithLabelValues(endpoint, result).Inc()
	m.upstreamDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

func (m *SyncMetrics) ObserveRunLoopLag(d time.Duration) {
	if m == nil || d <= 0 {
		return
	}
	m.runLoopLag.Observe(d.Seconds())
}

func classifyJobError(err error) string {
	switch {
	case err == nil:
		return SyncJobReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return SyncJobReasonDeadlineExceeded
	case strings.Contains(err.Error(), "duplicate key"),
		strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return SyncJobReasonUniqueViolation
	case strings.Contains(err.Error(), "upstream"):
		return SyncJobReasonUpstream
	default:
		return SyncJobReasonUnknown
	}
}
