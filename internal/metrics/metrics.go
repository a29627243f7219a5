package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus counters of the correlation engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	FilesProcessed    prometheus.Counter
	FilesSkipped      *prometheus.CounterVec
	FileErrors        prometheus.Counter
	CorrelationHits   prometheus.Counter
	GlobalBadHits     prometheus.Counter
	RuleMatches       prometheus.Counter
	ArtifactsBuffered prometheus.Counter
	BulkFlushes       prometheus.Counter
	FlushedInstances  prometheus.Counter
	FlushErrors       prometheus.Counter
	TagEventsHandled  *prometheus.CounterVec
	TagEventsDropped  prometheus.Counter
	Notifications     *prometheus.CounterVec
}

// New creates the counters on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		FilesProcessed: f.NewCounter(prometheus.CounterOpts{
			Name: "centralrepo_files_processed_total",
			Help: "Files that reached the correlation step",
		}),
		FilesSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "centralrepo_files_skipped_total",
			Help: "Files skipped before correlation, by reason",
		}, []string{"reason"}),
		FileErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "centralrepo_file_errors_total",
			Help: "Files whose processing returned an error result",
		}),
		CorrelationHits: f.NewCounter(prometheus.CounterOpts{
			Name: "centralrepo_correlation_hits_total",
			Help: "Files whose hash is notable in another case",
		}),
		GlobalBadHits: f.NewCounter(prometheus.CounterOpts{
			Name: "centralrepo_global_bad_hits_total",
			Help: "Files whose hash is globally notable",
		}),
		RuleMatches: f.NewCounter(prometheus.CounterOpts{
			Name: "centralrepo_rule_matches_total",
			Help: "Interesting-file rule matches",
		}),
		ArtifactsBuffered: f.NewCounter(prometheus.CounterOpts{
			Name: "centralrepo_artifacts_buffered_total",
			Help: "Artifacts appended to a job bulk buffer",
		}),
		BulkFlushes: f.NewCounter(prometheus.CounterOpts{
			Name: "centralrepo_bulk_flushes_total",
			Help: "Successful bulk buffer flushes",
		}),
		FlushedInstances: f.NewCounter(prometheus.CounterOpts{
			Name: "centralrepo_flushed_artifacts_total",
			Help: "Artifacts written by bulk flushes",
		}),
		FlushErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "centralrepo_flush_errors_total",
			Help: "Failed bulk buffer flushes",
		}),
		TagEventsHandled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "centralrepo_case_events_handled_total",
			Help: "Case events handled by the listener, by event name",
		}, []string{"event"}),
		TagEventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "centralrepo_case_events_dropped_total",
			Help: "Case events dropped because the listener queue stayed full",
		}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "centralrepo_notifications_total",
			Help: "Notifications posted, by kind",
		}, []string{"kind"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) IncFilesProcessed() {
	if m != nil {
		m.FilesProcessed.Inc()
	}
}

func (m *Metrics) IncFilesSkipped(reason string) {
	if m != nil {
		m.FilesSkipped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) IncFileErrors() {
	if m != nil {
		m.FileErrors.Inc()
	}
}

func (m *Metrics) IncCorrelationHits() {
	if m != nil {
		m.CorrelationHits.Inc()
	}
}

func (m *Metrics) IncGlobalBadHits() {
	if m != nil {
		m.GlobalBadHits.Inc()
	}
}

func (m *Metrics) IncRuleMatches() {
	if m != nil {
		m.RuleMatches.Inc()
	}
}

func (m *Metrics) IncArtifactsBuffered() {
	if m != nil {
		m.ArtifactsBuffered.Inc()
	}
}

// ObserveFlush records one flush attempt of n artifacts.
func (m *Metrics) ObserveFlush(n int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.FlushErrors.Inc()
		return
	}
	m.BulkFlushes.Inc()
	m.FlushedInstances.Add(float64(n))
}

func (m *Metrics) IncTagEventsHandled(event string) {
	if m != nil {
		m.TagEventsHandled.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) IncTagEventsDropped() {
	if m != nil {
		m.TagEventsDropped.Inc()
	}
}

func (m *Metrics) IncNotifications(kind string) {
	if m != nil {
		m.Notifications.WithLabelValues(kind).Inc()
	}
}
