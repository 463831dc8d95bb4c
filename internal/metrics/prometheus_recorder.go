package metrics

import (
	"os"
	"path/filepath"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "appshelf"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	reg           *prom.Registry
	stageDuration *prom.HistogramVec
	buildDuration prom.Histogram
	stageResults  *prom.CounterVec
	buildOutcome  *prom.CounterVec
	violations    *prom.CounterVec
	entries       *prom.CounterVec
	writes        *prom.CounterVec
	workers       *prom.GaugeVec
}

// NewPrometheusRecorder constructs metrics and registers them on reg, or on
// a fresh private registry when reg is nil.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		reg: reg,
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual build stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"}),
		buildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   prom.DefBuckets,
		}),
		stageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"}),
		violations: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "violations_total",
			Help:      "Reported violations by kind and severity",
		}, []string{"kind", "severity"}),
		entries: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "entries_total",
			Help:      "Catalogue entries by processing state",
		}, []string{"state"}),
		writes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "output_files_total",
			Help:      "Output files by write result",
		}, []string{"result"}),
		workers: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_workers",
			Help:      "Worker pool size used by the last run of a stage",
		}, []string{"stage"}),
	}
	reg.MustRegister(pr.stageDuration, pr.buildDuration, pr.stageResults, pr.buildOutcome,
		pr.violations, pr.entries, pr.writes, pr.workers)
	return pr
}

// Registry returns the registry the recorder's metrics live on.
func (p *PrometheusRecorder) Registry() *prom.Registry { return p.reg }

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome BuildOutcomeLabel) {
	p.buildOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) AddViolations(kind, severity string, n int) {
	if n > 0 {
		p.violations.WithLabelValues(kind, severity).Add(float64(n))
	}
}

func (p *PrometheusRecorder) AddEntries(state string, n int) {
	if n > 0 {
		p.entries.WithLabelValues(state).Add(float64(n))
	}
}

func (p *PrometheusRecorder) AddWrites(result string, n int) {
	if n > 0 {
		p.writes.WithLabelValues(result).Add(float64(n))
	}
}

func (p *PrometheusRecorder) SetWorkers(stage string, n int) {
	p.workers.WithLabelValues(stage).Set(float64(n))
}

// WriteTextfile dumps every metric on the recorder's registry to path in
// the text exposition format, atomically.
func (p *PrometheusRecorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return prom.WriteToTextfile(path, p.reg)
}
