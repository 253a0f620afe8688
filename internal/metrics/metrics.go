// Package metrics records pipeline outcomes on a private Prometheus registry
// that can be dumped in node-exporter textfile format after each command.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Counter names a pipeline counter.
type Counter string

const (
	FilesIngested      Counter = "files_ingested"
	FilesFailed        Counter = "files_failed"
	MasterRowsAppended Counter = "master_rows_appended"
	NumericRows        Counter = "numeric_rows"
)

// Recorder receives stage timings and counters.
type Recorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
	Count(ctx context.Context, counter Counter, n int)
}

// Noop discards everything.
type Noop struct{}

func (Noop) Observe(context.Context, string, bool, time.Duration) {}
func (Noop) Count(context.Context, Counter, int)                  {}

// Prometheus implements Recorder with client_golang collectors.
type Prometheus struct {
	registry *prometheus.Registry
	duration *prometheus.HistogramVec
	counters map[Counter]prometheus.Counter
}

// NewPrometheus registers the clinicflow collectors on a fresh registry.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	p := &Prometheus{
		registry: reg,
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinicflow",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stage runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"operation", "status"}),
		counters: map[Counter]prometheus.Counter{
			FilesIngested: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "clinicflow", Name: "files_ingested_total",
				Help: "Raw spreadsheets merged into the master table.",
			}),
			FilesFailed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "clinicflow", Name: "files_failed_total",
				Help: "Raw spreadsheets rejected as malformed or drifted.",
			}),
			MasterRowsAppended: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "clinicflow", Name: "master_rows_appended_total",
				Help: "Rows appended to the master table.",
			}),
			NumericRows: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "clinicflow", Name: "numeric_rows_total",
				Help: "Rows written to the numeric table.",
			}),
		},
	}
	reg.MustRegister(p.duration)
	for _, c := range p.counters {
		reg.MustRegister(c)
	}
	return p
}

// Observe records a stage outcome.
func (p *Prometheus) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	p.duration.WithLabelValues(operation, status).Observe(duration.Seconds())
}

// Count adds n to counter. Unknown counters and negative n are ignored.
func (p *Prometheus) Count(_ context.Context, counter Counter, n int) {
	c, ok := p.counters[counter]
	if !ok || n <= 0 {
		return
	}
	c.Add(float64(n))
}

// WriteTextfile writes the registry to path atomically.
func (p *Prometheus) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, p.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
