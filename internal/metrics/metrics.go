package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/process"
)

type Metrics struct {
	registry *prometheus.Registry

	InvocationsCounter *prometheus.CounterVec
	SentCounter        prometheus.Counter
	SendFailureCounter prometheus.Counter
	CursorGauge        prometheus.Gauge
	QuotaGauge         prometheus.Gauge
	MemoryUsageGauge   *prometheus.GaugeVec
	CpuUsageGauge      *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	metrics := &Metrics{
		registry: prometheus.NewRegistry(),
		InvocationsCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailbatch_invocations_total",
				Help: "Job invocations by outcome.",
			},
			[]string{"outcome"},
		),
		SentCounter: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mailbatch_recipients_sent_total",
				Help: "Recipients marked as sent.",
			},
		),
		SendFailureCounter: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mailbatch_send_failures_total",
				Help: "Batch sends rejected by the mail transport.",
			},
		),
		CursorGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailbatch_cursor",
				Help: "Row index the next batch starts from.",
			},
		),
		QuotaGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailbatch_remaining_quota",
				Help: "Sends left according to the quota gate.",
			},
		),
		MemoryUsageGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "app_memory_usage_bytes",
				Help: "Amount of memory used by the application.",
			},
			[]string{"type"},
		),
		CpuUsageGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "app_cpu_usage_percent",
				Help: "CPU usage percentage.",
			},
			[]string{"cpu"},
		),
	}

	metrics.registry.MustRegister(
		metrics.InvocationsCounter,
		metrics.SentCounter,
		metrics.SendFailureCounter,
		metrics.CursorGauge,
		metrics.QuotaGauge,
		metrics.MemoryUsageGauge,
		metrics.CpuUsageGauge,
	)

	return metrics
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Invocation(outcome string) {
	m.InvocationsCounter.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Sent(n int) {
	m.SentCounter.Add(float64(n))
}

func (m *Metrics) SendFailed() {
	m.SendFailureCounter.Inc()
}

func (m *Metrics) Cursor(value int) {
	m.CursorGauge.Set(float64(value))
}

func (m *Metrics) Quota(remaining int) {
	m.QuotaGauge.Set(float64(remaining))
}

// CollectProcessStats samples memory and CPU usage of the current process
// every interval until ctx is done.
func (m *Metrics) CollectProcessStats(ctx context.Context, interval time.Duration) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		slog.Warn("process stats unavailable", "error", err)
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		m.sampleProcess(proc)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Metrics) sampleProcess(proc *process.Process) {
	if mem, err := proc.MemoryInfo(); err == nil {
		m.MemoryUsageGauge.WithLabelValues("rss").Set(float64(mem.RSS))
		m.MemoryUsageGauge.WithLabelValues("vms").Set(float64(mem.VMS))
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		m.CpuUsageGauge.WithLabelValues("process").Set(cpu)
	}
}
