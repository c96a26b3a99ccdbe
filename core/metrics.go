package core

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics 问答服务指标
// 使用独立 Registry，方便测试中重复创建；所有方法对 nil 接收者安全
type Metrics struct {
	Registry *prometheus.Registry

	AttemptsTotal    *prometheus.CounterVec
	RotationsTotal   prometheus.Counter
	ResolutionsTotal *prometheus.CounterVec
	AskDuration      *prometheus.HistogramVec
	ActiveSessions   prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		AttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "docqa",
				Subsystem: "invoker",
				Name:      "attempts_total",
				Help:      "Remote generation calls by model and outcome",
			},
			[]string{"model", "outcome"},
		),
		RotationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "docqa",
				Subsystem: "invoker",
				Name:      "credential_rotations_total",
				Help:      "Credential rotations triggered by quota or rejection",
			},
		),
		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "docqa",
				Subsystem: "resolver",
				Name:      "resolutions_total",
				Help:      "Model resolutions by result (matched, default, discovery_error)",
			},
			[]string{"result"},
		),
		AskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "docqa",
				Subsystem: "assistant",
				Name:      "ask_duration_seconds",
				Help:      "End-to-end question latency including retries",
				Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
			},
			[]string{"result"},
		),
		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "docqa",
				Subsystem: "sessions",
				Name:      "active",
				Help:      "Open chat sessions",
			},
		),
	}
	m.Registry.MustRegister(
		m.AttemptsTotal,
		m.RotationsTotal,
		m.ResolutionsTotal,
		m.AskDuration,
		m.ActiveSessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) attempt(model, outcome string) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(model, outcome).Inc()
}

func (m *Metrics) rotation() {
	if m == nil {
		return
	}
	m.RotationsTotal.Inc()
}

func (m *Metrics) resolution(result string) {
	if m == nil {
		return
	}
	m.ResolutionsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ask(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.AskDuration.WithLabelValues(result).Observe(d.Seconds())
}

func (m *Metrics) sessions(delta float64) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(delta)
}
