package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	contractx "github.com/tanpawarit/chative-pizzeria/agent/contract"
)

const DefaultNamespace = "pizzeria"

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	Turns          *prometheus.CounterVec
	TurnLatency    prometheus.Histogram
	StageFailures  *prometheus.CounterVec
	ToolExecutions *prometheus.CounterVec
	CacheLookups   *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the instruments on reg. A nil reg uses a private registry,
// which keeps tests from colliding on the default one.
func New(namespace string, reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)

	return &Metrics{
		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Dialogue turns by outcome.",
		}, []string{"outcome"}),
		TurnLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_latency_ms",
			Help:      "End-to-end turn latency in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 15000, 30000, 45000},
		}),
		StageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Dialogue stage failures by stage.",
		}, []string{"stage"}),
		ToolExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_executions_total",
			Help:      "Tool executions by tool and outcome.",
		}, []string{"tool", "outcome"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_cache_lookups_total",
			Help:      "Conversation context cache lookups by result.",
		}, []string{"result"}),
		gatherer: reg,
	}
}

func (m *Metrics) TurnCompleted(outcome string, elapsed time.Duration) {
	m.Turns.WithLabelValues(outcome).Inc()
	m.TurnLatency.Observe(float64(elapsed.Milliseconds()))
}

func (m *Metrics) StageFailed(stage contractx.Stage) {
	m.StageFailures.WithLabelValues(string(stage)).Inc()
}

func (m *Metrics) ToolExecuted(tool, outcome string) {
	m.ToolExecutions.WithLabelValues(tool, outcome).Inc()
}

func (m *Metrics) CacheLookup(result string) {
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
