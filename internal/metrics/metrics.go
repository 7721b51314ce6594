package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vaultx"

const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics holds the vault's prometheus collectors in a dedicated registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	instructions  *prometheus.CounterVec
	votes         *prometheus.CounterVec
	executions    *prometheus.CounterVec
	subOperations prometheus.Counter
	transactions  *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		instructions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instructions_total",
			Help:      "Vault program instructions processed, by instruction and result.",
		}, []string{"instruction", "result"}),
		votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_total",
			Help:      "Founder votes recorded, by kind.",
		}, []string{"kind"}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Transaction executions, by transaction kind and result.",
		}, []string{"kind", "result"}),
		subOperations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sub_operations_total",
			Help:      "Sub-operations invoked by executed transactions.",
		}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "transactions_total",
			Help:      "Ledger transactions processed, by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.instructions,
		m.votes,
		m.executions,
		m.subOperations,
		m.transactions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

func (m *Metrics) ObserveInstruction(name string, err error) {
	if m == nil {
		return
	}
	m.instructions.WithLabelValues(name, result(err)).Inc()
}

func (m *Metrics) ObserveVote(kind string) {
	if m == nil {
		return
	}
	m.votes.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveExecution(kind string, subOperations int, err error) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(kind, result(err)).Inc()
	if err == nil {
		m.subOperations.Add(float64(subOperations))
	}
}

func (m *Metrics) ObserveTransaction(err error) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(result(err)).Inc()
}
