// Package metrics exposes Prometheus collectors for the points economy.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Ledger records redemption, transition, balance and sync outcomes.
type Ledger struct {
	redemptions *prometheus.CounterVec
	transitions *prometheus.CounterVec
	mutations   *prometheus.CounterVec
	syncs       *prometheus.CounterVec
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *Ledger
)

// NewLedger builds an unregistered set of collectors. Register attaches them
// to a registry; tests use this to avoid the global default registerer.
func NewLedger() *Ledger {
	return &Ledger{
		redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "civic",
			Subsystem: "points",
			Name:      "redemptions_total",
			Help:      "Redemption attempts segmented by outcome code.",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "civic",
			Subsystem: "points",
			Name:      "transitions_total",
			Help:      "Conversion approve/reject attempts segmented by action and outcome code.",
		}, []string{"action", "outcome"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "civic",
			Subsystem: "points",
			Name:      "balance_mutations_total",
			Help:      "Ledger debit and credit calls segmented by direction and outcome code.",
		}, []string{"direction", "outcome"}),
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "civic",
			Subsystem: "cache",
			Name:      "syncs_total",
			Help:      "Cache sync attempts segmented by outcome.",
		}, []string{"outcome"}),
	}
}

// Register adds the collectors to reg.
func (m *Ledger) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.redemptions, m.transitions, m.mutations, m.syncs} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Default returns the process-wide collectors registered with the default
// Prometheus registerer.
func Default() *Ledger {
	ledgerOnce.Do(func() {
		ledgerRegistry = NewLedger()
		prometheus.MustRegister(
			ledgerRegistry.redemptions,
			ledgerRegistry.transitions,
			ledgerRegistry.mutations,
			ledgerRegistry.syncs,
		)
	})
	return ledgerRegistry
}

func (m *Ledger) RecordRedemption(outcome string) {
	if m == nil {
		return
	}
	m.redemptions.WithLabelValues(outcome).Inc()
}

func (m *Ledger) RecordTransition(action, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action, outcome).Inc()
}

func (m *Ledger) RecordMutation(direction, outcome string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(direction, outcome).Inc()
}

func (m *Ledger) RecordSync(outcome string) {
	if m == nil {
		return
	}
	m.syncs.WithLabelValues(outcome).Inc()
}
