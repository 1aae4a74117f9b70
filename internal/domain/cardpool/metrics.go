package cardpool

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the pool's prometheus collectors.
type Metrics struct {
	hits         prometheus.Counter
	misses       prometheus.Counter
	fills        *prometheus.CounterVec
	refills      *prometheus.CounterVec
	buffered     prometheus.Gauge
	generated    prometheus.Counter
	attempts     prometheus.Counter
	discarded    prometheus.Counter
	ledgerWrites *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cardvault", Subsystem: "cardpool", Name: "take_hits_total",
			Help: "Numbers served straight from the buffer.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cardvault", Subsystem: "cardpool", Name: "take_misses_total",
			Help: "Takes that found the buffer empty and filled synchronously.",
		}),
		fills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cardvault", Subsystem: "cardpool", Name: "fills_total",
			Help: "Synchronous fills by result.",
		}, []string{"result"}),
		refills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cardvault", Subsystem: "cardpool", Name: "refills_total",
			Help: "Asynchronous low-water top-ups by result.",
		}, []string{"result"}),
		buffered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cardvault", Subsystem: "cardpool", Name: "buffered",
			Help: "Numbers currently held in memory.",
		}),
		generated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cardvault", Subsystem: "cardpool", Name: "generated_total",
			Help: "Numbers generated and stored.",
		}),
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cardvault", Subsystem: "cardpool", Name: "generation_attempts_total",
			Help: "Candidates tried, including ones rejected by Luhn.",
		}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cardvault", Subsystem: "cardpool", Name: "discarded_total",
			Help: "Claimed records dropped because they failed to decrypt.",
		}),
		ledgerWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cardvault", Subsystem: "cardpool", Name: "ledger_units_total",
			Help: "Ledger units of work by result.",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(m.hits, m.misses, m.fills, m.refills, m.buffered,
			m.generated, m.attempts, m.discarded, m.ledgerWrites)
	}
	return m
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
