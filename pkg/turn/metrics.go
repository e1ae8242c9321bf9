package turn

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Turn outcomes recorded by Metrics.
const (
	OutcomeCompleted      = "completed"
	OutcomeCancelled      = "cancelled"
	OutcomeFailed         = "failed"
	OutcomeNoAudio        = "no_audio"
	OutcomeUnintelligible = "unintelligible"
)

// Metrics counts turns and sentences. A nil *Metrics records nothing.
type Metrics struct {
	turns         *prometheus.CounterVec
	sentences     prometheus.Counter
	firstSentence prometheus.Histogram
}

// NewMetrics registers the turn metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		turns: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "edutalk",
				Name:      "turns_total",
				Help:      "Turns by outcome",
			},
			[]string{"outcome"},
		),
		sentences: f.NewCounter(prometheus.CounterOpts{
			Namespace: "edutalk",
			Name:      "sentences_total",
			Help:      "Sentences handed to speech",
		}),
		firstSentence: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "edutalk",
			Name:      "first_sentence_seconds",
			Help:      "Time from generation start to the first completed sentence",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
	}
}

func (m *Metrics) turn(outcome string) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) sentence() {
	if m == nil {
		return
	}
	m.sentences.Inc()
}

func (m *Metrics) first(d time.Duration) {
	if m == nil {
		return
	}
	m.firstSentence.Observe(d.Seconds())
}
