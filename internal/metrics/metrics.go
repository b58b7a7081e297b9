// Package metrics exposes responder counters to Prometheus.
package metrics

import (
	"context"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"badlionbot/internal/eventbus"
	"badlionbot/internal/ratelimit"
)

type Metrics struct {
	UpdatesTotal  *prometheus.CounterVec
	RepliesTotal  *prometheus.CounterVec
	ArabicReplies prometheus.Counter
}

// New registers the responder metrics on registry. limiter may be nil; when
// set its tracked and exhausted user counts are exported as gauges.
func New(registry *prometheus.Registry, limiter *ratelimit.Counter) *Metrics {
	f := promauto.With(registry)
	m := &Metrics{
		UpdatesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "badlion_updates_total",
				Help: "Inbound platform updates by kind",
			},
			[]string{"kind"}, // message, member_join
		),
		RepliesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "badlion_replies_total",
				Help: "Keyword reply outcomes by path and outcome",
			},
			[]string{"path", "outcome"}, // outcome: sent, failed, suppressed, private, fallback, none
		),
		ArabicReplies: f.NewCounter(prometheus.CounterOpts{
			Name: "badlion_replies_arabic_total",
			Help: "Reply outcomes for Arabic-script triggers",
		}),
	}
	if limiter != nil {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "badlion_ratelimit_tracked_users",
			Help: "Users with at least one recorded trigger",
		}, func() float64 { return float64(limiter.Stats().Tracked) })
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "badlion_ratelimit_exhausted_users",
			Help: "Users that reached the trigger limit",
		}, func() float64 { return float64(limiter.Stats().Exhausted) })
	}
	return m
}

// Observe folds one bus event into the counters.
func (m *Metrics) Observe(ev eventbus.Event) {
	switch d := ev.Data.(type) {
	case eventbus.Update:
		m.UpdatesTotal.WithLabelValues(d.Kind).Inc()
	case eventbus.Reply:
		m.RepliesTotal.WithLabelValues(d.Path, outcomeLabel(ev.Type)).Inc()
		if d.Arabic {
			m.ArabicReplies.Inc()
		}
	}
}

// Consume observes events until ctx ends or events is closed.
func (m *Metrics) Consume(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.Observe(ev)
		}
	}
}

// outcomeLabel strips the event family: "reply.sent" -> "sent".
func outcomeLabel(typ string) string {
	if i := strings.IndexByte(typ, '.'); i >= 0 {
		return typ[i+1:]
	}
	return typ
}
