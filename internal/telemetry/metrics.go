package telemetry

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"live-quiz-service/internal/domain"
)

var (
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quizlive",
		Name:      "commands_total",
		Help:      "Session commands handled, by command and result.",
	}, []string{"command", "result"})

	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quizlive",
		Name:      "snapshot_deliveries_total",
		Help:      "Snapshots handed to subscribers, by outcome.",
	}, []string{"outcome"})

	subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quizlive",
		Name:      "room_subscribers",
		Help:      "Currently subscribed room channels.",
	})

	liveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quizlive",
		Name:      "live_sessions",
		Help:      "Sessions currently addressable.",
	})
)

// ObserveCommand counts a command outcome.
func ObserveCommand(command string, err error) {
	commandsTotal.WithLabelValues(command, Result(err)).Inc()
}

// Result classifies an error into a low-cardinality label.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrQuizNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrSessionLocked):
		return "invalid_transition"
	case errors.Is(err, domain.ErrInvalidName), errors.Is(err, domain.ErrInvalidOption),
		errors.Is(err, domain.ErrUnknownPlayer), errors.Is(err, domain.ErrInvalidQuiz):
		return "invalid_input"
	case errors.Is(err, domain.ErrPersistence):
		return "persistence_error"
	default:
		return "error"
	}
}

// ObserveDelivery counts one snapshot delivery; dropped marks a stale queued snapshot replaced.
func ObserveDelivery(dropped bool) {
	if dropped {
		deliveriesTotal.WithLabelValues("replaced").Inc()
		return
	}
	deliveriesTotal.WithLabelValues("queued").Inc()
}

// SubscriberAdded and SubscriberRemoved track open room channels.
func SubscriberAdded()   { subscribers.Inc() }
func SubscriberRemoved() { subscribers.Dec() }

// SetLiveSessions records the size of the session map.
func SetLiveSessions(n int) { liveSessions.Set(float64(n)) }
