package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeRejected = "rejected"
)

var (
	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eta_predictions_total",
			Help: "Submissions settled, by outcome",
		},
		[]string{"outcome"},
	)

	PredictorLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "eta_predictor_request_duration_seconds",
			Help:    "Round trip time of requests to the predictor",
			Buckets: prometheus.DefBuckets,
		},
	)

	PredictionsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eta_predictions_in_flight",
			Help: "Prediction requests currently outstanding",
		},
	)

	StaleResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eta_stale_responses_total",
			Help: "Predictor responses discarded because a newer submission superseded them",
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eta_sessions_active",
			Help: "Form sessions held in memory",
		},
	)
)
