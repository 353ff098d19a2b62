package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_turns_total",
		Help: "Conversational turns by final outcome",
	}, []string{"outcome"})

	TurnRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_turn_rejections_total",
		Help: "Listen requests rejected before a turn started",
	}, []string{"reason"})

	StateTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_state_transitions_total",
		Help: "Voice session state transitions",
	}, []string{"from", "to"})

	RecognitionErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_recognition_errors_total",
		Help: "Recognition engine errors by category",
	}, []string{"category"})

	DirectivesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_directives_total",
		Help: "Dispatched directives by kind and outcome",
	}, []string{"kind", "outcome"})

	LocaleFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_locale_fallbacks_total",
		Help: "Synthesis locale fallbacks by level",
	}, []string{"level"})

	DialogueLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "assistant_dialogue_latency_seconds",
		Help:    "Latency of dialogue service queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "status"})

	UtterancesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_utterances_total",
		Help: "Synthesis events by utterance id and kind",
	}, []string{"utterance_id", "event"})

	ConnectedDevices = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "assistant_connected_devices",
		Help: "Devices currently connected over websocket",
	})
)
