package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marks_transitions_total",
		Help: "Marks ledger approval transitions by action and outcome.",
	}, []string{"action", "outcome"})

	evaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evaluations_total",
		Help: "Formula evaluator invocations by formula.",
	}, []string{"formula"})
)
