package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// transitionsTotal counts attempted status transitions by target status and
// outcome ("committed" or "rejected"). Updated from the single transition
// path, so every mutation is observed exactly once.
var transitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "htb_claim_transitions_total",
		Help: "Total claim status transitions attempted",
	},
	[]string{"target_status", "outcome"},
)
