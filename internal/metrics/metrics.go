package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActionsTotal counts approval actions applied, by kind.
	ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "approvals_actions_total",
		Help: "Approval actions applied, by action kind.",
	}, []string{"kind"})

	// SubmissionsTotal counts request submissions, by outcome
	// (pending or auto_approved).
	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "approvals_submissions_total",
		Help: "Approval request submissions, by outcome.",
	}, []string{"outcome"})

	// EscalationsTotal counts steps force-advanced by the SLA scanner.
	EscalationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "approvals_escalations_total",
		Help: "Steps auto-approved after exceeding their SLA deadline.",
	})

	// EscalationFailuresTotal counts per-request scan failures.
	EscalationFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "approvals_escalation_failures_total",
		Help: "Requests the escalation scanner failed to process.",
	})

	// StalledStepsTotal counts steps whose approver set resolved empty.
	StalledStepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "approvals_stalled_steps_total",
		Help: "Steps that resolved to an empty approver set.",
	})
)
