package scheduler

import (
	"context"
	"time"

	"github.com/gorhill/cronexpr"

	"github.com/pesio-ai/be-plt-approvals/internal/logger"
)

// Escalator applies SLA auto-approvals to overdue requests.
// Implemented by service.Engine.
type Escalator interface {
	EscalateOverdue(ctx context.Context) (int, error)
}

// EscalationScheduler runs the overdue-step scan on a cron schedule. The scan
// itself is idempotent (CAS at the data layer), so an overlap with live
// actions or a second scheduler instance cannot double-advance a request.
type EscalationScheduler struct {
	engine      Escalator
	expr        *cronexpr.Expression
	scanTimeout time.Duration
	log         *logger.Logger
	now         func() time.Time
}

// New creates a scheduler from a cron expression (7-field, seconds first).
func New(engine Escalator, cronSpec string, scanTimeout time.Duration, log *logger.Logger) (*EscalationScheduler, error) {
	expr, err := cronexpr.Parse(cronSpec)
	if err != nil {
		return nil, err
	}
	return &EscalationScheduler{
		engine:      engine,
		expr:        expr,
		scanTimeout: scanTimeout,
		log:         log,
		now:         time.Now,
	}, nil
}

// Run blocks until ctx is cancelled, firing a scan at every schedule tick.
func (s *EscalationScheduler) Run(ctx context.Context) {
	s.log.Info().
		Time("next_scan", s.expr.Next(s.now())).
		Msg("Escalation scheduler started")

	for {
		next := s.expr.Next(s.now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info().Msg("Escalation scheduler stopped")
			return
		case <-timer.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single scan with the configured timeout.
func (s *EscalationScheduler) RunOnce(ctx context.Context) {
	scanCtx, cancel := context.WithTimeout(ctx, s.scanTimeout)
	defer cancel()

	start := s.now()
	escalated, err := s.engine.EscalateOverdue(scanCtx)
	if err != nil {
		s.log.Error().Err(err).Msg("Escalation scan failed")
		return
	}

	if escalated > 0 {
		s.log.Info().
			Int("escalated", escalated).
			Dur("duration", time.Since(start)).
			Msg("Escalation scan completed")
	} else {
		s.log.Debug().
			Dur("duration", time.Since(start)).
			Msg("Escalation scan completed, nothing overdue")
	}
}
