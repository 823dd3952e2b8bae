package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ibp-network/ibpmon/internal/core/domain"
	"github.com/ibp-network/ibpmon/internal/infra/storage"
	"github.com/ibp-network/ibpmon/internal/monitoring/metrics"
)

// History windows for the rule queries. "previous" must be strictly older
// than the settle window so the current observation never compares against
// itself; "otherMember" is additionally capped at the staleness horizon.
const (
	settleWindow     = 60 * time.Second
	stalenessHorizon = 10 * time.Minute
)

// Queue is the outbound job queue the engine enqueues alert jobs on.
type Queue interface {
	Enqueue(ctx context.Context, name string, job any) error
}

// Config holds alerting settings.
type Config struct {
	Enabled    bool
	QueueName  string
	SLA        time.Duration // rule 103 response time threshold
	BlockDrift uint64        // rule 102 finalized drift threshold
}

// Engine evaluates each newly persisted health check against four
// independent rules and enqueues one alert job per firing rule.
type Engine struct {
	cfg    Config
	checks storage.HealthCheckRepository
	queue  Queue
	log    *slog.Logger
	now    func() time.Time
}

// New creates an alerting engine. Collaborators are explicit; the engine
// never reads ambient state.
func New(cfg Config, checks storage.HealthCheckRepository, queue Queue) *Engine {
	if cfg.QueueName == "" {
		cfg.QueueName = "alerts"
	}
	return &Engine{
		cfg:    cfg,
		checks: checks,
		queue:  queue,
		log:    slog.Default(),
		now:    time.Now,
	}
}

// Evaluate inspects one newly created health check. Rules fire
// independently; a single observation may enqueue zero or several jobs.
// A no-op when alerting is disabled.
func (e *Engine) Evaluate(ctx context.Context, current *domain.HealthCheck) error {
	if !e.cfg.Enabled {
		return nil
	}

	now := e.now()
	previous, err := e.checks.LatestSuccess(
		ctx, current.MemberID, current.ServiceID, now.Add(-settleWindow))
	if err != nil {
		return fmt.Errorf("failed to query previous check: %w", err)
	}
	otherMember, err := e.checks.LatestOtherMemberSuccess(
		ctx, current.ServiceID, current.MemberID,
		now.Add(-stalenessHorizon), now.Add(-settleWindow))
	if err != nil {
		return fmt.Errorf("failed to query other member check: %w", err)
	}

	if current.Status == domain.StatusError {
		message := "Error message not available"
		if current.Record.Error != nil && current.Record.Error.Message != "" {
			message = current.Record.Error.Message
		}
		e.enqueue(ctx, current, domain.AlertJob{
			Code:         domain.CodeServiceError,
			Severity:     domain.SeverityHigh,
			Message:      message,
			HealthChecks: []*domain.HealthCheck{current},
		})
	}

	if bestBlockHalted(current, previous, otherMember) {
		e.enqueue(ctx, current, domain.AlertJob{
			Code:     domain.CodeBestBlockHalted,
			Severity: domain.SeverityHigh,
			Message: fmt.Sprintf("best block halted at %d since health check %s",
				current.Record.SyncState.CurrentBlock, previous.ID),
			HealthChecks: []*domain.HealthCheck{current, previous},
		})
	}

	if drift, ok := finalizedDrift(current); ok && drift >= e.cfg.BlockDrift {
		e.enqueue(ctx, current, domain.AlertJob{
			Code:         domain.CodeBlockDrift,
			Severity:     domain.SeverityMedium,
			Message:      fmt.Sprintf("finalized block drifting by %d blocks", drift),
			HealthChecks: []*domain.HealthCheck{current},
		})
	}

	if current.Status == domain.StatusSuccess &&
		current.Record.Performance > e.cfg.SLA.Milliseconds() {
		e.enqueue(ctx, current, domain.AlertJob{
			Code:     domain.CodeSlowResponse,
			Severity: domain.SeverityLow,
			Message: fmt.Sprintf("response time %dms higher than expected %dms",
				current.Record.Performance, e.cfg.SLA.Milliseconds()),
			HealthChecks: []*domain.HealthCheck{current},
		})
	}

	return nil
}

// bestBlockHalted fires when this member's best block did not move between
// two settled observations while another member's did. Absence of any of the
// three records, or of their sync state, suppresses the rule.
func bestBlockHalted(current, previous, otherMember *domain.HealthCheck) bool {
	if current == nil || previous == nil || otherMember == nil {
		return false
	}
	if current.Status != domain.StatusSuccess ||
		previous.Status != domain.StatusSuccess ||
		otherMember.Status != domain.StatusSuccess {
		return false
	}
	if current.Record.SyncState == nil ||
		previous.Record.SyncState == nil ||
		otherMember.Record.SyncState == nil {
		return false
	}
	return previous.Record.SyncState.CurrentBlock == current.Record.SyncState.CurrentBlock &&
		otherMember.Record.SyncState.CurrentBlock != current.Record.SyncState.CurrentBlock
}

// finalizedDrift returns how far the finalized block lags the best block.
func finalizedDrift(current *domain.HealthCheck) (uint64, bool) {
	if current.Status != domain.StatusSuccess || current.Record.SyncState == nil {
		return 0, false
	}
	best := current.Record.SyncState.CurrentBlock
	finalized := current.Record.FinalizedBlock
	if best < finalized {
		return 0, true // Finalized ahead of best; no drift
	}
	return best - finalized, true
}

func (e *Engine) enqueue(ctx context.Context, current *domain.HealthCheck, job domain.AlertJob) {
	job.MemberID = current.MemberID
	job.ServiceID = current.ServiceID
	job.HealthCheckID = current.ID

	if err := e.queue.Enqueue(ctx, e.cfg.QueueName, &job); err != nil {
		e.log.Error("failed to enqueue alert job",
			"code", job.Code, "healthCheck", current.ID, "error", err)
		return
	}

	metrics.AlertsEmittedTotal.WithLabelValues(strconv.Itoa(job.Code)).Inc()
	e.log.Info("alert enqueued",
		"code", job.Code, "severity", job.Severity,
		"member", job.MemberID, "service", job.ServiceID)
}
