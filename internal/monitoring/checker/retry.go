package checker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ibp-network/ibpmon/internal/core/domain"
	"github.com/ibp-network/ibpmon/internal/infra/rpc"
	"github.com/ibp-network/ibpmon/internal/monitoring/metrics"
)

// Check runs one health check with the configured retry budget and always
// resolves to a result. Transient faults are retried with a fixed sleep
// between attempts; a definitive RPC rejection short-circuits immediately.
// When the budget is exhausted the last error is classified into an
// error-status result.
func (c *Checker) Check(ctx context.Context, job Job) *domain.HealthCheck {
	var lastErr error

	for attempt := 1; attempt <= c.cfg.Attempts; attempt++ {
		hc, err := c.runOnce(ctx, job)
		if err == nil {
			return hc
		}
		lastErr = err

		if !retryable(err) {
			c.log.Warn("check rejected by service",
				"service", job.Service.ID, "member", job.Member.ID, "error", err)
			break
		}
		if attempt == c.cfg.Attempts {
			break
		}

		c.log.Debug("check attempt failed, retrying",
			"service", job.Service.ID, "member", job.Member.ID,
			"attempt", attempt, "error", err)
		metrics.CheckRetriesTotal.WithLabelValues(job.Service.ChainID).Inc()

		if err := c.sleep(ctx, c.cfg.RetryInterval); err != nil {
			lastErr = err
			break
		}
	}

	metrics.ChecksTotal.WithLabelValues(job.Service.ChainID, string(domain.StatusError)).Inc()
	return c.errorResult(job, lastErr)
}

// retryable reports whether an error is worth another attempt. Only a
// definitive RPC-level rejection is terminal; everything else is treated as
// a connectivity transient.
func retryable(err error) bool {
	var rpcErr *rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Kind != rpc.KindRejection
	}
	return true
}

// errorResult classifies the final unretried failure into a result record.
func (c *Checker) errorResult(job Job, cause error) *domain.HealthCheck {
	info := &domain.ErrorInfo{Name: "Error", Message: "unknown error"}
	var rpcErr *rpc.Error
	if errors.As(cause, &rpcErr) {
		info.Name = rpcErr.Name
		info.Message = rpcErr.Message
	} else if cause != nil {
		info.Message = cause.Error()
	}

	return &domain.HealthCheck{
		ID:        uuid.NewString(),
		MonitorID: job.MonitorID,
		MemberID:  job.Member.ID,
		ServiceID: job.Service.ID,
		Status:    domain.StatusError,
		Source:    domain.SourceCheck,
		Level:     "error",
		Record: domain.Record{
			Performance: -1,
			Error:       info,
		},
		CreatedAt: time.Now(),
	}
}
