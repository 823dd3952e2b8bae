package checker

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ibp-network/ibpmon/internal/core/domain"
	"github.com/ibp-network/ibpmon/internal/infra/rpc"
	"github.com/ibp-network/ibpmon/internal/monitoring/metrics"
)

// Job describes one health check: which member's address to probe for which
// service, and under which monitor identity the result is recorded.
type Job struct {
	Subdomain string                `json:"subdomain"`
	Member    domain.Member         `json:"member"`
	Service   domain.CheckedService `json:"service"`
	MonitorID string                `json:"monitorId"`
}

// Config holds check execution settings.
type Config struct {
	ConnectTimeout time.Duration // transport connect + handshake bound
	CallTimeout    time.Duration // per-RPC deadline
	SLA            time.Duration // primary probe response time SLA
	Attempts       int           // retry budget including the first attempt
	RetryInterval  time.Duration // fixed sleep between attempts
}

// DefaultConfig returns the reference settings.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 10 * time.Second,
		CallTimeout:    30 * time.Second,
		SLA:            500 * time.Millisecond,
		Attempts:       3,
		RetryInterval:  time.Second,
	}
}

// Conn is the slice of the RPC client the executor needs.
type Conn interface {
	Call(ctx context.Context, method string, params any, out any) error
	Ready(ctx context.Context) error
	Close() error
}

// DialFunc opens a service connection. Swappable in tests.
type DialFunc func(ctx context.Context, cfg rpc.DialConfig) (Conn, error)

func defaultDial(ctx context.Context, cfg rpc.DialConfig) (Conn, error) {
	return rpc.Dial(ctx, cfg)
}

// Checker executes health checks against member services. The member's
// service address is passed straight to the dialer, so concurrent checks for
// the same subdomain cannot interfere with each other.
type Checker struct {
	cfg   Config
	dial  DialFunc
	sleep func(ctx context.Context, d time.Duration) error
	log   *slog.Logger
}

// New creates a checker with the given settings.
func New(cfg Config) *Checker {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.SLA == 0 {
		cfg.SLA = 500 * time.Millisecond
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = time.Second
	}
	return &Checker{
		cfg:   cfg,
		dial:  defaultDial,
		sleep: sleepCtx,
		log:   slog.Default(),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// syncStateResult mirrors the service's system_syncState answer.
type syncStateResult struct {
	StartingBlock uint64 `json:"startingBlock"`
	CurrentBlock  uint64 `json:"currentBlock"`
	HighestBlock  uint64 `json:"highestBlock"`
}

type healthResult struct {
	Peers           int  `json:"peers"`
	IsSyncing       bool `json:"isSyncing"`
	ShouldHavePeers bool `json:"shouldHavePeers"`
}

type headerResult struct {
	Number string `json:"number"` // hex-encoded block number
}

type runtimeVersionResult struct {
	SpecName    string `json:"specName"`
	SpecVersion uint32 `json:"specVersion"`
}

// runOnce performs a single attempt: dial the member's address for the
// service endpoint, wait for protocol readiness, gather facts, tear down.
// The connection is closed on every path.
func (c *Checker) runOnce(ctx context.Context, job Job) (*domain.HealthCheck, error) {
	conn, err := c.dial(ctx, rpc.DialConfig{
		URL:            job.Service.URL,
		ResolveTo:      job.Member.ServiceIPAddress,
		ConnectTimeout: c.cfg.ConnectTimeout,
		CallTimeout:    c.cfg.CallTimeout,
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	if err := conn.Ready(ctx); err != nil {
		return nil, err
	}

	var rec domain.Record

	if err := conn.Call(ctx, "system_localPeerId", nil, &rec.PeerID); err != nil {
		return nil, err
	}
	if err := conn.Call(ctx, "system_chain", nil, &rec.Chain); err != nil {
		return nil, err
	}
	if err := conn.Call(ctx, "system_chainType", nil, &rec.ChainType); err != nil {
		return nil, err
	}

	// Timed primary probe: this measurement decides success vs warning.
	var health healthResult
	start := time.Now()
	if err := conn.Call(ctx, "system_health", nil, &health); err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	rec.Performance = elapsed.Milliseconds()

	var sync syncStateResult
	if err := conn.Call(ctx, "system_syncState", nil, &sync); err != nil {
		return nil, err
	}
	rec.SyncState = &domain.SyncState{
		CurrentBlock: sync.CurrentBlock,
		HighestBlock: sync.HighestBlock,
		IsSyncing:    health.IsSyncing,
	}

	var finalizedHash string
	if err := conn.Call(ctx, "chain_getFinalizedHead", nil, &finalizedHash); err != nil {
		return nil, err
	}
	var header headerResult
	if err := conn.Call(ctx, "chain_getHeader", []any{finalizedHash}, &header); err != nil {
		return nil, err
	}
	finalized, err := parseHexUint(header.Number)
	if err != nil {
		return nil, rpc.NewTransientError("BadHeader", err)
	}
	rec.FinalizedBlock = finalized

	if err := conn.Call(ctx, "system_version", nil, &rec.Version); err != nil {
		return nil, err
	}

	archive, err := c.archiveProbe(ctx, conn, finalized)
	if err != nil {
		return nil, err
	}
	rec.Archive = archive

	status := domain.StatusSuccess
	if elapsed > c.cfg.SLA {
		status = domain.StatusWarning
	}

	metrics.ChecksTotal.WithLabelValues(job.Service.ChainID, string(status)).Inc()
	metrics.CheckDuration.WithLabelValues(job.Service.ChainID).Observe(elapsed.Seconds())

	return &domain.HealthCheck{
		ID:        uuid.NewString(),
		MonitorID: job.MonitorID,
		MemberID:  job.Member.ID,
		ServiceID: job.Service.ID,
		Status:    status,
		Source:    domain.SourceCheck,
		Level:     domain.LevelInfo,
		Record:    rec,
		CreatedAt: time.Now(),
	}, nil
}

// archiveProbe queries state at a pseudo-random historical block in
// [1, finalized/2] to verify the node retains archive depth.
func (c *Checker) archiveProbe(ctx context.Context, conn Conn, finalized uint64) (*domain.ArchiveProbe, error) {
	half := finalized / 2
	if half == 0 {
		return nil, nil // Chain too young to probe
	}
	block := rand.Uint64N(half) + 1

	var blockHash string
	if err := conn.Call(ctx, "chain_getBlockHash", []any{block}, &blockHash); err != nil {
		return nil, err
	}
	var version runtimeVersionResult
	if err := conn.Call(ctx, "state_getRuntimeVersion", []any{blockHash}, &version); err != nil {
		return nil, err
	}

	return &domain.ArchiveProbe{Block: block, SpecVersion: version.SpecVersion}, nil
}

func parseHexUint(s string) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid block number %q: %w", s, err)
	}
	return v, nil
}
