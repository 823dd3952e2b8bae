package alerting

import (
	"context"
	"testing"
	"time"

	"github.com/ibp-network/ibpmon/internal/core/domain"
	"github.com/ibp-network/ibpmon/internal/infra/storage/memory"
)

type fakeQueue struct {
	name string
	jobs []domain.AlertJob
}

func (q *fakeQueue) Enqueue(ctx context.Context, name string, job any) error {
	q.name = name
	q.jobs = append(q.jobs, *(job.(*domain.AlertJob)))
	return nil
}

func (q *fakeQueue) codes() []int {
	out := make([]int, 0, len(q.jobs))
	for _, j := range q.jobs {
		out = append(out, j.Code)
	}
	return out
}

func contains(codes []int, code int) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *memory.HealthCheckRepo, *fakeQueue, time.Time) {
	t.Helper()
	store := memory.NewMemoryStorage()
	repo := memory.NewHealthCheckRepo(store)
	queue := &fakeQueue{}
	engine := New(cfg, repo, queue)

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }
	return engine, repo, queue, now
}

func check(id, member, service string, status domain.Status, created time.Time) *domain.HealthCheck {
	return &domain.HealthCheck{
		ID:        id,
		MonitorID: "monitor-1",
		MemberID:  member,
		ServiceID: service,
		Status:    status,
		Source:    domain.SourceCheck,
		Level:     domain.LevelInfo,
		CreatedAt: created,
	}
}

func withSync(hc *domain.HealthCheck, current, finalized uint64) *domain.HealthCheck {
	hc.Record.SyncState = &domain.SyncState{CurrentBlock: current, HighestBlock: current}
	hc.Record.FinalizedBlock = finalized
	return hc
}

func TestEvaluate_Disabled(t *testing.T) {
	engine, _, queue, now := newTestEngine(t, Config{Enabled: false})

	current := check("c1", "m1", "s1", domain.StatusError, now)
	if err := engine.Evaluate(context.Background(), current); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(queue.jobs) != 0 {
		t.Errorf("disabled engine enqueued %d jobs", len(queue.jobs))
	}
}

func TestEvaluate_ServiceError(t *testing.T) {
	engine, _, queue, now := newTestEngine(t, Config{Enabled: true, QueueName: "alerts"})

	current := check("c1", "m1", "s1", domain.StatusError, now)
	current.Record.Performance = -1
	current.Record.Error = &domain.ErrorInfo{Name: "ConnectFailed", Message: "dial tcp: timeout"}

	if err := engine.Evaluate(context.Background(), current); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if len(queue.jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(queue.jobs))
	}
	job := queue.jobs[0]
	if job.Code != domain.CodeServiceError {
		t.Errorf("code = %d, want %d", job.Code, domain.CodeServiceError)
	}
	if job.Severity != domain.SeverityHigh {
		t.Errorf("severity = %s, want high", job.Severity)
	}
	if job.Message != "dial tcp: timeout" {
		t.Errorf("message = %q", job.Message)
	}
	if job.HealthCheckID != "c1" || job.MemberID != "m1" || job.ServiceID != "s1" {
		t.Errorf("job identity mismatch: %+v", job)
	}
	if queue.name != "alerts" {
		t.Errorf("queue name = %q, want alerts", queue.name)
	}
}

func TestEvaluate_ServiceErrorMessageFallback(t *testing.T) {
	engine, _, queue, now := newTestEngine(t, Config{Enabled: true})

	current := check("c1", "m1", "s1", domain.StatusError, now)
	if err := engine.Evaluate(context.Background(), current); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if len(queue.jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(queue.jobs))
	}
	if queue.jobs[0].Message != "Error message not available" {
		t.Errorf("message = %q", queue.jobs[0].Message)
	}
}

func TestEvaluate_BestBlockHalted(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(ctx context.Context, repo *memory.HealthCheckRepo, now time.Time)
		current func(now time.Time) *domain.HealthCheck
		want    bool
	}{
		{
			name: "fires when halted while other member advances",
			setup: func(ctx context.Context, repo *memory.HealthCheckRepo, now time.Time) {
				repo.Create(ctx, withSync(check("p1", "m1", "s1", domain.StatusSuccess, now.Add(-2*time.Minute)), 1000, 990))
				repo.Create(ctx, withSync(check("o1", "m2", "s1", domain.StatusSuccess, now.Add(-2*time.Minute)), 1010, 1000))
			},
			current: func(now time.Time) *domain.HealthCheck {
				return withSync(check("c1", "m1", "s1", domain.StatusSuccess, now), 1000, 990)
			},
			want: true,
		},
		{
			name:  "suppressed without previous",
			setup: func(ctx context.Context, repo *memory.HealthCheckRepo, now time.Time) {},
			current: func(now time.Time) *domain.HealthCheck {
				return withSync(check("c1", "m1", "s1", domain.StatusSuccess, now), 1000, 990)
			},
			want: false,
		},
		{
			name: "suppressed without other member",
			setup: func(ctx context.Context, repo *memory.HealthCheckRepo, now time.Time) {
				repo.Create(ctx, withSync(check("p1", "m1", "s1", domain.StatusSuccess, now.Add(-2*time.Minute)), 1000, 990))
			},
			current: func(now time.Time) *domain.HealthCheck {
				return withSync(check("c1", "m1", "s1", domain.StatusSuccess, now), 1000, 990)
			},
			want: false,
		},
		{
			name: "suppressed when own block advanced",
			setup: func(ctx context.Context, repo *memory.HealthCheckRepo, now time.Time) {
				repo.Create(ctx, withSync(check("p1", "m1", "s1", domain.StatusSuccess, now.Add(-2*time.Minute)), 990, 980))
				repo.Create(ctx, withSync(check("o1", "m2", "s1", domain.StatusSuccess, now.Add(-2*time.Minute)), 1010, 1000))
			},
			current: func(now time.Time) *domain.HealthCheck {
				return withSync(check("c1", "m1", "s1", domain.StatusSuccess, now), 1000, 990)
			},
			want: false,
		},
		{
			name: "suppressed when other member equally halted",
			setup: func(ctx context.Context, repo *memory.HealthCheckRepo, now time.Time) {
				repo.Create(ctx, withSync(check("p1", "m1", "s1", domain.StatusSuccess, now.Add(-2*time.Minute)), 1000, 990))
				repo.Create(ctx, withSync(check("o1", "m2", "s1", domain.StatusSuccess, now.Add(-2*time.Minute)), 1000, 990))
			},
			current: func(now time.Time) *domain.HealthCheck {
				return withSync(check("c1", "m1", "s1", domain.StatusSuccess, now), 1000, 990)
			},
			want: false,
		},
		{
			name: "suppressed when previous lacks sync state",
			setup: func(ctx context.Context, repo *memory.HealthCheckRepo, now time.Time) {
				repo.Create(ctx, check("p1", "m1", "s1", domain.StatusSuccess, now.Add(-2*time.Minute)))
				repo.Create(ctx, withSync(check("o1", "m2", "s1", domain.StatusSuccess, now.Add(-2*time.Minute)), 1010, 1000))
			},
			current: func(now time.Time) *domain.HealthCheck {
				return withSync(check("c1", "m1", "s1", domain.StatusSuccess, now), 1000, 990)
			},
			want: false,
		},
		{
			name: "suppressed when other member check too old",
			setup: func(ctx context.Context, repo *memory.HealthCheckRepo, now time.Time) {
				repo.Create(ctx, withSync(check("p1", "m1", "s1", domain.StatusSuccess, now.Add(-2*time.Minute)), 1000, 990))
				repo.Create(ctx, withSync(check("o1", "m2", "s1", domain.StatusSuccess, now.Add(-11*time.Minute)), 1010, 1000))
			},
			current: func(now time.Time) *domain.HealthCheck {
				return withSync(check("c1", "m1", "s1", domain.StatusSuccess, now), 1000, 990)
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// High drift threshold keeps rule 102 quiet in these scenarios.
			engine, repo, queue, now := newTestEngine(t, Config{
				Enabled:    true,
				SLA:        time.Minute,
				BlockDrift: 1_000_000,
			})
			ctx := context.Background()
			tt.setup(ctx, repo, now)

			if err := engine.Evaluate(ctx, tt.current(now)); err != nil {
				t.Fatalf("Evaluate failed: %v", err)
			}

			fired := contains(queue.codes(), domain.CodeBestBlockHalted)
			if fired != tt.want {
				t.Errorf("rule 101 fired = %v, want %v (jobs: %v)", fired, tt.want, queue.codes())
			}
		})
	}
}

func TestEvaluate_BlockDriftBoundary(t *testing.T) {
	tests := []struct {
		name      string
		current   uint64
		finalized uint64
		status    domain.Status
		want      bool
	}{
		{"below threshold", 1029, 1000, domain.StatusSuccess, false},
		{"exactly at threshold", 1030, 1000, domain.StatusSuccess, true},
		{"above threshold", 1031, 1000, domain.StatusSuccess, true},
		{"not success", 1031, 1000, domain.StatusWarning, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, _, queue, now := newTestEngine(t, Config{
				Enabled:    true,
				SLA:        time.Minute,
				BlockDrift: 30,
			})

			current := withSync(check("c1", "m1", "s1", tt.status, now), tt.current, tt.finalized)
			if err := engine.Evaluate(context.Background(), current); err != nil {
				t.Fatalf("Evaluate failed: %v", err)
			}

			fired := contains(queue.codes(), domain.CodeBlockDrift)
			if fired != tt.want {
				t.Errorf("rule 102 fired = %v, want %v", fired, tt.want)
			}
		})
	}
}

func TestEvaluate_BlockDriftRequiresSyncState(t *testing.T) {
	engine, _, queue, now := newTestEngine(t, Config{Enabled: true, SLA: time.Minute, BlockDrift: 30})

	current := check("c1", "m1", "s1", domain.StatusSuccess, now)
	if err := engine.Evaluate(context.Background(), current); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if contains(queue.codes(), domain.CodeBlockDrift) {
		t.Error("rule 102 fired without sync state")
	}
}

func TestEvaluate_SlowResponse(t *testing.T) {
	tests := []struct {
		name        string
		performance int64
		status      domain.Status
		want        bool
	}{
		{"under sla", 499, domain.StatusSuccess, false},
		{"exactly at sla", 500, domain.StatusSuccess, false},
		{"over sla", 501, domain.StatusSuccess, true},
		{"over sla but not success", 501, domain.StatusError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, _, queue, now := newTestEngine(t, Config{
				Enabled:    true,
				SLA:        500 * time.Millisecond,
				BlockDrift: 1_000_000,
			})

			current := check("c1", "m1", "s1", tt.status, now)
			current.Record.Performance = tt.performance
			if err := engine.Evaluate(context.Background(), current); err != nil {
				t.Fatalf("Evaluate failed: %v", err)
			}

			fired := contains(queue.codes(), domain.CodeSlowResponse)
			if fired != tt.want {
				t.Errorf("rule 103 fired = %v, want %v", fired, tt.want)
			}
		})
	}
}

func TestEvaluate_MultipleRulesIndependent(t *testing.T) {
	// A slow success with large drift fires 102 and 103 together.
	engine, _, queue, now := newTestEngine(t, Config{
		Enabled:    true,
		SLA:        500 * time.Millisecond,
		BlockDrift: 30,
	})

	current := withSync(check("c1", "m1", "s1", domain.StatusSuccess, now), 2000, 1000)
	current.Record.Performance = 900

	if err := engine.Evaluate(context.Background(), current); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	codes := queue.codes()
	if !contains(codes, domain.CodeBlockDrift) || !contains(codes, domain.CodeSlowResponse) {
		t.Errorf("expected rules 102 and 103, got %v", codes)
	}
	if len(codes) != 2 {
		t.Errorf("expected exactly 2 jobs, got %v", codes)
	}
}

func TestEvaluate_HaltedJobCarriesBothChecks(t *testing.T) {
	engine, repo, queue, now := newTestEngine(t, Config{
		Enabled:    true,
		SLA:        time.Minute,
		BlockDrift: 1_000_000,
	})
	ctx := context.Background()

	repo.Create(ctx, withSync(check("p1", "m1", "s1", domain.StatusSuccess, now.Add(-2*time.Minute)), 1000, 990))
	repo.Create(ctx, withSync(check("o1", "m2", "s1", domain.StatusSuccess, now.Add(-2*time.Minute)), 1010, 1000))

	current := withSync(check("c1", "m1", "s1", domain.StatusSuccess, now), 1000, 990)
	if err := engine.Evaluate(ctx, current); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if len(queue.jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(queue.jobs))
	}
	job := queue.jobs[0]
	if len(job.HealthChecks) != 2 {
		t.Fatalf("expected [current, previous], got %d checks", len(job.HealthChecks))
	}
	if job.HealthChecks[0].ID != "c1" || job.HealthChecks[1].ID != "p1" {
		t.Errorf("unexpected justification order: %s, %s",
			job.HealthChecks[0].ID, job.HealthChecks[1].ID)
	}
}
