package worker

import (
	"context"
	"testing"
	"time"

	"github.com/ibp-network/ibpmon/internal/core/domain"
	"github.com/ibp-network/ibpmon/internal/infra/storage/memory"
)

func TestPrune(t *testing.T) {
	store := memory.NewMemoryStorage()
	repo := memory.NewHealthCheckRepo(store)
	ctx := context.Background()

	now := time.Now()
	repo.Create(ctx, &domain.HealthCheck{ID: "old", MemberID: "m1", ServiceID: "s1",
		Status: domain.StatusSuccess, CreatedAt: now.Add(-48 * time.Hour)})
	repo.Create(ctx, &domain.HealthCheck{ID: "fresh", MemberID: "m1", ServiceID: "s1",
		Status: domain.StatusSuccess, CreatedAt: now.Add(-time.Hour)})

	p := NewPruner(24*time.Hour, repo)
	p.prune(ctx)

	if hc, _ := repo.Get(ctx, "old"); hc != nil {
		t.Error("expired check survived")
	}
	if hc, _ := repo.Get(ctx, "fresh"); hc == nil {
		t.Error("fresh check pruned")
	}
}

func TestStartDisabledRetention(t *testing.T) {
	store := memory.NewMemoryStorage()
	repo := memory.NewHealthCheckRepo(store)

	p := NewPruner(0, repo)

	done := make(chan struct{})
	go func() {
		p.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return with retention disabled")
	}
}
