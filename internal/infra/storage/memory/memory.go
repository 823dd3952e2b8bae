package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ibp-network/ibpmon/internal/core/domain"
)

// MemoryStorage backs the repositories with in-process maps. Used for tests
// and for running without a database URL configured.
type MemoryStorage struct {
	monitors map[string]*domain.Monitor
	services map[string]*domain.Service
	peers    map[string]*domain.Peer
	checks   []*domain.HealthCheck
	mu       sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		monitors: make(map[string]*domain.Monitor),
		services: make(map[string]*domain.Service),
		peers:    make(map[string]*domain.Peer),
	}
}

// -----------------------------------------------------------------------------
// Monitor Repository
// -----------------------------------------------------------------------------

type MonitorRepo struct {
	store *MemoryStorage
}

func NewMonitorRepo(store *MemoryStorage) *MonitorRepo {
	return &MonitorRepo{store: store}
}

func (r *MonitorRepo) Upsert(ctx context.Context, m *domain.Monitor) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	existing, ok := r.store.monitors[m.ID]
	if !ok {
		cp := *m
		cp.UpdatedAt = time.Now()
		r.store.monitors[m.ID] = &cp
		return nil
	}

	// A nil services slice means "touch only"; the snapshot is preserved.
	if m.Services != nil {
		existing.Services = m.Services
	}
	existing.UpdatedAt = time.Now()
	return nil
}

func (r *MonitorRepo) Get(ctx context.Context, id string) (*domain.Monitor, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	m, ok := r.store.monitors[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r *MonitorRepo) List(ctx context.Context) ([]*domain.Monitor, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]*domain.Monitor, 0, len(r.store.monitors))
	for _, m := range r.store.monitors {
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// -----------------------------------------------------------------------------
// Service Repository
// -----------------------------------------------------------------------------

type ServiceRepo struct {
	store *MemoryStorage
}

func NewServiceRepo(store *MemoryStorage) *ServiceRepo {
	return &ServiceRepo{store: store}
}

func (r *ServiceRepo) Upsert(ctx context.Context, s *domain.Service) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *s
	r.store.services[s.URL] = &cp
	return nil
}

func (r *ServiceRepo) Get(ctx context.Context, url string) (*domain.Service, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	s, ok := r.store.services[url]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *ServiceRepo) List(ctx context.Context) ([]*domain.Service, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]*domain.Service, 0, len(r.store.services))
	for _, s := range r.store.services {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}

// -----------------------------------------------------------------------------
// Peer Repository
// -----------------------------------------------------------------------------

type PeerRepo struct {
	store *MemoryStorage
}

func NewPeerRepo(store *MemoryStorage) *PeerRepo {
	return &PeerRepo{store: store}
}

func (r *PeerRepo) Upsert(ctx context.Context, p *domain.Peer) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	key := p.MonitorID + "|" + p.ServiceURL
	cp := *p
	r.store.peers[key] = &cp
	return nil
}

func (r *PeerRepo) ListByMonitor(ctx context.Context, monitorID string) ([]*domain.Peer, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.Peer
	for _, p := range r.store.peers {
		if p.MonitorID == monitorID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServiceURL < out[j].ServiceURL })
	return out, nil
}

// -----------------------------------------------------------------------------
// HealthCheck Repository
// -----------------------------------------------------------------------------

type HealthCheckRepo struct {
	store *MemoryStorage
}

func NewHealthCheckRepo(store *MemoryStorage) *HealthCheckRepo {
	return &HealthCheckRepo{store: store}
}

func (r *HealthCheckRepo) Create(ctx context.Context, hc *domain.HealthCheck) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *hc
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	r.store.checks = append(r.store.checks, &cp)
	return nil
}

func (r *HealthCheckRepo) Get(ctx context.Context, id string) (*domain.HealthCheck, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, hc := range r.store.checks {
		if hc.ID == id {
			cp := *hc
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *HealthCheckRepo) LatestSuccess(
	ctx context.Context,
	memberID, serviceID string,
	before time.Time,
) (*domain.HealthCheck, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var latest *domain.HealthCheck
	for _, hc := range r.store.checks {
		if hc.MemberID != memberID || hc.ServiceID != serviceID {
			continue
		}
		if hc.Status != domain.StatusSuccess || !hc.CreatedAt.Before(before) {
			continue
		}
		if latest == nil || hc.CreatedAt.After(latest.CreatedAt) {
			latest = hc
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (r *HealthCheckRepo) LatestOtherMemberSuccess(
	ctx context.Context,
	serviceID, excludeMemberID string,
	from, to time.Time,
) (*domain.HealthCheck, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var latest *domain.HealthCheck
	for _, hc := range r.store.checks {
		if hc.ServiceID != serviceID || hc.MemberID == excludeMemberID {
			continue
		}
		if hc.Status != domain.StatusSuccess {
			continue
		}
		if hc.CreatedAt.Before(from) || !hc.CreatedAt.Before(to) {
			continue
		}
		if latest == nil || hc.CreatedAt.After(latest.CreatedAt) {
			latest = hc
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (r *HealthCheckRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	kept := r.store.checks[:0]
	var removed int64
	for _, hc := range r.store.checks {
		if hc.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, hc)
	}
	r.store.checks = kept
	return removed, nil
}
