package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ibp-network/ibpmon/internal/core/domain"
	"github.com/ibp-network/ibpmon/internal/infra/storage"
	"github.com/ibp-network/ibpmon/internal/monitoring/checker"
	"github.com/ibp-network/ibpmon/internal/monitoring/metrics"
)

// Gossip topics interpreted by the dispatcher.
const (
	TopicServices    = "/ibp/services"
	TopicHealthCheck = "/ibp/healthCheck"
)

// Substrate is the publish side of the gossip overlay.
type Substrate interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Peers() []string
}

// HealthChecker executes one check and always resolves to a result.
type HealthChecker interface {
	Check(ctx context.Context, job checker.Job) *domain.HealthCheck
}

// Evaluator inspects a newly persisted health check for anomalies.
type Evaluator interface {
	Evaluate(ctx context.Context, hc *domain.HealthCheck) error
}

// Config holds dispatcher settings.
type Config struct {
	MonitorID        string
	CheckOwnServices bool          // also check the local node's configured services
	OwnJobs          []checker.Job // check jobs for the local member's services
}

// Dispatcher interprets inbound gossip events, keeps the shared catalog
// consistent, and pushes local results and catalog entries onto the overlay.
// All collaborators are injected; the dispatcher holds no ambient state.
type Dispatcher struct {
	cfg       Config
	monitors  storage.MonitorRepository
	services  storage.ServiceRepository
	peers     storage.PeerRepository
	checks    storage.HealthCheckRepository
	substrate Substrate
	checker   HealthChecker
	evaluator Evaluator // may be nil when alerting is disabled
	log       *slog.Logger
}

// New creates a dispatcher. The substrate is bound separately because the
// overlay node needs the dispatcher as its inbound handler before it exists.
func New(
	cfg Config,
	monitors storage.MonitorRepository,
	services storage.ServiceRepository,
	peers storage.PeerRepository,
	checks storage.HealthCheckRepository,
	hc HealthChecker,
	evaluator Evaluator,
) *Dispatcher {
	return &Dispatcher{
		cfg:       cfg,
		monitors:  monitors,
		services:  services,
		peers:     peers,
		checks:    checks,
		checker:   hc,
		evaluator: evaluator,
		log:       slog.Default(),
	}
}

// BindSubstrate attaches the overlay once it has been created.
func (d *Dispatcher) BindSubstrate(s Substrate) {
	d.substrate = s
}

// OnPeerDiscovered upserts a monitor for a newly seen peer. Storage faults
// are logged and swallowed; discovery must never crash the event loop.
func (d *Dispatcher) OnPeerDiscovered(peerID string) {
	ctx := context.Background()
	if err := d.monitors.Upsert(ctx, &domain.Monitor{ID: peerID}); err != nil {
		d.log.Error("failed to upsert discovered peer", "peer", peerID, "error", err)
	}
}

// OnMessage dispatches one inbound gossip message by topic. Decode and
// storage faults are isolated to the message that caused them.
func (d *Dispatcher) OnMessage(topic, from string, raw []byte) {
	metrics.GossipMessagesTotal.WithLabelValues(topic).Inc()
	ctx := context.Background()

	switch topic {
	case TopicServices:
		d.handleServices(ctx, from, raw)
	case TopicHealthCheck:
		d.handleHealthCheck(ctx, from, raw)
	default:
		d.log.Debug("ignoring message on unhandled topic", "topic", topic, "from", from)
	}
}

// handleServices processes a service catalog announcement: refresh the
// sender's monitor snapshot, then upsert each service and its peer link.
// Elements are processed sequentially; one bad element does not stop the
// rest.
func (d *Dispatcher) handleServices(ctx context.Context, from string, raw []byte) {
	var announced []domain.Service
	if err := json.Unmarshal(raw, &announced); err != nil {
		metrics.GossipDecodeErrorsTotal.WithLabelValues(TopicServices).Inc()
		d.log.Warn("failed to decode services announcement", "from", from, "error", err)
		return
	}

	if err := d.monitors.Upsert(ctx, &domain.Monitor{ID: from, Services: announced}); err != nil {
		d.log.Error("failed to upsert monitor snapshot", "peer", from, "error", err)
		return
	}

	for i := range announced {
		svc := announced[i]
		if svc.URL == "" {
			d.log.Warn("skipping announced service without URL", "from", from)
			continue
		}
		if err := d.services.Upsert(ctx, &svc); err != nil {
			d.log.Error("failed to upsert service", "service", svc.URL, "error", err)
			continue
		}
		peer := domain.Peer{MonitorID: from, ServiceURL: svc.URL}
		if err := d.peers.Upsert(ctx, &peer); err != nil {
			d.log.Error("failed to upsert peer link", "peer", from, "service", svc.URL, "error", err)
		}
	}
}

// handleHealthCheck persists a peer's health check observation. Every gossip
// observation is retained, so this is always an insert.
func (d *Dispatcher) handleHealthCheck(ctx context.Context, from string, raw []byte) {
	var hc domain.HealthCheck
	if err := json.Unmarshal(raw, &hc); err != nil {
		metrics.GossipDecodeErrorsTotal.WithLabelValues(TopicHealthCheck).Inc()
		d.log.Warn("failed to decode health check", "from", from, "error", err)
		return
	}

	hc.Source = domain.SourceGossip
	hc.MonitorID = from
	if hc.Level == "" {
		hc.Level = domain.LevelInfo
	}
	if hc.ID == "" {
		hc.ID = uuid.NewString()
	}

	if err := d.checks.Create(ctx, &hc); err != nil {
		d.log.Error("failed to store gossiped health check", "from", from, "error", err)
		return
	}

	if d.evaluator != nil {
		if err := d.evaluator.Evaluate(ctx, &hc); err != nil {
			d.log.Error("alert evaluation failed", "healthCheck", hc.ID, "error", err)
		}
	}
}

// PublishServices announces services on the overlay, one publish per service
// so a partial failure affects only that service.
func (d *Dispatcher) PublishServices(ctx context.Context, services []domain.Service) error {
	var lastErr error
	for i := range services {
		payload, err := json.Marshal([]domain.Service{services[i]})
		if err != nil {
			d.log.Error("failed to encode service announcement", "service", services[i].URL, "error", err)
			lastErr = err
			continue
		}
		if err := d.substrate.Publish(ctx, TopicServices, payload); err != nil {
			d.log.Error("failed to publish service", "service", services[i].URL, "error", err)
			lastErr = err
		}
	}
	return lastErr
}

// PublishResults runs checks for every connected peer's services and, when
// configured, the local node's own services, publishing each result
// individually. Locally produced results are persisted and evaluated before
// they go out.
func (d *Dispatcher) PublishResults(ctx context.Context) error {
	for _, peerID := range d.substrate.Peers() {
		links, err := d.peers.ListByMonitor(ctx, peerID)
		if err != nil {
			d.log.Error("failed to list peer services", "peer", peerID, "error", err)
			continue
		}
		for _, link := range links {
			svc, err := d.services.Get(ctx, link.ServiceURL)
			if err != nil || svc == nil {
				d.log.Warn("announced service missing from catalog", "service", link.ServiceURL, "error", err)
				continue
			}
			job := checker.Job{
				Member:    domain.Member{ID: peerID},
				Service:   domain.CheckedService{ID: svc.URL, URL: svc.URL, ChainID: svc.ChainID},
				MonitorID: d.cfg.MonitorID,
			}
			d.runAndPublish(ctx, job)
		}
	}

	if d.cfg.CheckOwnServices {
		for _, job := range d.cfg.OwnJobs {
			job.MonitorID = d.cfg.MonitorID
			d.runAndPublish(ctx, job)
		}
	}
	return nil
}

func (d *Dispatcher) runAndPublish(ctx context.Context, job checker.Job) {
	result := d.checker.Check(ctx, job)

	if err := d.checks.Create(ctx, result); err != nil {
		d.log.Error("failed to store health check", "service", job.Service.ID, "error", err)
	} else if d.evaluator != nil {
		if err := d.evaluator.Evaluate(ctx, result); err != nil {
			d.log.Error("alert evaluation failed", "healthCheck", result.ID, "error", err)
		}
	}

	payload, err := json.Marshal(result)
	if err != nil {
		d.log.Error("failed to encode health check", "service", job.Service.ID, "error", err)
		return
	}
	if err := d.substrate.Publish(ctx, TopicHealthCheck, payload); err != nil {
		d.log.Error("failed to publish health check", "service", job.Service.ID, "error", err)
	}
}
