package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/ibp-network/ibpmon/internal/core/config"
	"github.com/ibp-network/ibpmon/internal/core/domain"
	"github.com/ibp-network/ibpmon/internal/core/worker"
	"github.com/ibp-network/ibpmon/internal/infra/gossip"
	redisclient "github.com/ibp-network/ibpmon/internal/infra/redis"
	"github.com/ibp-network/ibpmon/internal/infra/storage"
	"github.com/ibp-network/ibpmon/internal/infra/storage/memory"
	"github.com/ibp-network/ibpmon/internal/infra/storage/postgres"
	"github.com/ibp-network/ibpmon/internal/monitoring/alerting"
	"github.com/ibp-network/ibpmon/internal/monitoring/checker"
	"github.com/ibp-network/ibpmon/internal/monitoring/dispatch"
	"github.com/ibp-network/ibpmon/internal/monitoring/health"
	"github.com/ibp-network/ibpmon/internal/monitoring/metrics"
)

// Monitor is the main application struct that manages the node lifecycle.
type Monitor struct {
	cfg          *config.AppConfig
	db           *postgres.DB
	queue        *redisclient.Queue
	node         *gossip.Node
	dispatcher   *dispatch.Dispatcher
	pruner       *worker.Pruner
	healthServer *health.Server
	ownServices  []domain.Service
	log          *slog.Logger
}

// NewMonitor creates a new Monitor instance with all dependencies initialized.
func NewMonitor(cfg *config.AppConfig) (*Monitor, error) {

	// 1. Initialize Storage
	var monitorRepo storage.MonitorRepository
	var serviceRepo storage.ServiceRepository
	var peerRepo storage.PeerRepository
	var checkRepo storage.HealthCheckRepository
	var db *postgres.DB

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		// Run migrations
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		monitorRepo = postgres.NewMonitorRepo(db)
		serviceRepo = postgres.NewServiceRepo(db)
		peerRepo = postgres.NewPeerRepo(db)
		checkRepo = postgres.NewHealthCheckRepo(db)
		slog.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewMemoryStorage()
		monitorRepo = memory.NewMonitorRepo(store)
		serviceRepo = memory.NewServiceRepo(store)
		peerRepo = memory.NewPeerRepo(store)
		checkRepo = memory.NewHealthCheckRepo(store)
		slog.Info("Using Memory storage")
	}

	// 2. Initialize Job Queue
	var queue *redisclient.Queue
	if cfg.Redis.URL != "" {
		var err error
		queue, err = redisclient.NewQueue(cfg.Redis, redisclient.DefaultRetention)
		if err != nil {
			return nil, fmt.Errorf("failed to init job queue: %w", err)
		}
	}

	// 3. Initialize Alerting Engine
	var evaluator dispatch.Evaluator
	if cfg.Alerting.Enabled {
		if queue == nil {
			slog.Warn("Alerting enabled but no redis URL configured, alerting disabled")
		} else {
			evaluator = alerting.New(alerting.Config{
				Enabled:    true,
				QueueName:  cfg.Alerting.QueueName,
				SLA:        cfg.Monitor.SLA.Std(),
				BlockDrift: cfg.Alerting.BlockDrift,
			}, checkRepo, queue)
		}
	}

	// 4. Initialize Check Executor
	chk := checker.New(checker.Config{
		ConnectTimeout: cfg.Monitor.ConnectTimeout.Std(),
		CallTimeout:    cfg.Monitor.CallTimeout.Std(),
		SLA:            cfg.Monitor.SLA.Std(),
		Attempts:       cfg.Monitor.RetryAttempts,
		RetryInterval:  cfg.Monitor.RetryInterval.Std(),
	})

	// Build check jobs for the local member services
	var ownJobs []checker.Job
	var ownServices []domain.Service
	for _, m := range cfg.Members {
		for _, s := range m.Services {
			serviceID := s.ID
			if serviceID == "" {
				serviceID = s.URL
			}
			ownJobs = append(ownJobs, checker.Job{
				Subdomain: m.Subdomain,
				Member:    domain.Member{ID: m.ID, ServiceIPAddress: m.ServiceIPAddress},
				Service:   domain.CheckedService{ID: serviceID, URL: s.URL, ChainID: s.ChainID},
			})
			ownServices = append(ownServices, domain.Service{URL: s.URL, ChainID: s.ChainID})
		}
	}

	// 5. Initialize Dispatcher and Gossip Overlay
	dispatcher := dispatch.New(dispatch.Config{
		MonitorID:        cfg.Monitor.ID,
		CheckOwnServices: cfg.Monitor.CheckOwnServices,
		OwnJobs:          ownJobs,
	}, monitorRepo, serviceRepo, peerRepo, checkRepo, chk, evaluator)

	node, err := gossip.NewNode(gossip.Config{
		NodeID:         cfg.Monitor.ID,
		BindAddr:       cfg.Gossip.BindAddr,
		BindPort:       cfg.Gossip.BindPort,
		Seeds:          cfg.Gossip.Seeds,
		GossipInterval: cfg.Gossip.GossipInterval.Std(),
		ProbeInterval:  cfg.Gossip.ProbeInterval.Std(),
		ProbeTimeout:   cfg.Gossip.ProbeTimeout.Std(),
	}, dispatcher)
	if err != nil {
		return nil, fmt.Errorf("failed to init gossip overlay: %w", err)
	}
	dispatcher.BindSubstrate(node)

	// 6. Initialize Health Server
	checks := map[string]health.Check{}
	if db != nil {
		checks["database"] = db.Health
	}
	if queue != nil {
		checks["queue"] = queue.Health
	}
	healthServer := health.NewServer(cfg.Server.Port, checks, node.Peers)

	// 7. Initialize Pruner
	var pruner *worker.Pruner
	if cfg.Monitor.Retention > 0 {
		pruner = worker.NewPruner(cfg.Monitor.Retention.Std(), checkRepo)
	}

	return &Monitor{
		cfg:          cfg,
		db:           db,
		queue:        queue,
		node:         node,
		dispatcher:   dispatcher,
		pruner:       pruner,
		healthServer: healthServer,
		ownServices:  ownServices,
		log:          slog.Default(),
	}, nil
}

// Start starts the monitor and all its background loops.
func (m *Monitor) Start(ctx context.Context) error {
	// Start Health Server
	go func() {
		if err := m.healthServer.Start(); err != nil {
			m.log.Error("Health server failed", "error", err)
		}
	}()

	// Start DB Metrics Collector
	if m.db != nil {
		m.db.StartMetricsCollector(ctx)
	}

	// Start Queue Janitor
	if m.queue != nil {
		m.queue.StartJanitor(ctx, m.cfg.Alerting.QueueName, time.Hour)
	}

	// Start Pruner
	if m.pruner != nil {
		go m.pruner.Start(ctx)
	}

	// Announce own services immediately, then on the announce interval
	go m.runAnnounceLoop(ctx)

	// Run checks on the check interval
	go m.runCheckLoop(ctx)

	m.log.Info("Monitor started",
		"id", m.cfg.Monitor.ID,
		"services", len(m.ownServices),
		"peers", len(m.node.Peers()))
	return nil
}

// Stop stops the monitor.
func (m *Monitor) Stop(ctx context.Context) error {
	m.log.Info("Stopping Monitor...")

	if err := m.node.Shutdown(); err != nil {
		m.log.Warn("Failed to shut down gossip overlay", "error", err)
	}

	if m.queue != nil {
		if err := m.queue.Close(); err != nil {
			m.log.Warn("Failed to close queue", "error", err)
		}
	}

	if m.db != nil {
		if err := m.db.Close(); err != nil {
			m.log.Warn("Failed to close database", "error", err)
		}
	}

	return m.healthServer.Stop(ctx)
}

func (m *Monitor) runAnnounceLoop(ctx context.Context) {
	announce := func() {
		if len(m.ownServices) == 0 {
			return
		}
		if err := m.dispatcher.PublishServices(ctx, m.ownServices); err != nil {
			m.log.Error("Failed to announce services", "error", err)
		}
	}

	announce()
	ticker := time.NewTicker(m.cfg.Monitor.AnnounceInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			announce()
		}
	}
}

func (m *Monitor) runCheckLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Monitor.CheckInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.ConnectedPeers.Set(float64(len(m.node.Peers())))
			if err := m.dispatcher.PublishResults(ctx); err != nil {
				m.log.Error("Check round failed", "error", err)
			}
		}
	}
}
