// Package scheduler drives periodic reconciliation and primary IP polling.
package scheduler

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"bt-dns-manager/pkg/logging"
	"bt-dns-manager/pkg/reconcile"
)

// Reconciler is the part of reconcile.Engine the scheduler drives.
type Reconciler interface {
	Reconcile(ctx context.Context, targets []string) (*reconcile.Result, error)
	ObservePrimary(ctx context.Context) (netip.Addr, error)
}

// Config holds the two independent cadences. A zero interval disables that loop.
type Config struct {
	ReconcileInterval   time.Duration
	PrimaryPollInterval time.Duration
}

// Scheduler runs one reconciliation at start, then keeps reconciling and
// polling on their own tickers. Ticks that land on a running cycle are dropped.
type Scheduler struct {
	cfg     Config
	engine  Reconciler
	targets func() []string
	logger  *logging.Logger

	lastResult atomic.Pointer[reconcile.Result]

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  atomic.Bool
}

// New creates a scheduler. targets is read on every cycle so reloaded
// configuration takes effect without a restart.
func New(cfg Config, engine Reconciler, targets func() []string, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NewDefault()
	}
	return &Scheduler{
		cfg:      cfg,
		engine:   engine,
		targets:  targets,
		logger:   logger.WithComponent("scheduler"),
		stopChan: make(chan struct{}),
	}
}

// Start launches the loops and returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		s.logger.Warn("Scheduler already started")
		return nil
	}

	// Re-create stopChan if this is a restart
	s.stopChan = make(chan struct{})

	s.logger.Info("Starting scheduler",
		"reconcile_interval", s.cfg.ReconcileInterval,
		"primary_poll_interval", s.cfg.PrimaryPollInterval)

	s.wg.Add(1)
	go s.reconcileLoop(ctx)

	if s.cfg.PrimaryPollInterval > 0 {
		s.wg.Add(1)
		go s.pollLoop(ctx)
	}
	return nil
}

// Stop signals the loops and waits for an in-flight cycle to return.
func (s *Scheduler) Stop() {
	if !s.started.CompareAndSwap(true, false) {
		return
	}

	s.logger.Info("Stopping scheduler")
	close(s.stopChan)
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

// LastResult returns the most recent completed cycle, or nil.
func (s *Scheduler) LastResult() *reconcile.Result {
	return s.lastResult.Load()
}

// RunOnce performs a single reconciliation with the current targets.
func (s *Scheduler) RunOnce(ctx context.Context) (*reconcile.Result, error) {
	res, err := s.engine.Reconcile(ctx, s.targets())
	switch {
	case errors.Is(err, reconcile.ErrCycleInProgress):
		s.logger.Debug("Reconciliation tick dropped, cycle in progress")
		return nil, err
	case err != nil:
		s.logger.Error("Reconciliation failed", "error", err)
		return nil, err
	}

	s.lastResult.Store(res)
	s.logger.Info("Reconciliation finished",
		"result", res.Summary(),
		"ip", res.PrimaryIP,
		"vpn_status", res.VPNStatus,
		"updated", len(res.Updated()),
		"failed", len(res.Failed()),
		"duration", res.Duration)
	return res, nil
}

func (s *Scheduler) reconcileLoop(ctx context.Context) {
	defer s.wg.Done()

	_, _ = s.RunOnce(ctx)

	if s.cfg.ReconcileInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			_, _ = s.RunOnce(ctx)
		}
	}
}

func (s *Scheduler) pollLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PrimaryPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			ip, err := s.engine.ObservePrimary(ctx)
			if err != nil {
				s.logger.Warn("Primary ip poll failed", "error", err)
				continue
			}
			s.logger.Debug("Primary ip polled", "ip", ip)
		}
	}
}
