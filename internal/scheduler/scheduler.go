package scheduler

import (
	"context"
	"vfd/internal/providers"
	"vfd/internal/services"
	"vfd/internal/structures"

	"github.com/roylee0704/gron"
	"go.uber.org/atomic"
)

type SchedulerInterface interface {
	Init()
	Stop()
}

// Scheduler drives the periodic recomputation sweep for active fingerprints
// that accumulated new samples since their last trait set. Recomputation is
// never triggered per sample; this sweep and the explicit recompute endpoint
// are the only triggers.
type Scheduler struct {
	config  *structures.Config
	logger  providers.Logger
	service services.FingerprintServiceInterface
	cron    *gron.Cron
	running atomic.Bool
}

func (s *Scheduler) Init() {
	s.cron = gron.New()
	interval := s.config.Scheduler.RecomputeInterval

	s.cron.AddFunc(gron.Every(interval), s.sweep)

	s.cron.Start()
	s.logger.Infof(providers.TypeApp, "Recompute sweep every %s", interval)
}

// sweep runs a single recomputation pass. Overlapping sweeps are skipped;
// per-fingerprint serialization is still enforced by the storage claim.
func (s *Scheduler) sweep() {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warnf(providers.TypeCompute, "Recompute sweep still running, skipping")
		return
	}
	defer s.running.Store(false)

	n := s.service.RecomputeStale(context.Background())
	if n > 0 {
		s.logger.Infof(providers.TypeCompute, "Recompute sweep refreshed %d fingerprints", n)
	}
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

func NewScheduler(config *structures.Config, logger providers.Logger, service services.FingerprintServiceInterface) SchedulerInterface {
	return &Scheduler{
		config:  config,
		logger:  logger,
		service: service,
	}
}
