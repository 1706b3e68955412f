// Package reaper demotes unreviewed reports past their grace window.
// Staleness is a visibility hint for viewing clients, never a business
// rule gate: a stale report still counts toward its incident and can still
// be merged or decided upon.
package reaper

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"skimo-var/config"
	"skimo-var/core/broadcast"
	"skimo-var/core/store"
	"skimo-var/core/utils"
)

type Reaper struct {
	cfg     config.ReaperConfig
	reports store.ReportsStore
	hub     *broadcast.Hub
	logger  *utils.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
}

func New(cfg config.ReaperConfig, rs store.ReportsStore, hub *broadcast.Hub, logger *utils.Logger) *Reaper {
	return &Reaper{cfg: cfg, reports: rs, hub: hub, logger: logger}
}

func (r *Reaper) StartWithContext(ctx context.Context) error {
	if r == nil || !r.cfg.Enabled {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithParser(cron.NewParser(
		cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))
	spec := r.cfg.Spec
	if spec == "" {
		spec = "@every 60s"
	}
	if _, err := c.AddFunc(spec, func() {
		_ = r.RunOnce(runCtx, time.Now().UTC())
	}); err != nil {
		cancel()
		return err
	}
	c.Start()
	r.cron = c
	r.cancel = cancel
	r.running = true
	if r.logger != nil {
		r.logger.Printf("REAPER started spec=%q", spec)
	}
	return nil
}

func (r *Reaper) StopWithContext(ctx context.Context) error {
	r.mu.Lock()
	c := r.cron
	cancel := r.cancel
	r.cron = nil
	r.cancel = nil
	wasRunning := r.running
	r.running = false
	r.mu.Unlock()
	if !wasRunning || c == nil {
		return nil
	}
	cancel()
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs one sweep. Running it twice in immediate succession
// changes nothing the second time: the pending-only guard in the bulk
// update excludes already-stale rows.
func (r *Reaper) RunOnce(ctx context.Context, now time.Time) error {
	batches, err := r.reports.MarkStale(ctx, now)
	if err != nil {
		if r.logger != nil {
			r.logger.Errorf("REAPER sweep failed: %v", err)
		}
		return err
	}
	for _, batch := range batches {
		r.hub.Publish(batch.RaceID, broadcast.Event{
			Type:  broadcast.EventReportsMarkedStale,
			Stale: &broadcast.StalePayload{RaceID: batch.RaceID, ReportIDs: batch.ReportIDs},
		})
		if r.logger != nil {
			r.logger.Printf("REAPER marked stale race=%d reports=%d", batch.RaceID, len(batch.ReportIDs))
		}
	}
	return nil
}
