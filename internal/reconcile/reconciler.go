// Package reconcile removes configuration for communities and channels that
// no longer exist on the platform.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"github.com/memohai/confessions/internal/boot"
	"github.com/memohai/confessions/internal/channels"
)

// ErrSweepRunning is returned when a sweep is requested while another is in progress.
var ErrSweepRunning = errors.New("reconcile sweep already running")

// Platform answers reachability questions. An error means the answer is
// unknown and must never be treated as "does not exist".
type Platform interface {
	CommunityExists(ctx context.Context, id string) (bool, error)
	ChannelExists(ctx context.Context, id string) (bool, error)
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	ID                 uuid.UUID `json:"id"`
	Communities        int       `json:"communities"`
	CommunitiesRemoved int       `json:"communities_removed"`
	ChannelsRemoved    int       `json:"channels_removed"`
	Skipped            int       `json:"skipped"`
	StartedAt          time.Time `json:"started_at"`
	FinishedAt         time.Time `json:"finished_at"`
}

type Reconciler struct {
	registry *channels.Registry
	platform Platform
	limiter  *rate.Limiter
	cron     *cron.Cron
	schedule string
	warmup   time.Duration
	logger   *slog.Logger

	running atomic.Bool
	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewReconciler(log *slog.Logger, registry *channels.Registry, platform Platform, runtimeConfig *boot.RuntimeConfig) (*Reconciler, error) {
	if log == nil {
		log = slog.Default()
	}
	if runtimeConfig == nil {
		runtimeConfig = &boot.RuntimeConfig{}
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if runtimeConfig.ReconcileCron != "" {
		if _, err := parser.Parse(runtimeConfig.ReconcileCron); err != nil {
			return nil, fmt.Errorf("invalid reconcile schedule: %w", err)
		}
	}
	limit := rate.Inf
	if runtimeConfig.LookupsPerSecond > 0 {
		limit = rate.Limit(runtimeConfig.LookupsPerSecond)
	}
	return &Reconciler{
		registry: registry,
		platform: platform,
		limiter:  rate.NewLimiter(limit, 1),
		cron:     cron.New(cron.WithParser(parser)),
		schedule: runtimeConfig.ReconcileCron,
		warmup:   runtimeConfig.ReconcileWarmup,
		logger:   log.With(slog.String("service", "reconcile")),
	}, nil
}

// ReconcileCommunity deletes every stored key of a community that is gone.
// Calling it for an absent community is a no-op.
func (r *Reconciler) ReconcileCommunity(ctx context.Context, id string) (int, error) {
	n, err := r.registry.DeleteCommunity(ctx, id)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Info("community configuration removed", slog.String("community_id", id), slog.Int("keys", n))
	}
	return n, nil
}

// ReconcileChannel removes a deleted channel from its community's map. When
// community is empty the owning community is looked up first.
func (r *Reconciler) ReconcileChannel(ctx context.Context, community, channel string) (bool, error) {
	if community == "" {
		found, ok, err := r.registry.Find(ctx, channel)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		community = found
	}
	removed, err := r.registry.Unset(ctx, community, channel)
	if err != nil {
		return false, err
	}
	if removed {
		r.logger.Info("channel configuration removed",
			slog.String("community_id", community),
			slog.String("channel_id", channel),
		)
	}
	return removed, nil
}

// StartupSweep checks every stored community and channel against the platform
// and removes the ones confirmed gone. Lookup failures skip the item.
func (r *Reconciler) StartupSweep(ctx context.Context) (SweepReport, error) {
	if !r.running.CompareAndSwap(false, true) {
		return SweepReport{}, ErrSweepRunning
	}
	defer r.running.Store(false)

	report := SweepReport{ID: uuid.New(), StartedAt: time.Now().UTC()}
	log := r.logger.With(slog.String("sweep_id", report.ID.String()))

	ids, err := r.registry.Communities(ctx)
	if err != nil {
		return report, err
	}
	for _, id := range ids {
		if err := r.limiter.Wait(ctx); err != nil {
			return report, err
		}
		exists, err := r.platform.CommunityExists(ctx, id)
		if err != nil {
			log.Warn("community lookup failed", slog.String("community_id", id), slog.Any("error", err))
			report.Skipped++
			continue
		}
		report.Communities++
		if !exists {
			if _, err := r.ReconcileCommunity(ctx, id); err != nil {
				log.Error("remove community failed", slog.String("community_id", id), slog.Any("error", err))
				report.Skipped++
				continue
			}
			report.CommunitiesRemoved++
			continue
		}
		if err := r.sweepChannels(ctx, log, id, &report); err != nil {
			return report, err
		}
	}

	report.FinishedAt = time.Now().UTC()
	log.Info("sweep finished",
		slog.Int("communities", report.Communities),
		slog.Int("communities_removed", report.CommunitiesRemoved),
		slog.Int("channels_removed", report.ChannelsRemoved),
		slog.Int("skipped", report.Skipped),
		slog.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

// sweepChannels only returns an error when ctx is done.
func (r *Reconciler) sweepChannels(ctx context.Context, log *slog.Logger, community string, report *SweepReport) error {
	m := r.registry.GetAll(ctx, community)
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, channel := range ids {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		exists, err := r.platform.ChannelExists(ctx, channel)
		if err != nil {
			log.Warn("channel lookup failed",
				slog.String("community_id", community),
				slog.String("channel_id", channel),
				slog.Any("error", err),
			)
			report.Skipped++
			continue
		}
		if exists {
			continue
		}
		removed, err := r.ReconcileChannel(ctx, community, channel)
		if err != nil {
			log.Error("remove channel failed",
				slog.String("community_id", community),
				slog.String("channel_id", channel),
				slog.Any("error", err),
			)
			report.Skipped++
			continue
		}
		if removed {
			report.ChannelsRemoved++
		}
	}
	return nil
}

// Start runs one sweep after the warm-up delay and then on the configured
// schedule. Repeated calls are ignored until Stop.
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))
	r.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		timer := time.NewTimer(r.warmup)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		r.runSweep(ctx, "startup")
	}(r.done)

	if r.schedule != "" {
		if _, err := r.cron.AddFunc(r.schedule, func() { r.runSweep(ctx, "scheduled") }); err != nil {
			r.logger.Error("schedule sweep failed", slog.Any("error", err))
			return
		}
		r.cron.Start()
	}
	r.logger.Info("reconciler started", slog.Duration("warmup", r.warmup), slog.String("schedule", r.schedule))
}

// Stop cancels pending and running sweeps and waits for them to return.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()
	<-r.cron.Stop().Done()
	<-done
	for _, entry := range r.cron.Entries() {
		r.cron.Remove(entry.ID)
	}
}

// Running reports whether a sweep is in progress.
func (r *Reconciler) Running() bool {
	return r.running.Load()
}

func (r *Reconciler) runSweep(ctx context.Context, trigger string) {
	_, err := r.StartupSweep(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrSweepRunning):
		r.logger.Info("sweep skipped, previous sweep still running", slog.String("trigger", trigger))
	case errors.Is(err, context.Canceled):
		r.logger.Debug("sweep cancelled", slog.String("trigger", trigger))
	default:
		r.logger.Error("sweep failed", slog.String("trigger", trigger), slog.Any("error", err))
	}
}
