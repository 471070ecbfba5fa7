package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Fairfood/Navigate-Server/internal/application/forest"
	"github.com/Fairfood/Navigate-Server/internal/application/geometry"
	"github.com/Fairfood/Navigate-Server/internal/domain"
	"github.com/Fairfood/Navigate-Server/internal/infrastructure/lock"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultLockKey is the fleet-wide key guarding sync cycles.
const DefaultLockKey = "navigate:analysis-sync:lock"

// Options tunes a SyncCoordinator.
type Options struct {
	LockKey      string
	LockTTL      time.Duration // lock expiry; also the longest a cycle may run and still release
	SafetyMargin time.Duration // release is skipped once elapsed >= LockTTL - SafetyMargin
	Concurrency  int           // queue entries processed in parallel; 1 is strictly FIFO
	BufferMeters float64       // default outward buffer when a farm sets no analysis radius
}

// CycleResult summarises one RunSyncCycle call.
type CycleResult struct {
	Acquired     bool          `json:"acquired"`
	Processed    int           `json:"processed"`
	Completed    int           `json:"completed"`
	Failed       int           `json:"failed"`
	Skipped      int           `json:"skipped"`
	Stranded     int           `json:"stranded"` // claimed but no terminal status could be written
	LockReleased bool          `json:"lock_released"`
	Duration     time.Duration `json:"duration"`
}

// SyncCoordinator drains the analysis queue under a fleet-wide lock so that at
// most one cycle runs at a time across all workers.
type SyncCoordinator struct {
	Store    *JobStore
	Locker   lock.Locker
	Resolver *geometry.Resolver
	Provider forest.MetricsProvider
	Metrics  *Metrics
	Opts     Options

	// Now is the clock used for the release decision.
	Now func() time.Time
}

// NewSyncCoordinator wires a coordinator and fills option defaults.
func NewSyncCoordinator(store *JobStore, locker lock.Locker, resolver *geometry.Resolver, provider forest.MetricsProvider, metrics *Metrics, opts Options) *SyncCoordinator {
	if opts.LockKey == "" {
		opts.LockKey = DefaultLockKey
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 24 * time.Hour
	}
	if opts.SafetyMargin < 0 {
		opts.SafetyMargin = 0
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &SyncCoordinator{
		Store:    store,
		Locker:   locker,
		Resolver: resolver,
		Provider: provider,
		Metrics:  metrics,
		Opts:     opts,
		Now:      time.Now,
	}
}

// RunSyncCycle processes every IN_QUEUE entry present when the cycle starts.
// It returns ErrLockContention, with a zero result, when another worker holds
// the lock. Per-entry failures are recorded on the entry and never abort the cycle.
func (c *SyncCoordinator) RunSyncCycle(ctx context.Context) (*CycleResult, error) {
	owner := uuid.New().String()
	start := c.Now()

	acquired, err := c.Locker.Acquire(ctx, c.Opts.LockKey, owner, c.Opts.LockTTL)
	if err != nil {
		c.Metrics.cycle("error")
		return &CycleResult{}, fmt.Errorf("acquire sync lock: %w", err)
	}
	if !acquired {
		c.Metrics.cycle("contention")
		log.Info().Str("lock_key", c.Opts.LockKey).Msg("Analysis sync skipped, lock held elsewhere")
		return &CycleResult{}, ErrLockContention
	}

	result := &CycleResult{Acquired: true}
	defer func() {
		elapsed := c.Now().Sub(start)
		result.Duration = elapsed
		c.Metrics.observe(elapsed.Seconds())
		// Past this point the lock may have expired and been taken by another
		// worker; leaving it to expire is the lesser harm.
		if elapsed < c.Opts.LockTTL-c.Opts.SafetyMargin {
			if rerr := c.Locker.Release(context.WithoutCancel(ctx), c.Opts.LockKey, owner); rerr != nil {
				log.Error().Err(rerr).Str("lock_key", c.Opts.LockKey).Msg("Failed to release analysis sync lock")
			} else {
				result.LockReleased = true
			}
		} else {
			log.Warn().Dur("elapsed", elapsed).Dur("lock_ttl", c.Opts.LockTTL).Msg("Analysis sync overran lock ttl, leaving lock to expire")
		}
		log.Info().
			Int("processed", result.Processed).
			Int("completed", result.Completed).
			Int("failed", result.Failed).
			Int("skipped", result.Skipped).
			Int("stranded", result.Stranded).
			Dur("elapsed", elapsed).
			Msg("Analysis sync cycle finished")
	}()

	entries, err := c.Store.ListQueued(ctx)
	if err != nil {
		c.Metrics.cycle("error")
		return result, fmt.Errorf("list queued analyses: %w", err)
	}
	c.Metrics.cycle("ran")
	log.Info().Int("queued", len(entries)).Msg("Analysis sync cycle started")

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.Opts.Concurrency)
	for i := range entries {
		entry := entries[i]
		g.Go(func() error {
			status := c.processEntry(gctx, &entry)
			mu.Lock()
			defer mu.Unlock()
			switch status {
			case domain.SyncStatusCompleted:
				result.Processed++
				result.Completed++
			case domain.SyncStatusFailed:
				result.Processed++
				result.Failed++
			case domain.SyncStatusStarted:
				result.Processed++
				result.Stranded++
			default:
				result.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()

	return result, nil
}

// processEntry claims and analyses one entry and returns the status it ended
// in. An entry another worker already claimed is left alone and reported as IN_QUEUE.
func (c *SyncCoordinator) processEntry(ctx context.Context, entry *domain.AnalysisQueue) domain.SyncStatus {
	logger := log.With().Uint("queue_id", entry.ID).Strs("farm_ids", entry.FarmIDs()).Logger()

	claimed, err := c.Store.MarkStarted(ctx, entry.ID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to claim analysis entry")
		return domain.SyncStatusInQueue
	}
	if !claimed {
		logger.Debug().Msg("Analysis entry already claimed")
		return domain.SyncStatusInQueue
	}

	// A claimed entry always reaches a terminal state, even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	var failures []error
	if len(entry.Farms) == 0 {
		failures = append(failures, errors.New("entry references no farms"))
	}
	for i := range entry.Farms {
		farm := &entry.Farms[i]
		if err := c.AnalyzeFarm(ctx, farm); err != nil {
			logger.Error().Err(err).Str("farm_id", farm.ID.String()).Msg("Farm analysis failed")
			failures = append(failures, fmt.Errorf("farm %s: %w", farm.ID, err))
		}
	}

	if len(failures) > 0 {
		if err := c.Store.MarkFailed(ctx, entry.ID, errors.Join(failures...)); err != nil {
			logger.Error().Err(err).Msg("Failed to mark analysis entry failed")
		}
		c.Metrics.entry(domain.SyncStatusFailed.String())
		return domain.SyncStatusFailed
	}
	if err := c.Store.MarkCompleted(ctx, entry.ID); err != nil {
		logger.Error().Err(err).Msg("Failed to mark analysis entry completed")
		if ferr := c.Store.MarkFailed(ctx, entry.ID, fmt.Errorf("results stored but completion not recorded: %w", err)); ferr != nil {
			logger.Error().Err(ferr).Msg("Analysis entry left STARTED")
			c.Metrics.entry(domain.SyncStatusStarted.String())
			return domain.SyncStatusStarted
		}
		c.Metrics.entry(domain.SyncStatusFailed.String())
		return domain.SyncStatusFailed
	}
	c.Metrics.entry(domain.SyncStatusCompleted.String())
	logger.Info().Msg("Analysis entry completed")
	return domain.SyncStatusCompleted
}

// AnalyzeFarm resolves the farm geometry, fetches metrics at every tracked
// canopy density and stores the outcome.
func (c *SyncCoordinator) AnalyzeFarm(ctx context.Context, farm *domain.Farm) error {
	buffer := c.Opts.BufferMeters
	if farm.AnalysisRadius != nil && *farm.AnalysisRadius >= 0 {
		buffer = *farm.AnalysisRadius
	}
	resolved, err := c.Resolver.ResolveWithBuffer(farm.GeoJSON, buffer)
	if err != nil {
		return err
	}
	polygon, err := resolved.AnalysisGeoJSON()
	if err != nil {
		return err
	}

	losses := make(map[domain.CanopyDensity]map[int]float64, len(domain.CanopyDensities))
	var areas *forest.Metrics
	for _, density := range domain.CanopyDensities {
		m, err := c.Provider.ComputeMetrics(ctx, polygon, density)
		if err != nil {
			var perr *forest.ProviderError
			if !errors.As(err, &perr) {
				err = &forest.ProviderError{Density: density, Err: err}
			}
			return err
		}
		if err := m.Validate(); err != nil {
			return &forest.ProviderError{Density: density, Err: err}
		}
		series := m.YearlyLoss
		if series == nil {
			series = map[int]float64{}
		}
		losses[density] = series
		if density == domain.CanopyDensity30 {
			areas = m
		}
	}

	return c.Store.SaveFarmResult(ctx, farm.ID, FarmResult{
		Property: domain.FarmProperty{
			TotalArea:         resolved.AreaHa,
			PrimaryForestArea: areas.PrimaryForestAreaHa,
			TreeCoverExtent:   areas.TreeCoverExtentHa,
			ProtectedArea:     areas.ProtectedAreaHa,
		},
		Loss: losses,
	})
}
