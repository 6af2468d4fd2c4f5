// Package startup shortens the path from process start to a playable
// state. A metadata cache persisted at shutdown lets the next boot skip
// directory scans, non-essential phases run in the background, and the
// foreground wait on them is bounded by a latency target.
package startup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alphaleadership/skid-inc-sub000/internal/event"
	"github.com/alphaleadership/skid-inc-sub000/internal/scheduler"
	"github.com/alphaleadership/skid-inc-sub000/internal/store"
	"github.com/alphaleadership/skid-inc-sub000/internal/telemetry/logger"
	"github.com/alphaleadership/skid-inc-sub000/pkg/cmap"
)

const (
	DefaultTargetLatency = 2 * time.Second
	DefaultCacheTTL      = 24 * time.Hour
	DefaultPreloadCount  = 5
)

// Phase names reported through StartupPhase events.
const (
	PhaseCacheLoad  = "cache_load"
	PhaseFSInit     = "filesystem_init"
	PhaseEssential  = "essential_init"
	PhasePreload    = "preload"
	PhaseMetadata   = "metadata_cache"
	PhaseBackground = "background_wait"
)

// Config assembles an Accelerator.
type Config struct {
	Store     *store.Store
	Scheduler *scheduler.Scheduler

	Bus    *event.Bus
	Logger logger.Logger

	// TargetLatency bounds how long Boot waits for background phases
	// before handing control back with them still running.
	TargetLatency time.Duration

	CacheTTL     time.Duration
	PreloadCount int
}

// Accelerator runs the phased boot sequence.
type Accelerator struct {
	cfg   Config
	log   logger.Logger
	cache *metaCache

	// preloaded holds per-blob metadata warmed by the preload phase.
	// Written from the background phase goroutine, read from game
	// goroutines, hence the concurrent map.
	preloaded *cmap.Map[string, store.BlobInfo]

	mu      sync.Mutex
	phases  []PhaseResult
	started time.Time

	nowFn func() time.Time
}

// PhaseResult records one completed boot phase.
type PhaseResult struct {
	Phase   string
	Elapsed time.Duration
	Err     error
}

// BootResult is what the game gets back from Boot.
type BootResult struct {
	// Load is the snapshot restored from disk, nil on first run.
	Load *scheduler.LoadResult

	// CacheHit is true when the persisted metadata cache was fresh and
	// the directory scan was skipped.
	CacheHit bool

	// KnownSaves are the blob names the cache remembered, available to
	// the game before the first directory listing completes.
	KnownSaves []string

	// TotalElapsed is wall time from Boot entry to return, including
	// the bounded background wait.
	TotalElapsed time.Duration

	// BackgroundPending is true when Boot returned before the
	// background phases finished.
	BackgroundPending bool

	Phases []PhaseResult
}

// New creates an accelerator. Store and Scheduler are required.
func New(cfg Config) (*Accelerator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("startup: store is required")
	}
	if cfg.Scheduler == nil {
		return nil, fmt.Errorf("startup: scheduler is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	if cfg.TargetLatency <= 0 {
		cfg.TargetLatency = DefaultTargetLatency
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.PreloadCount <= 0 {
		cfg.PreloadCount = DefaultPreloadCount
	}
	a := &Accelerator{
		cfg:       cfg,
		log:       cfg.Logger.With("component", "startup"),
		preloaded: cmap.New[string, store.BlobInfo](),
		nowFn:     time.Now,
	}
	a.cache = newMetaCache(cfg.Store.Dir(), cfg.CacheTTL)
	return a, nil
}

func (a *Accelerator) phase(name string, fn func() error) error {
	start := a.nowFn()
	err := fn()
	elapsed := a.nowFn().Sub(start)

	a.mu.Lock()
	a.phases = append(a.phases, PhaseResult{Phase: name, Elapsed: elapsed, Err: err})
	a.mu.Unlock()

	a.cfg.Bus.Publish(event.StartupPhase{Phase: name, Elapsed: elapsed, Err: err})
	if err != nil {
		a.log.Warn("startup phase failed", "phase", name, "elapsed", elapsed.String(), "error", err)
	} else {
		a.log.Debug("startup phase done", "phase", name, "elapsed", elapsed.String())
	}
	return err
}

// Boot runs the full sequence: load the metadata cache, prepare the
// store directory, restore the newest snapshot, start the scheduler,
// then kick preload and cache refresh into the background and wait for
// them at most TargetLatency. Cache problems never fail the boot; only
// an unusable store directory does.
func (a *Accelerator) Boot(ctx context.Context) (*BootResult, error) {
	a.mu.Lock()
	a.started = a.nowFn()
	a.phases = nil
	a.mu.Unlock()

	res := &BootResult{}

	_ = a.phase(PhaseCacheLoad, func() error {
		hit, err := a.cache.load(a.nowFn())
		res.CacheHit = hit
		if hit {
			for _, b := range a.cache.known() {
				res.KnownSaves = append(res.KnownSaves, b.Name)
			}
		}
		return err
	})

	if err := a.phase(PhaseFSInit, func() error {
		return a.cfg.Store.EnsureReady()
	}); err != nil {
		return nil, fmt.Errorf("startup: %w", err)
	}

	if err := a.phase(PhaseEssential, func() error {
		load, err := a.cfg.Scheduler.Load(ctx)
		if err != nil && err != scheduler.ErrNoLoadableSave {
			return err
		}
		res.Load = load
		return a.cfg.Scheduler.Start()
	}); err != nil {
		return nil, fmt.Errorf("startup: %w", err)
	}

	// Non-essential work continues without the game waiting on it.
	bgCtx, cancel := context.WithTimeout(context.Background(), a.cfg.TargetLatency)
	g, gctx := errgroup.WithContext(bgCtx)
	g.Go(func() error {
		return a.phase(PhasePreload, func() error {
			return a.preload(gctx)
		})
	})
	g.Go(func() error {
		return a.phase(PhaseMetadata, func() error {
			return a.refreshCache(gctx)
		})
	})

	waitErr := a.phase(PhaseBackground, func() error {
		done := make(chan error, 1)
		go func() { done <- g.Wait() }()
		select {
		case err := <-done:
			cancel()
			return err
		case <-bgCtx.Done():
			// Hand control back; the goroutines observe gctx and wind
			// down on their own.
			go func() { <-done; cancel() }()
			return bgCtx.Err()
		}
	})
	res.BackgroundPending = errors.Is(waitErr, context.DeadlineExceeded)

	a.mu.Lock()
	res.Phases = append([]PhaseResult(nil), a.phases...)
	a.mu.Unlock()
	res.TotalElapsed = a.nowFn().Sub(a.started)

	a.log.Info("boot complete",
		"elapsed", res.TotalElapsed.String(),
		"cache_hit", res.CacheHit,
		"recovered", res.Load != nil && res.Load.WasRecoveredFromBackup,
		"background_pending", res.BackgroundPending)
	return res, nil
}

// preload stats the newest regular saves so their directory entries and
// metadata are warm before the game first asks for them. Payload bytes
// are not read.
func (a *Accelerator) preload(ctx context.Context) error {
	blobs, err := a.cfg.Store.List(ctx)
	if err != nil {
		return err
	}
	n := 0
	for _, b := range blobs {
		if b.IsBackup {
			continue
		}
		if n >= a.cfg.PreloadCount {
			break
		}
		info, err := a.cfg.Store.Stat(ctx, b.Name)
		if err != nil {
			a.log.Debug("preload stat failed", "file", b.Name, "error", err)
			continue
		}
		a.preloaded.Set(info.Name, *info)
		n++
	}
	a.log.Debug("preload done", "files", n, "warmed", a.preloaded.Keys())
	return nil
}

// refreshCache rebuilds and persists the startup metadata cache from
// the current directory contents.
func (a *Accelerator) refreshCache(ctx context.Context) error {
	blobs, err := a.cfg.Store.List(ctx)
	if err != nil {
		return err
	}
	return a.cache.store(blobs, a.nowFn())
}

// LoadOptimized reads one save by name. Preloaded and cached metadata
// are advisory only; payload bytes always come from disk.
func (a *Accelerator) LoadOptimized(ctx context.Context, name string) (*store.ReadResult, error) {
	if _, ok := a.preloaded.Get(name); !ok {
		known := false
		for _, b := range a.cache.known() {
			if b.Name == name {
				known = true
				break
			}
		}
		if !known {
			// The cache can be behind the directory, so a miss only
			// downgrades to a direct read, never to an error.
			a.log.Debug("save not in startup cache", "file", name)
		}
	}
	return a.cfg.Store.Read(ctx, name)
}

// PreloadedInfo returns warmed metadata for a blob, if the preload
// phase saw it.
func (a *Accelerator) PreloadedInfo(name string) (store.BlobInfo, bool) {
	return a.preloaded.Get(name)
}

// Warmed returns the metadata the preload phase has warmed so far,
// newest first. Callers get the state a directory listing would give,
// without touching disk.
func (a *Accelerator) Warmed() []store.BlobInfo {
	var infos []store.BlobInfo
	a.preloaded.Range(func(_ string, info store.BlobInfo) bool {
		infos = append(infos, info)
		return true
	})
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ModTime.After(infos[j].ModTime)
	})
	return infos
}

// Phases returns the phase results recorded so far.
func (a *Accelerator) Phases() []PhaseResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]PhaseResult(nil), a.phases...)
}
