package recovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/alphaleadership/skid-inc-sub000/internal/state"
	"github.com/alphaleadership/skid-inc-sub000/internal/store"
	"github.com/alphaleadership/skid-inc-sub000/internal/telemetry/logger"
	"github.com/alphaleadership/skid-inc-sub000/internal/telemetry/metric"
)

// Default retry tuning.
const (
	DefaultMaxTries        = 3
	DefaultInitialInterval = 100 * time.Millisecond
	DefaultMaxInterval     = 2 * time.Second
)

// Writer is what the handler needs from the store layer.
type Writer interface {
	Write(ctx context.Context, name string, payload any, env *state.Envelope) (*store.WriteResult, error)
}

// Config configures the handler.
type Config struct {
	// Store performs the re-attempted writes.
	Store Writer

	// Cleanup frees disk space on quota rejections. Optional; without
	// it a quota error is surfaced immediately.
	Cleanup func(ctx context.Context) error

	// MaxTries bounds transient-error retries, first attempt included.
	MaxTries uint

	// InitialInterval and MaxInterval shape the exponential backoff.
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// Metrics counts retries. Optional.
	Metrics *metric.Registry

	// Logger defaults to the package default logger.
	Logger logger.Logger
}

// Outcome reports a recovered write.
type Outcome struct {
	Filename   string
	Size       int64
	RetryCount int
}

// Handler implements the scheduler's recovery collaborator.
type Handler struct {
	cfg Config
	log logger.Logger
}

// New creates a recovery handler.
func New(cfg Config) (*Handler, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("recovery: store is required")
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = DefaultMaxTries
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = DefaultInitialInterval
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = DefaultMaxInterval
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	return &Handler{cfg: cfg, log: log.With("component", "recovery")}, nil
}

// Handle classifies cause and re-attempts the write accordingly. It
// returns the successful outcome or the terminal error; it never
// swallows a failure.
func (h *Handler) Handle(ctx context.Context, cause error, snapshot state.Snapshot, name string, kind state.SaveKind, env *state.Envelope) (*Outcome, error) {
	switch {
	case errors.Is(cause, store.ErrPermission):
		// Fatal: the directory itself is unusable, retrying cannot help.
		return nil, cause

	case errors.Is(cause, store.ErrQuotaExceeded):
		return h.handleQuota(ctx, snapshot, name, env)

	default:
		return h.handleTransient(ctx, cause, snapshot, name, env)
	}
}

// handleQuota frees space once and re-attempts once.
func (h *Handler) handleQuota(ctx context.Context, snapshot state.Snapshot, name string, env *state.Envelope) (*Outcome, error) {
	if h.cfg.Cleanup == nil {
		return nil, fmt.Errorf("recovery: quota exceeded for %s and no cleanup configured: %w", name, store.ErrQuotaExceeded)
	}

	h.log.Warn("quota exceeded, running backup cleanup", "name", name)
	if err := h.cfg.Cleanup(ctx); err != nil {
		return nil, fmt.Errorf("recovery: cleanup for %s: %w", name, err)
	}

	res, err := h.cfg.Store.Write(ctx, name, snapshot, env)
	if err != nil {
		return nil, fmt.Errorf("recovery: re-attempt after cleanup for %s: %w", name, err)
	}
	return &Outcome{Filename: res.Filename, Size: res.Size, RetryCount: 1}, nil
}

// handleTransient retries with exponential backoff, bounded by MaxTries.
func (h *Handler) handleTransient(ctx context.Context, cause error, snapshot state.Snapshot, name string, env *state.Envelope) (*Outcome, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = h.cfg.InitialInterval
	bo.MaxInterval = h.cfg.MaxInterval

	retries := 0
	res, err := backoff.Retry(ctx, func() (*store.WriteResult, error) {
		retries++
		if h.cfg.Metrics != nil {
			h.cfg.Metrics.SaveRetries.Inc()
		}
		res, err := h.cfg.Store.Write(ctx, name, snapshot, env)
		if err != nil {
			// Quota and permission failures have their own ladder
			// rungs; blind retries would only repeat them.
			if errors.Is(err, store.ErrPermission) || errors.Is(err, store.ErrQuotaExceeded) {
				return nil, backoff.Permanent(err)
			}
			h.log.Warn("retrying save write", "name", name, "attempt", retries, "error", err)
			return nil, err
		}
		return res, nil
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(h.cfg.MaxTries))
	if err != nil {
		return nil, fmt.Errorf("recovery: %d attempts for %s failed (first error: %v): %w", retries, name, cause, err)
	}

	return &Outcome{Filename: res.Filename, Size: res.Size, RetryCount: retries}, nil
}
