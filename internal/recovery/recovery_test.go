package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alphaleadership/skid-inc-sub000/internal/state"
	"github.com/alphaleadership/skid-inc-sub000/internal/store"
)

// flakyStore fails a fixed number of writes before succeeding.
type flakyStore struct {
	failures int
	errs     []error
	calls    int
}

func (f *flakyStore) Write(ctx context.Context, name string, payload any, env *state.Envelope) (*store.WriteResult, error) {
	f.calls++
	if f.calls <= f.failures {
		err := errors.New("disk hiccup")
		if len(f.errs) >= f.calls {
			err = f.errs[f.calls-1]
		}
		return nil, err
	}
	return &store.WriteResult{Filename: name, Size: 42}, nil
}

func newHandler(t *testing.T, cfg Config) *Handler {
	t.Helper()
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 2 * time.Millisecond
	}
	h, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

func TestHandle_TransientRecovers(t *testing.T) {
	fs := &flakyStore{failures: 2}
	h := newHandler(t, Config{Store: fs})

	out, err := h.Handle(context.Background(), errors.New("disk hiccup"), state.Snapshot{}, "slot", state.SavePeriodic, nil)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out.Filename != "slot" || out.Size != 42 {
		t.Fatalf("outcome = %+v", out)
	}
	if out.RetryCount != 3 {
		t.Fatalf("RetryCount = %d, want 3", out.RetryCount)
	}
}

func TestHandle_TransientExhausted(t *testing.T) {
	fs := &flakyStore{failures: 100}
	h := newHandler(t, Config{Store: fs, MaxTries: 3})

	_, err := h.Handle(context.Background(), errors.New("disk hiccup"), state.Snapshot{}, "slot", state.SaveQuick, nil)
	if err == nil {
		t.Fatal("exhausted retries returned nil error")
	}
	if fs.calls != 3 {
		t.Fatalf("write attempts = %d, want 3", fs.calls)
	}
}

func TestHandle_PermissionIsFatal(t *testing.T) {
	fs := &flakyStore{}
	h := newHandler(t, Config{Store: fs})

	_, err := h.Handle(context.Background(), store.ErrPermission, state.Snapshot{}, "slot", state.SaveManual, nil)
	if !errors.Is(err, store.ErrPermission) {
		t.Fatalf("Handle = %v, want ErrPermission", err)
	}
	if fs.calls != 0 {
		t.Fatalf("write attempted %d times on permission failure, want 0", fs.calls)
	}
}

func TestHandle_QuotaRunsCleanupThenRetries(t *testing.T) {
	fs := &flakyStore{}
	cleaned := false
	h := newHandler(t, Config{
		Store:   fs,
		Cleanup: func(context.Context) error { cleaned = true; return nil },
	})

	out, err := h.Handle(context.Background(), store.ErrQuotaExceeded, state.Snapshot{}, "slot", state.SaveBackup, nil)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !cleaned {
		t.Fatal("cleanup not invoked on quota error")
	}
	if out.RetryCount != 1 {
		t.Fatalf("RetryCount = %d, want 1", out.RetryCount)
	}
}

func TestHandle_QuotaWithoutCleanupSurfaces(t *testing.T) {
	h := newHandler(t, Config{Store: &flakyStore{}})

	_, err := h.Handle(context.Background(), store.ErrQuotaExceeded, state.Snapshot{}, "slot", state.SavePeriodic, nil)
	if !errors.Is(err, store.ErrQuotaExceeded) {
		t.Fatalf("Handle = %v, want ErrQuotaExceeded", err)
	}
}

func TestHandle_QuotaStillFullAfterCleanup(t *testing.T) {
	fs := &flakyStore{failures: 100, errs: []error{store.ErrQuotaExceeded}}
	h := newHandler(t, Config{
		Store:   fs,
		Cleanup: func(context.Context) error { return nil },
	})

	_, err := h.Handle(context.Background(), store.ErrQuotaExceeded, state.Snapshot{}, "slot", state.SavePeriodic, nil)
	if !errors.Is(err, store.ErrQuotaExceeded) {
		t.Fatalf("Handle = %v, want ErrQuotaExceeded after failed re-attempt", err)
	}
	if fs.calls != 1 {
		t.Fatalf("re-attempts = %d, want exactly 1", fs.calls)
	}
}
