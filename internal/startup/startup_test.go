package startup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alphaleadership/skid-inc-sub000/internal/scheduler"
	"github.com/alphaleadership/skid-inc-sub000/internal/state"
	"github.com/alphaleadership/skid-inc-sub000/internal/store"
)

func testSnapshot() state.Snapshot {
	return state.Snapshot{
		"player":       map[string]any{"money": 10.0},
		"scripts":      map[string]any{},
		"upgrades":     map[string]any{},
		"achievements": map[string]any{},
		"options":      map[string]any{},
	}
}

func testRig(t *testing.T) (*store.Store, *scheduler.Scheduler) {
	t.Helper()
	st, err := store.New(store.Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	sched, err := scheduler.New(scheduler.Config{
		Store:            st,
		PeriodicInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}
	return st, sched
}

func TestBootFirstRun(t *testing.T) {
	st, sched := testRig(t)
	a, err := New(Config{Store: st, Scheduler: sched})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := a.Boot(context.Background())
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	defer sched.Stop()

	if res.CacheHit {
		t.Fatal("first run cannot hit the cache")
	}
	if res.Load != nil {
		t.Fatalf("first run should have no snapshot, got %+v", res.Load)
	}

	// The background metadata phase must leave a cache behind.
	if _, err := os.Stat(filepath.Join(st.Dir(), CacheName)); err != nil {
		t.Fatalf("cache file after boot: %v", err)
	}
}

func TestBootRestoresSnapshot(t *testing.T) {
	st, sched := testRig(t)
	if err := st.EnsureReady(); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if _, err := st.Write(context.Background(), scheduler.DefaultSaveName, testSnapshot(), nil); err != nil {
		t.Fatalf("Write: %v", err)
	}

	a, err := New(Config{Store: st, Scheduler: sched})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := a.Boot(context.Background())
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	defer sched.Stop()

	if res.Load == nil {
		t.Fatal("expected a restored snapshot")
	}
	player := res.Load.Snapshot["player"].(map[string]any)
	if money := player["money"].(float64); money != 10 {
		t.Fatalf("restored money = %v, want 10", money)
	}
}

func TestSecondBootHitsCache(t *testing.T) {
	st, sched := testRig(t)
	a, err := New(Config{Store: st, Scheduler: sched})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if _, err := a.Boot(ctx); err != nil {
		t.Fatalf("first Boot: %v", err)
	}
	sched.Stop()

	if _, err := st.Write(ctx, scheduler.DefaultSaveName, testSnapshot(), nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := a.refreshCache(ctx); err != nil {
		t.Fatalf("refreshCache: %v", err)
	}

	b, err := New(Config{Store: st, Scheduler: sched})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := b.Boot(ctx)
	if err != nil {
		t.Fatalf("second Boot: %v", err)
	}
	defer sched.Stop()

	if !res.CacheHit {
		t.Fatal("second boot should hit the cache")
	}
	if len(res.KnownSaves) != 1 || res.KnownSaves[0] != scheduler.DefaultSaveName {
		t.Fatalf("KnownSaves = %v, want [%s]", res.KnownSaves, scheduler.DefaultSaveName)
	}
}

func TestCacheRejectsStale(t *testing.T) {
	dir := t.TempDir()
	c := newMetaCache(dir, time.Hour)

	now := time.Now()
	if err := c.store(nil, now.Add(-2*time.Hour)); err != nil {
		t.Fatalf("store: %v", err)
	}
	hit, err := c.load(now)
	if hit {
		t.Fatal("stale cache must miss")
	}
	if err == nil {
		t.Fatal("stale cache should explain itself")
	}
}

func TestCacheRejectsTamperedDigest(t *testing.T) {
	dir := t.TempDir()
	c := newMetaCache(dir, time.Hour)
	now := time.Now()

	blobs := []store.BlobInfo{{Name: "skidinc", Size: 128, ModTime: now}}
	if err := c.store(blobs, now); err != nil {
		t.Fatalf("store: %v", err)
	}

	data, err := os.ReadFile(c.path())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	tampered := append([]byte(nil), data...)
	// Flip a byte inside the blob name so only the digest disagrees.
	for i := range tampered {
		if tampered[i] == 'k' {
			tampered[i] = 'q'
			break
		}
	}
	if err := os.WriteFile(c.path(), tampered, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if hit, _ := c.load(now); hit {
		t.Fatal("tampered cache must miss")
	}
}

func TestPreloadWarmsMetadata(t *testing.T) {
	st, sched := testRig(t)
	if err := st.EnsureReady(); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	ctx := context.Background()
	if _, err := st.Write(ctx, scheduler.DefaultSaveName, testSnapshot(), nil); err != nil {
		t.Fatalf("Write: %v", err)
	}

	a, err := New(Config{Store: st, Scheduler: sched})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := a.Boot(ctx); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	defer sched.Stop()

	info, ok := a.PreloadedInfo(scheduler.DefaultSaveName)
	if !ok {
		t.Fatal("preload should have warmed the regular save")
	}
	if info.Size == 0 {
		t.Fatal("preloaded metadata has no size")
	}

	res, err := a.LoadOptimized(ctx, scheduler.DefaultSaveName)
	if err != nil {
		t.Fatalf("LoadOptimized: %v", err)
	}
	if _, ok := res.Payload["player"]; !ok {
		t.Fatal("payload missing player section")
	}
}

func TestWarmedEnumeratesNewestFirst(t *testing.T) {
	st, sched := testRig(t)
	if err := st.EnsureReady(); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	ctx := context.Background()
	for _, w := range []struct {
		name string
		age  time.Duration
	}{
		{"older", 2 * time.Hour},
		{scheduler.DefaultSaveName, 0},
		{"backup_20260830T000000.000", time.Hour},
	} {
		if _, err := st.Write(ctx, w.name, testSnapshot(), nil); err != nil {
			t.Fatalf("Write %s: %v", w.name, err)
		}
		stamp := time.Now().Add(-w.age)
		if err := os.Chtimes(filepath.Join(st.Dir(), w.name), stamp, stamp); err != nil {
			t.Fatalf("Chtimes %s: %v", w.name, err)
		}
	}

	a, err := New(Config{Store: st, Scheduler: sched})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := a.Boot(ctx); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	defer sched.Stop()

	warmed := a.Warmed()
	if len(warmed) != 2 {
		t.Fatalf("Warmed returned %d blobs, want 2 regular saves", len(warmed))
	}
	if warmed[0].Name != scheduler.DefaultSaveName || warmed[1].Name != "older" {
		t.Fatalf("Warmed order = [%s, %s], want newest first", warmed[0].Name, warmed[1].Name)
	}
	for _, b := range warmed {
		if b.IsBackup {
			t.Fatalf("Warmed exposed backup %s", b.Name)
		}
	}
}

func TestCacheMissingIsSilentMiss(t *testing.T) {
	c := newMetaCache(t.TempDir(), time.Hour)
	hit, err := c.load(time.Now())
	if hit || err != nil {
		t.Fatalf("load = (%v, %v), want clean miss", hit, err)
	}
}
