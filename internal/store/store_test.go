package store

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/alphaleadership/skid-inc-sub000/internal/governor"
	"github.com/alphaleadership/skid-inc-sub000/internal/state"
	"github.com/alphaleadership/skid-inc-sub000/pkg/crypto/adaptive"
)

func newTestStore(t *testing.T, mutate func(*Config)) *Store {
	t.Helper()

	g, err := governor.New(governor.DefaultConfig())
	if err != nil {
		t.Fatalf("governor.New: %v", err)
	}
	cfg := Config{
		Dir:        t.TempDir(),
		Compressor: g,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.EnsureReady(); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	return s
}

func bigSnapshot() state.Snapshot {
	// Repetitive content compresses well and clears the 1 KiB threshold.
	scripts := make([]any, 0, 64)
	for i := 0; i < 64; i++ {
		scripts = append(scripts, "bruteforce_v2.sh")
	}
	return state.Snapshot{
		"player":  map[string]any{"name": "z3r0c00l", "exp": float64(1337)},
		"scripts": scripts,
	}
}

func TestEnsureReady_CreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "saves")
	s, err := New(Config{Dir: dir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.EnsureReady(); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("store dir missing: %v", err)
	}

	// No probe leftovers.
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("probe left %d entries behind", len(entries))
	}
}

func TestEnsureReady_PermissionError(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}

	parent := t.TempDir()
	dir := filepath.Join(parent, "readonly")
	if err := os.Mkdir(dir, 0500); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	s, err := New(Config{Dir: dir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.EnsureReady(); !errors.Is(err, ErrPermission) {
		t.Fatalf("EnsureReady = %v, want ErrPermission", err)
	}
}

func TestWriteRead_RoundTrip(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	payload := bigSnapshot()
	res, err := s.Write(ctx, "skidinc", payload, nil)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !res.Compressed {
		t.Fatal("large payload was not compressed")
	}

	got, err := s.Read(ctx, "skidinc")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !got.Compressed {
		t.Fatal("compression not detected by magic sniff")
	}
	if got.Checksum != res.Checksum {
		t.Fatalf("checksum %q != written %q", got.Checksum, res.Checksum)
	}
	if diff := cmp.Diff(payload, got.Payload); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteRead_SmallUncompressed(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	payload := state.Snapshot{"player": map[string]any{"exp": float64(1)}}
	res, err := s.Write(ctx, "tiny", payload, nil)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if res.Compressed {
		t.Fatal("small payload was compressed")
	}

	got, err := s.Read(ctx, "tiny")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if diff := cmp.Diff(payload, got.Payload); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestWrite_ChecksumIdempotent(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	payload := state.Snapshot{"player": map[string]any{"exp": float64(42)}}
	first, err := s.Write(ctx, "same", payload, nil)
	if err != nil {
		t.Fatalf("first Write: %v", err)
	}
	second, err := s.Write(ctx, "same", payload, nil)
	if err != nil {
		t.Fatalf("second Write: %v", err)
	}
	if first.Checksum != second.Checksum {
		t.Fatalf("checksums differ: %q vs %q", first.Checksum, second.Checksum)
	}
}

func TestWrite_ChecksumMatchesDiskBytes(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	res, err := s.Write(ctx, "ondisk", bigSnapshot(), nil)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(s.Dir(), "ondisk"))
	if err != nil {
		t.Fatalf("read raw: %v", err)
	}
	if int64(len(raw)) != res.Size {
		t.Fatalf("on-disk size %d != reported %d", len(raw), res.Size)
	}
	if !governor.IsCompressed(raw) {
		t.Fatal("on-disk bytes are not the compressed form")
	}
}

func TestWrite_SanitizesName(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	res, err := s.Write(ctx, "../../evil/../name", state.Snapshot{"player": map[string]any{}}, nil)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if strings.ContainsAny(res.Filename, `/\`) || strings.Contains(res.Filename, "..") {
		t.Fatalf("unsafe filename %q", res.Filename)
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), res.Filename)); err != nil {
		t.Fatalf("blob not under store dir: %v", err)
	}
}

func TestWrite_QuotaEnforcedBeforeCommit(t *testing.T) {
	s := newTestStore(t, func(cfg *Config) {
		cfg.QuotaBytes = 100
		cfg.Compressor = nil
	})
	ctx := context.Background()

	// Seed the directory near quota with a raw 90-byte file.
	seed := filepath.Join(s.Dir(), "existing")
	if err := os.WriteFile(seed, bytes.Repeat([]byte("x"), 90), 0600); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Any payload serializing over 10 bytes must be rejected.
	_, err := s.Write(ctx, "over", state.Snapshot{"player": map[string]any{"exp": float64(12345)}}, nil)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("Write = %v, want ErrQuotaExceeded", err)
	}

	// The directory is untouched: same file count, same 90 bytes.
	entries, err := os.ReadDir(s.Dir())
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("directory has %d entries after rejected write, want 1", len(entries))
	}
	fi, err := os.Stat(seed)
	if err != nil || fi.Size() != 90 {
		t.Fatalf("seed file changed: size=%d err=%v", fi.Size(), err)
	}
}

func TestWrite_OverwriteChargesDelta(t *testing.T) {
	s := newTestStore(t, func(cfg *Config) {
		cfg.QuotaBytes = 30
		cfg.Compressor = nil
	})
	ctx := context.Background()

	payload := state.Snapshot{"player": map[string]any{"exp": float64(1)}}
	if _, err := s.Write(ctx, "slot", payload, nil); err != nil {
		t.Fatalf("first Write: %v", err)
	}
	// Rewriting the same blob replaces its bytes, so it still fits.
	if _, err := s.Write(ctx, "slot", payload, nil); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
}

func TestWrite_AbandonedTempDoesNotShadowBlob(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	snap := state.Snapshot{"player": map[string]any{"money": float64(42)}}
	if _, err := s.Write(ctx, "skidinc", snap, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// A crash between temp creation and rename leaves a stale temp next
	// to the committed blob. The blob must read back whole and the temp
	// must stay invisible.
	stale := filepath.Join(s.Dir(), "skidinc.tmp-01HQXJ3V9G0000000000000000")
	if err := os.WriteFile(stale, []byte(`{"player":{"money":9`), 0o600); err != nil {
		t.Fatalf("plant stale temp: %v", err)
	}

	res, err := s.Read(ctx, "skidinc")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	player := res.Payload["player"].(map[string]any)
	if money := player["money"].(float64); money != 42 {
		t.Fatalf("money = %v, want 42 from the committed blob", money)
	}

	blobs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(blobs) != 1 || blobs[0].Name != "skidinc" {
		t.Fatalf("List = %+v, want only skidinc", blobs)
	}
}

func TestRead_NotFound(t *testing.T) {
	s := newTestStore(t, nil)

	_, err := s.Read(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read = %v, want ErrNotFound", err)
	}
}

func TestRead_Corrupted(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	if err := os.WriteFile(filepath.Join(s.Dir(), "garbage"), []byte("not json at all"), 0600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := s.Read(ctx, "garbage"); !errors.Is(err, ErrCorrupted) {
		t.Fatalf("Read = %v, want ErrCorrupted", err)
	}

	// Truncated gzip stream is a hard failure, not silent data loss.
	if err := os.WriteFile(filepath.Join(s.Dir(), "truncated"), []byte{0x1f, 0x8b, 0x08}, 0600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := s.Read(ctx, "truncated"); !errors.Is(err, ErrCorrupted) {
		t.Fatalf("Read truncated = %v, want ErrCorrupted", err)
	}
}

func TestList_ClassifiesAndSorts(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	if _, err := s.Write(ctx, "older", state.Snapshot{"player": map[string]any{}}, nil); err != nil {
		t.Fatalf("Write older: %v", err)
	}
	if _, err := s.Write(ctx, "backup_20240101T000000", state.Snapshot{"player": map[string]any{}}, nil); err != nil {
		t.Fatalf("Write backup: %v", err)
	}
	if _, err := s.Write(ctx, "newest", state.Snapshot{"player": map[string]any{}}, nil); err != nil {
		t.Fatalf("Write newest: %v", err)
	}

	// System files are invisible.
	if err := os.WriteFile(filepath.Join(s.Dir(), ".startup_cache"), []byte("{}"), 0600); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	// Force distinct mtimes regardless of filesystem resolution.
	now := time.Now()
	os.Chtimes(filepath.Join(s.Dir(), "older"), now.Add(-2*time.Hour), now.Add(-2*time.Hour))
	os.Chtimes(filepath.Join(s.Dir(), "backup_20240101T000000"), now.Add(-time.Hour), now.Add(-time.Hour))
	os.Chtimes(filepath.Join(s.Dir(), "newest"), now, now)

	infos, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("List returned %d blobs, want 3", len(infos))
	}
	if infos[0].Name != "newest" {
		t.Fatalf("first blob = %q, want newest", infos[0].Name)
	}

	var backups int
	for _, info := range infos {
		if info.IsBackup {
			backups++
			if !strings.HasPrefix(info.Name, BackupPrefix) {
				t.Fatalf("blob %q flagged backup without prefix", info.Name)
			}
		}
	}
	if backups != 1 {
		t.Fatalf("backup count = %d, want 1", backups)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	if _, err := s.Write(ctx, "doomed", state.Snapshot{"player": map[string]any{}}, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Delete(ctx, "doomed"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "doomed"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Delete = %v, want ErrNotFound", err)
	}
}

func TestDiskUsage(t *testing.T) {
	s := newTestStore(t, func(cfg *Config) {
		cfg.QuotaBytes = 1000
		cfg.Compressor = nil
	})
	ctx := context.Background()

	if err := os.WriteFile(filepath.Join(s.Dir(), "blob"), bytes.Repeat([]byte("x"), 250), 0600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// System files do not count.
	if err := os.WriteFile(filepath.Join(s.Dir(), ".manifest"), bytes.Repeat([]byte("y"), 500), 0600); err != nil {
		t.Fatalf("seed manifest: %v", err)
	}

	u, err := s.DiskUsage(ctx)
	if err != nil {
		t.Fatalf("DiskUsage: %v", err)
	}
	if u.UsedBytes != 250 {
		t.Fatalf("UsedBytes = %d, want 250", u.UsedBytes)
	}
	if u.Percent != 25 {
		t.Fatalf("Percent = %v, want 25", u.Percent)
	}
}

func TestWriteRead_Encrypted(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	cipher, err := adaptive.New(key)
	if err != nil {
		t.Fatalf("adaptive.New: %v", err)
	}

	s := newTestStore(t, func(cfg *Config) { cfg.Cipher = cipher })
	ctx := context.Background()

	payload := bigSnapshot()
	if _, err := s.Write(ctx, "sealed", payload, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// On-disk bytes are opaque ciphertext, not the gzip stream.
	raw, err := os.ReadFile(filepath.Join(s.Dir(), "sealed"))
	if err != nil {
		t.Fatalf("read raw: %v", err)
	}
	if governor.IsCompressed(raw) {
		t.Fatal("encrypted blob still carries the compression magic")
	}

	got, err := s.Read(ctx, "sealed")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if diff := cmp.Diff(payload, got.Payload); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}

	// A store without the cipher sees corruption, not silent garbage.
	plain, err := New(Config{Dir: s.Dir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := plain.Read(ctx, "sealed"); !errors.Is(err, ErrCorrupted) {
		t.Fatalf("Read without cipher = %v, want ErrCorrupted", err)
	}
}

type recordingRegistrar struct {
	registered   []string
	unregistered []string
	fail         bool
}

func (r *recordingRegistrar) RegisterSaveFile(name string, info RegisteredInfo) error {
	if r.fail {
		return errors.New("registrar down")
	}
	r.registered = append(r.registered, name)
	return nil
}

func (r *recordingRegistrar) UnregisterSaveFile(name string) error {
	r.unregistered = append(r.unregistered, name)
	return nil
}

func TestWrite_RegistrarNotifiedAndNonFatal(t *testing.T) {
	reg := &recordingRegistrar{}
	s := newTestStore(t, func(cfg *Config) { cfg.Registrar = reg })
	ctx := context.Background()

	if _, err := s.Write(ctx, "tracked", state.Snapshot{"player": map[string]any{}}, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(reg.registered) != 1 || reg.registered[0] != "tracked" {
		t.Fatalf("registered = %v, want [tracked]", reg.registered)
	}

	// Registrar failure must not fail the write.
	reg.fail = true
	if _, err := s.Write(ctx, "tracked2", state.Snapshot{"player": map[string]any{}}, nil); err != nil {
		t.Fatalf("Write with failing registrar: %v", err)
	}

	if err := s.Delete(ctx, "tracked"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(reg.unregistered) != 1 {
		t.Fatalf("unregistered = %v, want one entry", reg.unregistered)
	}
}
