package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/alphaleadership/skid-inc-sub000/internal/event"
	"github.com/alphaleadership/skid-inc-sub000/internal/governor"
	"github.com/alphaleadership/skid-inc-sub000/internal/state"
	"github.com/alphaleadership/skid-inc-sub000/internal/telemetry/logger"
	"github.com/alphaleadership/skid-inc-sub000/internal/telemetry/metric"
	"github.com/alphaleadership/skid-inc-sub000/pkg/crypto/adaptive"
)

const (
	// BackupPrefix marks timestamped backup blobs by naming convention.
	BackupPrefix = "backup_"

	// DefaultQuotaBytes is the default disk budget for the store dir.
	DefaultQuotaBytes int64 = 100 << 20

	filePerm = 0600
	dirPerm  = 0750

	tempInfix  = ".tmp-"
	probeInfix = ".probe-"

	// quotaWarningFraction is where QuotaWarning events start firing.
	quotaWarningFraction = 0.90
)

// Compressor is what the store needs from the performance governor.
type Compressor interface {
	Compress(data []byte) governor.CompressResult
	Decompress(data []byte) ([]byte, error)
}

// RegisteredInfo is the per-blob metadata handed to the registrar.
type RegisteredInfo struct {
	Size       int64           `json:"size"`
	Checksum   string          `json:"checksum"`
	Compressed bool            `json:"compressed"`
	SavedAt    time.Time       `json:"saved_at"`
	Envelope   *state.Envelope `json:"envelope,omitempty"`
}

// Registrar is the external metadata collaborator consulted after every
// write and delete. Registrar failures are logged, never fatal to the
// write itself.
type Registrar interface {
	RegisterSaveFile(name string, info RegisteredInfo) error
	UnregisterSaveFile(name string) error
}

// Config configures the store.
type Config struct {
	// Dir is the flat save directory.
	Dir string

	// QuotaBytes is the disk budget enforced before every commit.
	QuotaBytes int64

	// Compressor handles payload compression. Optional; nil disables
	// compression entirely.
	Compressor Compressor

	// Cipher enables at-rest encryption when non-nil. Blobs written
	// with a cipher require the same cipher to read.
	Cipher adaptive.Cipher

	// Registrar is notified of writes and deletes. Optional.
	Registrar Registrar

	// Bus receives QuotaWarning events. Optional.
	Bus *event.Bus

	// Metrics receives disk usage gauges. Optional.
	Metrics *metric.Registry

	// Logger defaults to the package default logger.
	Logger logger.Logger
}

// Store owns the on-disk blob bytes and directory state.
type Store struct {
	cfg Config
	log logger.Logger
}

// New creates a store for cfg.Dir. The directory is not touched until
// EnsureReady.
func New(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("store: dir is required")
	}
	if cfg.QuotaBytes == 0 {
		cfg.QuotaBytes = DefaultQuotaBytes
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	return &Store{cfg: cfg, log: log.With("component", "store")}, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string {
	return s.cfg.Dir
}

// EnsureReady creates the store directory if absent and verifies write
// permission by writing and deleting a probe file.
func (s *Store) EnsureReady() error {
	if err := os.MkdirAll(s.cfg.Dir, dirPerm); err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrPermission, s.cfg.Dir, err)
	}

	probe := filepath.Join(s.cfg.Dir, probeInfix+ulid.Make().String())
	if err := os.WriteFile(probe, []byte("probe"), filePerm); err != nil {
		return fmt.Errorf("%w: probe write in %s: %v", ErrPermission, s.cfg.Dir, err)
	}
	if err := os.Remove(probe); err != nil {
		return fmt.Errorf("%w: probe cleanup in %s: %v", ErrPermission, s.cfg.Dir, err)
	}
	return nil
}

// WriteResult describes a committed blob.
type WriteResult struct {
	Filename   string
	Size       int64
	Checksum   string
	Compressed bool
}

// Write serializes payload and commits it under the sanitized name.
// The quota is enforced before any byte reaches its final path, and the
// temp-then-rename commit means an interrupted write leaves either the
// previous complete blob or none at all.
func (s *Store) Write(ctx context.Context, name string, payload any, env *state.Envelope) (*WriteResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name = SanitizeName(name)

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("store: serialize %s: %w", name, err)
	}

	data := raw
	compressed := false
	if s.cfg.Compressor != nil {
		res := s.cfg.Compressor.Compress(raw)
		data = res.Data
		compressed = res.Compressed
	}

	if s.cfg.Cipher != nil {
		enc, err := s.cfg.Cipher.Encrypt(data, []byte(name))
		if err != nil {
			return nil, fmt.Errorf("store: encrypt %s: %w", name, err)
		}
		data = enc
	}

	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	if err := s.checkQuota(name, int64(len(data))); err != nil {
		return nil, err
	}

	finalPath := filepath.Join(s.cfg.Dir, name)
	tempPath := finalPath + tempInfix + ulid.Make().String()

	f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		return nil, fmt.Errorf("store: create temp for %s: %w", name, err)
	}
	defer os.Remove(tempPath)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return nil, fmt.Errorf("store: write temp for %s: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, fmt.Errorf("store: sync %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("store: close temp for %s: %w", name, err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		return nil, fmt.Errorf("store: rename %s: %w", name, err)
	}

	info := RegisteredInfo{
		Size:       int64(len(data)),
		Checksum:   checksum,
		Compressed: compressed,
		SavedAt:    time.Now(),
		Envelope:   env,
	}
	if s.cfg.Registrar != nil {
		if err := s.cfg.Registrar.RegisterSaveFile(name, info); err != nil {
			s.log.Warn("registrar rejected save file", "name", name, "error", err)
		}
	}

	s.publishUsage(ctx)

	return &WriteResult{
		Filename:   name,
		Size:       int64(len(data)),
		Checksum:   checksum,
		Compressed: compressed,
	}, nil
}

// ReadResult describes a loaded blob.
type ReadResult struct {
	Payload    state.Snapshot
	Checksum   string
	Compressed bool
}

// Read loads, decodes and integrity-checks the blob under name.
// Compression is detected by the gzip magic bytes, not by filename
// convention, so old uncompressed blobs stay readable.
func (s *Store) Read(ctx context.Context, name string) (*ReadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name = SanitizeName(name)

	data, err := os.ReadFile(filepath.Join(s.cfg.Dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("store: read %s: %w", name, err)
	}

	// Checksum covers the raw on-disk bytes.
	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	if s.cfg.Cipher != nil {
		plain, err := s.cfg.Cipher.Decrypt(data, []byte(name))
		if err != nil {
			return nil, fmt.Errorf("%w: decrypt %s: %v", ErrCorrupted, name, err)
		}
		data = plain
	}

	compressed := governor.IsCompressed(data)
	if compressed {
		if s.cfg.Compressor == nil {
			return nil, fmt.Errorf("%w: %s is compressed but no compressor is configured", ErrCorrupted, name)
		}
		plain, err := s.cfg.Compressor.Decompress(data)
		if err != nil {
			return nil, fmt.Errorf("%w: decompress %s: %v", ErrCorrupted, name, err)
		}
		data = plain
	}

	var payload state.Snapshot
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: deserialize %s: %v", ErrCorrupted, name, err)
	}

	return &ReadResult{
		Payload:    payload,
		Checksum:   checksum,
		Compressed: compressed,
	}, nil
}

// BlobInfo describes one stored blob.
type BlobInfo struct {
	Name     string
	Size     int64
	ModTime  time.Time
	IsBackup bool
}

// List enumerates non-system blobs, newest first. Dot-prefixed files
// (manifest, startup cache, probes) and in-flight temp files are
// invisible to callers.
func (s *Store) List(ctx context.Context) ([]BlobInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: list %s: %w", s.cfg.Dir, err)
	}

	var infos []BlobInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") || strings.Contains(name, tempInfix) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		infos = append(infos, BlobInfo{
			Name:     name,
			Size:     fi.Size(),
			ModTime:  fi.ModTime(),
			IsBackup: strings.HasPrefix(name, BackupPrefix),
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ModTime.After(infos[j].ModTime)
	})
	return infos, nil
}

// Stat returns metadata for a single blob.
func (s *Store) Stat(ctx context.Context, name string) (*BlobInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name = SanitizeName(name)

	fi, err := os.Stat(filepath.Join(s.cfg.Dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("store: stat %s: %w", name, err)
	}
	return &BlobInfo{
		Name:     name,
		Size:     fi.Size(),
		ModTime:  fi.ModTime(),
		IsBackup: strings.HasPrefix(name, BackupPrefix),
	}, nil
}

// Delete removes a blob and unregisters it.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name = SanitizeName(name)

	if err := os.Remove(filepath.Join(s.cfg.Dir, name)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("store: delete %s: %w", name, err)
	}
	if s.cfg.Registrar != nil {
		if err := s.cfg.Registrar.UnregisterSaveFile(name); err != nil {
			s.log.Warn("registrar failed to unregister", "name", name, "error", err)
		}
	}
	return nil
}

// Usage reports disk consumption of the store directory.
type Usage struct {
	UsedBytes  int64
	QuotaBytes int64
	Percent    float64
}

// DiskUsage recomputes directory usage from its contents. System files
// do not count against the quota.
func (s *Store) DiskUsage(ctx context.Context) (*Usage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	used, err := s.usedBytes()
	if err != nil {
		return nil, err
	}
	u := &Usage{
		UsedBytes:  used,
		QuotaBytes: s.cfg.QuotaBytes,
		Percent:    float64(used) / float64(s.cfg.QuotaBytes) * 100,
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.DiskUsageBytes.Set(float64(used))
		s.cfg.Metrics.QuotaBytes.Set(float64(s.cfg.QuotaBytes))
	}
	return u, nil
}

// usedBytes recomputes usage from scratch. Deliberate: a running
// counter could drift; the directory holds at most hundreds of files.
func (s *Store) usedBytes() (int64, error) {
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("store: usage of %s: %w", s.cfg.Dir, err)
	}

	var used int64
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		used += fi.Size()
	}
	return used, nil
}

// checkQuota enforces the quota before a single candidate byte is
// committed. Overwriting an existing blob only charges the delta.
func (s *Store) checkQuota(name string, candidate int64) error {
	used, err := s.usedBytes()
	if err != nil {
		return err
	}

	var existing int64
	if fi, err := os.Stat(filepath.Join(s.cfg.Dir, name)); err == nil {
		existing = fi.Size()
	}

	if used-existing+candidate > s.cfg.QuotaBytes {
		return fmt.Errorf("%w: %s needs %d bytes, %d of %d used",
			ErrQuotaExceeded, name, candidate, used, s.cfg.QuotaBytes)
	}
	return nil
}

// publishUsage emits a QuotaWarning when the directory crosses the
// warning line after a write.
func (s *Store) publishUsage(ctx context.Context) {
	u, err := s.DiskUsage(ctx)
	if err != nil {
		return
	}
	if u.Percent >= quotaWarningFraction*100 {
		s.cfg.Bus.Publish(event.QuotaWarning{
			UsedBytes:  u.UsedBytes,
			QuotaBytes: u.QuotaBytes,
			Percent:    u.Percent,
		})
	}
}
