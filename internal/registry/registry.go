package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/alphaleadership/skid-inc-sub000/internal/store"
)

// ManifestName is the hidden manifest file inside the store directory.
const ManifestName = ".save_manifest.json"

const manifestVersion = 1

type manifest struct {
	Version int                             `json:"version"`
	Updated time.Time                       `json:"updated"`
	Files   map[string]store.RegisteredInfo `json:"files"`
}

// Registry implements the store.Registrar contract over a JSON manifest.
type Registry struct {
	dir string

	mu sync.Mutex
	m  manifest
}

// Open loads the manifest from dir, starting empty when it is missing
// or unreadable. A broken manifest is discarded, not repaired: it is
// rebuilt incrementally by subsequent writes.
func Open(dir string) (*Registry, error) {
	if dir == "" {
		return nil, fmt.Errorf("registry: dir is required")
	}

	r := &Registry{
		dir: dir,
		m: manifest{
			Version: manifestVersion,
			Files:   make(map[string]store.RegisteredInfo),
		},
	}

	raw, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("registry: read manifest: %w", err)
	}

	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil || m.Version != manifestVersion {
		return r, nil
	}
	if m.Files == nil {
		m.Files = make(map[string]store.RegisteredInfo)
	}
	r.m = m
	return r, nil
}

// RegisterSaveFile records metadata for a written blob and persists the
// manifest.
func (r *Registry) RegisterSaveFile(name string, info store.RegisteredInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m.Files[name] = info
	return r.persistLocked()
}

// UnregisterSaveFile drops a blob from the manifest.
func (r *Registry) UnregisterSaveFile(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m.Files, name)
	return r.persistLocked()
}

// Lookup returns the recorded metadata for name.
func (r *Registry) Lookup(name string) (store.RegisteredInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.m.Files[name]
	return info, ok
}

// Names returns all registered blob names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.m.Files))
	for name := range r.m.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IntegrityResult reports one blob's integrity against the manifest.
type IntegrityResult struct {
	Valid  bool
	Reason string
}

// ValidateIntegrity recomputes the checksum of the on-disk bytes and
// compares it with the manifest record.
func (r *Registry) ValidateIntegrity(name string) IntegrityResult {
	r.mu.Lock()
	info, ok := r.m.Files[name]
	r.mu.Unlock()

	if !ok {
		return IntegrityResult{Reason: "not registered"}
	}

	raw, err := os.ReadFile(filepath.Join(r.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return IntegrityResult{Reason: "file missing"}
		}
		return IntegrityResult{Reason: fmt.Sprintf("unreadable: %v", err)}
	}
	if int64(len(raw)) != info.Size {
		return IntegrityResult{Reason: fmt.Sprintf("size %d, manifest says %d", len(raw), info.Size)}
	}

	sum := sha256.Sum256(raw)
	if hex.EncodeToString(sum[:]) != info.Checksum {
		return IntegrityResult{Reason: "checksum mismatch"}
	}
	return IntegrityResult{Valid: true}
}

// ValidationReport aggregates a full manifest sweep.
type ValidationReport struct {
	InvalidFiles []string
	Details      map[string]string
}

// ValidateAll checks every registered blob.
func (r *Registry) ValidateAll() ValidationReport {
	report := ValidationReport{Details: make(map[string]string)}
	for _, name := range r.Names() {
		res := r.ValidateIntegrity(name)
		if !res.Valid {
			report.InvalidFiles = append(report.InvalidFiles, name)
			report.Details[name] = res.Reason
		}
	}
	return report
}

// persistLocked writes the manifest atomically next to the blobs it
// describes.
func (r *Registry) persistLocked() error {
	r.m.Updated = time.Now()

	raw, err := json.MarshalIndent(r.m, "", "  ")
	if err != nil {
		return fmt.Errorf("registry: marshal manifest: %w", err)
	}

	final := filepath.Join(r.dir, ManifestName)
	temp := final + ".tmp"
	if err := os.WriteFile(temp, raw, 0600); err != nil {
		return fmt.Errorf("registry: write manifest: %w", err)
	}
	if err := os.Rename(temp, final); err != nil {
		os.Remove(temp)
		return fmt.Errorf("registry: rename manifest: %w", err)
	}
	return nil
}
