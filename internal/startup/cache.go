package startup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/oklog/ulid/v2"

	"github.com/alphaleadership/skid-inc-sub000/internal/store"
)

// CacheName is the metadata cache file inside the store directory.
// The dot prefix keeps it out of listings and the quota.
const CacheName = ".startup_cache"

// cacheSchema invalidates caches written by incompatible versions.
const cacheSchema = 1

type cachedBlob struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

type cacheFile struct {
	Schema  int          `json:"schema"`
	SavedAt time.Time    `json:"saved_at"`
	Blobs   []cachedBlob `json:"blobs"`

	// Digest is an xxhash over the sorted blob entries, guarding
	// against truncated or hand-edited cache files.
	Digest uint64 `json:"digest"`
}

// metaCache persists directory metadata between runs so the next boot
// can skip the initial scan.
type metaCache struct {
	dir string
	ttl time.Duration

	blobs []cachedBlob
}

func newMetaCache(dir string, ttl time.Duration) *metaCache {
	return &metaCache{dir: dir, ttl: ttl}
}

func (c *metaCache) path() string {
	return filepath.Join(c.dir, CacheName)
}

func digest(blobs []cachedBlob) uint64 {
	h := xxhash.New()
	for _, b := range blobs {
		fmt.Fprintf(h, "%s|%d|%d\n", b.Name, b.Size, b.ModTime.UnixNano())
	}
	return h.Sum64()
}

// load reads the cache file and reports whether it was usable. A stale,
// corrupt or missing cache is a miss, never an error worth failing boot
// over; the error return is informational.
func (c *metaCache) load(now time.Time) (bool, error) {
	data, err := os.ReadFile(c.path())
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("startup: read cache: %w", err)
	}

	var f cacheFile
	if err := json.Unmarshal(data, &f); err != nil {
		return false, fmt.Errorf("startup: decode cache: %w", err)
	}
	if f.Schema != cacheSchema {
		return false, fmt.Errorf("startup: cache schema %d, want %d", f.Schema, cacheSchema)
	}
	if now.Sub(f.SavedAt) > c.ttl {
		return false, fmt.Errorf("startup: cache older than %s", c.ttl)
	}
	if digest(f.Blobs) != f.Digest {
		return false, fmt.Errorf("startup: cache digest mismatch")
	}

	c.blobs = f.Blobs
	return true, nil
}

// store persists the current directory metadata atomically via a temp
// file and rename, the same commit pattern the blobs themselves use.
func (c *metaCache) store(blobs []store.BlobInfo, now time.Time) error {
	entries := make([]cachedBlob, 0, len(blobs))
	for _, b := range blobs {
		entries = append(entries, cachedBlob{Name: b.Name, Size: b.Size, ModTime: b.ModTime})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	f := cacheFile{
		Schema:  cacheSchema,
		SavedAt: now,
		Blobs:   entries,
		Digest:  digest(entries),
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("startup: encode cache: %w", err)
	}

	tmp := c.path() + ".tmp-" + ulid.Make().String()
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("startup: write cache: %w", err)
	}
	if err := os.Rename(tmp, c.path()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("startup: commit cache: %w", err)
	}
	c.blobs = entries
	return nil
}

// Known returns the cached metadata loaded at boot, if any.
func (c *metaCache) known() []cachedBlob {
	return c.blobs
}
