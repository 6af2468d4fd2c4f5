package state

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

// Snapshot is the opaque game state handed over by the host application.
// The persistence core never interprets individual fields beyond the
// critical subset used for change detection.
type Snapshot map[string]any

// DefaultCriticalFields is the top-level field subset compared when
// deciding whether a state change is worth a quick save. Changes outside
// this subset do not trigger debounced saves; the periodic save still
// captures them.
var DefaultCriticalFields = []string{
	"player",
	"scripts",
	"upgrades",
	"achievements",
	"options",
}

// Clone returns a deep copy of the snapshot via a JSON round trip.
func (s Snapshot) Clone() (Snapshot, error) {
	if s == nil {
		return nil, nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("state: clone marshal: %w", err)
	}
	var out Snapshot
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("state: clone unmarshal: %w", err)
	}
	return out, nil
}

// CriticalEqual reports whether two snapshots agree on every listed
// top-level field. The comparison is deliberately coarse: nested changes
// under unlisted fields are invisible to it.
func CriticalEqual(a, b Snapshot, fields []string) bool {
	if len(fields) == 0 {
		fields = DefaultCriticalFields
	}
	for _, f := range fields {
		if !reflect.DeepEqual(a[f], b[f]) {
			return false
		}
	}
	return true
}

// SaveKind classifies what triggered a write.
type SaveKind string

const (
	SavePeriodic SaveKind = "periodic"
	SaveQuick    SaveKind = "quick"
	SaveManual   SaveKind = "manual"
	SaveBackup   SaveKind = "backup"
)

// Envelope is the per-save metadata recorded alongside a blob. It is
// advisory: a payload remains readable without its envelope.
type Envelope struct {
	Timestamp      time.Time     `json:"timestamp"`
	SaveType       SaveKind      `json:"save_type"`
	RetryCount     int           `json:"retry_count"`
	WasRepaired    bool          `json:"was_repaired"`
	ValidationTime time.Duration `json:"validation_time"`
}
