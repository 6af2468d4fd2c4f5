package validate

import (
	"fmt"

	"github.com/alphaleadership/skid-inc-sub000/internal/state"
)

// Result reports the outcome of a validation pass.
type Result struct {
	IsValid     bool
	WasRepaired bool
	// RepairedData is set when WasRepaired is true.
	RepairedData state.Snapshot
	Errors       []string
	Warnings     []string
}

// RepairResult reports the outcome of an explicit repair pass.
type RepairResult struct {
	Success          bool
	RepairedData     state.Snapshot
	AppliedFixes     []string
	UnresolvedIssues []string
}

// Validator checks and repairs snapshots.
type Validator struct {
	// RequiredFields are the top-level sections every snapshot must
	// carry. Empty means the default critical subset.
	RequiredFields []string
}

// New creates a validator over the default critical field subset.
func New() *Validator {
	return &Validator{RequiredFields: state.DefaultCriticalFields}
}

// Validate inspects a snapshot. A snapshot with a repairable defect is
// reported invalid with WasRepaired set and the fixed copy attached.
func (v *Validator) Validate(snapshot state.Snapshot) *Result {
	res := &Result{IsValid: true}
	if snapshot == nil {
		res.IsValid = false
		res.Errors = append(res.Errors, "snapshot is nil")
		return res
	}

	fields := v.RequiredFields
	if len(fields) == 0 {
		fields = state.DefaultCriticalFields
	}

	var fixed state.Snapshot
	ensureFixed := func() {
		if fixed != nil {
			return
		}
		c, err := snapshot.Clone()
		if err != nil {
			c = snapshot
		}
		fixed = c
	}

	for _, f := range fields {
		val, ok := snapshot[f]
		if !ok || val == nil {
			res.IsValid = false
			res.Errors = append(res.Errors, fmt.Sprintf("missing section %q", f))
			ensureFixed()
			fixed[f] = defaultSection(f)
			continue
		}
		if m, ok := val.(map[string]any); ok {
			if bad := negativeKeys(m); len(bad) > 0 {
				res.IsValid = false
				for _, k := range bad {
					res.Errors = append(res.Errors, fmt.Sprintf("negative value %s.%s", f, k))
				}
				ensureFixed()
				fm := fixed[f].(map[string]any)
				for _, k := range bad {
					fm[k] = float64(0)
				}
			}
		}
	}

	// Unknown top-level sections are tolerated but reported.
	known := make(map[string]bool, len(fields))
	for _, f := range fields {
		known[f] = true
	}
	for k := range snapshot {
		if !known[k] {
			res.Warnings = append(res.Warnings, fmt.Sprintf("unknown section %q", k))
		}
	}

	if fixed != nil {
		res.WasRepaired = true
		res.RepairedData = fixed
	}
	return res
}

// Repair applies the fixes a previous Validate proposed. It exists so a
// caller can separate detection from mutation; on a nil snapshot there
// is nothing to rebuild from.
func (v *Validator) Repair(snapshot state.Snapshot, validation *Result) *RepairResult {
	out := &RepairResult{}
	if snapshot == nil {
		out.UnresolvedIssues = append(out.UnresolvedIssues, "snapshot is nil")
		return out
	}
	if validation == nil {
		validation = v.Validate(snapshot)
	}
	if validation.IsValid {
		out.Success = true
		out.RepairedData = snapshot
		return out
	}
	if validation.RepairedData == nil {
		out.UnresolvedIssues = validation.Errors
		return out
	}

	out.Success = true
	out.RepairedData = validation.RepairedData
	out.AppliedFixes = validation.Errors
	return out
}

// defaultSection builds an empty value of the right shape for a missing
// critical section.
func defaultSection(field string) any {
	switch field {
	case "scripts", "achievements":
		return []any{}
	default:
		return map[string]any{}
	}
}

// negativeKeys returns keys of m holding negative numbers, in stable
// order per map iteration of the caller's repair loop.
func negativeKeys(m map[string]any) []string {
	var bad []string
	for k, v := range m {
		if f, ok := v.(float64); ok && f < 0 {
			bad = append(bad, k)
		}
	}
	return bad
}
