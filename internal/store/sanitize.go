package store

import "strings"

// maxNameLength bounds sanitized blob names.
const maxNameLength = 64

// reservedChars are stripped from blob names: path separators, path
// traversal and characters that are reserved on common filesystems.
const reservedChars = `/\<>:"|?*`

// SanitizeName normalizes a caller-supplied blob name into a safe flat
// filename. Traversal sequences, separators, reserved and control
// characters and the in-flight temp marker are removed, leading dots
// are stripped so a blob can never masquerade as a system file, and the
// result is length-bounded. An empty result falls back to "save".
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "..", "")

	// The temp infix is reserved for in-flight writes; a blob carrying
	// it would be committed but invisible to List. Stripping repeats
	// until clean so a removal cannot reassemble the infix.
	for strings.Contains(name, tempInfix) {
		name = strings.ReplaceAll(name, tempInfix, "")
	}

	var b strings.Builder
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			continue
		}
		if strings.ContainsRune(reservedChars, r) {
			continue
		}
		b.WriteRune(r)
	}
	name = strings.TrimLeft(b.String(), ".")
	name = strings.TrimSpace(name)

	if len(name) > maxNameLength {
		name = name[:maxNameLength]
	}
	if name == "" {
		return "save"
	}
	return name
}
