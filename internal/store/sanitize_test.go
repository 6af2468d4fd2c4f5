package store

import (
	"strings"
	"testing"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "skidinc", "skidinc"},
		{"traversal", "../../etc/passwd", "etcpasswd"},
		{"separators", `saves\sub/blob`, "savessubblob"},
		{"reserved chars", `sa<ve>:"|?*1`, "save1"},
		{"control chars", "save\x00\x1fone", "saveone"},
		{"leading dots", "...hidden", "hidden"},
		{"spaces trimmed", "  my save  ", "my save"},
		{"empty falls back", "", "save"},
		{"only junk falls back", `../<>|`, "save"},
		{"length bounded", strings.Repeat("a", 200), strings.Repeat("a", 64)},
		{"temp infix stripped", "skidinc.tmp-01ABC", "skidinc01ABC"},
		{"temp infix reassembly", ".t.tmp-mp-blob", "blob"},
		{"only temp infix falls back", ".tmp-", "save"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeName(tt.in); got != tt.want {
				t.Fatalf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
