package version

import "testing"

func TestFormat(t *testing.T) {
	tests := []struct {
		version, commit, want string
	}{
		{"dev", "", "dev"},
		{"1.2.0", "abc", "1.2.0 (abc)"},
		{"1.2.0", "0123456789abcdef", "1.2.0 (0123456)"},
	}
	for _, tt := range tests {
		if got := format(tt.version, tt.commit); got != tt.want {
			t.Errorf("format(%q, %q) = %q, want %q", tt.version, tt.commit, got, tt.want)
		}
	}
}
