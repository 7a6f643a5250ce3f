package cli

import (
	"testing"

	"cashkit/internal/doctor"
)

func TestFormatStatus(t *testing.T) {
	tests := []struct {
		status doctor.Status
		want   string
	}{
		{doctor.StatusOK, "[OK ]"},
		{doctor.StatusWarn, "[WARN]"},
		{doctor.StatusFail, "[FAIL]"},
		{doctor.Status("unknown"), "[    ]"},
	}
	for _, tt := range tests {
		if got := formatStatus(tt.status); got != tt.want {
			t.Errorf("formatStatus(%q) = %q, want %q", tt.status, got, tt.want)
		}
	}
}
