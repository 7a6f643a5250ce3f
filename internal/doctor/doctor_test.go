package doctor

import (
	"context"
	"testing"

	"github.com/zalando/go-keyring"
)

// A fresh machine produces warnings with setup hints, never failures.
func TestFreshInstallReportHasNoFailures(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	keyring.MockInit()

	report := GenerateReport(context.Background())

	wantNames := []string{"Runtime Metadata", "Configuration", "Database", "Keyring", "Wallet", "Node"}
	if len(report.Checks) != len(wantNames) {
		t.Fatalf("expected %d checks, got %d", len(wantNames), len(report.Checks))
	}
	for i, name := range wantNames {
		if report.Checks[i].Name != name {
			t.Errorf("check %d = %q, want %q", i, report.Checks[i].Name, name)
		}
	}
	if report.HasFailures() {
		for _, check := range report.Checks {
			if check.Status == StatusFail {
				t.Errorf("unexpected failure: %s - %s", check.Name, check.Summary)
			}
		}
	}
	if report.ExitCode() != 0 {
		t.Errorf("expected exit code 0, got %d", report.ExitCode())
	}
}

func TestReportExitCode(t *testing.T) {
	healthy := Report{Checks: []CheckResult{
		{Name: "a", Status: StatusOK},
		{Name: "b", Status: StatusWarn},
	}}
	if healthy.HasFailures() || healthy.ExitCode() != 0 {
		t.Error("warnings must not fail the report")
	}

	broken := Report{Checks: []CheckResult{
		{Name: "a", Status: StatusOK},
		{Name: "b", Status: StatusFail},
	}}
	if !broken.HasFailures() || broken.ExitCode() != 1 {
		t.Error("a failed check must set the exit code")
	}
}

func TestFormatBytes(t *testing.T) {
	cases := []struct {
		size int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
	}
	for _, tc := range cases {
		if got := formatBytes(tc.size); got != tc.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tc.size, got, tc.want)
		}
	}
}
