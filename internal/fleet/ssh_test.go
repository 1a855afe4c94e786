package fleet

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

// fakeSSH writes a stand-in `ssh` binary to a temp dir and prepends it to
// PATH for the duration of the test, so ScanHost's exec.Command("ssh", ...)
// resolves to it instead of a real ssh client.
func fakeSSH(t *testing.T, script string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ssh script is a shell script")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "ssh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write fake ssh: %v", err)
	}

	oldPath := os.Getenv("PATH")
	t.Setenv("PATH", dir+string(os.PathListSeparator)+oldPath)
}

func TestScanHostParsesEnvelope(t *testing.T) {
	fakeSSH(t, `echo '{"schema_version":"1.0.0","session_id":"abc","scan":[{"pid":1},{"pid":2}]}'`)

	result := ScanHost(context.Background(), "host1", DefaultSSHScanConfig())
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	if result.SessionID != "abc" {
		t.Errorf("session id = %q, want abc", result.SessionID)
	}
	if len(result.Processes) != 2 {
		t.Errorf("processes = %d, want 2", len(result.Processes))
	}
}

func TestScanHostParsesBareArray(t *testing.T) {
	fakeSSH(t, `echo '[{"pid":1}]'`)

	result := ScanHost(context.Background(), "host1", DefaultSSHScanConfig())
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	if len(result.Processes) != 1 {
		t.Errorf("processes = %d, want 1", len(result.Processes))
	}
}

func TestScanHostNonZeroExit(t *testing.T) {
	fakeSSH(t, `echo 'permission denied' >&2; exit 255`)

	result := ScanHost(context.Background(), "host1", DefaultSSHScanConfig())
	if result.Success {
		t.Fatal("expected failure on nonzero ssh exit")
	}
	if result.Error == "" {
		t.Error("expected a populated error message")
	}
}

func TestScanHostMalformedOutput(t *testing.T) {
	fakeSSH(t, `echo 'not json'`)

	result := ScanHost(context.Background(), "host1", DefaultSSHScanConfig())
	if result.Success {
		t.Fatal("expected failure on malformed output")
	}
}

func TestScanFleetPreservesOrderAndCounts(t *testing.T) {
	fakeSSH(t, `echo '{"scan":[{"pid":1}]}'`)

	cfg := DefaultSSHScanConfig()
	cfg.Parallel = 2
	hosts := []string{"host-a", "host-b", "host-c"}
	result := ScanFleet(context.Background(), hosts, cfg)

	if result.TotalHosts != 3 || result.Successful != 3 || result.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", result)
	}
	for i, r := range result.Results {
		if r.Host != hosts[i] {
			t.Errorf("result[%d].Host = %q, want %q (order must match input)", i, r.Host, hosts[i])
		}
	}
}

func TestScanFleetEmptyHosts(t *testing.T) {
	result := ScanFleet(context.Background(), nil, DefaultSSHScanConfig())
	if result.TotalHosts != 0 || len(result.Results) != 0 {
		t.Errorf("expected an empty result, got %+v", result)
	}
}

func TestScanHostRespectsContextTimeout(t *testing.T) {
	fakeSSH(t, `sleep 2; echo '{"scan":[]}'`)

	cfg := DefaultSSHScanConfig()
	cfg.CommandTimeout = 50 * time.Millisecond
	result := ScanHost(context.Background(), "slow-host", cfg)
	if result.Success {
		t.Fatal("expected a timeout failure")
	}
}
