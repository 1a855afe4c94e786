package orchestrator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/processtriage/pttriage/internal/collect"
	"github.com/processtriage/pttriage/internal/supervision"
)

func writeProcFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", full, err)
	}
}

func statLine(pid, ppid uint32, comm string) string {
	return "" + itoa(pid) + " (" + comm + ") S " + itoa(ppid) +
		" 1 1 0 -1 4194304 0 0 0 0 0 0 0 0 20 0 1 0 9999 0 0 18446744073709551615 0 0 0 0 0 0 0 0 0 0 0 0 17 0 0 0 0 0 0"
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	digits := ""
	for v > 0 {
		digits = string(rune('0'+v%10)) + digits
		v /= 10
	}
	return digits
}

func TestReadCommAndPPID(t *testing.T) {
	root := t.TempDir()
	writeProcFile(t, root, "42/stat", statLine(42, 7, "sshd"))

	comm, ppid, ok := readCommAndPPID(root, 42)
	if !ok {
		t.Fatal("expected ok")
	}
	if comm != "sshd" {
		t.Errorf("comm = %q, want sshd", comm)
	}
	if ppid != 7 {
		t.Errorf("ppid = %d, want 7", ppid)
	}
}

func TestReadCommAndPPIDMissing(t *testing.T) {
	root := t.TempDir()
	if _, _, ok := readCommAndPPID(root, 999); ok {
		t.Error("expected ok=false for a pid with no stat file")
	}
}

func TestBuildAncestorChainWalksToPID1(t *testing.T) {
	root := t.TempDir()
	writeProcFile(t, root, "1/stat", statLine(1, 0, "systemd"))

	chain := buildAncestorChain(root, 1)
	if len(chain) != 1 {
		t.Fatalf("len(chain) = %d, want 1", len(chain))
	}
	if chain[0].PID != 1 || chain[0].Comm != "systemd" {
		t.Errorf("chain[0] = %+v, want pid 1 comm systemd", chain[0])
	}
}

func TestBuildAncestorChainStopsOnMissingEntry(t *testing.T) {
	root := t.TempDir()
	chain := buildAncestorChain(root, 1)
	if len(chain) != 0 {
		t.Errorf("expected empty chain when /proc/1/stat is missing, got %+v", chain)
	}
}

func TestSystemUptimeSeconds(t *testing.T) {
	root := t.TempDir()
	writeProcFile(t, root, "uptime", "12345.67 9999.0\n")

	v, ok := systemUptimeSeconds(root)
	if !ok {
		t.Fatal("expected ok")
	}
	if v != 12345.67 {
		t.Errorf("uptime = %v, want 12345.67", v)
	}
}

func TestSystemUptimeSecondsMissing(t *testing.T) {
	root := t.TempDir()
	if _, ok := systemUptimeSeconds(root); ok {
		t.Error("expected ok=false when uptime file is missing")
	}
}

func TestProcessAgeSeconds(t *testing.T) {
	root := t.TempDir()
	writeProcFile(t, root, "uptime", "200.0 0\n")

	rec := collect.Record{
		Identity:   collect.Identity{StartTimeTicks: 10000},
		ClockTicks: 100,
	}
	age, ok := processAgeSeconds(root, rec)
	if !ok {
		t.Fatal("expected ok")
	}
	if age != 100 {
		t.Errorf("age = %v, want 100 (200 uptime - 100s start)", age)
	}
}

func TestProcessAgeSecondsClampsNegative(t *testing.T) {
	root := t.TempDir()
	writeProcFile(t, root, "uptime", "10.0 0\n")

	rec := collect.Record{
		Identity:   collect.Identity{StartTimeTicks: 5000},
		ClockTicks: 100,
	}
	age, ok := processAgeSeconds(root, rec)
	if !ok {
		t.Fatal("expected ok")
	}
	if age != 0 {
		t.Errorf("age = %v, want 0 when start time is after reported uptime", age)
	}
}

func TestClassifySupervisionNonOrphan(t *testing.T) {
	root := t.TempDir()
	rec := collect.Record{
		Identity: collect.Identity{PID: 50},
		PPID:     1200,
		Cmdline:  "worker --config=x",
	}
	verdict := classifySupervision(root, rec)
	if verdict.UnexpectedReparenting {
		t.Error("process with a non-init parent should not be flagged as unexpectedly reparented")
	}
}

func TestClassifySupervisionOrphanUnderContainerInit(t *testing.T) {
	root := t.TempDir()
	writeProcFile(t, root, "1/stat", statLine(1, 0, "tini"))
	writeProcFile(t, root, "1/cgroup", "0::/docker/abc123\n")
	writeProcFile(t, root, "1/root/.dockerenv", "")

	rec := collect.Record{
		Identity: collect.Identity{PID: 77},
		PPID:     1,
		Cmdline:  "myapp --serve",
	}
	verdict := classifySupervision(root, rec)
	if verdict.UnexpectedReparenting {
		t.Error("a process reparented to a container init should not be flagged unexpected")
	}
}

func TestBuildEvidencePopulatesCPUAndRuntime(t *testing.T) {
	root := t.TempDir()
	writeProcFile(t, root, "uptime", "1000.0 0\n")

	rec := collect.Record{
		Identity:    collect.Identity{PID: 99, StartTimeTicks: 0},
		ClockTicks:  100,
		CPUTicks:    500,
		OpenFDCount: 10,
		Sockets:     []collect.SocketSummary{{Protocol: "tcp"}},
		HasTTY:      true,
	}
	verdict := supervision.Verdict{UnexpectedReparenting: true}

	ev := buildEvidence(rec, verdict, root)

	if ev.CPU == nil || ev.CPU.Occupancy == nil {
		t.Fatal("expected CPU occupancy evidence")
	}
	if *ev.CPU.Occupancy != 0.005 {
		t.Errorf("occupancy = %v, want 0.005 (500 ticks / 100 hz / 1000s)", *ev.CPU.Occupancy)
	}
	if ev.RuntimeSeconds == nil || *ev.RuntimeSeconds != 1000 {
		t.Fatalf("RuntimeSeconds = %v, want 1000", ev.RuntimeSeconds)
	}
	if ev.Orphan == nil || !*ev.Orphan {
		t.Error("expected Orphan=true from the supervision verdict")
	}
	if ev.TTY == nil || !*ev.TTY {
		t.Error("expected TTY=true")
	}
	if ev.Net == nil || !*ev.Net {
		t.Error("expected Net=true when sockets are present")
	}
	if ev.IOActive == nil || !*ev.IOActive {
		t.Error("expected IOActive=true when open fd count exceeds the threshold")
	}
}

func TestBuildEvidenceSkipsCPUWithoutUptime(t *testing.T) {
	root := t.TempDir()
	rec := collect.Record{Identity: collect.Identity{PID: 1}, ClockTicks: 100}

	ev := buildEvidence(rec, supervision.Verdict{}, root)
	if ev.CPU != nil {
		t.Error("expected no CPU evidence when system uptime can't be read")
	}
	if ev.RuntimeSeconds != nil {
		t.Error("expected no RuntimeSeconds when system uptime can't be read")
	}
}
