package supervision

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestClassifyNotOrphaned(t *testing.T) {
	v := Classify(Record{PID: 100, PPID: 50})
	if v.Reason != ReasonNotOrphaned {
		t.Errorf("Reason = %v, want ReasonNotOrphaned", v.Reason)
	}
	if v.UnexpectedReparenting {
		t.Error("UnexpectedReparenting should be false")
	}
}

func TestClassifyContainerPid1Expected(t *testing.T) {
	v := Classify(Record{PID: 1000, PPID: 1, InContainer: true})
	if v.Reason != ReasonContainerPid1Expected {
		t.Errorf("Reason = %v, want ReasonContainerPid1Expected", v.Reason)
	}
	if v.UnexpectedReparenting {
		t.Error("UnexpectedReparenting should be false inside a container")
	}
	if !v.ContainerRemediation.PreferRuntimeRestart {
		t.Error("expected container remediation to prefer runtime restart")
	}
}

func TestClassifySystemdSupervised(t *testing.T) {
	v := Classify(Record{
		PID: 1000, PPID: 1,
		ParentChain: []ParentWalkEntry{{PID: 1, Comm: "systemd"}},
	})
	if !v.IsSupervised {
		t.Error("expected IsSupervised = true")
	}
	if v.Reason != ReasonSystemdManaged {
		t.Errorf("Reason = %v, want ReasonSystemdManaged", v.Reason)
	}
	if v.SupervisorCategory != SupervisorOrchestrator {
		t.Errorf("SupervisorCategory = %v, want orchestrator", v.SupervisorCategory)
	}
}

func TestClassifyTmuxSupervised(t *testing.T) {
	v := Classify(Record{
		PID: 1000, PPID: 1,
		ParentChain: []ParentWalkEntry{{PID: 1, Comm: "tmux"}},
	})
	if v.Reason != ReasonTerminalMultiplexerManaged {
		t.Errorf("Reason = %v, want ReasonTerminalMultiplexerManaged", v.Reason)
	}
	if v.SupervisorCategory != SupervisorTerminal {
		t.Errorf("SupervisorCategory = %v, want terminal", v.SupervisorCategory)
	}
}

func TestClassifyIntentionalNohup(t *testing.T) {
	dir := t.TempDir()
	nohupOut := filepath.Join(dir, "nohup.out")
	if err := os.WriteFile(nohupOut, []byte("hi"), 0o644); err != nil {
		t.Fatalf("write nohup.out: %v", err)
	}

	v := Classify(Record{
		PID: 1000, PPID: 1,
		Cmdline:      "nohup ./server",
		NohupOutPath: nohupOut,
	})
	if v.Reason != ReasonIntentionallyBackgrounded {
		t.Errorf("Reason = %v, want ReasonIntentionallyBackgrounded", v.Reason)
	}
}

func TestClassifyForgottenNohup(t *testing.T) {
	dir := t.TempDir()
	nohupOut := filepath.Join(dir, "nohup.out")
	if err := os.WriteFile(nohupOut, []byte("hi"), 0o644); err != nil {
		t.Fatalf("write nohup.out: %v", err)
	}
	stale := time.Now().Add(-24 * time.Hour)
	if err := os.Chtimes(nohupOut, stale, stale); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	v := Classify(Record{
		PID: 1000, PPID: 1,
		Cmdline:      "nohup ./server",
		NohupOutPath: nohupOut,
	})
	if v.Reason != ReasonReparentedWithoutSupervision {
		t.Errorf("Reason = %v, want ReasonReparentedWithoutSupervision", v.Reason)
	}
	if !v.UnexpectedReparenting {
		t.Error("a stale nohup.out should flag unexpected reparenting")
	}
}

func TestClassifyUnsupervisedReparenting(t *testing.T) {
	v := Classify(Record{PID: 1000, PPID: 1})
	if !v.UnexpectedReparenting {
		t.Error("expected UnexpectedReparenting = true")
	}
	if v.Reason != ReasonReparentedWithoutSupervision {
		t.Errorf("Reason = %v, want ReasonReparentedWithoutSupervision", v.Reason)
	}
}

func TestParseSignalMask(t *testing.T) {
	status := "Name:\tbash\nSigBlk:\t0000000000000000\nSigIgn:\t0000000000000001\nSigCgt:\t0000000000000000\nSigPnd:\t0000000000000000\n"
	mask, err := ParseSignalMask(status)
	if err != nil {
		t.Fatalf("ParseSignalMask: %v", err)
	}
	if !mask.IgnoresSIGHUP() {
		t.Error("expected IgnoresSIGHUP = true")
	}
	if mask.CatchesSIGHUP() {
		t.Error("expected CatchesSIGHUP = false")
	}
}

func TestParseSignalMaskInvalidHex(t *testing.T) {
	_, err := ParseSignalMask("SigBlk:\tnotHex\n")
	if err == nil {
		t.Error("expected an error for invalid hex mask")
	}
}

func TestDetectContainerDockerenv(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, ".dockerenv")
	if err := os.WriteFile(marker, nil, 0o644); err != nil {
		t.Fatalf("write marker: %v", err)
	}
	if !DetectContainer(marker, "", "init") {
		t.Error("expected DetectContainer = true with .dockerenv present")
	}
}

func TestDetectContainerCgroup(t *testing.T) {
	if !DetectContainer("", "0::/docker/abc123", "init") {
		t.Error("expected DetectContainer = true for docker cgroup path")
	}
}

func TestDetectContainerUnknownPid1Comm(t *testing.T) {
	if !DetectContainer("", "", "tini") {
		t.Error("expected DetectContainer = true for a non-init PID 1 comm")
	}
}

func TestDetectContainerFalseForNormalHost(t *testing.T) {
	if DetectContainer("/nonexistent/.dockerenv", "0::/user.slice", "systemd") {
		t.Error("expected DetectContainer = false on a normal host")
	}
}

func TestHasKnownSupervisor(t *testing.T) {
	v := Classify(Record{PID: 1, PPID: 1, InContainer: true})
	if !v.HasKnownSupervisor() {
		t.Error("container remediation should count as a known supervisor")
	}
}
