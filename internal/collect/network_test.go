package collect

import "testing"

func TestParseInetLineIPv4(t *testing.T) {
	// 0100007F = 127.0.0.1 little-endian, port 1F90 = 8080
	line := "   0: 0100007F:1F90 00000000:0000 0A 00000000:00000000 00:00000000 00000000  1000        0 12345 1 0000000000000000 100 0 0 10 0"
	summary, err := parseInetLine(line, "tcp")
	if err != nil {
		t.Fatalf("parseInetLine: %v", err)
	}
	if summary.LocalAddr != "127.0.0.1" {
		t.Errorf("LocalAddr = %q, want 127.0.0.1", summary.LocalAddr)
	}
	if summary.LocalPort != 8080 {
		t.Errorf("LocalPort = %d, want 8080", summary.LocalPort)
	}
	if summary.State != "LISTEN" {
		t.Errorf("State = %q, want LISTEN", summary.State)
	}
	if summary.Inode != 12345 {
		t.Errorf("Inode = %d, want 12345", summary.Inode)
	}
}

func TestParseUnixLine(t *testing.T) {
	line := "0000000000000000: 00000002 00000000 00000000 0001 03 54321 /var/run/docker.sock"
	summary, err := parseUnixLine(line)
	if err != nil {
		t.Fatalf("parseUnixLine: %v", err)
	}
	if summary.Inode != 54321 {
		t.Errorf("Inode = %d, want 54321", summary.Inode)
	}
	if summary.LocalAddr != "/var/run/docker.sock" {
		t.Errorf("LocalAddr = %q", summary.LocalAddr)
	}
}

func TestTCPStateNameUnknown(t *testing.T) {
	if tcpStateName("FF") != "UNKNOWN" {
		t.Error("expected UNKNOWN for an unrecognized state code")
	}
}
