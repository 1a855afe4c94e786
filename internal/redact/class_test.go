package redact

import "testing"

func TestGuessCmdFields(t *testing.T) {
	for _, name := range []string{"cmd", "command", "exe"} {
		if got := GuessFieldClass(name); got != Cmd {
			t.Errorf("%s: expected Cmd, got %v", name, got)
		}
	}
}

func TestGuessCmdlineFields(t *testing.T) {
	for _, name := range []string{"args", "cmdline"} {
		if got := GuessFieldClass(name); got != Cmdline {
			t.Errorf("%s: expected Cmdline, got %v", name, got)
		}
	}
}

func TestGuessPathFields(t *testing.T) {
	for _, name := range []string{"path", "file", "cwd", "dir"} {
		if got := GuessFieldClass(name); got != PathProject {
			t.Errorf("%s: expected PathProject, got %v", name, got)
		}
	}
}

func TestGuessHomeAndTmp(t *testing.T) {
	if got := GuessFieldClass("home"); got != PathHome {
		t.Errorf("expected PathHome, got %v", got)
	}
	for _, name := range []string{"tmp", "temp"} {
		if got := GuessFieldClass(name); got != PathTmp {
			t.Errorf("%s: expected PathTmp, got %v", name, got)
		}
	}
}

func TestGuessEnvAndIdentity(t *testing.T) {
	for _, name := range []string{"env", "environ"} {
		if got := GuessFieldClass(name); got != EnvValue {
			t.Errorf("%s: expected EnvValue, got %v", name, got)
		}
	}
	for _, name := range []string{"user", "username"} {
		if got := GuessFieldClass(name); got != Username {
			t.Errorf("%s: expected Username, got %v", name, got)
		}
	}
	for _, name := range []string{"host", "hostname"} {
		if got := GuessFieldClass(name); got != Hostname {
			t.Errorf("%s: expected Hostname, got %v", name, got)
		}
	}
}

func TestGuessNetworkFields(t *testing.T) {
	for _, name := range []string{"ip", "addr", "address"} {
		if got := GuessFieldClass(name); got != IPAddress {
			t.Errorf("%s: expected IPAddress, got %v", name, got)
		}
	}
	for _, name := range []string{"url", "uri"} {
		if got := GuessFieldClass(name); got != URL {
			t.Errorf("%s: expected URL, got %v", name, got)
		}
	}
	if got := GuessFieldClass("port"); got != Port {
		t.Errorf("expected Port, got %v", got)
	}
}

func TestGuessProcessAndContainerFields(t *testing.T) {
	for _, name := range []string{"pid", "ppid"} {
		if got := GuessFieldClass(name); got != Pid {
			t.Errorf("%s: expected Pid, got %v", name, got)
		}
	}
	for _, name := range []string{"uid", "gid"} {
		if got := GuessFieldClass(name); got != Uid {
			t.Errorf("%s: expected Uid, got %v", name, got)
		}
	}
	for _, name := range []string{"container", "container_id"} {
		if got := GuessFieldClass(name); got != ContainerID {
			t.Errorf("%s: expected ContainerID, got %v", name, got)
		}
	}
	for _, name := range []string{"unit", "service"} {
		if got := GuessFieldClass(name); got != SystemdUnit {
			t.Errorf("%s: expected SystemdUnit, got %v", name, got)
		}
	}
}

func TestGuessUnknownIsFreeText(t *testing.T) {
	for _, name := range []string{"something_random", "", "score"} {
		if got := GuessFieldClass(name); got != FreeText {
			t.Errorf("%s: expected FreeText, got %v", name, got)
		}
	}
}
