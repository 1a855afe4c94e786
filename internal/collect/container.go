package collect

import (
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

var containerIDPattern = regexp.MustCompile(`(?:docker|containerd|podman|lxc|kubepods)[-/]([0-9a-f]{12,64})`)

// ResolveContainer inspects a process's cgroup paths for a known container
// runtime pattern and, when found, extracts a 12-64 hex container ID.
// Kubernetes metadata is layered on top from pod-local environment hints
// when the cgroup path also matches a kubepods slice.
func ResolveContainer(cgroup CgroupPaths, environ string) *ContainerInfo {
	candidates := []string{cgroup.Unified}
	for _, p := range cgroup.Controllers {
		candidates = append(candidates, p)
	}

	for _, path := range candidates {
		runtime := runtimeFromPath(path)
		if runtime == "" {
			continue
		}
		match := containerIDPattern.FindStringSubmatch(path)
		id := ""
		if len(match) == 2 {
			id = match[1]
		}
		info := &ContainerInfo{Runtime: runtime, ContainerID: id, ContainerIDShort: shortID(id)}
		if runtime == "kubepods" || strings.Contains(environ, "KUBERNETES_SERVICE_HOST") {
			info.Kubernetes = resolveKubernetesInfo(path, environ)
		}
		return info
	}
	return nil
}

func runtimeFromPath(path string) string {
	switch {
	case strings.Contains(path, "kubepods"):
		return "kubepods"
	case strings.Contains(path, "docker"):
		return "docker"
	case strings.Contains(path, "containerd"):
		return "containerd"
	case strings.Contains(path, "podman"):
		return "podman"
	case strings.Contains(path, "lxc"):
		return "lxc"
	default:
		return ""
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

var qosPattern = regexp.MustCompile(`kubepods[-/](burstable|besteffort)[-/]`)

func resolveKubernetesInfo(cgroupPath, environ string) *KubernetesInfo {
	info := &KubernetesInfo{QoSClass: "Guaranteed"}
	if m := qosPattern.FindStringSubmatch(strings.ToLower(cgroupPath)); len(m) == 2 {
		switch m[1] {
		case "burstable":
			info.QoSClass = "Burstable"
		case "besteffort":
			info.QoSClass = "BestEffort"
		}
	}
	for _, line := range strings.Split(environ, "\x00") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "POD_NAMESPACE":
			info.Namespace = value
		case "POD_UID":
			info.PodUID = value
		}
	}
	return info
}

// ResolveSystemdUnit tries `systemctl show --property=Id --pid=<pid>`
// first, falling back to inferring the unit from the cgroup path's
// trailing .service/.scope segment when systemctl isn't reachable (a
// minimal container image, typically).
func ResolveSystemdUnit(pid uint32, cgroup CgroupPaths) *SystemdInfo {
	out, err := exec.Command("systemctl", "show", "--property=Id", "--pid", strconv.FormatUint(uint64(pid), 10)).Output()
	if err == nil {
		line := strings.TrimSpace(string(out))
		unit := strings.TrimPrefix(line, "Id=")
		if unit != "" && unit != "Id=" {
			return &SystemdInfo{Unit: unit, Source: "systemctl"}
		}
	}

	base := cgroup.Unified
	if idx := strings.LastIndex(base, "/"); idx >= 0 {
		base = base[idx+1:]
	}
	if strings.HasSuffix(base, ".service") || strings.HasSuffix(base, ".scope") {
		return &SystemdInfo{Unit: base, Source: "cgroup_path"}
	}
	return nil
}

func readEnviron(procRoot string, pid uint32) string {
	b, err := os.ReadFile(procRoot + "/" + strconv.FormatUint(uint64(pid), 10) + "/environ")
	if err != nil {
		return ""
	}
	return string(b)
}
