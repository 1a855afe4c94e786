package collect

import "testing"

func TestResolveContainerDocker(t *testing.T) {
	cgroup := CgroupPaths{Unified: "/docker/abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789"}
	info := ResolveContainer(cgroup, "")
	if info == nil {
		t.Fatal("expected container info, got nil")
	}
	if info.Runtime != "docker" {
		t.Errorf("Runtime = %q, want docker", info.Runtime)
	}
	if len(info.ContainerIDShort) != 12 {
		t.Errorf("ContainerIDShort = %q, want 12 chars", info.ContainerIDShort)
	}
}

func TestResolveContainerKubepodsBurstable(t *testing.T) {
	cgroup := CgroupPaths{Unified: "/kubepods/burstable/pod1234/abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789"}
	info := ResolveContainer(cgroup, "POD_NAMESPACE=default\x00POD_UID=pod1234\x00")
	if info == nil {
		t.Fatal("expected container info, got nil")
	}
	if info.Kubernetes == nil {
		t.Fatal("expected Kubernetes info, got nil")
	}
	if info.Kubernetes.QoSClass != "Burstable" {
		t.Errorf("QoSClass = %q, want Burstable", info.Kubernetes.QoSClass)
	}
	if info.Kubernetes.Namespace != "default" {
		t.Errorf("Namespace = %q, want default", info.Kubernetes.Namespace)
	}
}

func TestResolveContainerNoneOnBareMetal(t *testing.T) {
	cgroup := CgroupPaths{Unified: "/user.slice/user-1000.slice"}
	if info := ResolveContainer(cgroup, ""); info != nil {
		t.Errorf("expected nil container info, got %+v", info)
	}
}

func TestResolveSystemdUnitFromCgroupFallback(t *testing.T) {
	cgroup := CgroupPaths{Unified: "/system.slice/sshd.service"}
	info := ResolveSystemdUnit(999999999, cgroup) // nonexistent pid so systemctl fails
	if info == nil {
		t.Fatal("expected a fallback SystemdInfo from the cgroup path")
	}
	if info.Unit != "sshd.service" {
		t.Errorf("Unit = %q, want sshd.service", info.Unit)
	}
	if info.Source != "cgroup_path" {
		t.Errorf("Source = %q, want cgroup_path", info.Source)
	}
}
