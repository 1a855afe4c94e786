package action

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FreezeReversal records the cgroup path that was frozen so Unfreeze can
// thaw the same one.
type FreezeReversal struct {
	CgroupPath string
}

func (FreezeReversal) isReversalMetadata() {}

// FreezeRunner freezes (and thaws) a process via the cgroup v2 freezer
// controller (cgroup.freeze), falling back to the v1 freezer controller's
// freezer.state when v2 isn't mounted.
type FreezeRunner struct{}

func NewFreezeRunner() *FreezeRunner { return &FreezeRunner{} }

func (r *FreezeRunner) Execute(pid uint32) (ReversalMetadata, *Error) {
	cgroupPath, v1FreezerPath, err := discoverFreezerPaths(pid)
	if err != nil {
		return nil, err
	}
	if cgroupPath != "" {
		if werr := writeFreezerState(filepath.Join(cgroupRootV2, cgroupPath, "cgroup.freeze"), "1"); werr == nil {
			return FreezeReversal{CgroupPath: cgroupPath}, nil
		} else if v1FreezerPath == "" {
			return nil, werr
		}
	}
	if v1FreezerPath != "" {
		if werr := writeFreezerState(filepath.Join("/sys/fs/cgroup/freezer", v1FreezerPath, "freezer.state"), "FROZEN"); werr != nil {
			return nil, werr
		}
		return FreezeReversal{CgroupPath: v1FreezerPath}, nil
	}
	return nil, failedf("no freezer controller found for pid %d", pid)
}

func (r *FreezeRunner) Verify(pid uint32) *Error {
	cgroupPath, v1FreezerPath, err := discoverFreezerPaths(pid)
	if err != nil {
		return err
	}
	if cgroupPath != "" {
		if state, rerr := os.ReadFile(filepath.Join(cgroupRootV2, cgroupPath, "cgroup.freeze")); rerr == nil {
			if strings.TrimSpace(string(state)) != "1" {
				return failedf("pid %d not frozen: cgroup.freeze=%q", pid, strings.TrimSpace(string(state)))
			}
			return nil
		}
	}
	if v1FreezerPath != "" {
		if state, rerr := os.ReadFile(filepath.Join("/sys/fs/cgroup/freezer", v1FreezerPath, "freezer.state")); rerr == nil {
			if strings.TrimSpace(string(state)) != "FROZEN" {
				return failedf("pid %d not frozen: freezer.state=%q", pid, strings.TrimSpace(string(state)))
			}
			return nil
		}
	}
	return failedf("could not verify freeze for pid %d", pid)
}

func (r *FreezeRunner) Reverse(metadata ReversalMetadata) *Error {
	reversal, ok := metadata.(FreezeReversal)
	if !ok {
		return failedf("reversal metadata is not a FreezeReversal")
	}
	if _, err := os.Stat(filepath.Join(cgroupRootV2, reversal.CgroupPath, "cgroup.freeze")); err == nil {
		return writeFreezerState(filepath.Join(cgroupRootV2, reversal.CgroupPath, "cgroup.freeze"), "0")
	}
	return writeFreezerState(filepath.Join("/sys/fs/cgroup/freezer", reversal.CgroupPath, "freezer.state"), "THAWED")
}

func writeFreezerState(path, value string) *Error {
	if _, err := os.Stat(path); err != nil {
		return failedf("freezer control not found at %s", path)
	}
	if err := os.WriteFile(path, []byte(value), 0o644); err != nil {
		if os.IsPermission(err) {
			return permissionDenied(fmt.Sprintf("permission denied writing %s", path))
		}
		return failedf("failed to write %s: %v", path, err)
	}
	return nil
}

func discoverFreezerPaths(pid uint32) (v2Path, v1FreezerPath string, aErr *Error) {
	contents, err := os.ReadFile(fmt.Sprintf("/proc/%d/cgroup", pid))
	if err != nil {
		return "", "", failedf("failed to read cgroup for pid %d: %v", pid, err)
	}
	for _, line := range strings.Split(string(contents), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 3)
		if len(parts) != 3 {
			continue
		}
		hierarchyID, controllers, path := parts[0], parts[1], parts[2]
		if hierarchyID == "0" || controllers == "" {
			v2Path = path
			continue
		}
		for _, controller := range strings.Split(controllers, ",") {
			if controller == "freezer" {
				v1FreezerPath = path
			}
		}
	}
	return v2Path, v1FreezerPath, nil
}
