package action

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultThrottleFraction is 25% of current allocation or one core.
const DefaultThrottleFraction = 0.25

// DefaultPeriodUS is 100ms, the standard CFS scheduler quantum.
const DefaultPeriodUS = 100_000

// MinQuotaUS prevents starving the target process entirely.
const MinQuotaUS = 1_000

const cgroupRootV2 = "/sys/fs/cgroup"
const cgroupRootV1CPU = "/sys/fs/cgroup/cpu"

// ThrottleConfig tunes a CPUThrottleRunner.
type ThrottleConfig struct {
	TargetFraction float64
	PeriodUS       uint64
	FallbackToV1   bool
}

// DefaultThrottleConfig returns the same defaults the teacher's cgroup
// throttle action uses.
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{TargetFraction: DefaultThrottleFraction, PeriodUS: DefaultPeriodUS, FallbackToV1: true}
}

// QuotaUS computes the microsecond quota for this config's period and
// fraction, floored at MinQuotaUS.
func (c ThrottleConfig) QuotaUS() int64 {
	quota := int64(c.TargetFraction * float64(c.PeriodUS))
	if quota < MinQuotaUS {
		return MinQuotaUS
	}
	return quota
}

// CgroupLimitSource identifies which cgroup hierarchy a CPU limit came from.
type CgroupLimitSource int

const (
	LimitSourceNone CgroupLimitSource = iota
	LimitSourceV2CpuMax
	LimitSourceV1Cfs
)

// ThrottleReversal captures the previous CPU limit so it can be restored.
type ThrottleReversal struct {
	PID             uint32
	CgroupPath      string
	PreviousQuotaUS *int64
	PreviousPeriod  *uint64
	Source          CgroupLimitSource
	AppliedAt       time.Time
}

func (ThrottleReversal) isReversalMetadata() {}

// CPUThrottleRunner applies a CPU throttle via cgroup v2 cpu.max, falling
// back to cgroup v1 cpu.cfs_quota_us/cpu.cfs_period_us when v2 isn't
// available for the target's cgroup.
type CPUThrottleRunner struct {
	config ThrottleConfig
}

// NewCPUThrottleRunner builds a runner with the given config.
func NewCPUThrottleRunner(config ThrottleConfig) *CPUThrottleRunner {
	return &CPUThrottleRunner{config: config}
}

func (r *CPUThrottleRunner) Execute(pid uint32) (ReversalMetadata, *Error) {
	cgroupPath, v1CPUPath, err := discoverCgroupPaths(pid)
	if err != nil {
		return nil, err
	}

	reversal := r.captureReversal(pid, cgroupPath, v1CPUPath)
	reversal.AppliedAt = time.Now()

	if cgroupPath != "" {
		if err := r.applyV2(cgroupPath); err == nil {
			return reversal, nil
		} else if !r.config.FallbackToV1 {
			return nil, err
		}
	}

	if r.config.FallbackToV1 && v1CPUPath != "" {
		if err := r.applyV1(v1CPUPath); err != nil {
			return nil, err
		}
		return reversal, nil
	}

	return nil, failedf("no writable cgroup CPU controller found for pid %d", pid)
}

func (r *CPUThrottleRunner) applyV2(unifiedPath string) *Error {
	cpuMaxPath := filepath.Join(cgroupRootV2, unifiedPath, "cpu.max")
	if _, err := os.Stat(cpuMaxPath); err != nil {
		return failedf("cpu.max not found at %s", cpuMaxPath)
	}
	value := fmt.Sprintf("%d %d", r.config.QuotaUS(), r.config.PeriodUS)
	if err := os.WriteFile(cpuMaxPath, []byte(value), 0o644); err != nil {
		if os.IsPermission(err) {
			return permissionDenied(fmt.Sprintf("permission denied writing %s", cpuMaxPath))
		}
		return failedf("failed to write cpu.max: %v", err)
	}
	return nil
}

func (r *CPUThrottleRunner) applyV1(cpuPath string) *Error {
	periodPath := filepath.Join(cgroupRootV1CPU, cpuPath, "cpu.cfs_period_us")
	quotaPath := filepath.Join(cgroupRootV1CPU, cpuPath, "cpu.cfs_quota_us")
	if _, err := os.Stat(quotaPath); err != nil {
		return failedf("cpu.cfs_quota_us not found at %s", quotaPath)
	}
	if err := os.WriteFile(periodPath, []byte(strconv.FormatUint(r.config.PeriodUS, 10)), 0o644); err != nil {
		if os.IsPermission(err) {
			return permissionDenied(fmt.Sprintf("permission denied writing %s", periodPath))
		}
		return failedf("failed to write cpu.cfs_period_us: %v", err)
	}
	if err := os.WriteFile(quotaPath, []byte(strconv.FormatInt(r.config.QuotaUS(), 10)), 0o644); err != nil {
		if os.IsPermission(err) {
			return permissionDenied(fmt.Sprintf("permission denied writing %s", quotaPath))
		}
		return failedf("failed to write cpu.cfs_quota_us: %v", err)
	}
	return nil
}

func (r *CPUThrottleRunner) Verify(pid uint32) *Error {
	cgroupPath, v1CPUPath, err := discoverCgroupPaths(pid)
	if err != nil {
		return err
	}
	expectedQuota := r.config.QuotaUS()
	expectedPeriod := r.config.PeriodUS

	if cgroupPath != "" {
		quota, period, err := readCgroupV2CpuMax(cgroupPath)
		if err == nil {
			if quota != expectedQuota {
				return failedf("quota mismatch: expected %d, got %d", expectedQuota, quota)
			}
			if period != expectedPeriod {
				return failedf("period mismatch: expected %d, got %d", expectedPeriod, period)
			}
			return nil
		}
	}

	if v1CPUPath != "" {
		quota, period, err := readCgroupV1Cfs(v1CPUPath)
		if err == nil {
			if quota != expectedQuota {
				return failedf("v1 quota mismatch: expected %d, got %d", expectedQuota, quota)
			}
			if period != expectedPeriod {
				return failedf("v1 period mismatch: expected %d, got %d", expectedPeriod, period)
			}
			return nil
		}
	}

	return failedf("could not verify throttle for pid %d: no CPU limits found", pid)
}

func (r *CPUThrottleRunner) Reverse(metadata ReversalMetadata) *Error {
	reversal, ok := metadata.(ThrottleReversal)
	if !ok {
		return failedf("reversal metadata is not a ThrottleReversal")
	}
	switch reversal.Source {
	case LimitSourceV2CpuMax:
		cpuMaxPath := filepath.Join(cgroupRootV2, reversal.CgroupPath, "cpu.max")
		value := "max 100000"
		if reversal.PreviousQuotaUS != nil && *reversal.PreviousQuotaUS > 0 && reversal.PreviousPeriod != nil {
			value = fmt.Sprintf("%d %d", *reversal.PreviousQuotaUS, *reversal.PreviousPeriod)
		} else if reversal.PreviousPeriod != nil {
			value = fmt.Sprintf("max %d", *reversal.PreviousPeriod)
		}
		if err := os.WriteFile(cpuMaxPath, []byte(value), 0o644); err != nil {
			return failedf("failed to restore cpu.max: %v", err)
		}
		return nil
	case LimitSourceV1Cfs:
		quotaPath := filepath.Join(cgroupRootV1CPU, reversal.CgroupPath, "cpu.cfs_quota_us")
		quota := int64(-1)
		if reversal.PreviousQuotaUS != nil {
			quota = *reversal.PreviousQuotaUS
		}
		if err := os.WriteFile(quotaPath, []byte(strconv.FormatInt(quota, 10)), 0o644); err != nil {
			return failedf("failed to restore cpu.cfs_quota_us: %v", err)
		}
		return nil
	default:
		return nil // no limits existed before; nothing to restore
	}
}

func (r *CPUThrottleRunner) captureReversal(pid uint32, cgroupPath, v1CPUPath string) ThrottleReversal {
	if cgroupPath != "" {
		if quota, period, err := readCgroupV2CpuMax(cgroupPath); err == nil {
			q, p := quota, period
			return ThrottleReversal{PID: pid, CgroupPath: cgroupPath, PreviousQuotaUS: &q, PreviousPeriod: &p, Source: LimitSourceV2CpuMax}
		}
		return ThrottleReversal{PID: pid, CgroupPath: cgroupPath, Source: LimitSourceV2CpuMax}
	}
	if v1CPUPath != "" {
		if quota, period, err := readCgroupV1Cfs(v1CPUPath); err == nil {
			q, p := quota, period
			return ThrottleReversal{PID: pid, CgroupPath: v1CPUPath, PreviousQuotaUS: &q, PreviousPeriod: &p, Source: LimitSourceV1Cfs}
		}
		return ThrottleReversal{PID: pid, CgroupPath: v1CPUPath, Source: LimitSourceV1Cfs}
	}
	return ThrottleReversal{PID: pid, Source: LimitSourceNone}
}

// discoverCgroupPaths reads /proc/<pid>/cgroup and returns the v2 unified
// path (if any) and the v1 "cpu" controller path (if any).
func discoverCgroupPaths(pid uint32) (v2Path, v1CPUPath string, aErr *Error) {
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
			if controller == "cpu" || controller == "cpuacct" {
				v1CPUPath = path
			}
		}
	}
	return v2Path, v1CPUPath, nil
}

func readCgroupV2CpuMax(unifiedPath string) (int64, uint64, error) {
	contents, err := os.ReadFile(filepath.Join(cgroupRootV2, unifiedPath, "cpu.max"))
	if err != nil {
		return 0, 0, err
	}
	fields := strings.Fields(string(contents))
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("malformed cpu.max contents")
	}
	var quota int64
	if fields[0] == "max" {
		quota = -1
	} else {
		quota, err = strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return 0, 0, err
		}
	}
	period, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return quota, period, nil
}

func readCgroupV1Cfs(cpuPath string) (int64, uint64, error) {
	quotaRaw, err := os.ReadFile(filepath.Join(cgroupRootV1CPU, cpuPath, "cpu.cfs_quota_us"))
	if err != nil {
		return 0, 0, err
	}
	periodRaw, err := os.ReadFile(filepath.Join(cgroupRootV1CPU, cpuPath, "cpu.cfs_period_us"))
	if err != nil {
		return 0, 0, err
	}
	quota, err := strconv.ParseInt(strings.TrimSpace(string(quotaRaw)), 10, 64)
	if err != nil {
		return 0, 0, err
	}
	period, err := strconv.ParseUint(strings.TrimSpace(string(periodRaw)), 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return quota, period, nil
}
