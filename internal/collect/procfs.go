package collect

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// parseStat parses the contents of /proc/<pid>/stat. Field 2 (comm) is
// wrapped in parentheses and may itself contain spaces or parens, so the
// command name is recovered by locating the *last* ')' in the line rather
// than splitting naively on whitespace.
func parseStat(contents string) (comm string, ppid uint32, state ProcessState, starttime uint64, utime, stime uint64, err error) {
	open := strings.IndexByte(contents, '(')
	close := strings.LastIndexByte(contents, ')')
	if open < 0 || close < 0 || close < open {
		return "", 0, 0, 0, 0, 0, fmt.Errorf("malformed stat line: no comm delimiters")
	}
	comm = contents[open+1 : close]

	rest := strings.Fields(contents[close+1:])
	// rest[0] = state, rest[1] = ppid, ... utime is field 14 (index 11 of
	// rest, since rest[0] is field 3), stime is field 15, starttime is
	// field 22 in the full /proc/<pid>/stat numbering.
	if len(rest) < 20 {
		return "", 0, 0, 0, 0, 0, fmt.Errorf("malformed stat line: too few fields (%d)", len(rest))
	}
	state = ProcessState(rest[0][0])

	ppidVal, perr := strconv.ParseUint(rest[1], 10, 32)
	if perr != nil {
		return "", 0, 0, 0, 0, 0, fmt.Errorf("parse ppid: %w", perr)
	}
	ppid = uint32(ppidVal)

	utime, err = strconv.ParseUint(rest[11], 10, 64)
	if err != nil {
		return "", 0, 0, 0, 0, 0, fmt.Errorf("parse utime: %w", err)
	}
	stime, err = strconv.ParseUint(rest[12], 10, 64)
	if err != nil {
		return "", 0, 0, 0, 0, 0, fmt.Errorf("parse stime: %w", err)
	}
	starttime, err = strconv.ParseUint(rest[19], 10, 64)
	if err != nil {
		return "", 0, 0, 0, 0, 0, fmt.Errorf("parse starttime: %w", err)
	}
	return comm, ppid, state, starttime, utime, stime, nil
}

// StatusFields is the subset of /proc/<pid>/status this package consumes.
type StatusFields struct {
	UID        uint32
	RSSBytes   uint64
	SigBlk     uint64
	SigIgn     uint64
	SigCgt     uint64
	SigPnd     uint64
}

func parseStatus(contents string) (StatusFields, error) {
	var fields StatusFields
	for _, line := range strings.Split(contents, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "Uid":
			parts := strings.Fields(value)
			if len(parts) > 0 {
				if v, err := strconv.ParseUint(parts[0], 10, 32); err == nil {
					fields.UID = uint32(v)
				}
			}
		case "VmRSS":
			parts := strings.Fields(value)
			if len(parts) > 0 {
				if v, err := strconv.ParseUint(parts[0], 10, 64); err == nil {
					fields.RSSBytes = v * 1024
				}
			}
		case "SigBlk":
			if v, err := strconv.ParseUint(value, 16, 64); err == nil {
				fields.SigBlk = v
			}
		case "SigIgn":
			if v, err := strconv.ParseUint(value, 16, 64); err == nil {
				fields.SigIgn = v
			}
		case "SigCgt":
			if v, err := strconv.ParseUint(value, 16, 64); err == nil {
				fields.SigCgt = v
			}
		case "SigPnd":
			if v, err := strconv.ParseUint(value, 16, 64); err == nil {
				fields.SigPnd = v
			}
		}
	}
	return fields, nil
}

// parseCgroup splits a /proc/<pid>/cgroup file into its v2 unified entry
// (hierarchy ID 0) and any v1 per-controller entries.
func parseCgroup(contents string) CgroupPaths {
	paths := CgroupPaths{Controllers: map[string]string{}}
	for _, line := range strings.Split(contents, "\n") {
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
			paths.Unified = path
			continue
		}
		for _, controller := range strings.Split(controllers, ",") {
			paths.Controllers[controller] = path
		}
	}
	return paths
}

func readFileString(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// scanLines is a small helper over bufio.Scanner for files this package
// reads line-by-line (used by the /proc/net/* table parser).
func scanLines(path string, fn func(line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	first := true
	for scanner.Scan() {
		if first {
			first = false
			continue // header row
		}
		if err := fn(scanner.Text()); err != nil {
			return err
		}
	}
	return scanner.Err()
}
