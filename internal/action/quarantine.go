package action

import (
	"fmt"
	"os/exec"
	"strconv"
)

// quarantineChain is the iptables chain this runner manages; it is
// created once (by the orchestrator's startup, not here) with a default
// DROP target, and this runner only adds/removes per-UID jump rules.
const quarantineChain = "PTTRIAGE_QUARANTINE"

// QuarantineReversal records the UID whose traffic was quarantined, since
// the iptables rule keys off owner UID rather than PID (a PID can exit
// and be reused before the rule is removed, but a UID is operator-stable
// for the lifetime of the quarantine).
type QuarantineReversal struct {
	UID uint32
}

func (QuarantineReversal) isReversalMetadata() {}

// QuarantineRunner isolates a process's network access by inserting an
// iptables OUTPUT rule that matches its owning UID and jumps to the
// quarantine chain (DROP). It shells out to iptables rather than writing
// netlink directly, matching the operational posture of firewall changes
// elsewhere in the stack (auditable, same tool the operator would use by
// hand to undo it in an emergency).
type QuarantineRunner struct{}

func NewQuarantineRunner() *QuarantineRunner { return &QuarantineRunner{} }

func (r *QuarantineRunner) Execute(pid uint32) (ReversalMetadata, *Error) {
	uid, err := ownerUID(pid)
	if err != nil {
		return nil, err
	}
	if cerr := runIptables("-I", "OUTPUT", "-m", "owner", "--uid-owner", strconv.FormatUint(uint64(uid), 10), "-j", quarantineChain); cerr != nil {
		return nil, cerr
	}
	return QuarantineReversal{UID: uid}, nil
}

func (r *QuarantineRunner) Verify(pid uint32) *Error {
	uid, err := ownerUID(pid)
	if err != nil {
		return err
	}
	out, cerr := exec.Command("iptables", "-C", "OUTPUT", "-m", "owner", "--uid-owner", strconv.FormatUint(uint64(uid), 10), "-j", quarantineChain).CombinedOutput()
	if cerr != nil {
		return failedf("quarantine rule not present for uid %d: %s", uid, string(out))
	}
	return nil
}

func (r *QuarantineRunner) Reverse(metadata ReversalMetadata) *Error {
	reversal, ok := metadata.(QuarantineReversal)
	if !ok {
		return failedf("reversal metadata is not a QuarantineReversal")
	}
	return runIptables("-D", "OUTPUT", "-m", "owner", "--uid-owner", strconv.FormatUint(uint64(reversal.UID), 10), "-j", quarantineChain)
}

func runIptables(args ...string) *Error {
	out, err := exec.Command("iptables", args...).CombinedOutput()
	if err != nil {
		return failedf("iptables %v failed: %v (%s)", args, err, string(out))
	}
	return nil
}

func ownerUID(pid uint32) (uint32, *Error) {
	fields, err := readProcStatusUID(pid)
	if err != nil {
		return 0, failedf("failed to read owner uid for pid %d: %v", pid, err)
	}
	return fields, nil
}
