package collect

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// NetworkTable is an inode -> socket-summary map built once per scan from
// /proc/net/{tcp,tcp6,udp,udp6,unix} and shared read-only across every PID's
// fd walk, so the whole scan costs O(N_processes + N_sockets) rather than
// re-reading the kernel's socket tables per process.
type NetworkTable map[uint64]SocketSummary

// BuildNetworkTable reads every supported /proc/net/* table under procRoot
// (normally "/proc") and indexes it by inode. A table that can't be read
// (e.g. IPv6 disabled, no unix domain sockets) is skipped, not fatal.
func BuildNetworkTable(procRoot string) NetworkTable {
	table := NetworkTable{}
	for _, spec := range []struct {
		file     string
		protocol string
	}{
		{"tcp", "tcp"}, {"tcp6", "tcp6"}, {"udp", "udp"}, {"udp6", "udp6"},
	} {
		path := procRoot + "/net/" + spec.file
		_ = scanLines(path, func(line string) error {
			summary, err := parseInetLine(line, spec.protocol)
			if err != nil {
				return nil // malformed row, skip
			}
			table[summary.Inode] = summary
			return nil
		})
	}

	path := procRoot + "/net/unix"
	_ = scanLines(path, func(line string) error {
		summary, err := parseUnixLine(line)
		if err != nil {
			return nil
		}
		table[summary.Inode] = summary
		return nil
	})

	return table
}

// parseInetLine decodes one row of /proc/net/{tcp,tcp6,udp,udp6}. Addresses
// are little-endian hex; IPv6 addresses are stored as four 32-bit words,
// each of which must be byte-reversed individually before the 16 bytes are
// read in order.
func parseInetLine(line, protocol string) (SocketSummary, error) {
	fields := strings.Fields(line)
	if len(fields) < 10 {
		return SocketSummary{}, fmt.Errorf("too few fields")
	}
	localAddr, localPort, err := decodeHexAddrPort(fields[1], protocol)
	if err != nil {
		return SocketSummary{}, err
	}
	remoteAddr, remotePort, err := decodeHexAddrPort(fields[2], protocol)
	if err != nil {
		return SocketSummary{}, err
	}
	state := tcpStateName(fields[3])
	inode, err := strconv.ParseUint(fields[9], 10, 64)
	if err != nil {
		return SocketSummary{}, err
	}
	return SocketSummary{
		Inode: inode, Protocol: protocol,
		LocalAddr: localAddr, LocalPort: localPort,
		RemoteAddr: remoteAddr, RemotePort: remotePort,
		State: state,
	}, nil
}

func decodeHexAddrPort(field, protocol string) (addr string, port uint16, err error) {
	parts := strings.SplitN(field, ":", 2)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("malformed addr:port %q", field)
	}
	addrBytes, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", 0, err
	}
	portVal, err := strconv.ParseUint(parts[1], 16, 16)
	if err != nil {
		return "", 0, err
	}
	return decodeKernelAddr(addrBytes, strings.HasSuffix(protocol, "6")), uint16(portVal), nil
}

// decodeKernelAddr reverses each 32-bit little-endian word of a kernel
// address field into standard byte order before stringifying.
func decodeKernelAddr(raw []byte, isV6 bool) string {
	words := len(raw) / 4
	out := make([]byte, 0, len(raw))
	for w := 0; w < words; w++ {
		word := raw[w*4 : w*4+4]
		for i := len(word) - 1; i >= 0; i-- {
			out = append(out, word[i])
		}
	}
	if isV6 {
		return hex.EncodeToString(out)
	}
	if len(out) != 4 {
		return hex.EncodeToString(out)
	}
	return fmt.Sprintf("%d.%d.%d.%d", out[0], out[1], out[2], out[3])
}

func tcpStateName(hexState string) string {
	states := map[string]string{
		"01": "ESTABLISHED", "02": "SYN_SENT", "03": "SYN_RECV", "04": "FIN_WAIT1",
		"05": "FIN_WAIT2", "06": "TIME_WAIT", "07": "CLOSE", "08": "CLOSE_WAIT",
		"09": "LAST_ACK", "0A": "LISTEN", "0B": "CLOSING",
	}
	if name, ok := states[strings.ToUpper(hexState)]; ok {
		return name
	}
	return "UNKNOWN"
}

func parseUnixLine(line string) (SocketSummary, error) {
	fields := strings.Fields(line)
	if len(fields) < 7 {
		return SocketSummary{}, fmt.Errorf("too few fields")
	}
	inode, err := strconv.ParseUint(fields[6], 10, 64)
	if err != nil {
		return SocketSummary{}, err
	}
	path := ""
	if len(fields) > 7 {
		path = fields[7]
	}
	return SocketSummary{Inode: inode, Protocol: "unix", LocalAddr: path}, nil
}
