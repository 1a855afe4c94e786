// Package redact classifies log/output fields by sensitivity and masks
// their values before they reach a sink: home and temp paths, usernames,
// URL credentials and environment values are masked, and command lines and
// free text have secret-looking patterns masked. Other values, such as
// project paths and ordinary command arguments, pass through unchanged.
package redact

// FieldClass buckets a field by what kind of value it carries, so the
// redactor can apply a class-appropriate masking rule instead of a single
// blanket policy.
type FieldClass int

const (
	FreeText FieldClass = iota
	Cmd
	Cmdline
	PathProject
	PathHome
	PathTmp
	EnvValue
	Username
	Hostname
	IPAddress
	URL
	Pid
	Uid
	Port
	ContainerID
	SystemdUnit
)

func (c FieldClass) String() string {
	switch c {
	case Cmd:
		return "cmd"
	case Cmdline:
		return "cmdline"
	case PathProject:
		return "path_project"
	case PathHome:
		return "path_home"
	case PathTmp:
		return "path_tmp"
	case EnvValue:
		return "env_value"
	case Username:
		return "username"
	case Hostname:
		return "hostname"
	case IPAddress:
		return "ip_address"
	case URL:
		return "url"
	case Pid:
		return "pid"
	case Uid:
		return "uid"
	case Port:
		return "port"
	case ContainerID:
		return "container_id"
	case SystemdUnit:
		return "systemd_unit"
	default:
		return "free_text"
	}
}

// GuessFieldClass maps a structured-log field name to its class, the same
// way a scan result's keys are classified before logging.
func GuessFieldClass(name string) FieldClass {
	switch name {
	case "cmd", "command", "exe":
		return Cmd
	case "args", "cmdline":
		return Cmdline
	case "path", "file", "cwd", "dir":
		return PathProject
	case "home":
		return PathHome
	case "tmp", "temp":
		return PathTmp
	case "env", "environ":
		return EnvValue
	case "user", "username":
		return Username
	case "host", "hostname":
		return Hostname
	case "ip", "addr", "address":
		return IPAddress
	case "url", "uri":
		return URL
	case "pid", "ppid":
		return Pid
	case "uid", "gid":
		return Uid
	case "port":
		return Port
	case "container", "container_id":
		return ContainerID
	case "unit", "service":
		return SystemdUnit
	default:
		return FreeText
	}
}
