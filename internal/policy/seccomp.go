package policy

import "encoding/json"

// seccompSyscallRule mirrors one entry of an OCI runtime-spec seccomp
// profile's "syscalls" array.
type seccompSyscallRule struct {
	Names    []string          `json:"names"`
	Action   string            `json:"action"`
	Args     []seccompArg      `json:"args,omitempty"`
	Comment  string            `json:"comment,omitempty"`
	Includes map[string]string `json:"includes"`
	Excludes map[string]string `json:"excludes"`
	ErrnoRet int               `json:"errnoRet,omitempty"`
}

type seccompArg struct {
	Index    int    `json:"index"`
	Value    uint64 `json:"value"`
	ValueTwo uint64 `json:"valueTwo,omitempty"`
	Op       string `json:"op"`
}

type seccompProfile struct {
	DefaultAction string               `json:"defaultAction"`
	Architectures []string             `json:"architectures"`
	Syscalls      []seccompSyscallRule `json:"syscalls"`
}

// cloneNamespaceMask is CLONE_NEWNS|NEWUTS|NEWIPC|NEWUSER|NEWPID|NEWNET|NEWCGROUP.
const cloneNamespaceMask = 2114060288

// suidSgidMask is 04000 (S_ISUID), the set-user-ID bit of a chmod mode
// argument; the set-group-ID bit (02000) is outside the mask.
const suidSgidMask = 2048

// denyListSyscalls is the canonical escape/escalation-primitive deny
// list (spec §4.C), a superset of the original source's bundled list.
var denyListSyscalls = []string{
	"acct", "add_key", "bpf", "clock_adjtime", "clock_settime",
	"create_module", "delete_module", "finit_module", "get_kernel_syms",
	"get_mempolicy", "init_module", "io_cancel", "io_destroy",
	"io_getevents", "io_setup", "io_submit", "ioperm", "iopl",
	"kexec_file_load", "kexec_load", "keyctl", "lookup_dcookie", "mbind",
	"mount", "move_pages", "name_to_handle_at", "nfsservctl",
	"open_by_handle_at", "perf_event_open", "personality", "pivot_root",
	"process_vm_readv", "process_vm_writev", "ptrace", "query_module",
	"quotactl", "reboot", "request_key", "set_mempolicy", "setns",
	"settimeofday", "stime", "swapoff", "swapon", "sysfs", "syslog",
	"umount", "umount2", "unshare", "uselib", "userfaultfd", "ustat",
	"vm86", "vm86old",
}

// defaultSeccompProfileJSON renders the default syscall filter profile
// as OCI runtime-spec JSON: allow by default, deny-with-errno the fixed
// list, and the clone/chmod rules spec.md §4.C adds on top of the
// original bundled profile. Because the profile's default action is
// itself ALLOW, thread creation is permitted and namespace creation
// denied by a matched pair of clone rules rather than a single
// condition: the first allows clone when no namespace-creation flag is
// set, the second unconditionally denies every clone call that rule
// didn't match.
func defaultSeccompProfileJSON() ([]byte, error) {
	profile := seccompProfile{
		DefaultAction: "SCMP_ACT_ALLOW",
		Architectures: []string{"SCMP_ARCH_X86_64", "SCMP_ARCH_X86", "SCMP_ARCH_X32"},
		Syscalls: []seccompSyscallRule{
			{
				Names:    denyListSyscalls,
				Action:   "SCMP_ACT_ERRNO",
				Comment:  "escape and escalation primitives",
				Includes: map[string]string{},
				Excludes: map[string]string{},
				ErrnoRet: 1,
			},
			{
				Names:  []string{"clone"},
				Action: "SCMP_ACT_ALLOW",
				Args: []seccompArg{
					{Index: 0, Value: cloneNamespaceMask, Op: "SCMP_CMP_MASKED_EQ", ValueTwo: 0},
				},
				Comment:  "allow thread creation",
				Includes: map[string]string{},
				Excludes: map[string]string{},
			},
			{
				Names:    []string{"clone"},
				Action:   "SCMP_ACT_ERRNO",
				Comment:  "deny namespace creation; catches every clone call the thread-creation allow rule above didn't match",
				Includes: map[string]string{},
				Excludes: map[string]string{},
				ErrnoRet: 1,
			},
			{
				Names:  []string{"chmod", "fchmod", "fchmodat"},
				Action: "SCMP_ACT_ERRNO",
				Args: []seccompArg{
					{Index: 1, Value: suidSgidMask, Op: "SCMP_CMP_MASKED_EQ", ValueTwo: suidSgidMask},
				},
				Comment:  "deny setting the SUID bit",
				Includes: map[string]string{},
				Excludes: map[string]string{},
				ErrnoRet: 1,
			},
		},
	}

	return json.MarshalIndent(profile, "", "  ")
}
