package handler

import (
	"fmt"
	"os"

	"github.com/opencrash/crashmgr/pkg/fingerprint"
)

// namespaceKinds is the set of /proc/<pid>/ns/* entries that together
// identify a container: cgroup, ipc, mount, network, pid and user
// namespaces, plus the UTS namespace for the container's hostname.
var namespaceKinds = []string{"cgroup", "ipc", "mnt", "net", "pid", "user", "uts"}

// deriveContextID fingerprints the crashing process's namespace set,
// kernel-ABI logic carried over verbatim: the seven /proc/<pid>/ns/<kind>
// symlink targets, concatenated in a fixed order and hashed, are the
// only stable container identity the handler can observe without a
// runtime's own API. onHost reports whether every one of those targets
// matches the handler's own (i.e. the crash happened in the host
// namespace rather than inside a container).
func deriveContextID(pid int64) (contextID string, onHost bool, err error) {
	targets, err := namespaceTargets(pid)
	if err != nil {
		return "", false, err
	}
	selfTargets, selfErr := namespaceTargets(0)

	var concatenated string
	onHost = selfErr == nil
	for _, kind := range namespaceKinds {
		concatenated += targets[kind]
		if selfErr == nil && targets[kind] != selfTargets[kind] {
			onHost = false
		}
	}

	id := fingerprint.Jenkins64String(concatenated)
	return fmt.Sprintf("%016x", id), onHost, nil
}

// namespaceTargets reads every /proc/<pid>/ns/<kind> symlink target. pid
// 0 means "self".
func namespaceTargets(pid int64) (map[string]string, error) {
	dir := "/proc/self/ns"
	if pid != 0 {
		dir = fmt.Sprintf("/proc/%d/ns", pid)
	}

	out := make(map[string]string, len(namespaceKinds))
	for _, kind := range namespaceKinds {
		target, err := os.Readlink(dir + "/" + kind)
		if err != nil {
			return nil, fmt.Errorf("handler: reading namespace link %s/%s: %w", dir, kind, err)
		}
		out[kind] = target
	}
	return out, nil
}
