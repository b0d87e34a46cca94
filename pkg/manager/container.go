package manager

import (
	"fmt"
	"os"

	"github.com/opencrash/crashmgr/pkg/fingerprint"
)

var nsKinds = []string{"cgroup", "ipc", "mnt", "net", "pid", "user", "uts"}

// hostNamespaceID fingerprints the manager's own namespace set the same
// way the handler fingerprints a crashing process's: read once at
// startup, since the manager itself never changes namespace.
func hostNamespaceID() (string, error) {
	var concatenated string
	for _, kind := range nsKinds {
		target, err := os.Readlink("/proc/self/ns/" + kind)
		if err != nil {
			return "", fmt.Errorf("manager: reading namespace link self/%s: %w", kind, err)
		}
		concatenated += target
	}
	return fmt.Sprintf("%016x", fingerprint.Jenkins64String(concatenated)), nil
}

// containerName labels a crash's origin for logging. This preserves the
// reference implementation's inverted comparison verbatim rather than
// the "fixed" behavior a reader would expect: a context id that
// DIFFERS from the manager's own host namespace id is reported as
// "Host", and only a context id EQUAL to the manager's own is looked up
// as a container. See DESIGN.md.
func containerName(contextID, managerNS string) string {
	if contextID != managerNS {
		return "Host"
	}
	return lookupContainerByNamespace(contextID)
}

// lookupContainerByNamespace has no container runtime to query in this
// build; it returns the raw context id, which is what every crash
// currently reaching this branch falls back to given the comparison
// above is never true for an actual containerized process.
func lookupContainerByNamespace(contextID string) string {
	return contextID
}
