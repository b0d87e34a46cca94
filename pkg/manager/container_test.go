package manager

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContainerNamePreservesInvertedComparison(t *testing.T) {
	// Equal ids: looked up as a container (returns the id itself, since
	// there is no runtime to resolve a friendlier name from in this
	// build).
	require.Equal(t, "abc123", containerName("abc123", "abc123"))

	// Different ids: reported as "Host" even though a differing context
	// id is, if anything, evidence of a *non-host* namespace. This is the
	// preserved quirk — see DESIGN.md.
	require.Equal(t, "Host", containerName("abc123", "def456"))
}
