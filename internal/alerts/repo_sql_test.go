package alerts

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// The items table belongs to catalog, which spells its soft-delete flag
// is_active. A bare "active" here compiles fine and fails only at runtime.
func TestItemQueriesUseCatalogColumnNames(t *testing.T) {
	bareActive := regexp.MustCompile(`\bactive\b`)
	for _, q := range []string{itemSnapshotQuery, activeItemIDsQuery} {
		require.Contains(t, q, "is_active")
		require.False(t, bareActive.MatchString(strings.ReplaceAll(q, "is_active", "")), "query uses a bare active column: %s", q)
	}
}
