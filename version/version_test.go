package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNumericOrdering(t *testing.T) {
	require.True(t, V(2023, 8, 0, 0).AtLeast(V(2023, 2, 0, 0)))
	require.False(t, V(2022, 6, 0, 0).AtLeast(V(2023, 1, 0, 0)))
}

func TestNonLTSOutranksLTSAtEqualRelease(t *testing.T) {
	lts := Version{Major: 2023, Minor: 2, Branch: LTS}
	nonLTS := Version{Major: 2023, Minor: 2, Branch: NonLTS}
	require.Equal(t, 1, Compare(nonLTS, lts))
	require.Equal(t, -1, Compare(lts, nonLTS))
}

func TestPreLTSTreatedAsLTSForOrdering(t *testing.T) {
	pre := Version{Major: 2023, Minor: 2, Branch: PreLTS}
	lts := Version{Major: 2023, Minor: 2, Branch: LTS}
	require.Equal(t, 0, Compare(pre, lts))
}

func TestMaxPicksHigher(t *testing.T) {
	got := Max(V(2022, 6, 0, 0), V2023_8)
	require.Equal(t, V2023_8, got)
}
