package hubmerge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreTakeSortsAndConsumes(t *testing.T) {
	t.Parallel()

	s := NewStore()
	require.False(t, s.Add(*fragment("x-hub", 3)))
	require.False(t, s.Add(*fragment("x-hub", 1)))
	require.False(t, s.Add(*fragment("x-hub", 2)))

	frags := s.Take("x-hub")
	require.Len(t, frags, 3)
	require.Equal(t, 1, frags[0].PageNumber)
	require.Equal(t, 3, frags[2].PageNumber)
	require.True(t, s.Finalized("x-hub"))
	require.Nil(t, s.Take("x-hub"))
}

func TestStoreAddAfterTakeReportsLate(t *testing.T) {
	t.Parallel()

	s := NewStore()
	require.Nil(t, s.Take("y-hub"))
	require.True(t, s.Add(*fragment("y-hub", 1)))
	require.Empty(t, s.Unclaimed())
}

func TestStoreUnclaimed(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Add(*fragment("a-hub", 1))
	s.Add(*fragment("a-hub", 2))
	s.Add(*fragment("b-hub", 1))
	s.Take("b-hub")

	require.Equal(t, map[string]int{"a-hub": 2}, s.Unclaimed())
	s.Reset()
	require.Empty(t, s.Unclaimed())
	require.False(t, s.Finalized("b-hub"))
}
