package stats_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/viant/kpdg/stats"
)

func TestProjectionStatsRendersAllSixCounters(t *testing.T) {
	c := &stats.Counters{
		TotalFields:                10,
		NoAccessedFields:           3,
		EliminatedPrivateFields:    2,
		ProjectedFields:            5,
		SavedDataSizeUseProjection: 128,
		SavedDataSizeUseSharedData: 64,
	}

	out := c.ProjectionStats()
	require.Contains(t, out, "total number of fields: 10")
	require.Contains(t, out, "number of final projected fields: 5")
	require.Contains(t, out, "size of saved data by using projection (byte): 128")
	require.Equal(t, 6, strings.Count(out, "\n"), "one line per counter")
}

func TestKernelIdiomStatsSeparatesPlainAndSharedCounters(t *testing.T) {
	c := &stats.Counters{
		Pointer:                10,
		PointerOp:              4,
		VoidPointer:            2,
		UnhandledVoidPointer:   1,
		VoidPointerOp:          1,
		UnhandledVoidPointerOp: 0,
	}

	plain := c.KernelIdiomStats()
	shared := c.KernelIdiomSharedStats()

	require.Contains(t, plain, "num of pointer: 10")
	require.Contains(t, plain, "num of void pointer/unhandled: 2[1]")
	require.Contains(t, shared, "num of pointer: 4")
	require.Contains(t, shared, "num of void pointer/unhandled: 1[0]")
}

func TestAtomicRegionStatsRendersCriticalSectionAndAtomicOpCounts(t *testing.T) {
	c := &stats.Counters{
		CriticalSection:           3,
		CriticalSectionSharedData: 1,
		AtomicOperation:           7,
		AtomicOperationSharedData: 2,
		SharedStructType:          4,
	}

	out := c.AtomicRegionStats()
	require.Contains(t, out, "total number of CS: 3")
	require.Contains(t, out, "total number of CS access shared data: 1")
	require.Contains(t, out, "total number of atomic operations: 7")
	require.Contains(t, out, "total number of shared struct types: 4")
}
