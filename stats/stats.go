// Package stats collects the same analysis-run counters the original
// tool gathered in a process-wide singleton, but as a plain value meant
// to be held as a field of an analysis context and threaded through
// each component explicitly -- nothing here is a global.
package stats

import "fmt"

// Counters accumulates one full run's statistics. The zero value is
// ready to use.
type Counters struct {
	TotalFields             uint
	ProjectedFields         uint
	NoAccessedFields        uint
	EliminatedPrivateFields uint
	FinalSyncFields         uint

	SavedDataSizeUseProjection uint
	SavedDataSizeUseSharedData uint

	Union          uint
	UnionOp        uint
	AnonymousUnion uint

	VoidPointer               uint
	VoidPointerOp             uint
	UnhandledVoidPointer      uint
	UnhandledVoidPointerOp    uint
	UnsafeCastedStructPointer uint

	SentinelArray   uint
	SentinelArrayOp uint
	Array           uint
	HandledArray    uint
	CharArray       uint
	UnhandledArray  uint

	String   uint
	StringOp uint

	CharPointer uint
	Pointer     uint
	PointerOp   uint

	SeqPointer   uint
	SeqPointerOp uint
	FuncPointer  uint

	ContainerOfMacro uint

	KernelToDriverCalls uint
	DriverToKernelCalls uint

	CriticalSection           uint
	CriticalSectionSharedData uint
	AtomicOperation           uint
	AtomicOperationSharedData uint

	SharedStructType uint

	FuncForAnalyzingSharedData     uint
	FuncForAnalyzingAccessedFields uint

	GlobalVar       uint
	SharedGlobalVar uint
}

// KernelIdiomStats renders the per-run kernel-idiom counter report,
// matching the original's "KernelIdiomStats" file contents.
func (c *Counters) KernelIdiomStats() string {
	return fmt.Sprintf(
		"num of pointer: %d\n"+
			"num of array: %d\n"+
			"num of string: %d\n"+
			"num of void pointer/unhandled: %d[%d]\n"+
			"num of container_of operation: %d\n"+
			"num of union type data: %d\n"+
			"num of unsafe type cast: %d\n"+
			"num of sential array: %d\n"+
			"num of seq pointer: %d\n"+
			"Driver to Kernel Invocation: %d\n"+
			"Kernel to Driver Invocation: %d\n"+
			"num of functions needed for shared data computation: %d\n"+
			"num of functions needed for accessed analysis computation: %d\n",
		c.Pointer, c.Array, c.String,
		c.VoidPointer, c.UnhandledVoidPointer,
		c.ContainerOfMacro, c.Union, c.UnsafeCastedStructPointer,
		c.SentinelArray, c.SeqPointer,
		c.DriverToKernelCalls, c.KernelToDriverCalls,
		c.FuncForAnalyzingSharedData, c.FuncForAnalyzingAccessedFields,
	)
}

// KernelIdiomSharedStats renders the shared-data-scoped counterpart of
// KernelIdiomStats, matching the original's "KernelIdiomSharedStats"
// file contents.
func (c *Counters) KernelIdiomSharedStats() string {
	return fmt.Sprintf(
		"num of pointer: %d\n"+
			"num of handled array: %d\n"+
			"num of unhandled array: %d\n"+
			"num of string: %d\n"+
			"num of void pointer/unhandled: %d[%d]\n"+
			"num of container_of operation: %d\n"+
			"num of union type data: %d\n"+
			"num of unsafe type cast: %d\n"+
			"num of sential array: %d\n"+
			"num of seq pointer: %d\n"+
			"Driver to Kernel Invocation: %d\n"+
			"Kernel to Driver Invocation: %d\n",
		c.PointerOp, c.HandledArray, c.UnhandledArray, c.StringOp,
		c.VoidPointerOp, c.UnhandledVoidPointerOp,
		c.ContainerOfMacro, c.UnionOp, c.UnsafeCastedStructPointer,
		c.SentinelArrayOp, c.SeqPointerOp,
		c.DriverToKernelCalls, c.KernelToDriverCalls,
	)
}

// ProjectionStats renders the field-projection report, matching the
// original's "ProjectionStats" file contents.
func (c *Counters) ProjectionStats() string {
	return fmt.Sprintf(
		"total number of fields: %d\n"+
			"number of fields eliminated by field access analysis: %d\n"+
			"number of projected fields eliminated by shared data optimziation: %d\n"+
			"number of final projected fields: %d\n"+
			"size of saved data by using projection (byte): %d\n"+
			"size of saved data by using shared data (byte): %d\n",
		c.TotalFields, c.NoAccessedFields, c.EliminatedPrivateFields,
		c.ProjectedFields, c.SavedDataSizeUseProjection, c.SavedDataSizeUseSharedData,
	)
}

// AtomicRegionStats renders the critical-section/atomic-op report,
// matching the original's "AtomicRegionStats" file contents.
func (c *Counters) AtomicRegionStats() string {
	return fmt.Sprintf(
		"total number of CS: %d\n"+
			"total number of CS access shared data: %d\n"+
			"total number of atomic operations: %d\n"+
			"total number of atomic operations access shared data: %d\n"+
			"total number of shared struct types: %d\n",
		c.CriticalSection, c.CriticalSectionSharedData,
		c.AtomicOperation, c.AtomicOperationSharedData,
		c.SharedStructType,
	)
}
