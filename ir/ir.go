// Package ir is kpdg's typed intermediate-representation layer: a
// library that yields instructions, types, debug types, call graph, and
// memory-dependency queries. kpdg analyzes golang.org/x/tools/go/ssa
// programs, whose go/types.Type *is* the debug type DWARF-derived
// metadata would otherwise stand in for, so this package is a thin
// naming layer over go/ssa rather than a from-scratch IR.
package ir

import (
	"go/types"

	"golang.org/x/tools/go/ssa"
)

// Function is the enclosing-function identity carried by every handle,
// node, and tree. It is exactly ssa.Function: go/ssa already gives every
// function a stable identity, entry block, and parameter list, so there
// is nothing to add.
type Function = ssa.Function

// Global is a module-level variable, exactly ssa.Global.
type Global = ssa.Global

// Handle is an opaque reference to an instruction together with its
// enclosing function and static type.
type Handle struct {
	Inst ssa.Instruction
	Fn   *Function
	Type types.Type
}

// NewHandle builds a Handle for inst, deriving its function and, when
// inst is also an ssa.Value (most instructions are), its static type.
func NewHandle(inst ssa.Instruction) Handle {
	h := Handle{Inst: inst}
	if inst != nil {
		h.Fn = inst.Parent()
	}
	if v, ok := inst.(ssa.Value); ok {
		h.Type = v.Type()
	}
	return h
}

// IsZero reports whether h is the zero Handle (no bound instruction).
func (h Handle) IsZero() bool {
	return h.Inst == nil
}
