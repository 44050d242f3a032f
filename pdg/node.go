// Package pdg is the graph substrate and, in assemble.go, the
// call-graph/PDG assembly pass: a single multi-edge graph unifying
// control-, data-, call- and value-dependency edges across an entire
// analyzed module.
//
// The instruction-wrapper taxonomy the original C++ implementation
// expressed as a class hierarchy is realized here as one tagged-variant
// Node struct switched on Kind, rather than an interface hierarchy --
// traversal code switches on Kind exactly where the original dispatched
// on subclass.
package pdg

import (
	"go/types"

	"github.com/viant/kpdg/ir"
)

// NodeID is a stable 32-bit identifier, unique within one analysis run,
// assigned in AddNode call order.
type NodeID uint32

// NodeKind is the Node variant tag.
type NodeKind uint8

const (
	// InstKind wraps an instruction handle (call/ret/br/other).
	InstKind NodeKind = iota
	// VarKind wraps a global or static symbol.
	VarKind
	// FunctionEntryKind marks the single entry node of a defined function.
	FunctionEntryKind
	// ParamKind is a parameter/object-tree node.
	ParamKind
	// AnnotationKind carries a user-supplied taint/trust annotation.
	AnnotationKind
)

// InstSubKind classifies an InstKind node.
type InstSubKind uint8

const (
	InstOther InstSubKind = iota
	InstCall
	InstRet
	InstBr
)

// VarSubKind classifies a VarKind node.
type VarSubKind uint8

const (
	VarOther VarSubKind = iota
	VarStaticGlobal
	VarStaticModule
	VarStaticFunction
)

// ParamSubKind classifies a ParamKind node -- which of the two parallel
// formal trees, or which actual-argument tree at a call site, it
// belongs to.
type ParamSubKind uint8

const (
	FormalIn ParamSubKind = iota
	FormalOut
	ActualIn
	ActualOut
)

// AnnotationSubKind classifies an AnnotationKind node.
type AnnotationSubKind uint8

const (
	AnnotOtherSub AnnotationSubKind = iota
	AnnotVarSub
	AnnotGlobalSub
)

// Node is the PDG vertex tagged variant. Only the fields relevant to
// Kind are meaningful; traversal code switches on Kind.
type Node struct {
	ID   NodeID
	Kind NodeKind

	// Common optional fields.
	Func       *ir.Function // enclosing function, if any
	ParamIndex int          // argument index, -1 if not applicable
	DebugType  types.Type   // optional debug type binding

	// Inst* fields.
	InstSub InstSubKind
	Handle  ir.Handle

	// Var* fields.
	VarSub VarSubKind
	Global *ir.Global
	Name   string

	// FunctionEntry fields.
	EntryFunc       *ir.Function
	UserAnnotation  string

	// Param* fields.
	ParamSub ParamSubKind
	// Parent is a non-owning back-reference to the node this one was
	// expanded from.
	Parent NodeID
	HasParent bool
	// ChildIndex is this node's position among its parent's children
	// (field index for a struct, 0 for a pointer dereference).
	ChildIndex int

	// Annotation* fields.
	AnnotSub AnnotationSubKind
}

func newNode(id NodeID, kind NodeKind) *Node {
	return &Node{ID: id, Kind: kind, ParamIndex: -1}
}
