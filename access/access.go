// Package access implements the access lattice shared by the shared-data
// analyzer (component G) and the per-function access + annotation
// analyzer (component H), plus the bottom-up worklist that produces
// component H's own results.
//
// Grounded on original_source/src/AccessInfoTracker.cpp's per-field
// access-type computation, and on analyzer/linage/kind.go (teacher)'s
// AccessKind enum (Read/Write/Call/Xfer/Metadata) for the shape of a
// small access-kind lattice with a String() method.
package access

import (
	"go/types"

	"golang.org/x/tools/go/ssa"

	"github.com/viant/kpdg/dbginfo"
	"github.com/viant/kpdg/pdg"
)

// Kind is the NOACCESS ⊑ READ ⊑ WRITE lattice.
type Kind uint8

const (
	NoAccess Kind = iota
	Read
	Write
)

func (k Kind) String() string {
	switch k {
	case Read:
		return "READ"
	case Write:
		return "WRITE"
	default:
		return "NOACCESS"
	}
}

// Join returns the least upper bound of a and b.
func Join(a, b Kind) Kind {
	if a > b {
		return a
	}
	return b
}

// Classify determines inst's access type against addr, the pointer value
// inst is bound to via valDep: a store to addr is WRITE unless the
// stored operand is addr itself (an initial spill of the pointer value,
// not an access through it); a load or field/index address derived from
// addr is READ; anything else is NOACCESS.
func Classify(inst ssa.Instruction, addr ssa.Value) Kind {
	switch v := inst.(type) {
	case *ssa.Store:
		if v.Addr == addr {
			if v.Val == addr {
				return NoAccess
			}
			return Write
		}
		return NoAccess
	case *ssa.UnOp:
		if v.X == addr {
			if _, ok := v.X.Type().Underlying().(*types.Pointer); ok {
				return Read
			}
		}
		return NoAccess
	case *ssa.FieldAddr:
		if v.X == addr {
			return Read
		}
		return NoAccess
	case *ssa.IndexAddr:
		if v.X == addr {
			return Read
		}
		return NoAccess
	default:
		return NoAccess
	}
}

// BoundAddrs returns every pointer value node (in g, rooted at nodeID)
// is bound to: the valDep-linked instructions (typically *ssa.FieldAddr,
// for a struct field), plus, for a tree root with no parent, the
// owning function's formal parameter itself -- a root pointer argument
// has no FieldAddr of its own, so its bound value is the parameter
// value directly.
func BoundAddrs(g *pdg.Graph, nodeID pdg.NodeID) []ssa.Value {
	node := g.Node(nodeID)
	var out []ssa.Value
	for _, e := range g.Edges(nodeID) {
		if e.Kind != pdg.ValDep {
			continue
		}
		if v, ok := g.Node(e.Dst).Handle.Inst.(ssa.Value); ok {
			out = append(out, v)
		}
	}
	if !node.HasParent && node.Func != nil && node.ParamIndex >= 0 && node.ParamIndex < len(node.Func.Params) {
		out = append(out, node.Func.Params[node.ParamIndex])
	}
	return out
}

// FieldID computes node's canonical fieldId from its parent's debug
// type and this node's ChildIndex, matching dbginfo.FieldID. Nodes with
// no parent (tree roots) have no field identity of their own. Shared by
// the shared-data analyzer and the access + annotation analyzer so both
// key their per-field maps identically.
func FieldID(g *pdg.Graph, node *pdg.Node) string {
	parent, field, ok := parentField(g, node)
	if !ok {
		return ""
	}
	return dbginfo.FieldID(parent, field)
}

// FieldName returns node's field name the same way FieldID does, for
// callers that need the bare name rather than the canonical id (e.g.
// static-callback field matching).
func FieldName(g *pdg.Graph, node *pdg.Node) string {
	_, field, ok := parentField(g, node)
	if !ok {
		return ""
	}
	return dbginfo.FieldName(field)
}

func parentField(g *pdg.Graph, node *pdg.Node) (types.Type, *types.Var, bool) {
	if !node.HasParent {
		return nil, nil, false
	}
	parent := g.Node(node.Parent)
	parentType, ok := dbginfo.Strip(parent.DebugType).(*types.Struct)
	if !ok || node.ChildIndex >= parentType.NumFields() {
		return nil, nil, false
	}
	return parentType, parentType.Field(node.ChildIndex), true
}
