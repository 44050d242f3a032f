package pdg

import (
	"golang.org/x/tools/go/ssa"

	"github.com/viant/kpdg/ir"
)

// Registry is the get-or-create node cache shared by the data-dependency,
// control-dependency, and assembly passes (components C, D, E) so that
// every pass addressing the same instruction, function, or global lands
// on the identical Node rather than creating a duplicate -- the PDG is
// one graph unified from several independently-running builders.
type Registry struct {
	G *Graph

	entries map[*ir.Function]NodeID
	insts   map[ssa.Instruction]NodeID
	globals map[*ir.Global]NodeID
}

// NewRegistry wraps g.
func NewRegistry(g *Graph) *Registry {
	return &Registry{
		G:       g,
		entries: map[*ir.Function]NodeID{},
		insts:   map[ssa.Instruction]NodeID{},
		globals: map[*ir.Global]NodeID{},
	}
}

// EntryNode returns fn's FunctionEntry node, creating it on first use
// (the "exactly one FunctionEntry per defined function" invariant).
func (r *Registry) EntryNode(fn *ir.Function, userAnnotation string) NodeID {
	if id, ok := r.entries[fn]; ok {
		return id
	}
	id := r.G.AddNode(NewFunctionEntryNode(fn, userAnnotation))
	r.entries[fn] = id
	return id
}

// InstNode returns the node wrapping handle's instruction, creating it
// with sub on first use.
func (r *Registry) InstNode(handle ir.Handle, sub InstSubKind) NodeID {
	if id, ok := r.insts[handle.Inst]; ok {
		return id
	}
	id := r.G.AddNode(NewInstNode(sub, handle))
	r.insts[handle.Inst] = id
	return id
}

// InstNodeID reports the node already registered for inst, if any.
func (r *Registry) InstNodeID(inst ssa.Instruction) (NodeID, bool) {
	id, ok := r.insts[inst]
	return id, ok
}

// GlobalNode returns the node wrapping g, creating it with sub on first use.
func (r *Registry) GlobalNode(g *ir.Global, sub VarSubKind) NodeID {
	if id, ok := r.globals[g]; ok {
		return id
	}
	id := r.G.AddNode(NewVarNode(sub, g, g.Name()))
	r.globals[g] = id
	return id
}

// ClassifyInst maps an ssa.Instruction onto the InstSubKind taxonomy:
// call | ret | br | other.
func ClassifyInst(inst ssa.Instruction) InstSubKind {
	switch inst.(type) {
	case *ssa.Call:
		return InstCall
	case *ssa.Return:
		return InstRet
	case *ssa.Jump, *ssa.If:
		return InstBr
	default:
		return InstOther
	}
}
