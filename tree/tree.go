// Package tree implements component F: field-sensitive parameter/object
// tree construction over go/types.Type, bound to *ssa.FieldAddr
// instructions by valDep edges.
//
// Grounded on original_source/src/PDGUtils.cpp's field/offset matching
// (getGEPAccessFieldOffset, isGEPOffsetMatchWithDI): go/ssa's
// *ssa.FieldAddr already carries its field index directly, so the struct-
// layout-offset computation the original needs (getStructLayout,
// getElementOffsetInBits) has no Go analog -- field-index equality is the
// exact, not approximate, match.
package tree

import (
	"go/types"

	"golang.org/x/tools/go/ssa"

	"github.com/viant/kpdg/dbginfo"
	"github.com/viant/kpdg/ir"
	"github.com/viant/kpdg/pdg"
	"github.com/viant/kpdg/stats"
)

// ExpandLevel bounds parameter/object tree depth.
const ExpandLevel = 7

// ArgTree is one argument's formalIn/formalOut root pair.
type ArgTree struct {
	Index   int
	In, Out pdg.NodeID
}

// Builder constructs parameter/object trees into a shared pdg.Registry,
// tracking each tree node's children so that callers (component E) can
// clone a formal tree into an actual tree at a call site.
type Builder struct {
	reg      *pdg.Registry
	interner *dbginfo.Interner
	children map[pdg.NodeID][]pdg.NodeID

	// Stats, if set, is incremented with a kernel-idiom tally (pointer,
	// array, union, string, ...) each time expand classifies a newly
	// created tree node's debug type. Left nil, counting is skipped --
	// the zero Builder never touches it.
	Stats *stats.Counters
}

// NewBuilder returns a Builder writing into reg, using interner for the
// 1-limit recursion guard.
func NewBuilder(reg *pdg.Registry, interner *dbginfo.Interner) *Builder {
	return &Builder{reg: reg, interner: interner, children: map[pdg.NodeID][]pdg.NodeID{}}
}

// Graph returns the graph b builds its trees into, for callers (such as
// the access package's annotation worklist) that need direct node
// lookup alongside tree structure.
func (b *Builder) Graph() *pdg.Graph {
	return b.reg.G
}

// BuildArgumentTrees builds the formalIn/formalOut pair for every
// parameter of fn, pairing corresponding nodes with parameter.field
// edges -- formalIn and formalOut are structural twins.
func (b *Builder) BuildArgumentTrees(fn *ir.Function) []ArgTree {
	out := make([]ArgTree, 0, len(fn.Params))
	for i, p := range fn.Params {
		in := b.BuildRoot(fn, i, p.Type(), pdg.FormalIn)
		outRoot := b.BuildRoot(fn, i, p.Type(), pdg.FormalOut)
		b.PairFormalTrees(in, outRoot)
		out = append(out, ArgTree{Index: i, In: in, Out: outRoot})
	}
	return out
}

// BuildReturnTree builds the tree rooted at fn's single result type, if
// it has exactly one -- return values are treated identically to
// parameters, with their own roots. A multi-value or void return has
// no tree.
func (b *Builder) BuildReturnTree(fn *ir.Function) (pdg.NodeID, bool) {
	if fn.Signature.Results().Len() != 1 {
		return 0, false
	}
	return b.BuildRoot(fn, -1, fn.Signature.Results().At(0).Type(), pdg.FormalOut), true
}

// BuildGlobalTree builds the formalIn/formalOut pair for a module-level
// variable, paired the same way as an argument's twins. Unlike an
// argument tree, a global has no single owning function: valDep
// bindings come from every matching *ssa.FieldAddr in prog, not one
// function's instructions, so this delegates to BuildTypeTree.
func (b *Builder) BuildGlobalTree(prog *ir.Program, g *ir.Global) (in, out pdg.NodeID) {
	elem := g.Type()
	if ptr, ok := elem.(*types.Pointer); ok {
		elem = ptr.Elem() // ssa.Global.Type() is always a pointer to the variable's type
	}
	in = b.BuildTypeTree(prog, elem, pdg.FormalIn)
	out = b.BuildTypeTree(prog, elem, pdg.FormalOut)
	b.PairFormalTrees(in, out)
	return
}

// BuildTypeTree builds a tree rooted at debugType, scoped to the whole
// program rather than one function: valDep bindings come from every
// matching *ssa.FieldAddr across prog's defined functions. Used for
// global type trees, which have no single owning function.
func (b *Builder) BuildTypeTree(prog *ir.Program, debugType types.Type, sub pdg.ParamSubKind) pdg.NodeID {
	root := pdg.NewParamNode(sub, nil, -1, debugType)
	rootID := b.reg.G.AddNode(root)
	b.expand(root, rootID, nil, prog.DefinedFunctions(), sub, 0, nil)
	return rootID
}

// BuildRoot builds a parameter/object tree rooted at debugType, owned by
// fn and argIndex (-1 for non-argument roots). valDep bindings come only
// from fn's own instructions.
func (b *Builder) BuildRoot(fn *ir.Function, argIndex int, debugType types.Type, sub pdg.ParamSubKind) pdg.NodeID {
	root := pdg.NewParamNode(sub, fn, argIndex, debugType)
	rootID := b.reg.G.AddNode(root)
	var scanFuncs []*ir.Function
	if fn != nil {
		scanFuncs = []*ir.Function{fn}
	}
	b.expand(root, rootID, fn, scanFuncs, sub, 0, nil)
	return rootID
}

// PairFormalTrees adds parameter.field edges between structurally
// corresponding nodes of two trees built from the same debug type
// (formalIn/formalOut twins), pairing level by level.
func (b *Builder) PairFormalTrees(a, other pdg.NodeID) {
	b.linkTrees(a, other, pdg.ParamField)
}

// linkTrees adds a kind edge a->other, then recurses over their children
// in parallel -- the shared walk behind PairFormalTrees and
// ConnectCallSite's actual/formal linking, since both connect two
// structurally identical trees node by node.
func (b *Builder) linkTrees(a, other pdg.NodeID, kind pdg.EdgeKind) {
	b.reg.G.AddEdge(a, other, kind)
	ac, oc := b.children[a], b.children[other]
	for i := 0; i < len(ac) && i < len(oc); i++ {
		b.linkTrees(ac[i], oc[i], kind)
	}
}

// ConnectCallSite implements the call-site half of component E: for a
// direct call to callee (calleeArgs is callee's own BuildArgumentTrees
// result), it clones each formal argument's in/out trees into fresh
// actual trees scoped to caller/call, then wires:
//   - parameter.in: callNode -> actualIn, and actualIn -> formalIn
//     (the call site's data flows into the callee's formal tree);
//   - parameter.out: formalOut -> actualOut, and callNode -> actualOut
//     (the callee's writes flow back out to the call site);
//   - parameter.field: actualIn <-> actualOut twins, matching formalIn/
//     formalOut.
//
// Grounded on original_source/src/ProgramDependencyGraph.cpp's
// connectCallerAndCallee/buildActualParameterTrees, which relate actual
// and formal trees in exactly this shape (there, undifferentiated
// DependencyType::PARAMETER; here split into parameter.in/out so the two
// directions are distinguishable in the graph).
func (b *Builder) ConnectCallSite(callNode pdg.NodeID, caller *ir.Function, calleeArgs []ArgTree) {
	for _, argTree := range calleeArgs {
		actualIn := b.CloneActual(argTree.In, caller, argTree.Index, pdg.ActualIn)
		actualOut := b.CloneActual(argTree.Out, caller, argTree.Index, pdg.ActualOut)

		b.reg.G.AddEdge(callNode, actualIn, pdg.ParamIn)
		b.linkTrees(actualIn, argTree.In, pdg.ParamIn)

		b.linkTrees(argTree.Out, actualOut, pdg.ParamOut)
		b.reg.G.AddEdge(callNode, actualOut, pdg.ParamOut)

		b.PairFormalTrees(actualIn, actualOut)
	}
}

// CloneActual clones the subtree rooted at formalRoot (a callee's
// formalIn or formalOut root) into a fresh tree scoped to caller/
// argIndex and tagged sub (ActualIn/ActualOut): actual-parameter trees
// are cloned from the resolved callee's formal trees at each call site.
func (b *Builder) CloneActual(formalRoot pdg.NodeID, caller *ir.Function, argIndex int, sub pdg.ParamSubKind) pdg.NodeID {
	return b.cloneNode(formalRoot, 0, false, caller, argIndex, sub)
}

func (b *Builder) cloneNode(origID, parent pdg.NodeID, hasParent bool, caller *ir.Function, argIndex int, sub pdg.ParamSubKind) pdg.NodeID {
	orig := b.reg.G.Node(origID)
	clone := pdg.NewParamNode(sub, caller, argIndex, orig.DebugType)
	clone.HasParent = hasParent
	clone.Parent = parent
	clone.ChildIndex = orig.ChildIndex
	cloneID := b.reg.G.AddNode(clone)
	for _, childID := range b.children[origID] {
		childCloneID := b.cloneNode(childID, cloneID, true, caller, argIndex, sub)
		b.children[cloneID] = append(b.children[cloneID], childCloneID)
	}
	return cloneID
}

// Children returns the direct children of node, in child-index order.
func (b *Builder) Children(node pdg.NodeID) []pdg.NodeID {
	return b.children[node]
}

// expand grows node's subtree. scanFuncs lists the functions whose
// instructions are searched for *ssa.FieldAddr bindings: a single
// owning function for an argument/return tree, every defined function
// for a program-wide type tree, or none at all for a tree with no
// binding source.
func (b *Builder) expand(node *pdg.Node, id pdg.NodeID, fn *ir.Function, scanFuncs []*ir.Function, sub pdg.ParamSubKind, depth int, ancestors []types.Type) {
	if depth >= ExpandLevel {
		return
	}
	stripped := dbginfo.Strip(node.DebugType)
	switch u := stripped.(type) {
	case *types.Pointer:
		elem := u.Elem()
		canon := b.interner.Canonical(stripped)
		if hasIdentical(ancestors, canon) {
			return
		}
		child := pdg.NewParamNode(sub, fn, node.ParamIndex, elem)
		child.HasParent, child.Parent, child.ChildIndex = true, id, 0
		childID := b.reg.G.AddNode(child)
		b.children[id] = append(b.children[id], childID)
		b.tally(node.DebugType, fn != nil, depth)
		b.expand(child, childID, fn, scanFuncs, sub, depth+1, append(copyOf(ancestors), canon))

	case *types.Struct:
		canon := b.interner.Canonical(stripped)
		if hasIdentical(ancestors, canon) {
			return
		}
		for i := 0; i < u.NumFields(); i++ {
			field := u.Field(i)
			child := pdg.NewParamNode(sub, fn, node.ParamIndex, field.Type())
			child.HasParent, child.Parent, child.ChildIndex = true, id, i
			childID := b.reg.G.AddNode(child)
			b.children[id] = append(b.children[id], childID)
			bindFieldValDep(b.reg, scanFuncs, childID, stripped, i)
			b.tally(field.Type(), fn != nil, depth+1)
			b.expand(child, childID, fn, scanFuncs, sub, depth+1, append(copyOf(ancestors), canon))
		}

	default:
		// scalar, function type, interface/union, or unsupported pointee: leaf.
	}
}

// tally classifies t's debug type and increments the matching kernel-idiom
// counter, if b.Stats is set. scoped distinguishes a function-owned tree
// (an argument, return, or call-site tree) from a program-wide global type
// tree, selecting whether the *Op-suffixed, analysis-scoped counter is also
// bumped alongside the raw one. depth is the node's distance from its tree
// root, used to flag a nested void pointer as a likely unsafe-cast site.
func (b *Builder) tally(t types.Type, scoped bool, depth int) {
	if b.Stats == nil {
		return
	}
	if basic, ok := dbginfo.Strip(t).(*types.Basic); ok && basic.Kind() == types.String {
		b.Stats.String++
		if scoped {
			b.Stats.StringOp++
		}
		return
	}
	switch dbginfo.Classify(t) {
	case dbginfo.VoidPtr:
		b.Stats.VoidPointer++
		if scoped {
			b.Stats.VoidPointerOp++
		}
		if depth > 0 {
			b.Stats.UnsafeCastedStructPointer++
		}
	case dbginfo.FuncPtr:
		b.Stats.FuncPointer++
	case dbginfo.StructPtr:
		b.Stats.Pointer++
		if scoped {
			b.Stats.PointerOp++
		}
	case dbginfo.SeqPtr:
		b.Stats.SeqPointer++
		if scoped {
			b.Stats.SeqPointerOp++
		}
	case dbginfo.Union, dbginfo.UnionPtr:
		b.Stats.Union++
		if scoped {
			b.Stats.UnionOp++
		}
		if _, named := types.Unalias(t).(*types.Named); !named {
			b.Stats.AnonymousUnion++
		}
	case dbginfo.SentinelArray:
		b.Stats.SentinelArray++
		if scoped {
			b.Stats.SentinelArrayOp++
		}
	case dbginfo.Array:
		b.Stats.Array++
		if scoped {
			b.Stats.HandledArray++
		} else {
			b.Stats.UnhandledArray++
		}
	}
}

func copyOf(ancestors []types.Type) []types.Type {
	out := make([]types.Type, len(ancestors))
	copy(out, ancestors)
	return out
}

func hasIdentical(ancestors []types.Type, t types.Type) bool {
	for _, a := range ancestors {
		if a == t { // sound: t and a are both Interner.Canonical results
			return true
		}
	}
	return false
}

// bindFieldValDep emits a valDep edge from childID to every *ssa.FieldAddr,
// across every function in fns, whose source element type matches
// parentStripped and whose field index matches fieldIndex.
func bindFieldValDep(reg *pdg.Registry, fns []*ir.Function, childID pdg.NodeID, parentStripped types.Type, fieldIndex int) {
	for _, fn := range fns {
		for _, blk := range fn.Blocks {
			for _, instr := range blk.Instrs {
				fa, ok := instr.(*ssa.FieldAddr)
				if !ok || fa.Field != fieldIndex {
					continue
				}
				ptr, ok := fa.X.Type().Underlying().(*types.Pointer)
				if !ok {
					continue
				}
				if !types.Identical(dbginfo.Strip(ptr.Elem()), parentStripped) {
					continue
				}
				node := reg.InstNode(ir.NewHandle(fa), pdg.InstOther)
				reg.G.AddEdge(childID, node, pdg.ValDep)
			}
		}
	}
}
