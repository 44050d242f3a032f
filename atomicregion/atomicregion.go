// Package atomicregion implements component I: finding lock/unlock-
// bounded critical sections and atomic operations, then correlating
// both with the shared-data field set component G computed.
//
// Grounded on original_source/src/AtomicRegionTracker.cpp's
// setupLockPairMap/collectCSInFunc/computeCriticalSectionPairs
// (syntactic lock/unlock pairing, no same-lock alias correlation) and
// isAtomicOp/isAtomicAsmString (an inline-asm call whose asm string
// contains "lock" is an atomic op). go/ssa has no inline-assembly
// instruction -- Go's few inline-asm primitives live in assembly files
// and never surface in SSA -- so the nearest Go analog of "an
// instruction that compiles to a hardware-atomic op" is a call into
// sync/atomic, the one construct that does.
package atomicregion

import (
	"golang.org/x/tools/go/ssa"

	"github.com/viant/kpdg/access"
	"github.com/viant/kpdg/ir"
	"github.com/viant/kpdg/pdg"
	"github.com/viant/kpdg/tree"
)

// LockPairs maps each lock-entry callee name to its unlock-entry
// counterpart. Extensible -- a caller can add entries (e.g. from
// lock_func.txt) before calling ComputeCriticalSections.
var LockPairs = map[string]string{
	"mutex_lock":         "mutex_unlock",
	"_raw_spin_lock":     "_raw_spin_unlock",
	"_raw_spin_lock_irq": "_raw_spin_unlock_irq",
}

const atomicPkgPath = "sync/atomic"

// CriticalSection is one lock/unlock-bounded instruction span. Every
// syntactic unlock call reachable after a lock call within the same
// function pairs with it -- same-lock correlation via an alias set on
// the lock operand is intentionally not required, kept oversimplified
// at this layer.
type CriticalSection struct {
	Func   *ir.Function
	Lock   *ssa.Call
	Unlock *ssa.Call
	Insts  []ssa.Instruction // strictly between Lock and Unlock, program order
	Shared bool
}

// Tracker finds critical sections and atomic operations across a
// program and correlates them against a shared-pointer closure.
type Tracker struct {
	Sections  []*CriticalSection
	AtomicOps []ssa.Instruction

	sharedPtrs map[ssa.Value]bool
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{sharedPtrs: map[ssa.Value]bool{}}
}

// ComputeCriticalSections scans every defined function in prog for
// lock/unlock call pairs, in program order.
func (t *Tracker) ComputeCriticalSections(prog *ir.Program) {
	for _, fn := range prog.DefinedFunctions() {
		t.Sections = append(t.Sections, collectCSInFunc(fn)...)
	}
}

func collectCSInFunc(fn *ir.Function) []*CriticalSection {
	var linear []ssa.Instruction
	for _, blk := range fn.Blocks {
		linear = append(linear, blk.Instrs...)
	}
	var out []*CriticalSection
	for i, inst := range linear {
		call, ok := inst.(*ssa.Call)
		if !ok {
			continue
		}
		callee := call.Common().StaticCallee()
		if callee == nil {
			continue
		}
		unlockName, isLock := LockPairs[callee.Name()]
		if !isLock {
			continue
		}
		for j := i + 1; j < len(linear); j++ {
			unlockCall, ok := linear[j].(*ssa.Call)
			if !ok {
				continue
			}
			unlockCallee := unlockCall.Common().StaticCallee()
			if unlockCallee == nil || unlockCallee.Name() != unlockName {
				continue
			}
			out = append(out, &CriticalSection{
				Func:   fn,
				Lock:   call,
				Unlock: unlockCall,
				Insts:  append([]ssa.Instruction(nil), linear[i+1:j]...),
			})
		}
	}
	return out
}

// ComputeAtomicOperations scans every defined function for calls into
// sync/atomic.
func (t *Tracker) ComputeAtomicOperations(prog *ir.Program) {
	for _, fn := range prog.DefinedFunctions() {
		for _, blk := range fn.Blocks {
			for _, inst := range blk.Instrs {
				if isAtomicOp(inst) {
					t.AtomicOps = append(t.AtomicOps, inst)
				}
			}
		}
	}
}

func isAtomicOp(inst ssa.Instruction) bool {
	call, ok := inst.(*ssa.Call)
	if !ok {
		return false
	}
	callee := call.Common().StaticCallee()
	return callee != nil && callee.Pkg != nil && callee.Pkg.Pkg.Path() == atomicPkgPath
}

// SeedGlobalSharedPointers walks the global type trees the orchestrator
// already built for the shared-data analyzer (component G), collecting
// the bound addresses of every node flagged shared into the initial
// shared-pointer set.
func (t *Tracker) SeedGlobalSharedPointers(g *pdg.Graph, tb *tree.Builder, globalRoots []pdg.NodeID, sharedFields map[string]bool) {
	for _, root := range globalRoots {
		t.collectShared(g, tb, root, sharedFields)
	}
}

// SeedArgumentSharedPointers does the same over fns' own argument
// trees, for fields reachable through an argument rather than a
// global. Callers pass the cross-domain transitive closure: a function
// no cross-domain entry point can reach can never carry a field into
// the IDL, so its arguments cannot affect MarkShared's outcome.
func (t *Tracker) SeedArgumentSharedPointers(fns []*ir.Function, tb *tree.Builder, sharedFields map[string]bool) {
	for _, fn := range fns {
		for _, at := range tb.BuildArgumentTrees(fn) {
			t.collectShared(tb.Graph(), tb, at.In, sharedFields)
		}
	}
}

func (t *Tracker) collectShared(g *pdg.Graph, tb *tree.Builder, nodeID pdg.NodeID, sharedFields map[string]bool) {
	node := g.Node(nodeID)
	if sharedFields[access.FieldID(g, node)] {
		for _, addr := range access.BoundAddrs(g, nodeID) {
			t.sharedPtrs[addr] = true
		}
	}
	for _, childID := range tb.Children(nodeID) {
		t.collectShared(g, tb, childID, sharedFields)
	}
}

// ClosePropagation extends the seeded shared-pointer set to its
// derived-pointer closure: inter-procedural argument propagation (a
// shared pointer passed as a call argument marks the callee's matching
// parameter shared too) and a def-use/alias closure within a function
// (a load, field/index address, or conversion of a shared pointer is
// shared itself). Both passes iterate to a fixed point.
func (t *Tracker) ClosePropagation(prog *ir.Program) {
	for {
		changedCalls := t.propagateThroughCalls(prog)
		changedDerived := t.closeDerived()
		if !changedCalls && !changedDerived {
			return
		}
	}
}

func (t *Tracker) propagateThroughCalls(prog *ir.Program) bool {
	changed := false
	for _, fn := range prog.DefinedFunctions() {
		for _, blk := range fn.Blocks {
			for _, inst := range blk.Instrs {
				call, ok := inst.(*ssa.Call)
				if !ok {
					continue
				}
				callee := call.Common().StaticCallee()
				if callee == nil {
					continue
				}
				for i, arg := range call.Common().Args {
					if !t.sharedPtrs[arg] || i >= len(callee.Params) {
						continue
					}
					if !t.sharedPtrs[callee.Params[i]] {
						t.sharedPtrs[callee.Params[i]] = true
						changed = true
					}
				}
			}
		}
	}
	return changed
}

func (t *Tracker) closeDerived() bool {
	changed := false
	for addr := range t.sharedPtrs {
		refs := addr.Referrers()
		if refs == nil {
			continue
		}
		for _, user := range *refs {
			v, ok := user.(ssa.Value)
			if !ok || t.sharedPtrs[v] {
				continue
			}
			if derivesFrom(user, addr) {
				t.sharedPtrs[v] = true
				changed = true
			}
		}
	}
	return changed
}

func derivesFrom(user ssa.Instruction, addr ssa.Value) bool {
	switch u := user.(type) {
	case *ssa.UnOp:
		return u.X == addr
	case *ssa.FieldAddr:
		return u.X == addr
	case *ssa.IndexAddr:
		return u.X == addr
	case *ssa.Convert:
		return u.X == addr
	case *ssa.ChangeType:
		return u.X == addr
	default:
		return false
	}
}

// IsShared reports whether v is a known shared pointer or a value
// derived from one.
func (t *Tracker) IsShared(v ssa.Value) bool {
	return t.sharedPtrs[v]
}

// MarkShared sets Shared=true on every critical section containing an
// instruction that touches the shared-pointer closure, directly as an
// instruction operand or as the instruction's own result.
func (t *Tracker) MarkShared() {
	for _, cs := range t.Sections {
		for _, inst := range cs.Insts {
			if t.touchesShared(inst) {
				cs.Shared = true
				break
			}
		}
	}
}

// AtomicOpsOnShared returns every recorded atomic operation that
// touches the shared-pointer closure.
func (t *Tracker) AtomicOpsOnShared() []ssa.Instruction {
	var out []ssa.Instruction
	for _, inst := range t.AtomicOps {
		if t.touchesShared(inst) {
			out = append(out, inst)
		}
	}
	return out
}

func (t *Tracker) touchesShared(inst ssa.Instruction) bool {
	if v, ok := inst.(ssa.Value); ok && t.sharedPtrs[v] {
		return true
	}
	for _, op := range inst.Operands(nil) {
		if op != nil && *op != nil && t.sharedPtrs[*op] {
			return true
		}
	}
	return false
}
