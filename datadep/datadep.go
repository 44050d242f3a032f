// Package datadep implements component C: per-function def-use,
// read-after-write, and may-alias edges, grounded directly on
// original_source/src/DataDependencyGraph.cpp's addDefUseEdges /
// addRAWEdges / addAliasEdges.
package datadep

import (
	"go/types"

	"golang.org/x/tools/go/ssa"

	"github.com/viant/kpdg/ir"
	"github.com/viant/kpdg/ir/oracle"
	"github.com/viant/kpdg/pdg"
)

// Build runs component C for fn, adding dataDep.defUse, dataDep.raw, and
// dataDep.alias edges to reg.G.
func Build(reg *pdg.Registry, fn *ir.Function, aliases oracle.AliasOracle, memDeps oracle.MemDepOracle) {
	var insts []ssa.Instruction
	for _, blk := range fn.Blocks {
		insts = append(insts, blk.Instrs...)
	}

	for _, instr := range insts {
		addDefUseEdges(reg, instr)
		addRAWEdges(reg, instr, memDeps)
		addAliasEdges(reg, instr, insts, aliases)
	}
}

// addDefUseEdges emits dataDep.defUse from inst to each of its users
// (original_source's addDefUseEdges). kpdg has no standing Annotation
// node reachable from Referrers() -- annotations are user-supplied and
// wired directly by the access package -- so the original's ANNO_VAR /
// ANNO_GLOBAL recategorization never triggers here and is omitted.
func addDefUseEdges(reg *pdg.Registry, inst ssa.Instruction) {
	v, ok := inst.(ssa.Value)
	if !ok {
		return
	}
	refs := v.Referrers()
	if refs == nil {
		return
	}
	src := reg.InstNode(ir.NewHandle(inst), pdg.ClassifyInst(inst))
	for _, user := range *refs {
		dst := reg.InstNode(ir.NewHandle(user), pdg.ClassifyInst(user))
		reg.G.AddEdge(src, dst, pdg.DefUse)
	}
}

// addRAWEdges emits dataDep.raw from the nearest prior store to a load
// (original_source's addRAWEdges, generalized from LLVM's LoadInst to
// go/ssa's *ssa.UnOp token.MUL dereference).
func addRAWEdges(reg *pdg.Registry, inst ssa.Instruction, memDeps oracle.MemDepOracle) {
	load, ok := inst.(*ssa.UnOp)
	if !ok || !isLoad(load) {
		return
	}
	store, ok := memDeps.NearestStore(load)
	if !ok {
		return
	}
	dst := reg.InstNode(ir.NewHandle(load), pdg.InstOther)
	src := reg.InstNode(ir.NewHandle(store), pdg.InstOther)
	reg.G.AddEdge(src, dst, pdg.Raw)
}

func isLoad(u *ssa.UnOp) bool {
	_, isPtr := u.X.Type().Underlying().(*types.Pointer)
	return isPtr
}

// addAliasEdges emits dataDep.alias between inst and every other
// pointer-typed instruction in the same function that the oracle does
// not rule out (original_source's addAliasEdges; the oracle is queried
// once per ordered pair, matching the original's O(n^2) per-function
// scan).
func addAliasEdges(reg *pdg.Registry, inst ssa.Instruction, all []ssa.Instruction, aliases oracle.AliasOracle) {
	v, ok := inst.(ssa.Value)
	if !ok {
		return
	}
	if _, ok := v.Type().Underlying().(*types.Pointer); !ok {
		return
	}
	src := reg.InstNode(ir.NewHandle(inst), pdg.ClassifyInst(inst))
	for _, other := range all {
		if other == inst {
			continue
		}
		ov, ok := other.(ssa.Value)
		if !ok {
			continue
		}
		if aliases.Alias(v, ov) == oracle.NoAlias {
			continue
		}
		dst := reg.InstNode(ir.NewHandle(other), pdg.ClassifyInst(other))
		reg.G.AddEdge(src, dst, pdg.Alias)
	}
}
