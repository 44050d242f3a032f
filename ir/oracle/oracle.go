// Package oracle defines the two external analyses a full points-to and
// memory-dependency pipeline would otherwise provide as black boxes --
// an underapproximating points-to analysis (MayAlias / AllocationSitesOf)
// and a memory-dependency query (NearestStore) -- and ships one default,
// deliberately conservative implementation of each, sufficient to
// exercise every downstream component (datadep, tree, access).
//
// Either interface is swappable for a real points-to package (e.g.
// golang.org/x/tools/go/pointer) without touching datadep, tree, or
// access: those packages only ever see the interfaces below.
package oracle

import (
	"go/types"

	"golang.org/x/tools/go/ssa"
)

// AliasResult is a three-valued alias result.
type AliasResult int

const (
	NoAlias AliasResult = iota
	MayAlias
	MustAlias
)

// AliasOracle answers may-alias and allocation-site queries. Real
// implementations underapproximate: any query the oracle cannot resolve
// must widen to MayAlias, never NoAlias.
type AliasOracle interface {
	Alias(v1, v2 ssa.Value) AliasResult
	AllocationSitesOf(v ssa.Value) []ssa.Value
}

// MemDepOracle answers read-after-write queries: for a load, the
// nearest instruction that stored to the same address.
type MemDepOracle interface {
	NearestStore(load *ssa.UnOp) (ssa.Instruction, bool)
}

// Conservative is the default AliasOracle + MemDepOracle: type-identity
// aliasing (same pointer-element type => MayAlias) and same-block
// backward store scanning. It answers every query (never "cannot
// decide"), but always on the safe/widening side: an oracle failure
// widens to MayAlias, by construction, never narrows to NoAlias.
type Conservative struct{}

// NewConservative returns the default oracle.
func NewConservative() *Conservative { return &Conservative{} }

// Alias returns MustAlias for identical values, MayAlias when the
// pointee types are identical (the underapproximating default), and
// NoAlias only when the two values provably have unrelated pointer
// element types.
func (c *Conservative) Alias(v1, v2 ssa.Value) AliasResult {
	if v1 == v2 {
		return MustAlias
	}
	p1, ok1 := v1.Type().Underlying().(*types.Pointer)
	p2, ok2 := v2.Type().Underlying().(*types.Pointer)
	if !ok1 || !ok2 {
		return NoAlias
	}
	if types.Identical(p1.Elem(), p2.Elem()) {
		return MayAlias
	}
	return NoAlias
}

// AllocationSitesOf walks v's simple def-use chain (through sigma-like
// *ssa.Phi joins, conversions, and slicing) to the *ssa.Alloc /
// *ssa.MakeSlice / *ssa.MakeMap / *ssa.MakeChan / *ssa.Call values that
// could have produced it. It is underapproximating: a site it cannot resolve
// is simply omitted, never fabricated.
func (c *Conservative) AllocationSitesOf(v ssa.Value) []ssa.Value {
	seen := map[ssa.Value]bool{}
	var sites []ssa.Value
	var walk func(ssa.Value)
	walk = func(cur ssa.Value) {
		if cur == nil || seen[cur] {
			return
		}
		seen[cur] = true
		switch val := cur.(type) {
		case *ssa.Alloc:
			sites = append(sites, val)
		case *ssa.MakeSlice:
			sites = append(sites, val)
		case *ssa.MakeMap:
			sites = append(sites, val)
		case *ssa.MakeChan:
			sites = append(sites, val)
		case *ssa.Call:
			sites = append(sites, val)
		case *ssa.Phi:
			for _, e := range val.Edges {
				walk(e)
			}
		case *ssa.ChangeType:
			walk(val.X)
		case *ssa.Convert:
			walk(val.X)
		case *ssa.Slice:
			walk(val.X)
		}
	}
	walk(v)
	return sites
}

// NearestStore scans load's basic block backward from the load for the
// nearest prior *ssa.Store whose address is load's operand (by value
// identity). This is intentionally an intra-block approximation: a
// cross-block memory dependency is simply not reported, which is safe
// (it only loses a RAW edge, it never claims a wrong one).
func (c *Conservative) NearestStore(load *ssa.UnOp) (ssa.Instruction, bool) {
	if load == nil {
		return nil, false
	}
	blk := load.Block()
	if blk == nil {
		return nil, false
	}
	idx := -1
	for i, instr := range blk.Instrs {
		if instr == ssa.Instruction(load) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}
	for i := idx - 1; i >= 0; i-- {
		if st, ok := blk.Instrs[i].(*ssa.Store); ok {
			if st.Addr == load.X {
				return st, true
			}
		}
	}
	return nil, false
}
