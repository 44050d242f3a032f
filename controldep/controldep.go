// Package controldep implements component D: postdominator-based control
// dependence. It adds controlDep.entry edges from each function's entry
// node to every instruction of that function, then Ferrante-style
// control-dependence edges (controlDep.br / controlDep.callRet /
// controlDep.other, depending on the dependent instruction's kind) from
// each multi-successor block's terminator to every instruction in its
// postdominance frontier.
//
// The immediate-postdominator computation is the Cooper-Harvey-Kennedy
// iterative dominance algorithm run on the reversed control-flow graph,
// grounded on the postdominance-frontier walk of
// other_examples/.../dominators_control.go (ComputeControlDependence):
// for every block m with two or more successors, walk each successor up
// the postdominator tree to ipostdom(m), marking every block visited
// along the way as control-dependent on m.
package controldep

import (
	"golang.org/x/tools/go/ssa"

	"github.com/viant/kpdg/ir"
	"github.com/viant/kpdg/pdg"
)

// virtualExit is the synthetic postdominator-tree root every block with
// no successors flows into.
const virtualExit = -1

// Build runs component D for fn, registering nodes (via reg) and adding
// controlDep.entry / controlDep.{br,callRet,other} edges to reg.G.
func Build(reg *pdg.Registry, fn *ir.Function) {
	entry := reg.EntryNode(fn, "")
	for _, blk := range fn.Blocks {
		for _, instr := range blk.Instrs {
			node := reg.InstNode(ir.NewHandle(instr), pdg.ClassifyInst(instr))
			reg.G.AddEdge(entry, node, pdg.CtrlEntry)
		}
	}
	if len(fn.Blocks) == 0 {
		return
	}

	idom := postDominators(fn.Blocks)
	frontier := controlDependenceFrontier(fn.Blocks, idom)

	for m, controlled := range frontier {
		branch := terminator(fn.Blocks[m])
		if branch == nil {
			continue
		}
		src := reg.InstNode(ir.NewHandle(branch), pdg.ClassifyInst(branch))
		for _, n := range controlled {
			for _, instr := range fn.Blocks[n].Instrs {
				sub := pdg.ClassifyInst(instr)
				dst := reg.InstNode(ir.NewHandle(instr), sub)
				reg.G.AddEdge(src, dst, controlKind(sub))
			}
		}
	}
}

func controlKind(sub pdg.InstSubKind) pdg.EdgeKind {
	switch sub {
	case pdg.InstBr:
		return pdg.CtrlBr
	case pdg.InstRet:
		return pdg.CallRet
	default:
		return pdg.CtrlOther
	}
}

func terminator(blk *ssa.BasicBlock) ssa.Instruction {
	if len(blk.Instrs) == 0 {
		return nil
	}
	return blk.Instrs[len(blk.Instrs)-1]
}

// exitBlocks returns the indices of every block with no successors --
// the virtual exit's forward predecessors.
func exitBlocks(blocks []*ssa.BasicBlock) []int {
	var out []int
	for _, b := range blocks {
		if len(b.Succs) == 0 {
			out = append(out, b.Index)
		}
	}
	return out
}

// postDominators returns, per block index, the index of its immediate
// postdominator (virtualExit if only the virtual exit postdominates it).
// Blocks unreachable from every exit (e.g. an infinite loop with no
// break) are simply absent from the result -- a conservative, partial
// result is preferred over a fatal error.
func postDominators(blocks []*ssa.BasicBlock) map[int]int {
	exits := exitBlocks(blocks)

	// succsRev(b): successors of b in the reversed graph, used only to
	// compute a reverse-postorder numbering for the CHK fixpoint.
	succsRev := func(b int) []int {
		if b == virtualExit {
			return exits
		}
		out := make([]int, 0, len(blocks[b].Preds))
		for _, p := range blocks[b].Preds {
			out = append(out, p.Index)
		}
		return out
	}
	// predsRev(b): predecessors of b in the reversed graph -- b's forward
	// successors, plus the virtual exit when b has none.
	predsRev := func(b int) []int {
		blk := blocks[b]
		if len(blk.Succs) == 0 {
			return []int{virtualExit}
		}
		out := make([]int, 0, len(blk.Succs))
		for _, s := range blk.Succs {
			out = append(out, s.Index)
		}
		return out
	}

	rpo, rpoIndex := reversePostorder(virtualExit, succsRev)

	idom := map[int]int{virtualExit: virtualExit}
	for changed := true; changed; {
		changed = false
		for _, b := range rpo {
			if b == virtualExit {
				continue
			}
			var newIdom int
			have := false
			for _, p := range predsRev(b) {
				if _, ok := idom[p]; !ok {
					continue
				}
				if !have {
					newIdom, have = p, true
					continue
				}
				newIdom = intersect(newIdom, p, idom, rpoIndex)
			}
			if !have {
				continue
			}
			if cur, ok := idom[b]; !ok || cur != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}
	delete(idom, virtualExit)
	return idom
}

func intersect(a, b int, idom map[int]int, rpoIndex map[int]int) int {
	for a != b {
		for rpoIndex[a] > rpoIndex[b] {
			a = idom[a]
		}
		for rpoIndex[b] > rpoIndex[a] {
			b = idom[b]
		}
	}
	return a
}

func reversePostorder(root int, succ func(int) []int) ([]int, map[int]int) {
	visited := map[int]bool{}
	var post []int
	var dfs func(int)
	dfs = func(b int) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, s := range succ(b) {
			dfs(s)
		}
		post = append(post, b)
	}
	dfs(root)

	rpo := make([]int, len(post))
	index := make(map[int]int, len(post))
	for i, b := range post {
		pos := len(post) - 1 - i
		rpo[pos] = b
		index[b] = pos
	}
	return rpo, index
}

// controlDependenceFrontier implements the Ferrante postdominance-
// frontier walk: for every block m with >=2 forward successors, each
// successor's path up the postdominator tree to (excluding) ipostdom(m)
// is control-dependent on m.
func controlDependenceFrontier(blocks []*ssa.BasicBlock, idom map[int]int) map[int][]int {
	sets := map[int]map[int]bool{}
	for _, blk := range blocks {
		m := blk.Index
		ipostdomM, ok := idom[m]
		if !ok || len(blk.Succs) < 2 {
			continue
		}
		for _, succ := range blk.Succs {
			s := succ.Index
			if s == m {
				continue
			}
			if _, ok := idom[s]; !ok {
				continue
			}
			runner := s
			for bound := len(blocks) + 1; runner != ipostdomM && bound > 0; bound-- {
				if sets[m] == nil {
					sets[m] = map[int]bool{}
				}
				sets[m][runner] = true
				next, ok := idom[runner]
				if !ok || next == runner {
					break
				}
				runner = next
			}
		}
	}
	out := make(map[int][]int, len(sets))
	for m, set := range sets {
		for n := range set {
			out[m] = append(out[m], n)
		}
	}
	return out
}
