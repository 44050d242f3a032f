package controldep_test

import (
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/viant/kpdg/controldep"
	"github.com/viant/kpdg/pdg"
)

func buildFunc(t *testing.T, src, name string) *ssa.Function {
	t.Helper()
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "p.go", src, 0)
	require.NoError(t, err)

	pkg := types.NewPackage("p", "p")
	ssaPkg, _, err := ssautil.BuildPackage(
		&types.Config{Importer: importer.Default()}, fset, pkg, []*ast.File{f}, ssa.SanityCheckFunctions)
	require.NoError(t, err)
	ssaPkg.Prog.Build()

	fn, ok := ssaPkg.Members[name].(*ssa.Function)
	require.True(t, ok)
	return fn
}

const branchSrc = `
package p

func branchy(x int) int {
	if x > 0 {
		return x
	}
	return -x
}
`

func TestBuildAddsEntryEdgeToEveryInstruction(t *testing.T) {
	fn := buildFunc(t, branchSrc, "branchy")

	g := pdg.NewGraph()
	reg := pdg.NewRegistry(g)
	controldep.Build(reg, fn)
	g.Seal()

	entry := reg.EntryNode(fn, "")
	neighbors := g.Neighbors(entry, pdg.CtrlEntry)

	instrCount := 0
	for _, blk := range fn.Blocks {
		instrCount += len(blk.Instrs)
	}
	require.Len(t, neighbors, instrCount)
}

func TestBuildAddsControlDependenceFromBranch(t *testing.T) {
	fn := buildFunc(t, branchSrc, "branchy")

	g := pdg.NewGraph()
	reg := pdg.NewRegistry(g)
	controldep.Build(reg, fn)
	g.Seal()

	var ifInstr ssa.Instruction
	for _, blk := range fn.Blocks {
		for _, instr := range blk.Instrs {
			if _, ok := instr.(*ssa.If); ok {
				ifInstr = instr
			}
		}
	}
	require.NotNil(t, ifInstr)

	branchNode, ok := reg.InstNodeID(ifInstr)
	require.True(t, ok)

	var sawCallRet bool
	for _, e := range g.Edges(branchNode) {
		if e.Kind == pdg.CallRet {
			sawCallRet = true
		}
	}
	require.True(t, sawCallRet, "expected a controlDep.callRet edge from the branch to a conditionally-executed return")
}
