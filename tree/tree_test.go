package tree_test

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

	"github.com/viant/kpdg/dbginfo"
	"github.com/viant/kpdg/ir"
	"github.com/viant/kpdg/pdg"
	"github.com/viant/kpdg/stats"
	"github.com/viant/kpdg/tree"
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

const structArgSrc = `
package p

type Point struct {
	X int
	Y int
}

func touch(p *Point) int {
	return p.X + p.Y
}
`

func TestBuildArgumentTreesExpandsStructFields(t *testing.T) {
	fn := buildFunc(t, structArgSrc, "touch")

	g := pdg.NewGraph()
	reg := pdg.NewRegistry(g)
	b := tree.NewBuilder(reg, dbginfo.NewInterner())

	trees := b.BuildArgumentTrees(fn)
	g.Seal()

	require.Len(t, trees, 1)
	deref := b.Children(trees[0].In)
	require.Len(t, deref, 1, "pointer argument should expand to one dereference child")

	fields := b.Children(deref[0])
	require.Len(t, fields, 2, "struct should expand to one child per field")

	var sawValDep bool
	for _, fieldNode := range fields {
		for _, e := range g.Edges(fieldNode) {
			if e.Kind == pdg.ValDep {
				sawValDep = true
			}
		}
	}
	require.True(t, sawValDep, "expected a valDep edge from a field node to its FieldAddr")
}

const callSiteSrc = `
package p

type Point struct {
	X int
	Y int
}

func touch(p *Point) int {
	return p.X + p.Y
}

func caller(p *Point) int {
	return touch(p)
}
`

func TestConnectCallSiteWiresActualTrees(t *testing.T) {
	calleeFn := buildFunc(t, callSiteSrc, "touch")
	callerFn := buildFunc(t, callSiteSrc, "caller")

	g := pdg.NewGraph()
	reg := pdg.NewRegistry(g)
	b := tree.NewBuilder(reg, dbginfo.NewInterner())

	formal := b.BuildArgumentTrees(calleeFn)

	var callNode pdg.NodeID
	var found bool
	for _, blk := range callerFn.Blocks {
		for _, instr := range blk.Instrs {
			if call, ok := instr.(*ssa.Call); ok {
				callNode = reg.InstNode(ir.NewHandle(call), pdg.InstCall)
				found = true
			}
		}
	}
	require.True(t, found, "expected a call instruction in caller")

	b.ConnectCallSite(callNode, callerFn, formal)
	g.Seal()

	var sawParamIn, sawParamOut bool
	for _, e := range g.Edges(callNode) {
		if e.Kind == pdg.ParamIn {
			sawParamIn = true
			var sawActualToFormalIn bool
			for _, e2 := range g.Edges(e.Dst) {
				if e2.Kind == pdg.ParamIn && e2.Dst == formal[0].In {
					sawActualToFormalIn = true
				}
			}
			require.True(t, sawActualToFormalIn, "expected actualIn -> formalIn parameter.in edge")
		}
		if e.Kind == pdg.ParamOut {
			sawParamOut = true
		}
	}
	require.True(t, sawParamIn, "expected callNode -> actualIn parameter.in edge")
	require.True(t, sawParamOut, "expected callNode -> actualOut parameter.out edge")
}

const statsArgSrc = `
package p

import "unsafe"

type Point struct {
	X    int
	Name string
	Raw  unsafe.Pointer
}

func touch(p *Point) int {
	return p.X
}
`

func TestBuildArgumentTreesIncrementsStats(t *testing.T) {
	fn := buildFunc(t, statsArgSrc, "touch")

	g := pdg.NewGraph()
	reg := pdg.NewRegistry(g)
	b := tree.NewBuilder(reg, dbginfo.NewInterner())
	counters := &stats.Counters{}
	b.Stats = counters

	b.BuildArgumentTrees(fn)
	g.Seal()

	// BuildArgumentTrees walks both the formalIn and formalOut roots for
	// each parameter, so every node along the way is classified twice.
	require.EqualValues(t, 2, counters.Pointer, "struct-pointer argument dereference should count as Pointer")
	require.EqualValues(t, 2, counters.PointerOp, "argument tree is function-scoped, so the Op twin also counts")
	require.EqualValues(t, 2, counters.String, "string field should count as String")
	require.EqualValues(t, 2, counters.VoidPointer, "unsafe.Pointer field should count as VoidPointer")
}

func TestPairFormalTreesLinksCorrespondingNodes(t *testing.T) {
	fn := buildFunc(t, structArgSrc, "touch")

	g := pdg.NewGraph()
	reg := pdg.NewRegistry(g)
	b := tree.NewBuilder(reg, dbginfo.NewInterner())

	trees := b.BuildArgumentTrees(fn)
	g.Seal()

	var sawParamField bool
	for _, e := range g.Edges(trees[0].In) {
		if e.Kind == pdg.ParamField && e.Dst == trees[0].Out {
			sawParamField = true
		}
	}
	require.True(t, sawParamField)
}
