package idl_test

import (
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/viant/kpdg/access"
	"github.com/viant/kpdg/boundary"
	"github.com/viant/kpdg/dbginfo"
	"github.com/viant/kpdg/idl"
	"github.com/viant/kpdg/ir"
	"github.com/viant/kpdg/pdg"
	"github.com/viant/kpdg/shared"
	"github.com/viant/kpdg/tree"
)

func buildIdlProgram(t *testing.T, src string) *ir.Program {
	t.Helper()
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "p.go", src, 0)
	require.NoError(t, err)

	pkg := types.NewPackage("p", "p")
	ssaPkg, _, err := ssautil.BuildPackage(
		&types.Config{Importer: importer.Default()}, fset, pkg, []*ast.File{f}, ssa.SanityCheckFunctions)
	require.NoError(t, err)
	ssaPkg.Prog.Build()

	prog := &ir.Program{Prog: ssaPkg.Prog, Packages: []*ssa.Package{ssaPkg}}
	prog.Reindex()
	return prog
}

const sharedFieldSrc = `
package p

type S struct {
	X int
	Y int
}

var g S

func kernelWriteGlobal() {
	g.X = 1
}

func driverReadGlobal() int {
	return g.X
}

func driverUseParam(s *S) int {
	return s.X
}

func accessYOnlyDriver(s *S) int {
	return s.Y
}
`

func TestEmitProjectsOnlySharedAccessedFields(t *testing.T) {
	prog := buildIdlProgram(t, sharedFieldSrc)

	var global *ssa.Global
	for _, pkg := range prog.Packages {
		if member, ok := pkg.Members["g"].(*ssa.Global); ok {
			global = member
		}
	}
	require.NotNil(t, global)

	g := pdg.NewGraph()
	reg := pdg.NewRegistry(g)
	tb := tree.NewBuilder(reg, dbginfo.NewInterner())

	in, _ := tb.BuildGlobalTree(prog, global)

	cfg := &boundary.Config{ImportedFunc: map[string]bool{
		"p.kernelWriteGlobal": true,
		"p.driverUseParam":    true,
		"p.accessYOnlyDriver": true,
	}}
	classifier := boundary.NewClassifier(cfg)

	sharedAnalyzer := shared.NewAnalyzer(g, tb, classifier)
	sharedAnalyzer.AnalyzeGlobalTree(in)
	require.NotEmpty(t, sharedAnalyzer.Shared, "X is written by a kernel-classified function and read by a driver-classified one")

	annotator := access.NewAnnotator(tb, classifier)
	emitter := idl.NewEmitter(prog, tb, classifier, annotator, sharedAnalyzer.Shared)

	out := emitter.Emit()

	require.Contains(t, out, "module kernel {")
	require.Contains(t, out, "rpc u32 driverUseParam(")
	require.Contains(t, out, "projection S")

	// Functions are emitted in lexicographic symbol order.
	accessYStart := strings.Index(out, "rpc u32 accessYOnlyDriver(")
	driverUseParamStart := strings.Index(out, "rpc u32 driverUseParam(")
	kernelWriteGlobalStart := strings.Index(out, "rpc void kernelWriteGlobal(")
	require.True(t, accessYStart >= 0 && driverUseParamStart > accessYStart && kernelWriteGlobalStart > driverUseParamStart)

	driverUseParamBlock := out[driverUseParamStart:kernelWriteGlobalStart]
	require.Contains(t, driverUseParamBlock, "X", "shared, accessed field X must be projected")

	accessYBlock := out[accessYStart:driverUseParamStart]
	require.NotContains(t, accessYBlock, "Y;", "Y is accessed but never observed shared, so it must be omitted")
}

const callbackFieldSrc = `
package p

type Ops struct {
	Cb func(int) int
}

func registeredCb(x int) int { return x }

func registerOps(o *Ops) {
	o.Cb = registeredCb
}

func invokeCb(o *Ops) int {
	return o.Cb(1)
}
`

func TestEmitRendersRegisteredCallbackFieldAsNestedRpc(t *testing.T) {
	prog := buildIdlProgram(t, callbackFieldSrc)

	g := pdg.NewGraph()
	reg := pdg.NewRegistry(g)
	tb := tree.NewBuilder(reg, dbginfo.NewInterner())

	invokeCbFn, ok := prog.FunctionByName("p.invokeCb")
	require.True(t, ok)
	argTrees := tb.BuildArgumentTrees(invokeCbFn)
	require.Len(t, argTrees, 1)

	cfg := &boundary.Config{
		ImportedFunc:  map[string]bool{"p.invokeCb": true},
		StaticFuncPtr: map[string]bool{"Cb": true},
	}
	classifier := boundary.NewClassifier(cfg)

	sharedAnalyzer := shared.NewAnalyzer(g, tb, classifier)
	sharedAnalyzer.AnalyzeGlobalTree(argTrees[0].In)
	require.NotEmpty(t, sharedAnalyzer.Shared, "a registered static-callback field is always shared")

	annotator := access.NewAnnotator(tb, classifier)
	emitter := idl.NewEmitter(prog, tb, classifier, annotator, sharedAnalyzer.Shared)

	out := emitter.Emit()
	require.Contains(t, out, "rpc u32 Cb_registeredCb(u32)", "Cb's registered function becomes a nested rpc signature")
	require.Contains(t, out, "Cb_registeredCb")
}
