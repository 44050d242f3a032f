package warnings_test

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

	"github.com/viant/kpdg/atomicregion"
	"github.com/viant/kpdg/boundary"
	"github.com/viant/kpdg/dbginfo"
	"github.com/viant/kpdg/ir"
	"github.com/viant/kpdg/pdg"
	"github.com/viant/kpdg/shared"
	"github.com/viant/kpdg/tree"
	"github.com/viant/kpdg/warnings"
)

func buildWarningsProgram(t *testing.T, src string) *ir.Program {
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

const csSharedSrc = `
package p

func mutex_lock() {}
func mutex_unlock() {}

type Config struct {
	Mode int
}

var cfg Config

func criticalWrite() {
	mutex_lock()
	cfg.Mode = 1
	mutex_unlock()
}

func kernelRead() int {
	return cfg.Mode
}
`

func TestCSWarningsListsSharedModifiedData(t *testing.T) {
	prog := buildWarningsProgram(t, csSharedSrc)

	var cfgGlobal *ssa.Global
	for _, pkg := range prog.Packages {
		if member, ok := pkg.Members["cfg"].(*ssa.Global); ok {
			cfgGlobal = member
		}
	}
	require.NotNil(t, cfgGlobal)

	g := pdg.NewGraph()
	reg := pdg.NewRegistry(g)
	tb := tree.NewBuilder(reg, dbginfo.NewInterner())

	in, _ := tb.BuildGlobalTree(prog, cfgGlobal)
	g.Seal()

	cfg := &boundary.Config{ImportedFunc: map[string]bool{"p.kernelRead": true}}
	classifier := boundary.NewClassifier(cfg)
	sharedAnalyzer := shared.NewAnalyzer(g, tb, classifier)
	sharedAnalyzer.AnalyzeGlobalTree(in)
	require.NotEmpty(t, sharedAnalyzer.Shared)

	tracker := atomicregion.NewTracker()
	tracker.ComputeCriticalSections(prog)
	tracker.SeedGlobalSharedPointers(g, tb, []pdg.NodeID{in}, sharedAnalyzer.Shared)
	tracker.ClosePropagation(prog)
	tracker.MarkShared()
	require.Len(t, tracker.Sections, 1)
	require.True(t, tracker.Sections[0].Shared)

	gen := warnings.NewGenerator()
	out := gen.CSWarnings(tracker)

	require.Contains(t, out, "Critical Section found in func: criticalWrite")
	require.Contains(t, out, "modified data: \n")
	require.Contains(t, out, "cfg")
	require.Contains(t, out, "Mode")
}

const atomicSharedSrc = `
package p

import "sync/atomic"

var counter int64

func kernelRead() int64 {
	return atomic.LoadInt64(&counter)
}

func driverIncrement() {
	atomic.AddInt64(&counter, 1)
}
`

func TestAtomicWarningsNumbersEachSharedAtomicOp(t *testing.T) {
	prog := buildWarningsProgram(t, atomicSharedSrc)

	var counterGlobal *ssa.Global
	for _, pkg := range prog.Packages {
		if member, ok := pkg.Members["counter"].(*ssa.Global); ok {
			counterGlobal = member
		}
	}
	require.NotNil(t, counterGlobal)

	g := pdg.NewGraph()
	reg := pdg.NewRegistry(g)
	tb := tree.NewBuilder(reg, dbginfo.NewInterner())
	in, _ := tb.BuildGlobalTree(prog, counterGlobal)
	g.Seal()

	cfg := &boundary.Config{ImportedFunc: map[string]bool{"p.kernelRead": true}}
	classifier := boundary.NewClassifier(cfg)
	sharedAnalyzer := shared.NewAnalyzer(g, tb, classifier)
	sharedAnalyzer.AnalyzeGlobalTree(in)
	require.NotEmpty(t, sharedAnalyzer.Shared)

	tracker := atomicregion.NewTracker()
	tracker.ComputeAtomicOperations(prog)
	require.NotEmpty(t, tracker.AtomicOps)
	tracker.SeedGlobalSharedPointers(g, tb, []pdg.NodeID{in}, sharedAnalyzer.Shared)
	tracker.ClosePropagation(prog)
	require.NotEmpty(t, tracker.AtomicOpsOnShared())

	gen := warnings.NewGenerator()
	out := gen.AtomicWarnings(tracker)

	require.Contains(t, out, "[WARNING 1 | ATOMIC OPERATION ON SHARED DATA]")
	require.Contains(t, out, "Line Number: ")
}
