package atomicregion_test

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
)

func buildAtomicProgram(t *testing.T, src string) *ir.Program {
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

const lockUnlockSrc = `
package p

func mutex_lock() {}
func mutex_unlock() {}
func doWork() {}

func criticalWork() {
	mutex_lock()
	doWork()
	mutex_unlock()
}
`

func TestComputeCriticalSectionsPairsLockAndUnlock(t *testing.T) {
	prog := buildAtomicProgram(t, lockUnlockSrc)

	tracker := atomicregion.NewTracker()
	tracker.ComputeCriticalSections(prog)

	require.Len(t, tracker.Sections, 1)
	cs := tracker.Sections[0]
	require.Equal(t, "criticalWork", cs.Func.Name())
	require.NotEmpty(t, cs.Insts, "expected the doWork() call between lock and unlock")
}

const sharedCriticalSrc = `
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

func TestSharedPointerClosureMarksCriticalSectionShared(t *testing.T) {
	prog := buildAtomicProgram(t, sharedCriticalSrc)

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
	require.True(t, tracker.Sections[0].Shared, "critical section writes cfg.Mode, a cross-domain shared field")
}
