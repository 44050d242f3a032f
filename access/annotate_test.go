package access_test

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

	"github.com/viant/kpdg/access"
	"github.com/viant/kpdg/dbginfo"
	"github.com/viant/kpdg/ir"
	"github.com/viant/kpdg/pdg"
	"github.com/viant/kpdg/tree"
)

const annotateSrc = `
package p

func kmalloc(n int) *int { return nil }
func kfree(p *int) {}

type Box struct {
	Data *int
}

func allocate(b *Box) {
	b.Data = kmalloc(4)
}

func release(b *Box) {
	kfree(b.Data)
}

func useBox(b *Box) {
	allocate(b)
	release(b)
}
`

func buildAnnotateProgram(t *testing.T, src string) *ir.Program {
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

func TestAnalyzeFunctionJoinsInterProceduralAccessAndAnnotations(t *testing.T) {
	prog := buildAnnotateProgram(t, annotateSrc)

	useBoxFn, ok := prog.FunctionByName("p.useBox")
	require.True(t, ok)

	g := pdg.NewGraph()
	reg := pdg.NewRegistry(g)
	tb := tree.NewBuilder(reg, dbginfo.NewInterner())

	annotator := access.NewAnnotator(tb, nil)
	result := annotator.AnalyzeFunction(useBoxFn)

	var found *access.FieldResult
	var foundID string
	for id, r := range result.Fields {
		if r.Kind == access.Write {
			found, foundID = r, id
		}
	}
	require.NotNil(t, found, "expected Box.Data's field result to be merged into useBox's map")
	require.Contains(t, foundID, "Data")
	require.True(t, found.Annotations[access.AnnOut], "WRITE access should annotate [out]")
	require.True(t, found.Annotations[access.AnnAlloc], "value stored into Data originates from kmalloc")
	require.True(t, found.Annotations[access.AnnDealloc], "Data's loaded value is passed to kfree")
}

func TestAnalyzeFunctionBreaksRecursionOnCycles(t *testing.T) {
	prog := buildAnnotateProgram(t, `
package p

type Node struct {
	Next *Node
}

func walk(n *Node) {
	walk(n.Next)
}
`)
	walkFn, ok := prog.FunctionByName("p.walk")
	require.True(t, ok)

	g := pdg.NewGraph()
	reg := pdg.NewRegistry(g)
	tb := tree.NewBuilder(reg, dbginfo.NewInterner())

	annotator := access.NewAnnotator(tb, nil)
	require.NotPanics(t, func() {
		annotator.AnalyzeFunction(walkFn)
	})
}
