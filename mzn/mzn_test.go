package mzn_test

import (
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/viant/kpdg/ir"
	"github.com/viant/kpdg/mzn"
	"github.com/viant/kpdg/pdg"
)

func buildMznProgram(t *testing.T, src string) *ir.Program {
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

const directCallSrc = `
package p

func callee(x int) int { return x + 1 }

func caller(x int) int { return callee(x) }
`

func rangeOf(t *testing.T, out, name string) (int, int) {
	t.Helper()
	startKey := name + "_start = "
	endKey := name + "_end = "
	startIdx := strings.Index(out, startKey)
	endIdx := strings.Index(out, endKey)
	require.True(t, startIdx >= 0, "missing %s", startKey)
	require.True(t, endIdx >= 0, "missing %s", endKey)

	startLine := out[startIdx+len(startKey):]
	startLine = startLine[:strings.Index(startLine, ";")]
	endLine := out[endIdx+len(endKey):]
	endLine = endLine[:strings.Index(endLine, ";")]

	start, err := strconv.Atoi(strings.TrimSpace(startLine))
	require.NoError(t, err)
	end, err := strconv.Atoi(strings.TrimSpace(endLine))
	require.NoError(t, err)
	return start, end
}

func TestExportProducesContiguousNodeAndEdgeRangesForDirectCall(t *testing.T) {
	prog := buildMznProgram(t, directCallSrc)

	g := pdg.NewGraph()
	reg := pdg.NewRegistry(g)
	var resolved []pdg.ResolvedCall
	pdg.Assemble(reg, prog, nil, func(rc pdg.ResolvedCall) {
		resolved = append(resolved, rc)
	})
	g.Seal()
	require.Len(t, resolved, 1)

	exporter := mzn.NewExporter()
	out := exporter.Export(g)

	require.Contains(t, out, "PDGNode_start")
	require.Contains(t, out, "PDGEdge_start")
	require.Contains(t, out, "hasSource = [")
	require.Contains(t, out, "hasDest = [")
	require.Contains(t, out, "hasFunction = [")
	require.Contains(t, out, "MaxFuncParams = ")

	funCallStart, funCallEnd := rangeOf(t, out, "Inst_FunCall")
	require.True(t, funCallEnd >= funCallStart, "at least one call instruction must be present")

	entryStart, entryEnd := rangeOf(t, out, "FunctionEntry")
	require.Equal(t, 3, entryEnd-entryStart+1, "caller, callee and the package initializer init each get one FunctionEntry node")

	pdgStart, pdgEnd := rangeOf(t, out, "PDGNode")
	require.Equal(t, 1, pdgStart, "the PDGNode collation must start at the very first assigned index")
	require.True(t, pdgEnd > 0)
}
