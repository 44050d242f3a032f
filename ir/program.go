package ir

import (
	"fmt"
	"go/types"
	"sort"

	"golang.org/x/tools/go/callgraph"
	"golang.org/x/tools/go/callgraph/cha"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

// Program is the loaded, SSA-built module under analysis, together with
// a base CHA call graph built at load time. Call resolution does not
// consult it: direct calls use the static callee and indirect calls are
// resolved by signature match.
type Program struct {
	Prog     *ssa.Program
	Packages []*ssa.Package
	CallGraph *callgraph.Graph

	byName map[string]*ssa.Function
}

// Load builds an SSA program for the Go module rooted at dir, following
// the patterns given (typically "./...").
func Load(dir string, patterns ...string) (*Program, error) {
	if len(patterns) == 0 {
		patterns = []string{"./..."}
	}
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedCompiledGoFiles |
			packages.NeedImports | packages.NeedDeps | packages.NeedTypes |
			packages.NeedSyntax | packages.NeedTypesInfo,
		Dir: dir,
	}
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, fmt.Errorf("ir: loading packages from %s: %w", dir, err)
	}
	if packages.PrintErrors(pkgs) > 0 {
		return nil, fmt.Errorf("ir: errors while loading packages from %s", dir)
	}

	prog, ssaPkgs := ssautil.AllPackages(pkgs, ssa.InstantiateGenerics)
	prog.Build()

	var built []*ssa.Package
	for _, p := range ssaPkgs {
		if p != nil {
			built = append(built, p)
		}
	}

	p := &Program{
		Prog:      prog,
		Packages:  built,
		CallGraph: cha.CallGraph(prog),
	}
	p.Reindex()
	return p, nil
}

// Reindex (re)builds the symbol->function lookup table used by
// FunctionByName/AllFunctions/DefinedFunctions from Prog and Packages.
// Load calls this once; callers that assemble a Program by hand (e.g.
// from an in-memory ssautil.BuildPackage result) must call it before
// using those lookups.
func (p *Program) Reindex() {
	p.byName = map[string]*ssa.Function{}
	for fn := range ssautil.AllFunctions(p.Prog) {
		if fn == nil || fn.Pkg == nil {
			continue
		}
		p.byName[Symbol(fn)] = fn
	}
}

// Symbol returns the fully-qualified symbol name used throughout the
// boundary files: "<package path>.<function name>", with a "<Type>."
// receiver infix for methods.
func Symbol(fn *ssa.Function) string {
	if fn == nil {
		return ""
	}
	pkgPath := ""
	if fn.Pkg != nil {
		pkgPath = fn.Pkg.Pkg.Path()
	}
	if recv := fn.Signature.Recv(); recv != nil {
		tn := dereferencedTypeName(recv.Type())
		return fmt.Sprintf("%s.%s.%s", pkgPath, tn, fn.Name())
	}
	return fmt.Sprintf("%s.%s", pkgPath, fn.Name())
}

func dereferencedTypeName(t types.Type) string {
	if ptr, ok := t.(*types.Pointer); ok {
		t = ptr.Elem()
	}
	if named, ok := t.(*types.Named); ok {
		return named.Obj().Name()
	}
	return t.String()
}

// FunctionByName looks up a defined or declared function by its
// fully-qualified symbol (see Symbol).
func (p *Program) FunctionByName(symbol string) (*ssa.Function, bool) {
	fn, ok := p.byName[symbol]
	return fn, ok
}

// AllFunctions returns every function in the program (defined and
// declared-only), sorted lexicographically by symbol for deterministic
// iteration.
func (p *Program) AllFunctions() []*ssa.Function {
	fns := make([]*ssa.Function, 0, len(p.byName))
	for _, fn := range p.byName {
		fns = append(fns, fn)
	}
	sort.Slice(fns, func(i, j int) bool { return Symbol(fns[i]) < Symbol(fns[j]) })
	return fns
}

// DefinedFunctions returns AllFunctions filtered to functions with a body.
func (p *Program) DefinedFunctions() []*ssa.Function {
	var out []*ssa.Function
	for _, fn := range p.AllFunctions() {
		if len(fn.Blocks) > 0 {
			out = append(out, fn)
		}
	}
	return out
}

// Globals returns every package-level variable across the program,
// sorted by symbol.
func (p *Program) Globals() []*ssa.Global {
	var out []*ssa.Global
	for _, pkg := range p.Packages {
		names := make([]string, 0, len(pkg.Members))
		for name := range pkg.Members {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if g, ok := pkg.Members[name].(*ssa.Global); ok {
				out = append(out, g)
			}
		}
	}
	return out
}
