// Package boundary loads the cross-domain configuration that splits an
// analyzed module into "kernel" and "driver" trust domains, and derives
// the cross-domain function sets the shared-data, access, and
// atomic-region analyzers all depend on.
//
// Grounded on original_source/src/PDGUtils.cpp's GetBlackListFuncs /
// computeCrossDomainFuncs / computeTransitiveClosure /
// computeCrossDomainTransFuncs, reading the same eight boundary text
// files the original reads from the working directory.
package boundary

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/viant/afs"
	"golang.org/x/mod/modfile"
	"golang.org/x/tools/go/ssa"

	"github.com/viant/kpdg/internal/logx"
	"github.com/viant/kpdg/ir"
)

// File names as read from --boundary-dir, one function/field/global
// symbol per line.
const (
	ImportedFuncFile    = "imported_func.txt"
	DefinedFuncFile     = "defined_func.txt"
	StaticFuncPtrFile   = "static_funcptr.txt"
	StaticFuncFile      = "static_func.txt"
	LockFuncFile        = "lock_func.txt"
	DriverGlobalVarFile = "driver_globalvars.txt"
	LiblcdFuncsFile     = "liblcd_funcs.txt"
	WhitelistFuncsFile  = "whitelistfuncs.txt"
)

// Config holds the raw, line-per-symbol contents of every boundary file,
// after canonicalization to fully-qualified symbols (see Canonicalize).
// A missing file yields an empty set rather than an error: boundary
// input is optional per file, and downstream analyses degrade to an
// empty domain split rather than failing outright.
type Config struct {
	ImportedFunc     map[string]bool
	DefinedFunc      map[string]bool
	StaticFuncPtr    map[string]bool // field names, not canonicalized
	StaticFunc       map[string]bool
	LockFunc         map[string]bool
	DriverGlobalVars map[string]bool
	LiblcdFuncs      map[string]bool
	WhitelistFuncs   map[string]bool
}

// Load reads every boundary file under dir via afs, canonicalizing bare
// function identifiers against modulePath (the target module's declared
// import path, resolved from its go.mod -- see ResolveModulePath). A
// missing or unreadable file is a non-fatal warning; its set is empty.
func Load(ctx context.Context, dir, modulePath string) (*Config, error) {
	fs := afs.New()

	readSet := func(name string, canonicalize bool) map[string]bool {
		set := map[string]bool{}
		url := path.Join(dir, name)
		content, err := fs.DownloadWithURL(ctx, url)
		if err != nil {
			logx.Warnf("boundary: %s not readable, proceeding with empty set: %v", name, err)
			return set
		}
		scanner := bufio.NewScanner(bytes.NewReader(content))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if canonicalize {
				line = Canonicalize(modulePath, line)
			}
			set[line] = true
		}
		return set
	}

	cfg := &Config{
		ImportedFunc:     readSet(ImportedFuncFile, true),
		DefinedFunc:      readSet(DefinedFuncFile, true),
		StaticFuncPtr:    readSet(StaticFuncPtrFile, false),
		StaticFunc:       readSet(StaticFuncFile, true),
		LockFunc:         readSet(LockFuncFile, true),
		DriverGlobalVars: readSet(DriverGlobalVarFile, true),
		LiblcdFuncs:      readSet(LiblcdFuncsFile, true),
		WhitelistFuncs:   readSet(WhitelistFuncsFile, true),
	}
	return cfg, nil
}

// ResolveModulePath reads modFilePath (a go.mod) via afs and returns its
// declared module path, the same way
// inspector/repository/detector.go's extractGoModuleName does. An empty
// string is returned, with a warning, if the file cannot be read or
// parsed -- callers then canonicalize nothing and boundary entries are
// compared as already-qualified symbols.
func ResolveModulePath(ctx context.Context, modFilePath string) string {
	fs := afs.New()
	content, err := fs.DownloadWithURL(ctx, modFilePath)
	if err != nil {
		logx.Warnf("boundary: %s not readable: %v", modFilePath, err)
		return ""
	}
	mod, err := modfile.Parse(modFilePath, content, nil)
	if err != nil || mod.Module == nil {
		logx.Warnf("boundary: %s did not parse as a go.mod: %v", modFilePath, err)
		return ""
	}
	return mod.Module.Mod.Path
}

// Canonicalize maps a boundary-file entry onto ir.Symbol's
// "<package path>.<function name>" format. Entries already containing a
// "." (already package-qualified, or a "<Type>.<method>" receiver form)
// pass through unchanged; a bare identifier is assumed to live in
// modulePath's root package. modulePath == "" also passes entries
// through unchanged.
func Canonicalize(modulePath, entry string) string {
	if modulePath == "" || strings.Contains(entry, ".") {
		return entry
	}
	return fmt.Sprintf("%s.%s", modulePath, entry)
}

// Classifier answers cross-domain membership queries and implements
// pdg.CandidateFilter, so it can be passed directly as the indirect-call
// candidate filter: a candidate is Allowed only if it is not
// blacklisted.
type Classifier struct {
	cfg *Config
}

// NewClassifier returns a Classifier backed by cfg.
func NewClassifier(cfg *Config) *Classifier {
	return &Classifier{cfg: cfg}
}

// Allowed implements pdg.CandidateFilter: every candidate is admitted
// except those named in liblcd_funcs.txt.
func (c *Classifier) Allowed(symbol string) bool {
	return !c.cfg.LiblcdFuncs[symbol]
}

// InDriverDomain reports whether symbol names a driver-domain function:
// defined in defined_func.txt, or a body registered through a
// static-function-pointer callback (static_func.txt).
func (c *Classifier) InDriverDomain(symbol string) bool {
	return c.cfg.DefinedFunc[symbol] || c.cfg.StaticFunc[symbol]
}

// Domain is the trust domain a function or access belongs to.
type Domain uint8

const (
	Driver Domain = iota
	Kernel
)

func (d Domain) String() string {
	if d == Kernel {
		return "kernel"
	}
	return "driver"
}

// Domain classifies fn: Kernel if it is named in imported_func.txt (a
// declared-but-not-defined candidate for the kernel-to-driver
// interface) or has no body at all (declared-only, i.e. outside the
// analyzed module); Driver otherwise, i.e. a function the analyzed
// module actually defines.
func (c *Classifier) Domain(fn *ir.Function) Domain {
	if c.cfg.ImportedFunc[ir.Symbol(fn)] {
		return Kernel
	}
	if fn.Blocks == nil {
		return Kernel
	}
	return Driver
}

// StaticCallbackField reports whether fieldName names a driver-exported
// callback function pointer (static_funcptr.txt) -- such a field is
// always shared: read by the kernel when the callback fires, written by
// the driver when it registers the callback.
func (c *Classifier) StaticCallbackField(fieldName string) bool {
	return c.cfg.StaticFuncPtr[fieldName]
}

// CrossDomainFunctions returns the functions forming the kernel/driver
// boundary: non-blacklisted imported_func.txt entries (driver calling
// into the kernel) unioned with non-blacklisted static_func.txt entries
// (kernel calling back into the driver through a registered callback),
// restricted to functions prog actually defines -- grounded on
// computeCrossDomainFuncs. Declaration-only / blacklisted entries are
// silently skipped, matching the original's f->isDeclaration() ||
// f->empty() guard.
func (c *Classifier) CrossDomainFunctions(prog *ir.Program) []*ir.Function {
	var out []*ir.Function
	seen := map[*ir.Function]bool{}
	add := func(symbols map[string]bool) {
		for symbol := range symbols {
			if c.cfg.LiblcdFuncs[symbol] {
				continue
			}
			fn, ok := prog.FunctionByName(symbol)
			if !ok || fn.Blocks == nil || seen[fn] {
				continue
			}
			seen[fn] = true
			out = append(out, fn)
		}
	}
	add(c.cfg.ImportedFunc)
	add(c.cfg.StaticFunc)
	return out
}

// CrossDomainTransitiveClosure returns every function reachable, by
// direct static calls, from any function in CrossDomainFunctions(prog)
// -- grounded on computeTransitiveClosure / computeCrossDomainTransFuncs
// (a plain BFS over the direct-call edges each *ir.Function's
// instructions expose, rather than the base call graph, since an
// indirect call's candidates are not yet resolved at this point in the
// pipeline).
func (c *Classifier) CrossDomainTransitiveClosure(prog *ir.Program) []*ir.Function {
	roots := c.CrossDomainFunctions(prog)
	visited := map[*ir.Function]bool{}
	queue := append([]*ir.Function{}, roots...)
	for _, fn := range roots {
		visited[fn] = true
	}
	for len(queue) > 0 {
		fn := queue[0]
		queue = queue[1:]
		for _, callee := range directCallees(fn) {
			if visited[callee] {
				continue
			}
			visited[callee] = true
			queue = append(queue, callee)
		}
	}
	out := make([]*ir.Function, 0, len(visited))
	for fn := range visited {
		out = append(out, fn)
	}
	return out
}

func directCallees(fn *ir.Function) []*ir.Function {
	var out []*ir.Function
	for _, blk := range fn.Blocks {
		for _, instr := range blk.Instrs {
			call, ok := instr.(*ssa.Call)
			if !ok {
				continue
			}
			if callee := call.Common().StaticCallee(); callee != nil {
				out = append(out, callee)
			}
		}
	}
	return out
}
