// Command kpdg builds the cross-domain Program Dependency Graph for a
// Go module split into "kernel" and "driver" trust domains, and emits
// the derived IDL, MiniZinc instance, statistics, and warning reports.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path"
	"strings"

	"github.com/viant/afs"

	"github.com/viant/kpdg/access"
	"github.com/viant/kpdg/atomicregion"
	"github.com/viant/kpdg/boundary"
	"github.com/viant/kpdg/config"
	"github.com/viant/kpdg/controldep"
	"github.com/viant/kpdg/datadep"
	"github.com/viant/kpdg/dbginfo"
	"github.com/viant/kpdg/idl"
	"github.com/viant/kpdg/internal/logx"
	"github.com/viant/kpdg/ir"
	"github.com/viant/kpdg/ir/oracle"
	"github.com/viant/kpdg/mzn"
	"github.com/viant/kpdg/pdg"
	"github.com/viant/kpdg/shared"
	"github.com/viant/kpdg/stats"
	"github.com/viant/kpdg/tree"
	"github.com/viant/kpdg/warnings"
)

type flags struct {
	module      string
	patterns    string
	boundaryDir string
	out         string
	sharedData  bool
	configPath  string
}

func parseFlags(args []string) *flags {
	fs := flag.NewFlagSet("kpdg", flag.ExitOnError)
	f := &flags{}
	fs.StringVar(&f.module, "module", ".", "path to the Go module to analyze")
	fs.StringVar(&f.patterns, "patterns", "./...", "comma-separated go/packages patterns to load")
	fs.StringVar(&f.boundaryDir, "boundary-dir", "", "directory holding imported_func.txt and the other boundary files")
	fs.StringVar(&f.out, "out", ".", "output directory for kernel.idl, pdg_instance.mzn, and the stat/warning reports")
	fs.BoolVar(&f.sharedData, "sd", false, "enable shared-data optimization (project only accessed fields also observed shared)")
	fs.StringVar(&f.configPath, "config", "", "optional YAML config file; explicit flags override its fields")
	_ = fs.Parse(args)
	return f
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	f := parseFlags(args)
	ctx := context.Background()

	if f.configPath != "" {
		applyConfig(ctx, f, args)
	}

	modulePath := boundary.ResolveModulePath(ctx, path.Join(f.module, "go.mod"))

	patterns := strings.Split(f.patterns, ",")
	prog, err := ir.Load(f.module, patterns...)
	if err != nil {
		log.Printf("kpdg: loading %s: %v", f.module, err)
		return 1
	}

	boundaryCfg, err := boundary.Load(ctx, f.boundaryDir, modulePath)
	if err != nil {
		log.Printf("kpdg: loading boundary files from %s: %v", f.boundaryDir, err)
		return 1
	}
	classifier := boundary.NewClassifier(boundaryCfg)

	counters := &stats.Counters{}

	g := pdg.NewGraph()
	reg := pdg.NewRegistry(g)
	aliases := oracle.NewConservative()
	memDeps := oracle.NewConservative()
	for _, fn := range prog.DefinedFunctions() {
		datadep.Build(reg, fn, aliases, memDeps)
		controldep.Build(reg, fn)
	}

	// The graph stays in its building state through Assemble and every
	// tree-building call below (global trees, call-site parameter trees,
	// then every cross-domain function's argument trees via the
	// annotator/emitter and the atomic-region tracker) -- each of those
	// adds nodes. It is only sealed once no further mutation is possible,
	// just before mzn.Exporter.Export, which requires a sealed graph.
	tb := tree.NewBuilder(reg, dbginfo.NewInterner())
	tb.Stats = counters
	calleeArgTrees := map[*ir.Function][]tree.ArgTree{}

	pdg.Assemble(reg, prog, classifier, func(rc pdg.ResolvedCall) {
		callerDomain := classifier.Domain(rc.Caller)
		calleeDomain := classifier.Domain(rc.Callee)
		switch {
		case callerDomain == boundary.Driver && calleeDomain == boundary.Kernel:
			counters.DriverToKernelCalls++
		case callerDomain == boundary.Kernel && calleeDomain == boundary.Driver:
			counters.KernelToDriverCalls++
		}

		// Actual-parameter trees only clone cleanly for direct calls: a
		// non-invoke call's Args line up 1:1 with the callee's Params
		// (including an explicit receiver, if any), since go/ssa lifts
		// methods to ordinary functions before either list exists. An
		// invoke (interface-method) call's Args omit the receiver, so
		// this alignment would be off by one -- left unwired, same as a
		// widened indirect-call candidate whose Args/Params shapes are
		// only guaranteed to match in count, not in positional meaning.
		if rc.Call.Common().IsInvoke() || len(rc.Call.Common().Args) != len(rc.Callee.Params) {
			return
		}
		argTrees, ok := calleeArgTrees[rc.Callee]
		if !ok {
			argTrees = tb.BuildArgumentTrees(rc.Callee)
			calleeArgTrees[rc.Callee] = argTrees
		}
		callNode := reg.InstNode(ir.NewHandle(rc.Call), pdg.InstCall)
		tb.ConnectCallSite(callNode, rc.Caller, argTrees)
	})

	sharedAnalyzer := shared.NewAnalyzer(g, tb, classifier)
	sharedAnalyzer.Stats = counters
	var globalRoots []pdg.NodeID
	for _, gl := range prog.Globals() {
		in, _ := tb.BuildGlobalTree(prog, gl)
		globalRoots = append(globalRoots, in)
		sharedAnalyzer.AnalyzeGlobalTree(in)
		counters.GlobalVar++
	}
	for id := range sharedAnalyzer.Shared {
		if id != "" {
			counters.SharedGlobalVar++
		}
	}

	annotator := access.NewAnnotator(tb, classifier)

	// Argument-tree seeding is scoped to the cross-domain transitive
	// closure rather than every defined function: only a function
	// reachable from a boundary entry point can carry a shared field into
	// the IDL, so seeding beyond that closure cannot change MarkShared's
	// outcome.
	reachable := classifier.CrossDomainTransitiveClosure(prog)

	tracker := atomicregion.NewTracker()
	tracker.ComputeCriticalSections(prog)
	tracker.ComputeAtomicOperations(prog)
	tracker.SeedGlobalSharedPointers(g, tb, globalRoots, sharedAnalyzer.Shared)
	tracker.SeedArgumentSharedPointers(reachable, tb, sharedAnalyzer.Shared)
	tracker.ClosePropagation(prog)
	tracker.MarkShared()

	crossDomainFns := classifier.CrossDomainFunctions(prog)
	counters.FuncForAnalyzingAccessedFields = uint(len(crossDomainFns))

	fieldKinds := map[string]access.Kind{}
	for _, fn := range crossDomainFns {
		for id, res := range annotator.AnalyzeFunction(fn).Fields {
			if id == "" {
				continue
			}
			fieldKinds[id] = access.Join(fieldKinds[id], res.Kind)
		}
	}
	for id, kind := range fieldKinds {
		counters.TotalFields++
		switch {
		case kind == access.NoAccess:
			counters.NoAccessedFields++
		case f.sharedData && !sharedAnalyzer.Shared[id]:
			counters.EliminatedPrivateFields++
		default:
			counters.ProjectedFields++
		}
	}

	sharedForIDL := map[string]bool(nil)
	if f.sharedData {
		sharedForIDL = sharedAnalyzer.Shared
	}
	emitter := idl.NewEmitter(prog, tb, classifier, annotator, sharedForIDL)
	idlText := emitter.Emit()

	// Every call above that can still add pdg nodes (global/argument tree
	// construction, including the annotator's and emitter's own internal
	// BuildArgumentTrees calls) has now run; seal before the one
	// sealed-graph-only reader, mzn.Exporter.
	g.Seal()

	counters.CriticalSection = uint(len(tracker.Sections))
	counters.AtomicOperation = uint(len(tracker.AtomicOps))
	for _, cs := range tracker.Sections {
		if cs.Shared {
			counters.CriticalSectionSharedData++
		}
	}
	counters.AtomicOperationSharedData = uint(len(tracker.AtomicOpsOnShared()))

	mznText := mzn.NewExporter().Export(g)

	warn := warnings.NewGenerator()
	csWarnings := warn.CSWarnings(tracker)
	atomicWarnings := warn.AtomicWarnings(tracker)

	outputs := map[string]string{
		"kernel.idl":             idlText,
		"pdg_instance.mzn":       mznText,
		"ProjectionStats":        counters.ProjectionStats(),
		"KernelIdiomStats":       counters.KernelIdiomStats(),
		"KernelIdiomSharedStats": counters.KernelIdiomSharedStats(),
		"AtomicRegionStats":      counters.AtomicRegionStats(),
		"CSWarning.txt":          csWarnings,
		"AtomicWarning.txt":      atomicWarnings,
	}
	if err := writeOutputs(ctx, f.out, outputs); err != nil {
		log.Printf("kpdg: writing output to %s: %v", f.out, err)
		return 1
	}
	return 0
}

func writeOutputs(ctx context.Context, outDir string, files map[string]string) error {
	fs := afs.New()
	for name, content := range files {
		url := path.Join(outDir, name)
		if err := fs.Upload(ctx, url, 0o644, bytes.NewReader([]byte(content))); err != nil {
			return fmt.Errorf("writing %s: %w", url, err)
		}
	}
	return nil
}

// applyConfig loads the YAML config at f.configPath and fills in any
// flag the caller left at its zero value -- an explicit command-line
// flag always wins over the file.
func applyConfig(ctx context.Context, f *flags, args []string) {
	cfg, err := config.Load(ctx, f.configPath)
	if err != nil {
		logx.Warnf("%v", err)
		return
	}
	explicit := explicitFlags(args)
	if cfg.Module != "" && !explicit["module"] {
		f.module = cfg.Module
	}
	if cfg.BoundaryDir != "" && !explicit["boundary-dir"] {
		f.boundaryDir = cfg.BoundaryDir
	}
	if cfg.Out != "" && !explicit["out"] {
		f.out = cfg.Out
	}
	if len(cfg.Patterns) > 0 && !explicit["patterns"] {
		f.patterns = strings.Join(cfg.Patterns, ",")
	}
	if cfg.SharedData && !explicit["sd"] {
		f.sharedData = true
	}
}

// explicitFlags reports which flag names were actually passed on the
// command line, so config-file values only fill gaps.
func explicitFlags(args []string) map[string]bool {
	seen := map[string]bool{}
	for _, a := range args {
		a = strings.TrimLeft(a, "-")
		if i := strings.IndexByte(a, '='); i >= 0 {
			a = a[:i]
		}
		seen[a] = true
	}
	return seen
}
