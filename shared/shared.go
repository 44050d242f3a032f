// Package shared implements component G: classifying which fields of a
// cross-domain global's type tree are observed from both the driver and
// kernel domains, and therefore must be kept in sync across the trust
// boundary rather than copied once.
//
// Grounded on original_source/src/AccessInfoTracker.cpp's
// computeSharedData (per global type tree, per-node access
// classification joined across the two domains) and on
// analyzer/info/datapoint.go + analyzer/touchpoint.go (teacher)'s
// DataPoint{Writes,Reads} touch-point shape, the direct model for
// tracking per-node access from multiple call sites.
package shared

import (
	"golang.org/x/tools/go/ssa"

	"github.com/viant/kpdg/access"
	"github.com/viant/kpdg/boundary"
	"github.com/viant/kpdg/dbginfo"
	"github.com/viant/kpdg/ir"
	"github.com/viant/kpdg/pdg"
	"github.com/viant/kpdg/stats"
	"github.com/viant/kpdg/tree"
)

// stringOps lists the string-consuming callees that mark a field as a
// string field, regardless of domain.
var stringOps = map[string]bool{
	"strcpy": true, "strncpy": true, "strlen": true, "strlcpy": true,
	"strcmp": true, "strncmp": true, "kobject_set_name": true,
}

// Analyzer accumulates shared-field and string-field membership across
// every global type tree it is asked to analyze.
type Analyzer struct {
	g          *pdg.Graph
	tb         *tree.Builder
	classifier *boundary.Classifier

	// Shared maps a canonical fieldId (dbginfo.FieldID) to true once any
	// access to it has been observed from both domains.
	Shared map[string]bool
	// StringFields maps a fieldId to true once a bound instruction feeds
	// a string-consuming callee.
	StringFields map[string]bool

	// Stats, if set, is incremented once per newly discovered shared
	// struct/struct-pointer field and once per distinct function touched
	// while walking a global's tree. Left nil, counting is skipped.
	Stats *stats.Counters

	seenFuncs map[*ir.Function]bool
}

// NewAnalyzer returns an Analyzer reading tree bindings from g (sealed or not),
// resolving tree structure via tb and domain membership via classifier.
func NewAnalyzer(g *pdg.Graph, tb *tree.Builder, classifier *boundary.Classifier) *Analyzer {
	return &Analyzer{
		g:            g,
		tb:           tb,
		classifier:   classifier,
		Shared:       map[string]bool{},
		StringFields: map[string]bool{},
		seenFuncs:    map[*ir.Function]bool{},
	}
}

// AnalyzeGlobalTree walks the formalIn (read-side) tree rooted at root --
// built by tree.Builder.BuildGlobalTree -- marking every field reachable
// from root that is accessed from both domains.
func (a *Analyzer) AnalyzeGlobalTree(root pdg.NodeID) {
	a.walk(root)
}

func (a *Analyzer) walk(nodeID pdg.NodeID) access.Kind {
	node := a.g.Node(nodeID)
	total := access.NoAccess
	sawDriver, sawKernel := false, false

	for _, addr := range access.BoundAddrs(a.g, nodeID) {
		fn := owningFunction(addr)
		if fn != nil && a.Stats != nil && !a.seenFuncs[fn] {
			a.seenFuncs[fn] = true
			a.Stats.FuncForAnalyzingSharedData++
		}
		domain := boundary.Driver
		if a.classifier != nil && fn != nil {
			domain = a.classifier.Domain(fn)
		}
		refs := addr.Referrers()
		if refs == nil {
			continue
		}
		for _, user := range *refs {
			kind := access.Classify(user, addr)
			if kind == access.NoAccess {
				continue
			}
			total = access.Join(total, kind)
			if domain == boundary.Driver {
				sawDriver = true
			} else {
				sawKernel = true
			}
			if isStringConsumer(user) {
				a.markStringField(node)
			}
		}
	}

	for _, childID := range a.tb.Children(nodeID) {
		childKind := a.walk(childID)
		if childKind != access.NoAccess {
			total = access.Join(total, childKind)
		}
	}

	if a.isAlwaysSharedCallback(node) || (sawDriver && sawKernel) {
		a.markShared(node)
	}

	return total
}

// isAlwaysSharedCallback implements the static-callback special case: a
// function-pointer field registered through static_funcptr.txt is
// always shared, independent of observed accesses.
func (a *Analyzer) isAlwaysSharedCallback(node *pdg.Node) bool {
	if a.classifier == nil || !node.HasParent {
		return false
	}
	name := access.FieldName(a.g, node)
	return name != "" && a.classifier.StaticCallbackField(name)
}

// markShared records node's fieldId as shared, unless node's own debug
// type is an anonymous union -- unions are never shared directly, their
// parent is marked shared instead.
func (a *Analyzer) markShared(node *pdg.Node) {
	if dbginfo.Classify(node.DebugType) == dbginfo.Union && access.FieldName(a.g, node) == "" {
		if node.HasParent {
			a.markShared(a.g.Node(node.Parent))
		}
		return
	}
	id := access.FieldID(a.g, node)
	if id == "" {
		return
	}
	if !a.Shared[id] {
		kind := dbginfo.Classify(node.DebugType)
		if a.Stats != nil && (kind == dbginfo.Struct || kind == dbginfo.StructPtr) {
			a.Stats.SharedStructType++
		}
	}
	a.Shared[id] = true
}

func (a *Analyzer) markStringField(node *pdg.Node) {
	if id := access.FieldID(a.g, node); id != "" {
		a.StringFields[id] = true
	}
}

// owningFunction reports the function a bound address belongs to: a
// valDep-linked instruction value carries this via ssa.Instruction's
// Parent(), and a root node's parameter value carries it the same way --
// both *ssa.Instruction and *ssa.Parameter implement Parent().
func owningFunction(addr ssa.Value) *ir.Function {
	if p, ok := addr.(interface{ Parent() *ssa.Function }); ok {
		return p.Parent()
	}
	return nil
}

func isStringConsumer(inst ssa.Instruction) bool {
	call, ok := inst.(*ssa.Call)
	if !ok {
		return false
	}
	callee := call.Common().StaticCallee()
	return callee != nil && stringOps[callee.Name()]
}
