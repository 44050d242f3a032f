package access

import (
	"go/types"

	"golang.org/x/tools/go/ssa"

	"github.com/viant/kpdg/boundary"
	"github.com/viant/kpdg/dbginfo"
	"github.com/viant/kpdg/ir"
	"github.com/viant/kpdg/pdg"
	"github.com/viant/kpdg/tree"
)

// allocatorFuncs and deallocatorFuncs name the allocation/free calls
// [alloc(caller)]/[dealloc(caller)] trace a stored value back to or
// forward to, via def-use.
var (
	allocatorFuncs   = map[string]bool{"kmalloc": true, "malloc": true, "kzalloc": true, "zalloc": true}
	deallocatorFuncs = map[string]bool{"kfree": true}
)

// stringCallees lists the string-consuming calls that mark a field
// [string], matching shared.stringOps -- the same list, kept in its own
// copy so package access has no import-cycle dependency on shared.
var stringCallees = map[string]bool{
	"strcpy": true, "strncpy": true, "strlen": true, "strlcpy": true,
	"strcmp": true, "strncmp": true, "kobject_set_name": true,
}

func isStringConsumer(inst ssa.Instruction) bool {
	call, ok := inst.(*ssa.Call)
	if !ok {
		return false
	}
	callee := call.Common().StaticCallee()
	return callee != nil && stringCallees[callee.Name()]
}

// annotation names, matching the IDL grammar's annotation set.
const (
	AnnString  = "string"
	AnnOut     = "out"
	AnnAlloc   = "alloc(caller)"
	AnnDealloc = "dealloc(caller)"
)

// FieldResult is one field's inferred access kind, annotation set, and
// (for an array-typed field) inferred element count.
type FieldResult struct {
	Kind        Kind
	Annotations map[string]bool
	ArrayLen    int
	HasArrayLen bool
}

func (r *FieldResult) annotate(name string) {
	if r.Annotations == nil {
		r.Annotations = map[string]bool{}
	}
	r.Annotations[name] = true
}

// FunctionAccess is one function's per-field access + annotation map,
// flat across every argument tree the function declares -- fieldId is
// type-and-field-name keyed (dbginfo.FieldID), not function-scoped, so
// results from different functions merge directly by key.
type FunctionAccess struct {
	Fields map[string]*FieldResult
}

func newFunctionAccess() *FunctionAccess {
	return &FunctionAccess{Fields: map[string]*FieldResult{}}
}

func (fa *FunctionAccess) field(id string) *FieldResult {
	if id == "" {
		return nil
	}
	r, ok := fa.Fields[id]
	if !ok {
		r = &FieldResult{}
		fa.Fields[id] = r
	}
	return r
}

func (fa *FunctionAccess) join(id string, kind Kind) {
	if r := fa.field(id); r != nil {
		r.Kind = Join(r.Kind, kind)
	}
}

// merge applies other's entire field map onto fa, joining access kinds
// and unioning annotations -- the inter-procedural step of component H:
// a callee's whole inferred field map is merged into the caller's, not
// just the one field the call happened to pass.
func (fa *FunctionAccess) merge(other *FunctionAccess) {
	if other == nil {
		return
	}
	for id, src := range other.Fields {
		dst := fa.field(id)
		dst.Kind = Join(dst.Kind, src.Kind)
		for name := range src.Annotations {
			dst.annotate(name)
		}
		if src.HasArrayLen && !dst.HasArrayLen {
			dst.ArrayLen, dst.HasArrayLen = src.ArrayLen, true
		}
	}
}

// Annotator runs the per-cross-domain-function, bottom-up access +
// annotation inference (component H): intra-procedural join of
// valDep-bound instructions, inter-procedural join across direct calls,
// and annotation inference ([string], [out], [alloc(caller)],
// [dealloc(caller)], array length).
//
// Grounded on original_source/src/AccessInfoTracker.cpp's per-function
// access computation and def-use-based allocator/deallocator tracing.
type Annotator struct {
	tb         *tree.Builder
	g          *pdg.Graph
	classifier *boundary.Classifier
	stringIDs  map[string]bool // fieldId -> seen bound to a string-consuming callee

	results  map[*ir.Function]*FunctionAccess
	argTrees map[*ir.Function][]tree.ArgTree
	visiting map[*ir.Function]bool
}

// NewAnnotator returns an Annotator building trees via tb (reusing any
// trees tb has already built) and classifying domain membership via
// classifier.
func NewAnnotator(tb *tree.Builder, classifier *boundary.Classifier) *Annotator {
	return &Annotator{
		tb:         tb,
		g:          tb.Graph(),
		classifier: classifier,
		stringIDs:  map[string]bool{},
		results:    map[*ir.Function]*FunctionAccess{},
		argTrees:   map[*ir.Function][]tree.ArgTree{},
		visiting:   map[*ir.Function]bool{},
	}
}

// StringFields returns the fieldIds recorded as bound to a
// string-consuming callee by any function analyzed so far.
func (a *Annotator) StringFields() map[string]bool {
	return a.stringIDs
}

// AnalyzeFunction computes (and caches) fn's per-field access +
// annotation map, recursing bottom-up into fn's direct callees. A
// function still being analyzed higher up the call chain -- a cycle --
// contributes nothing, breaking the recursion (DFS pre-order
// tie-break).
func (a *Annotator) AnalyzeFunction(fn *ir.Function) *FunctionAccess {
	if fn == nil || len(fn.Blocks) == 0 {
		return newFunctionAccess()
	}
	if res, ok := a.results[fn]; ok {
		return res
	}
	if a.visiting[fn] {
		return newFunctionAccess()
	}
	a.visiting[fn] = true
	defer delete(a.visiting, fn)

	result := newFunctionAccess()
	for _, at := range a.argumentTrees(fn) {
		a.walk(at.In, result)
	}
	a.results[fn] = result
	return result
}

func (a *Annotator) argumentTrees(fn *ir.Function) []tree.ArgTree {
	if trees, ok := a.argTrees[fn]; ok {
		return trees
	}
	trees := a.tb.BuildArgumentTrees(fn)
	a.argTrees[fn] = trees
	return trees
}

// walk computes nodeID's own access kind, recording it (and any
// annotations) into result under its fieldId, recursing into children
// and joining their kinds (parents inherit the max of their children),
// and recursing inter-procedurally into any direct callee nodeID's
// address is passed to.
func (a *Annotator) walk(nodeID pdg.NodeID, result *FunctionAccess) Kind {
	node := a.g.Node(nodeID)
	id := FieldID(a.g, node)
	total := NoAccess

	for _, addr := range BoundAddrs(a.g, nodeID) {
		refs := addr.Referrers()
		if refs == nil {
			continue
		}
		for _, user := range *refs {
			if kind := Classify(user, addr); kind != NoAccess {
				total = Join(total, kind)
				if isStringConsumer(user) && id != "" {
					a.stringIDs[id] = true
				}
			}
			if call, ok := user.(*ssa.Call); ok {
				a.joinCall(call, addr, result)
			}
		}
		a.annotateAllocation(addr, id, result)
		a.annotateArrayLength(addr, id, result)
	}

	for _, childID := range a.tb.Children(nodeID) {
		if childKind := a.walk(childID, result); childKind != NoAccess {
			total = Join(total, childKind)
		}
	}

	if id != "" {
		result.join(id, total)
		if total == Write {
			result.field(id).annotate(AnnOut)
		}
		if a.stringIDs[id] {
			result.field(id).annotate(AnnString)
		}
	}
	return total
}

// joinCall handles the inter-procedural step: when addr is passed as an
// argument to a direct call, recurse into the callee's access map and
// merge it whole into result.
func (a *Annotator) joinCall(call *ssa.Call, addr ssa.Value, result *FunctionAccess) {
	callee := call.Common().StaticCallee()
	if callee == nil {
		return
	}
	if a.classifier != nil && !a.classifier.Allowed(ir.Symbol(callee)) {
		return
	}
	passed := false
	for _, arg := range call.Common().Args {
		if arg == addr {
			passed = true
			break
		}
	}
	if !passed {
		return
	}
	result.merge(a.AnalyzeFunction(callee))
}

// annotateAllocation marks id [alloc(caller)]/[dealloc(caller)] when a
// store into addr has its stored value reaching an allocator call, or a
// value loaded from addr is passed to a deallocator call, via def-use.
func (a *Annotator) annotateAllocation(addr ssa.Value, id string, result *FunctionAccess) {
	if id == "" {
		return
	}
	if IsAllocated(addr) {
		result.field(id).annotate(AnnAlloc)
	}
	if IsDeallocated(addr) {
		result.field(id).annotate(AnnDealloc)
	}
}

// IsAllocated reports whether a store into addr has its stored value
// tracing back, via def-use, to an allocator call -- usable on any
// bound pointer value, field-scoped or not (e.g. a root argument, for
// the IDL emitter's per-parameter annotation).
func IsAllocated(addr ssa.Value) bool {
	refs := addr.Referrers()
	if refs == nil {
		return false
	}
	for _, user := range *refs {
		if store, ok := user.(*ssa.Store); ok && store.Addr == addr && store.Val != addr {
			if reachesAllocator(store.Val, allocatorFuncs, 4) {
				return true
			}
		}
	}
	return false
}

// IsDeallocated reports whether addr's loaded value feeds a deallocator
// call -- a dealloc call consumes the pointer *value* held at addr, so
// it shows up downstream of a load from addr, not as a direct user.
func IsDeallocated(addr ssa.Value) bool {
	refs := addr.Referrers()
	if refs == nil {
		return false
	}
	for _, user := range *refs {
		if load, ok := user.(*ssa.UnOp); ok && load.X == addr {
			if feedsDeallocator(load, deallocatorFuncs) {
				return true
			}
		}
	}
	return false
}

// IsStringConsumed reports whether addr is bound to any string-consuming
// callee, directly -- the root-argument analog of the field-scoped
// [string] inference the walk loop performs via stringIDs.
func IsStringConsumed(addr ssa.Value) bool {
	refs := addr.Referrers()
	if refs == nil {
		return false
	}
	for _, user := range *refs {
		if isStringConsumer(user) {
			return true
		}
	}
	return false
}

func feedsDeallocator(loaded ssa.Value, names map[string]bool) bool {
	refs := loaded.Referrers()
	if refs == nil {
		return false
	}
	for _, user := range *refs {
		call, ok := user.(*ssa.Call)
		if !ok {
			continue
		}
		callee := call.Common().StaticCallee()
		if callee == nil || !names[callee.Name()] {
			continue
		}
		for _, arg := range call.Common().Args {
			if arg == loaded {
				return true
			}
		}
	}
	return false
}

// reachesAllocator walks v's def chain (through conversions and loads)
// up to depth steps, reporting whether it originates from a call to one
// of names.
func reachesAllocator(v ssa.Value, names map[string]bool, depth int) bool {
	for i := 0; i < depth && v != nil; i++ {
		switch u := v.(type) {
		case *ssa.Call:
			callee := u.Common().StaticCallee()
			return callee != nil && names[callee.Name()]
		case *ssa.Convert:
			v = u.X
		case *ssa.ChangeType:
			v = u.X
		case *ssa.UnOp:
			v = u.X
		default:
			return false
		}
	}
	return false
}

// annotateArrayLength attaches id's element count as reported by
// ArrayInfo. Byte/char arrays promote the field to [string] instead of
// attaching a length.
func (a *Annotator) annotateArrayLength(addr ssa.Value, id string, result *FunctionAccess) {
	if id == "" {
		return
	}
	length, isString, ok := ArrayInfo(addr)
	if !ok {
		return
	}
	if isString {
		result.field(id).annotate(AnnString)
		return
	}
	result.field(id).ArrayLen = length
	result.field(id).HasArrayLen = true
}

// ArrayInfo reports the length of the array addr points to, read from
// addr's own pointer-to-array type or, failing that, from the
// pointer-to-array type of a *ssa.ChangeType conversion of addr. The
// allocation site is not inspected: allocator calls and their size
// arguments play no part in the result. A byte/char element
// array reports isString instead of a length -- usable on any bound
// pointer value, field-scoped or not.
func ArrayInfo(addr ssa.Value) (length int, isString bool, ok bool) {
	arrType, found := arrayPointee(addr)
	if !found {
		if refs := addr.Referrers(); refs != nil {
			for _, user := range *refs {
				conv, isConv := user.(*ssa.ChangeType)
				if !isConv {
					continue
				}
				if at, isArr := arrayPointee(conv); isArr {
					arrType, found = at, true
					break
				}
			}
		}
	}
	if !found {
		return 0, false, false
	}
	if isByteElem(arrType.Elem()) {
		return 0, true, true
	}
	return int(arrType.Len()), false, true
}

func arrayPointee(v ssa.Value) (*types.Array, bool) {
	ptr, ok := v.Type().Underlying().(*types.Pointer)
	if !ok {
		return nil, false
	}
	arr, ok := ptr.Elem().Underlying().(*types.Array)
	return arr, ok
}

func isByteElem(t types.Type) bool {
	basic, ok := dbginfo.Strip(t).(*types.Basic)
	return ok && (basic.Kind() == types.Uint8 || basic.Kind() == types.Int8)
}
