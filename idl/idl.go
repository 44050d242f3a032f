// Package idl implements component J: deterministic textual IDL
// projection for every cross-domain function, following the grammar
// sketch:
//
//	module kernel { <rpc_decl | projection_decl>* }
//	rpc_decl        := "rpc" type name "(" params? ")" "{" projection_decl* "}"
//	projection_decl := "projection" typeName ref "{" field_decl* "};"
//	field_decl      := type annotation* name ";" | rpc_decl
//	annotation      := "[" ("string"|"out"|"alloc(caller)"|"dealloc(caller)"|"ioremap(caller)") "]"
//
// Grounded on original_source/src/AccessInfoTracker.cpp's
// generateIDLforFunc/generateIDLforArg/generateProjectionForTreeNode
// (BFS queue of pointer-to-struct nodes, one projection_decl emitted
// per dequeue, field lines restricted to accessed+shared fields,
// anonymous-field inlining, global "ops" struct dedup) and, for the
// string-building style, inspector/golang/emitter.go (teacher)'s
// strings.Builder-based Emit.
package idl

import (
	"fmt"
	"go/types"
	"sort"
	"strings"

	"golang.org/x/tools/go/ssa"

	"github.com/viant/kpdg/access"
	"github.com/viant/kpdg/boundary"
	"github.com/viant/kpdg/dbginfo"
	"github.com/viant/kpdg/ir"
	"github.com/viant/kpdg/pdg"
	"github.com/viant/kpdg/tree"
)

// Emitter renders the kernel.idl module text for a program's
// cross-domain functions.
type Emitter struct {
	Prog       *ir.Program
	TB         *tree.Builder
	Classifier *boundary.Classifier
	Annotator  *access.Annotator
	// Shared maps a canonical fieldId (access.FieldID/dbginfo.FieldID) to
	// true once component G has observed it accessed from both domains.
	Shared map[string]bool

	seenOps map[string]bool // global-ops dedup, first occurrence wins
}

// NewEmitter returns an Emitter wired to the given component outputs.
func NewEmitter(prog *ir.Program, tb *tree.Builder, classifier *boundary.Classifier, annotator *access.Annotator, shared map[string]bool) *Emitter {
	return &Emitter{
		Prog:       prog,
		TB:         tb,
		Classifier: classifier,
		Annotator:  annotator,
		Shared:     shared,
		seenOps:    map[string]bool{},
	}
}

type queuedProjection struct {
	id  pdg.NodeID
	ref string
}

// Emit renders the full module text, one rpc_decl per cross-domain
// function in lexicographic symbol order, followed by any global-ops
// projection_decls collected along the way.
func (e *Emitter) Emit() string {
	fns := e.crossDomainFunctions()

	var body, ops strings.Builder
	for _, fn := range fns {
		e.emitFunc(&body, &ops, fn)
	}

	var out strings.Builder
	out.WriteString("module kernel {\n")
	out.WriteString(body.String())
	out.WriteString(ops.String())
	out.WriteString("}\n")
	return out.String()
}

func (e *Emitter) crossDomainFunctions() []*ir.Function {
	seen := map[*ir.Function]bool{}
	var fns []*ir.Function
	for _, fn := range e.Classifier.CrossDomainFunctions(e.Prog) {
		if seen[fn] {
			continue
		}
		seen[fn] = true
		fns = append(fns, fn)
	}
	sort.Slice(fns, func(i, j int) bool { return ir.Symbol(fns[i]) < ir.Symbol(fns[j]) })
	return fns
}

func (e *Emitter) emitFunc(body, ops *strings.Builder, fn *ir.Function) {
	fa := e.Annotator.AnalyzeFunction(fn)
	argTrees := e.TB.BuildArgumentTrees(fn)

	params := make([]string, 0, len(fn.Params))
	var queue []queuedProjection
	for i, p := range fn.Params {
		if i >= len(argTrees) {
			break
		}
		rendered, queuedParam := e.renderParam(p, argTrees[i])
		params = append(params, rendered)
		if queuedParam != nil {
			queue = append(queue, *queuedParam)
		}
	}

	retType, retQueued := e.renderReturn(fn)

	body.WriteString(fmt.Sprintf("\trpc %s %s(%s) {\n", retType, fn.Name(), strings.Join(params, ", ")))
	if retQueued != nil {
		queue = append(queue, *retQueued)
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		e.emitProjection(body, ops, cur, fa, &queue)
	}
	body.WriteString("\t}\n\n")
}

// renderParam renders one formal parameter per the grammar's parameter
// rendering rules, returning a projection to queue for BFS emission
// when the parameter is a pointer to a projectable struct/union.
func (e *Emitter) renderParam(p *ssa.Parameter, at tree.ArgTree) (string, *queuedProjection) {
	g := e.TB.Graph()
	node := g.Node(at.In)
	name := p.Name()

	switch dbginfo.Classify(node.DebugType) {
	case dbginfo.StructPtr, dbginfo.UnionPtr:
		typeName := projectionTypeName(node.DebugType)
		rendered := fmt.Sprintf("projection %s%s *%s", typeName, e.rootAnnotations(at.In), name)
		return rendered, &queuedProjection{id: at.In, ref: name}
	case dbginfo.FuncPtr:
		return e.renderFuncSignature(node.DebugType, name), nil
	}

	for _, addr := range access.BoundAddrs(g, at.In) {
		if length, isString, ok := access.ArrayInfo(addr); ok {
			if isString {
				return fmt.Sprintf("char [string] *%s", name), nil
			}
			elem := "u8"
			if ptr, ok := dbginfo.Strip(node.DebugType).(*types.Pointer); ok {
				elem = dbginfo.PrintableName(ptr.Elem())
			}
			return fmt.Sprintf("array<%s, %d> *%s", elem, length, name), nil
		}
	}
	if _, ok := dbginfo.Strip(node.DebugType).(*types.Pointer); ok {
		for _, addr := range access.BoundAddrs(g, at.In) {
			if access.IsStringConsumed(addr) {
				return fmt.Sprintf("char [string] *%s", name), nil
			}
		}
	}
	return fmt.Sprintf("%s %s", dbginfo.PrintableName(node.DebugType), name), nil
}

// renderReturn renders fn's return type, queuing a projection when the
// result is a pointer to a projectable struct/union -- named "ret_" +
// typeName, matching generateIDLforArg's return-value naming.
func (e *Emitter) renderReturn(fn *ir.Function) (string, *queuedProjection) {
	rootID, ok := e.TB.BuildReturnTree(fn)
	if !ok {
		return returnTypeName(fn), nil
	}
	g := e.TB.Graph()
	node := g.Node(rootID)
	switch dbginfo.Classify(node.DebugType) {
	case dbginfo.StructPtr, dbginfo.UnionPtr:
		typeName := projectionTypeName(node.DebugType)
		ref := "ret_" + typeName
		rendered := fmt.Sprintf("projection %s%s", typeName, e.rootAnnotations(rootID))
		return rendered, &queuedProjection{id: rootID, ref: ref}
	}
	return dbginfo.PrintableName(node.DebugType), nil
}

func returnTypeName(fn *ir.Function) string {
	if fn.Signature.Results().Len() != 1 {
		return "void"
	}
	return dbginfo.PrintableName(fn.Signature.Results().At(0).Type())
}

// rootAnnotations computes a parameter/return root's own annotation
// string -- [string]/[out]/[alloc(caller)]/[dealloc(caller)], joined
// from every bound address's observed access and def-use traces. A root
// node has no fieldId of its own (access.Annotator's FunctionAccess is
// field-scoped), so this is computed directly rather than looked up.
func (e *Emitter) rootAnnotations(nodeID pdg.NodeID) string {
	g := e.TB.Graph()
	var anns []string
	kind := access.NoAccess
	for _, addr := range access.BoundAddrs(g, nodeID) {
		if refs := addr.Referrers(); refs != nil {
			for _, user := range *refs {
				kind = access.Join(kind, access.Classify(user, addr))
			}
		}
		if access.IsStringConsumed(addr) {
			anns = appendAnn(anns, access.AnnString)
		}
		if access.IsAllocated(addr) {
			anns = appendAnn(anns, access.AnnAlloc)
		}
		if access.IsDeallocated(addr) {
			anns = appendAnn(anns, access.AnnDealloc)
		}
	}
	if kind == access.Write {
		anns = appendAnn(anns, access.AnnOut)
	}
	return bracketed(anns)
}

// emitProjection renders one BFS-dequeued projection_decl: the fields of
// the struct/union cur's pointer node dereferences to, restricted to
// accessed+shared fields, queuing any struct-pointer field it discovers
// for later dequeue. Global "ops" structs are routed to ops instead of
// body and deduplicated, first occurrence wins.
func (e *Emitter) emitProjection(body, ops *strings.Builder, cur queuedProjection, fa *access.FunctionAccess, queue *[]queuedProjection) {
	g := e.TB.Graph()
	structID, ok := structChild(e.TB, cur.id)
	if !ok {
		return
	}
	typeName := projectionTypeName(g.Node(cur.id).DebugType)

	var fields strings.Builder
	e.emitStructFields(&fields, structID, fa, cur.ref, queue, 2)

	decl := fmt.Sprintf("\t\tprojection %s %s {\n%s\t\t};\n", typeName, cur.ref, fields.String())
	if isGlobalOps(typeName) {
		if e.seenOps[typeName] {
			return
		}
		e.seenOps[typeName] = true
		ops.WriteString(decl)
		return
	}
	body.WriteString(decl)
}

// emitStructFields writes one field_decl per accessed+shared field of
// the struct/union node structID into out, in debug-info declaration
// (child-index) order -- anonymous (embedded) fields inline their own
// fields directly rather than nesting a named projection.
func (e *Emitter) emitStructFields(out *strings.Builder, structID pdg.NodeID, fa *access.FunctionAccess, argRef string, queue *[]queuedProjection, indent int) {
	g := e.TB.Graph()
	for _, childID := range e.TB.Children(structID) {
		child := g.Node(childID)
		fname := access.FieldName(g, child)
		id := access.FieldID(g, child)
		result := fa.Fields[id]

		switch dbginfo.Classify(child.DebugType) {
		case dbginfo.StructPtr, dbginfo.UnionPtr:
			if fname == "" || !e.accessedAndShared(result, id) {
				continue
			}
			fieldTypeName := projectionTypeName(child.DebugType)
			ref := argRef + "_" + fname
			out.WriteString(fmt.Sprintf("%sprojection %s%s *%s;\n", indentStr(indent), fieldTypeName, e.fieldAnnotations(result), ref))
			*queue = append(*queue, queuedProjection{id: childID, ref: ref})

		case dbginfo.Struct, dbginfo.Union:
			if fname == "" {
				e.emitStructFields(out, childID, fa, argRef, queue, indent)
				continue
			}
			if !e.accessedAndShared(result, id) {
				continue
			}
			var nested strings.Builder
			e.emitStructFields(&nested, childID, fa, argRef, queue, indent+1)
			if nested.Len() == 0 {
				continue
			}
			out.WriteString(fmt.Sprintf("%sprojection %s {\n%s%s};\n", indentStr(indent), fname, nested.String(), indentStr(indent)))

		case dbginfo.FuncPtr:
			if fname == "" || e.Classifier == nil || !e.Classifier.StaticCallbackField(fname) {
				continue
			}
			if !e.accessedAndShared(result, id) {
				continue
			}
			callee := resolveCallback(e.Prog, fname)
			if callee == nil {
				continue
			}
			name := fname + "_" + callee.Name()
			out.WriteString(fmt.Sprintf("%s%s;\n", indentStr(indent), e.renderFuncSignature(child.DebugType, name)))

		default:
			if fname == "" || !e.accessedAndShared(result, id) {
				continue
			}
			out.WriteString(e.renderScalarField(child, fname, result, indent))
		}
	}
}

func (e *Emitter) renderScalarField(child *pdg.Node, fname string, result *access.FieldResult, indent int) string {
	if result != nil && result.HasArrayLen {
		elem := dbginfo.PrintableName(child.DebugType)
		return fmt.Sprintf("%sarray<%s, %d>%s %s;\n", indentStr(indent), elem, result.ArrayLen, e.fieldAnnotations(result), fname)
	}
	typeName := dbginfo.PrintableName(child.DebugType)
	if result != nil && result.Annotations[access.AnnString] {
		typeName = "char"
	}
	return fmt.Sprintf("%s%s%s %s;\n", indentStr(indent), typeName, e.fieldAnnotations(result), fname)
}

func (e *Emitter) accessedAndShared(result *access.FieldResult, id string) bool {
	if result == nil || result.Kind == access.NoAccess {
		return false
	}
	return e.Shared == nil || e.Shared[id]
}

func (e *Emitter) fieldAnnotations(result *access.FieldResult) string {
	if result == nil {
		return ""
	}
	var anns []string
	for _, name := range []string{access.AnnString, access.AnnOut, access.AnnAlloc, access.AnnDealloc} {
		if result.Annotations[name] {
			anns = appendAnn(anns, name)
		}
	}
	return bracketed(anns)
}

// renderFuncSignature renders t (a function-pointer debug type) as a
// nested rpc signature listing parameter type names only, e.g.
// "rpc void do_it_driver_do_it(u32)".
func (e *Emitter) renderFuncSignature(t types.Type, name string) string {
	sig, ok := dbginfo.Strip(dbginfo.Base(t)).(*types.Signature)
	if !ok {
		return fmt.Sprintf("rpc void %s()", name)
	}
	ret := "void"
	if sig.Results().Len() == 1 {
		ret = dbginfo.PrintableName(sig.Results().At(0).Type())
	} else if sig.Results().Len() > 1 {
		ret = dbginfo.PrintableName(sig.Results())
	}
	params := make([]string, 0, sig.Params().Len())
	for i := 0; i < sig.Params().Len(); i++ {
		params = append(params, dbginfo.PrintableName(sig.Params().At(i).Type()))
	}
	return fmt.Sprintf("rpc %s %s(%s)", ret, name, strings.Join(params, ", "))
}

// structChild returns the single child a pointer-kind node expands to --
// the node representing its pointee, which is itself the struct/union
// whose fields emitProjection lists.
func structChild(tb *tree.Builder, pointerNodeID pdg.NodeID) (pdg.NodeID, bool) {
	children := tb.Children(pointerNodeID)
	if len(children) == 0 {
		return 0, false
	}
	return children[0], true
}

// projectionTypeName names t's dereferenced struct/union type, the way
// a projection_decl's typeName is rendered -- Go has no "struct "
// keyword prefix to strip, unlike the C original.
func projectionTypeName(t types.Type) string {
	return dbginfo.PrintableName(dbginfo.Base(t))
}

// isGlobalOps reports whether typeName names a global operations-table
// struct, deduplicated across every function that references it --
// matching the original's substring heuristic.
func isGlobalOps(typeName string) bool {
	return strings.Contains(strings.ToLower(typeName), "ops")
}

func appendAnn(anns []string, name string) []string {
	for _, a := range anns {
		if a == name {
			return anns
		}
	}
	return append(anns, name)
}

func bracketed(anns []string) string {
	if len(anns) == 0 {
		return ""
	}
	var b strings.Builder
	for _, a := range anns {
		b.WriteString(" [")
		b.WriteString(a)
		b.WriteString("]")
	}
	return b.String()
}

func indentStr(depth int) string {
	return strings.Repeat("\t", depth)
}

// resolveCallback finds the function registered to a driver-exported
// callback field: a direct store of a function value (possibly wrapped
// in a closure, conversion, or type-change) into a FieldAddr for
// fieldName, across every defined function in prog -- the def-use-based
// analog of the original's pointer-analysis-derived registration map.
func resolveCallback(prog *ir.Program, fieldName string) *ir.Function {
	for _, fn := range prog.DefinedFunctions() {
		for _, blk := range fn.Blocks {
			for _, instr := range blk.Instrs {
				fa, ok := instr.(*ssa.FieldAddr)
				if !ok {
					continue
				}
				ptr, ok := fa.X.Type().Underlying().(*types.Pointer)
				if !ok {
					continue
				}
				st, ok := dbginfo.Strip(ptr.Elem()).(*types.Struct)
				if !ok || fa.Field >= st.NumFields() {
					continue
				}
				if dbginfo.FieldName(st.Field(fa.Field)) != fieldName {
					continue
				}
				if callee := registeredAt(fa); callee != nil {
					return callee
				}
			}
		}
	}
	return nil
}

func registeredAt(fa *ssa.FieldAddr) *ir.Function {
	refs := fa.Referrers()
	if refs == nil {
		return nil
	}
	for _, user := range *refs {
		store, ok := user.(*ssa.Store)
		if !ok || store.Addr != fa {
			continue
		}
		if f := funcValue(store.Val); f != nil {
			return f
		}
	}
	return nil
}

func funcValue(v ssa.Value) *ir.Function {
	switch u := v.(type) {
	case *ssa.Function:
		return u
	case *ssa.MakeClosure:
		return funcValue(u.Fn)
	case *ssa.ChangeType:
		return funcValue(u.X)
	case *ssa.Convert:
		return funcValue(u.X)
	default:
		return nil
	}
}
