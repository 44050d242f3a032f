// Package dbginfo is the debug-info adapter: a pure, stateless facade
// over the typed IR's debug metadata.
//
// kpdg analyzes Go programs lowered to golang.org/x/tools/go/ssa, whose
// values already carry a go/types.Type; that type plays the role DWARF
// debug types would otherwise play. Go has no cv-qualifiers and no
// "member" wrapper type, so Strip only has one real layer to peel: a
// *types.Named's underlying type (the analog of unwrapping a typedef).
package dbginfo

import (
	"go/types"
	"strconv"
	"strings"
)

// Kind is the debug-type classification lattice.
type Kind int

const (
	Other Kind = iota
	VoidPtr
	FuncPtr
	Struct
	StructPtr
	Union
	UnionPtr
	Array
	SentinelArray
	SeqPtr
	Scalar
	Enum
)

func (k Kind) String() string {
	switch k {
	case VoidPtr:
		return "void_ptr"
	case FuncPtr:
		return "func_ptr"
	case Struct:
		return "struct"
	case StructPtr:
		return "struct_ptr"
	case Union:
		return "union"
	case UnionPtr:
		return "union_ptr"
	case Array:
		return "array"
	case SentinelArray:
		return "sentinel_array"
	case SeqPtr:
		return "seq_ptr"
	case Scalar:
		return "scalar"
	case Enum:
		return "enum"
	default:
		return "other"
	}
}

// Strip peels the typedef-equivalent layer off t: a *types.Named's
// underlying type, or an alias's target. A nil type strips to nil.
func Strip(t types.Type) types.Type {
	if t == nil {
		return nil
	}
	t = types.Unalias(t)
	if named, ok := t.(*types.Named); ok {
		return named.Underlying()
	}
	return t
}

// Base returns the pointee of a pointer type, or t itself otherwise.
func Base(t types.Type) types.Type {
	if t == nil {
		return nil
	}
	if ptr, ok := Strip(t).(*types.Pointer); ok {
		return ptr.Elem()
	}
	return t
}

// Lowest repeatedly applies Strip then Base until a fixed point,
// collapsing pointer-to-named-to-pointer chains down to the innermost
// non-pointer, non-named type.
func Lowest(t types.Type) types.Type {
	if t == nil {
		return nil
	}
	for i := 0; i < 64; i++ { // generous bound; real chains are never this deep
		stripped := Strip(t)
		based := Base(stripped)
		if types.Identical(based, t) {
			return based
		}
		t = based
	}
	return t
}

// Classify assigns t to one of Kind's categories. Sentinel
// classification (a struct whose transitive member graph contains
// itself) is detected by walking the field graph of struct types.
func Classify(t types.Type) Kind {
	if t == nil {
		return Other
	}
	stripped := Strip(t)
	switch u := stripped.(type) {
	case *types.Basic:
		if u.Kind() == types.UnsafePointer {
			return VoidPtr
		}
		if isNamedBasic(t) {
			return Enum
		}
		return Scalar
	case *types.Pointer:
		elem := Strip(u.Elem())
		switch e := elem.(type) {
		case *types.Signature:
			return FuncPtr
		case *types.Struct:
			if isSelfReferential(e, map[*types.Struct]bool{}) {
				return SentinelArray
			}
			return StructPtr
		case *types.Interface:
			return UnionPtr
		case *types.Pointer:
			return SeqPtr
		default:
			return Other
		}
	case *types.Signature:
		return FuncPtr
	case *types.Struct:
		if isSelfReferential(u, map[*types.Struct]bool{}) {
			return SentinelArray
		}
		return Struct
	case *types.Interface:
		return Union
	case *types.Array, *types.Slice:
		return Array
	default:
		return Other
	}
}

// isNamedBasic reports whether t (before stripping) was a *types.Named
// wrapping a basic type -- Go's nearest analog of a C enum.
func isNamedBasic(t types.Type) bool {
	named, ok := types.Unalias(t).(*types.Named)
	if !ok {
		return false
	}
	_, ok = named.Underlying().(*types.Basic)
	return ok
}

// isSelfReferential reports whether s's transitive field-type graph
// (through pointers and embedded structs) reaches s itself -- the
// signature of a sentinel type (a null-terminated array-of-struct
// pattern, e.g. an intrusive linked-list node).
func isSelfReferential(s *types.Struct, visited map[*types.Struct]bool) bool {
	if visited[s] {
		return true
	}
	visited[s] = true
	for i := 0; i < s.NumFields(); i++ {
		ft := s.Field(i).Type()
		switch ftt := Strip(ft).(type) {
		case *types.Pointer:
			if ps, ok := Strip(ftt.Elem()).(*types.Struct); ok {
				if ps == s || isSelfReferential(ps, visited) {
					return true
				}
			}
		case *types.Struct:
			if ftt == s || isSelfReferential(ftt, visited) {
				return true
			}
		}
	}
	return false
}

// PointerFieldSuffix marks a pointer-typed field's canonical ID, to
// tie-break "the pointer field" from "the pointee" when both need a
// distinct identity.
const PointerFieldSuffix = "*"

// FieldID builds the canonical "parentTypeName + fieldName" key used to
// identify a field across translation units. It appends
// PointerFieldSuffix when the field itself has pointer type.
func FieldID(parent types.Type, field *types.Var) string {
	id := PrintableName(parent) + "." + FieldName(field)
	if _, ok := Strip(field.Type()).(*types.Pointer); ok {
		id += PointerFieldSuffix
	}
	return id
}

// FieldName returns "" for anonymous (embedded) fields, which triggers
// inlined projection of the embedded type's own fields.
func FieldName(field *types.Var) string {
	if field == nil || field.Embedded() {
		return ""
	}
	return field.Name()
}

// widthNormalize maps Go's basic kinds onto fixed-width display names
// ("int→u32, long long→u64").
var widthNormalize = map[types.BasicKind]string{
	types.Int8:    "i8",
	types.Uint8:   "u8",
	types.Int16:   "i16",
	types.Uint16:  "u16",
	types.Int32:   "i32",
	types.Uint32:  "u32",
	types.Int64:   "i64",
	types.Uint64:  "u64",
	types.Int:     "u32",
	types.Uint:    "u32",
	types.Uintptr: "u64",
	types.Bool:    "bool",
	types.String:  "string",
	types.Float32: "f32",
	types.Float64: "f64",
}

// SignatureEqual reports whether two function signatures match under the
// indirect-call resolution rule: same stripped parameter types in
// order, same stripped return type. Receivers are ignored -- candidates
// are compared as call targets, not as methods.
func SignatureEqual(a, b *types.Signature) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Params().Len() != b.Params().Len() {
		return false
	}
	for i := 0; i < a.Params().Len(); i++ {
		if !types.Identical(Strip(a.Params().At(i).Type()), Strip(b.Params().At(i).Type())) {
			return false
		}
	}
	return types.Identical(Strip(returnType(a)), Strip(returnType(b)))
}

// returnType returns sig's single logical return type: void (nil) for no
// results, the sole result type for one, or the tuple type for more
// than one -- Go's multi-value return has no C analog, so this is the
// Go-specific extension point.
func returnType(sig *types.Signature) types.Type {
	switch sig.Results().Len() {
	case 0:
		return nil
	case 1:
		return sig.Results().At(0).Type()
	default:
		return sig.Results()
	}
}

// PrintableName renders t C-like, normalizing integer widths. A nil
// type renders as "void".
func PrintableName(t types.Type) string {
	if t == nil {
		return "void"
	}
	switch u := t.(type) {
	case *types.Named:
		return u.Obj().Name()
	case *types.Basic:
		if name, ok := widthNormalize[u.Kind()]; ok {
			return name
		}
		return u.Name()
	case *types.Pointer:
		if u.Elem() == nil {
			return "void*"
		}
		return PrintableName(u.Elem()) + "*"
	case *types.Struct:
		return "struct{" + strconv.Itoa(u.NumFields()) + " fields}"
	case *types.Interface:
		return "interface"
	case *types.Signature:
		return "func"
	case *types.Array:
		return "[" + strconv.FormatInt(u.Len(), 10) + "]" + PrintableName(u.Elem())
	case *types.Slice:
		return "[]" + PrintableName(u.Elem())
	default:
		return strings.TrimSpace(t.String())
	}
}
