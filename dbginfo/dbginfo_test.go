package dbginfo_test

import (
	"go/types"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/kpdg/dbginfo"
)

func structType(fields ...*types.Var) *types.Struct {
	tags := make([]string, len(fields))
	return types.NewStruct(fields, tags)
}

func namedStruct(pkg *types.Package, name string, s *types.Struct) *types.Named {
	obj := types.NewTypeName(0, pkg, name, nil)
	return types.NewNamed(obj, s, nil)
}

func TestClassifyScalarAndPointer(t *testing.T) {
	i32 := types.Typ[types.Int32]
	require.Equal(t, dbginfo.Scalar, dbginfo.Classify(i32))

	ptr := types.NewPointer(i32)
	require.Equal(t, dbginfo.Other, dbginfo.Classify(ptr)) // pointer-to-scalar: not enumerated, falls to Other

	unsafePtr := types.Typ[types.UnsafePointer]
	require.Equal(t, dbginfo.VoidPtr, dbginfo.Classify(unsafePtr))
}

func TestClassifySeqPointer(t *testing.T) {
	i32 := types.Typ[types.Int32]
	seqPtr := types.NewPointer(types.NewPointer(i32))
	require.Equal(t, dbginfo.SeqPtr, dbginfo.Classify(seqPtr))
}

func TestClassifyStructAndPointer(t *testing.T) {
	pkg := types.NewPackage("example.com/p", "p")
	field := types.NewVar(0, pkg, "X", types.Typ[types.Int32])
	s := structType(field)
	named := namedStruct(pkg, "S", s)

	require.Equal(t, dbginfo.Struct, dbginfo.Classify(named))
	require.Equal(t, dbginfo.StructPtr, dbginfo.Classify(types.NewPointer(named)))
}

func TestClassifySentinel(t *testing.T) {
	pkg := types.NewPackage("example.com/p", "p")
	obj := types.NewTypeName(0, pkg, "Node", nil)
	named := types.NewNamed(obj, nil, nil)
	next := types.NewVar(0, pkg, "Next", types.NewPointer(named))
	val := types.NewVar(0, pkg, "Val", types.Typ[types.Int32])
	s := structType(val, next)
	named.SetUnderlying(s)

	require.Equal(t, dbginfo.SentinelArray, dbginfo.Classify(named))
	require.Equal(t, dbginfo.SentinelArray, dbginfo.Classify(types.NewPointer(named)))
}

func TestClassifyEnum(t *testing.T) {
	pkg := types.NewPackage("example.com/p", "p")
	obj := types.NewTypeName(0, pkg, "Color", nil)
	named := types.NewNamed(obj, types.Typ[types.Int32], nil)
	require.Equal(t, dbginfo.Enum, dbginfo.Classify(named))
}

func TestFieldIDAndFieldName(t *testing.T) {
	pkg := types.NewPackage("example.com/p", "p")
	anonField := types.NewField(0, pkg, "Embedded", types.Typ[types.Int32], true)
	regField := types.NewVar(0, pkg, "Count", types.Typ[types.Int32])
	ptrField := types.NewVar(0, pkg, "Next", types.NewPointer(types.Typ[types.Int32]))

	s := structType(anonField)
	named := namedStruct(pkg, "S", s)

	assert.Equal(t, "", dbginfo.FieldName(anonField))
	assert.Equal(t, "Count", dbginfo.FieldName(regField))

	id := dbginfo.FieldID(named, regField)
	assert.Equal(t, "S.Count", id)

	ptrID := dbginfo.FieldID(named, ptrField)
	assert.Equal(t, "S.Next*", ptrID)
}

func TestPrintableNameNormalizesWidths(t *testing.T) {
	assert.Equal(t, "i32", dbginfo.PrintableName(types.Typ[types.Int32]))
	assert.Equal(t, "u64", dbginfo.PrintableName(types.Typ[types.Uint64]))
	assert.Equal(t, "u32", dbginfo.PrintableName(types.Typ[types.Int]))
	assert.Equal(t, "void", dbginfo.PrintableName(nil))
}

func TestInternerCanonicalizesStructurallyEqualTypes(t *testing.T) {
	in := dbginfo.NewInterner()
	a := types.NewPointer(types.Typ[types.Int32])
	b := types.NewPointer(types.Typ[types.Int32])

	ca := in.Canonical(a)
	cb := in.Canonical(b)
	assert.Same(t, ca, cb)
}

func TestLowestCollapsesPointerNamedChains(t *testing.T) {
	pkg := types.NewPackage("example.com/p", "p")
	obj := types.NewTypeName(0, pkg, "IntAlias", nil)
	named := types.NewNamed(obj, types.Typ[types.Int32], nil)
	ptr := types.NewPointer(named)

	lowest := dbginfo.Lowest(ptr)
	assert.Equal(t, types.Typ[types.Int32], lowest)
}
