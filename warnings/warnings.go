// Package warnings renders the two human-readable finding reports the
// original tool wrote alongside its MiniZinc/IDL output: one block per
// critical section naming the shared data it reads and modifies, and
// one block per atomic operation that touches shared data.
package warnings

import (
	"fmt"
	"go/token"
	"go/types"
	"strings"

	"golang.org/x/tools/go/ssa"

	"github.com/viant/kpdg/atomicregion"
	"github.com/viant/kpdg/dbginfo"
)

const sectionRule = " ----------------------------------------------- \n"
const atomicRule = " ------------------------------------------------------- \n"

// Generator renders CSWarning/AtomicWarning report text from an
// atomicregion.Tracker's findings.
type Generator struct{}

// NewGenerator returns a Generator.
func NewGenerator() *Generator { return &Generator{} }

// CSWarnings renders one block per tracked critical section, in the
// order Tracker recorded them: the enclosing function, then every
// shared-data load inside the section ("read data"), then every
// shared-data store ("modified data").
func (g *Generator) CSWarnings(t *atomicregion.Tracker) string {
	var out strings.Builder
	for _, cs := range t.Sections {
		fmt.Fprintf(&out, "Critical Section found in func: %s\n", cs.Func.Name())

		out.WriteString("read data: \n")
		for _, inst := range cs.Insts {
			load, ok := inst.(*ssa.UnOp)
			if !ok || load.Op != token.MUL || !t.IsShared(load.X) {
				continue
			}
			fmt.Fprintf(&out, "\t%s\n", describeValue(load.X))
		}
		out.WriteString(sectionRule)

		out.WriteString("modified data: \n")
		for _, inst := range cs.Insts {
			store, ok := inst.(*ssa.Store)
			if !ok || !t.IsShared(store.Addr) {
				continue
			}
			fmt.Fprintf(&out, "\t%s\n", describeValue(store.Addr))
		}
		out.WriteString(sectionRule)
	}
	return out.String()
}

// AtomicWarnings renders one numbered block per atomic operation that
// touches the shared-pointer closure.
func (g *Generator) AtomicWarnings(t *atomicregion.Tracker) string {
	var out strings.Builder
	n := 0
	for _, inst := range t.AtomicOpsOnShared() {
		call, ok := inst.(*ssa.Call)
		if !ok || len(call.Common().Args) == 0 {
			continue
		}
		n++
		addr := call.Common().Args[0]
		fn := inst.Parent()

		out.WriteString(atomicRule)
		fmt.Fprintf(&out, "[WARNING %d | ATOMIC OPERATION ON SHARED DATA]: \n", n)
		fmt.Fprintf(&out, "Accessed in %s in function %s\n", position(fn, inst), fn.Name())
		fmt.Fprintf(&out, "substituted var: %s\n", describeValue(addr))
		fmt.Fprintf(&out, "Line Number: %d\n", line(fn, inst))
		fmt.Fprintf(&out, "Accessed IR Variable: %s\n", addr.Name())
	}
	return out.String()
}

func position(fn *ssa.Function, inst ssa.Instruction) string {
	if fn.Prog == nil {
		return "?"
	}
	pos := fn.Prog.Fset.Position(inst.Pos())
	if !pos.IsValid() {
		return "?"
	}
	return pos.Filename
}

func line(fn *ssa.Function, inst ssa.Instruction) int {
	if fn.Prog == nil {
		return 0
	}
	return fn.Prog.Fset.Position(inst.Pos()).Line
}

// describeValue names the data an instruction operand reads or writes:
// a global's qualified name, a field of a global as that qualified name
// plus the field name, any other struct field's type-qualified name, or
// the SSA register name as a last resort.
func describeValue(v ssa.Value) string {
	switch val := v.(type) {
	case *ssa.Global:
		if val.Pkg != nil {
			return val.Pkg.Pkg.Path() + "." + val.Name()
		}
		return val.Name()
	case *ssa.FieldAddr:
		if base, ok := val.X.(*ssa.Global); ok {
			if st, ok := dbginfo.Strip(dbginfo.Base(base.Type())).(*types.Struct); ok && val.Field < st.NumFields() {
				return describeValue(base) + "." + dbginfo.FieldName(st.Field(val.Field))
			}
		}
		return fieldAddrName(val)
	case *ssa.Field:
		return fieldAddrName(val)
	default:
		return v.Name()
	}
}

func fieldAddrName(v ssa.Value) string {
	var named types.Type
	var index int
	switch f := v.(type) {
	case *ssa.FieldAddr:
		named = dbginfo.Base(f.X.Type())
		index = f.Field
	case *ssa.Field:
		named = f.X.Type()
		index = f.Field
	default:
		return v.Name()
	}
	st, ok := dbginfo.Strip(named).(*types.Struct)
	if !ok || index >= st.NumFields() {
		return v.Name()
	}
	return dbginfo.PrintableName(named) + "." + dbginfo.FieldName(st.Field(index))
}
