package pdg

import (
	"go/types"
	"sort"
	"strconv"

	"golang.org/x/tools/go/ssa"

	"github.com/viant/kpdg/dbginfo"
	"github.com/viant/kpdg/ir"
)

// CandidateFilter narrows indirect-call candidate enumeration to a
// boundary-derived function set. A nil filter admits every candidate.
type CandidateFilter interface {
	Allowed(symbol string) bool
}

// ResolvedCall is reported once per (caller, call, callee) edge the
// assembler connects, direct or indirect, so that component F (package
// tree) can clone the callee's formal-in tree into an actual tree and
// wire parameter.in/out/field edges without pdg importing tree.
type ResolvedCall struct {
	Caller *ir.Function
	Call   *ssa.Call
	Callee *ir.Function
}

// Assemble implements component E: it resolves every call site in prog
// to controlDep.callInv / controlDep.indirectCallInv edges plus
// dataDep.ret edges, and reports each resolved (caller, call, callee)
// triple via onResolvedCall. filter may be nil.
func Assemble(reg *Registry, prog *ir.Program, filter CandidateFilter, onResolvedCall func(ResolvedCall)) {
	candidates := indexBySignature(prog.DefinedFunctions())

	for _, fn := range prog.DefinedFunctions() {
		reg.EntryNode(fn, "")
		for _, blk := range fn.Blocks {
			for _, instr := range blk.Instrs {
				call, ok := instr.(*ssa.Call)
				if !ok {
					continue
				}
				assembleCall(reg, call, candidates, filter, onResolvedCall)
			}
		}
	}
}

func assembleCall(reg *Registry, call *ssa.Call, candidates map[string][]*ir.Function, filter CandidateFilter, onResolvedCall func(ResolvedCall)) {
	callNode := reg.InstNode(ir.NewHandle(call), InstCall)
	caller := call.Parent()
	common := call.Common()

	if !common.IsInvoke() {
		if callee := common.StaticCallee(); callee != nil {
			connectCallee(reg, call, callNode, caller, callee, onResolvedCall)
			return
		}
	}

	var wantSig *types.Signature
	if common.IsInvoke() {
		wantSig, _ = common.Method.Type().(*types.Signature)
	} else {
		wantSig, _ = common.Value.Type().Underlying().(*types.Signature)
	}
	if wantSig == nil {
		return
	}

	key := signatureKey(wantSig)
	var names []string
	byName := map[string]*ir.Function{}
	for _, candidate := range candidates[key] {
		if !dbginfo.SignatureEqual(wantSig, candidate.Signature) {
			continue
		}
		symbol := ir.Symbol(candidate)
		if filter != nil && !filter.Allowed(symbol) {
			continue
		}
		names = append(names, symbol)
		byName[symbol] = candidate
	}
	sort.Strings(names) // tie-break lexicographic by symbol
	for _, name := range names {
		callee := byName[name]
		reg.G.AddEdge(callNode, reg.EntryNode(callee, ""), IndirectCallInv)
		wireReturns(reg, callee, callNode)
		if onResolvedCall != nil {
			onResolvedCall(ResolvedCall{Caller: caller, Call: call, Callee: callee})
		}
	}
}

func connectCallee(reg *Registry, call *ssa.Call, callNode NodeID, caller, callee *ir.Function, onResolvedCall func(ResolvedCall)) {
	reg.G.AddEdge(callNode, reg.EntryNode(callee, ""), CallInv)
	wireReturns(reg, callee, callNode)
	if onResolvedCall != nil {
		onResolvedCall(ResolvedCall{Caller: caller, Call: call, Callee: callee})
	}
}

// wireReturns emits dataDep.ret edges from callee's return instructions
// to the call node.
func wireReturns(reg *Registry, callee *ir.Function, callNode NodeID) {
	for _, blk := range callee.Blocks {
		for _, instr := range blk.Instrs {
			ret, ok := instr.(*ssa.Return)
			if !ok {
				continue
			}
			retNode := reg.InstNode(ir.NewHandle(ret), InstRet)
			reg.G.AddEdge(retNode, callNode, RetDep)
		}
	}
}

// indexBySignature groups fns by a coarse signature key (parameter
// count + stripped return-type name) so indirect-call candidate lookup
// need not scan every defined function; dbginfo.SignatureEqual still
// performs the exact comparison within a bucket.
func indexBySignature(fns []*ir.Function) map[string][]*ir.Function {
	out := map[string][]*ir.Function{}
	for _, fn := range fns {
		if fn.Signature == nil {
			continue
		}
		key := signatureKey(fn.Signature)
		out[key] = append(out[key], fn)
	}
	return out
}

func signatureKey(sig *types.Signature) string {
	ret := "void"
	if sig.Results().Len() > 0 {
		ret = dbginfo.PrintableName(dbginfo.Strip(sig.Results().At(0).Type()))
	}
	return strconv.Itoa(sig.Params().Len()) + ":" + ret
}
