// Package mzn exports a sealed PDG as a MiniZinc data file: every node
// and edge grouped into a fixed category taxonomy, each category
// assigned a contiguous 1-based integer range, plus the parallel
// hasSource/hasDest/hasFunction/hasParamIdx/userAnnotatedFunction
// arrays a MiniZinc model indexes by those ranges.
package mzn

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/viant/kpdg/ir"
	"github.com/viant/kpdg/pdg"
)

// nodeCategory is the node taxonomy a MiniZinc model switches on.
// Order matches the exported range layout: individual kinds first,
// their collation immediately after the last member of the group they
// collate, exactly mirroring the original's enum declaration order
// (which the range-collation logic relies on).
type nodeCategory int

const (
	catInstFunCall nodeCategory = iota
	catInstRet
	catInstBr
	catInstOther
	catInst // collates InstFunCall..InstOther
	catVarStaticGlobal
	catVarStaticModule
	catVarStaticFunction
	catVarStaticOther
	catVarNode // collates VarStaticGlobal..VarStaticOther
	catFunctionEntry
	catParamFormalIn
	catParamFormalOut
	catParamActualIn
	catParamActualOut
	catParam // collates ParamFormalIn..ParamActualOut
	catAnnotationVar
	catAnnotationGlobal
	catAnnotationOther
	catAnnotation // collates AnnotationVar..AnnotationOther
	catPDGNode    // collates InstFunCall..AnnotationOther
	numNodeCategories
)

var nodeCategoryName = map[nodeCategory]string{
	catInstFunCall:        "Inst_FunCall",
	catInstRet:            "Inst_Ret",
	catInstBr:             "Inst_Br",
	catInstOther:          "Inst_Other",
	catInst:               "Inst",
	catVarStaticGlobal:    "VarNode_StaticGlobal",
	catVarStaticModule:    "VarNode_StaticModule",
	catVarStaticFunction:  "VarNode_StaticFunction",
	catVarStaticOther:     "VarNode_StaticOther",
	catVarNode:            "VarNode",
	catFunctionEntry:      "FunctionEntry",
	catParamFormalIn:      "Param_FormalIn",
	catParamFormalOut:     "Param_FormalOut",
	catParamActualIn:      "Param_ActualIn",
	catParamActualOut:     "Param_ActualOut",
	catParam:              "Param",
	catAnnotationVar:      "Annotation_Var",
	catAnnotationGlobal:   "Annotation_Global",
	catAnnotationOther:    "Annotation_Other",
	catAnnotation:         "Annotation",
	catPDGNode:            "PDGNode",
}

// nodeCollations maps a collating category to the first/last member
// category of the span it covers.
var nodeCollations = map[nodeCategory][2]nodeCategory{
	catInst:       {catInstFunCall, catInstOther},
	catVarNode:    {catVarStaticGlobal, catVarStaticOther},
	catParam:      {catParamFormalIn, catParamActualOut},
	catAnnotation: {catAnnotationVar, catAnnotationOther},
	catPDGNode:    {catInstFunCall, catAnnotationOther},
}

// edgeCategory is the edge taxonomy, analogous to nodeCategory.
type edgeCategory int

const (
	catCtrlCallInv edgeCategory = iota
	catCtrlIndirectCallInv
	catCtrlCallRet
	catCtrlEntry
	catCtrlBr
	catCtrlOther
	catCtrl // collates CtrlCallInv..CtrlOther
	catDataDefUse
	catDataRaw
	catDataRet
	catDataAlias
	catData // collates DataDefUse..DataAlias
	catParamIn
	catParamOut
	catParamField
	catParamEdge // collates ParamIn..ParamField
	catAnnoGlobal
	catAnnoVar
	catAnnoOther
	catAnno    // collates AnnoGlobal..AnnoOther
	catPDGEdge // collates CtrlCallInv..AnnoOther
	numEdgeCategories
)

var edgeCategoryName = map[edgeCategory]string{
	catCtrlCallInv:         "ControlDep_CallInv",
	catCtrlIndirectCallInv: "ControlDep_Indirect",
	catCtrlCallRet:         "ControlDep_CallRet",
	catCtrlEntry:           "ControlDep_Entry",
	catCtrlBr:              "ControlDep_Br",
	catCtrlOther:           "ControlDep_Other",
	catCtrl:                "ControlDep",
	catDataDefUse:          "DataDepEdge_DefUse",
	catDataRaw:             "DataDepEdge_RAW",
	catDataRet:             "DataDepEdge_Ret",
	catDataAlias:           "DataDepEdge_Alias",
	catData:                "DataDepEdge",
	catParamIn:             "Parameter_In",
	catParamOut:            "Parameter_Out",
	catParamField:          "Parameter_Field",
	catParamEdge:           "Parameter",
	catAnnoGlobal:          "Anno_Global",
	catAnnoVar:             "Anno_Var",
	catAnnoOther:           "Anno_Other",
	catAnno:                "Anno",
	catPDGEdge:             "PDGEdge",
}

var edgeCollations = map[edgeCategory][2]edgeCategory{
	catCtrl:      {catCtrlCallInv, catCtrlOther},
	catData:      {catDataDefUse, catDataAlias},
	catParamEdge: {catParamIn, catParamField},
	catAnno:      {catAnnoGlobal, catAnnoOther},
	catPDGEdge:   {catCtrlCallInv, catAnnoOther},
}

// nodeMznType classifies n into its node category. Every pdg.NodeKind
// has a direct mapping; ok is false only for a node that somehow
// carries neither a recognized Kind nor sub-kind.
func nodeMznType(n *pdg.Node) (nodeCategory, bool) {
	switch n.Kind {
	case pdg.InstKind:
		switch n.InstSub {
		case pdg.InstCall:
			return catInstFunCall, true
		case pdg.InstRet:
			return catInstRet, true
		case pdg.InstBr:
			return catInstBr, true
		default:
			return catInstOther, true
		}
	case pdg.VarKind:
		switch n.VarSub {
		case pdg.VarStaticGlobal:
			return catVarStaticGlobal, true
		case pdg.VarStaticModule:
			return catVarStaticModule, true
		case pdg.VarStaticFunction:
			return catVarStaticFunction, true
		default:
			return catVarStaticOther, true
		}
	case pdg.FunctionEntryKind:
		return catFunctionEntry, true
	case pdg.ParamKind:
		switch n.ParamSub {
		case pdg.FormalIn:
			return catParamFormalIn, true
		case pdg.FormalOut:
			return catParamFormalOut, true
		case pdg.ActualIn:
			return catParamActualIn, true
		default:
			return catParamActualOut, true
		}
	case pdg.AnnotationKind:
		switch n.AnnotSub {
		case pdg.AnnotVarSub:
			return catAnnotationVar, true
		case pdg.AnnotGlobalSub:
			return catAnnotationGlobal, true
		default:
			return catAnnotationOther, true
		}
	}
	return 0, false
}

// edgeMznType classifies an edge kind into its edge category. It sees
// only the kind; buildEdgeIndex then forces an edge with an
// annotation-var node on either end into the Anno_Var category,
// mirroring a rewrite the original exporter applies before grouping.
func edgeMznType(k pdg.EdgeKind) (edgeCategory, bool) {
	switch k {
	case pdg.CallInv:
		return catCtrlCallInv, true
	case pdg.IndirectCallInv:
		return catCtrlIndirectCallInv, true
	case pdg.CallRet:
		return catCtrlCallRet, true
	case pdg.CtrlEntry:
		return catCtrlEntry, true
	case pdg.CtrlBr:
		return catCtrlBr, true
	case pdg.CtrlOther:
		return catCtrlOther, true
	case pdg.DefUse:
		return catDataDefUse, true
	case pdg.Raw:
		return catDataRaw, true
	case pdg.RetDep:
		return catDataRet, true
	case pdg.Alias:
		return catDataAlias, true
	case pdg.ParamIn:
		return catParamIn, true
	case pdg.ParamOut:
		return catParamOut, true
	case pdg.ParamField:
		return catParamField, true
	case pdg.AnnotGlobal:
		return catAnnoGlobal, true
	case pdg.AnnotVar:
		return catAnnoVar, true
	case pdg.AnnotOther:
		return catAnnoOther, true
	}
	return 0, false
}

type nodeRange struct{ start, end int }
type edgeRange struct{ start, end int }

// nodeIndex is the result of assigning every node of a category
// a stable, contiguous 1-based index, grouped in ascending category
// order and, within a category, in ascending node-ID order.
type nodeIndex struct {
	ranges  map[nodeCategory]nodeRange
	ids     map[pdg.NodeID]int // 0-based
	ordered []*pdg.Node
}

type resolvedEdge struct {
	pdg.Edge
	cat edgeCategory
}

type edgeIndex struct {
	ranges  map[edgeCategory]edgeRange
	ordered []resolvedEdge
}

// Exporter renders a sealed PDG as MiniZinc data text.
type Exporter struct{}

// NewExporter returns an Exporter.
func NewExporter() *Exporter { return &Exporter{} }

// Export renders the entire .mzn data file for g, which must already be
// sealed.
func (e *Exporter) Export(g *pdg.Graph) string {
	ni := buildNodeIndex(g)
	ei := buildEdgeIndex(g, ni)
	hasFn := buildHasFn(g)

	var out strings.Builder
	exportNodeRanges(&out, ni)
	exportEdgeRanges(&out, ei)
	exportHasFn(&out, ni, hasFn)
	exportSrcDst(&out, ni, ei)
	exportParamIdx(&out, ni)
	exportUserAnnotated(&out, ni)
	fmt.Fprintf(&out, "MaxFuncParams = %d;\n", maxFuncParams(ni))
	exportConstraints(&out, g, ni)
	return out.String()
}

func buildNodeIndex(g *pdg.Graph) nodeIndex {
	grouped := map[nodeCategory][]*pdg.Node{}
	for _, n := range g.Nodes() {
		cat, ok := nodeMznType(n)
		if !ok {
			continue
		}
		grouped[cat] = append(grouped[cat], n)
	}

	ranges := map[nodeCategory]nodeRange{}
	ids := map[pdg.NodeID]int{}
	var ordered []*pdg.Node
	var cats []int
	for cat := range grouped {
		cats = append(cats, int(cat))
	}
	sort.Ints(cats)
	for _, c := range cats {
		cat := nodeCategory(c)
		start := len(ordered)
		for _, n := range grouped[cat] {
			ids[n.ID] = len(ordered)
			ordered = append(ordered, n)
		}
		ranges[cat] = nodeRange{start, len(ordered)}
	}
	return nodeIndex{ranges: ranges, ids: ids, ordered: ordered}
}

func buildEdgeIndex(g *pdg.Graph, ni nodeIndex) edgeIndex {
	grouped := map[edgeCategory][]pdg.Edge{}
	for _, n := range ni.ordered {
		for _, e := range g.Edges(n.ID) {
			cat, ok := edgeMznType(e.Kind)
			if !ok {
				continue
			}
			if forceAnnoVar(g, e) {
				cat = catAnnoVar
			}
			grouped[cat] = append(grouped[cat], e)
		}
	}

	ranges := map[edgeCategory]edgeRange{}
	var ordered []resolvedEdge
	var cats []int
	for cat := range grouped {
		cats = append(cats, int(cat))
	}
	sort.Ints(cats)
	for _, c := range cats {
		cat := edgeCategory(c)
		start := len(ordered)
		for _, e := range grouped[cat] {
			ordered = append(ordered, resolvedEdge{Edge: e, cat: cat})
		}
		ranges[cat] = edgeRange{start, len(ordered)}
	}
	return edgeIndex{ranges: ranges, ordered: ordered}
}

// forceAnnoVar reports whether e touches an annotation-var node on
// either end.
func forceAnnoVar(g *pdg.Graph, e pdg.Edge) bool {
	return isAnnotVarNode(g.Node(e.Src)) || isAnnotVarNode(g.Node(e.Dst))
}

func isAnnotVarNode(n *pdg.Node) bool {
	return n != nil && n.Kind == pdg.AnnotationKind && n.AnnotSub == pdg.AnnotVarSub
}

func calculateCollatedRangeNode(ranges map[nodeCategory]nodeRange, start, end nodeCategory) (nodeRange, bool) {
	first := start
	for first < end {
		if _, ok := ranges[first]; ok {
			break
		}
		first++
	}
	last := end
	for last > start {
		if _, ok := ranges[last]; ok {
			break
		}
		last--
	}
	fr, ok1 := ranges[first]
	lr, ok2 := ranges[last]
	if !ok1 || !ok2 {
		return nodeRange{}, false
	}
	return nodeRange{fr.start, lr.end}, true
}

func calculateCollatedRangeEdge(ranges map[edgeCategory]edgeRange, start, end edgeCategory) (edgeRange, bool) {
	first := start
	for first < end {
		if _, ok := ranges[first]; ok {
			break
		}
		first++
	}
	last := end
	for last > start {
		if _, ok := ranges[last]; ok {
			break
		}
		last--
	}
	fr, ok1 := ranges[first]
	lr, ok2 := ranges[last]
	if !ok1 || !ok2 {
		return edgeRange{}, false
	}
	return edgeRange{fr.start, lr.end}, true
}

func exportNodeRanges(out *strings.Builder, ni nodeIndex) {
	for i := nodeCategory(0); i < numNodeCategories; i++ {
		name := nodeCategoryName[i]
		if span, collated := nodeCollations[i]; collated {
			if r, ok := calculateCollatedRangeNode(ni.ranges, span[0], span[1]); ok {
				fmt.Fprintf(out, "%s_start = %d;\n%s_end = %d;\n", name, r.start+1, name, r.end)
				continue
			}
			fmt.Fprintf(out, "%s_start = 0;\n%s_end = -1;\n", name, name)
			continue
		}
		if r, ok := ni.ranges[i]; ok {
			fmt.Fprintf(out, "%s_start = %d;\n%s_end = %d;\n", name, r.start+1, name, r.end)
			continue
		}
		fmt.Fprintf(out, "%s_start = 0;\n%s_end = -1;\n", name, name)
	}
}

func exportEdgeRanges(out *strings.Builder, ei edgeIndex) {
	for i := edgeCategory(0); i < numEdgeCategories; i++ {
		name := edgeCategoryName[i]
		if span, collated := edgeCollations[i]; collated {
			if r, ok := calculateCollatedRangeEdge(ei.ranges, span[0], span[1]); ok {
				fmt.Fprintf(out, "%s_start = %d;\n%s_end = %d;\n", name, r.start+1, name, r.end)
				continue
			}
			fmt.Fprintf(out, "%s_start = 0;\n%s_end = -1;\n", name, name)
			continue
		}
		if r, ok := ei.ranges[i]; ok {
			fmt.Fprintf(out, "%s_start = %d;\n%s_end = %d;\n", name, r.start+1, name, r.end)
			continue
		}
		fmt.Fprintf(out, "%s_start = 0;\n%s_end = -1;\n", name, name)
	}
}

func exportVectorInt(out *strings.Builder, name string, items []int, asArray1dOf string) {
	if asArray1dOf != "" {
		fmt.Fprintf(out, "%s = array1d(%s, [\n", name, asArray1dOf)
	} else {
		fmt.Fprintf(out, "%s = [\n", name)
	}
	for i, v := range items {
		out.WriteString(strconv.Itoa(v))
		if i != len(items)-1 {
			out.WriteString(",")
		}
	}
	if asArray1dOf != "" {
		out.WriteString("\n]);\n")
	} else {
		out.WriteString("\n];\n")
	}
}

func exportVectorStr(out *strings.Builder, name string, items []string, asArray1dOf string) {
	if asArray1dOf != "" {
		fmt.Fprintf(out, "%s = array1d(%s, [\n", name, asArray1dOf)
	} else {
		fmt.Fprintf(out, "%s = [\n", name)
	}
	for i, v := range items {
		out.WriteString(v)
		if i != len(items)-1 {
			out.WriteString(",")
		}
	}
	if asArray1dOf != "" {
		out.WriteString("\n]);\n")
	} else {
		out.WriteString("\n];\n")
	}
}

func exportSrcDst(out *strings.Builder, ni nodeIndex, ei edgeIndex) {
	hasSrc := make([]int, 0, len(ei.ordered))
	hasDst := make([]int, 0, len(ei.ordered))
	for _, e := range ei.ordered {
		hasSrc = append(hasSrc, ni.ids[e.Src]+1)
		hasDst = append(hasDst, ni.ids[e.Dst]+1)
	}
	exportVectorInt(out, "hasSource", hasSrc, "")
	exportVectorInt(out, "hasDest", hasDst, "")
}

func buildHasFn(g *pdg.Graph) map[pdg.NodeID]pdg.NodeID {
	entryOf := map[*ir.Function]pdg.NodeID{}
	for _, n := range g.Nodes() {
		if n.Kind == pdg.FunctionEntryKind && n.EntryFunc != nil {
			entryOf[n.EntryFunc] = n.ID
		}
	}
	result := map[pdg.NodeID]pdg.NodeID{}
	for _, n := range g.Nodes() {
		if n.Func == nil {
			continue
		}
		if entryID, ok := entryOf[n.Func]; ok {
			result[n.ID] = entryID
		}
	}
	return result
}

func exportHasFn(out *strings.Builder, ni nodeIndex, hasFn map[pdg.NodeID]pdg.NodeID) {
	vec := make([]int, 0, len(ni.ordered))
	for _, n := range ni.ordered {
		if entryID, ok := hasFn[n.ID]; ok {
			vec = append(vec, ni.ids[entryID]+1)
		} else {
			vec = append(vec, 0)
		}
	}
	exportVectorInt(out, "hasFunction", vec, "")
}

func exportParamIdx(out *strings.Builder, ni nodeIndex) {
	var indices []int
	for _, n := range ni.ordered {
		cat, _ := nodeMznType(n)
		switch cat {
		case catParamFormalIn, catParamFormalOut, catParamActualIn, catParamActualOut:
		default:
			continue
		}
		if n.ParamIndex >= 0 {
			indices = append(indices, n.ParamIndex+1)
		} else {
			indices = append(indices, n.ParamIndex)
		}
	}
	exportVectorInt(out, "hasParamIdx", indices, "Param")
}

func exportUserAnnotated(out *strings.Builder, ni nodeIndex) {
	var vec []string
	for _, n := range ni.ordered {
		if n.Kind != pdg.FunctionEntryKind {
			continue
		}
		if n.UserAnnotation != "" {
			vec = append(vec, "true")
		} else {
			vec = append(vec, "false")
		}
	}
	exportVectorStr(out, "userAnnotatedFunction", vec, "FunctionEntry")
}

func maxFuncParams(ni nodeIndex) int {
	max := 0
	for _, n := range ni.ordered {
		if n.Kind != pdg.FunctionEntryKind || n.EntryFunc == nil {
			continue
		}
		if len(n.EntryFunc.Params) > max {
			max = len(n.EntryFunc.Params)
		}
	}
	return max
}

// exportConstraints emits one taint constraint per node carrying an
// annotation: a FunctionEntry's own user annotation, or the name of an
// annotation node reached via an outgoing Anno* edge.
func exportConstraints(out *strings.Builder, g *pdg.Graph, ni nodeIndex) {
	for i, n := range ni.ordered {
		anno, ok := nodeAnnotation(g, n)
		if !ok {
			continue
		}
		fmt.Fprintf(out, "constraint :: \"TaintOnNodeIdx%d\" taint[%d]=%s;\n", i+1, i+1, anno)
	}
}

func nodeAnnotation(g *pdg.Graph, n *pdg.Node) (string, bool) {
	if n.Kind == pdg.FunctionEntryKind && n.UserAnnotation != "" {
		return n.UserAnnotation, true
	}
	for _, e := range g.Edges(n.ID) {
		switch e.Kind {
		case pdg.AnnotVar, pdg.AnnotGlobal, pdg.AnnotOther:
			if target := g.Node(e.Dst); target != nil && target.Kind == pdg.AnnotationKind && target.Name != "" {
				return target.Name, true
			}
		}
	}
	return "", false
}
