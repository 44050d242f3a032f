package pdg

import (
	"go/types"

	"github.com/viant/kpdg/internal/logx"
	"github.com/viant/kpdg/ir"
)

// state is the PDG-construction lifecycle: empty -> building -> sealed.
// Edges/nodes are added only while building; Nodes/Neighbors/Reach are
// only valid once sealed, while Node and Edges may be read at any time.
type state uint8

const (
	stateEmpty state = iota
	stateBuilding
	stateSealed
)

type edgeKey struct {
	src, dst NodeID
	kind     EdgeKind
}

// Graph is the PDG: an append-only node arena addressed by stable IDs,
// with edges stored as per-node adjacency lists keyed by edge kind.
// Cycles (e.g. recursive calls, loop back-edges) are ordinary edges --
// nothing in the arena or adjacency representation assumes acyclicity.
type Graph struct {
	st    state
	nodes []*Node
	out   map[NodeID][]Edge
	seen  map[edgeKey]bool
}

// NewGraph returns an empty graph, ready to build.
func NewGraph() *Graph {
	return &Graph{
		st:   stateEmpty,
		out:  map[NodeID][]Edge{},
		seen: map[edgeKey]bool{},
	}
}

func (g *Graph) enterBuilding() {
	if g.st == stateSealed {
		logx.Fatalf("pdg: mutation attempted on a sealed graph")
	}
	g.st = stateBuilding
}

// AddNode assigns node a stable ID in call order and adds it to the
// arena, returning that ID.
func (g *Graph) AddNode(node *Node) NodeID {
	g.enterBuilding()
	node.ID = NodeID(len(g.nodes))
	g.nodes = append(g.nodes, node)
	return node.ID
}

// AddEdge adds src -> dst labeled kind. Idempotent per (src, dst, kind).
func (g *Graph) AddEdge(src, dst NodeID, kind EdgeKind) {
	g.enterBuilding()
	key := edgeKey{src, dst, kind}
	if g.seen[key] {
		return
	}
	g.seen[key] = true
	g.out[src] = append(g.out[src], Edge{Src: src, Dst: dst, Kind: kind})
}

// Seal transitions the graph to the sealed state. Further AddNode/
// AddEdge calls are a fatal invariant violation.
func (g *Graph) Seal() {
	g.st = stateSealed
}

// Sealed reports whether the graph has been sealed.
func (g *Graph) Sealed() bool { return g.st == stateSealed }

func (g *Graph) requireSealed(op string) {
	if g.st != stateSealed {
		logx.Fatalf("pdg: %s called before graph is sealed", op)
	}
}

// Node returns the node with the given ID.
func (g *Graph) Node(id NodeID) *Node {
	if int(id) >= len(g.nodes) {
		return nil
	}
	return g.nodes[id]
}

// Nodes returns every node in the graph, in ID order.
func (g *Graph) Nodes() []*Node {
	g.requireSealed("Nodes")
	return g.nodes
}

// Edges returns every outgoing edge of n.
func (g *Graph) Edges(n NodeID) []Edge {
	return g.out[n]
}

// Neighbors returns the distinct destination nodes reachable from n by a
// single edge whose kind is in kinds (all kinds, if kinds is empty).
func (g *Graph) Neighbors(n NodeID, kinds ...EdgeKind) []NodeID {
	g.requireSealed("Neighbors")
	allow := kindSet(kinds)
	seen := map[NodeID]bool{}
	var out []NodeID
	for _, e := range g.out[n] {
		if len(allow) > 0 && !allow[e.Kind] {
			continue
		}
		if !seen[e.Dst] {
			seen[e.Dst] = true
			out = append(out, e.Dst)
		}
	}
	return out
}

// Reach reports whether dst is reachable from src by a path that never
// uses an edge whose kind is in exclude, bounded by the node count.
func (g *Graph) Reach(src, dst NodeID, exclude ...EdgeKind) bool {
	g.requireSealed("Reach")
	if src == dst {
		return true
	}
	deny := kindSet(exclude)
	visited := map[NodeID]bool{src: true}
	queue := []NodeID{src}
	bound := len(g.nodes) + 1
	for len(queue) > 0 && bound > 0 {
		bound--
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.out[cur] {
			if deny[e.Kind] {
				continue
			}
			if e.Dst == dst {
				return true
			}
			if !visited[e.Dst] {
				visited[e.Dst] = true
				queue = append(queue, e.Dst)
			}
		}
	}
	return false
}

func kindSet(kinds []EdgeKind) map[EdgeKind]bool {
	if len(kinds) == 0 {
		return nil
	}
	m := make(map[EdgeKind]bool, len(kinds))
	for _, k := range kinds {
		m[k] = true
	}
	return m
}

// --- Node constructors -----------------------------------------------

// NewInstNode creates an Inst-kind node wrapping handle.
func NewInstNode(sub InstSubKind, handle ir.Handle) *Node {
	n := newNode(0, InstKind)
	n.InstSub = sub
	n.Handle = handle
	n.Func = handle.Fn
	n.DebugType = handle.Type
	return n
}

// NewVarNode creates a Var-kind node.
func NewVarNode(sub VarSubKind, global *ir.Global, name string) *Node {
	n := newNode(0, VarKind)
	n.VarSub = sub
	n.Global = global
	n.Name = name
	if global != nil {
		n.DebugType = global.Type()
	}
	return n
}

// NewFunctionEntryNode creates the single FunctionEntry node for fn.
func NewFunctionEntryNode(fn *ir.Function, userAnnotation string) *Node {
	n := newNode(0, FunctionEntryKind)
	n.Func = fn
	n.EntryFunc = fn
	n.UserAnnotation = userAnnotation
	return n
}

// NewParamNode creates a parameter/object-tree node.
func NewParamNode(sub ParamSubKind, fn *ir.Function, paramIndex int, debugType types.Type) *Node {
	n := newNode(0, ParamKind)
	n.ParamSub = sub
	n.Func = fn
	n.ParamIndex = paramIndex
	n.DebugType = debugType
	return n
}

// NewAnnotationNode creates an Annotation node.
func NewAnnotationNode(sub AnnotationSubKind, name string) *Node {
	n := newNode(0, AnnotationKind)
	n.AnnotSub = sub
	n.Name = name
	return n
}
