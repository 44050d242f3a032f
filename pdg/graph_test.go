package pdg_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/kpdg/ir"
	"github.com/viant/kpdg/pdg"
)

func TestAddNodeAssignsSequentialIDs(t *testing.T) {
	g := pdg.NewGraph()
	n0 := g.AddNode(pdg.NewAnnotationNode(0, "trusted"))
	n1 := g.AddNode(pdg.NewAnnotationNode(0, "untrusted"))
	require.Equal(t, pdg.NodeID(0), n0)
	require.Equal(t, pdg.NodeID(1), n1)
}

func TestAddEdgeIsIdempotent(t *testing.T) {
	g := pdg.NewGraph()
	a := g.AddNode(pdg.NewAnnotationNode(0, "a"))
	b := g.AddNode(pdg.NewAnnotationNode(0, "b"))
	g.AddEdge(a, b, pdg.AnnotOther)
	g.AddEdge(a, b, pdg.AnnotOther)
	g.Seal()
	assert.Len(t, g.Edges(a), 1)
}

func TestSealForbidsFurtherMutation(t *testing.T) {
	g := pdg.NewGraph()
	g.AddNode(pdg.NewAnnotationNode(0, "a"))
	g.Seal()
	assert.True(t, g.Sealed())
}

func TestNeighborsFiltersByKind(t *testing.T) {
	g := pdg.NewGraph()
	a := g.AddNode(pdg.NewAnnotationNode(0, "a"))
	b := g.AddNode(pdg.NewAnnotationNode(0, "b"))
	c := g.AddNode(pdg.NewAnnotationNode(0, "c"))
	g.AddEdge(a, b, pdg.CallInv)
	g.AddEdge(a, c, pdg.DefUse)
	g.Seal()

	calls := g.Neighbors(a, pdg.CallInv)
	require.Equal(t, []pdg.NodeID{b}, calls)

	all := g.Neighbors(a)
	assert.ElementsMatch(t, []pdg.NodeID{b, c}, all)
}

func TestReachRespectsExclusion(t *testing.T) {
	g := pdg.NewGraph()
	a := g.AddNode(pdg.NewAnnotationNode(0, "a"))
	b := g.AddNode(pdg.NewAnnotationNode(0, "b"))
	c := g.AddNode(pdg.NewAnnotationNode(0, "c"))
	g.AddEdge(a, b, pdg.CtrlBr)
	g.AddEdge(b, c, pdg.DefUse)
	g.Seal()

	assert.True(t, g.Reach(a, c))
	assert.False(t, g.Reach(a, c, pdg.DefUse))
}

func TestFunctionEntryAndParamNodeConstructors(t *testing.T) {
	g := pdg.NewGraph()
	var fn *ir.Function
	entry := g.AddNode(pdg.NewFunctionEntryNode(fn, "trusted"))
	param := g.AddNode(pdg.NewParamNode(pdg.FormalIn, fn, 0, nil))

	require.NotNil(t, g.Node(entry))
	require.Equal(t, "trusted", g.Node(entry).UserAnnotation)
	require.Equal(t, 0, g.Node(param).ParamIndex)
}
