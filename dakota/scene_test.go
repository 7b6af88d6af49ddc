package dakota

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/NOT-REAL-GAMES/dakota/dom"
	"github.com/NOT-REAL-GAMES/dakota/ecs"
)

func newTestScene(t *testing.T) *Scene {
	t.Helper()
	s, err := NewScene(nil, nil, goregular.TTF, 16)
	require.NoError(t, err)
	return s
}

func TestNewSceneHasDefaultFont(t *testing.T) {
	s := newTestScene(t)
	assert.True(t, s.defaultFont.Valid())
	_, ok := s.fontDescs.Get(s.defaultFont)
	assert.True(t, ok)
}

func TestCreateElementTreeAndNames(t *testing.T) {
	s := newTestScene(t)

	root := s.CreateElement()
	child := s.CreateElement()
	s.RegisterElementName("root", root)
	s.AddChildToElement(root, child)

	found, ok := s.ElementByName("root")
	require.True(t, ok)
	assert.Equal(t, root.ID(), found.ID())

	kids, _ := s.children.Get(root)
	require.Len(t, kids, 1)
	assert.Equal(t, child.ID(), kids[0].ID())

	s.AddChildToElement(root, child)
	kids, _ = s.children.Get(root)
	assert.Len(t, kids, 1, "adding an already-present child must not duplicate it")
}

func TestRemoveChildFromElement(t *testing.T) {
	s := newTestScene(t)
	root := s.CreateElement()
	a := s.CreateElement()
	b := s.CreateElement()
	s.AddChildToElement(root, a)
	s.AddChildToElement(root, b)

	s.RemoveChildFromElement(root, a)
	kids, _ := s.children.Get(root)
	require.Len(t, kids, 1)
	assert.Equal(t, b.ID(), kids[0].ID())
}

func TestMoveChildToFront(t *testing.T) {
	s := newTestScene(t)
	root := s.CreateElement()
	a := s.CreateElement()
	b := s.CreateElement()
	c := s.CreateElement()
	s.AddChildToElement(root, a)
	s.AddChildToElement(root, b)
	s.AddChildToElement(root, c)

	require.NoError(t, s.MoveChildToFront(root, a))
	kids, _ := s.children.Get(root)
	require.Len(t, kids, 3)
	assert.Equal(t, a.ID(), kids[2].ID(), "front of the subsurface order is the last child")
}

func TestMoveChildToFrontUnknownChildFails(t *testing.T) {
	s := newTestScene(t)
	root := s.CreateElement()
	a := s.CreateElement()
	s.AddChildToElement(root, a)

	other := s.CreateElement()
	err := s.MoveChildToFront(root, other)
	assert.ErrorIs(t, err, errChildNotFound)
}

func TestReorderChildrenElement(t *testing.T) {
	s := newTestScene(t)
	root := s.CreateElement()
	a := s.CreateElement()
	b := s.CreateElement()
	c := s.CreateElement()
	s.AddChildToElement(root, a)
	s.AddChildToElement(root, b)
	s.AddChildToElement(root, c)

	require.NoError(t, s.ReorderChildrenElement(root, SubsurfaceAbove, a, c))
	kids, _ := s.children.Get(root)
	ids := []ecs.ID{kids[0].ID(), kids[1].ID(), kids[2].ID()}
	assert.Equal(t, []ecs.ID{b.ID(), c.ID(), a.ID()}, ids)
}

func TestNeedsRefreshTracksMutations(t *testing.T) {
	s := newTestScene(t)
	s.clearNeedsRefresh()
	assert.False(t, s.NeedsRefresh())

	root := s.CreateElement()
	s.SetWidth(root, dom.Constant(10))
	assert.True(t, s.NeedsRefresh())

	s.clearNeedsRefresh()
	assert.False(t, s.NeedsRefresh())
}

func TestDefineResourceColorRejectsRedefinition(t *testing.T) {
	s := newTestScene(t)
	res := s.CreateResource()
	require.NoError(t, s.DefineResourceColor(res, dom.Color{R: 1, A: 1}))
	assert.True(t, s.IsResourceDefined(res))

	err := s.DefineResourceColor(res, dom.Color{G: 1, A: 1})
	assert.ErrorIs(t, err, errResourceAlreadyDefined)
}

func TestRecompileAndViewportHitTest(t *testing.T) {
	s := newTestScene(t)

	root := s.CreateElement()
	s.SetViewport(root, dom.Size[int32]{Width: 200, Height: 200})
	s.SetRoot(root)

	child := s.CreateElement()
	s.SetWidth(child, dom.Constant(50))
	s.SetHeight(child, dom.Constant(50))
	s.AddChildToElement(root, child)

	vout := NewVirtualOutput(200, 200)
	require.NoError(t, s.Recompile(vout))
	assert.False(t, s.NeedsRefresh())

	hit, err := s.GetViewportAtPosition(10, 10)
	require.NoError(t, err)
	assert.Equal(t, root.ID(), hit.ID())
}

func TestGetViewportAtPositionNoRoot(t *testing.T) {
	s := newTestScene(t)
	_, err := s.GetViewportAtPosition(0, 0)
	assert.ErrorIs(t, err, errNoRootElement)
}
