package draw

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NOT-REAL-GAMES/dakota/dom"
	"github.com/NOT-REAL-GAMES/dakota/ecs"
	"github.com/NOT-REAL-GAMES/dakota/layout"
)

func TestSolidColorSurfaceIsConstructed(t *testing.T) {
	inst := ecs.NewInstance()
	tables := &Tables{
		Resources:      ecs.AddComponent[ecs.Entity](inst),
		ResourceImages: ecs.AddComponent[ecs.Entity](inst),
		ResourceColors: ecs.AddComponent[dom.Color](inst),
		TextFont:       ecs.AddComponent[ecs.Entity](inst),
		Viewports:      ecs.AddComponent[layout.Viewport](inst),
		Nodes:          ecs.AddComponent[layout.Node](inst),
		Glyphs:         NewGlyphCache(),
	}

	root := inst.CreateEntity()
	defer root.Release()
	resource := inst.CreateEntity()
	defer resource.Release()

	tables.Nodes.Set(root, layout.Node{
		Offset: dom.Offset[int32]{X: 10, Y: 20},
		Size:   dom.Size[int32]{Width: 100, Height: 50},
	})
	tables.Resources.Set(root, resource)
	tables.ResourceColors.Set(resource, dom.Color{R: 1, G: 0, B: 0, A: 1})

	trans := newTransaction(tables)
	surf, visible, err := trans.getDisplayrSurfForEl(nil, nil, root, dom.Offset[int32]{})
	require.NoError(t, err)
	require.True(t, visible)
	assert.True(t, surf.UseColor)
	assert.False(t, surf.HasImage)
	assert.Equal(t, dom.Color{R: 1, G: 0, B: 0, A: 1}, surf.Color)
	assert.Equal(t, Rect{X: 10, Y: 20, Width: 100, Height: 50}, surf.Rect)
}

func TestViewportNodeIgnoresItsOwnOffset(t *testing.T) {
	inst := ecs.NewInstance()
	tables := &Tables{
		Resources:      ecs.AddComponent[ecs.Entity](inst),
		ResourceImages: ecs.AddComponent[ecs.Entity](inst),
		ResourceColors: ecs.AddComponent[dom.Color](inst),
		TextFont:       ecs.AddComponent[ecs.Entity](inst),
		Viewports:      ecs.AddComponent[layout.Viewport](inst),
		Nodes:          ecs.AddComponent[layout.Node](inst),
		Glyphs:         NewGlyphCache(),
	}

	vpNode := inst.CreateEntity()
	defer vpNode.Release()
	tables.Nodes.Set(vpNode, layout.Node{
		Offset: dom.Offset[int32]{X: 30, Y: 40},
		Size:   dom.Size[int32]{Width: 200, Height: 200},
	})
	tables.Viewports.Set(vpNode, layout.Viewport{})

	trans := newTransaction(tables)
	surf, visible, err := trans.getDisplayrSurfForEl(nil, nil, vpNode, dom.Offset[int32]{})
	require.NoError(t, err)
	require.True(t, visible)
	assert.Equal(t, int32(0), surf.Rect.X)
	assert.Equal(t, int32(0), surf.Rect.Y)
}

func TestClampToParentBaseShrinksOverflowingChild(t *testing.T) {
	// Child starts 50px before the parent's left edge: its visible size
	// shrinks by that overhang and its offset clamps to the parent's edge.
	offset, size := clampToParentBase(300, -50, 0, 1000)
	assert.Equal(t, int32(0), offset)
	assert.Equal(t, int32(250), size)

	// Child extends 100px past the parent's right edge.
	offset, size = clampToParentBase(300, 900, 0, 1000)
	assert.Equal(t, int32(900), offset)
	assert.Equal(t, int32(100), size)

	// Child fully contained: untouched.
	offset, size = clampToParentBase(300, 100, 0, 1000)
	assert.Equal(t, int32(100), offset)
	assert.Equal(t, int32(300), size)
}

func TestResourceWithNoContentIsRejected(t *testing.T) {
	inst := ecs.NewInstance()
	tables := &Tables{
		Resources:      ecs.AddComponent[ecs.Entity](inst),
		ResourceImages: ecs.AddComponent[ecs.Entity](inst),
		ResourceColors: ecs.AddComponent[dom.Color](inst),
		TextFont:       ecs.AddComponent[ecs.Entity](inst),
		Viewports:      ecs.AddComponent[layout.Viewport](inst),
		Nodes:          ecs.AddComponent[layout.Node](inst),
		Glyphs:         NewGlyphCache(),
	}

	root := inst.CreateEntity()
	defer root.Release()
	resource := inst.CreateEntity()
	defer resource.Release()

	tables.Nodes.Set(root, layout.Node{Size: dom.Size[int32]{Width: 10, Height: 10}})
	tables.Resources.Set(root, resource)
	// No image, no color set on resource.

	trans := newTransaction(tables)
	_, _, err := trans.getDisplayrSurfForEl(nil, nil, root, dom.Offset[int32]{})
	assert.ErrorIs(t, err, errInvalidResourceContent)
}
