package dakota

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NOT-REAL-GAMES/dakota/dom"
)

func TestVirtualOutputSetSize(t *testing.T) {
	v := NewVirtualOutput(100, 200)
	assert.Equal(t, dom.Size[int32]{Width: 100, Height: 200}, v.Size())

	v.SetSize(dom.Size[int32]{Width: 50, Height: 60})
	assert.Equal(t, dom.Size[int32]{Width: 50, Height: 60}, v.Size())
}

func TestVirtualOutputPushEventMouseMoveAccumulates(t *testing.T) {
	v := NewVirtualOutput(100, 100)
	v.PushEvent(PlatformEvent{Kind: PlatformEventInputMouseMove, DX: 5, DY: -3})
	assert.Equal(t, dom.Offset[int32]{X: 5, Y: -3}, v.MousePos())

	v.PushEvent(PlatformEvent{Kind: PlatformEventInputMouseMove, DX: 2, DY: 2})
	assert.Equal(t, dom.Offset[int32]{X: 7, Y: -1}, v.MousePos())
}

func TestVirtualOutputPushEventButtonStampsAbsolutePosition(t *testing.T) {
	v := NewVirtualOutput(100, 100)
	v.PushEvent(PlatformEvent{Kind: PlatformEventInputMouseMove, DX: 10, DY: 20})
	v.PushEvent(PlatformEvent{Kind: PlatformEventInputMouseButtonDown, Button: 1})

	ev, ok := v.PopEvent()
	require.True(t, ok)
	assert.Equal(t, PlatformEventInputMouseMove, ev.Kind)

	ev, ok = v.PopEvent()
	require.True(t, ok)
	assert.Equal(t, PlatformEventInputMouseButtonDown, ev.Kind)
	assert.Equal(t, int32(10), ev.X)
	assert.Equal(t, int32(20), ev.Y)

	_, ok = v.PopEvent()
	assert.False(t, ok)
}

func TestVirtualOutputHandleScrollingClampsToScrollRegion(t *testing.T) {
	s := newTestScene(t)

	root := s.CreateElement()
	s.SetViewport(root, dom.Size[int32]{Width: 400, Height: 400})
	s.SetRoot(root)

	v := NewVirtualOutput(100, 100)
	require.NoError(t, s.Recompile(v))

	require.NoError(t, v.HandleScrolling(s, [2]int32{10, 10}, [2]float32{1000, 1000}))
	vp, _, ok := s.viewportAt(root)
	require.True(t, ok)
	assert.Equal(t, dom.Offset[int32]{X: -300, Y: -300}, vp.ScrollOffset)

	require.NoError(t, v.HandleScrolling(s, [2]int32{10, 10}, [2]float32{-5000, -5000}))
	vp, _, ok = s.viewportAt(root)
	require.True(t, ok)
	assert.Equal(t, dom.Offset[int32]{X: 0, Y: 0}, vp.ScrollOffset)
}

func TestVirtualOutputHandleScrollingNoViewportAtPosition(t *testing.T) {
	s := newTestScene(t)
	root := s.CreateElement()
	s.SetViewport(root, dom.Size[int32]{Width: 100, Height: 100})
	s.SetRoot(root)

	v := NewVirtualOutput(100, 100)
	require.NoError(t, s.Recompile(v))

	err := v.HandleScrolling(s, [2]int32{500, 500}, [2]float32{1, 1})
	assert.ErrorIs(t, err, errNoViewportAtPosition)
}
