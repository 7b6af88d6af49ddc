package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NOT-REAL-GAMES/dakota/dom"
	"github.com/NOT-REAL-GAMES/dakota/ecs"
)

func TestRootSizesToAvailableSpace(t *testing.T) {
	inst := ecs.NewInstance()
	tables := &Tables{
		Instance:   inst,
		Resources:  ecs.AddComponent[ecs.Entity](inst),
		ImageSizes: ecs.AddComponent[dom.Size[int32]](inst),
		Viewports:  ecs.AddComponent[Viewport](inst),
		Contents:   ecs.AddComponent[ecs.Entity](inst),
		Widths:     ecs.AddComponent[dom.Value](inst),
		Heights:    ecs.AddComponent[dom.Value](inst),
		Offsets:    ecs.AddComponent[dom.RelativeOffset](inst),
		Children:   ecs.AddComponent[[]ecs.Entity](inst),
		Texts:      ecs.AddComponent[dom.Text](inst),
		TextFont:   ecs.AddComponent[ecs.Entity](inst),
		Nodes:      ecs.AddComponent[Node](inst),
	}

	root := inst.CreateEntity()
	defer root.Release()

	err := Run(tables, root, Space{AvailWidth: 1920, AvailHeight: 1080})
	require.NoError(t, err)

	node, ok := tables.Nodes.Get(root)
	require.True(t, ok)
	assert.Equal(t, int32(1920), node.Size.Width)
	assert.Equal(t, int32(1080), node.Size.Height)
	assert.Equal(t, int32(0), node.Offset.X)
	assert.Equal(t, int32(0), node.Offset.Y)
}

func TestExplicitConstantSizeIsHonored(t *testing.T) {
	inst := ecs.NewInstance()
	tables := &Tables{
		Instance:   inst,
		Resources:  ecs.AddComponent[ecs.Entity](inst),
		ImageSizes: ecs.AddComponent[dom.Size[int32]](inst),
		Viewports:  ecs.AddComponent[Viewport](inst),
		Contents:   ecs.AddComponent[ecs.Entity](inst),
		Widths:     ecs.AddComponent[dom.Value](inst),
		Heights:    ecs.AddComponent[dom.Value](inst),
		Offsets:    ecs.AddComponent[dom.RelativeOffset](inst),
		Children:   ecs.AddComponent[[]ecs.Entity](inst),
		Texts:      ecs.AddComponent[dom.Text](inst),
		TextFont:   ecs.AddComponent[ecs.Entity](inst),
		Nodes:      ecs.AddComponent[Node](inst),
	}

	root := inst.CreateEntity()
	defer root.Release()
	tables.Widths.Set(root, dom.Constant(200))
	tables.Heights.Set(root, dom.Relative(0.5))

	err := Run(tables, root, Space{AvailWidth: 1920, AvailHeight: 1080})
	require.NoError(t, err)

	node, _ := tables.Nodes.Get(root)
	assert.Equal(t, int32(200), node.Size.Width)
	assert.Equal(t, int32(540), node.Size.Height)
}

func TestChildTilingWrapsToNewRow(t *testing.T) {
	inst := ecs.NewInstance()
	tables := &Tables{
		Instance:   inst,
		Resources:  ecs.AddComponent[ecs.Entity](inst),
		ImageSizes: ecs.AddComponent[dom.Size[int32]](inst),
		Viewports:  ecs.AddComponent[Viewport](inst),
		Contents:   ecs.AddComponent[ecs.Entity](inst),
		Widths:     ecs.AddComponent[dom.Value](inst),
		Heights:    ecs.AddComponent[dom.Value](inst),
		Offsets:    ecs.AddComponent[dom.RelativeOffset](inst),
		Children:   ecs.AddComponent[[]ecs.Entity](inst),
		Texts:      ecs.AddComponent[dom.Text](inst),
		TextFont:   ecs.AddComponent[ecs.Entity](inst),
		Nodes:      ecs.AddComponent[Node](inst),
	}

	root := inst.CreateEntity()
	defer root.Release()
	tables.Widths.Set(root, dom.Constant(300))
	tables.Heights.Set(root, dom.Constant(300))

	var kids []ecs.Entity
	for i := 0; i < 2; i++ {
		child := inst.CreateEntity()
		defer child.Release()
		tables.Widths.Set(child, dom.Constant(200))
		tables.Heights.Set(child, dom.Constant(100))
		kids = append(kids, child)
	}
	tables.Children.Set(root, kids)

	err := Run(tables, root, Space{AvailWidth: 1920, AvailHeight: 1080})
	require.NoError(t, err)

	first, _ := tables.Nodes.Get(kids[0])
	second, _ := tables.Nodes.Get(kids[1])
	assert.Equal(t, int32(0), first.Offset.X)
	assert.Equal(t, int32(0), first.Offset.Y)
	// 200-wide child + 200-wide child exceeds the 300-wide parent, so the
	// second child wraps below the first instead of sitting beside it.
	assert.Equal(t, int32(0), second.Offset.X)
	assert.Equal(t, int32(100), second.Offset.Y)
}

func TestContentIsCenteredInParent(t *testing.T) {
	inst := ecs.NewInstance()
	tables := &Tables{
		Instance:   inst,
		Resources:  ecs.AddComponent[ecs.Entity](inst),
		ImageSizes: ecs.AddComponent[dom.Size[int32]](inst),
		Viewports:  ecs.AddComponent[Viewport](inst),
		Contents:   ecs.AddComponent[ecs.Entity](inst),
		Widths:     ecs.AddComponent[dom.Value](inst),
		Heights:    ecs.AddComponent[dom.Value](inst),
		Offsets:    ecs.AddComponent[dom.RelativeOffset](inst),
		Children:   ecs.AddComponent[[]ecs.Entity](inst),
		Texts:      ecs.AddComponent[dom.Text](inst),
		TextFont:   ecs.AddComponent[ecs.Entity](inst),
		Nodes:      ecs.AddComponent[Node](inst),
	}

	root := inst.CreateEntity()
	defer root.Release()
	tables.Widths.Set(root, dom.Constant(400))
	tables.Heights.Set(root, dom.Constant(400))

	content := inst.CreateEntity()
	defer content.Release()
	tables.Widths.Set(content, dom.Constant(100))
	tables.Heights.Set(content, dom.Constant(50))
	tables.Contents.Set(root, content)

	err := Run(tables, root, Space{AvailWidth: 1920, AvailHeight: 1080})
	require.NoError(t, err)

	node, _ := tables.Nodes.Get(content)
	assert.Equal(t, int32(150), node.Offset.X)
	assert.Equal(t, int32(175), node.Offset.Y)
}

func TestUnsizedElementWithImageResourceUsesIntrinsicSize(t *testing.T) {
	inst := ecs.NewInstance()
	tables := &Tables{
		Instance:   inst,
		Resources:  ecs.AddComponent[ecs.Entity](inst),
		ImageSizes: ecs.AddComponent[dom.Size[int32]](inst),
		Viewports:  ecs.AddComponent[Viewport](inst),
		Contents:   ecs.AddComponent[ecs.Entity](inst),
		Widths:     ecs.AddComponent[dom.Value](inst),
		Heights:    ecs.AddComponent[dom.Value](inst),
		Offsets:    ecs.AddComponent[dom.RelativeOffset](inst),
		Children:   ecs.AddComponent[[]ecs.Entity](inst),
		Texts:      ecs.AddComponent[dom.Text](inst),
		TextFont:   ecs.AddComponent[ecs.Entity](inst),
		Nodes:      ecs.AddComponent[Node](inst),
	}

	root := inst.CreateEntity()
	defer root.Release()

	resource := inst.CreateEntity()
	defer resource.Release()
	tables.ImageSizes.Set(resource, dom.Size[int32]{Width: 64, Height: 32})
	tables.Resources.Set(root, resource)

	err := Run(tables, root, Space{AvailWidth: 1920, AvailHeight: 1080})
	require.NoError(t, err)

	node, _ := tables.Nodes.Get(root)
	assert.Equal(t, int32(64), node.Size.Width)
	assert.Equal(t, int32(32), node.Size.Height)
}

func TestFailedRunLeavesTablesUntouched(t *testing.T) {
	inst := ecs.NewInstance()
	tables := &Tables{
		Instance:   inst,
		Resources:  ecs.AddComponent[ecs.Entity](inst),
		ImageSizes: ecs.AddComponent[dom.Size[int32]](inst),
		Viewports:  ecs.AddComponent[Viewport](inst),
		Contents:   ecs.AddComponent[ecs.Entity](inst),
		Widths:     ecs.AddComponent[dom.Value](inst),
		Heights:    ecs.AddComponent[dom.Value](inst),
		Offsets:    ecs.AddComponent[dom.RelativeOffset](inst),
		Children:   ecs.AddComponent[[]ecs.Entity](inst),
		Texts:      ecs.AddComponent[dom.Text](inst),
		TextFont:   ecs.AddComponent[ecs.Entity](inst),
		Nodes:      ecs.AddComponent[Node](inst),
	}

	root := inst.CreateEntity()
	defer root.Release()

	// A text element with children is invalid (calculateSizesText rejects
	// it), so the run must fail and commit nothing.
	child := inst.CreateEntity()
	defer child.Release()
	tables.Children.Set(root, []ecs.Entity{child})
	tables.Texts.Set(root, dom.Text{Items: []dom.TextRun{{Value: "hi"}}})

	err := Run(tables, root, Space{AvailWidth: 100, AvailHeight: 100})
	assert.Error(t, err)

	_, ok := tables.Nodes.Get(root)
	assert.False(t, ok)
}
