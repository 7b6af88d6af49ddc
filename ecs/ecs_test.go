package ecs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComponentSetTakeRoundTrip(t *testing.T) {
	inst := NewInstance()
	e := inst.CreateEntity()
	defer e.Release()

	c := AddComponent[int](inst)
	c.Set(e, 42)

	v, ok := c.Take(e)
	require.True(t, ok)
	assert.Equal(t, 42, v)

	_, ok = c.Get(e)
	assert.False(t, ok)
}

func TestEntityReleaseClearsAllComponents(t *testing.T) {
	inst := NewInstance()
	e := inst.CreateEntity()

	names := AddComponent[string](inst)
	counts := AddComponent[int](inst)
	names.Set(e, "hello")
	counts.Set(e, 7)

	e.Release()

	_, ok := names.Get(e)
	assert.False(t, ok)
	_, ok = counts.Get(e)
	assert.False(t, ok)
	assert.False(t, e.Valid())
}

func TestEntityCloneKeepsSlotAliveUntilAllReleased(t *testing.T) {
	inst := NewInstance()
	e := inst.CreateEntity()
	clone := e.Clone()

	c := AddComponent[int](inst)
	c.Set(e, 1)

	e.Release()
	// clone still references the slot, so the value must survive.
	v, ok := c.Get(clone)
	require.True(t, ok)
	assert.Equal(t, 1, v)

	clone.Release()
	_, ok = c.Get(clone)
	assert.False(t, ok)
}

func TestSnapshotRollbackOnDrop(t *testing.T) {
	inst := NewInstance()
	e := inst.CreateEntity()
	defer e.Release()

	c := AddComponent[int](inst)
	c.Set(e, 10)

	snap := c.Snapshot()
	snap.Set(e, 99)

	v, ok := snap.Get(e)
	require.True(t, ok)
	assert.Equal(t, 99, v)

	// Dropped without Commit: parent component must be untouched.
	parentVal, ok := c.Get(e)
	require.True(t, ok)
	assert.Equal(t, 10, parentVal)
}

func TestSnapshotCommitWritesBackToParent(t *testing.T) {
	inst := NewInstance()
	e := inst.CreateEntity()
	defer e.Release()

	c := AddComponent[int](inst)
	c.Set(e, 10)

	snap := c.Snapshot()
	snap.Set(e, 99)
	snap.Commit()

	v, ok := c.Get(e)
	require.True(t, ok)
	assert.Equal(t, 99, v)

	snap.Reset()
	assert.False(t, snap.IsCommitted())
}

func TestSnapshotTakeCommitsAbsence(t *testing.T) {
	inst := NewInstance()
	e := inst.CreateEntity()
	defer e.Release()

	c := AddComponent[int](inst)
	c.Set(e, 10)

	snap := c.Snapshot()
	v, ok := snap.Take(e)
	require.True(t, ok)
	assert.Equal(t, 10, v)

	snap.Commit()
	_, ok = c.Get(e)
	assert.False(t, ok)
}

func TestSnapshotLayering(t *testing.T) {
	inst := NewInstance()
	e := inst.CreateEntity()
	defer e.Release()

	c := AddComponent[int](inst)
	c.Set(e, 1)

	outer := c.Snapshot()
	inner := outer.Snapshot()

	inner.Set(e, 2)

	assert.Panics(t, func() { inner.Commit() }, "inner commit before outer commit must panic")

	outer.Commit()
	inner.Commit()

	v, ok := c.Get(e)
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestNonSparseComponentDefaultFillAndSlice(t *testing.T) {
	inst := NewInstance()
	e1 := inst.CreateEntity()
	defer e1.Release()
	e2 := inst.CreateEntity()
	defer e2.Release()

	c := AddNonSparseComponent[int](inst, func(id ID) int { return -1 })
	// Setting only e2 still produces a row for e1, filled by defaultFill.
	c.Set(e2, 6)

	data, ok := c.Slice()
	require.True(t, ok)
	assert.Len(t, data, 2)
	assert.Equal(t, -1, data[e1.ID()])
	assert.Equal(t, 6, data[e2.ID()])
}

func TestComponentIterateOrder(t *testing.T) {
	inst := NewInstance()
	var entities []Entity
	for i := 0; i < 5; i++ {
		entities = append(entities, inst.CreateEntity())
	}
	defer func() {
		for _, e := range entities {
			e.Release()
		}
	}()

	c := AddComponent[int](inst)
	for i, e := range entities {
		c.Set(e, i*10)
	}

	var seen []ID
	c.Iterate(func(id ID, v int) bool {
		seen = append(seen, id)
		assert.Equal(t, int(id)*10, v)
		return true
	})
	assert.Len(t, seen, 5)
	for i := 1; i < len(seen); i++ {
		assert.True(t, seen[i-1] < seen[i], "Iterate must visit ids in ascending order")
	}
}

func TestEntityFromIDRoundTrip(t *testing.T) {
	inst := NewInstance()
	e := inst.CreateEntity()
	defer e.Release()

	id := e.ID()
	reconstructed, ok := inst.EntityFromID(id)
	require.True(t, ok)
	defer reconstructed.Release()

	c := AddComponent[string](inst)
	c.Set(e, "shared")

	v, ok := c.Get(reconstructed)
	require.True(t, ok)
	assert.Equal(t, "shared", v)
}
