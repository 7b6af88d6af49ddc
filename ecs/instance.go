package ecs

import "sync"

// Instance owns a slot allocator and the registry of component tables built
// on top of it. It is the entry point for creating entities and registering
// components (ground: lluvia's Instance / IdTable).
type Instance struct {
	mu     sync.Mutex
	valid  []bool
	states []*entityState
	tables []ComponentTable
}

// NewInstance creates an empty ECS instance.
func NewInstance() *Instance {
	return &Instance{}
}

// CreateEntity allocates a slot and returns a handle with refcount 1.
func (inst *Instance) CreateEntity() Entity {
	inst.mu.Lock()
	id := inst.allocateSlotLocked()
	st := &entityState{inst: inst, id: id, refs: 1}
	inst.states[id] = st
	inst.mu.Unlock()
	return Entity{state: st}
}

// EntityFromID reconstructs a handle to the entity currently occupying id,
// incrementing its refcount, or reports false if the slot isn't live. This
// lets code that only has a raw ID (e.g. from Component.Iterate) hand back a
// real, independently-released Entity.
func (inst *Instance) EntityFromID(id ID) (Entity, bool) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if int(id) >= len(inst.valid) || !inst.valid[id] {
		return Entity{}, false
	}
	st := inst.states[id]
	st.refs++
	return Entity{state: st}, true
}

// EntityCount returns the number of currently allocated slots.
func (inst *Instance) EntityCount() int {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	n := 0
	for _, v := range inst.valid {
		if v {
			n++
		}
	}
	return n
}

// register adds a new erased component table to the instance. Unexported:
// callers go through AddComponent/AddNonSparseComponent.
func (inst *Instance) register(t ComponentTable) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.tables = append(inst.tables, t)
}

// allocateSlotLocked finds a free slot, scanning from the back of the
// validity bitmap so recently freed slots near the tail are reused first
// (ground: lluvia's IdTable::create_id scanning from the back). Must be
// called with inst.mu held.
func (inst *Instance) allocateSlotLocked() ID {
	for i := len(inst.valid) - 1; i >= 0; i-- {
		if !inst.valid[i] {
			inst.valid[i] = true
			return ID(i)
		}
	}
	inst.valid = append(inst.valid, true)
	inst.states = append(inst.states, nil)
	return ID(len(inst.valid) - 1)
}

func (inst *Instance) idValid(id ID) bool {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return int(id) < len(inst.valid) && inst.valid[id]
}

// invalidate frees id's slot and then clears every registered component's
// value at that slot. The slot is released before any component is
// cleared so that a component value holding another Entity cannot reenter
// this invalidation path while a write lock on its own table is held
// (ground: SPEC_FULL.md §9's cyclic-reference design note).
func (inst *Instance) invalidate(id ID) {
	inst.mu.Lock()
	if int(id) < len(inst.valid) {
		inst.valid[id] = false
	}
	tables := append([]ComponentTable(nil), inst.tables...)
	inst.mu.Unlock()

	for _, t := range tables {
		t.clearEntity(id)
	}
}
