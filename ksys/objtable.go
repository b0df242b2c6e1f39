package ksys

import (
	"sync"

	"yalnix/defs"
)

// quiescent is satisfied by every IPC object kind this package tables
// (locks, cvars, pipes), giving Reclaim a uniform quiescence check (§4.6
// Reclaim; §4.9 Reclaim_lock/Reclaim_cvar) without type-switching on the
// object itself.
type quiescent interface {
	Reclaim() defs.Errno
}

// objTable is an id-space-partitioned allocator and lookup table for one
// IPC object kind (§3's "single positive-integer ID space... partitioned
// disjointly"). Ascending allocation within the kind's subspace mirrors
// kmem.Frames' deterministic scan-order convention, simplified to a
// monotonic counter since ids (unlike frames) are never reused while an
// object lives — Reclaim frees the *table slot*, not the id itself, so two
// distinct objects never alias an id within one kernel run.
type objTable[T quiescent] struct {
	mu      sync.Mutex
	kind    defs.ObjKind
	next    int
	objects map[int]T
}

func newObjTable[T quiescent](kind defs.ObjKind) *objTable[T] {
	base, _ := defs.IDRange(kind)
	return &objTable[T]{kind: kind, next: base, objects: map[int]T{}}
}

// alloc reserves the next id in this table's subspace, constructs the
// object via make_, and stores it. Returns defs.EEXHAUST if the subspace
// is exhausted.
func (t *objTable[T]) alloc(make_ func(id int) T) (int, defs.Errno) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, limit := defs.IDRange(t.kind)
	if t.next >= limit {
		return 0, defs.EEXHAUST
	}
	id := t.next
	t.next++
	t.objects[id] = make_(id)
	return id, 0
}

func (t *objTable[T]) get(id int) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.objects[id]
	return v, ok
}

// reclaim removes id's object from the table, iff it reports quiescent.
// An id with no live object (never allocated, or already reclaimed)
// returns defs.ENOTFOUND — the idempotence property §8 requires.
func (t *objTable[T]) reclaim(id int) defs.Errno {
	t.mu.Lock()
	obj, ok := t.objects[id]
	t.mu.Unlock()
	if !ok {
		return defs.ENOTFOUND
	}
	if err := obj.Reclaim(); err != 0 {
		return err
	}
	t.mu.Lock()
	delete(t.objects, id)
	t.mu.Unlock()
	return 0
}
