package kproc

import (
	"testing"

	"yalnix/defs"
)

func TestQueueFIFOOrder(t *testing.T) {
	q := NewQueue[int]()
	q.PushBack(1)
	q.PushBack(2)
	q.PushBack(3)
	for _, want := range []int{1, 2, 3} {
		got, ok := q.PopFront()
		if !ok || got != want {
			t.Fatalf("PopFront() = %d,%v want %d", got, ok, want)
		}
	}
	if _, ok := q.PopFront(); ok {
		t.Fatal("expected empty queue")
	}
}

func TestQueueRemoveByPredicate(t *testing.T) {
	q := NewQueue[int]()
	q.PushBack(1)
	q.PushBack(2)
	q.PushBack(3)
	v, ok := q.Remove(func(x int) bool { return x == 2 })
	if !ok || v != 2 {
		t.Fatalf("Remove = %d,%v", v, ok)
	}
	var rest []int
	q.Each(func(x int) { rest = append(rest, x) })
	if len(rest) != 2 || rest[0] != 1 || rest[1] != 3 {
		t.Fatalf("rest = %v, want [1 3]", rest)
	}
}

func TestPCBChildZombieLookup(t *testing.T) {
	parent := NewPCB(1, nil)
	child := NewPCB(2, nil)
	parent.AddChild(child)

	if _, ok := parent.HasZombieChild(); ok {
		t.Fatal("expected no zombie child yet")
	}
	child.SetState(defs.Zombie)
	z, ok := parent.HasZombieChild()
	if !ok || z.Pid != 2 {
		t.Fatalf("HasZombieChild = %+v,%v", z, ok)
	}

	parent.RemoveChild(child)
	if len(parent.Children()) != 0 {
		t.Fatal("expected child removed")
	}
}

func TestProcLimitExhaustion(t *testing.T) {
	pl := NewProcLimit(2)
	if !pl.Take() || !pl.Take() {
		t.Fatal("expected first two Take() to succeed")
	}
	if pl.Take() {
		t.Fatal("expected third Take() to fail")
	}
	pl.Give()
	if !pl.Take() {
		t.Fatal("expected Take() to succeed after Give()")
	}
}

func TestAccntAddMergesCounters(t *testing.T) {
	a := &Accnt{}
	b := &Accnt{}
	a.Utadd(100)
	a.Systadd(50)
	b.Utadd(10)
	b.Systadd(5)
	a.Add(b)
	un, sn := a.Snapshot()
	if un != 110 || sn != 55 {
		t.Fatalf("Snapshot() = %d,%d want 110,55", un, sn)
	}
}
