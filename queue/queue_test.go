package queue

import (
	"testing"
)

func TestQueueOrder(t *testing.T) {
	q := New[int]()
	for i := 0; i < 100; i++ {
		q.Put(i)
	}
	q.Close()
	for i := 0; i < 100; i++ {
		v, ok := q.Get()
		if !ok {
			t.Fatalf("queue closed early at %d", i)
		}
		if v != i {
			t.Fatalf("got %d, expected %d", v, i)
		}
	}
	if _, ok := q.Get(); ok {
		t.Fatal("expected closed queue")
	}
}

func TestQueueCloseEmpty(t *testing.T) {
	q := New[string]()
	q.Close()
	if _, ok := q.Get(); ok {
		t.FailNow()
	}
}
