package queue

import (
	"container/list"
)

// An unbounded FIFO. Put never blocks on a slow consumer; values are handed
// out in the order they were put.
type Queue[T any] struct {
	in, out chan T
}

func New[T any]() *Queue[T] {
	ret := &Queue[T]{
		in:  make(chan T),
		out: make(chan T),
	}
	go ret.pump()
	return ret
}

func (me *Queue[T]) pump() {
	in := me.in
	l := list.New()
	for {
		if l.Len() == 0 {
			if in == nil {
				break
			}
			v, ok := <-in
			if !ok {
				break
			}
			l.PushBack(v)
			continue
		}
		select {
		case me.out <- l.Front().Value.(T):
			l.Remove(l.Front())
		case v, ok := <-in:
			if !ok {
				in = nil
			} else {
				l.PushBack(v)
			}
		}
	}
	close(me.out)
}

func (me *Queue[T]) Put(v T) {
	me.in <- v
}

// Blocks until a value is available. ok is false once the queue is closed
// and drained.
func (me *Queue[T]) Get() (val T, ok bool) {
	val, ok = <-me.out
	return
}

// No more values may be Put after Close. Pending values are still delivered.
func (me *Queue[T]) Close() {
	close(me.in)
}
