package futures

import (
	"sync"

	"github.com/anacrolix/cdsbrowse/queue"
)

type task interface {
	run()
}

// Maintains the pool of workers and receives new work.
type Executor struct {
	waiting *queue.Queue[task]
	workers sync.WaitGroup
}

// Create a new Executor that does up to maxWorkers tasks in parallel.
func NewExecutor(maxWorkers int) *Executor {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	ret := &Executor{
		waiting: queue.New[task](),
	}
	ret.workers.Add(maxWorkers)
	for a := 0; a < maxWorkers; a++ {
		go func() {
			defer ret.workers.Done()
			for {
				t, ok := ret.waiting.Get()
				if !ok {
					return
				}
				t.run()
			}
		}()
	}
	return ret
}

// Prevents new tasks being submitted, and waits for the workers to finish
// the futures already submitted.
func (me *Executor) Shutdown() {
	me.waiting.Close()
	me.workers.Wait()
}

// Submit fn to the Executor, returning a Future that represents it.
func Submit[T any](me *Executor, fn func() T) *Future[T] {
	fut := &Future[T]{
		fn:   fn,
		done: make(chan struct{}),
	}
	me.waiting.Put(fut)
	return fut
}

// Represents some asynchronous execution.
type Future[T any] struct {
	fn     func() T
	done   chan struct{}
	result T
	do     sync.Once
}

// Returns a Future that has already completed with v.
func Resolved[T any](v T) *Future[T] {
	ret := &Future[T]{
		done:   make(chan struct{}),
		result: v,
	}
	ret.do.Do(func() { close(ret.done) })
	return ret
}

// Blocks until the Future completes, and returns the computed value.
func (me *Future[T]) Result() T {
	<-me.done
	return me.result
}

// Closed when the result is available.
func (me *Future[T]) Done() <-chan struct{} {
	return me.done
}

func (me *Future[T]) run() {
	me.do.Do(func() {
		me.result = me.fn()
		close(me.done)
	})
}

// Calls fn with each item received from inputs, and outputs the results in
// the same order to the returned channel.
func Map[T, R any](me *Executor, fn func(T) R, inputs <-chan T) <-chan R {
	ret := make(chan R)
	go func() {
		futs := queue.New[*Future[R]]()
		go func() {
			for {
				fut, ok := futs.Get()
				if !ok {
					break
				}
				ret <- fut.Result()
			}
			close(ret)
		}()
		for a := range inputs {
			futs.Put(Submit(me, func() R {
				return fn(a)
			}))
		}
		futs.Close()
	}()
	return ret
}
