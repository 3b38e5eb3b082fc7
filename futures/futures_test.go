package futures

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitResult(t *testing.T) {
	e := NewExecutor(2)
	defer e.Shutdown()
	fut := Submit(e, func() string { return "hello" })
	assert.Equal(t, "hello", fut.Result())
	select {
	case <-fut.Done():
	default:
		t.Fatal("future should be done")
	}
}

func TestResolved(t *testing.T) {
	assert.Equal(t, 42, Resolved(42).Result())
}

func TestMapPreservesOrder(t *testing.T) {
	e := NewExecutor(4)
	defer e.Shutdown()
	inputs := make(chan int)
	go func() {
		for i := 0; i < 20; i++ {
			inputs <- i
		}
		close(inputs)
	}()
	var got []int
	for r := range Map(e, func(i int) int {
		// Later inputs finish first.
		time.Sleep(time.Duration(20-i) * time.Millisecond)
		return i * i
	}, inputs) {
		got = append(got, r)
	}
	require.Len(t, got, 20)
	for i, v := range got {
		assert.Equal(t, i*i, v)
	}
}

func TestMaxWorkers(t *testing.T) {
	e := NewExecutor(2)
	var running, peak int32
	release := make(chan struct{})
	var futs []*Future[struct{}]
	for i := 0; i < 6; i++ {
		futs = append(futs, Submit(e, func() struct{} {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			<-release
			atomic.AddInt32(&running, -1)
			return struct{}{}
		}))
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	for _, f := range futs {
		f.Result()
	}
	e.Shutdown()
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}
