package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/zeebo/assert"
	"github.com/zeebo/pcg"
)

func TestSingleProducerSingleConsumerOrder(t *testing.T) {
	q := NewBoundedQueue[int](8)
	out := make(chan []int)

	go func() {
		got := make([]int, 0, 8)
		for i := 0; i < 8; i++ {
			got = append(got, q.Pop())
		}
		out <- got
	}()

	for i := 0; i < 8; i++ {
		q.Push(i * 10)
	}

	assert.DeepEqual(t, <-out, []int{0, 10, 20, 30, 40, 50, 60, 70})
	assert.That(t, q.Empty())
}

func TestOrderAcrossLaps(t *testing.T) {
	q := NewBoundedQueue[uint64](4)
	const n = 1000
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := uint64(0); i < n; i++ {
			if got := q.Pop(); got != i {
				t.Errorf("pop %d: got %d", i, got)
				return
			}
		}
	}()

	for i := uint64(0); i < n; i++ {
		q.Push(i)
	}
	<-done
}

func TestTryPushCapacityBound(t *testing.T) {
	q := NewBoundedQueue[int](8)
	for i := 0; i < 8; i++ {
		assert.That(t, q.TryPush(i))
	}
	assert.Equal(t, q.Len(), 8)
	assert.False(t, q.TryPush(8))

	assert.Equal(t, q.Pop(), 0)
	assert.That(t, q.TryPush(8))
	assert.False(t, q.TryPush(9))

	for i := 1; i <= 8; i++ {
		v, ok := q.TryPop()
		assert.That(t, ok)
		assert.Equal(t, v, i)
	}
	_, ok := q.TryPop()
	assert.False(t, ok)
	assert.That(t, q.Empty())
}

func TestPushBlocksUntilPop(t *testing.T) {
	q := NewBoundedQueue[int](1)
	q.Push(1)

	pushed := make(chan struct{})
	go func() {
		q.Push(2)
		close(pushed)
	}()

	select {
	case <-pushed:
		t.Fatal("push into a full queue returned")
	case <-time.After(20 * time.Millisecond):
	}

	assert.Equal(t, q.Pop(), 1)
	<-pushed
	assert.Equal(t, q.Pop(), 2)
}

func TestPopBlocksUntilPush(t *testing.T) {
	q := NewBoundedQueue[string](2)
	got := make(chan string)

	go func() { got <- q.Pop() }()
	go func() { got <- q.Pop() }()

	time.Sleep(10 * time.Millisecond)
	q.Push("a")
	q.Push("b")

	first, second := <-got, <-got
	assert.That(t, (first == "a" && second == "b") || (first == "b" && second == "a"))
}

func TestNewBoundedQueuePanicsOnZeroCapacity(t *testing.T) {
	defer func() {
		assert.NotNil(t, recover())
	}()
	NewBoundedQueue[int](0)
}

func TestMultiProducerMultiConsumerStress(t *testing.T) {
	const (
		producers   = 4
		consumers   = 4
		perProducer = 5000
	)
	q := NewBoundedQueue[uint64](16)

	var producerWG, consumerWG sync.WaitGroup
	results := make([][]uint64, consumers)

	for c := 0; c < consumers; c++ {
		consumerWG.Add(1)
		go func(c int) {
			defer consumerWG.Done()
			rng := pcg.New(uint64(c) + 100)
			for {
				var v uint64
				if rng.Uint32n(4) == 0 {
					var ok bool
					if v, ok = q.TryPop(); !ok {
						continue
					}
				} else {
					v = q.Pop()
				}
				if v == 0 {
					return
				}
				results[c] = append(results[c], v)
			}
		}(c)
	}

	for p := 0; p < producers; p++ {
		producerWG.Add(1)
		go func(p int) {
			defer producerWG.Done()
			rng := pcg.New(uint64(p) + 1)
			for i := 0; i < perProducer; i++ {
				v := uint64(p*perProducer+i) + 1
				if rng.Uint32n(4) == 0 {
					for !q.TryPush(v) {
					}
					continue
				}
				q.Push(v)
			}
		}(p)
	}

	producerWG.Wait()
	for c := 0; c < consumers; c++ {
		q.Push(0)
	}
	consumerWG.Wait()

	seen := make(map[uint64]bool, producers*perProducer)
	for _, r := range results {
		for _, v := range r {
			assert.False(t, seen[v])
			seen[v] = true
		}
	}
	assert.Equal(t, len(seen), producers*perProducer)
	for v := uint64(1); v <= producers*perProducer; v++ {
		assert.That(t, seen[v])
	}
}

func TestPerProducerOrderPreserved(t *testing.T) {
	const (
		producers   = 3
		perProducer = 2000
	)
	q := NewBoundedQueue[[2]int](8)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push([2]int{p, i})
			}
		}(p)
	}

	last := [producers]int{-1, -1, -1}
	for n := 0; n < producers*perProducer; n++ {
		v := q.Pop()
		assert.That(t, v[1] > last[v[0]])
		last[v[0]] = v[1]
	}
	wg.Wait()
}
