package timeline

import (
	"sync"
	"testing"
	"time"

	"github.com/zeebo/assert"
)

func TestSignalIsMonotonic(t *testing.T) {
	tl := NewTimeline()
	assert.Equal(t, tl.Load(), NoTicket)

	tl.Signal(3)
	tl.Signal(2)
	assert.Equal(t, tl.Load(), 3)
	assert.That(t, tl.Retired(1))
	assert.That(t, tl.Retired(3))
	assert.False(t, tl.Retired(4))
}

func TestConcurrentSignalsKeepMaximum(t *testing.T) {
	tl := NewTimeline()
	var wg sync.WaitGroup
	for i := 1; i <= 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tl.Signal(Ticket(i))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, tl.Load(), 64)
}

func TestWaitReturnsOnSignal(t *testing.T) {
	tl := NewTimeline()
	done := make(chan bool)

	go func() { done <- tl.Wait(2) }()

	tl.Signal(1)
	select {
	case <-done:
		t.Fatal("wait returned before the ticket retired")
	case <-time.After(20 * time.Millisecond):
	}

	tl.Signal(2)
	assert.That(t, <-done)
}

func TestCloseReleasesWaiters(t *testing.T) {
	tl := NewTimeline()
	done := make(chan bool)

	go func() { done <- tl.Wait(10) }()
	time.Sleep(10 * time.Millisecond)
	tl.Close()

	assert.False(t, <-done)
}

func TestTokenPoolCheckoutAndReturn(t *testing.T) {
	p := NewTokenPool(3)
	assert.Equal(t, p.Cap(), 3)
	assert.Equal(t, p.Available(), 3)

	seen := map[Token]bool{}
	for i := 0; i < 3; i++ {
		tok, ok := p.Checkout()
		assert.That(t, ok)
		assert.NotEqual(t, tok, NoToken)
		assert.False(t, seen[tok])
		seen[tok] = true
	}

	tok, ok := p.Checkout()
	assert.False(t, ok)
	assert.Equal(t, tok, NoToken)
	assert.Equal(t, p.Available(), 0)

	p.Return(2)
	tok, ok = p.Checkout()
	assert.That(t, ok)
	assert.Equal(t, tok, 2)
}

func TestTokenPoolRejectsForeignToken(t *testing.T) {
	p := NewTokenPool(2)
	defer func() {
		assert.NotNil(t, recover())
	}()
	p.Return(5)
}

func TestTokenPoolRejectsDoubleReturn(t *testing.T) {
	p := NewTokenPool(2)
	defer func() {
		assert.NotNil(t, recover())
	}()
	p.Return(1)
}

func TestTokenPoolConcurrentChurn(t *testing.T) {
	p := NewTokenPool(4)
	var wg sync.WaitGroup
	var mu sync.Mutex
	held := map[Token]bool{}

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				tok, ok := p.Checkout()
				if !ok {
					continue
				}
				mu.Lock()
				if held[tok] {
					mu.Unlock()
					t.Errorf("token %d checked out twice", tok)
					return
				}
				held[tok] = true
				mu.Unlock()

				mu.Lock()
				delete(held, tok)
				mu.Unlock()
				p.Return(tok)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, p.Available(), 4)
}
