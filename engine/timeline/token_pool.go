package timeline

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-stage/engine/queue"
)

// Token is a recyclable command-recording handle. Real tokens are numbered 1..N; the zero Token means "none".
type Token uint32

// NoToken is the zero Token.
const NoToken Token = 0

// TokenPool is a fixed set of free tokens.
// A token is checked out for one build submission and returned by its owner once the ticket it was bound to
// has retired.
type TokenPool struct {
	free  *queue.BoundedQueue[Token]
	count int
}

// NewTokenPool creates a new TokenPool with n tokens, all initially free.
// Panics if n is not positive.
//
// Parameters:
//   - n: the number of tokens
//
// Returns:
//   - *TokenPool: the filled pool
func NewTokenPool(n int) *TokenPool {
	p := &TokenPool{
		free:  queue.NewBoundedQueue[Token](n),
		count: n,
	}
	for i := 1; i <= n; i++ {
		p.free.Push(Token(i))
	}
	return p
}

// Checkout takes a free token. Exhaustion is backpressure, not an error.
//
// Returns:
//   - Token: the checked-out token, or NoToken
//   - bool: false if no token was free
func (p *TokenPool) Checkout() (Token, bool) {
	return p.free.TryPop()
}

// Return puts tok back into the pool.
// Panics if tok is not one of this pool's tokens or the pool is already full, both of which mean a token was
// returned twice.
//
// Parameters:
//   - tok: the token to release
func (p *TokenPool) Return(tok Token) {
	if tok == NoToken || int(tok) > p.count {
		panic(fmt.Sprintf("timeline: token %d does not belong to a pool of %d", tok, p.count))
	}
	if !p.free.TryPush(tok) {
		panic(fmt.Sprintf("timeline: token %d returned to a full pool", tok))
	}
}

// Available returns an approximate count of free tokens.
//
// Returns:
//   - int: free tokens
func (p *TokenPool) Available() int {
	return p.free.Len()
}

// Cap returns the total number of tokens.
//
// Returns:
//   - int: pool size
func (p *TokenPool) Cap() int {
	return p.count
}
