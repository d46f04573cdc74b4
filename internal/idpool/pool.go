// Package idpool hands out 16-bit session-local IDs, always issuing the
// smallest currently-unused value, and reclaims them on release so they can
// be reissued. It backs both the client-ID and channel-ID allocators.
package idpool

import (
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// maxID is the largest value a 16-bit ID can hold.
const maxID = 1<<16 - 1

// Pool allocates uint16 IDs. The zero value is not safe to use; call New.
// ID 0 is never issued — it is reserved as a "no value" sentinel so a zero
// ID can always mean "none" to callers — so the first Borrow() call
// returns 1.
type Pool struct {
	mu   sync.Mutex
	used *bitset.BitSet
}

// New returns an empty pool.
func New() *Pool {
	p := &Pool{used: bitset.New(maxID + 1)}
	p.used.Set(0) // reserve the sentinel value
	return p
}

// Borrow reserves and returns the smallest free ID. It returns an error only
// when the pool is exhausted (all 65535 usable values are held).
func (p *Pool) Borrow() (uint16, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	next, ok := p.used.NextClear(0)
	if !ok || next > maxID {
		return 0, fmt.Errorf("idpool: exhausted")
	}
	p.used.Set(next)
	return uint16(next), nil
}

// Return releases id back into the free set. Returning an id that was never
// borrowed, or the reserved sentinel 0, is a no-op.
func (p *Pool) Return(id uint16) {
	if id == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.used.Clear(uint(id))
}

// InUse reports whether id is currently borrowed. Intended for tests and
// diagnostics, not for the dispatch hot path.
func (p *Pool) InUse(id uint16) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.used.Test(uint(id))
}
