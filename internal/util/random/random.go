// Package random wraps math/rand/v2 with a mutex and the draw helpers the
// synthetic payload generators share.
package random

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Rand is safe for concurrent use.
type Rand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// New returns a Rand seeded from the wall clock.
func New() *Rand {
	now := uint64(time.Now().UnixNano())
	return NewSeeded(now, now>>17|now<<47)
}

// NewSeeded returns a deterministic Rand, used by tests.
func NewSeeded(seed1, seed2 uint64) *Rand {
	return &Rand{r: rand.New(rand.NewPCG(seed1, seed2))}
}

// Float64 returns a value in [0, 1).
func (r *Rand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.r.Float64()
}

// IntN returns a value in [0, n). n <= 0 yields 0.
func (r *Rand) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.r.IntN(n)
}

// Int64N returns a value in [0, n). n <= 0 yields 0.
func (r *Rand) Int64N(n int64) int64 {
	if n <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.r.Int64N(n)
}

// Between returns an integer in [min, max]. Bounds are swapped when reversed.
func (r *Rand) Between(min, max int) int {
	if max < min {
		min, max = max, min
	}
	return min + r.IntN(max-min+1)
}

// Chance returns "1" with probability p, otherwise "0".
func (r *Rand) Chance(p float64) string {
	if r.Float64() < p {
		return "1"
	}
	return "0"
}

// Digits returns n random decimal digits.
func (r *Rand) Digits(n int) string {
	return r.fromAlphabet(n, "0123456789")
}

// Hex returns n random lowercase hex characters.
func (r *Rand) Hex(n int) string {
	return r.fromAlphabet(n, "0123456789abcdef")
}

func (r *Rand) fromAlphabet(n int, alphabet string) string {
	buf := make([]byte, n)
	r.mu.Lock()
	for i := range buf {
		buf[i] = alphabet[r.r.IntN(len(alphabet))]
	}
	r.mu.Unlock()
	return string(buf)
}

// Shuffle permutes n elements in place with Fisher-Yates.
func (r *Rand) Shuffle(n int, swap func(i, j int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.r.Shuffle(n, swap)
}

// Pick returns a random element of items. items must not be empty.
func Pick[T any](r *Rand, items []T) T {
	return items[r.IntN(len(items))]
}
