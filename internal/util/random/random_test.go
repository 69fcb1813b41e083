package random

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBetweenStaysInRange(t *testing.T) {
	r := NewSeeded(1, 2)
	for i := 0; i < 1000; i++ {
		v := r.Between(3, 7)
		assert.GreaterOrEqual(t, v, 3)
		assert.LessOrEqual(t, v, 7)
	}
	assert.Equal(t, 5, r.Between(5, 5))
	v := r.Between(9, 4)
	assert.True(t, v >= 4 && v <= 9)
}

func TestAlphabetHelpers(t *testing.T) {
	r := NewSeeded(7, 7)
	assert.Regexp(t, regexp.MustCompile(`^[0-9]{16}$`), r.Digits(16))
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), r.Hex(32))
}

func TestChanceExtremes(t *testing.T) {
	r := NewSeeded(3, 4)
	for i := 0; i < 50; i++ {
		assert.Equal(t, "1", r.Chance(1))
		assert.Equal(t, "0", r.Chance(0))
	}
}

func TestSeededIsDeterministic(t *testing.T) {
	a, b := NewSeeded(11, 12), NewSeeded(11, 12)
	for i := 0; i < 20; i++ {
		assert.Equal(t, a.IntN(1000), b.IntN(1000))
	}
	assert.Equal(t, 0, a.IntN(0))
}

func TestPick(t *testing.T) {
	r := NewSeeded(5, 6)
	items := []string{"a", "b", "c"}
	for i := 0; i < 20; i++ {
		assert.Contains(t, items, Pick(r, items))
	}
}
