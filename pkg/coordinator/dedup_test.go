package coordinator

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecencySet(t *testing.T) {
	set := newRecencySet(3)

	assert.False(t, set.seen("a"))
	assert.True(t, set.seen("a"))
	assert.False(t, set.seen("b"))
	assert.False(t, set.seen("c"))

	// Capacity reached; recording a fourth key evicts the oldest.
	assert.False(t, set.seen("d"))
	assert.False(t, set.seen("a"))
	assert.True(t, set.seen("d"))
}

func TestRecencySet_reset(t *testing.T) {
	set := newRecencySet(4)
	assert.False(t, set.seen("a"))
	set.reset()
	assert.False(t, set.seen("a"))
}

func TestRecencySet_wrapsWithoutGrowth(t *testing.T) {
	set := newRecencySet(8)
	for i := 0; i < 100; i++ {
		set.seen(fmt.Sprintf("key-%d", i))
	}
	assert.LessOrEqual(t, len(set.index), 8)
}
