package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldProcessWithinWindow(t *testing.T) {
	now := time.Unix(0, 0)
	d := New(time.Minute, 10)
	d.now = func() time.Time { return now }

	assert.True(t, d.ShouldProcess("a"))
	assert.False(t, d.ShouldProcess("a"))
	assert.True(t, d.ShouldProcess(""))
	assert.True(t, d.ShouldProcess(""))

	now = now.Add(time.Minute)
	assert.True(t, d.ShouldProcess("a"), "expired IDs are processed again")
}

func TestCapacityEvictsOldest(t *testing.T) {
	now := time.Unix(0, 0)
	d := New(time.Hour, 2)
	d.now = func() time.Time { return now }

	d.ShouldProcess("a")
	now = now.Add(time.Second)
	d.ShouldProcess("b")
	now = now.Add(time.Second)
	d.ShouldProcess("c")

	assert.Equal(t, 2, d.Len())
	assert.True(t, d.ShouldProcess("a"), "a was evicted")
	assert.False(t, d.ShouldProcess("c"))
}
