package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConnRateLimiter(t *testing.T) {
	rl := NewConnRateLimiter(3, 50*time.Millisecond)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("a"), "request %d within budget", i)
	}
	assert.False(t, rl.Allow("a"), "budget exhausted")

	// Other connections have their own budget.
	assert.True(t, rl.Allow("b"))

	// The window slides: old attempts age out.
	time.Sleep(60 * time.Millisecond)
	assert.True(t, rl.Allow("a"))
}

func TestConnRateLimiterDisabled(t *testing.T) {
	rl := NewConnRateLimiter(0, time.Second)
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("a"))
	}
}

func TestConnRateLimiterForget(t *testing.T) {
	rl := NewConnRateLimiter(1, time.Hour)
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))

	rl.Forget("a")
	assert.True(t, rl.Allow("a"))
}
