package ratelimiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFixedWindowLimiter(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	rl := NewFixedWindowLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		ok, _ := rl.Allow("10.0.0.1")
		require.True(t, ok)
	}

	now = now.Add(20 * time.Second)
	ok, retry := rl.Allow("10.0.0.1")
	require.False(t, ok)
	require.Equal(t, 40*time.Second, retry)

	ok, _ = rl.Allow("10.0.0.2")
	require.True(t, ok, "clients are limited independently")

	now = now.Add(40 * time.Second)
	ok, _ = rl.Allow("10.0.0.1")
	require.True(t, ok, "window resets")
}
