package subscriber

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_ExponentialAndCapped(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, time.Second)

	var delays []time.Duration
	for range 6 {
		delays = append(delays, b.Next())
	}

	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}, delays)
	assert.Equal(t, 6, b.Attempt())
}

func TestBackoff_Reset(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, time.Second)
	b.Next()
	b.Next()

	b.Reset()

	assert.Equal(t, 0, b.Attempt())
	assert.Equal(t, 100*time.Millisecond, b.Next())
}
