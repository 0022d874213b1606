package subscriber

import "time"

// Backoff is the reconnect retry state: an exponential delay starting at
// Initial, doubling per failed attempt and capped at Max. It never gives up.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration

	attempt int
	current time.Duration
}

func NewBackoff(initial, max time.Duration) *Backoff {
	return &Backoff{Initial: initial, Max: max}
}

// Next records a failed attempt and returns the delay to wait before the
// following one.
func (b *Backoff) Next() time.Duration {
	b.attempt++
	if b.current == 0 {
		b.current = b.Initial
	} else {
		b.current *= 2
	}
	if b.current > b.Max {
		b.current = b.Max
	}
	return b.current
}

// Attempt is the number of consecutive failures since the last Reset.
func (b *Backoff) Attempt() int {
	return b.attempt
}

func (b *Backoff) Reset() {
	b.attempt = 0
	b.current = 0
}
