// Package eventq holds small channel helpers for handing events from the
// protocol loop to consumers that must never block it.
package eventq

// Offer performs a non-blocking send.
// It returns true when the value was sent and false when the channel is full
// or closed.
func Offer[T any](ch chan<- T, value T) (sent bool) {
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()
	select {
	case ch <- value:
		return true
	default:
		return false
	}
}

// Signal marks a capacity-1 notification channel as pending. Repeated signals
// before the consumer drains it coalesce into one, so the consumer always
// re-reads the latest state rather than a queue of stale ones.
func Signal(ch chan struct{}) {
	Offer(ch, struct{}{})
}

// NewSignal returns a channel suitable for Signal.
func NewSignal() chan struct{} {
	return make(chan struct{}, 1)
}
