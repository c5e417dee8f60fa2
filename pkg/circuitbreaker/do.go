package circuitbreaker

import "errors"

// ErrOpen is returned by Do when the breaker rejects a call.
var ErrOpen = errors.New("circuit breaker open")

// Do runs fn if the breaker allows it and records the outcome. Errors for
// which countsAsFailure returns false are passed through and count as a
// success, so caller mistakes (unknown ids, bad input) never open the circuit.
// A nil countsAsFailure treats every error as a failure.
func (b *Breaker) Do(fn func() error, countsAsFailure func(error) bool) error {
	if !b.Allow() {
		return ErrOpen
	}
	err := fn()
	if err != nil && (countsAsFailure == nil || countsAsFailure(err)) {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return err
}
