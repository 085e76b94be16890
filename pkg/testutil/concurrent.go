// Package testutil holds helpers shared by package tests.
package testutil

import (
	"errors"
	"sync"
)

// Outcomes holds the error returned by each racer, indexed by racer.
type Outcomes []error

// Race starts n goroutines that block on a common gate, opens the gate and
// waits for all of them.
func Race(n int, fn func(i int) error) Outcomes {
	out := make(Outcomes, n)
	gate := make(chan struct{})
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-gate
			out[i] = fn(i)
		}()
	}
	close(gate)
	wg.Wait()
	return out
}

func (o Outcomes) Succeeded() int {
	return o.Count(nil)
}

// Count reports how many racers returned target. A nil target counts successes.
func (o Outcomes) Count(target error) int {
	n := 0
	for _, err := range o {
		if (target == nil && err == nil) || (target != nil && errors.Is(err, target)) {
			n++
		}
	}
	return n
}

// Unexpected returns the errors that match none of expected.
func (o Outcomes) Unexpected(expected ...error) []error {
	var rest []error
	for _, err := range o {
		if err == nil || matchesAny(err, expected) {
			continue
		}
		rest = append(rest, err)
	}
	return rest
}

func matchesAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
