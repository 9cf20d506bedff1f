package workflow

import (
	"sync"
	"testing"
)

// NOTE: These tests are intentionally DB-free. They validate the intended
// concurrency semantics of the stock ledger and the request state machine:
// - a conditional debit admits at most floor(available/units) concurrent winners
// - a guarded status transition has exactly one winner per request
//
// Full DB integration coverage lives in the models package behind
// INTEGRATION_TESTS=1.

type fakeLedger struct {
	mu        sync.Mutex
	available map[string]int
}

func newFakeLedger(initial map[string]int) *fakeLedger {
	return &fakeLedger{available: initial}
}

// debit mirrors the single conditional UPDATE: check and decrement are one
// atomic step.
func (l *fakeLedger) debit(group string, units int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.available[group] < units {
		return false
	}
	l.available[group] -= units
	return true
}

type fakeRequests struct {
	mu     sync.Mutex
	status map[int]string
}

// transition mirrors the guarded UPDATE ... WHERE id = ? AND status = ?.
func (r *fakeRequests) transition(id int, from, to string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status[id] != from {
		return false
	}
	r.status[id] = to
	return true
}

func TestConcurrentDebitOfLastUnitsHasOneWinner(t *testing.T) {
	for run := 0; run < 100; run++ {
		ledger := newFakeLedger(map[string]int{"O+": 1})

		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if ledger.debit("O+", 1) {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if wins != 1 {
			t.Fatalf("run=%d expected exactly 1 winner for the last unit, got %d", run, wins)
		}
		if ledger.available["O+"] != 0 {
			t.Fatalf("run=%d stock must end at 0, got %d", run, ledger.available["O+"])
		}
	}
}

func TestConcurrentDebitNeverOversells(t *testing.T) {
	for run := 0; run < 50; run++ {
		const initial = 7
		ledger := newFakeLedger(map[string]int{"A-": initial})

		var wg sync.WaitGroup
		var mu sync.Mutex
		issued := 0
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(units int) {
				defer wg.Done()
				if ledger.debit("A-", units) {
					mu.Lock()
					issued += units
					mu.Unlock()
				}
			}(1 + i%3)
		}
		wg.Wait()

		remaining := ledger.available["A-"]
		if remaining < 0 {
			t.Fatalf("run=%d stock went negative: %d", run, remaining)
		}
		if issued+remaining != initial {
			t.Fatalf("run=%d ledger drifted: issued=%d remaining=%d initial=%d", run, issued, remaining, initial)
		}
	}
}

func TestConcurrentApproveHasOneWinner(t *testing.T) {
	for run := 0; run < 100; run++ {
		requests := &fakeRequests{status: map[int]string{1: "Pending"}}

		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if requests.transition(1, "Pending", "Approved") {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if wins != 1 {
			t.Fatalf("run=%d expected exactly 1 approval winner, got %d", run, wins)
		}
	}
}

func TestApproveRejectRaceHasOneWinner(t *testing.T) {
	for run := 0; run < 100; run++ {
		requests := &fakeRequests{status: map[int]string{1: "Pending"}}

		var wg sync.WaitGroup
		results := make(chan string, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			if requests.transition(1, "Pending", "Approved") {
				results <- "Approved"
			}
		}()
		go func() {
			defer wg.Done()
			if requests.transition(1, "Pending", "Rejected") {
				results <- "Rejected"
			}
		}()
		wg.Wait()
		close(results)

		var outcomes []string
		for r := range results {
			outcomes = append(outcomes, r)
		}
		if len(outcomes) != 1 {
			t.Fatalf("run=%d expected exactly 1 transition winner, got %v", run, outcomes)
		}
		if got := requests.status[1]; got != outcomes[0] {
			t.Fatalf("run=%d final status %q does not match winner %q", run, got, outcomes[0])
		}
	}
}

func TestFulfillRequiresApproved(t *testing.T) {
	requests := &fakeRequests{status: map[int]string{1: "Pending", 2: "Approved", 3: "Fulfilled"}}

	if requests.transition(1, "Approved", "Fulfilled") {
		t.Fatal("pending request must not be fulfillable")
	}
	if !requests.transition(2, "Approved", "Fulfilled") {
		t.Fatal("approved request must be fulfillable")
	}
	if requests.transition(3, "Approved", "Fulfilled") {
		t.Fatal("fulfilled request must not be fulfillable twice")
	}
}
