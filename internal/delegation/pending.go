package delegation

import (
	"sync/atomic"
	"time"
)

// delegationOutcome is the single-assignment result of a pending request.
type delegationOutcome struct {
	resp *Response
	err  error
}

// pendingRequest is the in-flight bookkeeping record for one delegation.
// The state field is a compare-and-swap guard: whichever of response
// arrival, deadline, cancellation or shutdown swaps it first wins, and
// every later resolve attempt is a no-op.
type pendingRequest struct {
	correlationID string
	targetAgent   string
	deadline      time.Time

	state   atomic.Bool
	outcome chan delegationOutcome
	done    chan struct{}
}

func newPendingRequest(corrID, targetAgent string, deadline time.Time) *pendingRequest {
	return &pendingRequest{
		correlationID: corrID,
		targetAgent:   targetAgent,
		deadline:      deadline,
		outcome:       make(chan delegationOutcome, 1),
		done:          make(chan struct{}),
	}
}

// resolve records the outcome if this is the first resolution attempt.
// Returns true if this call won the race.
func (p *pendingRequest) resolve(resp *Response, err error) bool {
	if !p.state.CompareAndSwap(false, true) {
		return false
	}
	p.outcome <- delegationOutcome{resp: resp, err: err}
	close(p.done)
	return true
}
