package coordinator

import (
	"context"
)

// Status is the outcome of a mutation command.
type Status int

const (
	// Applied means the local change was applied and the remote accepted it.
	Applied Status = iota
	// FailedApplied means the local change was applied but the remote write
	// failed. The cache keeps the optimistic value until the next refresh.
	FailedApplied
	// Rejected means the command was refused before any cache or remote
	// effect.
	Rejected
)

func (s Status) String() string {
	switch s {
	case Applied:
		return "applied"
	case FailedApplied:
		return "failed_applied"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Result is the settled outcome of a command.
type Result struct {
	Status Status
	// Err is set for FailedApplied and Rejected.
	Err error
	// ID is the authoritative id of the written entity when the command
	// created or re-keyed one.
	ID string
}

// OK reports whether the command fully succeeded.
func (r Result) OK() bool { return r.Status == Applied }

// Pending is a command whose remote write may still be in flight. The local
// change, if any, is already visible in the cache when the command returns.
type Pending struct {
	done chan struct{}
	res  Result
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func settled(res Result) *Pending {
	p := newPending()
	p.resolve(res)
	return p
}

func (p *Pending) resolve(res Result) {
	p.res = res
	close(p.done)
}

// Done is closed once the result is known.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the result is known or ctx ends. Giving up on the wait
// does not cancel the write.
func (p *Pending) Wait(ctx context.Context) (Result, error) {
	select {
	case <-p.done:
		return p.res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Result returns the outcome if it is known.
func (p *Pending) Result() (Result, bool) {
	select {
	case <-p.done:
		return p.res, true
	default:
		return Result{}, false
	}
}
