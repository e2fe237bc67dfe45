// Package ledger defines C5's out-of-scope settlement collaborator (§6.2):
// the boundary across which reward/slash/burn effects become durable. No
// on-chain or off-chain bridge is implemented here — that integration is
// explicitly out of scope (spec.md §1) — only the contract and two
// in-process adapters exercised by tests and local wiring.
package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/deep60/nexus-intel/domain"
	"github.com/deep60/nexus-intel/infrastructure/logging"
)

// Applied is the ledger's acknowledgement of a settlement.
type Applied struct {
	TxRef string
}

// TransientError marks a settlement attempt that should be retried (§6.2).
type TransientError struct{ Err error }

func (e *TransientError) Error() string { return fmt.Sprintf("ledger transient error: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a settlement attempt that must not be retried.
// platform.Core.Finalize logs it and leaves the bounty UnderReview; the
// bounty is not moved to Disputed.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return fmt.Sprintf("ledger permanent error: %v", e.Err) }
func (e *PermanentError) Unwrap() error { return e.Err }

// Ledger applies a Settlement atomically: either every reward, stake
// return, and slash entry is accepted, or none are.
type Ledger interface {
	Apply(ctx context.Context, s domain.Settlement) (Applied, error)
}

// StubLedger is an in-memory, deterministic test double. Settlements are
// deduplicated by idempotency key, matching the real ledger's idempotent
// retry contract (§4.5.5).
type StubLedger struct {
	mu      sync.Mutex
	applied map[string]Applied
	seq     int
}

// NewStubLedger returns an empty StubLedger.
func NewStubLedger() *StubLedger {
	return &StubLedger{applied: make(map[string]Applied)}
}

// Apply records the settlement if its idempotency key hasn't been seen
// before; a repeat call with the same key returns the original Applied
// value without side effects (§8 property 4).
func (l *StubLedger) Apply(ctx context.Context, s domain.Settlement) (Applied, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.applied[s.IdempotencyKey]; ok {
		return existing, nil
	}
	l.seq++
	applied := Applied{TxRef: fmt.Sprintf("stub-tx-%d", l.seq)}
	l.applied[s.IdempotencyKey] = applied
	return applied, nil
}

// Entries returns the number of distinct settlements recorded, for tests
// asserting idempotent application.
func (l *StubLedger) Entries() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.applied)
}

// LoggingLedger decorates a Ledger with structured before/after logging.
type LoggingLedger struct {
	inner Ledger
	log   *logging.Logger
}

// NewLoggingLedger wraps inner with logging via log.
func NewLoggingLedger(inner Ledger, log *logging.Logger) *LoggingLedger {
	if log == nil {
		log = logging.Default()
	}
	return &LoggingLedger{inner: inner, log: log}
}

// Apply delegates to the wrapped ledger, logging the outcome via
// LogLedgerEmission (adapted from the teacher's blockchain-tx log idiom).
func (l *LoggingLedger) Apply(ctx context.Context, s domain.Settlement) (Applied, error) {
	applied, err := l.inner.Apply(ctx, s)
	l.log.LogLedgerEmission(ctx, s.BountyID, s.IdempotencyKey, err)
	return applied, err
}

var _ Ledger = (*StubLedger)(nil)
var _ Ledger = (*LoggingLedger)(nil)
