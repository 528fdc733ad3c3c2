package dao

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/privyballot/privyballot-sync/src/shared/ledger"
)

// ErrStillPending reports that the polling budget ran out before the oracle
// fulfilled the reveal. It is a "try again later" state, not a failure: the
// proposal stays visibly decryption-pending.
var ErrStillPending = errors.New("reveal still pending")

// Coordinator drives the request-reveal / poll / finalize protocol. The
// proposal's state machine (Voting -> AwaitingReveal -> DecryptionPending ->
// Revealed) is owned by the contract and the oracle; this component only
// pushes the one transition it can and observes the rest.
type Coordinator struct {
	ledger ledger.Client
	sync   *Synchronizer
}

func NewCoordinator(lc ledger.Client, sync *Synchronizer) *Coordinator {
	return &Coordinator{ledger: lc, sync: sync}
}

// RequestReveal submits the reveal transaction. "Decryption pending" from a
// concurrent caller means the work is already underway, so it is treated as
// success and the caller proceeds straight to polling. Every other rejection
// ("Too early" in particular) is a user error surfaced verbatim.
func (c *Coordinator) RequestReveal(ctx context.Context, id uint64) (common.Hash, error) {
	txHash, err := c.ledger.RequestReveal(ctx, id)
	if err != nil {
		if rej, ok := ledger.AsRejection(err); ok && rej.Reason == ledger.ReasonDecryptionPending {
			log.Printf("reveal: proposal %d already pending, proceeding to poll", id)
			return common.Hash{}, nil
		}
		return common.Hash{}, err
	}
	return txHash, nil
}

// PollUntilRevealed reads the proposal status up to maxAttempts times,
// interval apart, and returns the tallies as soon as the oracle has
// fulfilled. Safe to call on an already revealed proposal (first attempt
// returns the cached tallies). Cancelling the context abandons the loop
// cleanly; the loop only reads, so nothing is orphaned.
func (c *Coordinator) PollUntilRevealed(ctx context.Context, id uint64, maxAttempts int, interval time.Duration) (RevealResult, error) {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		status, err := c.sync.Status(ctx, id)
		switch {
		case err == nil && status.Revealed:
			return RevealResult{Yes: status.Yes, No: status.No}, nil
		case err == nil:
			// Still pending; fall through to the wait.
		case errors.Is(err, ErrThrottled):
			// Gate said not yet; the wait below is the retry schedule.
		default:
			log.Printf("reveal: poll %d/%d for proposal %d: %v", attempt, maxAttempts, id, err)
		}

		if attempt == maxAttempts {
			break
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return RevealResult{}, ctx.Err()
		case <-timer.C:
		}
	}
	return RevealResult{}, ErrStillPending
}
