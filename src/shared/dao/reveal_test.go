package dao

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/privyballot/privyballot-sync/src/shared/gate"
	"github.com/privyballot/privyballot-sync/src/shared/ledger"
)

func TestRequestRevealTooEarly(t *testing.T) {
	e := newEngine(t)
	id := e.createProposal(t, "Early bird", 3600)

	_, err := e.reveal.RequestReveal(context.Background(), id)
	rej, ok := ledger.AsRejection(err)
	require.True(t, ok)
	require.Equal(t, ledger.ReasonTooEarly, rej.Reason)
}

func TestRequestRevealAlreadyPendingIsSuccess(t *testing.T) {
	e := newEngine(t)
	id := e.createProposal(t, "Race to reveal", 3600)
	e.clock.advance(3601 * time.Second)

	_, err := e.reveal.RequestReveal(context.Background(), id)
	require.NoError(t, err)

	// The losing side of the race must not surface an error.
	_, err = e.reveal.RequestReveal(context.Background(), id)
	require.NoError(t, err)
}

func TestPollUntilRevealedExhaustsBudget(t *testing.T) {
	e := newEngine(t)
	id := e.createProposal(t, "Slow oracle", 3600)
	e.clock.advance(3601 * time.Second)
	_, err := e.reveal.RequestReveal(context.Background(), id)
	require.NoError(t, err)

	// The oracle never fulfills; the poll budget runs out.
	e.clock.advance(gate.MinRequestInterval)
	_, err = e.reveal.PollUntilRevealed(context.Background(), id, 3, time.Millisecond)
	require.ErrorIs(t, err, ErrStillPending)
}

func TestPollUntilRevealedAlreadyRevealed(t *testing.T) {
	e := newEngine(t)
	id := e.createProposal(t, "Done deal", 3600)
	e.clock.advance(3601 * time.Second)
	_, err := e.reveal.RequestReveal(context.Background(), id)
	require.NoError(t, err)
	e.ledger.fulfill(id, 2, 3)

	e.clock.advance(gate.MinRequestInterval)
	result, err := e.reveal.PollUntilRevealed(context.Background(), id, 1, time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, RevealResult{Yes: 2, No: 3}, result)

	// Tallies are final; a repeat poll reads the same answer.
	e.clock.advance(gate.MinRequestInterval)
	again, err := e.reveal.PollUntilRevealed(context.Background(), id, 1, time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, result, again)
}

func TestPollUntilRevealedHonorsCancel(t *testing.T) {
	e := newEngine(t)
	id := e.createProposal(t, "Cancelled", 3600)
	e.clock.advance(3601 * time.Second)
	_, err := e.reveal.RequestReveal(context.Background(), id)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e.clock.advance(gate.MinRequestInterval)
	_, err = e.reveal.PollUntilRevealed(ctx, id, 10, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
}
