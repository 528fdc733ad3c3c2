package dao

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/privyballot/privyballot-sync/src/shared/codec"
	"github.com/privyballot/privyballot-sync/src/shared/gate"
	"github.com/privyballot/privyballot-sync/src/shared/ipfs"
	"github.com/privyballot/privyballot-sync/src/shared/ledger"
	"github.com/privyballot/privyballot-sync/src/shared/overlay"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func addr(s string) common.Address {
	return common.HexToAddress(s)
}

func ledgerStateWithField(field [32]byte, deadline uint64) ledger.ProposalState {
	return ledger.ProposalState{Field: field, Deadline: deadline}
}

type fakeProposal struct {
	state  ledger.ProposalState
	voters map[common.Address]bool
}

// fakeLedger reproduces the contract's guard semantics in memory, including
// the revert reasons the real provider would surface.
type fakeLedger struct {
	mu        sync.Mutex
	clock     *fakeClock
	chainID   uint64
	hasCode   bool
	readErr   error
	proposals []*fakeProposal
	readCalls int
}

func newFakeLedger(clock *fakeClock) *fakeLedger {
	return &fakeLedger{clock: clock, chainID: 31337, hasCode: true}
}

func (f *fakeLedger) ChainID(context.Context) (uint64, error) {
	return f.chainID, nil
}

func (f *fakeLedger) HasCode(context.Context) (bool, error) {
	return f.hasCode, nil
}

func (f *fakeLedger) ProposalCount(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return 0, f.readErr
	}
	return uint64(len(f.proposals)), nil
}

func (f *fakeLedger) Proposal(_ context.Context, id uint64) (ledger.ProposalState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readCalls++
	if f.readErr != nil {
		return ledger.ProposalState{}, f.readErr
	}
	if id >= uint64(len(f.proposals)) {
		return ledger.ProposalState{}, errors.New("no such proposal")
	}
	return f.proposals[id].state, nil
}

func (f *fakeLedger) HasVoted(_ context.Context, id uint64, voter common.Address) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return false, f.readErr
	}
	if id >= uint64(len(f.proposals)) {
		return false, errors.New("no such proposal")
	}
	return f.proposals[id].voters[voter], nil
}

func (f *fakeLedger) CreateProposal(_ context.Context, field [32]byte, durationSeconds uint64) (uint64, common.Hash, error) {
	if durationSeconds == 0 {
		return 0, common.Hash{}, &ledger.Rejection{Reason: ledger.ReasonZeroDuration}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uint64(len(f.proposals))
	f.proposals = append(f.proposals, &fakeProposal{
		state: ledger.ProposalState{
			Field:    field,
			Deadline: uint64(f.clock.now().Unix()) + durationSeconds,
		},
		voters: make(map[common.Address]bool),
	})
	return id, common.HexToHash("0x01"), nil
}

func (f *fakeLedger) Vote(_ context.Context, id uint64, _ [32]byte, _ []byte) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.proposals[id]
	if uint64(f.clock.now().Unix()) > p.state.Deadline {
		return common.Hash{}, &ledger.Rejection{Reason: ledger.ReasonVotingEnded}
	}
	return common.HexToHash("0x02"), nil
}

// voteAs records the voter the way the contract does after a successful vote
// transaction.
func (f *fakeLedger) voteAs(id uint64, voter common.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.proposals[id]
	if p.voters[voter] {
		return &ledger.Rejection{Reason: ledger.ReasonAlreadyVoted}
	}
	p.voters[voter] = true
	return nil
}

func (f *fakeLedger) RequestReveal(_ context.Context, id uint64) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.proposals[id]
	if uint64(f.clock.now().Unix()) <= p.state.Deadline {
		return common.Hash{}, &ledger.Rejection{Reason: ledger.ReasonTooEarly}
	}
	if p.state.DecryptionPending {
		return common.Hash{}, &ledger.Rejection{Reason: ledger.ReasonDecryptionPending}
	}
	p.state.DecryptionPending = true
	return common.HexToHash("0x03"), nil
}

// fulfill plays the decryption oracle: tallies become visible, pending clears.
func (f *fakeLedger) fulfill(id, yes, no uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.proposals[id]
	p.state.Revealed = true
	p.state.DecryptionPending = false
	p.state.Yes = yes
	p.state.No = no
}

// countingStore wraps a content store and counts Get calls.
type countingStore struct {
	ipfs.Store
	mu   sync.Mutex
	gets int
}

func (c *countingStore) Get(ctx context.Context, address string) (*ipfs.ProposalMetadata, error) {
	c.mu.Lock()
	c.gets++
	c.mu.Unlock()
	return c.Store.Get(ctx, address)
}

type engine struct {
	clock    *fakeClock
	ledger   *fakeLedger
	contents *countingStore
	overlay  *overlay.Store
	gate     *gate.Gate
	codec    *codec.Codec
	sync     *Synchronizer
	reveal   *Coordinator
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, overlay.Migrate(db))

	clock := newFakeClock()
	e := &engine{
		clock:    clock,
		ledger:   newFakeLedger(clock),
		contents: &countingStore{Store: ipfs.NewMock()},
		overlay:  overlay.NewStore(db),
		gate:     gate.NewWithClock(clock.now),
	}
	e.codec = codec.New(e.overlay)
	e.sync = NewSynchronizer(e.ledger, e.contents, e.overlay, e.gate, e.codec, 31337)
	e.reveal = NewCoordinator(e.ledger, e.sync)
	return e
}

// createProposal uploads metadata, encodes the address and creates the
// proposal on the fake ledger, the way the create handler does.
func (e *engine) createProposal(t *testing.T, title string, duration uint64) uint64 {
	t.Helper()
	metadata := &ipfs.ProposalMetadata{
		Title:     title,
		Options:   []string{"Yes", "No"},
		Creator:   "0x1111111111111111111111111111111111111111",
		CreatedAt: e.clock.now().Unix(),
	}
	address, err := e.contents.Put(context.Background(), metadata)
	require.NoError(t, err)
	field, err := e.codec.Encode(address)
	require.NoError(t, err)
	id, _, err := e.ledger.CreateProposal(context.Background(), field, duration)
	require.NoError(t, err)
	return id
}

// syncAs runs a full pass for the account with the gate cooldown out of the
// way.
func (e *engine) syncAs(account string) []ProposalView {
	e.clock.advance(gate.MinRequestInterval)
	return e.sync.Sync(context.Background(), account, Full)
}
