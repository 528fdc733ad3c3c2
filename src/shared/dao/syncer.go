package dao

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/privyballot/privyballot-sync/src/shared/codec"
	"github.com/privyballot/privyballot-sync/src/shared/gate"
	"github.com/privyballot/privyballot-sync/src/shared/ipfs"
	"github.com/privyballot/privyballot-sync/src/shared/ledger"
	"github.com/privyballot/privyballot-sync/src/shared/overlay"
)

// ErrThrottled reports a request-gate denial. It is an expected outcome, not
// a failure: callers retry on their own schedule.
var ErrThrottled = errors.New("request gate denied")

const (
	defaultFetchConcurrency = 8
	defaultMetadataTimeout  = 5 * time.Second
)

// Synchronizer merges authoritative ledger state with content-store metadata
// and the local overlay into one consistent per-account view. It only reads;
// the gate's counters are its sole shared mutable state.
type Synchronizer struct {
	ledger   ledger.Client
	contents ipfs.Store
	overlay  *overlay.Store
	gate     *gate.Gate
	codec    *codec.Codec

	expectedChainID  uint64
	fetchConcurrency int
	metadataTimeout  time.Duration
}

func NewSynchronizer(lc ledger.Client, contents ipfs.Store, ov *overlay.Store, g *gate.Gate, cd *codec.Codec, expectedChainID uint64) *Synchronizer {
	return &Synchronizer{
		ledger:           lc,
		contents:         contents,
		overlay:          ov,
		gate:             g,
		codec:            cd,
		expectedChainID:  expectedChainID,
		fetchConcurrency: defaultFetchConcurrency,
		metadataTimeout:  defaultMetadataTimeout,
	}
}

// Sync assembles the proposal list for one account. Gate denials and
// transport failures both yield an empty list: the caller never sees a
// partial, inconsistent pass, and never an error it could not act on.
// account may be empty for an anonymous view.
func (s *Synchronizer) Sync(ctx context.Context, account string, mode Mode) []ProposalView {
	kind := gate.Normal
	if mode == StatusOnly {
		kind = gate.PollProbe
	}
	if d := s.gate.TryAcquire(kind); !d.Allowed {
		log.Printf("sync: gate denied (%s), retry in %s", d.Reason, d.RetryAfter)
		return nil
	}

	views, err := s.syncPass(ctx, account, mode)
	if err != nil {
		log.Printf("sync: pass failed: %v", err)
		s.gate.RecordFailure()
		return nil
	}
	s.gate.RecordSuccess()
	return views
}

func (s *Synchronizer) syncPass(ctx context.Context, account string, mode Mode) ([]ProposalView, error) {
	// Never query the wrong ledger silently.
	chainID, err := s.ledger.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	if chainID != s.expectedChainID {
		return nil, fmt.Errorf("connected to chain %d, expected %d", chainID, s.expectedChainID)
	}

	hasCode, err := s.ledger.HasCode(ctx)
	if err != nil {
		return nil, err
	}
	if !hasCode {
		return nil, errors.New("no contract code at configured address")
	}

	count, err := s.ledger.ProposalCount(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return []ProposalView{}, nil
	}

	var (
		votes   map[uint64]overlay.VoteRecord
		deleted map[uint64]bool
	)
	if account != "" {
		if votes, err = s.overlay.Votes(account); err != nil {
			return nil, err
		}
		if deleted, err = s.overlay.DeletedSet(account); err != nil {
			return nil, err
		}
	}

	// Per-proposal reads are independent, so they run concurrently under a
	// small semaphore; completion order does not matter.
	type fetched struct {
		view *ProposalView
		err  error
	}
	results := make([]fetched, count)
	sem := make(chan struct{}, s.fetchConcurrency)
	var wg sync.WaitGroup
	for id := uint64(0); id < count; id++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			view, err := s.fetchOne(ctx, id, account, mode)
			results[id] = fetched{view: view, err: err}
		}(id)
	}
	wg.Wait()

	views := make([]ProposalView, 0, count)
	for id := uint64(0); id < count; id++ {
		if results[id].err != nil {
			// A failed authoritative read poisons the pass: empty beats
			// a list with silently missing entries.
			return nil, results[id].err
		}
		view := results[id].view
		if deleted[view.ID] {
			continue
		}
		if rec, ok := votes[view.ID]; ok {
			if view.HasVoted && !rec.Confirmed {
				if err := s.overlay.ConfirmVote(view.ID, account); err != nil {
					log.Printf("sync: confirm vote %d for %s: %v", view.ID, account, err)
				}
			}
			view.HasVoted = true
		}
		views = append(views, *view)
	}

	// Most recent first.
	sort.Slice(views, func(i, j int) bool { return views[i].ID > views[j].ID })
	return views, nil
}

// fetchOne reads one proposal's authoritative fields and, in Full mode, its
// metadata. Ledger read errors fail the pass; unresolved identifiers and
// content-store misses only null the metadata.
func (s *Synchronizer) fetchOne(ctx context.Context, id uint64, account string, mode Mode) (*ProposalView, error) {
	state, err := s.ledger.Proposal(ctx, id)
	if err != nil {
		return nil, err
	}

	view := &ProposalView{
		ID:                id,
		Field:             codec.FieldHex(state.Field),
		Creator:           state.Creator.Hex(),
		Deadline:          time.Unix(int64(state.Deadline), 0).UTC(),
		Revealed:          state.Revealed,
		DecryptionPending: state.DecryptionPending,
		Yes:               state.Yes,
		No:                state.No,
	}

	if account != "" {
		voted, err := s.ledger.HasVoted(ctx, id, common.HexToAddress(account))
		if err != nil {
			return nil, err
		}
		view.HasVoted = voted
	}

	address, err := s.codec.Decode(state.Field)
	if err != nil {
		// Unresolved identifiers are terminal for metadata: no network
		// call can recover them, so don't make one.
		if !errors.Is(err, codec.ErrUnresolved) {
			return nil, err
		}
		log.Printf("sync: proposal %d metadata unavailable: %v", id, err)
		return view, nil
	}
	view.ContentAddress = address

	if mode == StatusOnly {
		return view, nil
	}

	metaCtx, cancel := context.WithTimeout(ctx, s.metadataTimeout)
	defer cancel()
	metadata, err := s.contents.Get(metaCtx, address)
	if err != nil {
		log.Printf("sync: proposal %d metadata fetch %s: %v", id, address, err)
		return view, nil
	}
	view.Metadata = metadata
	return view, nil
}

// Status is the lightweight single-proposal read used by reveal polling. It
// runs under the PollProbe gate kind and skips the network and metadata
// checks of a full pass.
func (s *Synchronizer) Status(ctx context.Context, id uint64) (*ProposalStatus, error) {
	if d := s.gate.TryAcquire(gate.PollProbe); !d.Allowed {
		return nil, ErrThrottled
	}

	state, err := s.ledger.Proposal(ctx, id)
	if err != nil {
		s.gate.RecordFailure()
		return nil, err
	}
	s.gate.RecordSuccess()

	return &ProposalStatus{
		ID:                id,
		Deadline:          time.Unix(int64(state.Deadline), 0).UTC(),
		Revealed:          state.Revealed,
		DecryptionPending: state.DecryptionPending,
		Yes:               state.Yes,
		No:                state.No,
	}, nil
}

// Run re-syncs on a fixed interval until the context ends, keeping the
// metadata cache warm for interactive callers. Pattern borrowed from the
// multi-network referendum indexer this service grew out of.
func (s *Synchronizer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Sync(ctx, "", Full)
	for {
		select {
		case <-ctx.Done():
			log.Printf("sync: background loop stopping")
			return
		case <-ticker.C:
			s.Sync(ctx, "", Full)
		}
	}
}

