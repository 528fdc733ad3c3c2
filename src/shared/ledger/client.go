package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// ProposalState is the authoritative on-chain view of one proposal, as
// returned by getProposalPublic. Tallies are zero until the proposal is
// revealed.
type ProposalState struct {
	Field             [32]byte
	Creator           common.Address
	Deadline          uint64 // unix seconds
	Revealed          bool
	DecryptionPending bool
	Yes               uint64
	No                uint64
}

// Client is the subset of the voting contract the sync engine uses. The EVM
// implementation lives in evm.go; tests substitute a fake.
type Client interface {
	// ChainID reports the connected network.
	ChainID(ctx context.Context) (uint64, error)
	// HasCode probes for deployed bytecode at the contract address.
	HasCode(ctx context.Context) (bool, error)

	ProposalCount(ctx context.Context) (uint64, error)
	Proposal(ctx context.Context, id uint64) (ProposalState, error)
	HasVoted(ctx context.Context, id uint64, voter common.Address) (bool, error)

	// CreateProposal submits the transaction and waits for confirmation,
	// returning the assigned id from the ProposalCreated event.
	CreateProposal(ctx context.Context, field [32]byte, durationSeconds uint64) (id uint64, txHash common.Hash, err error)
	// Vote submits an encrypted ballot.
	Vote(ctx context.Context, id uint64, handle [32]byte, proof []byte) (common.Hash, error)
	// RequestReveal asks the decryption oracle for the tallies.
	RequestReveal(ctx context.Context, id uint64) (common.Hash, error)
}
