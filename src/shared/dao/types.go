package dao

import (
	"time"

	"github.com/privyballot/privyballot-sync/src/shared/ipfs"
)

// Mode selects how much of a proposal view a sync pass assembles.
type Mode int

const (
	// Full resolves metadata and the per-account overlay.
	Full Mode = iota
	// StatusOnly skips content-store fetches; used for reveal polling.
	StatusOnly
)

// ProposalView is the merged, display-ready proposal, rebuilt from scratch on
// every sync pass. The ledger is authoritative for everything except
// metadata (content store) and hasVoted/deleted (local overlay, until the
// ledger confirms otherwise).
type ProposalView struct {
	ID                uint64                 `json:"id"`
	Field             string                 `json:"onChainField"`
	ContentAddress    string                 `json:"contentAddress,omitempty"`
	Metadata          *ipfs.ProposalMetadata `json:"metadata"`
	Creator           string                 `json:"creator"`
	Deadline          time.Time              `json:"deadline"`
	Revealed          bool                   `json:"revealed"`
	DecryptionPending bool                   `json:"decryptionPending"`
	Yes               uint64                 `json:"yes"`
	No                uint64                 `json:"no"`
	HasVoted          bool                   `json:"hasVoted"`
}

// ProposalStatus is the lightweight single-proposal read used while polling
// for a reveal.
type ProposalStatus struct {
	ID                uint64    `json:"id"`
	Deadline          time.Time `json:"deadline"`
	Revealed          bool      `json:"revealed"`
	DecryptionPending bool      `json:"decryptionPending"`
	Yes               uint64    `json:"yes"`
	No                uint64    `json:"no"`
}

// RevealResult carries the decrypted tallies once the oracle has fulfilled a
// reveal request.
type RevealResult struct {
	Yes uint64 `json:"yes"`
	No  uint64 `json:"no"`
}
