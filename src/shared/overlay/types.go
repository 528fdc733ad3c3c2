package overlay

import "time"

// Vote choices as stored locally.
const (
	ChoiceYes = "yes"
	ChoiceNo  = "no"
)

// VoteRecord is the speculative local record of a vote transaction. It is
// created when the transaction is submitted and confirmed once the ledger
// reports hasVoted; it is never deleted.
type VoteRecord struct {
	ProposalID  uint64 `gorm:"primaryKey;autoIncrement:false"`
	Account     string `gorm:"primaryKey;size:64"`
	Choice      string `gorm:"size:8;not null"`
	SubmittedAt time.Time
	Confirmed   bool `gorm:"default:false"`
}

// DeletionMark hides a proposal from one account's view. Purely local; the
// ledger never sees it.
type DeletionMark struct {
	ProposalID uint64 `gorm:"primaryKey;autoIncrement:false"`
	Account    string `gorm:"primaryKey;size:64"`
	CreatedAt  time.Time
}

// IdentifierMapping reconstructs a content address whose on-chain field was
// written as a digest because the address exceeded the field width. Keyed by
// the 0x-hex form of the field.
type IdentifierMapping struct {
	Field     string `gorm:"primaryKey;size:66"`
	Address   string `gorm:"size:512;not null"`
	CreatedAt time.Time
}

// Models lists everything the overlay store migrates.
func Models() []any {
	return []any{&VoteRecord{}, &DeletionMark{}, &IdentifierMapping{}}
}
