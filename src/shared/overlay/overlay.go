package overlay

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ErrAlreadyVoted is returned when a second, conflicting vote is recorded for
// the same proposal and account. Re-recording the identical vote is a no-op.
var ErrAlreadyVoted = errors.New("vote already recorded for this proposal")

// Store is the durable per-account overlay layered on top of ledger state:
// votes cast, deletion marks, and identifier-fallback mappings. Each account
// interacts through one client session at a time, so no locking beyond what
// the database provides is needed.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the overlay tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

// RecordVote writes the speculative vote record for (proposal, account).
// Identical re-submission is a no-op; a conflicting choice for an existing
// key is rejected locally, independent of the ledger's own guard.
func (s *Store) RecordVote(proposalID uint64, account, choice string) error {
	if choice != ChoiceYes && choice != ChoiceNo {
		return fmt.Errorf("invalid choice %q", choice)
	}

	var existing VoteRecord
	err := s.db.First(&existing, "proposal_id = ? AND account = ?", proposalID, account).Error
	switch {
	case err == nil:
		if existing.Choice == choice {
			return nil
		}
		return ErrAlreadyVoted
	case errors.Is(err, gorm.ErrRecordNotFound):
		rec := VoteRecord{
			ProposalID:  proposalID,
			Account:     account,
			Choice:      choice,
			SubmittedAt: time.Now(),
		}
		return s.db.Create(&rec).Error
	default:
		return err
	}
}

// ConfirmVote flips the record to confirmed once the ledger acknowledges
// hasVoted. Confirmation is monotonic; confirming a missing or already
// confirmed record is a no-op.
func (s *Store) ConfirmVote(proposalID uint64, account string) error {
	return s.db.Model(&VoteRecord{}).
		Where("proposal_id = ? AND account = ?", proposalID, account).
		Update("confirmed", true).Error
}

// Votes returns every vote record for the account keyed by proposal id.
func (s *Store) Votes(account string) (map[uint64]VoteRecord, error) {
	var records []VoteRecord
	if err := s.db.Where("account = ?", account).Find(&records).Error; err != nil {
		return nil, err
	}
	out := make(map[uint64]VoteRecord, len(records))
	for _, r := range records {
		out[r.ProposalID] = r
	}
	return out, nil
}

// MarkDeleted hides the proposal from the account's view. Idempotent.
func (s *Store) MarkDeleted(proposalID uint64, account string) error {
	mark := DeletionMark{ProposalID: proposalID, Account: account, CreatedAt: time.Now()}
	err := s.db.Where("proposal_id = ? AND account = ?", proposalID, account).
		FirstOrCreate(&mark).Error
	return err
}

// IsDeleted reports whether the account has hidden the proposal.
func (s *Store) IsDeleted(proposalID uint64, account string) (bool, error) {
	var count int64
	err := s.db.Model(&DeletionMark{}).
		Where("proposal_id = ? AND account = ?", proposalID, account).
		Count(&count).Error
	return count > 0, err
}

// DeletedSet returns all proposal ids the account has hidden.
func (s *Store) DeletedSet(account string) (map[uint64]bool, error) {
	var marks []DeletionMark
	if err := s.db.Where("account = ?", account).Find(&marks).Error; err != nil {
		return nil, err
	}
	out := make(map[uint64]bool, len(marks))
	for _, m := range marks {
		out[m.ProposalID] = true
	}
	return out, nil
}

// PutIdentifierMapping persists a digest-to-address pair. Idempotent.
func (s *Store) PutIdentifierMapping(field, address string) error {
	mapping := IdentifierMapping{Field: field, Address: address, CreatedAt: time.Now()}
	return s.db.Where("field = ?", field).FirstOrCreate(&mapping).Error
}

// IdentifierMapping looks up the content address for a digest field.
func (s *Store) IdentifierMapping(field string) (string, bool, error) {
	var mapping IdentifierMapping
	err := s.db.First(&mapping, "field = ?", field).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return mapping.Address, true, nil
}

// Reset destructively clears all per-account local state: votes and deletion
// marks. Identifier mappings are account-agnostic and survive, otherwise a
// reset would orphan every digest-encoded proposal for all accounts.
func (s *Store) Reset(account string) error {
	if err := s.db.Where("account = ?", account).Delete(&VoteRecord{}).Error; err != nil {
		return err
	}
	return s.db.Where("account = ?", account).Delete(&DeletionMark{}).Error
}
