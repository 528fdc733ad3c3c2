package overlay

import (
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	return NewStore(db)
}

func TestRecordVoteIdempotent(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.RecordVote(7, "0xabc", ChoiceYes))
	// Identical re-submission is a no-op.
	require.NoError(t, s.RecordVote(7, "0xabc", ChoiceYes))

	votes, err := s.Votes("0xabc")
	require.NoError(t, err)
	require.Len(t, votes, 1)
	require.Equal(t, ChoiceYes, votes[7].Choice)
	require.False(t, votes[7].Confirmed)
}

func TestRecordVoteConflictRejected(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.RecordVote(7, "0xabc", ChoiceYes))
	err := s.RecordVote(7, "0xabc", ChoiceNo)
	require.True(t, errors.Is(err, ErrAlreadyVoted))

	// The original record is untouched.
	votes, err := s.Votes("0xabc")
	require.NoError(t, err)
	require.Equal(t, ChoiceYes, votes[7].Choice)
}

func TestRecordVoteRejectsBadChoice(t *testing.T) {
	s := newTestStore(t)
	require.Error(t, s.RecordVote(1, "0xabc", "abstain"))
}

func TestConfirmVoteMonotonic(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.RecordVote(3, "0xabc", ChoiceNo))
	require.NoError(t, s.ConfirmVote(3, "0xabc"))
	require.NoError(t, s.ConfirmVote(3, "0xabc"))

	votes, err := s.Votes("0xabc")
	require.NoError(t, err)
	require.True(t, votes[3].Confirmed)

	// Confirming a record that does not exist is a no-op.
	require.NoError(t, s.ConfirmVote(99, "0xabc"))
}

func TestVotesAreScopedPerAccount(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.RecordVote(1, "0xaaa", ChoiceYes))
	require.NoError(t, s.RecordVote(1, "0xbbb", ChoiceNo))

	a, err := s.Votes("0xaaa")
	require.NoError(t, err)
	b, err := s.Votes("0xbbb")
	require.NoError(t, err)
	require.Equal(t, ChoiceYes, a[1].Choice)
	require.Equal(t, ChoiceNo, b[1].Choice)
}

func TestDeletionMarks(t *testing.T) {
	s := newTestStore(t)

	deleted, err := s.IsDeleted(5, "0xaaa")
	require.NoError(t, err)
	require.False(t, deleted)

	require.NoError(t, s.MarkDeleted(5, "0xaaa"))
	require.NoError(t, s.MarkDeleted(5, "0xaaa")) // idempotent

	deleted, err = s.IsDeleted(5, "0xaaa")
	require.NoError(t, err)
	require.True(t, deleted)

	// Deletion is local to the account that asked for it.
	deleted, err = s.IsDeleted(5, "0xbbb")
	require.NoError(t, err)
	require.False(t, deleted)

	set, err := s.DeletedSet("0xaaa")
	require.NoError(t, err)
	require.True(t, set[5])
	require.Len(t, set, 1)
}

func TestIdentifierMappings(t *testing.T) {
	s := newTestStore(t)

	_, ok, err := s.IdentifierMapping("0x01")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.PutIdentifierMapping("0x01", "QmLongAddress"))
	require.NoError(t, s.PutIdentifierMapping("0x01", "QmLongAddress")) // idempotent

	addr, ok, err := s.IdentifierMapping("0x01")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "QmLongAddress", addr)
}

func TestResetClearsAccountStateOnly(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.RecordVote(1, "0xaaa", ChoiceYes))
	require.NoError(t, s.MarkDeleted(2, "0xaaa"))
	require.NoError(t, s.RecordVote(1, "0xbbb", ChoiceNo))
	require.NoError(t, s.PutIdentifierMapping("0x02", "QmKeepMe"))

	require.NoError(t, s.Reset("0xaaa"))

	votes, err := s.Votes("0xaaa")
	require.NoError(t, err)
	require.Empty(t, votes)
	deleted, err := s.IsDeleted(2, "0xaaa")
	require.NoError(t, err)
	require.False(t, deleted)

	// Other accounts and the shared mappings survive.
	votes, err = s.Votes("0xbbb")
	require.NoError(t, err)
	require.Len(t, votes, 1)
	_, ok, err := s.IdentifierMapping("0x02")
	require.NoError(t, err)
	require.True(t, ok)
}
