package fhe

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// EncryptedVote is the opaque ballot submitted on chain: a fixed-width
// ciphertext handle plus a variable-length input proof. The engine depends on
// nothing else about it.
type EncryptedVote struct {
	Handle [32]byte
	Proof  []byte
}

// Encryptor is the encryption collaborator boundary. The production
// implementation wraps the coprocessor SDK; the mock ships with the repo so
// the rest of the engine is testable without it.
type Encryptor interface {
	EncryptBool(ctx context.Context, choice bool, contract, account common.Address) (EncryptedVote, error)
}

// MockEncryptor emits randomly generated ciphertext of the shapes the real
// coprocessor produces: a 32-byte handle and a 64-byte proof.
type MockEncryptor struct{}

func NewMock() *MockEncryptor { return &MockEncryptor{} }

func (MockEncryptor) EncryptBool(_ context.Context, _ bool, _, _ common.Address) (EncryptedVote, error) {
	var vote EncryptedVote
	if _, err := rand.Read(vote.Handle[:]); err != nil {
		return EncryptedVote{}, fmt.Errorf("mock encrypt: %w", err)
	}
	vote.Proof = make([]byte, 64)
	if _, err := rand.Read(vote.Proof); err != nil {
		return EncryptedVote{}, fmt.Errorf("mock encrypt: %w", err)
	}
	return vote, nil
}
