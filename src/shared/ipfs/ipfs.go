package ipfs

import (
	"context"
	"errors"
	"fmt"

	"github.com/microcosm-cc/bluemonday"
)

// ErrNotFound reports that no gateway could produce the metadata. The sync
// engine treats any Get failure as "metadata unavailable", never as fatal.
var ErrNotFound = errors.New("metadata not found")

// ProposalMetadata is the off-chain descriptive content of a proposal,
// written once at creation time and never mutated.
type ProposalMetadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Options     []string `json:"options"`
	Creator     string   `json:"creator"`
	CreatedAt   int64    `json:"createdAt"`
	Tags        []string `json:"tags,omitempty"`
}

// Validate checks the invariants the contract cannot: a title and at least
// two options.
func (m *ProposalMetadata) Validate() error {
	if m.Title == "" {
		return fmt.Errorf("metadata title required")
	}
	if len(m.Options) < 2 {
		return fmt.Errorf("metadata needs at least 2 options, got %d", len(m.Options))
	}
	return nil
}

var sanitizer = bluemonday.StrictPolicy()

// Sanitize strips any markup from user-authored fields. Metadata comes back
// from public gateways, so it is treated as untrusted on both write and read.
func (m *ProposalMetadata) Sanitize() {
	m.Title = sanitizer.Sanitize(m.Title)
	m.Description = sanitizer.Sanitize(m.Description)
	for i, opt := range m.Options {
		m.Options[i] = sanitizer.Sanitize(opt)
	}
	for i, tag := range m.Tags {
		m.Tags[i] = sanitizer.Sanitize(tag)
	}
}

// Store is the content-addressed metadata backend. Implementations: Pinata
// (production), Mock (development and tests), Cached (redis read-through
// wrapper around either).
type Store interface {
	Put(ctx context.Context, metadata *ProposalMetadata) (string, error)
	Get(ctx context.Context, address string) (*ProposalMetadata, error)
	Delete(ctx context.Context, address string) (bool, error)
}
