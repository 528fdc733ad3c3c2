package codec

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"
)

// FieldWidth is the fixed width of the on-chain identifier slot (bytes32).
const FieldWidth = 32

// cidV0Length is the length of a base58 CIDv0 ("Qm..."). Identifiers written
// by early deployments were cut to 32 characters before encoding, so a
// base58-clean "Qm" string shorter than this is unrecoverable.
const cidV0Length = 46

const minAddressLength = 2

// ErrUnresolved marks a field whose content address cannot be reconstructed.
// It is not a transport failure: callers should render the proposal without
// metadata rather than retry.
var ErrUnresolved = errors.New("content address unresolved")

// MappingStore persists digest-to-address pairs for identifiers that do not
// fit the field width. The overlay store implements it.
type MappingStore interface {
	PutIdentifierMapping(field, address string) error
	IdentifierMapping(field string) (string, bool, error)
}

// Codec converts content addresses to and from fixed-width on-chain fields.
type Codec struct {
	mappings MappingStore
}

func New(mappings MappingStore) *Codec {
	return &Codec{mappings: mappings}
}

// Encode packs a content address into a bytes32 field. Addresses that fit are
// zero-padded and reversible on their own; longer ones are replaced by their
// keccak256 digest and the pair is persisted before the field is returned, so
// a crash between the two steps never leaves an unreadable field on chain.
func (c *Codec) Encode(address string) ([FieldWidth]byte, error) {
	var field [FieldWidth]byte
	if len(address) < minAddressLength {
		return field, fmt.Errorf("content address too short: %q", address)
	}
	if len(address) <= FieldWidth {
		copy(field[:], address)
		return field, nil
	}

	copy(field[:], crypto.Keccak256([]byte(address)))
	if c.mappings == nil {
		return field, fmt.Errorf("address %q exceeds %d bytes and no mapping store is configured", address, FieldWidth)
	}
	if err := c.mappings.PutIdentifierMapping(FieldHex(field), address); err != nil {
		return field, fmt.Errorf("persist identifier mapping: %w", err)
	}
	return field, nil
}

// Decode recovers the content address from a bytes32 field. The mapping store
// is consulted first so digest-encoded identifiers round-trip; direct decode
// strips the zero padding. Fields that decode to something shaped like a
// truncated CID are reported as unresolved instead of returned corrupted.
func (c *Codec) Decode(field [FieldWidth]byte) (string, error) {
	if c.mappings != nil {
		address, ok, err := c.mappings.IdentifierMapping(FieldHex(field))
		if err != nil {
			return "", fmt.Errorf("identifier mapping lookup: %w", err)
		}
		if ok {
			return address, nil
		}
	}

	raw := bytes.TrimRight(field[:], "\x00")
	if len(raw) < minAddressLength {
		return "", fmt.Errorf("%w: field decodes to %d bytes", ErrUnresolved, len(raw))
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w: field is not valid UTF-8 (likely a digest with no stored mapping)", ErrUnresolved)
	}

	address := string(raw)
	if legacyTruncated(address) {
		return "", fmt.Errorf("%w: legacy truncated identifier %q", ErrUnresolved, address)
	}
	return address, nil
}

// FieldHex renders a field as 0x-prefixed hex, the key form used by the
// mapping store and the API.
func FieldHex(field [FieldWidth]byte) string {
	return fmt.Sprintf("0x%x", field[:])
}

// legacyTruncated reports whether s looks like the head of a CIDv0 that was
// cut down to the field width at encode time.
func legacyTruncated(s string) bool {
	if !strings.HasPrefix(s, "Qm") || len(s) >= cidV0Length {
		return false
	}
	_, err := base58.Decode(s)
	return err == nil
}
