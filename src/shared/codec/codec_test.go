package codec

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type memMappings struct {
	m map[string]string
}

func newMemMappings() *memMappings {
	return &memMappings{m: make(map[string]string)}
}

func (s *memMappings) PutIdentifierMapping(field, address string) error {
	s.m[field] = address
	return nil
}

func (s *memMappings) IdentifierMapping(field string) (string, bool, error) {
	addr, ok := s.m[field]
	return addr, ok, nil
}

func TestEncodeDecodeRoundTripShort(t *testing.T) {
	c := New(newMemMappings())

	for _, address := range []string{
		"ab",
		"bafybeigdyrzt5sfp7u",
		"exactly-thirty-two-bytes-long!!!",
	} {
		field, err := c.Encode(address)
		require.NoError(t, err, address)

		got, err := c.Decode(field)
		require.NoError(t, err, address)
		require.Equal(t, address, got)
	}
}

func TestEncodeRejectsTooShort(t *testing.T) {
	c := New(newMemMappings())
	for _, address := range []string{"", "x"} {
		_, err := c.Encode(address)
		require.Error(t, err, "address %q", address)
	}
}

func TestOversizedIdentifierRoundTrip(t *testing.T) {
	mappings := newMemMappings()
	c := New(mappings)

	// A 60-character identifier cannot fit the 32-byte field.
	address := "Qm" + strings.Repeat("Yw", 29)
	require.Len(t, address, 60)

	field, err := c.Encode(address)
	require.NoError(t, err)
	require.Len(t, mappings.m, 1)

	// With the mapping persisted, decode reconstructs the original.
	got, err := c.Decode(field)
	require.NoError(t, err)
	require.Equal(t, address, got)

	// A fresh process that lost the mapping must report unresolved,
	// never a corrupted best-effort string.
	fresh := New(newMemMappings())
	_, err = fresh.Decode(field)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnresolved))
}

func TestDecodeLegacyTruncated(t *testing.T) {
	// Early deployments sliced CIDv0 strings to 32 characters before
	// encoding. The decoded head is base58-clean but unrecoverable.
	truncated := "QmYwAPJzv5CZsnA625s3Xf2nemtYgP"
	var field [FieldWidth]byte
	copy(field[:], truncated)

	c := New(newMemMappings())
	_, err := c.Decode(field)
	require.True(t, errors.Is(err, ErrUnresolved))
	require.Contains(t, err.Error(), "legacy truncated")
}

func TestDecodeNonUTF8WithoutMapping(t *testing.T) {
	var field [FieldWidth]byte
	for i := range field {
		field[i] = byte(0x80 + i)
	}

	c := New(newMemMappings())
	_, err := c.Decode(field)
	require.True(t, errors.Is(err, ErrUnresolved))
}

func TestDecodeWithoutMappingStore(t *testing.T) {
	c := New(nil)
	field, err := c.Encode("meta/v1/launch-vote")
	require.NoError(t, err)

	got, err := c.Decode(field)
	require.NoError(t, err)
	require.Equal(t, "meta/v1/launch-vote", got)
}
