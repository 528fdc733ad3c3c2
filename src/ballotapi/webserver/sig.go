package webserver

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func strip0x(s string) string {
	if len(s) > 1 && s[:2] == "0x" {
		return s[2:]
	}
	return s
}

// verifySignature checks an EIP-191 personal_sign signature over the nonce
// and confirms it recovers to the claimed address. Wallets emit V as 27/28;
// crypto.SigToPub wants 0/1.
func verifySignature(addr, sigHex, nonce string) error {
	if !common.IsHexAddress(addr) {
		return fmt.Errorf("invalid address format")
	}

	sigBytes, err := hex.DecodeString(strip0x(sigHex))
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	if len(sigBytes) != 65 {
		return fmt.Errorf("invalid signature length: %d", len(sigBytes))
	}
	if sigBytes[64] >= 27 {
		sigBytes[64] -= 27
	}

	digest := accounts.TextHash([]byte(nonce))
	pubKey, err := crypto.SigToPub(digest, sigBytes)
	if err != nil {
		return fmt.Errorf("recover public key: %w", err)
	}

	recovered := crypto.PubkeyToAddress(*pubKey)
	if !strings.EqualFold(recovered.Hex(), addr) {
		return fmt.Errorf("signature does not match address")
	}
	return nil
}
