package ledger

import (
	"errors"
	"strings"
)

// Revert reasons emitted by the voting contract. These are user errors, not
// transport failures: retrying without a state change cannot succeed, so they
// are surfaced verbatim.
const (
	ReasonZeroDuration      = "duration=0"
	ReasonAlreadyVoted      = "Already voted"
	ReasonVotingEnded       = "Voting ended"
	ReasonTooEarly          = "Too early"
	ReasonDecryptionPending = "Decryption pending"
)

var knownReasons = []string{
	ReasonZeroDuration,
	ReasonAlreadyVoted,
	ReasonVotingEnded,
	ReasonTooEarly,
	ReasonDecryptionPending,
}

// Rejection is a contract revert with a known reason.
type Rejection struct {
	Reason string
}

func (r *Rejection) Error() string {
	return "ledger rejected transaction: " + r.Reason
}

// AsRejection extracts a known contract rejection from an RPC error chain.
// The reason string travels inside the provider's "execution reverted: ..."
// message, so matching is by substring.
func AsRejection(err error) (*Rejection, bool) {
	if err == nil {
		return nil, false
	}
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	msg := err.Error()
	for _, reason := range knownReasons {
		if strings.Contains(msg, reason) {
			return &Rejection{Reason: reason}, true
		}
	}
	return nil, false
}
