// Package nut05 contains structs as defined in [NUT-05]
//
// [NUT-05]: https://github.com/cashubtc/nuts/blob/main/05.md
package nut05

import "github.com/chaumcash/ecash/cashu"

// State is the lifecycle of a melt quote: UNPAID until inputs are
// committed and the outgoing payment is attempted, PENDING while the
// payment backend's outcome is unknown, PAID once the backend confirms
// settlement.
type State int

const (
	Unpaid State = iota
	Pending
	Paid
)

func (s State) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Paid:
		return "PAID"
	default:
		return "UNPAID"
	}
}

func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// StringToState parses a state as persisted by storage, defaulting to
// Unpaid for anything unrecognized.
func StringToState(s string) State {
	switch s {
	case "PENDING":
		return Pending
	case "PAID":
		return Paid
	default:
		return Unpaid
	}
}

type PostMeltQuoteBolt11Request struct {
	Request string `json:"request"`
	Unit    string `json:"unit"`
}

type PostMeltQuoteBolt11Response struct {
	Quote       string                  `json:"quote"`
	Amount      uint64                  `json:"amount"`
	FeeReserve  uint64                  `json:"fee_reserve"`
	State       State                   `json:"state"`
	Expiry      int64                   `json:"expiry"`
	Preimage    string                  `json:"payment_preimage,omitempty"`
	Change      cashu.BlindedSignatures `json:"change,omitempty"`
}

type PostMeltBolt11Request struct {
	Quote   string                `json:"quote"`
	Inputs  cashu.Proofs          `json:"inputs"`
	Outputs cashu.BlindedMessages `json:"outputs,omitempty"`
}

type PostMeltBolt11Response struct {
	State    State                   `json:"state"`
	Preimage string                  `json:"payment_preimage"`
	Change   cashu.BlindedSignatures `json:"change,omitempty"`
}
