// Package nut04 contains structs as defined in [NUT-04]
//
// [NUT-04]: https://github.com/cashubtc/nuts/blob/main/04.md
package nut04

import "github.com/chaumcash/ecash/cashu"

// State is the lifecycle of a mint quote: UNPAID until the backend invoice
// is paid, PAID while some of the paid amount is still unissued, ISSUED
// once the amount issued equals the amount paid. A quote can be redeemed
// over several mint requests before it reaches ISSUED.
type State int

const (
	Unpaid State = iota
	Paid
	Issued
)

func (s State) String() string {
	switch s {
	case Paid:
		return "PAID"
	case Issued:
		return "ISSUED"
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
	case "PAID":
		return Paid
	case "ISSUED":
		return Issued
	default:
		return Unpaid
	}
}

type PostMintQuoteBolt11Request struct {
	Amount uint64 `json:"amount"`
	Unit   string `json:"unit"`
	// Pubkey locks the quote per NUT-20: only a mint request signed by
	// this key's private counterpart may redeem it.
	Pubkey string `json:"pubkey,omitempty"`
}

type PostMintQuoteBolt11Response struct {
	Quote   string `json:"quote"`
	Request string `json:"request"`
	State   State  `json:"state"`
	Expiry  int64  `json:"expiry"`
	Pubkey  string `json:"pubkey,omitempty"`
}

type PostMintBolt11Request struct {
	Quote   string                `json:"quote"`
	Outputs cashu.BlindedMessages `json:"outputs"`
	// Signature authorizes a locked quote per NUT-20: a BIP-340 signature
	// over quote || all output B_ values, using the quote's locked pubkey.
	Signature string `json:"signature,omitempty"`
}

type PostMintBolt11Response struct {
	Signatures cashu.BlindedSignatures `json:"signatures"`
}
