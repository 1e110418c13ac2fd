// Package nutpr implements Cashu payment requests: a payee-constructed,
// out-of-band description of what token a payer should send back, and by
// what transport. A payer decodes the request, builds a matching token,
// and delivers it over one of the advertised transports (or simply
// returns it to the caller when none are usable).
package nutpr

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

const (
	Prefix = "creq"
	V1     = "A"
)

var (
	ErrInvalidPrefix = errors.New("invalid payment request prefix")
	ErrInvalidPR     = errors.New("invalid payment request")
)

// TransportType identifies how a completed token payment should be
// delivered back to the payee.
type TransportType string

const (
	TransportNostr TransportType = "nostr"
	TransportPost  TransportType = "post"
)

type Transport struct {
	Type   TransportType `json:"t" cbor:"t"`
	Target string        `json:"a" cbor:"a"`
	Tags   [][]string    `json:"g,omitempty" cbor:"g,omitempty"`
}

// PaymentRequest describes what a payer should send: optionally a fixed
// amount and unit, optionally a set of acceptable mints, and how the
// resulting token should be delivered.
type PaymentRequest struct {
	Id          string      `json:"i,omitempty" cbor:"i,omitempty"`
	Amount      uint64      `json:"a,omitempty" cbor:"a,omitempty"`
	Unit        string      `json:"u,omitempty" cbor:"u,omitempty"`
	SingleUse   bool        `json:"r,omitempty" cbor:"r,omitempty"`
	Mints       []string    `json:"m,omitempty" cbor:"m,omitempty"`
	Description string      `json:"d,omitempty" cbor:"d,omitempty"`
	Transports  []Transport `json:"t" cbor:"t"`
}

func (p PaymentRequest) Encode() (string, error) {
	requestBytes, err := cbor.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("cbor.Marshal(p): %v", err)
	}

	return Prefix + V1 + base64.URLEncoding.EncodeToString(requestBytes), nil
}

func Decode(requestStr string) (PaymentRequest, error) {
	if len(requestStr) < len(Prefix)+len(V1) {
		return PaymentRequest{}, ErrInvalidPR
	}
	if requestStr[:len(Prefix)] != Prefix {
		return PaymentRequest{}, ErrInvalidPrefix
	}

	encoded := requestStr[len(Prefix)+len(V1):]
	requestBytes, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		requestBytes, err = base64.RawURLEncoding.DecodeString(encoded)
		if err != nil {
			return PaymentRequest{}, fmt.Errorf("error decoding payment request: %v", err)
		}
	}

	var pr PaymentRequest
	if err := cbor.Unmarshal(requestBytes, &pr); err != nil {
		return PaymentRequest{}, fmt.Errorf("cbor.Unmarshal: %v", err)
	}

	return pr, nil
}

// MatchesMint reports whether mintURL is acceptable for this request: an
// empty Mints list means any mint is acceptable.
func (p PaymentRequest) MatchesMint(mintURL string) bool {
	if len(p.Mints) == 0 {
		return true
	}
	for _, m := range p.Mints {
		if m == mintURL {
			return true
		}
	}
	return false
}
