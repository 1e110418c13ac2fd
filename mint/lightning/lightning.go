// Package lightning defines the mint's abstract payment-backend contract
// and its adapters (LND, CLN, and an in-process fake for tests). The
// mint never talks to a payment rail directly — it only calls Backend,
// so swapping LND for CLN or for the fake backend in tests never touches
// mint/mint.go.
package lightning

import "context"

// Status is the outcome of an incoming or outgoing payment as reported
// by the backend.
type Status int

const (
	Unpaid Status = iota
	Pending
	Paid
	Failed
	Unknown
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Paid:
		return "PAID"
	case Failed:
		return "FAILED"
	case Unknown:
		return "UNKNOWN"
	default:
		return "UNPAID"
	}
}

// Invoice describes an incoming payment request created on behalf of a
// mint quote.
type Invoice struct {
	PaymentRequest string
	PaymentHash    string
	Amount         uint64
	Expiry         uint64
	Status         Status
}

// OutgoingQuote is the backend's estimate of what an outgoing payment
// will cost, used to size a melt quote's fee reserve.
type OutgoingQuote struct {
	Amount     uint64
	FeeReserve uint64
	Expiry     int64
}

// PaymentResult is the outcome of an incoming or outgoing payment check,
// or of an execute_outgoing call. AmountMsat is populated for amountless
// (MPP/keysend-style) invoices once paid.
type PaymentResult struct {
	Status     Status
	Preimage   string
	AmountMsat uint64
}

// Event is a backend-pushed notification that a payment's status
// changed, consumed by the mint to avoid polling for invoices it expects
// to resolve quickly.
type Event struct {
	PaymentHash string
	Result      PaymentResult
}

// Backend is the abstract payment-rail contract every lightning (or
// future on-chain) adapter implements. It corresponds 1:1 to the five
// operations a mint needs: create an invoice to receive against a mint
// quote, quote the cost of an outgoing payment, attempt it, and check
// the status of either side. Events lets callers subscribe instead of
// polling CheckIncoming/CheckOutgoing in a loop.
type Backend interface {
	CreateIncoming(ctx context.Context, amountMsat uint64, memo string) (Invoice, error)
	CreateOutgoingQuote(ctx context.Context, paymentRequest string) (OutgoingQuote, error)
	ExecuteOutgoing(ctx context.Context, paymentRequest string, maxFeeMsat uint64) (PaymentResult, error)
	CheckIncoming(ctx context.Context, paymentHash string) (PaymentResult, error)
	CheckOutgoing(ctx context.Context, paymentHash string) (PaymentResult, error)
	Events(ctx context.Context) (<-chan Event, error)
}
