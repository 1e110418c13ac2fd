package lightning

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/zpay32"
	decodepay "github.com/nbd-wtf/ln-decodepay"
)

const (
	FakePreimage           = "0000000000000000"
	FailPaymentDescription = "fail the payment"
)

type fakeInvoice struct {
	PaymentRequest string
	PaymentHash    string
	Preimage       string
	Status         Status
	Amount         uint64
}

// FakeBackend implements Backend entirely in-process for tests: invoices
// created against it are always immediately paid, and outgoing payments
// succeed unless the decoded BOLT11 description is FailPaymentDescription
// (to exercise the mint's failure path), or PaymentDelay is set and the
// invoice is younger than PaymentDelay seconds, in which case they are
// recorded as Pending (to exercise the reconciliation loop's handling of
// a payment whose outcome isn't known yet). A Pending payment stays
// Pending on later checks until SetInvoiceStatus changes it.
type FakeBackend struct {
	mu           sync.Mutex
	invoices     []fakeInvoice
	PaymentDelay int64

	events chan Event
}

func NewFakeBackend() *FakeBackend {
	return &FakeBackend{events: make(chan Event, 64)}
}

func (fb *FakeBackend) CreateIncoming(ctx context.Context, amountMsat uint64, memo string) (Invoice, error) {
	req, preimage, paymentHash, err := CreateFakeInvoice(amountMsat/1000, false)
	if err != nil {
		return Invoice{}, err
	}

	fb.mu.Lock()
	fb.invoices = append(fb.invoices, fakeInvoice{
		PaymentRequest: req,
		PaymentHash:    paymentHash,
		Preimage:       preimage,
		Status:         Paid,
		Amount:         amountMsat / 1000,
	})
	fb.mu.Unlock()

	fb.emit(paymentHash, PaymentResult{Status: Paid, Preimage: preimage})

	return Invoice{PaymentRequest: req, PaymentHash: paymentHash, Amount: amountMsat / 1000, Status: Paid}, nil
}

func (fb *FakeBackend) CreateOutgoingQuote(ctx context.Context, paymentRequest string) (OutgoingQuote, error) {
	invoice, err := decodepay.Decodepay(paymentRequest)
	if err != nil {
		return OutgoingQuote{}, fmt.Errorf("error decoding invoice: %v", err)
	}
	amount := uint64(invoice.MSatoshi) / 1000
	return OutgoingQuote{Amount: amount, FeeReserve: fb.FeeReserve(amount)}, nil
}

func (fb *FakeBackend) ExecuteOutgoing(ctx context.Context, paymentRequest string, maxFeeMsat uint64) (PaymentResult, error) {
	invoice, err := decodepay.Decodepay(paymentRequest)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("error decoding invoice: %v", err)
	}

	status := Paid
	if invoice.Description == FailPaymentDescription {
		status = Failed
	} else if fb.PaymentDelay > 0 && time.Now().Unix() < int64(invoice.CreatedAt)+fb.PaymentDelay {
		status = Pending
	}

	fb.mu.Lock()
	fb.invoices = append(fb.invoices, fakeInvoice{
		PaymentHash: invoice.PaymentHash,
		Preimage:    FakePreimage,
		Status:      status,
		Amount:      uint64(invoice.MSatoshi) / 1000,
	})
	fb.mu.Unlock()

	result := PaymentResult{Preimage: FakePreimage, Status: status}
	fb.emit(invoice.PaymentHash, result)
	return result, nil
}

func (fb *FakeBackend) CheckIncoming(ctx context.Context, paymentHash string) (PaymentResult, error) {
	return fb.lookup(paymentHash)
}

func (fb *FakeBackend) CheckOutgoing(ctx context.Context, paymentHash string) (PaymentResult, error) {
	return fb.lookup(paymentHash)
}

func (fb *FakeBackend) lookup(paymentHash string) (PaymentResult, error) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	idx := slices.IndexFunc(fb.invoices, func(i fakeInvoice) bool {
		return i.PaymentHash == paymentHash
	})
	if idx == -1 {
		return PaymentResult{}, errors.New("lightning: unknown payment hash")
	}
	inv := fb.invoices[idx]
	return PaymentResult{Status: inv.Status, Preimage: inv.Preimage}, nil
}

func (fb *FakeBackend) FeeReserve(amount uint64) uint64 {
	return 0
}

func (fb *FakeBackend) Events(ctx context.Context) (<-chan Event, error) {
	return fb.events, nil
}

func (fb *FakeBackend) emit(paymentHash string, result PaymentResult) {
	select {
	case fb.events <- Event{PaymentHash: paymentHash, Result: result}:
	default:
	}
}

// SetInvoiceStatus lets tests force a held/failed invoice into a
// terminal state, exercising the reconciliation loop's resolution path.
func (fb *FakeBackend) SetInvoiceStatus(hash string, status Status) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	idx := slices.IndexFunc(fb.invoices, func(i fakeInvoice) bool {
		return i.PaymentHash == hash
	})
	if idx == -1 {
		return
	}
	fb.invoices[idx].Status = status
}

func CreateFakeInvoice(amount uint64, failPayment bool) (string, string, string, error) {
	var random [32]byte
	_, err := rand.Read(random[:])
	if err != nil {
		return "", "", "", err
	}
	preimage := hex.EncodeToString(random[:])
	paymentHash := sha256.Sum256(random[:])
	hash := hex.EncodeToString(paymentHash[:])

	description := "test"
	if failPayment {
		description = FailPaymentDescription
	}

	invoice, err := zpay32.NewInvoice(
		&chaincfg.SigNetParams,
		paymentHash,
		time.Now(),
		zpay32.Amount(lnwire.MilliSatoshi(amount*1000)),
		zpay32.Description(description),
	)
	if err != nil {
		return "", "", "", err
	}

	invoiceStr, err := invoice.Encode(zpay32.MessageSigner{
		SignCompact: func(msg []byte) ([]byte, error) {
			key, err := secp256k1.GeneratePrivateKey()
			if err != nil {
				return []byte{}, err
			}
			return ecdsa.SignCompact(key, msg, true), nil
		},
	})
	if err != nil {
		return "", "", "", err
	}

	return invoiceStr, preimage, hash, nil
}
