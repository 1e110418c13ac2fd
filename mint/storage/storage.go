package storage

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/chaumcash/ecash/cashu"
	"github.com/chaumcash/ecash/cashu/nuts/nut04"
	"github.com/chaumcash/ecash/cashu/nuts/nut05"
)

type MintDB interface {
	SaveSeed([]byte) error
	GetSeed() ([]byte, error)

	SaveKeyset(DBKeyset) error
	GetKeysets() ([]DBKeyset, error)
	UpdateKeysetActive(keysetId string, active bool) error

	SaveProofs(cashu.Proofs) error
	GetProofsUsed(Ys []string) ([]DBProof, error)
	AddPendingProofs(proofs cashu.Proofs, quoteId string) error
	GetPendingProofs(Ys []string) ([]DBProof, error)
	GetPendingProofsByQuote(quoteId string) ([]DBProof, error)
	RemovePendingProofs(Ys []string) error
	// MarkPendingIrreversible flags pending proofs whose outgoing payment
	// attempt is no longer safely retryable (execute_outgoing returned an
	// indeterminate result) — the reconciliation loop polls these instead
	// of ever releasing them back to Unspent.
	MarkPendingIrreversible(Ys []string) error

	SaveMintQuote(MintQuote) error
	GetMintQuote(string) (MintQuote, error)
	GetMintQuoteByPaymentHash(string) (MintQuote, error)
	// UpdateMintQuote persists a quote's settlement/issuance progress:
	// amountPaid accumulates as the backend reports partial payments of
	// an amountless invoice, amountIssued accumulates as mint() calls
	// consume it, and state follows NUT-04's Unpaid/Paid/Issued machine.
	UpdateMintQuote(quoteId string, amountPaid, amountIssued uint64, state nut04.State) error

	SaveMeltQuote(MeltQuote) error
	GetMeltQuote(string) (MeltQuote, error)
	// used to check if a melt quote already exists for the passed invoice
	GetMeltQuoteByPaymentRequest(string) (*MeltQuote, error)
	UpdateMeltQuote(quoteId string, preimage string, change cashu.BlindedSignatures, state nut05.State) error
	// GetPendingMeltQuotes lists melt quotes left in the PENDING state,
	// i.e. ones whose outgoing payment outcome was not resolved before
	// the mint last stopped. Driven by mint/ledger's restart reconciler.
	GetPendingMeltQuotes() ([]MeltQuote, error)

	SaveBlindSignatures(B_s []string, blindSignatures cashu.BlindedSignatures) error
	GetBlindSignature(B_ string) (cashu.BlindedSignature, error)
	GetBlindSignatures(B_s []string) (cashu.BlindedSignatures, error)

	// these return a map of keyset id and amount
	GetIssuedEcash() (map[string]uint64, error)
	GetRedeemedEcash() (map[string]uint64, error)

	Close() error
}

type DBKeyset struct {
	Id                string
	Unit              string
	Active            bool
	Seed              string
	DerivationPathIdx uint32
	InputFeePpk       uint
}

type DBProof struct {
	Amount  uint64
	Id      string
	Secret  string
	Y       string
	C       string
	Witness string
	// for proofs in pending table
	MeltQuoteId string
	// Irreversible is set once a pending proof's outgoing payment outcome
	// is unknown rather than simply in-flight (see MarkPendingIrreversible).
	Irreversible bool
}

type MintQuote struct {
	Id   string
	Unit string
	// Amount is nil for an amountless invoice; issuance is then bound to
	// AmountPaid rather than a value fixed at quote-creation time.
	Amount         *uint64
	AmountPaid     uint64
	AmountIssued   uint64
	PaymentRequest string
	PaymentHash    string
	State          nut04.State
	Expiry         uint64
	// Pubkey, when set, locks issuance to a valid NUT-20 signature.
	Pubkey *secp256k1.PublicKey
}

type MeltQuote struct {
	Id             string
	Unit           string
	InvoiceRequest string
	PaymentHash    string
	Amount         uint64
	FeeReserve     uint64
	State          nut05.State
	Expiry         uint64
	Preimage       string
	// Change carries the blind signatures over any blank outputs the
	// wallet attached, covering unused fee reserve. Populated only once
	// the melt settles as Paid.
	Change cashu.BlindedSignatures
}
