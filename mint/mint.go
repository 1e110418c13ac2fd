package mint

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"slices"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/chaumcash/ecash/cashu"
	"github.com/chaumcash/ecash/cashu/nuts/nut04"
	"github.com/chaumcash/ecash/cashu/nuts/nut05"
	"github.com/chaumcash/ecash/cashu/nuts/nut06"
	"github.com/chaumcash/ecash/cashu/nuts/nut07"
	"github.com/chaumcash/ecash/cashu/nuts/nut10"
	"github.com/chaumcash/ecash/cashu/nuts/nut11"
	"github.com/chaumcash/ecash/cashu/nuts/nut17"
	"github.com/chaumcash/ecash/cashu/nuts/nut20"
	"github.com/chaumcash/ecash/crypto"
	"github.com/chaumcash/ecash/mint/ledger"
	"github.com/chaumcash/ecash/mint/lightning"
	"github.com/chaumcash/ecash/mint/pubsub"
	"github.com/chaumcash/ecash/mint/storage"
	"github.com/chaumcash/ecash/mint/storage/sqlite"
	decodepay "github.com/nbd-wtf/ln-decodepay"
)

const (
	QuoteExpiryMins = 10
	BOLT11_METHOD   = string(cashu.Bolt11Method)
)

type Mint struct {
	db storage.MintDB

	ledger *ledger.Ledger

	// active keysets, keyed by unit
	activeKeysets map[string]crypto.MintKeyset

	// map of all keysets (both active and inactive), keyed by id
	keysets map[string]crypto.MintKeyset

	lightningClient lightning.Backend
	reconciler      *ledger.Reconciler
	cancelReconcile context.CancelFunc

	pubsub *pubsub.PubSub

	mintInfo nut06.MintInfo
	limits   MintLimits
	logger   *slog.Logger
}

func LoadMint(config Config) (*Mint, error) {
	path := config.MintPath
	if len(path) == 0 {
		path = mintPath()
	}

	logger, err := setupLogger(path, config.LogLevel)
	if err != nil {
		return nil, err
	}

	db, err := sqlite.InitSQLite(path, config.DBMigrationPath)
	if err != nil {
		return nil, fmt.Errorf("error setting up sqlite: %v", err)
	}

	if config.LightningClient == nil {
		return nil, errors.New("invalid lightning client")
	}

	seed, err := db.GetSeed()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			for {
				seed, err = hdkeychain.GenerateSeed(32)
				if err == nil {
					err = db.SaveSeed(seed)
					if err != nil {
						return nil, err
					}
					break
				}
			}
		} else {
			return nil, err
		}
	}

	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, err
	}

	units := config.Units
	if len(units) == 0 {
		units = []cashu.CurrencyUnit{cashu.Sat}
	}

	mint := &Mint{
		db:              db,
		ledger:          ledger.New(db),
		activeKeysets:   make(map[string]crypto.MintKeyset),
		keysets:         make(map[string]crypto.MintKeyset),
		lightningClient: config.LightningClient,
		limits:          config.Limits,
		logger:          logger,
		pubsub:          pubsub.NewPubSub(logger),
	}

	dbKeysets, err := db.GetKeysets()
	if err != nil {
		return nil, fmt.Errorf("error reading keysets from db: %v", err)
	}
	for _, dbkeyset := range dbKeysets {
		keysetSeed, err := hex.DecodeString(dbkeyset.Seed)
		if err != nil {
			return nil, err
		}
		keysetMaster, err := hdkeychain.NewMaster(keysetSeed, &chaincfg.MainNetParams)
		if err != nil {
			return nil, err
		}
		keyset, err := crypto.GenerateKeyset(keysetMaster, dbkeyset.Unit, dbkeyset.DerivationPathIdx, dbkeyset.InputFeePpk, 0)
		if err != nil {
			return nil, err
		}
		keyset.Active = dbkeyset.Active
		mint.keysets[keyset.Id] = *keyset
		if dbkeyset.Active {
			mint.activeKeysets[dbkeyset.Unit] = *keyset
		}
	}

	for _, unit := range units {
		activeKeyset, err := crypto.GenerateKeyset(master, unit.String(), config.DerivationPathIdx, config.InputFeePpk, 0)
		if err != nil {
			return nil, err
		}

		existing, ok := mint.keysets[activeKeyset.Id]
		if ok {
			mint.logger.Info(fmt.Sprintf("reusing existing active keyset '%v' for unit %v", activeKeyset.Id, unit))
			mint.activeKeysets[unit.String()] = existing
			continue
		}

		mint.logger.Info(fmt.Sprintf("setting active keyset '%v' for unit %v with fee %v", activeKeyset.Id, unit, activeKeyset.InputFeePpk))

		hexseed := hex.EncodeToString(seed)
		if err := db.SaveKeyset(storage.DBKeyset{
			Id:                activeKeyset.Id,
			Unit:              activeKeyset.Unit,
			Active:            true,
			Seed:              hexseed,
			DerivationPathIdx: activeKeyset.DerivationPathIdx,
			InputFeePpk:       activeKeyset.InputFeePpk,
		}); err != nil {
			return nil, fmt.Errorf("error saving new active keyset: %v", err)
		}

		if previous, ok := mint.activeKeysets[unit.String()]; ok && previous.Id != activeKeyset.Id {
			mint.logger.Info(fmt.Sprintf("setting keyset '%v' to inactive", previous.Id))
			previous.Active = false
			db.UpdateKeysetActive(previous.Id, false)
			mint.keysets[previous.Id] = previous
		}

		mint.keysets[activeKeyset.Id] = *activeKeyset
		mint.activeKeysets[unit.String()] = *activeKeyset
	}

	mint.SetMintInfo(config.MintInfo)

	for _, keyset := range mint.keysets {
		active := mint.activeKeysets[keyset.Unit]
		if keyset.Id != active.Id && keyset.Active {
			mint.logger.Info(fmt.Sprintf("setting keyset '%v' to inactive", keyset.Id))
			keyset.Active = false
			db.UpdateKeysetActive(keyset.Id, false)
			mint.keysets[keyset.Id] = keyset
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	mint.cancelReconcile = cancel
	mint.reconciler = ledger.NewReconciler(db, mint.ledger, config.LightningClient, logger)
	go mint.reconciler.Run(ctx, 30*time.Second)

	return mint, nil
}

// Shutdown stops the restart-reconciliation loop and closes the
// underlying database.
func (m *Mint) Shutdown() error {
	if m.cancelReconcile != nil {
		m.cancelReconcile()
	}
	return m.db.Close()
}

// Subscribe opens a subscription against the mint's notification core.
// See mint/pubsub for delivery semantics.
func (m *Mint) Subscribe(kind nut17.SubscriptionKind, filters []string) *pubsub.Subscriber {
	return m.pubsub.Subscribe(kind, filters)
}

func (m *Mint) Unsubscribe(kind nut17.SubscriptionKind, s *pubsub.Subscriber) {
	m.pubsub.Unsubscribe(kind, s)
}

// mintPath returns the mint's path
// at $HOME/.ecash/mint
func mintPath() string {
	homedir, err := os.UserHomeDir()
	if err != nil {
		log.Fatal(err)
	}

	path := filepath.Join(homedir, ".ecash", "mint")
	err = os.MkdirAll(path, 0700)
	if err != nil {
		log.Fatal(err)
	}
	return path
}

func setupLogger(mintPath string, logLevel LogLevel) (*slog.Logger, error) {
	replacer := func(groups []string, a slog.Attr) slog.Attr {
		if a.Key == slog.SourceKey {
			source := a.Value.Any().(*slog.Source)
			source.File = filepath.Base(source.File)
		}
		if a.Key == slog.TimeKey {
			a.Value = slog.StringValue(time.Now().Truncate(time.Second * 2).Format(time.DateTime))
		}
		return a
	}

	logFile, err := os.OpenFile(filepath.Join(mintPath, "mint.log"), os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("error opening log file: %v", err)
	}

	logWriter := io.MultiWriter(os.Stdout, logFile)
	level := slog.LevelInfo
	switch logLevel {
	case Debug:
		level = slog.LevelDebug
	case Disable:
		logWriter = io.Discard
	}

	return slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		AddSource:   true,
		Level:       level,
		ReplaceAttr: replacer,
	})), nil
}

// logInfof formats the strings with args and preserves the source position
// from where this method is called for the log msg. Otherwise all messages would be logged with
// source line of this log method and not the original caller
func (m *Mint) logInfof(format string, args ...any) {
	var pcs [1]uintptr
	runtime.Callers(2, pcs[:])
	r := slog.NewRecord(time.Now(), slog.LevelInfo, fmt.Sprintf(format, args...), pcs[0])
	_ = m.logger.Handler().Handle(context.Background(), r)
}

func (m *Mint) logErrorf(format string, args ...any) {
	var pcs [1]uintptr
	runtime.Callers(2, pcs[:])
	r := slog.NewRecord(time.Now(), slog.LevelError, fmt.Sprintf(format, args...), pcs[0])
	_ = m.logger.Handler().Handle(context.Background(), r)
}

func (m *Mint) logDebugf(format string, args ...any) {
	if !m.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	var pcs [1]uintptr
	runtime.Callers(2, pcs[:])
	r := slog.NewRecord(time.Now(), slog.LevelDebug, fmt.Sprintf(format, args...), pcs[0])
	_ = m.logger.Handler().Handle(context.Background(), r)
}

// RequestMintQuote processes a request to mint tokens and returns a mint
// quote or an error. amount is nil for an amountless invoice, whose
// issuance is instead bound to whatever amount the backend later reports
// as paid. If pubkey is non-empty the quote is locked: MintTokens will
// require a valid NUT-20 signature by that key.
func (m *Mint) RequestMintQuote(ctx context.Context, method string, amount *uint64, unit string, pubkey string) (storage.MintQuote, error) {
	if method != BOLT11_METHOD {
		return storage.MintQuote{}, cashu.PaymentMethodNotSupportedErr
	}
	if _, ok := m.activeKeysets[unit]; !ok {
		errmsg := fmt.Sprintf("unit '%v' not supported", unit)
		return storage.MintQuote{}, cashu.BuildCashuError(errmsg, cashu.UnitErrCode)
	}

	if amount != nil {
		if m.limits.MintingSettings.MaxAmount > 0 && *amount > m.limits.MintingSettings.MaxAmount {
			return storage.MintQuote{}, cashu.MintAmountExceededErr
		}
		if m.limits.MaxBalance > 0 {
			balance, err := m.balance()
			if err != nil {
				errmsg := fmt.Sprintf("could not get mint balance: %v", err)
				return storage.MintQuote{}, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
			}
			if balance+*amount > m.limits.MaxBalance {
				return storage.MintQuote{}, cashu.MintingDisabled
			}
		}
	}

	var pubkeyParsed *secp256k1.PublicKey
	if pubkey != "" {
		pubkeyBytes, err := hex.DecodeString(pubkey)
		if err != nil {
			return storage.MintQuote{}, cashu.BuildCashuError("invalid pubkey", cashu.StandardErrCode)
		}
		pubkeyParsed, err = secp256k1.ParsePubKey(pubkeyBytes)
		if err != nil {
			return storage.MintQuote{}, cashu.BuildCashuError("invalid pubkey", cashu.StandardErrCode)
		}
	}

	var amountMsat uint64
	if amount != nil {
		amountMsat = *amount * 1000
	}

	m.logInfof("requesting invoice from lightning backend for %v %v", amount, unit)
	invoice, err := m.lightningClient.CreateIncoming(ctx, amountMsat, "mint quote")
	if err != nil {
		errmsg := fmt.Sprintf("could not generate invoice: %v", err)
		return storage.MintQuote{}, cashu.BuildCashuError(errmsg, cashu.LightningBackendErrCode)
	}

	quoteId, err := cashu.GenerateRandomQuoteId()
	if err != nil {
		m.logErrorf("error generating random quote id: %v", err)
		return storage.MintQuote{}, cashu.StandardErr
	}

	mintQuote := storage.MintQuote{
		Id:             quoteId,
		Unit:           unit,
		Amount:         amount,
		PaymentRequest: invoice.PaymentRequest,
		PaymentHash:    invoice.PaymentHash,
		State:          nut04.Unpaid,
		Expiry:         invoice.Expiry,
		Pubkey:         pubkeyParsed,
	}

	if err := m.db.SaveMintQuote(mintQuote); err != nil {
		errmsg := fmt.Sprintf("error saving mint quote to db: %v", err)
		return storage.MintQuote{}, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}

	return mintQuote, nil
}

// checkMintQuotePaid refreshes a quote against the backend if it's still
// Unpaid, persisting the new amount_paid/state. Quotes paid by a melt
// inside the same mint are moved to Paid by settleQuotesInternally instead.
func (m *Mint) checkMintQuotePaid(ctx context.Context, quote storage.MintQuote) (storage.MintQuote, error) {
	if quote.State != nut04.Unpaid {
		return quote, nil
	}

	m.logDebugf("checking status of invoice with hash '%v'", quote.PaymentHash)
	result, err := m.lightningClient.CheckIncoming(ctx, quote.PaymentHash)
	if err != nil {
		errmsg := fmt.Sprintf("error getting invoice status: %v", err)
		return storage.MintQuote{}, cashu.BuildCashuError(errmsg, cashu.LightningBackendErrCode)
	}

	if result.Status != lightning.Paid {
		return quote, nil
	}

	if quote.Amount != nil {
		quote.AmountPaid = *quote.Amount
	} else {
		quote.AmountPaid += result.AmountMsat / 1000
	}
	quote.State = nut04.Paid

	m.logInfof("mint quote '%v' with invoice payment hash '%v' was paid", quote.Id, quote.PaymentHash)
	if err := m.db.UpdateMintQuote(quote.Id, quote.AmountPaid, quote.AmountIssued, quote.State); err != nil {
		errmsg := fmt.Sprintf("error updating mint quote in db: %v", err)
		return storage.MintQuote{}, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}
	m.pubsub.PublishMintQuoteUpdate(quote.Id, mintQuoteResponse(quote))

	return quote, nil
}

func mintQuoteResponse(quote storage.MintQuote) nut04.PostMintQuoteBolt11Response {
	response := nut04.PostMintQuoteBolt11Response{
		Quote:   quote.Id,
		Request: quote.PaymentRequest,
		State:   quote.State,
		Expiry:  int64(quote.Expiry),
	}
	if quote.Pubkey != nil {
		response.Pubkey = hex.EncodeToString(quote.Pubkey.SerializeCompressed())
	}
	return response
}

// GetMintQuoteState returns the state of a mint quote.
// Used to check whether a mint quote has been paid.
func (m *Mint) GetMintQuoteState(ctx context.Context, method, quoteId string) (storage.MintQuote, error) {
	if method != BOLT11_METHOD {
		return storage.MintQuote{}, cashu.PaymentMethodNotSupportedErr
	}

	mintQuote, err := m.db.GetMintQuote(quoteId)
	if err != nil {
		return storage.MintQuote{}, cashu.QuoteNotExistErr
	}

	return m.checkMintQuotePaid(ctx, mintQuote)
}

// MintTokens verifies whether the mint quote with id has been paid and, if
// so, signs the blindedMessages and returns the BlindedSignatures.
// signature is the NUT-20 authorization for locked quotes; it is ignored
// for quotes created without a pubkey.
func (m *Mint) MintTokens(ctx context.Context, method, id string, blindedMessages cashu.BlindedMessages, signature string) (cashu.BlindedSignatures, error) {
	if method != BOLT11_METHOD {
		return nil, cashu.PaymentMethodNotSupportedErr
	}

	mintQuote, err := m.db.GetMintQuote(id)
	if err != nil {
		return nil, cashu.QuoteNotExistErr
	}

	mintQuote, err = m.checkMintQuotePaid(ctx, mintQuote)
	if err != nil {
		return nil, err
	}
	if mintQuote.State == nut04.Unpaid {
		return nil, cashu.MintQuoteRequestNotPaid
	}
	if mintQuote.State == nut04.Issued {
		return nil, cashu.MintQuoteAlreadyIssued
	}

	if mintQuote.Pubkey != nil {
		if signature == "" {
			return nil, cashu.MintQuoteLockedErr
		}
		sig, err := nut11.ParseSignature(signature)
		if err != nil {
			return nil, cashu.MintQuoteInvalidSigErr
		}
		if !nut20.VerifyMintQuoteSignature(sig, mintQuote.Id, blindedMessages, mintQuote.Pubkey) {
			return nil, cashu.MintQuoteInvalidSigErr
		}
	}

	var blindedMessagesAmount uint64
	var overflow bool
	for _, msg := range blindedMessages {
		blindedMessagesAmount, overflow = overflowAddUint64(blindedMessagesAmount, msg.Amount)
		if overflow {
			return nil, cashu.InvalidBlindedMessageAmount
		}
	}

	available, underflow := underflowSubUint64(mintQuote.AmountPaid, mintQuote.AmountIssued)
	if underflow {
		return nil, cashu.AmountExceedsPaidErr
	}
	if blindedMessagesAmount > available {
		return nil, cashu.AmountExceedsPaidErr
	}

	if sigs, err := m.ledger.PreviouslySigned(blindedMessages); err == nil && len(sigs) == len(blindedMessages) {
		m.logDebugf("mint quote '%v' replay with identical outputs, returning cached signatures", mintQuote.Id)
		return sigs, nil
	}

	blindedSignatures, err := m.signBlindedMessages(blindedMessages)
	if err != nil {
		return nil, err
	}
	if err := m.ledger.RecordSignatures(blindedMessages, blindedSignatures); err != nil {
		errmsg := fmt.Sprintf("error recording blind signatures: %v", err)
		return nil, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}

	mintQuote.AmountIssued += blindedMessagesAmount
	mintQuote.State = nut04.Paid
	if mintQuote.AmountIssued == mintQuote.AmountPaid {
		mintQuote.State = nut04.Issued
	}
	if err := m.db.UpdateMintQuote(mintQuote.Id, mintQuote.AmountPaid, mintQuote.AmountIssued, mintQuote.State); err != nil {
		errmsg := fmt.Sprintf("error updating mint quote state: %v", err)
		return nil, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}
	m.pubsub.PublishMintQuoteUpdate(mintQuote.Id, mintQuoteResponse(mintQuote))

	return blindedSignatures, nil
}

// Swap processes a request to swap tokens: a set of valid proofs for a
// set of blinded messages of equal value (modulo fees). If SIG_ALL is
// enforced by the inputs, the aggregated signature is read from the
// witness of the first input proof.
func (m *Mint) Swap(proofs cashu.Proofs, blindedMessages cashu.BlindedMessages) (cashu.BlindedSignatures, error) {
	var proofsAmount uint64
	var overflow bool
	Ys := make([]string, len(proofs))
	for i, proof := range proofs {
		proofsAmount, overflow = overflowAddUint64(proofsAmount, proof.Amount)
		if overflow {
			return nil, cashu.InvalidProofErr
		}

		Y, err := crypto.HashToCurve([]byte(proof.Secret))
		if err != nil {
			return nil, cashu.InvalidProofErr
		}
		Ys[i] = hex.EncodeToString(Y.SerializeCompressed())
	}

	var blindedMessagesAmount uint64
	for _, bm := range blindedMessages {
		blindedMessagesAmount, overflow = overflowAddUint64(blindedMessagesAmount, bm.Amount)
		if overflow {
			return nil, cashu.InvalidBlindedMessageAmount
		}
	}

	fees := m.TransactionFees(proofs)
	available, underflow := underflowSubUint64(proofsAmount, uint64(fees))
	if underflow || available < blindedMessagesAmount {
		return nil, cashu.InsufficientProofsAmount
	}

	if err := m.verifyProofs(proofs, Ys); err != nil {
		return nil, err
	}

	if sigs, err := m.ledger.PreviouslySigned(blindedMessages); err == nil && len(sigs) == len(blindedMessages) {
		return sigs, nil
	}

	if nut11.ProofsSigAll(proofs) {
		m.logDebugf("P2PK locked proofs have SIG_ALL flag. Verifying blinded messages")
		if err := verifySigAllBlindedMessages(proofs, blindedMessages, ""); err != nil {
			return nil, err
		}
	}

	blindedSignatures, err := m.signBlindedMessages(blindedMessages)
	if err != nil {
		return nil, err
	}
	if err := m.ledger.RecordSignatures(blindedMessages, blindedSignatures); err != nil {
		errmsg := fmt.Sprintf("error recording blind signatures: %v", err)
		return nil, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}

	if err := m.ledger.CommitSpend(proofs); err != nil {
		errmsg := fmt.Sprintf("error invalidating proofs: %v", err)
		return nil, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}
	m.publishProofsSpent(Ys)

	return blindedSignatures, nil
}

func (m *Mint) publishProofsSpent(Ys []string) {
	for _, y := range Ys {
		m.pubsub.PublishProofState(y, nut07.ProofState{Y: y, State: nut07.Spent})
	}
}

// RequestMeltQuote processes a request to melt tokens and returns a
// MeltQuote. A melt is requested by a wallet to ask the mint to pay an
// invoice on its behalf.
func (m *Mint) RequestMeltQuote(ctx context.Context, method, request, unit string) (storage.MeltQuote, error) {
	if method != BOLT11_METHOD {
		return storage.MeltQuote{}, cashu.PaymentMethodNotSupportedErr
	}
	if _, ok := m.activeKeysets[unit]; !ok {
		errmsg := fmt.Sprintf("unit '%v' not supported", unit)
		return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.UnitErrCode)
	}

	bolt11, err := decodepay.Decodepay(request)
	if err != nil {
		errmsg := fmt.Sprintf("invalid invoice: %v", err)
		return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.MeltQuoteErrCode)
	}
	if bolt11.MSatoshi == 0 {
		return storage.MeltQuote{}, cashu.BuildCashuError("invoice has no amount", cashu.MeltQuoteErrCode)
	}

	quote, err := m.lightningClient.CreateOutgoingQuote(ctx, request)
	if err != nil {
		errmsg := fmt.Sprintf("could not quote outgoing payment: %v", err)
		return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.LightningBackendErrCode)
	}

	if m.limits.MeltingSettings.MaxAmount > 0 && quote.Amount > m.limits.MeltingSettings.MaxAmount {
		return storage.MeltQuote{}, cashu.MeltAmountExceededErr
	}

	quoteId, err := cashu.GenerateRandomQuoteId()
	if err != nil {
		m.logErrorf("error generating random quote id: %v", err)
		return storage.MeltQuote{}, cashu.StandardErr
	}
	m.logInfof("got melt quote request for invoice of amount '%v'. Setting fee reserve to %v", quote.Amount, quote.FeeReserve)

	meltQuote := storage.MeltQuote{
		Id:             quoteId,
		Unit:           unit,
		InvoiceRequest: request,
		PaymentHash:    bolt11.PaymentHash,
		Amount:         quote.Amount,
		FeeReserve:     quote.FeeReserve,
		State:          nut05.Unpaid,
		Expiry:         uint64(time.Now().Add(time.Minute * QuoteExpiryMins).Unix()),
	}

	// if a mint quote exists with the same invoice, it can be settled
	// internally, so the fee to the wallet is zero
	mintQuote, err := m.db.GetMintQuoteByPaymentHash(bolt11.PaymentHash)
	if err == nil {
		m.logDebugf("melt quote request found mint quote with same invoice; setting fee reserve to 0")
		meltQuote.InvoiceRequest = mintQuote.PaymentRequest
		meltQuote.PaymentHash = mintQuote.PaymentHash
		meltQuote.FeeReserve = 0
	}

	if err := m.db.SaveMeltQuote(meltQuote); err != nil {
		errmsg := fmt.Sprintf("error saving melt quote to db: %v", err)
		return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}

	return meltQuote, nil
}

// GetMeltQuoteState returns the state of a melt quote, reconciling with
// the backend if it is Pending and not yet resolved.
func (m *Mint) GetMeltQuoteState(ctx context.Context, method, quoteId string) (storage.MeltQuote, error) {
	if method != BOLT11_METHOD {
		return storage.MeltQuote{}, cashu.PaymentMethodNotSupportedErr
	}

	meltQuote, err := m.db.GetMeltQuote(quoteId)
	if err != nil {
		return storage.MeltQuote{}, cashu.QuoteNotExistErr
	}
	if meltQuote.State != nut05.Pending {
		return meltQuote, nil
	}

	m.logDebugf("checking status of payment with hash '%v' for melt quote '%v'", meltQuote.PaymentHash, meltQuote.Id)
	result, err := m.lightningClient.CheckOutgoing(ctx, meltQuote.PaymentHash)
	if err != nil {
		errmsg := fmt.Sprintf("error checking outgoing payment: %v", err)
		return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.LightningBackendErrCode)
	}

	return m.resolveMeltOutcome(meltQuote, result, nil)
}

// resolveMeltOutcome applies a terminal (or still-pending) payment result
// to a melt quote and its reserved inputs: Paid commits the spend and
// signs any requested change, Failed releases the inputs, and anything
// else leaves them Pending for the reconciliation loop.
func (m *Mint) resolveMeltOutcome(meltQuote storage.MeltQuote, result lightning.PaymentResult, changeOutputs cashu.BlindedMessages) (storage.MeltQuote, error) {
	dbProofs, err := m.db.GetPendingProofsByQuote(meltQuote.Id)
	if err != nil {
		errmsg := fmt.Sprintf("error loading pending proofs: %v", err)
		return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}
	proofs := make(cashu.Proofs, len(dbProofs))
	for i, p := range dbProofs {
		proofs[i] = cashu.Proof{Amount: p.Amount, Id: p.Id, Secret: p.Secret, C: p.C, Witness: p.Witness}
	}

	switch result.Status {
	case lightning.Paid:
		m.logInfof("payment %v succeeded for melt quote '%v'", meltQuote.PaymentHash, meltQuote.Id)
		if err := m.ledger.CommitSpend(proofs); err != nil {
			errmsg := fmt.Sprintf("error invalidating proofs: %v", err)
			return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
		}

		meltQuote.State = nut05.Paid
		meltQuote.Preimage = result.Preimage

		if len(changeOutputs) > 0 {
			spentSat := meltQuote.Amount
			if result.AmountMsat > 0 {
				spentSat = result.AmountMsat / 1000
			}
			reserved := meltQuote.Amount + meltQuote.FeeReserve
			var changeAmount uint64
			if spentSat < reserved {
				changeAmount = reserved - spentSat
			}
			change, err := m.signChangeOutputs(changeOutputs, changeAmount)
			if err != nil {
				return storage.MeltQuote{}, err
			}
			meltQuote.Change = change
		}

		if err := m.db.UpdateMeltQuote(meltQuote.Id, meltQuote.Preimage, meltQuote.Change, meltQuote.State); err != nil {
			errmsg := fmt.Sprintf("error updating melt quote state: %v", err)
			return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
		}
		m.publishProofsSpentDB(dbProofs)

	case lightning.Failed:
		m.logInfof("payment %v failed for melt quote '%v'; releasing proofs", meltQuote.PaymentHash, meltQuote.Id)
		if err := m.ledger.Release(proofs); err != nil {
			errmsg := fmt.Sprintf("error releasing proofs: %v", err)
			return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
		}
		meltQuote.State = nut05.Unpaid
		if err := m.db.UpdateMeltQuote(meltQuote.Id, "", nil, meltQuote.State); err != nil {
			errmsg := fmt.Sprintf("error updating melt quote state: %v", err)
			return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
		}
		for _, p := range dbProofs {
			m.pubsub.PublishProofState(p.Y, nut07.ProofState{Y: p.Y, State: nut07.Unspent})
		}

	default:
		// Pending or Unknown: the payment's outcome cannot be safely
		// assumed either way. Flag irreversible so the restart
		// reconciler keeps polling instead of anyone releasing these
		// proofs back to Unspent.
		if err := m.ledger.MarkIrreversible(proofs); err != nil {
			errmsg := fmt.Sprintf("error marking proofs irreversible: %v", err)
			return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
		}
	}

	m.pubsub.PublishMeltQuoteUpdate(meltQuote.Id, meltQuoteResponse(meltQuote))
	return meltQuote, nil
}

func meltQuoteResponse(quote storage.MeltQuote) nut05.PostMeltQuoteBolt11Response {
	return nut05.PostMeltQuoteBolt11Response{
		Quote:      quote.Id,
		Amount:     quote.Amount,
		FeeReserve: quote.FeeReserve,
		State:      quote.State,
		Expiry:     int64(quote.Expiry),
		Preimage:   quote.Preimage,
		Change:     quote.Change,
	}
}

func (m *Mint) publishProofsSpentDB(dbProofs []storage.DBProof) {
	for _, p := range dbProofs {
		m.pubsub.PublishProofState(p.Y, nut07.ProofState{Y: p.Y, State: nut07.Spent})
	}
}

// MeltTokens verifies the proofs provided for a melt quote and attempts
// the outgoing payment. outputs is an optional set of blank (amount=0)
// change outputs the mint signs for any unused fee reserve.
func (m *Mint) MeltTokens(ctx context.Context, method, quoteId string, proofs cashu.Proofs, outputs cashu.BlindedMessages) (storage.MeltQuote, error) {
	var proofsAmount uint64
	var overflow bool
	Ys := make([]string, len(proofs))
	for i, proof := range proofs {
		proofsAmount, overflow = overflowAddUint64(proofsAmount, proof.Amount)
		if overflow {
			return storage.MeltQuote{}, cashu.InvalidProofErr
		}

		Y, err := crypto.HashToCurve([]byte(proof.Secret))
		if err != nil {
			return storage.MeltQuote{}, cashu.InvalidProofErr
		}
		Ys[i] = hex.EncodeToString(Y.SerializeCompressed())
	}

	if method != BOLT11_METHOD {
		return storage.MeltQuote{}, cashu.PaymentMethodNotSupportedErr
	}

	meltQuote, err := m.db.GetMeltQuote(quoteId)
	if err != nil {
		return storage.MeltQuote{}, cashu.QuoteNotExistErr
	}
	if meltQuote.State == nut05.Paid {
		return storage.MeltQuote{}, cashu.MeltQuoteAlreadyPaid
	}
	if meltQuote.State == nut05.Pending {
		return storage.MeltQuote{}, cashu.QuotePending
	}

	if err := m.verifyProofs(proofs, Ys); err != nil {
		return storage.MeltQuote{}, err
	}

	fees := m.TransactionFees(proofs)
	required, overflow1 := overflowAddUint64(meltQuote.Amount, meltQuote.FeeReserve)
	required, overflow2 := overflowAddUint64(required, uint64(fees))
	if overflow1 || overflow2 || proofsAmount < required {
		return storage.MeltQuote{}, cashu.InsufficientProofsAmount
	}

	if nut11.ProofsSigAll(proofs) {
		B_s := make([]string, len(outputs))
		for i, o := range outputs {
			B_s[i] = o.B_
		}
		if err := verifySigAllBlindedMessagesHex(proofs, B_s, quoteId); err != nil {
			return storage.MeltQuote{}, err
		}
	}

	m.logInfof("verified proofs in melt tokens request. Setting proofs as pending before attempting payment.")
	if err := m.ledger.Reserve(proofs, meltQuote.Id); err != nil {
		errmsg := fmt.Sprintf("error reserving proofs: %v", err)
		return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}
	meltQuote.State = nut05.Pending
	if err := m.db.UpdateMeltQuote(meltQuote.Id, "", nil, nut05.Pending); err != nil {
		errmsg := fmt.Sprintf("error updating melt quote state: %v", err)
		return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}

	// if a mint quote with the same invoice exists, settle both
	// internally instead of dispatching to the backend
	mintQuote, err := m.db.GetMintQuoteByPaymentHash(meltQuote.PaymentHash)
	if err == nil {
		m.logDebugf("quotes '%v' and '%v' have same invoice so settling them internally", meltQuote.Id, mintQuote.Id)
		return m.settleQuotesInternally(mintQuote, meltQuote, proofs)
	}

	m.logInfof("attempting to pay invoice: %v", meltQuote.InvoiceRequest)
	result, err := m.lightningClient.ExecuteOutgoing(ctx, meltQuote.InvoiceRequest, meltQuote.FeeReserve*1000)
	if err != nil && result.Status == 0 {
		result.Status = lightning.Unknown
	}
	return m.resolveMeltOutcome(meltQuote, result, outputs)
}

// settleQuotesInternally settles a pair of mint and melt quotes that
// reference the same invoice without involving the backend at all.
func (m *Mint) settleQuotesInternally(mintQuote storage.MintQuote, meltQuote storage.MeltQuote, proofs cashu.Proofs) (storage.MeltQuote, error) {
	if err := m.ledger.CommitSpend(proofs); err != nil {
		errmsg := fmt.Sprintf("error invalidating proofs: %v", err)
		return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}

	meltQuote.State = nut05.Paid
	if err := m.db.UpdateMeltQuote(meltQuote.Id, meltQuote.Preimage, meltQuote.Change, meltQuote.State); err != nil {
		errmsg := fmt.Sprintf("error updating melt quote state: %v", err)
		return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}

	if mintQuote.Amount != nil {
		mintQuote.AmountPaid = *mintQuote.Amount
	}
	mintQuote.State = nut04.Paid
	if err := m.db.UpdateMintQuote(mintQuote.Id, mintQuote.AmountPaid, mintQuote.AmountIssued, mintQuote.State); err != nil {
		errmsg := fmt.Sprintf("error updating mint quote state: %v", err)
		return storage.MeltQuote{}, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}

	return meltQuote, nil
}

func (m *Mint) ProofsStateCheck(Ys []string) ([]nut07.ProofState, error) {
	usedProofs, err := m.db.GetProofsUsed(Ys)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			errmsg := fmt.Sprintf("could not get used proofs from db: %v", err)
			return nil, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
		}
	}
	pendingProofs, err := m.db.GetPendingProofs(Ys)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			errmsg := fmt.Sprintf("could not get pending proofs from db: %v", err)
			return nil, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
		}
	}

	proofStates := make([]nut07.ProofState, len(Ys))
	for i, y := range Ys {
		state := nut07.Unspent

		if slices.ContainsFunc(usedProofs, func(p storage.DBProof) bool { return p.Y == y }) {
			state = nut07.Spent
		} else if slices.ContainsFunc(pendingProofs, func(p storage.DBProof) bool { return p.Y == y }) {
			state = nut07.Pending
		}

		proofStates[i] = nut07.ProofState{Y: y, State: state}
	}

	return proofStates, nil
}

func (m *Mint) RestoreSignatures(blindedMessages cashu.BlindedMessages) (cashu.BlindedMessages, cashu.BlindedSignatures, error) {
	outputs := make(cashu.BlindedMessages, 0, len(blindedMessages))
	signatures := make(cashu.BlindedSignatures, 0, len(blindedMessages))

	for _, bm := range blindedMessages {
		sig, err := m.db.GetBlindSignature(bm.B_)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		} else if err != nil {
			errmsg := fmt.Sprintf("could not get signature from db: %v", err)
			return nil, nil, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
		}

		outputs = append(outputs, bm)
		signatures = append(signatures, sig)
	}

	return outputs, signatures, nil
}

func (m *Mint) verifyProofs(proofs cashu.Proofs, Ys []string) error {
	if len(proofs) == 0 {
		return cashu.NoProofsProvided
	}

	pendingProofs, err := m.db.GetPendingProofs(Ys)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			errmsg := fmt.Sprintf("could not get pending proofs from db: %v", err)
			return cashu.BuildCashuError(errmsg, cashu.DBErrCode)
		}
	}
	if len(pendingProofs) != 0 {
		return cashu.ProofPendingErr
	}

	usedProofs, err := m.db.GetProofsUsed(Ys)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			errmsg := fmt.Sprintf("could not get used proofs from db: %v", err)
			return cashu.BuildCashuError(errmsg, cashu.DBErrCode)
		}
	}
	if len(usedProofs) != 0 {
		return cashu.ProofAlreadyUsedErr
	}

	if cashu.CheckDuplicateProofs(proofs) {
		return cashu.DuplicateProofs
	}

	var unit string
	for _, proof := range proofs {
		var k *secp256k1.PrivateKey
		keyset, ok := m.keysets[proof.Id]
		if !ok {
			return cashu.UnknownKeysetErr
		}
		if unit == "" {
			unit = keyset.Unit
		} else if unit != keyset.Unit {
			return cashu.BuildCashuError("inputs must all share the same unit", cashu.UnitErrCode)
		}
		key, ok := keyset.Keys[proof.Amount]
		if !ok {
			return cashu.InvalidProofErr
		}
		k = key.PrivateKey

		if nut11.IsSecretP2PK(proof) {
			secret, err := nut10.DeserializeSecret(proof.Secret)
			if err != nil {
				return cashu.BuildCashuError(err.Error(), cashu.StandardErrCode)
			}
			if nut11.IsSigAll(secret) {
				// SIG_ALL proofs are verified together against the
				// aggregated message in verifySigAllBlindedMessages,
				// not individually here.
			} else {
				m.logDebugf("verifying P2PK locked proof")
				if err := verifyP2PKLockedProof(proof); err != nil {
					return err
				}
			}
		}

		Cbytes, err := hex.DecodeString(proof.C)
		if err != nil {
			errmsg := fmt.Sprintf("invalid C: %v", err)
			return cashu.BuildCashuError(errmsg, cashu.StandardErrCode)
		}
		C, err := secp256k1.ParsePubKey(Cbytes)
		if err != nil {
			return cashu.BuildCashuError(err.Error(), cashu.StandardErrCode)
		}

		if !crypto.Verify(proof.Secret, k, C) {
			return cashu.InvalidProofErr
		}
	}
	return nil
}

func verifyP2PKLockedProof(proof cashu.Proof) error {
	p2pkWellKnownSecret, err := nut10.DeserializeSecret(proof.Secret)
	if err != nil {
		return cashu.BuildCashuError(err.Error(), cashu.StandardErrCode)
	}

	var p2pkWitness nut11.P2PKWitness
	if err := json.Unmarshal([]byte(proof.Witness), &p2pkWitness); err != nil {
		p2pkWitness.Signatures = []string{}
	}
	if nut11.DuplicateSignatures(p2pkWitness.Signatures) {
		return nut11.DuplicateSignaturesErr
	}

	p2pkTags, err := nut11.ParseP2PKTags(p2pkWellKnownSecret.Tags)
	if err != nil {
		return err
	}

	signaturesRequired := 1
	if p2pkTags.Locktime > 0 && time.Now().Local().Unix() > p2pkTags.Locktime {
		if len(p2pkTags.Refund) == 0 {
			return nil
		}
		hash := sha256.Sum256([]byte(proof.Secret))
		if len(p2pkWitness.Signatures) < 1 {
			return nut11.InvalidWitness
		}
		if !nut11.HasValidSignatures(hash[:], p2pkWitness, signaturesRequired, p2pkTags.Refund) {
			return nut11.NotEnoughSignaturesErr
		}
		return nil
	}

	pubkey, err := nut11.ParsePublicKey(p2pkWellKnownSecret.Data)
	if err != nil {
		return err
	}
	keys := []*btcec.PublicKey{pubkey}
	hash := sha256.Sum256([]byte(proof.Secret))

	if p2pkTags.NSigs > 0 {
		signaturesRequired = p2pkTags.NSigs
		if len(p2pkTags.Pubkeys) == 0 {
			return nut11.EmptyPubkeysErr
		}
		keys = append(keys, p2pkTags.Pubkeys...)
	}

	if len(p2pkWitness.Signatures) < 1 {
		return nut11.InvalidWitness
	}
	if !nut11.HasValidSignatures(hash[:], p2pkWitness, signaturesRequired, keys) {
		return nut11.NotEnoughSignaturesErr
	}
	return nil
}

// verifySigAllBlindedMessages verifies a SIG_ALL aggregated signature
// attached to the first input, over the concatenation of every input
// secret followed by every output B_. A non-empty suffix (the melt
// quote id) is appended for melt's variant of the message.
func verifySigAllBlindedMessages(proofs cashu.Proofs, blindedMessages cashu.BlindedMessages, suffix string) error {
	B_s := make([]string, len(blindedMessages))
	for i, bm := range blindedMessages {
		B_s[i] = bm.B_
	}
	return verifySigAllBlindedMessagesHex(proofs, B_s, suffix)
}

func verifySigAllBlindedMessagesHex(proofs cashu.Proofs, B_s []string, suffix string) error {
	if len(proofs) == 0 {
		return cashu.NoProofsProvided
	}

	secret, err := nut10.DeserializeSecret(proofs[0].Secret)
	if err != nil {
		return cashu.BuildCashuError(err.Error(), cashu.StandardErrCode)
	}
	pubkeys, err := nut11.PublicKeys(secret)
	if err != nil {
		return err
	}

	signaturesRequired := 1
	p2pkTags, err := nut11.ParseP2PKTags(secret.Tags)
	if err != nil {
		return err
	}
	if p2pkTags.NSigs > 0 {
		signaturesRequired = p2pkTags.NSigs
	}

	for _, proof := range proofs {
		proofSecret, err := nut10.DeserializeSecret(proof.Secret)
		if err != nil {
			return cashu.BuildCashuError(err.Error(), cashu.StandardErrCode)
		}
		if !nut11.IsSigAll(proofSecret) {
			return nut11.AllSigAllFlagsErr
		}

		currentKeys, err := nut11.PublicKeys(proofSecret)
		if err != nil {
			return err
		}
		if !reflect.DeepEqual(pubkeys, currentKeys) {
			return nut11.SigAllKeysMustBeEqualErr
		}

		currentTags, err := nut11.ParseP2PKTags(proofSecret.Tags)
		if err != nil {
			return err
		}
		currentSignaturesRequired := 1
		if currentTags.NSigs > 0 {
			currentSignaturesRequired = currentTags.NSigs
		}
		if signaturesRequired != currentSignaturesRequired {
			return nut11.NSigsMustBeEqualErr
		}
	}

	msg := ""
	for _, proof := range proofs {
		msg += proof.Secret
	}
	for _, B_ := range B_s {
		msg += B_
	}
	msg += suffix
	hash := sha256.Sum256([]byte(msg))

	var witness nut11.P2PKWitness
	if err := json.Unmarshal([]byte(proofs[0].Witness), &witness); err != nil || len(witness.Signatures) < 1 {
		return nut11.InvalidWitness
	}
	if nut11.DuplicateSignatures(witness.Signatures) {
		return nut11.DuplicateSignaturesErr
	}

	if !nut11.HasValidSignatures(hash[:], witness, signaturesRequired, pubkeys) {
		return nut11.NotEnoughSignaturesErr
	}

	return nil
}

// signBlindedMessages signs each blinded message with the key for its
// keyset id and amount, attaching a DLEQ proof.
func (m *Mint) signBlindedMessages(blindedMessages cashu.BlindedMessages) (cashu.BlindedSignatures, error) {
	blindedSignatures := make(cashu.BlindedSignatures, len(blindedMessages))

	for i, msg := range blindedMessages {
		sig, err := m.signBlindedMessage(msg)
		if err != nil {
			return nil, err
		}
		blindedSignatures[i] = sig
	}

	return blindedSignatures, nil
}

func (m *Mint) signBlindedMessage(msg cashu.BlindedMessage) (cashu.BlindedSignature, error) {
	keyset, ok := m.keysets[msg.Id]
	if !ok {
		return cashu.BlindedSignature{}, cashu.UnknownKeysetErr
	}
	if active, ok := m.activeKeysets[keyset.Unit]; !ok || active.Id != keyset.Id {
		return cashu.BlindedSignature{}, cashu.InactiveKeysetSignatureRequest
	}
	key, ok := keyset.Keys[msg.Amount]
	if !ok {
		return cashu.BlindedSignature{}, cashu.InvalidBlindedMessageAmount
	}
	k := key.PrivateKey

	B_bytes, err := hex.DecodeString(msg.B_)
	if err != nil {
		errmsg := fmt.Sprintf("invalid B_: %v", err)
		return cashu.BlindedSignature{}, cashu.BuildCashuError(errmsg, cashu.StandardErrCode)
	}
	B_, err := btcec.ParsePubKey(B_bytes)
	if err != nil {
		return cashu.BlindedSignature{}, cashu.BuildCashuError(err.Error(), cashu.StandardErrCode)
	}

	C_ := crypto.SignBlindedMessage(B_, k)
	e, s := crypto.GenerateDLEQ(k, B_, C_)

	return cashu.BlindedSignature{
		Amount: msg.Amount,
		C_:     hex.EncodeToString(C_.SerializeCompressed()),
		Id:     keyset.Id,
		DLEQ: &cashu.DLEQProof{
			E: hex.EncodeToString(e.Serialize()),
			S: hex.EncodeToString(s.Serialize()),
		},
	}, nil
}

// signChangeOutputs signs the canonical largest-first split of amount
// across the supplied blank outputs, leaving any outputs beyond what the
// split needs unsigned (NUT-08 blank outputs are sized for the worst
// case fee reserve, not the actual change).
func (m *Mint) signChangeOutputs(outputs cashu.BlindedMessages, amount uint64) (cashu.BlindedSignatures, error) {
	if amount == 0 || len(outputs) == 0 {
		return nil, nil
	}

	split := cashu.AmountSplit(amount)
	if len(split) > len(outputs) {
		split = split[:len(outputs)]
	}

	change := make(cashu.BlindedSignatures, len(split))
	for i, amt := range split {
		msg := outputs[i]
		msg.Amount = amt
		sig, err := m.signBlindedMessage(msg)
		if err != nil {
			return nil, err
		}
		change[i] = sig
	}

	if err := m.ledger.RecordSignatures(outputs[:len(split)], change); err != nil {
		errmsg := fmt.Sprintf("error recording change signatures: %v", err)
		return nil, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
	}

	return change, nil
}

// overflowAddUint64 and underflowSubUint64 defer to cashu's checked
// arithmetic so the mint's amount bookkeeping and the wallet's/protocol's
// share one implementation.
func overflowAddUint64(a, b uint64) (uint64, bool) {
	return cashu.OverflowAddUint64(a, b)
}

func underflowSubUint64(a, b uint64) (uint64, bool) {
	return cashu.UnderflowSubUint64(a, b)
}

func (m *Mint) TransactionFees(inputs cashu.Proofs) uint {
	var fees uint = 0
	for _, proof := range inputs {
		// note: not checking that proof id is from valid keyset
		// because already doing that in call to verifyProofs
		fees += m.keysets[proof.Id].InputFeePpk
	}
	return (fees + 999) / 1000
}

func (m *Mint) GetActiveKeyset(unit string) (crypto.MintKeyset, bool) {
	keyset, ok := m.activeKeysets[unit]
	return keyset, ok
}

func (m *Mint) balance() (uint64, error) {
	issued, err := m.db.GetIssuedEcash()
	if err != nil {
		return 0, err
	}
	redeemed, err := m.db.GetRedeemedEcash()
	if err != nil {
		return 0, err
	}

	var total uint64
	for _, amt := range issued {
		total += amt
	}
	for _, amt := range redeemed {
		total -= amt
	}
	return total, nil
}

func (m *Mint) SetMintInfo(mintInfo MintInfo) {
	methods := make([]nut06.MethodSetting, 0, len(m.activeKeysets))
	meltMethods := make([]nut06.MethodSetting, 0, len(m.activeKeysets))
	for unit := range m.activeKeysets {
		methods = append(methods, nut06.MethodSetting{
			Method:    BOLT11_METHOD,
			Unit:      unit,
			MinAmount: m.limits.MintingSettings.MinAmount,
			MaxAmount: m.limits.MintingSettings.MaxAmount,
		})
		meltMethods = append(meltMethods, nut06.MethodSetting{
			Method:    BOLT11_METHOD,
			Unit:      unit,
			MinAmount: m.limits.MeltingSettings.MinAmount,
			MaxAmount: m.limits.MeltingSettings.MaxAmount,
		})
	}

	nuts := nut06.NutsMap{
		4:  nut06.NutSetting{Methods: methods, Disabled: false},
		5:  nut06.NutSetting{Methods: meltMethods, Disabled: false},
		7:  map[string]bool{"supported": true},
		8:  map[string]bool{"supported": true},
		9:  map[string]bool{"supported": true},
		10: map[string]bool{"supported": true},
		11: map[string]bool{"supported": true},
		12: map[string]bool{"supported": true},
		14: map[string]bool{"supported": true},
		17: map[string]bool{"supported": true},
		20: map[string]bool{"supported": true},
	}

	m.mintInfo = nut06.MintInfo{
		Name:            mintInfo.Name,
		Version:         "ecash/0.1.0",
		Description:     mintInfo.Description,
		LongDescription: mintInfo.LongDescription,
		Contact:         mintInfo.Contact,
		Motd:            mintInfo.Motd,
		Nuts:            nuts,
	}
}

func (m *Mint) RetrieveMintInfo() (nut06.MintInfo, error) {
	seed, err := m.db.GetSeed()
	if err != nil {
		return nut06.MintInfo{}, err
	}
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nut06.MintInfo{}, err
	}
	publicKey, err := master.ECPubKey()
	if err != nil {
		return nut06.MintInfo{}, err
	}

	mintingDisabled := false
	if m.limits.MaxBalance > 0 {
		balance, err := m.balance()
		if err != nil {
			errmsg := fmt.Sprintf("error getting mint balance: %v", err)
			return nut06.MintInfo{}, cashu.BuildCashuError(errmsg, cashu.DBErrCode)
		}
		if balance >= m.limits.MaxBalance {
			mintingDisabled = true
		}
	}

	nut4 := m.mintInfo.Nuts[4].(nut06.NutSetting)
	nut4.Disabled = mintingDisabled
	m.mintInfo.Nuts[4] = nut4
	m.mintInfo.Pubkey = hex.EncodeToString(publicKey.SerializeCompressed())

	return m.mintInfo, nil
}
