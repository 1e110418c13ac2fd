package wallet

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/tyler-smith/go-bip39"

	"github.com/chaumcash/ecash/cashu"
	"github.com/chaumcash/ecash/cashu/nuts/nut03"
	"github.com/chaumcash/ecash/cashu/nuts/nut04"
	"github.com/chaumcash/ecash/cashu/nuts/nut05"
	"github.com/chaumcash/ecash/cashu/nuts/nut07"
	"github.com/chaumcash/ecash/cashu/nuts/nut13"
	"github.com/chaumcash/ecash/crypto"
	"github.com/chaumcash/ecash/wallet/client"
	"github.com/chaumcash/ecash/wallet/storage"
)

var (
	ErrMintNotExist            = errors.New("mint does not exist")
	ErrInsufficientMintBalance = errors.New("not enough funds in selected mint")
	ErrQuoteNotPaid            = errors.New("quote has not been paid")
)

// walletMint tracks the active and inactive keysets the wallet knows
// about for one mint url.
type walletMint struct {
	mintURL         string
	activeKeyset    crypto.WalletKeyset
	inactiveKeysets map[string]crypto.WalletKeyset
}

type Config struct {
	WalletPath     string
	CurrentMintURL string
	Unit           string
}

// Wallet holds proofs and keysets across one or more trusted mints,
// deriving every secret and blinding factor it uses from a single BIP-32
// master key so a wallet can be recreated from its mnemonic alone.
type Wallet struct {
	db storage.WalletDB

	masterKey *hdkeychain.ExtendedKey

	mints       map[string]walletMint
	defaultMint string

	unit cashu.CurrencyUnit
}

func InitStorage(path string) (storage.WalletDB, error) {
	return storage.InitBolt(path)
}

func LoadWallet(config Config) (*Wallet, error) {
	db, err := InitStorage(config.WalletPath)
	if err != nil {
		return nil, fmt.Errorf("InitStorage: %v", err)
	}

	unit := cashu.Sat
	if config.Unit != "" {
		unit = cashu.ParseUnit(config.Unit)
	}

	wallet := &Wallet{db: db, mints: make(map[string]walletMint), unit: unit}

	seed := db.GetSeed()
	if len(seed) == 0 {
		entropy, err := bip39.NewEntropy(128)
		if err != nil {
			return nil, fmt.Errorf("error generating entropy: %v", err)
		}
		mnemonic, err := bip39.NewMnemonic(entropy)
		if err != nil {
			return nil, fmt.Errorf("error generating mnemonic: %v", err)
		}
		seed = bip39.NewSeed(mnemonic, "")
		db.SaveMnemonicSeed(mnemonic, seed)
	}

	masterKey, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("error deriving master key: %v", err)
	}
	wallet.masterKey = masterKey

	for mintURL, keysets := range db.GetKeysets() {
		m := walletMint{mintURL: mintURL, inactiveKeysets: make(map[string]crypto.WalletKeyset)}
		for _, keyset := range keysets {
			if keyset.Active && keyset.Unit == unit.String() {
				m.activeKeyset = keyset
			} else {
				m.inactiveKeysets[keyset.Id] = keyset
			}
		}
		wallet.mints[mintURL] = m
	}

	if config.CurrentMintURL != "" {
		parsed, err := url.Parse(config.CurrentMintURL)
		if err != nil {
			return nil, fmt.Errorf("invalid mint url: %v", err)
		}
		mintURL := parsed.String()

		if _, ok := wallet.mints[mintURL]; !ok {
			if err := wallet.addMint(mintURL); err != nil {
				return nil, fmt.Errorf("error adding mint '%v': %v", mintURL, err)
			}
		}
		wallet.defaultMint = mintURL
	} else {
		for mintURL := range wallet.mints {
			wallet.defaultMint = mintURL
			break
		}
	}

	return wallet, nil
}

// addMint fetches the active and inactive keysets for a mint the wallet
// has not dealt with before and persists them.
func (w *Wallet) addMint(mintURL string) error {
	activeKeyset, err := GetMintActiveKeyset(mintURL, w.unit)
	if err != nil {
		return fmt.Errorf("error getting active keyset from mint: %v", err)
	}
	if err := w.db.SaveKeyset(activeKeyset); err != nil {
		return err
	}

	inactiveKeysets, err := GetMintInactiveKeysets(mintURL, w.unit)
	if err != nil {
		return fmt.Errorf("error getting inactive keysets from mint: %v", err)
	}
	for id, keyset := range inactiveKeysets {
		keyset := keyset
		if err := w.db.SaveKeyset(&keyset); err != nil {
			return err
		}
		inactiveKeysets[id] = keyset
	}

	w.mints[mintURL] = walletMint{
		mintURL:         mintURL,
		activeKeyset:    *activeKeyset,
		inactiveKeysets: inactiveKeysets,
	}
	return nil
}

// GetBalance returns the total unspent balance across every trusted mint.
func (w *Wallet) GetBalance() uint64 {
	return w.db.GetProofs().Amount()
}

// GetBalanceByMints breaks the wallet's balance down by mint url.
func (w *Wallet) GetBalanceByMints() map[string]uint64 {
	balances := make(map[string]uint64, len(w.mints))
	proofs := w.db.GetProofs()

	for mintURL, mint := range w.mints {
		var balance uint64
		for _, proof := range proofs {
			if proof.Id == mint.activeKeyset.Id {
				balance += proof.Amount
				continue
			}
			if _, ok := mint.inactiveKeysets[proof.Id]; ok {
				balance += proof.Amount
			}
		}
		balances[mintURL] = balance
	}

	return balances
}

// TrustedMints lists the mint urls the wallet currently holds keysets for.
func (w *Wallet) TrustedMints() []string {
	mints := make([]string, 0, len(w.mints))
	for mintURL := range w.mints {
		mints = append(mints, mintURL)
	}
	return mints
}

// UpdateMintURL migrates every keyset and the default mint pointer from
// oldMintURL to newMintURL, for when a mint moves to a new address.
func (w *Wallet) UpdateMintURL(oldMintURL, newMintURL string) error {
	mint, ok := w.mints[oldMintURL]
	if !ok {
		return ErrMintNotExist
	}

	if err := w.db.UpdateKeysetMintURL(oldMintURL, newMintURL); err != nil {
		return fmt.Errorf("error updating keysets in db: %v", err)
	}

	mint.mintURL = newMintURL
	mint.activeKeyset.MintURL = newMintURL
	for id, keyset := range mint.inactiveKeysets {
		keyset.MintURL = newMintURL
		mint.inactiveKeysets[id] = keyset
	}

	delete(w.mints, oldMintURL)
	w.mints[newMintURL] = mint

	if w.defaultMint == oldMintURL {
		w.defaultMint = newMintURL
	}

	return nil
}

// createBlindedMessages builds one blinded message per amount in split,
// deriving each secret and blinding factor deterministically from the
// wallet's master key so the wallet's entire proof set is recoverable
// from the mnemonic alone (NUT-13). counter is advanced in place.
func (w *Wallet) createBlindedMessages(split []uint64, keysetId string, counter *uint32) (
	cashu.BlindedMessages, []string, []*secp256k1.PrivateKey, error) {

	keysetPath, err := nut13.DeriveKeysetPath(w.masterKey, keysetId)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("error deriving keyset path: %v", err)
	}

	blindedMessages := make(cashu.BlindedMessages, len(split))
	secrets := make([]string, len(split))
	rs := make([]*secp256k1.PrivateKey, len(split))

	for i, amt := range split {
		secret, r, err := generateDeterministicSecret(keysetPath, *counter)
		if err != nil {
			return nil, nil, nil, err
		}

		B_, r, err := crypto.BlindMessage(secret, r)
		if err != nil {
			return nil, nil, nil, err
		}

		blindedMessages[i] = cashu.BlindedMessage{
			Amount: amt,
			Id:     keysetId,
			B_:     hex.EncodeToString(B_.SerializeCompressed()),
		}
		secrets[i] = secret
		rs[i] = r
		*counter = *counter + 1
	}

	return blindedMessages, secrets, rs, nil
}

// constructProofs unblinds a mint's signatures into spendable proofs. If
// blindedMessages carries an entry for every signature and the mint
// attached DLEQ data, each proof's DLEQ is verified before it is trusted
// and is preserved on the proof so it can be re-verified by whoever
// receives it next.
func constructProofs(signatures cashu.BlindedSignatures, blindedMessages cashu.BlindedMessages,
	secrets []string, rs []*secp256k1.PrivateKey, keyset *crypto.WalletKeyset) (cashu.Proofs, error) {

	if len(signatures) != len(secrets) || len(signatures) != len(rs) {
		return nil, errors.New("lengths do not match")
	}

	verifyDLEQ := len(blindedMessages) == len(signatures)

	proofs := make(cashu.Proofs, len(signatures))
	for i, signature := range signatures {
		pubkey, ok := keyset.PublicKeys[signature.Amount]
		if !ok {
			return nil, fmt.Errorf("keyset '%v' has no key for amount %v", keyset.Id, signature.Amount)
		}

		C_bytes, err := hex.DecodeString(signature.C_)
		if err != nil {
			return nil, err
		}
		C_, err := secp256k1.ParsePubKey(C_bytes)
		if err != nil {
			return nil, err
		}

		C := crypto.UnblindSignature(C_, rs[i], pubkey)

		proof := cashu.Proof{
			Amount: signature.Amount,
			Id:     signature.Id,
			Secret: secrets[i],
			C:      hex.EncodeToString(C.SerializeCompressed()),
		}

		if verifyDLEQ && signature.DLEQ != nil {
			B_bytes, err := hex.DecodeString(blindedMessages[i].B_)
			if err != nil {
				return nil, err
			}
			B_, err := secp256k1.ParsePubKey(B_bytes)
			if err != nil {
				return nil, err
			}

			eBytes, err := hex.DecodeString(signature.DLEQ.E)
			if err != nil {
				return nil, err
			}
			sBytes, err := hex.DecodeString(signature.DLEQ.S)
			if err != nil {
				return nil, err
			}
			e := secp256k1.PrivKeyFromBytes(eBytes)
			s := secp256k1.PrivKeyFromBytes(sBytes)

			if !crypto.VerifyDLEQ(e, s, pubkey, B_, C_) {
				return nil, fmt.Errorf("invalid DLEQ proof from mint for amount %v", signature.Amount)
			}

			proof.DLEQ = &cashu.DLEQProof{
				E: signature.DLEQ.E,
				S: signature.DLEQ.S,
				R: hex.EncodeToString(rs[i].Serialize()),
			}
		}

		proofs[i] = proof
	}

	return proofs, nil
}

// RequestMint asks mintURL for an invoice to mint amount in the wallet's
// unit, and persists the resulting quote.
func (w *Wallet) RequestMint(amount uint64, mintURL string) (*storage.MintQuote, error) {
	if mintURL == "" {
		mintURL = w.defaultMint
	}
	if _, ok := w.mints[mintURL]; !ok {
		return nil, ErrMintNotExist
	}

	mintQuoteResponse, err := client.PostMintQuoteBolt11(mintURL,
		nut04.PostMintQuoteBolt11Request{Amount: amount, Unit: w.unit.String()})
	if err != nil {
		return nil, err
	}

	quote := storage.MintQuote{
		QuoteId:        mintQuoteResponse.Quote,
		Mint:           mintURL,
		Method:         string(cashu.Bolt11Method),
		State:          mintQuoteResponse.State,
		Unit:           w.unit.String(),
		PaymentRequest: mintQuoteResponse.Request,
		Amount:         amount,
		QuoteExpiry:    uint64(mintQuoteResponse.Expiry),
	}
	if err := w.db.SaveMintQuote(quote); err != nil {
		return nil, fmt.Errorf("error saving mint quote: %v", err)
	}

	return &quote, nil
}

// MintQuoteState refreshes the state of a previously requested mint quote
// from the mint and updates the locally stored copy.
func (w *Wallet) MintQuoteState(quoteId string) (*nut04.PostMintQuoteBolt11Response, error) {
	quote := w.db.GetMintQuoteById(quoteId)
	if quote == nil {
		return nil, fmt.Errorf("quote '%v' not found", quoteId)
	}

	mintQuoteResponse, err := client.GetMintQuoteState(quote.Mint, quoteId)
	if err != nil {
		return nil, err
	}

	quote.State = mintQuoteResponse.State
	if err := w.db.SaveMintQuote(*quote); err != nil {
		return nil, err
	}

	return mintQuoteResponse, nil
}

// MintTokens redeems a paid mint quote for proofs.
func (w *Wallet) MintTokens(quoteId string) (cashu.Proofs, error) {
	quote := w.db.GetMintQuoteById(quoteId)
	if quote == nil {
		return nil, fmt.Errorf("quote '%v' not found", quoteId)
	}

	mintQuoteResponse, err := client.GetMintQuoteState(quote.Mint, quoteId)
	if err != nil {
		return nil, err
	}
	if mintQuoteResponse.State == nut04.Unpaid {
		return nil, ErrQuoteNotPaid
	}

	mint, ok := w.mints[quote.Mint]
	if !ok {
		return nil, ErrMintNotExist
	}
	keyset := mint.activeKeyset

	counter := w.db.GetKeysetCounter(keyset.Id)
	split := cashu.AmountSplit(quote.Amount)
	blindedMessages, secrets, rs, err := w.createBlindedMessages(split, keyset.Id, &counter)
	if err != nil {
		return nil, fmt.Errorf("error creating blinded messages: %v", err)
	}

	mintRequest := nut04.PostMintBolt11Request{Quote: quoteId, Outputs: blindedMessages}
	mintResponse, err := client.PostMintBolt11(quote.Mint, mintRequest)
	if err != nil {
		return nil, err
	}

	proofs, err := constructProofs(mintResponse.Signatures, blindedMessages, secrets, rs, &keyset)
	if err != nil {
		return nil, fmt.Errorf("error constructing proofs: %v", err)
	}

	if err := w.db.SaveProofs(proofs); err != nil {
		return nil, fmt.Errorf("error storing proofs: %v", err)
	}
	if err := w.db.IncrementKeysetCounter(keyset.Id, uint32(len(split))); err != nil {
		return nil, fmt.Errorf("error updating keyset counter: %v", err)
	}

	quote.State = nut04.Issued
	if err := w.db.SaveMintQuote(*quote); err != nil {
		return nil, err
	}

	return proofs, nil
}

// selectProofsForAmount picks stored proofs from mintURL covering amount,
// preferring proofs from inactive keysets so wallets naturally migrate
// off a retiring keyset.
func (w *Wallet) selectProofsForAmount(amount uint64, mintURL string) (cashu.Proofs, uint64, error) {
	mint, ok := w.mints[mintURL]
	if !ok {
		return nil, 0, ErrMintNotExist
	}

	var inactive, active cashu.Proofs
	for _, proof := range w.db.GetProofs() {
		if proof.Id == mint.activeKeyset.Id {
			active = append(active, proof)
			continue
		}
		if _, ok := mint.inactiveKeysets[proof.Id]; ok {
			inactive = append(inactive, proof)
		}
	}

	selected := cashu.Proofs{}
	var selectedAmount uint64
	for _, group := range []cashu.Proofs{inactive, active} {
		for _, proof := range group {
			if selectedAmount >= amount {
				break
			}
			selected = append(selected, proof)
			selectedAmount += proof.Amount
		}
	}

	if selectedAmount < amount {
		return nil, 0, ErrInsufficientMintBalance
	}

	return selected, selectedAmount, nil
}

// Send prepares a token worth amount from mintURL, swapping the selected
// proofs at the mint so the sender keeps no usable record of the tokens
// handed over and any leftover change comes back as fresh proofs.
func (w *Wallet) Send(amount uint64, mintURL string) (cashu.Token, error) {
	if mintURL == "" {
		mintURL = w.defaultMint
	}
	mint, ok := w.mints[mintURL]
	if !ok {
		return nil, ErrMintNotExist
	}

	proofsToSwap, selectedAmount, err := w.selectProofsForAmount(amount, mintURL)
	if err != nil {
		return nil, err
	}

	keyset := mint.activeKeyset
	counter := w.db.GetKeysetCounter(keyset.Id)

	sendSplit := cashu.AmountSplit(amount)
	changeSplit := cashu.AmountSplit(selectedAmount - amount)

	sendMessages, sendSecrets, sendRs, err := w.createBlindedMessages(sendSplit, keyset.Id, &counter)
	if err != nil {
		return nil, err
	}
	changeMessages, changeSecrets, changeRs, err := w.createBlindedMessages(changeSplit, keyset.Id, &counter)
	if err != nil {
		return nil, err
	}

	outputs := make(cashu.BlindedMessages, 0, len(sendMessages)+len(changeMessages))
	outputs = append(outputs, sendMessages...)
	outputs = append(outputs, changeMessages...)
	secrets := append(append([]string{}, sendSecrets...), changeSecrets...)
	rs := append(append([]*secp256k1.PrivateKey{}, sendRs...), changeRs...)

	swapResponse, err := client.PostSwap(mintURL, nut03.PostSwapRequest{Inputs: proofsToSwap, Outputs: outputs})
	if err != nil {
		return nil, err
	}

	proofs, err := constructProofs(swapResponse.Signatures, outputs, secrets, rs, &keyset)
	if err != nil {
		return nil, fmt.Errorf("error constructing proofs: %v", err)
	}
	if err := w.db.IncrementKeysetCounter(keyset.Id, uint32(len(outputs))); err != nil {
		return nil, err
	}

	for _, proof := range proofsToSwap {
		w.db.DeleteProof(proof.Secret)
	}

	sendProofs := proofs[:len(sendMessages)]
	changeProofs := proofs[len(sendMessages):]
	if err := w.db.SaveProofs(changeProofs); err != nil {
		return nil, fmt.Errorf("error storing change proofs: %v", err)
	}

	token, err := cashu.NewTokenV4(sendProofs, mintURL, w.unit, true)
	if err != nil {
		return nil, fmt.Errorf("error creating token: %v", err)
	}

	return token, nil
}

// Receive redeems a token's proofs into the wallet, swapping them at the
// issuing mint first if swap is true (recommended, since an unswapped
// token's proofs remain recognizable to whoever sent them).
func (w *Wallet) Receive(token cashu.Token, swap bool) (uint64, error) {
	mintURL := token.Mint()
	mint, ok := w.mints[mintURL]
	if !ok {
		if err := w.addMint(mintURL); err != nil {
			return 0, fmt.Errorf("unknown mint and could not add it: %v", err)
		}
		mint = w.mints[mintURL]
	}

	proofs := token.Proofs()
	if !swap {
		if err := w.db.SaveProofs(proofs); err != nil {
			return 0, err
		}
		return proofs.Amount(), nil
	}

	keyset := mint.activeKeyset
	counter := w.db.GetKeysetCounter(keyset.Id)

	split := cashu.AmountSplit(proofs.Amount())
	outputs, secrets, rs, err := w.createBlindedMessages(split, keyset.Id, &counter)
	if err != nil {
		return 0, err
	}

	swapResponse, err := client.PostSwap(mintURL, nut03.PostSwapRequest{Inputs: proofs, Outputs: outputs})
	if err != nil {
		return 0, err
	}

	newProofs, err := constructProofs(swapResponse.Signatures, outputs, secrets, rs, &keyset)
	if err != nil {
		return 0, fmt.Errorf("error constructing proofs: %v", err)
	}

	if err := w.db.SaveProofs(newProofs); err != nil {
		return 0, err
	}
	if err := w.db.IncrementKeysetCounter(keyset.Id, uint32(len(outputs))); err != nil {
		return 0, err
	}

	return newProofs.Amount(), nil
}

// Melt pays a bolt11 invoice out of mintURL's balance, returning the
// settled quote. If the payment is still pending when the mint responds,
// the proofs stay reserved in the pending set until a later check.
func (w *Wallet) Melt(invoice, mintURL string) (*storage.MeltQuote, error) {
	if mintURL == "" {
		mintURL = w.defaultMint
	}
	if _, ok := w.mints[mintURL]; !ok {
		return nil, ErrMintNotExist
	}

	meltQuoteResponse, err := client.PostMeltQuoteBolt11(mintURL,
		nut05.PostMeltQuoteBolt11Request{Request: invoice, Unit: w.unit.String()})
	if err != nil {
		return nil, err
	}

	amountNeeded := meltQuoteResponse.Amount + meltQuoteResponse.FeeReserve
	proofsToSend, selectedAmount, err := w.selectProofsForAmount(amountNeeded, mintURL)
	if err != nil {
		return nil, err
	}

	mint := w.mints[mintURL]
	keyset := mint.activeKeyset
	counter := w.db.GetKeysetCounter(keyset.Id)

	// overpaid amount (selected proofs minus what the melt actually
	// consumes) comes back as change outputs per NUT-08.
	changeSplit := cashu.AmountSplit(selectedAmount - amountNeeded)
	changeOutputs, changeSecrets, changeRs, err := w.createBlindedMessages(changeSplit, keyset.Id, &counter)
	if err != nil {
		return nil, fmt.Errorf("error creating change outputs: %v", err)
	}

	meltResponse, err := client.PostMeltBolt11(mintURL,
		nut05.PostMeltBolt11Request{Quote: meltQuoteResponse.Quote, Inputs: proofsToSend, Outputs: changeOutputs})
	if err != nil {
		return nil, err
	}

	if len(meltResponse.Change) > 0 {
		changeProofs, err := constructProofs(meltResponse.Change, changeOutputs, changeSecrets, changeRs, &keyset)
		if err != nil {
			return nil, fmt.Errorf("error constructing change proofs: %v", err)
		}
		if err := w.db.SaveProofs(changeProofs); err != nil {
			return nil, fmt.Errorf("error storing change proofs: %v", err)
		}
		if err := w.db.IncrementKeysetCounter(keyset.Id, uint32(len(changeOutputs))); err != nil {
			return nil, err
		}
	}

	quote := storage.MeltQuote{
		QuoteId:        meltQuoteResponse.Quote,
		Mint:           mintURL,
		Method:         string(cashu.Bolt11Method),
		State:          meltResponse.State,
		Unit:           w.unit.String(),
		PaymentRequest: invoice,
		Amount:         meltQuoteResponse.Amount,
		FeeReserve:     meltQuoteResponse.FeeReserve,
		Preimage:       meltResponse.Preimage,
	}

	switch meltResponse.State {
	case nut05.Paid:
		for _, proof := range proofsToSend {
			w.db.DeleteProof(proof.Secret)
		}
	case nut05.Pending:
		if err := w.db.AddPendingProofsByQuoteId(proofsToSend, quote.QuoteId); err != nil {
			return nil, err
		}
		for _, proof := range proofsToSend {
			w.db.DeleteProof(proof.Secret)
		}
	default:
		// unpaid: keep the proofs, nothing was spent
	}

	if err := w.db.SaveMeltQuote(quote); err != nil {
		return nil, err
	}

	return &quote, nil
}

// CheckPendingMelt looks up the current state of a pending melt quote,
// releasing its reserved proofs back to spendable if the payment failed.
func (w *Wallet) CheckPendingMelt(quoteId string) (*nut05.PostMeltQuoteBolt11Response, error) {
	quote := w.db.GetMeltQuoteById(quoteId)
	if quote == nil {
		return nil, fmt.Errorf("quote '%v' not found", quoteId)
	}

	meltQuoteResponse, err := client.GetMeltQuoteState(quote.Mint, quoteId)
	if err != nil {
		return nil, err
	}

	if meltQuoteResponse.State != nut05.Pending {
		pendingProofs := w.db.GetPendingProofsByQuoteId(quoteId)
		if meltQuoteResponse.State != nut05.Paid {
			restored := make(cashu.Proofs, len(pendingProofs))
			for i, p := range pendingProofs {
				restored[i] = cashu.Proof{Amount: p.Amount, Id: p.Id, Secret: p.Secret, C: p.C, DLEQ: p.DLEQ}
			}
			if err := w.db.SaveProofs(restored); err != nil {
				return nil, err
			}
		}
		if err := w.db.DeletePendingProofsByQuoteId(quoteId); err != nil {
			return nil, err
		}

		quote.State = meltQuoteResponse.State
		quote.Preimage = meltQuoteResponse.Preimage
		if err := w.db.SaveMeltQuote(*quote); err != nil {
			return nil, err
		}
	}

	return meltQuoteResponse, nil
}

// CheckProofStates asks the mint whether the wallet's own unspent proofs
// are still considered unspent, pruning any it reports spent.
func (w *Wallet) CheckProofStates(mintURL string) error {
	mint, ok := w.mints[mintURL]
	if !ok {
		return ErrMintNotExist
	}

	var proofs cashu.Proofs
	for _, proof := range w.db.GetProofs() {
		if proof.Id == mint.activeKeyset.Id {
			proofs = append(proofs, proof)
			continue
		}
		if _, ok := mint.inactiveKeysets[proof.Id]; ok {
			proofs = append(proofs, proof)
		}
	}
	if len(proofs) == 0 {
		return nil
	}

	Ys := make([]string, len(proofs))
	for i, proof := range proofs {
		Y, err := crypto.HashToCurve([]byte(proof.Secret))
		if err != nil {
			return err
		}
		Ys[i] = hex.EncodeToString(Y.SerializeCompressed())
	}

	stateResponse, err := client.PostCheckProofState(mintURL, nut07.PostCheckStateRequest{Ys: Ys})
	if err != nil {
		return err
	}

	for i, state := range stateResponse.States {
		if state.State == nut07.Spent {
			w.db.DeleteProof(proofs[i].Secret)
		}
	}

	return nil
}
