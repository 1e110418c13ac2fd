// Package sqlite implements storage.MintDB over a single-file SQLite
// database, migrated with golang-migrate.
package sqlite

import (
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/chaumcash/ecash/cashu"
	"github.com/chaumcash/ecash/cashu/nuts/nut04"
	"github.com/chaumcash/ecash/cashu/nuts/nut05"
	"github.com/chaumcash/ecash/crypto"
	"github.com/chaumcash/ecash/mint/storage"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/mattn/go-sqlite3"
)

type SQLiteDB struct {
	db *sql.DB
}

func InitSQLite(path, migrationsPath string) (*SQLiteDB, error) {
	dbpath := filepath.Join(path, "mint.sqlite.db")
	db, err := sql.Open("sqlite3", dbpath+"?_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	absMigrations, err := filepath.Abs(migrationsPath)
	if err != nil {
		return nil, err
	}

	m, err := migrate.New(fmt.Sprintf("file://%s", absMigrations), fmt.Sprintf("sqlite3://%s", dbpath))
	if err != nil {
		return nil, err
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &SQLiteDB{db: db}, nil
}

func (sq *SQLiteDB) Close() error {
	return sq.db.Close()
}

func (sq *SQLiteDB) SaveSeed(seed []byte) error {
	hexSeed := hex.EncodeToString(seed)

	_, err := sq.db.Exec(`
	INSERT INTO seed (id, seed) VALUES (?, ?)
	`, "id", hexSeed)

	return err
}

func (sq *SQLiteDB) GetSeed() ([]byte, error) {
	var hexSeed string
	row := sq.db.QueryRow("SELECT seed FROM seed WHERE id = ?", "id")
	err := row.Scan(&hexSeed)
	if err != nil {
		return nil, err
	}

	seed, err := hex.DecodeString(hexSeed)
	if err != nil {
		return nil, err
	}

	return seed, nil
}

func (sq *SQLiteDB) SaveKeyset(keyset storage.DBKeyset) error {
	_, err := sq.db.Exec(`
		INSERT INTO keysets (id, unit, active, seed, derivation_path_idx, input_fee_ppk) VALUES (?, ?, ?, ?, ?, ?)
	`, keyset.Id, keyset.Unit, keyset.Active, keyset.Seed, keyset.DerivationPathIdx, keyset.InputFeePpk)

	return err
}

func (sq *SQLiteDB) GetKeysets() ([]storage.DBKeyset, error) {
	keysets := []storage.DBKeyset{}

	rows, err := sq.db.Query("SELECT id, unit, active, seed, derivation_path_idx, input_fee_ppk FROM keysets")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var keyset storage.DBKeyset
		err := rows.Scan(
			&keyset.Id,
			&keyset.Unit,
			&keyset.Active,
			&keyset.Seed,
			&keyset.DerivationPathIdx,
			&keyset.InputFeePpk,
		)
		if err != nil {
			return nil, err
		}
		keysets = append(keysets, keyset)
	}

	return keysets, nil
}

func (sq *SQLiteDB) UpdateKeysetActive(id string, active bool) error {
	result, err := sq.db.Exec("UPDATE keysets SET active = ? WHERE id = ?", active, id)
	if err != nil {
		return err
	}

	count, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if count != 1 {
		return errors.New("keyset was not updated")
	}
	return nil
}

func (sq *SQLiteDB) SaveProofs(proofs cashu.Proofs) error {
	tx, err := sq.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare("INSERT INTO proofs (y, amount, keyset_id, secret, c, witness) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, proof := range proofs {
		Y, err := crypto.HashToCurve([]byte(proof.Secret))
		if err != nil {
			tx.Rollback()
			return err
		}
		Yhex := hex.EncodeToString(Y.SerializeCompressed())

		if _, err := stmt.Exec(Yhex, proof.Amount, proof.Id, proof.Secret, proof.C, nullableString(proof.Witness)); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func inClause(n int) string {
	return "(?" + strings.Repeat(",?", n-1) + ")"
}

func toArgs(ss []string) []any {
	args := make([]any, len(ss))
	for i, s := range ss {
		args[i] = s
	}
	return args
}

func (sq *SQLiteDB) GetProofsUsed(Ys []string) ([]storage.DBProof, error) {
	proofs := []storage.DBProof{}
	if len(Ys) == 0 {
		return proofs, nil
	}
	query := `SELECT y, amount, keyset_id, secret, c, witness FROM proofs WHERE y IN ` + inClause(len(Ys))

	rows, err := sq.db.Query(query, toArgs(Ys)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var proof storage.DBProof
		var witness sql.NullString

		err := rows.Scan(&proof.Y, &proof.Amount, &proof.Id, &proof.Secret, &proof.C, &witness)
		if err != nil {
			return nil, err
		}
		if witness.Valid {
			proof.Witness = witness.String
		}

		proofs = append(proofs, proof)
	}

	return proofs, nil
}

func (sq *SQLiteDB) AddPendingProofs(proofs cashu.Proofs, quoteId string) error {
	tx, err := sq.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare("INSERT INTO pending_proofs (y, amount, keyset_id, secret, c, witness, melt_quote_id) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, proof := range proofs {
		Y, err := crypto.HashToCurve([]byte(proof.Secret))
		if err != nil {
			tx.Rollback()
			return err
		}
		Yhex := hex.EncodeToString(Y.SerializeCompressed())

		if _, err := stmt.Exec(Yhex, proof.Amount, proof.Id, proof.Secret, proof.C, nullableString(proof.Witness), quoteId); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func (sq *SQLiteDB) GetPendingProofs(Ys []string) ([]storage.DBProof, error) {
	proofs := []storage.DBProof{}
	if len(Ys) == 0 {
		return proofs, nil
	}
	query := `SELECT y, amount, keyset_id, secret, c, witness, melt_quote_id, irreversible FROM pending_proofs WHERE y IN ` + inClause(len(Ys))

	rows, err := sq.db.Query(query, toArgs(Ys)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		proof, err := scanPendingProof(rows)
		if err != nil {
			return nil, err
		}
		proofs = append(proofs, proof)
	}

	return proofs, nil
}

func (sq *SQLiteDB) GetPendingProofsByQuote(quoteId string) ([]storage.DBProof, error) {
	proofs := []storage.DBProof{}
	query := `SELECT y, amount, keyset_id, secret, c, witness, melt_quote_id, irreversible FROM pending_proofs WHERE melt_quote_id = ?`

	rows, err := sq.db.Query(query, quoteId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		proof, err := scanPendingProof(rows)
		if err != nil {
			return nil, err
		}
		proofs = append(proofs, proof)
	}

	return proofs, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanPendingProof(row scannable) (storage.DBProof, error) {
	var proof storage.DBProof
	var witness sql.NullString

	err := row.Scan(
		&proof.Y,
		&proof.Amount,
		&proof.Id,
		&proof.Secret,
		&proof.C,
		&witness,
		&proof.MeltQuoteId,
		&proof.Irreversible,
	)
	if err != nil {
		return storage.DBProof{}, err
	}
	if witness.Valid {
		proof.Witness = witness.String
	}

	return proof, nil
}

func (sq *SQLiteDB) RemovePendingProofs(Ys []string) error {
	if len(Ys) == 0 {
		return nil
	}

	tx, err := sq.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare("DELETE FROM pending_proofs WHERE y = ?")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, y := range Ys {
		if _, err := stmt.Exec(y); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func (sq *SQLiteDB) MarkPendingIrreversible(Ys []string) error {
	if len(Ys) == 0 {
		return nil
	}

	query := `UPDATE pending_proofs SET irreversible = TRUE WHERE y IN ` + inClause(len(Ys))
	_, err := sq.db.Exec(query, toArgs(Ys)...)
	return err
}

func (sq *SQLiteDB) SaveMintQuote(mintQuote storage.MintQuote) error {
	var pubkey string
	if mintQuote.Pubkey != nil {
		pubkey = hex.EncodeToString(mintQuote.Pubkey.SerializeCompressed())
	}

	_, err := sq.db.Exec(
		`INSERT INTO mint_quotes (id, unit, payment_request, payment_hash, amount, amount_paid, amount_issued, state, expiry, pubkey)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		mintQuote.Id,
		mintQuote.Unit,
		mintQuote.PaymentRequest,
		mintQuote.PaymentHash,
		mintQuote.Amount,
		mintQuote.AmountPaid,
		mintQuote.AmountIssued,
		mintQuote.State.String(),
		mintQuote.Expiry,
		nullableString(pubkey),
	)

	return err
}

func scanMintQuote(row scannable) (storage.MintQuote, error) {
	var mintQuote storage.MintQuote
	var state string
	var pubkey sql.NullString
	var amount sql.NullInt64

	err := row.Scan(
		&mintQuote.Id,
		&mintQuote.Unit,
		&mintQuote.PaymentRequest,
		&mintQuote.PaymentHash,
		&amount,
		&mintQuote.AmountPaid,
		&mintQuote.AmountIssued,
		&state,
		&mintQuote.Expiry,
		&pubkey,
	)
	if err != nil {
		return storage.MintQuote{}, err
	}
	mintQuote.State = nut04.StringToState(state)
	if amount.Valid {
		amt := uint64(amount.Int64)
		mintQuote.Amount = &amt
	}

	if pubkey.Valid && len(pubkey.String) > 0 {
		// should not error: validated before being saved alongside the pubkey
		hexPubkey, err := hex.DecodeString(pubkey.String)
		if err != nil {
			return storage.MintQuote{}, fmt.Errorf("invalid public key in db: %v", err)
		}

		publicKey, err := secp256k1.ParsePubKey(hexPubkey)
		if err != nil {
			return storage.MintQuote{}, fmt.Errorf("invalid public key in db: %v", err)
		}
		mintQuote.Pubkey = publicKey
	}

	return mintQuote, nil
}

func (sq *SQLiteDB) GetMintQuote(quoteId string) (storage.MintQuote, error) {
	row := sq.db.QueryRow(`SELECT id, unit, payment_request, payment_hash, amount, amount_paid, amount_issued, state, expiry, pubkey
		FROM mint_quotes WHERE id = ?`, quoteId)
	return scanMintQuote(row)
}

func (sq *SQLiteDB) GetMintQuoteByPaymentHash(paymentHash string) (storage.MintQuote, error) {
	row := sq.db.QueryRow(`SELECT id, unit, payment_request, payment_hash, amount, amount_paid, amount_issued, state, expiry, pubkey
		FROM mint_quotes WHERE payment_hash = ?`, paymentHash)
	return scanMintQuote(row)
}

func (sq *SQLiteDB) UpdateMintQuote(quoteId string, amountPaid, amountIssued uint64, state nut04.State) error {
	result, err := sq.db.Exec(
		"UPDATE mint_quotes SET amount_paid = ?, amount_issued = ?, state = ? WHERE id = ?",
		amountPaid, amountIssued, state.String(), quoteId,
	)
	if err != nil {
		return err
	}

	count, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if count != 1 {
		return errors.New("mint quote was not updated")
	}
	return nil
}

func (sq *SQLiteDB) SaveMeltQuote(meltQuote storage.MeltQuote) error {
	_, err := sq.db.Exec(`
		INSERT INTO melt_quotes
		(id, unit, request, payment_hash, amount, fee_reserve, state, expiry, preimage)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		meltQuote.Id,
		meltQuote.Unit,
		meltQuote.InvoiceRequest,
		meltQuote.PaymentHash,
		meltQuote.Amount,
		meltQuote.FeeReserve,
		meltQuote.State.String(),
		meltQuote.Expiry,
		meltQuote.Preimage,
	)

	return err
}

func scanMeltQuote(row scannable) (storage.MeltQuote, error) {
	var meltQuote storage.MeltQuote
	var state string
	var preimage sql.NullString
	var change sql.NullString

	err := row.Scan(
		&meltQuote.Id,
		&meltQuote.Unit,
		&meltQuote.InvoiceRequest,
		&meltQuote.PaymentHash,
		&meltQuote.Amount,
		&meltQuote.FeeReserve,
		&state,
		&meltQuote.Expiry,
		&preimage,
		&change,
	)
	if err != nil {
		return storage.MeltQuote{}, err
	}
	meltQuote.State = nut05.StringToState(state)
	if preimage.Valid {
		meltQuote.Preimage = preimage.String
	}
	if change.Valid && change.String != "" {
		if err := json.Unmarshal([]byte(change.String), &meltQuote.Change); err != nil {
			return storage.MeltQuote{}, fmt.Errorf("invalid change signatures in db: %v", err)
		}
	}

	return meltQuote, nil
}

func (sq *SQLiteDB) GetMeltQuote(quoteId string) (storage.MeltQuote, error) {
	row := sq.db.QueryRow(`SELECT id, unit, request, payment_hash, amount, fee_reserve, state, expiry, preimage, change
		FROM melt_quotes WHERE id = ?`, quoteId)
	return scanMeltQuote(row)
}

func (sq *SQLiteDB) GetMeltQuoteByPaymentRequest(invoice string) (*storage.MeltQuote, error) {
	row := sq.db.QueryRow(`SELECT id, unit, request, payment_hash, amount, fee_reserve, state, expiry, preimage, change
		FROM melt_quotes WHERE request = ?`, invoice)
	meltQuote, err := scanMeltQuote(row)
	if err != nil {
		return nil, err
	}
	return &meltQuote, nil
}

func (sq *SQLiteDB) UpdateMeltQuote(quoteId, preimage string, change cashu.BlindedSignatures, state nut05.State) error {
	var changeJSON string
	if len(change) > 0 {
		b, err := json.Marshal(change)
		if err != nil {
			return err
		}
		changeJSON = string(b)
	}

	result, err := sq.db.Exec(
		"UPDATE melt_quotes SET state = ?, preimage = ?, change = ? WHERE id = ?",
		state.String(), nullableString(preimage), nullableString(changeJSON), quoteId,
	)
	if err != nil {
		return err
	}

	count, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if count != 1 {
		return errors.New("melt quote was not updated")
	}
	return nil
}

func (sq *SQLiteDB) GetPendingMeltQuotes() ([]storage.MeltQuote, error) {
	quotes := []storage.MeltQuote{}
	rows, err := sq.db.Query(`SELECT id, unit, request, payment_hash, amount, fee_reserve, state, expiry, preimage, change
		FROM melt_quotes WHERE state = ?`, nut05.Pending.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		quote, err := scanMeltQuote(rows)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, quote)
	}

	return quotes, nil
}

func (sq *SQLiteDB) SaveBlindSignatures(B_s []string, blindSignatures cashu.BlindedSignatures) error {
	tx, err := sq.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare("INSERT INTO blind_signatures (b_, c_, keyset_id, amount, e, s) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, sig := range blindSignatures {
		var e, s string
		if sig.DLEQ != nil {
			e, s = sig.DLEQ.E, sig.DLEQ.S
		}
		if _, err := stmt.Exec(B_s[i], sig.C_, sig.Id, sig.Amount, nullableString(e), nullableString(s)); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func scanBlindSignature(row scannable) (cashu.BlindedSignature, error) {
	var signature cashu.BlindedSignature
	var e, s sql.NullString

	err := row.Scan(&signature.Amount, &signature.C_, &signature.Id, &e, &s)
	if err != nil {
		return cashu.BlindedSignature{}, err
	}

	if e.Valid && s.Valid {
		signature.DLEQ = &cashu.DLEQProof{E: e.String, S: s.String}
	}

	return signature, nil
}

func (sq *SQLiteDB) GetBlindSignature(B_ string) (cashu.BlindedSignature, error) {
	row := sq.db.QueryRow("SELECT amount, c_, keyset_id, e, s FROM blind_signatures WHERE b_ = ?", B_)
	return scanBlindSignature(row)
}

func (sq *SQLiteDB) GetBlindSignatures(B_s []string) (cashu.BlindedSignatures, error) {
	signatures := cashu.BlindedSignatures{}
	if len(B_s) == 0 {
		return signatures, nil
	}
	query := `SELECT amount, c_, keyset_id, e, s FROM blind_signatures WHERE b_ IN ` + inClause(len(B_s))

	rows, err := sq.db.Query(query, toArgs(B_s)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		signature, err := scanBlindSignature(rows)
		if err != nil {
			return nil, err
		}
		signatures = append(signatures, signature)
	}

	return signatures, nil
}

func (sq *SQLiteDB) GetIssuedEcash() (map[string]uint64, error) {
	issued := make(map[string]uint64)

	rows, err := sq.db.Query("SELECT keyset_id, amount FROM total_issued")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var keysetId string
		var amount uint64
		if err := rows.Scan(&keysetId, &amount); err != nil {
			return nil, err
		}
		issued[keysetId] = amount
	}

	return issued, nil
}

func (sq *SQLiteDB) GetRedeemedEcash() (map[string]uint64, error) {
	redeemed := make(map[string]uint64)

	rows, err := sq.db.Query("SELECT keyset_id, amount FROM total_redeemed")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var keysetId string
		var amount uint64
		if err := rows.Scan(&keysetId, &amount); err != nil {
			return nil, err
		}
		redeemed[keysetId] = amount
	}

	return redeemed, nil
}
