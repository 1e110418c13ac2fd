package nut12

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/chaumcash/ecash/cashu"
	"github.com/chaumcash/ecash/crypto"
)

func TestVerifyBlindSignatureDLEQ(t *testing.T) {
	khex, _ := hex.DecodeString("0000000000000000000000000000000000000000000000000000000000000001")
	k, _ := btcec.PrivKeyFromBytes(khex)
	A := k.PubKey()

	B_, _, err := crypto.BlindMessage("test_message", nil)
	if err != nil {
		t.Fatalf("unexpected error from BlindMessage: %v", err)
	}
	C_ := crypto.SignBlindedMessage(B_, k)

	e, s := crypto.GenerateDLEQ(k, B_, C_)
	dleq := cashu.DLEQProof{
		E: hex.EncodeToString(e.Serialize()),
		S: hex.EncodeToString(s.Serialize()),
	}

	B_str := hex.EncodeToString(B_.SerializeCompressed())
	C_str := hex.EncodeToString(C_.SerializeCompressed())

	if !VerifyBlindSignatureDLEQ(dleq, A, B_str, C_str) {
		t.Errorf("DLEQ verification on blind signature failed")
	}

	otherKeyBytes, _ := hex.DecodeString("7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f")
	otherKey, _ := btcec.PrivKeyFromBytes(otherKeyBytes)
	if VerifyBlindSignatureDLEQ(dleq, otherKey.PubKey(), B_str, C_str) {
		t.Errorf("DLEQ verified against the wrong mint public key")
	}
}

func TestVerifyProofDLEQ(t *testing.T) {
	khex, _ := hex.DecodeString("0000000000000000000000000000000000000000000000000000000000000001")
	k, _ := btcec.PrivKeyFromBytes(khex)
	A := k.PubKey()

	secret := "daf4dd00a2b68a0858a80450f52c8a7d2ccf87d375e43e216e0c571f089f63e"

	rhex, _ := hex.DecodeString("0000000000000000000000000000000000000000000000000000000000000002")
	r := secp256k1.PrivKeyFromBytes(rhex)

	B_, r, err := crypto.BlindMessage(secret, r)
	if err != nil {
		t.Fatalf("unexpected error from BlindMessage: %v", err)
	}
	C_ := crypto.SignBlindedMessage(B_, k)
	C := crypto.UnblindSignature(C_, r, A)

	e, s := crypto.GenerateDLEQ(k, B_, C_)

	proof := cashu.Proof{
		Amount: 1,
		Id:     "00882760bfa2eb41",
		Secret: secret,
		C:      hex.EncodeToString(C.SerializeCompressed()),
		DLEQ: &cashu.DLEQProof{
			E: hex.EncodeToString(e.Serialize()),
			S: hex.EncodeToString(s.Serialize()),
			R: hex.EncodeToString(r.Serialize()),
		},
	}

	if !VerifyProofDLEQ(proof, A) {
		t.Errorf("DLEQ verification on proof failed")
	}

	otherKeyBytes, _ := hex.DecodeString("7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f")
	otherKey, _ := btcec.PrivKeyFromBytes(otherKeyBytes)
	if VerifyProofDLEQ(proof, otherKey.PubKey()) {
		t.Errorf("DLEQ verified on proof against the wrong mint public key")
	}
}
