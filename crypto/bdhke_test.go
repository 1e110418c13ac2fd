package crypto

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

func TestHashToCurve(t *testing.T) {
	tests := []struct {
		message  string
		expected string
	}{
		{message: "0000000000000000000000000000000000000000000000000000000000000000",
			expected: "024cce997d3b518f739663b757deaec95bcd9473c30a14ac2fd04023a739d1a725"},
		{message: "0000000000000000000000000000000000000000000000000000000000000001",
			expected: "022e7158e11c9506f1aa4248bf531298daa7febd6194f003edcd9b93ade6253acf"},
		{message: "0000000000000000000000000000000000000000000000000000000000000002",
			expected: "026cdbe15362df59cd1dd3c9c11de8aedac2106eca69236ecd9fbe117af897be4f"},
	}

	for _, test := range tests {
		msgBytes, err := hex.DecodeString(test.message)
		if err != nil {
			t.Errorf("error decoding msg: %v", err)
		}

		pk, err := HashToCurve(msgBytes)
		if err != nil {
			t.Fatalf("unexpected error from HashToCurve: %v", err)
		}
		hexStr := hex.EncodeToString(pk.SerializeCompressed())
		if hexStr != test.expected {
			t.Errorf("expected '%v' but got '%v' instead\n", test.expected, hexStr)
		}
	}
}

// TestBlindMessage checks the defining relation B_ = Y + r*G directly,
// rather than against a hardcoded B_ value, since Y depends on
// HashToCurve's domain separation.
func TestBlindMessage(t *testing.T) {
	tests := []struct {
		secret         string
		blindingFactor string
	}{
		{secret: "test_message",
			blindingFactor: "0000000000000000000000000000000000000000000000000000000000000001",
		},
		{secret: "hello",
			blindingFactor: "6d7e0abffc83267de28ed8ecc8760f17697e51252e13333ba69b4ddad1f95d05",
		},
	}

	for _, test := range tests {
		rbytes, err := hex.DecodeString(test.blindingFactor)
		if err != nil {
			t.Errorf("error decoding blinding factor: %v", err)
		}
		r := secp256k1.PrivKeyFromBytes(rbytes)

		B_, _, err := BlindMessage(test.secret, r)
		if err != nil {
			t.Fatalf("unexpected error from BlindMessage: %v", err)
		}

		Y, err := HashToCurve([]byte(test.secret))
		if err != nil {
			t.Fatalf("unexpected error from HashToCurve: %v", err)
		}

		var yPoint, rPoint, sum secp256k1.JacobianPoint
		Y.AsJacobian(&yPoint)
		r.PubKey().AsJacobian(&rPoint)
		secp256k1.AddNonConst(&yPoint, &rPoint, &sum)
		sum.ToAffine()
		expected := secp256k1.NewPublicKey(&sum.X, &sum.Y)

		if hex.EncodeToString(B_.SerializeCompressed()) != hex.EncodeToString(expected.SerializeCompressed()) {
			t.Errorf("B_ does not equal Y + r*G for secret '%v'", test.secret)
		}
	}
}

// TestSignBlindedMessage checks the defining relation C_ = k*B_ directly.
func TestSignBlindedMessage(t *testing.T) {
	tests := []struct {
		secret         string
		blindingFactor string
		mintPrivKey    string
	}{
		{secret: "test_message",
			blindingFactor: "0000000000000000000000000000000000000000000000000000000000000001",
			mintPrivKey:    "0000000000000000000000000000000000000000000000000000000000000001",
		},
		{secret: "test_message",
			blindingFactor: "0000000000000000000000000000000000000000000000000000000000000001",
			mintPrivKey:    "7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f",
		},
	}

	for _, test := range tests {
		rbytes, err := hex.DecodeString(test.blindingFactor)
		if err != nil {
			t.Errorf("error decoding blinding factor: %v", err)
		}
		r := secp256k1.PrivKeyFromBytes(rbytes)

		B_, _, err := BlindMessage(test.secret, r)
		if err != nil {
			t.Fatalf("unexpected error from BlindMessage: %v", err)
		}

		mintKeyBytes, err := hex.DecodeString(test.mintPrivKey)
		if err != nil {
			t.Errorf("error decoding mint private key: %v", err)
		}
		k, _ := btcec.PrivKeyFromBytes(mintKeyBytes)

		blindedSignature := SignBlindedMessage(B_, k)

		var bPoint, result secp256k1.JacobianPoint
		B_.AsJacobian(&bPoint)
		secp256k1.ScalarMultNonConst(&k.Key, &bPoint, &result)
		result.ToAffine()
		expected := secp256k1.NewPublicKey(&result.X, &result.Y)

		if hex.EncodeToString(blindedSignature.SerializeCompressed()) != hex.EncodeToString(expected.SerializeCompressed()) {
			t.Errorf("C_ does not equal k*B_ for secret '%v'", test.secret)
		}
	}
}

func TestUnblindSignature(t *testing.T) {
	dst, _ := hex.DecodeString("02a9acc1e48c25eeeb9289b5031cc57da9fe72f3fe2861d264bdc074209b107ba2")
	C_, err := secp256k1.ParsePubKey(dst)
	if err != nil {
		t.Error(err)
	}

	kdst, _ := hex.DecodeString("020000000000000000000000000000000000000000000000000000000000000001")
	K, err := secp256k1.ParsePubKey(kdst)
	if err != nil {
		t.Error(err)
	}

	rhex, _ := hex.DecodeString("0000000000000000000000000000000000000000000000000000000000000001")
	r, _ := btcec.PrivKeyFromBytes(rhex)

	C := UnblindSignature(C_, r, K)
	CHex := hex.EncodeToString(C.SerializeCompressed())
	expected := "03c724d7e6a5443b39ac8acf11f40420adc4f99a02e7cc1b57703d9391f6d129cd"
	if CHex != expected {
		t.Errorf("expected '%v' but got '%v' instead\n", expected, CHex)
	}
}

func TestVerify(t *testing.T) {
	secret := "test_message"
	rhex, _ := hex.DecodeString("0000000000000000000000000000000000000000000000000000000000000002")
	r := secp256k1.PrivKeyFromBytes(rhex)

	B_, r, err := BlindMessage(secret, r)
	if err != nil {
		t.Fatalf("unexpected error from BlindMessage: %v", err)
	}

	khex, _ := hex.DecodeString("0000000000000000000000000000000000000000000000000000000000000001")
	k, _ := btcec.PrivKeyFromBytes(khex)
	K := k.PubKey()

	C_ := SignBlindedMessage(B_, k)
	C := UnblindSignature(C_, r, K)

	if !Verify(secret, k, C) {
		t.Error("failed verification")
	}
}

func TestDLEQ(t *testing.T) {
	khex, _ := hex.DecodeString("0000000000000000000000000000000000000000000000000000000000000001")
	k, _ := btcec.PrivKeyFromBytes(khex)
	A := k.PubKey()

	B_, _, err := BlindMessage("test_message", nil)
	if err != nil {
		t.Fatalf("unexpected error from BlindMessage: %v", err)
	}
	C_ := SignBlindedMessage(B_, k)

	e, s := GenerateDLEQ(k, B_, C_)
	if !VerifyDLEQ(e, s, A, B_, C_) {
		t.Error("failed to verify valid DLEQ proof")
	}

	otherKeyBytes, _ := hex.DecodeString("7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f")
	otherKey, _ := btcec.PrivKeyFromBytes(otherKeyBytes)
	if VerifyDLEQ(e, s, otherKey.PubKey(), B_, C_) {
		t.Error("verified a DLEQ proof against the wrong public key")
	}
}
