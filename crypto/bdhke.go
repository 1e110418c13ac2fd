// Package crypto implements the blind Diffie-Hellman key exchange (BDHKE)
// blind-signature scheme and DLEQ proofs used by the mint and wallet, plus
// BIP32 keyset derivation (keyset.go).
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// domainSeparator is prepended to the secret message before hashing, per
// NUT-00, so HashToCurve can never be fed a point chosen by an adversary
// for some other hash-to-curve use of secp256k1.
const domainSeparator = "Secp256k1_HashToCurve_Cashu_"

// maxHashToCurveIterations bounds the counter loop. In practice a valid
// curve point is found within a handful of iterations; this is a backstop
// against a pathological input looping forever.
const maxHashToCurveIterations = 1 << 16

var ErrHashToCurveExhausted = errors.New("crypto: no valid curve point found for message")

// HashToCurve maps an arbitrary message (a proof's secret) to a curve
// point Y deterministically, without revealing its discrete log. It
// hashes the domain-separated message, then appends a little-endian
// uint32 counter and rehashes until the result is a valid, even-Y,
// x-only curve point.
func HashToCurve(message []byte) (*secp256k1.PublicKey, error) {
	domainMsg := append([]byte(domainSeparator), message...)
	msgHash := sha256.Sum256(domainMsg)

	var counter [4]byte
	for i := uint32(0); i < maxHashToCurveIterations; i++ {
		binary.LittleEndian.PutUint32(counter[:], i)

		h := sha256.New()
		h.Write(msgHash[:])
		h.Write(counter[:])
		candidate := h.Sum(nil)

		compressed := append([]byte{0x02}, candidate...)
		if point, err := secp256k1.ParsePubKey(compressed); err == nil {
			return point, nil
		}
	}

	return nil, ErrHashToCurveExhausted
}

// BlindMessage computes B_ = Y + rG for secret, where Y = HashToCurve(secret).
// If r is nil a random blinding factor is generated.
func BlindMessage(secret string, r *secp256k1.PrivateKey) (*secp256k1.PublicKey, *secp256k1.PrivateKey, error) {
	Y, err := HashToCurve([]byte(secret))
	if err != nil {
		return nil, nil, err
	}

	if r == nil {
		rBytes := make([]byte, 32)
		if _, err := rand.Read(rBytes); err != nil {
			return nil, nil, err
		}
		r = secp256k1.PrivKeyFromBytes(rBytes)
	}

	var yPoint, rPoint, blinded secp256k1.JacobianPoint
	Y.AsJacobian(&yPoint)
	r.PubKey().AsJacobian(&rPoint)

	secp256k1.AddNonConst(&yPoint, &rPoint, &blinded)
	blinded.ToAffine()
	B_ := secp256k1.NewPublicKey(&blinded.X, &blinded.Y)

	return B_, r, nil
}

// SignBlindedMessage computes C_ = kB_, the mint's blind signature over
// the client's blinded message, using the private key k of the keyset
// denomination matching the message's amount.
func SignBlindedMessage(B_ *secp256k1.PublicKey, k *secp256k1.PrivateKey) *secp256k1.PublicKey {
	var bPoint, result secp256k1.JacobianPoint
	B_.AsJacobian(&bPoint)

	secp256k1.ScalarMultNonConst(&k.Key, &bPoint, &result)
	result.ToAffine()
	return secp256k1.NewPublicKey(&result.X, &result.Y)
}

// UnblindSignature computes C = C_ - rK, recovering the unblinded
// signature over the original secret from the mint's blind signature C_.
func UnblindSignature(C_ *secp256k1.PublicKey, r *secp256k1.PrivateKey, K *secp256k1.PublicKey) *secp256k1.PublicKey {
	var kPoint, rKPoint, cPoint, c_Point secp256k1.JacobianPoint
	K.AsJacobian(&kPoint)

	var rNeg secp256k1.ModNScalar
	rNeg.NegateVal(&r.Key)
	secp256k1.ScalarMultNonConst(&rNeg, &kPoint, &rKPoint)

	C_.AsJacobian(&c_Point)
	secp256k1.AddNonConst(&c_Point, &rKPoint, &cPoint)
	cPoint.ToAffine()

	return secp256k1.NewPublicKey(&cPoint.X, &cPoint.Y)
}

// Verify reports whether C == k*HashToCurve(secret), i.e. whether C is a
// valid unblinded signature over secret under private key k.
func Verify(secret string, k *secp256k1.PrivateKey, C *secp256k1.PublicKey) bool {
	Y, err := HashToCurve([]byte(secret))
	if err != nil {
		return false
	}

	var yPoint, result secp256k1.JacobianPoint
	Y.AsJacobian(&yPoint)
	secp256k1.ScalarMultNonConst(&k.Key, &yPoint, &result)
	result.ToAffine()
	pk := secp256k1.NewPublicKey(&result.X, &result.Y)

	return C.IsEqual(pk)
}

// GenerateDLEQ produces a non-interactive Schnorr-style DLEQ proof that
// the same scalar k was used to compute both C_ = kB_ (public: A = kG)
// and the keyset's public key A = kG, without revealing k. Per NUT-12:
// pick random nonce p; R1 = pG; R2 = pB_; e = H(R1||R2||A||C_); s = p + ek.
func GenerateDLEQ(k *secp256k1.PrivateKey, B_, C_ *secp256k1.PublicKey) (e, s *secp256k1.PrivateKey) {
	pBytes := make([]byte, 32)
	rand.Read(pBytes)
	p := secp256k1.PrivKeyFromBytes(pBytes)

	R1 := p.PubKey()

	var bPoint, r2Point secp256k1.JacobianPoint
	B_.AsJacobian(&bPoint)
	secp256k1.ScalarMultNonConst(&p.Key, &bPoint, &r2Point)
	r2Point.ToAffine()
	R2 := secp256k1.NewPublicKey(&r2Point.X, &r2Point.Y)

	A := k.PubKey()

	eHash := dleqChallenge(R1, R2, A, C_)
	eScalar := secp256k1.PrivKeyFromBytes(eHash[:])

	var sScalar secp256k1.ModNScalar
	sScalar.Mul2(&eScalar.Key, &k.Key).Add(&p.Key)
	sBytes := sScalar.Bytes()

	return eScalar, secp256k1.PrivKeyFromBytes(sBytes[:])
}

// VerifyDLEQ checks a DLEQ proof (e, s) asserting that the scalar behind
// A (the keyset public key for this amount) is the same scalar that
// produced C_ from B_. It reconstructs R1' = sG - eA and R2' = sB_ - eC_,
// and accepts iff e == H(R1'||R2'||A||C_).
func VerifyDLEQ(e, s *secp256k1.PrivateKey, A, B_, C_ *secp256k1.PublicKey) bool {
	var aPoint, c_Point, bPoint secp256k1.JacobianPoint
	A.AsJacobian(&aPoint)
	C_.AsJacobian(&c_Point)
	B_.AsJacobian(&bPoint)

	var eNeg secp256k1.ModNScalar
	eNeg.NegateVal(&e.Key)

	// R1' = sG - eA
	var sG, negEA, r1 secp256k1.JacobianPoint
	s.PubKey().AsJacobian(&sG)
	secp256k1.ScalarMultNonConst(&eNeg, &aPoint, &negEA)
	secp256k1.AddNonConst(&sG, &negEA, &r1)
	r1.ToAffine()
	R1 := secp256k1.NewPublicKey(&r1.X, &r1.Y)

	// R2' = sB_ - eC_
	var sB, negEC, r2 secp256k1.JacobianPoint
	secp256k1.ScalarMultNonConst(&s.Key, &bPoint, &sB)
	secp256k1.ScalarMultNonConst(&eNeg, &c_Point, &negEC)
	secp256k1.AddNonConst(&sB, &negEC, &r2)
	r2.ToAffine()
	R2 := secp256k1.NewPublicKey(&r2.X, &r2.Y)

	expected := dleqChallenge(R1, R2, A, C_)
	return [32]byte(e.Serialize()) == expected
}

func dleqChallenge(R1, R2, A, C_ *secp256k1.PublicKey) [32]byte {
	h := sha256.New()
	h.Write(R1.SerializeUncompressed())
	h.Write(R2.SerializeUncompressed())
	h.Write(A.SerializeUncompressed())
	h.Write(C_.SerializeUncompressed())
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
