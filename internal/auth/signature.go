package auth

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/sha3"
)

var ErrBadSignature = errors.New("invalid signature")

type verifier func(publicKey string, message, sig []byte) error

var verifiers = map[string]verifier{
	"ed25519":    verifyEd25519,
	"secp256k1":  verifySecp256k1,
	"rsa-pss":    verifyRSA(true),
	"rsa-sha256": verifyRSA(false),
}

// SupportedAlgs returns the key algorithms accepted for challenge login.
func SupportedAlgs() []string {
	out := make([]string, 0, len(verifiers))
	for alg := range verifiers {
		out = append(out, alg)
	}
	sort.Strings(out)
	return out
}

func IsSupportedAlg(alg string) bool {
	_, ok := verifiers[strings.ToLower(alg)]
	return ok
}

// VerifySignature checks signature over message for the given public key.
// Keys and signatures are base64 or hex; secp256k1 uses hex and the
// Ethereum personal-message hash, RSA keys may be PEM.
func VerifySignature(alg, publicKey, message, signature string) error {
	v, ok := verifiers[strings.ToLower(alg)]
	if !ok {
		return fmt.Errorf("unsupported alg: %s", alg)
	}
	var sig []byte
	var err error
	if strings.EqualFold(alg, "secp256k1") {
		sig, err = decodeHex(signature)
	} else {
		sig, err = decodeBase64OrHex(signature)
	}
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	return v(publicKey, []byte(message), sig)
}

func verifyEd25519(publicKey string, message, sig []byte) error {
	pub, err := decodeBase64OrHex(publicKey)
	if err != nil {
		return fmt.Errorf("decode public key: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return errors.New("invalid ed25519 public key length")
	}
	if len(sig) != ed25519.SignatureSize {
		return errors.New("invalid ed25519 signature length")
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), message, sig) {
		return ErrBadSignature
	}
	return nil
}

func verifySecp256k1(publicKey string, message, sig []byte) error {
	raw, err := decodeHex(publicKey)
	if err != nil {
		return fmt.Errorf("decode public key: %w", err)
	}
	pub, err := secp256k1.ParsePubKey(raw)
	if err != nil {
		return err
	}
	if len(sig) < 64 {
		return errors.New("invalid secp256k1 signature length")
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	if !ecdsa.Verify(pub.ToECDSA(), personalMessageHash(message), r, s) {
		return ErrBadSignature
	}
	return nil
}

func verifyRSA(pss bool) verifier {
	return func(publicKey string, message, sig []byte) error {
		pub, err := parseRSAPublicKey(publicKey)
		if err != nil {
			return err
		}
		h := sha256.Sum256(message)
		if pss {
			err = rsa.VerifyPSS(pub, crypto.SHA256, h[:], sig, nil)
		} else {
			err = rsa.VerifyPKCS1v15(pub, crypto.SHA256, h[:], sig)
		}
		if err != nil {
			return ErrBadSignature
		}
		return nil
	}
}

func parseRSAPublicKey(s string) (*rsa.PublicKey, error) {
	s = strings.TrimSpace(s)
	var der []byte
	if strings.HasPrefix(s, "-----BEGIN") {
		block, _ := pem.Decode([]byte(s))
		if block == nil {
			return nil, errors.New("invalid pem public key")
		}
		der = block.Bytes
	} else {
		b, err := decodeBase64OrHex(s)
		if err != nil {
			return nil, fmt.Errorf("decode public key: %w", err)
		}
		der = b
	}
	if parsed, err := x509.ParsePKIXPublicKey(der); err == nil {
		if pk, ok := parsed.(*rsa.PublicKey); ok {
			return pk, nil
		}
		return nil, errors.New("unsupported rsa public key")
	}
	pk, err := x509.ParsePKCS1PublicKey(der)
	if err != nil {
		return nil, errors.New("unsupported rsa public key")
	}
	return pk, nil
}

func decodeBase64OrHex(input string) ([]byte, error) {
	input = strings.TrimSpace(input)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(input); err == nil {
			return b, nil
		}
	}
	return decodeHex(input)
}

func decodeHex(input string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(input), "0x"))
}

// personalMessageHash is keccak256("\x19Ethereum Signed Message:\n" + len + msg).
func personalMessageHash(msg []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	fmt.Fprintf(h, "\x19Ethereum Signed Message:\n%d", len(msg))
	h.Write(msg)
	return h.Sum(nil)
}
