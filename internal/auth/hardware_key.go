package auth

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/BradenHooton/bastion/internal/models"
)

// ErrUnsupportedKey is returned when a registered public key is neither ECDSA P-256 nor Ed25519.
var ErrUnsupportedKey = errors.New("unsupported hardware key type")

// HardwareKeyVerifier checks signatures produced by an admin's registered security key.
type HardwareKeyVerifier struct{}

// NewHardwareKeyVerifier creates a verifier
func NewHardwareKeyVerifier() *HardwareKeyVerifier {
	return &HardwareKeyVerifier{}
}

// ParsePublicKey decodes a PEM "PUBLIC KEY" block and checks the key type.
func ParsePublicKey(pemData string) (crypto.PublicKey, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(pemData)))
	if block == nil {
		return nil, errors.New("no PEM block found")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	switch key := pub.(type) {
	case *ecdsa.PublicKey:
		if key.Curve != elliptic.P256() {
			return nil, fmt.Errorf("%w: ECDSA curve %s", ErrUnsupportedKey, key.Curve.Params().Name)
		}
		return key, nil
	case ed25519.PublicKey:
		return key, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, pub)
	}
}

// Verify reports whether signature (base64) signs the hex-encoded challenge under publicKeyPEM.
// Malformed input of any kind yields false.
func (v *HardwareKeyVerifier) Verify(publicKeyPEM, challengeHex, signature string) bool {
	pub, err := ParsePublicKey(publicKeyPEM)
	if err != nil {
		return false
	}

	message, err := hex.DecodeString(challengeHex)
	if err != nil || len(message) == 0 {
		return false
	}

	sig, err := decodeSignature(signature)
	if err != nil {
		return false
	}

	switch key := pub.(type) {
	case *ecdsa.PublicKey:
		digest := sha256.Sum256(message)
		return ecdsa.VerifyASN1(key, digest[:], sig)
	case ed25519.PublicKey:
		return ed25519.Verify(key, message, sig)
	}
	return false
}

// decodeSignature accepts standard or URL-safe base64, padded or not.
func decodeSignature(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty signature")
	}
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding,
		base64.URLEncoding, base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, errors.New("signature is not base64")
}

// VerifyAdmin checks a response against the admin's registered key. A missing or
// unparseable registered key is ErrVerificationUnavailable; a bad response is just false.
func (v *HardwareKeyVerifier) VerifyAdmin(admin *models.Admin, challengeHex, signature string) (bool, error) {
	if !admin.HardwareKeyEnabled() {
		return false, fmt.Errorf("%w: no hardware key registered", models.ErrVerificationUnavailable)
	}
	if _, err := ParsePublicKey(admin.HardwareKeyPublicKey); err != nil {
		return false, fmt.Errorf("%w: %v", models.ErrVerificationUnavailable, err)
	}
	return v.Verify(admin.HardwareKeyPublicKey, challengeHex, signature), nil
}
