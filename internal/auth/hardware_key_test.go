package auth

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"testing"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publicKeyPEM(t *testing.T, pub any) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func randomChallenge(t *testing.T) (string, []byte) {
	t.Helper()
	raw := make([]byte, 32)
	_, err := rand.Read(raw)
	require.NoError(t, err)
	return hex.EncodeToString(raw), raw
}

func TestHardwareKeyVerifier_ECDSA(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	pemKey := publicKeyPEM(t, &priv.PublicKey)

	challenge, raw := randomChallenge(t)
	digest := sha256.Sum256(raw)
	sig, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
	require.NoError(t, err)

	v := NewHardwareKeyVerifier()
	assert.True(t, v.Verify(pemKey, challenge, base64.StdEncoding.EncodeToString(sig)))
	assert.True(t, v.Verify(pemKey, challenge, base64.RawURLEncoding.EncodeToString(sig)))

	other, _ := randomChallenge(t)
	assert.False(t, v.Verify(pemKey, other, base64.StdEncoding.EncodeToString(sig)))
}

func TestHardwareKeyVerifier_Ed25519(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	pemKey := publicKeyPEM(t, pub)

	challenge, raw := randomChallenge(t)
	sig := ed25519.Sign(priv, raw)

	v := NewHardwareKeyVerifier()
	assert.True(t, v.Verify(pemKey, challenge, base64.StdEncoding.EncodeToString(sig)))

	sig[0] ^= 0x01
	assert.False(t, v.Verify(pemKey, challenge, base64.StdEncoding.EncodeToString(sig)))
}

func TestHardwareKeyVerifier_WrongKey(t *testing.T) {
	_, signer, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	registered, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	challenge, raw := randomChallenge(t)
	sig := base64.StdEncoding.EncodeToString(ed25519.Sign(signer, raw))

	assert.False(t, NewHardwareKeyVerifier().Verify(publicKeyPEM(t, registered), challenge, sig))
}

func TestHardwareKeyVerifier_MalformedInput(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	pemKey := publicKeyPEM(t, pub)
	challenge, raw := randomChallenge(t)
	sig := base64.StdEncoding.EncodeToString(ed25519.Sign(priv, raw))

	v := NewHardwareKeyVerifier()
	assert.False(t, v.Verify("", challenge, sig))
	assert.False(t, v.Verify("-----BEGIN PUBLIC KEY-----\ngarbage\n-----END PUBLIC KEY-----", challenge, sig))
	assert.False(t, v.Verify(pemKey, "not-hex", sig))
	assert.False(t, v.Verify(pemKey, "", sig))
	assert.False(t, v.Verify(pemKey, challenge, ""))
	assert.False(t, v.Verify(pemKey, challenge, "%%%"))
}

func TestParsePublicKey_RejectsUnsupportedTypes(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	_, err = ParsePublicKey(publicKeyPEM(t, &rsaKey.PublicKey))
	assert.ErrorIs(t, err, ErrUnsupportedKey)

	p384, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	_, err = ParsePublicKey(publicKeyPEM(t, &p384.PublicKey))
	assert.ErrorIs(t, err, ErrUnsupportedKey)
}

func TestHardwareKeyVerifier_VerifyAdmin(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	challenge, raw := randomChallenge(t)
	sig := base64.StdEncoding.EncodeToString(ed25519.Sign(priv, raw))

	v := NewHardwareKeyVerifier()

	ok, err := v.VerifyAdmin(&models.Admin{HardwareKeyPublicKey: publicKeyPEM(t, pub)}, challenge, sig)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.VerifyAdmin(&models.Admin{HardwareKeyPublicKey: publicKeyPEM(t, pub)}, challenge, "AAAA")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = v.VerifyAdmin(&models.Admin{}, challenge, sig)
	assert.ErrorIs(t, err, models.ErrVerificationUnavailable)

	_, err = v.VerifyAdmin(&models.Admin{HardwareKeyPublicKey: "not a key"}, challenge, sig)
	assert.ErrorIs(t, err, models.ErrVerificationUnavailable)
}
