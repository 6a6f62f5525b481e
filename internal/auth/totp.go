package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	totpPeriod = 30
	totpDigits = otp.DigitsSix
)

// TOTPManager handles TOTP secret encryption and code validation
type TOTPManager struct {
	encryptionKey []byte // 32-byte AES-256 key
	issuer        string // Issuer name for TOTP QR codes
	skew          uint
	now           func() time.Time
}

// TOTPEnrollment is the material produced when an admin enrolls an authenticator app.
type TOTPEnrollment struct {
	EncryptedSecret []byte
	Nonce           []byte
	Secret          string // base32, shown once for manual entry
	URL             string // otpauth:// provisioning URL
	QRCodePNG       []byte
}

// DataURL renders the QR code as an inline PNG data URL.
func (e *TOTPEnrollment) DataURL() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(e.QRCodePNG)
}

// NewTOTPManager creates a new TOTP manager
// encryptionKey must be exactly 32 bytes for AES-256
func NewTOTPManager(encryptionKey []byte, issuer string, skew uint) (*TOTPManager, error) {
	if len(encryptionKey) != 32 {
		return nil, fmt.Errorf("encryption key must be exactly 32 bytes, got %d", len(encryptionKey))
	}

	return &TOTPManager{
		encryptionKey: encryptionKey,
		issuer:        issuer,
		skew:          skew,
		now:           time.Now,
	}, nil
}

// SetClock overrides the time source used for code validation.
func (tm *TOTPManager) SetClock(now func() time.Time) {
	tm.now = now
}

// GenerateSecretWithQR creates a secret for accountName, encrypts it and renders its QR code
func (tm *TOTPManager) GenerateSecretWithQR(accountName string) (*TOTPEnrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tm.issuer,
		AccountName: accountName,
		SecretSize:  32, // 256 bits
		Period:      totpPeriod,
		Digits:      totpDigits,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	encrypted, nonce, err := tm.EncryptSecret([]byte(key.Secret()))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt secret: %w", err)
	}

	qr, err := qrcode.New(key.URL(), qrcode.Highest)
	if err != nil {
		return nil, fmt.Errorf("failed to create QR code: %w", err)
	}

	png, err := qr.PNG(256)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}

	return &TOTPEnrollment{
		EncryptedSecret: encrypted,
		Nonce:           nonce,
		Secret:          key.Secret(),
		URL:             key.URL(),
		QRCodePNG:       png,
	}, nil
}

// EncryptSecret encrypts a TOTP secret using AES-256-GCM
// Returns: (encryptedBytes, nonce, error)
func (tm *TOTPManager) EncryptSecret(secretBytes []byte) ([]byte, []byte, error) {
	gcm, err := tm.gcm()
	if err != nil {
		return nil, nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nil, nonce, secretBytes, nil), nonce, nil
}

// DecryptSecret decrypts an encrypted TOTP secret
func (tm *TOTPManager) DecryptSecret(encryptedBytes, nonce []byte) ([]byte, error) {
	gcm, err := tm.gcm()
	if err != nil {
		return nil, err
	}

	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("failed to decrypt secret: nonce must be %d bytes, got %d", gcm.NonceSize(), len(nonce))
	}

	plaintext, err := gcm.Open(nil, nonce, encryptedBytes, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt secret: %w", err)
	}

	return plaintext, nil
}

func (tm *TOTPManager) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(tm.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// ValidateCode checks a 6-digit code against a base32 secret, allowing ±skew time steps.
// Any malformed input fails closed.
func (tm *TOTPManager) ValidateCode(secret, code string) bool {
	if len(code) != int(totpDigits) {
		return false
	}

	valid, err := totp.ValidateCustom(code, secret, tm.now().UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      tm.skew,
		Digits:    totpDigits,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false
	}
	return valid
}

// VerifyAdminCode decrypts the admin's enrolled secret and checks code against it.
// A missing or undecryptable secret is reported as ErrVerificationUnavailable, never as a wrong code.
func (tm *TOTPManager) VerifyAdminCode(admin *models.Admin, code string) (bool, error) {
	if !admin.TOTPEnabled() {
		return false, fmt.Errorf("%w: totp not enrolled", models.ErrVerificationUnavailable)
	}

	secret, err := tm.DecryptSecret(admin.TOTPSecretEncrypted, admin.TOTPSecretNonce)
	if err != nil {
		return false, fmt.Errorf("%w: %v", models.ErrVerificationUnavailable, err)
	}

	return tm.ValidateCode(string(secret), code), nil
}
