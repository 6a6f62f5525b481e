package auth

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name          string
		password      string
		shouldFail    bool
		errorContains string
	}{
		{name: "valid strong password", password: "SecureP@ss1234"},
		{name: "valid with multiple special chars", password: "Secure#P@ssw0rd"},
		{name: "too short", password: "Sh0rt@Pass", shouldFail: true, errorContains: "at least 12"},
		{name: "missing uppercase", password: "securepass@1234", shouldFail: true, errorContains: "uppercase"},
		{name: "missing lowercase", password: "SECUREPASS@1234", shouldFail: true, errorContains: "lowercase"},
		{name: "missing digit", password: "SecurePass@xyzw", shouldFail: true, errorContains: "digit"},
		{name: "missing special character", password: "SecurePass1234", shouldFail: true, errorContains: "special"},
		{name: "common password rejected", password: "Password123!", shouldFail: true, errorContains: "too common"},
		{name: "too long", password: "Aa1@" + strings.Repeat("x", 80), shouldFail: true, errorContains: "at most 72"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)

			if !tt.shouldFail {
				if err != nil {
					t.Errorf("expected no error, got: %v", err)
				}
				return
			}

			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var pve *PasswordValidationError
			if !errors.As(err, &pve) {
				t.Fatalf("expected *PasswordValidationError, got %T", err)
			}
			if !strings.Contains(err.Error(), tt.errorContains) {
				t.Errorf("error message should contain %q, got: %v", tt.errorContains, err)
			}
		})
	}
}

func TestHashAndComparePassword(t *testing.T) {
	password := "SecureP@ss1234"

	hash, err := HashPasswordWithCost(password, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashPasswordWithCost failed: %v", err)
	}
	if hash == "" || hash == password {
		t.Fatalf("unexpected hash %q", hash)
	}

	if err := ComparePassword(hash, password); err != nil {
		t.Errorf("ComparePassword with correct password failed: %v", err)
	}
	if err := ComparePassword(hash, "WrongPassword123!"); err == nil {
		t.Error("ComparePassword with wrong password should fail")
	}
}

func TestHashPassword_Empty(t *testing.T) {
	if _, err := HashPassword(""); err == nil {
		t.Error("expected error for empty password")
	}
}

func TestDummyHash(t *testing.T) {
	h := DummyHash()
	if h == "" {
		t.Fatal("dummy hash should not be empty")
	}
	if h != DummyHash() {
		t.Error("dummy hash should be computed once")
	}
	if err := ComparePassword(h, "SecureP@ss1234"); err == nil {
		t.Error("dummy hash must not match an arbitrary password")
	}
}
