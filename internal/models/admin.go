package models

import (
	"net"
	"time"
)

// Admin roles
const (
	RoleCreator    = "creator"
	RoleSuperAdmin = "super_admin"
)

// Admin is an operator account allowed through the triple-factor login.
type Admin struct {
	ID                  string
	Username            string
	PasswordHash        string
	Role                string
	TOTPSecretEncrypted []byte
	TOTPSecretNonce     []byte
	// HardwareKeyPublicKey is a PEM-encoded ECDSA P-256 or Ed25519 public key.
	HardwareKeyPublicKey string
	// AllowedIPs is empty when the admin may log in from anywhere.
	AllowedIPs  []string
	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TOTPEnabled reports whether a TOTP secret has been enrolled.
func (a *Admin) TOTPEnabled() bool {
	return len(a.TOTPSecretEncrypted) > 0 && len(a.TOTPSecretNonce) > 0
}

// HardwareKeyEnabled reports whether a hardware-key public key has been registered.
func (a *Admin) HardwareKeyEnabled() bool {
	return a.HardwareKeyPublicKey != ""
}

// IPAllowed checks ip against the allowlist. Entries may be single addresses or CIDR ranges.
func (a *Admin) IPAllowed(ip string) bool {
	if len(a.AllowedIPs) == 0 {
		return true
	}
	addr := net.ParseIP(ip)
	if addr == nil {
		return false
	}
	for _, entry := range a.AllowedIPs {
		if _, network, err := net.ParseCIDR(entry); err == nil {
			if network.Contains(addr) {
				return true
			}
			continue
		}
		if allowed := net.ParseIP(entry); allowed != nil && allowed.Equal(addr) {
			return true
		}
	}
	return false
}

// AdminPrincipal is the identity attached to a request after bearer authentication.
type AdminPrincipal struct {
	AdminID   string
	Username  string
	Role      string
	SessionID string
	ExpiresAt time.Time
}
