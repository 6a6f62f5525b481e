package models

import "github.com/golang-jwt/jwt/v5"

// TokenTypeAdmin marks bearer tokens minted after the hardware-key step.
const TokenTypeAdmin = "admin"

// TokenClaims are the claims carried by the admin bearer token.
type TokenClaims struct {
	Type      string `json:"type"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}
