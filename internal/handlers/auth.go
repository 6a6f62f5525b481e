package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/services"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// maxAuthBodyBytes caps /auth/* request bodies
const maxAuthBodyBytes = 16 << 10

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, in services.LoginInput) (*models.AuthState, error)
	VerifyTOTP(ctx context.Context, in services.StepInput) (*models.AuthState, error)
	VerifyHardwareKey(ctx context.Context, in services.StepInput) (*models.AuthState, error)
	Logout(ctx context.Context, principal *models.AdminPrincipal, ip, userAgent string) error
	Session(ctx context.Context, principal *models.AdminPrincipal) (*services.SessionView, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service:  service,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

// Request DTOs

// LoginRequest represents the request body for login.
// Device carries raw attributes; when present it wins over Fingerprint.
type LoginRequest struct {
	Username    string                 `json:"username" validate:"required,max=64"`
	Password    string                 `json:"password" validate:"required,max=128"`
	Fingerprint string                 `json:"fingerprint" validate:"omitempty,max=128"`
	Device      *auth.DeviceAttributes `json:"device,omitempty"`
}

// TOTPVerifyRequest answers the TOTP challenge
type TOTPVerifyRequest struct {
	SessionID   string                 `json:"session_id" validate:"required,uuid"`
	ChallengeID string                 `json:"challenge_id" validate:"required,uuid"`
	Code        string                 `json:"code" validate:"required,len=6,number"`
	Fingerprint string                 `json:"fingerprint" validate:"omitempty,max=128"`
	Device      *auth.DeviceAttributes `json:"device,omitempty"`
}

// HardwareKeyVerifyRequest answers the hardware-key challenge with a base64 signature
type HardwareKeyVerifyRequest struct {
	SessionID   string                 `json:"session_id" validate:"required,uuid"`
	ChallengeID string                 `json:"challenge_id" validate:"required,uuid"`
	Signature   string                 `json:"signature" validate:"required,max=1024"`
	Fingerprint string                 `json:"fingerprint" validate:"omitempty,max=128"`
	Device      *auth.DeviceAttributes `json:"device,omitempty"`
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	state, err := h.service.Login(r.Context(), services.LoginInput{
		Username:    req.Username,
		Password:    req.Password,
		Fingerprint: h.fingerprint(r, req.Fingerprint, req.Device),
		IPAddress:   pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent:   r.UserAgent(),
	})
	if err != nil {
		h.writeAuthError(w, r, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, state)
}

// VerifyTOTP handles POST /auth/totp/verify
func (h *AuthHandler) VerifyTOTP(w http.ResponseWriter, r *http.Request) {
	var req TOTPVerifyRequest
	if !h.decode(w, r, &req) {
		return
	}

	state, err := h.service.VerifyTOTP(r.Context(), h.stepInput(r, req.SessionID, req.ChallengeID, req.Code,
		h.fingerprint(r, req.Fingerprint, req.Device)))
	if err != nil {
		h.writeAuthError(w, r, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, state)
}

// VerifyHardwareKey handles POST /auth/hardware-key/verify
func (h *AuthHandler) VerifyHardwareKey(w http.ResponseWriter, r *http.Request) {
	var req HardwareKeyVerifyRequest
	if !h.decode(w, r, &req) {
		return
	}

	state, err := h.service.VerifyHardwareKey(r.Context(), h.stepInput(r, req.SessionID, req.ChallengeID, req.Signature,
		h.fingerprint(r, req.Fingerprint, req.Device)))
	if err != nil {
		h.writeAuthError(w, r, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, state)
}

// Logout handles POST /auth/logout. Requires RequireAdminSession.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipalFromContext(r)
	if principal == nil {
		pkghttp.WriteRetry(w, "authentication required")
		return
	}

	err := h.service.Logout(r.Context(), principal, pkghttp.ExtractClientIP(r, h.ipConfig), r.UserAgent())
	if err != nil {
		h.writeAuthError(w, r, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// Session handles GET /auth/session. Requires RequireAdminSession.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipalFromContext(r)
	if principal == nil {
		pkghttp.WriteRetry(w, "authentication required")
		return
	}

	view, err := h.service.Session(r.Context(), principal)
	if err != nil {
		h.writeAuthError(w, r, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, view)
}

// decode reads and validates a JSON body, writing a 400 on failure
func (h *AuthHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxAuthBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return false
	}
	if err := ValidateRequest(dst); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

// fingerprint prefers the body over the X-Device-Fingerprint header
func (h *AuthHandler) fingerprint(r *http.Request, fromBody string, device *auth.DeviceAttributes) string {
	if fromBody == "" {
		fromBody = r.Header.Get(auth.FingerprintHeader)
	}
	return auth.ResolveFingerprint(fromBody, device)
}

func (h *AuthHandler) stepInput(r *http.Request, sessionID, challengeID, response, fingerprint string) services.StepInput {
	return services.StepInput{
		SessionID:   sessionID,
		ChallengeID: challengeID,
		Response:    response,
		Fingerprint: fingerprint,
		IPAddress:   pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent:   r.UserAgent(),
	}
}

// writeAuthError maps service errors onto responses. Auth rejections all look alike
// so a caller cannot learn which check failed.
func (h *AuthHandler) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var lockout *models.LockoutError
	var retry *services.RetryError

	switch {
	case errors.As(err, &lockout):
		pkghttp.WriteLockedOut(w, lockout.Remaining)
	case errors.As(err, &retry) && retry.State != nil:
		pkghttp.WriteRetryWithState(w, "authentication failed", retry.State)
	case errors.Is(err, models.ErrStoreUnavailable):
		h.logger.Error("auth store unavailable", slog.String("path", r.URL.Path), slog.Any("error", err))
		pkghttp.WriteServiceUnavailable(w, "authentication temporarily unavailable")
	case errors.Is(err, models.ErrInvalidCredentials),
		errors.Is(err, models.ErrInvalidCode),
		errors.Is(err, models.ErrInvalidChallengeResponse),
		errors.Is(err, models.ErrSessionExpired),
		errors.Is(err, models.ErrSessionInvalid),
		errors.Is(err, models.ErrChallengeExpired),
		errors.Is(err, models.ErrChallengeConsumed),
		errors.Is(err, models.ErrAuthStepMismatch),
		errors.Is(err, models.ErrVerificationUnavailable),
		errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteRetry(w, "authentication failed")
	default:
		h.logger.Error("auth request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
