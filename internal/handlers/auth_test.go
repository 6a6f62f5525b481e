package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/services"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthHandler(svc *MockAuthService) *AuthHandler {
	return NewAuthHandler(svc, &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8"}}, discardLogger())
}

func TestAuthHandler_Login_Success(t *testing.T) {
	sid := uuid.NewString()
	svc := &MockAuthService{
		LoginFunc: func(_ context.Context, in services.LoginInput) (*models.AuthState, error) {
			return &models.AuthState{Step: models.AuthStepTOTP, SessionID: sid, ChallengeID: "c-1"}, nil
		},
	}
	h := newTestAuthHandler(svc)

	req := NewTestRequest(t, http.MethodPost, "/auth/login", map[string]any{
		"username":    "root",
		"password":    "correct horse battery",
		"fingerprint": "fp-abc",
	})
	req.RemoteAddr = "203.0.113.7:5555"
	w := httptest.NewRecorder()
	h.Login(w, req)

	var state models.AuthState
	env := AssertJSONResponse(t, w, http.StatusOK, &state)
	assert.True(t, env.Success)
	assert.Equal(t, models.AuthStepTOTP, state.Step)
	assert.Equal(t, sid, state.SessionID)

	require.NotNil(t, svc.LastLogin)
	assert.Equal(t, "root", svc.LastLogin.Username)
	assert.Equal(t, "fp-abc", svc.LastLogin.Fingerprint)
	assert.Equal(t, "203.0.113.7", svc.LastLogin.IPAddress)
	assert.Equal(t, "handler-test", svc.LastLogin.UserAgent)
}

func TestAuthHandler_Login_Fingerprint(t *testing.T) {
	device := &auth.DeviceAttributes{UserAgent: "UA", Language: "en", ScreenWidth: 1, ScreenHeight: 2, ColorDepth: 24}

	tests := []struct {
		name   string
		body   map[string]any
		header string
		want   string
	}{
		{"body wins over header", map[string]any{"fingerprint": "from-body"}, "from-header", "from-body"},
		{"header fallback", map[string]any{}, "from-header", "from-header"},
		{"raw attributes hashed", map[string]any{"fingerprint": "ignored", "device": device}, "", auth.GenerateDeviceFingerprint(device)},
		{"nothing supplied", map[string]any{}, "", auth.ServerFingerprint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockAuthService{}
			h := newTestAuthHandler(svc)

			body := map[string]any{"username": "root", "password": "pw"}
			for k, v := range tt.body {
				body[k] = v
			}
			req := NewTestRequest(t, http.MethodPost, "/auth/login", body)
			if tt.header != "" {
				req.Header.Set(auth.FingerprintHeader, tt.header)
			}
			h.Login(httptest.NewRecorder(), req)

			require.NotNil(t, svc.LastLogin)
			assert.Equal(t, tt.want, svc.LastLogin.Fingerprint)
		})
	}
}

func TestAuthHandler_Login_TrustedProxyIP(t *testing.T) {
	svc := &MockAuthService{}
	h := newTestAuthHandler(svc)

	req := NewTestRequest(t, http.MethodPost, "/auth/login", map[string]any{"username": "root", "password": "pw"})
	req.RemoteAddr = "10.1.2.3:443"
	req.Header.Set("X-Forwarded-For", "198.51.100.4, 10.1.2.3")
	h.Login(httptest.NewRecorder(), req)

	require.NotNil(t, svc.LastLogin)
	assert.Equal(t, "198.51.100.4", svc.LastLogin.IPAddress)
}

func TestAuthHandler_Login_BadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"username":`},
		{"missing username", `{"password":"pw"}`},
		{"missing password", `{"username":"root"}`},
		{"oversized username", fmt.Sprintf(`{"username":%q,"password":"pw"}`, strings.Repeat("a", 65))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockAuthService{}
			h := newTestAuthHandler(svc)

			req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.Login(w, req)

			AssertErrorResponse(t, w, http.StatusBadRequest, pkghttp.CodeBadRequest)
			assert.Nil(t, svc.LastLogin, "service must not be called")
		})
	}
}

func TestAuthHandler_ErrorMapping(t *testing.T) {
	retryState := &models.AuthState{Step: models.AuthStepTOTP, SessionID: "s", ChallengeID: "fresh"}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid credentials", models.ErrInvalidCredentials, http.StatusUnauthorized, pkghttp.CodeRetry},
		{"invalid code", models.ErrInvalidCode, http.StatusUnauthorized, pkghttp.CodeRetry},
		{"session expired", models.ErrSessionExpired, http.StatusUnauthorized, pkghttp.CodeRetry},
		{"session invalid", models.ErrSessionInvalid, http.StatusUnauthorized, pkghttp.CodeRetry},
		{"challenge consumed", models.ErrChallengeConsumed, http.StatusUnauthorized, pkghttp.CodeRetry},
		{"challenge expired", models.ErrChallengeExpired, http.StatusUnauthorized, pkghttp.CodeRetry},
		{"step mismatch", models.ErrAuthStepMismatch, http.StatusUnauthorized, pkghttp.CodeRetry},
		{"verification unavailable", models.ErrVerificationUnavailable, http.StatusUnauthorized, pkghttp.CodeRetry},
		{"wrapped", fmt.Errorf("ctx: %w", models.ErrInvalidChallengeResponse), http.StatusUnauthorized, pkghttp.CodeRetry},
		{"retry without state", &services.RetryError{Err: models.ErrInvalidCode}, http.StatusUnauthorized, pkghttp.CodeRetry},
		{"store unavailable", fmt.Errorf("%w: redis down", models.ErrStoreUnavailable), http.StatusServiceUnavailable, pkghttp.CodeRetry},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, pkghttp.CodeInternal},
		{"lockout", models.NewLockoutError(90 * time.Second), http.StatusTooManyRequests, pkghttp.CodeLockedOut},
		{"retry with state", &services.RetryError{Err: models.ErrInvalidCode, State: retryState}, http.StatusUnauthorized, pkghttp.CodeRetry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockAuthService{
				LoginFunc: func(context.Context, services.LoginInput) (*models.AuthState, error) { return nil, tt.err },
			}
			h := newTestAuthHandler(svc)

			w := httptest.NewRecorder()
			h.Login(w, NewTestRequest(t, http.MethodPost, "/auth/login", map[string]any{"username": "root", "password": "pw"}))

			env := AssertErrorResponse(t, w, tt.wantStatus, tt.wantCode)
			assert.NotContains(t, w.Body.String(), tt.err.Error(), "internal error text must not leak")
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, "authentication failed", env.Error.Message)
			}
		})
	}
}

func TestAuthHandler_Lockout_RetryAfter(t *testing.T) {
	svc := &MockAuthService{
		LoginFunc: func(context.Context, services.LoginInput) (*models.AuthState, error) {
			return nil, models.NewLockoutError(29*time.Minute + 500*time.Millisecond)
		},
	}
	h := newTestAuthHandler(svc)

	w := httptest.NewRecorder()
	h.Login(w, NewTestRequest(t, http.MethodPost, "/auth/login", map[string]any{"username": "root", "password": "pw"}))

	env := AssertErrorResponse(t, w, http.StatusTooManyRequests, pkghttp.CodeLockedOut)
	assert.Equal(t, "1741", w.Header().Get("Retry-After"))
	assert.Equal(t, int64(1740500), env.Error.RetryAfterMs)
}

func TestAuthHandler_RetryCarriesFreshChallenge(t *testing.T) {
	sid := uuid.NewString()
	svc := &MockAuthService{
		VerifyTOTPFunc: func(context.Context, services.StepInput) (*models.AuthState, error) {
			return nil, &services.RetryError{
				Err:   models.ErrInvalidCode,
				State: &models.AuthState{Step: models.AuthStepTOTP, SessionID: sid, ChallengeID: "fresh-challenge"},
			}
		},
	}
	h := newTestAuthHandler(svc)

	w := httptest.NewRecorder()
	h.VerifyTOTP(w, NewTestRequest(t, http.MethodPost, "/auth/totp/verify", map[string]any{
		"session_id": sid, "challenge_id": uuid.NewString(), "code": "123456",
	}))

	var state models.AuthState
	env := AssertJSONResponse(t, w, http.StatusUnauthorized, &state)
	require.NotNil(t, env.Error)
	assert.Equal(t, pkghttp.CodeRetry, env.Error.Code)
	assert.Equal(t, "fresh-challenge", state.ChallengeID)
	assert.Equal(t, models.AuthStepTOTP, state.Step)
}

func TestAuthHandler_VerifyTOTP(t *testing.T) {
	sid, cid := uuid.NewString(), uuid.NewString()

	t.Run("passes step input through", func(t *testing.T) {
		svc := &MockAuthService{
			VerifyTOTPFunc: func(_ context.Context, in services.StepInput) (*models.AuthState, error) {
				return &models.AuthState{Step: models.AuthStepHardwareKey, SessionID: in.SessionID, ChallengeID: "hk", Challenge: "abcd"}, nil
			},
		}
		h := newTestAuthHandler(svc)

		req := NewTestRequest(t, http.MethodPost, "/auth/totp/verify", map[string]any{
			"session_id": sid, "challenge_id": cid, "code": "654321",
		})
		req.Header.Set(auth.FingerprintHeader, "fp-1")
		w := httptest.NewRecorder()
		h.VerifyTOTP(w, req)

		var state models.AuthState
		AssertJSONResponse(t, w, http.StatusOK, &state)
		assert.Equal(t, models.AuthStepHardwareKey, state.Step)
		assert.Equal(t, "abcd", state.Challenge)

		require.NotNil(t, svc.LastStep)
		assert.Equal(t, sid, svc.LastStep.SessionID)
		assert.Equal(t, cid, svc.LastStep.ChallengeID)
		assert.Equal(t, "654321", svc.LastStep.Response)
		assert.Equal(t, "fp-1", svc.LastStep.Fingerprint)
	})

	invalid := []struct {
		name string
		body map[string]any
	}{
		{"short code", map[string]any{"session_id": sid, "challenge_id": cid, "code": "12345"}},
		{"non numeric code", map[string]any{"session_id": sid, "challenge_id": cid, "code": "12a456"}},
		{"signed code", map[string]any{"session_id": sid, "challenge_id": cid, "code": "-12345"}},
		{"decimal code", map[string]any{"session_id": sid, "challenge_id": cid, "code": "1.2345"}},
		{"exponent code", map[string]any{"session_id": sid, "challenge_id": cid, "code": "1e+100"}},
		{"session id not uuid", map[string]any{"session_id": "nope", "challenge_id": cid, "code": "123456"}},
		{"missing challenge", map[string]any{"session_id": sid, "code": "123456"}},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockAuthService{}
			h := newTestAuthHandler(svc)

			w := httptest.NewRecorder()
			h.VerifyTOTP(w, NewTestRequest(t, http.MethodPost, "/auth/totp/verify", tt.body))

			AssertErrorResponse(t, w, http.StatusBadRequest, pkghttp.CodeBadRequest)
			assert.Nil(t, svc.LastStep)
		})
	}
}

func TestAuthHandler_VerifyHardwareKey(t *testing.T) {
	sid, cid := uuid.NewString(), uuid.NewString()
	svc := &MockAuthService{
		VerifyHardwareKeyFunc: func(_ context.Context, in services.StepInput) (*models.AuthState, error) {
			return &models.AuthState{Step: models.AuthStepComplete, SessionID: in.SessionID, AccessToken: "tok"}, nil
		},
	}
	h := newTestAuthHandler(svc)

	w := httptest.NewRecorder()
	h.VerifyHardwareKey(w, NewTestRequest(t, http.MethodPost, "/auth/hardware-key/verify", map[string]any{
		"session_id": sid, "challenge_id": cid, "signature": "c2lnbmF0dXJl", "fingerprint": "fp-2",
	}))

	var state models.AuthState
	AssertJSONResponse(t, w, http.StatusOK, &state)
	assert.Equal(t, models.AuthStepComplete, state.Step)
	assert.Equal(t, "tok", state.AccessToken)
	assert.Equal(t, "c2lnbmF0dXJl", svc.LastStep.Response)
	assert.Equal(t, "fp-2", svc.LastStep.Fingerprint)

	t.Run("missing signature", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.VerifyHardwareKey(w, NewTestRequest(t, http.MethodPost, "/auth/hardware-key/verify", map[string]any{
			"session_id": sid, "challenge_id": cid,
		}))
		AssertErrorResponse(t, w, http.StatusBadRequest, pkghttp.CodeBadRequest)
	})
}

func TestAuthHandler_Logout(t *testing.T) {
	principal := &models.AdminPrincipal{AdminID: "admin-1", Username: "root", SessionID: "sess-1"}

	t.Run("success", func(t *testing.T) {
		var got *models.AdminPrincipal
		svc := &MockAuthService{
			LogoutFunc: func(_ context.Context, p *models.AdminPrincipal, ip, _ string) error {
				got = p
				assert.Equal(t, "192.0.2.1", ip)
				return nil
			},
		}
		h := newTestAuthHandler(svc)

		w := httptest.NewRecorder()
		h.Logout(w, WithPrincipal(NewTestRequest(t, http.MethodPost, "/auth/logout", nil), principal))

		AssertJSONResponse(t, w, http.StatusOK, nil)
		assert.Same(t, principal, got)
	})

	t.Run("no principal", func(t *testing.T) {
		h := newTestAuthHandler(&MockAuthService{})
		w := httptest.NewRecorder()
		h.Logout(w, NewTestRequest(t, http.MethodPost, "/auth/logout", nil))
		AssertErrorResponse(t, w, http.StatusUnauthorized, pkghttp.CodeRetry)
	})

	t.Run("store down", func(t *testing.T) {
		svc := &MockAuthService{
			LogoutFunc: func(context.Context, *models.AdminPrincipal, string, string) error {
				return fmt.Errorf("%w: timeout", models.ErrStoreUnavailable)
			},
		}
		h := newTestAuthHandler(svc)
		w := httptest.NewRecorder()
		h.Logout(w, WithPrincipal(NewTestRequest(t, http.MethodPost, "/auth/logout", nil), principal))
		AssertErrorResponse(t, w, http.StatusServiceUnavailable, pkghttp.CodeRetry)
	})
}

func TestAuthHandler_Session(t *testing.T) {
	expires := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	principal := &models.AdminPrincipal{AdminID: "admin-1", Username: "root", Role: models.RoleSuperAdmin,
		SessionID: "sess-1", ExpiresAt: expires}
	h := newTestAuthHandler(&MockAuthService{})

	w := httptest.NewRecorder()
	h.Session(w, WithPrincipal(NewTestRequest(t, http.MethodGet, "/auth/session", nil), principal))

	var view services.SessionView
	AssertJSONResponse(t, w, http.StatusOK, &view)
	assert.Equal(t, "admin-1", view.UserID)
	assert.Equal(t, "root", view.Username)
	assert.Equal(t, models.RoleSuperAdmin, view.Role)
	assert.True(t, view.TwoFactorVerified)
	assert.True(t, expires.Equal(view.ExpiresAt))

	t.Run("no principal", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Session(w, NewTestRequest(t, http.MethodGet, "/auth/session", nil))
		AssertErrorResponse(t, w, http.StatusUnauthorized, pkghttp.CodeRetry)
	})
}
