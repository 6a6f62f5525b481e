package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "handler-test")
	return req
}

// WithPrincipal attaches an authenticated admin to the request
func WithPrincipal(req *http.Request, p *models.AdminPrincipal) *http.Request {
	return req.WithContext(auth.WithPrincipal(req.Context(), p))
}

// testEnvelope mirrors pkghttp.Envelope with a raw data payload
type testEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code         string `json:"code"`
		Message      string `json:"message"`
		RetryAfterMs int64  `json:"retry_after_ms"`
	} `json:"error"`
}

// AssertJSONResponse checks status and content type and decodes the envelope, unpacking data into target
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) testEnvelope {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var env testEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), "Failed to decode response JSON")
	if target != nil {
		require.NoError(t, json.Unmarshal(env.Data, target))
	}
	return env
}

// AssertErrorResponse checks that response is an error envelope with the given code
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedCode string) testEnvelope {
	t.Helper()
	env := AssertJSONResponse(t, w, expectedStatus, nil)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, expectedCode, env.Error.Code)
	assert.NotEmpty(t, env.Error.Message)
	return env
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc             func(ctx context.Context, in services.LoginInput) (*models.AuthState, error)
	VerifyTOTPFunc        func(ctx context.Context, in services.StepInput) (*models.AuthState, error)
	VerifyHardwareKeyFunc func(ctx context.Context, in services.StepInput) (*models.AuthState, error)
	LogoutFunc            func(ctx context.Context, p *models.AdminPrincipal, ip, ua string) error
	SessionFunc           func(ctx context.Context, p *models.AdminPrincipal) (*services.SessionView, error)

	LastLogin *services.LoginInput
	LastStep  *services.StepInput
}

func (m *MockAuthService) Login(ctx context.Context, in services.LoginInput) (*models.AuthState, error) {
	m.LastLogin = &in
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, in)
	}
	return nil, models.ErrInvalidCredentials
}

func (m *MockAuthService) VerifyTOTP(ctx context.Context, in services.StepInput) (*models.AuthState, error) {
	m.LastStep = &in
	if m.VerifyTOTPFunc != nil {
		return m.VerifyTOTPFunc(ctx, in)
	}
	return nil, models.ErrInvalidCode
}

func (m *MockAuthService) VerifyHardwareKey(ctx context.Context, in services.StepInput) (*models.AuthState, error) {
	m.LastStep = &in
	if m.VerifyHardwareKeyFunc != nil {
		return m.VerifyHardwareKeyFunc(ctx, in)
	}
	return nil, models.ErrInvalidChallengeResponse
}

func (m *MockAuthService) Logout(ctx context.Context, p *models.AdminPrincipal, ip, ua string) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, p, ip, ua)
	}
	return nil
}

func (m *MockAuthService) Session(ctx context.Context, p *models.AdminPrincipal) (*services.SessionView, error) {
	if m.SessionFunc != nil {
		return m.SessionFunc(ctx, p)
	}
	return &services.SessionView{UserID: p.AdminID, Username: p.Username, Role: p.Role,
		SessionID: p.SessionID, ExpiresAt: p.ExpiresAt, TwoFactorVerified: true}, nil
}
