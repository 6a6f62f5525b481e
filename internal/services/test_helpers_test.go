package services

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/repositories"
	pkgauth "github.com/BradenHooton/bastion/pkg/auth"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testPassword    = "C0rrect-Horse-Battery"
	testFingerprint = "fpA"
	testIP          = "203.0.113.10"
	// stubTOTPCode is the only code the fake verifier accepts
	stubTOTPCode = "000000"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testClock is a manually advanced clock shared by every store in a test
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Now().Truncate(time.Millisecond)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// MockAdminDirectory implements AdminDirectory for testing
type MockAdminDirectory struct {
	mu                  sync.Mutex
	admins              map[string]*models.Admin
	GetByUsernameFunc   func(ctx context.Context, username string) (*models.Admin, error)
	GetByIDFunc         func(ctx context.Context, id string) (*models.Admin, error)
	UpdateLastLoginFunc func(ctx context.Context, id string, at time.Time) error
	lastLogin           map[string]time.Time
}

func NewMockAdminDirectory(admins ...*models.Admin) *MockAdminDirectory {
	m := &MockAdminDirectory{admins: make(map[string]*models.Admin), lastLogin: make(map[string]time.Time)}
	for _, a := range admins {
		m.admins[a.ID] = a
	}
	return m
}

func (m *MockAdminDirectory) GetByUsername(ctx context.Context, username string) (*models.Admin, error) {
	if m.GetByUsernameFunc != nil {
		return m.GetByUsernameFunc(ctx, username)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.admins {
		if a.Username == username {
			return a, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *MockAdminDirectory) GetByID(ctx context.Context, id string) (*models.Admin, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.admins[id]; ok {
		return a, nil
	}
	return nil, models.ErrNotFound
}

func (m *MockAdminDirectory) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	if m.UpdateLastLoginFunc != nil {
		return m.UpdateLastLoginFunc(ctx, id, at)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLogin[id] = at
	return nil
}

func (m *MockAdminDirectory) LastLogin(id string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.lastLogin[id]
	return at, ok
}

// stubTOTPVerifier accepts the fixed stub code. It exists only in tests.
type stubTOTPVerifier struct {
	err error
}

func (v *stubTOTPVerifier) VerifyAdminCode(_ *models.Admin, code string) (bool, error) {
	if v.err != nil {
		return false, v.err
	}
	return code == stubTOTPCode, nil
}

// recordingSink captures published events
type recordingSink struct {
	mu     sync.Mutex
	events []*models.SecurityEvent
	err    error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Publish(_ context.Context, event *models.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *recordingSink) Kinds() []models.SecurityEventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]models.SecurityEventKind, 0, len(s.events))
	for _, e := range s.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func (s *recordingSink) Count(kind models.SecurityEventKind) int {
	n := 0
	for _, k := range s.Kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

func (s *recordingSink) Last(kind models.SecurityEventKind) *models.SecurityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Kind == kind {
			return s.events[i]
		}
	}
	return nil
}

func (s *recordingSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

func newTestAdmin(t *testing.T, pub ed25519.PublicKey) *models.Admin {
	t.Helper()
	hash, err := pkgauth.HashPasswordWithCost(testPassword, bcrypt.MinCost)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)

	return &models.Admin{
		ID:                   "admin-1",
		Username:             "admin",
		PasswordHash:         hash,
		Role:                 models.RoleSuperAdmin,
		TOTPSecretEncrypted:  []byte("sealed"),
		TOTPSecretNonce:      []byte("nonce"),
		HardwareKeyPublicKey: string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})),
	}
}

// authHarness wires AuthService to in-memory stores, a test clock and a recording sink
type authHarness struct {
	svc          *AuthService
	clock        *testClock
	admins       *MockAdminDirectory
	admin        *models.Admin
	attempts     *repositories.MemoryAttemptStore
	stepAttempts *repositories.MemoryAttemptStore
	sessions     *repositories.MemorySessionStore
	challenges   *repositories.MemoryChallengeStore
	totp         *stubTOTPVerifier
	sink         *recordingSink
	signer       ed25519.PrivateKey
}

func newAuthHarness(t *testing.T) *authHarness {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	clock := newTestClock()
	admin := newTestAdmin(t, pub)
	admins := NewMockAdminDirectory(admin)

	attempts := repositories.NewMemoryAttemptStore(repositories.AttemptPolicy{MaxAttempts: 3, LockoutDuration: 30 * time.Minute}, clock.Now)
	stepAttempts := repositories.NewMemoryAttemptStore(repositories.AttemptPolicy{MaxAttempts: 5, LockoutDuration: time.Hour}, clock.Now)
	sessions := repositories.NewMemorySessionStore(time.Hour, clock.Now)
	challengeStore := repositories.NewMemoryChallengeStore()

	issuer := NewChallengeIssuer(challengeStore, 5*time.Minute)
	issuer.SetClock(clock.Now)

	tokens := auth.NewTokenManager("test-secret-32-characters-long!!", 12*time.Hour)
	tokens.SetClock(clock.Now)

	sink := &recordingSink{}
	events := NewSecurityEventLog(discardLogger(), sink)
	events.SetClock(clock.Now)

	totp := &stubTOTPVerifier{}

	svc := NewAuthService(AuthServiceDeps{
		Admins:       admins,
		Attempts:     attempts,
		StepAttempts: stepAttempts,
		Sessions:     sessions,
		Challenges:   issuer,
		TOTP:         totp,
		HardwareKeys: auth.NewHardwareKeyVerifier(),
		Tokens:       tokens,
		Events:       events,
		Logger:       discardLogger(),
	}, AuthPolicy{LockoutDuration: 30 * time.Minute, LockoutByIP: true, Env: "test"})
	svc.SetClock(clock.Now)

	return &authHarness{
		svc:          svc,
		clock:        clock,
		admins:       admins,
		admin:        admin,
		attempts:     attempts,
		stepAttempts: stepAttempts,
		sessions:     sessions,
		challenges:   challengeStore,
		totp:         totp,
		sink:         sink,
		signer:       priv,
	}
}

func (h *authHarness) loginInput(password string) LoginInput {
	return LoginInput{
		Username:    "admin",
		Password:    password,
		Fingerprint: testFingerprint,
		IPAddress:   testIP,
		UserAgent:   "test-agent",
	}
}

func (h *authHarness) login(t *testing.T) *models.AuthState {
	t.Helper()
	state, err := h.svc.Login(context.Background(), h.loginInput(testPassword))
	require.NoError(t, err)
	require.Equal(t, models.AuthStepTOTP, state.Step)
	return state
}

func (h *authHarness) stepInput(state *models.AuthState, response string) StepInput {
	return StepInput{
		SessionID:   state.SessionID,
		ChallengeID: state.ChallengeID,
		Response:    response,
		Fingerprint: testFingerprint,
		IPAddress:   testIP,
		UserAgent:   "test-agent",
	}
}

func (h *authHarness) passTOTP(t *testing.T, state *models.AuthState) *models.AuthState {
	t.Helper()
	next, err := h.svc.VerifyTOTP(context.Background(), h.stepInput(state, stubTOTPCode))
	require.NoError(t, err)
	require.Equal(t, models.AuthStepHardwareKey, next.Step)
	return next
}

func (h *authHarness) sign(t *testing.T, challengeHex string) string {
	t.Helper()
	raw, err := hex.DecodeString(challengeHex)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(ed25519.Sign(h.signer, raw))
}

func (h *authHarness) complete(t *testing.T) *models.AuthState {
	t.Helper()
	hw := h.passTOTP(t, h.login(t))
	done, err := h.svc.VerifyHardwareKey(context.Background(), h.stepInput(hw, h.sign(t, hw.Challenge)))
	require.NoError(t, err)
	require.Equal(t, models.AuthStepComplete, done.Step)
	return done
}

// retryState asserts err is a RetryError wrapping want and returns its fresh state
func retryState(t *testing.T, err error, want error) *models.AuthState {
	t.Helper()
	var re *RetryError
	require.True(t, errors.As(err, &re), "expected *RetryError, got %v", err)
	require.ErrorIs(t, err, want)
	require.NotNil(t, re.State)
	return re.State
}
