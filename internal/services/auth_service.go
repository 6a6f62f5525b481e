package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/repositories"
	pkgauth "github.com/BradenHooton/bastion/pkg/auth"
	pkglogger "github.com/BradenHooton/bastion/pkg/logger"
)

// AdminDirectory looks up admin accounts
type AdminDirectory interface {
	GetByUsername(ctx context.Context, username string) (*models.Admin, error)
	GetByID(ctx context.Context, id string) (*models.Admin, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
}

// TOTPVerifier checks a code against an admin's enrolled secret.
// An error means the check could not be performed, not that the code was wrong.
type TOTPVerifier interface {
	VerifyAdminCode(admin *models.Admin, code string) (bool, error)
}

// HardwareKeyChecker checks a signed challenge against an admin's registered key.
type HardwareKeyChecker interface {
	VerifyAdmin(admin *models.Admin, challengeHex, signature string) (bool, error)
}

// TokenIssuer mints and validates admin bearer tokens
type TokenIssuer interface {
	GenerateAdminToken(admin *models.Admin, sessionID string) (string, error)
	ValidateToken(tokenString string) (*models.TokenClaims, error)
}

// RetryError is returned when a factor was rejected but the session survives.
// State carries the fresh challenge for the next try.
type RetryError struct {
	Err   error
	State *models.AuthState
}

func (e *RetryError) Error() string { return e.Err.Error() }
func (e *RetryError) Unwrap() error { return e.Err }

// AuthPolicy holds the orchestrator's knobs
type AuthPolicy struct {
	LockoutDuration time.Duration
	LockoutByIP     bool
	Env             string
}

// AuthServiceDeps groups the collaborators of AuthService
type AuthServiceDeps struct {
	Admins   AdminDirectory
	Attempts repositories.AttemptStore
	// StepAttempts counts wrong TOTP/hardware-key answers per session; its policy
	// decides how many a session survives.
	StepAttempts repositories.AttemptStore
	Sessions     repositories.SessionStore
	Challenges   *ChallengeIssuer
	TOTP         TOTPVerifier
	HardwareKeys HardwareKeyChecker
	Tokens       TokenIssuer
	Events       *SecurityEventLog
	Timing       *auth.TimingDelay
	Logger       *slog.Logger
}

// AuthService drives the credentials -> totp -> hardware_key -> complete login protocol
type AuthService struct {
	admins       AdminDirectory
	attempts     repositories.AttemptStore
	stepAttempts repositories.AttemptStore
	sessions     repositories.SessionStore
	challenges   *ChallengeIssuer
	totp         TOTPVerifier
	keys         HardwareKeyChecker
	tokens       TokenIssuer
	events       *SecurityEventLog
	timing       *auth.TimingDelay
	policy       AuthPolicy
	logger       *slog.Logger
	now          func() time.Time
}

func NewAuthService(deps AuthServiceDeps, policy AuthPolicy) *AuthService {
	return &AuthService{
		admins:       deps.Admins,
		attempts:     deps.Attempts,
		stepAttempts: deps.StepAttempts,
		sessions:     deps.Sessions,
		challenges:   deps.Challenges,
		totp:         deps.TOTP,
		keys:         deps.HardwareKeys,
		tokens:       deps.Tokens,
		events:       deps.Events,
		timing:       deps.Timing,
		policy:       policy,
		logger:       deps.Logger,
		now:          time.Now,
	}
}

// SetClock replaces the time source used for last-login stamps
func (s *AuthService) SetClock(now func() time.Time) {
	s.now = now
}

// LoginInput is the first step of the protocol
type LoginInput struct {
	Username    string
	Password    string
	Fingerprint string
	IPAddress   string
	UserAgent   string
}

// StepInput answers the TOTP or hardware-key challenge
type StepInput struct {
	SessionID   string
	ChallengeID string
	// Response is the 6-digit code or the base64 signature over the challenge.
	Response    string
	Fingerprint string
	IPAddress   string
	UserAgent   string
}

func (in StepInput) securityContext() models.SecurityContext {
	return models.SecurityContext{
		IPAddress:         in.IPAddress,
		UserAgent:         in.UserAgent,
		DeviceFingerprint: in.Fingerprint,
		SessionID:         in.SessionID,
	}
}

// SessionView is returned by GET /auth/session
type SessionView struct {
	UserID            string    `json:"user_id"`
	Username          string    `json:"username"`
	Role              string    `json:"role"`
	SessionID         string    `json:"session_id"`
	ExpiresAt         time.Time `json:"expires_at"`
	TwoFactorVerified bool      `json:"two_factor_verified"`
}

func normalizeFingerprint(fp string) string {
	if fp = strings.TrimSpace(fp); fp == "" {
		return auth.ServerFingerprint
	}
	return fp
}

// lockoutIdentifiers returns the Attempt Tracker keys a login is counted against
func (s *AuthService) lockoutIdentifiers(username, ip string) []string {
	ids := []string{username}
	if s.policy.LockoutByIP && ip != "" {
		ids = append(ids, "ip:"+ip)
	}
	return ids
}

func stepIdentifier(sessionID string) string {
	return "step:" + sessionID
}

// Login checks username and password and opens a provisional session at the TOTP step.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*models.AuthState, error) {
	start := time.Now()
	username := strings.ToLower(strings.TrimSpace(in.Username))
	in.Fingerprint = normalizeFingerprint(in.Fingerprint)
	sc := models.SecurityContext{
		IPAddress:         in.IPAddress,
		UserAgent:         in.UserAgent,
		DeviceFingerprint: in.Fingerprint,
	}

	s.events.Emit(ctx, models.EventLoginAttempt, sc, models.EventDetails{
		"username": pkglogger.MaskIdentifier(username),
	})

	identifiers := s.lockoutIdentifiers(username, in.IPAddress)

	// The attempt is counted before the password is checked so concurrent
	// requests cannot evaluate more guesses than the lockout allows.
	if err := s.reserveAttempts(ctx, identifiers, sc); err != nil {
		if errors.Is(err, models.ErrInvalidCredentials) {
			s.timing.WaitFrom(start, false)
		}
		return nil, err
	}

	admin, reason, err := s.checkCredentials(ctx, username, in.Password, in.IPAddress)
	if err != nil {
		s.releaseAttempts(ctx, identifiers)
		s.timing.WaitFrom(start, false)
		return nil, err
	}
	if reason != "" {
		if reason == "ip_not_allowed" {
			sc.AdminID = admin.ID
			s.events.Emit(ctx, models.EventSuspiciousActivity, sc, models.EventDetails{"reason": reason})
		}
		err := s.recordLoginFailure(ctx, identifiers, sc, reason)
		s.timing.WaitFrom(start, false)
		return nil, err
	}

	if !admin.TOTPEnabled() || !admin.HardwareKeyEnabled() {
		s.logger.Error("admin is missing an enrolled factor",
			slog.String("admin_id", admin.ID),
			slog.Bool("totp", admin.TOTPEnabled()),
			slog.Bool("hardware_key", admin.HardwareKeyEnabled()))
		s.releaseAttempts(ctx, identifiers)
		s.timing.WaitFrom(start, false)
		return nil, models.ErrVerificationUnavailable
	}

	session, err := s.sessions.CreateSession(ctx, admin.ID, in.Fingerprint)
	if err != nil {
		s.releaseAttempts(ctx, identifiers)
		return nil, err
	}
	s.releaseAttempts(ctx, identifiers)
	for _, id := range identifiers {
		if err := s.attempts.ClearAttempts(ctx, id); err != nil {
			s.logger.Warn("failed to clear login attempts", slog.Any("error", err))
		}
	}

	sc.AdminID = admin.ID
	sc.SessionID = session.ID
	s.events.Emit(ctx, models.EventLoginSuccess, sc, nil)
	s.events.Emit(ctx, models.EventSessionCreated, sc, models.EventDetails{
		"expires_at": session.ExpiresAt.UTC().Format(time.RFC3339),
	})

	challenge, err := s.challenges.GenerateTotpChallenge(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	s.timing.WaitFrom(start, true)

	expiresAt := session.ExpiresAt
	return &models.AuthState{
		Step:        models.AuthStepTOTP,
		SessionID:   session.ID,
		ExpiresAt:   &expiresAt,
		ChallengeID: challenge.ID,
	}, nil
}

// checkCredentials returns a non-empty reason when the login must be rejected.
// The admin is returned alongside ip_not_allowed so the event can name the account.
func (s *AuthService) checkCredentials(ctx context.Context, username, password, ip string) (*models.Admin, string, error) {
	if username == "" || password == "" {
		_ = pkgauth.ComparePassword(pkgauth.DummyHash(), password)
		return nil, "invalid_credentials", nil
	}

	admin, err := s.admins.GetByUsername(ctx, username)
	if errors.Is(err, models.ErrNotFound) {
		_ = pkgauth.ComparePassword(pkgauth.DummyHash(), password)
		return nil, "invalid_credentials", nil
	}
	if err != nil {
		s.logger.Error("failed to look up admin", slog.Any("error", err))
		return nil, "", fmt.Errorf("%w: %v", models.ErrVerificationUnavailable, err)
	}

	if err := pkgauth.ComparePassword(admin.PasswordHash, password); err != nil {
		return admin, "invalid_credentials", nil
	}
	if !admin.IPAllowed(ip) {
		return admin, "ip_not_allowed", nil
	}
	return admin, "", nil
}

// reserveAttempts claims an attempt on every identifier or on none of them.
// A locked identifier yields a LockoutError; attempts all held by requests in
// flight yield ErrInvalidCredentials without a password being checked.
func (s *AuthService) reserveAttempts(ctx context.Context, identifiers []string, sc models.SecurityContext) error {
	var (
		granted   []string
		remaining time.Duration
		exhausted bool
	)
	for _, id := range identifiers {
		res, err := s.attempts.ReserveAttempt(ctx, id)
		if err != nil {
			s.releaseAttempts(ctx, granted)
			return err
		}
		switch {
		case res.Granted:
			granted = append(granted, id)
		case res.Locked:
			if res.Remaining > remaining {
				remaining = res.Remaining
			}
		default:
			exhausted = true
		}
	}
	if len(granted) == len(identifiers) {
		return nil
	}
	s.releaseAttempts(ctx, granted)

	if remaining > 0 {
		s.events.Emit(ctx, models.EventLoginFailed, sc, models.EventDetails{
			"reason":               "locked_out",
			"attempts_remaining":   0,
			"lockout_remaining_ms": remaining.Milliseconds(),
		})
		return models.NewLockoutError(remaining)
	}
	if exhausted {
		s.events.Emit(ctx, models.EventLoginFailed, sc, models.EventDetails{
			"reason":             "attempts_in_flight",
			"attempts_remaining": 0,
		})
	}
	return models.ErrInvalidCredentials
}

// releaseAttempts returns reservations without counting a failure
func (s *AuthService) releaseAttempts(ctx context.Context, identifiers []string) {
	for _, id := range identifiers {
		if _, err := s.attempts.SettleAttempt(ctx, id, false); err != nil {
			s.logger.Warn("failed to release login attempt", slog.Any("error", err))
		}
	}
}

func (s *AuthService) recordLoginFailure(ctx context.Context, identifiers []string, sc models.SecurityContext, reason string) error {
	attemptsRemaining := -1
	locked := false
	for _, id := range identifiers {
		res, err := s.attempts.SettleAttempt(ctx, id, true)
		if err != nil {
			return err
		}
		if attemptsRemaining < 0 || res.AttemptsRemaining < attemptsRemaining {
			attemptsRemaining = res.AttemptsRemaining
		}
		locked = locked || res.Locked
		if res.Triggered {
			s.events.Emit(ctx, models.EventLockoutTriggered, sc, models.EventDetails{
				"identifier":          maskLockoutIdentifier(id),
				"lockout_duration_ms": s.policy.LockoutDuration.Milliseconds(),
			})
		}
	}

	s.events.Emit(ctx, models.EventLoginFailed, sc, models.EventDetails{
		"reason":             reason,
		"attempts_remaining": attemptsRemaining,
	})

	if locked {
		return models.NewLockoutError(s.policy.LockoutDuration)
	}
	return models.ErrInvalidCredentials
}

func maskLockoutIdentifier(id string) string {
	if strings.HasPrefix(id, "ip:") {
		return id
	}
	return pkglogger.MaskIdentifier(id)
}

// VerifyTOTP answers the TOTP challenge and moves the session to the hardware-key step.
func (s *AuthService) VerifyTOTP(ctx context.Context, in StepInput) (*models.AuthState, error) {
	return s.verifyStep(ctx, in, totpStep)
}

// VerifyHardwareKey answers the hardware-key challenge and completes the login.
func (s *AuthService) VerifyHardwareKey(ctx context.Context, in StepInput) (*models.AuthState, error) {
	return s.verifyStep(ctx, in, hardwareKeyStep)
}

// factorStep describes one of the two challenge-response steps
type factorStep struct {
	step        models.AuthStep
	next        models.AuthStep
	kind        models.ChallengeKind
	verified    models.SecurityEventKind
	failed      models.SecurityEventKind
	rejectedErr error
}

var (
	totpStep = factorStep{
		step:        models.AuthStepTOTP,
		next:        models.AuthStepHardwareKey,
		kind:        models.ChallengeKindTOTP,
		verified:    models.EventTOTPVerified,
		failed:      models.EventTOTPFailed,
		rejectedErr: models.ErrInvalidCode,
	}
	hardwareKeyStep = factorStep{
		step:        models.AuthStepHardwareKey,
		next:        models.AuthStepComplete,
		kind:        models.ChallengeKindHardwareKey,
		verified:    models.EventHardwareKeyVerified,
		failed:      models.EventHardwareKeyFailed,
		rejectedErr: models.ErrInvalidChallengeResponse,
	}
)

func (s *AuthService) verifyStep(ctx context.Context, in StepInput, fs factorStep) (*models.AuthState, error) {
	start := time.Now()
	in.Fingerprint = normalizeFingerprint(in.Fingerprint)
	sc := in.securityContext()

	sv, err := s.validateSession(ctx, in.SessionID, sc)
	if err != nil {
		return nil, err
	}
	sc.AdminID = sv.OwnerID
	if sv.Step != fs.step {
		return nil, models.ErrAuthStepMismatch
	}

	challenge, err := s.challenges.Consume(ctx, in.SessionID, in.ChallengeID, fs.kind)
	switch {
	case errors.Is(err, models.ErrChallengeConsumed), errors.Is(err, models.ErrChallengeExpired):
		out := s.stepFailure(ctx, sv, in.SessionID, sc, fs, err, reasonFor(err))
		s.timing.WaitFrom(start, false)
		return nil, out
	case err != nil:
		return nil, err
	}

	admin, err := s.admins.GetByID(ctx, sv.OwnerID)
	if err != nil {
		s.logger.Error("failed to load session owner", slog.String("session_id", in.SessionID), slog.Any("error", err))
		out := s.retryWithFreshChallenge(ctx, sv, in.SessionID, fs, models.ErrVerificationUnavailable)
		s.timing.WaitFrom(start, false)
		return nil, out
	}

	var ok bool
	if fs.kind == models.ChallengeKindTOTP {
		ok, err = s.totp.VerifyAdminCode(admin, in.Response)
	} else {
		ok, err = s.keys.VerifyAdmin(admin, challenge.Material, in.Response)
	}
	if err != nil {
		// indistinguishable from a wrong answer for the caller
		s.logger.Error("factor verification unavailable",
			slog.String("step", string(fs.step)),
			slog.String("admin_id", admin.ID),
			slog.Any("error", err))
		out := s.retryWithFreshChallenge(ctx, sv, in.SessionID, fs, models.ErrVerificationUnavailable)
		s.timing.WaitFrom(start, false)
		return nil, out
	}
	if !ok {
		out := s.stepFailure(ctx, sv, in.SessionID, sc, fs, fs.rejectedErr, "invalid_response")
		s.timing.WaitFrom(start, false)
		return nil, out
	}

	if err := s.sessions.AdvanceStep(ctx, in.SessionID, fs.step, fs.next); err != nil {
		return nil, err
	}
	if err := s.stepAttempts.ClearAttempts(ctx, stepIdentifier(in.SessionID)); err != nil {
		s.logger.Warn("failed to clear step attempts", slog.Any("error", err))
	}
	s.events.Emit(ctx, fs.verified, sc, nil)

	var state *models.AuthState
	if fs.next == models.AuthStepComplete {
		state, err = s.complete(ctx, admin, in.SessionID, sc)
	} else {
		state, err = s.advanceToHardwareKey(ctx, in.SessionID, sv.ExpiresAt)
	}
	if err != nil {
		return nil, err
	}

	s.timing.WaitFrom(start, true)
	return state, nil
}

func reasonFor(err error) string {
	if errors.Is(err, models.ErrChallengeExpired) {
		return "challenge_expired"
	}
	return "challenge_consumed"
}

func (s *AuthService) advanceToHardwareKey(ctx context.Context, sessionID string, expiresAt time.Time) (*models.AuthState, error) {
	challenge, err := s.challenges.GenerateHardwareKeyChallenge(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &models.AuthState{
		Step:        models.AuthStepHardwareKey,
		SessionID:   sessionID,
		ExpiresAt:   &expiresAt,
		ChallengeID: challenge.ID,
		Challenge:   challenge.Material,
	}, nil
}

func (s *AuthService) complete(ctx context.Context, admin *models.Admin, sessionID string, sc models.SecurityContext) (*models.AuthState, error) {
	token, err := s.tokens.GenerateAdminToken(admin, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to mint admin token: %w", err)
	}

	expiresAt, ok, err := s.sessions.ExtendSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.ErrSessionExpired
	}

	for _, id := range s.lockoutIdentifiers(admin.Username, sc.IPAddress) {
		if err := s.attempts.ClearAttempts(ctx, id); err != nil {
			s.logger.Warn("failed to clear login attempts", slog.Any("error", err))
		}
	}
	if err := s.admins.UpdateLastLogin(ctx, admin.ID, s.now().UTC()); err != nil {
		s.logger.Warn("failed to record last login", slog.String("admin_id", admin.ID), slog.Any("error", err))
	}

	s.logger.Info("admin login complete",
		slog.String("admin_id", admin.ID),
		pkglogger.RedactedAttr("username", admin.Username, s.policy.Env))

	return &models.AuthState{
		Step:        models.AuthStepComplete,
		SessionID:   sessionID,
		ExpiresAt:   &expiresAt,
		AccessToken: token,
	}, nil
}

// stepFailure counts a rejected factor against the session. The session is destroyed
// once the budget is spent; otherwise a fresh challenge is issued for the same step.
func (s *AuthService) stepFailure(ctx context.Context, sv models.SessionValidation, sessionID string, sc models.SecurityContext, fs factorStep, cause error, reason string) error {
	res, err := s.stepAttempts.RecordFailedAttempt(ctx, stepIdentifier(sessionID))
	if err != nil {
		return err
	}

	s.events.Emit(ctx, fs.failed, sc, models.EventDetails{
		"reason":             reason,
		"attempts_remaining": res.AttemptsRemaining,
	})

	if res.Locked {
		s.destroySession(ctx, sessionID, sc, "too_many_failures")
		return models.ErrSessionInvalid
	}

	return s.retryWithFreshChallenge(ctx, sv, sessionID, fs, cause)
}

func (s *AuthService) retryWithFreshChallenge(ctx context.Context, sv models.SessionValidation, sessionID string, fs factorStep, cause error) error {
	var (
		challenge *models.Challenge
		err       error
	)
	if fs.kind == models.ChallengeKindTOTP {
		challenge, err = s.challenges.GenerateTotpChallenge(ctx, sessionID)
	} else {
		challenge, err = s.challenges.GenerateHardwareKeyChallenge(ctx, sessionID)
	}
	if err != nil {
		return err
	}

	expiresAt := sv.ExpiresAt
	return &RetryError{
		Err: cause,
		State: &models.AuthState{
			Step:        fs.step,
			SessionID:   sessionID,
			ExpiresAt:   &expiresAt,
			ChallengeID: challenge.ID,
			Challenge:   challenge.Material,
		},
	}
}

// validateSession maps an invalid session onto the right error and audit trail.
// Expired and hijacked sessions have already been evicted by the store.
func (s *AuthService) validateSession(ctx context.Context, sessionID string, sc models.SecurityContext) (models.SessionValidation, error) {
	if sessionID == "" {
		return models.SessionValidation{}, models.ErrSessionInvalid
	}

	sv, err := s.sessions.ValidateSession(ctx, sessionID, sc.DeviceFingerprint)
	if err != nil {
		return sv, err
	}
	if sv.Valid {
		return sv, nil
	}

	switch sv.Reason {
	case models.SessionReasonExpired:
		s.cleanupSession(ctx, sessionID)
		s.events.Emit(ctx, models.EventSessionInvalidated, sc, models.EventDetails{"reason": sv.Reason})
		return sv, models.ErrSessionExpired
	case models.SessionReasonFingerprintMismatch:
		s.cleanupSession(ctx, sessionID)
		s.events.Emit(ctx, models.EventSuspiciousActivity, sc, models.EventDetails{"reason": sv.Reason})
		s.events.Emit(ctx, models.EventSessionInvalidated, sc, models.EventDetails{"reason": sv.Reason})
		return sv, models.ErrSessionInvalid
	default:
		return sv, models.ErrSessionInvalid
	}
}

func (s *AuthService) destroySession(ctx context.Context, sessionID string, sc models.SecurityContext, reason string) {
	if err := s.sessions.InvalidateSession(ctx, sessionID); err != nil {
		s.logger.Error("failed to invalidate session", slog.String("session_id", sessionID), slog.Any("error", err))
	}
	s.cleanupSession(ctx, sessionID)
	s.events.Emit(ctx, models.EventSessionInvalidated, sc, models.EventDetails{"reason": reason})
}

// cleanupSession drops per-session side state
func (s *AuthService) cleanupSession(ctx context.Context, sessionID string) {
	if err := s.challenges.Discard(ctx, sessionID); err != nil {
		s.logger.Warn("failed to discard challenge", slog.String("session_id", sessionID), slog.Any("error", err))
	}
	if err := s.stepAttempts.ClearAttempts(ctx, stepIdentifier(sessionID)); err != nil {
		s.logger.Warn("failed to clear step attempts", slog.String("session_id", sessionID), slog.Any("error", err))
	}
}

// Authenticate resolves a bearer token to the admin behind a completed session and slides its expiry.
func (s *AuthService) Authenticate(ctx context.Context, token, fingerprint string) (*models.AdminPrincipal, error) {
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		return nil, err
	}

	sc := models.SecurityContext{
		DeviceFingerprint: normalizeFingerprint(fingerprint),
		AdminID:           claims.UserID,
		SessionID:         claims.SessionID,
	}
	sv, err := s.validateSession(ctx, claims.SessionID, sc)
	if err != nil {
		return nil, err
	}
	if sv.OwnerID != claims.UserID || sv.Step != models.AuthStepComplete {
		return nil, models.ErrSessionInvalid
	}

	expiresAt, ok, err := s.sessions.ExtendSession(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.ErrSessionExpired
	}

	return &models.AdminPrincipal{
		AdminID:   claims.UserID,
		Username:  claims.Username,
		Role:      claims.Role,
		SessionID: claims.SessionID,
		ExpiresAt: expiresAt,
	}, nil
}

// Logout destroys the principal's session. Calling it twice is harmless.
func (s *AuthService) Logout(ctx context.Context, principal *models.AdminPrincipal, ip, userAgent string) error {
	if principal == nil {
		return models.ErrUnauthorized
	}
	if err := s.sessions.InvalidateSession(ctx, principal.SessionID); err != nil {
		return err
	}
	s.cleanupSession(ctx, principal.SessionID)

	s.events.Emit(ctx, models.EventSessionInvalidated, models.SecurityContext{
		IPAddress: ip,
		UserAgent: userAgent,
		AdminID:   principal.AdminID,
		SessionID: principal.SessionID,
	}, models.EventDetails{"reason": "logout"})
	return nil
}

// Session describes the authenticated session of principal
func (s *AuthService) Session(_ context.Context, principal *models.AdminPrincipal) (*SessionView, error) {
	if principal == nil {
		return nil, models.ErrUnauthorized
	}
	return &SessionView{
		UserID:            principal.AdminID,
		Username:          principal.Username,
		Role:              principal.Role,
		SessionID:         principal.SessionID,
		ExpiresAt:         principal.ExpiresAt,
		TwoFactorVerified: true,
	}, nil
}
