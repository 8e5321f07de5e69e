// Package auth links VRChat accounts: it drives the login handshake, holds
// logins that wait for a second factor and completes them with a code.
package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/vrceventbot/vrceventbot/internal/errors"
	"github.com/vrceventbot/vrceventbot/internal/logging"
	"github.com/vrceventbot/vrceventbot/internal/models"
	"github.com/vrceventbot/vrceventbot/internal/provider"
)

// Vault is the slice of vault.CredentialStore the service needs.
type Vault interface {
	Save(ctx context.Context, bundle models.CredentialBundle) error
	Resume(ctx context.Context, userID string) (provider.Session, error)
	Forget(ctx context.Context, userID string) (bool, error)
	Exists(ctx context.Context, userID string) (bool, error)
}

// Observer receives login and verification results for metrics.
type Observer interface {
	ObserveLogin(path string, outcome models.AuthOutcome)
	ObserveMFA(kind string, accepted bool)
	SetPendingLogins(n int)
}

// Login paths reported to the Observer.
const (
	PathFresh  = "fresh"
	PathResume = "resume"
)

// MFA kinds reported to the Observer.
const (
	KindEmail = "email"
	KindTOTP  = "totp"
)

// Failure says why a login or a code did not go through.
type Failure string

const (
	FailureNone Failure = ""
	// FailureRejected: VRChat answered and said no, or the stored login is gone.
	FailureRejected Failure = "rejected"
	// FailureUnavailable: VRChat could not be reached or is rate limiting us.
	FailureUnavailable Failure = "unavailable"
	// FailureStorage: VRChat accepted but the credentials could not be read or saved.
	FailureStorage Failure = "storage"
)

// Result is the outcome of a login attempt. Session is set for AuthSuccess,
// Pending for the two challenge outcomes and neither for AuthFailed, which
// also sets Failure.
type Result struct {
	Outcome     models.AuthOutcome
	Session     provider.Session
	Pending     *PendingSession
	DisplayName string
	Failure     Failure
}

// Verification is the outcome of submitting a second factor code. Whatever
// the Failure, the pending login stays registered until a code is accepted.
type Verification struct {
	Accepted    bool
	DisplayName string
	Failure     Failure
}

// Service is the entry point used by the Discord handlers. Every method
// blocks on provider I/O and honours ctx; none of them return provider errors.
type Service struct {
	factory  provider.Factory
	vault    Vault
	pending  *PendingRegistry
	logger   *logging.Logger
	observer Observer
	now      func() time.Time
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithObserver(o Observer) Option {
	return func(s *Service) {
		s.observer = o
	}
}

// WithPendingRegistry shares a registry, e.g. with the cleanup job.
func WithPendingRegistry(r *PendingRegistry) Option {
	return func(s *Service) {
		s.pending = r
	}
}

// NewService creates the service.
func NewService(factory provider.Factory, vault Vault, opts ...Option) *Service {
	s := &Service{
		factory: factory,
		vault:   vault,
		logger:  logging.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pending == nil {
		s.pending = NewPendingRegistry(0)
	}
	return s
}

// Pending exposes the registry of logins waiting for a code.
func (s *Service) Pending() *PendingRegistry {
	return s.pending
}

// PendingFor returns the user's login waiting for a code, if any.
func (s *Service) PendingFor(userID string) (*PendingSession, bool) {
	return s.pending.Get(userID)
}

// LoginRequest selects between the two login strategies.
type LoginRequest struct {
	UserID           string
	Username         string
	Password         string
	UseStoredSession bool
}

// Login resumes the stored session when asked to and otherwise signs in with
// the supplied credentials. The two paths never fall back to each other.
func (s *Service) Login(ctx context.Context, req LoginRequest) Result {
	if req.UseStoredSession {
		return s.ResumeLogin(ctx, req.UserID)
	}
	return s.BootstrapLogin(ctx, req.UserID, req.Username, req.Password)
}

// ResumeLogin checks the stored cookies. Only AuthSuccess or AuthFailed can
// come back; a resumed session is never mid challenge.
func (s *Service) ResumeLogin(ctx context.Context, userID string) Result {
	session, err := s.vault.Resume(ctx, userID)
	if err != nil {
		s.observeLogin(PathResume, models.AuthFailed)
		return Result{Outcome: models.AuthFailed, Failure: resumeFailure(err)}
	}
	s.observeLogin(PathResume, models.AuthSuccess)
	return Result{Outcome: models.AuthSuccess, Session: session}
}

// BootstrapLogin signs in with username and password. On AuthSuccess the
// session cookies are saved. On a challenge the returned PendingSession is
// also registered under userID until a code is accepted.
func (s *Service) BootstrapLogin(ctx context.Context, userID, username, password string) Result {
	username = strings.TrimSpace(username)
	if userID == "" || username == "" || password == "" {
		s.logger.WarnWithContext(ctx, "login rejected: missing credentials", "user_id", userID)
		s.observeLogin(PathFresh, models.AuthFailed)
		return Result{Outcome: models.AuthFailed, Failure: FailureRejected}
	}

	session := s.factory.NewSession(username, password)
	user, err := session.CurrentUser(ctx)
	if err != nil {
		outcome := Classify(err)
		s.observeLogin(PathFresh, outcome)

		if !outcome.NeedsChallenge() {
			s.logger.WarnWithContext(ctx, "vrchat login failed", "user_id", userID, "error", err)
			s.logger.Audit(ctx, logging.NewAuditEvent(logging.LoginFailed, "login", logging.StatusFailure).
				WithUserID(userID).
				WithError(failureReason(err)))
			return Result{Outcome: models.AuthFailed, Failure: failureKind(err)}
		}

		pending := &PendingSession{
			UserID:    userID,
			Challenge: outcome,
			CreatedAt: s.now(),
			username:  username,
			password:  password,
			session:   session,
		}
		s.pending.Put(pending)
		s.reportPending()
		s.logger.InfoWithContext(ctx, "vrchat login needs second factor", "user_id", userID, "challenge", outcome.String())
		return Result{Outcome: outcome, Pending: pending}
	}

	if err := s.persist(ctx, userID, username, password, session); err != nil {
		s.observeLogin(PathFresh, models.AuthFailed)
		return Result{Outcome: models.AuthFailed, Failure: FailureStorage}
	}

	s.observeLogin(PathFresh, models.AuthSuccess)
	s.pending.Remove(userID, nil)
	s.reportPending()
	s.logger.Audit(ctx, logging.NewAuditEvent(logging.CredentialLinked, "login", logging.StatusSuccess).
		WithUserID(userID).
		WithResource(user.ID))
	return Result{Outcome: models.AuthSuccess, Session: session, DisplayName: user.DisplayName}
}

// VerifyEmail submits an emailed code for p. A rejected code leaves p ready
// for another attempt.
func (s *Service) VerifyEmail(ctx context.Context, p *PendingSession, code string) Verification {
	return s.verify(ctx, p, KindEmail, code)
}

// VerifyTOTP submits an authenticator app code for p.
func (s *Service) VerifyTOTP(ctx context.Context, p *PendingSession, code string) Verification {
	return s.verify(ctx, p, KindTOTP, code)
}

func (s *Service) verify(ctx context.Context, p *PendingSession, kind, code string) Verification {
	if p == nil {
		return Verification{Failure: FailureRejected}
	}
	code = normalizeCode(code)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done {
		return Verification{Accepted: true, DisplayName: p.displayName}
	}
	if code == "" {
		s.rejected(ctx, p, kind, "empty code")
		return Verification{Failure: FailureRejected}
	}

	var (
		ok  bool
		err error
	)
	if kind == KindEmail {
		ok, err = p.session.VerifyEmailCode(ctx, code)
	} else {
		ok, err = p.session.VerifyTOTPCode(ctx, code)
	}
	if err != nil || !ok {
		s.rejected(ctx, p, kind, failureReason(err))
		return Verification{Failure: failureKind(err)}
	}

	user, err := p.session.CurrentUser(ctx)
	if err != nil {
		s.logger.WarnWithContext(ctx, "identity check after verified code failed", "user_id", p.UserID, "error", err)
		s.rejected(ctx, p, kind, failureReason(err))
		return Verification{Failure: failureKind(err)}
	}

	if err := s.persist(ctx, p.UserID, p.username, p.password, p.session); err != nil {
		s.rejected(ctx, p, kind, "credentials could not be stored")
		return Verification{Failure: FailureStorage}
	}

	p.done = true
	p.displayName = user.DisplayName
	p.password = ""
	s.pending.Remove(p.UserID, p)
	s.reportPending()

	if s.observer != nil {
		s.observer.ObserveMFA(kind, true)
	}
	s.logger.Audit(ctx, logging.NewAuditEvent(logging.MFAVerified, "verify "+kind, logging.StatusSuccess).
		WithUserID(p.UserID).
		WithResource(user.ID))
	s.logger.Audit(ctx, logging.NewAuditEvent(logging.CredentialLinked, "login", logging.StatusSuccess).
		WithUserID(p.UserID).
		WithResource(user.ID).
		WithDetail("mfa", kind))
	return Verification{Accepted: true, DisplayName: user.DisplayName}
}

// ForgetCredentials deletes the stored record and any pending login so the
// user can link again from scratch.
func (s *Service) ForgetCredentials(ctx context.Context, userID string) error {
	s.pending.Remove(userID, nil)
	s.reportPending()

	removed, err := s.vault.Forget(ctx, userID)
	if err != nil {
		s.logger.ErrorWithContext(ctx, "failed to forget credentials", "user_id", userID, "error", err)
		s.logger.Audit(ctx, logging.NewAuditEvent(logging.CredentialForgotten, "forget", logging.StatusFailure).
			WithUserID(userID).
			WithError(err.Error()))
		return err
	}
	s.logger.Audit(ctx, logging.NewAuditEvent(logging.CredentialForgotten, "forget", logging.StatusSuccess).
		WithUserID(userID).
		WithDetail("removed", removed))
	return nil
}

// HasCredentials reports whether userID has a stored record.
func (s *Service) HasCredentials(ctx context.Context, userID string) (bool, error) {
	return s.vault.Exists(ctx, userID)
}

// PrunePending drops expired pending logins.
func (s *Service) PrunePending() int {
	n := s.pending.Prune()
	if n > 0 {
		s.reportPending()
	}
	return n
}

func (s *Service) persist(ctx context.Context, userID, username, password string, session provider.Session) error {
	authToken, twoFactorToken := session.SessionTokens()
	err := s.vault.Save(ctx, models.CredentialBundle{
		UserID:         userID,
		Username:       username,
		Password:       password,
		AuthToken:      authToken,
		TwoFactorToken: twoFactorToken,
	})
	if err != nil {
		s.logger.ErrorWithContext(ctx, "failed to store credentials", "user_id", userID, "error", err)
	}
	return err
}

func (s *Service) rejected(ctx context.Context, p *PendingSession, kind, reason string) {
	if s.observer != nil {
		s.observer.ObserveMFA(kind, false)
	}
	s.logger.InfoWithContext(ctx, "second factor not accepted", "user_id", p.UserID, "kind", kind, "reason", reason)
	s.logger.Audit(ctx, logging.NewAuditEvent(logging.MFARejected, "verify "+kind, logging.StatusFailure).
		WithUserID(p.UserID).
		WithError(reason))
}

func (s *Service) observeLogin(path string, outcome models.AuthOutcome) {
	if s.observer != nil {
		s.observer.ObserveLogin(path, outcome)
	}
}

func (s *Service) reportPending() {
	if s.observer != nil {
		s.observer.SetPendingLogins(s.pending.Len())
	}
}

// normalizeCode strips the spaces and dashes people paste from authenticator apps.
func normalizeCode(code string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' || r == '\t' {
			return -1
		}
		return r
	}, code)
}

// failureReason describes err without leaking provider payloads into audit logs.
func failureReason(err error) string {
	if err == nil {
		return "code rejected"
	}
	if pe, ok := provider.AsError(err); ok {
		if pe.Status != 0 {
			return pe.Kind.String() + " " + http.StatusText(pe.Status)
		}
		return pe.Kind.String()
	}
	return "unexpected error"
}

// failureKind maps a provider error to the Failure shown to the user. A nil
// error is a plain "no" from VRChat.
func failureKind(err error) Failure {
	if provider.IsOutage(err) {
		return FailureUnavailable
	}
	return FailureRejected
}

// resumeFailure classifies a failed resume: a missing or unreadable record
// and a rejected session mean linking again, anything else from the store is
// a storage problem.
func resumeFailure(err error) Failure {
	if errors.IsNotFound(err) || errors.IsCrypto(err) {
		return FailureRejected
	}
	if _, ok := provider.AsError(err); ok {
		return failureKind(err)
	}
	return FailureStorage
}
