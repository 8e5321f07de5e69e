// Package providertest offers an in-memory provider.Factory for tests. It
// follows VRChat's conventions, including the 200-status second factor signal.
package providertest

import (
	"context"
	"sync"

	"github.com/vrceventbot/vrceventbot/internal/models"
	"github.com/vrceventbot/vrceventbot/internal/provider"
)

// Challenge names the second factor an account asks for.
type Challenge string

const (
	ChallengeNone  Challenge = ""
	ChallengeEmail Challenge = "email"
	ChallengeTOTP  Challenge = "totp"
)

// Account is one fake VRChat account. AuthToken and TwoFactorToken are the
// cookie values handed out on login and on a verified code.
type Account struct {
	UserID         string
	DisplayName    string
	Username       string
	Password       string
	Challenge      Challenge
	ValidCode      string
	AuthToken      string
	TwoFactorToken string
	Groups         []models.GroupMembership
}

// Provider is a goroutine safe fake VRChat.
type Provider struct {
	mu       sync.Mutex
	accounts []*Account
	groups   map[string]*models.Group

	// Err, when set, fails every call as a transport error.
	Err error

	checks   int
	verifies int
}

// New creates a provider with the given accounts.
func New(accounts ...*Account) *Provider {
	return &Provider{accounts: accounts, groups: make(map[string]*models.Group)}
}

// AddGroup registers group metadata served by GetGroup.
func (p *Provider) AddGroup(g models.Group) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.groups[g.ID] = &g
}

// SetError switches transport failures on or off.
func (p *Provider) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Err = err
}

// ExpireSessions rotates the auth cookie of the account with username, so
// sessions resumed from the old cookie are rejected.
func (p *Provider) ExpireSessions(username string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if a := p.byUsername(username); a != nil {
		a.AuthToken += "-rotated"
	}
}

// IdentityChecks counts CurrentUser calls.
func (p *Provider) IdentityChecks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checks
}

// Verifies counts verify calls of either kind.
func (p *Provider) Verifies() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.verifies
}

func (p *Provider) NewSession(username, password string) provider.Session {
	return &Session{p: p, username: username, password: password}
}

func (p *Provider) ResumeSession(authToken, twoFactorToken string) provider.Session {
	return &Session{p: p, auth: authToken, twoFactor: twoFactorToken}
}

var _ provider.Factory = (*Provider)(nil)

func (p *Provider) byAuth(token string) *Account {
	for _, a := range p.accounts {
		if token != "" && a.AuthToken == token {
			return a
		}
	}
	return nil
}

func (p *Provider) byUsername(name string) *Account {
	for _, a := range p.accounts {
		if a.Username == name {
			return a
		}
	}
	return nil
}

func (p *Provider) byID(id string) *Account {
	for _, a := range p.accounts {
		if a.UserID == id {
			return a
		}
	}
	return nil
}

// Session is a fake provider.Session.
type Session struct {
	p         *Provider
	mu        sync.Mutex
	username  string
	password  string
	auth      string
	twoFactor string
}

var _ provider.Session = (*Session)(nil)

func (s *Session) SessionTokens() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auth, s.twoFactor
}

func (s *Session) SetSessionTokens(authToken, twoFactorToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if authToken != "" {
		s.auth = authToken
	}
	if twoFactorToken != "" {
		s.twoFactor = twoFactorToken
	}
}

func (s *Session) CurrentUser(ctx context.Context) (*models.CurrentUser, error) {
	const op = "current user"
	if err := ctx.Err(); err != nil {
		return nil, &provider.Error{Op: op, Kind: provider.KindTransport, Err: err}
	}

	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.p.checks++
	if s.p.Err != nil {
		return nil, &provider.Error{Op: op, Kind: provider.KindTransport, Err: s.p.Err}
	}

	var acct *Account
	if s.auth != "" {
		acct = s.p.byAuth(s.auth)
		if acct == nil {
			return nil, unauthorized(op, "Missing Credentials")
		}
	} else {
		acct = s.p.byUsername(s.username)
		if acct == nil || acct.Password != s.password {
			return nil, unauthorized(op, "Invalid Username/Email or Password")
		}
		s.auth = acct.AuthToken
	}

	if acct.Challenge != ChallengeNone && s.twoFactor != acct.TwoFactorToken {
		msg := provider.TOTPChallengeMessage
		if acct.Challenge == ChallengeEmail {
			msg = provider.EmailChallengeMessage
		}
		return nil, &provider.Error{Op: op, Kind: provider.KindUnauthorized, Status: 200, Message: msg}
	}

	return &models.CurrentUser{ID: acct.UserID, DisplayName: acct.DisplayName, Username: acct.Username}, nil
}

func (s *Session) VerifyEmailCode(ctx context.Context, code string) (bool, error) {
	return s.verify(ctx, "verify email code", ChallengeEmail, code)
}

func (s *Session) VerifyTOTPCode(ctx context.Context, code string) (bool, error) {
	return s.verify(ctx, "verify totp code", ChallengeTOTP, code)
}

func (s *Session) verify(ctx context.Context, op string, kind Challenge, code string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, &provider.Error{Op: op, Kind: provider.KindTransport, Err: err}
	}

	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.p.verifies++
	if s.p.Err != nil {
		return false, &provider.Error{Op: op, Kind: provider.KindTransport, Err: s.p.Err}
	}
	acct := s.p.byAuth(s.auth)
	if acct == nil {
		return false, unauthorized(op, "Missing Credentials")
	}
	if acct.Challenge != kind || code != acct.ValidCode {
		return false, &provider.Error{Op: op, Kind: provider.KindStatus, Status: 400, Message: "Invalid 2FA code"}
	}
	s.twoFactor = acct.TwoFactorToken
	return true, nil
}

func (s *Session) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	const op = "get group"
	if err := ctx.Err(); err != nil {
		return nil, &provider.Error{Op: op, Kind: provider.KindTransport, Err: err}
	}
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	if s.p.Err != nil {
		return nil, &provider.Error{Op: op, Kind: provider.KindTransport, Err: s.p.Err}
	}
	g, ok := s.p.groups[groupID]
	if !ok {
		return nil, &provider.Error{Op: op, Kind: provider.KindStatus, Status: 404, Message: "Group not found"}
	}
	cp := *g
	return &cp, nil
}

func (s *Session) ListUserGroups(ctx context.Context, userID string) ([]models.GroupMembership, error) {
	const op = "list user groups"
	if err := ctx.Err(); err != nil {
		return nil, &provider.Error{Op: op, Kind: provider.KindTransport, Err: err}
	}
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	if s.p.Err != nil {
		return nil, &provider.Error{Op: op, Kind: provider.KindTransport, Err: s.p.Err}
	}
	acct := s.p.byID(userID)
	if acct == nil {
		return nil, &provider.Error{Op: op, Kind: provider.KindStatus, Status: 404, Message: "User not found"}
	}
	return append([]models.GroupMembership(nil), acct.Groups...), nil
}

func unauthorized(op, msg string) error {
	return &provider.Error{Op: op, Kind: provider.KindUnauthorized, Status: 401, Message: msg}
}
