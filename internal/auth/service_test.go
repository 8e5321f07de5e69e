package auth

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrceventbot/vrceventbot/internal/logging"
	"github.com/vrceventbot/vrceventbot/internal/models"
	"github.com/vrceventbot/vrceventbot/internal/provider"
	"github.com/vrceventbot/vrceventbot/internal/provider/providertest"
	"github.com/vrceventbot/vrceventbot/internal/store"
	"github.com/vrceventbot/vrceventbot/internal/vault"
)

type recorder struct {
	mu      sync.Mutex
	logins  []string
	mfa     []string
	pending int
}

func (r *recorder) ObserveLogin(path string, outcome models.AuthOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logins = append(r.logins, path+":"+outcome.String())
}

func (r *recorder) ObserveMFA(kind string, accepted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	r.mfa = append(r.mfa, kind+":"+result)
}

func (r *recorder) SetPendingLogins(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = n
}

type harness struct {
	svc   *Service
	vault *vault.CredentialStore
	fake  *providertest.Provider
	obs   *recorder
	logs  *bytes.Buffer
}

func accounts() []*providertest.Account {
	return []*providertest.Account{
		{UserID: "usr_carol", DisplayName: "Carol", Username: "carol", Password: "pw0", AuthToken: "authTok0"},
		{
			UserID: "usr_bob", DisplayName: "Bob", Username: "bob", Password: "pw2",
			Challenge: providertest.ChallengeEmail, ValidCode: "654321",
			AuthToken: "authTok2", TwoFactorToken: "2faTok2",
		},
		{
			UserID: "usr_dana", DisplayName: "Dana", Username: "dana", Password: "pw3",
			Challenge: providertest.ChallengeTOTP, ValidCode: "123456",
			AuthToken: "authTok3", TwoFactorToken: "2faTok3",
		},
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	secret, err := vault.NewSecretManager(db.Settings()).GetOrCreate()
	require.NoError(t, err)
	cipher, err := vault.NewCipher(secret)
	require.NoError(t, err)

	fake := providertest.New(accounts()...)
	cs := vault.NewCredentialStore(db, cipher, fake)

	logs := &bytes.Buffer{}
	obs := &recorder{}
	svc := NewService(fake, cs,
		WithLogger(logging.NewLogger(logging.WithOutput(logs), logging.WithLevel(logging.LevelDebug))),
		WithObserver(obs),
	)
	return &harness{svc: svc, vault: cs, fake: fake, obs: obs, logs: logs}
}

func TestBootstrapLogin_Outcomes(t *testing.T) {
	tests := []struct {
		name        string
		username    string
		password    string
		want        models.AuthOutcome
		wantSession bool
		wantPending bool
	}{
		{name: "no second factor", username: "carol", password: "pw0", want: models.AuthSuccess, wantSession: true},
		{name: "email challenge", username: "bob", password: "pw2", want: models.AuthEmailRequired, wantPending: true},
		{name: "totp challenge", username: "dana", password: "pw3", want: models.AuthTOTPRequired, wantPending: true},
		{name: "wrong password", username: "bob", password: "nope", want: models.AuthFailed},
		{name: "unknown user", username: "eve", password: "pw", want: models.AuthFailed},
		{name: "empty password", username: "bob", password: "", want: models.AuthFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			res := h.svc.BootstrapLogin(context.Background(), "u1", tt.username, tt.password)

			assert.Equal(t, tt.want, res.Outcome)
			assert.Equal(t, tt.wantSession, res.Session != nil)
			assert.Equal(t, tt.wantPending, res.Pending != nil)
			if tt.want == models.AuthFailed {
				assert.Equal(t, FailureRejected, res.Failure)
			} else {
				assert.Equal(t, FailureNone, res.Failure)
			}

			_, registered := h.svc.PendingFor("u1")
			assert.Equal(t, tt.wantPending, registered)

			exists, err := h.vault.Exists(context.Background(), "u1")
			require.NoError(t, err)
			assert.Equal(t, tt.want == models.AuthSuccess, exists, "only a full login is persisted")
		})
	}
}

func TestBootstrapLogin_SuccessPersistsEmptySecondToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.svc.BootstrapLogin(ctx, "u1", "  carol ", "pw0")
	require.Equal(t, models.AuthSuccess, res.Outcome)
	assert.Equal(t, "Carol", res.DisplayName)

	bundle, err := h.vault.Open(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "carol", bundle.Username)
	assert.Equal(t, "authTok0", bundle.AuthToken)
	assert.Empty(t, bundle.TwoFactorToken)

	assert.Equal(t, models.AuthSuccess, h.svc.ResumeLogin(ctx, "u1").Outcome)
	assert.Contains(t, h.logs.String(), string(logging.CredentialLinked))
}

func TestBootstrapLogin_TransportErrorIsFailure(t *testing.T) {
	h := newHarness(t)
	h.fake.SetError(errors.New("connection reset"))

	res := h.svc.BootstrapLogin(context.Background(), "u1", "carol", "pw0")
	assert.Equal(t, models.AuthFailed, res.Outcome)
	assert.Nil(t, res.Session)
	assert.Nil(t, res.Pending)
	assert.Equal(t, FailureUnavailable, res.Failure)
	assert.Contains(t, h.logs.String(), string(logging.LoginFailed))
}

func TestBootstrapLogin_CancelledContext(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := h.svc.BootstrapLogin(ctx, "u1", "carol", "pw0")
	assert.Equal(t, models.AuthFailed, res.Outcome)
}

func TestLogin_PathsAreDistinct(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// nothing stored: resume fails and does not try the password
	res := h.svc.Login(ctx, LoginRequest{UserID: "u1", Username: "carol", Password: "pw0", UseStoredSession: true})
	assert.Equal(t, models.AuthFailed, res.Outcome)
	assert.Zero(t, h.fake.IdentityChecks())

	res = h.svc.Login(ctx, LoginRequest{UserID: "u1", Username: "carol", Password: "pw0"})
	assert.Equal(t, models.AuthSuccess, res.Outcome)

	res = h.svc.Login(ctx, LoginRequest{UserID: "u1", UseStoredSession: true})
	assert.Equal(t, models.AuthSuccess, res.Outcome)
	require.NotNil(t, res.Session)
	assert.Nil(t, res.Pending)

	assert.Equal(t, []string{"resume:failed", "fresh:success", "resume:success"}, h.obs.logins)
}

// Scenarios B and C: email challenge, two wrong codes, then the right one.
func TestEmailChallenge_RetryThenSucceed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.svc.BootstrapLogin(ctx, "u2", "bob", "pw2")
	require.Equal(t, models.AuthEmailRequired, res.Outcome)
	require.NotNil(t, res.Pending)
	pending := res.Pending

	v := h.svc.VerifyEmail(ctx, pending, "000000")
	assert.False(t, v.Accepted)
	assert.Empty(t, v.DisplayName)

	v = h.svc.VerifyEmail(ctx, pending, "000000")
	assert.False(t, v.Accepted)
	assert.Empty(t, v.DisplayName)
	assert.Equal(t, FailureRejected, v.Failure)

	_, stillPending := h.svc.PendingFor("u2")
	assert.True(t, stillPending)
	assert.False(t, pending.Completed())

	exists, err := h.vault.Exists(ctx, "u2")
	require.NoError(t, err)
	assert.False(t, exists)

	v = h.svc.VerifyEmail(ctx, pending, "654 321")
	assert.True(t, v.Accepted)
	assert.Equal(t, "Bob", v.DisplayName)
	assert.Equal(t, FailureNone, v.Failure)
	assert.True(t, pending.Completed())

	_, stillPending = h.svc.PendingFor("u2")
	assert.False(t, stillPending)

	bundle, err := h.vault.Open(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, "bob", bundle.Username)
	assert.Equal(t, "pw2", bundle.Password)
	assert.Equal(t, "authTok2", bundle.AuthToken)
	assert.Equal(t, "2faTok2", bundle.TwoFactorToken)

	assert.Equal(t, models.AuthSuccess, h.svc.ResumeLogin(ctx, "u2").Outcome)

	// a repeated submit after success does not hit the provider again
	verifies := h.fake.Verifies()
	v = h.svc.VerifyEmail(ctx, pending, "654321")
	assert.True(t, v.Accepted)
	assert.Equal(t, "Bob", v.DisplayName)
	assert.Equal(t, verifies, h.fake.Verifies())

	assert.Equal(t, []string{"email:rejected", "email:rejected", "email:accepted"}, h.obs.mfa)
	assert.Zero(t, h.obs.pending)

	logs := h.logs.String()
	assert.Contains(t, logs, string(logging.MFARejected))
	assert.Contains(t, logs, string(logging.MFAVerified))
	assert.NotContains(t, logs, "pw2")
	assert.NotContains(t, logs, "authTok2")
}

func TestTOTPChallenge(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.svc.BootstrapLogin(ctx, "u3", "dana", "pw3")
	require.Equal(t, models.AuthTOTPRequired, res.Outcome)

	// the email endpoint does not accept a TOTP account's code
	assert.False(t, h.svc.VerifyEmail(ctx, res.Pending, "123456").Accepted)

	v := h.svc.VerifyTOTP(ctx, res.Pending, "123-456")
	assert.True(t, v.Accepted)
	assert.Equal(t, "Dana", v.DisplayName)
	assert.Equal(t, models.AuthSuccess, h.svc.ResumeLogin(ctx, "u3").Outcome)
}

func TestVerify_EdgeCases(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.Equal(t, Verification{Failure: FailureRejected}, h.svc.VerifyEmail(ctx, nil, "654321"))

	res := h.svc.BootstrapLogin(ctx, "u2", "bob", "pw2")
	require.NotNil(t, res.Pending)

	v := h.svc.VerifyEmail(ctx, res.Pending, "   ")
	assert.False(t, v.Accepted)
	assert.Equal(t, FailureRejected, v.Failure)
	assert.Zero(t, h.fake.Verifies(), "blank codes never reach the provider")

	h.fake.SetError(errors.New("timeout"))
	assert.False(t, h.svc.VerifyEmail(ctx, res.Pending, "654321").Accepted)

	h.fake.SetError(nil)
	assert.True(t, h.svc.VerifyEmail(ctx, res.Pending, "654321").Accepted, "a provider outage does not burn the pending login")
}

type failingVault struct {
	Vault
}

func (failingVault) Save(context.Context, models.CredentialBundle) error {
	return errors.New("disk full")
}

func TestVerify_SaveFailureKeepsPending(t *testing.T) {
	fake := providertest.New(accounts()...)
	svc := NewService(fake, failingVault{})
	ctx := context.Background()

	res := svc.BootstrapLogin(ctx, "u2", "bob", "pw2")
	require.NotNil(t, res.Pending)

	v := svc.VerifyEmail(ctx, res.Pending, "654321")
	assert.False(t, v.Accepted)
	assert.Equal(t, FailureStorage, v.Failure)
	_, stillPending := svc.PendingFor("u2")
	assert.True(t, stillPending)

	direct := svc.BootstrapLogin(ctx, "u9", "carol", "pw0")
	assert.Equal(t, models.AuthFailed, direct.Outcome)
	assert.Equal(t, FailureStorage, direct.Failure)
}

func TestVerify_FailureKinds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.svc.BootstrapLogin(ctx, "u3", "dana", "pw3")
	require.NotNil(t, res.Pending)

	assert.Equal(t, FailureRejected, h.svc.VerifyTOTP(ctx, res.Pending, "000000").Failure)

	h.fake.SetError(errors.New("connection refused"))
	v := h.svc.VerifyTOTP(ctx, res.Pending, "123456")
	assert.False(t, v.Accepted)
	assert.Equal(t, FailureUnavailable, v.Failure)

	h.fake.SetError(nil)
	v = h.svc.VerifyTOTP(ctx, res.Pending, "123456")
	assert.Equal(t, Verification{Accepted: true, DisplayName: "Dana"}, v)
}

func TestResumeLogin_FailureKinds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	missing := h.svc.ResumeLogin(ctx, "nobody")
	assert.Equal(t, models.AuthFailed, missing.Outcome)
	assert.Equal(t, FailureRejected, missing.Failure)

	require.Equal(t, models.AuthSuccess, h.svc.BootstrapLogin(ctx, "u1", "carol", "pw0").Outcome)

	h.fake.SetError(errors.New("connection refused"))
	down := h.svc.ResumeLogin(ctx, "u1")
	assert.Equal(t, models.AuthFailed, down.Outcome)
	assert.Nil(t, down.Session)
	assert.Equal(t, FailureUnavailable, down.Failure)

	h.fake.SetError(nil)
	up := h.svc.ResumeLogin(ctx, "u1")
	assert.Equal(t, models.AuthSuccess, up.Outcome)
	assert.Equal(t, FailureNone, up.Failure)
}

type brokenStore struct {
	Vault
}

func (brokenStore) Resume(context.Context, string) (provider.Session, error) {
	return nil, errors.New("database is locked")
}

func TestResumeLogin_StoreErrorIsStorageFailure(t *testing.T) {
	svc := NewService(providertest.New(accounts()...), brokenStore{})
	res := svc.ResumeLogin(context.Background(), "u1")
	assert.Equal(t, models.AuthFailed, res.Outcome)
	assert.Equal(t, FailureStorage, res.Failure)
}

func TestNewLoginReplacesPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.svc.BootstrapLogin(ctx, "u2", "bob", "pw2").Pending
	second := h.svc.BootstrapLogin(ctx, "u2", "bob", "pw2").Pending
	require.NotNil(t, first)
	require.NotNil(t, second)

	current, ok := h.svc.PendingFor("u2")
	require.True(t, ok)
	assert.Same(t, second, current)

	// the superseded handle can still finish; it must not evict the newer one
	assert.True(t, h.svc.VerifyEmail(ctx, first, "654321").Accepted)
	current, ok = h.svc.PendingFor("u2")
	require.True(t, ok)
	assert.Same(t, second, current)
}

func TestForgetCredentials(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.Equal(t, models.AuthSuccess, h.svc.BootstrapLogin(ctx, "u1", "carol", "pw0").Outcome)
	h.svc.BootstrapLogin(ctx, "u1", "bob", "pw2")

	require.NoError(t, h.svc.ForgetCredentials(ctx, "u1"))
	_, pending := h.svc.PendingFor("u1")
	assert.False(t, pending)
	assert.Equal(t, models.AuthFailed, h.svc.ResumeLogin(ctx, "u1").Outcome)

	// forgetting twice is fine
	require.NoError(t, h.svc.ForgetCredentials(ctx, "u1"))
	assert.Contains(t, h.logs.String(), string(logging.CredentialForgotten))
}

func TestConcurrentVerifySameSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.svc.BootstrapLogin(ctx, "u2", "bob", "pw2")
	require.NotNil(t, res.Pending)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if h.svc.VerifyEmail(ctx, res.Pending, "654321").Accepted {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 8, accepted)
	assert.Equal(t, 1, h.fake.Verifies())
}

var _ provider.Factory = (*providertest.Provider)(nil)
