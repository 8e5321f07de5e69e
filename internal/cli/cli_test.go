package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrceventbot/vrceventbot/internal/config"
	"github.com/vrceventbot/vrceventbot/internal/logging"
	"github.com/vrceventbot/vrceventbot/internal/models"
	"github.com/vrceventbot/vrceventbot/internal/store"
	"github.com/vrceventbot/vrceventbot/internal/vault"
)

// execute runs the root command with fresh global flags and captures output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	InitCLI()
	globalFlags = GlobalFlags{}

	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&out)
	RootCmd.SetArgs(args)
	err := RootCmd.Execute()
	return out.String(), err
}

// offlineArgs points the offline commands at a temp database and no config file.
func offlineArgs(t *testing.T) (string, []string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "bot.db")
	return dbPath, []string{"--config", filepath.Join(dir, "missing.yaml"), "--db", dbPath}
}

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "vrceventbot", RootCmd.Use)
	assert.Contains(t, RootCmd.Long, "VRChat")

	InitCLI()
	names := map[string]bool{}
	for _, c := range RootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "secret", "credentials", "doctor", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "VRCEventBot Version: "+Version)

	info := GetVersionInfo()
	assert.NotEmpty(t, info.GoVersion)
	assert.NotEmpty(t, info.OS)
}

func TestSecretCommands(t *testing.T) {
	_, args := offlineArgs(t)

	_, err := execute(t, append([]string{"secret", "fingerprint"}, args...)...)
	assert.ErrorContains(t, err, "no secret")

	out, err := execute(t, append([]string{"secret", "init", "--json"}, args...)...)
	require.NoError(t, err)
	var created SecretInfo
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.True(t, created.Created)
	assert.Len(t, created.Fingerprint, 16)

	out, err = execute(t, append([]string{"secret", "init", "--json"}, args...)...)
	require.NoError(t, err)
	var again SecretInfo
	require.NoError(t, json.Unmarshal([]byte(out), &again))
	assert.False(t, again.Created, "an existing secret is never replaced")
	assert.Equal(t, created.Fingerprint, again.Fingerprint)

	out, err = execute(t, append([]string{"secret", "fingerprint"}, args...)...)
	require.NoError(t, err)
	assert.Contains(t, out, created.Fingerprint)
}

func seedCredentials(t *testing.T, dbPath string, userIDs ...string) {
	t.Helper()
	st, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer st.Close()

	secret, err := vault.NewSecretManager(st.Settings()).GetOrCreate()
	require.NoError(t, err)
	cipher, err := vault.NewCipher(secret)
	require.NoError(t, err)
	creds := vault.NewCredentialStore(st, cipher, nil)
	for _, id := range userIDs {
		require.NoError(t, creds.Save(context.Background(), models.CredentialBundle{
			UserID:    id,
			Username:  "user-" + id,
			Password:  "pw",
			AuthToken: "authcookie_" + id,
		}))
	}
}

func TestCredentialsListAndForget(t *testing.T) {
	dbPath, args := offlineArgs(t)

	out, err := execute(t, append([]string{"credentials", "list"}, args...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "No stored credentials.")

	seedCredentials(t, dbPath, "111", "222")

	out, err = execute(t, append([]string{"credentials", "list", "--json"}, args...)...)
	require.NoError(t, err)
	var infos []CredentialInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	require.Len(t, infos, 2)
	for _, info := range infos {
		assert.Equal(t, recordOK, info.State)
		assert.False(t, info.UpdatedAt.IsZero())
	}
	assert.NotContains(t, out, "authcookie_")

	out, err = execute(t, append([]string{"credentials", "forget", "111"}, args...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Forgot credentials for 111")

	out, err = execute(t, append([]string{"credentials", "forget", "111"}, args...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "No stored credentials for 111")

	out, err = execute(t, append([]string{"credentials", "list"}, args...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "222")
	assert.NotContains(t, out, "111")
}

func TestCredentialsList_WrongSecret(t *testing.T) {
	dbPath, args := offlineArgs(t)
	seedCredentials(t, dbPath, "111")

	st, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Settings().Set(store.SettingVaultSecret, "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="))
	require.NoError(t, st.Close())

	out, err := execute(t, append([]string{"credentials", "list", "--json"}, args...)...)
	require.NoError(t, err)
	var infos []CredentialInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, recordSealed, infos[0].State)
}

func TestDoctor(t *testing.T) {
	_, args := offlineArgs(t)
	out, err := execute(t, append([]string{"doctor", "--json"}, args...)...)
	require.NoError(t, err)

	var report DoctorReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))

	byName := map[string]DoctorCheck{}
	for _, c := range report.Checks {
		byName[c.Name] = c
	}
	assert.Equal(t, statusFail, byName["Config File"].Status)
	assert.Equal(t, statusOK, byName["Database"].Status)
	assert.Equal(t, statusWarn, byName["Secret"].Status)
	assert.Equal(t, statusOK, byName["Credential Records"].Status)
	assert.NotEmpty(t, report.Recommendations)
}

func TestGenerateRecommendations(t *testing.T) {
	recs := generateRecommendations([]DoctorCheck{{Status: statusOK}})
	assert.Equal(t, []string{"System is healthy. No recommendations needed."}, recs)

	recs = generateRecommendations([]DoctorCheck{
		{Category: categoryStorage, Name: "Database", Status: statusFail, Remediation: "fix it"},
		{Status: statusWarn},
	})
	require.Len(t, recs, 2)
	assert.Equal(t, "[Storage] Database: fix it", recs[0])
	assert.Contains(t, recs[1], "1 critical issue(s) and 1 warning(s)")
}

type fakeGateway struct {
	mu         sync.Mutex
	opened     bool
	closed     bool
	registered []*discordgo.ApplicationCommand
}

func (g *fakeGateway) Open(func(*discordgo.InteractionCreate)) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.opened = true
	return nil
}

func (g *fakeGateway) RegisterCommands(guildID string, cmds []*discordgo.ApplicationCommand) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.registered = cmds
	return nil
}

func (g *fakeGateway) InteractionRespond(*discordgo.Interaction, *discordgo.InteractionResponse) error {
	return nil
}

func (g *fakeGateway) InteractionResponseEdit(*discordgo.Interaction, *discordgo.WebhookEdit) error {
	return nil
}

func (g *fakeGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}

func (g *fakeGateway) state() (bool, bool, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.opened, g.closed, len(g.registered)
}

func TestServeApp_StartAndShutdown(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Parse([]byte(`
version: "1"
discord:
  token: test-token
  guild_id: "900"
vault:
  backend: file
  logins_dir: ` + filepath.Join(dir, "logins") + `
store:
  path: ` + filepath.Join(dir, "bot.db") + `
cleanup:
  enabled: true
  interval: 10ms
`))
	require.NoError(t, err)

	gw := &fakeGateway{}
	a, err := newApp(cfg, logging.NewLogger(logging.WithOutput(&bytes.Buffer{})), gw)
	require.NoError(t, err)
	require.NotNil(t, a.cleanup)
	assert.Nil(t, a.server, "ops server is off unless enabled")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	require.Eventually(t, func() bool {
		opened, _, n := gw.state()
		return opened && n == 4
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return a.cleanup.GetStats().TotalRuns > 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
	_, closed, _ := gw.state()
	assert.True(t, closed)
	assert.False(t, a.cleanup.IsRunning())

	// the secret created on first start is reused on the next one
	st, err := store.NewSQLiteStore(cfg.Store.Path)
	require.NoError(t, err)
	defer st.Close()
	ok, err := vault.NewSecretManager(st.Settings()).Exists()
	require.NoError(t, err)
	assert.True(t, ok)
}
