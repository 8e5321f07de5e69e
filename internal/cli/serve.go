package cli

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/vrceventbot/vrceventbot/internal/api"
	"github.com/vrceventbot/vrceventbot/internal/auth"
	"github.com/vrceventbot/vrceventbot/internal/cleanup"
	"github.com/vrceventbot/vrceventbot/internal/config"
	"github.com/vrceventbot/vrceventbot/internal/discord"
	"github.com/vrceventbot/vrceventbot/internal/groups"
	"github.com/vrceventbot/vrceventbot/internal/logging"
	"github.com/vrceventbot/vrceventbot/internal/metrics"
	"github.com/vrceventbot/vrceventbot/internal/store"
	"github.com/vrceventbot/vrceventbot/internal/vault"
	"github.com/vrceventbot/vrceventbot/internal/vrchat"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s", "run"},
	Short:   "Connect to Discord and start the ops server",
	Long: `Start VRCEventBot in main mode.

This command opens the database, creates the sealing secret on first
start, connects to the Discord gateway, registers the slash commands and
serves /health, /metrics and /status on the ops port.

Example:
  vrceventbot serve --config config.yaml

The config file is watched; log level changes apply without a restart.`,
	RunE: runServe,
}

var serveFlags struct {
	Host string
	Port int
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.Host, "host", "", "Ops server host (overrides config)")
	serveCmd.Flags().IntVar(&serveFlags.Port, "port", 0, "Ops server port (overrides config)")

	RootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(globalFlags.Config)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if globalFlags.DBPath != "" {
		cfg.Store.Path = globalFlags.DBPath
	}
	if serveFlags.Host != "" {
		cfg.Server.Host = serveFlags.Host
	}
	if serveFlags.Port != 0 {
		cfg.Server.HTTPPort = serveFlags.Port
	}

	logger := logging.NewLogger(
		logging.WithLevel(logging.ParseLevel(cfg.Logging.Level)),
		logging.WithService(cfg.Logging.Service),
	)
	if globalFlags.Verbose {
		logger.SetLevel(logging.LevelDebug)
	}

	gateway, err := discord.NewSessionClient(cfg.Discord.Token)
	if err != nil {
		return err
	}

	a, err := newApp(cfg, logger, gateway)
	if err != nil {
		return err
	}

	ctx, stop := api.SignalContext(cmd.Context())
	defer stop()

	watchConfig(ctx, loader, logger)
	return a.run(ctx)
}

// watchConfig applies log level changes from the config file while running.
func watchConfig(ctx context.Context, loader *config.Loader, logger *logging.Logger) {
	loader.SetOnChange(func(cfg *config.Config) {
		level := logging.ParseLevel(cfg.Logging.Level)
		logger.SetLevel(level)
		logger.Audit(ctx, logging.NewAuditEvent(logging.ConfigChange, "reload", logging.StatusSuccess).
			WithResource(loader.Path()).
			WithDetail("log_level", string(level)))
	})
	loader.SetOnError(func(err error) {
		logger.Warn("config reload failed", "path", loader.Path(), "error", err)
	})
	if err := loader.Watch(ctx); err != nil {
		logger.Warn("config hot reload disabled", "path", loader.Path(), "error", err)
	}
}

// app holds the long running components of the serve command.
type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	store   *store.SQLiteStore
	metrics *metrics.Metrics
	vault   *vault.CredentialStore
	auth    *auth.Service
	groups  *groups.Service
	bot     *discord.Bot
	server  *api.Server
	cleanup *cleanup.Manager
}

// newApp builds every component from cfg. The secret is created here on first
// start; failing to read or create it stops the process because nothing can be
// sealed or opened without it.
func newApp(cfg *config.Config, logger *logging.Logger, gateway discord.Gateway) (*app, error) {
	st, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	secret, err := vault.NewSecretManager(st.Settings()).GetOrCreate()
	if err != nil {
		st.Close()
		return nil, err
	}
	cipher, err := vault.NewCipher(secret)
	if err != nil {
		st.Close()
		return nil, err
	}
	logger.Info("credential secret ready", "fingerprint", vault.Fingerprint(secret))

	records, err := openRecords(cfg, st)
	if err != nil {
		st.Close()
		return nil, err
	}

	m := metrics.NewMetrics("vrceventbot")

	client := vrchat.NewClient(
		vrchat.WithBaseURL(cfg.VRChat.BaseURL),
		vrchat.WithUserAgent(cfg.VRChat.UserAgent),
		vrchat.WithTimeout(cfg.VRChat.Timeout),
		vrchat.WithRateLimit(cfg.VRChat.RequestsPerSecond, cfg.VRChat.Burst),
		vrchat.WithUTLS(cfg.VRChat.UTLS),
		vrchat.WithGroupCache(cfg.VRChat.CacheGroups),
		vrchat.WithBreaker(cfg.VRChat.BreakerThreshold, cfg.VRChat.BreakerCooldown),
		vrchat.WithLogger(logger),
		vrchat.WithObserver(m),
	)

	creds := vault.NewCredentialStore(records, cipher, client,
		vault.WithLogger(logger),
		vault.WithObserver(m),
	)

	authSvc := auth.NewService(client, creds,
		auth.WithLogger(logger),
		auth.WithObserver(m),
		auth.WithPendingRegistry(auth.NewPendingRegistry(cfg.Discord.PendingLoginTTL)),
	)

	groupSvc := groups.NewService(st, st.Settings(), logger)

	bot := discord.NewBot(authSvc, groupSvc, &discord.BotOptions{
		API:         gateway,
		RateLimiter: discord.NewUserRateLimiter(cfg.Discord.CommandsPerMinute),
		Recorder:    m,
		Logger:      logger,
		OwnerID:     cfg.Discord.OwnerID,
		GuildID:     cfg.Discord.GuildID,
	})

	a := &app{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		metrics: m,
		vault:   creds,
		auth:    authSvc,
		groups:  groupSvc,
		bot:     bot,
	}

	if cfg.Server.Enabled {
		a.server = api.NewServer(cfg.Server, api.Deps{
			Store:    st,
			Pending:  authSvc.Pending(),
			Mode:     groupSvc.Mode,
			Provider: client,
			Metrics:  m,
			Logger:   logger,
			Version:  Version,
		})
	}

	if cfg.Cleanup.Enabled {
		mgr := cleanup.NewManager(cleanup.Config{
			Interval:          cfg.Cleanup.Interval,
			RetentionPolicies: cleanup.DefaultPolicies(cfg.Cleanup.JoinedCacheRetention),
			VacuumEnabled:     cfg.Cleanup.VacuumEnabled,
			VacuumInterval:    cfg.Cleanup.VacuumInterval,
		}, st.DB(), m)
		mgr.GetCleaner().Register(cleanup.TableJoinedGroups, st.DeleteJoinedBefore)
		mgr.SetPendingPruner(authSvc)
		mgr.SetLogger(logger)
		a.cleanup = mgr
	}

	return a, nil
}

// run starts the bot and its background services, blocks until ctx is done
// or the ops server fails, then shuts everything down.
func (a *app) run(ctx context.Context) error {
	defer func() {
		if err := a.store.Close(); err != nil {
			a.logger.Error("failed to close store", "error", err)
		}
	}()

	if users, err := a.vault.List(ctx); err == nil {
		a.metrics.SetLinkedUsers(len(users))
	}

	if err := a.bot.Start(); err != nil {
		return fmt.Errorf("failed to start discord bot: %w", err)
	}
	a.logger.Info("serving", "mode", string(a.groups.Mode()), "vault_backend", a.cfg.Vault.Backend)

	if a.cleanup != nil {
		if err := a.cleanup.Start(ctx); err != nil {
			a.logger.Warn("cleanup manager not started", "error", err)
		}
	}

	serverErr := make(chan error, 1)
	var wg sync.WaitGroup
	if a.server != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serverErr <- a.server.Run()
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown requested")
	case runErr = <-serverErr:
		if runErr != nil {
			a.logger.Error("ops server stopped", "error", runErr)
		}
	}

	a.shutdown()
	wg.Wait()
	return runErr
}

func (a *app) shutdown() {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := a.bot.Stop(); err != nil {
		a.logger.Error("error stopping discord bot", "error", err)
	}
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Error("error during server shutdown", "error", err)
		}
	}
	if a.cleanup != nil {
		if err := a.cleanup.Stop(); err != nil {
			a.logger.Error("error stopping cleanup manager", "error", err)
		}
	}
	a.logger.Info("graceful shutdown completed")
}
