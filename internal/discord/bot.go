// Package discord is the bot's Discord surface: slash commands, buttons,
// select menus and modals wired to the auth and groups services.
package discord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/vrceventbot/vrceventbot/internal/auth"
	"github.com/vrceventbot/vrceventbot/internal/groups"
	"github.com/vrceventbot/vrceventbot/internal/logging"
)

// Interaction results reported to the Recorder.
const (
	resultOK          = "ok"
	resultFailed      = "failed"
	resultRejected    = "rejected"
	resultDenied      = "denied"
	resultRateLimited = "rate_limited"
	resultUnavailable = "unavailable"
	resultError       = "error"
)

// Recorder receives one call per handled interaction.
type Recorder interface {
	RecordInteraction(command, result string)
}

// BotOptions contains optional bot collaborators.
type BotOptions struct {
	API         BotAPI
	RateLimiter *UserRateLimiter
	Recorder    Recorder
	Logger      *logging.Logger
	OwnerID     string
	// GuildID registers commands on one guild; empty registers globally.
	GuildID string
}

// Bot routes Discord interactions to the services.
type Bot struct {
	api     BotAPI
	auth    *auth.Service
	groups  *groups.Service
	limiter *UserRateLimiter
	rec     Recorder
	logger  *logging.Logger
	ownerID string
	guildID string

	// Context for graceful shutdown
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// NewBot creates a bot. opts.API must be set; Start additionally needs it to
// be a Gateway.
func NewBot(authSvc *auth.Service, groupSvc *groups.Service, opts *BotOptions) *Bot {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bot{
		auth:    authSvc,
		groups:  groupSvc,
		limiter: NewUserRateLimiter(20),
		logger:  logging.Nop(),
		ctx:     ctx,
		cancel:  cancel,
	}
	if opts != nil {
		b.api = opts.API
		b.rec = opts.Recorder
		b.ownerID = opts.OwnerID
		b.guildID = opts.GuildID
		if opts.RateLimiter != nil {
			b.limiter = opts.RateLimiter
		}
		if opts.Logger != nil {
			b.logger = opts.Logger
		}
	}
	return b
}

// Start connects to the gateway, registers the commands and starts the
// limiter sweeper.
func (b *Bot) Start() error {
	gw, ok := b.api.(Gateway)
	if !ok {
		return fmt.Errorf("discord gateway is not configured")
	}
	if err := gw.Open(b.HandleInteraction); err != nil {
		return err
	}
	if err := gw.RegisterCommands(b.guildID, Commands()); err != nil {
		_ = gw.Close()
		return err
	}

	b.wg.Add(1)
	go b.sweepLimiter()

	b.logger.Info("discord bot started", "guild_id", b.guildID)
	return nil
}

// Stop closes the gateway and waits for in-flight interactions.
func (b *Bot) Stop() error {
	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()
	b.cancel()

	var closeErr error
	if gw, ok := b.api.(Gateway); ok {
		closeErr = gw.Close()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return closeErr
	case <-time.After(30 * time.Second):
		return fmt.Errorf("timeout waiting for bot to stop")
	}
}

func (b *Bot) sweepLimiter() {
	defer b.wg.Done()
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			b.limiter.Sweep()
		}
	}
}

// HandleInteraction processes one interaction on the calling goroutine.
// discordgo runs every event handler on its own goroutine.
func (b *Bot) HandleInteraction(ic *discordgo.InteractionCreate) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.wg.Add(1)
	b.mu.Unlock()
	defer b.wg.Done()

	if ic == nil || ic.Interaction == nil {
		return
	}
	i := ic.Interaction
	userID := interactionUser(i)
	if userID == "" {
		return
	}

	ctx := logging.WithCorrelationID(b.ctx, logging.GenerateCorrelationID())
	name := interactionName(i)

	defer func() {
		if r := recover(); r != nil {
			b.logger.ErrorWithContext(ctx, "interaction handler panicked", "interaction", name, "panic", fmt.Sprint(r))
			b.record(name, resultError)
		}
	}()

	if !b.limiter.Allow(userID) {
		b.reply(ctx, i, msgRateLimited, nil)
		b.record(name, resultRateLimited)
		return
	}

	b.logger.DebugWithContext(ctx, "interaction received",
		"interaction", name,
		"user_id", userID,
		"guild_id", i.GuildID,
	)
	b.record(name, b.dispatch(ctx, i))
}

func (b *Bot) dispatch(ctx context.Context, i *discordgo.Interaction) string {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		switch i.ApplicationCommandData().Name {
		case cmdLogin:
			return b.handleLogin(ctx, i)
		case cmdLogout:
			return b.handleLogout(ctx, i)
		case cmdManage:
			return b.handleManage(ctx, i)
		case cmdConfig:
			return b.handleConfig(ctx, i)
		}
	case discordgo.InteractionMessageComponent:
		data := i.MessageComponentData()
		switch data.CustomID {
		case idLoginForget:
			return b.handleLoginForget(ctx, i)
		case idLoginResume:
			return b.handleLoginResume(ctx, i)
		case idMFAEmail:
			return b.handleCodeButton(ctx, i, idMFAEmailForm, "Email verification")
		case idMFATOTP:
			return b.handleCodeButton(ctx, i, idMFATOTPForm, "Authenticator code")
		case idManageSelect:
			return b.handleMenuSelect(ctx, i, data.Values)
		case idManageDelete:
			return b.handleMenuDelete(ctx, i, data.Values)
		}
	case discordgo.InteractionModalSubmit:
		data := i.ModalSubmitData()
		switch data.CustomID {
		case idLoginModal:
			return b.handleLoginSubmit(ctx, i, data)
		case idMFAEmailForm:
			return b.handleCodeSubmit(ctx, i, data, auth.KindEmail)
		case idMFATOTPForm:
			return b.handleCodeSubmit(ctx, i, data, auth.KindTOTP)
		}
	}
	b.logger.WarnWithContext(ctx, "unhandled interaction", "interaction", interactionName(i))
	b.reply(ctx, i, msgUnknownAction, nil)
	return resultFailed
}

func (b *Bot) record(name, result string) {
	if b.rec != nil {
		b.rec.RecordInteraction(name, result)
	}
}

func (b *Bot) respond(ctx context.Context, i *discordgo.Interaction, resp *discordgo.InteractionResponse) bool {
	if err := b.api.InteractionRespond(i, resp); err != nil {
		b.logger.WarnWithContext(ctx, "failed to respond to interaction", "error", err)
		return false
	}
	return true
}

// reply sends an ephemeral message.
func (b *Bot) reply(ctx context.Context, i *discordgo.Interaction, content string, components []discordgo.MessageComponent) {
	b.respond(ctx, i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:    content,
			Flags:      discordgo.MessageFlagsEphemeral,
			Components: components,
		},
	})
}

// update replaces the message a component was attached to.
func (b *Bot) update(ctx context.Context, i *discordgo.Interaction, content string) {
	b.respond(ctx, i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    content,
			Components: []discordgo.MessageComponent{},
		},
	})
}

// deferReply acknowledges within Discord's three second window before
// provider I/O; the answer follows through editReply.
func (b *Bot) deferReply(ctx context.Context, i *discordgo.Interaction) bool {
	return b.respond(ctx, i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
}

func (b *Bot) editReply(ctx context.Context, i *discordgo.Interaction, content string, components []discordgo.MessageComponent) {
	if components == nil {
		components = []discordgo.MessageComponent{}
	}
	edit := &discordgo.WebhookEdit{Content: &content, Components: &components}
	if err := b.api.InteractionResponseEdit(i, edit); err != nil {
		b.logger.WarnWithContext(ctx, "failed to edit interaction response", "error", err)
	}
}

// isOwner reports whether the invoking user may change bot wide settings.
// Without a configured owner, server administrators qualify.
func (b *Bot) isOwner(i *discordgo.Interaction) bool {
	if b.ownerID != "" {
		return interactionUser(i) == b.ownerID
	}
	return i.Member != nil && i.Member.Permissions&discordgo.PermissionAdministrator != 0
}

func interactionUser(i *discordgo.Interaction) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func memberRoles(i *discordgo.Interaction) []string {
	if i.Member == nil {
		return nil
	}
	return i.Member.Roles
}

// interactionName is the metric label: a command name or a custom id, both
// drawn from a fixed set.
func interactionName(i *discordgo.Interaction) string {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		return i.ApplicationCommandData().Name
	case discordgo.InteractionMessageComponent:
		return i.MessageComponentData().CustomID
	case discordgo.InteractionModalSubmit:
		return i.ModalSubmitData().CustomID
	default:
		return "other"
	}
}
