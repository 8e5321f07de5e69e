package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// BotAPI is the part of the Discord REST surface the handlers use.
type BotAPI interface {
	InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse) error
	InteractionResponseEdit(i *discordgo.Interaction, edit *discordgo.WebhookEdit) error
}

// Gateway is a BotAPI that also owns the websocket connection.
type Gateway interface {
	BotAPI
	Open(handler func(*discordgo.InteractionCreate)) error
	RegisterCommands(guildID string, commands []*discordgo.ApplicationCommand) error
	Close() error
}

// SessionClient adapts *discordgo.Session to Gateway.
type SessionClient struct {
	session *discordgo.Session
	remove  func()
}

// NewSessionClient creates a client for a bot token. Nothing is dialled until Open.
func NewSessionClient(token string) (*SessionClient, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds
	return &SessionClient{session: s}, nil
}

// Open registers handler for interaction events and connects.
func (c *SessionClient) Open(handler func(*discordgo.InteractionCreate)) error {
	c.remove = c.session.AddHandler(func(_ *discordgo.Session, ic *discordgo.InteractionCreate) {
		handler(ic)
	})
	if err := c.session.Open(); err != nil {
		c.remove()
		return fmt.Errorf("open discord gateway: %w", err)
	}
	return nil
}

// RegisterCommands replaces the application commands. An empty guildID
// registers them globally.
func (c *SessionClient) RegisterCommands(guildID string, commands []*discordgo.ApplicationCommand) error {
	if c.session.State == nil || c.session.State.User == nil {
		return fmt.Errorf("register commands: gateway not ready")
	}
	_, err := c.session.ApplicationCommandBulkOverwrite(c.session.State.User.ID, guildID, commands)
	if err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	return nil
}

func (c *SessionClient) InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse) error {
	return c.session.InteractionRespond(i, resp)
}

func (c *SessionClient) InteractionResponseEdit(i *discordgo.Interaction, edit *discordgo.WebhookEdit) error {
	_, err := c.session.InteractionResponseEdit(i, edit)
	return err
}

// Close disconnects from the gateway.
func (c *SessionClient) Close() error {
	if c.remove != nil {
		c.remove()
	}
	return c.session.Close()
}

var _ Gateway = (*SessionClient)(nil)
