package models

import "strings"

// BotMode decides who owns the managed group list.
type BotMode string

const (
	// ModeGuild keeps one group list per Discord server, managed by the owner.
	ModeGuild BotMode = "guild"
	// ModeUser keeps one group list per Discord user.
	ModeUser BotMode = "user"
)

// ParseBotMode falls back to ModeGuild for anything unrecognized.
func ParseBotMode(s string) BotMode {
	switch BotMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeUser:
		return ModeUser
	default:
		return ModeGuild
	}
}

// Scope addresses a group list: a guild id in guild mode, a user id in user mode.
type Scope struct {
	Mode    BotMode
	OwnerID string
}

// ScopeFor picks the owner id that applies under mode.
func ScopeFor(mode BotMode, guildID, userID string) Scope {
	if mode == ModeUser {
		return Scope{Mode: ModeUser, OwnerID: userID}
	}
	return Scope{Mode: ModeGuild, OwnerID: guildID}
}
