package discord

import (
	"fmt"
	"strings"

	"github.com/vrceventbot/vrceventbot/internal/models"
)

const (
	msgEmailRequired   = "📧 VRChat sent a verification code to your email. Press **Enter code** and type it in."
	msgTOTPRequired    = "🔐 Your account uses an authenticator app. Press **Enter code** and type the current code."
	msgLoginFailed     = "❌ Login failed. Check your username and password and try again with /login."
	msgCodeRejected    = "❌ That code was not accepted. Check it and press **Enter code** to try again."
	msgNoPendingLogin  = "⌛ No login is waiting for a code. Start again with /login."
	msgStoredInvalid   = "⚠️ Your stored credentials are no longer valid. Re-link your account with /login."
	msgNotLinked       = "🔗 Link your VRChat account with /login first."
	msgAlreadyLinked   = "You already have a linked VRChat account. Use the stored login or forget it and log in again."
	msgForgotten       = "🗑️ Your stored VRChat credentials were removed."
	msgNothingStored   = "No VRChat credentials are stored for you."
	msgRateLimited     = "⏳ Too many requests. Wait a moment and try again."
	msgOwnerOnly       = "🔒 Only the bot owner can do that."
	msgServerOnly      = "This only works inside a server."
	msgInternalError   = "⚠️ Something went wrong on our side. Please try again later."
	msgUnknownAction   = "Unknown action."
	msgGroupIDRequired = "Give the group id with the `group_id` option, e.g. `grp_...`."
	msgNoGroups        = "No groups are managed yet. Add one with `/manage action:add group_id:grp_...`."
	msgNoActiveGroup   = "No active group is selected. Pick one with `/manage action:select`."
	msgGroupExists     = "That group is already managed."
	msgGroupNotFound   = "VRChat has no group with that id, or it is not managed here."
	msgNotMember       = "Your linked VRChat account is not a member of that group."
	msgNoJoinedGroups  = "No joined groups are cached. They refresh when you log in."

	msgVRChatUnavailable = "⚠️ VRChat cannot be reached right now. Try again in a few minutes."
	msgSaveFailed        = "⚠️ VRChat accepted the login but it could not be saved. Please try again later."
)

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	"*", `\*`,
	"_", `\_`,
	"~", `\~`,
	"`", "\\`",
	"|", `\|`,
	">", `\>`,
)

func escape(s string) string {
	return markdownEscaper.Replace(s)
}

func formatLinked(displayName string) string {
	if displayName == "" {
		return "✅ Your VRChat account is linked."
	}
	return fmt.Sprintf("✅ Linked VRChat account **%s**.", escape(displayName))
}

func formatResumed() string {
	return "✅ Your stored VRChat login still works."
}

func formatGroupLabel(g models.Group) string {
	if code := g.Code(); code != "" {
		return fmt.Sprintf("%s (%s)", g.Name, code)
	}
	return g.Name
}

func formatGroupList(groups []models.Group, scope models.Scope) string {
	if len(groups) == 0 {
		return msgNoGroups
	}
	var sb strings.Builder
	if scope.Mode == models.ModeUser {
		sb.WriteString("**Your groups**\n")
	} else {
		sb.WriteString("**Server groups**\n")
	}
	for _, g := range groups {
		fmt.Fprintf(&sb, "• %s `%s`\n", escape(formatGroupLabel(g)), g.ID)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatGroupAdded(g *models.Group) string {
	return fmt.Sprintf("➕ Added **%s**.", escape(formatGroupLabel(*g)))
}

func formatGroupRemoved(groupID string) string {
	return fmt.Sprintf("➖ Removed `%s`.", groupID)
}

func formatSelected(groupID, roleID string) string {
	if roleID != "" {
		return fmt.Sprintf("🎯 Members with <@&%s> now act on `%s`.", roleID, groupID)
	}
	return fmt.Sprintf("🎯 `%s` is now the server's active group.", groupID)
}

func formatCleared(roleID string) string {
	if roleID != "" {
		return fmt.Sprintf("🧹 Members with <@&%s> follow the server's active group again.", roleID)
	}
	return "🧹 The server no longer has an active group."
}

func formatActive(g *models.Group) string {
	return fmt.Sprintf("🎯 Active group: **%s** `%s`", escape(formatGroupLabel(*g)), g.ID)
}

func formatJoined(memberships []models.GroupMembership) string {
	if len(memberships) == 0 {
		return msgNoJoinedGroups
	}
	var sb strings.Builder
	sb.WriteString("**Groups you joined**\n")
	for _, m := range memberships {
		label := m.Name
		if m.ShortCode != "" {
			label = fmt.Sprintf("%s (%s.%s)", m.Name, m.ShortCode, m.Discriminator)
		}
		fmt.Fprintf(&sb, "• %s `%s`\n", escape(label), m.GroupID)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatMode(mode models.BotMode) string {
	if mode == models.ModeUser {
		return "⚙️ Mode set to **per user**: everyone manages their own groups."
	}
	return "⚙️ Mode set to **server**: the owner manages the server's groups."
}

// truncateOption keeps select menu labels within Discord's 100 character limit.
func truncateOption(s string) string {
	r := []rune(s)
	if len(r) <= 100 {
		return s
	}
	return string(r[:99]) + "…"
}
