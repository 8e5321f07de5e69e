package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/vrceventbot/vrceventbot/internal/auth"
	apperrors "github.com/vrceventbot/vrceventbot/internal/errors"
	"github.com/vrceventbot/vrceventbot/internal/groups"
	"github.com/vrceventbot/vrceventbot/internal/models"
)

const msgSelectNeedsServerMode = "Selecting an active group only applies in server mode."

func (b *Bot) handleManage(ctx context.Context, i *discordgo.Interaction) string {
	data := i.ApplicationCommandData()
	action := optionString(data.Options, "action")
	groupID := optionString(data.Options, "group_id")
	roleID := optionString(data.Options, "role")
	userID := interactionUser(i)

	linked, err := b.auth.HasCredentials(ctx, userID)
	if err != nil {
		b.logger.ErrorWithContext(ctx, "credential lookup failed", "error", err)
		b.reply(ctx, i, msgInternalError, nil)
		return resultError
	}
	if !linked {
		b.reply(ctx, i, msgNotLinked, nil)
		return resultDenied
	}

	switch action {
	case actionJoined:
		joined, err := b.groups.Joined(ctx, userID)
		if err != nil {
			return b.groupFailure(ctx, i, err, false)
		}
		b.reply(ctx, i, formatJoined(joined), nil)
		return resultOK
	case actionActive:
		if i.GuildID == "" {
			b.reply(ctx, i, msgServerOnly, nil)
			return resultDenied
		}
		g, err := b.groups.ActiveGroup(ctx, i.GuildID, memberRoles(i))
		if err != nil {
			return b.groupFailure(ctx, i, err, false)
		}
		b.reply(ctx, i, formatActive(g), nil)
		return resultOK
	}

	mode := b.groups.Mode()
	if denied := b.checkManager(ctx, i, mode); denied {
		return resultDenied
	}
	scope := b.groups.Scope(i.GuildID, userID)

	switch action {
	case actionList:
		list, err := b.groups.List(ctx, scope)
		if err != nil {
			return b.groupFailure(ctx, i, err, false)
		}
		b.reply(ctx, i, formatGroupList(list, scope), nil)
		return resultOK

	case actionAdd:
		if groupID == "" {
			b.reply(ctx, i, msgGroupIDRequired, nil)
			return resultFailed
		}
		if !b.deferReply(ctx, i) {
			return resultError
		}
		res := b.auth.ResumeLogin(ctx, userID)
		switch res.Failure {
		case auth.FailureNone:
		case auth.FailureUnavailable:
			b.editReply(ctx, i, msgVRChatUnavailable, nil)
			return resultUnavailable
		case auth.FailureStorage:
			b.editReply(ctx, i, msgInternalError, nil)
			return resultError
		default:
			b.editReply(ctx, i, msgStoredInvalid, nil)
			return resultFailed
		}
		g, err := b.groups.Add(ctx, scope, res.Session, groupID)
		if err != nil {
			return b.groupFailure(ctx, i, err, true)
		}
		b.editReply(ctx, i, formatGroupAdded(g), nil)
		return resultOK

	case actionDelete:
		if groupID == "" {
			return b.offerMenu(ctx, i, scope, idManageDelete, "Group to delete")
		}
		if err := b.groups.Remove(ctx, scope, groupID); err != nil {
			return b.groupFailure(ctx, i, err, false)
		}
		b.reply(ctx, i, formatGroupRemoved(groupID), nil)
		return resultOK

	case actionSelect:
		if mode != models.ModeGuild {
			b.reply(ctx, i, msgSelectNeedsServerMode, nil)
			return resultFailed
		}
		if groupID == "" {
			return b.offerMenu(ctx, i, scope, idManageSelect, "Active group")
		}
		if roleID != "" {
			err = b.groups.SelectRole(ctx, i.GuildID, roleID, groupID)
		} else {
			err = b.groups.SelectServer(ctx, i.GuildID, groupID)
		}
		if err != nil {
			return b.groupFailure(ctx, i, err, false)
		}
		b.reply(ctx, i, formatSelected(groupID, roleID), nil)
		return resultOK

	case actionClear:
		if mode != models.ModeGuild {
			b.reply(ctx, i, msgSelectNeedsServerMode, nil)
			return resultFailed
		}
		if roleID != "" {
			err = b.groups.ClearRole(ctx, i.GuildID, roleID)
		} else {
			err = b.groups.ClearServer(ctx, i.GuildID)
		}
		if err != nil {
			return b.groupFailure(ctx, i, err, false)
		}
		b.reply(ctx, i, formatCleared(roleID), nil)
		return resultOK
	}

	b.reply(ctx, i, msgUnknownAction, nil)
	return resultFailed
}

// checkManager enforces who may edit the group list: in server mode the
// owner inside a server, in user mode anyone for their own list.
func (b *Bot) checkManager(ctx context.Context, i *discordgo.Interaction, mode models.BotMode) bool {
	if mode != models.ModeGuild {
		return false
	}
	if i.GuildID == "" {
		b.reply(ctx, i, msgServerOnly, nil)
		return true
	}
	if !b.isOwner(i) {
		b.reply(ctx, i, msgOwnerOnly, nil)
		return true
	}
	return false
}

func (b *Bot) offerMenu(ctx context.Context, i *discordgo.Interaction, scope models.Scope, customID, placeholder string) string {
	list, err := b.groups.List(ctx, scope)
	if err != nil {
		return b.groupFailure(ctx, i, err, false)
	}
	if len(list) == 0 {
		b.reply(ctx, i, msgNoGroups, nil)
		return resultOK
	}
	// a select menu holds at most 25 options
	if len(list) > 25 {
		list = list[:25]
	}
	options := make([]discordgo.SelectMenuOption, 0, len(list))
	for _, g := range list {
		options = append(options, discordgo.SelectMenuOption{
			Label:       truncateOption(formatGroupLabel(g)),
			Value:       g.ID,
			Description: g.ID,
		})
	}
	b.reply(ctx, i, "Pick a group:", groupMenu(customID, placeholder, options))
	return resultOK
}

func (b *Bot) handleMenuSelect(ctx context.Context, i *discordgo.Interaction, values []string) string {
	if len(values) == 0 {
		b.update(ctx, i, msgUnknownAction)
		return resultFailed
	}
	if b.groups.Mode() != models.ModeGuild {
		b.update(ctx, i, msgSelectNeedsServerMode)
		return resultFailed
	}
	if b.checkManager(ctx, i, models.ModeGuild) {
		return resultDenied
	}
	if err := b.groups.SelectServer(ctx, i.GuildID, values[0]); err != nil {
		b.update(ctx, i, b.groupErrorMessage(ctx, err))
		return resultFailed
	}
	b.update(ctx, i, formatSelected(values[0], ""))
	return resultOK
}

func (b *Bot) handleMenuDelete(ctx context.Context, i *discordgo.Interaction, values []string) string {
	if len(values) == 0 {
		b.update(ctx, i, msgUnknownAction)
		return resultFailed
	}
	mode := b.groups.Mode()
	if b.checkManager(ctx, i, mode) {
		return resultDenied
	}
	scope := b.groups.Scope(i.GuildID, interactionUser(i))
	if err := b.groups.Remove(ctx, scope, values[0]); err != nil {
		b.update(ctx, i, b.groupErrorMessage(ctx, err))
		return resultFailed
	}
	b.update(ctx, i, formatGroupRemoved(values[0]))
	return resultOK
}

func (b *Bot) handleConfig(ctx context.Context, i *discordgo.Interaction) string {
	if !b.isOwner(i) {
		b.reply(ctx, i, msgOwnerOnly, nil)
		return resultDenied
	}
	mode := models.ParseBotMode(optionString(i.ApplicationCommandData().Options, "mode"))
	if err := b.groups.SetMode(ctx, interactionUser(i), mode); err != nil {
		b.logger.ErrorWithContext(ctx, "set bot mode failed", "error", err)
		b.reply(ctx, i, msgInternalError, nil)
		return resultError
	}
	b.reply(ctx, i, formatMode(mode), nil)
	return resultOK
}

// groupFailure answers with the message for err. deferred selects an edit of
// a deferred reply over a fresh one.
func (b *Bot) groupFailure(ctx context.Context, i *discordgo.Interaction, err error, deferred bool) string {
	msg := b.groupErrorMessage(ctx, err)
	if deferred {
		b.editReply(ctx, i, msg, nil)
	} else {
		b.reply(ctx, i, msg, nil)
	}
	if msg == msgInternalError {
		return resultError
	}
	return resultFailed
}

func (b *Bot) groupErrorMessage(ctx context.Context, err error) string {
	var invalid *apperrors.ErrInvalidInput
	switch {
	case errors.Is(err, groups.ErrGroupExists):
		return msgGroupExists
	case errors.Is(err, groups.ErrGroupNotFound):
		return msgGroupNotFound
	case errors.Is(err, groups.ErrNotMember):
		return msgNotMember
	case errors.Is(err, groups.ErrNoActiveGroup):
		return msgNoActiveGroup
	case errors.As(err, &invalid):
		return fmt.Sprintf("Invalid %s: %s.", invalid.Field, invalid.Reason)
	default:
		b.logger.ErrorWithContext(ctx, "group operation failed", "error", err)
		return msgInternalError
	}
}
