package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/vrceventbot/vrceventbot/internal/auth"
	"github.com/vrceventbot/vrceventbot/internal/groups"
	"github.com/vrceventbot/vrceventbot/internal/models"
)

// handleLogin opens the credentials modal, or offers the stored login first.
func (b *Bot) handleLogin(ctx context.Context, i *discordgo.Interaction) string {
	linked, err := b.auth.HasCredentials(ctx, interactionUser(i))
	if err != nil {
		b.logger.ErrorWithContext(ctx, "credential lookup failed", "error", err)
		b.reply(ctx, i, msgInternalError, nil)
		return resultError
	}
	if linked {
		b.reply(ctx, i, msgAlreadyLinked, relinkButtons())
		return resultOK
	}
	b.respond(ctx, i, loginModal())
	return resultOK
}

func (b *Bot) handleLoginForget(ctx context.Context, i *discordgo.Interaction) string {
	if err := b.auth.ForgetCredentials(ctx, interactionUser(i)); err != nil {
		b.logger.ErrorWithContext(ctx, "forget credentials failed", "error", err)
		b.reply(ctx, i, msgInternalError, nil)
		return resultError
	}
	b.respond(ctx, i, loginModal())
	return resultOK
}

func (b *Bot) handleLoginResume(ctx context.Context, i *discordgo.Interaction) string {
	if !b.deferReply(ctx, i) {
		return resultError
	}
	userID := interactionUser(i)
	res := b.auth.ResumeLogin(ctx, userID)
	switch res.Failure {
	case auth.FailureNone:
	case auth.FailureUnavailable:
		// the record is fine, so offer the same button again
		b.editReply(ctx, i, msgVRChatUnavailable, buttonRow(discordgo.Button{
			Label: "Try again", Style: discordgo.SecondaryButton, CustomID: idLoginResume,
		}))
		return resultUnavailable
	case auth.FailureStorage:
		b.editReply(ctx, i, msgInternalError, nil)
		return resultError
	default:
		b.editReply(ctx, i, msgStoredInvalid, buttonRow(discordgo.Button{
			Label: "Forget and log in again", Style: discordgo.DangerButton, CustomID: idLoginForget,
		}))
		return resultFailed
	}
	b.editReply(ctx, i, formatResumed(), nil)
	b.refreshJoined(ctx, userID, res.Session)
	return resultOK
}

func (b *Bot) handleLoginSubmit(ctx context.Context, i *discordgo.Interaction, data discordgo.ModalSubmitInteractionData) string {
	username := modalValue(data, fieldUsername)
	password := modalValue(data, fieldPassword)
	if !b.deferReply(ctx, i) {
		return resultError
	}

	userID := interactionUser(i)
	res := b.auth.BootstrapLogin(ctx, userID, username, password)
	switch res.Outcome {
	case models.AuthSuccess:
		b.editReply(ctx, i, formatLinked(res.DisplayName), nil)
		b.refreshJoined(ctx, userID, res.Session)
	case models.AuthEmailRequired:
		b.editReply(ctx, i, msgEmailRequired, codeButton(idMFAEmail))
	case models.AuthTOTPRequired:
		b.editReply(ctx, i, msgTOTPRequired, codeButton(idMFATOTP))
	default:
		return b.loginFailure(ctx, i, res.Failure)
	}
	return resultOK
}

// handleCodeButton opens the code modal if a login is still waiting.
func (b *Bot) handleCodeButton(ctx context.Context, i *discordgo.Interaction, formID, title string) string {
	if _, ok := b.auth.PendingFor(interactionUser(i)); !ok {
		b.reply(ctx, i, msgNoPendingLogin, nil)
		return resultFailed
	}
	b.respond(ctx, i, codeModal(formID, title))
	return resultOK
}

func (b *Bot) handleCodeSubmit(ctx context.Context, i *discordgo.Interaction, data discordgo.ModalSubmitInteractionData, kind string) string {
	userID := interactionUser(i)
	p, ok := b.auth.PendingFor(userID)
	if !ok {
		b.reply(ctx, i, msgNoPendingLogin, nil)
		return resultFailed
	}
	if !b.deferReply(ctx, i) {
		return resultError
	}

	code := modalValue(data, fieldCode)
	var v auth.Verification
	buttonID := idMFAEmail
	if kind == auth.KindTOTP {
		buttonID = idMFATOTP
		v = b.auth.VerifyTOTP(ctx, p, code)
	} else {
		v = b.auth.VerifyEmail(ctx, p, code)
	}

	// the pending login stays registered, so the same button works again
	switch {
	case v.Accepted:
	case v.Failure == auth.FailureUnavailable:
		b.editReply(ctx, i, msgVRChatUnavailable, codeButton(buttonID))
		return resultUnavailable
	case v.Failure == auth.FailureStorage:
		b.editReply(ctx, i, msgSaveFailed, codeButton(buttonID))
		return resultError
	default:
		b.editReply(ctx, i, msgCodeRejected, codeButton(buttonID))
		return resultRejected
	}
	b.editReply(ctx, i, formatLinked(v.DisplayName), nil)
	b.refreshJoined(ctx, userID, p.Session())
	return resultOK
}

func (b *Bot) handleLogout(ctx context.Context, i *discordgo.Interaction) string {
	userID := interactionUser(i)
	linked, err := b.auth.HasCredentials(ctx, userID)
	if err != nil {
		b.logger.ErrorWithContext(ctx, "credential lookup failed", "error", err)
		b.reply(ctx, i, msgInternalError, nil)
		return resultError
	}
	if !linked {
		if _, pending := b.auth.PendingFor(userID); !pending {
			b.reply(ctx, i, msgNothingStored, nil)
			return resultOK
		}
	}
	if err := b.auth.ForgetCredentials(ctx, userID); err != nil {
		b.logger.ErrorWithContext(ctx, "forget credentials failed", "error", err)
		b.reply(ctx, i, msgInternalError, nil)
		return resultError
	}
	b.reply(ctx, i, msgForgotten, nil)
	return resultOK
}

// loginFailure answers a failed username and password login.
func (b *Bot) loginFailure(ctx context.Context, i *discordgo.Interaction, failure auth.Failure) string {
	switch failure {
	case auth.FailureUnavailable:
		b.editReply(ctx, i, msgVRChatUnavailable, nil)
		return resultUnavailable
	case auth.FailureStorage:
		b.editReply(ctx, i, msgSaveFailed, nil)
		return resultError
	default:
		b.editReply(ctx, i, msgLoginFailed, nil)
		return resultFailed
	}
}

// refreshJoined updates the joined groups cache after a login. Failures only
// leave the cache stale.
func (b *Bot) refreshJoined(ctx context.Context, userID string, member groups.Member) {
	if member == nil {
		return
	}
	if _, err := b.groups.CacheJoined(ctx, userID, member); err != nil {
		b.logger.WarnWithContext(ctx, "joined groups refresh failed", "error", err)
	}
}
