// Package provider describes the capabilities the bot needs from the VRChat
// API. Each consumer depends on the narrowest interface it uses.
package provider

import (
	"context"

	"github.com/vrceventbot/vrceventbot/internal/models"
)

// Identifier answers "who am I" for the session's current cookies or credentials.
type Identifier interface {
	CurrentUser(ctx context.Context) (*models.CurrentUser, error)
}

// TokenCarrier exposes the auth and twoFactorAuth cookies held by a session.
type TokenCarrier interface {
	SessionTokens() (authToken, twoFactorToken string)
	SetSessionTokens(authToken, twoFactorToken string)
}

// Challenger completes a pending second factor challenge. A false result
// with a nil error means the provider answered but did not accept the code.
type Challenger interface {
	VerifyEmailCode(ctx context.Context, code string) (bool, error)
	VerifyTOTPCode(ctx context.Context, code string) (bool, error)
}

// GroupReader reads group metadata on behalf of the signed in user.
type GroupReader interface {
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)
	ListUserGroups(ctx context.Context, userID string) ([]models.GroupMembership, error)
}

// Session is one VRChat client handle with its own cookie jar.
type Session interface {
	Identifier
	TokenCarrier
	Challenger
	GroupReader
}

// Factory builds sessions. NewSession authenticates with username and
// password; ResumeSession only presents the stored cookies.
type Factory interface {
	NewSession(username, password string) Session
	ResumeSession(authToken, twoFactorToken string) Session
}
