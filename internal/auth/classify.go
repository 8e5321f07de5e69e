package auth

import (
	"strings"

	"github.com/vrceventbot/vrceventbot/internal/models"
	"github.com/vrceventbot/vrceventbot/internal/provider"
)

// VRChat reports a pending second factor as an unauthorized result that still
// carries status 200. The email check must run first because the TOTP
// marker is a substring of the email one.
const (
	emailChallengeMarker = "Email 2 Factor Authentication"
	totpChallengeMarker  = "2 Factor Authentication"
)

// Classify maps a failed "who am I" call onto a login outcome. Only the
// 200-status unauthorized signal is a challenge; everything else is a failure.
func Classify(err error) models.AuthOutcome {
	pe, ok := provider.AsError(err)
	if !ok || pe.Kind != provider.KindUnauthorized || pe.Status != 200 {
		return models.AuthFailed
	}
	switch {
	case strings.Contains(pe.Message, emailChallengeMarker):
		return models.AuthEmailRequired
	case strings.Contains(pe.Message, totpChallengeMarker):
		return models.AuthTOTPRequired
	default:
		return models.AuthFailed
	}
}
