package vrchat

import (
	"context"
	"net/http"

	"github.com/vrceventbot/vrceventbot/internal/models"
	"github.com/vrceventbot/vrceventbot/internal/provider"
)

type currentUserPayload struct {
	models.CurrentUser
	RequiresTwoFactorAuth []string `json:"requiresTwoFactorAuth"`
}

// CurrentUser calls GET /auth/user. When VRChat answers 200 but asks for a
// second factor, the result is a provider.Error with Status 200 whose message
// names the challenge, matching the shape of the official clients.
func (s *session) CurrentUser(ctx context.Context) (*models.CurrentUser, error) {
	const op = "current user"

	var payload currentUserPayload
	err := s.do(ctx, request{
		op:     op,
		method: http.MethodGet,
		path:   "/auth/user",
		basic:  s.username != "" && !s.hasAuthCookie(),
	}, &payload)
	if err != nil {
		return nil, err
	}

	if len(payload.RequiresTwoFactorAuth) > 0 {
		msg := provider.TOTPChallengeMessage
		for _, method := range payload.RequiresTwoFactorAuth {
			if method == "emailOtp" {
				msg = provider.EmailChallengeMessage
				break
			}
		}
		return nil, &provider.Error{Op: op, Kind: provider.KindUnauthorized, Status: http.StatusOK, Message: msg}
	}

	if payload.ID == "" && payload.DisplayName == "" {
		return nil, opError(op, "response carried no user")
	}
	user := payload.CurrentUser
	return &user, nil
}

type verifyPayload struct {
	Verified bool `json:"verified"`
}

func (s *session) verify(ctx context.Context, op, path, code string) (bool, error) {
	var payload verifyPayload
	err := s.do(ctx, request{
		op:     op,
		method: http.MethodPost,
		path:   path,
		body:   map[string]string{"code": code},
	}, &payload)
	if err != nil {
		return false, err
	}
	return payload.Verified, nil
}

// VerifyEmailCode calls POST /auth/twofactorauth/emailotp/verify.
func (s *session) VerifyEmailCode(ctx context.Context, code string) (bool, error) {
	return s.verify(ctx, "verify email code", "/auth/twofactorauth/emailotp/verify", code)
}

// VerifyTOTPCode calls POST /auth/twofactorauth/totp/verify.
func (s *session) VerifyTOTPCode(ctx context.Context, code string) (bool, error) {
	return s.verify(ctx, "verify totp code", "/auth/twofactorauth/totp/verify", code)
}
