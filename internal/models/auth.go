package models

// AuthOutcome is the result of a login attempt against VRChat.
type AuthOutcome int

const (
	AuthFailed AuthOutcome = iota
	AuthSuccess
	AuthEmailRequired
	AuthTOTPRequired
)

func (o AuthOutcome) String() string {
	switch o {
	case AuthSuccess:
		return "success"
	case AuthEmailRequired:
		return "email_required"
	case AuthTOTPRequired:
		return "totp_required"
	default:
		return "failed"
	}
}

// NeedsChallenge reports whether the outcome leaves a pending MFA session.
func (o AuthOutcome) NeedsChallenge() bool {
	return o == AuthEmailRequired || o == AuthTOTPRequired
}

// CurrentUser is the subset of the VRChat "who am I" payload the bot uses.
type CurrentUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Username    string `json:"username,omitempty"`
}
