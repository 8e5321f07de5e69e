package models

import "time"

// CredentialBundle is the plaintext form of a linked VRChat account. It only
// exists in memory; at rest each field is sealed separately.
type CredentialBundle struct {
	UserID         string    `json:"user_id"`
	Username       string    `json:"-"`
	Password       string    `json:"-"`
	AuthToken      string    `json:"-"`
	TwoFactorToken string    `json:"-"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SealedCredentials is the at-rest form of a CredentialBundle. Field order is
// fixed: username, password, auth token, two-factor token.
type SealedCredentials struct {
	UserID         string
	Username       []byte
	Password       []byte
	AuthToken      []byte
	TwoFactorToken []byte
	UpdatedAt      time.Time
}

// Fields returns the four ciphertexts in their fixed order.
func (s *SealedCredentials) Fields() [4][]byte {
	return [4][]byte{s.Username, s.Password, s.AuthToken, s.TwoFactorToken}
}

// FieldNames lists the sealed fields in the same order as Fields.
var FieldNames = [4]string{"username", "password", "auth_token", "two_factor_token"}
