package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vrceventbot/vrceventbot/internal/models"
	"github.com/vrceventbot/vrceventbot/internal/provider"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want models.AuthOutcome
	}{
		{
			name: "email challenge",
			err:  &provider.Error{Kind: provider.KindUnauthorized, Status: 200, Message: provider.EmailChallengeMessage},
			want: models.AuthEmailRequired,
		},
		{
			name: "totp challenge",
			err:  &provider.Error{Kind: provider.KindUnauthorized, Status: 200, Message: provider.TOTPChallengeMessage},
			want: models.AuthTOTPRequired,
		},
		{
			name: "email marker inside a longer message",
			err:  &provider.Error{Kind: provider.KindUnauthorized, Status: 200, Message: "Requires Email 2 Factor Authentication now"},
			want: models.AuthEmailRequired,
		},
		{
			name: "challenge text with a hard status",
			err:  &provider.Error{Kind: provider.KindUnauthorized, Status: 401, Message: provider.TOTPChallengeMessage},
			want: models.AuthFailed,
		},
		{
			name: "bad password",
			err:  &provider.Error{Kind: provider.KindUnauthorized, Status: 401, Message: "Invalid Username/Email or Password"},
			want: models.AuthFailed,
		},
		{
			name: "status 200 without a marker",
			err:  &provider.Error{Kind: provider.KindUnauthorized, Status: 200, Message: "something else"},
			want: models.AuthFailed,
		},
		{
			name: "non unauthorized kind",
			err:  &provider.Error{Kind: provider.KindDecode, Status: 200, Message: provider.EmailChallengeMessage},
			want: models.AuthFailed,
		},
		{
			name: "transport",
			err:  &provider.Error{Kind: provider.KindTransport, Err: errors.New("dial tcp")},
			want: models.AuthFailed,
		},
		{
			name: "foreign error",
			err:  errors.New("boom"),
			want: models.AuthFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
