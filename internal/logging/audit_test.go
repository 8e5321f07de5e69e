package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuditEventLifecycle(t *testing.T) {
	event := NewAuditEvent(CredentialLinked, "vrchat account linked", StatusSuccess).
		WithUserID("1234").
		WithResource("credentials").
		WithDetail("display_name", "Tupper")

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "1234", event.UserID)
	assert.Equal(t, "Tupper", event.Details["display_name"])

	event.WithError("bad code")
	assert.Equal(t, StatusFailure, event.Status)
	assert.Equal(t, "bad code", event.ErrorMessage)
}

func TestLoggerAudit(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithOutput(&buf))
	ctx := WithCorrelationID(context.Background(), "cid-1")

	logger.Audit(ctx, NewAuditEvent(MFARejected, "email code rejected", StatusFailure).
		WithUserID("99").
		WithError("code not accepted"))

	entry := decodeLastLog(t, buf.Bytes())
	assert.Equal(t, "email code rejected", entry["message"])
	assert.Equal(t, "cid-1", entry["correlation_id"])

	fields := entry["fields"].(map[string]interface{})
	assert.Equal(t, true, fields["audit"])
	assert.Equal(t, "MFA_REJECTED", fields["event_type"])
	assert.Equal(t, "99", fields["user_id"])
	assert.Equal(t, "failure", fields["status"])
	assert.Equal(t, "code not accepted", fields["error"])
}
