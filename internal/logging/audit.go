package logging

import (
	"time"

	"github.com/google/uuid"
)

// AuditEventType names what happened.
type AuditEventType string

const (
	CredentialLinked    AuditEventType = "CREDENTIAL_LINKED"
	CredentialForgotten AuditEventType = "CREDENTIAL_FORGOTTEN"
	LoginFailed         AuditEventType = "LOGIN_FAILED"
	MFAVerified         AuditEventType = "MFA_VERIFIED"
	MFARejected         AuditEventType = "MFA_REJECTED"
	ConfigChange        AuditEventType = "CONFIG_CHANGE"
	GroupChange         AuditEventType = "GROUP_CHANGE"
	APIAccess           AuditEventType = "API_ACCESS"
)

// AuditStatus is the result of an audited action.
type AuditStatus string

const (
	StatusSuccess AuditStatus = "success"
	StatusFailure AuditStatus = "failure"
)

// AuditEvent is a security relevant action taken on behalf of a Discord user.
type AuditEvent struct {
	ID           string                 `json:"id"`
	Timestamp    time.Time              `json:"timestamp"`
	EventType    AuditEventType         `json:"event_type"`
	UserID       string                 `json:"user_id,omitempty"`
	Action       string                 `json:"action"`
	Resource     string                 `json:"resource,omitempty"`
	Status       AuditStatus            `json:"status"`
	Details      map[string]interface{} `json:"details,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
}

// NewAuditEvent stamps a new event with an id and the current UTC time.
func NewAuditEvent(eventType AuditEventType, action string, status AuditStatus) *AuditEvent {
	return &AuditEvent{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Action:    action,
		Status:    status,
	}
}

func (e *AuditEvent) WithUserID(userID string) *AuditEvent {
	e.UserID = userID
	return e
}

func (e *AuditEvent) WithResource(resource string) *AuditEvent {
	e.Resource = resource
	return e
}

// WithDetail adds one key to the details map.
func (e *AuditEvent) WithDetail(key string, value interface{}) *AuditEvent {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithError records the failure reason and flips the status.
func (e *AuditEvent) WithError(errorMessage string) *AuditEvent {
	e.ErrorMessage = errorMessage
	e.Status = StatusFailure
	return e
}
