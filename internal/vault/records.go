package vault

import (
	"context"

	"github.com/vrceventbot/vrceventbot/internal/models"
	"github.com/vrceventbot/vrceventbot/internal/store"
)

// RecordStore persists sealed credential records. PutCredentials must replace
// a record atomically: readers see the old record or the new one, never a mix.
// GetCredentials returns *errors.ErrRecordNotFound when nothing is stored.
type RecordStore interface {
	PutCredentials(ctx context.Context, rec *models.SealedCredentials) error
	GetCredentials(ctx context.Context, userID string) (*models.SealedCredentials, error)
	DeleteCredentials(ctx context.Context, userID string) (bool, error)
	ListCredentialUsers(ctx context.Context) ([]string, error)
}

var _ RecordStore = (*store.SQLiteStore)(nil)
