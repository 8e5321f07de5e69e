package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/vrceventbot/vrceventbot/internal/errors"
	"github.com/vrceventbot/vrceventbot/internal/logging"
	"github.com/vrceventbot/vrceventbot/internal/models"
	"github.com/vrceventbot/vrceventbot/internal/provider"
)

// Observer is notified after each vault operation. Result is "ok",
// "not_found" or "error".
type Observer interface {
	ObserveVaultOp(op, result string)
}

// CredentialStore seals credential bundles and turns stored records back into
// sessions. Writes for one user are serialized; different users never block
// each other.
type CredentialStore struct {
	records  RecordStore
	cipher   *Cipher
	factory  provider.Factory
	logger   *logging.Logger
	observer Observer
	locks    *keyLock
	now      func() time.Time
}

// StoreOption configures the CredentialStore.
type StoreOption func(*CredentialStore)

func WithLogger(logger *logging.Logger) StoreOption {
	return func(s *CredentialStore) {
		s.logger = logger
	}
}

func WithObserver(o Observer) StoreOption {
	return func(s *CredentialStore) {
		s.observer = o
	}
}

// NewCredentialStore wires the record backend, the cipher and the session factory.
func NewCredentialStore(records RecordStore, cipher *Cipher, factory provider.Factory, opts ...StoreOption) *CredentialStore {
	s := &CredentialStore{
		records: records,
		cipher:  cipher,
		factory: factory,
		logger:  logging.Nop(),
		locks:   newKeyLock(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save seals the four fields and replaces the user's record in one write.
func (s *CredentialStore) Save(ctx context.Context, bundle models.CredentialBundle) error {
	if bundle.UserID == "" {
		return &errors.ErrInvalidInput{Field: "user_id", Reason: "must not be empty"}
	}

	plain := [4]string{bundle.Username, bundle.Password, bundle.AuthToken, bundle.TwoFactorToken}
	var sealed [4][]byte
	for i, value := range plain {
		ct, err := s.cipher.Seal([]byte(value), bundle.UserID, models.FieldNames[i])
		if err != nil {
			s.observe("save", err)
			return err
		}
		sealed[i] = ct
	}

	rec := &models.SealedCredentials{
		UserID:         bundle.UserID,
		Username:       sealed[0],
		Password:       sealed[1],
		AuthToken:      sealed[2],
		TwoFactorToken: sealed[3],
		UpdatedAt:      s.now(),
	}

	unlock := s.locks.Lock(bundle.UserID)
	defer unlock()

	err := s.records.PutCredentials(ctx, rec)
	s.observe("save", err)
	if err != nil {
		return fmt.Errorf("save credentials for %s: %w", bundle.UserID, err)
	}
	s.logger.DebugWithContext(ctx, "credentials saved", "user_id", bundle.UserID)
	return nil
}

// Open reads and decrypts the user's record without touching the provider.
// Errors are *errors.ErrRecordNotFound, *errors.ErrCrypto or storage errors.
func (s *CredentialStore) Open(ctx context.Context, userID string) (*models.CredentialBundle, error) {
	rec, err := s.records.GetCredentials(ctx, userID)
	if err != nil {
		return nil, err
	}

	var plain [4]string
	for i, ct := range rec.Fields() {
		pt, err := s.cipher.Open(ct, userID, models.FieldNames[i])
		if err != nil {
			return nil, err
		}
		plain[i] = string(pt)
	}

	return &models.CredentialBundle{
		UserID:         userID,
		Username:       plain[0],
		Password:       plain[1],
		AuthToken:      plain[2],
		TwoFactorToken: plain[3],
		UpdatedAt:      rec.UpdatedAt,
	}, nil
}

// Load resumes the stored session and checks it with a "who am I" call. It
// never returns an error: a missing record, a record that fails to decrypt
// and a rejected session all come back as AuthFailed with a nil session.
func (s *CredentialStore) Load(ctx context.Context, userID string) (models.AuthOutcome, provider.Session) {
	session, err := s.Resume(ctx, userID)
	if err != nil {
		return models.AuthFailed, nil
	}
	return models.AuthSuccess, session
}

// Resume is Load with the cause kept. Store failures come back as they are;
// a failed check comes back as the provider error so callers can tell an
// outage from a rejected session.
func (s *CredentialStore) Resume(ctx context.Context, userID string) (provider.Session, error) {
	bundle, err := s.Open(ctx, userID)
	s.observe("load", err)
	if err != nil {
		switch {
		case errors.IsNotFound(err):
			s.logger.DebugWithContext(ctx, "no stored credentials", "user_id", userID)
		case errors.IsCrypto(err):
			s.logger.WarnWithContext(ctx, "stored credentials could not be decrypted", "user_id", userID, "error", err)
		default:
			s.logger.ErrorWithContext(ctx, "failed to read stored credentials", "user_id", userID, "error", err)
		}
		return nil, err
	}

	session := s.factory.ResumeSession(bundle.AuthToken, bundle.TwoFactorToken)
	user, err := session.CurrentUser(ctx)
	if err != nil {
		if provider.IsOutage(err) {
			s.logger.WarnWithContext(ctx, "stored session could not be checked", "user_id", userID, "error", err)
		} else {
			s.logger.InfoWithContext(ctx, "stored session rejected", "user_id", userID, "error", err)
		}
		return nil, err
	}

	s.logger.DebugWithContext(ctx, "stored session resumed", "user_id", userID, "vrchat_user", user.ID)
	return session, nil
}

// Forget deletes the user's record and reports whether there was one.
func (s *CredentialStore) Forget(ctx context.Context, userID string) (bool, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	removed, err := s.records.DeleteCredentials(ctx, userID)
	s.observe("forget", err)
	if err != nil {
		return false, fmt.Errorf("forget credentials for %s: %w", userID, err)
	}
	return removed, nil
}

// Exists reports whether a record is stored, without decrypting it.
func (s *CredentialStore) Exists(ctx context.Context, userID string) (bool, error) {
	_, err := s.records.GetCredentials(ctx, userID)
	if errors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// List returns the ids of all users with a stored record.
func (s *CredentialStore) List(ctx context.Context) ([]string, error) {
	return s.records.ListCredentialUsers(ctx)
}

func (s *CredentialStore) observe(op string, err error) {
	if s.observer == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case errors.IsNotFound(err):
		result = "not_found"
	default:
		result = "error"
	}
	s.observer.ObserveVaultOp(op, result)
}
