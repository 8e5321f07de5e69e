package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/vrceventbot/vrceventbot/internal/errors"
	"github.com/vrceventbot/vrceventbot/internal/models"
)

// PutCredentials replaces the sealed record for rec.UserID. All four columns
// change in a single statement inside a transaction, so readers see the old
// row or the new row and nothing in between.
func (s *SQLiteStore) PutCredentials(ctx context.Context, rec *models.SealedCredentials) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "begin put credentials", Err: err}
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO credentials (user_id, username, password, auth_token, two_factor_token, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			username = excluded.username,
			password = excluded.password,
			auth_token = excluded.auth_token,
			two_factor_token = excluded.two_factor_token,
			updated_at = excluded.updated_at
	`, rec.UserID, rec.Username, rec.Password, rec.AuthToken, rec.TwoFactorToken, rec.UpdatedAt)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "put credentials", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &errors.ErrDatabaseQuery{Operation: "commit credentials", Err: err}
	}
	return nil
}

// GetCredentials returns the sealed record for userID or ErrRecordNotFound.
func (s *SQLiteStore) GetCredentials(ctx context.Context, userID string) (*models.SealedCredentials, error) {
	rec := &models.SealedCredentials{UserID: userID}
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password, auth_token, two_factor_token, updated_at
		FROM credentials WHERE user_id = ?
	`, userID).Scan(&rec.Username, &rec.Password, &rec.AuthToken, &rec.TwoFactorToken, &rec.UpdatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, &errors.ErrRecordNotFound{Kind: "credentials", ID: userID}
	}
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "get credentials", Err: err}
	}
	return rec, nil
}

// DeleteCredentials removes the record and reports whether one existed.
func (s *SQLiteStore) DeleteCredentials(ctx context.Context, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE user_id = ?`, userID)
	if err != nil {
		return false, &errors.ErrDatabaseQuery{Operation: "delete credentials", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &errors.ErrDatabaseQuery{Operation: "delete credentials", Err: err}
	}
	return n > 0, nil
}

// ListCredentialUsers returns the ids of every linked user, oldest update first.
func (s *SQLiteStore) ListCredentialUsers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM credentials ORDER BY updated_at, user_id`)
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "list credentials", Err: err}
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &errors.ErrDatabaseQuery{Operation: "scan credentials", Err: err}
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "list credentials", Err: err}
	}
	return ids, nil
}
