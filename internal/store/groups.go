package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/vrceventbot/vrceventbot/internal/errors"
	"github.com/vrceventbot/vrceventbot/internal/models"
)

const groupColumns = `group_id, name, short_code, discriminator, description, icon_url, banner_url, vrc_owner_id`

func scanGroup(row interface{ Scan(...any) error }) (models.Group, error) {
	var g models.Group
	err := row.Scan(&g.ID, &g.Name, &g.ShortCode, &g.Discriminator, &g.Description, &g.IconURL, &g.BannerURL, &g.OwnerID)
	return g, err
}

// ListGroups returns the groups managed under scope ordered by name.
func (s *SQLiteStore) ListGroups(ctx context.Context, scope models.Scope) ([]models.Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+groupColumns+` FROM managed_groups
		WHERE mode = ? AND owner_id = ?
		ORDER BY name COLLATE NOCASE, group_id
	`, string(scope.Mode), scope.OwnerID)
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "list groups", Err: err}
	}
	defer rows.Close()

	var groups []models.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, &errors.ErrDatabaseQuery{Operation: "scan group", Err: err}
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "list groups", Err: err}
	}
	return groups, nil
}

// GetGroup returns one managed group or ErrRecordNotFound.
func (s *SQLiteStore) GetGroup(ctx context.Context, scope models.Scope, groupID string) (*models.Group, error) {
	g, err := scanGroup(s.db.QueryRowContext(ctx, `
		SELECT `+groupColumns+` FROM managed_groups
		WHERE mode = ? AND owner_id = ? AND group_id = ?
	`, string(scope.Mode), scope.OwnerID, groupID))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, &errors.ErrRecordNotFound{Kind: "group", ID: groupID}
	}
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "get group", Err: err}
	}
	return &g, nil
}

// AddGroup inserts g under scope. It reports false when the group was already there.
func (s *SQLiteStore) AddGroup(ctx context.Context, scope models.Scope, g models.Group) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO managed_groups (mode, owner_id, `+groupColumns+`, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(mode, owner_id, group_id) DO NOTHING
	`, string(scope.Mode), scope.OwnerID,
		g.ID, g.Name, g.ShortCode, g.Discriminator, g.Description, g.IconURL, g.BannerURL, g.OwnerID,
		time.Now().UTC())
	if err != nil {
		return false, &errors.ErrDatabaseQuery{Operation: "add group", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &errors.ErrDatabaseQuery{Operation: "add group", Err: err}
	}
	return n == 1, nil
}

// RemoveGroup deletes a managed group. In guild scope any server or role
// selection pointing at it goes too.
func (s *SQLiteStore) RemoveGroup(ctx context.Context, scope models.Scope, groupID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, &errors.ErrDatabaseQuery{Operation: "begin remove group", Err: err}
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM managed_groups WHERE mode = ? AND owner_id = ? AND group_id = ?
	`, string(scope.Mode), scope.OwnerID, groupID)
	if err != nil {
		return false, &errors.ErrDatabaseQuery{Operation: "remove group", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &errors.ErrDatabaseQuery{Operation: "remove group", Err: err}
	}

	if scope.Mode == models.ModeGuild {
		if _, err := tx.ExecContext(ctx, `DELETE FROM selected_groups WHERE guild_id = ? AND group_id = ?`, scope.OwnerID, groupID); err != nil {
			return false, &errors.ErrDatabaseQuery{Operation: "clear selected group", Err: err}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM role_groups WHERE guild_id = ? AND group_id = ?`, scope.OwnerID, groupID); err != nil {
			return false, &errors.ErrDatabaseQuery{Operation: "clear role groups", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return false, &errors.ErrDatabaseQuery{Operation: "commit remove group", Err: err}
	}
	return n > 0, nil
}

// SetSelectedGroup marks groupID as the server-wide active group.
func (s *SQLiteStore) SetSelectedGroup(ctx context.Context, guildID, groupID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO selected_groups (guild_id, group_id, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET group_id = excluded.group_id, updated_at = excluded.updated_at
	`, guildID, groupID, time.Now().UTC())
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "set selected group", Err: err}
	}
	return nil
}

// GetSelectedGroup returns the server-wide group id or ErrRecordNotFound.
func (s *SQLiteStore) GetSelectedGroup(ctx context.Context, guildID string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT group_id FROM selected_groups WHERE guild_id = ?`, guildID).Scan(&id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return "", &errors.ErrRecordNotFound{Kind: "selected group", ID: guildID}
	}
	if err != nil {
		return "", &errors.ErrDatabaseQuery{Operation: "get selected group", Err: err}
	}
	return id, nil
}

// ClearSelectedGroup removes the server-wide selection.
func (s *SQLiteStore) ClearSelectedGroup(ctx context.Context, guildID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM selected_groups WHERE guild_id = ?`, guildID); err != nil {
		return &errors.ErrDatabaseQuery{Operation: "clear selected group", Err: err}
	}
	return nil
}

// SetRoleGroup binds a Discord role to a group.
func (s *SQLiteStore) SetRoleGroup(ctx context.Context, guildID, roleID, groupID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO role_groups (guild_id, role_id, group_id, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(guild_id, role_id) DO UPDATE SET group_id = excluded.group_id, updated_at = excluded.updated_at
	`, guildID, roleID, groupID, time.Now().UTC())
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "set role group", Err: err}
	}
	return nil
}

// ClearRoleGroup unbinds a role.
func (s *SQLiteStore) ClearRoleGroup(ctx context.Context, guildID, roleID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM role_groups WHERE guild_id = ? AND role_id = ?`, guildID, roleID); err != nil {
		return &errors.ErrDatabaseQuery{Operation: "clear role group", Err: err}
	}
	return nil
}

// ListRoleGroups maps role id to group id for a guild.
func (s *SQLiteStore) ListRoleGroups(ctx context.Context, guildID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT role_id, group_id FROM role_groups WHERE guild_id = ?`, guildID)
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "list role groups", Err: err}
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var roleID, groupID string
		if err := rows.Scan(&roleID, &groupID); err != nil {
			return nil, &errors.ErrDatabaseQuery{Operation: "scan role group", Err: err}
		}
		out[roleID] = groupID
	}
	if err := rows.Err(); err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "list role groups", Err: err}
	}
	return out, nil
}

// ReplaceJoinedGroups swaps the cached membership list for userID.
func (s *SQLiteStore) ReplaceJoinedGroups(ctx context.Context, userID string, memberships []models.GroupMembership) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "begin joined groups", Err: err}
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM joined_groups WHERE user_id = ?`, userID); err != nil {
		return &errors.ErrDatabaseQuery{Operation: "clear joined groups", Err: err}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO joined_groups (user_id, group_id, name, short_code, discriminator, owner_id, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, group_id) DO NOTHING
	`)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "prepare joined groups", Err: err}
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, m := range memberships {
		if _, err := stmt.ExecContext(ctx, userID, m.GroupID, m.Name, m.ShortCode, m.Discriminator, m.OwnerID, now); err != nil {
			return &errors.ErrDatabaseQuery{Operation: "insert joined group", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &errors.ErrDatabaseQuery{Operation: "commit joined groups", Err: err}
	}
	return nil
}

// ListJoinedGroups returns the cached memberships for userID.
func (s *SQLiteStore) ListJoinedGroups(ctx context.Context, userID string) ([]models.GroupMembership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT group_id, name, short_code, discriminator, owner_id, cached_at
		FROM joined_groups WHERE user_id = ? ORDER BY name COLLATE NOCASE, group_id
	`, userID)
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "list joined groups", Err: err}
	}
	defer rows.Close()

	var out []models.GroupMembership
	for rows.Next() {
		var m models.GroupMembership
		if err := rows.Scan(&m.GroupID, &m.Name, &m.ShortCode, &m.Discriminator, &m.OwnerID, &m.CachedAt); err != nil {
			return nil, &errors.ErrDatabaseQuery{Operation: "scan joined group", Err: err}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "list joined groups", Err: err}
	}
	return out, nil
}

// DeleteJoinedBefore drops cache rows older than cutoff.
func (s *SQLiteStore) DeleteJoinedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM joined_groups WHERE cached_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, &errors.ErrDatabaseQuery{Operation: "prune joined groups", Err: err}
	}
	return res.RowsAffected()
}
