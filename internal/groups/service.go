// Package groups manages the VRChat groups a server or user administers
// through the bot and decides which one is active.
package groups

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/vrceventbot/vrceventbot/internal/errors"
	"github.com/vrceventbot/vrceventbot/internal/logging"
	"github.com/vrceventbot/vrceventbot/internal/models"
	"github.com/vrceventbot/vrceventbot/internal/provider"
	"github.com/vrceventbot/vrceventbot/internal/store"
)

var (
	ErrGroupExists   = stderrors.New("group is already managed")
	ErrGroupNotFound = stderrors.New("group not found")
	ErrNotMember     = stderrors.New("linked VRChat account is not a member of the group")
	ErrNoActiveGroup = stderrors.New("no active group selected")
)

// Store is the persistence the service needs. *store.SQLiteStore implements it.
type Store interface {
	ListGroups(ctx context.Context, scope models.Scope) ([]models.Group, error)
	GetGroup(ctx context.Context, scope models.Scope, groupID string) (*models.Group, error)
	AddGroup(ctx context.Context, scope models.Scope, g models.Group) (bool, error)
	RemoveGroup(ctx context.Context, scope models.Scope, groupID string) (bool, error)
	SetSelectedGroup(ctx context.Context, guildID, groupID string) error
	GetSelectedGroup(ctx context.Context, guildID string) (string, error)
	ClearSelectedGroup(ctx context.Context, guildID string) error
	SetRoleGroup(ctx context.Context, guildID, roleID, groupID string) error
	ClearRoleGroup(ctx context.Context, guildID, roleID string) error
	ListRoleGroups(ctx context.Context, guildID string) (map[string]string, error)
	ReplaceJoinedGroups(ctx context.Context, userID string, memberships []models.GroupMembership) error
	ListJoinedGroups(ctx context.Context, userID string) ([]models.GroupMembership, error)
}

var _ Store = (*store.SQLiteStore)(nil)

// Member is what Add needs from a signed in session.
type Member interface {
	provider.Identifier
	provider.GroupReader
}

// Service owns group bookkeeping and the bot mode setting.
type Service struct {
	store    Store
	settings store.SettingsStore
	logger   *logging.Logger
}

// NewService creates the service.
func NewService(st Store, settings store.SettingsStore, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Service{store: st, settings: settings, logger: logger}
}

// Mode returns the configured bot mode, ModeGuild when unset or invalid.
func (s *Service) Mode() models.BotMode {
	v, _ := s.settings.Get(store.SettingBotMode)
	return models.ParseBotMode(v)
}

// SetMode persists mode.
func (s *Service) SetMode(ctx context.Context, actorID string, mode models.BotMode) error {
	mode = models.ParseBotMode(string(mode))
	if err := s.settings.Set(store.SettingBotMode, string(mode)); err != nil {
		return err
	}
	s.logger.Audit(ctx, logging.NewAuditEvent(logging.ConfigChange, "set bot mode", logging.StatusSuccess).
		WithUserID(actorID).
		WithDetail("mode", string(mode)))
	return nil
}

// Scope returns the group list the invoking user works on.
func (s *Service) Scope(guildID, userID string) models.Scope {
	return models.ScopeFor(s.Mode(), guildID, userID)
}

// List returns the managed groups of scope.
func (s *Service) List(ctx context.Context, scope models.Scope) ([]models.Group, error) {
	return s.store.ListGroups(ctx, scope)
}

// Add fetches groupID from VRChat, checks that the signed in account belongs
// to it and stores the filtered record under scope.
func (s *Service) Add(ctx context.Context, scope models.Scope, member Member, groupID string) (*models.Group, error) {
	groupID = strings.TrimSpace(groupID)
	if err := models.ValidateGroupID(groupID); err != nil {
		return nil, &errors.ErrInvalidInput{Field: "group_id", Reason: err.Error()}
	}

	if _, err := s.store.GetGroup(ctx, scope, groupID); err == nil {
		return nil, ErrGroupExists
	} else if !errors.IsNotFound(err) {
		return nil, err
	}

	group, err := member.GetGroup(ctx, groupID)
	if provider.IsNotFound(err) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch group %s: %w", groupID, err)
	}

	user, err := member.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch current user: %w", err)
	}
	memberships, err := member.ListUserGroups(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch joined groups: %w", err)
	}
	if !containsGroup(memberships, groupID) {
		return nil, ErrNotMember
	}

	added, err := s.store.AddGroup(ctx, scope, *group)
	if err != nil {
		return nil, err
	}
	if !added {
		return nil, ErrGroupExists
	}

	s.logger.Audit(ctx, logging.NewAuditEvent(logging.GroupChange, "add group", logging.StatusSuccess).
		WithUserID(scope.OwnerID).
		WithResource(groupID).
		WithDetail("mode", string(scope.Mode)))
	return group, nil
}

// Remove deletes groupID from scope.
func (s *Service) Remove(ctx context.Context, scope models.Scope, groupID string) error {
	removed, err := s.store.RemoveGroup(ctx, scope, groupID)
	if err != nil {
		return err
	}
	if !removed {
		return ErrGroupNotFound
	}
	s.logger.Audit(ctx, logging.NewAuditEvent(logging.GroupChange, "remove group", logging.StatusSuccess).
		WithUserID(scope.OwnerID).
		WithResource(groupID).
		WithDetail("mode", string(scope.Mode)))
	return nil
}

// SelectServer makes groupID the server-wide active group.
func (s *Service) SelectServer(ctx context.Context, guildID, groupID string) error {
	if err := s.requireGuildGroup(ctx, guildID, groupID); err != nil {
		return err
	}
	return s.store.SetSelectedGroup(ctx, guildID, groupID)
}

// ClearServer drops the server-wide selection.
func (s *Service) ClearServer(ctx context.Context, guildID string) error {
	return s.store.ClearSelectedGroup(ctx, guildID)
}

// SelectRole makes groupID the active group for members holding roleID.
func (s *Service) SelectRole(ctx context.Context, guildID, roleID, groupID string) error {
	if roleID == "" {
		return &errors.ErrInvalidInput{Field: "role_id", Reason: "must not be empty"}
	}
	if err := s.requireGuildGroup(ctx, guildID, groupID); err != nil {
		return err
	}
	return s.store.SetRoleGroup(ctx, guildID, roleID, groupID)
}

// ClearRole drops the selection for roleID.
func (s *Service) ClearRole(ctx context.Context, guildID, roleID string) error {
	return s.store.ClearRoleGroup(ctx, guildID, roleID)
}

// ActiveGroup resolves the group a member acts on. The first of roleIDs
// with a selection wins; otherwise the server-wide selection applies.
func (s *Service) ActiveGroup(ctx context.Context, guildID string, roleIDs []string) (*models.Group, error) {
	scope := models.Scope{Mode: models.ModeGuild, OwnerID: guildID}

	roles, err := s.store.ListRoleGroups(ctx, guildID)
	if err != nil {
		return nil, err
	}
	for _, roleID := range roleIDs {
		groupID, ok := roles[roleID]
		if !ok {
			continue
		}
		g, err := s.store.GetGroup(ctx, scope, groupID)
		if err == nil {
			return g, nil
		}
		if !errors.IsNotFound(err) {
			return nil, err
		}
	}

	groupID, err := s.store.GetSelectedGroup(ctx, guildID)
	if errors.IsNotFound(err) {
		return nil, ErrNoActiveGroup
	}
	if err != nil {
		return nil, err
	}
	g, err := s.store.GetGroup(ctx, scope, groupID)
	if errors.IsNotFound(err) {
		return nil, ErrNoActiveGroup
	}
	return g, err
}

// CacheJoined refreshes the cached membership list of a Discord user.
func (s *Service) CacheJoined(ctx context.Context, userID string, member Member) ([]models.GroupMembership, error) {
	user, err := member.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch current user: %w", err)
	}
	memberships, err := member.ListUserGroups(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch joined groups: %w", err)
	}
	if err := s.store.ReplaceJoinedGroups(ctx, userID, memberships); err != nil {
		return nil, err
	}
	s.logger.DebugWithContext(ctx, "joined groups cached", "user_id", userID, "count", len(memberships))
	return memberships, nil
}

// Joined returns the cached membership list.
func (s *Service) Joined(ctx context.Context, userID string) ([]models.GroupMembership, error) {
	return s.store.ListJoinedGroups(ctx, userID)
}

func (s *Service) requireGuildGroup(ctx context.Context, guildID, groupID string) error {
	_, err := s.store.GetGroup(ctx, models.Scope{Mode: models.ModeGuild, OwnerID: guildID}, groupID)
	if errors.IsNotFound(err) {
		return ErrGroupNotFound
	}
	return err
}

func containsGroup(memberships []models.GroupMembership, groupID string) bool {
	for _, m := range memberships {
		if m.GroupID == groupID {
			return true
		}
	}
	return false
}
