package vrchat

import (
	"context"
	"net/http"
	"net/url"

	"github.com/vrceventbot/vrceventbot/internal/models"
)

// GetGroup calls GET /groups/{id}?includeRoles=true and keeps the fields the
// bot stores.
func (s *session) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	const op = "get group"

	var g models.Group
	err := s.do(ctx, request{
		op:        op,
		method:    http.MethodGet,
		path:      "/groups/" + escapeID(groupID),
		query:     url.Values{"includeRoles": {"true"}},
		cacheable: true,
	}, &g)
	if err != nil {
		return nil, err
	}
	if g.ID == "" {
		return nil, opError(op, "group %s has no id", groupID)
	}
	return &g, nil
}

// ListUserGroups calls GET /users/{id}/groups.
func (s *session) ListUserGroups(ctx context.Context, userID string) ([]models.GroupMembership, error) {
	var memberships []models.GroupMembership
	err := s.do(ctx, request{
		op:        "list user groups",
		method:    http.MethodGet,
		path:      "/users/" + escapeID(userID) + "/groups",
		cacheable: true,
	}, &memberships)
	if err != nil {
		return nil, err
	}
	return memberships, nil
}
