package service

import (
	"context"

	"github.com/rs/zerolog"

	"authgate/api/internal/ids"
	"authgate/api/internal/models"
)

// RoleStore is the role side of the credential store: role CRUD plus
// the user-role assignment edges.
type RoleStore interface {
	Create(ctx context.Context, role models.Role) error
	FindByName(ctx context.Context, name string) (models.Role, error)
	Rename(ctx context.Context, oldName, newName string) error
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]models.Role, error)
	Assign(ctx context.Context, userID, roleID string) error
	Unassign(ctx context.Context, userID, roleID string) error
	RolesForUser(ctx context.Context, userID string) ([]models.Role, error)
}

type RoleService struct {
	roles  RoleStore
	users  UserStore
	tokens *TokenService
	log    zerolog.Logger
}

func NewRoleService(roles RoleStore, users UserStore, tokens *TokenService, log zerolog.Logger) *RoleService {
	return &RoleService{
		roles:  roles,
		users:  users,
		tokens: tokens,
		log:    log,
	}
}

func (s *RoleService) CreateRole(ctx context.Context, name string) (models.Role, error) {
	role := models.Role{ID: ids.New(), Name: name}
	if err := s.roles.Create(ctx, role); err != nil {
		return models.Role{}, err
	}
	return role, nil
}

func (s *RoleService) RenameRole(ctx context.Context, oldName, newName string) error {
	return s.roles.Rename(ctx, oldName, newName)
}

func (s *RoleService) DeleteRole(ctx context.Context, name string) error {
	return s.roles.Delete(ctx, name)
}

func (s *RoleService) ListRoles(ctx context.Context) ([]models.Role, error) {
	return s.roles.List(ctx)
}

// AssignRole binds the role to the user and revokes every live token
// of that user. Role changes take effect immediately; a token minted
// before the change must not keep the old role set alive.
func (s *RoleService) AssignRole(ctx context.Context, userID, roleName string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	role, err := s.roles.FindByName(ctx, roleName)
	if err != nil {
		return err
	}

	if err := s.roles.Assign(ctx, user.ID, role.ID); err != nil {
		return err
	}
	return s.revokeAfterRoleChange(ctx, user.ID)
}

// UnassignRole removes the edge and revokes the user's live tokens,
// same as AssignRole.
func (s *RoleService) UnassignRole(ctx context.Context, userID, roleName string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	role, err := s.roles.FindByName(ctx, roleName)
	if err != nil {
		return err
	}

	if err := s.roles.Unassign(ctx, user.ID, role.ID); err != nil {
		return err
	}
	return s.revokeAfterRoleChange(ctx, user.ID)
}

func (s *RoleService) revokeAfterRoleChange(ctx context.Context, userID string) error {
	if err := s.tokens.RevokeAllForUser(ctx, userID); err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("revoke-all after role change failed")
		return err
	}
	return nil
}

func (s *RoleService) RolesForUser(ctx context.Context, userID string) ([]models.Role, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.roles.RolesForUser(ctx, userID)
}

// HasRole is the authorization-policy primitive: it answers whether
// the subject currently holds the named role.
func (s *RoleService) HasRole(ctx context.Context, userID, roleName string) (bool, error) {
	roles, err := s.roles.RolesForUser(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, role := range roles {
		if role.Name == roleName {
			return true, nil
		}
	}
	return false, nil
}
