package service

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authgate/api/internal/blocklist"
	"authgate/api/internal/ids"
	"authgate/api/internal/models"
	"authgate/api/internal/repository"
	"authgate/api/internal/security"
	"authgate/api/internal/storetest"
)

type roleFixture struct {
	roles  *RoleService
	tokens *TokenService
	users  *storetest.UserStore
	user   models.User
}

func newRoleFixture(t *testing.T) *roleFixture {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	users := storetest.NewUserStore()
	user := models.User{ID: ids.New(), Email: "a@b.com", Name: "alice"}
	require.NoError(t, users.Create(context.Background(), user))

	tokens := NewTokenService(users, blocklist.NewLedger(client), testSecurityConfig(), testRetryConfig(), zerolog.Nop())
	roles := NewRoleService(storetest.NewRoleStore(), users, tokens, zerolog.Nop())

	return &roleFixture{roles: roles, tokens: tokens, users: users, user: user}
}

func TestRoleCRUD(t *testing.T) {
	fx := newRoleFixture(t)
	ctx := context.Background()

	created, err := fx.roles.CreateRole(ctx, "subscriber")
	require.NoError(t, err)
	assert.Equal(t, "subscriber", created.Name)

	_, err = fx.roles.CreateRole(ctx, "subscriber")
	assert.ErrorIs(t, err, repository.ErrRoleExists)

	require.NoError(t, fx.roles.RenameRole(ctx, "subscriber", "premium"))

	list, err := fx.roles.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "premium", list[0].Name)

	require.NoError(t, fx.roles.DeleteRole(ctx, "premium"))
	assert.ErrorIs(t, fx.roles.DeleteRole(ctx, "premium"), repository.ErrRoleNotFound)
}

func TestAssignAndHasRole(t *testing.T) {
	fx := newRoleFixture(t)
	ctx := context.Background()

	_, err := fx.roles.CreateRole(ctx, "subscriber")
	require.NoError(t, err)

	has, err := fx.roles.HasRole(ctx, fx.user.ID, "subscriber")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, fx.roles.AssignRole(ctx, fx.user.ID, "subscriber"))

	has, err = fx.roles.HasRole(ctx, fx.user.ID, "subscriber")
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, fx.roles.UnassignRole(ctx, fx.user.ID, "subscriber"))

	has, err = fx.roles.HasRole(ctx, fx.user.ID, "subscriber")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestAssignRoleUnknownUserOrRole(t *testing.T) {
	fx := newRoleFixture(t)
	ctx := context.Background()

	err := fx.roles.AssignRole(ctx, "missing-user", "subscriber")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)

	err = fx.roles.AssignRole(ctx, fx.user.ID, "missing-role")
	assert.ErrorIs(t, err, repository.ErrRoleNotFound)
}

func TestRoleChangeRevokesLiveTokens(t *testing.T) {
	fx := newRoleFixture(t)
	ctx := context.Background()

	_, err := fx.roles.CreateRole(ctx, "subscriber")
	require.NoError(t, err)

	pair, err := fx.tokens.MintPair(ctx, fx.user.ID, "laptop")
	require.NoError(t, err)
	_, err = fx.tokens.Validate(ctx, pair.AccessToken, security.TokenKindAccess)
	require.NoError(t, err)

	require.NoError(t, fx.roles.AssignRole(ctx, fx.user.ID, "subscriber"))

	_, err = fx.tokens.Validate(ctx, pair.AccessToken, security.TokenKindAccess)
	assert.ErrorIs(t, err, ErrTokenRevoked)
	_, err = fx.tokens.Validate(ctx, pair.RefreshToken, security.TokenKindRefresh)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}
