package membership_test

import (
	"context"
	"testing"

	"github.com/d9705996/confera/internal/membership"
	"github.com/d9705996/confera/internal/model"
	"github.com/d9705996/confera/internal/store"
	"github.com/d9705996/confera/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store *store.Store
	res   *membership.Resolver
	user  *model.User
	acme  *model.Organization
	zeta  *model.Organization
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s := store.New(testutil.NewDB(t))

	f := &fixture{store: s, res: membership.NewResolver(s)}
	f.zeta = &model.Organization{Name: "Zeta", Slug: "zeta", JoinCode: "ZZZZ2222"}
	f.acme = &model.Organization{Name: "Acme", Slug: "acme", JoinCode: "AAAA2222"}
	require.NoError(t, s.CreateOrganization(ctx, f.zeta))
	require.NoError(t, s.CreateOrganization(ctx, f.acme))
	f.user = &model.User{Name: "Alice", Email: "alice@x.com", IsVerified: true}
	require.NoError(t, s.CreateUser(ctx, f.user))
	return f
}

func TestListMemberships_OrderedByName(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.res.CreateMembership(ctx, f.user.ID, f.zeta.ID, membership.RoleUser))
	require.NoError(t, f.res.CreateMembership(ctx, f.user.ID, f.acme.ID, membership.RoleAdmin))

	list, err := f.res.ListMemberships(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Acme", list[0].Name)
	assert.Equal(t, membership.RoleAdmin, list[0].Role)
	assert.Equal(t, "acme", list[0].Slug)
	assert.Equal(t, "Zeta", list[1].Name)
	assert.Equal(t, membership.RoleUser, list[1].Role)
}

func TestListMemberships_Empty(t *testing.T) {
	f := setup(t)

	list, err := f.res.ListMemberships(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestGetRole(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	require.NoError(t, f.res.CreateMembership(ctx, f.user.ID, f.acme.ID, membership.RoleAdmin))

	role, err := f.res.GetRole(ctx, f.user.ID, f.acme.ID)
	require.NoError(t, err)
	assert.Equal(t, membership.RoleAdmin, role)

	_, err = f.res.GetRole(ctx, f.user.ID, f.zeta.ID)
	require.ErrorIs(t, err, membership.ErrNotAMember)
}

func TestAccess(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	require.NoError(t, f.res.CreateMembership(ctx, f.user.ID, f.acme.ID, membership.RoleUser))

	acc, err := f.res.Access(ctx, f.user.ID, f.acme.ID)
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, acc.UserID)
	assert.Equal(t, "alice@x.com", acc.Email)
	assert.True(t, acc.IsVerified)
	assert.Equal(t, "Acme", acc.OrganizationName)
	assert.Equal(t, membership.RoleUser, acc.Role)

	_, err = f.res.Access(ctx, f.user.ID, f.zeta.ID)
	require.ErrorIs(t, err, membership.ErrNotAMember)
}

func TestCreateMembership_DuplicateAndInvalidRole(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	require.NoError(t, f.res.CreateMembership(ctx, f.user.ID, f.acme.ID, membership.RoleUser))

	err := f.res.CreateMembership(ctx, f.user.ID, f.acme.ID, membership.RoleAdmin)
	require.ErrorIs(t, err, membership.ErrDuplicateMembership)

	err = f.res.CreateMembership(ctx, f.user.ID, f.zeta.ID, membership.Role("owner"))
	require.ErrorIs(t, err, membership.ErrInvalidRole)
}

func TestRemoveMembership(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	require.NoError(t, f.res.CreateMembership(ctx, f.user.ID, f.acme.ID, membership.RoleAdmin))
	require.NoError(t, f.res.CreateMembership(ctx, f.user.ID, f.zeta.ID, membership.RoleUser))
	require.NoError(t, f.store.SetCurrentOrganization(ctx, f.user.ID, f.zeta.ID))

	require.NoError(t, f.res.RemoveMembership(ctx, f.user.ID, f.zeta.ID))

	n, err := f.res.CountMemberships(ctx, f.user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	// The current organization pointer is not repointed.
	u, err := f.store.UserByID(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, f.zeta.ID, *u.CurrentOrganizationID)

	require.ErrorIs(t, f.res.RemoveMembership(ctx, f.user.ID, f.zeta.ID), membership.ErrNotAMember)
	require.ErrorIs(t, f.res.RemoveMembership(ctx, f.user.ID, f.acme.ID), membership.ErrLastMembership)

	_, err = f.res.GetRole(ctx, f.user.ID, f.acme.ID)
	require.NoError(t, err)
}

func TestWithStore_UsesTransaction(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	err := f.store.Tx(ctx, func(tx *store.Store) error {
		return f.res.WithStore(tx).CreateMembership(ctx, f.user.ID, f.acme.ID, membership.RoleAdmin)
	})
	require.NoError(t, err)

	role, err := f.res.GetRole(ctx, f.user.ID, f.acme.ID)
	require.NoError(t, err)
	assert.Equal(t, membership.RoleAdmin, role)
}

func TestListMembers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	bob := &model.User{Name: "Bob", Email: "bob@x.com"}
	require.NoError(t, f.store.CreateUser(ctx, bob))
	require.NoError(t, f.res.CreateMembership(ctx, f.user.ID, f.acme.ID, membership.RoleAdmin))
	require.NoError(t, f.res.CreateMembership(ctx, bob.ID, f.acme.ID, membership.RoleUser))

	members, err := f.res.ListMembers(ctx, f.acme.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "Alice", members[0].Name)
	assert.Equal(t, "Bob", members[1].Name)
}
