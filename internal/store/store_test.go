package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/d9705996/confera/internal/model"
	"github.com/d9705996/confera/internal/store"
	"github.com/d9705996/confera/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(testutil.NewDB(t))
}

func mkOrg(t *testing.T, s *store.Store, name, slug, code string) *model.Organization {
	t.Helper()
	o := &model.Organization{Name: name, Slug: slug, JoinCode: code}
	require.NoError(t, s.CreateOrganization(context.Background(), o))
	return o
}

func mkUser(t *testing.T, s *store.Store, email string) *model.User {
	t.Helper()
	u := &model.User{Name: "U " + email, Email: email}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func TestCreateUser_NormalizesAndRejectsDuplicateEmail(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	u := mkUser(t, s, "  Alice@X.com ")
	assert.Equal(t, "alice@x.com", u.Email)
	assert.NotEmpty(t, u.ID)

	err := s.CreateUser(ctx, &model.User{Name: "dup", Email: "ALICE@x.COM"})
	require.ErrorIs(t, err, store.ErrConflict)

	got, err := s.UserByEmail(ctx, "ALICE@X.COM")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestParseEmail(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"alice@x.com", "alice@x.com", true},
		{"  Alice@X.com ", "alice@x.com", true},
		{"Alice <ALICE@x.com>", "", false},
		{"<alice@x.com>", "", false},
		{"\"Alice\" <alice@x.com>", "", false},
		{"alice", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := store.ParseEmail(tc.in)
		if !tc.ok {
			assert.ErrorIs(t, err, store.ErrInvalidEmail, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
}

func TestCreateUser_RejectsDisplayNameAddress(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	mkUser(t, s, "alice@x.com")

	err := s.CreateUser(ctx, &model.User{Name: "Alice", Email: "Alice <ALICE@x.com>"})
	require.ErrorIs(t, err, store.ErrInvalidEmail)

	var n int64
	require.NoError(t, s.DB().Model(&model.User{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestUserLookups_NotFound(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.UserByID(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.UserByEmail(ctx, "nobody@x.com")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.UserByGoogleID(ctx, "sub")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateOrganization_Conflicts(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	mkOrg(t, s, "Acme", "acme", "AAAA2222")

	err := s.CreateOrganization(ctx, &model.Organization{Name: "Acme 2", Slug: "acme", JoinCode: "BBBB3333"})
	require.ErrorIs(t, err, store.ErrConflict)
	err = s.CreateOrganization(ctx, &model.Organization{Name: "Other", Slug: "other", JoinCode: "AAAA2222"})
	require.ErrorIs(t, err, store.ErrConflict)

	o, err := s.OrganizationByJoinCode(ctx, "AAAA2222")
	require.NoError(t, err)
	assert.Equal(t, "Acme", o.Name)
}

func TestMemberships(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	zeta := mkOrg(t, s, "Zeta", "zeta", "ZZZZ2222")
	acme := mkOrg(t, s, "Acme", "acme", "AAAA2222")
	u := mkUser(t, s, "alice@x.com")

	require.NoError(t, s.CreateMembership(ctx, &model.Membership{UserID: u.ID, OrganizationID: zeta.ID, Role: "user"}))
	require.NoError(t, s.CreateMembership(ctx, &model.Membership{UserID: u.ID, OrganizationID: acme.ID, Role: "admin"}))
	err := s.CreateMembership(ctx, &model.Membership{UserID: u.ID, OrganizationID: acme.ID, Role: "user"})
	require.ErrorIs(t, err, store.ErrConflict)

	list, err := s.ListMemberships(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Acme", list[0].Name)
	assert.Equal(t, "admin", list[0].Role)
	assert.Equal(t, "Zeta", list[1].Name)

	role, err := s.MembershipRole(ctx, u.ID, acme.ID)
	require.NoError(t, err)
	assert.Equal(t, "admin", role)

	acc, err := s.MembershipAccess(ctx, u.ID, acme.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@x.com", acc.Email)
	assert.Equal(t, "Acme", acc.OrganizationName)
	assert.Equal(t, "admin", acc.Role)
	assert.False(t, acc.IsVerified)

	n, err := s.CountMemberships(ctx, u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	require.NoError(t, s.DeleteMembership(ctx, u.ID, zeta.ID))
	require.ErrorIs(t, s.DeleteMembership(ctx, u.ID, zeta.ID), store.ErrNotFound)
	_, err = s.MembershipAccess(ctx, u.ID, zeta.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	members, err := s.ListMembers(ctx, acme.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, u.ID, members[0].UserID)
	assert.False(t, members[0].JoinedAt.IsZero())
}

func TestListMemberships_EmptyIsNotError(t *testing.T) {
	s := newStore(t)
	u := mkUser(t, s, "lonely@x.com")

	list, err := s.ListMemberships(context.Background(), u.ID)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestTx_RollsBackOnError(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Tx(ctx, func(tx *store.Store) error {
		if err := tx.CreateUser(ctx, &model.User{Name: "x", Email: "tx@x.com"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.UserByEmail(ctx, "tx@x.com")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestUserUpdates(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	org := mkOrg(t, s, "Acme", "acme", "AAAA2222")
	hash := "verify-hash"
	u := &model.User{Name: "Bob", Email: "bob@x.com", VerificationTokenHash: &hash}
	require.NoError(t, s.CreateUser(ctx, u))

	require.NoError(t, s.SetCurrentOrganization(ctx, u.ID, org.ID))
	require.NoError(t, s.SetOrganizationOwner(ctx, org.ID, u.ID))

	got, err := s.UserByVerificationHash(ctx, hash)
	require.NoError(t, err)
	require.NoError(t, s.MarkVerified(ctx, got.ID))
	_, err = s.UserByVerificationHash(ctx, hash)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.LinkGoogle(ctx, u.ID, "google-sub"))
	got, err = s.UserByGoogleID(ctx, "google-sub")
	require.NoError(t, err)
	assert.True(t, got.IsVerified)
	require.NotNil(t, got.CurrentOrganizationID)
	assert.Equal(t, org.ID, *got.CurrentOrganizationID)

	require.ErrorIs(t, s.SetCurrentOrganization(ctx, "missing", org.ID), store.ErrNotFound)
}

func TestResetTokens(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	u := mkUser(t, s, "carol@x.com")
	stale := mkUser(t, s, "stale@x.com")

	require.NoError(t, s.SetResetToken(ctx, u.ID, "fresh", now.Add(time.Hour)))
	require.NoError(t, s.SetResetToken(ctx, stale.ID, "old", now.Add(-time.Hour)))

	got, err := s.UserByResetHash(ctx, "fresh", now)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	_, err = s.UserByResetHash(ctx, "old", now)
	require.ErrorIs(t, err, store.ErrNotFound)

	n, err := s.PurgeExpiredResetTokens(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, s.SetPassword(ctx, u.ID, "new-hash"))
	_, err = s.UserByResetHash(ctx, "fresh", now)
	require.ErrorIs(t, err, store.ErrNotFound)
	got, err = s.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PasswordHash)
	assert.Equal(t, "new-hash", *got.PasswordHash)
}

func TestAppendAudit(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	actor := "user-1"

	require.NoError(t, s.AppendAudit(ctx, &model.AuditEntry{
		OccurredAt:  time.Now().UTC(),
		ActorUserID: &actor,
		Action:      "auth.google.linked",
		Metadata:    `{"email":"a@x.com"}`,
	}))

	entries, err := s.AuditEntries(ctx, "auth.google.linked")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, actor, *entries[0].ActorUserID)
}
