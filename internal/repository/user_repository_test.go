package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/field-reservation/internal/model"
	"github.com/iliyamo/field-reservation/internal/testutil"
	"github.com/iliyamo/field-reservation/internal/utils"
)

func TestUserRepo(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewUserRepo(db)
	ctx := context.Background()

	u := &model.User{Name: "Budi", Email: "  Budi@Example.com "}
	require.NoError(t, repo.Create(ctx, u, "secret1", bcrypt.MinCost))
	assert.Equal(t, "budi@example.com", u.Email)
	assert.Equal(t, model.RoleUser, u.Role)
	assert.True(t, u.IsActive)
	assert.True(t, utils.VerifyPassword(u.PasswordHash, "secret1"))

	t.Run("duplicate email", func(t *testing.T) {
		err := repo.Create(ctx, &model.User{Name: "x", Email: "BUDI@example.com"}, "secret1", bcrypt.MinCost)
		assert.ErrorIs(t, err, ErrEmailExists)
	})

	t.Run("guest lookup reuses existing user", func(t *testing.T) {
		g, err := repo.FindOrCreateGuest(ctx, "Other Name", "budi@example.com", nil, bcrypt.MinCost)
		require.NoError(t, err)
		assert.Equal(t, u.ID, g.ID)
		assert.Equal(t, "Budi", g.Name)
		assert.False(t, g.IsGuest)
	})

	t.Run("guest created once", func(t *testing.T) {
		phone := "0812"
		g, err := repo.FindOrCreateGuest(ctx, "Sari", "sari@example.com", &phone, bcrypt.MinCost)
		require.NoError(t, err)
		assert.True(t, g.IsGuest)
		again, err := repo.FindOrCreateGuest(ctx, "Sari", "SARI@example.com", nil, bcrypt.MinCost)
		require.NoError(t, err)
		assert.Equal(t, g.ID, again.ID)
	})

	t.Run("update and email uniqueness", func(t *testing.T) {
		updated, err := repo.Update(ctx, u.ID, UserUpdate{Name: "Budi S", Email: "budi@example.com", Role: model.RoleUser})
		require.NoError(t, err)
		assert.Equal(t, "Budi S", updated.Name)

		_, err = repo.Update(ctx, u.ID, UserUpdate{Name: "Budi", Email: "sari@example.com", Role: model.RoleUser})
		assert.ErrorIs(t, err, ErrEmailExists)

		_, err = repo.Update(ctx, 9999, UserUpdate{Name: "x", Email: "x@example.com", Role: model.RoleUser})
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("password and active flag", func(t *testing.T) {
		require.NoError(t, repo.UpdatePassword(ctx, u.ID, "newpass", bcrypt.MinCost))
		require.NoError(t, repo.SetActive(ctx, u.ID, false))
		got, err := repo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.False(t, got.IsActive)
		assert.True(t, utils.VerifyPassword(got.PasswordHash, "newpass"))
	})

	t.Run("list with search", func(t *testing.T) {
		list, total, err := repo.List(ctx, UserQuery{Search: "sari"})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		require.Len(t, list, 1)
		assert.Equal(t, "sari@example.com", list[0].Email)
	})

	t.Run("delete guarded by reservations", func(t *testing.T) {
		fieldID := testutil.InsertField(t, db, "Futsal", 1)
		testutil.InsertReservation(t, db, u.ID, fieldID, "2026-03-03", "10:00", "11:00", "PENDING", "PENDING")
		assert.ErrorIs(t, repo.Delete(ctx, u.ID), ErrConflict)

		lonely := testutil.InsertUser(t, db, "lonely@example.com", model.RoleUser)
		require.NoError(t, repo.Delete(ctx, lonely))
		_, err := repo.GetByID(ctx, lonely)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestEnsureAdmin(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewUserRepo(db)
	ctx := context.Background()

	admin, err := repo.EnsureAdmin(ctx, "Admin", "admin@example.com", "adminpass", bcrypt.MinCost)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, admin.Role)

	again, err := repo.EnsureAdmin(ctx, "Admin", "admin@example.com", "adminpass", bcrypt.MinCost)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, again.ID)

	n, err := repo.CountUsers(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n, "admins are not counted as users")
}
