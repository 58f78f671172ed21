package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satymtripathi/microbiology/pkg/logger"
	"github.com/satymtripathi/microbiology/pkg/types"
)

var userRowColumns = []string{
	"id", "username", "full_name", "role", "pin_code", "is_active", "reading_centre_code", "created_at", "updated_at",
}

func TestUserRepository_Create(t *testing.T) {
	t.Run("inserts user", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewUserRepository(db, logger.Discard())

		mock.ExpectExec("INSERT INTO users").
			WithArgs(sqlmock.AnyArg(), "drjane", "Jane Doe", "doctor", "1234", true, "", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		user := &types.User{Username: "drjane", FullName: "Jane Doe", Role: types.RoleDoctor, PIN: "1234", IsActive: true}
		require.NoError(t, repo.Create(context.Background(), user))
		assert.NotEmpty(t, user.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate username", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewUserRepository(db, logger.Discard())

		mock.ExpectExec("INSERT INTO users").WillReturnError(&pq.Error{Code: "23505"})

		err := repo.Create(context.Background(), &types.User{Username: "drjane"})
		assert.ErrorIs(t, err, ErrDuplicate)
	})
}

func TestUserRepository_GetByUsername(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewUserRepository(db, logger.Discard())
		now := time.Now()

		mock.ExpectQuery(`FROM users WHERE username = \$1`).
			WithArgs("labtom").
			WillReturnRows(sqlmock.NewRows(userRowColumns).
				AddRow("u-2", "labtom", "Tom Lee", "lab_technician", "4321", true, "RC01", now, now))

		user, err := repo.GetByUsername(context.Background(), "labtom")
		require.NoError(t, err)
		assert.Equal(t, types.RoleLabTechnician, user.Role)
		assert.Equal(t, "4321", user.PIN)
		assert.Equal(t, "RC01", user.ReadingCentreCode)
	})

	t.Run("unknown", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewUserRepository(db, logger.Discard())

		mock.ExpectQuery(`FROM users WHERE username = \$1`).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByUsername(context.Background(), "ghost")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestUserRepository_ListActive(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUserRepository(db, logger.Discard())
	now := time.Now()

	mock.ExpectQuery(`WHERE is_active = true ORDER BY full_name`).
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("u-1", "drjane", "Jane Doe", "doctor", "1234", true, "", now, now).
			AddRow("u-2", "labtom", "Tom Lee", "lab_technician", "4321", true, "", now, now))

	users, err := repo.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "drjane", users[0].Username)
}

func TestUserRepository_SetActive(t *testing.T) {
	t.Run("updates", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewUserRepository(db, logger.Discard())

		mock.ExpectExec(`UPDATE users SET is_active = \$1`).
			WithArgs(false, sqlmock.AnyArg(), "u-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.SetActive(context.Background(), "u-1", false))
	})

	t.Run("unknown user", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewUserRepository(db, logger.Discard())

		mock.ExpectExec(`UPDATE users SET is_active`).WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, repo.SetActive(context.Background(), "nobody", false), ErrNotFound)
	})
}

func TestTokenRepository(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewTokenRepository(db, logger.Discard())
	exp := time.Now().Add(time.Hour)

	mock.ExpectExec(`INSERT INTO revoked_tokens`).
		WithArgs("jti-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("jti-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(`DELETE FROM revoked_tokens WHERE expires_at < \$1`).
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, repo.Revoke(context.Background(), "jti-1", exp))

	revoked, err := repo.IsRevoked(context.Background(), "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	n, err := repo.PurgeExpired(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
