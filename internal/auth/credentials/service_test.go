package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wayfarer/internal/db"
)

const userID = "0b7e4d2a-1c3f-4e5a-8b6c-9d0e1f2a3b4c"

func newMockService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return NewService(&db.DB{DB: sqlDB}), mock
}

func TestHashPassword(t *testing.T) {
	_, _, err := HashPassword("short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	hash, version, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.Equal(t, HashVersionBcrypt, version)
	assert.NoError(t, VerifyPassword(hash, "correct horse"))
	assert.Error(t, VerifyPassword(hash, "battery staple"))
}

func TestAuthenticate(t *testing.T) {
	hash, _, err := HashPassword("correct horse")
	require.NoError(t, err)

	rows := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "email", "email_verified", "password_hash", "hash_version"}).
			AddRow(userID, "ada@example.com", true, hash, HashVersionBcrypt)
	}

	t.Run("valid password", func(t *testing.T) {
		s, mock := newMockService(t)
		mock.ExpectQuery("FROM users u").
			WithArgs("ada@example.com").
			WillReturnRows(rows())

		id, err := s.Authenticate(context.Background(), " ada@example.com ", "correct horse")
		require.NoError(t, err)
		assert.Equal(t, userID, id.ID)
		assert.Equal(t, ProviderPassword, id.Provider)
		assert.True(t, id.EmailVerified)
	})

	t.Run("wrong password", func(t *testing.T) {
		s, mock := newMockService(t)
		mock.ExpectQuery("FROM users u").WillReturnRows(rows())

		_, err := s.Authenticate(context.Background(), "ada@example.com", "nope nope")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		s, mock := newMockService(t)
		mock.ExpectQuery("FROM users u").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "email_verified", "password_hash", "hash_version"}))

		_, err := s.Authenticate(context.Background(), "ghost@example.com", "correct horse")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown hash version", func(t *testing.T) {
		s, mock := newMockService(t)
		mock.ExpectQuery("FROM users u").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "email_verified", "password_hash", "hash_version"}).
				AddRow(userID, "ada@example.com", true, hash, "argon2id"))

		_, err := s.Authenticate(context.Background(), "ada@example.com", "correct horse")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("database error is hidden", func(t *testing.T) {
		s, mock := newMockService(t)
		mock.ExpectQuery("FROM users u").WillReturnError(errors.New("boom"))

		_, err := s.Authenticate(context.Background(), "ada@example.com", "correct horse")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestRegister(t *testing.T) {
	t.Run("new user", func(t *testing.T) {
		s, mock := newMockService(t)
		mock.ExpectQuery("SELECT id, email_verified FROM users").
			WithArgs("ada@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email_verified"}))
		mock.ExpectQuery("INSERT INTO users").
			WithArgs("ada@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(userID))
		mock.ExpectQuery("SELECT EXISTS").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectExec("INSERT INTO credentials").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), HashVersionBcrypt).
			WillReturnResult(sqlmock.NewResult(0, 1))

		id, err := s.Register(context.Background(), "ada@example.com", "correct horse")
		require.NoError(t, err)
		assert.Equal(t, userID, id.ID)
		assert.Equal(t, "ada@example.com", id.Email)
		assert.False(t, id.EmailVerified)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already registered", func(t *testing.T) {
		s, mock := newMockService(t)
		mock.ExpectQuery("SELECT id, email_verified FROM users").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email_verified"}).AddRow(userID, true))
		mock.ExpectQuery("SELECT EXISTS").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		_, err := s.Register(context.Background(), "ada@example.com", "correct horse")
		assert.ErrorIs(t, err, ErrAlreadyRegistered)
	})

	t.Run("rejects input before touching the database", func(t *testing.T) {
		s, mock := newMockService(t)

		_, err := s.Register(context.Background(), "not-an-email", "correct horse")
		assert.ErrorIs(t, err, ErrInvalidEmail)

		_, err = s.Register(context.Background(), "ada@example.com", "short")
		assert.ErrorIs(t, err, ErrPasswordTooShort)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
