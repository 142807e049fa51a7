package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wayfarer/internal/auth"
	"wayfarer/internal/db"
)

const userID = "6f1c2b9e-7a55-4c1f-9d3e-2f8a1b4c5d6e"

func newMockResolver(t *testing.T) (*DBResolver, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return NewDBResolver(&db.DB{DB: sqlDB}), mock
}

func claims(verified bool) *auth.Claims {
	return &auth.Claims{
		Provider:      "google",
		Subject:       "sub-1",
		Email:         "ada@example.com",
		EmailVerified: verified,
	}
}

func TestResolve_KnownIdentity(t *testing.T) {
	r, mock := newMockResolver(t)

	mock.ExpectQuery("FROM identities").
		WithArgs("google", "sub-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(userID))

	got, err := r.Resolve(context.Background(), claims(true))
	require.NoError(t, err)
	assert.Equal(t, userID, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolve_LinksVerifiedEmail(t *testing.T) {
	r, mock := newMockResolver(t)

	mock.ExpectQuery("FROM identities").
		WithArgs("google", "sub-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))
	mock.ExpectQuery("FROM users").
		WithArgs("ada@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(userID))
	mock.ExpectExec("INSERT INTO identities").
		WithArgs(sqlmock.AnyArg(), "google", "sub-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	got, err := r.Resolve(context.Background(), claims(true))
	require.NoError(t, err)
	assert.Equal(t, userID, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolve_UnverifiedEmailCreatesUser(t *testing.T) {
	r, mock := newMockResolver(t)

	mock.ExpectQuery("FROM identities").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))
	mock.ExpectQuery("INSERT INTO users").
		WithArgs("ada@example.com", false).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(userID))
	mock.ExpectExec("INSERT INTO identities").
		WithArgs(sqlmock.AnyArg(), "google", "sub-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	got, err := r.Resolve(context.Background(), claims(false))
	require.NoError(t, err)
	assert.Equal(t, userID, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolve_LookupError(t *testing.T) {
	r, mock := newMockResolver(t)
	cause := errors.New("connection reset")

	mock.ExpectQuery("FROM identities").WillReturnError(cause)

	_, err := r.Resolve(context.Background(), claims(true))
	assert.ErrorIs(t, err, cause)
}

func TestResolve_RejectsIncompleteClaims(t *testing.T) {
	r, _ := newMockResolver(t)

	_, err := r.Resolve(context.Background(), nil)
	assert.Error(t, err)

	_, err = r.Resolve(context.Background(), &auth.Claims{Provider: "google"})
	assert.Error(t, err)
}
