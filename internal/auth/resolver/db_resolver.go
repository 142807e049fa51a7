package resolver

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"wayfarer/internal/auth"
	"wayfarer/internal/db"
	"wayfarer/internal/logger"
)

// DBResolver resolves provider claims to users.id using Postgres.
type DBResolver struct {
	db *db.DB
}

func NewDBResolver(db *db.DB) *DBResolver {
	return &DBResolver{db: db}
}

func (r *DBResolver) Resolve(
	ctx context.Context,
	claims *auth.Claims,
) (string, error) {

	if claims == nil {
		return "", errors.New("claims are nil")
	}
	if claims.Provider == "" || claims.Subject == "" {
		return "", errors.New("claims missing provider or subject")
	}

	// 1. Known identity (provider + subject)
	var userID uuid.UUID
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id
		FROM identities
		WHERE provider = $1
		  AND provider_user_id = $2
	`,
		claims.Provider,
		claims.Subject,
	).Scan(&userID)

	if err == nil {
		return userID.String(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	// 2. Existing user with the same email signs in with a new provider.
	// Only verified emails may link, otherwise anyone could claim an account.
	if claims.EmailVerified {
		err = r.db.QueryRowContext(ctx, `
			SELECT id
			FROM users
			WHERE LOWER(email) = LOWER($1)
		`,
			claims.Email,
		).Scan(&userID)

		if err == nil {
			if err := r.link(ctx, userID, claims); err != nil {
				return "", err
			}
			logger.Info("identity linked", map[string]any{
				"user_id":  userID.String(),
				"provider": claims.Provider,
			})
			return userID.String(), nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", err
		}
	}

	// 3. New user
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO users (email, email_verified)
		VALUES ($1, $2)
		RETURNING id
	`,
		claims.Email,
		claims.EmailVerified,
	).Scan(&userID)
	if err != nil {
		return "", err
	}

	if err := r.link(ctx, userID, claims); err != nil {
		return "", err
	}

	logger.Info("user created", map[string]any{
		"user_id":  userID.String(),
		"provider": claims.Provider,
	})

	return userID.String(), nil
}

func (r *DBResolver) link(ctx context.Context, userID uuid.UUID, claims *auth.Claims) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO identities (user_id, provider, provider_user_id)
		VALUES ($1, $2, $3)
	`,
		userID,
		claims.Provider,
		claims.Subject,
	)
	return err
}
