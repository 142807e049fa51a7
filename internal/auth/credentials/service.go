package credentials

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"

	"wayfarer/internal/auth"
	"wayfarer/internal/db"
	"wayfarer/internal/logger"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAlreadyRegistered  = errors.New("credentials already exist")
	ErrInvalidEmail       = errors.New("invalid email")
)

// Service manages email + password sign-in. Successful calls return the
// identity to start a session with.
type Service struct {
	db *db.DB
}

func NewService(db *db.DB) *Service {
	return &Service{db: db}
}

func (s *Service) Register(
	ctx context.Context,
	email string,
	password string,
) (auth.Identity, error) {

	email = strings.TrimSpace(email)
	if !strings.Contains(email, "@") {
		return auth.Identity{}, ErrInvalidEmail
	}

	// Hash first so a short password never creates a user row.
	hash, version, err := HashPassword(password)
	if err != nil {
		return auth.Identity{}, err
	}

	var (
		userID   uuid.UUID
		verified bool
	)

	// 1. Find or create user by email
	err = s.db.QueryRowContext(ctx, `
		SELECT id, email_verified FROM users
		WHERE LOWER(email) = LOWER($1)
	`, email).Scan(&userID, &verified)

	if errors.Is(err, sql.ErrNoRows) {
		err = s.db.QueryRowContext(ctx, `
			INSERT INTO users (email, email_verified)
			VALUES ($1, false)
			RETURNING id
		`, email).Scan(&userID)
	}
	if err != nil {
		return auth.Identity{}, err
	}

	// 2. Check if credentials already exist
	var exists bool
	err = s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM credentials WHERE user_id = $1
		)
	`, userID).Scan(&exists)
	if err != nil {
		return auth.Identity{}, err
	}
	if exists {
		return auth.Identity{}, ErrAlreadyRegistered
	}

	// 3. Insert credentials
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO credentials (user_id, password_hash, hash_version)
		VALUES ($1, $2, $3)
	`, userID, hash, version)
	if err != nil {
		return auth.Identity{}, err
	}

	logger.Info("credentials registered", map[string]any{
		"user_id": userID.String(),
	})

	return auth.Identity{
		ID:            userID.String(),
		Email:         email,
		Provider:      ProviderPassword,
		EmailVerified: verified,
	}, nil
}

func (s *Service) Authenticate(
	ctx context.Context,
	email string,
	password string,
) (auth.Identity, error) {

	var (
		cred        Credential
		storedEmail string
		verified    bool
	)

	// 1. Find user + credentials
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.email, u.email_verified, c.password_hash, c.hash_version
		FROM users u
		JOIN credentials c ON c.user_id = u.id
		WHERE LOWER(u.email) = LOWER($1)
	`, strings.TrimSpace(email)).Scan(
		&cred.UserID,
		&storedEmail,
		&verified,
		&cred.PasswordHash,
		&cred.HashVersion,
	)

	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logger.Error("credential lookup failed", map[string]any{
				"error": err.Error(),
			})
		}
		// hide whether user exists or not
		return auth.Identity{}, ErrInvalidCredentials
	}

	if cred.HashVersion != HashVersionBcrypt {
		logger.Error("unsupported password hash version", map[string]any{
			"user_id": cred.UserID,
			"version": cred.HashVersion,
		})
		return auth.Identity{}, ErrInvalidCredentials
	}

	// 2. Verify password
	if err := VerifyPassword(cred.PasswordHash, password); err != nil {
		return auth.Identity{}, ErrInvalidCredentials
	}

	return auth.Identity{
		ID:            cred.UserID,
		Email:         storedEmail,
		Provider:      ProviderPassword,
		EmailVerified: verified,
	}, nil
}
