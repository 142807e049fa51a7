package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wayfarer/internal/db"
)

// UsersCollection holds one profile document per user id.
const UsersCollection = "users"

var ErrNotFound = errors.New("profile: document not found")

// Document is a stored JSON document.
type Document struct {
	Collection string
	ID         string
	Data       json.RawMessage
	CreatedAt  *time.Time
}

// DocumentStore is the read side of the document backend.
type DocumentStore interface {
	// GetDocument returns ErrNotFound when no document exists.
	GetDocument(ctx context.Context, collection, id string) (*Document, error)
}

type PostgresStore struct {
	db *db.DB
}

func NewPostgresStore(db *db.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetDocument(ctx context.Context, collection, id string) (*Document, error) {
	var (
		data      []byte
		createdAt sql.NullTime
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT data, created_at
		FROM documents
		WHERE collection = $1
		  AND id = $2
	`, collection, id).Scan(&data, &createdAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("profile: get %s/%s: %w", collection, id, err)
	}

	doc := &Document{
		Collection: collection,
		ID:         id,
		Data:       json.RawMessage(data),
	}
	if createdAt.Valid {
		ts := createdAt.Time
		doc.CreatedAt = &ts
	}
	return doc, nil
}
