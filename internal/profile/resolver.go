package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"wayfarer/internal/auth"
)

// ProfileFetchError means the profile is unknown. The identity it was
// fetched for is still valid.
type ProfileFetchError struct {
	IdentityID string
	Err        error
}

func (e *ProfileFetchError) Error() string {
	return fmt.Sprintf("profile: fetch for %s failed: %v", e.IdentityID, e.Err)
}

func (e *ProfileFetchError) Unwrap() error { return e.Err }

// Resolver turns an identity into its extended profile.
type Resolver struct {
	store DocumentStore
}

func NewResolver(store DocumentStore) *Resolver {
	return &Resolver{store: store}
}

type profileDocument struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL"`
	IsAdmin     bool   `json:"isAdmin"`
}

// Resolve fetches the persisted profile for identity. A missing document
// yields a synthesized non-admin profile. No retries are attempted.
func (r *Resolver) Resolve(ctx context.Context, identity auth.Identity) (*auth.Profile, error) {
	doc, err := r.store.GetDocument(ctx, UsersCollection, identity.ID)
	if errors.Is(err, ErrNotFound) {
		return Synthesize(identity), nil
	}
	if err != nil {
		return nil, &ProfileFetchError{IdentityID: identity.ID, Err: err}
	}

	var fields profileDocument
	if len(doc.Data) > 0 {
		if err := json.Unmarshal(doc.Data, &fields); err != nil {
			return nil, &ProfileFetchError{
				IdentityID: identity.ID,
				Err:        fmt.Errorf("decode document: %w", err),
			}
		}
	}

	p := &auth.Profile{
		Identity:  identity,
		IsAdmin:   fields.IsAdmin,
		CreatedAt: doc.CreatedAt,
	}
	if fields.Email != "" {
		p.Email = fields.Email
	}
	if fields.DisplayName != "" {
		p.DisplayName = fields.DisplayName
	}
	if fields.PhotoURL != "" {
		p.PhotoURL = fields.PhotoURL
	}
	return p, nil
}

// Synthesize builds the minimal profile used when none is stored.
func Synthesize(identity auth.Identity) *auth.Profile {
	return &auth.Profile{
		Identity:  identity,
		IsAdmin:   false,
		CreatedAt: nil,
	}
}
