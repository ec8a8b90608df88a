package repository

import (
	"context"
	"time"
)

// User is the local record of a person who signed in through the identity provider.
// Empty Nickname, AvatarURL or Email mean the provider never reported the field.
type User struct {
	ID          string // local identifier, stable
	ProviderID  int64  // identity provider user id, unique and immutable
	LoginHandle string // random unique handle, distinct from ID
	Nickname    string
	AvatarURL   string
	Email       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProfileUpdate carries the mutable fields to overwrite. Nil means unchanged.
type ProfileUpdate struct {
	Nickname  *string
	AvatarURL *string
	Email     *string
}

// Empty reports whether the update changes nothing.
func (p ProfileUpdate) Empty() bool {
	return p.Nickname == nil && p.AvatarURL == nil && p.Email == nil
}

// UserRepository persists users.
type UserRepository interface {
	// GetByID returns ErrNotFound if the user does not exist.
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByProviderID returns ErrNotFound if no user is linked to providerID.
	GetByProviderID(ctx context.Context, providerID int64) (*User, error)

	// Create inserts u. It returns ErrConflict when another row already holds
	// u.ProviderID and ErrHandleTaken when u.LoginHandle is in use.
	Create(ctx context.Context, u *User) error

	// UpdateProfile applies upd and stamps updatedAt. Returns the stored row.
	UpdateProfile(ctx context.Context, id string, upd ProfileUpdate, updatedAt time.Time) (*User, error)

	// Delete removes the user. Returns ErrNotFound if absent.
	Delete(ctx context.Context, id string) error
}
