package types

import "time"

// User represents an account in the system.
// It contains identity, media, and session metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Username is the unique login name chosen by the user,
	// stored lowercase.
	Username string `json:"username" db:"username"`

	// Email is the user's email address, unique across accounts.
	Email string `json:"email" db:"email"`

	// Fullname is the user's display name.
	Fullname string `json:"fullname" db:"fullname"`

	// AvatarURL is the hosted URL of the user's avatar image.
	AvatarURL string `json:"avatarUrl" db:"avatar_url"`

	// CoverImageURL is the hosted URL of the user's cover image,
	// empty when the user has none.
	CoverImageURL string `json:"coverImageUrl,omitempty" db:"cover_image_url"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// RefreshToken holds the single currently-valid refresh token
	// for the user, empty when no session can be refreshed. Issuing
	// a new pair overwrites it, so only one device session is valid
	// at a time. Never exposed in API responses.
	RefreshToken string `json:"-" db:"refresh_token"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Sanitized returns a copy of the user safe to serialize: the password
// hash and stored refresh token are cleared.
func (u User) Sanitized() User {
	u.PasswordHash = ""
	u.RefreshToken = ""
	return u
}

// TokenPair is an access/refresh token pair issued for a session.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
