package identity

import (
	"context"
	"time"
)

// User is a full account record. PasswordHash never leaves the server.
type User struct {
	ID             string
	Email          string
	FullName       string
	PasswordHash   string
	ProfilePicture string
	CoverPicture   string
	Bio            string
	IsOnline       bool
	LastSeen       *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Snapshot is the identity embedded in credentials and attached to requests.
type Snapshot struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	FullName       string `json:"full_name"`
	ProfilePicture string `json:"profile_picture,omitempty"`
	Bio            string `json:"bio,omitempty"`
}

// Snapshot returns the credential-safe view of u.
func (u User) Snapshot() Snapshot {
	return Snapshot{
		ID:             u.ID,
		Email:          u.Email,
		FullName:       u.FullName,
		ProfilePicture: u.ProfilePicture,
		Bio:            u.Bio,
	}
}

// CreateUserInput describes a registration. PasswordHash is already hashed.
type CreateUserInput struct {
	Email        string
	FullName     string
	PasswordHash string
	Now          time.Time
}

// ProfileUpdate carries optional profile edits; nil fields are left unchanged.
type ProfileUpdate struct {
	FullName       *string
	Bio            *string
	ProfilePicture *string
	CoverPicture   *string
}

// Empty reports whether the update changes nothing.
func (p ProfileUpdate) Empty() bool {
	return p.FullName == nil && p.Bio == nil && p.ProfilePicture == nil && p.CoverPicture == nil
}

// Finder is the read side consumed by credential renewal.
type Finder interface {
	FindIdentity(ctx context.Context, id string) (User, error)
}

// OnlineMarker flips the durable online flag.
type OnlineMarker interface {
	SetOnline(ctx context.Context, id string, online bool, at time.Time) error
}

// Store is the identity persistence boundary.
type Store interface {
	Finder
	OnlineMarker

	CreateUser(ctx context.Context, in CreateUserInput) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	UpdateProfile(ctx context.Context, id string, upd ProfileUpdate, now time.Time) (User, error)
}

func validateCreate(op string, in CreateUserInput) (CreateUserInput, error) {
	in.Email = NormalizeEmail(in.Email)
	in.FullName = NormalizeFullName(in.FullName)

	switch {
	case !ValidEmail(in.Email):
		return in, invalid(op, "valid email is required")
	case in.FullName == "" || tooLong(in.FullName, maxFullNameLen):
		return in, invalid(op, "full name is required")
	case in.PasswordHash == "":
		return in, invalid(op, "password hash is required")
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	return in, nil
}

func validateUpdate(op string, upd ProfileUpdate) (ProfileUpdate, error) {
	if upd.FullName != nil {
		n := NormalizeFullName(*upd.FullName)
		if n == "" || tooLong(n, maxFullNameLen) {
			return upd, invalid(op, "full name must be 1-100 characters")
		}
		upd.FullName = &n
	}
	if upd.Bio != nil && tooLong(*upd.Bio, maxBioLen) {
		return upd, invalid(op, "bio too long")
	}
	if upd.ProfilePicture != nil && len(*upd.ProfilePicture) > maxURLLen {
		return upd, invalid(op, "profile picture url too long")
	}
	if upd.CoverPicture != nil && len(*upd.CoverPicture) > maxURLLen {
		return upd, invalid(op, "cover picture url too long")
	}
	return upd, nil
}

func applyUpdate(u *User, upd ProfileUpdate) {
	if upd.FullName != nil {
		u.FullName = *upd.FullName
	}
	if upd.Bio != nil {
		u.Bio = *upd.Bio
	}
	if upd.ProfilePicture != nil {
		u.ProfilePicture = *upd.ProfilePicture
	}
	if upd.CoverPicture != nil {
		u.CoverPicture = *upd.CoverPicture
	}
}
