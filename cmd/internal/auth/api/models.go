package authapi

import (
	"time"

	"huddle/cmd/identity"
)

type signupRequest struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateMeRequest struct {
	FullName       *string `json:"full_name"`
	Bio            *string `json:"bio"`
	ProfilePicture *string `json:"profile_picture"`
	CoverPicture   *string `json:"cover_picture"`
}

type userResponse struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	FullName       string     `json:"full_name"`
	ProfilePicture string     `json:"profile_picture"`
	CoverPicture   string     `json:"cover_picture"`
	Bio            string     `json:"bio"`
	IsOnline       bool       `json:"is_online"`
	LastSeen       *time.Time `json:"last_seen"`
	CreatedAt      time.Time  `json:"created_at"`
}

type authResponse struct {
	User            userResponse `json:"user"`
	AccessToken     string       `json:"access_token"`
	AccessExpiresAt time.Time    `json:"access_expires_at"`
}

type refreshResponse struct {
	AccessToken     string    `json:"access_token"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
}

func toUserResponse(u identity.User) userResponse {
	return userResponse{
		ID:             u.ID,
		Email:          u.Email,
		FullName:       u.FullName,
		ProfilePicture: u.ProfilePicture,
		CoverPicture:   u.CoverPicture,
		Bio:            u.Bio,
		IsOnline:       u.IsOnline,
		LastSeen:       u.LastSeen,
		CreatedAt:      u.CreatedAt,
	}
}

func (u updateMeRequest) toUpdate() identity.ProfileUpdate {
	return identity.ProfileUpdate{
		FullName:       u.FullName,
		Bio:            u.Bio,
		ProfilePicture: u.ProfilePicture,
		CoverPicture:   u.CoverPicture,
	}
}
