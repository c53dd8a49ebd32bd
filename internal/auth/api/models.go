package authapi

import (
	"time"

	"chatline/cmd/identity"
)

type signupRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Bio      string `json:"bio"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateProfileRequest struct {
	FullName   string `json:"fullName"`
	Bio        string `json:"bio"`
	ProfilePic string `json:"profilePic"`
}

// userPayload is the wire shape clients already consume. Field names (the
// "_id" key in particular) are a compatibility contract; do not rename.
type userPayload struct {
	ID         string    `json:"_id"`
	FullName   string    `json:"fullName"`
	Email      string    `json:"email"`
	Bio        string    `json:"bio"`
	ProfilePic string    `json:"profilePic"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// authResponse is the single envelope for every auth endpoint, success and
// failure alike: {success, user?, token?, message?}.
type authResponse struct {
	Success bool         `json:"success"`
	User    *userPayload `json:"user,omitempty"`
	Token   string       `json:"token,omitempty"`
	Message string       `json:"message,omitempty"`
}

func toUserPayload(u identity.User) *userPayload {
	u = u.Redacted()
	return &userPayload{
		ID:         u.ID,
		FullName:   u.FullName,
		Email:      u.Email,
		Bio:        u.Bio,
		ProfilePic: u.ProfilePic,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}
