package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
)

// UserDTO is the transport shape returned to the dashboard.
type UserDTO struct {
	ID                   uuid.UUID `json:"id"`
	ClerkUserID          string    `json:"clerk_user_id"`
	Email                string    `json:"email"`
	Username             *string   `json:"username,omitempty"`
	GitHubLogin          *string   `json:"github_login,omitempty"`
	GitHubInstallationID *int64    `json:"github_installation_id,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

// FromModel maps a user model into the DTO.
func FromModel(u *models.User) UserDTO {
	if u == nil {
		return UserDTO{}
	}
	return UserDTO{
		ID:                   u.ID,
		ClerkUserID:          u.ClerkUserID,
		Email:                u.Email,
		Username:             u.Username,
		GitHubLogin:          u.GitHubLogin,
		GitHubInstallationID: u.GitHubInstallationID,
		CreatedAt:            u.CreatedAt,
	}
}

// ClerkUser is the identity carried by a Clerk user.created/user.updated event.
type ClerkUser struct {
	ClerkID  string
	Email    string
	Username *string
}
