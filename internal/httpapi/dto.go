package httpapi

import (
	"time"

	"github.com/MrEthical07/authgate"
)

type userDTO struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Name          string     `json:"name"`
	EmailVerified bool       `json:"emailVerified"`
	Image         string     `json:"image,omitempty"`
	CreatedAt     *time.Time `json:"createdAt,omitempty"`
	UpdatedAt     *time.Time `json:"updatedAt,omitempty"`
}

type sessionInfo struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	ExpiresAt time.Time  `json:"expiresAt"`
	IPAddress string     `json:"ipAddress,omitempty"`
	UserAgent string     `json:"userAgent,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

type sessionDTO struct {
	Session sessionInfo `json:"session"`
	User    userDTO     `json:"user"`
}

type authDTO struct {
	Token string  `json:"token"`
	User  userDTO `json:"user"`
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func toUserDTO(u *authgate.User) userDTO {
	if u == nil {
		return userDTO{}
	}
	return userDTO{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		EmailVerified: u.EmailVerified,
		Image:         u.Image,
		CreatedAt:     timePtr(u.CreatedAt),
		UpdatedAt:     timePtr(u.UpdatedAt),
	}
}

func toAuthDTO(res *authgate.AuthResult) authDTO {
	return authDTO{Token: res.Token, User: toUserDTO(res.User)}
}

func toSessionDTO(view *authgate.SessionView) *sessionDTO {
	s := view.Session
	return &sessionDTO{
		Session: sessionInfo{
			ID:        s.ID,
			UserID:    s.UserID,
			ExpiresAt: s.ExpiresAt,
			IPAddress: s.IPAddress,
			UserAgent: s.UserAgent,
			CreatedAt: timePtr(s.CreatedAt),
			UpdatedAt: timePtr(s.UpdatedAt),
		},
		User: toUserDTO(view.User),
	}
}
