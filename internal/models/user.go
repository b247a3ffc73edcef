package models

import "time"

type Role string

const (
	RoleCitizen   Role = "citizen"
	RoleAuthority Role = "authority"
)

func (r Role) Valid() bool {
	return r == RoleCitizen || r == RoleAuthority
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}
