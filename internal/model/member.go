package model

import "time"

const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

type Member struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Points    int       `json:"points"`
	HasPIN    bool      `json:"has_pin"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (m Member) IsAdmin() bool {
	return m.Role == RoleAdmin
}
