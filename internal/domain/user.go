package domain

import "time"

// Principal is the identity asserted by an Authentik access token.
type Principal struct {
	Subject           string
	Email             string
	Name              string
	PreferredUsername string
	Groups            []string
}

// InGroup reports whether the principal belongs to the named group.
func (p Principal) InGroup(group string) bool {
	for _, g := range p.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// Profile is the local row tied to an Authentik subject.
type Profile struct {
	ID          string     `db:"id" json:"id"`
	AuthentikID string     `db:"authentik_id" json:"authentik_id"`
	Email       string     `db:"email" json:"email"`
	DisplayName string     `db:"display_name" json:"display_name"`
	AvatarURL   *string    `db:"avatar_url" json:"avatar_url"`
	CompanyID   *string    `db:"company_id" json:"company_id"`
	Role        string     `db:"role" json:"role"`
	LastSeenAt  *time.Time `db:"last_seen_at" json:"last_seen_at"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}
