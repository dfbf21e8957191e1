package models

// Claims are the identity assertions extracted from a verified bearer token.
type Claims struct {
	SubjectID string `json:"id"`
	Role      string `json:"role"`
}

const RoleAdmin = "admin"

func (c Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}
