package crypto

import "github.com/golang-jwt/jwt/v5"

// HelixClaims are the access-token claims the gateway issues. The subject is
// the actor written to activity records.
type HelixClaims struct {
	jwt.RegisteredClaims
	Roles         []string `json:"roles"`
	SessionID     string   `json:"sid,omitempty"`
	PrincipalType string   `json:"actor_type,omitempty"`
}

// Principal returns the actor id and its type; untyped tokens are users.
func (c *HelixClaims) Principal() (id, typ string) {
	typ = c.PrincipalType
	if typ == "" {
		typ = "user"
	}
	return c.Subject, typ
}

func (c *HelixClaims) RoleList() []string {
	if c.Roles == nil {
		return []string{}
	}
	return c.Roles
}
