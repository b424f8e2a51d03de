package token

import (
	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Token type claim values. Access and refresh tokens are signed with
// separate key material and carry their type so one can never be
// replayed as the other.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Claims are the identity and session claims embedded in both token
// classes.
type Claims struct {
	UserID    string `json:"uid"`
	CompanyID string `json:"cid,omitempty"`
	Role      string `json:"role"`
	SessionID string `json:"sid"`
	DeviceID  string `json:"did,omitempty"`
	TokenType string `json:"typ"`
	jwtlib.RegisteredClaims
}
