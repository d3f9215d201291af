// Package utils holds the bearer-token helpers shared by the HTTP
// middleware and the dev token tool.
package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/grouptrip/internal/model"
)

// RoleStaff is the role claim value that grants the staff capability.
const RoleStaff = "staff"

// ActorClaims is the token body the identity provider issues.  Role and
// name may sit at the top level or, as hosted auth services emit them,
// under user_metadata.
type ActorClaims struct {
	Email        string       `json:"email,omitempty"`
	Name         string       `json:"name,omitempty"`
	Role         string       `json:"role,omitempty"`
	UserMetadata UserMetadata `json:"user_metadata,omitempty"`
	jwt.RegisteredClaims
}

// UserMetadata is the nested profile block of ActorClaims.
type UserMetadata struct {
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

// AccessToken is a signed token together with its expiry.
type AccessToken struct {
	Token string
	Exp   time.Time
}

// NewAccessToken signs an HS256 token for actor valid for ttl.
func NewAccessToken(secret []byte, actor model.Actor, ttl time.Duration) (AccessToken, error) {
	if actor.UserID == "" {
		return AccessToken{}, errors.New("token subject required")
	}
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := ActorClaims{
		Email: actor.Email,
		Name:  actor.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	if actor.Staff {
		claims.Role = RoleStaff
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseActorToken verifies raw and maps its claims onto a model.Actor.
// Only HMAC-signed tokens with a subject and an expiry are accepted.
func ParseActorToken(secret []byte, raw string) (model.Actor, error) {
	var claims ActorClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return model.Actor{}, err
	}
	if claims.Subject == "" {
		return model.Actor{}, errors.New("token has no subject")
	}
	name, role := claims.Name, claims.Role
	if name == "" {
		name = claims.UserMetadata.Name
	}
	if role == "" {
		role = claims.UserMetadata.Role
	}
	return model.Actor{
		UserID: claims.Subject,
		Email:  claims.Email,
		Name:   name,
		Staff:  role == RoleStaff,
	}, nil
}
