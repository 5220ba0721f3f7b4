package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"solutionhub/internal/domain"
)

var ErrMissingSubject = errors.New("identity token has no subject")

// ParseIdentityToken extracts the user id and display name from an engine
// access token. The signature is not checked here; the engine verifies every
// request carrying the token.
func ParseIdentityToken(token string) (domain.Identity, string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Identity{}, "", errors.New("identity token is empty")
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return domain.Identity{}, "", fmt.Errorf("parse identity token: %w", err)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Identity{}, "", ErrMissingSubject
	}
	name := firstString(claims, "name", "preferred_username", "email")
	if name == "" {
		name = sub
	}
	return domain.Identity{Token: token, UserID: sub}, name, nil
}

func firstString(claims jwt.MapClaims, keys ...string) string {
	for _, k := range keys {
		if v, ok := claims[k].(string); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
