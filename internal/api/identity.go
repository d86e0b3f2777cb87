package api

import (
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt"
	"github.com/npezzotti/go-meetrelay/internal/relay"
)

// Claim names in the identity token minted by the external auth layer.
const (
	uidClaim      = "uid"
	usernameClaim = "username"
)

const identityTokenParam = "token"

// identityFromRequest resolves the participant identity attached to a
// connection request. When a signing key is configured and a token is
// present, the token's claims win; otherwise identity is taken from the
// uid/username query parameters as-is. Authorization is not this
// service's concern, only identity transport.
func (s *RelayApp) identityFromRequest(r *http.Request) (relay.Identity, error) {
	q := r.URL.Query()

	if tokenString := q.Get(identityTokenParam); tokenString != "" && len(s.signingKey) > 0 {
		return s.identityFromToken(tokenString)
	}

	return relay.Identity{
		Uid:      q.Get("uid"),
		Username: q.Get("username"),
	}, nil
}

func (s *RelayApp) identityFromToken(tokenString string) (relay.Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return relay.Identity{}, fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return relay.Identity{}, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return relay.Identity{}, fmt.Errorf("invalid token claims")
	}

	var id relay.Identity
	if uid, ok := claims[uidClaim].(string); ok {
		id.Uid = uid
	}
	if username, ok := claims[usernameClaim].(string); ok {
		id.Username = username
	}

	return id, nil
}
