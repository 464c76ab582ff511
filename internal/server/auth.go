package server

import (
	"errors"
	"fmt"

	"github.com/Tyrowin/chatnest/internal/realtime"
	"github.com/golang-jwt/jwt/v5"
)

var ErrUnauthorized = errors.New("unauthorized")

// TokenVerifier checks the optional token of a join frame. Tokens are issued
// elsewhere; only HMAC signatures are accepted and the subject names the user.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier returns nil for an empty secret, which disables verification.
func NewTokenVerifier(secret string) *TokenVerifier {
	if secret == "" {
		return nil
	}
	return &TokenVerifier{secret: []byte(secret)}
}

// Verify parses token and returns its subject.
func (v *TokenVerifier) Verify(token string) (realtime.UserID, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrUnauthorized)
	}
	return realtime.UserID(sub), nil
}

// authenticate resolves the user a join frame binds the connection to. With
// verification on, the token is mandatory and must name the claimed user.
func (v *TokenVerifier) authenticate(data JoinData) (realtime.UserID, error) {
	if v == nil {
		if err := requireField(frameJoin, "userId", data.UserID); err != nil {
			return "", err
		}
		return realtime.UserID(data.UserID), nil
	}

	if data.Token == "" {
		return "", fmt.Errorf("%w: token required", ErrUnauthorized)
	}
	user, err := v.Verify(data.Token)
	if err != nil {
		return "", err
	}
	if data.UserID != "" && realtime.UserID(data.UserID) != user {
		return "", fmt.Errorf("%w: token subject does not match userId", ErrUnauthorized)
	}
	return user, nil
}
