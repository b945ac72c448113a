package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretLength is the minimum HS256 secret size in bytes.
const MinSecretLength = 32

type jwtVerifier struct {
	secret []byte
}

func newJWTVerifier(secret string) (*jwtVerifier, error) {
	if secret == "" {
		return nil, errors.New("JWT secret not provided")
	}
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("JWT secret must be at least %d bytes", MinSecretLength)
	}
	return &jwtVerifier{secret: []byte(secret)}, nil
}

// verify checks signature, issuer and expiry and returns the token subject and claims.
func (v *jwtVerifier) verify(tokenStr string) (uuid.UUID, *Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	},
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return uuid.Nil, nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return uuid.Nil, nil, errors.New("invalid claims")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("invalid subject UUID: %w", err)
	}

	return userID, claims, nil
}
