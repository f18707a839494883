// Package token issues and validates the capability bearer tokens callers
// present on mutating ledger operations.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"veilscreen/internal/policy"
	dErrors "veilscreen/pkg/domain-errors"
)

// Claims carries the capability grant inside a signed token.
type Claims struct {
	Capabilities []string `json:"caps"`
	jwt.RegisteredClaims
}

// Service handles capability token creation and validation.
type Service struct {
	signingKey []byte
	issuer     string
}

func NewService(signingKey string, issuer string) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
	}
}

// GenerateCapabilityToken signs a token granting the capability's actions to
// its subject.
func (s *Service) GenerateCapabilityToken(grant policy.Capability, expiresIn time.Duration) (string, error) {
	caps := make([]string, len(grant.Actions))
	for i, action := range grant.Actions {
		caps[i] = string(action)
	}
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Capabilities: caps,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   grant.Subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})
	return newToken.SignedString(s.signingKey)
}

// ValidateToken parses and verifies a token, returning the capability it
// grants.
func (s *Service) ValidateToken(tokenString string) (policy.Capability, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return policy.Capability{}, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return policy.Capability{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid {
		return policy.Capability{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return policy.Capability{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	actions := make([]policy.Action, len(claims.Capabilities))
	for i, c := range claims.Capabilities {
		actions[i] = policy.Action(c)
	}
	return policy.Capability{Subject: claims.Subject, Actions: actions}, nil
}
