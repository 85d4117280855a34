package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/taxbridge/taxprep/internal/core/domain"
)

// Claims carries the caller identity issued by the main application.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Verifier checks HS256 bearer tokens and turns them into actors.
type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewVerifier(secret, issuer string) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &Verifier{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

func (v *Verifier) Verify(tokenString string) (domain.Actor, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Actor{}, domain.WrapError(domain.ErrUnauthorized, "verify token", errors.New("token has expired"))
		}
		return domain.Actor{}, domain.WrapError(domain.ErrUnauthorized, "verify token", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return domain.Actor{}, domain.WrapError(domain.ErrUnauthorized, "verify token", errors.New("invalid claims"))
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return domain.Actor{}, domain.WrapError(domain.ErrUnauthorized, "verify token", errors.New("missing subject"))
	}
	role := domain.Role(claims.Role)
	switch role {
	case domain.RoleClient, domain.RolePreparer, domain.RoleAdmin:
	default:
		return domain.Actor{}, domain.WrapError(domain.ErrUnauthorized, "verify token", fmt.Errorf("unknown role %q", claims.Role))
	}
	return domain.Actor{UserID: claims.Subject, Role: role}, nil
}

// Issue signs a token for actor. The service itself only verifies; this is
// for local tooling and tests.
func (v *Verifier) Issue(actor domain.Actor, ttl time.Duration) (string, error) {
	now := v.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    v.issuer,
			Subject:   actor.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Role: string(actor.Role),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
