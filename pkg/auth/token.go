package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/commerce-core/pkg/config"
	"github.com/angelmondragon/commerce-core/pkg/enums"
)

var (
	ErrMissingSecret = errors.New("jwt secret is required")
	ErrTokenExpired  = errors.New("token expired")
	ErrInvalidToken  = errors.New("invalid token")
)

var signingMethod = jwt.SigningMethodHS256

// acceptableRole rejects the system role, which only in-process callers hold.
func acceptableRole(role enums.ActorRole) bool {
	return role.IsValid() && role != enums.ActorRoleSystem
}

// Signer mints access tokens with the current secret.
type Signer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
}

func NewSigner(cfg config.JWTConfig) (*Signer, error) {
	switch {
	case cfg.Secret == "":
		return nil, ErrMissingSecret
	case cfg.Issuer == "":
		return nil, errors.New("jwt issuer is required")
	case cfg.ExpirationMinutes <= 0:
		return nil, errors.New("jwt expiration minutes must be positive")
	}
	return &Signer{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      time.Duration(cfg.ExpirationMinutes) * time.Minute,
	}, nil
}

// Mint signs a token for p issued at now. An empty TokenID gets a uuid.
func (s *Signer) Mint(now time.Time, p Principal) (string, error) {
	if strings.TrimSpace(p.ActorRef) == "" {
		return "", errors.New("actor ref is required")
	}
	if !acceptableRole(p.Role) {
		return "", fmt.Errorf("invalid actor role %q", p.Role)
	}
	if p.TokenID == "" {
		p.TokenID = uuid.NewString()
	}
	claims := accessClaims{
		ActorRef: p.ActorRef,
		Role:     p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   p.ActorRef,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        p.TokenID,
		},
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// Verifier checks signature, issuer, audience and expiry. During a secret
// rotation the previous secret is tried when the current one does not match.
type Verifier struct {
	parser *jwt.Parser
	keys   [][]byte
}

func NewVerifier(cfg config.JWTConfig) (*Verifier, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	keys := [][]byte{[]byte(cfg.Secret)}
	if cfg.PreviousSecret != "" {
		keys = append(keys, []byte(cfg.PreviousSecret))
	}
	return &Verifier{parser: jwt.NewParser(opts...), keys: keys}, nil
}

// Verify returns the token's principal. Expired tokens yield ErrTokenExpired;
// every other rejection wraps ErrInvalidToken.
func (v *Verifier) Verify(token string) (Principal, error) {
	var lastErr error
	for _, key := range v.keys {
		claims := &accessClaims{}
		_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) { return key, nil })
		switch {
		case err == nil:
			if strings.TrimSpace(claims.ActorRef) == "" {
				return Principal{}, fmt.Errorf("%w: no actor", ErrInvalidToken)
			}
			if !acceptableRole(claims.Role) {
				return Principal{}, fmt.Errorf("%w: role %q not accepted", ErrInvalidToken, claims.Role)
			}
			return claims.principal(), nil
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			lastErr = err
			continue
		case errors.Is(err, jwt.ErrTokenExpired):
			return Principal{}, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		default:
			return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}
	return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, lastErr)
}
