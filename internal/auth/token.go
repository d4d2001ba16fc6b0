package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenTTL = 12 * time.Hour

var (
	errMissingSigningSecret = errors.New("signing secret must be provided")
	errMissingSubjectClaim  = errors.New("subject claim must be provided")
	errMissingRoleClaim     = errors.New("role claim must be provided")
	// ErrInvalidToken indicates a token that failed signature or claim validation.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// ActorClaims carries the identity the housing engine acts on behalf of:
// the user, their role and their establishment's geographic scope.
type ActorClaims struct {
	UserID             string
	Role               string
	EstablishmentCodes []string
}

type tokenClaims struct {
	Role               string   `json:"role"`
	EstablishmentCodes []string `json:"establishment_codes"`
	jwt.RegisteredClaims
}

// TokenManagerConfig configures the HS256 actor-token manager.
type TokenManagerConfig struct {
	SigningSecret []byte
	Issuer        string
	Audience      string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// TokenManager issues and validates establishment-scoped actor tokens.
type TokenManager struct {
	config TokenManagerConfig
	clock  func() time.Time
}

// NewTokenManager constructs a TokenManager with sane defaults.
func NewTokenManager(cfg TokenManagerConfig) *TokenManager {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenManager{
		config: TokenManagerConfig{
			SigningSecret: cfg.SigningSecret,
			Issuer:        cfg.Issuer,
			Audience:      cfg.Audience,
			TokenTTL:      ttl,
			Clock:         clock,
		},
		clock: clock,
	}
}

// IssueToken produces a signed JWT and its expiry (seconds) for the actor.
func (m *TokenManager) IssueToken(claims ActorClaims) (string, int64, error) {
	if len(m.config.SigningSecret) == 0 {
		return "", 0, errMissingSigningSecret
	}
	if claims.UserID == "" {
		return "", 0, errMissingSubjectClaim
	}
	if claims.Role == "" {
		return "", 0, errMissingRoleClaim
	}

	now := m.clock().UTC()
	expiresAt := now.Add(m.config.TokenTTL).UTC()

	payload := tokenClaims{
		Role:               claims.Role,
		EstablishmentCodes: claims.EstablishmentCodes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.UserID,
			Issuer:    m.config.Issuer,
			Audience:  []string{m.config.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)
	signed, err := token.SignedString(m.config.SigningSecret)
	if err != nil {
		return "", 0, err
	}
	return signed, int64(m.config.TokenTTL.Seconds()), nil
}

// ValidateToken checks signature, issuer, audience and expiry, and returns
// the embedded actor claims.
func (m *TokenManager) ValidateToken(rawToken string) (ActorClaims, error) {
	if len(m.config.SigningSecret) == 0 {
		return ActorClaims{}, errMissingSigningSecret
	}

	parsed, err := jwt.ParseWithClaims(rawToken, &tokenClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwt.SigningMethodHS256 {
				return nil, fmt.Errorf("%w: unexpected signing method %s", ErrInvalidToken, token.Method.Alg())
			}
			return m.config.SigningSecret, nil
		},
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithAudience(m.config.Audience),
		jwt.WithTimeFunc(m.clock),
	)
	if err != nil {
		return ActorClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return ActorClaims{}, ErrInvalidToken
	}
	if claims.Subject == "" {
		return ActorClaims{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if claims.Role == "" {
		return ActorClaims{}, fmt.Errorf("%w: missing role", ErrInvalidToken)
	}

	return ActorClaims{
		UserID:             claims.Subject,
		Role:               claims.Role,
		EstablishmentCodes: claims.EstablishmentCodes,
	}, nil
}
