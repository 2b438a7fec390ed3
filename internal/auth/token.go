package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultAccessTTL  = 30 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Kind distinguishes access tokens from refresh tokens.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Claims is the JWT payload. The token id travels in the registered "jti"
// claim and the user id in "sub".
type Claims struct {
	jwt.RegisteredClaims
	Kind Kind `json:"typ"`
}

// Identity is what a verified token says about its bearer.
type Identity struct {
	UserID    int64
	TokenID   string
	Kind      Kind
	ExpiresAt time.Time
}

// IssuedToken is a freshly signed token together with its metadata.
type IssuedToken struct {
	Value     string
	TokenID   string
	ExpiresAt time.Time
}

type IssuerConfig struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Now overrides the clock, mostly for tests.
	Now func() time.Time
}

// Issuer mints and verifies HS256 tokens with a server-held secret.
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrNoSecret
	}
	i := &Issuer{
		secret:     append([]byte(nil), cfg.Secret...),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        cfg.Now,
	}
	if i.accessTTL <= 0 {
		i.accessTTL = DefaultAccessTTL
	}
	if i.refreshTTL <= 0 {
		i.refreshTTL = DefaultRefreshTTL
	}
	if i.now == nil {
		i.now = time.Now
	}
	return i, nil
}

// IssueAccess returns a short-lived access token for userID.
func (i *Issuer) IssueAccess(userID int64) (*IssuedToken, error) {
	return i.issue(userID, KindAccess, i.accessTTL)
}

// IssueRefresh returns a long-lived refresh token for userID.
func (i *Issuer) IssueRefresh(userID int64) (*IssuedToken, error) {
	return i.issue(userID, KindRefresh, i.refreshTTL)
}

func (i *Issuer) issue(userID int64, kind Kind, ttl time.Duration) (*IssuedToken, error) {
	jti, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("generating token id: %w", err)
	}
	now := i.now()
	exp := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ID:        jti.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Kind: kind,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("signing %s token: %w", kind, err)
	}
	// exp is encoded with second precision; report what the token carries.
	return &IssuedToken{Value: signed, TokenID: jti.String(), ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Verify checks signature, kind and expiry of token. Expired tokens yield
// ErrTokenExpired, every other failure ErrInvalidToken. Expiry is decided
// before kind, so an expired token of the wrong kind still reports
// ErrTokenExpired. The revocation ledger is not consulted here.
func (i *Issuer) Verify(token string, want Kind) (*Identity, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if claims.ExpiresAt == nil || claims.ID == "" || claims.Kind != want {
		return nil, ErrInvalidToken
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return &Identity{
		UserID:    userID,
		TokenID:   claims.ID,
		Kind:      claims.Kind,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
