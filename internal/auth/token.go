package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "maintcue"

var ErrInvalidToken = errors.New("invalid or expired session token")

type claims struct {
	HouseholdID int64  `json:"hid,omitempty"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 session tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a signed token for ac and its expiry.
func (i *Issuer) Issue(ac AuthContext) (string, time.Time, error) {
	if ac.Role != RoleHomeowner && ac.Role != RoleAdmin {
		return "", time.Time{}, fmt.Errorf("issue token: unknown role %q", ac.Role)
	}

	now := i.now()
	expiresAt := now.Add(i.ttl)
	subject := ac.Email
	if ac.Role == RoleHomeowner {
		subject = strconv.FormatInt(ac.HouseholdID, 10)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		HouseholdID: ac.HouseholdID,
		Email:       ac.Email,
		Role:        ac.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse verifies the token and returns the identity it carries. Any failure
// yields ErrInvalidToken.
func (i *Issuer) Parse(tokenString string) (AuthContext, error) {
	var c claims
	_, err := jwt.ParseWithClaims(tokenString, &c,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return AuthContext{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.Role == RoleHomeowner && c.HouseholdID == 0 {
		return AuthContext{}, fmt.Errorf("%w: homeowner token without household", ErrInvalidToken)
	}
	if c.Role != RoleHomeowner && c.Role != RoleAdmin {
		return AuthContext{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, c.Role)
	}
	return AuthContext{HouseholdID: c.HouseholdID, Email: c.Email, Role: c.Role}, nil
}
