// Package auth reads the bearer credential issued by the external auth
// service. The client never verifies the signature; the servers do. It
// only needs the identity the token was issued for.
package auth

import (
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

var (
	// ErrNoCredential is returned when neither a token nor a token file is set.
	ErrNoCredential = errors.New("no credential configured")
	// ErrExpired is returned for a token past its expiry.
	ErrExpired = errors.New("credential expired")
)

// Claims are the claims carried by chat tokens.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username,omitempty"`
}

// Credential is a bearer token and the identity it was issued for.
type Credential struct {
	Token     string
	UserID    string
	Username  string
	ExpiresAt time.Time
}

// Load reads the credential from token, or from tokenFile when token is
// empty.
func Load(token, tokenFile string, now time.Time) (Credential, error) {
	if token == "" && tokenFile != "" {
		data, err := os.ReadFile(tokenFile)
		if err != nil {
			return Credential{}, errors.Wrap(err, "read token file")
		}
		token = strings.TrimSpace(string(data))
	}
	if token == "" {
		return Credential{}, ErrNoCredential
	}
	return Parse(token, now)
}

// Parse extracts the identity of token.
func Parse(token string, now time.Time) (Credential, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Credential{}, errors.Wrap(err, "parse token")
	}
	if claims.Subject == "" {
		return Credential{}, errors.New("token has no subject")
	}

	cred := Credential{Token: token, UserID: claims.Subject, Username: claims.Username}
	if cred.Username == "" {
		cred.Username = claims.Subject
	}
	if claims.ExpiresAt != nil {
		cred.ExpiresAt = claims.ExpiresAt.Time
		if !now.Before(cred.ExpiresAt) {
			return Credential{}, errors.Wrapf(ErrExpired, "expired at %s", cred.ExpiresAt.Format(time.RFC3339))
		}
	}
	return cred, nil
}

// Issue signs an HS256 token for userID. It backs the development server,
// which stands in for the auth service.
func Issue(userID, username string, secret []byte, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID,
			IssuedAt: jwt.NewNumericDate(now),
		},
		Username: username,
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

// Verify checks an HS256 token signed with secret and returns its claims.
func Verify(token string, secret []byte) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, errors.Wrap(err, "verify token")
	}
	return &claims, nil
}
