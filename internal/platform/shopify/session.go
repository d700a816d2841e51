package shopify

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt"
)

// SessionClaims are the claims of an App Bridge session token.
type SessionClaims struct {
	jwt.StandardClaims
	Dest string `json:"dest"`
	Sid  string `json:"sid,omitempty"`
}

var (
	ErrSessionToken      = errors.New("invalid session token")
	ErrSessionTokenShop  = errors.New("session token does not name a shop")
	ErrSessionAudience   = errors.New("session token audience mismatch")
	ErrSessionIssuerDest = errors.New("session token issuer and destination differ")
	ErrNoAPISecret       = errors.New("app secret is not configured")
)

// VerifySessionToken validates an HS256 session token signed with the app
// secret and returns the shop domain from its dest claim.
func VerifySessionToken(raw, apiKey, apiSecret string) (string, error) {
	if apiSecret == "" {
		return "", ErrNoAPISecret
	}
	claims := &SessionClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(apiSecret), nil
	})
	if err != nil || !tok.Valid {
		return "", fmt.Errorf("%w: %v", ErrSessionToken, err)
	}
	if apiKey != "" && !claims.VerifyAudience(apiKey, true) {
		return "", ErrSessionAudience
	}

	dest, err := url.Parse(claims.Dest)
	if err != nil || !IsShopDomain(dest.Host) {
		return "", ErrSessionTokenShop
	}
	if claims.Issuer != "" {
		iss, err := url.Parse(claims.Issuer)
		if err != nil || !strings.EqualFold(iss.Host, dest.Host) {
			return "", ErrSessionIssuerDest
		}
	}
	return dest.Host, nil
}
