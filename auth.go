package main

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// defaultTokenTTL applies when a caller does not ask for an explicit
// lifetime. The dashboard login path uses the configured TTL instead.
const defaultTokenTTL = 15 * time.Minute

// revokeFallbackTTL bounds the ledger lifetime of a token whose exp
// claim cannot be recovered.
const revokeFallbackTTL = time.Hour

func hashPassword(p string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(p), bcrypt.DefaultCost)
	return string(b), err
}

// comparePassword reports whether plaintext p matches the stored digest.
// A malformed digest simply verifies false.
func comparePassword(hash, p string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(p)) == nil
}

// TokenAuthority mints and validates HS256 session tokens. It is built
// once at startup from configuration; there is no package-level secret.
type TokenAuthority struct {
	secret   []byte
	loginTTL time.Duration
}

func NewTokenAuthority(secret []byte, loginTTL time.Duration) *TokenAuthority {
	if loginTTL <= 0 {
		loginTTL = defaultTokenTTL
	}
	return &TokenAuthority{secret: secret, loginTTL: loginTTL}
}

// Issue signs a token for the given subject. Claims carry only sub, exp,
// iat and jti; the operator's role is intentionally not embedded and is
// re-read from the store on every request.
func (ta *TokenAuthority) Issue(subject string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(ta.secret)
}

// IssueLogin mints a token with the configured login lifetime.
func (ta *TokenAuthority) IssueLogin(subject string) (string, error) {
	return ta.Issue(subject, ta.loginTTL)
}

// Validate checks signature and expiry and returns the subject claim.
// Structural corruption, a forged signature and an elapsed exp all
// surface as errInvalidToken.
func (ta *TokenAuthority) Validate(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ta.secret, nil
	})
	if err != nil || !token.Valid {
		return "", errInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errInvalidToken
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errInvalidToken
	}
	return sub, nil
}

// Expiry recovers the exp claim for the revocation ledger. Signature and
// expiry are not checked here: a token being revoked may already be
// expired or unverifiable, and still needs a ledger row. Undecodable
// tokens fall back to now plus one hour.
func (ta *TokenAuthority) Expiry(tokenString string) time.Time {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err == nil {
		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			if exp, ok := claims["exp"].(float64); ok {
				return time.Unix(int64(exp), 0)
			}
		}
	}
	return time.Now().Add(revokeFallbackTTL)
}
