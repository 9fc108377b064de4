package main

import (
	"log"
	"strconv"
	"time"
)

// Gate composes the token authority, the revocation ledger and the
// operator store into authenticated identities. Every decision re-reads
// the store, so role and status changes apply on the next request.
type Gate struct {
	store  Store
	tokens *TokenAuthority
}

func NewGate(store Store, tokens *TokenAuthority) *Gate {
	return &Gate{store: store, tokens: tokens}
}

// Authenticate verifies a fingerprint id / password pair. It does not
// gate on role or status.
func (g *Gate) Authenticate(fingerprintID int, password string) (*Operator, error) {
	op, err := g.store.GetOperatorByFingerprintID(fingerprintID)
	if err != nil {
		return nil, err
	}
	if op == nil {
		return nil, errBadCredentials
	}
	if !comparePassword(op.PasswordHash, password) {
		return nil, errBadCredentials
	}
	return op, nil
}

// Login authenticates and mints a dashboard session token. Only admins
// may obtain tokens through this path; correct credentials with an
// operator role fail with errForbiddenRole.
func (g *Gate) Login(fingerprintID int, password string) (string, *Operator, error) {
	op, err := g.Authenticate(fingerprintID, password)
	if err != nil {
		return "", nil, err
	}
	if op.Role != RoleAdmin {
		return "", nil, errForbiddenRole
	}
	token, err := g.tokens.IssueLogin(strconv.Itoa(op.FingerprintID))
	if err != nil {
		return "", nil, err
	}
	return token, op, nil
}

// ResolveIdentity turns a bearer token into an operator. The order is
// fixed: revocation ledger first, then signature and expiry, then the
// store lookup by subject.
func (g *Gate) ResolveIdentity(token string) (*Operator, error) {
	revoked, err := g.store.IsTokenBlacklisted(token)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, errTokenRevoked
	}
	sub, err := g.tokens.Validate(token)
	if err != nil {
		return nil, err
	}
	fingerprintID, err := strconv.Atoi(sub)
	if err != nil {
		return nil, errInvalidToken
	}
	op, err := g.store.GetOperatorByFingerprintID(fingerprintID)
	if err != nil {
		return nil, err
	}
	if op == nil {
		return nil, errUnknownSubject
	}
	return op, nil
}

// RequireRole gates an already-resolved identity by role.
func (g *Gate) RequireRole(op *Operator, role string) error {
	if op.Role != role {
		return errForbiddenRole
	}
	return nil
}

// Logout pushes the token into the revocation ledger. Internal failures
// are logged and converted to false; nothing propagates past this
// boundary.
func (g *Gate) Logout(token string) bool {
	expiresAt := g.tokens.Expiry(token)
	if err := g.store.BlacklistToken(token, expiresAt); err != nil {
		log.Printf("logout: blacklist token: %v", err)
		return false
	}
	return true
}

// PurgeExpired removes ledger rows whose expiry has passed and returns
// the number deleted. Callers are responsible for the admin check.
func (g *Gate) PurgeExpired(now time.Time) (int64, error) {
	return g.store.PurgeExpiredTokens(now)
}
