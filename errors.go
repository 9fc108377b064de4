package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
)

// Authorization failure kinds. ResolveIdentity failures are deliberately
// collapsed into one client-facing message so the caller cannot tell
// which check rejected the token.
var (
	errBadCredentials = errors.New("incorrect fingerprint id or password")
	errForbiddenRole  = errors.New("insufficient role")
	errInvalidToken   = errors.New("invalid token")
	errTokenRevoked   = errors.New("token revoked")
	errUnknownSubject = errors.New("unknown subject")
)

// APIError represents a structured API error response
type APIError struct {
	Code    string `json:"error_code"`
	Message string `json:"error_message"`
	Detail  string `json:"detail"`
}

// writeError writes a structured error response
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIError{
		Code:    code,
		Message: message,
		Detail:  message,
	})
}

// writeCredentialsError is the single 401 used for every token-resolution
// failure (invalid, expired, revoked, unknown subject).
func writeCredentialsError(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Could not validate credentials")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write json: %v", err)
	}
}
