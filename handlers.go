package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"
)

func operatorSummary(op *Operator) map[string]interface{} {
	return map[string]interface{}{
		"id":             op.ID,
		"name":           op.Name,
		"fingerprint_id": op.FingerprintID,
		"role":           op.Role,
		"email":          op.Email,
	}
}

// HandleToken implements the dashboard login path.
// POST /token (form fields: username = fingerprint id, password)
func (a *App) HandleToken(w http.ResponseWriter, r *http.Request) {
	// PostFormValue handles both urlencoded and multipart form bodies
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Username and password are required")
		return
	}

	fingerprintID, err := strconv.Atoi(username)
	if err != nil {
		// a non-numeric username can never match an operator
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Incorrect fingerprint ID or password")
		return
	}

	token, op, err := a.Gate.Login(fingerprintID, password)
	switch {
	case errors.Is(err, errBadCredentials):
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Incorrect fingerprint ID or password")
		return
	case errors.Is(err, errForbiddenRole):
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Admin role required")
		return
	case err != nil:
		log.Printf("login: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Login failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": token,
		"token_type":   "bearer",
		"user":         operatorSummary(op),
	})
}

// HandleLogout revokes the presented token.
// POST /logout (bearer)
func (a *App) HandleLogout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if !a.Gate.Logout(token) {
		writeError(w, http.StatusInternalServerError, "LOGOUT_FAILED", "Logout failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Successfully logged out",
		"success": true,
	})
}

// HandleCleanupTokens purges expired rows from the revocation ledger.
// DELETE /cleanup-tokens (bearer + admin)
func (a *App) HandleCleanupTokens(w http.ResponseWriter, r *http.Request) {
	current := operatorFromContext(r.Context())
	if err := a.Gate.RequireRole(current, RoleAdmin); err != nil {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Admin role required")
		return
	}
	n, err := a.Gate.PurgeExpired(time.Now())
	if err != nil {
		log.Printf("cleanup tokens: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Cleanup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Cleaned up " + strconv.FormatInt(n, 10) + " expired tokens",
	})
}

// The fingerprint channel carries raw reader payloads. It is a separate,
// lower-trust path for hardware on the private network and intentionally
// bypasses bearer auth.

type fingerprintLoginRequest struct {
	FingerprintIDReal string  `json:"fingerprint_id_real"`
	Confidence        float64 `json:"confidence"`
}

type fingerprintEnrollRequest struct {
	FingerprintIDReal string `json:"fingerprint_id_real"`
	Status            string `json:"status"`
}

// HandleFingerprintLogin records attendance for a reader-matched operator.
// POST /fingerprint_login
func (a *App) HandleFingerprintLogin(w http.ResponseWriter, r *http.Request) {
	var req fingerprintLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FingerprintIDReal == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "fingerprint_id_real is required")
		return
	}

	op, err := a.Store.GetOperatorByRealID(req.FingerprintIDReal)
	if err != nil {
		log.Printf("fingerprint login: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Lookup failed")
		return
	}
	if op == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Fingerprint not recognized")
		return
	}
	if op.Status != StatusActive {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Operator is not active")
		return
	}

	if _, err := a.Store.CreateUsageLog(&UsageLog{OperatorID: op.ID}); err != nil {
		log.Printf("fingerprint login: usage log: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Attendance record failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "Attendance recorded",
		"operator": operatorSummary(op),
	})
}

// HandleFingerprintEnroll binds a reader-reported template id to the
// oldest pending operator that has none yet, activating the account.
// POST /fingerprint_enroll
func (a *App) HandleFingerprintEnroll(w http.ResponseWriter, r *http.Request) {
	var req fingerprintEnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FingerprintIDReal == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "fingerprint_id_real is required")
		return
	}

	op, err := a.Store.NextPendingOperator()
	if err != nil {
		log.Printf("fingerprint enroll: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Lookup failed")
		return
	}
	if op == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "No pending operator awaiting enrollment")
		return
	}

	op.FingerprintIDReal = &req.FingerprintIDReal
	op.Status = StatusActive
	if err := a.Store.SaveOperator(op); err != nil {
		log.Printf("fingerprint enroll: save: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Enrollment failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "Fingerprint enrolled",
		"operator": operatorSummary(op),
	})
}
