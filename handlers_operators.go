package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

func validRole(role string) bool {
	return role == RoleOperator || role == RoleAdmin
}

func validStatus(status string) bool {
	return status == StatusActive || status == StatusPending || status == StatusSuspended
}

type createOperatorRequest struct {
	Name          string  `json:"name"`
	FingerprintID int     `json:"fingerprint_id"`
	Email         *string `json:"email"`
	Phone         *string `json:"phone"`
	Role          string  `json:"role"`
	Password      string  `json:"password"`
	Status        string  `json:"status"`
}

// HandleCreateOperator creates an operator record.
// POST /operators/ (bearer)
func (a *App) HandleCreateOperator(w http.ResponseWriter, r *http.Request) {
	var req createOperatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if req.Name == "" || req.FingerprintID <= 0 {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Name and fingerprint_id are required")
		return
	}
	if req.Role == "" {
		req.Role = RoleOperator
	}
	if !validRole(req.Role) {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Unknown role")
		return
	}
	if req.Status == "" {
		req.Status = StatusActive
	}
	if !validStatus(req.Status) {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Unknown status")
		return
	}

	// Fingerprint-only operators carry no usable password hash; an empty
	// hash never verifies, so the dashboard login path stays closed.
	var hash string
	if req.Password != "" {
		var err error
		hash, err = hashPassword(req.Password)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to process password")
			return
		}
	}

	op, err := a.Store.CreateOperator(&Operator{
		Name:          req.Name,
		FingerprintID: req.FingerprintID,
		Role:          req.Role,
		PasswordHash:  hash,
		Email:         req.Email,
		Phone:         req.Phone,
		Status:        req.Status,
	})
	if err != nil {
		writeError(w, http.StatusConflict, "OPERATOR_EXISTS", "Operator with this fingerprint_id or email already exists")
		return
	}
	writeJSON(w, http.StatusCreated, op)
}

// HandleListOperators lists operators with optional search and status filter.
// GET /operators/?search=&status_filter= (bearer)
func (a *App) HandleListOperators(w http.ResponseWriter, r *http.Request) {
	search := r.URL.Query().Get("search")
	statusFilter := r.URL.Query().Get("status_filter")
	if statusFilter != "" && !validStatus(statusFilter) {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Unknown status filter")
		return
	}
	ops, err := a.Store.ListOperators(search, statusFilter)
	if err != nil {
		log.Printf("list operators: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Query failed")
		return
	}
	if ops == nil {
		ops = []*Operator{}
	}
	writeJSON(w, http.StatusOK, ops)
}

// HandleOperatorMe returns the identity behind the presented token.
// GET /operators/me (bearer)
func (a *App) HandleOperatorMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, operatorFromContext(r.Context()))
}

func fingerprintIDFromPath(r *http.Request) (int, error) {
	return strconv.Atoi(mux.Vars(r)["fingerprint_id"])
}

// HandleGetOperator returns one operator by fingerprint id.
// GET /operators/{fingerprint_id} (bearer)
func (a *App) HandleGetOperator(w http.ResponseWriter, r *http.Request) {
	fid, err := fingerprintIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid fingerprint id")
		return
	}
	op, err := a.Store.GetOperatorByFingerprintID(fid)
	if err != nil {
		log.Printf("get operator: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Query failed")
		return
	}
	if op == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Operator not found")
		return
	}
	writeJSON(w, http.StatusOK, op)
}

// HandleUpdateOperator applies a partial update.
// PATCH /operators/{fingerprint_id} (bearer)
func (a *App) HandleUpdateOperator(w http.ResponseWriter, r *http.Request) {
	fid, err := fingerprintIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid fingerprint id")
		return
	}
	var upd OperatorUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if upd.Role != nil && !validRole(*upd.Role) {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Unknown role")
		return
	}
	if upd.Status != nil && !validStatus(*upd.Status) {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Unknown status")
		return
	}

	op, err := a.Store.GetOperatorByFingerprintID(fid)
	if err != nil {
		log.Printf("update operator: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Query failed")
		return
	}
	if op == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Operator not found")
		return
	}

	if upd.Name != nil {
		op.Name = *upd.Name
	}
	if upd.Email != nil {
		op.Email = upd.Email
	}
	if upd.Phone != nil {
		op.Phone = upd.Phone
	}
	if upd.Role != nil {
		op.Role = *upd.Role
	}
	if upd.Status != nil {
		op.Status = *upd.Status
	}
	if upd.FingerprintIDReal != nil {
		op.FingerprintIDReal = upd.FingerprintIDReal
	}
	if upd.Password != nil && *upd.Password != "" {
		hash, err := hashPassword(*upd.Password)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to process password")
			return
		}
		op.PasswordHash = hash
	}

	if err := a.Store.SaveOperator(op); err != nil {
		log.Printf("update operator: save: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Update failed")
		return
	}
	writeJSON(w, http.StatusOK, op)
}

// HandleDeleteOperator removes an operator record.
// DELETE /operators/{fingerprint_id} (bearer)
func (a *App) HandleDeleteOperator(w http.ResponseWriter, r *http.Request) {
	fid, err := fingerprintIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid fingerprint id")
		return
	}
	if err := a.Store.DeleteOperator(fid); err != nil {
		if errors.Is(err, errNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Operator not found")
			return
		}
		log.Printf("delete operator: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Delete failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Operator deleted"})
}

type createUsageLogRequest struct {
	OperatorID          int64   `json:"operator_id"`
	OperationalDuration int     `json:"operational_duration"`
	ErrorLog            *string `json:"error_log"`
}

// HandleCreateUsageLog records a station activation.
// POST /usage_logs/ (bearer)
func (a *App) HandleCreateUsageLog(w http.ResponseWriter, r *http.Request) {
	var req createUsageLogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if req.OperatorID <= 0 {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "operator_id is required")
		return
	}
	l, err := a.Store.CreateUsageLog(&UsageLog{
		OperatorID:          req.OperatorID,
		OperationalDuration: req.OperationalDuration,
		ErrorLog:            req.ErrorLog,
	})
	if err != nil {
		log.Printf("create usage log: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Insert failed")
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

// HandleListUsageLogs pages through usage logs.
// GET /usage_logs/?skip=&limit= (bearer)
func (a *App) HandleListUsageLogs(w http.ResponseWriter, r *http.Request) {
	skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	logs, err := a.Store.ListUsageLogs(skip, limit)
	if err != nil {
		log.Printf("list usage logs: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Query failed")
		return
	}
	if logs == nil {
		logs = []*UsageLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// HandleDashboardStats returns the dashboard aggregate counts.
// GET /dashboard/stats (bearer)
func (a *App) HandleDashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.Store.DashboardStats(time.Now())
	if err != nil {
		log.Printf("dashboard stats: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Query failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
