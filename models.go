package main

import "time"

// Operator roles and account statuses.
const (
	RoleOperator = "operator"
	RoleAdmin    = "admin"

	StatusActive    = "Active"
	StatusPending   = "Pending"
	StatusSuspended = "Suspended"
)

// Operator represents an equipment operator enrolled in the system.
// FingerprintID is the operator-facing numeric login id; FingerprintIDReal
// is the raw template identifier reported by the reader hardware. The two
// are distinct identity axes and are never unified.
type Operator struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	FingerprintID     int       `json:"fingerprint_id"`
	FingerprintIDReal *string   `json:"fingerprint_id_real,omitempty"`
	Role              string    `json:"role"`
	PasswordHash      string    `json:"-"`
	Email             *string   `json:"email,omitempty"`
	Phone             *string   `json:"phone,omitempty"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
}

// OperatorUpdate carries a partial update; nil fields are left unchanged.
type OperatorUpdate struct {
	Name              *string `json:"name"`
	Email             *string `json:"email"`
	Phone             *string `json:"phone"`
	Role              *string `json:"role"`
	Status            *string `json:"status"`
	Password          *string `json:"password"`
	FingerprintIDReal *string `json:"fingerprint_id_real"`
}

// UsageLog records one activation of the station by an operator.
type UsageLog struct {
	ID                  int64     `json:"id"`
	OperatorID          int64     `json:"operator_id"`
	ActivationTime      time.Time `json:"activation_time"`
	OperationalDuration int       `json:"operational_duration"`
	ErrorLog            *string   `json:"error_log,omitempty"`
}

// BlacklistedToken is a session token revoked before its natural expiry.
// The raw signed string is the key; ExpiresAt mirrors the token's own exp
// claim so expired entries can be purged.
type BlacklistedToken struct {
	Token         string    `json:"token"`
	BlacklistedAt time.Time `json:"blacklisted_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// DashboardStats holds the aggregate counts shown on the dashboard.
type DashboardStats struct {
	TotalOperators   int `json:"total_operators"`
	ActiveOperators  int `json:"active_operators"`
	TodayAttendance  int `json:"today_attendance"`
	PendingOperators int `json:"pending_operators"`
}
