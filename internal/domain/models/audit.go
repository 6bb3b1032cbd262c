package models

import "time"

// Audit event types.
const (
	AuditEventRegister = "register"
	AuditEventLogin    = "login"
	AuditEventRefresh  = "refresh"
)

// Audit failure reason codes.
const (
	AuditReasonDuplicateEmail      = "duplicate-email"
	AuditReasonInvalidCredentials  = "invalid-credentials"
	AuditReasonInvalidRefreshToken = "invalid-refresh-token"
)

// AuditEntry is an append-only record of one authentication attempt.
// UserID and Email stay nil when the attempt never resolved an account.
type AuditEntry struct {
	ID            int64
	EventType     string
	UserID        *int64
	Email         *string
	IPAddress     string
	Success       bool
	FailureReason *string
	CreatedAt     time.Time
}
