package models

import "time"

// User is an identity record. The ID is assigned by storage on save and the
// record is never updated afterwards.
type User struct {
	ID             int64
	Username       string
	Email          string
	PassHash       string
	RegistrationIP string
	CreatedAt      time.Time
}
