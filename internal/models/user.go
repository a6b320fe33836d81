package models

import "time"

const (
	RoleAdmin      = "admin"
	RoleSubscriber = "subscriber"
)

type User struct {
	ID           string
	Email        string
	PasswordHash []byte
	Name         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Role struct {
	ID   string
	Name string
}

type AuthOutcome string

const (
	AuthOutcomeSuccess          AuthOutcome = "success"
	AuthOutcomeWrongCredentials AuthOutcome = "wrong_credentials"
)

// AuthHistoryRecord is an append-only audit entry written for every
// login attempt, successful or not.
type AuthHistoryRecord struct {
	ID         string
	UserID     string
	DeviceID   string
	Outcome    AuthOutcome
	OccurredAt time.Time
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}
