package model

import "time"

type Role string

const (
	RoleCitizen Role = "citizen"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleCitizen || r == RoleAdmin
}

type User struct {
	ID           string
	FullName     string
	Email        string
	PasswordHash string
	Role         Role
	City         string
	State        string
	Pincode      string
	IsActive     bool
	RewardPoints int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AdminSecretCode bootstraps the first administrator of a city. A code is
// consumed at most once, atomically with the account it authorizes.
type AdminSecretCode struct {
	ID     string
	Code   string
	City   string
	IsUsed bool
}

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// AdminRequest holds an admin signup awaiting superadmin review. Status is
// write-once-terminal: pending moves to approved or rejected exactly once.
type AdminRequest struct {
	ID           string
	FullName     string
	Email        string
	PasswordHash string
	City         string
	State        string
	Pincode      string
	Status       RequestStatus
	CreatedAt    time.Time
}

type ReportStatus string

const (
	ReportOpen       ReportStatus = "open"
	ReportInProgress ReportStatus = "in_progress"
	ReportCollected  ReportStatus = "collected"
)

type WasteReport struct {
	ID          string
	UserID      string
	City        string
	Location    string
	Description string
	Status      ReportStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
