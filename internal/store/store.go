package store

import (
	"context"
	"errors"

	"cleancity/server/internal/model"
)

var (
	// ErrNotFound covers missing users, codes, requests and reports.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateEmail surfaces the unique lower(email) constraint.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrCodeUsed means the conditional consume of a secret code lost the race.
	ErrCodeUsed = errors.New("secret code already used")
)

// City and email comparisons are case-insensitive equality throughout.
// Implementations must serialize writes per key; reads for different keys may
// run fully in parallel.

type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	GetUserByID(ctx context.Context, id string) (model.User, error)
	CreateUser(ctx context.Context, user model.User) error
	UpdateUser(ctx context.Context, user model.User) error
	SetUserActive(ctx context.Context, id string, active bool) error
	DeleteUser(ctx context.Context, id string) (bool, error)
	ListUsersByCity(ctx context.Context, city string) ([]model.User, error)
	CountActiveAdminsByCity(ctx context.Context, city string) (int, error)
	// GetSuperadminID returns the earliest-created active admin of the city.
	// Computed per call so admin deactivation takes effect immediately.
	GetSuperadminID(ctx context.Context, city string) (string, error)
	AddRewardPoints(ctx context.Context, id string, points int) error
}

type SecretCodeStore interface {
	GetCodeByValue(ctx context.Context, code string) (model.AdminSecretCode, error)
	CreateSecretCode(ctx context.Context, code model.AdminSecretCode) error
}

type AdminRequestStore interface {
	CreateAdminRequest(ctx context.Context, req model.AdminRequest) error
	GetAdminRequestByID(ctx context.Context, id string) (model.AdminRequest, error)
	ListPendingAdminRequestsByCity(ctx context.Context, city string) ([]model.AdminRequest, error)
	HasPendingAdminRequestByEmail(ctx context.Context, email string) (bool, error)
	// SetAdminRequestStatus transitions only while the request is still
	// pending and reports whether this call performed the transition.
	SetAdminRequestStatus(ctx context.Context, id string, status model.RequestStatus) (bool, error)
}

type ReportStore interface {
	CreateReport(ctx context.Context, report model.WasteReport) error
	GetReportByID(ctx context.Context, id string) (model.WasteReport, error)
	ListReportsByUser(ctx context.Context, userID string) ([]model.WasteReport, error)
	ListReportsByCity(ctx context.Context, city string) ([]model.WasteReport, error)
	// SetReportStatus transitions only from the given current status, so
	// side effects tied to a transition fire at most once.
	SetReportStatus(ctx context.Context, id string, from, to model.ReportStatus) (bool, error)
}

// Store is the full persistence boundary of the service.
type Store interface {
	UserStore
	SecretCodeStore
	AdminRequestStore
	ReportStore

	// CreateAdminWithCode creates the bootstrap admin and marks the code used
	// as one unit: both happen or neither does. Returns ErrCodeUsed when the
	// code was consumed concurrently, ErrDuplicateEmail on an email clash.
	CreateAdminWithCode(ctx context.Context, user model.User, codeID string) error
}
