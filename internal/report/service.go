package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"cleancity/server/internal/account"
	"cleancity/server/internal/model"
	"cleancity/server/internal/store"
)

// Points credited to the reporter when their report reaches collected.
const rewardPerCollection = 10

// Service handles citizen waste reports and their city-scoped moderation.
// Authentication and scoping reuse the account core.
type Service struct {
	store    store.Store
	accounts *account.Service
}

func NewService(st store.Store, accounts *account.Service) *Service {
	return &Service{store: st, accounts: accounts}
}

type SubmitInput struct {
	Location    string
	Description string
}

// Submit files a report in the caller's own city.
func (s *Service) Submit(ctx context.Context, token string, in SubmitInput) (model.WasteReport, error) {
	_, user, err := s.accounts.Current(ctx, token)
	if err != nil {
		return model.WasteReport{}, err
	}

	in.Location = strings.TrimSpace(in.Location)
	in.Description = strings.TrimSpace(in.Description)
	if in.Description == "" {
		return model.WasteReport{}, fmt.Errorf("%w: description is required", account.ErrValidation)
	}

	now := time.Now().UTC()
	report := model.WasteReport{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		City:        user.City,
		Location:    in.Location,
		Description: in.Description,
		Status:      model.ReportOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateReport(ctx, report); err != nil {
		return model.WasteReport{}, err
	}
	return report, nil
}

func (s *Service) ListMine(ctx context.Context, token string) ([]model.WasteReport, error) {
	_, user, err := s.accounts.Current(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.store.ListReportsByUser(ctx, user.ID)
}

// ListCity returns every report in the admin's own city.
func (s *Service) ListCity(ctx context.Context, token string) ([]model.WasteReport, error) {
	_, user, err := s.accounts.Current(ctx, token)
	if err != nil {
		return nil, err
	}
	if user.Role != model.RoleAdmin {
		return nil, account.ErrForbidden
	}
	return s.store.ListReportsByCity(ctx, user.City)
}

func validTransition(from, to model.ReportStatus) bool {
	switch from {
	case model.ReportOpen:
		return to == model.ReportInProgress || to == model.ReportCollected
	case model.ReportInProgress:
		return to == model.ReportCollected
	default:
		return false
	}
}

// SetStatus advances a report. The transition to collected credits the
// reporter's reward points; the conditional status update makes sure a
// report is credited at most once.
func (s *Service) SetStatus(ctx context.Context, token, reportID string, to model.ReportStatus) (model.WasteReport, error) {
	_, admin, err := s.accounts.Current(ctx, token)
	if err != nil {
		return model.WasteReport{}, err
	}
	if admin.Role != model.RoleAdmin {
		return model.WasteReport{}, account.ErrForbidden
	}

	report, err := s.store.GetReportByID(ctx, reportID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.WasteReport{}, account.ErrNotFound
		}
		return model.WasteReport{}, err
	}
	if !strings.EqualFold(report.City, admin.City) {
		return model.WasteReport{}, account.ErrForbidden
	}
	if !validTransition(report.Status, to) {
		return model.WasteReport{}, fmt.Errorf("%w: cannot move %s report to %s", account.ErrValidation, report.Status, to)
	}

	transitioned, err := s.store.SetReportStatus(ctx, reportID, report.Status, to)
	if err != nil {
		return model.WasteReport{}, err
	}
	if !transitioned {
		// Someone else advanced it first; report the current state.
		return s.store.GetReportByID(ctx, reportID)
	}
	report.Status = to

	if to == model.ReportCollected {
		if err := s.store.AddRewardPoints(ctx, report.UserID, rewardPerCollection); err != nil {
			// The reporter may have been deleted since filing; the status
			// change stands either way.
			if !errors.Is(err, store.ErrNotFound) {
				return model.WasteReport{}, err
			}
		}
	}
	return report, nil
}
