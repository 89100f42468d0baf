package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"cleancity/server/internal/model"
)

// MemoryStore implements Store over in-process maps with the same
// case-insensitive and conditional-update semantics as PGStore. It backs the
// service when DATABASE_URL is unset and every test that needs a store.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]model.User
	codes    map[string]model.AdminSecretCode
	requests map[string]model.AdminRequest
	reports  map[string]model.WasteReport
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]model.User),
		codes:    make(map[string]model.AdminSecretCode),
		requests: make(map[string]model.AdminRequest),
		reports:  make(map[string]model.WasteReport),
	}
}

func (m *MemoryStore) GetUserByEmail(_ context.Context, email string) (model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, user := range m.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return model.User{}, ErrNotFound
}

func (m *MemoryStore) GetUserByID(_ context.Context, id string) (model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return user, nil
}

func (m *MemoryStore) CreateUser(_ context.Context, user model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertUserLocked(user)
}

func (m *MemoryStore) insertUserLocked(user model.User) error {
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return ErrDuplicateEmail
		}
	}
	m.users[user.ID] = user
	return nil
}

func (m *MemoryStore) UpdateUser(_ context.Context, user model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.users[user.ID]
	if !ok {
		return ErrNotFound
	}
	existing.FullName = user.FullName
	existing.PasswordHash = user.PasswordHash
	existing.State = user.State
	existing.Pincode = user.Pincode
	existing.UpdatedAt = user.UpdatedAt
	m.users[user.ID] = existing
	return nil
}

func (m *MemoryStore) SetUserActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	user.IsActive = active
	user.UpdatedAt = time.Now().UTC()
	m.users[id] = user
	return nil
}

func (m *MemoryStore) DeleteUser(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return false, nil
	}
	delete(m.users, id)
	return true, nil
}

func (m *MemoryStore) ListUsersByCity(_ context.Context, city string) ([]model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]model.User, 0)
	for _, user := range m.users {
		if strings.EqualFold(user.City, city) {
			users = append(users, user)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

func (m *MemoryStore) CountActiveAdminsByCity(_ context.Context, city string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, user := range m.users {
		if user.Role == model.RoleAdmin && user.IsActive && strings.EqualFold(user.City, city) {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) GetSuperadminID(_ context.Context, city string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var superadmin *model.User
	for _, user := range m.users {
		if user.Role != model.RoleAdmin || !user.IsActive || !strings.EqualFold(user.City, city) {
			continue
		}
		user := user
		if superadmin == nil || user.CreatedAt.Before(superadmin.CreatedAt) {
			superadmin = &user
		}
	}
	if superadmin == nil {
		return "", ErrNotFound
	}
	return superadmin.ID, nil
}

func (m *MemoryStore) AddRewardPoints(_ context.Context, id string, points int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	user.RewardPoints += points
	user.UpdatedAt = time.Now().UTC()
	m.users[id] = user
	return nil
}

func (m *MemoryStore) GetCodeByValue(_ context.Context, code string) (model.AdminSecretCode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, secret := range m.codes {
		if secret.Code == code {
			return secret, nil
		}
	}
	return model.AdminSecretCode{}, ErrNotFound
}

func (m *MemoryStore) CreateSecretCode(_ context.Context, code model.AdminSecretCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[code.ID] = code
	return nil
}

func (m *MemoryStore) CreateAdminWithCode(_ context.Context, user model.User, codeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	code, ok := m.codes[codeID]
	if !ok || code.IsUsed {
		return ErrCodeUsed
	}
	if err := m.insertUserLocked(user); err != nil {
		return err
	}
	code.IsUsed = true
	m.codes[codeID] = code
	return nil
}

func (m *MemoryStore) CreateAdminRequest(_ context.Context, req model.AdminRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[req.ID] = req
	return nil
}

func (m *MemoryStore) GetAdminRequestByID(_ context.Context, id string) (model.AdminRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.requests[id]
	if !ok {
		return model.AdminRequest{}, ErrNotFound
	}
	return req, nil
}

func (m *MemoryStore) ListPendingAdminRequestsByCity(_ context.Context, city string) ([]model.AdminRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	requests := make([]model.AdminRequest, 0)
	for _, req := range m.requests {
		if req.Status == model.RequestPending && strings.EqualFold(req.City, city) {
			requests = append(requests, req)
		}
	}
	sort.Slice(requests, func(i, j int) bool { return requests[i].CreatedAt.Before(requests[j].CreatedAt) })
	return requests, nil
}

func (m *MemoryStore) HasPendingAdminRequestByEmail(_ context.Context, email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, req := range m.requests {
		if req.Status == model.RequestPending && strings.EqualFold(req.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) SetAdminRequestStatus(_ context.Context, id string, status model.RequestStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return false, nil
	}
	if req.Status != model.RequestPending {
		return false, nil
	}
	req.Status = status
	m.requests[id] = req
	return true, nil
}

func (m *MemoryStore) CreateReport(_ context.Context, report model.WasteReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[report.ID] = report
	return nil
}

func (m *MemoryStore) GetReportByID(_ context.Context, id string) (model.WasteReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	report, ok := m.reports[id]
	if !ok {
		return model.WasteReport{}, ErrNotFound
	}
	return report, nil
}

func (m *MemoryStore) ListReportsByUser(_ context.Context, userID string) ([]model.WasteReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reports := make([]model.WasteReport, 0)
	for _, report := range m.reports {
		if report.UserID == userID {
			reports = append(reports, report)
		}
	}
	sortReports(reports)
	return reports, nil
}

func (m *MemoryStore) ListReportsByCity(_ context.Context, city string) ([]model.WasteReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reports := make([]model.WasteReport, 0)
	for _, report := range m.reports {
		if strings.EqualFold(report.City, city) {
			reports = append(reports, report)
		}
	}
	sortReports(reports)
	return reports, nil
}

func (m *MemoryStore) SetReportStatus(_ context.Context, id string, from, to model.ReportStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	report, ok := m.reports[id]
	if !ok {
		return false, nil
	}
	if report.Status != from {
		return false, nil
	}
	report.Status = to
	report.UpdatedAt = time.Now().UTC()
	m.reports[id] = report
	return true, nil
}

func sortReports(reports []model.WasteReport) {
	sort.Slice(reports, func(i, j int) bool { return reports[i].CreatedAt.After(reports[j].CreatedAt) })
}
