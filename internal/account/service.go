package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"cleancity/server/internal/crypto"
	"cleancity/server/internal/model"
	"cleancity/server/internal/session"
	"cleancity/server/internal/store"
)

// maxAdminsPerCity caps how many active administrators a city can have. The
// first one is bootstrapped with a secret code; the rest go through
// superadmin approval.
const maxAdminsPerCity = 5

// Service is the authentication and admin-provisioning core. Reads and the
// conditional request-status transition are retry-safe; CreateUser and
// CreateAdminRequest are not (no idempotency key), callers must not blindly
// retry those on transient store errors.
type Service struct {
	store    store.Store
	sessions *session.Manager
}

func NewService(st store.Store, sessions *session.Manager) *Service {
	return &Service{store: st, sessions: sessions}
}

type RegisterInput struct {
	FullName   string
	Email      string
	Password   string
	Role       model.Role
	City       string
	State      string
	Pincode    string
	SecretCode string
}

// RegisterResult reports either a created account with a live session, or an
// enqueued admin request (Pending=true, no session).
type RegisterResult struct {
	User    model.User
	Token   string
	Pending bool
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func (in *RegisterInput) validate() error {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = normalizeEmail(in.Email)
	in.City = strings.TrimSpace(in.City)
	in.State = strings.TrimSpace(in.State)
	in.Pincode = strings.TrimSpace(in.Pincode)
	in.SecretCode = strings.TrimSpace(in.SecretCode)

	if in.FullName == "" || in.Email == "" || in.City == "" {
		return fmt.Errorf("%w: name, email and city are required", ErrValidation)
	}
	if !strings.Contains(in.Email, "@") {
		return fmt.Errorf("%w: malformed email", ErrValidation)
	}
	if len(in.Password) < 6 {
		return fmt.Errorf("%w: password must be at least 6 characters", ErrValidation)
	}
	if !in.Role.Valid() {
		return fmt.Errorf("%w: unknown role", ErrValidation)
	}
	return nil
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	if err := in.validate(); err != nil {
		return RegisterResult{}, err
	}

	if _, err := s.store.GetUserByEmail(ctx, in.Email); err == nil {
		return RegisterResult{}, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return RegisterResult{}, err
	}
	if pending, err := s.store.HasPendingAdminRequestByEmail(ctx, in.Email); err != nil {
		return RegisterResult{}, err
	} else if pending {
		return RegisterResult{}, ErrEmailTaken
	}

	if in.Role == model.RoleCitizen {
		return s.registerCitizen(ctx, in)
	}
	return s.registerAdmin(ctx, in)
}

func (s *Service) registerCitizen(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	user, err := s.newUser(in, model.RoleCitizen)
	if err != nil {
		return RegisterResult{}, err
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return RegisterResult{}, ErrEmailTaken
		}
		return RegisterResult{}, err
	}
	token, err := s.sessions.Create(ctx, user.ID, user.Role, user.City)
	if err != nil {
		return RegisterResult{}, err
	}
	return RegisterResult{User: user, Token: token}, nil
}

// registerAdmin picks the path by the live admin count of the city:
// zero admins means bootstrap via secret code, below the ceiling means a
// pending request, at the ceiling means refusal.
func (s *Service) registerAdmin(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	count, err := s.store.CountActiveAdminsByCity(ctx, in.City)
	if err != nil {
		return RegisterResult{}, err
	}

	switch {
	case count == 0:
		return s.bootstrapAdmin(ctx, in)
	case count < maxAdminsPerCity:
		return s.enqueueAdminRequest(ctx, in)
	default:
		return RegisterResult{}, ErrAdminLimitReached
	}
}

func (s *Service) bootstrapAdmin(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	if in.SecretCode == "" {
		return RegisterResult{}, ErrSecretCodeRequired
	}
	code, err := s.store.GetCodeByValue(ctx, in.SecretCode)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return RegisterResult{}, ErrInvalidSecretCode
		}
		return RegisterResult{}, err
	}
	if code.IsUsed || !strings.EqualFold(code.City, in.City) {
		return RegisterResult{}, ErrInvalidSecretCode
	}

	user, err := s.newUser(in, model.RoleAdmin)
	if err != nil {
		return RegisterResult{}, err
	}
	if err := s.store.CreateAdminWithCode(ctx, user, code.ID); err != nil {
		switch {
		case errors.Is(err, store.ErrCodeUsed):
			return RegisterResult{}, ErrInvalidSecretCode
		case errors.Is(err, store.ErrDuplicateEmail):
			return RegisterResult{}, ErrEmailTaken
		}
		return RegisterResult{}, err
	}

	token, err := s.sessions.Create(ctx, user.ID, user.Role, user.City)
	if err != nil {
		return RegisterResult{}, err
	}
	return RegisterResult{User: user, Token: token}, nil
}

// The secret code is deliberately ignored here: once a city has an admin,
// growth is gated by human review, not by codes.
func (s *Service) enqueueAdminRequest(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	hash, err := crypto.HashPassword(in.Password)
	if err != nil {
		return RegisterResult{}, err
	}
	req := model.AdminRequest{
		ID:           uuid.NewString(),
		FullName:     in.FullName,
		Email:        in.Email,
		PasswordHash: hash,
		City:         in.City,
		State:        in.State,
		Pincode:      in.Pincode,
		Status:       model.RequestPending,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateAdminRequest(ctx, req); err != nil {
		return RegisterResult{}, err
	}
	return RegisterResult{Pending: true}, nil
}

func (s *Service) newUser(in RegisterInput, role model.Role) (model.User, error) {
	hash, err := crypto.HashPassword(in.Password)
	if err != nil {
		return model.User{}, err
	}
	now := time.Now().UTC()
	return model.User{
		ID:           uuid.NewString(),
		FullName:     in.FullName,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         role,
		City:         in.City,
		State:        in.State,
		Pincode:      in.Pincode,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

type LoginResult struct {
	User  model.User
	Token string
}

// Login authenticates and issues a session. An empty role skips the role
// check; a declared role that does not match collapses into the same
// invalid-credentials answer as a wrong password.
func (s *Service) Login(ctx context.Context, email, password string, role model.Role) (LoginResult, error) {
	email = normalizeEmail(email)
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	if err := crypto.CheckPassword(user.PasswordHash, password); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}
	if role != "" && role != user.Role {
		return LoginResult{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := s.sessions.Create(ctx, user.ID, user.Role, user.City)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{User: user, Token: token}, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Destroy(ctx, token)
}

// Current resolves a token against the session store and the live user
// record. A session whose user has been deactivated or deleted fails closed
// and is destroyed eagerly, even before its TTL expires.
func (s *Service) Current(ctx context.Context, token string) (session.Session, model.User, error) {
	sess, err := s.sessions.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return session.Session{}, model.User{}, ErrUnauthenticated
		}
		return session.Session{}, model.User{}, err
	}
	user, err := s.store.GetUserByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = s.sessions.Destroy(ctx, token)
			return session.Session{}, model.User{}, ErrUnauthenticated
		}
		return session.Session{}, model.User{}, err
	}
	if !user.IsActive {
		_ = s.sessions.Destroy(ctx, token)
		return session.Session{}, model.User{}, ErrUnauthenticated
	}
	return sess, user, nil
}

func (s *Service) requireAdmin(ctx context.Context, token string) (model.User, error) {
	_, user, err := s.Current(ctx, token)
	if err != nil {
		return model.User{}, err
	}
	if user.Role != model.RoleAdmin {
		return model.User{}, ErrForbidden
	}
	return user, nil
}

// ListUsers returns the caller's own city only; an admin never sees another
// city's users.
func (s *Service) ListUsers(ctx context.Context, token string) ([]model.User, error) {
	admin, err := s.requireAdmin(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.store.ListUsersByCity(ctx, admin.City)
}

// SelfPatch enumerates the fields a user may change on their own record.
// Role, activation and reward points are deliberately not here.
type SelfPatch struct {
	FullName *string
	State    *string
	Pincode  *string
	Password *string
}

func (s *Service) UpdateSelf(ctx context.Context, token string, patch SelfPatch) (model.User, error) {
	_, user, err := s.Current(ctx, token)
	if err != nil {
		return model.User{}, err
	}

	if patch.FullName != nil {
		name := strings.TrimSpace(*patch.FullName)
		if name == "" {
			return model.User{}, fmt.Errorf("%w: name must not be empty", ErrValidation)
		}
		user.FullName = name
	}
	if patch.State != nil {
		user.State = strings.TrimSpace(*patch.State)
	}
	if patch.Pincode != nil {
		user.Pincode = strings.TrimSpace(*patch.Pincode)
	}
	if patch.Password != nil {
		if len(*patch.Password) < 6 {
			return model.User{}, fmt.Errorf("%w: password must be at least 6 characters", ErrValidation)
		}
		hash, err := crypto.HashPassword(*patch.Password)
		if err != nil {
			return model.User{}, err
		}
		user.PasswordHash = hash
	}
	user.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateUser(ctx, user); err != nil {
		return model.User{}, err
	}
	return user, nil
}

func (s *Service) SetUserActive(ctx context.Context, token, userID string, active bool) (model.User, error) {
	admin, err := s.requireAdmin(ctx, token)
	if err != nil {
		return model.User{}, err
	}
	target, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, err
	}
	if !strings.EqualFold(target.City, admin.City) {
		return model.User{}, ErrForbidden
	}
	if err := s.store.SetUserActive(ctx, userID, active); err != nil {
		return model.User{}, err
	}
	target.IsActive = active
	return target, nil
}

func (s *Service) DeleteUser(ctx context.Context, token, userID string) error {
	admin, err := s.requireAdmin(ctx, token)
	if err != nil {
		return err
	}
	if admin.ID == userID {
		return ErrSelfDeletionForbidden
	}
	target, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if !strings.EqualFold(target.City, admin.City) {
		return ErrForbidden
	}
	deleted, err := s.store.DeleteUser(ctx, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}

func (s *Service) ListAdminRequests(ctx context.Context, token string) ([]model.AdminRequest, error) {
	admin, err := s.requireAdmin(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.store.ListPendingAdminRequestsByCity(ctx, admin.City)
}

// requireSuperadmin loads the request and checks the caller is the
// earliest-created active admin of the request's city. A request outside the
// caller's city reads as absent, not as forbidden.
func (s *Service) requireSuperadmin(ctx context.Context, token, requestID string) (model.User, model.AdminRequest, error) {
	admin, err := s.requireAdmin(ctx, token)
	if err != nil {
		return model.User{}, model.AdminRequest{}, err
	}
	req, err := s.store.GetAdminRequestByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.User{}, model.AdminRequest{}, ErrNotFound
		}
		return model.User{}, model.AdminRequest{}, err
	}
	if !strings.EqualFold(req.City, admin.City) {
		return model.User{}, model.AdminRequest{}, ErrNotFound
	}
	superadminID, err := s.store.GetSuperadminID(ctx, admin.City)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.User{}, model.AdminRequest{}, ErrForbidden
		}
		return model.User{}, model.AdminRequest{}, err
	}
	if superadminID != admin.ID {
		return model.User{}, model.AdminRequest{}, ErrForbidden
	}
	return admin, req, nil
}

// ApproveAdminRequest converts a pending request into an admin account.
// Account creation comes first, the pending-only status transition second;
// the unique email constraint makes the pair safe to retry after a crash
// between the two without provisioning a duplicate admin.
func (s *Service) ApproveAdminRequest(ctx context.Context, token, requestID string) (model.AdminRequest, error) {
	_, req, err := s.requireSuperadmin(ctx, token, requestID)
	if err != nil {
		return model.AdminRequest{}, err
	}
	if req.Status != model.RequestPending {
		return model.AdminRequest{}, ErrRequestNotPending
	}

	// The count may have grown since the request was filed.
	count, err := s.store.CountActiveAdminsByCity(ctx, req.City)
	if err != nil {
		return model.AdminRequest{}, err
	}
	if count >= maxAdminsPerCity {
		return model.AdminRequest{}, ErrAdminLimitReached
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		FullName:     req.FullName,
		Email:        req.Email,
		PasswordHash: req.PasswordHash,
		Role:         model.RoleAdmin,
		City:         req.City,
		State:        req.State,
		Pincode:      req.Pincode,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.store.CreateUser(ctx, user)
	if errors.Is(err, store.ErrDuplicateEmail) {
		// Either a crashed approval left the account without the transition,
		// or a concurrent approval won. Completing the transition heals the
		// former; a no-op transition identifies the latter.
		transitioned, terr := s.store.SetAdminRequestStatus(ctx, requestID, model.RequestApproved)
		if terr != nil {
			return model.AdminRequest{}, terr
		}
		if !transitioned {
			return model.AdminRequest{}, ErrRequestNotPending
		}
		req.Status = model.RequestApproved
		return req, nil
	}
	if err != nil {
		return model.AdminRequest{}, err
	}

	transitioned, err := s.store.SetAdminRequestStatus(ctx, requestID, model.RequestApproved)
	if err != nil {
		return model.AdminRequest{}, err
	}
	if !transitioned {
		// The account exists but the request turned terminal underneath us;
		// surface it so the operator looks at the request log.
		return model.AdminRequest{}, ErrRequestNotPending
	}
	req.Status = model.RequestApproved
	return req, nil
}

// RejectAdminRequest marks a pending request rejected. Rejecting an
// already-terminal request is a no-op success.
func (s *Service) RejectAdminRequest(ctx context.Context, token, requestID string) (model.AdminRequest, error) {
	_, req, err := s.requireSuperadmin(ctx, token, requestID)
	if err != nil {
		return model.AdminRequest{}, err
	}
	if req.Status != model.RequestPending {
		return req, nil
	}
	transitioned, err := s.store.SetAdminRequestStatus(ctx, requestID, model.RequestRejected)
	if err != nil {
		return model.AdminRequest{}, err
	}
	if transitioned {
		req.Status = model.RequestRejected
		return req, nil
	}
	// Lost a race against approve or another reject; report what stands now.
	return s.store.GetAdminRequestByID(ctx, requestID)
}
