package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"cleancity/server/internal/account"
	"cleancity/server/internal/config"
	"cleancity/server/internal/model"
	"cleancity/server/internal/report"
	"cleancity/server/internal/session"
)

// SessionCookie carries the opaque session token. A bearer Authorization
// header is accepted as the alternative transport.
const SessionCookie = "cc_session"

type Server struct {
	cfg      config.Config
	accounts *account.Service
	reports  *report.Service
	log      *zap.Logger
}

func NewServer(cfg config.Config, accounts *account.Service, reports *report.Service, log *zap.Logger) *Server {
	return &Server{cfg: cfg, accounts: accounts, reports: reports, log: log}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.logRequests)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/logout", s.handleLogout)
	r.Get("/auth/me", s.handleMe)

	r.Route("/users", func(r chi.Router) {
		r.Get("/", s.handleListUsers)
		r.Patch("/me", s.handleUpdateSelf)
		r.Patch("/{userID}/active", s.handleSetUserActive)
		r.Delete("/{userID}", s.handleDeleteUser)
	})

	r.Route("/admin/requests", func(r chi.Router) {
		r.Get("/", s.handleListAdminRequests)
		r.Post("/{requestID}/approve", s.handleApproveAdminRequest)
		r.Post("/{requestID}/reject", s.handleRejectAdminRequest)
	})

	r.Route("/reports", func(r chi.Router) {
		r.Post("/", s.handleSubmitReport)
		r.Get("/", s.handleListCityReports)
		r.Get("/me", s.handleListMyReports)
		r.Patch("/{reportID}/status", s.handleSetReportStatus)
	})

	return r
}

type userSummary struct {
	ID           string    `json:"id"`
	FullName     string    `json:"fullName"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	City         string    `json:"city"`
	State        string    `json:"state"`
	Pincode      string    `json:"pincode"`
	IsActive     bool      `json:"isActive"`
	RewardPoints int       `json:"rewardPoints"`
	CreatedAt    time.Time `json:"createdAt"`
}

func mapUserSummary(user model.User) userSummary {
	return userSummary{
		ID:           user.ID,
		FullName:     user.FullName,
		Email:        user.Email,
		Role:         string(user.Role),
		City:         user.City,
		State:        user.State,
		Pincode:      user.Pincode,
		IsActive:     user.IsActive,
		RewardPoints: user.RewardPoints,
		CreatedAt:    user.CreatedAt,
	}
}

type requestSummary struct {
	ID        string    `json:"id"`
	FullName  string    `json:"fullName"`
	Email     string    `json:"email"`
	City      string    `json:"city"`
	State     string    `json:"state"`
	Pincode   string    `json:"pincode"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

func mapRequestSummary(req model.AdminRequest) requestSummary {
	return requestSummary{
		ID:        req.ID,
		FullName:  req.FullName,
		Email:     req.Email,
		City:      req.City,
		State:     req.State,
		Pincode:   req.Pincode,
		Status:    string(req.Status),
		CreatedAt: req.CreatedAt,
	}
}

type reportSummary struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	City        string    `json:"city"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func mapReportSummary(r model.WasteReport) reportSummary {
	return reportSummary{
		ID:          r.ID,
		UserID:      r.UserID,
		City:        r.City,
		Location:    r.Location,
		Description: r.Description,
		Status:      string(r.Status),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

type registerRequest struct {
	FullName   string `json:"fullName"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Role       string `json:"role"`
	City       string `json:"city"`
	State      string `json:"state"`
	Pincode    string `json:"pincode"`
	SecretCode string `json:"secretCode,omitempty"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	result, err := s.accounts.Register(r.Context(), account.RegisterInput{
		FullName:   req.FullName,
		Email:      req.Email,
		Password:   req.Password,
		Role:       model.Role(strings.TrimSpace(strings.ToLower(req.Role))),
		City:       req.City,
		State:      req.State,
		Pincode:    req.Pincode,
		SecretCode: req.SecretCode,
	})
	if err != nil {
		registrationsTotal.WithLabelValues("error").Inc()
		s.writeAccountError(w, err)
		return
	}

	if result.Pending {
		registrationsTotal.WithLabelValues("pending").Inc()
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "request_submitted"})
		return
	}

	registrationsTotal.WithLabelValues("created").Inc()
	s.setSessionCookie(w, result.Token)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"user":  mapUserSummary(result.User),
		"token": result.Token,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	result, err := s.accounts.Login(r.Context(), req.Email, req.Password, model.Role(strings.TrimSpace(strings.ToLower(req.Role))))
	if err != nil {
		loginsTotal.WithLabelValues("failure").Inc()
		s.writeAccountError(w, err)
		return
	}

	loginsTotal.WithLabelValues("success").Inc()
	s.setSessionCookie(w, result.Token)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":  mapUserSummary(result.User),
		"token": result.Token,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.accounts.Logout(r.Context(), s.sessionToken(r)); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	s.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	sess, user, err := s.accounts.Current(r.Context(), s.sessionToken(r))
	if err != nil {
		s.writeAccountError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":      mapUserSummary(user),
		"expiresAt": sess.ExpiresAt,
	})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.accounts.ListUsers(r.Context(), s.sessionToken(r))
	if err != nil {
		s.writeAccountError(w, err)
		return
	}
	resp := make([]userSummary, 0, len(users))
	for _, user := range users {
		resp = append(resp, mapUserSummary(user))
	}
	writeJSON(w, http.StatusOK, resp)
}

type updateSelfRequest struct {
	FullName *string `json:"fullName,omitempty"`
	State    *string `json:"state,omitempty"`
	Pincode  *string `json:"pincode,omitempty"`
	Password *string `json:"password,omitempty"`
}

func (s *Server) handleUpdateSelf(w http.ResponseWriter, r *http.Request) {
	var req updateSelfRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	user, err := s.accounts.UpdateSelf(r.Context(), s.sessionToken(r), account.SelfPatch{
		FullName: req.FullName,
		State:    req.State,
		Pincode:  req.Pincode,
		Password: req.Password,
	})
	if err != nil {
		s.writeAccountError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapUserSummary(user))
}

type setActiveRequest struct {
	IsActive bool `json:"isActive"`
}

func (s *Server) handleSetUserActive(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req setActiveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	user, err := s.accounts.SetUserActive(r.Context(), s.sessionToken(r), userID, req.IsActive)
	if err != nil {
		s.writeAccountError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapUserSummary(user))
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := s.accounts.DeleteUser(r.Context(), s.sessionToken(r), userID); err != nil {
		s.writeAccountError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListAdminRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := s.accounts.ListAdminRequests(r.Context(), s.sessionToken(r))
	if err != nil {
		s.writeAccountError(w, err)
		return
	}
	resp := make([]requestSummary, 0, len(requests))
	for _, req := range requests {
		resp = append(resp, mapRequestSummary(req))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleApproveAdminRequest(w http.ResponseWriter, r *http.Request) {
	req, err := s.accounts.ApproveAdminRequest(r.Context(), s.sessionToken(r), chi.URLParam(r, "requestID"))
	if err != nil {
		s.writeAccountError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapRequestSummary(req))
}

func (s *Server) handleRejectAdminRequest(w http.ResponseWriter, r *http.Request) {
	req, err := s.accounts.RejectAdminRequest(r.Context(), s.sessionToken(r), chi.URLParam(r, "requestID"))
	if err != nil {
		s.writeAccountError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapRequestSummary(req))
}

type submitReportRequest struct {
	Location    string `json:"location"`
	Description string `json:"description"`
}

func (s *Server) handleSubmitReport(w http.ResponseWriter, r *http.Request) {
	var req submitReportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	created, err := s.reports.Submit(r.Context(), s.sessionToken(r), report.SubmitInput{
		Location:    req.Location,
		Description: req.Description,
	})
	if err != nil {
		s.writeAccountError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapReportSummary(created))
}

func (s *Server) handleListMyReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.reports.ListMine(r.Context(), s.sessionToken(r))
	if err != nil {
		s.writeAccountError(w, err)
		return
	}
	s.writeReports(w, reports)
}

func (s *Server) handleListCityReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.reports.ListCity(r.Context(), s.sessionToken(r))
	if err != nil {
		s.writeAccountError(w, err)
		return
	}
	s.writeReports(w, reports)
}

func (s *Server) writeReports(w http.ResponseWriter, reports []model.WasteReport) {
	resp := make([]reportSummary, 0, len(reports))
	for _, item := range reports {
		resp = append(resp, mapReportSummary(item))
	}
	writeJSON(w, http.StatusOK, resp)
}

type setReportStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleSetReportStatus(w http.ResponseWriter, r *http.Request) {
	var req setReportStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	updated, err := s.reports.SetStatus(r.Context(), s.sessionToken(r), chi.URLParam(r, "reportID"),
		model.ReportStatus(strings.TrimSpace(strings.ToLower(req.Status))))
	if err != nil {
		s.writeAccountError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapReportSummary(updated))
}

// sessionToken pulls the token from the session cookie, falling back to a
// bearer Authorization header.
func (s *Server) sessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return bearerToken(r.Header.Get("Authorization"))
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.cfg.SessionTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.cfg.CookieSecure,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.cfg.CookieSecure,
	})
}

func (s *Server) writeAccountError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, account.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
	case errors.Is(err, account.ErrUnauthenticated), errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusUnauthorized, "unauthenticated")
	case errors.Is(err, account.ErrSelfDeletionForbidden):
		writeError(w, http.StatusForbidden, "self_deletion_forbidden")
	case errors.Is(err, account.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, account.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, account.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email_taken")
	case errors.Is(err, account.ErrRequestNotPending):
		writeError(w, http.StatusConflict, "request_not_pending")
	case errors.Is(err, account.ErrAdminLimitReached):
		writeError(w, http.StatusConflict, "admin_limit_reached")
	case errors.Is(err, account.ErrSecretCodeRequired):
		writeError(w, http.StatusBadRequest, "secret_code_required")
	case errors.Is(err, account.ErrInvalidSecretCode):
		writeError(w, http.StatusBadRequest, "invalid_secret_code")
	case errors.Is(err, account.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed")
	default:
		s.log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error")
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
