package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"cleancity/server/internal/model"
)

const uniqueViolation = "23505"

// PGStore is the Postgres-backed Store.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const userColumns = `id, full_name, email, password_hash, role, city, state, pincode, is_active, reward_points, created_at, updated_at`

func scanUser(row pgx.Row) (model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.FullName,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.City,
		&user.State,
		&user.Pincode,
		&user.IsActive,
		&user.RewardPoints,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	return user, err
}

func (s *PGStore) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE LOWER(email) = LOWER($1)
	`, email)
	return scanUser(row)
}

func (s *PGStore) GetUserByID(ctx context.Context, id string) (model.User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row)
}

func (s *PGStore) CreateUser(ctx context.Context, user model.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, user.ID, user.FullName, user.Email, user.PasswordHash, user.Role, user.City,
		user.State, user.Pincode, user.IsActive, user.RewardPoints, user.CreatedAt, user.UpdatedAt)
	return mapUniqueViolation(err)
}

func (s *PGStore) UpdateUser(ctx context.Context, user model.User) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET full_name = $2, password_hash = $3, state = $4, pincode = $5, updated_at = $6
		WHERE id = $1
	`, user.ID, user.FullName, user.PasswordHash, user.State, user.Pincode, user.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) SetUserActive(ctx context.Context, id string, active bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET is_active = $2, updated_at = now() WHERE id = $1
	`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) DeleteUser(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PGStore) ListUsersByCity(ctx context.Context, city string) ([]model.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE LOWER(city) = LOWER($1)
		ORDER BY created_at
	`, city)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *PGStore) CountActiveAdminsByCity(ctx context.Context, city string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM users
		WHERE role = 'admin' AND is_active = true AND LOWER(city) = LOWER($1)
	`, city).Scan(&count)
	return count, err
}

func (s *PGStore) GetSuperadminID(ctx context.Context, city string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `
		SELECT id
		FROM users
		WHERE role = 'admin' AND is_active = true AND LOWER(city) = LOWER($1)
		ORDER BY created_at
		LIMIT 1
	`, city).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return id, err
}

func (s *PGStore) AddRewardPoints(ctx context.Context, id string, points int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET reward_points = reward_points + $2, updated_at = now() WHERE id = $1
	`, id, points)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) GetCodeByValue(ctx context.Context, code string) (model.AdminSecretCode, error) {
	var secret model.AdminSecretCode
	err := s.pool.QueryRow(ctx, `
		SELECT id, code, city, is_used
		FROM admin_secret_codes
		WHERE code = $1
	`, code).Scan(&secret.ID, &secret.Code, &secret.City, &secret.IsUsed)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.AdminSecretCode{}, ErrNotFound
	}
	return secret, err
}

func (s *PGStore) CreateSecretCode(ctx context.Context, code model.AdminSecretCode) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO admin_secret_codes (id, code, city, is_used)
		VALUES ($1, $2, $3, $4)
	`, code.ID, code.Code, code.City, code.IsUsed)
	return err
}

// CreateAdminWithCode inserts the admin and consumes the code in one
// transaction. The conditional update on is_used is the race guard: two
// bootstrap attempts with the same code commit at most one account.
func (s *PGStore) CreateAdminWithCode(ctx context.Context, user model.User, codeID string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, user.ID, user.FullName, user.Email, user.PasswordHash, user.Role, user.City,
		user.State, user.Pincode, user.IsActive, user.RewardPoints, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return mapUniqueViolation(err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE admin_secret_codes SET is_used = true WHERE id = $1 AND is_used = false
	`, codeID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrCodeUsed
	}

	return tx.Commit(ctx)
}

func (s *PGStore) CreateAdminRequest(ctx context.Context, req model.AdminRequest) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO admin_requests (id, full_name, email, password_hash, city, state, pincode, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, req.ID, req.FullName, req.Email, req.PasswordHash, req.City, req.State, req.Pincode, req.Status, req.CreatedAt)
	return err
}

const requestColumns = `id, full_name, email, password_hash, city, state, pincode, status, created_at`

func scanAdminRequest(row pgx.Row) (model.AdminRequest, error) {
	var req model.AdminRequest
	err := row.Scan(
		&req.ID,
		&req.FullName,
		&req.Email,
		&req.PasswordHash,
		&req.City,
		&req.State,
		&req.Pincode,
		&req.Status,
		&req.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.AdminRequest{}, ErrNotFound
	}
	return req, err
}

func (s *PGStore) GetAdminRequestByID(ctx context.Context, id string) (model.AdminRequest, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+requestColumns+`
		FROM admin_requests
		WHERE id = $1
	`, id)
	return scanAdminRequest(row)
}

func (s *PGStore) ListPendingAdminRequestsByCity(ctx context.Context, city string) ([]model.AdminRequest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+requestColumns+`
		FROM admin_requests
		WHERE status = 'pending' AND LOWER(city) = LOWER($1)
		ORDER BY created_at
	`, city)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := make([]model.AdminRequest, 0)
	for rows.Next() {
		req, err := scanAdminRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

func (s *PGStore) HasPendingAdminRequestByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM admin_requests WHERE status = 'pending' AND LOWER(email) = LOWER($1)
		)
	`, email).Scan(&exists)
	return exists, err
}

func (s *PGStore) SetAdminRequestStatus(ctx context.Context, id string, status model.RequestStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE admin_requests SET status = $2 WHERE id = $1 AND status = 'pending'
	`, id, status)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const reportColumns = `id, user_id, city, location, description, status, created_at, updated_at`

func scanReport(row pgx.Row) (model.WasteReport, error) {
	var report model.WasteReport
	err := row.Scan(
		&report.ID,
		&report.UserID,
		&report.City,
		&report.Location,
		&report.Description,
		&report.Status,
		&report.CreatedAt,
		&report.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.WasteReport{}, ErrNotFound
	}
	return report, err
}

func (s *PGStore) CreateReport(ctx context.Context, report model.WasteReport) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO waste_reports (`+reportColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, report.ID, report.UserID, report.City, report.Location, report.Description,
		report.Status, report.CreatedAt, report.UpdatedAt)
	return err
}

func (s *PGStore) GetReportByID(ctx context.Context, id string) (model.WasteReport, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+reportColumns+`
		FROM waste_reports
		WHERE id = $1
	`, id)
	return scanReport(row)
}

func (s *PGStore) ListReportsByUser(ctx context.Context, userID string) ([]model.WasteReport, error) {
	return s.listReports(ctx, `WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (s *PGStore) ListReportsByCity(ctx context.Context, city string) ([]model.WasteReport, error) {
	return s.listReports(ctx, `WHERE LOWER(city) = LOWER($1) ORDER BY created_at DESC`, city)
}

func (s *PGStore) listReports(ctx context.Context, clause string, arg string) ([]model.WasteReport, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+reportColumns+` FROM waste_reports `+clause, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports := make([]model.WasteReport, 0)
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

func (s *PGStore) SetReportStatus(ctx context.Context, id string, from, to model.ReportStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE waste_reports SET status = $3, updated_at = now() WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func mapUniqueViolation(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateEmail
	}
	return err
}
