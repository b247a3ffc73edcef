package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/hmori/go-civic-response/internal/models"
)

type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			name TEXT,
			role TEXT NOT NULL DEFAULT 'citizen',
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			message TEXT,
			severity TEXT NOT NULL,
			location TEXT,
			latitude REAL,
			longitude REAL,
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS alert_responses (
			id TEXT PRIMARY KEY,
			alert_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			response TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (alert_id) REFERENCES alerts(id),
			FOREIGN KEY (user_id) REFERENCES users(id),
			UNIQUE (alert_id, user_id)
		);

		CREATE TABLE IF NOT EXISTS shelters (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			address TEXT,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			capacity INTEGER NOT NULL DEFAULT 0,
			current_occupancy INTEGER NOT NULL DEFAULT 0,
			facilities TEXT,
			contact TEXT,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS reports (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			category TEXT,
			latitude REAL,
			longitude REAL,
			photo_urls TEXT,
			status TEXT NOT NULL DEFAULT 'open',
			created_at DATETIME NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id)
		);

		CREATE TABLE IF NOT EXISTS activity_entries (
			id TEXT PRIMARY KEY,
			user_id TEXT,
			kind TEXT NOT NULL,
			ref_id TEXT,
			message TEXT,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at);
		CREATE INDEX IF NOT EXISTS idx_responses_user_id ON alert_responses(user_id);
		CREATE INDEX IF NOT EXISTS idx_reports_user_id ON reports(user_id);
		CREATE INDEX IF NOT EXISTS idx_activity_created_at ON activity_entries(created_at);
  	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// --- users ---

func (s *SQLiteDB) AddUser(ctx context.Context, u *models.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, name, role, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.Name, string(u.Role), u.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("error inserting user: %w", err)
	}
	return nil
}

func (s *SQLiteDB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, name, role, created_at FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (s *SQLiteDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, name, role, created_at FROM users WHERE email = ?`, email)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var role string
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning user: %w", err)
	}
	u.Role = models.Role(role)
	return &u, nil
}

// --- alerts ---

func (s *SQLiteDB) AddAlert(ctx context.Context, a *models.Alert) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, title, message, severity, location, latitude, longitude, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Title, a.Message, string(a.Severity), a.Location, a.Latitude, a.Longitude, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("error inserting alert: %w", err)
	}
	return nil
}

func (s *SQLiteDB) GetAlertByID(ctx context.Context, id string) (*models.Alert, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, message, severity, location, latitude, longitude, created_at
		 FROM alerts WHERE id = ?`, id)

	var a models.Alert
	var severity string
	err := row.Scan(&a.ID, &a.Title, &a.Message, &severity, &a.Location, &a.Latitude, &a.Longitude, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning alert: %w", err)
	}
	a.Severity = models.AlertSeverity(severity)
	return &a, nil
}

func (s *SQLiteDB) ListAlerts(ctx context.Context, opts AlertFilter) ([]models.Alert, error) {
	query := `SELECT id, title, message, severity, location, latitude, longitude, created_at FROM alerts`
	var conds []string
	var args []any

	if opts.Severity != nil {
		conds = append(conds, "severity = ?")
		args = append(args, string(*opts.Severity))
	}
	if opts.Since != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, *opts.Since)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		var a models.Alert
		var severity string
		if err := rows.Scan(&a.ID, &a.Title, &a.Message, &severity, &a.Location, &a.Latitude, &a.Longitude, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning alert: %w", err)
		}
		a.Severity = models.AlertSeverity(severity)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// --- alert responses ---

func (s *SQLiteDB) AddResponse(ctx context.Context, r *models.AlertResponse) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alert_responses (id, alert_id, user_id, response, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.AlertID, r.UserID, string(r.Response), r.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateResponse
	}
	if err != nil {
		return fmt.Errorf("error inserting response: %w", err)
	}
	return nil
}

func (s *SQLiteDB) ListResponsesByUser(ctx context.Context, userID string) ([]models.AlertResponse, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, alert_id, user_id, response, created_at
		 FROM alert_responses WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing responses: %w", err)
	}
	defer rows.Close()

	var responses []models.AlertResponse
	for rows.Next() {
		var r models.AlertResponse
		var value string
		if err := rows.Scan(&r.ID, &r.AlertID, &r.UserID, &value, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning response: %w", err)
		}
		r.Response = models.ResponseValue(value)
		responses = append(responses, r)
	}
	return responses, rows.Err()
}

// --- shelters ---

func (s *SQLiteDB) UpsertShelter(ctx context.Context, sh *models.Shelter) error {
	facilities, err := json.Marshal(sh.Facilities)
	if err != nil {
		return fmt.Errorf("error encoding facilities: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO shelters (id, name, address, latitude, longitude, capacity, current_occupancy, facilities, contact, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			address = excluded.address,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			capacity = excluded.capacity,
			current_occupancy = excluded.current_occupancy,
			facilities = excluded.facilities,
			contact = excluded.contact,
			updated_at = excluded.updated_at`,
		sh.ID, sh.Name, sh.Address, sh.Latitude, sh.Longitude, sh.Capacity,
		sh.CurrentOccupancy, string(facilities), sh.Contact, sh.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("error upserting shelter: %w", err)
	}
	return nil
}

func (s *SQLiteDB) ListShelters(ctx context.Context) ([]models.Shelter, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, address, latitude, longitude, capacity, current_occupancy, facilities, contact, updated_at
		 FROM shelters ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("error listing shelters: %w", err)
	}
	defer rows.Close()

	var shelters []models.Shelter
	for rows.Next() {
		var sh models.Shelter
		var facilities sql.NullString
		if err := rows.Scan(&sh.ID, &sh.Name, &sh.Address, &sh.Latitude, &sh.Longitude,
			&sh.Capacity, &sh.CurrentOccupancy, &facilities, &sh.Contact, &sh.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning shelter: %w", err)
		}
		if facilities.Valid && facilities.String != "" {
			if err := json.Unmarshal([]byte(facilities.String), &sh.Facilities); err != nil {
				return nil, fmt.Errorf("error decoding facilities: %w", err)
			}
		}
		shelters = append(shelters, sh)
	}
	return shelters, rows.Err()
}

// --- reports ---

func (s *SQLiteDB) AddReport(ctx context.Context, r *models.Report) error {
	photos, err := json.Marshal(r.PhotoURLs)
	if err != nil {
		return fmt.Errorf("error encoding photo urls: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reports (id, user_id, title, description, category, latitude, longitude, photo_urls, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.Title, r.Description, r.Category, r.Latitude, r.Longitude,
		string(photos), string(r.Status), r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("error inserting report: %w", err)
	}
	return nil
}

func (s *SQLiteDB) GetReportByID(ctx context.Context, id string) (*models.Report, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, description, category, latitude, longitude, photo_urls, status, created_at
		 FROM reports WHERE id = ?`, id)

	r, err := scanReport(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *SQLiteDB) ListReports(ctx context.Context, opts ReportFilter) ([]models.Report, error) {
	query := `SELECT id, user_id, title, description, category, latitude, longitude, photo_urls, status, created_at FROM reports`
	var args []any

	if opts.UserID != "" {
		query += " WHERE user_id = ?"
		args = append(args, opts.UserID)
	}
	query += " ORDER BY created_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing reports: %w", err)
	}
	defer rows.Close()

	var reports []models.Report
	for rows.Next() {
		r, err := scanReport(rows.Scan)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

func scanReport(scan func(dest ...any) error) (*models.Report, error) {
	var r models.Report
	var photos sql.NullString
	var status string
	err := scan(&r.ID, &r.UserID, &r.Title, &r.Description, &r.Category,
		&r.Latitude, &r.Longitude, &photos, &status, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("error scanning report: %w", err)
	}
	r.Status = models.ReportStatus(status)
	if photos.Valid && photos.String != "" {
		if err := json.Unmarshal([]byte(photos.String), &r.PhotoURLs); err != nil {
			return nil, fmt.Errorf("error decoding photo urls: %w", err)
		}
	}
	return &r, nil
}

// --- activity ---

func (s *SQLiteDB) AddActivity(ctx context.Context, e *models.ActivityEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity_entries (id, user_id, kind, ref_id, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Kind, e.RefID, e.Message, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("error inserting activity entry: %w", err)
	}
	return nil
}

func (s *SQLiteDB) ListActivity(ctx context.Context, limit int) ([]models.ActivityEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, kind, ref_id, message, created_at
		 FROM activity_entries ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing activity: %w", err)
	}
	defer rows.Close()

	var entries []models.ActivityEntry
	for rows.Next() {
		var e models.ActivityEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Kind, &e.RefID, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning activity entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
