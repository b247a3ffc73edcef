package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hmori/go-civic-response/internal/models"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateResponse is returned when a second response is inserted
	// for the same (alert_id, user_id) pair. The UNIQUE constraint in the
	// schema is the authoritative guard; this error is its surface.
	ErrDuplicateResponse = errors.New("response already recorded for this alert")

	// ErrDuplicateEmail is returned when registering an email that is
	// already taken.
	ErrDuplicateEmail = errors.New("email already registered")
)

type AlertFilter struct {
	Limit    int
	Since    *time.Time
	Severity *models.AlertSeverity
}

type ReportFilter struct {
	Limit  int
	UserID string // empty means all users
}

type UserRepository interface {
	AddUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

type AlertRepository interface {
	AddAlert(ctx context.Context, a *models.Alert) error
	GetAlertByID(ctx context.Context, id string) (*models.Alert, error)
	ListAlerts(ctx context.Context, opts AlertFilter) ([]models.Alert, error)
}

type ResponseRepository interface {
	AddResponse(ctx context.Context, r *models.AlertResponse) error
	ListResponsesByUser(ctx context.Context, userID string) ([]models.AlertResponse, error)
}

type ShelterRepository interface {
	UpsertShelter(ctx context.Context, s *models.Shelter) error
	ListShelters(ctx context.Context) ([]models.Shelter, error)
}

type ReportRepository interface {
	AddReport(ctx context.Context, r *models.Report) error
	GetReportByID(ctx context.Context, id string) (*models.Report, error)
	ListReports(ctx context.Context, opts ReportFilter) ([]models.Report, error)
}

type ActivityRepository interface {
	AddActivity(ctx context.Context, e *models.ActivityEntry) error
	ListActivity(ctx context.Context, limit int) ([]models.ActivityEntry, error)
}

// Store is the full persistence surface the server wires together.
type Store interface {
	UserRepository
	AlertRepository
	ResponseRepository
	ShelterRepository
	ReportRepository
	ActivityRepository
}
