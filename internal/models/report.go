package models

import "time"

type ReportStatus string

const (
	ReportStatusOpen     ReportStatus = "open"
	ReportStatusReviewed ReportStatus = "reviewed"
	ReportStatusResolved ReportStatus = "resolved"
)

// Report is a citizen-submitted incident report with optional photos.
type Report struct {
	ID          string       `json:"id"`
	UserID      string       `json:"user_id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Category    string       `json:"category"` // e.g. "flood", "fire", "road"
	Latitude    float64      `json:"latitude"`
	Longitude   float64      `json:"longitude"`
	PhotoURLs   []string     `json:"photo_urls"`
	Status      ReportStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ActivityEntry is one row of the social feed: reports and alert
// responses as they happen, newest first.
type ActivityEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"` // "report.created" or "alert.response"
	RefID     string    `json:"ref_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
