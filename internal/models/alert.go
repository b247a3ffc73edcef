package models

import "time"

type AlertSeverity string

const (
	AlertSeverityLow      AlertSeverity = "low"
	AlertSeverityMedium   AlertSeverity = "medium"
	AlertSeverityHigh     AlertSeverity = "high"
	AlertSeverityCritical AlertSeverity = "critical"
)

func (s AlertSeverity) Valid() bool {
	switch s {
	case AlertSeverityLow, AlertSeverityMedium, AlertSeverityHigh, AlertSeverityCritical:
		return true
	}
	return false
}

// Alert is an evacuation notice broadcast to all users. Alerts are
// immutable once created; only authority accounts create them.
type Alert struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Message   string        `json:"message"`
	Severity  AlertSeverity `json:"severity"`
	Location  string        `json:"location"`
	Latitude  float64       `json:"latitude"`
	Longitude float64       `json:"longitude"`
	CreatedAt time.Time     `json:"created_at"`
}

type ResponseValue string

const (
	ResponseYes ResponseValue = "yes" // user is safe
	ResponseNo  ResponseValue = "no"  // user needs help
)

func (v ResponseValue) Valid() bool {
	return v == ResponseYes || v == ResponseNo
}

// AlertResponse records a user's acknowledgment against an alert.
// At most one row exists per (alert_id, user_id); rows are written
// once and never mutated.
type AlertResponse struct {
	ID        string        `json:"id"`
	AlertID   string        `json:"alert_id"`
	UserID    string        `json:"user_id"`
	Response  ResponseValue `json:"response"`
	CreatedAt time.Time     `json:"created_at"`
}
