package model

import "time"

// Status is the operational state reported at GET /status.
type Status struct {
	Started       bool       `json:"started"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	Storage       string     `json:"storage"`
	Cache         string     `json:"cache"`
	Bosses        int        `json:"bosses"`
	QueueLength   int        `json:"queue_length"`
	QueueCapacity int        `json:"queue_capacity"`
	PendingBosses []string   `json:"pending_bosses"`
	Generation    *time.Time `json:"generation,omitempty"`
	ResetTimezone string     `json:"reset_timezone"`
	WeeklyAnchor  string     `json:"weekly_anchor"`
}
