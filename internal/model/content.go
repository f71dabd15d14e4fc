package model

import "time"

// Channel is a tracked YouTube channel. Rows are created either by the
// owner through the dashboard or by the automation service user.
type Channel struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Name       string    `json:"name"`
	ExternalID string    `json:"external_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Video struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	ChannelID   string     `json:"channel_id"`
	Title       string     `json:"title"`
	Status      string     `json:"status"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// AnalyticsSnapshot is a point-in-time metrics row reported per video,
// usually pushed by the automation workflow.
type AnalyticsSnapshot struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	VideoID    string    `json:"video_id"`
	Views      int64     `json:"views"`
	Likes      int64     `json:"likes"`
	Comments   int64     `json:"comments"`
	CapturedAt time.Time `json:"captured_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// AutomationRun records one external workflow execution reporting back.
type AutomationRun struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Workflow   string    `json:"workflow"`
	Status     string    `json:"status"`
	Detail     string    `json:"detail,omitempty"`
	ViaService bool      `json:"via_service"`
	CreatedAt  time.Time `json:"created_at"`
}
