package domain

import "time"

// DateLayout is the canonical UTC wire format for due dates.
const DateLayout = "2006-01-02 15:04:05"

type Action string

const (
	ActionUnpublish    Action = "unpublish"
	ActionDelete       Action = "delete"
	ActionRedirect     Action = "redirect"
	ActionChangeStatus Action = "change_status"
)

// DefaultActions is the built-in action set, in registration order.
var DefaultActions = []Action{ActionUnpublish, ActionDelete, ActionRedirect, ActionChangeStatus}

const (
	StatusPublish = "publish"
	StatusDraft   = "draft"
)

// RedirectMetaKey is the content metadata key holding a post-expiry redirect target.
const RedirectMetaKey = "_expiry_redirect_url"

type Schedule struct {
	ID             int64
	ContentID      int64
	DueAt          time.Time
	Action         Action
	RedirectTarget *string
	TargetStatus   *string
	Processed      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ScheduleInput is the raw create/update payload before validation.
type ScheduleInput struct {
	PostID       int64  `json:"post_id" validate:"required"`
	ExpiryDate   string `json:"expiry_date" validate:"required"`
	ExpiryAction string `json:"expiry_action" validate:"required"`
	RedirectURL  string `json:"redirect_url,omitempty" validate:"required_if=ExpiryAction redirect"`
	NewStatus    string `json:"new_status,omitempty" validate:"required_if=ExpiryAction change_status"`
}

// ScheduleRow is a listing row joined with its content item.
type ScheduleRow struct {
	Schedule
	ContentTitle  string
	ContentType   string
	ContentStatus string
}

type ListFilter struct {
	ContentType string
	// Processed is nil for "any".
	Processed *bool
}

type ContentItem struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Settings struct {
	DefaultAction     string `json:"default_action" validate:"required"`
	CronEnabled       bool   `json:"cron_enabled"`
	NotificationEmail string `json:"notification_email" validate:"omitempty,email"`
}

func DefaultSettings() Settings {
	return Settings{
		DefaultAction: string(ActionUnpublish),
		CronEnabled:   true,
	}
}

// FormatDate renders t in the canonical UTC layout.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseDate parses a canonical UTC date. It does not check the round trip.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}
