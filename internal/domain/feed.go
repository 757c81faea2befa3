package domain

import "time"

type FeedStatus string

const (
	FeedStatusActive   FeedStatus = "active"
	FeedStatusPaused   FeedStatus = "paused"
	FeedStatusError    FeedStatus = "error"
	FeedStatusDisabled FeedStatus = "disabled"
	FeedStatusDeleted  FeedStatus = "deleted"
)

func (s FeedStatus) Valid() bool {
	switch s {
	case FeedStatusActive, FeedStatusPaused, FeedStatusError, FeedStatusDisabled, FeedStatusDeleted:
		return true
	}
	return false
}

type Feed struct {
	ID           int64      `db:"id" json:"id"`
	StringID     *string    `db:"string_id" json:"string_id,omitempty"`
	CategoryID   int64      `db:"category_id" json:"category_id"`
	Name         string     `db:"name" json:"name"`
	URL          string     `db:"url" json:"url"`
	PollInterval int        `db:"poll_interval" json:"poll_interval"` // seconds
	Status       FeedStatus `db:"status" json:"status"`
	LastError    *string    `db:"last_error" json:"last_error,omitempty"`
	LastErrorAt  *time.Time `db:"last_error_at" json:"last_error_at,omitempty"`
	DeletedAt    *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
	Tags         []Tag      `db:"-" json:"tags"`
}

// FeedUpdate lists the columns to change. Restore clears deleted_at.
type FeedUpdate struct {
	Name         *string
	URL          *string
	PollInterval *int
	CategoryID   *int64
	StringID     *string
	Status       *FeedStatus
	Restore      bool
}

func (u FeedUpdate) Empty() bool {
	return u.Name == nil && u.URL == nil && u.PollInterval == nil &&
		u.CategoryID == nil && u.StringID == nil && u.Status == nil && !u.Restore
}

type FeedFilter struct {
	CategoryID     *int64
	Status         *FeedStatus
	IncludeDeleted bool
	Limit          int
	Offset         int
}

type Category struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type Tag struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

const DefaultCategory = "Default"
