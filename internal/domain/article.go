package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type ArticleStatus string

const (
	ArticleStatusNew      ArticleStatus = "new"
	ArticleStatusRead     ArticleStatus = "read"
	ArticleStatusArchived ArticleStatus = "archived"
)

func (s ArticleStatus) Valid() bool {
	switch s {
	case ArticleStatusNew, ArticleStatusRead, ArticleStatusArchived:
		return true
	}
	return false
}

type Article struct {
	ID           int64         `db:"id" json:"id"`
	FeedID       int64         `db:"feed_id" json:"feed_id"`
	Title        string        `db:"title" json:"title"`
	Link         string        `db:"link" json:"link"` // normalized, globally unique
	PublishedAt  time.Time     `db:"published_at" json:"published_at"`
	FetchedAt    time.Time     `db:"fetched_at" json:"fetched_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
	Status       ArticleStatus `db:"status" json:"status"`
	Summary      *string       `db:"summary" json:"summary,omitempty"`
	Content      *string       `db:"content" json:"content,omitempty"`
	ManualLabels Labels        `db:"manual_labels" json:"manual_labels,omitempty"`
	DeletedAt    *time.Time    `db:"deleted_at" json:"deleted_at,omitempty"`
	Tags         []Tag         `db:"-" json:"tags"`
}

// ArticleUpdate carries the fields a caller wants to change; nil means keep.
type ArticleUpdate struct {
	Title        *string
	Status       *ArticleStatus
	Summary      *string
	Content      *string
	ManualLabels Labels
}

type ArticleFilter struct {
	FeedID          *int64
	CategoryID      *int64
	TagIDs          []int64 // article must carry all of them
	Status          *ArticleStatus
	PublishedAfter  *time.Time
	PublishedBefore *time.Time
	IncludeDeleted  bool
	Limit           int
	Offset          int
}

type ArticleDeleteFilter struct {
	FeedID *int64
	Before *time.Time
	Hard   bool
}

// Labels is a free-form JSON object stored in a jsonb column.
type Labels map[string]any

func (l Labels) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

func (l *Labels) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("scan labels: unsupported type %T", src)
	}
	return json.Unmarshal(data, l)
}
