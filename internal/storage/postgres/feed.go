package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"forager/internal/domain"
)

const feedColumns = `id, string_id, category_id, name, url, poll_interval, status,
	last_error, last_error_at, deleted_at, created_at, updated_at`

type FeedStore struct {
	db *sqlx.DB
}

func NewFeedStore(db *sqlx.DB) *FeedStore {
	return &FeedStore{db: db}
}

func (s *FeedStore) Create(ctx context.Context, feed *domain.Feed) (*domain.Feed, error) {
	query := `
		INSERT INTO feeds (string_id, category_id, name, url, poll_interval, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + feedColumns

	var out domain.Feed
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &out, query,
		feed.StringID,
		feed.CategoryID,
		feed.Name,
		feed.URL,
		feed.PollInterval,
		feed.Status,
	)
	if err != nil {
		return nil, mapError("create feed", "feed", err)
	}
	return &out, nil
}

// Get skips soft-deleted feeds.
func (s *FeedStore) Get(ctx context.Context, id int64) (*domain.Feed, error) {
	exec := GetExecutor(ctx, s.db)

	var out domain.Feed
	err := sqlx.GetContext(ctx, exec, &out,
		`SELECT `+feedColumns+` FROM feeds WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return nil, mapError("get feed", "feed", err)
	}

	tags, err := tagsByOwner(ctx, exec, "feed_tags", "feed_id", []int64{id})
	if err != nil {
		return nil, err
	}
	out.Tags = tags[id]
	return &out, nil
}

// GetByURL also returns soft-deleted feeds because url stays unique across them.
func (s *FeedStore) GetByURL(ctx context.Context, url string) (*domain.Feed, error) {
	var out domain.Feed
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &out,
		`SELECT `+feedColumns+` FROM feeds WHERE url = $1`, url)
	if err != nil {
		return nil, mapError("get feed by url", "feed", err)
	}
	return &out, nil
}

func (s *FeedStore) List(ctx context.Context, filter domain.FeedFilter) ([]domain.Feed, error) {
	var c clauses
	if !filter.IncludeDeleted {
		c.add("deleted_at IS NULL")
	}
	if filter.CategoryID != nil {
		c.add("category_id = ?", *filter.CategoryID)
	}
	if filter.Status != nil {
		c.add("status = ?", *filter.Status)
	}

	query := s.db.Rebind(`SELECT ` + feedColumns + ` FROM feeds` + c.where() + ` ORDER BY id` + c.page(filter.Limit, filter.Offset))

	exec := GetExecutor(ctx, s.db)

	var out []domain.Feed
	if err := sqlx.SelectContext(ctx, exec, &out, query, c.args...); err != nil {
		return nil, mapError("list feeds", "feed", err)
	}

	ids := make([]int64, len(out))
	for i, f := range out {
		ids[i] = f.ID
	}
	tags, err := tagsByOwner(ctx, exec, "feed_tags", "feed_id", ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Tags = tags[out[i].ID]
	}

	return out, nil
}

// Update writes only the fields set in upd. Soft-deleted feeds can be
// updated so that a restore can happen in the same statement.
func (s *FeedStore) Update(ctx context.Context, id int64, upd domain.FeedUpdate) (*domain.Feed, error) {
	var c clauses
	if upd.Name != nil {
		c.add("name = ?", *upd.Name)
	}
	if upd.URL != nil {
		c.add("url = ?", *upd.URL)
	}
	if upd.PollInterval != nil {
		c.add("poll_interval = ?", *upd.PollInterval)
	}
	if upd.CategoryID != nil {
		c.add("category_id = ?", *upd.CategoryID)
	}
	if upd.StringID != nil {
		c.add("string_id = ?", *upd.StringID)
	}
	if upd.Status != nil {
		c.add("status = ?", *upd.Status)
	}
	if upd.Restore {
		c.add("deleted_at = NULL")
	}
	c.add("updated_at = NOW()")

	query := s.db.Rebind(`UPDATE feeds SET ` + c.set() + ` WHERE id = ` + c.arg(id) + ` RETURNING ` + feedColumns)

	var out domain.Feed
	if err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &out, query, c.args...); err != nil {
		return nil, mapError("update feed", "feed", err)
	}
	return &out, nil
}

// Delete soft-deletes by default; hard removes the row and cascades to its
// articles and tag links.
func (s *FeedStore) Delete(ctx context.Context, id int64, hard bool) error {
	query := `UPDATE feeds SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`
	if hard {
		query = `DELETE FROM feeds WHERE id = $1`
	}

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, id)
	if err != nil {
		return mapError("delete feed", "feed", err)
	}
	return expectRows(res)
}

// UpdateError records the last fetch failure; a nil message clears it.
func (s *FeedStore) UpdateError(ctx context.Context, id int64, message *string) error {
	query := `
		UPDATE feeds SET
			last_error = $2::text,
			last_error_at = CASE WHEN $2::text IS NULL THEN NULL ELSE NOW() END,
			updated_at = NOW()
		WHERE id = $1`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, id, message)
	if err != nil {
		return mapError("update feed error", "feed", err)
	}
	return expectRows(res)
}
