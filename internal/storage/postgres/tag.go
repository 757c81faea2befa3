package postgres

import (
	"context"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"forager/internal/domain"
)

const tagColumns = `id, name, created_at, updated_at`

type TagStore struct {
	db *sqlx.DB
}

func NewTagStore(db *sqlx.DB) *TagStore {
	return &TagStore{db: db}
}

func (s *TagStore) Create(ctx context.Context, name string) (*domain.Tag, error) {
	var t domain.Tag
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &t,
		`INSERT INTO tags (name) VALUES ($1) RETURNING `+tagColumns, name)
	if err != nil {
		return nil, mapError("create tag", "tag", err)
	}
	return &t, nil
}

func (s *TagStore) Get(ctx context.Context, id int64) (*domain.Tag, error) {
	var t domain.Tag
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &t,
		`SELECT `+tagColumns+` FROM tags WHERE id = $1`, id)
	if err != nil {
		return nil, mapError("get tag", "tag", err)
	}
	return &t, nil
}

func (s *TagStore) GetByName(ctx context.Context, name string) (*domain.Tag, error) {
	var t domain.Tag
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &t,
		`SELECT `+tagColumns+` FROM tags WHERE name = $1`, name)
	if err != nil {
		return nil, mapError("get tag by name", "tag", err)
	}
	return &t, nil
}

func (s *TagStore) List(ctx context.Context) ([]domain.Tag, error) {
	var out []domain.Tag
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &out,
		`SELECT `+tagColumns+` FROM tags ORDER BY name`)
	if err != nil {
		return nil, mapError("list tags", "tag", err)
	}
	return out, nil
}

func (s *TagStore) Update(ctx context.Context, id int64, name string) (*domain.Tag, error) {
	var t domain.Tag
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &t,
		`UPDATE tags SET name = $2, updated_at = NOW() WHERE id = $1 RETURNING `+tagColumns,
		id, name)
	if err != nil {
		return nil, mapError("update tag", "tag", err)
	}
	return &t, nil
}

func (s *TagStore) Delete(ctx context.Context, id int64) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, `DELETE FROM tags WHERE id = $1`, id)
	if err != nil {
		return mapError("delete tag", "tag", err)
	}
	return expectRows(res)
}

// AddToFeed is idempotent.
func (s *TagStore) AddToFeed(ctx context.Context, feedID, tagID int64) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		`INSERT INTO feed_tags (feed_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		feedID, tagID)
	return mapError("add tag to feed", "feed tag", err)
}

func (s *TagStore) RemoveFromFeed(ctx context.Context, feedID, tagID int64) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		`DELETE FROM feed_tags WHERE feed_id = $1 AND tag_id = $2`, feedID, tagID)
	if err != nil {
		return mapError("remove tag from feed", "feed tag", err)
	}
	return expectRows(res)
}

// SetFeedTags replaces the feed's tag set. Run it inside a transaction to make
// the swap atomic.
func (s *TagStore) SetFeedTags(ctx context.Context, feedID int64, tagIDs []int64) error {
	exec := GetExecutor(ctx, s.db)

	if _, err := exec.ExecContext(ctx, `DELETE FROM feed_tags WHERE feed_id = $1`, feedID); err != nil {
		return mapError("clear feed tags", "feed tag", err)
	}

	if len(tagIDs) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO feed_tags (feed_id, tag_id) VALUES ")
	valueArgs := make([]any, 0, len(tagIDs)+1)
	valueArgs = append(valueArgs, feedID)

	for i, tagID := range tagIDs {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("($1, $")
		sb.WriteString(strconv.Itoa(i + 2))
		sb.WriteString(")")
		valueArgs = append(valueArgs, tagID)
	}
	sb.WriteString(" ON CONFLICT DO NOTHING")

	_, err := exec.ExecContext(ctx, sb.String(), valueArgs...)
	return mapError("set feed tags", "feed tag", err)
}

func (s *TagStore) AddToArticle(ctx context.Context, articleID, tagID int64) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		`INSERT INTO article_tags (article_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		articleID, tagID)
	return mapError("add tag to article", "article tag", err)
}

func (s *TagStore) RemoveFromArticle(ctx context.Context, articleID, tagID int64) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		`DELETE FROM article_tags WHERE article_id = $1 AND tag_id = $2`, articleID, tagID)
	if err != nil {
		return mapError("remove tag from article", "article tag", err)
	}
	return expectRows(res)
}

// LinkArticles tags every article with every tag.
func (s *TagStore) LinkArticles(ctx context.Context, articleIDs []int64, tagIDs []int64) error {
	if len(articleIDs) == 0 || len(tagIDs) == 0 {
		return nil
	}

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO article_tags (article_id, tag_id)
		SELECT a, t FROM unnest($1::bigint[]) AS a CROSS JOIN unnest($2::bigint[]) AS t
		ON CONFLICT DO NOTHING`,
		pq.Array(articleIDs), pq.Array(tagIDs))
	return mapError("link article tags", "article tag", err)
}

func (s *TagStore) ListByFeed(ctx context.Context, feedID int64) ([]domain.Tag, error) {
	byFeed, err := tagsByOwner(ctx, GetExecutor(ctx, s.db), "feed_tags", "feed_id", []int64{feedID})
	if err != nil {
		return nil, err
	}
	return byFeed[feedID], nil
}

func (s *TagStore) ListByArticle(ctx context.Context, articleID int64) ([]domain.Tag, error) {
	byArticle, err := tagsByOwner(ctx, GetExecutor(ctx, s.db), "article_tags", "article_id", []int64{articleID})
	if err != nil {
		return nil, err
	}
	return byArticle[articleID], nil
}

type ownedTag struct {
	OwnerID int64 `db:"owner_id"`
	domain.Tag
}

// tagsByOwner loads the tags of many feeds or articles in one query. table
// and column are constants chosen by the callers in this package.
func tagsByOwner(ctx context.Context, q sqlx.QueryerContext, table, column string, ids []int64) (map[int64][]domain.Tag, error) {
	out := make(map[int64][]domain.Tag, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query := `
		SELECT j.` + column + ` AS owner_id, t.id, t.name, t.created_at, t.updated_at
		FROM ` + table + ` j
		INNER JOIN tags t ON t.id = j.tag_id
		WHERE j.` + column + ` = ANY($1)
		ORDER BY t.name`

	var rows []ownedTag
	if err := sqlx.SelectContext(ctx, q, &rows, query, pq.Array(ids)); err != nil {
		return nil, mapError("list tags by "+column, "tag", err)
	}

	for _, r := range rows {
		out[r.OwnerID] = append(out[r.OwnerID], r.Tag)
	}
	return out, nil
}
