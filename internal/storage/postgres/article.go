package postgres

import (
	"context"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"forager/internal/domain"
)

const articleColumns = `id, feed_id, title, link, published_at, fetched_at, updated_at,
	status, summary, content, manual_labels, deleted_at`

// Postgres caps a statement at 65535 parameters.
const insertChunk = 500

type ArticleStore struct {
	db *sqlx.DB
}

func NewArticleStore(db *sqlx.DB) *ArticleStore {
	return &ArticleStore{db: db}
}

func (s *ArticleStore) Create(ctx context.Context, article *domain.Article) (*domain.Article, error) {
	query := `
		INSERT INTO articles (
			feed_id, title, link, published_at, fetched_at, updated_at,
			status, summary, content, manual_labels
		) VALUES (
			$1, $2, $3, $4, COALESCE($5, NOW()), NOW(), $6, $7, $8, $9
		)
		RETURNING ` + articleColumns

	var fetchedAt any
	if !article.FetchedAt.IsZero() {
		fetchedAt = article.FetchedAt
	}

	var out domain.Article
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &out, query,
		article.FeedID,
		article.Title,
		article.Link,
		article.PublishedAt,
		fetchedAt,
		article.Status,
		article.Summary,
		article.Content,
		article.ManualLabels,
	)
	if err != nil {
		return nil, mapError("create article", "article", err)
	}
	return &out, nil
}

// CreateBatch inserts the articles whose link is not stored yet and returns
// only the rows that were actually inserted.
func (s *ArticleStore) CreateBatch(ctx context.Context, articles []domain.Article) ([]domain.Article, error) {
	exec := GetExecutor(ctx, s.db)

	var created []domain.Article
	for start := 0; start < len(articles); start += insertChunk {
		end := min(start+insertChunk, len(articles))

		rows, err := s.insertChunk(ctx, exec, articles[start:end])
		if err != nil {
			return nil, err
		}
		created = append(created, rows...)
	}

	return created, nil
}

func (s *ArticleStore) insertChunk(ctx context.Context, exec sqlx.ExtContext, articles []domain.Article) ([]domain.Article, error) {
	const cols = 9

	var sb strings.Builder
	sb.WriteString(`INSERT INTO articles (
		feed_id, title, link, published_at, fetched_at, updated_at, status, summary, content
	) VALUES `)
	valueArgs := make([]any, 0, len(articles)*cols)

	for i, a := range articles {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j := 1; j <= cols; j++ {
			if j > 1 {
				sb.WriteString(", ")
			}
			sb.WriteString("$")
			sb.WriteString(strconv.Itoa(i*cols + j))
		}
		sb.WriteString(")")
		valueArgs = append(valueArgs,
			a.FeedID, a.Title, a.Link, a.PublishedAt, a.FetchedAt, a.UpdatedAt,
			a.Status, a.Summary, a.Content,
		)
	}
	sb.WriteString(" ON CONFLICT (link) DO NOTHING RETURNING ")
	sb.WriteString(articleColumns)

	var out []domain.Article
	if err := sqlx.SelectContext(ctx, exec, &out, sb.String(), valueArgs...); err != nil {
		return nil, mapError("insert articles", "article", err)
	}
	return out, nil
}

// Get skips soft-deleted articles.
func (s *ArticleStore) Get(ctx context.Context, id int64) (*domain.Article, error) {
	exec := GetExecutor(ctx, s.db)

	var out domain.Article
	err := sqlx.GetContext(ctx, exec, &out,
		`SELECT `+articleColumns+` FROM articles WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return nil, mapError("get article", "article", err)
	}

	tags, err := tagsByOwner(ctx, exec, "article_tags", "article_id", []int64{id})
	if err != nil {
		return nil, err
	}
	out.Tags = tags[id]
	return &out, nil
}

// List returns newest first.
func (s *ArticleStore) List(ctx context.Context, filter domain.ArticleFilter) ([]domain.Article, error) {
	var c clauses
	if !filter.IncludeDeleted {
		c.add("a.deleted_at IS NULL")
	}
	if filter.FeedID != nil {
		c.add("a.feed_id = ?", *filter.FeedID)
	}
	if filter.CategoryID != nil {
		c.add("a.feed_id IN (SELECT id FROM feeds WHERE category_id = ?)", *filter.CategoryID)
	}
	if filter.Status != nil {
		c.add("a.status = ?", *filter.Status)
	}
	if filter.PublishedAfter != nil {
		c.add("a.published_at >= ?", *filter.PublishedAfter)
	}
	if filter.PublishedBefore != nil {
		c.add("a.published_at <= ?", *filter.PublishedBefore)
	}
	if len(filter.TagIDs) > 0 {
		tagIDs := uniqueIDs(filter.TagIDs)
		c.add(`a.id IN (
			SELECT article_id FROM article_tags
			WHERE tag_id = ANY(?)
			GROUP BY article_id
			HAVING COUNT(DISTINCT tag_id) = ?)`, pq.Array(tagIDs), len(tagIDs))
	}

	query := s.db.Rebind(`SELECT ` + prefixed("a", articleColumns) + ` FROM articles a` + c.where() +
		` ORDER BY a.published_at DESC, a.id DESC` + c.page(filter.Limit, filter.Offset))

	exec := GetExecutor(ctx, s.db)

	var out []domain.Article
	if err := sqlx.SelectContext(ctx, exec, &out, query, c.args...); err != nil {
		return nil, mapError("list articles", "article", err)
	}

	ids := make([]int64, len(out))
	for i, a := range out {
		ids[i] = a.ID
	}
	tags, err := tagsByOwner(ctx, exec, "article_tags", "article_id", ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Tags = tags[out[i].ID]
	}

	return out, nil
}

// ExistingLinks includes soft-deleted articles so they are not fetched again.
func (s *ArticleStore) ExistingLinks(ctx context.Context, feedID int64) (map[string]struct{}, error) {
	var links []string
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &links,
		`SELECT link FROM articles WHERE feed_id = $1`, feedID)
	if err != nil {
		return nil, mapError("list article links", "article", err)
	}

	out := make(map[string]struct{}, len(links))
	for _, l := range links {
		out[l] = struct{}{}
	}
	return out, nil
}

func (s *ArticleStore) Update(ctx context.Context, id int64, upd domain.ArticleUpdate) (*domain.Article, error) {
	var c clauses
	if upd.Title != nil {
		c.add("title = ?", *upd.Title)
	}
	if upd.Status != nil {
		c.add("status = ?", *upd.Status)
	}
	if upd.Summary != nil {
		c.add("summary = ?", *upd.Summary)
	}
	if upd.Content != nil {
		c.add("content = ?", *upd.Content)
	}
	if upd.ManualLabels != nil {
		c.add("manual_labels = ?", upd.ManualLabels)
	}
	c.add("updated_at = NOW()")

	query := s.db.Rebind(`UPDATE articles SET ` + c.set() + ` WHERE id = ` + c.arg(id) +
		` AND deleted_at IS NULL RETURNING ` + articleColumns)

	exec := GetExecutor(ctx, s.db)

	var out domain.Article
	if err := sqlx.GetContext(ctx, exec, &out, query, c.args...); err != nil {
		return nil, mapError("update article", "article", err)
	}

	tags, err := tagsByOwner(ctx, exec, "article_tags", "article_id", []int64{id})
	if err != nil {
		return nil, err
	}
	out.Tags = tags[id]
	return &out, nil
}

func (s *ArticleStore) Delete(ctx context.Context, id int64, hard bool) error {
	query := `UPDATE articles SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`
	if hard {
		query = `DELETE FROM articles WHERE id = $1`
	}

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, id)
	if err != nil {
		return mapError("delete article", "article", err)
	}
	return expectRows(res)
}

// DeleteMany removes the articles matching every set criterion and returns
// how many rows were affected.
func (s *ArticleStore) DeleteMany(ctx context.Context, filter domain.ArticleDeleteFilter) (int64, error) {
	var c clauses
	if filter.FeedID != nil {
		c.add("feed_id = ?", *filter.FeedID)
	}
	if filter.Before != nil {
		c.add("published_at < ?", *filter.Before)
	}

	var query string
	if filter.Hard {
		query = `DELETE FROM articles` + c.where()
	} else {
		c.add("deleted_at IS NULL")
		query = `UPDATE articles SET deleted_at = NOW(), updated_at = NOW()` + c.where()
	}

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, s.db.Rebind(query), c.args...)
	if err != nil {
		return 0, mapError("delete articles", "article", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapError("delete articles", "article", err)
	}
	return n, nil
}

func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
