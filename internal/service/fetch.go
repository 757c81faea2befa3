package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"forager/internal/config"
	"forager/internal/domain"
	"forager/internal/feedparser"
	"forager/internal/metrics"
	"forager/internal/normalize"
)

const defaultPollInterval = 3600

// FeedSource identifies a feed to process. Name, PollInterval and CategoryID
// are used only when the feed has to be created.
type FeedSource struct {
	URL          string
	Name         string
	PollInterval int
	CategoryID   *int64
}

type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("process feed %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type FetchService struct {
	feeds      FeedStore
	articles   ArticleStore
	categories CategoryStore
	tags       TagStore
	txManager  TransactionManager
	fetcher    Fetcher
	parser     FeedParser
	publisher  Publisher
	logger     *slog.Logger
	config     config.FetchConfig
}

// NewFetchService wires the pipeline. publisher may be nil.
func NewFetchService(
	feeds FeedStore,
	articles ArticleStore,
	categories CategoryStore,
	tags TagStore,
	txManager TransactionManager,
	fetcher Fetcher,
	parser FeedParser,
	publisher Publisher,
	logger *slog.Logger,
	cfg config.FetchConfig,
) *FetchService {
	return &FetchService{
		feeds:      feeds,
		articles:   articles,
		categories: categories,
		tags:       tags,
		txManager:  txManager,
		fetcher:    fetcher,
		parser:     parser,
		publisher:  publisher,
		logger:     logger.With("component", "fetch"),
		config:     cfg,
	}
}

// Fetch downloads and parses a feed without touching storage. Links come
// back normalized.
func (s *FetchService) Fetch(ctx context.Context, url string) ([]feedparser.Entry, error) {
	resp, err := s.fetcher.Get(ctx, url, http.Header{
		"Accept": []string{"application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8"},
	})
	if err != nil {
		return nil, err
	}

	doc := s.parser.Parse(resp.Body, resp.Header.Get("Content-Type"))
	if len(doc.Entries) == 0 {
		s.logger.Warn("no entries found in feed", "feed_url", url)
		return nil, nil
	}

	for i := range doc.Entries {
		doc.Entries[i].Link = normalize.URL(doc.Entries[i].Link)
	}

	return doc.Entries, nil
}

// ProcessFeed fetches one feed and stores the articles not seen before. It
// returns the number of inserted articles.
func (s *FetchService) ProcessFeed(ctx context.Context, src FeedSource) (int, error) {
	start := time.Now()
	defer func() {
		metrics.FeedFetchDuration.Observe(time.Since(start).Seconds())
	}()

	feed, err := s.resolveFeed(ctx, src)
	if err != nil {
		metrics.FeedFetchesTotal.WithLabelValues("error").Inc()
		return 0, &FetchError{URL: src.URL, Err: fmt.Errorf("resolve feed: %w", err)}
	}

	inserted, err := s.processFeed(ctx, feed)
	if err != nil {
		metrics.FeedFetchesTotal.WithLabelValues("error").Inc()
		return 0, &FetchError{URL: src.URL, Err: err}
	}

	metrics.FeedFetchesTotal.WithLabelValues("ok").Inc()
	return inserted, nil
}

func (s *FetchService) processFeed(ctx context.Context, feed *domain.Feed) (int, error) {
	logger := s.logger.With("feed_id", feed.ID, "feed_url", feed.URL)

	fetchCtx, cancel := context.WithTimeout(ctx, s.feedTimeout())
	defer cancel()

	entries, err := s.Fetch(fetchCtx, feed.URL)
	if err != nil {
		return 0, fmt.Errorf("fetch: %w", err)
	}

	var created []domain.Article
	if len(entries) > 0 {
		existing, err := s.articles.ExistingLinks(fetchCtx, feed.ID)
		if err != nil {
			return 0, fmt.Errorf("load existing links: %w", err)
		}

		if batch := s.newArticles(feed, entries, existing, logger); len(batch) > 0 {
			created, err = s.store(fetchCtx, feed, batch)
			if err != nil {
				return 0, err
			}
		}

		if len(created) > 0 {
			logger.Info("stored new articles", "new", len(created), "total", len(entries))
		} else {
			logger.Info("no new articles", "total", len(entries))
		}
		metrics.ArticlesInsertedTotal.Add(float64(len(created)))
	}

	if feed.LastError != nil {
		if err := s.feeds.UpdateError(ctx, feed.ID, nil); err != nil {
			logger.Warn("failed to clear feed error", "error", err)
		}
	}

	s.publish(ctx, created, logger)

	return len(created), nil
}

// newArticles keeps entries whose link is neither stored nor repeated earlier
// in the same document, and whose date can be parsed.
func (s *FetchService) newArticles(feed *domain.Feed, entries []feedparser.Entry, existing map[string]struct{}, logger *slog.Logger) []domain.Article {
	now := time.Now().UTC()
	seen := make(map[string]struct{}, len(entries))

	var batch []domain.Article
	for _, e := range entries {
		if e.Link == "" {
			metrics.EntriesSkippedTotal.WithLabelValues("no_link").Inc()
			logger.Debug("skipping entry without link", "title", e.Title)
			continue
		}
		if _, ok := existing[e.Link]; ok {
			continue
		}
		if _, ok := seen[e.Link]; ok {
			metrics.EntriesSkippedTotal.WithLabelValues("duplicate").Inc()
			continue
		}
		seen[e.Link] = struct{}{}

		published, err := normalize.ParseDate(e.Published)
		if err != nil {
			metrics.EntriesSkippedTotal.WithLabelValues("bad_date").Inc()
			logger.Warn("skipping entry with unparseable date",
				"link", e.Link,
				"published", e.Published,
			)
			continue
		}

		batch = append(batch, domain.Article{
			FeedID:      feed.ID,
			Title:       cmp.Or(e.Title, e.Link),
			Link:        e.Link,
			PublishedAt: published,
			FetchedAt:   now,
			UpdatedAt:   now,
			Status:      domain.ArticleStatusNew,
			Summary:     optional(e.Summary),
			Content:     optional(e.Content),
		})
	}

	return batch
}

// store inserts the batch and copies the feed's tags onto the new articles.
func (s *FetchService) store(ctx context.Context, feed *domain.Feed, batch []domain.Article) ([]domain.Article, error) {
	var created []domain.Article

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		created, err = s.articles.CreateBatch(txCtx, batch)
		if err != nil {
			return fmt.Errorf("insert articles: %w", err)
		}
		if len(created) == 0 {
			return nil
		}

		tags, err := s.tags.ListByFeed(txCtx, feed.ID)
		if err != nil {
			return fmt.Errorf("list feed tags: %w", err)
		}
		if len(tags) == 0 {
			return nil
		}

		articleIDs := make([]int64, len(created))
		for i, a := range created {
			articleIDs[i] = a.ID
		}
		tagIDs := make([]int64, len(tags))
		for i, t := range tags {
			tagIDs[i] = t.ID
		}

		if err := s.tags.LinkArticles(txCtx, articleIDs, tagIDs); err != nil {
			return fmt.Errorf("link tags: %w", err)
		}
		for i := range created {
			created[i].Tags = tags
		}
		return nil
	})

	return created, err
}

func (s *FetchService) publish(ctx context.Context, created []domain.Article, logger *slog.Logger) {
	if s.publisher == nil {
		return
	}

	for i := range created {
		if err := s.publisher.PublishCreated(ctx, &created[i]); err != nil {
			metrics.MessagesPublishedTotal.WithLabelValues("error").Inc()
			logger.Error("failed to publish article", "article_id", created[i].ID, "error", err)
			continue
		}
		metrics.MessagesPublishedTotal.WithLabelValues("ok").Inc()
	}
}

// resolveFeed finds the feed by url, soft-deleted rows included, and creates
// it when missing.
func (s *FetchService) resolveFeed(ctx context.Context, src FeedSource) (*domain.Feed, error) {
	feed, err := s.feeds.GetByURL(ctx, src.URL)
	if err == nil {
		return feed, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	var categoryID int64
	if src.CategoryID != nil {
		categoryID = *src.CategoryID
	} else {
		categoryID, err = s.ensureDefaultCategory(ctx)
		if err != nil {
			return nil, fmt.Errorf("ensure default category: %w", err)
		}
	}

	feed, err = s.feeds.Create(ctx, &domain.Feed{
		CategoryID:   categoryID,
		Name:         cmp.Or(src.Name, src.URL),
		URL:          src.URL,
		PollInterval: cmp.Or(src.PollInterval, defaultPollInterval),
		Status:       domain.FeedStatusActive,
	})
	if err != nil {
		return nil, fmt.Errorf("create feed: %w", err)
	}

	s.logger.Info("created feed", "feed_id", feed.ID, "feed_url", feed.URL)
	return feed, nil
}

func (s *FetchService) ensureDefaultCategory(ctx context.Context) (int64, error) {
	category, err := s.categories.GetByName(ctx, domain.DefaultCategory)
	if err == nil {
		return category.ID, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return 0, err
	}

	category, err = s.categories.Create(ctx, domain.DefaultCategory)
	if err != nil {
		return 0, err
	}
	return category.ID, nil
}

// ProcessFeeds runs every enabled feed over the shared client. A failing feed
// gets its error recorded and never stops the batch.
func (s *FetchService) ProcessFeeds(ctx context.Context, feeds []config.FeedConfig) domain.BatchResult {
	results := make(domain.BatchResult, len(feeds))
	categoryIDs := make(map[string]*int64)

	for _, fc := range feeds {
		if !fc.Enabled {
			continue
		}
		if ctx.Err() != nil {
			results[fc.URL] = domain.FeedOutcome{Err: ctx.Err()}
			continue
		}

		name := fc.CategoryName()
		if _, ok := categoryIDs[name]; !ok {
			categoryIDs[name] = s.lookupCategory(ctx, name)
		}

		results[fc.URL] = s.runOne(ctx, FeedSource{
			URL:          fc.URL,
			Name:         fc.Name,
			PollInterval: fc.Interval,
			CategoryID:   categoryIDs[name],
		})
	}

	s.logBatch(results)
	return results
}

// ProcessActive fetches every active feed in storage, including feeds added
// through the API.
func (s *FetchService) ProcessActive(ctx context.Context) (domain.BatchResult, error) {
	status := domain.FeedStatusActive
	feeds, err := s.feeds.List(ctx, domain.FeedFilter{Status: &status})
	if err != nil {
		return nil, fmt.Errorf("list active feeds: %w", err)
	}

	results := make(domain.BatchResult, len(feeds))
	for _, f := range feeds {
		if ctx.Err() != nil {
			results[f.URL] = domain.FeedOutcome{Err: ctx.Err()}
			continue
		}
		results[f.URL] = s.runOne(ctx, FeedSource{URL: f.URL})
	}

	s.logBatch(results)
	return results, nil
}

func (s *FetchService) runOne(ctx context.Context, src FeedSource) domain.FeedOutcome {
	inserted, err := s.ProcessFeed(ctx, src)
	if err != nil {
		s.logger.Error("feed processing failed", "feed_url", src.URL, "error", err)
		s.recordFailure(ctx, src.URL, err)
		return domain.FeedOutcome{Err: err}
	}
	return domain.FeedOutcome{New: inserted}
}

func (s *FetchService) recordFailure(ctx context.Context, url string, cause error) {
	feed, err := s.feeds.GetByURL(ctx, url)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("failed to look up feed for error record", "feed_url", url, "error", err)
		}
		return
	}

	msg := cause.Error()
	if err := s.feeds.UpdateError(ctx, feed.ID, &msg); err != nil {
		s.logger.Warn("failed to record feed error", "feed_id", feed.ID, "error", err)
	}
}

// lookupCategory resolves an existing category; missing ones fall back to
// the default handling in resolveFeed.
func (s *FetchService) lookupCategory(ctx context.Context, name string) *int64 {
	category, err := s.categories.GetByName(ctx, name)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("failed to look up category", "category", name, "error", err)
		}
		return nil
	}
	return &category.ID
}

func (s *FetchService) logBatch(results domain.BatchResult) {
	inserted, failed := results.Totals()
	s.logger.Info("feed batch completed",
		"feeds", len(results),
		"new_articles", inserted,
		"failed", failed,
	)
}

// EnrichArticle fills a missing summary or content from the owning feed's
// current document. Fields that are already set are left alone.
func (s *FetchService) EnrichArticle(ctx context.Context, articleID int64) (*domain.Article, error) {
	article, err := s.articles.Get(ctx, articleID)
	if err != nil {
		return nil, err
	}
	if article.Summary != nil && article.Content != nil {
		return article, nil
	}

	feed, err := s.feeds.Get(ctx, article.FeedID)
	if err != nil {
		return nil, fmt.Errorf("load feed: %w", err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.feedTimeout())
	defer cancel()

	entries, err := s.Fetch(fetchCtx, feed.URL)
	if err != nil {
		return nil, &FetchError{URL: feed.URL, Err: err}
	}

	var upd domain.ArticleUpdate
	for _, e := range entries {
		if e.Link != article.Link {
			continue
		}
		if article.Summary == nil {
			upd.Summary = optional(e.Summary)
		}
		if article.Content == nil {
			upd.Content = optional(e.Content)
		}
		break
	}

	if upd.Summary == nil && upd.Content == nil {
		s.logger.Debug("nothing to enrich", "article_id", articleID)
		return article, nil
	}

	return s.articles.Update(ctx, articleID, upd)
}

func (s *FetchService) feedTimeout() time.Duration {
	if s.config.FeedTimeout > 0 {
		return s.config.FeedTimeout
	}
	return 2 * time.Minute
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
