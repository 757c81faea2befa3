package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"forager/internal/config"
	"forager/internal/domain"
	"forager/internal/feedparser"
	"forager/internal/httpclient"
	"forager/internal/service/mocks"
	"forager/testdata/utils"
)

type FetchServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	feeds      *mocks.MockFeedStore
	articles   *mocks.MockArticleStore
	categories *mocks.MockCategoryStore
	tags       *mocks.MockTagStore
	txManager  *mocks.MockTransactionManager
	fetcher    *mocks.MockFetcher
	publisher  *mocks.MockPublisher

	service *FetchService
	logger  *slog.Logger
}

func (s *FetchServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.feeds = mocks.NewMockFeedStore(s.ctrl)
	s.articles = mocks.NewMockArticleStore(s.ctrl)
	s.categories = mocks.NewMockCategoryStore(s.ctrl)
	s.tags = mocks.NewMockTagStore(s.ctrl)
	s.txManager = mocks.NewMockTransactionManager(s.ctrl)
	s.fetcher = mocks.NewMockFetcher(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)

	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	s.txManager.EXPECT().WithTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	).AnyTimes()

	s.service = NewFetchService(
		s.feeds,
		s.articles,
		s.categories,
		s.tags,
		s.txManager,
		s.fetcher,
		feedparser.New(s.logger),
		s.publisher,
		s.logger,
		config.FetchConfig{FeedTimeout: 5 * time.Second},
	)
}

func (s *FetchServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestFetchServiceTestSuite(t *testing.T) {
	suite.Run(t, new(FetchServiceTestSuite))
}

type item struct {
	title, link, date string
}

func rss(items ...item) []byte {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0"?><rss version="2.0"><channel><title>T</title>`)
	for _, it := range items {
		fmt.Fprintf(&sb, "<item><title>%s</title><link>%s</link>", it.title, it.link)
		if it.date != "" {
			fmt.Fprintf(&sb, "<pubDate>%s</pubDate>", it.date)
		}
		sb.WriteString("</item>")
	}
	sb.WriteString("</channel></rss>")
	return []byte(sb.String())
}

func (s *FetchServiceTestSuite) respond(url string, body []byte) {
	s.fetcher.EXPECT().Get(gomock.Any(), url, gomock.Any()).Return(&httpclient.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/rss+xml"}},
		Body:       body,
	}, nil)
}

// insertWithIDs echoes the batch back with ids assigned, like the store does.
func insertWithIDs(firstID int64) func(context.Context, []domain.Article) ([]domain.Article, error) {
	return func(_ context.Context, batch []domain.Article) ([]domain.Article, error) {
		out := make([]domain.Article, len(batch))
		for i, a := range batch {
			a.ID = firstID + int64(i)
			out[i] = a
		}
		return out, nil
	}
}

func (s *FetchServiceTestSuite) TestProcessFeed_CreatesFeedAndStoresNewArticles() {
	ctx := context.Background()
	url := "http://x/rss"

	s.feeds.EXPECT().GetByURL(ctx, url).Return(nil, domain.ErrNotFound)
	s.categories.EXPECT().GetByName(ctx, "Default").Return(nil, domain.ErrNotFound)
	s.categories.EXPECT().Create(ctx, "Default").Return(&domain.Category{ID: 1, Name: "Default"}, nil)
	s.feeds.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, f *domain.Feed) (*domain.Feed, error) {
			s.Equal(int64(1), f.CategoryID)
			s.Equal("Tech", f.Name)
			s.Equal(3600, f.PollInterval)
			s.Equal(domain.FeedStatusActive, f.Status)
			f.ID = 10
			return f, nil
		},
	)

	s.respond(url, rss(
		item{"A", "http://x/a#reply-1", "Mon, 02 Jan 2006 15:04:05 GMT"},
		item{"A again", "http://x/a#reply-2", "Mon, 02 Jan 2006 15:04:05 GMT"},
		item{"B", "http://x/b", "sometime last week"},
		item{"C", "http://x/c", "2024-03-05T10:30:00Z"},
	))

	s.articles.EXPECT().ExistingLinks(gomock.Any(), int64(10)).Return(map[string]struct{}{}, nil)
	s.articles.EXPECT().CreateBatch(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, batch []domain.Article) ([]domain.Article, error) {
			s.Require().Len(batch, 2)
			s.Equal("http://x/a", batch[0].Link)
			s.Equal("A", batch[0].Title)
			s.Equal(time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC), batch[0].PublishedAt)
			s.Equal("http://x/c", batch[1].Link)
			s.Equal(domain.ArticleStatusNew, batch[1].Status)
			s.Equal(int64(10), batch[1].FeedID)
			return insertWithIDs(100)(ctx, batch)
		},
	)
	s.tags.EXPECT().ListByFeed(gomock.Any(), int64(10)).Return(nil, nil)
	s.publisher.EXPECT().PublishCreated(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	inserted, err := s.service.ProcessFeed(ctx, FeedSource{URL: url, Name: "Tech"})

	s.NoError(err)
	s.Equal(2, inserted)
}

func (s *FetchServiceTestSuite) TestProcessFeed_SecondRunFindsNothingNew() {
	ctx := context.Background()
	url := "http://x/rss"
	feed := &domain.Feed{ID: 10, URL: url, Status: domain.FeedStatusActive}

	s.feeds.EXPECT().GetByURL(ctx, url).Return(feed, nil)
	s.respond(url, rss(
		item{"A", "http://x/a#reply-9", "2024-03-05"},
		item{"C", "http://x/c", "2024-03-05"},
	))
	s.articles.EXPECT().ExistingLinks(gomock.Any(), int64(10)).Return(map[string]struct{}{
		"http://x/a": {},
		"http://x/c": {},
	}, nil)

	inserted, err := s.service.ProcessFeed(ctx, FeedSource{URL: url})

	s.NoError(err)
	s.Equal(0, inserted)
}

func (s *FetchServiceTestSuite) TestProcessFeed_UnparseableBodyYieldsNothing() {
	ctx := context.Background()
	url := "http://x/blocked"

	s.feeds.EXPECT().GetByURL(ctx, url).Return(&domain.Feed{ID: 3, URL: url}, nil)
	s.respond(url, []byte("<html><body>Access denied</body></html>"))

	inserted, err := s.service.ProcessFeed(ctx, FeedSource{URL: url})

	s.NoError(err)
	s.Equal(0, inserted)
}

func (s *FetchServiceTestSuite) TestProcessFeed_InheritsFeedTagsAndClearsError() {
	ctx := context.Background()
	url := "http://x/rss"
	feed := &domain.Feed{ID: 10, URL: url, LastError: utils.Ptr("boom")}
	tags := []domain.Tag{{ID: 7, Name: "tech"}, {ID: 8, Name: "go"}}

	s.feeds.EXPECT().GetByURL(ctx, url).Return(feed, nil)
	s.respond(url, rss(item{"A", "http://x/a", "2024-03-05"}))
	s.articles.EXPECT().ExistingLinks(gomock.Any(), int64(10)).Return(nil, nil)
	s.articles.EXPECT().CreateBatch(gomock.Any(), gomock.Any()).DoAndReturn(insertWithIDs(50))
	s.tags.EXPECT().ListByFeed(gomock.Any(), int64(10)).Return(tags, nil)
	s.tags.EXPECT().LinkArticles(gomock.Any(), []int64{50}, []int64{7, 8}).Return(nil)
	s.feeds.EXPECT().UpdateError(ctx, int64(10), nil).Return(nil)
	s.publisher.EXPECT().PublishCreated(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, a *domain.Article) error {
			s.Equal(tags, a.Tags)
			return nil
		},
	)

	inserted, err := s.service.ProcessFeed(ctx, FeedSource{URL: url})

	s.NoError(err)
	s.Equal(1, inserted)
}

func (s *FetchServiceTestSuite) TestProcessFeed_PublishFailureIsNotFatal() {
	ctx := context.Background()
	url := "http://x/rss"

	s.feeds.EXPECT().GetByURL(ctx, url).Return(&domain.Feed{ID: 10, URL: url}, nil)
	s.respond(url, rss(item{"A", "http://x/a", "2024-03-05"}))
	s.articles.EXPECT().ExistingLinks(gomock.Any(), int64(10)).Return(nil, nil)
	s.articles.EXPECT().CreateBatch(gomock.Any(), gomock.Any()).DoAndReturn(insertWithIDs(1))
	s.tags.EXPECT().ListByFeed(gomock.Any(), int64(10)).Return(nil, nil)
	s.publisher.EXPECT().PublishCreated(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

	inserted, err := s.service.ProcessFeed(ctx, FeedSource{URL: url})

	s.NoError(err)
	s.Equal(1, inserted)
}

func (s *FetchServiceTestSuite) TestProcessFeeds_FailureRecordedOthersContinue() {
	ctx := context.Background()
	bad := &domain.Feed{ID: 1, URL: "http://bad/rss"}
	good := &domain.Feed{ID: 2, URL: "http://good/rss"}

	feeds := []config.FeedConfig{
		{ID: "bad", Name: "Bad", URL: bad.URL, Interval: 60, Enabled: true},
		{ID: "off", Name: "Off", URL: "http://off/rss", Interval: 60, Enabled: false},
		{ID: "good", Name: "Good", URL: good.URL, Interval: 60, Enabled: true},
	}

	s.categories.EXPECT().GetByName(ctx, "Default").Return(&domain.Category{ID: 1, Name: "Default"}, nil)

	s.feeds.EXPECT().GetByURL(ctx, bad.URL).Return(bad, nil).Times(2)
	s.fetcher.EXPECT().Get(gomock.Any(), bad.URL, gomock.Any()).Return(nil, &httpclient.NetworkError{
		URL: bad.URL,
		Err: errors.New("connection refused"),
	})
	s.feeds.EXPECT().UpdateError(ctx, int64(1), gomock.Not(gomock.Nil())).DoAndReturn(
		func(_ context.Context, _ int64, msg *string) error {
			s.Contains(*msg, "connection refused")
			return nil
		},
	)

	s.feeds.EXPECT().GetByURL(ctx, good.URL).Return(good, nil)
	s.respond(good.URL, rss(item{"A", "http://good/a", "2024-03-05"}))
	s.articles.EXPECT().ExistingLinks(gomock.Any(), int64(2)).Return(nil, nil)
	s.articles.EXPECT().CreateBatch(gomock.Any(), gomock.Any()).DoAndReturn(insertWithIDs(1))
	s.tags.EXPECT().ListByFeed(gomock.Any(), int64(2)).Return(nil, nil)
	s.publisher.EXPECT().PublishCreated(gomock.Any(), gomock.Any()).Return(nil)

	results := s.service.ProcessFeeds(ctx, feeds)

	s.Len(results, 2)

	var netErr *httpclient.NetworkError
	s.True(errors.As(results[bad.URL].Err, &netErr))

	var fetchErr *FetchError
	s.True(errors.As(results[bad.URL].Err, &fetchErr))

	s.NoError(results[good.URL].Err)
	s.Equal(1, results[good.URL].New)

	inserted, failed := results.Totals()
	s.Equal(1, inserted)
	s.Equal(1, failed)
}

func (s *FetchServiceTestSuite) TestProcessActive() {
	ctx := context.Background()
	status := domain.FeedStatusActive
	feed := domain.Feed{ID: 4, URL: "http://x/rss", Status: status}

	s.feeds.EXPECT().List(ctx, domain.FeedFilter{Status: &status}).Return([]domain.Feed{feed}, nil)
	s.feeds.EXPECT().GetByURL(ctx, feed.URL).Return(&feed, nil)
	s.respond(feed.URL, rss())

	results, err := s.service.ProcessActive(ctx)

	s.NoError(err)
	s.Equal(domain.FeedOutcome{}, results[feed.URL])
}

func (s *FetchServiceTestSuite) TestEnrichArticle_FillsMissingFields() {
	ctx := context.Background()
	article := &domain.Article{ID: 5, FeedID: 10, Link: "http://x/a", Summary: utils.Ptr("kept")}
	feed := &domain.Feed{ID: 10, URL: "http://x/rss"}

	body := []byte(`<?xml version="1.0"?><rss version="2.0"><channel><title>T</title>
<item><title>A</title><link>http://x/a#reply-4</link><description>new summary</description>
<content:encoded xmlns:content="http://purl.org/rss/1.0/modules/content/">full body</content:encoded></item>
</channel></rss>`)

	s.articles.EXPECT().Get(ctx, int64(5)).Return(article, nil)
	s.feeds.EXPECT().Get(ctx, int64(10)).Return(feed, nil)
	s.respond(feed.URL, body)
	s.articles.EXPECT().Update(ctx, int64(5), domain.ArticleUpdate{Content: utils.Ptr("full body")}).
		Return(&domain.Article{ID: 5, Content: utils.Ptr("full body"), Summary: utils.Ptr("kept")}, nil)

	got, err := s.service.EnrichArticle(ctx, 5)

	s.NoError(err)
	s.Equal("full body", *got.Content)
	s.Equal("kept", *got.Summary)
}

func (s *FetchServiceTestSuite) TestEnrichArticle_AlreadyComplete() {
	ctx := context.Background()
	article := &domain.Article{ID: 5, Summary: utils.Ptr("s"), Content: utils.Ptr("c")}

	s.articles.EXPECT().Get(ctx, int64(5)).Return(article, nil)

	got, err := s.service.EnrichArticle(ctx, 5)

	s.NoError(err)
	s.Same(article, got)
}
