package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"forager/internal/domain"
	"forager/internal/service"
	"forager/internal/service/mocks"
)

const testKey = "secret"

type fakeProcessor struct {
	src      service.FeedSource
	inserted int
	err      error
	enriched *domain.Article
}

func (f *fakeProcessor) ProcessFeed(_ context.Context, src service.FeedSource) (int, error) {
	f.src = src
	return f.inserted, f.err
}

func (f *fakeProcessor) EnrichArticle(_ context.Context, id int64) (*domain.Article, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.enriched, nil
}

type HandlerTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	categories *mocks.MockCategoryStore
	tags       *mocks.MockTagStore
	feeds      *mocks.MockFeedStore
	articles   *mocks.MockArticleStore
	processor  *fakeProcessor

	router http.Handler
}

func (s *HandlerTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.categories = mocks.NewMockCategoryStore(s.ctrl)
	s.tags = mocks.NewMockTagStore(s.ctrl)
	s.feeds = mocks.NewMockFeedStore(s.ctrl)
	s.articles = mocks.NewMockArticleStore(s.ctrl)
	s.processor = &fakeProcessor{}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(s.categories, s.tags, s.feeds, s.articles, s.processor, logger)
	s.router = NewServer(handler, testKey, logger)
}

func (s *HandlerTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(HandlerTestSuite))
}

func (s *HandlerTestSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", testKey)

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerTestSuite) decode(rec *httptest.ResponseRecorder, v any) {
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), v))
}

func (s *HandlerTestSuite) TestAuth() {
	req := httptest.NewRequest(http.MethodGet, "/api/tags", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/tags", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusUnauthorized, rec.Code)

	s.tags.EXPECT().List(gomock.Any()).Return([]domain.Tag{{ID: 1, Name: "tech"}}, nil)

	req = httptest.NewRequest(http.MethodGet, "/api/tags", nil)
	req.Header.Set("Authorization", "Bearer "+testKey)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *HandlerTestSuite) TestPublicEndpoints() {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	s.Equal(http.StatusOK, rec.Code)

	s.feeds.EXPECT().List(gomock.Any(), domain.FeedFilter{Limit: 1}).Return(nil, nil)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	s.Equal(http.StatusOK, rec.Code)

	s.feeds.EXPECT().List(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection refused"))
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	s.Equal(http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "forager_http_requests_total")
}

func (s *HandlerTestSuite) TestCreateCategory() {
	s.categories.EXPECT().Create(gomock.Any(), "News").Return(&domain.Category{ID: 3, Name: "News"}, nil)

	rec := s.do(http.MethodPost, "/api/categories", map[string]any{"name": "News"})
	s.Equal(http.StatusCreated, rec.Code)

	var got domain.Category
	s.decode(rec, &got)
	s.Equal(int64(3), got.ID)

	rec = s.do(http.MethodPost, "/api/categories", map[string]any{})
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerTestSuite) TestDeleteCategory_InUse() {
	s.categories.EXPECT().Delete(gomock.Any(), int64(3)).
		Return(&domain.ConflictError{Entity: "category", Reason: "still referenced"})

	rec := s.do(http.MethodDelete, "/api/categories/3", nil)
	s.Equal(http.StatusConflict, rec.Code)
}

func (s *HandlerTestSuite) TestCreateFeed_DefaultsAndStatus() {
	s.categories.EXPECT().Get(gomock.Any(), int64(1)).Return(&domain.Category{ID: 1}, nil)
	s.feeds.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, f *domain.Feed) (*domain.Feed, error) {
			s.Equal(3600, f.PollInterval)
			s.Equal(domain.FeedStatusActive, f.Status)
			out := *f
			out.ID = 9
			return &out, nil
		},
	)

	rec := s.do(http.MethodPost, "/api/feeds", map[string]any{
		"name":        "Tech",
		"url":         "https://example.com/rss",
		"category_id": 1,
	})
	s.Equal(http.StatusCreated, rec.Code)

	var got domain.Feed
	s.decode(rec, &got)
	s.Equal(int64(9), got.ID)
}

func (s *HandlerTestSuite) TestCreateFeed_Validation() {
	cases := []map[string]any{
		{"name": "Tech", "url": "https://example.com/rss", "category_id": 1, "poll_interval": 30},
		{"name": "Tech", "category_id": 1},
		{"name": "Tech", "url": "not a url", "category_id": 1},
		{"url": "https://example.com/rss", "category_id": 1},
	}

	for _, body := range cases {
		rec := s.do(http.MethodPost, "/api/feeds", body)
		s.Equal(http.StatusBadRequest, rec.Code, "body %v", body)
	}
}

func (s *HandlerTestSuite) TestCreateFeed_UnknownCategory() {
	s.categories.EXPECT().Get(gomock.Any(), int64(42)).Return(nil, domain.ErrNotFound)

	rec := s.do(http.MethodPost, "/api/feeds", map[string]any{
		"name":        "Tech",
		"url":         "https://example.com/rss",
		"category_id": 42,
	})
	s.Equal(http.StatusNotFound, rec.Code)
	s.Contains(rec.Body.String(), "category not found")
}

func (s *HandlerTestSuite) TestCreateFeed_DuplicateURL() {
	s.categories.EXPECT().Get(gomock.Any(), int64(1)).Return(&domain.Category{ID: 1}, nil)
	s.feeds.EXPECT().Create(gomock.Any(), gomock.Any()).
		Return(nil, &domain.ConflictError{Entity: "feed", Field: "url", Value: "https://example.com/rss"})

	rec := s.do(http.MethodPost, "/api/feeds", map[string]any{
		"name":        "Tech",
		"url":         "https://example.com/rss",
		"category_id": 1,
	})
	s.Equal(http.StatusConflict, rec.Code)
	s.Contains(rec.Body.String(), "already exists")
}

func (s *HandlerTestSuite) TestUpdateFeed_StatusRestricted() {
	rec := s.do(http.MethodPut, "/api/feeds/5", map[string]any{"status": "disabled"})
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPut, "/api/feeds/5", map[string]any{"poll_interval": 10})
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerTestSuite) TestUpdateFeed_Pause() {
	paused := domain.FeedStatusPaused

	s.feeds.EXPECT().Get(gomock.Any(), int64(5)).Return(&domain.Feed{ID: 5, Status: domain.FeedStatusActive}, nil)
	s.feeds.EXPECT().Update(gomock.Any(), int64(5), domain.FeedUpdate{Status: &paused}).
		Return(&domain.Feed{ID: 5, Status: paused}, nil)

	rec := s.do(http.MethodPut, "/api/feeds/5", map[string]any{"status": "paused"})
	s.Equal(http.StatusOK, rec.Code)

	var got domain.Feed
	s.decode(rec, &got)
	s.Equal(paused, got.Status)
}

func (s *HandlerTestSuite) TestUpdateFeed_EmptyBodyReturnsCurrent() {
	s.feeds.EXPECT().Get(gomock.Any(), int64(5)).Return(&domain.Feed{ID: 5, Name: "Tech"}, nil)

	rec := s.do(http.MethodPut, "/api/feeds/5", map[string]any{})
	s.Equal(http.StatusOK, rec.Code)
}

func (s *HandlerTestSuite) TestGetFeed_NotFoundAndBadID() {
	s.feeds.EXPECT().Get(gomock.Any(), int64(7)).Return(nil, domain.ErrNotFound)

	rec := s.do(http.MethodGet, "/api/feeds/7", nil)
	s.Equal(http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/api/feeds/abc", nil)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerTestSuite) TestDeleteFeed() {
	s.feeds.EXPECT().Delete(gomock.Any(), int64(5), false).Return(nil)
	s.feeds.EXPECT().Delete(gomock.Any(), int64(6), true).Return(nil)

	s.Equal(http.StatusNoContent, s.do(http.MethodDelete, "/api/feeds/5", nil).Code)
	s.Equal(http.StatusNoContent, s.do(http.MethodDelete, "/api/feeds/6?hard=true", nil).Code)
}

func (s *HandlerTestSuite) TestListFeeds_Filters() {
	cat := int64(2)
	active := domain.FeedStatusActive

	s.feeds.EXPECT().List(gomock.Any(), domain.FeedFilter{
		CategoryID:     &cat,
		Status:         &active,
		IncludeDeleted: true,
		Limit:          10,
		Offset:         20,
	}).Return([]domain.Feed{{ID: 1}}, nil)

	rec := s.do(http.MethodGet, "/api/feeds?category_id=2&status=active&include_deleted=true&limit=10&skip=20", nil)
	s.Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/api/feeds?status=bogus", nil)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerTestSuite) TestSetFeedTags_ReplacesSet() {
	s.feeds.EXPECT().Get(gomock.Any(), int64(5)).Return(&domain.Feed{ID: 5}, nil)
	s.tags.EXPECT().SetFeedTags(gomock.Any(), int64(5), []int64{2, 3}).Return(nil)
	s.tags.EXPECT().ListByFeed(gomock.Any(), int64(5)).
		Return([]domain.Tag{{ID: 2, Name: "go"}, {ID: 3, Name: "rss"}}, nil)

	rec := s.do(http.MethodPut, "/api/feeds/5/tags", map[string]any{"tag_ids": []int64{2, 3}})
	s.Equal(http.StatusOK, rec.Code)

	var got []domain.Tag
	s.decode(rec, &got)
	s.Len(got, 2)
}

func (s *HandlerTestSuite) TestAddFeedTag_UnknownTag() {
	s.feeds.EXPECT().Get(gomock.Any(), int64(5)).Return(&domain.Feed{ID: 5}, nil)
	s.tags.EXPECT().Get(gomock.Any(), int64(99)).Return(nil, domain.ErrNotFound)

	rec := s.do(http.MethodPost, "/api/feeds/5/tags/99", nil)
	s.Equal(http.StatusNotFound, rec.Code)
	s.Contains(rec.Body.String(), "tag not found")
}

func (s *HandlerTestSuite) TestFetchFeed() {
	feed := &domain.Feed{ID: 5, Name: "Tech", URL: "https://example.com/rss", PollInterval: 600, CategoryID: 1}
	s.feeds.EXPECT().Get(gomock.Any(), int64(5)).Return(feed, nil).Times(2)
	s.processor.inserted = 4

	rec := s.do(http.MethodPost, "/api/feeds/5/fetch", nil)
	s.Equal(http.StatusOK, rec.Code)
	s.Equal(feed.URL, s.processor.src.URL)

	var got map[string]int
	s.decode(rec, &got)
	s.Equal(4, got["new_articles"])

	s.processor.err = &service.FetchError{URL: feed.URL, Err: errors.New("HTTP 503")}
	rec = s.do(http.MethodPost, "/api/feeds/5/fetch", nil)
	s.Equal(http.StatusBadGateway, rec.Code)
}

func (s *HandlerTestSuite) TestListArticles_Filters() {
	after := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	read := domain.ArticleStatusRead
	feedID := int64(5)

	s.articles.EXPECT().List(gomock.Any(), domain.ArticleFilter{
		FeedID:         &feedID,
		TagIDs:         []int64{1, 2},
		Status:         &read,
		PublishedAfter: &after,
		Limit:          100,
	}).Return([]domain.Article{{ID: 1}}, nil)

	rec := s.do(http.MethodGet, "/api/articles?feed_id=5&tag_id=1&tag_id=2&status=read&after=2024-01-01T00:00:00Z", nil)
	s.Equal(http.StatusOK, rec.Code)

	for _, q := range []string{"status=unknown", "after=yesterday", "tag_id=x", "limit=0", "skip=-1"} {
		rec = s.do(http.MethodGet, "/api/articles?"+q, nil)
		s.Equal(http.StatusBadRequest, rec.Code, q)
	}
}

func (s *HandlerTestSuite) TestDeleteArticles_RequiresCriterion() {
	rec := s.do(http.MethodDelete, "/api/articles", nil)
	s.Equal(http.StatusBadRequest, rec.Code)

	feedID := int64(5)
	s.articles.EXPECT().DeleteMany(gomock.Any(), domain.ArticleDeleteFilter{FeedID: &feedID, Hard: true}).
		Return(int64(12), nil)

	rec = s.do(http.MethodDelete, "/api/articles?feed_id=5&hard=true", nil)
	s.Equal(http.StatusOK, rec.Code)

	var got map[string]int64
	s.decode(rec, &got)
	s.Equal(int64(12), got["deleted"])
}

func (s *HandlerTestSuite) TestUpdateArticle() {
	read := domain.ArticleStatusRead
	s.articles.EXPECT().Update(gomock.Any(), int64(3), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ int64, upd domain.ArticleUpdate) (*domain.Article, error) {
			s.Equal(&read, upd.Status)
			s.Equal("yes", upd.ManualLabels["starred"])
			return &domain.Article{ID: 3, Status: read}, nil
		},
	)

	rec := s.do(http.MethodPut, "/api/articles/3", map[string]any{
		"status":        "read",
		"manual_labels": map[string]any{"starred": "yes"},
	})
	s.Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodPut, "/api/articles/3", map[string]any{"status": "deleted"})
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerTestSuite) TestEnrichArticle() {
	summary := "filled"
	s.processor.enriched = &domain.Article{ID: 3, Summary: &summary}

	rec := s.do(http.MethodPost, "/api/articles/3/enrich", nil)
	s.Equal(http.StatusOK, rec.Code)

	var got domain.Article
	s.decode(rec, &got)
	s.Equal("filled", *got.Summary)

	s.processor.err = domain.ErrNotFound
	rec = s.do(http.MethodPost, "/api/articles/3/enrich", nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *HandlerTestSuite) TestStorageFailureIsOpaque() {
	s.articles.EXPECT().Get(gomock.Any(), int64(3)).
		Return(nil, &domain.StorageError{Op: "get article", Err: errors.New("pq: password authentication failed")})

	rec := s.do(http.MethodGet, "/api/articles/3", nil)
	s.Equal(http.StatusInternalServerError, rec.Code)
	s.NotContains(rec.Body.String(), "password")
}
