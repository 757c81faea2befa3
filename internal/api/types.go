package api

import (
	"context"
	"log/slog"

	"forager/internal/domain"
	"forager/internal/service"
)

// FeedProcessor is the part of the fetch pipeline the API triggers on demand.
type FeedProcessor interface {
	ProcessFeed(ctx context.Context, src service.FeedSource) (int, error)
	EnrichArticle(ctx context.Context, articleID int64) (*domain.Article, error)
}

var _ FeedProcessor = (*service.FetchService)(nil)

type Handler struct {
	categories service.CategoryStore
	tags       service.TagStore
	feeds      service.FeedStore
	articles   service.ArticleStore
	processor  FeedProcessor
	logger     *slog.Logger
}

func NewHandler(
	categories service.CategoryStore,
	tags service.TagStore,
	feeds service.FeedStore,
	articles service.ArticleStore,
	processor FeedProcessor,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		categories: categories,
		tags:       tags,
		feeds:      feeds,
		articles:   articles,
		processor:  processor,
		logger:     logger.With("component", "api"),
	}
}

type nameRequest struct {
	Name string `json:"name" binding:"required"`
}

type createFeedRequest struct {
	Name         string  `json:"name" binding:"required"`
	URL          string  `json:"url" binding:"required,url"`
	PollInterval int     `json:"poll_interval" binding:"omitempty,min=60"`
	CategoryID   int64   `json:"category_id" binding:"required"`
	StringID     *string `json:"string_id"`
}

// updateFeedRequest only allows the statuses an operator may set by hand;
// disabled and deleted are owned by the subscriptions sync.
type updateFeedRequest struct {
	Name         *string `json:"name" binding:"omitempty,min=1"`
	URL          *string `json:"url" binding:"omitempty,url"`
	PollInterval *int    `json:"poll_interval" binding:"omitempty,min=60"`
	CategoryID   *int64  `json:"category_id"`
	StringID     *string `json:"string_id"`
	Status       *string `json:"status" binding:"omitempty,oneof=active paused error"`
}

type setTagsRequest struct {
	TagIDs []int64 `json:"tag_ids"`
}

type updateArticleRequest struct {
	Title        *string        `json:"title" binding:"omitempty,min=1"`
	Status       *string        `json:"status" binding:"omitempty,oneof=new read archived"`
	Summary      *string        `json:"summary"`
	Content      *string        `json:"content"`
	ManualLabels map[string]any `json:"manual_labels"`
}

const defaultPollInterval = 3600
