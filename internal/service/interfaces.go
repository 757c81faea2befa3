package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"net/http"

	"forager/internal/domain"
	"forager/internal/feedparser"
	"forager/internal/httpclient"
)

type CategoryStore interface {
	Create(ctx context.Context, name string) (*domain.Category, error)
	Get(ctx context.Context, id int64) (*domain.Category, error)
	GetByName(ctx context.Context, name string) (*domain.Category, error)
	List(ctx context.Context) ([]domain.Category, error)
	Update(ctx context.Context, id int64, name string) (*domain.Category, error)
	Delete(ctx context.Context, id int64) error
}

type TagStore interface {
	Create(ctx context.Context, name string) (*domain.Tag, error)
	Get(ctx context.Context, id int64) (*domain.Tag, error)
	GetByName(ctx context.Context, name string) (*domain.Tag, error)
	List(ctx context.Context) ([]domain.Tag, error)
	Update(ctx context.Context, id int64, name string) (*domain.Tag, error)
	Delete(ctx context.Context, id int64) error
	AddToFeed(ctx context.Context, feedID, tagID int64) error
	RemoveFromFeed(ctx context.Context, feedID, tagID int64) error
	SetFeedTags(ctx context.Context, feedID int64, tagIDs []int64) error
	AddToArticle(ctx context.Context, articleID, tagID int64) error
	RemoveFromArticle(ctx context.Context, articleID, tagID int64) error
	LinkArticles(ctx context.Context, articleIDs []int64, tagIDs []int64) error
	ListByFeed(ctx context.Context, feedID int64) ([]domain.Tag, error)
	ListByArticle(ctx context.Context, articleID int64) ([]domain.Tag, error)
}

type FeedStore interface {
	Create(ctx context.Context, feed *domain.Feed) (*domain.Feed, error)
	Get(ctx context.Context, id int64) (*domain.Feed, error)
	GetByURL(ctx context.Context, url string) (*domain.Feed, error)
	List(ctx context.Context, filter domain.FeedFilter) ([]domain.Feed, error)
	Update(ctx context.Context, id int64, upd domain.FeedUpdate) (*domain.Feed, error)
	Delete(ctx context.Context, id int64, hard bool) error
	UpdateError(ctx context.Context, id int64, message *string) error
}

type ArticleStore interface {
	Create(ctx context.Context, article *domain.Article) (*domain.Article, error)
	CreateBatch(ctx context.Context, articles []domain.Article) ([]domain.Article, error)
	Get(ctx context.Context, id int64) (*domain.Article, error)
	List(ctx context.Context, filter domain.ArticleFilter) ([]domain.Article, error)
	ExistingLinks(ctx context.Context, feedID int64) (map[string]struct{}, error)
	Update(ctx context.Context, id int64, upd domain.ArticleUpdate) (*domain.Article, error)
	Delete(ctx context.Context, id int64, hard bool) error
	DeleteMany(ctx context.Context, filter domain.ArticleDeleteFilter) (int64, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	PublishCreated(ctx context.Context, article *domain.Article) error
	Close() error
}

type Fetcher interface {
	Get(ctx context.Context, url string, headers http.Header) (*httpclient.Response, error)
}

type FeedParser interface {
	Parse(data []byte, contentType string) feedparser.Document
}
