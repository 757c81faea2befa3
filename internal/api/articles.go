package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"forager/internal/domain"
)

// ListArticles filters by feed_id, category_id, repeated tag_id (all must
// match), status and an after/before window on the published date.
func (h *Handler) ListArticles(c *gin.Context) {
	filter, ok := articleFilter(c)
	if !ok {
		return
	}

	articles, err := h.articles.List(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, articles)
}

func articleFilter(c *gin.Context) (domain.ArticleFilter, bool) {
	var filter domain.ArticleFilter
	var ok bool

	if filter.FeedID, ok = queryID(c, "feed_id"); !ok {
		return filter, false
	}
	if filter.CategoryID, ok = queryID(c, "category_id"); !ok {
		return filter, false
	}
	if filter.PublishedAfter, ok = queryTime(c, "after"); !ok {
		return filter, false
	}
	if filter.PublishedBefore, ok = queryTime(c, "before"); !ok {
		return filter, false
	}
	if filter.IncludeDeleted, ok = queryBool(c, "include_deleted"); !ok {
		return filter, false
	}
	if filter.Limit, filter.Offset, ok = pagination(c); !ok {
		return filter, false
	}

	for _, raw := range c.QueryArray("tag_id") {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			badRequest(c, "invalid tag_id %q", raw)
			return filter, false
		}
		filter.TagIDs = append(filter.TagIDs, id)
	}

	if raw := c.Query("status"); raw != "" {
		status := domain.ArticleStatus(raw)
		if !status.Valid() {
			badRequest(c, "invalid status %q", raw)
			return filter, false
		}
		filter.Status = &status
	}

	return filter, true
}

// DeleteArticles removes articles in bulk by feed and/or age. At least one
// criterion is required.
func (h *Handler) DeleteArticles(c *gin.Context) {
	feedID, ok := queryID(c, "feed_id")
	if !ok {
		return
	}
	before, ok := queryTime(c, "before")
	if !ok {
		return
	}
	hard, ok := queryBool(c, "hard")
	if !ok {
		return
	}

	if feedID == nil && before == nil {
		badRequest(c, "feed_id or before is required")
		return
	}

	n, err := h.articles.DeleteMany(c.Request.Context(), domain.ArticleDeleteFilter{
		FeedID: feedID,
		Before: before,
		Hard:   hard,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.logger.Info("articles deleted", "count", n, "hard", hard)
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

func (h *Handler) GetArticle(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	article, err := h.articles.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, article)
}

func (h *Handler) UpdateArticle(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req updateArticleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "%v", err)
		return
	}

	upd := domain.ArticleUpdate{
		Title:        req.Title,
		Summary:      req.Summary,
		Content:      req.Content,
		ManualLabels: req.ManualLabels,
	}
	if req.Status != nil {
		status := domain.ArticleStatus(*req.Status)
		upd.Status = &status
	}

	article, err := h.articles.Update(c.Request.Context(), id, upd)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, article)
}

func (h *Handler) DeleteArticle(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	hard, ok := queryBool(c, "hard")
	if !ok {
		return
	}

	if err := h.articles.Delete(c.Request.Context(), id, hard); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) AddArticleTag(c *gin.Context) {
	articleID, tagID, ok := h.articleAndTag(c)
	if !ok {
		return
	}

	if err := h.tags.AddToArticle(c.Request.Context(), articleID, tagID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) RemoveArticleTag(c *gin.Context) {
	articleID, tagID, ok := h.articleAndTag(c)
	if !ok {
		return
	}

	if err := h.tags.RemoveFromArticle(c.Request.Context(), articleID, tagID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// EnrichArticle back-fills a missing summary or content from the feed.
func (h *Handler) EnrichArticle(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	article, err := h.processor.EnrichArticle(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, article)
}

func (h *Handler) articleAndTag(c *gin.Context) (int64, int64, bool) {
	articleID, ok := pathID(c, "id")
	if !ok {
		return 0, 0, false
	}
	tagID, ok := pathID(c, "tag_id")
	if !ok {
		return 0, 0, false
	}

	ctx := c.Request.Context()

	if _, err := h.articles.Get(ctx, articleID); err != nil {
		h.respondError(c, err)
		return 0, 0, false
	}
	if _, err := h.tags.Get(ctx, tagID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			notFound(c, "tag")
		} else {
			h.respondError(c, err)
		}
		return 0, 0, false
	}

	return articleID, tagID, true
}
