package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"forager/internal/domain"
	"forager/internal/service"
)

func (h *Handler) ListFeeds(c *gin.Context) {
	categoryID, ok := queryID(c, "category_id")
	if !ok {
		return
	}
	includeDeleted, ok := queryBool(c, "include_deleted")
	if !ok {
		return
	}
	limit, offset, ok := pagination(c)
	if !ok {
		return
	}

	filter := domain.FeedFilter{
		CategoryID:     categoryID,
		IncludeDeleted: includeDeleted,
		Limit:          limit,
		Offset:         offset,
	}
	if raw := c.Query("status"); raw != "" {
		status := domain.FeedStatus(raw)
		if !status.Valid() {
			badRequest(c, "invalid status %q", raw)
			return
		}
		filter.Status = &status
	}

	feeds, err := h.feeds.List(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, feeds)
}

func (h *Handler) CreateFeed(c *gin.Context) {
	var req createFeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "%v", err)
		return
	}

	ctx := c.Request.Context()

	if !h.categoryExists(c, req.CategoryID) {
		return
	}

	if req.PollInterval == 0 {
		req.PollInterval = defaultPollInterval
	}

	feed, err := h.feeds.Create(ctx, &domain.Feed{
		StringID:     req.StringID,
		CategoryID:   req.CategoryID,
		Name:         req.Name,
		URL:          req.URL,
		PollInterval: req.PollInterval,
		Status:       domain.FeedStatusActive,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.logger.Info("feed created", "feed_id", feed.ID, "url", feed.URL)
	c.JSON(http.StatusCreated, feed)
}

func (h *Handler) GetFeed(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	feed, err := h.feeds.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, feed)
}

func (h *Handler) UpdateFeed(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req updateFeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "%v", err)
		return
	}

	ctx := c.Request.Context()

	feed, err := h.feeds.Get(ctx, id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if req.CategoryID != nil && !h.categoryExists(c, *req.CategoryID) {
		return
	}

	upd := domain.FeedUpdate{
		Name:         req.Name,
		URL:          req.URL,
		PollInterval: req.PollInterval,
		CategoryID:   req.CategoryID,
		StringID:     req.StringID,
	}
	if req.Status != nil {
		status := domain.FeedStatus(*req.Status)
		upd.Status = &status
	}

	if upd.Empty() {
		c.JSON(http.StatusOK, feed)
		return
	}

	updated, err := h.feeds.Update(ctx, id, upd)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteFeed soft-deletes unless hard=true, which also removes its articles.
func (h *Handler) DeleteFeed(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	hard, ok := queryBool(c, "hard")
	if !ok {
		return
	}

	if err := h.feeds.Delete(c.Request.Context(), id, hard); err != nil {
		h.respondError(c, err)
		return
	}

	h.logger.Info("feed deleted", "feed_id", id, "hard", hard)
	c.Status(http.StatusNoContent)
}

// SetFeedTags replaces the feed's tag set with exactly the given ids.
func (h *Handler) SetFeedTags(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req setTagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "%v", err)
		return
	}

	ctx := c.Request.Context()

	if _, err := h.feeds.Get(ctx, id); err != nil {
		h.respondError(c, err)
		return
	}

	if err := h.tags.SetFeedTags(ctx, id, req.TagIDs); err != nil {
		h.respondError(c, err)
		return
	}

	tags, err := h.tags.ListByFeed(ctx, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tags)
}

func (h *Handler) AddFeedTag(c *gin.Context) {
	feedID, tagID, ok := h.feedAndTag(c)
	if !ok {
		return
	}

	if err := h.tags.AddToFeed(c.Request.Context(), feedID, tagID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) RemoveFeedTag(c *gin.Context) {
	feedID, tagID, ok := h.feedAndTag(c)
	if !ok {
		return
	}

	if err := h.tags.RemoveFromFeed(c.Request.Context(), feedID, tagID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListFeedArticles(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	limit, offset, ok := pagination(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()

	if _, err := h.feeds.Get(ctx, id); err != nil {
		h.respondError(c, err)
		return
	}

	articles, err := h.articles.List(ctx, domain.ArticleFilter{
		FeedID: &id,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, articles)
}

// FetchFeed runs the fetch pipeline for one stored feed right away.
func (h *Handler) FetchFeed(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()

	feed, err := h.feeds.Get(ctx, id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	inserted, err := h.processor.ProcessFeed(ctx, service.FeedSource{
		URL:          feed.URL,
		Name:         feed.Name,
		PollInterval: feed.PollInterval,
		CategoryID:   &feed.CategoryID,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"feed_id":      feed.ID,
		"new_articles": inserted,
	})
}

func (h *Handler) categoryExists(c *gin.Context, id int64) bool {
	if _, err := h.categories.Get(c.Request.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			notFound(c, "category")
		} else {
			h.respondError(c, err)
		}
		return false
	}
	return true
}

// feedAndTag resolves both path ids and checks that each row exists, so a
// dangling id reports 404 instead of a constraint conflict.
func (h *Handler) feedAndTag(c *gin.Context) (int64, int64, bool) {
	feedID, ok := pathID(c, "id")
	if !ok {
		return 0, 0, false
	}
	tagID, ok := pathID(c, "tag_id")
	if !ok {
		return 0, 0, false
	}

	ctx := c.Request.Context()

	if _, err := h.feeds.Get(ctx, feedID); err != nil {
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

	return feedID, tagID, true
}
