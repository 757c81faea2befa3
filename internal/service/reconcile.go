package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"

	"forager/internal/config"
	"forager/internal/domain"
	"forager/internal/metrics"
)

type syncAction int

const (
	actionUnchanged syncAction = iota
	actionCreated
	actionUpdated
)

// ReconcileService makes storage match the subscriptions file. The file is
// authoritative for every feed it lists; feeds it does not list are only
// touched when delete_missing is set.
type ReconcileService struct {
	feeds      FeedStore
	categories CategoryStore
	tags       TagStore
	logger     *slog.Logger
}

func NewReconcileService(feeds FeedStore, categories CategoryStore, tags TagStore, logger *slog.Logger) *ReconcileService {
	return &ReconcileService{
		feeds:      feeds,
		categories: categories,
		tags:       tags,
		logger:     logger.With("component", "reconcile"),
	}
}

func (s *ReconcileService) Sync(ctx context.Context, subs *config.Subscriptions) (*domain.SyncResult, error) {
	if err := subs.Validate(); err != nil {
		return nil, err
	}

	categoryIDs, err := s.syncCategories(ctx, subs)
	if err != nil {
		return nil, fmt.Errorf("sync categories: %w", err)
	}

	tagIDs, err := s.loadTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tags: %w", err)
	}

	stored, err := s.feeds.List(ctx, domain.FeedFilter{IncludeDeleted: true})
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}
	byURL := make(map[string]*domain.Feed, len(stored))
	for i := range stored {
		byURL[stored[i].URL] = &stored[i]
	}

	result := &domain.SyncResult{}
	listed := make(map[string]struct{}, len(subs.Feeds))
	fold := cases.Fold()

	for _, fc := range subs.Feeds {
		listed[fc.URL] = struct{}{}

		action, err := s.syncFeed(ctx, fc, byURL[fc.URL], categoryIDs, tagIDs, fold)
		if err != nil {
			msg := fmt.Sprintf("feed %s: %v", fc.URL, err)
			s.logger.Error("failed to sync feed", "feed_url", fc.URL, "error", err)
			result.Errors = append(result.Errors, msg)
			continue
		}

		switch action {
		case actionCreated:
			result.Created++
		case actionUpdated:
			result.Updated++
		default:
			result.Unchanged++
		}
	}

	if subs.DeleteMissing {
		for _, f := range stored {
			if _, ok := listed[f.URL]; ok || f.Status == domain.FeedStatusDeleted {
				continue
			}

			status := domain.FeedStatusDeleted
			if _, err := s.feeds.Update(ctx, f.ID, domain.FeedUpdate{Status: &status}); err != nil {
				msg := fmt.Sprintf("feed %s: mark deleted: %v", f.URL, err)
				s.logger.Error("failed to mark feed deleted", "feed_id", f.ID, "error", err)
				result.Errors = append(result.Errors, msg)
				continue
			}
			s.logger.Info("marked feed deleted", "feed_id", f.ID, "feed_url", f.URL)
			result.Deleted++
		}
	}

	metrics.SyncChangesTotal.WithLabelValues("created").Add(float64(result.Created))
	metrics.SyncChangesTotal.WithLabelValues("updated").Add(float64(result.Updated))
	metrics.SyncChangesTotal.WithLabelValues("deleted").Add(float64(result.Deleted))

	s.logger.Info("subscription sync completed",
		"created", result.Created,
		"updated", result.Updated,
		"deleted", result.Deleted,
		"unchanged", result.Unchanged,
		"errors", len(result.Errors),
	)

	return result, nil
}

// syncCategories creates the categories enabled feeds refer to and returns a
// name to id map of every stored category.
func (s *ReconcileService) syncCategories(ctx context.Context, subs *config.Subscriptions) (map[string]int64, error) {
	stored, err := s.categories.List(ctx)
	if err != nil {
		return nil, err
	}

	ids := make(map[string]int64, len(stored))
	for _, c := range stored {
		ids[c.Name] = c.ID
	}

	for _, fc := range subs.Enabled() {
		name := fc.CategoryName()
		if _, ok := ids[name]; ok {
			continue
		}

		category, err := s.categories.Create(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("create category %q: %w", name, err)
		}
		ids[name] = category.ID
		s.logger.Info("created category", "category", name, "category_id", category.ID)
	}

	return ids, nil
}

// categoryID resolves name, falling back to Default, then to the oldest
// existing category, and finally creating the category.
func (s *ReconcileService) categoryID(ctx context.Context, name string, ids map[string]int64) (int64, error) {
	if id, ok := ids[name]; ok {
		return id, nil
	}

	if id, ok := ids[domain.DefaultCategory]; ok {
		s.logger.Warn("category not found, using default", "category", name)
		return id, nil
	}

	stored, err := s.categories.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list categories: %w", err)
	}
	if len(stored) > 0 {
		s.logger.Warn("category not found, using first available",
			"category", name,
			"fallback", stored[0].Name,
		)
		return stored[0].ID, nil
	}

	category, err := s.categories.Create(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("create category %q: %w", name, err)
	}
	ids[name] = category.ID
	s.logger.Warn("no categories available, created one", "category", name)
	return category.ID, nil
}

func (s *ReconcileService) loadTags(ctx context.Context) (map[string]int64, error) {
	stored, err := s.tags.List(ctx)
	if err != nil {
		return nil, err
	}

	fold := cases.Fold()
	ids := make(map[string]int64, len(stored))
	for _, t := range stored {
		ids[fold.String(strings.TrimSpace(t.Name))] = t.ID
	}
	return ids, nil
}

// resolveTags maps tag names to ids, creating unknown tags with the name as
// written in the file.
func (s *ReconcileService) resolveTags(ctx context.Context, names []string, ids map[string]int64, fold cases.Caser) ([]int64, error) {
	var out []int64
	seen := make(map[int64]struct{}, len(names))

	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		key := fold.String(name)

		id, ok := ids[key]
		if !ok {
			tag, err := s.tags.Create(ctx, name)
			if err != nil {
				return nil, fmt.Errorf("create tag %q: %w", name, err)
			}
			id = tag.ID
			ids[key] = id
			s.logger.Info("created tag", "tag", name, "tag_id", id)
		}

		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	return out, nil
}

func (s *ReconcileService) syncFeed(
	ctx context.Context,
	fc config.FeedConfig,
	existing *domain.Feed,
	categoryIDs map[string]int64,
	tagIDs map[string]int64,
	fold cases.Caser,
) (syncAction, error) {
	status := domain.FeedStatusDisabled
	if fc.Enabled {
		status = domain.FeedStatusActive
	}

	categoryID, err := s.categoryID(ctx, fc.CategoryName(), categoryIDs)
	if err != nil {
		return actionUnchanged, err
	}

	var tags []int64
	if fc.Enabled {
		tags, err = s.resolveTags(ctx, fc.Tags, tagIDs, fold)
		if err != nil {
			return actionUnchanged, err
		}
	}

	stringID := fc.EffectiveStringID()

	if existing == nil {
		feed, err := s.feeds.Create(ctx, &domain.Feed{
			StringID:     &stringID,
			CategoryID:   categoryID,
			Name:         fc.Name,
			URL:          fc.URL,
			PollInterval: fc.Interval,
			Status:       status,
		})
		if err != nil {
			return actionUnchanged, fmt.Errorf("create feed: %w", err)
		}
		s.logger.Info("created feed", "feed_id", feed.ID, "feed_url", fc.URL, "status", status)

		if err := s.attachTags(ctx, feed.ID, tags); err != nil {
			return actionCreated, err
		}
		return actionCreated, nil
	}

	upd := diffFeed(existing, fc, categoryID, stringID, status)
	action := actionUnchanged
	if !upd.Empty() {
		if _, err := s.feeds.Update(ctx, existing.ID, upd); err != nil {
			return actionUnchanged, fmt.Errorf("update feed: %w", err)
		}
		s.logger.Info("updated feed", "feed_id", existing.ID, "feed_url", fc.URL)
		action = actionUpdated
	}

	if err := s.attachTags(ctx, existing.ID, tags); err != nil {
		return action, err
	}
	return action, nil
}

// attachTags only ever adds associations; tags dropped from the file stay.
func (s *ReconcileService) attachTags(ctx context.Context, feedID int64, tagIDs []int64) error {
	for _, id := range tagIDs {
		if err := s.tags.AddToFeed(ctx, feedID, id); err != nil {
			return fmt.Errorf("add tag %d: %w", id, err)
		}
	}
	return nil
}

func diffFeed(f *domain.Feed, fc config.FeedConfig, categoryID int64, stringID string, status domain.FeedStatus) domain.FeedUpdate {
	var upd domain.FeedUpdate

	if f.Name != fc.Name {
		upd.Name = &fc.Name
	}
	if f.PollInterval != fc.Interval {
		upd.PollInterval = &fc.Interval
	}
	if f.CategoryID != categoryID {
		upd.CategoryID = &categoryID
	}
	if f.StringID == nil || *f.StringID != stringID {
		upd.StringID = &stringID
	}
	if f.Status != status {
		upd.Status = &status
	}
	if f.DeletedAt != nil {
		upd.Restore = true
	}

	return upd
}

// IsValidationError reports whether err came from subscription validation.
func IsValidationError(err error) bool {
	var vErr *config.ValidationError
	return errors.As(err, &vErr)
}
