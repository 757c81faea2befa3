package service

import (
	"context"
	"errors"

	"go.uber.org/mock/gomock"

	"forager/internal/config"
	"forager/internal/domain"
)

func (s *FetchServiceTestSuite) newCycle(load SubscriptionLoader) *Cycle {
	reconciler := NewReconcileService(s.feeds, s.categories, s.tags, s.logger)
	return NewCycle(load, reconciler, s.service, s.logger)
}

func (s *FetchServiceTestSuite) TestCycle_UnreadableSubscriptionsStillFetches() {
	ctx := context.Background()
	status := domain.FeedStatusActive
	feed := domain.Feed{ID: 4, URL: "http://x/rss", Status: status}

	cycle := s.newCycle(func() (*config.Subscriptions, error) {
		return nil, errors.New("open feeds.yaml: no such file or directory")
	})

	s.feeds.EXPECT().List(ctx, domain.FeedFilter{Status: &status}).Return([]domain.Feed{feed}, nil)
	s.feeds.EXPECT().GetByURL(ctx, feed.URL).Return(&feed, nil)
	s.respond(feed.URL, rss())

	stats, err := cycle.Sync(ctx)

	s.Require().NoError(err)
	s.Nil(stats.Sync)
	s.Equal(1, stats.Feeds)
	s.Zero(stats.Failed)
}

func (s *FetchServiceTestSuite) TestCycle_InvalidSubscriptionsSkipReconcile() {
	ctx := context.Background()
	status := domain.FeedStatusActive

	cycle := s.newCycle(func() (*config.Subscriptions, error) {
		return &config.Subscriptions{Feeds: []config.FeedConfig{
			{ID: "a", Name: "A", URL: "http://x/a", Interval: 60, Enabled: true},
			{ID: "a", Name: "B", URL: "http://x/b", Interval: 60, Enabled: true},
		}}, nil
	})

	// Only the active-feed listing touches storage.
	s.feeds.EXPECT().List(ctx, domain.FeedFilter{Status: &status}).Return(nil, nil)

	stats, err := cycle.Sync(ctx)

	s.Require().NoError(err)
	s.Nil(stats.Sync)
	s.Zero(stats.Feeds)
}

func (s *FetchServiceTestSuite) TestCycle_ListFailureIsReturned() {
	ctx := context.Background()

	cycle := s.newCycle(func() (*config.Subscriptions, error) {
		return nil, errors.New("unreadable")
	})

	s.feeds.EXPECT().List(ctx, gomock.Any()).Return(nil, &domain.StorageError{Op: "list feeds", Err: errors.New("timeout")})

	_, err := cycle.Sync(ctx)

	var storageErr *domain.StorageError
	s.ErrorAs(err, &storageErr)
}
