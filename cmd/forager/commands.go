package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"slices"
	"time"

	"forager/internal/api"
	"forager/internal/config"
	"forager/internal/feedparser"
	"forager/internal/httpclient"
	"forager/internal/normalize"
	"forager/internal/scheduler"
	"forager/internal/service"
)

type syncCommand struct {
	opts *options
}

func (c *syncCommand) Execute([]string) error {
	a, err := newApp(c.opts, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext(a.logger)
	defer cancel()

	subs, err := a.loadSubscriptions()
	if err != nil {
		printValidation(err)
		return err
	}

	res, err := a.reconciler.Sync(ctx, subs)
	if err != nil {
		printValidation(err)
		return err
	}

	fmt.Println("Synchronization completed:")
	fmt.Printf("  created:   %d\n", res.Created)
	fmt.Printf("  updated:   %d\n", res.Updated)
	fmt.Printf("  deleted:   %d\n", res.Deleted)
	fmt.Printf("  unchanged: %d\n", res.Unchanged)
	if len(res.Errors) > 0 {
		fmt.Printf("%d feed(s) failed:\n", len(res.Errors))
		for _, e := range res.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}
	return nil
}

type fetchCommand struct {
	opts *options
}

func (c *fetchCommand) Execute([]string) error {
	a, err := newApp(c.opts, true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext(a.logger)
	defer cancel()

	subs, err := a.loadSubscriptions()
	if err != nil {
		printValidation(err)
		return err
	}

	results := a.fetcher.ProcessFeeds(ctx, subs.Feeds)

	urls := make([]string, 0, len(results))
	for url := range results {
		urls = append(urls, url)
	}
	slices.Sort(urls)

	for _, url := range urls {
		out := results[url]
		if out.Err != nil {
			fmt.Printf("FAIL %s: %v\n", url, out.Err)
			continue
		}
		fmt.Printf("OK   %s: %d new\n", url, out.New)
	}

	inserted, failed := results.Totals()
	fmt.Printf("%d feed(s), %d new article(s), %d failure(s)\n", len(results), inserted, failed)
	return nil
}

type previewCommand struct {
	opts *options
	Args struct {
		URL string `positional-arg-name:"url" description:"Feed URL to preview"`
	} `positional-args:"yes" required:"yes"`
}

// Execute fetches and parses without touching storage, so no database is
// needed.
func (c *previewCommand) Execute([]string) error {
	cfg, logger, err := loadConfig(c.opts)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	fetcher := service.NewFetchService(
		nil, nil, nil, nil, nil,
		httpclient.NewDefault(httpConfig(cfg.Fetch), logger),
		feedparser.New(logger),
		nil,
		logger,
		cfg.Fetch,
	)

	entries, err := fetcher.Fetch(ctx, c.Args.URL)
	if err != nil {
		logger.Error("failed to fetch feed", "url", c.Args.URL, "error", err)
		return err
	}

	fmt.Printf("%d entries from %s\n\n", len(entries), c.Args.URL)
	for i, e := range entries {
		fmt.Printf("%d. %s\n", i+1, e.Title)
		fmt.Printf("   link:      %s\n", e.Link)
		if published, err := normalize.ParseDate(e.Published); err == nil {
			fmt.Printf("   published: %s\n", published.Format(time.RFC3339))
		} else {
			fmt.Printf("   published: unparseable (%q)\n", e.Published)
		}
	}
	return nil
}

type serveCommand struct {
	opts *options
}

func (c *serveCommand) Execute([]string) error {
	a, err := newApp(c.opts, true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext(a.logger)
	defer cancel()

	cycle := service.NewCycle(a.loadSubscriptions, a.reconciler, a.fetcher, a.logger)
	sched := scheduler.NewScheduler(cycle, a.cfg.Sync.Interval, a.cfg.Sync.CycleTimeout, a.logger)

	handler := api.NewHandler(a.categories, a.tags, a.feeds, a.articles, a.fetcher, a.logger)
	srv := &http.Server{
		Addr:              a.cfg.API.Addr,
		Handler:           api.NewServer(handler, a.cfg.API.AccessKey, a.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)

	go func() {
		a.logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	go func() {
		if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("scheduler: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-errCh:
		a.logger.Error("shutting down after failure", "error", err)
		cancel()
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()

	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		a.logger.Warn("http server shutdown", "error", serr)
	}

	a.logger.Info("forager stopped")
	return err
}

func printValidation(err error) {
	var verr *config.ValidationError
	if errors.As(err, &verr) {
		fmt.Fprintln(os.Stderr, "invalid subscriptions file:")
		for _, p := range verr.Problems {
			fmt.Fprintf(os.Stderr, "  - %s\n", p)
		}
		return
	}
	fmt.Fprintln(os.Stderr, err)
}
