package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"thread_harvester/internal/browser"
	"thread_harvester/internal/checkpoint"
	"thread_harvester/internal/config"
	"thread_harvester/internal/domain"
)

// ErrFirstPageUnavailable means the listing could not be opened at all.
var ErrFirstPageUnavailable = errors.New("first listing page unavailable")

type DiscoveryService struct {
	sessions  SessionProvider
	launcher  Launcher
	urls      URLStore
	paginator *Paginator
	logger    *slog.Logger

	forum     config.ForumConfig
	timeouts  config.TimeoutsConfig
	discovery config.DiscoveryConfig
}

func NewDiscoveryService(
	sessions SessionProvider,
	launcher Launcher,
	urls URLStore,
	paginator *Paginator,
	logger *slog.Logger,
	cfg *config.Config,
) *DiscoveryService {
	return &DiscoveryService{
		sessions:  sessions,
		launcher:  launcher,
		urls:      urls,
		paginator: paginator,
		logger:    logger.With("phase", domain.PhaseDiscovery),
		forum:     cfg.Forum,
		timeouts:  cfg.Timeouts,
		discovery: cfg.Discovery,
	}
}

// Run performs phase 1: it walks the listing from the configured start URL
// and adds every thread URL found to the stored set.
func (s *DiscoveryService) Run(ctx context.Context) (*domain.DiscoveryStats, error) {
	st, err := s.sessions.Session(ctx)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	page, err := s.launcher.Launch(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			s.logger.Warn("close browser", "error", err)
		}
	}()

	found, stats, discoverErr := s.Discover(ctx, page, s.forum.StartURL)
	if found == nil {
		return stats, fmt.Errorf("discover: %w", discoverErr)
	}

	// Whatever was collected is persisted, even when the walk was cut short.
	saveCtx := context.WithoutCancel(ctx)

	previous, err := s.urls.Load(saveCtx)
	if err != nil && !errors.Is(err, checkpoint.ErrNotFound) {
		return stats, fmt.Errorf("load thread urls: %w", err)
	}

	merged := domain.NewURLSet(previous...)
	stats.New = merged.Union(found)
	stats.Total = merged.Len()

	if err := s.urls.Save(saveCtx, merged.Sorted()); err != nil {
		return stats, fmt.Errorf("save thread urls: %w", err)
	}

	s.logger.Info("discovery completed",
		"pages", stats.Pages,
		"transitions", stats.Transitions,
		"empty_pages", stats.EmptyPages,
		"discovered", stats.Discovered,
		"new", stats.New,
		"total", stats.Total,
		"duration", stats.Duration,
	)

	if discoverErr != nil {
		return stats, fmt.Errorf("discover: %w", discoverErr)
	}
	return stats, nil
}

// Discover collects thread URLs from startURL and every page reachable by
// advancing the listing. A nil set is returned only when the first page
// cannot be used; a non-nil set with an error holds the URLs collected
// before the walk was interrupted.
func (s *DiscoveryService) Discover(ctx context.Context, page browser.Page, startURL string) (domain.URLSet, *domain.DiscoveryStats, error) {
	startTime := time.Now()
	stats := &domain.DiscoveryStats{}
	links := browser.CSS(s.forum.ThreadLinkSelector)

	s.logger.Info("starting discovery",
		"start_url", startURL,
		"selector", s.forum.ThreadLinkSelector,
		"max_pages", s.discovery.MaxPages,
	)

	if err := page.Navigate(ctx, startURL); err != nil {
		if ctx.Err() != nil {
			return nil, stats, ctx.Err()
		}
		return nil, stats, fmt.Errorf("%w: %w", ErrFirstPageUnavailable, err)
	}

	outcome, err := page.WaitFor(ctx, links, s.timeouts.FirstPage)
	if err != nil {
		return nil, stats, fmt.Errorf("%w: %w", ErrFirstPageUnavailable, err)
	}
	if outcome != browser.Ready {
		return nil, stats, fmt.Errorf("%w: thread links %s", ErrFirstPageUnavailable, outcome)
	}

	set := domain.NewURLSet()
	finish := func(err error) (domain.URLSet, *domain.DiscoveryStats, error) {
		stats.Total = set.Len()
		stats.Duration = time.Since(startTime)
		return set, stats, err
	}

	for {
		stats.Pages++

		found, err := s.collect(ctx, page)
		if err != nil {
			return finish(fmt.Errorf("collect links on page %d: %w", stats.Pages, err))
		}

		added := set.Union(found)
		stats.Discovered += found.Len()
		if found.Len() == 0 {
			stats.EmptyPages++
			s.logger.Warn("no thread links on page", "page", stats.Pages)
		}

		s.logger.Debug("page collected",
			"page", stats.Pages,
			"found", found.Len(),
			"added", added,
			"total", set.Len(),
		)

		if s.discovery.MaxPages > 0 && stats.Pages >= s.discovery.MaxPages {
			s.logger.Warn("page limit reached, stopping", "max_pages", s.discovery.MaxPages)
			break
		}

		if !s.paginator.Advance(ctx, page) {
			break
		}
		stats.Transitions++

		s.settle(ctx, page, links)

		if err := sleepContext(ctx, s.discovery.PolitenessDelay); err != nil {
			return finish(err)
		}
	}

	return finish(ctx.Err())
}

func (s *DiscoveryService) collect(ctx context.Context, page browser.Page) (domain.URLSet, error) {
	raw, err := page.HTML(ctx)
	if err != nil {
		return nil, err
	}
	current, err := page.URL(ctx)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	base, err := url.Parse(current)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := base.Parse(strings.TrimSpace(href)); err == nil {
			base = b
		}
	}

	found := domain.NewURLSet()
	doc.Find(s.forum.ThreadLinkSelector).Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		u, err := domain.NormalizeURL(base, href)
		if err != nil {
			s.logger.Debug("skipping link", "href", href, "error", err)
			return
		}
		found.Add(u)
	})

	return found, nil
}

// settle waits for the page reached by a click. Both waits are advisory.
func (s *DiscoveryService) settle(ctx context.Context, page browser.Page, links browser.Locator) {
	if outcome, err := page.WaitLoaded(ctx, s.timeouts.PageLoad); err != nil || outcome != browser.Ready {
		s.logger.Warn("page did not finish loading", "outcome", outcome.String(), "error", err)
	}
	if outcome, err := page.WaitFor(ctx, links, s.timeouts.Selector); err != nil || outcome != browser.Ready {
		s.logger.Warn("thread links did not appear", "outcome", outcome.String(), "error", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
