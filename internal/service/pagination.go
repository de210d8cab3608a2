package service

import (
	"context"
	"log/slog"
	"time"

	"thread_harvester/internal/browser"
)

// Strategy is one way of locating the "next page" control.
type Strategy struct {
	Name   string
	Detect func(ctx context.Context, page browser.Page) (browser.Locator, bool)
}

// LocatorStrategy detects a control matched by loc that becomes visible
// within probe.
func LocatorStrategy(name string, loc browser.Locator, probe time.Duration) Strategy {
	return Strategy{
		Name: name,
		Detect: func(ctx context.Context, page browser.Page) (browser.Locator, bool) {
			outcome, err := page.ProbeVisible(ctx, loc, probe)
			if err != nil {
				return loc, false
			}
			return loc, outcome == browser.Ready
		},
	}
}

// DefaultStrategies returns the built-in next-page strategies in priority
// order.
func DefaultStrategies(probe time.Duration) []Strategy {
	return []Strategy{
		LocatorStrategy("rel-next", browser.CSS(`a[rel="next"]`), probe),
		LocatorStrategy("aria-label", browser.CSS(`a[aria-label="Next page"]`), probe),
		LocatorStrategy("link-text", browser.XPath(
			`//a[translate(normalize-space(.), "NEXT", "next")="next"]`), probe),
		LocatorStrategy("link-text-arrow", browser.XPath(
			`//a[contains(translate(normalize-space(.), "NEXT", "next"), "next ›")]`), probe),
		LocatorStrategy("title", browser.CSS(`a[title*="Next"]`), probe),
		LocatorStrategy("chevron-icon", browser.CSS(`a:has(i.fa-chevron-right)`), probe),
		LocatorStrategy("angle-icon", browser.CSS(`a:has(i.fa-angle-right)`), probe),
	}
}

// Paginator moves a listing page forward using the first strategy that
// finds a visible control.
type Paginator struct {
	strategies []Strategy
	logger     *slog.Logger
}

func NewPaginator(strategies []Strategy, logger *slog.Logger) *Paginator {
	return &Paginator{
		strategies: strategies,
		logger:     logger.With("component", "paginator"),
	}
}

// Advance clicks the next-page control and reports whether it did. False
// means no strategy found a control, which ends the listing.
func (p *Paginator) Advance(ctx context.Context, page browser.Page) bool {
	for _, s := range p.strategies {
		if ctx.Err() != nil {
			return false
		}

		loc, ok := s.Detect(ctx, page)
		if !ok {
			continue
		}

		if err := page.Click(ctx, loc); err != nil {
			p.logger.Warn("next-page click failed",
				"strategy", s.Name,
				"locator", loc.String(),
				"error", err,
			)
			continue
		}

		p.logger.Debug("advanced to next page", "strategy", s.Name)
		return true
	}

	return false
}
