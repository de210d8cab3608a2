package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"thread_harvester/internal/browser"
	"thread_harvester/internal/domain"
)

var errNoLayout = errors.New("no known layout matched")

// Extractor turns a thread page into a ThreadRecord using the first layout
// whose message container is present.
type Extractor struct {
	layouts   []Layout
	ready     browser.Locator
	delimiter string
	timeout   time.Duration
	logger    *slog.Logger
}

// NewExtractor builds an extractor over layouts in priority order. The page
// counts as ready once any layout's container is present.
func NewExtractor(layouts []Layout, titleDelimiter string, selectorTimeout time.Duration, logger *slog.Logger) *Extractor {
	containers := make([]string, 0, len(layouts))
	for _, l := range layouts {
		containers = append(containers, l.Container)
	}

	return &Extractor{
		layouts:   layouts,
		ready:     browser.CSS(strings.Join(containers, ", ")),
		delimiter: titleDelimiter,
		timeout:   selectorTimeout,
		logger:    logger.With("component", "extractor"),
	}
}

// Extract visits u and returns its record. A nil record with a nil error is
// a skip: the thread stays pending and is retried on the next run. An error
// is returned only when ctx is done.
func (e *Extractor) Extract(ctx context.Context, page browser.Page, u domain.ThreadURL) (*domain.ThreadRecord, error) {
	logger := e.logger.With("url", u.String())

	if err := page.Navigate(ctx, u.String()); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("navigation failed, skipping", "error", err)
		return nil, nil
	}

	outcome, err := page.WaitFor(ctx, e.ready, e.timeout)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("waiting for content failed, skipping", "error", err)
		return nil, nil
	}
	if outcome != browser.Ready {
		logger.Warn("content not ready, skipping", "outcome", outcome.String())
		return nil, nil
	}

	raw, err := page.HTML(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("reading page failed, skipping", "error", err)
		return nil, nil
	}

	rec, err := e.Parse(u, raw)
	if err != nil {
		logger.Warn("extraction failed, skipping", "error", err)
		return nil, nil
	}

	logger.Debug("thread extracted", "title", rec.Title, "messages", len(rec.Messages))
	return rec, nil
}

// Parse extracts a record from a thread page snapshot.
func (e *Extractor) Parse(u domain.ThreadURL, raw string) (*domain.ThreadRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	for _, l := range e.layouts {
		containers := doc.Find(l.Container)
		if containers.Length() == 0 {
			continue
		}

		rec := &domain.ThreadRecord{
			URL:      u,
			Title:    e.title(doc, l),
			Messages: make([]domain.Message, 0, containers.Length()),
		}
		containers.Each(func(_ int, c *goquery.Selection) {
			rec.Messages = append(rec.Messages, domain.Message{
				Author:    fieldValue(c, l.Author, authorText, inlineText),
				Timestamp: fieldValue(c, l.Timestamp, timestampText, normalizeTimestamp),
				Body:      fieldValue(c, l.Body, bodyText, normalizeBody),
			})
		})
		return rec, nil
	}

	return nil, errNoLayout
}

func (e *Extractor) title(doc *goquery.Document, l Layout) string {
	raw := inlineText(doc.Find("title").First().Text())
	if raw != "" {
		if e.delimiter != "" {
			parts := strings.Split(raw, e.delimiter)
			if len(parts) > 1 {
				if last := strings.TrimSpace(parts[len(parts)-1]); last != "" {
					return last
				}
			}
		}
		return raw
	}

	if l.Heading != "" {
		if h := inlineText(doc.Find(l.Heading).First().Text()); h != "" {
			return h
		}
	}
	return domain.Unknown
}

// fieldValue reads f inside container c, rendering an element with fromText
// or an attribute with fromAttr. Any miss yields domain.Unknown for this
// field alone.
func fieldValue(c *goquery.Selection, f Field, fromText func(*goquery.Selection) string, fromAttr func(string) string) string {
	if f.Selector == "" {
		return domain.Unknown
	}
	el := c.Find(f.Selector).First()
	if el.Length() == 0 {
		return domain.Unknown
	}

	var v string
	if f.Attr != "" {
		attr, ok := el.Attr(f.Attr)
		if !ok {
			return domain.Unknown
		}
		v = fromAttr(attr)
	} else {
		v = fromText(el)
	}

	if v == "" {
		return domain.Unknown
	}
	return v
}

func authorText(el *goquery.Selection) string {
	return inlineText(el.Text())
}

func timestampText(el *goquery.Selection) string {
	return normalizeTimestamp(el.Text())
}

func bodyText(el *goquery.Selection) string {
	return normalizeBody(innerText(el.Nodes...))
}
