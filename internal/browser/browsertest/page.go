// Package browsertest provides an in-memory browser.Page for tests. Documents
// are served from a map keyed by URL; CSS locators are evaluated with goquery
// and XPath locators with htmlquery. An element is visible unless it or an
// ancestor carries the hidden attribute or an inline display:none style.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"thread_harvester/internal/browser"
)

// ErrNotServed is returned by Navigate for URLs without a registered document.
var ErrNotServed = errors.New("no document served at url")

// Page is a fake browser tab over a fixed set of documents.
type Page struct {
	mu      sync.Mutex
	docs    map[string]string
	current string
	root    *html.Node

	// Stall lists URLs whose documents never become ready: every WaitFor
	// after navigating there times out.
	Stall map[string]bool

	Navigations []string
	Clicks      []browser.Locator
	Closed      bool
}

func New() *Page {
	return &Page{
		docs:  make(map[string]string),
		Stall: make(map[string]bool),
	}
}

// Serve registers the document returned for rawURL.
func (p *Page) Serve(rawURL, document string) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.docs[rawURL] = document
	return p
}

func (p *Page) Navigate(ctx context.Context, rawURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.Navigations = append(p.Navigations, rawURL)
	doc, ok := p.docs[rawURL]
	if !ok {
		return fmt.Errorf("navigate to %s: %w", rawURL, ErrNotServed)
	}

	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return fmt.Errorf("parse %s: %w", rawURL, err)
	}
	p.current = rawURL
	p.root = root
	return nil
}

func (p *Page) WaitFor(ctx context.Context, loc browser.Locator, _ time.Duration) (browser.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return browser.Failed, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Stall[p.current] {
		return browser.TimedOut, nil
	}
	nodes, err := p.query(loc)
	if err != nil {
		return browser.Failed, err
	}
	if len(nodes) == 0 {
		return browser.TimedOut, nil
	}
	return browser.Ready, nil
}

func (p *Page) ProbeVisible(ctx context.Context, loc browser.Locator, _ time.Duration) (browser.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return browser.Failed, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	nodes, err := p.query(loc)
	if err != nil {
		return browser.Failed, err
	}
	if len(nodes) == 0 {
		return browser.Absent, nil
	}
	if !Visible(nodes[0]) {
		return browser.TimedOut, nil
	}
	return browser.Ready, nil
}

func (p *Page) WaitLoaded(ctx context.Context, _ time.Duration) (browser.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return browser.Failed, err
	}
	return browser.Ready, nil
}

// Click follows the href of the first element matched by loc.
func (p *Page) Click(ctx context.Context, loc browser.Locator) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	p.Clicks = append(p.Clicks, loc)
	nodes, err := p.query(loc)
	current := p.current
	p.mu.Unlock()

	if err != nil {
		return err
	}
	if len(nodes) == 0 || !Visible(nodes[0]) {
		return fmt.Errorf("click %s: no visible element", loc)
	}

	href := attr(nodes[0], "href")
	if href == "" {
		return fmt.Errorf("click %s: element has no href", loc)
	}
	base, err := url.Parse(current)
	if err != nil {
		return err
	}
	ref, err := url.Parse(href)
	if err != nil {
		return err
	}
	return p.Navigate(ctx, base.ResolveReference(ref).String())
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.root == nil {
		return "<html><head></head><body></body></html>", nil
	}
	var sb strings.Builder
	if err := html.Render(&sb, p.root); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return nil
}

func (p *Page) query(loc browser.Locator) ([]*html.Node, error) {
	if p.root == nil {
		return nil, nil
	}
	if loc.By == browser.ByXPath {
		nodes, err := htmlquery.QueryAll(p.root, loc.Query)
		if err != nil {
			return nil, fmt.Errorf("xpath %q: %w", loc.Query, err)
		}
		return nodes, nil
	}
	return goquery.NewDocumentFromNode(p.root).Find(loc.Query).Nodes, nil
}

// Visible reports whether n would be rendered.
func Visible(n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		for _, a := range n.Attr {
			if a.Key == "hidden" {
				return false
			}
			if a.Key == "style" {
				style := strings.ReplaceAll(strings.ToLower(a.Val), " ", "")
				if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
					return false
				}
			}
		}
	}
	return true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
