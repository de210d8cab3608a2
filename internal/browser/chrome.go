package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"thread_harvester/internal/session"
)

// Options holds Chrome launch configuration.
type Options struct {
	Headless   bool
	UserAgent  string
	ExecPath   string
	Navigation time.Duration
	Action     time.Duration
}

// ChromePage implements Page on a chromedp tab.
type ChromePage struct {
	ctx           context.Context
	allocCancel   context.CancelFunc
	navTimeout    time.Duration
	actionTimeout time.Duration
	logger        *slog.Logger
}

// Open starts a browser, restores the session cookies into it and returns its
// first tab. The browser lives until Close is called or ctx is cancelled.
func Open(ctx context.Context, opts Options, st *session.State, logger *slog.Logger) (*ChromePage, error) {
	allocOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, _ := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			logger.Debug("chromedp", "message", fmt.Sprintf(format, args...))
		}),
	)

	p := &ChromePage{
		ctx:           tabCtx,
		allocCancel:   allocCancel,
		navTimeout:    opts.Navigation,
		actionTimeout: opts.Action,
		logger:        logger,
	}

	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	if st != nil {
		if err := chromedp.Run(tabCtx, setCookies(st.Cookies)); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("restore session: %w", err)
		}
		logger.Info("browser session restored",
			"cookies", len(st.Cookies),
			"origins_ignored", len(st.Origins),
			"headless", opts.Headless,
		)
	}

	return p, nil
}

func setCookies(cookies []session.Cookie) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		for _, c := range cookies {
			params := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HTTPOnly)
			if c.SameSite != "" {
				params = params.WithSameSite(network.CookieSameSite(c.SameSite))
			}
			if c.Expires > 0 {
				exp := cdp.TimeSinceEpoch(time.Unix(0, int64(c.Expires*float64(time.Second))))
				params = params.WithExpires(&exp)
			}
			if err := params.Do(ctx); err != nil {
				return fmt.Errorf("set cookie %s: %w", c.Name, err)
			}
		}
		return nil
	}
}

func queryOption(loc Locator) chromedp.QueryOption {
	if loc.By == ByXPath {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

func queryAllOption(loc Locator) chromedp.QueryOption {
	if loc.By == ByXPath {
		return chromedp.BySearch
	}
	return chromedp.ByQueryAll
}

// run executes actions on the tab bounded by timeout and by the caller's ctx.
func (p *ChromePage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (p *ChromePage) outcome(ctx context.Context, err error) (Outcome, error) {
	switch {
	case err == nil:
		return Ready, nil
	case ctx.Err() != nil:
		return Failed, ctx.Err()
	case p.ctx.Err() != nil:
		return Failed, fmt.Errorf("browser closed: %w", p.ctx.Err())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return TimedOut, nil
	default:
		return Failed, err
	}
}

func (p *ChromePage) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, p.navTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (p *ChromePage) WaitFor(ctx context.Context, loc Locator, timeout time.Duration) (Outcome, error) {
	err := p.run(ctx, timeout, chromedp.WaitReady(loc.Query, queryOption(loc)))
	return p.outcome(ctx, err)
}

func (p *ChromePage) ProbeVisible(ctx context.Context, loc Locator, timeout time.Duration) (Outcome, error) {
	var nodes []*cdp.Node
	err := p.run(ctx, timeout, chromedp.Nodes(loc.Query, &nodes, queryAllOption(loc), chromedp.AtLeast(0)))
	if o, err := p.outcome(ctx, err); o != Ready {
		return o, err
	}
	if len(nodes) == 0 {
		return Absent, nil
	}

	err = p.run(ctx, timeout, chromedp.WaitVisible(loc.Query, queryOption(loc)))
	return p.outcome(ctx, err)
}

func (p *ChromePage) WaitLoaded(ctx context.Context, timeout time.Duration) (Outcome, error) {
	var complete bool
	err := p.run(ctx, timeout, chromedp.Poll(`document.readyState === "complete"`, &complete))
	return p.outcome(ctx, err)
}

func (p *ChromePage) Click(ctx context.Context, loc Locator) error {
	if err := p.run(ctx, p.actionTimeout, chromedp.Click(loc.Query, queryOption(loc), chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %s: %w", loc, err)
	}
	return nil
}

func (p *ChromePage) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, p.actionTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	return html, nil
}

func (p *ChromePage) URL(ctx context.Context) (string, error) {
	var location string
	if err := p.run(ctx, p.actionTimeout, chromedp.Location(&location)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return location, nil
}

// Cookies returns every cookie held by the browser, in session artifact form.
func (p *ChromePage) Cookies(ctx context.Context) ([]session.Cookie, error) {
	var cookies []*network.Cookie
	err := p.run(ctx, p.actionTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}

	out := make([]session.Cookie, 0, len(cookies))
	for _, c := range cookies {
		expires := c.Expires
		if c.Session {
			expires = -1
		}
		out = append(out, session.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite.String(),
		})
	}
	return out, nil
}

func (p *ChromePage) Close() error {
	err := chromedp.Cancel(p.ctx)
	p.allocCancel()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ChromeLauncher opens a Chrome tab per pipeline phase.
type ChromeLauncher struct {
	opts   Options
	logger *slog.Logger
}

func NewLauncher(opts Options, logger *slog.Logger) *ChromeLauncher {
	return &ChromeLauncher{
		opts:   opts,
		logger: logger.With("component", "browser"),
	}
}

func (l *ChromeLauncher) Launch(ctx context.Context, st *session.State) (Page, error) {
	p, err := Open(ctx, l.opts, st, l.logger)
	if err != nil {
		return nil, err
	}
	return p, nil
}
