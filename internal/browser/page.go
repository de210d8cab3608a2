// Package browser drives a single browser tab on behalf of the pipeline.
package browser

import (
	"context"
	"time"
)

type By int

const (
	ByCSS By = iota
	ByXPath
)

// Locator addresses elements on the current document.
type Locator struct {
	Query string
	By    By
}

func CSS(query string) Locator {
	return Locator{Query: query, By: ByCSS}
}

func XPath(query string) Locator {
	return Locator{Query: query, By: ByXPath}
}

func (l Locator) String() string {
	if l.By == ByXPath {
		return "xpath=" + l.Query
	}
	return "css=" + l.Query
}

// Outcome is the result of a bounded wait.
type Outcome int

const (
	// Ready means the awaited condition holds.
	Ready Outcome = iota
	// TimedOut means the condition did not hold before the timeout.
	TimedOut
	// Absent means no element matched the locator at all.
	Absent
	// Failed means the page could not evaluate the condition.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Ready:
		return "ready"
	case TimedOut:
		return "timed_out"
	case Absent:
		return "absent"
	default:
		return "failed"
	}
}

// Page is one browser tab. Implementations are not safe for concurrent use;
// the pipeline owns the tab exclusively for the duration of a phase.
//
// Wait methods report their result as an Outcome. The error is reserved for
// cancellation of ctx and for a browser that stopped responding.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitFor(ctx context.Context, loc Locator, timeout time.Duration) (Outcome, error)
	ProbeVisible(ctx context.Context, loc Locator, timeout time.Duration) (Outcome, error)
	WaitLoaded(ctx context.Context, timeout time.Duration) (Outcome, error)
	Click(ctx context.Context, loc Locator) error
	HTML(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	Close() error
}
