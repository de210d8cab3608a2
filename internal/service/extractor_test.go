package service

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"thread_harvester/internal/browser/browsertest"
	"thread_harvester/internal/domain"
)

const threadURL = domain.ThreadURL("https://forum.test/g/demo/topic/101")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestExtractor() *Extractor {
	return NewExtractor(DefaultLayouts(), "|", time.Second, testLogger())
}

const expandedThread = `<html><head><title>Demo Group | Topics | Gateway down again</title></head><body>
<div class="expanded-message">
  <u>Alice Example</u>
  <span title="May 8, 2009 5:57:51 PM">8 May</span>
  <div class="user-content"><p>Hello  <b>all</b>,</p><p>line one<br>line two</p>

  <div>  </div></div>
</div>
<div class="expanded-message">
  <u>
    Bob
  </u>
  <div class="user-content">Thanks!<script>track()</script></div>
</div>
</body></html>`

func TestExtractor_ExpandedLayout(t *testing.T) {
	ctx := context.Background()
	page := browsertest.New().Serve(threadURL.String(), expandedThread)

	rec, err := newTestExtractor().Extract(ctx, page, threadURL)
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, threadURL, rec.URL)
	assert.Equal(t, "Gateway down again", rec.Title)
	require.Len(t, rec.Messages, 2)

	assert.Equal(t, domain.Message{
		Author:    "Alice Example",
		Timestamp: "2009-05-08T17:57:51Z",
		Body:      "Hello all,\nline one\nline two",
	}, rec.Messages[0])

	// A message without a timestamp keeps its other fields.
	assert.Equal(t, domain.Message{
		Author:    "Bob",
		Timestamp: domain.Unknown,
		Body:      "Thanks!",
	}, rec.Messages[1])
}

func TestExtractor_FallsBackToSecondLayout(t *testing.T) {
	ctx := context.Background()
	page := browsertest.New().Serve(threadURL.String(), `<html><head><title></title></head><body>
<h1 id="topic-title">  Antenna
  question </h1>
<div class="vcard row">
  <span class="fn">Carol</span>
  <time datetime="2021-03-04T05:06:07+02:00">March 4</time>
  <div class="msg-body">Which coax?</div>
</div>
</body></html>`)

	rec, err := newTestExtractor().Extract(ctx, page, threadURL)
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, "Antenna question", rec.Title)
	assert.Equal(t, []domain.Message{{
		Author:    "Carol",
		Timestamp: "2021-03-04T03:06:07Z",
		Body:      "Which coax?",
	}}, rec.Messages)
}

func TestExtractor_UnknownFields(t *testing.T) {
	ctx := context.Background()
	page := browsertest.New().Serve(threadURL.String(), `<html><body>
<div class="expanded-message">
  <span title="??">sometime</span>
  <div class="user-content">   </div>
</div>
</body></html>`)

	rec, err := newTestExtractor().Extract(ctx, page, threadURL)
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, domain.Unknown, rec.Title)
	assert.Equal(t, []domain.Message{{
		Author:    domain.Unknown,
		Timestamp: "??",
		Body:      domain.Unknown,
	}}, rec.Messages)
}

func TestExtractor_TitleWithoutDelimiter(t *testing.T) {
	rec, err := newTestExtractor().Parse(threadURL, `<html><head><title>Plain title</title></head><body>
<div class="expanded-message"><u>Dan</u></div></body></html>`)
	require.NoError(t, err)
	assert.Equal(t, "Plain title", rec.Title)
}

func TestExtractor_Skips(t *testing.T) {
	ctx := context.Background()
	e := newTestExtractor()

	t.Run("navigation failure", func(t *testing.T) {
		rec, err := e.Extract(ctx, browsertest.New(), threadURL)
		assert.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("content never ready", func(t *testing.T) {
		page := browsertest.New().Serve(threadURL.String(), expandedThread)
		page.Stall[threadURL.String()] = true

		rec, err := e.Extract(ctx, page, threadURL)
		assert.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("no known layout", func(t *testing.T) {
		page := browsertest.New().Serve(threadURL.String(), `<html><body><p>Login required</p></body></html>`)

		rec, err := e.Extract(ctx, page, threadURL)
		assert.NoError(t, err)
		assert.Nil(t, rec)
	})
}

func TestExtractor_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	page := browsertest.New().Serve(threadURL.String(), expandedThread)
	rec, err := newTestExtractor().Extract(ctx, page, threadURL)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, rec)
}

func TestInnerText(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<div><ul><li>one</li><li>two <i>and</i>  a half</li></ul>
<pre>keep   this</pre><style>p{}</style>tail</div>`))
	require.NoError(t, err)

	assert.Equal(t, "one\ntwo and a half\nkeep   this\ntail", normalizeBody(innerText(doc)))
}

func TestNormalizeTimestamp(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "rfc3339", raw: " 2023-05-01T10:00:00Z ", want: "2023-05-01T10:00:00Z"},
		{name: "offset converted to utc", raw: "2023-05-01T12:00:00+02:00", want: "2023-05-01T10:00:00Z"},
		{name: "garbage", raw: "??", want: "??"},
		{name: "weekday and day without year", raw: "Mon, 02 Jan", want: "Mon, 02 Jan"},
		{name: "month only", raw: "9/", want: "9/"},
		{name: "empty", raw: "  ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeTimestamp(tt.raw))
		})
	}
}

func TestLayoutsFromConfig(t *testing.T) {
	assert.Equal(t, DefaultLayouts(), LayoutsFromConfig(nil))
}
