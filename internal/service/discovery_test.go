package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"thread_harvester/internal/browser/browsertest"
	"thread_harvester/internal/checkpoint"
	"thread_harvester/internal/config"
	"thread_harvester/internal/domain"
	"thread_harvester/internal/service/mocks"
	"thread_harvester/internal/session"
)

const startURL = "https://forum.test/g/demo/topics"

// listingPage renders a topic listing with links to the given topic ids and
// a next control in the given markup, if any.
func listingPage(ids []int, next string) string {
	var sb strings.Builder
	sb.WriteString("<html><head><title>Topics</title></head><body><table>")
	for _, id := range ids {
		fmt.Fprintf(&sb, `<tr><td><a class="subject" href="/g/demo/topic/%d">Topic %d</a></td></tr>`, id, id)
	}
	sb.WriteString("</table>")
	sb.WriteString(next)
	sb.WriteString("</body></html>")
	return sb.String()
}

func pageURL(n int) string {
	if n == 1 {
		return startURL
	}
	return fmt.Sprintf("%s?page=%d", startURL, n)
}

func topicURL(id int) domain.ThreadURL {
	return domain.ThreadURL(fmt.Sprintf("https://forum.test/g/demo/topic/%d", id))
}

type DiscoveryServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	sessions *mocks.MockSessionProvider
	launcher *mocks.MockLauncher
	urls     *mocks.MockURLStore

	cfg     *config.Config
	session *session.State
	service *DiscoveryService
}

func (s *DiscoveryServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.sessions = mocks.NewMockSessionProvider(s.ctrl)
	s.launcher = mocks.NewMockLauncher(s.ctrl)
	s.urls = mocks.NewMockURLStore(s.ctrl)

	s.cfg = &config.Config{
		Forum: config.ForumConfig{
			StartURL:           startURL,
			ThreadLinkSelector: `a.subject[href*="/topic/"]`,
		},
		Timeouts: config.TimeoutsConfig{
			FirstPage: time.Second,
			Selector:  time.Second,
			Probe:     10 * time.Millisecond,
			PageLoad:  time.Second,
		},
	}
	s.session = &session.State{Cookies: []session.Cookie{{Name: "groupsio", Value: "token"}}}

	s.service = s.newService()
}

func (s *DiscoveryServiceTestSuite) newService() *DiscoveryService {
	logger := testLogger()
	return NewDiscoveryService(
		s.sessions,
		s.launcher,
		s.urls,
		NewPaginator(DefaultStrategies(s.cfg.Timeouts.Probe), logger),
		logger,
		s.cfg,
	)
}

func (s *DiscoveryServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestDiscoveryServiceTestSuite(t *testing.T) {
	suite.Run(t, new(DiscoveryServiceTestSuite))
}

// forum serves pages listings, each linking to the following one with a
// rel=next link.
func forum(pages int, perPage int) *browsertest.Page {
	page := browsertest.New()
	for n := 1; n <= pages; n++ {
		ids := make([]int, 0, perPage)
		for i := 0; i < perPage; i++ {
			ids = append(ids, n*100+i)
		}
		next := ""
		if n < pages {
			next = fmt.Sprintf(`<a rel="next" href="?page=%d">next</a>`, n+1)
		}
		page.Serve(pageURL(n), listingPage(ids, next))
	}
	return page
}

func (s *DiscoveryServiceTestSuite) TestDiscover_TerminatesAfterLastTransition() {
	ctx := context.Background()
	page := forum(4, 3)

	found, stats, err := s.service.Discover(ctx, page, startURL)

	s.Require().NoError(err)
	s.Equal(4, stats.Pages)
	s.Equal(3, stats.Transitions)
	s.Equal(12, stats.Discovered)
	s.Equal(12, stats.Total)
	s.Equal(12, found.Len())
	s.True(found.Has(topicURL(100)))
	s.True(found.Has(topicURL(402)))
	s.Equal([]string{startURL, pageURL(2), pageURL(3), pageURL(4)}, page.Navigations)
}

func (s *DiscoveryServiceTestSuite) TestDiscover_StrategyFallbacks() {
	ctx := context.Background()
	page := browsertest.New().
		// A hidden rel=next link is passed over for the visible aria-labelled one.
		Serve(pageURL(1), listingPage([]int{1}, `<a rel="next" hidden href="/nowhere">next</a>
<a aria-label="Next page" href="?page=2">›</a>`)).
		Serve(pageURL(2), listingPage([]int{2}, `<a class="btn" href="?page=3"><i class="fa fa-chevron-right"></i></a>`)).
		Serve(pageURL(3), listingPage([]int{3}, `<a href="?page=4"> Next </a>`)).
		Serve(pageURL(4), listingPage([]int{4}, `<a href="?page=5">next ›</a>`)).
		Serve(pageURL(5), listingPage([]int{5}, `<a title="Next topics" href="?page=6">»</a>`)).
		Serve(pageURL(6), listingPage([]int{6}, `<a href="?page=7"><i class="fa fa-angle-right"></i></a>`)).
		Serve(pageURL(7), listingPage([]int{7}, `<a href="?page=1">first</a>`))

	found, stats, err := s.service.Discover(ctx, page, startURL)

	s.Require().NoError(err)
	s.Equal(7, stats.Pages)
	s.Equal(6, stats.Transitions)
	s.Equal(domain.NewURLSet(
		topicURL(1), topicURL(2), topicURL(3), topicURL(4), topicURL(5), topicURL(6), topicURL(7),
	), found)
}

func (s *DiscoveryServiceTestSuite) TestDiscover_EmptyPageDoesNotStop() {
	ctx := context.Background()
	page := browsertest.New().
		Serve(pageURL(1), listingPage([]int{1, 2}, `<a rel="next" href="?page=2">next</a>`)).
		Serve(pageURL(2), listingPage(nil, `<a rel="next" href="?page=3">next</a>`)).
		Serve(pageURL(3), listingPage([]int{3}, ""))

	found, stats, err := s.service.Discover(ctx, page, startURL)

	s.Require().NoError(err)
	s.Equal(3, stats.Pages)
	s.Equal(1, stats.EmptyPages)
	s.Equal(3, found.Len())
}

func (s *DiscoveryServiceTestSuite) TestDiscover_NormalizesLinks() {
	ctx := context.Background()
	page := browsertest.New().Serve(startURL, `<html><head><base href="https://Forum.Test/g/demo/"></head><body>
<a class="subject" href="topic/1#reply-3">One</a>
<a class="subject" href="https://forum.test/g/demo/topic/1">One again</a>
<a class="subject" href="mailto:x@topic/">Mail</a>
<a class="subject" href="/g/demo/topic/2">Two</a>
<a class="other" href="/g/demo/topic/3">Three</a>
</body></html>`)

	found, _, err := s.service.Discover(ctx, page, startURL)

	s.Require().NoError(err)
	s.Equal(domain.NewURLSet(topicURL(1), topicURL(2)), found)
}

func (s *DiscoveryServiceTestSuite) TestDiscover_MaxPagesStopsSelfLink() {
	ctx := context.Background()
	s.cfg.Discovery.MaxPages = 3
	s.service = s.newService()

	page := browsertest.New().
		Serve(startURL, listingPage([]int{1}, `<a rel="next" href="topics">next</a>`))

	found, stats, err := s.service.Discover(ctx, page, startURL)

	s.Require().NoError(err)
	s.Equal(3, stats.Pages)
	s.Equal(2, stats.Transitions)
	s.Equal(1, found.Len())
}

func (s *DiscoveryServiceTestSuite) TestDiscover_FirstPageUnavailable() {
	ctx := context.Background()

	s.Run("not reachable", func() {
		found, _, err := s.service.Discover(ctx, browsertest.New(), startURL)
		s.ErrorIs(err, ErrFirstPageUnavailable)
		s.Nil(found)
	})

	s.Run("links never appear", func() {
		page := forum(2, 1)
		page.Stall[startURL] = true

		found, _, err := s.service.Discover(ctx, page, startURL)
		s.ErrorIs(err, ErrFirstPageUnavailable)
		s.Nil(found)
	})
}

func (s *DiscoveryServiceTestSuite) TestRun_IsIdempotent() {
	ctx := context.Background()

	var saved []domain.ThreadURL

	gomock.InOrder(
		s.sessions.EXPECT().Session(ctx).Return(s.session, nil),
		s.launcher.EXPECT().Launch(ctx, s.session).Return(forum(3, 2), nil),
		s.urls.EXPECT().Load(gomock.Any()).Return(nil, checkpoint.ErrNotFound),
		s.urls.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, urls []domain.ThreadURL) error {
				saved = urls
				return nil
			},
		),
	)

	stats, err := s.service.Run(ctx)
	s.Require().NoError(err)
	s.Equal(6, stats.New)
	s.Equal(6, stats.Total)
	s.Len(saved, 6)

	gomock.InOrder(
		s.sessions.EXPECT().Session(ctx).Return(s.session, nil),
		s.launcher.EXPECT().Launch(ctx, s.session).Return(forum(3, 2), nil),
		s.urls.EXPECT().Load(gomock.Any()).DoAndReturn(
			func(context.Context) ([]domain.ThreadURL, error) { return saved, nil },
		),
		s.urls.EXPECT().Save(gomock.Any(), saved).Return(nil),
	)

	stats, err = s.service.Run(ctx)
	s.Require().NoError(err)
	s.Equal(0, stats.New)
	s.Equal(6, stats.Total)
}

func (s *DiscoveryServiceTestSuite) TestRun_KeepsPreviouslyStoredURLs() {
	ctx := context.Background()
	page := forum(1, 1)

	s.sessions.EXPECT().Session(ctx).Return(s.session, nil)
	s.launcher.EXPECT().Launch(ctx, s.session).Return(page, nil)
	s.urls.EXPECT().Load(gomock.Any()).Return([]domain.ThreadURL{topicURL(999)}, nil)
	s.urls.EXPECT().Save(gomock.Any(), []domain.ThreadURL{topicURL(100), topicURL(999)}).Return(nil)

	stats, err := s.service.Run(ctx)

	s.Require().NoError(err)
	s.Equal(1, stats.New)
	s.Equal(2, stats.Total)
	s.True(page.Closed)
}

func (s *DiscoveryServiceTestSuite) TestRun_MissingSession() {
	ctx := context.Background()

	s.sessions.EXPECT().Session(ctx).Return(nil, fmt.Errorf("load auth_state.json: %w", session.ErrMissing))

	stats, err := s.service.Run(ctx)

	s.ErrorIs(err, session.ErrMissing)
	s.Nil(stats)
}

func (s *DiscoveryServiceTestSuite) TestRun_FirstPageUnavailableWritesNothing() {
	ctx := context.Background()
	page := browsertest.New()

	s.sessions.EXPECT().Session(ctx).Return(s.session, nil)
	s.launcher.EXPECT().Launch(ctx, s.session).Return(page, nil)

	_, err := s.service.Run(ctx)

	s.ErrorIs(err, ErrFirstPageUnavailable)
	s.True(page.Closed)
}

func (s *DiscoveryServiceTestSuite) TestRun_LaunchFailure() {
	ctx := context.Background()
	launchErr := errors.New("chrome not found")

	s.sessions.EXPECT().Session(ctx).Return(s.session, nil)
	s.launcher.EXPECT().Launch(ctx, s.session).Return(nil, launchErr)

	_, err := s.service.Run(ctx)

	s.ErrorIs(err, launchErr)
}
