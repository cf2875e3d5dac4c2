package crawler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/Matanbitton/cheap-crawler/internal/models"
)

// stubFetcher serves canned page records keyed by URL and tracks call
// order and concurrency so tests can assert dispatch behavior.
type stubFetcher struct {
	mu       sync.Mutex
	pages    map[string]*models.PageRecord
	fail     map[string]bool
	delay    time.Duration
	calls    []string
	inFlight int
	peak     int
}

func newStubFetcher(pages ...*models.PageRecord) *stubFetcher {
	f := &stubFetcher{
		pages: make(map[string]*models.PageRecord),
		fail:  make(map[string]bool),
	}
	for _, p := range pages {
		f.pages[p.URL] = p
	}
	return f
}

func (f *stubFetcher) Fetch(_ context.Context, pageURL string) (*models.PageRecord, error) {
	f.mu.Lock()
	f.calls = append(f.calls, pageURL)
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if f.fail[pageURL] {
		return nil, errors.New("tab crashed")
	}
	record, ok := f.pages[pageURL]
	if !ok {
		return nil, errors.New("no such page")
	}
	return record, nil
}

func (f *stubFetcher) callCount(pageURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == pageURL {
			n++
		}
	}
	return n
}

func mkPage(url string, links ...string) *models.PageRecord {
	return &models.PageRecord{
		URL:     url,
		Title:   "Page " + url,
		Content: "content of " + url,
		Links:   links,
	}
}

func collectedURLs(s *session) []string {
	urls := make([]string, 0, len(s.collected))
	for _, r := range s.collected {
		urls = append(urls, r.URL)
	}
	return urls
}

func TestSession_SeedWithoutLinksYieldsOnePage(t *testing.T) {
	seed := "https://example.com/"
	fetcher := newStubFetcher(mkPage(seed))
	s := newSession(seed, 10, 3, fetcher, arbor.NewLogger())

	require.NoError(t, s.run(context.Background()))

	assert.Equal(t, []string{seed}, collectedURLs(s))
	assert.Equal(t, []string{seed}, fetcher.calls)
}

func TestSession_MaxPagesCapsCollection(t *testing.T) {
	seed := "https://example.com/"
	links := []string{
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/c",
		"https://example.com/d",
		"https://example.com/e",
	}
	fetcher := newStubFetcher(
		mkPage(seed, links...),
		mkPage(links[0]),
		mkPage(links[1]),
		mkPage(links[2]),
		mkPage(links[3]),
		mkPage(links[4]),
	)
	s := newSession(seed, 3, 3, fetcher, arbor.NewLogger())

	require.NoError(t, s.run(context.Background()))

	urls := collectedURLs(s)
	assert.Len(t, urls, 3)
	assert.Equal(t, seed, urls[0])
	for _, u := range urls[1:] {
		assert.Contains(t, links, u)
	}
	// Pages beyond the budget are never dispatched.
	assert.Len(t, fetcher.calls, 3)
}

func TestSession_CyclicLinksNeverRepeat(t *testing.T) {
	a := "https://example.com/a"
	b := "https://example.com/b"
	fetcher := newStubFetcher(
		mkPage(a, b),
		mkPage(b, a),
	)
	s := newSession(a, 10, 3, fetcher, arbor.NewLogger())

	require.NoError(t, s.run(context.Background()))

	assert.Equal(t, []string{a, b}, collectedURLs(s))
	assert.Equal(t, 1, fetcher.callCount(a))
	assert.Equal(t, 1, fetcher.callCount(b))
}

func TestSession_DiamondGraphFetchesSharedPageOnce(t *testing.T) {
	a := "https://example.com/a"
	b := "https://example.com/b"
	c := "https://example.com/c"
	d := "https://example.com/d"
	fetcher := newStubFetcher(
		mkPage(a, b, c),
		mkPage(b, d),
		mkPage(c, d),
		mkPage(d),
	)
	s := newSession(a, 10, 2, fetcher, arbor.NewLogger())

	require.NoError(t, s.run(context.Background()))

	assert.ElementsMatch(t, []string{a, b, c, d}, collectedURLs(s))
	assert.Equal(t, 1, fetcher.callCount(d))
}

func TestSession_FailedPageIsSkippedNotRetried(t *testing.T) {
	seed := "https://example.com/"
	b := "https://example.com/b"
	c := "https://example.com/c"
	fetcher := newStubFetcher(
		mkPage(seed, b, c),
		mkPage(c, b), // c links back to the broken page
	)
	fetcher.fail[b] = true
	s := newSession(seed, 10, 3, fetcher, arbor.NewLogger())

	require.NoError(t, s.run(context.Background()))

	assert.Equal(t, []string{seed, c}, collectedURLs(s))
	assert.Equal(t, 1, fetcher.callCount(b))
}

func TestSession_SeedFetchFailureYieldsEmptyCrawl(t *testing.T) {
	seed := "https://example.com/"
	fetcher := newStubFetcher()
	fetcher.fail[seed] = true
	s := newSession(seed, 10, 3, fetcher, arbor.NewLogger())

	require.NoError(t, s.run(context.Background()))

	assert.Empty(t, s.collected)
}

func TestSession_WidthBoundsConcurrentFetches(t *testing.T) {
	seed := "https://example.com/"
	var links []string
	var records []*models.PageRecord
	for _, suffix := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i"} {
		u := "https://example.com/" + suffix
		links = append(links, u)
		records = append(records, mkPage(u))
	}
	records = append(records, mkPage(seed, links...))

	fetcher := newStubFetcher(records...)
	fetcher.delay = 10 * time.Millisecond
	s := newSession(seed, 20, 3, fetcher, arbor.NewLogger())

	require.NoError(t, s.run(context.Background()))

	assert.Len(t, s.collected, 10)
	assert.LessOrEqual(t, fetcher.peak, 3)
}

func TestSession_DuplicateLinksEnqueuedOnce(t *testing.T) {
	seed := "https://example.com/"
	b := "https://example.com/b"
	fetcher := newStubFetcher(
		mkPage(seed, b, b, b),
		mkPage(b),
	)
	s := newSession(seed, 10, 3, fetcher, arbor.NewLogger())

	require.NoError(t, s.run(context.Background()))

	assert.Equal(t, []string{seed, b}, collectedURLs(s))
	assert.Equal(t, 1, fetcher.callCount(b))
}

func TestSession_MergesEmailsAcrossPages(t *testing.T) {
	seed := "https://example.com/"
	b := "https://example.com/b"
	seedPage := mkPage(seed, b)
	seedPage.Emails = []string{"info@example.com", "sales@example.com"}
	bPage := mkPage(b)
	bPage.Emails = []string{"sales@example.com", "jobs@example.com"}

	fetcher := newStubFetcher(seedPage, bPage)
	s := newSession(seed, 10, 3, fetcher, arbor.NewLogger())

	require.NoError(t, s.run(context.Background()))

	assert.Equal(t, []string{"info@example.com", "sales@example.com", "jobs@example.com"}, s.emails)
}

func TestSession_CancelledContextStopsCrawl(t *testing.T) {
	seed := "https://example.com/"
	fetcher := newStubFetcher(mkPage(seed))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newSession(seed, 10, 3, fetcher, arbor.NewLogger())
	err := s.run(ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, s.collected)
}

func TestSession_ReportsProgressAfterEachBatch(t *testing.T) {
	seed := "https://example.com/"
	b := "https://example.com/b"
	fetcher := newStubFetcher(mkPage(seed, b), mkPage(b))

	var snapshots []int
	s := newSession(seed, 10, 1, fetcher, arbor.NewLogger())
	s.onProgress = func(collected, frontier int) {
		snapshots = append(snapshots, collected)
	}

	require.NoError(t, s.run(context.Background()))

	assert.Equal(t, []int{1, 2}, snapshots)
}
