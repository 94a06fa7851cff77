package listings

import (
	"context"
	"errors"
	"testing"
	"time"

	"carsheet-backend/lib/scrapers/carsheet"
	"carsheet-backend/lib/testutil"

	"github.com/stretchr/testify/require"
)

type fetchResult struct {
	page carsheet.Page
	err  error
}

type fakeFetcher struct {
	results []fetchResult
	calls   []int
}

func (f *fakeFetcher) FetchPage(ctx context.Context, page int) (carsheet.Page, error) {
	f.calls = append(f.calls, page)
	if page > len(f.results) {
		return carsheet.Page{}, nil
	}
	result := f.results[page-1]
	return result.page, result.err
}

func entry(brand, model string, year int) carsheet.Entry {
	return carsheet.Entry{
		Brand: brand,
		Model: model,
		Year:  year,
		Specs: map[string]string{},
	}
}

func fullPage(hasMore bool, entries ...carsheet.Entry) fetchResult {
	return fetchResult{page: carsheet.Page{Entries: entries, HasMore: hasMore}}
}

func TestRunAllPages(t *testing.T) {
	cleanup := testutil.SetupService(t, "services/listings")
	defer cleanup()

	fetcher := &fakeFetcher{results: []fetchResult{
		fullPage(true, entry("Toyota", "Corolla", 2020), entry("Toyota", "Supra", 2024)),
		fullPage(true, entry("Audi", "TT", 2024), entry("Audi", "R8", 2023)),
		fullPage(true, entry("BMW", "M4", 2024), entry("Ford", "Mustang", 2024)),
	}}
	svc := NewService(fetcher, Options{})

	var progress [][2]int
	session := svc.Run(context.Background(), RunOptions{
		MaxPages: 3,
		OnProgress: func(pagesFetched, entryCount int) {
			progress = append(progress, [2]int{pagesFetched, entryCount})
		},
	})

	require.Equal(t, []int{1, 2, 3}, fetcher.calls)
	require.Equal(t, 3, session.PagesFetched)
	require.NoError(t, session.LastError)
	require.Len(t, session.Entries, 6)

	// page order then in-page order
	var models []string
	for _, e := range session.Entries {
		models = append(models, e.Model)
	}
	require.Equal(
		t,
		[]string{"Corolla", "Supra", "TT", "R8", "M4", "Mustang"},
		models,
	)

	require.Equal(t, [][2]int{{1, 2}, {2, 4}, {3, 6}}, progress)
	require.Equal(t, session, svc.Snapshot())
}

func TestRunStopsOnExhaustion(t *testing.T) {
	cleanup := testutil.SetupService(t, "services/listings")
	defer cleanup()

	// page 1 yields one entry, page 2 is empty: the run must stop at
	// page 2 even with budget for five
	fetcher := &fakeFetcher{results: []fetchResult{
		fullPage(true, entry("Toyota", "Corolla", 2020)),
	}}
	svc := NewService(fetcher, Options{})

	session := svc.Run(context.Background(), RunOptions{MaxPages: 5})

	require.Equal(t, []int{1, 2}, fetcher.calls)
	require.Equal(t, 2, session.PagesFetched)
	require.Len(t, session.Entries, 1)
	require.Equal(t, "Corolla", session.Entries[0].Model)
	require.NoError(t, session.LastError)
}

func TestRunFetchErrorKeepsPartialResults(t *testing.T) {
	cleanup := testutil.SetupService(t, "services/listings")
	defer cleanup()

	fetchErr := &carsheet.FetchError{
		Page: 3,
		Url:  "https://carsheet.example/?page=3",
		Err:  errors.New("connection reset"),
	}
	fetcher := &fakeFetcher{results: []fetchResult{
		fullPage(true, entry("Toyota", "Corolla", 2020)),
		fullPage(true, entry("Audi", "TT", 2024)),
		{err: fetchErr},
	}}
	svc := NewService(fetcher, Options{})

	session := svc.Run(context.Background(), RunOptions{MaxPages: 5})

	require.Equal(t, []int{1, 2, 3}, fetcher.calls)
	require.Equal(t, 2, session.PagesFetched)
	require.Len(t, session.Entries, 2)
	require.ErrorIs(t, session.LastError, fetchErr)

	status := svc.Status()
	require.Equal(t, 2, status.PagesFetched)
	require.Equal(t, 2, status.EntryCount)
	require.False(t, status.Scraping)
	require.NotEmpty(t, status.LastError)
}

func TestReset(t *testing.T) {
	cleanup := testutil.SetupService(t, "services/listings")
	defer cleanup()

	fetcher := &fakeFetcher{results: []fetchResult{
		fullPage(false, entry("Toyota", "Corolla", 2020)),
	}}
	svc := NewService(fetcher, Options{})

	svc.Run(context.Background(), RunOptions{MaxPages: 5})
	require.Len(t, svc.Snapshot().Entries, 1)

	svc.Reset()

	session := svc.Snapshot()
	require.Empty(t, session.Entries)
	require.Equal(t, 0, session.PagesFetched)
	require.NoError(t, session.LastError)
}

func TestResetMidRunOrphansTheRun(t *testing.T) {
	cleanup := testutil.SetupService(t, "services/listings")
	defer cleanup()

	fetcher := &fakeFetcher{results: []fetchResult{
		fullPage(true, entry("Toyota", "Corolla", 2020)),
		fullPage(false, entry("Audi", "TT", 2024)),
	}}
	svc := NewService(fetcher, Options{})

	session := svc.Run(context.Background(), RunOptions{
		MaxPages: 5,
		OnProgress: func(pagesFetched, entryCount int) {
			if pagesFetched == 1 {
				svc.Reset()
			}
		},
	})

	// the run itself still returns everything it scraped
	require.Len(t, session.Entries, 2)
	// but its writes never reach the fresh session installed by Reset
	require.Empty(t, svc.Snapshot().Entries)
	require.Equal(t, 0, svc.Status().EntryCount)
}

func TestRunCancelledBetweenPages(t *testing.T) {
	cleanup := testutil.SetupService(t, "services/listings")
	defer cleanup()

	fetcher := &fakeFetcher{results: []fetchResult{
		fullPage(true, entry("Toyota", "Corolla", 2020)),
		fullPage(true, entry("Audi", "TT", 2024)),
		fullPage(true, entry("BMW", "M4", 2024)),
	}}
	svc := NewService(fetcher, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	session := svc.Run(ctx, RunOptions{
		MaxPages: 5,
		OnProgress: func(pagesFetched, entryCount int) {
			// "stop after current page"
			cancel()
		},
	})

	require.Equal(t, []int{1}, fetcher.calls)
	require.Equal(t, 1, session.PagesFetched)
	require.Len(t, session.Entries, 1)
	require.NoError(t, session.LastError)
}

func TestRunProgressiveSnapshots(t *testing.T) {
	cleanup := testutil.SetupService(t, "services/listings")
	defer cleanup()

	fetcher := &fakeFetcher{results: []fetchResult{
		fullPage(true, entry("Toyota", "Corolla", 2020)),
		fullPage(false, entry("Audi", "TT", 2024)),
	}}
	svc := NewService(fetcher, Options{})

	var midRunCounts []int
	var midRunScraping []bool
	svc.Run(context.Background(), RunOptions{
		MaxPages: 5,
		OnProgress: func(pagesFetched, entryCount int) {
			midRunCounts = append(midRunCounts, len(svc.Snapshot().Entries))
			midRunScraping = append(midRunScraping, svc.Status().Scraping)
		},
	})

	require.Equal(t, []int{1, 2}, midRunCounts)
	require.Equal(t, []bool{true, true}, midRunScraping)
	require.False(t, svc.Status().Scraping)
}

const fixturePageHtml = `<html><body><table>
<thead><tr><th>Make</th><th>Model</th><th>Year</th></tr></thead>
<tbody><tr><td>Toyota</td><td>Corolla</td><td>2020</td></tr></tbody>
</table>
<ul><li class="paginate_button page-item next"><a href="#">Next</a></li></ul>
</body></html>`

// end to end: a real client against a fixture site whose second page
// has no listings
func TestRunAgainstFixtureServer(t *testing.T) {
	cleanup := testutil.SetupService(t, "services/listings")
	defer cleanup()

	server := testutil.NewPageServer(t, []string{fixturePageHtml})
	client, err := carsheet.NewClient(carsheet.ClientOptions{
		BaseUrl:   server.URL,
		UserAgent: "carsheet-backend test",
		Timeout:   time.Second * 5,
	})
	require.NoError(t, err)

	svc := NewService(client, Options{})
	session := svc.Run(context.Background(), RunOptions{MaxPages: 5})

	require.NoError(t, session.LastError)
	require.Equal(t, 2, session.PagesFetched)
	require.Len(t, session.Entries, 1)
	require.Equal(t, "Toyota", session.Entries[0].Brand)
	require.Equal(t, "Corolla", session.Entries[0].Model)
	require.Equal(t, 2020, session.Entries[0].Year)
}

func TestRunPoliteDelay(t *testing.T) {
	cleanup := testutil.SetupService(t, "services/listings")
	defer cleanup()

	fetcher := &fakeFetcher{results: []fetchResult{
		fullPage(true, entry("Toyota", "Corolla", 2020)),
		fullPage(false, entry("Audi", "TT", 2024)),
	}}
	svc := NewService(fetcher, Options{
		MinDelay: time.Millisecond,
		MaxDelay: time.Millisecond * 3,
	})

	session := svc.Run(context.Background(), RunOptions{MaxPages: 5})
	require.Equal(t, 2, session.PagesFetched)
	require.Len(t, session.Entries, 2)
}
