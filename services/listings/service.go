package listings

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"carsheet-backend/lib/scrapers/carsheet"

	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Session is the in-memory accumulation of entries across one scrape
// run: page order first, in-page order second. Entries is append-only
// while the run is alive; it is only ever replaced wholesale, never
// partially mutated.
type Session struct {
	Entries      []carsheet.Entry
	PagesFetched int
	// the FetchError that halted the run, nil for clean runs
	LastError error
}

type Fetcher interface {
	FetchPage(ctx context.Context, page int) (carsheet.Page, error)
}

type Options struct {
	// polite delay bounds between consecutive page fetches,
	// leave both zero to disable the delay
	MinDelay time.Duration
	MaxDelay time.Duration
}

type Service struct {
	fetcher Fetcher
	opts    Options

	mu         sync.Mutex
	current    *Session
	generation uint64
	scraping   bool
}

func NewService(fetcher Fetcher, opts Options) *Service {
	return &Service{
		fetcher: fetcher,
		opts:    opts,
		current: &Session{},
	}
}

type RunOptions struct {
	// largest page index to fetch, <= 0 means no cap
	MaxPages int
	// called after every fetched page with the running totals;
	// must be fast and must not mutate the session
	OnProgress func(pagesFetched, entryCount int)
}

// Run drives the fetcher across consecutive page indices starting at
// 1, strictly sequentially. It stops on pagination exhaustion, the
// page cap, context cancellation between pages, or the first
// FetchError. A FetchError never escapes as a Go error: the entries
// gathered so far are retained and the error lands in
// Session.LastError.
func (s *Service) Run(ctx context.Context, opts RunOptions) *Session {
	ctx, span := tracer.Start(ctx, "listings:Run")
	defer span.End()

	s.mu.Lock()
	gen := s.generation
	s.scraping = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.scraping = false
		s.mu.Unlock()
	}()

	session := &Session{}
	for page := 1; opts.MaxPages <= 0 || page <= opts.MaxPages; page++ {
		if page > 1 && !s.politeDelay(ctx) {
			slog.InfoContext(
				ctx, "scrape cancelled",
				"pages_fetched", session.PagesFetched,
			)
			break
		}

		result, err := s.fetcher.FetchPage(ctx, page)
		if err != nil {
			slog.ErrorContext(ctx, "scrape halted", "page", page, "err", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "scrape halted by fetch failure")
			session.LastError = err
			break
		}

		session.PagesFetched++
		session.Entries = append(session.Entries, result.Entries...)
		slog.InfoContext(
			ctx, "scraped page",
			"page", page, "entries", len(session.Entries),
		)

		s.publish(gen, session)
		if opts.OnProgress != nil {
			opts.OnProgress(session.PagesFetched, len(session.Entries))
		}

		if !result.HasMore {
			break
		}
	}

	s.publish(gen, session)
	span.SetAttributes(
		attribute.Int("pages_fetched", session.PagesFetched),
		attribute.Int("entries", len(session.Entries)),
	)
	return session
}

// publish installs a read-only snapshot of the running session so
// readers can see partial results mid-run. If a Reset happened after
// the run started the generation no longer matches and the run's
// writes are orphaned.
func (s *Service) publish(gen uint64, session *Session) {
	snapshot := &Session{
		Entries:      session.Entries[:len(session.Entries):len(session.Entries)],
		PagesFetched: session.PagesFetched,
		LastError:    session.LastError,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return
	}
	s.current = snapshot
}

// sleeps a uniformly random duration within the configured bounds,
// reporting false if the context was cancelled first
func (s *Service) politeDelay(ctx context.Context) bool {
	delay := s.opts.MinDelay
	if spread := int(s.opts.MaxDelay - s.opts.MinDelay); spread > 0 {
		jitter, err := random.IntRange(0, spread)
		if err == nil {
			delay += time.Duration(jitter)
		}
	}
	if delay <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Reset discards the current session and installs a fresh empty one.
// Safe to call mid-run: the in-flight scrape keeps going but can no
// longer publish its results.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.current = &Session{}
}

// Snapshot returns the current published session. Sessions are
// immutable once published, so the result is safe to read while a
// scrape is still running.
func (s *Service) Snapshot() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

type Status struct {
	PagesFetched int    `json:"pages_fetched"`
	EntryCount   int    `json:"entry_count"`
	Scraping     bool   `json:"scraping"`
	LastError    string `json:"last_error,omitempty"`
}

func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		PagesFetched: s.current.PagesFetched,
		EntryCount:   len(s.current.Entries),
		Scraping:     s.scraping,
	}
	if s.current.LastError != nil {
		status.LastError = s.current.LastError.Error()
	}
	return status
}
