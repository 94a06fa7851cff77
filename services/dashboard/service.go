package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"carsheet-backend/lib/scrapers/carsheet"
	"carsheet-backend/services/listings"
)

// Service is the JSON API over the listings read interface: it
// triggers scrape runs, reports progress, serves filtered rows and
// chart feeds, and streams the xlsx export. Everything it returns is a
// read-only projection; the session is never mutated here.
type Service struct {
	listings  *listings.Service
	maxPages  int
	scrapeCtx context.Context

	mu      sync.Mutex
	running bool
}

// ctx bounds the lifetime of background scrape runs started over the
// API, independent of any single request.
func NewService(ctx context.Context, svc *listings.Service, maxPages int) *Service {
	return &Service{
		listings:  svc,
		maxPages:  maxPages,
		scrapeCtx: ctx,
	}
}

func (s *Service) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/scrape", s.handleScrape)
	mux.HandleFunc("POST /api/v1/reset", s.handleReset)
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/entries", s.handleEntries)
	mux.HandleFunc("GET /api/v1/brands", s.handleBrands)
	mux.HandleFunc("GET /api/v1/aggregate", s.handleAggregate)
	mux.HandleFunc("GET /api/v1/export", s.handleExport)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(payload)
	if err != nil {
		slog.Warn("failed to encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// one scrape at a time: a second trigger while one is running gets 409
func (s *Service) handleScrape(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "a scrape is already running")
		return
	}
	s.running = true
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}()
		s.listings.Run(s.scrapeCtx, listings.RunOptions{MaxPages: s.maxPages})
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Service) handleReset(w http.ResponseWriter, r *http.Request) {
	s.listings.Reset()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.listings.Status())
}

func (s *Service) handleEntries(w http.ResponseWriter, r *http.Request) {
	session := s.listings.Snapshot()
	entries := session.Entries

	if brand := r.URL.Query().Get("brand"); brand != "" {
		matched, ok := session.MatchBrand(brand)
		if !ok {
			entries = nil
		} else {
			var filtered []carsheet.Entry
			for _, entry := range entries {
				if entry.Brand == matched {
					filtered = append(filtered, entry)
				}
			}
			entries = filtered
		}
	}

	if column := r.URL.Query().Get("column"); column != "" {
		view := &listings.Session{Entries: entries}
		entries = view.Filter(column, r.URL.Query().Get("q"))
	}

	if entries == nil {
		entries = []carsheet.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(entries),
		"entries": entries,
	})
}

func (s *Service) handleBrands(w http.ResponseWriter, r *http.Request) {
	brands := s.listings.Snapshot().Brands()
	if brands == nil {
		brands = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"brands": brands})
}

func (s *Service) handleAggregate(w http.ResponseWriter, r *http.Request) {
	column := r.URL.Query().Get("column")
	if column == "" {
		writeError(w, http.StatusBadRequest, "missing required query param: column")
		return
	}
	fnParam := r.URL.Query().Get("fn")
	if fnParam == "" {
		fnParam = string(listings.AggregateCount)
	}
	fn, err := listings.ParseAggregateFunc(fnParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	buckets, err := s.listings.Snapshot().Aggregate(column, fn)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if buckets == nil {
		buckets = []listings.Bucket{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"column":  column,
		"fn":      fn,
		"buckets": buckets,
	})
}

func queryFlag(r *http.Request, name string) bool {
	switch r.URL.Query().Get(name) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func (s *Service) handleExport(w http.ResponseWriter, r *http.Request) {
	opts := listings.ExportOptions{
		DropDuplicates: queryFlag(r, "dedupe"),
		DropEmptyRows:  queryFlag(r, "drop_empty"),
	}

	// render fully before touching the response so an export failure
	// can still produce a clean error payload
	var buf bytes.Buffer
	err := s.listings.Snapshot().Export(&buf, opts)
	if errors.Is(err, listings.ErrNoEntries) {
		writeError(w, http.StatusBadRequest, "nothing to export, scrape some data first")
		return
	}
	if err != nil {
		slog.Error("failed to render export", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to render export")
		return
	}

	filename := listings.ExportFilename(time.Now())
	w.Header().Set(
		"content-type",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	)
	w.Header().Set(
		"content-disposition",
		fmt.Sprintf("attachment; filename=%q", filename),
	)
	w.Header().Set("content-length", fmt.Sprint(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(buf.Bytes())
	if err != nil {
		slog.Warn("failed to stream export", "err", err)
	}
}
