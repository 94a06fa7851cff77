package testutil

import (
	"carsheet-backend/lib/telemetry"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
)

// SetupService boots the ambient test environment (logging + telemetry)
// for one service's test package.
func SetupService(t testing.TB, name string) func() {
	return telemetry.SetupForTesting(fmt.Sprintf("test:%s", name))
}

// NewPageServer serves canned html listing pages keyed by the "page"
// query parameter: page 1 returns pages[0] and so on. Requests past the
// last fixture get an empty 200 body, like a site whose pagination ran
// out.
func NewPageServer(t testing.TB, pages []string) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pageParam := r.URL.Query().Get("page")
		page, err := strconv.Atoi(pageParam)
		if err != nil || page < 1 {
			t.Errorf("fixture server got bad page param %q", pageParam)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if page > len(pages) {
			fmt.Fprint(w, "<html><body></body></html>")
			return
		}
		fmt.Fprint(w, pages[page-1])
	}))
	t.Cleanup(server.Close)
	return server
}

// NewStatusServer answers every request with the given status code.
func NewStatusServer(t testing.TB, status int) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server
}
