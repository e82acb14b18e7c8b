package erp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/devlin/erpmirror/internal/logger"
)

func testLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "error", Format: "text", Output: io.Discard})
}

func newTestClient(baseURL string, maxRetries int) *Client {
	return NewClient(&Config{
		BaseURL:        baseURL,
		APIKey:         "test-key",
		RequestTimeout: 2 * time.Second,
		MaxRetries:     maxRetries,
		RetryBackoff:   time.Millisecond,
	}, testLogger())
}

func TestFetchPageRetriesTransientError(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `[{"id":1,"total":"10.00"}]`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 1)
	records, err := c.FetchPage(context.Background(), 1, 100)
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("records = %d, want 1", len(records))
	}
	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Errorf("attempts = %d, want 2 (one retry after 503)", got)
	}
}

func TestFetchPageExhaustsRetryBudget(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 1)
	_, err := c.FetchPage(context.Background(), 1, 100)
	if !errors.Is(err, ErrRemoteFetch) {
		t.Fatalf("err = %v, want ErrRemoteFetch", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Errorf("attempts = %d, want 2 (initial + 1 retry)", got)
	}
}

func TestFetchPageNonRetryableFailsImmediately(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"bad key"}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 3)
	_, err := c.FetchPage(context.Background(), 1, 100)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", apiErr.StatusCode)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("attempts = %d, want 1 (4xx must not retry)", got)
	}
}

func TestFetchPageClampsPageSizeAndComputesOffset(t *testing.T) {
	type query struct{ offset, limit string }
	queries := make(chan query, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries <- query{r.URL.Query().Get("offset"), r.URL.Query().Get("limit")}
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0)

	// Oversized request is clamped to the API's hard limit.
	if _, err := c.FetchPage(context.Background(), 1, 500); err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}
	q := <-queries
	if q.limit != "100" || q.offset != "0" {
		t.Errorf("page 1 query = offset=%s limit=%s, want offset=0 limit=100", q.offset, q.limit)
	}

	if _, err := c.FetchPage(context.Background(), 3, 50); err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}
	q = <-queries
	if q.limit != "50" || q.offset != "100" {
		t.Errorf("page 3 query = offset=%s limit=%s, want offset=100 limit=50", q.offset, q.limit)
	}
}

func TestFetchPageSendsAPIKey(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0)
	if _, err := c.FetchPage(context.Background(), 1, 100); err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}
	if gotKey != "test-key" {
		t.Errorf("X-Api-Key = %q, want test-key", gotKey)
	}
}

func TestFetchPagePreservesDecimalText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id":1,"total":1234567.89}]`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0)
	records, err := c.FetchPage(context.Background(), 1, 100)
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}
	n, ok := records[0]["total"].(json.Number)
	if !ok {
		t.Fatalf("total decoded as %T, want json.Number", records[0]["total"])
	}
	if n.String() != "1234567.89" {
		t.Errorf("total = %s, want exact source text 1234567.89", n)
	}
}

func TestResolveEmployeeName(t *testing.T) {
	var hits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/employees/7", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		fmt.Fprint(w, `{"id":7,"first_name":"Aye","last_name":"Chan"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv.URL, 0)

	if name := c.ResolveEmployeeName(context.Background(), 7); name != "Aye Chan" {
		t.Errorf("name = %q, want Aye Chan", name)
	}
	// Second lookup must be served from the cache.
	if name := c.ResolveEmployeeName(context.Background(), 7); name != "Aye Chan" {
		t.Errorf("cached name = %q, want Aye Chan", name)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("remote hits = %d, want 1", got)
	}
}

func TestResolveEmployeeNameFailureIsNegativeCached(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0)

	if name := c.ResolveEmployeeName(context.Background(), 99); name != "Unknown" {
		t.Errorf("name = %q, want Unknown", name)
	}
	if name := c.ResolveEmployeeName(context.Background(), 99); name != "Unknown" {
		t.Errorf("cached name = %q, want Unknown", name)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("remote hits = %d, want 1 (failure must be cached too)", got)
	}
}

func TestPreloadEmployeesWarmsCache(t *testing.T) {
	var listHits, singleHits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/employees", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&listHits, 1)
		fmt.Fprint(w, `[
			{"id":1,"first_name":"Su","last_name":"Myat"},
			{"id":2,"name":"Zaw Zaw"}
		]`)
	})
	mux.HandleFunc("/employees/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&singleHits, 1)
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv.URL, 0)

	employees := c.PreloadEmployees(context.Background())
	if len(employees) != 2 {
		t.Fatalf("preloaded = %d, want 2", len(employees))
	}
	if employees[0].FullName != "Su Myat" {
		t.Errorf("employee 1 full name = %q, want Su Myat", employees[0].FullName)
	}
	if employees[1].FullName != "Zaw Zaw" {
		t.Errorf("employee 2 full name = %q, want Zaw Zaw", employees[1].FullName)
	}

	// Preloaded ids resolve without touching the single-employee endpoint.
	if name := c.ResolveEmployeeName(context.Background(), 1); name != "Su Myat" {
		t.Errorf("resolved name = %q, want Su Myat", name)
	}
	if got := atomic.LoadInt32(&singleHits); got != 0 {
		t.Errorf("single-employee hits = %d, want 0 after preload", got)
	}
}

func TestPreloadEmployeesSwallowsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0)
	if employees := c.PreloadEmployees(context.Background()); employees != nil {
		t.Errorf("preload on failure = %v, want nil", employees)
	}
}

func TestJoinName(t *testing.T) {
	cases := []struct {
		first, last, want string
	}{
		{"Aye", "Chan", "Aye Chan"},
		{"Aye", "", "Aye"},
		{"", "Chan", "Chan"},
		{"", "", ""},
		{" Aye ", " Chan ", "Aye Chan"},
	}
	for _, tc := range cases {
		if got := JoinName(tc.first, tc.last); got != tc.want {
			t.Errorf("JoinName(%q, %q) = %q, want %q", tc.first, tc.last, got, tc.want)
		}
	}
}
