package external

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"stopsearch/internal/types"
)

// noopSleep avoids real delays between retries in tests.
func noopSleep(time.Duration) {}

// newTestAPIClient creates a Client pointed at the given test server URL
// with fast retries and no real sleep.
func newTestAPIClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	return NewClient(
		&http.Client{Timeout: 5 * time.Second},
		ClientConfig{
			BaseURL:   serverURL,
			UserAgent: "stopsearch-test/1.0",
			Retry: RetryPolicy{
				MaxRetries: 2,
				MinWait:    time.Millisecond,
				MaxWait:    5 * time.Millisecond,
			},
		},
		WithSleepFunc(noopSleep),
	)
}

func TestLatestPeriod(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/crimes-street-dates" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		w.Write([]byte(`[{"date":"2024-03","stop-and-search":["metropolitan"]},{"date":"2024-02"}]`))
	}))
	defer server.Close()

	client := newTestAPIClient(t, server.URL)

	period, err := client.LatestPeriod(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if period != (types.Period{Year: 2024, Month: 3}) {
		t.Errorf("expected 2024-03, got %s", period)
	}
}

func TestLatestPeriodEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := newTestAPIClient(t, server.URL)

	_, err := client.LatestPeriod(context.Background())
	if err == nil {
		t.Fatal("expected error for empty availability response")
	}
	if code := types.CodeOf(err); code != types.ErrCodeUpstreamUnavailable {
		t.Errorf("expected upstream_unavailable, got %s", code)
	}
}

func TestLatestPeriodMalformedDate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"date":"not-a-date"}]`))
	}))
	defer server.Close()

	client := newTestAPIClient(t, server.URL)

	_, err := client.LatestPeriod(context.Background())
	if err == nil {
		t.Fatal("expected error for malformed date")
	}
	if code := types.CodeOf(err); code != types.ErrCodeUpstreamUnavailable {
		t.Errorf("expected upstream_unavailable, got %s", code)
	}
}

func TestListForces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/forces" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`[{"id":"avon-and-somerset","name":"Avon and Somerset Constabulary"},{"id":"bedfordshire","name":"Bedfordshire Police"}]`))
	}))
	defer server.Close()

	client := newTestAPIClient(t, server.URL)

	forces, err := client.ListForces(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if len(forces) != 2 {
		t.Fatalf("expected 2 forces, got %d", len(forces))
	}
	if forces[0].ID != "avon-and-somerset" || forces[0].Name != "Avon and Somerset Constabulary" {
		t.Errorf("unexpected first force: %+v", forces[0])
	}
}

func TestStopsByAreaSendsFormBody(t *testing.T) {
	var gotMethod, gotPoly, gotDate, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stops-street" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotPoly = r.PostFormValue("poly")
		gotDate = r.PostFormValue("date")
		w.Write([]byte(`[{"type":"Person search","outcome":null}]`))
	}))
	defer server.Close()

	client := newTestAPIClient(t, server.URL)

	records, err := client.StopsByArea(context.Background(), "52.1,-1.9:52.2,-1.8:52.15,-1.7", "2021-08")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("expected POST, got %s", gotMethod)
	}
	if gotContentType != "application/x-www-form-urlencoded" {
		t.Errorf("unexpected content type %q", gotContentType)
	}
	if gotPoly != "52.1,-1.9:52.2,-1.8:52.15,-1.7" {
		t.Errorf("unexpected poly %q", gotPoly)
	}
	if gotDate != "2021-08" {
		t.Errorf("unexpected date %q", gotDate)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0]["type"] != "Person search" {
		t.Errorf("unexpected record: %+v", records[0])
	}
}

func TestStopsByForceSendsFormBody(t *testing.T) {
	var gotForce, gotDate string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stops-force" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotForce = r.PostFormValue("force")
		gotDate = r.PostFormValue("date")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := newTestAPIClient(t, server.URL)

	records, err := client.StopsByForce(context.Background(), "bedfordshire", "2021-12")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if gotForce != "bedfordshire" {
		t.Errorf("unexpected force %q", gotForce)
	}
	if gotDate != "2021-12" {
		t.Errorf("unexpected date %q", gotDate)
	}
	if len(records) != 0 {
		t.Errorf("expected empty result, got %d records", len(records))
	}
}

func TestClientDecodesGzipResponses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept-Encoding") != "gzip" {
			t.Errorf("expected gzip negotiation, got %q", r.Header.Get("Accept-Encoding"))
		}
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		gz.Write([]byte(`[{"id":"kent","name":"Kent Police"}]`))
		gz.Close()
	}))
	defer server.Close()

	client := newTestAPIClient(t, server.URL)

	forces, err := client.ListForces(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if len(forces) != 1 || forces[0].ID != "kent" {
		t.Errorf("unexpected forces: %+v", forces)
	}
}

func TestClientRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		// The retried POST must carry the replayed form body.
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.PostFormValue("force") != "kent" {
			t.Errorf("replayed body lost form field, got %q", r.PostFormValue("force"))
		}
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := newTestAPIClient(t, server.URL)

	_, err := client.StopsByForce(context.Background(), "kent", "2021-08")
	if err != nil {
		t.Fatalf("expected retry to succeed, got: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("expected 2 calls, got %d", got)
	}
}

func TestClientExhaustedRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestAPIClient(t, server.URL)

	_, err := client.ListForces(context.Background())
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if code := types.CodeOf(err); code != types.ErrCodeUpstreamUnavailable {
		t.Errorf("expected upstream_unavailable, got %s", code)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts (1 + 2 retries), got %d", got)
	}
}

func TestClientNonRetryableStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestAPIClient(t, server.URL)

	_, err := client.ListForces(context.Background())
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if code := types.CodeOf(err); code != types.ErrCodeUpstreamUnavailable {
		t.Errorf("expected upstream_unavailable, got %s", code)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("404 must not be retried, got %d calls", got)
	}
}

func TestTransportInjectsRequestID(t *testing.T) {
	var gotID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = r.Header.Get("X-Request-Id")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := newTestAPIClient(t, server.URL)

	ctx := types.WithRequestID(context.Background(), "retrieval-abc-123")
	if _, err := client.ListForces(ctx); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if gotID != "retrieval-abc-123" {
		t.Errorf("expected request ID to propagate, got %q", gotID)
	}
}

func TestTransportInjectsUserAgent(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := newTestAPIClient(t, server.URL)

	if _, err := client.ListForces(context.Background()); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if gotUA != "stopsearch-test/1.0" {
		t.Errorf("expected configured User-Agent, got %q", gotUA)
	}
}
