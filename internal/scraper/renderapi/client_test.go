package renderapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"eazyfind/internal/config"
	"eazyfind/internal/scraper"
)

type fakeRenderService struct {
	polls      atomic.Int32
	finishAt   int32
	statusCode int
	failed     bool

	mu       sync.Mutex
	lastBody jobRequest
}

func (f *fakeRenderService) last() jobRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastBody
}

func (f *fakeRenderService) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		var body jobRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode job: %v", err)
		}
		f.mu.Lock()
		f.lastBody = body
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode([]addedJob{{ID: "job-1", StatusURL: "/jobs/job-1"}})
	})
	mux.HandleFunc("/jobs/job-1", func(w http.ResponseWriter, r *http.Request) {
		n := f.polls.Add(1)
		status := "running"
		switch {
		case f.failed:
			status = "failed"
		case f.finishAt > 0 && n >= f.finishAt:
			status = "finished"
		}
		_, _ = fmt.Fprintf(w, `{"status":%q,"response":{"statusCode":%d,"body":"<html>ok</html>"}}`, status, f.statusCode)
	})
	return mux
}

func newTestClient(srv *httptest.Server, retries int, session *scraper.Session) *Client {
	return New(config.RenderAPIConfig{
		BaseURL:       srv.URL,
		APIKey:        "key",
		RetryCount:    retries,
		RetryInterval: time.Millisecond,
	}, "YerevanMobile", session)
}

func TestClient_FinishedAfterPolls(t *testing.T) {
	svc := &fakeRenderService{finishAt: 3, statusCode: http.StatusOK}
	srv := httptest.NewServer(svc.handler(t))
	defer srv.Close()

	session := scraper.NewSession()
	c := newTestClient(srv, 5, session)
	resp, err := c.Fetch(context.Background(), scraper.Request{URL: "https://yerevanmobile.am/laptops", WaitSelector: ".grid_list"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(resp.Body) != "<html>ok</html>" {
		t.Fatalf("unexpected body %q", resp.Body)
	}
	if svc.polls.Load() != 3 {
		t.Fatalf("expected 3 polls, got %d", svc.polls.Load())
	}
	job := svc.last()
	if job.APIParams["wait_for_selector"] != ".grid_list" || job.APIParams["render"] != "true" {
		t.Fatalf("unexpected params %v", job.APIParams)
	}
	if job.APIParams["session_number"] != fmt.Sprint(session.Number()) {
		t.Fatalf("session number not sent: %v", job.APIParams)
	}
	if len(job.URLs) != 1 || job.APIKey != "key" {
		t.Fatalf("unexpected job request %+v", job)
	}
}

func TestClient_FinishedWithErrorStatus(t *testing.T) {
	svc := &fakeRenderService{finishAt: 1, statusCode: http.StatusForbidden}
	srv := httptest.NewServer(svc.handler(t))
	defer srv.Close()

	_, err := newTestClient(srv, 3, nil).Fetch(context.Background(), scraper.Request{URL: "https://x.am"})
	var se *scraper.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusForbidden {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestClient_Failed(t *testing.T) {
	svc := &fakeRenderService{failed: true}
	srv := httptest.NewServer(svc.handler(t))
	defer srv.Close()

	if _, err := newTestClient(srv, 3, nil).Fetch(context.Background(), scraper.Request{URL: "https://x.am"}); err == nil {
		t.Fatal("expected failure")
	}
}

func TestClient_TimeoutRotatesSession(t *testing.T) {
	svc := &fakeRenderService{}
	srv := httptest.NewServer(svc.handler(t))
	defer srv.Close()

	session := scraper.NewSession()
	before := session.Number()
	_, err := newTestClient(srv, 2, session).Fetch(context.Background(), scraper.Request{URL: "https://x.am"})
	if !errors.Is(err, ErrJobTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if svc.polls.Load() != 2 {
		t.Fatalf("expected 2 polls, got %d", svc.polls.Load())
	}
	if session.Number() == before {
		t.Fatal("expected session to rotate after timeout")
	}
}

func TestClient_ContextCanceled(t *testing.T) {
	svc := &fakeRenderService{}
	srv := httptest.NewServer(svc.handler(t))
	defer srv.Close()

	c := New(config.RenderAPIConfig{BaseURL: srv.URL, RetryCount: 10, RetryInterval: time.Hour}, "s", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Fetch(ctx, scraper.Request{URL: "https://x.am"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
