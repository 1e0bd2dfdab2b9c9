package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"eazyfind/internal/config"
	"eazyfind/internal/model"
	"eazyfind/internal/pkg/logger"
	"eazyfind/internal/pkg/runguard"
	"eazyfind/internal/pkg/taskqueue"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type mockSeeder struct {
	ensured [][]model.Partition
	rows    []model.Partition
	err     error
}

func (m *mockSeeder) EnsurePartitions(_ context.Context, pairs []model.Partition) error {
	if m.err != nil {
		return m.err
	}
	m.ensured = append(m.ensured, pairs)
	return nil
}

func (m *mockSeeder) ListPartitions(context.Context) ([]model.Partition, error) {
	return m.rows, m.err
}

func testPartitions() config.Partitions {
	return config.Partitions{
		model.CategoryLaptops: {
			{Store: model.StoreVega, URL: "https://vega.am/laptops"},
			{Store: model.StoreVega, URL: "https://vega.am/gaming-laptops"},
			{Store: model.StoreZigzag, URL: "https://zigzag.am/laptops"},
		},
		model.CategoryXbox: {
			{Store: model.StoreVLV, URL: "https://vlv.am/consoles", RequiresCategoryInference: true},
		},
	}
}

type fixture struct {
	srv    *Server
	seeder *mockSeeder
	rdb    *redis.Client
	mr     *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	seeder := &mockSeeder{rows: []model.Partition{
		{ID: 7, Store: model.StoreVega, Category: model.CategoryLaptops},
	}}
	cfg := &config.Config{App: config.AppConfig{Env: "local"}}
	srv := NewServer(cfg, logger.Discard(), Deps{
		Partitions: testPartitions(),
		Seeder:     seeder,
		Runs:       taskqueue.NewProducer(rdb, logger.Discard(), "test:run:queue"),
		Guard:      runguard.New(rdb, 0),
		Pingers: map[string]Pinger{
			"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
	})
	return &fixture{srv: srv, seeder: seeder, rdb: rdb, mr: mr}
}

func (f *fixture) do(t *testing.T, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(w, req)

	var body map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
	}
	return w, body
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	w, body := f.do(t, http.MethodGet, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected body: %v", body)
	}

	f.mr.Close()
	w, body = f.do(t, http.MethodGet, "/healthz")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 after redis stopped, got %d", w.Code)
	}
	if body["status"] != "error" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestSubmitRun_Accepted(t *testing.T) {
	f := newFixture(t)

	w, body := f.do(t, http.MethodPost, "/api/runs/laptops")
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if body["run_id"] == "" || body["category"] != "Laptops" {
		t.Fatalf("unexpected body: %v", body)
	}

	n, err := f.rdb.XLen(context.Background(), "test:run:queue").Result()
	if err != nil {
		t.Fatalf("xlen: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 queued run, got %d", n)
	}
}

func TestSubmitRun_RejectsUnknownAndUnconfigured(t *testing.T) {
	f := newFixture(t)

	if w, _ := f.do(t, http.MethodPost, "/api/runs/toasters"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown category, got %d", w.Code)
	}
	if w, _ := f.do(t, http.MethodPost, "/api/runs/Monitors"); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for category without sources, got %d", w.Code)
	}
}

func TestQueueStatus(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/runs/Xbox")
	f.do(t, http.MethodPost, "/api/runs/Laptops")

	w, body := f.do(t, http.MethodGet, "/api/runs/queue")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body["length"] != float64(2) {
		t.Fatalf("expected length 2, got %v", body["length"])
	}
	cats, _ := body["categories"].([]any)
	if len(cats) != 2 || cats[0] != "Laptops" || cats[1] != "Xbox" {
		t.Fatalf("unexpected categories: %v", body["categories"])
	}
}

func TestRunStatus_ReportsHeldGuard(t *testing.T) {
	f := newFixture(t)

	_, body := f.do(t, http.MethodGet, "/api/runs/Laptops")
	if body["running"] != false {
		t.Fatalf("expected not running, got %v", body)
	}

	lease, err := runguard.New(f.rdb, 0).Acquire(context.Background(), "Laptops")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer func() { _ = lease.Release(context.Background()) }()

	_, body = f.do(t, http.MethodGet, "/api/runs/Laptops")
	if body["running"] != true {
		t.Fatalf("expected running, got %v", body)
	}
}

func TestListPartitions(t *testing.T) {
	f := newFixture(t)

	w, body := f.do(t, http.MethodGet, "/api/partitions")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	parts, _ := body["partitions"].([]any)
	if len(parts) != 3 {
		t.Fatalf("expected 3 partitions, got %d", len(parts))
	}

	first := parts[0].(map[string]any)
	if first["store"] != "Vega" || first["category"] != "Laptops" {
		t.Fatalf("unexpected first partition: %v", first)
	}
	if first["id"] != float64(7) {
		t.Fatalf("expected catalog id 7, got %v", first["id"])
	}
	if srcs := first["sources"].([]any); len(srcs) != 2 {
		t.Fatalf("expected 2 vega sources, got %d", len(srcs))
	}
	if _, ok := parts[1].(map[string]any)["id"]; ok {
		t.Fatalf("partition missing from catalog should have no id")
	}
}

func TestSyncPartitions(t *testing.T) {
	f := newFixture(t)

	w, body := f.do(t, http.MethodPost, "/api/partitions/sync")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body["partitions"] != float64(3) {
		t.Fatalf("unexpected body: %v", body)
	}
	if len(f.seeder.ensured) != 1 || len(f.seeder.ensured[0]) != 3 {
		t.Fatalf("expected one ensure call with 3 pairs, got %v", f.seeder.ensured)
	}

	f.seeder.err = errors.New("db down")
	if w, _ := f.do(t, http.MethodPost, "/api/partitions/sync"); w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestSeedPartitions_NoSeeder(t *testing.T) {
	if _, err := SeedPartitions(context.Background(), nil, testPartitions()); !errors.Is(err, errNoSeeder) {
		t.Fatalf("expected errNoSeeder, got %v", err)
	}
	n, err := SeedPartitions(context.Background(), &mockSeeder{}, config.Partitions{})
	if err != nil || n != 0 {
		t.Fatalf("expected no-op for empty partitions, got %d %v", n, err)
	}
}
