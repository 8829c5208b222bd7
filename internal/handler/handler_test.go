package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"buybox/internal/models"
	"buybox/internal/notify"
	memrepo "buybox/internal/repository/memory"
	"buybox/internal/service"
	"buybox/internal/worker"
)

func newRouter(t *testing.T) (*gin.Engine, *memrepo.Store, *notify.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repo := memrepo.New()
	hub := notify.NewHub()
	query := &service.BuyBoxQueryService{Repo: repo}
	settings := &service.SystemSettingsService{Repo: repo}
	if err := settings.EnsureDefaultSwitches(context.Background()); err != nil {
		t.Fatalf("seed switches err=%v", err)
	}
	scheduler := &worker.Scheduler{Repo: repo, Options: worker.DefaultOptions()}

	r := gin.New()
	(&HealthHandler{Memory: true}).Register(r)
	(&BuyBoxHandler{Query: query, Pricing: &service.CompetitorPricingService{Repo: repo}}).Register(r)
	(&InsightHandler{Query: query}).Register(r)
	(&WorkerHandler{Scheduler: scheduler, Query: query, Settings: settings}).Register(r)
	(&LiveHandler{Hub: hub}).Register(r)
	return r, repo, hub
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestTrackProductAndStatus(t *testing.T) {
	r, _, _ := newRouter(t)

	if rec := do(r, http.MethodGet, "/api/v1/products/B0MISSING/buybox", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing status code=%d body=%s", rec.Code, rec.Body)
	}
	if rec := do(r, http.MethodPost, "/api/v1/products", map[string]any{"asin": " "}); rec.Code != http.StatusBadRequest {
		t.Fatalf("blank asin code=%d", rec.Code)
	}
	if rec := do(r, http.MethodPost, "/api/v1/products", map[string]any{"asin": "B0TRACK", "title": "Garrafa"}); rec.Code != http.StatusOK {
		t.Fatalf("track code=%d body=%s", rec.Code, rec.Body)
	}
	rec := do(r, http.MethodGet, "/api/v1/products/B0TRACK/buybox", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"asin":"B0TRACK"`) {
		t.Fatalf("status code=%d body=%s", rec.Code, rec.Body)
	}
}

func TestInsightStatusTransitions(t *testing.T) {
	r, repo, _ := newRouter(t)
	item := &models.Insight{ASIN: "B0A", InsightType: models.InsightTypeBuyBoxChange, Priority: models.PriorityHigh, Title: "t"}
	_ = repo.InsertInsight(context.Background(), item)

	if rec := do(r, http.MethodPost, "/api/v1/insights/999/status", map[string]string{"status": "applied"}); rec.Code != http.StatusNotFound {
		t.Fatalf("missing code=%d", rec.Code)
	}
	if rec := do(r, http.MethodPost, "/api/v1/insights/1/status", map[string]string{"status": "maybe"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad status code=%d", rec.Code)
	}
	path := "/api/v1/insights/" + jsonID(item.ID) + "/status"
	if rec := do(r, http.MethodPost, path, map[string]string{"status": "dismissed"}); rec.Code != http.StatusOK {
		t.Fatalf("dismiss code=%d body=%s", rec.Code, rec.Body)
	}
	rec := do(r, http.MethodGet, "/api/v1/insights?status=dismissed", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"count":1`) {
		t.Fatalf("list code=%d body=%s", rec.Code, rec.Body)
	}
}

func jsonID(id uint64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func TestWorkerEndpoints(t *testing.T) {
	r, _, _ := newRouter(t)

	if rec := do(r, http.MethodPost, "/api/v1/worker/run/bogus", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown pass code=%d", rec.Code)
	}
	rec := do(r, http.MethodPost, "/api/v1/worker/run/cleanup?wait=true", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"success"`) {
		t.Fatalf("cleanup code=%d body=%s", rec.Code, rec.Body)
	}
	rec = do(r, http.MethodGet, "/api/v1/worker/stats", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), models.SyncTypeCleanup) {
		t.Fatalf("stats code=%d body=%s", rec.Code, rec.Body)
	}

	if rec := do(r, http.MethodPut, "/api/v1/settings/switches/feature.nope", map[string]bool{"enabled": false}); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown switch code=%d", rec.Code)
	}
	if rec := do(r, http.MethodPut, "/api/v1/settings/switches/"+service.FeatureIntensive, map[string]bool{"enabled": false}); rec.Code != http.StatusOK {
		t.Fatalf("switch code=%d body=%s", rec.Code, rec.Body)
	}
	rec = do(r, http.MethodGet, "/api/v1/settings/switches", nil)
	if !strings.Contains(rec.Body.String(), `"feature.intensive":false`) {
		t.Fatalf("switches body=%s", rec.Body)
	}
}

func TestLiveStreamFiltersByPriority(t *testing.T) {
	r, _, hub := newRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/live?min_priority=high"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial err=%v", err)
	}
	defer conn.CloseNow()

	for hub.Subscribers() == 0 {
		select {
		case <-ctx.Done():
			t.Fatalf("subscriber never registered")
		case <-time.After(10 * time.Millisecond):
		}
	}
	_ = hub.Publish(ctx, notify.Event{Type: notify.EventInsight, ASIN: "B0LOW", Priority: models.PriorityMedium})
	_ = hub.Publish(ctx, notify.Event{Type: notify.EventBuyBoxChange, ASIN: "B0HIGH", Priority: models.PriorityHigh})

	var got notify.Event
	if err := wsjson.Read(ctx, conn, &got); err != nil {
		t.Fatalf("read err=%v", err)
	}
	if got.ASIN != "B0HIGH" || got.Type != notify.EventBuyBoxChange {
		t.Fatalf("event=%+v", got)
	}
}
