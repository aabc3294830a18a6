package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/shooting-star/ledger"
	"github.com/onnwee/shooting-star/schedule"
	"github.com/onnwee/shooting-star/star"
	"github.com/onnwee/shooting-star/testutil"
)

type fakeSky struct {
	active *star.Active
}

func (s fakeSky) State() star.State {
	if s.active != nil {
		return star.Armed
	}
	return star.Idle
}

func (s fakeSky) Snapshot() (star.Active, bool) {
	if s.active == nil {
		return star.Active{}, false
	}
	return *s.active, true
}

type fixedSchedule struct {
	day *schedule.Day
	err error
}

func (f fixedSchedule) Load(ctx context.Context) (*schedule.Day, error) { return f.day, f.err }

type fakePlatform struct {
	connected  bool
	refreshErr error
	refreshed  int
}

func (p *fakePlatform) Name() string { return "fake" }

func (p *fakePlatform) Connected() bool { return p.connected }

func (p *fakePlatform) RefreshCommands(ctx context.Context) error {
	p.refreshed++
	return p.refreshErr
}

func testDay() *schedule.Day {
	return &schedule.Day{
		Date: schedule.Date{Year: 2026, Month: time.October, Day: 15},
		Events: []schedule.Event{
			{Time: schedule.TimeOfDay{Hour: 3}, ChannelID: 10, Message: "rawr", Completed: true},
			{Time: schedule.TimeOfDay{Hour: 9}, ChannelID: 20, Message: "ithaca", Completed: true},
			{Time: schedule.TimeOfDay{Hour: 18}, ChannelID: 10, Message: "slime"},
		},
	}
}

func newTestDeps(t *testing.T) (Deps, *ledger.Ledger, *fakePlatform) {
	t.Helper()
	dbx, d := testutil.SetupTestDB(t)
	l := ledger.New(dbx, d)
	p := &fakePlatform{connected: true}
	return Deps{
		DB:         dbx,
		Sky:        fakeSky{},
		Schedule:   fixedSchedule{day: testDay()},
		Ledger:     l,
		Platform:   p,
		AdminToken: "secret",
	}, l, p
}

func serve(h http.Handler, method, path string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthzOK(t *testing.T) {
	d, _, _ := newTestDeps(t)
	rr := serve(NewMux(d), http.MethodGet, "/healthz", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}
	if got := rr.Body.String(); got != "ok" {
		t.Fatalf("expected ok body, got %q", got)
	}
	if rr.Header().Get("X-Correlation-ID") == "" {
		t.Fatal("missing correlation id header")
	}
}

func TestCorrelationIDReused(t *testing.T) {
	d, _, _ := newTestDeps(t)
	rr := serve(NewMux(d), http.MethodGet, "/healthz", map[string]string{"X-Correlation-ID": "abc-123"})
	if got := rr.Header().Get("X-Correlation-ID"); got != "abc-123" {
		t.Fatalf("correlation id = %q, want abc-123", got)
	}
}

func TestStatusHidesUnfiredWords(t *testing.T) {
	d, _, _ := newTestDeps(t)
	d.Sky = fakeSky{active: &star.Active{ID: "s1", Word: "ithaca", ChannelID: 20}}

	rr := serve(NewMux(d), http.MethodGet, "/status", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := rr.Body.String()
	if strings.Contains(body, "ithaca") || strings.Contains(body, "slime") {
		t.Fatalf("status leaked a catchable word: %s", body)
	}

	var resp statusResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.State != "armed" || resp.Star == nil || resp.Star.ID != "s1" {
		t.Fatalf("state = %q star = %+v", resp.State, resp.Star)
	}
	if resp.Date != "2026-10-15" || resp.Remaining != 1 || len(resp.Events) != 3 {
		t.Fatalf("schedule = %s remaining=%d events=%d", resp.Date, resp.Remaining, len(resp.Events))
	}
	if resp.Events[0].Message != "rawr" {
		t.Fatalf("fired word hidden: %+v", resp.Events[0])
	}
	if resp.Platform != "fake" || !resp.Connected {
		t.Fatalf("platform = %q connected=%v", resp.Platform, resp.Connected)
	}
	if resp.Tracing {
		t.Fatal("tracing reported on without an OTLP endpoint")
	}
}

func TestStatusScheduleError(t *testing.T) {
	d, _, _ := newTestDeps(t)
	d.Schedule = fixedSchedule{err: errors.New("no channels")}
	rr := serve(NewMux(d), http.MethodGet, "/status", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "no channels") {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestScheduleEndpointsNeverGenerate(t *testing.T) {
	d, _, _ := newTestDeps(t)
	path := filepath.Join(t.TempDir(), "schedule.json")
	d.Schedule = schedule.NewFileStore(path)
	h := NewMux(d)

	rr := serve(h, http.MethodGet, "/status", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp statusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Date != "" || len(resp.Events) != 0 {
		t.Fatalf("status invented a schedule: %+v", resp)
	}

	rr = serve(h, http.MethodGet, "/admin/schedule", map[string]string{"X-Admin-Token": "secret"})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("admin schedule with nothing stored: status = %d", rr.Code)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("read endpoints wrote the schedule file: %v", err)
	}
}

func TestLeaderboard(t *testing.T) {
	d, l, _ := newTestDeps(t)
	ctx := context.Background()
	for i := int64(1); i <= 12; i++ {
		if _, err := l.AddCoins(ctx, i, fmt.Sprintf("user%d", i), i*10); err != nil {
			t.Fatal(err)
		}
	}
	h := NewMux(d)

	var resp struct {
		Entries []ledger.Entry `json:"entries"`
	}
	rr := serve(h, http.MethodGet, "/leaderboard", nil)
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Entries) != 10 || resp.Entries[0].UserID != 12 || resp.Entries[0].Coins != 120 {
		t.Fatalf("default leaderboard = %+v", resp.Entries)
	}

	rr = serve(h, http.MethodGet, "/leaderboard?limit=3", nil)
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Entries) != 3 {
		t.Fatalf("limit=3 returned %d entries", len(resp.Entries))
	}

	if rr := serve(h, http.MethodGet, "/leaderboard?limit=zero", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", rr.Code)
	}
}

func TestAdminAuth(t *testing.T) {
	d, _, p := newTestDeps(t)
	h := NewMux(d)

	if rr := serve(h, http.MethodGet, "/admin/schedule", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d", rr.Code)
	}
	if rr := serve(h, http.MethodGet, "/admin/schedule", map[string]string{"X-Admin-Token": "wrong"}); rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: status = %d", rr.Code)
	}
	rr := serve(h, http.MethodGet, "/admin/schedule", map[string]string{"X-Admin-Token": "secret"})
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "slime") {
		t.Fatalf("admin schedule: status = %d body=%s", rr.Code, rr.Body.String())
	}

	rr = serve(h, http.MethodPost, "/admin/refresh-commands", map[string]string{"Authorization": "Bearer secret"})
	if rr.Code != http.StatusOK || p.refreshed != 1 {
		t.Fatalf("refresh: status = %d refreshed=%d", rr.Code, p.refreshed)
	}
	p.refreshErr = errors.New("missing access")
	if rr := serve(h, http.MethodPost, "/admin/refresh-commands", map[string]string{"Authorization": "Bearer secret"}); rr.Code != http.StatusBadGateway {
		t.Fatalf("failed refresh: status = %d", rr.Code)
	}
}

func TestAdminDisabledWithoutToken(t *testing.T) {
	d, _, _ := newTestDeps(t)
	d.AdminToken = ""
	rr := serve(NewMux(d), http.MethodGet, "/admin/schedule", map[string]string{"X-Admin-Token": ""})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	d, _, _ := newTestDeps(t)
	if rr := serve(NewMux(d), http.MethodGet, "/metrics", nil); rr.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rr.Code)
	}
}

func TestStartAndShutdown(t *testing.T) {
	d, _, _ := newTestDeps(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Run server in background on random port by using :0
	done := make(chan error, 1)
	go func() { done <- Start(ctx, d, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("server returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
