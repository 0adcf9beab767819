package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/elitemining/internal/fsutil"
	"github.com/banshee-data/elitemining/internal/galaxy"
	"github.com/banshee-data/elitemining/internal/hotspotdb"
	"github.com/banshee-data/elitemining/internal/ringfinder"
	"github.com/banshee-data/elitemining/internal/session"
	"github.com/banshee-data/elitemining/internal/sessionlog"
	"github.com/banshee-data/elitemining/internal/timeutil"
)

type testServer struct {
	*Server
	store *hotspotdb.DB
	gal   *galaxy.DB
	clock *timeutil.MockClock
	fs    *fsutil.MemoryFileSystem
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()

	store, err := hotspotdb.Open(filepath.Join(dir, "hotspots.db"), nil)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	gal, err := galaxy.Create(filepath.Join(dir, "galaxy.db"))
	if err != nil {
		t.Fatalf("Failed to create galaxy db: %v", err)
	}
	t.Cleanup(func() { gal.Close() })

	clock := timeutil.NewMockClock(time.Date(2026, 2, 1, 18, 0, 0, 0, time.UTC))
	fs := fsutil.NewMemoryFileSystem()

	srv := NewServer(Config{
		Address: "127.0.0.1:0",
		Finder:  &ringfinder.Finder{Hotspots: store, Galaxy: gal},
		Session: session.New(clock, nil),
		Log:     &sessionlog.Writer{Dir: "reports", FS: fs},
		Store:   store,
	})
	return &testServer{Server: srv, store: store, gal: gal, clock: clock, fs: fs}
}

func (ts *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" && strings.HasPrefix(body, "{") {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)
	return w
}

func TestRingFinderEndpoint(t *testing.T) {
	ts := newTestServer(t)
	if err := ts.gal.InsertSystem(galaxy.System{Name: "Origin"}); err != nil {
		t.Fatalf("InsertSystem failed: %v", err)
	}
	if err := ts.gal.InsertSystem(galaxy.System{Name: "Alpha", X: 7}); err != nil {
		t.Fatalf("InsertSystem failed: %v", err)
	}
	ringType := "Metallic"
	if err := ts.store.UpsertHotspot(hotspotdb.Hotspot{
		System: "Alpha", Body: "1 A Ring", Material: "Platinum", Count: 3,
		ScanDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Ring:     hotspotdb.RingMetadata{RingType: &ringType},
	}); err != nil {
		t.Fatalf("UpsertHotspot failed: %v", err)
	}

	w := ts.do(t, http.MethodGet, "/api/ringfinder?system=Origin&material=Platinum&max_distance=20", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body)
	}
	var results []ringfinder.Result
	if err := json.Unmarshal(w.Body.Bytes(), &results); err != nil {
		t.Fatalf("Bad response body: %v", err)
	}
	if len(results) != 1 || results[0].System != "Alpha" {
		t.Errorf("Unexpected results: %+v", results)
	}

	if w := ts.do(t, http.MethodGet, "/api/ringfinder", ""); w.Code != http.StatusBadRequest {
		t.Errorf("Missing system should be 400, got %d", w.Code)
	}
	if w := ts.do(t, http.MethodGet, "/api/ringfinder?system=Nowhere", ""); w.Code != http.StatusNotFound {
		t.Errorf("Unknown system should be 404, got %d", w.Code)
	}
	if w := ts.do(t, http.MethodPost, "/api/ringfinder?system=Origin", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST should be 405, got %d", w.Code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t)

	form := url.Values{"system": {"Paesia"}, "body": {"2 A Ring"}}.Encode()
	w := ts.do(t, http.MethodPost, "/api/session/start", form)
	if w.Code != http.StatusOK {
		t.Fatalf("Start failed: %d %s", w.Code, w.Body)
	}
	if w := ts.do(t, http.MethodPost, "/api/session/start", form); w.Code != http.StatusConflict {
		t.Errorf("Second start should conflict, got %d", w.Code)
	}

	w = ts.do(t, http.MethodGet, "/api/session", "")
	var st session.Status
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("Bad status body: %v", err)
	}
	if st.State != "active" || st.System != "Paesia" {
		t.Errorf("Unexpected status: %+v", st)
	}

	ts.clock.Advance(10 * time.Minute)
	w = ts.do(t, http.MethodPost, "/api/session/stop", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Stop failed: %d %s", w.Code, w.Body)
	}
	var stop struct {
		Result session.SessionResult `json:"result"`
		Report string                `json:"report"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &stop); err != nil {
		t.Fatalf("Bad stop body: %v", err)
	}
	if stop.Result.System != "Paesia" || stop.Report == "" {
		t.Errorf("Unexpected stop response: %+v", stop)
	}
	if !ts.fs.Exists(stop.Report) {
		t.Errorf("Report %s not written", stop.Report)
	}

	if w := ts.do(t, http.MethodPost, "/api/session/stop", ""); w.Code != http.StatusConflict {
		t.Errorf("Stop while idle should conflict, got %d", w.Code)
	}
	if w := ts.do(t, http.MethodPost, "/api/session/cancel", ""); w.Code != http.StatusConflict {
		t.Errorf("Cancel while idle should conflict, got %d", w.Code)
	}
}

func TestSessionAmendEndpoint(t *testing.T) {
	ts := newTestServer(t)

	ts.do(t, http.MethodPost, "/api/session/start", url.Values{"system": {"Paesia"}}.Encode())
	ts.clock.Advance(time.Minute)
	w := ts.do(t, http.MethodPost, "/api/session/stop", "")
	var stop struct {
		Report string `json:"report"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &stop); err != nil {
		t.Fatalf("Bad stop body: %v", err)
	}

	body := `{"report":"` + stop.Report + `","materials":{"Platinum":4}}`
	if w := ts.do(t, http.MethodPost, "/api/session/amend", body); w.Code != http.StatusOK {
		t.Fatalf("Amend failed: %d %s", w.Code, w.Body)
	}

	data, err := ts.fs.ReadFile(stop.Report)
	if err != nil {
		t.Fatalf("Report unreadable: %v", err)
	}
	rep, err := sessionlog.ParseReport(data)
	if err != nil {
		t.Fatalf("ParseReport failed: %v", err)
	}
	if rep.TotalTons != 4 || rep.Materials["Platinum"] != 4 {
		t.Errorf("Amendment not applied: %+v", rep)
	}

	if w := ts.do(t, http.MethodPost, "/api/session/amend", `{"report":""}`); w.Code != http.StatusBadRequest {
		t.Errorf("Empty amendment should be 400, got %d", w.Code)
	}
}

func TestVisitedEndpoint(t *testing.T) {
	ts := newTestServer(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := ts.store.AddVisitedSystem("Paesia", base, nil); err != nil {
		t.Fatalf("AddVisitedSystem failed: %v", err)
	}
	if err := ts.store.AddVisitedSystem("Delkar", base.Add(time.Hour), nil); err != nil {
		t.Fatalf("AddVisitedSystem failed: %v", err)
	}

	w := ts.do(t, http.MethodGet, "/api/visited?limit=10", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body)
	}
	var visited []hotspotdb.VisitedSystem
	if err := json.Unmarshal(w.Body.Bytes(), &visited); err != nil {
		t.Fatalf("Bad response body: %v", err)
	}
	if len(visited) != 2 || visited[0].Name != "Delkar" {
		t.Errorf("Expected newest first, got %+v", visited)
	}

	if w := ts.do(t, http.MethodGet, "/api/visited?limit=x", ""); w.Code != http.StatusBadRequest {
		t.Errorf("Bad limit should be 400, got %d", w.Code)
	}
}
