package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/hexterrain/internal/editor"
	"github.com/talgya/hexterrain/internal/engine"
	"github.com/talgya/hexterrain/internal/mesh"
	"github.com/talgya/hexterrain/internal/world"
)

const testKey = "test-admin-key"

func newTestServer(t *testing.T, strokesPerMin int) (*Server, *httptest.Server) {
	t.Helper()
	g, err := world.NewGrid(8, 6, 4, 3, world.NewMetrics(5))
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	s := &Server{
		Session:       engine.NewSession(g, editor.New(editor.DefaultLimits()), mesh.NewBuilder(), nil),
		Eng:           engine.NewEngine(),
		AdminKey:      testKey,
		StrokesPerMin: strokesPerMin,
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func postStroke(t *testing.T, ts *httptest.Server, key string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/stroke", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK && v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func riverStroke() editor.Stroke {
	return editor.Stroke{
		Settings: editor.Settings{River: editor.Yes},
		Cells:    []world.HexCoordinates{world.FromOffset(1, 2), world.FromOffset(2, 2)},
	}
}

func TestStrokeRequiresAdmin(t *testing.T) {
	_, ts := newTestServer(t, 0)
	if resp := postStroke(t, ts, "", riverStroke()); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token: status %d, want 401", resp.StatusCode)
	}
	if resp := postStroke(t, ts, "wrong", riverStroke()); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad token: status %d, want 401", resp.StatusCode)
	}
	resp, err := http.Get(ts.URL + "/api/v1/stroke")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET stroke: status %d, want 405", resp.StatusCode)
	}
}

func TestStrokeAppliesAndShowsInMap(t *testing.T) {
	_, ts := newTestServer(t, 0)
	resp := postStroke(t, ts, testKey, riverStroke())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var out struct {
		ID     string        `json:"id"`
		Result editor.Result `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.ID == "" || out.Result.RiversAdded != 1 {
		t.Errorf("response = %+v", out)
	}

	src := world.FromOffset(1, 2)
	var detail struct {
		Cell cellEntry `json:"cell"`
	}
	url := ts.URL + "/api/v1/cell/" + strconv.Itoa(src.X) + "/" + strconv.Itoa(src.Z)
	if code := getJSON(t, url, &detail); code != http.StatusOK {
		t.Fatalf("cell detail status %d", code)
	}
	if detail.Cell.RiverOut != "E" {
		t.Errorf("river_out = %q, want E", detail.Cell.RiverOut)
	}

	var check map[string]any
	if code := getJSON(t, ts.URL+"/api/v1/check", &check); code != http.StatusOK || check["ok"] != true {
		t.Errorf("check = %d %v", code, check)
	}
}

func TestStrokeValidation(t *testing.T) {
	_, ts := newTestServer(t, 0)
	bad := riverStroke()
	bad.Settings.BrushSize = 99
	if resp := postStroke(t, ts, testKey, bad); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("oversized brush: status %d, want 400", resp.StatusCode)
	}
	if resp := postStroke(t, ts, testKey, editor.Stroke{}); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty stroke: status %d, want 400", resp.StatusCode)
	}
	if resp := postStroke(t, ts, testKey, map[string]any{"bogus": 1}); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown field: status %d, want 400", resp.StatusCode)
	}
}

func TestStrokeRateLimited(t *testing.T) {
	_, ts := newTestServer(t, 2)
	for i := 0; i < 2; i++ {
		if resp := postStroke(t, ts, testKey, riverStroke()); resp.StatusCode != http.StatusOK {
			t.Fatalf("stroke %d: status %d", i, resp.StatusCode)
		}
	}
	resp := postStroke(t, ts, testKey, riverStroke())
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("third stroke: status %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}

func TestMapAndChunks(t *testing.T) {
	s, ts := newTestServer(t, 0)
	var m struct {
		Width  int         `json:"width"`
		Height int         `json:"height"`
		Cells  []cellEntry `json:"cells"`
	}
	if code := getJSON(t, ts.URL+"/api/v1/map", &m); code != http.StatusOK {
		t.Fatalf("map status %d", code)
	}
	if m.Width != 8 || m.Height != 6 || len(m.Cells) != 48 {
		t.Errorf("map = %dx%d with %d cells", m.Width, m.Height, len(m.Cells))
	}
	if m.Cells[0].Color != "#ffffff" {
		t.Errorf("default colour = %q", m.Cells[0].Color)
	}

	s.Session.Flush(1)
	var chunks struct {
		Chunks []struct {
			Dirty    bool   `json:"dirty"`
			Rebuilds uint64 `json:"rebuilds"`
		} `json:"chunks"`
		Meshes []mesh.ChunkMesh `json:"meshes"`
	}
	if code := getJSON(t, ts.URL+"/api/v1/chunks", &chunks); code != http.StatusOK {
		t.Fatalf("chunks status %d", code)
	}
	if len(chunks.Chunks) != 4 || len(chunks.Meshes) != 4 {
		t.Fatalf("chunks = %d, meshes = %d; want 4 each", len(chunks.Chunks), len(chunks.Meshes))
	}
	for i, ch := range chunks.Chunks {
		if ch.Dirty || ch.Rebuilds != 1 {
			t.Errorf("chunk %d = %+v after one flush", i, ch)
		}
	}
}

func TestCellDetailErrors(t *testing.T) {
	_, ts := newTestServer(t, 0)
	tests := []struct {
		path string
		code int
	}{
		{"/api/v1/cell/", http.StatusBadRequest},
		{"/api/v1/cell/a/b", http.StatusBadRequest},
		{"/api/v1/cell/100/100", http.StatusNotFound},
	}
	for _, tc := range tests {
		if code := getJSON(t, ts.URL+tc.path, nil); code != tc.code {
			t.Errorf("GET %s = %d, want %d", tc.path, code, tc.code)
		}
	}
}

func TestStatus(t *testing.T) {
	_, ts := newTestServer(t, 0)
	var st map[string]any
	if code := getJSON(t, ts.URL+"/api/v1/status", &st); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if st["cells"] != float64(48) || st["chunks"] != float64(4) {
		t.Errorf("status = %v", st)
	}
	if started, _ := st["started"].(string); !strings.Contains(started, "ago") && started != "now" {
		t.Errorf("started = %q", started)
	}
}

func TestStreamDeliversEvents(t *testing.T) {
	s, ts := newTestServer(t, 0)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Events emitted before the handler subscribes arrive in the catch-up batch.
	if resp := postStroke(t, ts, testKey, riverStroke()); resp.StatusCode != http.StatusOK {
		t.Fatalf("stroke status %d", resp.StatusCode)
	}
	s.Session.Flush(9)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	seen := map[string]bool{}
	for !seen["rebuild"] {
		var e engine.Event
		if err := conn.ReadJSON(&e); err != nil {
			t.Fatalf("read: %v (seen %v)", err, seen)
		}
		seen[e.Category] = true
	}
	if !seen["stroke"] {
		t.Error("stroke event not delivered")
	}
}

func TestClientIP(t *testing.T) {
	none := newProxySet(nil)
	proxies := newProxySet([]string{"10.0.0.7", "10.0.0.1"})

	tests := []struct {
		name    string
		remote  string
		xff     string
		trusted proxySet
		want    string
	}{
		{"direct", "10.0.0.7:5123", "", none, "10.0.0.7"},
		{"untrusted peer ignores header", "198.51.100.4:80", "203.0.113.9", none, "198.51.100.4"},
		{"untrusted peer with proxy list", "198.51.100.4:80", "203.0.113.9", proxies, "198.51.100.4"},
		{"trusted proxy", "10.0.0.7:5123", "203.0.113.9", proxies, "203.0.113.9"},
		{"rightmost untrusted hop", "10.0.0.7:5123", "1.2.3.4, 203.0.113.9, 10.0.0.1", proxies, "203.0.113.9"},
		{"trusted proxy without header", "10.0.0.7:5123", "", proxies, "10.0.0.7"},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = tt.remote
		if tt.xff != "" {
			r.Header.Set("X-Forwarded-For", tt.xff)
		}
		if ip := clientIP(r, tt.trusted); ip != tt.want {
			t.Errorf("%s: clientIP = %q, want %q", tt.name, ip, tt.want)
		}
	}
}

func TestStrokeRateLimitIgnoresSpoofedForwarding(t *testing.T) {
	_, ts := newTestServer(t, 1)
	send := func(xff string) int {
		data, _ := json.Marshal(riverStroke())
		req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/stroke", bytes.NewReader(data))
		req.Header.Set("Authorization", "Bearer "+testKey)
		req.Header.Set("X-Forwarded-For", xff)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}
	if code := send("203.0.113.1"); code != http.StatusOK {
		t.Fatalf("first stroke = %d", code)
	}
	if code := send("203.0.113.2"); code != http.StatusTooManyRequests {
		t.Errorf("stroke with a fresh forwarded address = %d, want 429", code)
	}
}

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Stop()
	now := time.Now()
	if !rl.allowAt("a", now) || !rl.allowAt("a", now) {
		t.Fatal("first two requests refused")
	}
	if rl.allowAt("a", now) {
		t.Error("third request in window allowed")
	}
	if !rl.allowAt("b", now) {
		t.Error("other client refused")
	}
	if !rl.allowAt("a", now.Add(time.Minute)) {
		t.Error("request after window refused")
	}
	rl.cleanup(now.Add(10 * time.Minute))
	if len(rl.buckets) != 0 {
		t.Errorf("%d buckets survived cleanup", len(rl.buckets))
	}
}
