package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/passenger.counter/internal/config"
	"github.com/banshee-data/passenger.counter/internal/counting"
	"github.com/banshee-data/passenger.counter/internal/db"
	"github.com/banshee-data/passenger.counter/internal/httputil"
	"github.com/banshee-data/passenger.counter/internal/monitoring"
	"github.com/banshee-data/passenger.counter/internal/stream"
)

func init() {
	monitoring.SetLogger(nil)
}

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type scripted struct {
	inputs []stream.Input
}

func (s *scripted) Next(ctx context.Context) (stream.Input, error) {
	if len(s.inputs) == 0 {
		return stream.Input{}, io.EOF
	}
	in := s.inputs[0]
	s.inputs = s.inputs[1:]
	return in, nil
}

func (s *scripted) Close() error { return nil }

// idle never produces a frame; its stream stays running until the
// context is cancelled.
type idle struct{}

func (idle) Next(ctx context.Context) (stream.Input, error) {
	<-ctx.Done()
	return stream.Input{}, ctx.Err()
}

func (idle) Close() error { return nil }

// walker produces one blob moving through ys, one frame per second.
func walker(start time.Time, area float64, ys ...float64) []stream.Input {
	var out []stream.Input
	for i, y := range ys {
		out = append(out, stream.Input{
			Timestamp:  start.Add(time.Duration(i) * time.Second),
			Width:      640,
			Height:     100,
			FPS:        30,
			Detections: []counting.Detection{{Centroid: counting.Point{X: 50, Y: y}, Area: area}},
		})
	}
	return out
}

type fixture struct {
	srv     *httptest.Server
	manager *stream.Manager
	params  *config.Live
	db      *db.DB
}

func newFixture(t *testing.T, withDB bool) *fixture {
	t.Helper()
	f := &fixture{manager: stream.NewManager(), params: config.NewLive(nil)}

	var sinks []stream.Sink
	var sessions stream.SessionStore
	if withDB {
		database, err := db.NewDB(filepath.Join(t.TempDir(), "api.db"))
		if err != nil {
			t.Fatalf("NewDB() error = %v", err)
		}
		t.Cleanup(func() { database.Close() })
		f.db = database
		sessions = database
		sinks = append(sinks, stream.CrossingRecorder{Store: database})
	}

	// door-1: one passenger out at 08:00, a pair in at 08:20.
	inputs := walker(t0, 1000, 30, 60)
	inputs = append(inputs, walker(t0.Add(20*time.Minute), 20000, 70, 40)...)
	door1 := stream.NewRunner(stream.Config{
		Name: "door-1", Source: &scripted{inputs: inputs}, Params: f.params, Sinks: sinks, Sessions: sessions,
	})
	door2 := stream.NewRunner(stream.Config{Name: "door-2", Source: &scripted{}, Params: f.params})
	for _, r := range []*stream.Runner{door1, door2} {
		if err := f.manager.Add(r); err != nil {
			t.Fatalf("Add(%s) error = %v", r.Name(), err)
		}
	}
	if err := f.manager.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	f.srv = httptest.NewServer(NewServer(f.manager, f.params, f.db).Handler())
	t.Cleanup(f.srv.Close)
	return f
}

// startIdle registers a stream that keeps running until the test ends.
func (f *fixture) startIdle(t *testing.T, name string) {
	t.Helper()
	r := stream.NewRunner(stream.Config{Name: name, Source: idle{}, Params: f.params})
	if err := f.manager.Add(r); err != nil {
		t.Fatalf("Add(%s) error = %v", name, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	deadline := time.Now().Add(time.Second)
	for !r.Running() {
		if time.Now().After(deadline) {
			t.Fatalf("stream %s did not start", name)
		}
		time.Sleep(time.Millisecond)
	}
}

func (f *fixture) get(t *testing.T, path string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("GET %s: decode: %v", path, err)
		}
	}
	return resp.StatusCode
}

func (f *fixture) send(t *testing.T, method, path, body string) int {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, bytes.NewBufferString(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestStreams(t *testing.T) {
	f := newFixture(t, false)

	var list []StreamStatus
	if code := f.get(t, "/api/streams", &list); code != http.StatusOK {
		t.Fatalf("GET /api/streams = %d", code)
	}
	if len(list) != 2 {
		t.Fatalf("got %d streams, want 2", len(list))
	}
	if list[0].Name != "door-1" || list[0].Frame != 4 || list[0].Running {
		t.Errorf("door-1 status = %+v", list[0])
	}
	if list[0].Counters != (counting.Counters{In: 2, Out: 1}) {
		t.Errorf("door-1 counters = %+v, want In=2 Out=1", list[0].Counters)
	}
	if list[1].Updated != nil {
		t.Errorf("door-2 updated = %v, want nil before any frame", list[1].Updated)
	}

	var snap counting.Snapshot
	if code := f.get(t, "/api/streams/door-1", &snap); code != http.StatusOK {
		t.Fatalf("GET /api/streams/door-1 = %d", code)
	}
	if snap.Midline != 50 || snap.Counters != (counting.Counters{In: 2, Out: 1}) {
		t.Errorf("door-1 snapshot midline %d counters %+v", snap.Midline, snap.Counters)
	}

	if code := f.get(t, "/api/streams/nope", nil); code != http.StatusNotFound {
		t.Errorf("GET unknown stream = %d, want 404", code)
	}
}

func TestReset(t *testing.T) {
	f := newFixture(t, false)
	f.startIdle(t, "door-3")
	c := NewClient(f.srv.URL+"/", nil)
	ctx := context.Background()

	if err := c.Reset(ctx, "door-3"); err != nil {
		t.Errorf("Reset(door-3) error = %v", err)
	}
	if err := c.Reset(ctx, "nope"); err == nil || !strings.Contains(err.Error(), "unknown stream") {
		t.Errorf("Reset(nope) error = %v, want unknown stream", err)
	}

	// door-1 has finished: the reset is refused and the counters stay.
	if code := f.send(t, http.MethodPost, "/api/streams/door-1/reset", ""); code != http.StatusConflict {
		t.Errorf("reset of a stopped stream = %d, want 409", code)
	}
	var snap counting.Snapshot
	f.get(t, "/api/streams/door-1", &snap)
	if snap.Counters != (counting.Counters{In: 2, Out: 1}) {
		t.Errorf("door-1 counters after refused reset = %+v", snap.Counters)
	}

	resp, err := http.Post(f.srv.URL+"/api/reset", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	var all struct {
		Streams []string `json:"streams"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&all); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("POST /api/reset = %d, want 202", resp.StatusCode)
	}
	if diff := cmp.Diff([]string{"door-3"}, all.Streams); diff != "" {
		t.Errorf("reset streams mismatch (-want +got):\n%s", diff)
	}

	if code := f.get(t, "/api/reset", nil); code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/reset = %d, want 405", code)
	}

	streams, err := c.Streams(ctx)
	if err != nil {
		t.Fatalf("Streams() error = %v", err)
	}
	if len(streams) != 3 {
		t.Errorf("got %d streams, want 3", len(streams))
	}
}

func TestParams_PatchMerges(t *testing.T) {
	f := newFixture(t, false)
	c := NewClient(f.srv.URL, nil)
	ctx := context.Background()

	if err := c.SetParams(ctx, map[string]interface{}{"x_near": 55}); err != nil {
		t.Fatalf("SetParams() error = %v", err)
	}
	if err := c.SetParams(ctx, map[string]interface{}{"y_near": 70}); err != nil {
		t.Fatalf("SetParams() error = %v", err)
	}
	cfg := f.params.Get()
	if cfg.GetXNear() != 55 || cfg.GetYNear() != 70 {
		t.Errorf("x_near %v y_near %v, want 55 and 70", cfg.GetXNear(), cfg.GetYNear())
	}
	if v := f.params.Version(); v != 2 {
		t.Errorf("version = %d, want 2", v)
	}

	if err := c.SetParams(ctx, map[string]interface{}{"x_near": -1}); err == nil || !strings.Contains(err.Error(), "non-negative") {
		t.Errorf("negative x_near error = %v", err)
	}
	if err := c.SetParams(ctx, map[string]interface{}{"bogus": 1}); err == nil {
		t.Error("expected an error for an unknown key")
	}
	if got := f.params.Get().GetXNear(); got != 55 {
		t.Errorf("x_near after rejected updates = %v, want 55", got)
	}

	var got struct {
		Version uint64                 `json:"version"`
		Params  map[string]interface{} `json:"params"`
	}
	if code := f.get(t, "/api/params", &got); code != http.StatusOK {
		t.Fatalf("GET /api/params = %d", code)
	}
	if got.Version != 2 || got.Params["x_near"] != 55.0 {
		t.Errorf("GET /api/params = version %d x_near %v", got.Version, got.Params["x_near"])
	}
}

func TestParams_PutReplaces(t *testing.T) {
	f := newFixture(t, false)
	if code := f.send(t, http.MethodPatch, "/api/params", `{"x_near":55,"min_area":800}`); code != http.StatusOK {
		t.Fatalf("PATCH /api/params = %d", code)
	}

	if code := f.send(t, http.MethodPut, "/api/params", `{"y_near":70}`); code != http.StatusOK {
		t.Fatalf("PUT /api/params = %d", code)
	}
	cfg := f.params.Get()
	if cfg.XNear != nil || cfg.MinArea != nil {
		t.Errorf("PUT kept omitted keys: x_near %v min_area %v", cfg.XNear, cfg.MinArea)
	}
	if cfg.GetXNear() != 40 || cfg.GetYNear() != 70 {
		t.Errorf("x_near %v y_near %v, want default 40 and 70", cfg.GetXNear(), cfg.GetYNear())
	}

	if code := f.send(t, http.MethodPut, "/api/params", `{"bogus":1}`); code != http.StatusBadRequest {
		t.Errorf("PUT unknown key = %d, want 400", code)
	}
	if got := f.params.Get().GetYNear(); got != 70 {
		t.Errorf("y_near after rejected PUT = %v, want 70", got)
	}
	if code := f.send(t, http.MethodDelete, "/api/params", ""); code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE /api/params = %d, want 405", code)
	}
}

func TestHistory(t *testing.T) {
	f := newFixture(t, true)

	var sessions []db.Session
	if code := f.get(t, "/api/sessions?stream=door-1", &sessions); code != http.StatusOK {
		t.Fatalf("GET /api/sessions = %d", code)
	}
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}
	if sessions[0].In != 2 || sessions[0].EndedAt == nil {
		t.Errorf("session = %+v, want In=2 and ended", sessions[0])
	}

	var crossings []db.Crossing
	if code := f.get(t, "/api/crossings?stream=door-1", &crossings); code != http.StatusOK {
		t.Fatalf("GET /api/crossings = %d", code)
	}
	if len(crossings) != 2 {
		t.Fatalf("got %d crossings, want 2", len(crossings))
	}
	if crossings[0].Direction != counting.DirectionIn || crossings[0].Increment != 2 {
		t.Errorf("newest crossing = %+v, want in +2", crossings[0])
	}

	f.get(t, "/api/crossings?since="+t0.Add(time.Minute).Format(time.RFC3339), &crossings)
	if len(crossings) != 1 {
		t.Errorf("got %d crossings since 08:01, want 1", len(crossings))
	}

	var counts struct {
		Interval string            `json:"interval"`
		Totals   counting.Counters `json:"totals"`
		Buckets  []db.CountBucket  `json:"buckets"`
	}
	if code := f.get(t, "/api/counts?stream=door-1&interval=10m", &counts); code != http.StatusOK {
		t.Fatalf("GET /api/counts = %d", code)
	}
	if counts.Interval != "10m0s" || counts.Totals != (counting.Counters{In: 2, Out: 1}) {
		t.Errorf("counts = interval %s totals %+v", counts.Interval, counts.Totals)
	}
	if len(counts.Buckets) != 3 {
		t.Fatalf("got %d buckets, want 3", len(counts.Buckets))
	}
	if counts.Buckets[0].Out != 1 || counts.Buckets[2].In != 2 {
		t.Errorf("buckets = %+v", counts.Buckets)
	}

	var summary map[string]interface{}
	if code := f.get(t, "/api/report/summary?interval=10m", &summary); code != http.StatusOK {
		t.Fatalf("GET /api/report/summary = %d", code)
	}
	if summary["buckets"] != 3.0 {
		t.Errorf("summary buckets = %v, want 3", summary["buckets"])
	}

	resp, err := http.Get(f.srv.URL + "/api/report/chart.png?interval=1h")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Errorf("chart = %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	resp, err = http.Get(f.srv.URL + "/report?stream=door-1")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		t.Errorf("report page = %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	for _, bad := range []string{
		"/api/counts?interval=5s",
		"/api/counts?interval=soon",
		"/api/crossings?limit=0",
		"/api/crossings?since=yesterday",
	} {
		if code := f.get(t, bad, nil); code != http.StatusBadRequest {
			t.Errorf("GET %s = %d, want 400", bad, code)
		}
	}
}

func TestHistoryWithoutDB(t *testing.T) {
	f := newFixture(t, false)
	for _, path := range []string{"/api/sessions", "/api/crossings", "/api/counts", "/report"} {
		if code := f.get(t, path, nil); code != http.StatusServiceUnavailable {
			t.Errorf("GET %s = %d, want 503", path, code)
		}
	}
}

func TestVersion(t *testing.T) {
	f := newFixture(t, false)
	var v map[string]string
	if code := f.get(t, "/api/version", &v); code != http.StatusOK {
		t.Fatalf("GET /api/version = %d", code)
	}
	if v["version"] != "dev" {
		t.Errorf("version = %q, want dev", v["version"])
	}
}

func TestClientWithMock(t *testing.T) {
	m := httputil.NewMockHTTPClient().AddResponse(http.StatusOK, `[{"name":"cam","counters":{"in":1,"out":0}}]`)
	c := NewClient("http://pcn.local", m)
	streams, err := c.Streams(context.Background())
	if err != nil {
		t.Fatalf("Streams() error = %v", err)
	}
	if len(streams) != 1 || streams[0].Counters.In != 1 {
		t.Errorf("streams = %+v", streams)
	}
	if got := m.Requests[0].URL.String(); got != "http://pcn.local/api/streams" {
		t.Errorf("request URL = %s", got)
	}
}
