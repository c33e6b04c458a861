// internal/agent/agent_test.go
package agent

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/signalnine/rowdelta/internal/config"
	"github.com/signalnine/rowdelta/internal/logging"
	"github.com/signalnine/rowdelta/internal/results"
)

type request struct {
	path        string
	auth        string
	contentType string
	body        []byte
}

// fakeCollector records every request and answers with status
type fakeCollector struct {
	mu       sync.Mutex
	requests []request
	status   int
	failures int // requests answered 504 after being recorded
}

func (f *fakeCollector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, request{
		path:        r.URL.Path,
		auth:        r.Header.Get("Authorization"),
		contentType: r.Header.Get("Content-Type"),
		body:        body,
	})
	if f.failures > 0 {
		f.failures--
		http.Error(w, "gateway timeout", http.StatusGatewayTimeout)
		return
	}
	if f.status != 0 && f.status != http.StatusOK {
		http.Error(w, "nope", f.status)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (f *fakeCollector) setStatus(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

func (f *fakeCollector) take() []request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.requests
	f.requests = nil
	return out
}

// sequence returns each snapshot in turn, repeating the last one
func sequence(snaps ...results.Snapshot) Source {
	i := 0
	return SourceFunc(func(ctx context.Context) (results.Snapshot, error) {
		s := snaps[i]
		if i < len(snaps)-1 {
			i++
		}
		return s, nil
	})
}

func row(kv ...string) results.Row {
	var r results.Row
	for i := 0; i+1 < len(kv); i += 2 {
		r.Set(kv[i], kv[i+1])
	}
	return r
}

var fixedNow = time.Date(2014, 8, 25, 12, 10, 57, 0, time.UTC)

func newTestAgent(t *testing.T, url string, queries []config.QueryConfig, opts ...Option) *Agent {
	t.Helper()
	cfg := &config.AgentConfig{
		CollectorURL:   url + "/ingest",
		PollInterval:   time.Minute,
		StateFile:      filepath.Join(t.TempDir(), "epoch"),
		HostIdentifier: "test-host",
		APIKey:         "secret",
		Queries:        queries,
	}
	opts = append(opts, WithClock(func() time.Time { return fixedNow }))
	a := New(cfg, logging.Discard(), opts...)
	if err := a.Start(); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	return a
}

func TestAgentSendsDiffs(t *testing.T) {
	fc := &fakeCollector{}
	srv := httptest.NewServer(fc)
	defer srv.Close()

	first := results.Snapshot{row("pid", "1", "name", "init")}
	second := results.Snapshot{row("name", "init", "pid", "1"), row("pid", "2", "name", "sshd")}
	third := results.Snapshot{row("pid", "2", "name", "sshd")}

	a := newTestAgent(t, srv.URL,
		[]config.QueryConfig{{Name: "processes", Command: []string{"unused"}, Columns: []string{"pid", "name"}, Format: config.FormatBatch}},
		WithSource("processes", sequence(first, second, third, third)))

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if err := a.RunOnce(ctx); err != nil {
			t.Fatalf("RunOnce #%d error: %v", i, err)
		}
	}

	reqs := fc.take()
	if len(reqs) != 3 {
		t.Fatalf("collector got %d requests, want 3 (no request for an empty diff)", len(reqs))
	}
	if reqs[0].path != "/ingest" {
		t.Errorf("path = %q, want /ingest", reqs[0].path)
	}
	if reqs[0].auth != "Bearer secret" {
		t.Errorf("Authorization = %q, want %q", reqs[0].auth, "Bearer secret")
	}

	want := []results.DiffResults{
		{Added: first, Removed: results.Snapshot{}},
		{Added: results.Snapshot{row("pid", "2", "name", "sshd")}, Removed: results.Snapshot{}},
		{Added: results.Snapshot{}, Removed: results.Snapshot{row("pid", "1", "name", "init")}},
	}
	for i, req := range reqs {
		item, err := results.DecodeLogItem(req.body)
		if err != nil {
			t.Fatalf("request %d: DecodeLogItem error: %v", i, err)
		}
		if !item.Results.Equal(want[i]) {
			t.Errorf("request %d: results = %s, want %s", i, results.EncodeDiffResults(item.Results, results.Natural()), results.EncodeDiffResults(want[i], results.Natural()))
		}
		if item.Counter != uint64(i) {
			t.Errorf("request %d: counter = %d, want %d", i, item.Counter, i)
		}
		if item.Epoch != 1 {
			t.Errorf("request %d: epoch = %d, want 1", i, item.Epoch)
		}
		if item.Identifier != "test-host" || item.Name != "processes" {
			t.Errorf("request %d: key = %+v", i, item.Key())
		}
		if item.Time != 1408968657 {
			t.Errorf("request %d: unixTime = %d, want 1408968657", i, item.Time)
		}
	}

	// The removed row came from a snapshot that set name first
	if !bytes.Contains(reqs[2].body, []byte(`{"pid":"1","name":"init"}`)) {
		t.Errorf("column order not applied: %s", reqs[2].body)
	}
}

func TestAgentRetriesAfterFailedSend(t *testing.T) {
	fc := &fakeCollector{status: http.StatusServiceUnavailable}
	srv := httptest.NewServer(fc)
	defer srv.Close()

	snap := results.Snapshot{row("user", "root")}
	a := newTestAgent(t, srv.URL,
		[]config.QueryConfig{{Name: "users", Command: []string{"unused"}, Format: config.FormatBatch}},
		WithSource("users", sequence(snap)))

	err := a.RunOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "collector returned 503") {
		t.Fatalf("RunOnce error = %v, want collector 503", err)
	}

	fc.setStatus(http.StatusOK)
	if err := a.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}

	reqs := fc.take()
	if len(reqs) != 2 {
		t.Fatalf("collector got %d requests, want 2", len(reqs))
	}
	item, err := results.DecodeLogItem(reqs[1].body)
	if err != nil {
		t.Fatalf("DecodeLogItem error: %v", err)
	}
	if !item.Results.Added.Equal(snap) || item.Counter != 0 {
		t.Errorf("retried item = %s", reqs[1].body)
	}
}

func TestAgentResendsUnacknowledgedItem(t *testing.T) {
	// The collector keeps the first item but the acknowledgement is lost
	fc := &fakeCollector{failures: 1}
	srv := httptest.NewServer(fc)
	defer srv.Close()

	one := results.Snapshot{row("pid", "1")}
	two := results.Snapshot{row("pid", "1"), row("pid", "2")}
	a := newTestAgent(t, srv.URL,
		[]config.QueryConfig{{Name: "processes", Command: []string{"unused"}, Format: config.FormatBatch}},
		WithSource("processes", sequence(one, two, two)))

	if err := a.RunOnce(context.Background()); err == nil {
		t.Fatal("RunOnce error = nil, want collector 504")
	}
	for i := 0; i < 2; i++ {
		if err := a.RunOnce(context.Background()); err != nil {
			t.Fatalf("RunOnce error: %v", err)
		}
	}

	reqs := fc.take()
	if len(reqs) != 3 {
		t.Fatalf("collector got %d requests, want 3", len(reqs))
	}
	if !bytes.Equal(reqs[0].body, reqs[1].body) {
		t.Errorf("resent item differs:\n%s\n%s", reqs[0].body, reqs[1].body)
	}

	item, err := results.DecodeLogItem(reqs[2].body)
	if err != nil {
		t.Fatalf("DecodeLogItem error: %v", err)
	}
	if item.Counter != 1 {
		t.Errorf("counter = %d, want 1", item.Counter)
	}
	want := results.DiffResults{Added: results.Snapshot{row("pid", "2")}, Removed: results.Snapshot{}}
	if !item.Results.Equal(want) {
		t.Errorf("results = %s, want pid 2 added", reqs[2].body)
	}
}

func TestAgentEventFormat(t *testing.T) {
	fc := &fakeCollector{}
	srv := httptest.NewServer(fc)
	defer srv.Close()

	a := newTestAgent(t, srv.URL,
		[]config.QueryConfig{{Name: "ports", Command: []string{"unused"}, Format: config.FormatEvents}},
		WithSource("ports", sequence(
			results.Snapshot{row("port", "22")},
			results.Snapshot{row("port", "443")},
		)))

	for i := 0; i < 2; i++ {
		if err := a.RunOnce(context.Background()); err != nil {
			t.Fatalf("RunOnce error: %v", err)
		}
	}

	reqs := fc.take()
	if len(reqs) != 2 {
		t.Fatalf("collector got %d requests, want 2", len(reqs))
	}
	if reqs[1].path != "/ingest/events" {
		t.Errorf("path = %q, want /ingest/events", reqs[1].path)
	}
	if reqs[1].contentType != "application/x-ndjson" {
		t.Errorf("Content-Type = %q", reqs[1].contentType)
	}

	var events []results.Event
	sc := bufio.NewScanner(bytes.NewReader(reqs[1].body))
	for sc.Scan() {
		e, err := results.DecodeEvent(sc.Bytes())
		if err != nil {
			t.Fatalf("DecodeEvent error: %v", err)
		}
		events = append(events, e)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Action != results.ActionRemoved || !events[0].Columns.Equal(row("port", "22")) {
		t.Errorf("events[0] = %+v", events[0])
	}
	if events[1].Action != results.ActionAdded || events[1].Counter != 1 {
		t.Errorf("events[1] = %+v", events[1])
	}
}

func TestAgentUniqueRows(t *testing.T) {
	fc := &fakeCollector{}
	srv := httptest.NewServer(fc)
	defer srv.Close()

	dup := row("mount", "/")
	a := newTestAgent(t, srv.URL,
		[]config.QueryConfig{{Name: "mounts", Command: []string{"unused"}, Format: config.FormatBatch, Unique: true}},
		WithSource("mounts", sequence(results.Snapshot{dup, dup, row("mount", "/boot")})))

	if err := a.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	reqs := fc.take()
	if len(reqs) != 1 {
		t.Fatalf("collector got %d requests, want 1", len(reqs))
	}
	item, err := results.DecodeLogItem(reqs[0].body)
	if err != nil {
		t.Fatalf("DecodeLogItem error: %v", err)
	}
	if len(item.Results.Added) != 2 {
		t.Errorf("added %d rows, want 2 after dropping the duplicate", len(item.Results.Added))
	}
}

func TestAgentSourceErrorDoesNotStopOtherQueries(t *testing.T) {
	fc := &fakeCollector{}
	srv := httptest.NewServer(fc)
	defer srv.Close()

	boom := errors.New("boom")
	a := newTestAgent(t, srv.URL,
		[]config.QueryConfig{
			{Name: "broken", Command: []string{"unused"}, Format: config.FormatBatch},
			{Name: "ok", Command: []string{"unused"}, Format: config.FormatBatch},
		},
		WithSource("broken", SourceFunc(func(ctx context.Context) (results.Snapshot, error) { return nil, boom })),
		WithSource("ok", sequence(results.Snapshot{row("a", "1")})))

	err := a.RunOnce(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("RunOnce error = %v, want boom", err)
	}
	if got := len(fc.take()); got != 1 {
		t.Errorf("collector got %d requests, want 1", got)
	}
}

func TestAgentEpochAdvancesPerStart(t *testing.T) {
	cfg := &config.AgentConfig{StateFile: filepath.Join(t.TempDir(), "epoch")}
	for want := uint64(1); want <= 2; want++ {
		a := New(cfg, logging.Discard())
		if err := a.Start(); err != nil {
			t.Fatalf("Start error: %v", err)
		}
		if a.Epoch() != want {
			t.Errorf("Epoch = %d, want %d", a.Epoch(), want)
		}
	}
}
