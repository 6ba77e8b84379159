package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarvinWicks1/Blog-Elite-sub000/internal/bus"
	"github.com/MarvinWicks1/Blog-Elite-sub000/internal/common"
	"github.com/MarvinWicks1/Blog-Elite-sub000/internal/pipeline"
)

// stubInvoker serves canned stage outputs, with optional per-stage errors.
type stubInvoker struct {
	outputs map[string]any
	fail    map[string]error
}

func (s *stubInvoker) Invoke(_ context.Context, stage string, input any, _ time.Duration) (json.RawMessage, error) {
	if err, ok := s.fail[stage]; ok {
		return nil, err
	}
	out, ok := s.outputs[stage]
	if !ok {
		return nil, fmt.Errorf("no stub for stage %s", stage)
	}
	if stage == "write_sections" {
		m, _ := input.(map[string]any)
		section, _ := m["section"].(map[string]any)
		return json.Marshal(map[string]any{"heading": section["heading"], "body": "text"})
	}
	return json.Marshal(out)
}

// gatedInvoker blocks on one named stage until released, so a test can act
// mid-run.
type gatedInvoker struct {
	*stubInvoker
	gate    string
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedInvoker) Invoke(ctx context.Context, stage string, input any, d time.Duration) (json.RawMessage, error) {
	if stage == g.gate {
		g.once.Do(func() { close(g.started) })
		<-g.release
	}
	return g.stubInvoker.Invoke(ctx, stage, input, d)
}

func happyOutputs() map[string]any {
	return map[string]any{
		"keyword_research": map[string]any{
			"primary_keyword": "go pipelines",
			"keywords":        []string{"a", "b", "c", "d", "e"},
			"search_intent":   "informational",
		},
		"content_brief": map[string]any{
			"title": "Go Pipelines", "audience": "devs", "tone": "practical", "word_count_target": 1200,
		},
		"outline": map[string]any{
			"sections":         []map[string]any{{"heading": "A"}, {"heading": "B"}, {"heading": "C"}},
			"meta_description": "md",
		},
		"write_sections": nil, // handled per-item in Invoke
		"seo_optimize":   map[string]any{"content": "optimized", "keyword_density": 2.0},
		"humanize":       map[string]any{"content": "final article"},
		"image_search":   map[string]any{"images": []map[string]any{{"url": "https://x/1.png", "alt": "x"}}},
		"review":         map[string]any{"seo_score": 90, "readability_score": 88, "confidence": 0.9},
	}
}

func newTestServer(t *testing.T, inv pipeline.Invoker) *httptest.Server {
	t.Helper()
	b := bus.New(nil)
	orch := pipeline.NewOrchestrator(
		pipeline.Default(), inv, b, time.Second,
		pipeline.Thresholds{MinSEOScore: 70, MinReadabilityScore: 70, MinConfidence: 0.5}, nil,
	)
	svc := NewService(orch, pipeline.NewRegistry(time.Minute), b, 50*time.Millisecond, nil)
	srv := httptest.NewServer(svc.Router())
	t.Cleanup(srv.Close)
	return srv
}

func postRun(t *testing.T, srv *httptest.Server, query string, body map[string]any) *http.Response {
	t.Helper()
	bs, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/v1/runs"+query, "application/json", bytes.NewReader(bs))
	require.NoError(t, err)
	return resp
}

func TestStartRun_SyncHappyPath(t *testing.T) {
	srv := newTestServer(t, &stubInvoker{outputs: happyOutputs()})

	resp := postRun(t, srv, "?wait=true", map[string]any{"subject": "go pipelines"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		JobID  string `json:"job_id"`
		Result struct {
			Title   string `json:"title"`
			Content string `json:"content"`
		} `json:"result"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.NotEmpty(t, out.JobID)
	assert.Equal(t, "Go Pipelines", out.Result.Title)
	assert.Equal(t, "final article", out.Result.Content)
}

func TestStartRun_RejectsMissingSubject(t *testing.T) {
	srv := newTestServer(t, &stubInvoker{outputs: happyOutputs()})

	resp := postRun(t, srv, "", map[string]any{"context": "no subject"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStartRun_SyncFailureReturnsStageAttributedError(t *testing.T) {
	inv := &stubInvoker{
		outputs: happyOutputs(),
		fail: map[string]error{
			"outline": common.NewTransportError("outline", 503, "stage down", nil),
		},
	}
	srv := newTestServer(t, inv)

	resp := postRun(t, srv, "?wait=true", map[string]any{"subject": "go"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var out struct {
		Error string `json:"error"`
		Job   struct {
			State  string `json:"state"`
			Stages map[string]struct {
				Status string `json:"status"`
			} `json:"stages"`
		} `json:"job"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Contains(t, out.Error, "stage outline")
	assert.Contains(t, out.Error, "transport")
	assert.Equal(t, "failed", out.Job.State)
	assert.Equal(t, "completed", out.Job.Stages["keyword_research"].Status)
	assert.Equal(t, "failed", out.Job.Stages["outline"].Status)
}

func TestStartRun_SyncSurvivesClientDisconnect(t *testing.T) {
	inv := &gatedInvoker{
		stubInvoker: &stubInvoker{outputs: happyOutputs()},
		gate:        "outline",
		started:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	srv := newTestServer(t, inv)

	ctx, cancel := context.WithCancel(context.Background())
	bs, err := json.Marshal(map[string]any{"subject": "go", "job_id": "run-hangup"})
	require.NoError(t, err)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, srv.URL+"/v1/runs?wait=true", bytes.NewReader(bs))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	errc := make(chan error, 1)
	go func() {
		resp, err := http.DefaultClient.Do(req)
		if resp != nil {
			resp.Body.Close()
		}
		errc <- err
	}()

	<-inv.started
	cancel() // caller hangs up mid-run
	require.Error(t, <-errc)
	close(inv.release)

	// The run keeps going and finishes on its own.
	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/v1/runs/run-hangup")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return false
		}
		var got struct {
			State string `json:"state"`
		}
		if json.NewDecoder(resp.Body).Decode(&got) != nil {
			return false
		}
		return got.State == "completed"
	}, 5*time.Second, 25*time.Millisecond)
}

func TestStartRun_AsyncWithEventStream(t *testing.T) {
	srv := newTestServer(t, &stubInvoker{outputs: happyOutputs()})

	resp := postRun(t, srv, "", map[string]any{"subject": "go", "job_id": "run-async-1"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var accepted struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
	assert.Equal(t, "run-async-1", accepted.JobID)

	events := readStream(t, srv, "run-async-1")
	require.NotEmpty(t, events)
	assert.Equal(t, "heartbeat", events[0].Type)
	last := events[len(events)-1]
	assert.Contains(t, []string{"done", "error"}, last.Type)
	assert.Equal(t, "done", last.Type)

	// Snapshot still present during retention, fully completed.
	snap, err := http.Get(srv.URL + "/v1/runs/run-async-1")
	require.NoError(t, err)
	defer snap.Body.Close()
	require.Equal(t, http.StatusOK, snap.StatusCode)
	var got struct {
		State string `json:"state"`
	}
	require.NoError(t, json.NewDecoder(snap.Body).Decode(&got))
	assert.Equal(t, "completed", got.State)
}

func TestEvents_UnknownJob(t *testing.T) {
	srv := newTestServer(t, &stubInvoker{outputs: happyOutputs()})
	resp, err := http.Get(srv.URL + "/v1/runs/nope/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEvents_AttachAfterCompletionGetsTerminalEvent(t *testing.T) {
	srv := newTestServer(t, &stubInvoker{outputs: happyOutputs()})

	resp := postRun(t, srv, "?wait=true", map[string]any{"subject": "go", "job_id": "run-late"})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	events := readStream(t, srv, "run-late")
	require.NotEmpty(t, events)
	assert.Equal(t, "done", events[len(events)-1].Type)
}

// readStream consumes the SSE endpoint until it closes and returns the
// decoded events.
func readStream(t *testing.T, srv *httptest.Server, jobID string) []wireEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/runs/"+jobID+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var events []wireEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev wireEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	return events
}
