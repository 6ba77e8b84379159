package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarvinWicks1/Blog-Elite-sub000/internal/common"
)

func TestInvoke_Success(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/stages/outline", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sections": [{"heading": "Intro"}]}`))
	}))
	defer srv.Close()

	g := New(Config{BaseURL: srv.URL}, srv.Client(), nil)
	raw, err := g.Invoke(context.Background(), "outline", map[string]any{"subject": "go"}, time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sections": [{"heading": "Intro"}]}`, string(raw))
	assert.Equal(t, "go", gotBody["subject"])
}

func TestInvoke_EndpointOverride(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/custom", r.URL.Path)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	g := New(Config{
		BaseURL:   "http://unused.invalid",
		Endpoints: map[string]string{"review": srv.URL + "/custom"},
	}, srv.Client(), nil)

	_, err := g.Invoke(context.Background(), "review", nil, time.Second)
	require.NoError(t, err)
}

func TestInvoke_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusBadGateway)
	}))
	defer srv.Close()

	g := New(Config{BaseURL: srv.URL}, srv.Client(), nil)
	_, err := g.Invoke(context.Background(), "humanize", nil, time.Second)
	require.Error(t, err)

	se := common.AsStageError("humanize", err)
	assert.Equal(t, common.KindTransport, se.Kind)
	assert.Equal(t, http.StatusBadGateway, se.Status)
	assert.Contains(t, se.Message, "model overloaded")
	assert.Equal(t, "humanize", se.Stage)
}

func TestInvoke_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	g := New(Config{BaseURL: srv.URL}, srv.Client(), nil)

	start := time.Now()
	_, err := g.Invoke(context.Background(), "write_sections", nil, 50*time.Millisecond)
	elapsed := time.Since(start)

	require.Error(t, err)
	se := common.AsStageError("write_sections", err)
	assert.Equal(t, common.KindTimeout, se.Kind)
	// The outcome must arrive within a bounded window of the timeout.
	assert.Less(t, elapsed, 2*time.Second)
}

func TestInvoke_CancelledCaller_IsNotATransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	g := New(Config{BaseURL: srv.URL}, srv.Client(), nil)
	_, err := g.Invoke(ctx, "seo_optimize", nil, time.Minute)
	require.Error(t, err)

	se := common.AsStageError("seo_optimize", err)
	assert.Equal(t, common.KindUnknown, se.Kind, "caller cancellation must not be pinned on the endpoint")
	assert.ErrorIs(t, se.Cause, context.Canceled)
}

func TestInvoke_UnreachableEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	g := New(Config{BaseURL: srv.URL}, nil, nil)
	_, err := g.Invoke(context.Background(), "image_search", nil, time.Second)
	require.Error(t, err)
	assert.Equal(t, common.KindTransport, common.AsStageError("image_search", err).Kind)
}

func TestInvoke_UnencodableInput(t *testing.T) {
	g := New(Config{BaseURL: "http://unused.invalid"}, nil, nil)
	_, err := g.Invoke(context.Background(), "outline", map[string]any{"bad": func() {}}, time.Second)
	require.Error(t, err)
	assert.Equal(t, common.KindUnknown, common.AsStageError("outline", err).Kind)
}
