package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MarvinWicks1/Blog-Elite-sub000/internal/common"
)

// Config wires stage names to their HTTP endpoints.
type Config struct {
	// BaseURL is the default endpoint root; stage S posts to BaseURL/stages/S.
	BaseURL string
	// Endpoints overrides the URL for individual stages.
	Endpoints map[string]string
}

// Gateway invokes one external Stage Function per call: POST the input JSON,
// bound the call by a timeout, and normalize every failure mode into a
// *common.StageError. Exactly one terminal outcome per invocation.
type Gateway struct {
	cfg    Config
	client *http.Client
	log    *slog.Logger
}

func New(cfg Config, client *http.Client, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Gateway{cfg: cfg, client: client, log: logger}
}

// EndpointFor resolves the URL a stage is invoked at.
func (g *Gateway) EndpointFor(stage string) string {
	if url, ok := g.cfg.Endpoints[stage]; ok {
		return url
	}
	return strings.TrimRight(g.cfg.BaseURL, "/") + "/stages/" + stage
}

// Invoke calls the stage function with input and returns its raw JSON body.
// The input must already satisfy the stage's input contract; that check
// belongs to the caller, not here. Errors are always *common.StageError:
// timeouts as KindTimeout, non-2xx responses and unreachable endpoints as
// KindTransport, anything else as KindUnknown.
func (g *Gateway) Invoke(ctx context.Context, stage string, input any, timeout time.Duration) (json.RawMessage, error) {
	reqID := uuid.New().String()
	start := time.Now()

	bs, err := json.Marshal(input)
	if err != nil {
		g.log.Error("gateway.invoke.encode_error", "req_id", reqID, "stage", stage, "error", err)
		return nil, common.NewUnknownError(stage, fmt.Errorf("encode input: %w", err))
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := g.EndpointFor(stage)
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		g.log.Error("gateway.invoke.build_request_error", "req_id", reqID, "stage", stage, "error", err)
		return nil, common.NewUnknownError(stage, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	g.log.Info("gateway.invoke.request",
		"req_id", reqID,
		"stage", stage,
		"url", url,
		"content_length", len(bs),
		"timeout_ms", timeout.Milliseconds(),
	)

	resp, err := g.client.Do(req)
	if err != nil {
		elapsed := time.Since(start).Milliseconds()
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded {
			g.log.Error("gateway.invoke.timeout", "req_id", reqID, "stage", stage, "elapsed_ms", elapsed)
			return nil, common.NewTimeoutError(stage, err)
		}
		// A caller-cancelled context is not the stage's fault; keep it out
		// of the transport bucket so failure attribution stays honest.
		if errors.Is(err, context.Canceled) {
			g.log.Warn("gateway.invoke.cancelled", "req_id", reqID, "stage", stage, "elapsed_ms", elapsed)
			return nil, common.NewUnknownError(stage, err)
		}
		g.log.Error("gateway.invoke.send_error", "req_id", reqID, "stage", stage, "error", err, "elapsed_ms", elapsed)
		return nil, common.NewTransportError(stage, 0, "stage endpoint unreachable", err)
	}
	defer func(body io.ReadCloser) {
		if cerr := body.Close(); cerr != nil {
			g.log.Warn("gateway.invoke.response_body_close_error", "req_id", reqID, "stage", stage, "error", cerr)
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded {
			g.log.Error("gateway.invoke.timeout", "req_id", reqID, "stage", stage, "elapsed_ms", time.Since(start).Milliseconds())
			return nil, common.NewTimeoutError(stage, err)
		}
		if errors.Is(err, context.Canceled) {
			return nil, common.NewUnknownError(stage, err)
		}
		return nil, common.NewTransportError(stage, resp.StatusCode, "read response body", err)
	}

	g.log.Info("gateway.invoke.response",
		"req_id", reqID,
		"stage", stage,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		detail := strings.TrimSpace(string(raw))
		if len(detail) > 512 {
			detail = detail[:512]
		}
		return nil, common.NewTransportError(stage, resp.StatusCode,
			fmt.Sprintf("non-2xx status %d: %s", resp.StatusCode, detail), nil)
	}
	return raw, nil
}
