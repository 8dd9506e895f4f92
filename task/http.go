package task

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/signalnine/gauntlet/eval"
)

const maxResponseBytes = 32 << 20

type HTTPOptions struct {
	URL     string
	Method  string
	Headers map[string]string
	Timeout time.Duration
	// RatePerSecond limits request starts across all cases. Zero disables
	// limiting.
	RatePerSecond float64
	Burst         int
	Client        *http.Client
}

// HTTP sends each case input as a JSON request body and decodes the
// response body as the output. Non-2xx responses fail the case.
type HTTP struct {
	opts    HTTPOptions
	client  *http.Client
	limiter *rate.Limiter
}

func NewHTTP(opts HTTPOptions) (*HTTP, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("http task: url is required")
	}
	if opts.Method == "" {
		opts.Method = http.MethodPost
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	h := &HTTP{opts: opts, client: client}
	if opts.RatePerSecond > 0 {
		burst := max(opts.Burst, 1)
		h.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	return h, nil
}

func (h *HTTP) Run(ctx context.Context, input any) (any, error) {
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	tb := eval.StartTrace()
	out, status, err := h.do(ctx, input)
	tb.Metadata(map[string]any{"url": h.opts.URL, "method": h.opts.Method, "status": status})
	if err != nil {
		eval.EmitTrace(ctx, tb.FinishWithError(input, err))
		return nil, err
	}
	eval.EmitTrace(ctx, tb.Finish(input, out, nil))
	return out, nil
}

func (h *HTTP) do(ctx context.Context, input any) (any, int, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, 0, fmt.Errorf("encoding input: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, h.opts.Method, h.opts.URL, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range h.opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("calling %s: %w", h.opts.URL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, fmt.Errorf("%s returned %d: %s", h.opts.URL, resp.StatusCode, tail(string(raw), 512))
	}
	return decodeOutput(raw), resp.StatusCode, nil
}
