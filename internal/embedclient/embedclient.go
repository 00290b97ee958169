// Package embedclient is the Embedding Gateway: synchronous and
// batched calls to an external embedding oracle, with bounded exponential
// backoff on transient failures.
package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"docbase/internal/config"
	"docbase/internal/kberrors"
)

// Gateway embeds text into dense vectors via an external oracle.
type Gateway interface {
	// EmbedOne embeds a single string.
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	// EmbedMany embeds a batch, preserving input order in the result. The
	// gateway may split the batch into sub-batches transparently; either
	// every item succeeds or the whole call fails.
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
}

type embedReq struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt,omitempty"`
	Input  []string `json:"input,omitempty"`
}

type embedResp struct {
	Embedding []float32 `json:"embedding"`
	Data      []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// httpGateway is the production Gateway: it POSTs {model, input} (plus
// prompt when the batch holds a single text) and accepts either a
// {data: [{embedding}]} or a single {embedding} response, retrying
// transient failures with bounded exponential backoff.
var _ Gateway = (*httpGateway)(nil)

type httpGateway struct {
	cfg    config.EmbeddingConfig
	client *http.Client
}

// New constructs a Gateway against the configured embedding endpoint.
func New(cfg config.EmbeddingConfig) Gateway {
	return &httpGateway{cfg: cfg, client: http.DefaultClient}
}

func (g *httpGateway) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	out, err := g.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (g *httpGateway) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	batchSize := g.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = len(texts)
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		embeddings, err := g.callWithRetry(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, embeddings...)
	}
	return out, nil
}

// callWithRetry retries transient failures with bounded exponential
// backoff; non-transient failures surface immediately.
func (g *httpGateway) callWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	maxAttempts := g.cfg.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		embeddings, err := g.call(ctx, batch)
		if err == nil {
			return embeddings, nil
		}
		lastErr = err
		if !kberrors.Retryable(err) {
			return nil, err
		}
		if attempt == maxAttempts-1 {
			break
		}
		delay := backoffDelay(attempt)
		select {
		case <-ctx.Done():
			return nil, kberrors.NewEmbedding("context cancelled during retry backoff", false, ctx.Err())
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

func backoffDelay(attempt int) time.Duration {
	base := 200 * time.Millisecond
	delay := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	const maxDelay = 10 * time.Second
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

func (g *httpGateway) call(ctx context.Context, inputs []string) ([][]float32, error) {
	reqBody, err := json.Marshal(embedReq{Model: g.cfg.Model, Input: inputs, Prompt: singlePrompt(inputs)})
	if err != nil {
		return nil, kberrors.NewEmbedding("failed to marshal request", false, err)
	}

	timeout := time.Duration(g.cfg.TimeoutSec) * time.Second
	if timeout == 0 {
		timeout = 300 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := g.cfg.BaseURL + g.cfg.Path
	req, err := http.NewRequestWithContext(cctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, kberrors.NewEmbedding("failed to build request", false, err)
	}
	req.Header.Set("Content-Type", "application/json")
	applyAuth(req, g.cfg)

	resp, err := g.client.Do(req)
	if err != nil {
		if cctx.Err() == context.DeadlineExceeded {
			return nil, kberrors.NewTimeout("embedding request")
		}
		return nil, kberrors.NewEmbedding(err.Error(), isNetworkError(err), err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, kberrors.NewEmbedding("failed to read response body", true, readErr)
	}

	if resp.StatusCode/100 != 2 {
		retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, kberrors.NewEmbedding(
			fmt.Sprintf("embedding endpoint returned %s: %s", resp.Status, truncate(body, 200)),
			retryable, nil,
		)
	}

	var er embedResp
	if err := json.Unmarshal(body, &er); err != nil {
		return nil, kberrors.NewEmbedding(
			fmt.Sprintf("failed to parse embedding response: %s", truncate(body, 200)), false, err,
		)
	}

	embeddings := extractEmbeddings(er, len(inputs))
	if len(embeddings) != len(inputs) {
		return nil, kberrors.NewEmbedding(
			fmt.Sprintf("unexpected embedding count: got %d, want %d", len(embeddings), len(inputs)), false, nil,
		)
	}
	return embeddings, nil
}

// extractEmbeddings accepts either the batched {data: [{embedding}]} shape
// or the single {embedding: [...]} shape, since real oracles vary here.
func extractEmbeddings(er embedResp, want int) [][]float32 {
	if len(er.Data) > 0 {
		out := make([][]float32, len(er.Data))
		for i := range er.Data {
			out[i] = er.Data[i].Embedding
		}
		return out
	}
	if want == 1 && er.Embedding != nil {
		return [][]float32{er.Embedding}
	}
	return nil
}

func singlePrompt(inputs []string) string {
	if len(inputs) == 1 {
		return inputs[0]
	}
	return ""
}

func applyAuth(req *http.Request, cfg config.EmbeddingConfig) {
	if cfg.APIHeader != "" && cfg.APIKey != "" {
		if cfg.APIHeader == "Authorization" {
			req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
		} else {
			req.Header.Set(cfg.APIHeader, cfg.APIKey)
		}
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
}

func isNetworkError(err error) bool {
	_, ok := err.(interface{ Timeout() bool })
	return ok
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}

// CheckReachability sends a minimal probe request to confirm the
// configured endpoint is reachable and responding correctly.
func CheckReachability(ctx context.Context, g Gateway) error {
	_, err := g.EmbedOne(ctx, "ping")
	if err != nil {
		return fmt.Errorf("embedding endpoint reachability check failed: %w", err)
	}
	return nil
}
