package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"querydeck/internal/logger"

	"github.com/tidwall/gjson"
)

const maxResponseBytes = 8 << 20

// Endpoints are the backend paths, relative to the base URL.
type Endpoints struct {
	Single      string
	Multiplexed string
	ProviderDir string
	Model       string
	Models      string
}

// DefaultEndpoints matches the reference backends.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Single:      "/api/query",
		Multiplexed: "/api/query",
		ProviderDir: "/api",
		Model:       "/query",
		Models:      "/models",
	}
}

// Config configures a Client. Timeout is the HTTP client's own timeout; zero
// leaves requests bounded only by their context.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	Headers    map[string]string
	Endpoints  Endpoints
	HTTPClient *http.Client
}

// Client talks to the query backends. It does not retry.
type Client struct {
	base      *url.URL
	endpoints Endpoints
	headers   map[string]string
	httpc     *http.Client
}

// ModelInfo is one entry of the /models listing.
type ModelInfo struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

func NewClient(cfg Config) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if raw == "" {
		return nil, fmt.Errorf("backend base url is required")
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse backend base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend base url must be http or https, got %q", base.Scheme)
	}
	ep := mergeEndpoints(cfg.Endpoints)
	httpc := cfg.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: cfg.Timeout}
	}
	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	return &Client{base: base, endpoints: ep, headers: headers, httpc: httpc}, nil
}

func mergeEndpoints(ep Endpoints) Endpoints {
	def := DefaultEndpoints()
	pick := func(v, fallback string) string {
		if strings.TrimSpace(v) == "" {
			return fallback
		}
		return strings.TrimSpace(v)
	}
	return Endpoints{
		Single:      pick(ep.Single, def.Single),
		Multiplexed: pick(ep.Multiplexed, def.Multiplexed),
		ProviderDir: pick(ep.ProviderDir, def.ProviderDir),
		Model:       pick(ep.Model, def.Model),
		Models:      pick(ep.Models, def.Models),
	}
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// QuerySingle posts {prompt} to the single-provider endpoint.
func (c *Client) QuerySingle(ctx context.Context, prompt string) (string, error) {
	target := c.endpoint(nil, c.endpoints.Single)
	status, raw, err := c.exchange(ctx, "single", http.MethodPost, target, map[string]any{"prompt": prompt})
	if err != nil {
		return "", err
	}
	return normalizeResponse(http.MethodPost, target, "", status, raw)
}

// QueryMultiplexed issues one GET whose payload carries a reply per provider.
// A returned error applies to every provider.
func (c *Client) QueryMultiplexed(ctx context.Context, prompt string) (map[string]Reply, error) {
	target := c.endpoint(url.Values{"prompt": {prompt}}, c.endpoints.Multiplexed)
	status, raw, err := c.exchange(ctx, "multiplexed", http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	return decomposeMultiplexed(http.MethodGet, target, status, raw)
}

// QueryProvider asks one provider through GET <provider dir>/<provider>.
func (c *Client) QueryProvider(ctx context.Context, provider, prompt string) (string, error) {
	target := c.endpoint(url.Values{"prompt": {prompt}}, c.endpoints.ProviderDir, provider)
	status, raw, err := c.exchange(ctx, provider, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	return normalizeResponse(http.MethodGet, target, provider, status, raw)
}

// QueryModel posts {model, prompt, temperature} to the model-scoped endpoint.
func (c *Client) QueryModel(ctx context.Context, model, prompt string, temperature float64) (string, error) {
	target := c.endpoint(nil, c.endpoints.Model)
	body := map[string]any{
		"model":       model,
		"prompt":      prompt,
		"temperature": temperature,
	}
	status, raw, err := c.exchange(ctx, model, http.MethodPost, target, body)
	if err != nil {
		return "", err
	}
	return normalizeResponse(http.MethodPost, target, model, status, raw)
}

// ListModels fetches the model catalog. Entries without a name are dropped.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	target := c.endpoint(nil, c.endpoints.Models)
	status, raw, err := c.exchange(ctx, "catalog", http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	obj, ok := parseObject(raw)
	if status/100 != 2 {
		if ok {
			if e := obj.Get("error"); truthy(e) {
				return nil, &ProviderError{StatusCode: status, Message: errorText(e)}
			}
		}
		return nil, &TransportError{Op: http.MethodGet, URL: target, StatusCode: status, Err: statusDetail(raw)}
	}
	if !ok {
		return nil, &TransportError{Op: http.MethodGet, URL: target, Err: malformed(raw)}
	}
	list := obj.Get("models")
	if !list.IsArray() {
		return nil, &TransportError{Op: http.MethodGet, URL: target, Err: fmt.Errorf("models listing has no models array")}
	}
	out := make([]ModelInfo, 0, len(list.Array()))
	list.ForEach(func(_, item gjson.Result) bool {
		name := strings.TrimSpace(item.Get("name").String())
		if name == "" {
			return true
		}
		out = append(out, ModelInfo{Name: name, Provider: strings.TrimSpace(item.Get("provider").String())})
		return true
	})
	return out, nil
}

func (c *Client) endpoint(query url.Values, elems ...string) string {
	u := *c.base
	parts := make([]string, 0, len(elems))
	for _, e := range elems {
		if e = strings.Trim(e, "/"); e != "" {
			parts = append(parts, e)
		}
	}
	joined := u.JoinPath(parts...)
	if len(query) > 0 {
		joined.RawQuery = query.Encode()
	}
	return joined.String()
}

// exchange performs one request. Only failures to get a response at all are
// returned as errors; status handling is left to the caller.
func (c *Client) exchange(ctx context.Context, tag, method, target string, body any) (int, []byte, error) {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request body: %w", err)
		}
		payload = b
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, &TransportError{Op: method, URL: target, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if logger.Enabled(slog.LevelDebug) {
		logger.Debugf("backend request %s %s tag=%s headers=%v", method, target, tag, maskHeaders(c.headers))
	}
	logger.LogExchangeRequest(tag, method, target, string(payload))

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, nil, &TransportError{Op: method, URL: target, Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, &TransportError{Op: method, URL: target, Err: fmt.Errorf("read response body: %w", err)}
	}
	logger.LogExchangeResponse(tag, target, resp.StatusCode, string(raw))
	logger.Debugf("backend response %s %s status=%d bytes=%d elapsed=%s", method, target, resp.StatusCode, len(raw), time.Since(start).Truncate(time.Millisecond))
	return resp.StatusCode, raw, nil
}

// maskHeaders hides credentials before headers reach the log, keeping the last four characters.
func maskHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		lk := strings.ToLower(k)
		if strings.Contains(lk, "key") || strings.Contains(lk, "token") || strings.Contains(lk, "auth") {
			if len(v) > 4 {
				v = "****" + v[len(v)-4:]
			} else {
				v = "****"
			}
		}
		out[k] = v
	}
	return out
}
