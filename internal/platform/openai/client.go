package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dx-junkyard/plura/internal/observability"
	"github.com/dx-junkyard/plura/internal/pkg/httpx"
	"github.com/dx-junkyard/plura/internal/platform/logger"
)

// Tier selects the capability/latency tradeoff for a call. Routers use the
// fast tier, conversation nodes the balanced tier, and research/analysis the
// deep tier.
type Tier string

const (
	TierFast     Tier = "fast"
	TierBalanced Tier = "balanced"
	TierDeep     Tier = "deep"
)

// Client is the uniform LLM capability used by every layer above it.
// Implementations are stateless; WithTier returns a view of the same client
// bound to a different model.
type Client interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)

	// Structured outputs (json_schema, strict)
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)

	// Plain text (no schema)
	GenerateText(ctx context.Context, system string, user string) (string, error)

	WithTier(tier Tier) Client
}

// ProviderError wraps any gateway failure (timeout, rate limit, malformed
// response) so callers can degrade to fallbacks without inspecting internals.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string {
	if e == nil || e.Err == nil {
		return "llm provider error"
	}
	return "llm provider error: " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsProviderError reports whether err originated in the LLM gateway.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

type client struct {
	log     *logger.Logger
	baseURL string
	apiKey  string

	model      string
	tier       Tier
	tierModels map[Tier]string
	embedModel string

	httpClient *http.Client
	maxRetries int

	temperature        *float64
	disableTemperature bool

	// Models that reject the temperature parameter, learned at runtime.
	noTempMu   sync.RWMutex
	noTempSeen map[string]time.Time
	noTempTTL  time.Duration
}

func NewClient(log *logger.Logger) (Client, error) {
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}

	baseURL := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	balanced := strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	if balanced == "" {
		balanced = "gpt-4o"
	}
	fast := strings.TrimSpace(os.Getenv("OPENAI_MODEL_FAST"))
	if fast == "" {
		fast = "gpt-4o-mini"
	}
	deep := strings.TrimSpace(os.Getenv("OPENAI_MODEL_DEEP"))
	if deep == "" {
		deep = balanced
	}

	embed := strings.TrimSpace(os.Getenv("OPENAI_EMBED_MODEL"))
	if embed == "" {
		embed = "text-embedding-3-small"
	}

	timeoutSec := 180
	if v := os.Getenv("OPENAI_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	maxRetries := 4
	if v := os.Getenv("OPENAI_MAX_RETRIES"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed >= 0 {
			maxRetries = parsed
		}
	}

	var temperature *float64
	if v := strings.TrimSpace(os.Getenv("OPENAI_TEMPERATURE")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			temperature = &f
		}
	}

	return &client{
		log:     log.With("client", "openai"),
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   balanced,
		tier:    TierBalanced,
		tierModels: map[Tier]string{
			TierFast:     fast,
			TierBalanced: balanced,
			TierDeep:     deep,
		},
		embedModel:         embed,
		httpClient:         &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries:         maxRetries,
		temperature:        temperature,
		disableTemperature: parseBoolEnv("OPENAI_DISABLE_TEMPERATURE", false),
		noTempSeen:         map[string]time.Time{},
		noTempTTL:          24 * time.Hour,
	}, nil
}

func (c *client) WithTier(tier Tier) Client {
	if c == nil {
		return c
	}
	model := c.tierModels[tier]
	if strings.TrimSpace(model) == "" || model == c.model {
		return c
	}
	clone := &client{
		log:                c.log,
		baseURL:            c.baseURL,
		apiKey:             c.apiKey,
		model:              model,
		tier:               tier,
		tierModels:         c.tierModels,
		embedModel:         c.embedModel,
		httpClient:         c.httpClient,
		maxRetries:         c.maxRetries,
		temperature:        c.temperature,
		disableTemperature: c.disableTemperature,
		noTempSeen:         map[string]time.Time{},
		noTempTTL:          c.noTempTTL,
	}
	c.noTempMu.RLock()
	for k, v := range c.noTempSeen {
		clone.noTempSeen[k] = v
	}
	c.noTempMu.RUnlock()
	return clone
}

func parseBoolEnv(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func normalizeModelKey(m string) string {
	return strings.ToLower(strings.TrimSpace(m))
}

func (c *client) modelIsNoTemp(model string) bool {
	m := normalizeModelKey(model)
	if m == "" {
		return false
	}
	c.noTempMu.RLock()
	ts, ok := c.noTempSeen[m]
	ttl := c.noTempTTL
	c.noTempMu.RUnlock()
	if !ok {
		return false
	}
	if ttl <= 0 {
		return true
	}
	return time.Since(ts) < ttl
}

func (c *client) noteNoTempModel(model string) {
	m := normalizeModelKey(model)
	if m == "" {
		return
	}
	c.noTempMu.Lock()
	if c.noTempSeen == nil {
		c.noTempSeen = map[string]time.Time{}
	}
	c.noTempSeen[m] = time.Now().UTC()
	c.noTempMu.Unlock()
}

func (c *client) applyTemperature(req *responsesRequest) {
	if req == nil {
		return
	}
	if c.disableTemperature || c.temperature == nil {
		return
	}
	if c.modelIsNoTemp(req.Model) {
		return
	}
	req.Temperature = c.temperature
}

type openAIHTTPError struct {
	StatusCode int
	Body       string
}

func (e *openAIHTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func (e *openAIHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func isUnsupportedTemperatureParam(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "temperature") {
		return false
	}
	for _, marker := range []string{
		"unsupported parameter",
		"unknown parameter",
		"unrecognized parameter",
		"not supported",
		"does not support",
		"only the default",
		"unsupported_value",
		"invalid_request_error",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func (c *client) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &openAIHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *client) do(ctx context.Context, method, path string, body any, out any) error {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return &ProviderError{Err: ctx.Err()}
		}

		resp, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return &ProviderError{Err: fmt.Errorf("decode response: %w; raw=%s", uErr, string(raw))}
			}
			return nil
		}

		if !httpx.IsRetryableError(err) {
			return &ProviderError{Err: err}
		}
		if attempt == c.maxRetries {
			return &ProviderError{Err: err}
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, 10*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)

		c.log.Warn("llm request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		time.Sleep(sleepFor)
		backoff *= 2
	}

	return &ProviderError{Err: errors.New("unreachable retry loop")}
}

// doWithTempFallback retries exactly once without temperature if the model
// rejects the parameter, and remembers the model.
func (c *client) doWithTempFallback(ctx context.Context, method, path string, req *responsesRequest, out any) error {
	if req == nil {
		return c.do(ctx, method, path, nil, out)
	}
	err := c.do(ctx, method, path, req, out)
	if err == nil {
		return nil
	}
	if req.Temperature == nil {
		return err
	}
	if !isUnsupportedTemperatureParam(err) {
		return err
	}
	c.noteNoTempModel(req.Model)
	req.Temperature = nil
	return c.do(ctx, method, path, req, out)
}

// -------------------- Embeddings --------------------

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (c *client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}

	clean := make([]string, len(inputs))
	for i := range inputs {
		s := strings.TrimSpace(inputs[i])
		if s == "" {
			s = " "
		}
		clean[i] = s
	}

	req := embeddingsRequest{
		Model: c.embedModel,
		Input: clean,
	}

	var resp embeddingsResponse
	if err := c.do(ctx, "POST", "/v1/embeddings", req, &resp); err != nil {
		return nil, err
	}

	out := make([][]float32, len(clean))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = vec
		}
	}

	for i := range out {
		if len(out[i]) == 0 {
			return nil, &ProviderError{Err: fmt.Errorf(
				"embeddings missing index %d: requested=%d returned=%d model=%s",
				i, len(clean), len(resp.Data), c.embedModel)}
		}
	}
	return out, nil
}

// -------------------- Responses API --------------------

type responsesRequest struct {
	Model string `json:"model"`

	Input []struct {
		Role    string `json:"role"`
		Content any    `json:"content"`
	} `json:"input"`

	Text struct {
		Format map[string]any `json:"format,omitempty"`
	} `json:"text,omitempty"`

	Temperature *float64 `json:"temperature,omitempty"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Refusal string `json:"refusal,omitempty"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func extractOutputText(resp responsesResponse) string {
	var out strings.Builder
	for _, item := range resp.Output {
		if item.Type == "message" && item.Role == "assistant" {
			for _, c := range item.Content {
				if c.Type == "output_text" && c.Text != "" {
					out.WriteString(c.Text)
				}
			}
		}
	}
	return out.String()
}

func newResponsesRequest(model, system, user string) responsesRequest {
	return responsesRequest{
		Model: model,
		Input: []struct {
			Role    string `json:"role"`
			Content any    `json:"content"`
		}{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
}

func (c *client) GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error) {
	if schemaName == "" {
		return nil, errors.New("schemaName required")
	}
	if schema == nil {
		return nil, errors.New("schema required")
	}

	req := newResponsesRequest(c.model, system, user)
	c.applyTemperature(&req)
	req.Text.Format = map[string]any{
		"type":   "json_schema",
		"name":   schemaName,
		"schema": schema,
		"strict": true,
	}

	started := time.Now()
	var resp responsesResponse
	if err := c.doWithTempFallback(ctx, "POST", "/v1/responses", &req, &resp); err != nil {
		observability.Current().ObserveLLMRequest(c.model, string(c.tier), "error", time.Since(started), 0, 0)
		return nil, err
	}
	observability.Current().ObserveLLMRequest(c.model, string(c.tier), "ok", time.Since(started), resp.Usage.InputTokens, resp.Usage.OutputTokens)
	if resp.Refusal != "" {
		return nil, &ProviderError{Err: fmt.Errorf("model refused: %s", resp.Refusal)}
	}

	jsonText := extractOutputText(resp)
	if strings.TrimSpace(jsonText) == "" {
		return nil, &ProviderError{Err: errors.New("no output_text in response")}
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(jsonText), &obj); err != nil {
		return nil, &ProviderError{Err: fmt.Errorf("parse model JSON: %w; text=%s", err, jsonText)}
	}
	return obj, nil
}

func (c *client) GenerateText(ctx context.Context, system string, user string) (string, error) {
	req := newResponsesRequest(c.model, system, user)
	c.applyTemperature(&req)

	started := time.Now()
	var resp responsesResponse
	if err := c.doWithTempFallback(ctx, "POST", "/v1/responses", &req, &resp); err != nil {
		observability.Current().ObserveLLMRequest(c.model, string(c.tier), "error", time.Since(started), 0, 0)
		return "", err
	}
	observability.Current().ObserveLLMRequest(c.model, string(c.tier), "ok", time.Since(started), resp.Usage.InputTokens, resp.Usage.OutputTokens)
	if resp.Refusal != "" {
		return "", &ProviderError{Err: fmt.Errorf("model refused: %s", resp.Refusal)}
	}

	text := extractOutputText(resp)
	if strings.TrimSpace(text) == "" {
		return "", &ProviderError{Err: errors.New("no output_text in response")}
	}
	return text, nil
}
