package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/robotto-health/triage-backend/internal/domain/entities"
	"github.com/robotto-health/triage-backend/internal/domain/providers"
	"github.com/robotto-health/triage-backend/pkg/config"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Client implements the remote extractor over the OpenAI chat completions
// API with a forced function call. Every failure mode maps to
// providers.ErrExtractorUnavailable; the caller falls back to local
// extraction and never sees a hard error from here.
type Client struct {
	apiKey      string
	model       string
	temperature float64
	baseURL     string
	httpClient  *http.Client
	limiter     *tokenBucket
	breaker     *gobreaker.CircuitBreaker
}

// NewClient creates a new OpenAI extraction client.
func NewClient(cfg *config.OpenAIConfig) (*Client, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "openai-extract",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		apiKey:      cfg.APIKey,
		model:       model,
		temperature: cfg.Temperature,
		baseURL:     defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
		limiter: newTokenBucket(cfg.RateLimitRPM, cfg.RateLimitBurst),
		breaker: breaker,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatTool struct {
	Type     string           `json:"type"`
	Function chatToolFunction `json:"function"`
}

type chatToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
	Tools       []chatTool    `json:"tools"`
	ToolChoice  any           `json:"tool_choice"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

// Extract runs semantic extraction over the narrative. The returned features
// are guaranteed to be a subset of universe.
func (c *Client) Extract(ctx context.Context, text string, universe map[string]struct{}) (*entities.ExtractionResult, error) {
	if c.limiter != nil {
		waitStart := time.Now()
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, unavailable("rate limiter wait aborted", err)
		}
		recordOpenAIRateLimitWait(ctx, c.model, time.Since(waitStart))
	}

	universeList := make([]string, 0, len(universe))
	for id := range universe {
		universeList = append(universeList, id)
	}
	sort.Strings(universeList)

	payload := chatRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []chatMessage{
			{Role: "system", Content: extractSystemPrompt},
			{Role: "user", Content: buildExtractUserPrompt(text, universeList)},
		},
		Tools: []chatTool{{
			Type: "function",
			Function: chatToolFunction{
				Name:        "extract",
				Description: "Retorne features/modifiers/demographics extraídos do texto.",
				Parameters:  extractToolParameters(),
			},
		}},
		ToolChoice: map[string]any{
			"type":     "function",
			"function": map[string]any{"name": "extract"},
		},
	}

	out, err := c.breaker.Execute(func() (any, error) {
		return c.doExtract(ctx, payload)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, unavailable("circuit breaker open", err)
		}
		if errors.Is(err, providers.ErrExtractorUnavailable) {
			return nil, err
		}
		return nil, unavailable("request failed", err)
	}

	args := out.(*extractArguments)
	return buildResult(args, universe)
}

func (c *Client) doExtract(ctx context.Context, payload chatRequest) (*extractArguments, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, unavailable("failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, unavailable("failed to build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		recordOpenAIMetric(ctx, c.model, 0, time.Since(start), err)
		return nil, unavailable("request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("status %d", resp.StatusCode)
		recordOpenAIMetric(ctx, c.model, resp.StatusCode, time.Since(start), err)
		return nil, unavailable("non-success response", err)
	}

	var envelope chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		recordOpenAIMetric(ctx, c.model, resp.StatusCode, time.Since(start), err)
		return nil, unavailable("failed to decode response", err)
	}

	args, err := parseExtractArguments(&envelope)
	if err != nil {
		recordOpenAIMetric(ctx, c.model, resp.StatusCode, time.Since(start), err)
		return nil, unavailable("schema validation failed", err)
	}

	recordOpenAIMetric(ctx, c.model, resp.StatusCode, time.Since(start), nil)
	return args, nil
}

// extractArguments is the decoded payload of the 'extract' tool call.
// Demographics stay raw so field presence survives into the merge step.
type extractArguments struct {
	Features     []string                   `json:"features"`
	Modifiers    map[string]any             `json:"modifiers"`
	Demographics map[string]json.RawMessage `json:"demographics"`
}

// parseExtractArguments pulls the 'extract' tool call out of a completions
// response. A missing or foreign tool call is a schema failure.
func parseExtractArguments(envelope *chatResponse) (*extractArguments, error) {
	if len(envelope.Choices) == 0 || len(envelope.Choices[0].Message.ToolCalls) == 0 {
		return nil, errors.New("response carries no tool call")
	}
	call := envelope.Choices[0].Message.ToolCalls[0].Function
	if call.Name != "extract" {
		return nil, fmt.Errorf("unexpected tool call %q", call.Name)
	}

	var args extractArguments
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return nil, fmt.Errorf("malformed tool arguments: %w", err)
	}
	return &args, nil
}

// buildResult validates the extracted payload and filters features to the
// universe. Validation failures degrade to unavailable like every other
// failure mode.
func buildResult(args *extractArguments, universe map[string]struct{}) (*entities.ExtractionResult, error) {
	result := entities.NewExtractionResult()

	for _, f := range args.Features {
		if _, ok := universe[f]; ok {
			result.Features = append(result.Features, f)
		}
	}
	if args.Modifiers != nil {
		result.Modifiers = args.Modifiers
	}

	result.DemographicFields = map[string]bool{}
	if raw, ok := args.Demographics[entities.DemographicIdade]; ok {
		age, err := parseIdade(raw)
		if err != nil {
			return nil, unavailable("invalid idade", err)
		}
		result.Demographics.Idade = age
		result.DemographicFields[entities.DemographicIdade] = true
	}
	if raw, ok := args.Demographics[entities.DemographicSexo]; ok {
		sexo, err := parseSexo(raw)
		if err != nil {
			return nil, unavailable("invalid sexo", err)
		}
		result.Demographics.Sexo = sexo
		result.DemographicFields[entities.DemographicSexo] = true
	}
	if raw, ok := args.Demographics[entities.DemographicComorbidades]; ok {
		var comorbidades []string
		if err := json.Unmarshal(raw, &comorbidades); err != nil {
			return nil, unavailable("invalid comorbidades", err)
		}
		if comorbidades == nil {
			comorbidades = []string{}
		}
		result.Demographics.Comorbidades = comorbidades
		result.DemographicFields[entities.DemographicComorbidades] = true
	}

	return result, nil
}

func parseIdade(raw json.RawMessage) (*int, error) {
	var age *int
	if err := json.Unmarshal(raw, &age); err != nil {
		return nil, err
	}
	if age != nil && (*age < 0 || *age > 120) {
		return nil, fmt.Errorf("idade %d out of range", *age)
	}
	return age, nil
}

func parseSexo(raw json.RawMessage) (*string, error) {
	var sexo *string
	if err := json.Unmarshal(raw, &sexo); err != nil {
		return nil, err
	}
	if sexo != nil && *sexo != "M" && *sexo != "F" {
		return nil, fmt.Errorf("sexo %q not in enum", *sexo)
	}
	return sexo, nil
}

func unavailable(msg string, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %s: %v", providers.ErrExtractorUnavailable, msg, err)
	}
	return fmt.Errorf("%w: %s", providers.ErrExtractorUnavailable, msg)
}

func newTokenBucket(rpm int, burst int) *tokenBucket {
	if rpm == 0 {
		rpm = 60
	}
	if rpm < 0 {
		return nil
	}
	if burst <= 0 {
		burst = 5
	}
	return newTokenBucketWithRate(rpm, burst)
}

type tokenBucket struct {
	tokens chan struct{}
}

func newTokenBucketWithRate(rpm int, burst int) *tokenBucket {
	bucket := &tokenBucket{
		tokens: make(chan struct{}, burst),
	}

	for i := 0; i < burst; i++ {
		bucket.tokens <- struct{}{}
	}

	interval := time.Minute / time.Duration(rpm)
	if interval <= 0 {
		interval = time.Millisecond
	}

	ticker := time.NewTicker(interval)
	go func() {
		for range ticker.C {
			select {
			case bucket.tokens <- struct{}{}:
			default:
			}
		}
	}()

	return bucket
}

func (b *tokenBucket) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.tokens:
		return nil
	}
}

type openAIMetrics struct {
	requestCount    metric.Int64Counter
	requestDuration metric.Float64Histogram
	requestErrors   metric.Int64Counter
	rateLimitWait   metric.Float64Histogram
}

var openaiMetricsInit = false
var openaiMetrics openAIMetrics

func ensureOpenAIMetrics() {
	if openaiMetricsInit {
		return
	}
	meter := otel.Meter("github.com/robotto-health/triage-backend/openai")

	requestCount, err := meter.Int64Counter(
		"ai.openai.request.count",
		metric.WithDescription("Number of OpenAI requests"),
	)
	if err != nil {
		return
	}
	requestDuration, err := meter.Float64Histogram(
		"ai.openai.request.duration",
		metric.WithDescription("OpenAI request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return
	}
	requestErrors, err := meter.Int64Counter(
		"ai.openai.request.errors",
		metric.WithDescription("Number of OpenAI request errors"),
	)
	if err != nil {
		return
	}
	rateLimitWait, err := meter.Float64Histogram(
		"ai.openai.rate_limit.wait",
		metric.WithDescription("Time spent waiting for OpenAI rate limiter in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return
	}

	openaiMetrics = openAIMetrics{
		requestCount:    requestCount,
		requestDuration: requestDuration,
		requestErrors:   requestErrors,
		rateLimitWait:   rateLimitWait,
	}
	openaiMetricsInit = true
}

func recordOpenAIMetric(ctx context.Context, model string, statusCode int, duration time.Duration, err error) {
	ensureOpenAIMetrics()
	if !openaiMetricsInit {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("ai.provider", "openai"),
		attribute.String("ai.model", model),
	}
	if statusCode > 0 {
		attrs = append(attrs, attribute.Int("http.status_code", statusCode))
	}

	openaiMetrics.requestCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	openaiMetrics.requestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	if err != nil {
		openaiMetrics.requestErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func recordOpenAIRateLimitWait(ctx context.Context, model string, wait time.Duration) {
	ensureOpenAIMetrics()
	if !openaiMetricsInit {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("ai.provider", "openai"),
		attribute.String("ai.model", model),
	}
	openaiMetrics.rateLimitWait.Record(ctx, float64(wait.Milliseconds()), metric.WithAttributes(attrs...))
}
