// Package provider talks to Groq's OpenAI-compatible API: it lists the model
// catalog, picks a model from it and runs chat completions.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/teilomillet/luagen/server/circuitbreaker"
	"github.com/teilomillet/luagen/server/metrics"
	"github.com/teilomillet/luagen/server/processing"
	"go.uber.org/zap"
)

// Operation labels used in logs and metrics.
const (
	OpModels = "models"
	OpChat   = "chat"
)

// Client is the upstream surface the generation handler depends on.
type Client interface {
	// ListModels returns the non-blank model ids of the catalog, in order.
	ListModels(ctx context.Context) ([]string, error)
	// ChatCompletion returns the trimmed text of the first choice.
	ChatCompletion(ctx context.Context, req ChatRequest) (string, error)
}

// ChatRequest is a single chat completion call.
type ChatRequest struct {
	Model       string
	Messages    []processing.Message
	Temperature float32
	MaxTokens   int
}

// Options configures a GroqClient.
type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client

	// Breaker guards every call when set
	Breaker *circuitbreaker.CircuitBreaker
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// GroqClient implements Client with go-openai.
type GroqClient struct {
	client  *openai.Client
	breaker *circuitbreaker.CircuitBreaker
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewGroqClient creates a client for the given credential and base URL.
func NewGroqClient(opts Options) *GroqClient {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	cfg.HTTPClient = withRecording(opts.HTTPClient)

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &GroqClient{
		client:  openai.NewClientWithConfig(cfg),
		breaker: opts.Breaker,
		metrics: opts.Metrics,
		logger:  logger,
	}
}

// ListModels fetches the catalog. Entries whose id is missing, not a string
// or blank are dropped, and a data field that is not an array counts as no
// entries; an empty result is ErrNoModels. A body that is not JSON is
// ErrInvalidCatalog.
func (c *GroqClient) ListModels(ctx context.Context) ([]string, error) {
	var ids []string
	err := c.do(OpModels, func() error {
		raw := &rawBody{}
		_, err := c.client.ListModels(recordBody(ctx, raw))
		// The typed decode is stricter than the catalog contract, so a
		// decode failure on a successful status falls through to parseCatalog.
		if err != nil && !isDecodeError(err) {
			return classify(err, CatalogExcerptLimit, ErrInvalidCatalog, raw)
		}
		ids, err = parseCatalog(raw.body)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrNoModels
	}
	return ids, nil
}

// parseCatalog extracts usable ids from a /models body.
func parseCatalog(body []byte) ([]string, error) {
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: body is not JSON", ErrInvalidCatalog)
	}

	var doc struct {
		Data json.RawMessage `json:"data"`
	}
	var entries []json.RawMessage
	if json.Unmarshal(body, &doc) != nil || json.Unmarshal(doc.Data, &entries) != nil {
		return nil, nil
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		var model struct {
			ID interface{} `json:"id"`
		}
		if json.Unmarshal(entry, &model) != nil {
			continue
		}
		if id, ok := model.ID.(string); ok && strings.TrimSpace(id) != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ChatCompletion runs one completion and returns its trimmed text. A
// response without usable text is ErrEmptyContent.
func (c *GroqClient) ChatCompletion(ctx context.Context, req ChatRequest) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		// go-openai omits empty content, which the API rejects as a malformed message.
		if m.Content == "" {
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	var text string
	err := c.do(OpChat, func() error {
		raw := &rawBody{}
		resp, err := c.client.CreateChatCompletion(recordBody(ctx, raw), openai.ChatCompletionRequest{
			Model:       req.Model,
			Messages:    messages,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		})
		if err != nil {
			return classify(err, CompletionExcerptLimit, ErrEmptyContent, raw)
		}
		if len(resp.Choices) > 0 {
			text = strings.TrimSpace(resp.Choices[0].Message.Content)
		}
		if text == "" {
			return ErrEmptyContent
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// do runs fn through the breaker, if any, and records the outcome.
func (c *GroqClient) do(op string, fn func() error) error {
	start := time.Now()

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(fn)
	} else {
		err = fn()
	}

	duration := time.Since(start)
	outcome := outcomeOf(err)
	if c.metrics != nil {
		c.metrics.UpstreamRequests.WithLabelValues(op, outcome).Inc()
		c.metrics.UpstreamDuration.WithLabelValues(op).Observe(duration.Seconds())
	}

	if err != nil {
		c.logger.Debug("upstream call failed",
			zap.String("operation", op),
			zap.String("outcome", outcome),
			zap.Duration("duration", duration),
			zap.Error(err))
	}
	return err
}

// classify maps go-openai errors onto this package's errors. A non-success
// status becomes a StatusError whose excerpt is cut from the raw body; body
// decode failures on a successful status become decodeErr.
func classify(err error, limit int, decodeErr error, raw *rawBody) error {
	status := 0
	var body []byte
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
		body = reqErr.Body
	}
	if raw != nil && raw.status == status && len(raw.body) > 0 {
		body = raw.body
	}

	if status != 0 {
		excerpt := Excerpt(string(body), limit)
		if excerpt == "" {
			excerpt = http.StatusText(status)
		}
		return &StatusError{Status: status, Excerpt: excerpt, Err: err}
	}

	if isDecodeError(err) {
		return fmt.Errorf("%w: %v", decodeErr, err)
	}
	return err
}

// isDecodeError reports whether err comes from decoding a response body.
func isDecodeError(err error) bool {
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	if errors.As(err, &apiErr) || errors.As(err, &reqErr) {
		return false
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

func outcomeOf(err error) string {
	var statusErr *StatusError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, circuitbreaker.ErrCircuitOpen), errors.Is(err, circuitbreaker.ErrTooManyRequests):
		return "circuit_open"
	case errors.As(err, &statusErr):
		return "http_error"
	case errors.Is(err, ErrEmptyContent), errors.Is(err, ErrInvalidCatalog):
		return "invalid_response"
	default:
		return "error"
	}
}
