// Package handlers provides HTTP handlers for the luagen server.
//
// The generation handler runs a fixed pipeline per request: method check,
// credential check, body validation, catalog fetch, model selection,
// message building, the primary completion and, for generate mode only, a
// secondary completion that produces setup steps. Every failure before the
// steps call ends the request with a JSON error; a failed steps call only
// empties the steps list.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/teilomillet/luagen/config"
	"github.com/teilomillet/luagen/errors"
	"github.com/teilomillet/luagen/server/circuitbreaker"
	"github.com/teilomillet/luagen/server/metrics"
	"github.com/teilomillet/luagen/server/middleware"
	"github.com/teilomillet/luagen/server/processing"
	"github.com/teilomillet/luagen/server/provider"
	"github.com/teilomillet/luagen/server/validation"
	"go.uber.org/zap"
)

// DefaultMaxBodyBytes bounds the request body.
const DefaultMaxBodyBytes = 1 << 20

const circuitOpenMessage = "Groq API unavailable: circuit breaker is open"

// Options carries the per-server settings the handler needs. They are fixed
// at construction; a config reload builds a new handler.
type Options struct {
	APIKey         string
	ModelOverride  string
	Temperature    float32
	MaxTokens      int
	StepsMaxTokens int
	MaxBodyBytes   int64
}

// OptionsFromConfig extracts handler options from a loaded config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		APIKey:         cfg.Provider.APIKey,
		ModelOverride:  cfg.Provider.ModelOverride,
		Temperature:    cfg.Generation.Temperature,
		MaxTokens:      cfg.Generation.MaxTokens,
		StepsMaxTokens: cfg.Generation.StepsMaxTokens,
		MaxBodyBytes:   DefaultMaxBodyBytes,
	}
}

// GenerateHandler serves script generation, fixing and updating.
type GenerateHandler struct {
	opts      Options
	client    provider.Client
	processor *processing.Processor
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewGenerateHandler creates a generation handler. m may be nil.
func NewGenerateHandler(opts Options, client provider.Client, processor *processing.Processor, m *metrics.Metrics, logger *zap.Logger) *GenerateHandler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerateHandler{
		opts:      opts,
		client:    client,
		processor: processor,
		metrics:   m,
		logger:    logger,
	}
}

// ServeHTTP implements http.Handler.
func (h *GenerateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	logger := h.logger.With(zap.String("request_id", requestID))

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.fail(w, logger, "", errors.NewMethodNotAllowedError(requestID, r.Method))
		return
	}

	if h.opts.APIKey == "" {
		h.fail(w, logger, "", errors.NewConfigError(requestID, config.EnvAPIKey+" not configured on server"))
		return
	}

	req, err := validation.ParseRequest(http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes))
	if err != nil {
		h.fail(w, logger, "", h.requestError(requestID, err))
		return
	}
	mode := string(req.Mode())
	logger = logger.With(zap.String("mode", mode))

	resp, apiErr := h.generate(r.Context(), logger, requestID, req)
	if apiErr != nil {
		h.fail(w, logger, mode, apiErr)
		return
	}

	if h.metrics != nil {
		h.metrics.GenerationsTotal.WithLabelValues(mode, "success").Inc()
	}
	logger.Info("script generated",
		zap.String("model", resp.Model),
		zap.Int("lua_bytes", len(resp.Lua)),
		zap.Int("steps", len(resp.Steps)))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}

// generate runs everything after validation. It returns either a response or
// the error to send.
func (h *GenerateHandler) generate(ctx context.Context, logger *zap.Logger, requestID string, req processing.Request) (*processing.Response, *errors.APIError) {
	catalog, err := h.client.ListModels(ctx)
	if err != nil {
		return nil, catalogError(requestID, err)
	}

	model := provider.SelectModel(catalog, h.opts.ModelOverride)
	if h.metrics != nil {
		h.metrics.ModelSelections.WithLabelValues(model).Inc()
	}
	logger = logger.With(zap.String("model", model))
	logger.Debug("model selected",
		zap.Int("catalog_size", len(catalog)),
		zap.Bool("override", model == h.opts.ModelOverride))

	messages, err := h.processor.BuildMessages(req)
	if err != nil {
		return nil, errors.NewInternalError(requestID, err).WithModel(model)
	}

	lua, err := h.client.ChatCompletion(ctx, provider.ChatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: h.opts.Temperature,
		MaxTokens:   h.opts.MaxTokens,
	})
	if err != nil {
		return nil, completionError(requestID, model, err)
	}

	steps := []string{}
	if gen, ok := req.(processing.GenerateRequest); ok {
		steps = h.planSteps(ctx, logger, model, gen.Prompt)
	}

	return &processing.Response{Lua: lua, Model: model, Steps: steps}, nil
}

// planSteps asks for setup steps. Any failure yields an empty list.
func (h *GenerateHandler) planSteps(ctx context.Context, logger *zap.Logger, model, prompt string) []string {
	text, err := h.client.ChatCompletion(ctx, provider.ChatRequest{
		Model:       model,
		Messages:    h.processor.StepsMessages(prompt),
		Temperature: h.opts.Temperature,
		MaxTokens:   h.opts.StepsMaxTokens,
	})
	if err != nil {
		if h.metrics != nil {
			h.metrics.StepsFallbacks.Inc()
		}
		logger.Warn("steps completion failed, returning no steps", zap.Error(err))
		return []string{}
	}
	return h.processor.ParseSteps(text)
}

func (h *GenerateHandler) requestError(requestID string, err error) *errors.APIError {
	var verr *validation.Error
	if errors.As(err, &verr) {
		var details map[string]interface{}
		if verr.Field != "" {
			details = map[string]interface{}{"field": verr.Field}
		}
		return errors.NewValidationError(requestID, verr.Message, details)
	}

	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return errors.NewError(errors.ValidationError, "Request body too large",
			http.StatusRequestEntityTooLarge, requestID,
			map[string]interface{}{"limit_bytes": maxErr.Limit}, err)
	}

	return errors.NewInternalError(requestID, err)
}

func catalogError(requestID string, err error) *errors.APIError {
	var statusErr *provider.StatusError
	switch {
	case errors.As(err, &statusErr):
		return errors.NewCatalogError(requestID,
			fmt.Sprintf("Models HTTP %d: %s", statusErr.Status, statusErr.Excerpt),
			statusErr.Status, err)
	case isCircuitOpen(err):
		return errors.NewCatalogError(requestID, circuitOpenMessage, http.StatusServiceUnavailable, err)
	case errors.Is(err, provider.ErrNoModels):
		return errors.NewCatalogError(requestID, "No models returned by Groq", 0, err)
	case errors.Is(err, provider.ErrInvalidCatalog):
		return errors.NewCatalogError(requestID, "Invalid models response from Groq", 0, err)
	default:
		return errors.NewCatalogError(requestID, fmt.Sprintf("Error: %v", err), 0, err)
	}
}

func completionError(requestID, model string, err error) *errors.APIError {
	var statusErr *provider.StatusError
	switch {
	case errors.As(err, &statusErr):
		return errors.NewUpstreamError(requestID, model, statusErr.Excerpt, statusErr.Status, err)
	case isCircuitOpen(err):
		return errors.NewUpstreamError(requestID, model, circuitOpenMessage, http.StatusServiceUnavailable, err)
	case errors.Is(err, provider.ErrEmptyContent):
		return errors.NewEmptyContentError(requestID, model, err)
	default:
		return errors.NewInternalError(requestID, err).WithModel(model)
	}
}

func isCircuitOpen(err error) bool {
	return errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests)
}

func (h *GenerateHandler) fail(w http.ResponseWriter, logger *zap.Logger, mode string, apiErr *errors.APIError) {
	if h.metrics != nil {
		if mode == "" {
			mode = "unknown"
		}
		h.metrics.GenerationsTotal.WithLabelValues(mode, string(apiErr.Type)).Inc()
	}
	errors.LogError(logger, apiErr, apiErr.RequestID)
	errors.WriteError(w, apiErr)
}
