package provider_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teilomillet/luagen/server/circuitbreaker"
	"github.com/teilomillet/luagen/server/metrics"
	"github.com/teilomillet/luagen/server/mocks"
	"github.com/teilomillet/luagen/server/processing"
	"github.com/teilomillet/luagen/server/provider"
	"go.uber.org/zap"
)

func newClient(groq *mocks.GroqServer, opts provider.Options) *provider.GroqClient {
	opts.BaseURL = groq.URL
	if opts.APIKey == "" {
		opts.APIKey = "test-key"
	}
	return provider.NewGroqClient(opts)
}

func TestListModels(t *testing.T) {
	groq := mocks.NewGroqServer()
	defer groq.Close()
	groq.RequireAPIKey("test-key")
	groq.SetModels(http.StatusOK, `{"data":[{"id":"llama-3.3-70b-versatile"},{"id":"  "},{},{"id":null},{"id":5},{"id":["x"]},null,"gemma2-9b-it",{"id":"whisper-large-v3"}]}`)

	ids, err := newClient(groq, provider.Options{}).ListModels(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"llama-3.3-70b-versatile", "whisper-large-v3"}, ids)
	assert.Equal(t, 1, groq.ModelsCalls())
}

func TestListModelsSkipsNonStringIDs(t *testing.T) {
	groq := mocks.NewGroqServer()
	defer groq.Close()
	groq.SetModels(http.StatusOK, `{"data":[{"id":5},{"id":"llama-3.3-70b-versatile"}]}`)

	ids, err := newClient(groq, provider.Options{}).ListModels(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"llama-3.3-70b-versatile"}, ids)
}

func TestListModelsErrors(t *testing.T) {
	long := strings.Repeat("x", 3000)

	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantErr    error
		excerpt    string
	}{
		{
			name:       "api error keeps the raw body",
			status:     http.StatusUnauthorized,
			body:       mocks.ErrorBody("Invalid API Key"),
			wantStatus: http.StatusUnauthorized,
			excerpt:    mocks.ErrorBody("Invalid API Key"),
		},
		{
			name:       "plain text error",
			status:     http.StatusBadGateway,
			body:       "bad gateway plain text\n",
			wantStatus: http.StatusBadGateway,
			excerpt:    "bad gateway plain text",
		},
		{
			name:       "long error is truncated",
			status:     http.StatusInternalServerError,
			body:       long,
			wantStatus: http.StatusInternalServerError,
			excerpt:    long[:provider.CatalogExcerptLimit],
		},
		{
			name:       "empty error body",
			status:     http.StatusServiceUnavailable,
			body:       "",
			wantStatus: http.StatusServiceUnavailable,
			excerpt:    "Service Unavailable",
		},
		{
			name:    "empty catalog",
			status:  http.StatusOK,
			body:    `{"data":[]}`,
			wantErr: provider.ErrNoModels,
		},
		{
			name:    "missing data",
			status:  http.StatusOK,
			body:    `{}`,
			wantErr: provider.ErrNoModels,
		},
		{
			name:    "blank ids only",
			status:  http.StatusOK,
			body:    mocks.ModelsBody(" ", ""),
			wantErr: provider.ErrNoModels,
		},
		{
			name:    "non-string ids only",
			status:  http.StatusOK,
			body:    `{"data":[{"id":5},{"id":true}]}`,
			wantErr: provider.ErrNoModels,
		},
		{
			name:    "data is an object",
			status:  http.StatusOK,
			body:    `{"data":{}}`,
			wantErr: provider.ErrNoModels,
		},
		{
			name:    "data is a string",
			status:  http.StatusOK,
			body:    `{"data":"llama"}`,
			wantErr: provider.ErrNoModels,
		},
		{
			name:    "not json",
			status:  http.StatusOK,
			body:    `<html>`,
			wantErr: provider.ErrInvalidCatalog,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groq := mocks.NewGroqServer()
			defer groq.Close()
			groq.SetModels(tt.status, tt.body)

			ids, err := newClient(groq, provider.Options{}).ListModels(context.Background())
			require.Error(t, err)
			assert.Nil(t, ids)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			var statusErr *provider.StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tt.wantStatus, statusErr.Status)
			assert.LessOrEqual(t, utf8.RuneCountInString(statusErr.Excerpt), provider.CatalogExcerptLimit)
			assert.Equal(t, tt.excerpt, statusErr.Excerpt)
		})
	}
}

func TestChatCompletion(t *testing.T) {
	groq := mocks.NewGroqServer("llama-3.3-70b-versatile")
	defer groq.Close()
	groq.SetChat(func(n int, call mocks.ChatCall) (int, string) {
		return http.StatusOK, mocks.ChatReply("\n  print('hello')  \n")
	})

	text, err := newClient(groq, provider.Options{}).ChatCompletion(context.Background(), provider.ChatRequest{
		Model: "llama-3.3-70b-versatile",
		Messages: []processing.Message{
			{Role: processing.RoleSystem, Content: "system"},
			{Role: processing.RoleUser, Content: "add a timer"},
			{Role: processing.RoleUser, Content: ""},
		},
		Temperature: 0.2,
		MaxTokens:   1200,
	})

	require.NoError(t, err)
	assert.Equal(t, "print('hello')", text)

	calls := groq.ChatCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "llama-3.3-70b-versatile", calls[0].Model)
	assert.InDelta(t, 0.2, calls[0].Temperature, 1e-6)
	assert.Equal(t, 1200, calls[0].MaxTokens)
	assert.Equal(t, []mocks.ChatMessage{
		{Role: "system", Content: "system"},
		{Role: "user", Content: "add a timer"},
	}, calls[0].Messages)
}

func TestChatCompletionErrors(t *testing.T) {
	long := strings.Repeat("é", 2500)

	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantErr    error
		excerpt    string
	}{
		{
			name:       "rate limited keeps the raw json body",
			status:     http.StatusTooManyRequests,
			body:       mocks.ErrorBody("Rate limit reached"),
			wantStatus: http.StatusTooManyRequests,
			excerpt:    mocks.ErrorBody("Rate limit reached"),
		},
		{
			name:       "html error page",
			status:     http.StatusServiceUnavailable,
			body:       "<html>upstream overloaded</html>",
			wantStatus: http.StatusServiceUnavailable,
			excerpt:    "<html>upstream overloaded</html>",
		},
		{
			name:       "long error is truncated by runes",
			status:     http.StatusBadRequest,
			body:       long,
			wantStatus: http.StatusBadRequest,
			excerpt:    strings.Repeat("é", provider.CompletionExcerptLimit),
		},
		{
			name:    "blank content",
			status:  http.StatusOK,
			body:    mocks.ChatReply("   "),
			wantErr: provider.ErrEmptyContent,
		},
		{
			name:    "no choices",
			status:  http.StatusOK,
			body:    `{"choices":[]}`,
			wantErr: provider.ErrEmptyContent,
		},
		{
			name:    "not json",
			status:  http.StatusOK,
			body:    `not json`,
			wantErr: provider.ErrEmptyContent,
		},
		{
			name:    "empty body",
			status:  http.StatusOK,
			body:    ``,
			wantErr: provider.ErrEmptyContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groq := mocks.NewGroqServer("m")
			defer groq.Close()
			groq.SetChat(func(int, mocks.ChatCall) (int, string) { return tt.status, tt.body })

			text, err := newClient(groq, provider.Options{}).ChatCompletion(context.Background(), provider.ChatRequest{
				Model:    "m",
				Messages: []processing.Message{{Role: processing.RoleUser, Content: "x"}},
			})
			require.Error(t, err)
			assert.Empty(t, text)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			var statusErr *provider.StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tt.wantStatus, statusErr.Status)
			assert.Equal(t, tt.excerpt, statusErr.Excerpt)
		})
	}
}

func TestGroqClientWithBreaker(t *testing.T) {
	groq := mocks.NewGroqServer("m")
	defer groq.Close()
	groq.SetChat(func(int, mocks.ChatCall) (int, string) {
		return http.StatusServiceUnavailable, mocks.ErrorBody("over capacity")
	})

	breaker, err := circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
		Name:             "groq",
		MaxRequests:      1,
		Timeout:          time.Minute,
		FailureThreshold: 1,
		TestMode:         true,
		IsSuccessful:     provider.IsBreakerSuccess,
	}, zap.NewNop(), nil)
	require.NoError(t, err)

	m := metrics.NewMetrics()
	client := newClient(groq, provider.Options{Breaker: breaker, Metrics: m})
	req := provider.ChatRequest{Model: "m", Messages: []processing.Message{{Role: processing.RoleUser, Content: "x"}}}

	_, err = client.ChatCompletion(context.Background(), req)
	var statusErr *provider.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.Status)

	_, err = client.ChatCompletion(context.Background(), req)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Len(t, groq.ChatCalls(), 1)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.UpstreamRequests.WithLabelValues(provider.OpChat, "http_error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.UpstreamRequests.WithLabelValues(provider.OpChat, "circuit_open")))
}

func TestIsBreakerSuccess(t *testing.T) {
	assert.True(t, provider.IsBreakerSuccess(nil))
	assert.True(t, provider.IsBreakerSuccess(context.Canceled))
	assert.True(t, provider.IsBreakerSuccess(provider.ErrEmptyContent))
	assert.True(t, provider.IsBreakerSuccess(&provider.StatusError{Status: http.StatusBadRequest}))
	assert.False(t, provider.IsBreakerSuccess(&provider.StatusError{Status: http.StatusTooManyRequests}))
	assert.False(t, provider.IsBreakerSuccess(&provider.StatusError{Status: http.StatusBadGateway}))
	assert.False(t, provider.IsBreakerSuccess(context.DeadlineExceeded))
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "abc", provider.Excerpt("  abc \n", 10))
	assert.Equal(t, "ab", provider.Excerpt("abc", 2))
	assert.Equal(t, "日本", provider.Excerpt("日本語", 2))
}
