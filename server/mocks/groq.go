package mocks

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// ChatMessage is a message as received by the fake Groq API.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCall is a decoded /chat/completions request body.
type ChatCall struct {
	Model       string        `json:"model"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Messages    []ChatMessage `json:"messages"`
}

// ChatFunc produces the status and raw body for a completion call. n is the
// 1-based index of the call.
type ChatFunc func(n int, call ChatCall) (status int, body string)

// GroqServer is an httptest server speaking the subset of Groq's
// OpenAI-compatible API used by luagen: GET /models and POST /chat/completions.
//
// Example usage:
//
//	groq := NewGroqServer("llama-3.3-70b-versatile")
//	defer groq.Close()
//	groq.SetChat(func(n int, call ChatCall) (int, string) {
//	    return http.StatusOK, ChatReply("print('hi')")
//	})
type GroqServer struct {
	*httptest.Server

	mu           sync.Mutex
	apiKey       string
	modelsStatus int
	modelsBody   string
	chat         ChatFunc
	modelsCalls  int
	chats        []ChatCall
}

// NewGroqServer starts a fake API whose catalog lists models and whose
// completions all answer "-- ok".
func NewGroqServer(models ...string) *GroqServer {
	g := &GroqServer{
		modelsStatus: http.StatusOK,
		modelsBody:   ModelsBody(models...),
		chat: func(int, ChatCall) (int, string) {
			return http.StatusOK, ChatReply("-- ok")
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/models", g.handleModels)
	mux.HandleFunc("/chat/completions", g.handleChat)
	g.Server = httptest.NewServer(mux)
	return g
}

// RequireAPIKey makes every endpoint answer 401 unless the bearer matches.
func (g *GroqServer) RequireAPIKey(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.apiKey = key
}

// SetModels replaces the /models response.
func (g *GroqServer) SetModels(status int, body string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.modelsStatus = status
	g.modelsBody = body
}

// SetChat replaces the /chat/completions behavior.
func (g *GroqServer) SetChat(fn ChatFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chat = fn
}

// ModelsCalls returns how many catalog requests were served.
func (g *GroqServer) ModelsCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.modelsCalls
}

// ChatCalls returns a copy of every completion request received.
func (g *GroqServer) ChatCalls() []ChatCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]ChatCall, len(g.chats))
	copy(out, g.chats)
	return out
}

// TotalCalls counts every request that reached an endpoint.
func (g *GroqServer) TotalCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.modelsCalls + len(g.chats)
}

func (g *GroqServer) authorized(r *http.Request) bool {
	return g.apiKey == "" || r.Header.Get("Authorization") == "Bearer "+g.apiKey
}

func (g *GroqServer) handleModels(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	g.modelsCalls++
	status, body, ok := g.modelsStatus, g.modelsBody, g.authorized(r)
	g.mu.Unlock()

	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !ok {
		status, body = http.StatusUnauthorized, ErrorBody("Invalid API Key")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

func (g *GroqServer) handleChat(w http.ResponseWriter, r *http.Request) {
	var call ChatCall
	if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
		http.Error(w, ErrorBody("bad request body"), http.StatusBadRequest)
		return
	}

	g.mu.Lock()
	g.chats = append(g.chats, call)
	n, fn, ok := len(g.chats), g.chat, g.authorized(r)
	g.mu.Unlock()

	status, body := http.StatusUnauthorized, ErrorBody("Invalid API Key")
	if ok {
		status, body = fn(n, call)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

// ModelsBody renders a catalog response listing ids.
func ModelsBody(ids ...string) string {
	entries := make([]string, 0, len(ids))
	for _, id := range ids {
		b, _ := json.Marshal(id)
		entries = append(entries, fmt.Sprintf(`{"id":%s,"object":"model","owned_by":"Meta"}`, b))
	}
	return `{"object":"list","data":[` + strings.Join(entries, ",") + `]}`
}

// ChatReply renders a successful completion whose first choice says content.
func ChatReply(content string) string {
	b, _ := json.Marshal(content)
	return fmt.Sprintf(`{"id":"chatcmpl-1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":%s},"finish_reason":"stop"}]}`, b)
}

// ErrorBody renders an OpenAI-style error envelope.
func ErrorBody(message string) string {
	b, _ := json.Marshal(message)
	return fmt.Sprintf(`{"error":{"message":%s,"type":"invalid_request_error"}}`, b)
}
