package httpadapter

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/docstack/internal/core/domain"
)

// OpenAI-compatible chat surface. External chat UIs speak the OpenAI
// wire format; these two handlers translate it onto the retrieval
// pipeline so such clients can query the document store without a
// custom integration. Only the chat-completions subset is served.

type chatCompletionRequest struct {
	Model    string               `json:"model"`
	Messages []chatRequestMessage `json:"messages"`
	Stream   bool                 `json:"stream"`
}

// chatRequestMessage leaves content raw because OpenAI clients send
// either a plain string or an array of typed parts.
type chatRequestMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type chatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
	// Sources carries retrieval attribution; clients that only know
	// the OpenAI schema ignore it.
	Sources []domain.Source `json:"sources,omitempty"`
}

type chatChoice struct {
	Index        int                 `json:"index"`
	Message      chatResponseMessage `json:"message"`
	FinishReason string              `json:"finish_reason"`
}

type chatResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatCompletionChunk struct {
	ID      string            `json:"id"`
	Object  string            `json:"object"`
	Created int64             `json:"created"`
	Model   string            `json:"model"`
	Choices []chatChunkChoice `json:"choices"`
}

type chatChunkChoice struct {
	Index        int       `json:"index"`
	Delta        chatDelta `json:"delta"`
	FinishReason *string   `json:"finish_reason"`
}

type chatDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type modelObject struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

func isOpenAICompatPath(path string) bool {
	switch path {
	case "/v1/models", "/v1/chat/completions":
		return true
	default:
		return false
	}
}

// compatAuthorized checks the bearer key OpenAI clients send in place
// of the X-User-ID identity. An empty configured key leaves the compat
// surface open.
func (rt *Router) compatAuthorized(r *http.Request) bool {
	expected := rt.cfg.OpenAICompatAPIKey
	if expected == "" {
		return true
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(header, bearerPrefix) {
		return false
	}
	return strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix)) == expected
}

func (rt *Router) listModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if !rt.compatAuthorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"object": "list",
		"data": []modelObject{{
			ID:      rt.compatModelID(""),
			Object:  "model",
			Created: time.Now().Unix(),
			OwnedBy: "docstack",
		}},
	})
}

func (rt *Router) chatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if !rt.compatAuthorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var req chatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if len(req.Messages) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "messages are required"})
		return
	}
	lastUser, ok := latestUserText(req.Messages)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "at least one user message with text content is required"})
		return
	}

	question := foldConversation(req.Messages, lastUser, rt.cfg.OpenAICompatContextMessages)

	// Compat clients replay the whole transcript each call, so every
	// request is persisted as a standalone exchange.
	start := time.Now()
	answer, err := rt.query.Ask(r.Context(), userIDFromContext(r.Context()), "", question)

	sourceCount := 0
	if answer != nil {
		sourceCount = len(answer.Sources)
	}
	rt.metrics.RecordQuery(serviceName, sourceCount, time.Since(start), err)

	if err != nil {
		respondError(w, err)
		return
	}

	completionID := fmt.Sprintf("chatcmpl-%d", time.Now().UnixNano())
	created := time.Now().Unix()
	modelID := rt.compatModelID(req.Model)

	if req.Stream {
		rt.streamCompletion(w, completionID, created, modelID, answer.Text)
		return
	}

	writeJSON(w, http.StatusOK, chatCompletionResponse{
		ID:      completionID,
		Object:  "chat.completion",
		Created: created,
		Model:   modelID,
		Choices: []chatChoice{{
			Index:        0,
			Message:      chatResponseMessage{Role: "assistant", Content: answer.Text},
			FinishReason: "stop",
		}},
		Usage:   estimateUsage(question, answer.Text),
		Sources: answer.Sources,
	})
}

// streamCompletion replays the finished answer as OpenAI-style deltas.
// Generation itself is not incremental; this keeps chat UIs that insist
// on stream=true working.
func (rt *Router) streamCompletion(w http.ResponseWriter, completionID string, created int64, modelID, text string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming is not supported by response writer"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for i, part := range splitByRunes(text, rt.cfg.OpenAICompatStreamChunkChars) {
		delta := chatDelta{Content: part}
		if i == 0 {
			delta.Role = "assistant"
		}
		writeSSEChunk(w, chatCompletionChunk{
			ID:      completionID,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   modelID,
			Choices: []chatChunkChoice{{Index: 0, Delta: delta}},
		})
		flusher.Flush()
	}

	finish := "stop"
	writeSSEChunk(w, chatCompletionChunk{
		ID:      completionID,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   modelID,
		Choices: []chatChunkChoice{{Index: 0, FinishReason: &finish}},
	})
	_, _ = io.WriteString(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func writeSSEChunk(w io.Writer, chunk chatCompletionChunk) {
	payload, err := json.Marshal(chunk)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", payload)
}

func (rt *Router) compatModelID(requested string) string {
	if id := strings.TrimSpace(requested); id != "" {
		return id
	}
	if rt.cfg.OpenAICompatModelID != "" {
		return rt.cfg.OpenAICompatModelID
	}
	return "docstack-rag-v1"
}

func latestUserText(messages []chatRequestMessage) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != "user" {
			continue
		}
		if text := messageText(messages[i]); text != "" {
			return text, true
		}
	}
	return "", false
}

func messageText(m chatRequestMessage) string {
	if len(m.Content) == 0 {
		return ""
	}

	var plain string
	if err := json.Unmarshal(m.Content, &plain); err == nil {
		return strings.TrimSpace(plain)
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(m.Content, &parts); err != nil {
		return ""
	}
	texts := make([]string, 0, len(parts))
	for _, part := range parts {
		var s string
		if err := json.Unmarshal(part, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				texts = append(texts, s)
			}
			continue
		}
		var typed struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(part, &typed); err == nil {
			if s := strings.TrimSpace(typed.Text); s != "" {
				texts = append(texts, s)
			}
		}
	}
	return strings.TrimSpace(strings.Join(texts, "\n"))
}

// foldConversation bakes the client's recent turns into the question,
// since each compat call runs as its own retrieval exchange.
func foldConversation(messages []chatRequestMessage, lastUser string, contextMessages int) string {
	if contextMessages <= 1 {
		return lastUser
	}

	start := len(messages) - contextMessages
	if start < 0 {
		start = 0
	}
	lines := make([]string, 0, contextMessages)
	for _, msg := range messages[start:] {
		switch msg.Role {
		case "user", "assistant", "system":
		default:
			continue
		}
		text := messageText(msg)
		if text == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", msg.Role, text))
	}
	if len(lines) <= 1 {
		return lastUser
	}

	return fmt.Sprintf("Conversation context:\n%s\n\nCurrent user question:\n%s", strings.Join(lines, "\n"), lastUser)
}

func splitByRunes(text string, size int) []string {
	if size <= 0 {
		size = 120
	}
	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}

	parts := make([]string, 0, len(runes)/size+1)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[start:end]))
	}
	return parts
}

// estimateUsage reports whitespace-token counts. The backing models do
// not expose real token accounting through this surface.
func estimateUsage(prompt, completion string) chatUsage {
	promptTokens := len(strings.Fields(prompt))
	completionTokens := len(strings.Fields(completion))
	return chatUsage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
}
