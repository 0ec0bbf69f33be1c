package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// classify answers synchronously so upload dialogs can suggest a folder
// before the file is even submitted. The classifier falls back to a
// vocabulary label on model failure, so errors here mean bad input,
// never a broken model.
func (rt *Router) classify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Text            string   `json:"text"`
		FileName        string   `json:"file_name"`
		ExistingFolders []string `json:"existing_folders"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text is required"})
		return
	}

	folder, err := rt.classifier.ClassifyText(
		r.Context(),
		userIDFromContext(r.Context()),
		req.Text,
		req.FileName,
		req.ExistingFolders,
	)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"folder": folder})
}

func (rt *Router) queryDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Question       string `json:"question"`
		ConversationID string `json:"conversation_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	start := time.Now()
	answer, err := rt.query.Ask(r.Context(), userIDFromContext(r.Context()), req.ConversationID, req.Question)

	sourceCount := 0
	if answer != nil {
		sourceCount = len(answer.Sources)
	}
	rt.metrics.RecordQuery(serviceName, sourceCount, time.Since(start), err)

	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) conversationsSubtree(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/conversations/"), "/")
	segments := strings.Split(rest, "/")
	if len(segments) != 2 || segments[0] == "" || segments[1] != "messages" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	messages, err := rt.query.History(r.Context(), userIDFromContext(r.Context()), segments[0])
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}
