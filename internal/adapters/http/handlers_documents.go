package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
)

func (rt *Router) documentsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			rt.uploadDocument(w, r)
			return
		}
		rt.createDocument(w, r)
	case http.MethodGet:
		rt.listDocuments(w, r)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	doc, err := rt.ingestor.Upload(
		r.Context(),
		userIDFromContext(r.Context()),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		r.FormValue("parent_folder"),
		file,
	)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

// createDocument registers metadata only; the payload arrives later via
// the content route. This is the two-step intake used by clients that
// want a document id before the bytes exist.
func (rt *Router) createDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FileName     string `json:"file_name"`
		MimeType     string `json:"mime_type"`
		SizeBytes    int64  `json:"size_bytes"`
		ParentFolder string `json:"parent_folder"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	doc, err := rt.ingestor.Create(
		r.Context(),
		userIDFromContext(r.Context()),
		req.FileName,
		req.MimeType,
		req.ParentFolder,
		req.SizeBytes,
	)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, doc)
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := rt.reader.List(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (rt *Router) ingestFromURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		URL          string `json:"url"`
		ParentFolder string `json:"parent_folder"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	doc, err := rt.ingestor.FromURL(r.Context(), userIDFromContext(r.Context()), req.URL, req.ParentFolder)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) documentsSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/documents/"), "/")
	if rest == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	segments := strings.Split(rest, "/")
	switch {
	case len(segments) == 1:
		switch r.Method {
		case http.MethodGet:
			rt.getDocument(w, r, segments[0])
		case http.MethodDelete:
			rt.deleteDocument(w, r, segments[0])
		default:
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		}
	case len(segments) == 2 && segments[1] == "content":
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		rt.attachContent(w, r, segments[0])
	case len(segments) == 2 && segments[1] == "retry":
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		rt.retryDocument(w, r, segments[0])
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	}
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request, id string) {
	doc, err := rt.reader.GetByID(r.Context(), userIDFromContext(r.Context()), id)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request, id string) {
	if err := rt.ingestor.Delete(r.Context(), userIDFromContext(r.Context()), id); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) attachContent(w http.ResponseWriter, r *http.Request, id string) {
	doc, err := rt.ingestor.AttachContent(r.Context(), userIDFromContext(r.Context()), id, r.Body)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true, "document_id": doc.ID})
}

func (rt *Router) retryDocument(w http.ResponseWriter, r *http.Request, id string) {
	doc, err := rt.ingestor.Retry(r.Context(), userIDFromContext(r.Context()), id)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}
