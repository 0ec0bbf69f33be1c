package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/docstack/internal/config"
	"github.com/kirillkom/docstack/internal/core/domain"
)

type ingestorFake struct {
	uploadFn  func(ctx context.Context, userID, fileName, mimeType, parentFolder string, body io.Reader) (*domain.Document, error)
	createFn  func(ctx context.Context, userID, fileName, mimeType, parentFolder string, sizeBytes int64) (*domain.Document, error)
	attachFn  func(ctx context.Context, userID, documentID string, body io.Reader) (*domain.Document, error)
	fromURLFn func(ctx context.Context, userID, rawURL, parentFolder string) (*domain.Document, error)
	retryFn   func(ctx context.Context, userID, documentID string) (*domain.Document, error)
	deleteFn  func(ctx context.Context, userID, documentID string) error
}

func (f ingestorFake) Upload(ctx context.Context, userID, fileName, mimeType, parentFolder string, body io.Reader) (*domain.Document, error) {
	if f.uploadFn != nil {
		return f.uploadFn(ctx, userID, fileName, mimeType, parentFolder, body)
	}
	return stockDocument(userID), nil
}

func (f ingestorFake) Create(ctx context.Context, userID, fileName, mimeType, parentFolder string, sizeBytes int64) (*domain.Document, error) {
	if f.createFn != nil {
		return f.createFn(ctx, userID, fileName, mimeType, parentFolder, sizeBytes)
	}
	return stockDocument(userID), nil
}

func (f ingestorFake) AttachContent(ctx context.Context, userID, documentID string, body io.Reader) (*domain.Document, error) {
	if f.attachFn != nil {
		return f.attachFn(ctx, userID, documentID, body)
	}
	return stockDocument(userID), nil
}

func (f ingestorFake) FromURL(ctx context.Context, userID, rawURL, parentFolder string) (*domain.Document, error) {
	if f.fromURLFn != nil {
		return f.fromURLFn(ctx, userID, rawURL, parentFolder)
	}
	return stockDocument(userID), nil
}

func (f ingestorFake) Retry(ctx context.Context, userID, documentID string) (*domain.Document, error) {
	if f.retryFn != nil {
		return f.retryFn(ctx, userID, documentID)
	}
	return stockDocument(userID), nil
}

func (f ingestorFake) Delete(ctx context.Context, userID, documentID string) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, userID, documentID)
	}
	return nil
}

type queryFake struct {
	askFn     func(ctx context.Context, userID, conversationID, question string) (*domain.Answer, error)
	searchFn  func(ctx context.Context, userID, query string) ([]domain.ScoredChunk, error)
	historyFn func(ctx context.Context, userID, conversationID string) ([]domain.Message, error)
}

func (f queryFake) Ask(ctx context.Context, userID, conversationID, question string) (*domain.Answer, error) {
	if f.askFn != nil {
		return f.askFn(ctx, userID, conversationID, question)
	}
	return &domain.Answer{Text: "ok", ConversationID: "conv-1"}, nil
}

func (f queryFake) Search(ctx context.Context, userID, query string) ([]domain.ScoredChunk, error) {
	if f.searchFn != nil {
		return f.searchFn(ctx, userID, query)
	}
	return nil, nil
}

func (f queryFake) History(ctx context.Context, userID, conversationID string) ([]domain.Message, error) {
	if f.historyFn != nil {
		return f.historyFn(ctx, userID, conversationID)
	}
	return nil, nil
}

type classifierFake struct {
	classifyFn func(ctx context.Context, userID, text, fileName string, existingFolders []string) (string, error)
}

func (f classifierFake) ClassifyText(ctx context.Context, userID, text, fileName string, existingFolders []string) (string, error) {
	if f.classifyFn != nil {
		return f.classifyFn(ctx, userID, text, fileName, existingFolders)
	}
	return domain.FolderUncategorized, nil
}

type readerFake struct {
	getFn  func(ctx context.Context, userID, id string) (*domain.Document, error)
	listFn func(ctx context.Context, userID string) ([]domain.Document, error)
}

func (f readerFake) GetByID(ctx context.Context, userID, id string) (*domain.Document, error) {
	if f.getFn != nil {
		return f.getFn(ctx, userID, id)
	}
	return stockDocument(userID), nil
}

func (f readerFake) List(ctx context.Context, userID string) ([]domain.Document, error) {
	if f.listFn != nil {
		return f.listFn(ctx, userID)
	}
	return nil, nil
}

func stockDocument(userID string) *domain.Document {
	now := time.Now().UTC()
	return &domain.Document{
		ID:        "doc-1",
		UserID:    userID,
		FileName:  "report.pdf",
		MimeType:  "application/pdf",
		SizeBytes: 2048,
		Source:    domain.SourceFile,
		Status:    domain.StatusProcessing,
		Stage:     domain.StagePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newTestHandler(cfg config.Config) http.Handler {
	return NewRouter(cfg, ingestorFake{}, queryFake{}, classifierFake{}, readerFake{}).Handler()
}

func authedRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.Header.Set(userIDHeader, "user-1")
	return req
}

func TestHealthzEndpoint(t *testing.T) {
	handler := newTestHandler(config.Defaults())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}

func TestMetricsEndpointIsOpen(t *testing.T) {
	handler := newTestHandler(config.Defaults())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "docstack_http_in_flight_requests") {
		t.Fatalf("expected exposition to include the in-flight gauge, got %q", res.Body.String())
	}
}

func TestVersionedRoutesRequireUserHeader(t *testing.T) {
	handler := newTestHandler(config.Defaults())

	req := httptest.NewRequest(http.MethodGet, "/v1/documents", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without user header, got %d", res.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.Contains(resp["error"], "X-User-ID") {
		t.Fatalf("expected error naming the missing header, got %q", resp["error"])
	}
}

func TestUploadDocumentSuccess(t *testing.T) {
	var gotUser, gotName, gotMime, gotFolder string
	ingestor := ingestorFake{
		uploadFn: func(_ context.Context, userID, fileName, mimeType, parentFolder string, body io.Reader) (*domain.Document, error) {
			gotUser, gotName, gotMime, gotFolder = userID, fileName, mimeType, parentFolder
			if _, err := io.ReadAll(body); err != nil {
				t.Fatalf("read upload body: %v", err)
			}
			return stockDocument(userID), nil
		},
	}
	handler := NewRouter(config.Defaults(), ingestor, queryFake{}, classifierFake{}, readerFake{}).Handler()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "file.txt")
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := part.Write([]byte("hello")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := writer.WriteField("parent_folder", "Finance"); err != nil {
		t.Fatalf("WriteField() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	req := authedRequest(http.MethodPost, "/v1/documents", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	if gotUser != "user-1" || gotName != "file.txt" || gotFolder != "Finance" {
		t.Fatalf("unexpected upload args: user=%q name=%q folder=%q", gotUser, gotName, gotFolder)
	}
	if gotMime != "application/octet-stream" {
		t.Fatalf("expected part content type to pass through, got %q", gotMime)
	}

	var docResp map[string]any
	if err := json.NewDecoder(res.Body).Decode(&docResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if docResp["id"] != "doc-1" {
		t.Fatalf("unexpected response: %+v", docResp)
	}
}

func TestUploadDocumentMissingFilePart(t *testing.T) {
	handler := newTestHandler(config.Defaults())

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("other", "value"); err != nil {
		t.Fatalf("WriteField() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	req := authedRequest(http.MethodPost, "/v1/documents", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestCreateDocumentRegistersRecord(t *testing.T) {
	var gotName string
	var gotSize int64
	ingestor := ingestorFake{
		createFn: func(_ context.Context, userID, fileName, _, _ string, sizeBytes int64) (*domain.Document, error) {
			gotName, gotSize = fileName, sizeBytes
			return stockDocument(userID), nil
		},
	}
	handler := NewRouter(config.Defaults(), ingestor, queryFake{}, classifierFake{}, readerFake{}).Handler()

	payload, _ := json.Marshal(map[string]any{
		"file_name":  "notes.txt",
		"mime_type":  "text/plain",
		"size_bytes": 512,
	})
	req := authedRequest(http.MethodPost, "/v1/documents", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	if gotName != "notes.txt" || gotSize != 512 {
		t.Fatalf("unexpected create args: name=%q size=%d", gotName, gotSize)
	}
}

func TestAttachContentAcceptsPayload(t *testing.T) {
	var gotID, gotBody string
	ingestor := ingestorFake{
		attachFn: func(_ context.Context, userID, documentID string, body io.Reader) (*domain.Document, error) {
			raw, err := io.ReadAll(body)
			if err != nil {
				return nil, err
			}
			gotID, gotBody = documentID, string(raw)
			return stockDocument(userID), nil
		},
	}
	handler := NewRouter(config.Defaults(), ingestor, queryFake{}, classifierFake{}, readerFake{}).Handler()

	req := authedRequest(http.MethodPost, "/v1/documents/doc-1/content", strings.NewReader("raw bytes"))
	req.Header.Set("Content-Type", "application/octet-stream")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	if gotID != "doc-1" || gotBody != "raw bytes" {
		t.Fatalf("unexpected attach args: id=%q body=%q", gotID, gotBody)
	}

	var resp map[string]any
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["accepted"] != true || resp["document_id"] != "doc-1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestIngestFromURLAccepted(t *testing.T) {
	var gotURL, gotFolder string
	ingestor := ingestorFake{
		fromURLFn: func(_ context.Context, userID, rawURL, parentFolder string) (*domain.Document, error) {
			gotURL, gotFolder = rawURL, parentFolder
			doc := stockDocument(userID)
			doc.Source = domain.SourceURL
			return doc, nil
		},
	}
	handler := NewRouter(config.Defaults(), ingestor, queryFake{}, classifierFake{}, readerFake{}).Handler()

	payload, _ := json.Marshal(map[string]string{
		"url":           "https://example.com/post",
		"parent_folder": "Research",
	})
	req := authedRequest(http.MethodPost, "/v1/documents/url", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	if gotURL != "https://example.com/post" || gotFolder != "Research" {
		t.Fatalf("unexpected url args: url=%q folder=%q", gotURL, gotFolder)
	}
}

func TestRetryDocumentAccepted(t *testing.T) {
	var gotID string
	ingestor := ingestorFake{
		retryFn: func(_ context.Context, userID, documentID string) (*domain.Document, error) {
			gotID = documentID
			return stockDocument(userID), nil
		},
	}
	handler := NewRouter(config.Defaults(), ingestor, queryFake{}, classifierFake{}, readerFake{}).Handler()

	req := authedRequest(http.MethodPost, "/v1/documents/doc-9/retry", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	if gotID != "doc-9" {
		t.Fatalf("expected retry for doc-9, got %q", gotID)
	}
}

func TestDeleteDocumentNoContent(t *testing.T) {
	var gotUser, gotID string
	ingestor := ingestorFake{
		deleteFn: func(_ context.Context, userID, documentID string) error {
			gotUser, gotID = userID, documentID
			return nil
		},
	}
	handler := NewRouter(config.Defaults(), ingestor, queryFake{}, classifierFake{}, readerFake{}).Handler()

	req := authedRequest(http.MethodDelete, "/v1/documents/doc-1", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
	if gotUser != "user-1" || gotID != "doc-1" {
		t.Fatalf("unexpected delete args: user=%q id=%q", gotUser, gotID)
	}
}

func TestListDocumentsReturnsOwnedSet(t *testing.T) {
	reader := readerFake{
		listFn: func(_ context.Context, userID string) ([]domain.Document, error) {
			return []domain.Document{*stockDocument(userID), *stockDocument(userID)}, nil
		},
	}
	handler := NewRouter(config.Defaults(), ingestorFake{}, queryFake{}, classifierFake{}, reader).Handler()

	req := authedRequest(http.MethodGet, "/v1/documents", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}

	var resp struct {
		Documents []domain.Document `json:"documents"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Documents) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(resp.Documents))
	}
}

func TestGetDocumentExposesProcessingState(t *testing.T) {
	reader := readerFake{
		getFn: func(_ context.Context, userID, id string) (*domain.Document, error) {
			doc := stockDocument(userID)
			doc.ID = id
			doc.Status = domain.StatusProcessing
			doc.Stage = domain.StageEmbedding
			doc.Progress = 72
			return doc, nil
		},
	}
	handler := NewRouter(config.Defaults(), ingestorFake{}, queryFake{}, classifierFake{}, reader).Handler()

	req := authedRequest(http.MethodGet, "/v1/documents/doc-1", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}

	var resp map[string]any
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "processing" || resp["processing_stage"] != "embedding" {
		t.Fatalf("unexpected state fields: %+v", resp)
	}
	if resp["processing_progress"] != float64(72) {
		t.Fatalf("expected progress 72, got %v", resp["processing_progress"])
	}
}
