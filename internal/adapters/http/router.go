package httpadapter

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/routers"

	"github.com/kirillkom/docstack/internal/config"
	"github.com/kirillkom/docstack/internal/core/ports"
	"github.com/kirillkom/docstack/internal/observability/metrics"
)

const serviceName = "api"

// backpressureWait is how long a request may wait for a concurrency
// slot before the server sheds it.
const backpressureWait = 100 * time.Millisecond

type Router struct {
	cfg        config.Config
	ingestor   ports.DocumentIngestor
	query      ports.DocumentQueryService
	classifier ports.FolderClassifier
	reader     ports.DocumentReader

	metrics *metrics.HTTPServerMetrics
	openapi routers.Router
}

func NewRouter(
	cfg config.Config,
	ingestor ports.DocumentIngestor,
	query ports.DocumentQueryService,
	classifier ports.FolderClassifier,
	reader ports.DocumentReader,
) *Router {
	return &Router{
		cfg:        cfg,
		ingestor:   ingestor,
		query:      query,
		classifier: classifier,
		reader:     reader,
		metrics:    metrics.NewHTTPServerMetrics(serviceName),
		openapi:    mustOpenAPIRouter(),
	}
}

// Handler assembles the full chain. Order matters: request ids and the
// access log see every request including shed ones, traffic control
// runs before any handler work, identity gates the versioned API, and
// contract validation rejects requests the handlers should never see.
func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.Handle("/metrics", rt.metrics.Handler())
	mux.HandleFunc("/v1/documents", rt.documentsCollection)
	mux.HandleFunc("/v1/documents/url", rt.ingestFromURL)
	mux.HandleFunc("/v1/documents/", rt.documentsSubtree)
	mux.HandleFunc("/v1/classify", rt.classify)
	mux.HandleFunc("/v1/query", rt.queryDocuments)
	mux.HandleFunc("/v1/conversations/", rt.conversationsSubtree)
	mux.HandleFunc("/v1/models", rt.listModels)
	mux.HandleFunc("/v1/chat/completions", rt.chatCompletions)

	var handler http.Handler = mux
	handler = openapiMiddleware(rt.openapi, handler)
	handler = identityMiddleware(handler, rt.cfg.OpenAICompatUserID)
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, backpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = rt.metrics.Middleware(serviceName, handler)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}
