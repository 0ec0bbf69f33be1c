package httpadapter

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
)

//go:embed openapi.yaml
var openapiContract []byte

// mustOpenAPIRouter parses the embedded contract. It ships inside the
// binary, so a parse failure is a build defect and surfaces at startup
// rather than per request.
func mustOpenAPIRouter() routers.Router {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openapiContract)
	if err != nil {
		panic(fmt.Sprintf("httpadapter: load embedded openapi contract: %v", err))
	}
	if err := doc.Validate(context.Background()); err != nil {
		panic(fmt.Sprintf("httpadapter: embedded openapi contract is invalid: %v", err))
	}
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		panic(fmt.Sprintf("httpadapter: build openapi router: %v", err))
	}
	return router
}

// openapiMiddleware checks incoming requests against the contract.
// Bodies are not validated here; uploads stream through the handlers
// and buffering them for schema checks would defeat that. Paths the
// contract does not know (healthz, metrics) pass through untouched.
func openapiMiddleware(contractRouter routers.Router, next http.Handler) http.Handler {
	options := &openapi3filter.Options{
		ExcludeRequestBody: true,
		AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, pathParams, err := contractRouter.FindRoute(r)
		switch {
		case errors.Is(err, routers.ErrPathNotFound):
			next.ServeHTTP(w, r)
			return
		case errors.Is(err, routers.ErrMethodNotAllowed):
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		case err != nil:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    r,
			PathParams: pathParams,
			Route:      route,
			Options:    options,
		}
		if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		next.ServeHTTP(w, r)
	})
}
