// Package iam gates operations behind the shared API key.
package iam

import (
	"crypto/subtle"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/quatton/toolsite/pkg/qlog"
)

// HeaderAPIKey carries the shared key.
const HeaderAPIKey = "X-Api-Key"

// SchemeAPIKey is the OpenAPI security scheme name operations refer to.
const SchemeAPIKey = "apiKey"

// APIKeyService checks the X-Api-Key header. With an empty key every
// request passes.
type APIKeyService struct {
	key    []byte
	logger *qlog.Logger
}

func NewAPIKeyService(key string, logger *qlog.Logger) *APIKeyService {
	if logger == nil {
		logger = qlog.NewDefault()
	}
	return &APIKeyService{key: []byte(key), logger: logger}
}

// Enabled reports whether a key is configured.
func (s *APIKeyService) Enabled() bool {
	return s != nil && len(s.key) > 0
}

// Check compares presented against the configured key in constant time.
func (s *APIKeyService) Check(presented string) bool {
	if !s.Enabled() {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(presented), s.key) == 1
}

// Middleware rejects requests to operations that declare the apiKey
// security requirement when the header does not match.
func (s *APIKeyService) Middleware(api huma.API) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if !s.Enabled() || !requiresKey(ctx.Operation()) {
			next(ctx)
			return
		}
		if !s.Check(ctx.Header(HeaderAPIKey)) {
			s.logger.Warn("rejected request without valid api key", "path", ctx.URL().Path, "remote", ctx.RemoteAddr())
			_ = huma.WriteErr(api, ctx, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(ctx)
	}
}

func requiresKey(op *huma.Operation) bool {
	if op == nil {
		return false
	}
	for _, req := range op.Security {
		if _, ok := req[SchemeAPIKey]; ok {
			return true
		}
	}
	return false
}
