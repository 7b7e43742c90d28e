package routes

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/quatton/toolsite/pkg/qapi/schemas"
	"github.com/quatton/toolsite/pkg/qcatalog"
)

type ListScriptsOutput struct {
	Body schemas.ScriptList
}

func RegisterScripts(api huma.API, catalog *qcatalog.Catalog) {
	huma.Register(api, huma.Operation{
		OperationID: "list-scripts",
		Method:      http.MethodGet,
		Path:        "/api/scripts",
		Summary:     "List scripts",
		Description: "Lists every runnable script under the scripts root with its guided input schema, if any",
		Tags:        []string{TagScripts.String()},
		Security:    APIKeyAuth,
	}, func(ctx context.Context, input *struct{}) (*ListScriptsOutput, error) {
		if catalog == nil {
			return nil, huma.Error503ServiceUnavailable("catalog not configured")
		}
		resp := &ListScriptsOutput{}
		resp.Body.Root = catalog.Root()
		resp.Body.Scripts = catalog.List()
		return resp, nil
	})
}
