package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/quatton/toolsite/pkg/qapi/services"
)

// RegisterAPI registers every operation. A nil svcs registers the same
// surface without backends, which is enough to render the OpenAPI document.
func RegisterAPI(api huma.API, svcs *services.Services) {
	if svcs == nil {
		RegisterHealth(api, nil)
		RegisterScripts(api, nil)
		RegisterRuns(api, nil, 0)
		RegisterArtifacts(api, nil)
		return
	}

	api.UseMiddleware(svcs.Gate.Middleware(api))
	RegisterHealth(api, func() int { return len(svcs.Catalog.List()) })
	RegisterScripts(api, svcs.Catalog)
	RegisterRuns(api, svcs.Coordinator, svcs.UploadLimit)
	RegisterArtifacts(api, svcs.Publisher)
}
