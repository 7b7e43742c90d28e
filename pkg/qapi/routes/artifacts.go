package routes

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"github.com/quatton/toolsite/pkg/qart"
	"github.com/quatton/toolsite/pkg/qauth"
	"github.com/quatton/toolsite/pkg/qexec"
)

type DownloadArtifactInput struct {
	Token string `path:"token" doc:"Download token from a run result"`
}

type DownloadArtifactOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	ContentLength      string `header:"Content-Length"`
	Body               []byte
}

// RegisterArtifacts serves cached artifacts. The signed token is the
// credential, so the route carries no API key requirement and links can
// be handed to a browser.
func RegisterArtifacts(api huma.API, publisher *qexec.Publisher) {
	huma.Register(api, huma.Operation{
		OperationID: "download-artifact",
		Method:      http.MethodGet,
		Path:        "/api/artifacts/{token}",
		Summary:     "Download an artifact",
		Description: "Returns the raw bytes of an artifact while its download token is valid",
		Tags:        []string{TagArtifacts.String()},
	}, func(ctx context.Context, input *DownloadArtifactInput) (*DownloadArtifactOutput, error) {
		if publisher == nil {
			return nil, huma.Error404NotFound("downloads not enabled")
		}
		a, err := publisher.Fetch(ctx, input.Token)
		switch {
		case errors.Is(err, qauth.ErrInvalidToken):
			return nil, huma.Error401Unauthorized("invalid or expired download token")
		case errors.Is(err, qart.ErrNotFound):
			return nil, huma.Error404NotFound("artifact expired")
		case err != nil:
			return nil, huma.Error500InternalServerError("failed to load artifact", err)
		}

		return &DownloadArtifactOutput{
			ContentType:        a.Mime,
			ContentDisposition: mime.FormatMediaType("attachment", map[string]string{"filename": a.Filename}),
			ContentLength:      strconv.Itoa(len(a.Data)),
			Body:               a.Data,
		}, nil
	})
}
