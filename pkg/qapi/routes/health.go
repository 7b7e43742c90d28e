package routes

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

type HealthOutput struct {
	Body struct {
		Status  string `json:"status" example:"ok" doc:"Health status"`
		Scripts int    `json:"scripts" doc:"Number of cataloged scripts"`
	}
}

func RegisterHealth(api huma.API, count func() int) {
	huma.Register(api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the server",
		Tags:        []string{TagHealth.String()},
	}, func(ctx context.Context, input *struct{}) (*HealthOutput, error) {
		resp := &HealthOutput{}
		resp.Body.Status = "ok"
		if count != nil {
			resp.Body.Scripts = count()
		}
		return resp, nil
	})
}
