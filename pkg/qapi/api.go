package qapi

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/quatton/toolsite/pkg/qapi/services/iam"
)

const (
	Title   = "toolsite"
	Version = "1.0.0"
)

type Api struct {
	Api    huma.API
	Router *chi.Mux
}

// Config is the huma configuration with the API key scheme declared.
func Config() huma.Config {
	config := huma.DefaultConfig(Title, Version)
	config.Info.Description = "Browse local automation scripts and run them with captured output and artifacts."

	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		iam.SchemeAPIKey: {
			Type:        "apiKey",
			In:          "header",
			Name:        iam.HeaderAPIKey,
			Description: "Shared key from the API_KEY setting",
		},
	}
	return config
}

func NewApi() *Api {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	api := humachi.New(router, Config())

	return &Api{Api: api, Router: router}
}
