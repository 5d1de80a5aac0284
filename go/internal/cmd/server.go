package main

import (
	"net/http"

	"github.com/pitdev14/workgp/go/internal/httpapi"
)

func setupServer(config *Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	services.Handlers.RegisterRoutes(mux)
	services.Sockets.RegisterRoutes(mux)

	port := getEnv("PORT", config.Server.Port)
	if port == "" {
		port = "8080"
	}
	return httpapi.NewServer(port, mux)
}
