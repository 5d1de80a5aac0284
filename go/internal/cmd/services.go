package main

import (
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/pitdev14/workgp/go/internal/bus"
	"github.com/pitdev14/workgp/go/internal/gateway"
	"github.com/pitdev14/workgp/go/internal/grandprix"
	"github.com/pitdev14/workgp/go/internal/httpapi"
	"github.com/pitdev14/workgp/go/internal/remote"
	"github.com/pitdev14/workgp/go/internal/store"
)

type Services struct {
	Bus      bus.Bus
	App      *grandprix.App
	Gateway  *gateway.ConnectionManager
	Sockets  *gateway.WebSocketHandler
	Handlers *httpapi.Handlers
}

// setupBus picks the event transport: in-process by default, JetStream when
// configured so several gateway instances can share one event stream.
func setupBus(config *Config) (bus.Bus, error) {
	driver := getEnv("BUS_DRIVER", config.Bus.Driver)
	if driver != "nats" {
		return bus.NewInProcBus(), nil
	}

	cfg := bus.DefaultJetStreamConfig()
	if url := getEnv("NATS_URL", config.Bus.URL); url != "" {
		cfg.URL = url
	}
	b, err := bus.NewJetStreamBus(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect event bus: %w", err)
	}
	return b, nil
}

func setupServices(config *Config, backend remote.Backend) (*Services, error) {
	// Wire up dependency injection chain
	// Store layer → App layer → Gateway layer → HTTP layer

	dir := getEnv("STORE_DIR", config.Store.Dir)
	if dir == "" {
		dir = "data"
	}
	st, err := store.NewFileStore(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	b, err := setupBus(config)
	if err != nil {
		return nil, err
	}

	app := grandprix.NewApp(st, b, clockwork.NewRealClock(), backend)

	cm := gateway.NewConnectionManager(b, gateway.DefaultConnectionConfig())
	sockets := gateway.NewWebSocketHandler(cm)
	handlers := httpapi.NewHandlers(app, cm)

	return &Services{
		Bus:      b,
		App:      app,
		Gateway:  cm,
		Sockets:  sockets,
		Handlers: handlers,
	}, nil
}
