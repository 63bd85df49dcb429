package broker

import (
	"context"
	"fmt"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/listeners"

	"github.com/homelink-io/homelink-core/internal/command"
	"github.com/homelink-io/homelink-core/internal/infrastructure/config"
	"github.com/homelink-io/homelink-core/internal/infrastructure/logging"
	"github.com/homelink-io/homelink-core/internal/publish"
	"github.com/homelink-io/homelink-core/internal/routing"
)

// Gateway owns the embedded broker's lifetime: both listeners, the
// credential gate, and the hook that feeds accepted publishes into the
// topic router.
type Gateway struct {
	log    *logging.Logger
	cfg    config.BrokerConfig
	server *mqtt.Server
}

// NewGateway constructs the embedded broker, registers the core hook
// and both listeners, and attaches the server to the publisher so
// outbound snapshots flow through the same retained-message store.
//
// Parameters:
//   - cfg: Broker listener and auth settings
//   - router: Topic router receiving every accepted publish
//   - proc: Command processor driven by connect/disconnect events
//   - pub: Publisher to attach the broker transport to
//   - log: Structured logger
//
// Returns:
//   - *Gateway: Constructed gateway, not yet serving
//   - error: Hook or listener registration failure
func NewGateway(cfg config.BrokerConfig, router *routing.Router, proc *command.Processor, pub *publish.Publisher, log *logging.Logger) (*Gateway, error) {
	gwLog := log.With("component", "broker")

	server := mqtt.New(&mqtt.Options{
		InlineClient: true,
		Logger:       gwLog.Logger,
	})

	hook := &coreHook{
		log:    gwLog,
		auth:   NewAuthenticator(cfg.Auth, log),
		router: router,
		proc:   proc,
	}
	if err := server.AddHook(hook, nil); err != nil {
		return nil, fmt.Errorf("registering broker hook: %w", err)
	}

	tcp := listeners.NewTCP(listeners.Config{
		ID:      "tcp",
		Address: cfg.TCPAddress,
	})
	if err := server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("adding TCP listener on %s: %w", cfg.TCPAddress, err)
	}

	ws := listeners.NewWebsocket(listeners.Config{
		ID:      "ws",
		Address: cfg.WSAddress,
	})
	if err := server.AddListener(ws); err != nil {
		return nil, fmt.Errorf("adding WebSocket listener on %s: %w", cfg.WSAddress, err)
	}

	pub.Attach(server)

	return &Gateway{
		log:    gwLog,
		cfg:    cfg,
		server: server,
	}, nil
}

// Run serves both listeners until the context is cancelled, then closes
// the broker cleanly.
//
// Returns:
//   - error: ctx.Err() after a clean shutdown, or the serve error
func (g *Gateway) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- g.server.Serve()
	}()

	g.log.Info("broker listening",
		"tcp_address", g.cfg.TCPAddress,
		"ws_address", g.cfg.WSAddress)

	select {
	case <-ctx.Done():
		g.log.Info("broker shutting down")
		if err := g.server.Close(); err != nil {
			g.log.Error("closing broker", "error", err)
		}
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("broker serve: %w", err)
		}
		return nil
	}
}
