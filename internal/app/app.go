package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/awayrelay/internal/auth"
	"github.com/vovakirdan/awayrelay/internal/config"
	"github.com/vovakirdan/awayrelay/internal/core"
	"github.com/vovakirdan/awayrelay/internal/events"
	"github.com/vovakirdan/awayrelay/internal/responder"
	"github.com/vovakirdan/awayrelay/internal/store"
	redisstore "github.com/vovakirdan/awayrelay/internal/store/redis"
	"github.com/vovakirdan/awayrelay/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/awayrelay/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	ws              *transporthttp.WSHandler
	shutdownTimeout time.Duration
	storeTimeout    time.Duration
	hub             *core.Hub
	store           store.Store
	presence        store.PresenceStore
	events          events.Publisher
	closers         []func() error
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	a := &App{
		shutdownTimeout: cfg.ShutdownTimeout,
		storeTimeout:    cfg.StoreTimeout,
		store:           st,
		presence:        st,
		events:          events.Nop{},
		log:             logger,
	}

	if cfg.Presence.Backend == "redis" {
		client, err := redisstore.NewClient(ctx, cfg.Presence.RedisURL)
		if err != nil {
			a.cleanup()
			return nil, fmt.Errorf("init redis presence: %w", err)
		}
		a.presence = redisstore.NewPresenceStore(client)
		a.closers = append(a.closers, client.Close)
		logger.Info().Msg("presence stored in redis")
	}

	if cfg.NATSURL != "" {
		publisher, err := events.NewNATS(cfg.NATSURL)
		if err != nil {
			a.cleanup()
			return nil, fmt.Errorf("init nats: %w", err)
		}
		a.events = publisher
		logger.Info().Str("nats_url", cfg.NATSURL).Msg("presence events published to nats")
	}

	r, err := responder.New(cfg.Responder)
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("init responder: %w", err)
	}
	logger.Info().Str("provider", cfg.Responder.Provider).Str("model", cfg.Responder.Model).Msg("responder initialized")

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	})

	a.hub = core.NewHub(core.Options{
		Presence:         a.presence,
		Messages:         st,
		Responder:        r,
		Events:           a.events,
		Logger:           logger,
		PromptPrefix:     cfg.Responder.PromptPrefix,
		ResponderTimeout: cfg.Responder.Timeout,
		StoreTimeout:     cfg.StoreTimeout,
	})
	a.server, a.ws = transporthttp.NewServer(a.hub, authService, st, a.presence, cfg, logger)

	return a, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	if err := a.resetPresence(ctx); err != nil {
		a.cleanup()
		return err
	}

	// Hijacked websocket connections inherit this context and end on shutdown.
	a.server.BaseContext = func(net.Listener) context.Context { return ctx }

	serverErr := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.hub.Shutdown(context.Background())
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		err := a.server.Shutdown(shutdownCtx)
		// Hijacked sockets are not tracked by Shutdown; their in-flight
		// commands must finish before the store closes.
		if waitErr := a.ws.Wait(shutdownCtx); waitErr != nil {
			a.log.Warn().Err(waitErr).Msg("websocket handlers still running at shutdown")
		}
		a.hub.Shutdown(shutdownCtx)
		a.cleanup()
		if err != nil {
			return err
		}
		return <-serverErr
	}
}

// resetPresence marks every user busy. No session survives a restart.
func (a *App) resetPresence(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.storeTimeout)
	defer cancel()
	if err := a.presence.ResetStatuses(ctx); err != nil {
		return fmt.Errorf("reset presence: %w", err)
	}
	return nil
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.events != nil {
		a.events.Close()
	}
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close resource")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
