package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trackpoint/api"
	"trackpoint/apps"
	"trackpoint/auth"
	"trackpoint/config"
	"trackpoint/forward"
	"trackpoint/tracker"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the tracking and query HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			return serve(cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	return cmd
}

func serve(cfg *config.Config) error {
	s, err := openStore(cfg.DB)
	if err != nil {
		return err
	}
	defer s.Close()

	appMgr, err := apps.NewManager(cfg.Apps.Path)
	if err != nil {
		return fmt.Errorf("load apps: %w", err)
	}
	defer appMgr.Close()

	pub, err := forward.New(cfg.Forward)
	if err != nil {
		return err
	}
	dispatcher := forward.NewDispatcher(pub, cfg.Forward.QueueSize)
	defer dispatcher.Close()

	reports := api.NewHandler(s, cfg.Reports.TTL)
	s.Subscribe(reports.Invalidate)
	s.Subscribe(appMgr.AddEvents)
	s.Subscribe(dispatcher.Enqueue)

	authn := auth.New(cfg.Auth.JWTSecret)
	if !authn.Enabled() {
		log.Warn().Msg("serve: auth.jwt_secret is empty, /api routes are not authenticated")
	}
	t := tracker.NewEventTracker(s, appMgr, tracker.RequireAPIKey(cfg.Track.RequireAPIKey))

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           corsMiddleware(cfg.CORS.Origins)(newMux(t, reports, appMgr, authn)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})
	go gracefulShutdown(server, done)

	log.Info().Str("addr", cfg.HTTP.Addr).Str("db", cfg.DB.DSN).Msg("serve: starting server")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	<-done
	return nil
}

func newMux(t *tracker.EventTracker, reports *api.Handler, appMgr *apps.Manager, authn *auth.Authenticator) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/track", t.PostHandler())
	mux.Handle("/track/batch", t.BatchHandler())
	reports.Register(mux, authn.Middleware)
	mux.Handle("/api/apps", authn.Middleware(appMgr.AppsHandler()))
	mux.Handle("/api/apps/", authn.Middleware(appMgr.LiveHandler()))
	return mux
}

// corsMiddleware answers preflight requests and sets the CORS headers for origins in
// allowed. "*" allows every origin. Requests without an Origin header pass through.
func corsMiddleware(allowed []string) func(http.Handler) http.Handler {
	allowAll := false
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			allowAll = true
		}
		set[o] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			if _, ok := set[origin]; !ok && !allowAll {
				log.Warn().Str("origin", origin).Str("client", r.RemoteAddr).Msg("CORS: origin not allowed")
				w.WriteHeader(http.StatusForbidden)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key, Authorization")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")

			// Handle preflight OPTIONS request
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// gracefulShutdown waits for a termination signal, drains the server and closes done.
func gracefulShutdown(server *http.Server, done chan<- struct{}) {
	defer close(done)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM) // Catch termination signals
	<-c
	log.Info().Msg("serve: shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("serve: error shutting down server")
	}
	log.Info().Msg("serve: server gracefully stopped")
}
