package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/jmcleod/agentportal/api"
	"github.com/jmcleod/agentportal/login"
	"github.com/jmcleod/agentportal/session"
)

var (
	listenAddr string
	noBanner   bool
)

// newServerHandler builds the HTTP handler tree served by `serve`.
func newServerHandler(apiSrv *api.API) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Mount("/api/v1", apiSrv.Router())
	return r
}

// unconfiguredAuth rejects logins when no OAuth client is registered, so
// status and biometric routes still work.
type unconfiguredAuth struct{ err error }

func (u unconfiguredAuth) Login(context.Context, string, string) (*session.UserProfile, error) {
	return nil, u.err
}

func (u unconfiguredAuth) BiometricLogin(context.Context) (*session.UserProfile, error) {
	return nil, u.err
}

func (u unconfiguredAuth) Logout(context.Context) error {
	return u.err
}

func newAPI(a *app) *api.API {
	return api.New(a.sessions, authOrUnconfigured(a), a.crm, api.WithLogger(a.log.WithName("api")))
}

func authOrUnconfigured(a *app) api.Authenticator {
	auth, err := a.orchestrator()
	if err != nil {
		return unconfiguredAuth{err: err}
	}
	return auth
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the local session API for a UI shell",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps := appDeps{prompt: login.ContextPrompter{}, gate: login.ContextGate{}}
		return withApp(cmd, deps, func(ctx context.Context, a *app) error {
			addr := a.cfg.API.Addr
			if listenAddr != "" {
				addr = listenAddr
			}
			if host, _, err := net.SplitHostPort(addr); err == nil && !isLoopback(host) {
				a.log.Info("WARNING: API is not bound to loopback; it serves stored credentials", "addr", addr)
			}

			apiSrv := newAPI(a)
			server := &http.Server{
				Addr:              addr,
				Handler:           newServerHandler(apiSrv),
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       15 * time.Second,
				WriteTimeout:      a.cfg.Provider.Timeout + 15*time.Second,
				IdleTimeout:       60 * time.Second,
			}

			// Graceful shutdown on SIGINT/SIGTERM.
			done := make(chan error, 1)
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					done <- fmt.Errorf("server failed: %w", err)
					return
				}
				done <- nil
			}()

			out := cmd.OutOrStdout()
			if !noBanner {
				printBanner(out)
			}
			fmt.Fprintf(out, "Serving session API on http://%s/api/v1 (docs at /api/v1/docs)\n", addr)

			sweepCtx, stopSweep := context.WithCancel(ctx)
			defer stopSweep()
			go sweepEvery(sweepCtx, 10*time.Minute, apiSrv.Sweep)

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)

			select {
			case sig := <-quit:
				fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
			case <-ctx.Done():
			case err := <-done:
				return err
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		})
	},
}

// sweepEvery calls sweep on every tick until ctx is done.
func sweepEvery(ctx context.Context, interval time.Duration, sweep func()) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			sweep()
		}
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "Listen address (overrides api.addr)")
	serveCmd.Flags().BoolVar(&noBanner, "no-banner", false, "Do not print the startup banner")
}
