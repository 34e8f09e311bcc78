package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/shaiso/cronlock/internal/api"
	"github.com/shaiso/cronlock/internal/scheduler"
)

// shutdownTimeout: сколько ждать HTTP-сервер и выполняющиеся задачи при остановке.
const shutdownTimeout = 30 * time.Second

// NewServeCmd создаёт команду долгоживущего режима: задачи запускаются
// по cron-расписанию из файла определений. HTTP-сервер отдаёт /healthz,
// /metrics и API оператора /api/v1.
func NewServeCmd(envFn EnvFunc) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled jobs in-process and serve /healthz, /metrics and the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			env, err := envFn(ctx)
			if err != nil {
				return err
			}
			defer env.Close()

			if port == 0 {
				port = env.Config.HTTPPort
			}

			registry, err := env.Jobs()
			if err != nil {
				return err
			}
			loc, err := env.Config.Location()
			if err != nil {
				return err
			}

			r := env.Runner(env.Notifier(ctx))
			sched, err := scheduler.New(scheduler.Config{
				Runner:          r,
				Registry:        registry,
				Logger:          env.Logger,
				Location:        loc,
				Cleaner:         env.Locks,
				CleanupInterval: env.Config.CleanupInterval,
			})
			if err != nil {
				return err
			}

			handler := api.NewHandler(api.Config{
				Locks:     env.Locks,
				Registry:  registry,
				Runner:    r,
				Scheduler: sched,
				Location:  loc,
				Logger:    env.Logger,
			})

			server := &http.Server{
				Addr:              fmt.Sprintf(":%d", port),
				Handler:           newServeMux(env.Registry, time.Now(), handler),
				ReadHeaderTimeout: 5 * time.Second,
			}

			serveErr := make(chan error, 1)
			go func() {
				env.Logger.Info("listening", "addr", server.Addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			sched.Start(ctx)
			env.Logger.Info("serving",
				"holder_id", r.HolderID(),
				"jobs", len(sched.Entries()),
				"store", env.Config.Store,
			)

			var runErr error
			select {
			case <-ctx.Done():
				env.Logger.Info("shutting down")
			case err := <-serveErr:
				runErr = fmt.Errorf("http server: %w", err)
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				env.Logger.Error("shutdown error", "error", err)
			}

			select {
			case <-sched.Stop().Done():
			case <-shutdownCtx.Done():
				env.Logger.Warn("running jobs did not finish before shutdown timeout")
			}

			env.Logger.Info("stopped")
			return runErr
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP port for /healthz and /metrics (env HTTP_PORT)")

	return cmd
}

// newServeMux: /healthz, /metrics и маршруты API.
func newServeMux(reg *prometheus.Registry, startedAt time.Time, handler *api.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startedAt).Round(time.Second))
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	if handler != nil {
		handler.RegisterRoutes(mux)
	}
	return mux
}
