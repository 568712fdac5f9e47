package cmd

import (
	"annotation-server/config"
	"annotation-server/core"
	"annotation-server/displaylink"
	"annotation-server/geometry"
	"annotation-server/handlers/api/annotations"
	"annotation-server/handlers/api/snapshots"
	"annotation-server/handlers/websocket"
	"annotation-server/hub"
	"annotation-server/metrics"
	"annotation-server/renderer/memory"
	"annotation-server/stores"
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var (
	listenAddr  string
	watchConfig bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the annotation server",
	Long: `Run the annotation server.

Managers listed in the config file are created on start. With --watch the
config file is re-read when it changes and manager styles and layer
positions are re-applied.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("listen") {
			cfg.Listen = listenAddr
		}
		return serve(cfg)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", config.DefaultListen, "Set the server listen address")
	serveCmd.Flags().BoolVarP(&watchConfig, "watch", "w", false, "re-apply managers when the config file changes")
	rootCmd.AddCommand(serveCmd)
}

func allowOrigin(r *http.Request, origin string) bool {
	if origin == "" {
		return false
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch parsed.Scheme {
	case "http", "https":
		switch parsed.Hostname() {
		case "localhost", "127.0.0.1", "::1":
			return true
		}
	}
	return false
}

func setupRouter(h *hub.Hub, store core.SnapshotStore) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc:  allowOrigin,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/managers", func(r chi.Router) {
		r.Get("/", annotations.HandleListManagers(h))
		r.Post("/", annotations.HandleCreateManager(h))
		r.Route("/{id}", func(r chi.Router) {
			r.Delete("/", annotations.HandleDestroyManager(h))
			r.Get("/annotations", annotations.HandleGetAnnotations(h))
			r.Put("/annotations", annotations.HandleReplaceAnnotations(h))
			r.Put("/annotations/keyed", annotations.HandleUpsertKeyed(h))
			r.Get("/style", annotations.HandleGetStyle(h))
			r.Put("/style", annotations.HandleSetStyle(h))
			r.Put("/position", annotations.HandleSetPosition(h))

			r.Route("/snapshots", func(r chi.Router) {
				r.Post("/", snapshots.HandleCreateSnapshot(store, h))
				r.Get("/", snapshots.HandleListSnapshots(store))
				r.Post("/{snapshotId}/restore", snapshots.HandleRestoreSnapshot(store, h))
			})
		})
	})

	r.Route("/api/snapshots/{snapshotId}", func(r chi.Router) {
		r.Get("/", snapshots.HandleGetSnapshot(store))
		r.Delete("/", snapshots.HandleDeleteSnapshot(store))
	})

	return r
}

// applyManagers creates the managers of specs that do not exist yet and
// re-applies style and position to the others. Managers missing from specs
// are left alone since they may have been created over HTTP.
func applyManagers(ctx context.Context, h *hub.Hub, specs []hub.ManagerSpec) {
	for _, spec := range specs {
		log := logrus.WithField("manager_id", spec.ID)

		err := h.CreateManager(ctx, spec)
		if err == nil {
			continue
		}
		if !errors.Is(err, hub.ErrManagerExists) {
			log.WithError(err).Error("Failed to create manager")
			continue
		}

		if err := h.SetLayerStyle(ctx, spec.ID, spec.Style); err != nil {
			log.WithError(err).Error("Failed to re-apply layer style")
		}
		if err := h.SetLayerPosition(ctx, spec.ID, spec.LayerPosition); err != nil {
			log.WithError(err).Error("Failed to re-apply layer position")
		}
		log.Info("Manager config re-applied")
	}
}

func serve(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	scene := memory.NewScene()
	broadcaster := websocket.NewBroadcaster(metrics.InstrumentRenderer(scene))

	loop := displaylink.NewLoop(cfg.FrameRate)
	loop.OnTick = metrics.ObserveTick
	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = loop.Run(loopCtx)
	}()

	offsets := geometry.NewOffset(geometry.MercatorProjector{
		Origin:         cfg.Projection.OriginPoint(),
		MetersPerPixel: geometry.ZoomResolution(cfg.Projection.Zoom),
	})
	h := hub.New(loop, broadcaster, offsets, hub.WithTapListener(broadcaster.Tap))
	applyManagers(ctx, h, cfg.Managers)

	store := stores.GetStore(cfg.Storage)

	r := setupRouter(h, store)
	ioo := websocket.SetupSocketIO(h, scene)
	broadcaster.Attach(ioo.Sockets())
	r.Handle("/socket.io/", ioo.ServeHandler(nil))

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logrus.WithField("addr", cfg.Listen).Info("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if watchConfig {
		if cfg.Path() == "" {
			logrus.Warn("--watch needs --config, not watching")
		} else {
			go func() {
				err := config.Watch(ctx, cfg.Path(), func(next *config.Config) {
					applyManagers(ctx, h, next.Managers)
				})
				if err != nil {
					logrus.WithError(err).Error("Config watcher stopped")
				}
			}()
		}
	}

	var runErr error
	select {
	case <-ctx.Done():
		logrus.Info("Shutting down...")
	case runErr = <-serverErr:
		logrus.WithError(runErr).Error("Server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown did not complete")
	}
	ioo.Close(nil)
	if err := h.Close(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("Failed to tear down managers")
	}
	stopLoop()
	<-loopDone

	return runErr
}
