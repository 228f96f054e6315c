package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cafe-compass/compass-cli/internal/config"
	"github.com/cafe-compass/compass-cli/internal/mapview"
	"github.com/cafe-compass/compass-cli/internal/model"
	"github.com/cafe-compass/compass-cli/internal/monitoring"
	"github.com/cafe-compass/compass-cli/internal/store"
)

var (
	servePort  int
	serveShops string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the success map and the published scores over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		known, err := loadShops(serveShops)
		if err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		if cfg.Monitoring.WebhookURL != "" {
			checker := monitoring.NewChecker(monitoring.NewCollector(st), monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(st, known, cfg.Map),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port), zap.Int("shops", len(known)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

// server holds what the HTTP handlers read.
type server struct {
	store  store.Store
	shops  []model.Shop
	mapCfg config.MapConfig
}

// newRouter wires the map page and the JSON API.
func newRouter(st store.Store, shops []model.Shop, mapCfg config.MapConfig) http.Handler {
	s := &server{store: st, shops: shops, mapCfg: mapCfg}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/", s.handleMap)
	r.Route("/api", func(r chi.Router) {
		r.Get("/tracts", s.handleTracts)
		r.Get("/shops", s.handleShops)
		r.Get("/metrics", s.handleMetrics)
	})
	return r
}

func (s *server) handleMap(w http.ResponseWriter, r *http.Request) {
	scores, err := s.store.ListScores(r.Context(), store.ScoreFilter{Limit: maxScoreRows})
	if err != nil {
		zap.L().Error("list scores failed", zap.Error(err))
		http.Error(w, "could not load scores", http.StatusInternalServerError)
		return
	}
	column := r.URL.Query().Get("column")
	page, err := mapview.NewPage(scores, s.shops, s.mapCfg, column)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	templ.Handler(mapview.Component(page)).ServeHTTP(w, r)
}

func (s *server) handleTracts(w http.ResponseWriter, r *http.Request) {
	filter, err := parseScoreFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	scores, err := s.store.ListScores(r.Context(), filter)
	if err != nil {
		zap.L().Error("list scores failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not load scores"})
		return
	}
	if scores == nil {
		scores = []model.TractScore{}
	}
	writeJSON(w, http.StatusOK, scores)
}

func (s *server) handleShops(w http.ResponseWriter, _ *http.Request) {
	shops := s.shops
	if shops == nil {
		shops = []model.Shop{}
	}
	writeJSON(w, http.StatusOK, shops)
}

// defaultLookbackHours is the /api/metrics window when hours is not given.
const defaultLookbackHours = 24

func (s *server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	hours := defaultLookbackHours
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid hours %q", v)})
			return
		}
		hours = n
	}
	snap, err := monitoring.NewCollector(s.store).Collect(r.Context(), hours)
	if err != nil {
		zap.L().Error("collect metrics failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not collect metrics"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// parseScoreFilter reads limit and min_score from the query string.
func parseScoreFilter(r *http.Request) (store.ScoreFilter, error) {
	var f store.ScoreFilter
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, eris.Errorf("invalid limit %q", v)
		}
		f.Limit = n
	}
	if v := q.Get("min_score"); v != "" {
		x, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return f, eris.Errorf("invalid min_score %q", v)
		}
		f.MinScore = x
	}
	return f, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().StringVar(&serveShops, "shops", "", "shop survey CSV to pin on the map")
	rootCmd.AddCommand(serveCmd)
}
