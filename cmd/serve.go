package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/theyagu56/pathways-agent/internal/model"
	"github.com/theyagu56/pathways-agent/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the intake API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		api := &apiServer{env: env, allowedOrigins: cfg.Server.AllowedOrigins}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

type apiServer struct {
	env            *env
	allowedOrigins []string
}

func (s *apiServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/match-providers", s.handleMatchProviders)
		r.Get("/insurances", s.handleInsurances)
		r.Get("/specialties", s.handleSpecialties)
		r.Post("/specialty-recommendations", s.handleSpecialtyRecommendations)
		r.Post("/clear-cache", s.handleClearCache)
		r.Post("/reload", s.handleReload)
		r.Get("/intakes", s.handleListIntakes)
		r.Get("/intakes/{id}", s.handleGetIntake)
		r.Route("/voice", func(r chi.Router) {
			r.Post("/process-text", s.handleVoiceProcessText)
			r.Post("/upload-audio", s.handleVoiceUploadAudio)
			r.Get("/health", s.handleVoiceHealth)
		})
	})
	return r
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"providers": s.env.Directory.Snapshot().Len(),
	})
}

func (s *apiServer) handleMatchProviders(w http.ResponseWriter, r *http.Request) {
	var req model.MatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	intake, err := s.env.Pipeline.Match(r.Context(), req)
	if err != nil {
		respondForError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"intake_id":               intake.ID,
		"matches":                 intake.Result.Matches,
		"total_matched":           intake.Result.TotalMatched,
		"recommended_specialties": intake.Result.RecommendedSpecialties,
	})
}

func (s *apiServer) handleInsurances(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"insurances": s.env.Directory.Snapshot().Insurances(),
	})
}

func (s *apiServer) handleSpecialties(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"specialties": s.env.Directory.Snapshot().Specialties(),
	})
}

func (s *apiServer) handleSpecialtyRecommendations(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InjuryDescription string `json:"injury_description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.InjuryDescription == "" {
		respondError(w, http.StatusBadRequest, "injury_description is required")
		return
	}

	specialties, err := s.env.Pipeline.Recommend(r.Context(), req.InjuryDescription)
	if err != nil {
		respondForError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"recommended_specialties": specialties,
	})
}

func (s *apiServer) handleClearCache(w http.ResponseWriter, r *http.Request) {
	n, err := s.env.Store.ClearRecommendationCache(r.Context())
	if err != nil {
		respondForError(w, err)
		return
	}
	zap.L().Info("recommendation cache cleared", zap.Int("entries", n))
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"cleared": n,
	})
}

func (s *apiServer) handleReload(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.env.Directory.Reload()
	if err != nil {
		respondForError(w, err)
		return
	}
	// Cached recommendations may reference specialties the new roster no
	// longer offers.
	cleared, err := s.env.Store.ClearRecommendationCache(r.Context())
	if err != nil {
		respondForError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"providers":     snapshot.Len(),
		"cache_cleared": cleared,
	})
}

func (s *apiServer) handleListIntakes(w http.ResponseWriter, r *http.Request) {
	filter := store.IntakeFilter{
		Status: model.IntakeStatus(r.URL.Query().Get("status")),
		Source: model.IntakeSource(r.URL.Query().Get("source")),
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	intakes, err := s.env.Store.ListIntakes(r.Context(), filter)
	if err != nil {
		respondForError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"intakes": intakes,
		"total":   len(intakes),
	})
}

func (s *apiServer) handleGetIntake(w http.ResponseWriter, r *http.Request) {
	intake, err := s.env.Store.GetIntake(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "intake not found")
		return
	}
	respondJSON(w, http.StatusOK, intake)
}

func (s *apiServer) handleVoiceProcessText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	intake, err := s.env.Pipeline.ProcessText(r.Context(), req.Text)
	if err != nil {
		respondForError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, intake)
}

func (s *apiServer) handleVoiceUploadAudio(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	tmp, err := os.CreateTemp("", "intake-audio-*"+filepath.Ext(header.Filename))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to buffer upload")
		return
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		respondError(w, http.StatusInternalServerError, "failed to buffer upload")
		return
	}
	tmp.Close()

	intake, err := s.env.Pipeline.ProcessAudio(r.Context(), tmp.Name())
	if err != nil {
		respondForError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, intake)
}

func (s *apiServer) handleVoiceHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.env.Whisper.Health(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// respondForError maps domain errors to HTTP statuses: validation problems
// are the caller's fault, upstream failures are a bad gateway, everything
// else is internal.
func respondForError(w http.ResponseWriter, err error) {
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": ve.Fields,
		})
		return
	}
	var ue *model.UpstreamError
	if errors.As(err, &ue) {
		zap.L().Error("upstream failure", zap.String("service", ue.Service), zap.Error(err))
		respondError(w, http.StatusBadGateway, fmt.Sprintf("%s unavailable", ue.Service))
		return
	}
	zap.L().Error("request failed", zap.Error(err))
	respondError(w, http.StatusInternalServerError, "internal error")
}
