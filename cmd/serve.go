package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/assessment-cli/internal/index"
	"github.com/sells-group/assessment-cli/internal/pipeline"
	"github.com/sells-group/assessment-cli/internal/rawstore"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the intake webhook server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/webhook/assessment", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				CompanyProfileID string          `json:"company_profile_id"`
				Name             string          `json:"name"`
				Domain           string          `json:"domain"`
				CompanyProfile   json.RawMessage `json:"company_profile"`
				Questionnaire    json.RawMessage `json:"questionnaire"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
			if len(body.CompanyProfile) == 0 || len(body.Questionnaire) == 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "company_profile and questionnaire are required"})
				return
			}

			raw, err := json.Marshal(map[string]json.RawMessage{
				"company_profile": body.CompanyProfile,
				"questionnaire":   body.Questionnaire,
			})
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "encode submission"})
				return
			}

			result, err := env.Raw.Store(raw, rawstore.IdentityHints{
				CompanyProfileID: body.CompanyProfileID,
				CompanyName:      body.Name,
				Domain:           body.Domain,
			})
			if err != nil {
				zap.L().Error("webhook intake failed", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "store submission"})
				return
			}
			if _, err := env.Index.Register(req.Context(), result.AssessmentRunID, result.CompanyProfileID); err != nil {
				zap.L().Error("webhook registration failed",
					zap.String("run_id", result.AssessmentRunID),
					zap.Error(err),
				)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "register run"})
				return
			}

			// The pipeline runs asynchronously; clients poll /runs/{id}.
			go func() {
				if err := env.Pipeline.RunAll(ctx, result.AssessmentRunID); err != nil {
					zap.L().Error("webhook pipeline run failed",
						zap.String("run_id", result.AssessmentRunID),
						zap.Error(err),
					)
					return
				}
				zap.L().Info("webhook pipeline run complete",
					zap.String("run_id", result.AssessmentRunID),
				)
			}()

			writeJSON(w, http.StatusAccepted, map[string]string{
				"status":             "accepted",
				"assessment_run_id":  result.AssessmentRunID,
				"company_profile_id": result.CompanyProfileID,
			})
		})

		r.Get("/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
			entry, err := env.Index.Get(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				if errors.Is(err, index.ErrRunNotFound) {
					writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
					return
				}
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
				return
			}
			writeJSON(w, http.StatusOK, entry)
		})

		r.Get("/runs/{id}/audit", func(w http.ResponseWriter, req *http.Request) {
			events, err := env.Index.Store().ListAudit(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
				return
			}
			writeJSON(w, http.StatusOK, events)
		})

		r.Get("/runs/{id}/deliverable", func(w http.ResponseWriter, req *http.Request) {
			entry, err := env.Index.Get(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				if errors.Is(err, index.ErrRunNotFound) {
					writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
					return
				}
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
				return
			}
			if !entry.DeliverableReady() {
				writeJSON(w, http.StatusConflict, map[string]string{"error": "deliverable not ready"})
				return
			}
			var idm json.RawMessage
			if err := env.Pipeline.LoadArtifact(entry, pipeline.ArtifactIDM, &idm); err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "load deliverable"})
				return
			}
			writeJSON(w, http.StatusOK, idm)
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
