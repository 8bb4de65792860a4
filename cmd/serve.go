package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/precon-cli/internal/consensus"
	"github.com/sells-group/precon-cli/internal/cost"
	"github.com/sells-group/precon-cli/internal/model"
	"github.com/sells-group/precon-cli/internal/store"
)

const shutdownTimeout = 10 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the extraction API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort > 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		cache, err := openCache()
		if err != nil {
			return err
		}
		defer cache.Close()

		calc := cost.NewCalculator(cfg.Rates())
		orch := buildOrchestrator(cache, calc)
		engine := consensus.New(consensus.FamilyTable(cfg.Consensus.Families))

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/api/extract", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Project string             `json:"project"`
				Pages   []model.Page       `json:"pages"`
				Passes  []model.PassConfig `json:"passes"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
			if len(body.Pages) == 0 || len(body.Passes) == 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "pages and passes are required"})
				return
			}

			doc := model.NewClassifiedDocument(body.Pages)
			run, err := st.CreateRun(req.Context(), body.Project, doc.Fingerprint(), body.Passes)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}

			// The run executes asynchronously; poll GET /api/runs/{id}.
			go func() {
				if err := st.UpdateRunStatus(ctx, run.ID, model.RunStatusExecuting); err != nil {
					zap.L().Warn("update run status", zap.Error(err))
				}
				result, err := orch.Run(ctx, run.ID, doc, body.Passes)
				if err != nil {
					zap.L().Error("extraction failed", zap.String("run_id", run.ID), zap.Error(err))
					if failErr := st.FailRun(ctx, run.ID, err.Error()); failErr != nil {
						zap.L().Warn("record run failure", zap.Error(failErr))
					}
					return
				}
				if len(result.Batches) > 0 {
					if err := st.SaveBatches(ctx, result.Batches); err != nil {
						zap.L().Warn("persist batches", zap.String("run_id", run.ID), zap.Error(err))
					}
				}
				if err := st.CompleteRun(ctx, run.ID, result); err != nil {
					zap.L().Error("persist run result", zap.String("run_id", run.ID), zap.Error(err))
				}
			}()

			writeJSON(w, http.StatusAccepted, map[string]string{"run_id": run.ID, "status": string(model.RunStatusQueued)})
		})

		r.Get("/api/runs", func(w http.ResponseWriter, req *http.Request) {
			runs, err := st.ListRuns(req.Context(), store.RunFilter{
				Status:  model.RunStatus(req.URL.Query().Get("status")),
				Project: req.URL.Query().Get("project"),
			})
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, runs)
		})

		r.Get("/api/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
			run, err := st.GetRun(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, run)
		})

		r.Post("/api/consensus", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				RunIDs []string `json:"run_ids"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil || len(body.RunIDs) == 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "run_ids is required"})
				return
			}

			results := make([]*model.PermutationResult, 0, len(body.RunIDs))
			for _, id := range body.RunIDs {
				run, err := st.GetRun(req.Context(), id)
				if err != nil {
					writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
					return
				}
				if run.Result == nil {
					writeJSON(w, http.StatusConflict, map[string]string{"error": fmt.Sprintf("run %s has no result", id)})
					return
				}
				results = append(results, run.Result)
			}

			report, err := engine.Compare(results)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}
			reportID, err := st.SaveReport(req.Context(), report)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"report_id": reportID, "report": report})
		})

		port := cfg.Server.Port

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			// The signal context is already cancelled here; drain with a
			// fresh deadline so in-flight requests get to finish.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
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
