package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tabsplit/receipt-scan/internal/model"
	"github.com/tabsplit/receipt-scan/internal/pipeline"
	"github.com/tabsplit/receipt-scan/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the receipt upload server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initScanEnv(ctx, "serve", true)
		if err != nil {
			return err
		}
		defer env.Close()

		router := buildRouter(ctx, env.Pipeline, env.Store, cfg.Server.AuthToken, cfg.Server.MaxUploadBytes)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("serve: shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("serve: listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// buildRouter assembles the HTTP surface. p and st may be nil in tests; the
// upload handler then accepts and drops work, and scan lookups report the
// store as unavailable.
func buildRouter(ctx context.Context, p *pipeline.Pipeline, st store.Store, authToken string, maxUploadBytes int64) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		resp := map[string]any{"status": "ok"}
		if p != nil {
			circuits := make(map[string]string)
			for name, state := range p.Breakers().States() {
				circuits[name] = state.String()
			}
			resp["circuits"] = circuits
		}
		writeJSON(w, http.StatusOK, resp)
	})

	r.Group(func(r chi.Router) {
		if authToken != "" {
			r.Use(bearerAuth(authToken))
		}

		r.Post("/receipts", func(w http.ResponseWriter, req *http.Request) {
			req.Body = http.MaxBytesReader(w, req.Body, maxUploadBytes)
			if err := req.ParseMultipartForm(maxUploadBytes); err != nil {
				writeJSONError(w, http.StatusBadRequest, "invalid multipart request")
				return
			}
			file, header, err := req.FormFile("image")
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, "image field is required")
				return
			}
			defer file.Close() //nolint:errcheck

			data, err := io.ReadAll(file)
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, "read upload")
				return
			}

			scanID := uuid.NewString()

			// The request finishes at 202; the scan continues on the server
			// context so a client disconnect cannot kill it.
			go func() {
				if p == nil {
					return
				}
				if _, err := p.Process(ctx, pipeline.Input{ID: scanID, Name: header.Filename, Bytes: data}); err != nil {
					zap.L().Error("serve: scan failed",
						zap.String("scan_id", scanID),
						zap.String("source", header.Filename),
						zap.Error(err),
					)
				}
			}()

			writeJSON(w, http.StatusAccepted, map[string]string{
				"id":     scanID,
				"status": "accepted",
				"source": header.Filename,
			})
		})

		r.Get("/receipts", func(w http.ResponseWriter, req *http.Request) {
			if st == nil {
				writeJSONError(w, http.StatusServiceUnavailable, "store not configured")
				return
			}
			filter := store.ScanFilter{
				Status: model.ScanStatus(req.URL.Query().Get("status")),
				Source: req.URL.Query().Get("source"),
			}
			if v := req.URL.Query().Get("limit"); v != "" {
				if n, err := strconv.Atoi(v); err == nil {
					filter.Limit = n
				}
			}
			if v := req.URL.Query().Get("offset"); v != "" {
				if n, err := strconv.Atoi(v); err == nil {
					filter.Offset = n
				}
			}
			scans, err := st.ListScans(req.Context(), filter)
			if err != nil {
				zap.L().Error("serve: list scans", zap.Error(err))
				writeJSONError(w, http.StatusInternalServerError, "list scans")
				return
			}
			writeJSON(w, http.StatusOK, scans)
		})

		r.Get("/receipts/{id}", func(w http.ResponseWriter, req *http.Request) {
			if st == nil {
				writeJSONError(w, http.StatusServiceUnavailable, "store not configured")
				return
			}
			scan, err := st.GetScan(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					writeJSONError(w, http.StatusNotFound, "scan not found")
					return
				}
				zap.L().Error("serve: get scan", zap.Error(err))
				writeJSONError(w, http.StatusInternalServerError, "get scan")
				return
			}
			writeJSON(w, http.StatusOK, scan)
		})

		r.Delete("/receipts/{id}", func(w http.ResponseWriter, req *http.Request) {
			if st == nil {
				writeJSONError(w, http.StatusServiceUnavailable, "store not configured")
				return
			}
			if err := st.DeleteScan(req.Context(), chi.URLParam(req, "id")); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					writeJSONError(w, http.StatusNotFound, "scan not found")
					return
				}
				zap.L().Error("serve: delete scan", zap.Error(err))
				writeJSONError(w, http.StatusInternalServerError, "delete scan")
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	})

	return r
}

// bearerAuth rejects requests whose Authorization header does not carry the
// configured token.
func bearerAuth(token string) func(http.Handler) http.Handler {
	expect := "Bearer " + token
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			got := req.Header.Get("Authorization")
			if subtle.ConstantTimeCompare([]byte(got), []byte(expect)) != 1 {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
