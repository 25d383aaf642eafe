package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/Riboost-Studio/print-agent/internal/model"
	"github.com/Riboost-Studio/print-agent/internal/templates"
)

type statusResponse struct {
	Agent      model.StatusSnapshot  `json:"agent"`
	Connection model.ConnectionState `json:"connection"`
	State      string                `json:"state"`
	Printer    string                `json:"printer"`
}

func (a *Agent) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(requestLogger(a.logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/status", a.handleStatus)
	r.Get("/templates", a.handleTemplates)
	r.Post("/reconnect", a.handleReconnect)
	return r
}

func (a *Agent) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Agent:      a.Status(),
		Connection: a.supervisor.Snapshot(),
		State:      a.supervisor.State().String(),
	}
	if a.printer != nil {
		resp.Printer = a.printer.Name()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *Agent) handleTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Default   string                   `json:"default"`
		Templates []templates.TemplateInfo `json:"templates"`
	}{a.cfg.DefaultTemplate, a.catalog.List()})
}

func (a *Agent) handleReconnect(w http.ResponseWriter, r *http.Request) {
	a.supervisor.Reconnect()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reconnect requested"})
}

// serveStatus runs the local status endpoint until ctx is cancelled. A
// listener failure is logged and does not stop the agent.
func (a *Agent) serveStatus(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.StatusAddr,
		Handler:           a.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info().Str("addr", a.cfg.StatusAddr).Msg("status endpoint listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Msg("status endpoint unavailable")
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn().Err(err).Msg("status endpoint forced to close")
		}
		return nil
	}
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug().
				Str("request_id", chimiddleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("request completed")
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
