package cli

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/snapstate/internal/offline"
	"github.com/roach88/snapstate/internal/state"
)

// NewStatusRouter exposes a running App over HTTP.
//
//	GET    /healthz               liveness
//	GET    /state                 StateSummary
//	GET    /pending               PendingList
//	POST   /replay                ReplayResult
//	POST   /toggle/{field}/{id}   optimistic like/save toggle
//	DELETE /cache?pattern=p       InvalidateResult
func NewStatusRouter(app *App) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	s := &statusServer{app: app}
	r.Get("/healthz", s.health)
	r.Get("/state", s.state)
	r.Get("/pending", s.pending)
	r.Post("/replay", s.replay)
	r.Post("/toggle/{field}/{id}", s.toggle)
	r.Delete("/cache", s.invalidate)
	return r
}

type statusServer struct {
	app *App
}

func (s *statusServer) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *statusServer) state(w http.ResponseWriter, r *http.Request) {
	entries, err := s.app.Store.List(r.Context(), s.app.Config.Namespace)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	s.write(w, r, http.StatusOK,
		summarize(s.app.Config.Database, s.app.Config.Namespace, s.app.Engine.Current(), entries))
}

func (s *statusServer) pending(w http.ResponseWriter, r *http.Request) {
	s.write(w, r, http.StatusOK, PendingList{Actions: s.app.Queue.Pending()})
}

func (s *statusServer) replay(w http.ResponseWriter, r *http.Request) {
	n, err := s.app.Queue.ReplayAll(r.Context())
	result := ReplayResult{Replayed: n, Remaining: s.app.Queue.Len()}

	var rerr *offline.ReplayError
	switch {
	case err == nil:
		s.write(w, r, http.StatusOK, result)
	case errors.As(err, &rerr):
		result.HaltedAt = rerr.ActionID
		result.Error = rerr.Err.Error()
		s.write(w, r, http.StatusBadGateway, result)
	default:
		s.fail(w, r, http.StatusInternalServerError, err)
	}
}

// ToggleResponse is the body returned by POST /toggle.
type ToggleResponse struct {
	Field  string `json:"field"`
	ID     string `json:"id"`
	Member bool   `json:"member"`
	Queued bool   `json:"queued"`
	Action string `json:"action,omitempty"`
}

func (s *statusServer) toggle(w http.ResponseWriter, r *http.Request) {
	field, id := chi.URLParam(r, "field"), chi.URLParam(r, "id")

	var (
		res offline.ToggleResult
		err error
	)
	switch field {
	case state.FieldLiked.String():
		res, err = s.app.Queue.ToggleLike(r.Context(), id)
	case state.FieldSaved.String():
		res, err = s.app.Queue.ToggleSave(r.Context(), id)
	default:
		http.Error(w, "field must be liked or saved", http.StatusNotFound)
		return
	}
	if err != nil {
		s.fail(w, r, http.StatusBadGateway, err)
		return
	}

	s.write(w, r, http.StatusOK, ToggleResponse{
		Field:  field,
		ID:     id,
		Member: res.Member,
		Queued: res.Queued,
		Action: res.Action.ID,
	})
}

func (s *statusServer) invalidate(w http.ResponseWriter, r *http.Request) {
	removed, err := s.app.Cache.Invalidate(r.Context(), r.URL.Query().Get("pattern"))
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	if removed == nil {
		removed = []string{}
	}
	s.write(w, r, http.StatusOK, InvalidateResult{Removed: removed})
}

func (s *statusServer) write(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.app.Logger.Warn("write response failed",
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err)
	}
}

func (s *statusServer) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	s.app.Logger.Log(r.Context(), levelFor(status), "request failed",
		"path", r.URL.Path,
		"request_id", middleware.GetReqID(r.Context()),
		"error", err)
	s.write(w, r, status, CLIResponse{
		Status: "error",
		Error:  &CLIError{Code: http.StatusText(status), Message: err.Error()},
	})
}

func levelFor(status int) slog.Level {
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		return slog.LevelError
	}
	return slog.LevelWarn
}
