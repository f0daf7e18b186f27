package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/dpup/ride.ersn.net/server/internal/lib/export"
	"github.com/dpup/ride.ersn.net/server/internal/lib/geo"
	"github.com/dpup/ride.ersn.net/server/internal/lib/navigation"
	"github.com/dpup/ride.ersn.net/server/internal/lib/routing"
)

// maxBodyBytes bounds request bodies; a route of 50k points fits comfortably
const maxBodyBytes = 8 << 20

// NavigationService exposes navigation sessions over HTTP JSON
type NavigationService struct {
	sessions *SessionManager
	logger   *zap.Logger
}

// NewNavigationService creates the HTTP service
func NewNavigationService(sessions *SessionManager, logger *zap.Logger) *NavigationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NavigationService{sessions: sessions, logger: logger}
}

// Handler returns the router serving /nav/sessions
func (s *NavigationService) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.recoverer)

	r.Route("/nav/sessions", func(r chi.Router) {
		r.Post("/", s.createSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.stopSession)
			r.Post("/fixes", s.processFix)
			r.Post("/dismiss-off-route", s.dismissOffRoute)
			r.Post("/acknowledge-arrival", s.acknowledgeArrival)
			r.Get("/export.{format}", s.exportSession)
		})
	})
	return r
}

func (s *NavigationService) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	session, state, err := s.sessions.Create(r.Context(), req.toRouteRequest())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, sessionResponse{
		SessionID: session.ID,
		Route:     state.ActiveRoute,
		State:     toStateResponse(state),
	})
}

func (s *NavigationService) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, err := s.sessions.Get(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID: id,
		State:     toStateResponse(session.Engine.State()),
	})
}

func (s *NavigationService) processFix(w http.ResponseWriter, r *http.Request) {
	var fix geo.LocationFix
	if err := decodeJSON(w, r, &fix); err != nil {
		s.writeError(w, r, err)
		return
	}

	update, err := s.sessions.ProcessFix(chi.URLParam(r, "id"), fix)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	events := update.Events
	if events == nil {
		events = []navigation.Event{}
	}
	writeJSON(w, http.StatusOK, fixResponse{
		State:  toStateResponse(update.State),
		Events: events,
	})
}

func (s *NavigationService) dismissOffRoute(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	state, err := s.sessions.DismissOffRoute(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: id, State: toStateResponse(state)})
}

func (s *NavigationService) acknowledgeArrival(w http.ResponseWriter, r *http.Request) {
	state, ok, err := s.sessions.AcknowledgeArrival(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, arrivalResponse{Acknowledged: ok, State: toStateResponse(state)})
}

func (s *NavigationService) stopSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	state, err := s.sessions.Stop(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: id, State: toStateResponse(state)})
}

func (s *NavigationService) exportSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	format, err := export.ParseFormat(chi.URLParam(r, "format"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	// Render fully before writing so failures still produce a JSON error
	var buf bytes.Buffer
	if err := s.sessions.Export(id, format, &buf); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="ride-%s.%s"`, id, format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

var errBadRequest = errors.New("bad request")

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest), errors.Is(err, routing.ErrInvalidRoute):
		return http.StatusBadRequest
	case errors.Is(err, ErrTooManySessions):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrNoRouteProvider):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func (s *NavigationService) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		captureException(r, err, map[string]interface{}{
			"session_id": chi.URLParam(r, "id"),
		})
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *NavigationService) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.writeError(w, r, fmt.Errorf("panic: %v", rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
