package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/carpool-matching/internal/approval"
	"github.com/example/carpool-matching/internal/dispatch"
	"github.com/example/carpool-matching/internal/engine"
	"github.com/example/carpool-matching/internal/models"
	"github.com/example/carpool-matching/internal/schedule"
	"github.com/example/carpool-matching/internal/storage"
)

// Server exposes the orchestrator to the webhook/front-end layer.
type Server struct {
	Engine *engine.Orchestrator
	WS     *dispatch.WSNotifier
	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(eng *engine.Orchestrator, ws *dispatch.WSNotifier, logger *slog.Logger) *Server {
	s := &Server{Engine: eng, WS: ws, logger: logger, mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/requests", s.handleNewRequest).Methods("POST")
	s.mux.HandleFunc("/api/v1/routines", s.handleNewRoutine).Methods("POST")
	s.mux.HandleFunc("/api/v1/routines/{routine_id}", s.handleGetRoutine).Methods("GET")
	s.mux.HandleFunc("/api/v1/matches/{match_id}/response", s.handleMatchResponse).Methods("POST")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{user_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleNewRequest(w http.ResponseWriter, r *http.Request) {
	var req models.RideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	created, err := s.Engine.OnNewRequest(r.Context(), &req)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"request_id": req.ID,
		"created":    created,
	})
}

// routinePayload is the wire shape for routines: weekdays come as either
// a list ("sun,tue") or a range ("sun-thu"), clock times as "HH:MM".
type routinePayload struct {
	UserID      string `json:"user_id"`
	Destination string `json:"destination"`
	Days        string `json:"days"`
	DepartFrom  string `json:"depart_from"`
	DepartUntil string `json:"depart_until"`
	ReturnFrom  string `json:"return_from,omitempty"`
	ReturnUntil string `json:"return_until,omitempty"`
}

func (s *Server) handleNewRoutine(w http.ResponseWriter, r *http.Request) {
	var p routinePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	days, err := schedule.ParseDays(p.Days)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	dep, err := clockWindow(p.DepartFrom, p.DepartUntil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rt := models.Routine{
		UserID:      p.UserID,
		Destination: models.Place{Text: p.Destination},
		Days:        days,
		Departure:   dep,
	}
	if p.ReturnFrom != "" {
		ret, err := clockWindow(p.ReturnFrom, p.ReturnUntil)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rt.Return = &ret
	}
	created, err := s.Engine.OnNewRoutine(r.Context(), &rt)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"routine_id": rt.ID,
		"created":    created,
	})
}

func (s *Server) handleGetRoutine(w http.ResponseWriter, r *http.Request) {
	rt, err := s.Engine.Store.GetRoutine(r.Context(), mux.Vars(r)["routine_id"])
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "routine not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

type responsePayload struct {
	ResponderID string          `json:"responder_id"`
	Decision    models.Decision `json:"decision"`
}

func (s *Server) handleMatchResponse(w http.ResponseWriter, r *http.Request) {
	matchID := mux.Vars(r)["match_id"]
	var p responsePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	outcome, err := s.Engine.OnApprovalEvent(r.Context(), matchID, p.ResponderID, p.Decision)
	if err != nil {
		if errors.Is(err, approval.ErrWrongResponder) {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": outcome})
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	s.WS.Add(userID, conn)
	// drain until the client goes away so the registry stays clean
	go func() {
		defer s.WS.Remove(userID)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	if errors.Is(err, engine.ErrValidation) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.logger.Error("engine call failed", "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// clockWindow parses "HH:MM" boundaries into a recurring window.
func clockWindow(from, until string) (schedule.ClockWindow, error) {
	start, err := parseClock(from)
	if err != nil {
		return schedule.ClockWindow{}, err
	}
	end, err := parseClock(until)
	if err != nil {
		return schedule.ClockWindow{}, err
	}
	if end <= start {
		return schedule.ClockWindow{}, fmt.Errorf("window end %q not after start %q", until, from)
	}
	return schedule.ClockWindow{StartMin: start, EndMin: end}, nil
}

func parseClock(v string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(v), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("bad clock time %q", v)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("bad hour in %q", v)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad minute in %q", v)
	}
	return h*60 + m, nil
}
