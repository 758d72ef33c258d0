package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/mcdev12/skirmish/go/internal/matchmaking"
	"github.com/mcdev12/skirmish/go/internal/models"
	"github.com/mcdev12/skirmish/go/internal/session"
	"github.com/rs/zerolog/log"
)

// RegisterRoutes registers the websocket endpoint and the HTTP API.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.HandleConnect)
	mux.HandleFunc("GET /ws/stats", s.HandleConnectionStats)

	mux.HandleFunc("GET /api/queues", s.HandleListQueues)
	mux.HandleFunc("GET /api/queues/{mode}", s.HandleGetQueue)
	mux.HandleFunc("GET /api/matches", s.HandleListMatches)
	mux.HandleFunc("GET /api/matches/{id}", s.HandleGetMatch)
	mux.HandleFunc("GET /api/participants/{id}", s.HandleGetParticipant)
	mux.HandleFunc("GET /api/participants/{id}/damage", s.HandleDamageAllowed)

	mux.HandleFunc("POST /api/join", s.HandleJoin)
	mux.HandleFunc("POST /api/leave", s.HandleLeave)
	mux.HandleFunc("POST /api/votes", s.HandleVote)
	mux.HandleFunc("POST /api/eliminations", s.HandleElimination)
	mux.HandleFunc("POST /api/departures", s.HandleDeparture)
}

// HandleConnect handles GET /ws?participant_id=...
func (s *Service) HandleConnect(w http.ResponseWriter, r *http.Request) {
	id := models.ParticipantID(r.URL.Query().Get("participant_id"))
	if id == "" {
		http.Error(w, "participant_id is required", http.StatusBadRequest)
		return
	}

	if _, err := s.matchmaker.Connect(r.Context(), id); err != nil {
		log.Error().Err(err).Str("participant_id", string(id)).Msg("failed to connect participant")
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	// The upgrader has already answered the request on failure.
	if err := s.connections.UpgradeConnection(w, r, id); err != nil {
		log.Error().Err(err).Str("participant_id", string(id)).Msg("failed to upgrade websocket connection")
		if !s.connections.Connected(id) {
			s.HandleClosed(id)
		}
	}
}

// HandleConnectionStats handles GET /ws/stats
func (s *Service) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.connections.Stats())
}

// HandleListQueues handles GET /api/queues
func (s *Service) HandleListQueues(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.matchmaker.Queues())
}

// HandleGetQueue handles GET /api/queues/{mode}
func (s *Service) HandleGetQueue(w http.ResponseWriter, r *http.Request) {
	view, ok := s.matchmaker.Queue(models.Mode(r.PathValue("mode")))
	if !ok {
		http.Error(w, "queue not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleListMatches handles GET /api/matches
func (s *Service) HandleListMatches(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.matchmaker.Matches())
}

// HandleGetMatch handles GET /api/matches/{id}
func (s *Service) HandleGetMatch(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid match id format", http.StatusBadRequest)
		return
	}
	view, ok := s.matchmaker.Match(id)
	if !ok {
		http.Error(w, "match not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleGetParticipant handles GET /api/participants/{id}
func (s *Service) HandleGetParticipant(w http.ResponseWriter, r *http.Request) {
	view, ok := s.matchmaker.Participant(models.ParticipantID(r.PathValue("id")))
	if !ok {
		http.Error(w, "participant not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleDamageAllowed handles GET /api/participants/{id}/damage
func (s *Service) HandleDamageAllowed(w http.ResponseWriter, r *http.Request) {
	id := models.ParticipantID(r.PathValue("id"))
	writeJSON(w, http.StatusOK, map[string]bool{"allowed": s.matchmaker.DamageAllowed(id)})
}

type participantRequest struct {
	ParticipantID models.ParticipantID `json:"participant_id"`
	Mode          models.Mode          `json:"mode,omitempty"`
	Arena         string               `json:"arena,omitempty"`
}

type eliminationRequest struct {
	Victim models.ParticipantID `json:"victim"`
	Killer models.ParticipantID `json:"killer,omitempty"`
	Notify *bool                `json:"notify,omitempty"`
}

// HandleJoin handles POST /api/join
func (s *Service) HandleJoin(w http.ResponseWriter, r *http.Request) {
	var req participantRequest
	if !decodeParticipantRequest(w, r, &req) {
		return
	}
	if !req.Mode.Valid() {
		http.Error(w, "unknown mode", http.StatusBadRequest)
		return
	}
	if err := s.matchmaker.JoinQueue(req.ParticipantID, req.Mode); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	view, _ := s.matchmaker.Participant(req.ParticipantID)
	writeJSON(w, http.StatusOK, view)
}

// HandleLeave handles POST /api/leave
func (s *Service) HandleLeave(w http.ResponseWriter, r *http.Request) {
	var req participantRequest
	if !decodeParticipantRequest(w, r, &req) {
		return
	}
	if err := s.matchmaker.LeaveQueue(req.ParticipantID); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	view, _ := s.matchmaker.Participant(req.ParticipantID)
	writeJSON(w, http.StatusOK, view)
}

// HandleVote handles POST /api/votes
func (s *Service) HandleVote(w http.ResponseWriter, r *http.Request) {
	var req participantRequest
	if !decodeParticipantRequest(w, r, &req) {
		return
	}
	accepted, err := s.matchmaker.Vote(req.ParticipantID, req.Arena)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"accepted": accepted})
}

// HandleElimination handles POST /api/eliminations. A killer turns the
// elimination into a credited death.
func (s *Service) HandleElimination(w http.ResponseWriter, r *http.Request) {
	var req eliminationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Victim == "" {
		http.Error(w, "victim is required", http.StatusBadRequest)
		return
	}

	var (
		eliminated bool
		err        error
	)
	if req.Killer != "" {
		eliminated, err = s.matchmaker.ReportDeath(req.Victim, req.Killer)
	} else {
		notify := req.Notify == nil || *req.Notify
		eliminated, err = s.matchmaker.Eliminate(req.Victim, notify)
	}
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"eliminated": eliminated})
}

// HandleDeparture handles POST /api/departures. A participant who is still
// connected leaves the match with its pre-match state restored.
func (s *Service) HandleDeparture(w http.ResponseWriter, r *http.Request) {
	var req participantRequest
	if !decodeParticipantRequest(w, r, &req) {
		return
	}
	departed, err := s.matchmaker.HandleDeparture(req.ParticipantID)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"departed": departed})
}

func decodeParticipantRequest(w http.ResponseWriter, r *http.Request, req *participantRequest) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	if req.ParticipantID == "" {
		http.Error(w, "participant_id is required", http.StatusBadRequest)
		return false
	}
	return true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, matchmaking.ErrUnknownParticipant),
		errors.Is(err, matchmaking.ErrMatchNotFound):
		return http.StatusNotFound
	case errors.Is(err, matchmaking.ErrNoQueueForMode):
		return http.StatusBadRequest
	case errors.Is(err, matchmaking.ErrAlreadyQueued),
		errors.Is(err, matchmaking.ErrAlreadyInMatch),
		errors.Is(err, matchmaking.ErrNotQueued),
		errors.Is(err, matchmaking.ErrNotInMatch),
		errors.Is(err, matchmaking.ErrQueueFull),
		errors.Is(err, session.ErrDisconnecting):
		return http.StatusConflict
	case errors.Is(err, matchmaking.ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
