package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/poolmind/poolmind/internal/engine"
	"github.com/poolmind/poolmind/internal/ledger"
)

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type addParticipantRequest struct {
	ID            string  `json:"id"`
	InvestmentUSD float64 `json:"investment_usd"`
}

type withdrawalRequest struct {
	ParticipantID string  `json:"participant_id"`
	AmountUSD     float64 `json:"amount_usd"`
}

type participantsResponse struct {
	Participants []ledger.ParticipantMetrics `json:"participants"`
	Count        int                         `json:"count"`
}

type processWithdrawalsResponse struct {
	Results []ledger.WithdrawalResult `json:"results"`
	Count   int                       `json:"count"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Response encoding failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	requestID := requestIDFrom(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("request_id", requestID).Msg("Request failed")
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error(), RequestID: requestID})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleEngineStart(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Start(); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrAlreadyRunning) {
			status = http.StatusConflict
		}
		s.writeError(w, r, status, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (s *Server) handleEngineStop(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Stop(r.Context()); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrNotRunning) {
			status = http.StatusConflict
		}
		s.writeError(w, r, status, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleRunCycle(w http.ResponseWriter, r *http.Request) {
	rec, err := s.engine.RunOneCycle(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrBusy) {
			status = http.StatusConflict
		}
		s.writeError(w, r, status, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handlePoolMetrics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ledger.Metrics())
}

func (s *Server) handleListParticipants(w http.ResponseWriter, r *http.Request) {
	parts := s.ledger.Participants()
	s.writeJSON(w, http.StatusOK, participantsResponse{Participants: parts, Count: len(parts)})
}

func (s *Server) handleGetParticipant(w http.ResponseWriter, r *http.Request) {
	detail, err := s.ledger.Participant(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, http.StatusNotFound, err)
		return
	}
	s.writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleAddParticipant(w http.ResponseWriter, r *http.Request) {
	var req addParticipantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		s.writeError(w, r, http.StatusBadRequest, errors.New("participant id is required"))
		return
	}

	if err := s.ledger.AddParticipant(req.ID, decimal.NewFromFloat(req.InvestmentUSD)); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if s.metrics != nil {
		s.metrics.ParticipantDeposits.Inc()
	}

	detail, err := s.ledger.Participant(req.ID)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, detail)
}

func (s *Server) handleRequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req withdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if strings.TrimSpace(req.ParticipantID) == "" {
		s.writeError(w, r, http.StatusBadRequest, errors.New("participant_id is required"))
		return
	}

	if err := s.ledger.RequestWithdrawal(req.ParticipantID, decimal.NewFromFloat(req.AmountUSD)); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) handleProcessWithdrawals(w http.ResponseWriter, r *http.Request) {
	results := s.ledger.ProcessWithdrawals()
	if s.metrics != nil {
		for _, res := range results {
			s.metrics.WithdrawalsTotal.WithLabelValues(string(res.Status)).Inc()
		}
	}
	if results == nil {
		results = []ledger.WithdrawalResult{}
	}
	s.writeJSON(w, http.StatusOK, processWithdrawalsResponse{Results: results, Count: len(results)})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.appCfg.Redacted())
}

// handleNotFound sits outside the subrouter middleware, so it sets its
// own content type.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	s.writeJSON(w, http.StatusNotFound, errorResponse{
		Error:     "not found",
		RequestID: requestIDFrom(r.Context()),
	})
}
