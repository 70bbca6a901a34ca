package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/michaelbrown/artoo/internal/dispatch"
	"github.com/michaelbrown/artoo/internal/storage"
)

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type instructionsResponse struct {
	Bot              string                 `json:"bot"`
	Instructions     []dispatch.Instruction `json:"instructions"`
	CodeInstructions []dispatch.Instruction `json:"code_instructions"`
	SandboxMode      string                 `json:"sandbox_mode"`
	TimeoutSeconds   float64                `json:"timeout_seconds"`
}

func (s *Server) handleInstructions(w http.ResponseWriter, r *http.Request) {
	resp := instructionsResponse{
		Bot:              s.info.Bot,
		Instructions:     s.table.Instructions(),
		CodeInstructions: s.table.CodeInstructions(),
		SandboxMode:      string(s.info.SandboxMode),
		TimeoutSeconds:   s.info.Timeout.Seconds(),
	}
	if resp.Instructions == nil {
		resp.Instructions = []dispatch.Instruction{}
	}
	if resp.CodeInstructions == nil {
		resp.CodeInstructions = []dispatch.Instruction{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stats.Snapshot())
}

func (s *Server) handleHandled(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeError(w, http.StatusNotFound, "ledger disabled")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	handled, err := s.ledger.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if handled == nil {
		handled = []storage.Handled{}
	}
	writeJSON(w, http.StatusOK, handled)
}
