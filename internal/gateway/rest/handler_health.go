package rest

import (
	"net/http"

	"github.com/syntrixbase/inkwell/internal/core/flowcontrol"
	"github.com/syntrixbase/inkwell/internal/server"
)

type searchHealth struct {
	Breaker string `json:"breaker"`
	Ready   bool   `json:"ready"`
	Error   string `json:"error,omitempty"`
}

type healthResponse struct {
	Status string       `json:"status"`
	Search searchHealth `json:"search"`
}

// handleHealth always answers 200 while the process serves; a degraded
// search path is reported in the body.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := h.searcher.BreakerState()
	resp := healthResponse{
		Status: "ok",
		Search: searchHealth{Breaker: state.String(), Ready: true},
	}
	if err := h.searcher.Ready(r.Context()); err != nil {
		resp.Search.Ready = false
		resp.Search.Error = err.Error()
	}
	if state != flowcontrol.StateClosed || !resp.Search.Ready {
		resp.Status = "degraded"
	}
	server.WriteJSON(w, http.StatusOK, resp)
}
