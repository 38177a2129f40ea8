package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/syntrixbase/inkwell/internal/server"
	"github.com/syntrixbase/inkwell/pkg/model"
)

// Item outcome statuses
const (
	ItemAccepted = "accepted"
	ItemRejected = "rejected"
	ItemFailed   = "failed"
)

type runItem struct {
	EntityID string         `json:"entityId" validate:"required,max=256,excludesall=0x7C"`
	Payload  map[string]any `json:"payload" validate:"required,min=1"`
}

type runUpdatesRequest struct {
	Items []runItem `json:"items" validate:"required,min=1,dive"`
}

// ItemOutcome reports what happened to one item of a run update.
type ItemOutcome struct {
	EntityID string `json:"entityId"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// RunUpdatesResponse lists per-item outcomes in request order.
type RunUpdatesResponse struct {
	RunID    string        `json:"runId"`
	Accepted int           `json:"accepted"`
	Rejected int           `json:"rejected"`
	Failed   int           `json:"failed"`
	Items    []ItemOutcome `json:"items"`
}

// handleRunUpdates publishes one upsert message per item. Items are
// submitted concurrently up to RunFanOut; one item failing never cancels the
// others.
func (h *Handler) handleRunUpdates(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runId")
	if runID == "" {
		server.WriteError(w, http.StatusBadRequest, ErrCodeBadRequest, "Run id is required")
		return
	}

	req, err := decodeAndValidate[runUpdatesRequest](r)
	if err != nil {
		writeDecodeError(w, err)
		return
	}
	if len(req.Items) > h.cfg.MaxRunItems {
		server.WriteError(w, http.StatusBadRequest, ErrCodeBadRequest,
			fmt.Sprintf("A run update carries at most %d items", h.cfg.MaxRunItems))
		return
	}

	outcomes := h.submitRun(r.Context(), runID, req.Items)
	if err := r.Context().Err(); err != nil {
		h.writeInternalError(w, r, err, "Run update interrupted")
		return
	}

	resp := RunUpdatesResponse{RunID: runID, Items: outcomes}
	for _, o := range outcomes {
		switch o.Status {
		case ItemAccepted:
			resp.Accepted++
		case ItemRejected:
			resp.Rejected++
		default:
			resp.Failed++
		}
	}
	server.LoggerFrom(r.Context(), h.logger).Info("Run update submitted",
		"run_id", runID,
		"accepted", resp.Accepted,
		"rejected", resp.Rejected,
		"failed", resp.Failed,
	)
	server.WriteJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) submitRun(ctx context.Context, runID string, items []runItem) []ItemOutcome {
	outcomes := make([]ItemOutcome, len(items))
	var g errgroup.Group
	g.SetLimit(h.cfg.RunFanOut)

	for i, item := range items {
		g.Go(func() error {
			outcome := ItemOutcome{EntityID: item.EntityID, Status: ItemAccepted}
			err := h.submitter.Submit(ctx, model.UpsertMessage{
				EntityID: item.EntityID,
				RunID:    runID,
				Payload:  item.Payload,
			})
			switch {
			case err == nil:
			case errors.Is(err, model.ErrValidation):
				outcome.Status = ItemRejected
				outcome.Error = err.Error()
			default:
				outcome.Status = ItemFailed
				outcome.Error = "Publish failed, resubmit later"
				h.logger.Warn("Upsert submit failed", "run_id", runID, "entity_id", item.EntityID, "error", err)
			}
			outcomes[i] = outcome
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}
