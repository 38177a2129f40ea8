package rest

import (
	"errors"
	"net/http"

	"github.com/gorilla/schema"

	"github.com/syntrixbase/inkwell/internal/search"
	"github.com/syntrixbase/inkwell/internal/server"
	"github.com/syntrixbase/inkwell/pkg/model"
)

var queryDecoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	var q search.Query
	if err := queryDecoder.Decode(&q, r.URL.Query()); err != nil {
		server.WriteError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid search parameters: "+err.Error())
		return
	}
	if q.Limit < 0 {
		server.WriteError(w, http.StatusBadRequest, ErrCodeBadRequest, "limit cannot be negative")
		return
	}

	res, err := h.searcher.Search(r.Context(), q)
	switch {
	case err == nil:
		server.WriteJSON(w, http.StatusOK, res)
	case errors.Is(err, model.ErrUpstreamUnavailable):
		msg := search.UnavailableMessage
		if res != nil && res.Message != "" {
			msg = res.Message
		}
		server.WriteError(w, http.StatusServiceUnavailable, ErrCodeSearchUnavailable, msg)
	default:
		h.writeInternalError(w, r, err, "Search failed")
	}
}
