package rest

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/syntrixbase/inkwell/internal/server"
	"github.com/syntrixbase/inkwell/pkg/model"
)

// Artist is the API view of an artist profile record.
type Artist struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Styles    []string  `json:"styles"`
	Location  string    `json:"location"`
	RunID     string    `json:"runId,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (h *Handler) artistKey(id string) model.RecordKey {
	return model.RecordKey{PK: h.cfg.ArtistPrefix + id, SK: model.ProfileSK}
}

func (h *Handler) artistFromRecord(rec *model.Record) Artist {
	a := Artist{
		ID:        strings.TrimPrefix(rec.Key.PK, h.cfg.ArtistPrefix),
		Styles:    []string{},
		RunID:     rec.RunID,
		UpdatedAt: rec.UpdatedAt,
	}
	if s, ok := rec.Attributes["name"].(string); ok {
		a.Name = s
	}
	if s, ok := rec.Attributes["location"].(string); ok {
		a.Location = s
	}
	switch styles := rec.Attributes["styles"].(type) {
	case []string:
		a.Styles = append(a.Styles, styles...)
	case []any:
		for _, v := range styles {
			if s, ok := v.(string); ok {
				a.Styles = append(a.Styles, s)
			}
		}
	case string:
		a.Styles = append(a.Styles, styles)
	}
	return a
}

// putArtist writes in and reports whether the record already existed.
func (h *Handler) putArtist(w http.ResponseWriter, r *http.Request, in *model.ArtistInput) (existed bool, ok bool) {
	key := h.artistKey(in.ID)
	if _, err := h.records.Get(r.Context(), key); err == nil {
		existed = true
	} else if !errors.Is(err, model.ErrNotFound) {
		h.writeStorageError(w, r, err)
		return false, false
	}

	rec := &model.Record{Key: key, Attributes: in.Attributes()}
	if err := h.records.Put(r.Context(), rec); err != nil {
		h.writeStorageError(w, r, err)
		return false, false
	}
	return existed, true
}

func (h *Handler) writeArtist(w http.ResponseWriter, r *http.Request, id string, status int) {
	rec, err := h.records.Get(r.Context(), h.artistKey(id))
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	server.WriteJSON(w, status, h.artistFromRecord(rec))
}

func (h *Handler) handleCreateArtist(w http.ResponseWriter, r *http.Request) {
	in, err := decodeAndValidate[model.ArtistInput](r)
	if err != nil {
		writeDecodeError(w, err)
		return
	}

	existed, ok := h.putArtist(w, r, in)
	if !ok {
		return
	}
	status := http.StatusCreated
	if existed {
		status = http.StatusOK
	}
	server.LoggerFrom(r.Context(), h.logger).Info("Artist stored", "artist_id", in.ID, "replaced", existed)
	h.writeArtist(w, r, in.ID, status)
}

// artistID reads the {id} path segment. "|" separates PK from SK in
// storage ids, so it cannot appear in an entity id.
func artistID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if id == "" || strings.Contains(id, "|") {
		server.WriteError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid artist id")
		return "", false
	}
	return id, true
}

func (h *Handler) handleReplaceArtist(w http.ResponseWriter, r *http.Request) {
	id, ok := artistID(w, r)
	if !ok {
		return
	}

	in, err := decodeBody[model.ArtistInput](r)
	if err != nil {
		writeDecodeError(w, err)
		return
	}
	if in.ID == "" {
		in.ID = id
	}
	if in.ID != id {
		server.WriteError(w, http.StatusBadRequest, ErrCodeBadRequest, "Body id does not match path id")
		return
	}
	if err := validateStruct(in); err != nil {
		writeDecodeError(w, err)
		return
	}

	existed, ok := h.putArtist(w, r, in)
	if !ok {
		return
	}
	status := http.StatusOK
	if !existed {
		status = http.StatusCreated
	}
	server.LoggerFrom(r.Context(), h.logger).Info("Artist stored", "artist_id", id, "replaced", existed)
	h.writeArtist(w, r, id, status)
}

func (h *Handler) handleGetArtist(w http.ResponseWriter, r *http.Request) {
	id, ok := artistID(w, r)
	if !ok {
		return
	}
	h.writeArtist(w, r, id, http.StatusOK)
}

func (h *Handler) handleDeleteArtist(w http.ResponseWriter, r *http.Request) {
	id, ok := artistID(w, r)
	if !ok {
		return
	}
	if err := h.records.Delete(r.Context(), h.artistKey(id)); err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	server.LoggerFrom(r.Context(), h.logger).Info("Artist deleted", "artist_id", id)
	w.WriteHeader(http.StatusNoContent)
}
