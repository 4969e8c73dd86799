package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/abluka/internal/hub"
	"github.com/DoyleJ11/abluka/internal/store"
	"github.com/DoyleJ11/abluka/internal/types"
)

const maxBody = 64 << 10

// CreateSession stores the posted record. The client picks the code; a
// taken code answers 409 so it can retry with another.
func CreateSession(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rec store.Record
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&rec); err != nil {
			writeError(w, http.StatusBadRequest, "bad json")
			return
		}
		if !validCode(rec.Code) {
			writeError(w, http.StatusBadRequest, "invalid code")
			return
		}

		if err := h.Create(r.Context(), rec); err != nil {
			writeStoreError(w, log, err)
			return
		}
		log.Info("session created", zap.String("code", rec.Code))

		writeJSON(w, http.StatusCreated, types.CreateSessionResponse{Code: rec.Code, Record: rec})
	}
}

func GetSession(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := h.Get(r.Context(), chi.URLParam(r, "code"))
		if err != nil {
			writeStoreError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// UpdateSession merges a partial update and answers with the merged record.
func UpdateSession(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p store.Patch
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&p); err != nil {
			writeError(w, http.StatusBadRequest, "bad json")
			return
		}

		rec, err := h.Update(r.Context(), chi.URLParam(r, "code"), p)
		if err != nil {
			writeStoreError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func DeleteSession(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		if err := h.Delete(r.Context(), code); err != nil {
			writeStoreError(w, log, err)
			return
		}
		log.Info("session deleted", zap.String("code", code))
		w.WriteHeader(http.StatusNoContent)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func validCode(code string) bool {
	if len(code) == 0 || len(code) > 16 {
		return false
	}
	for _, c := range code {
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

func writeStoreError(w http.ResponseWriter, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrExists):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.Error("store call failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
