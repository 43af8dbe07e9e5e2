package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/pilacorp/go-did-gateway/apperr"
)

// Response is the envelope of every API reply.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

var statusByKind = map[apperr.Kind]int{
	apperr.KindValidation:      http.StatusBadRequest,
	apperr.KindChainRejection:  http.StatusUnprocessableEntity,
	apperr.KindExternalService: http.StatusBadGateway,
	apperr.KindInternal:        http.StatusInternalServerError,
}

// StatusOf returns the HTTP status for the kind of err.
func StatusOf(err error) int {
	if status, ok := statusByKind[apperr.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Response{Success: true, Data: data})
}

func writeStatus(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, Response{Success: false, Error: msg, Code: code})
}

// writeError maps err to its status and writes the failure envelope. The full
// error is logged; the body only carries apperr.Public(err).
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	kind := apperr.KindOf(err)
	status := StatusOf(err)
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", "kind", kind.String(), "err", err)
	} else {
		log.Debug("Request rejected", "kind", kind.String(), "err", err)
	}
	writeStatus(w, status, kind.String(), apperr.Public(err))
}
