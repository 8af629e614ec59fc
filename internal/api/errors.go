package api

import (
	"errors"
	"net/http"

	"github.com/kbralten/vxi-dash/internal/domain"
)

// writeError maps a domain error to the HTTP status codes of §7: 400
// validation, 404 not found, 409 conflict, 504 transport timeout, 500
// everything else.
func writeError(w http.ResponseWriter, err error) {
	var (
		vErr *domain.ValidationError
		cErr *domain.ConflictError
		nErr *domain.NotFoundError
		tErr *domain.TransportError
		pErr *domain.ParameterMissingError
	)

	switch {
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: vErr.Error()})
	case errors.As(err, &cErr):
		writeJSON(w, http.StatusConflict, errorBody{Error: cErr.Error()})
	case errors.As(err, &nErr):
		writeJSON(w, http.StatusNotFound, errorBody{Error: nErr.Error()})
	case errors.As(err, &pErr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: pErr.Error()})
	case errors.As(err, &tErr):
		writeJSON(w, http.StatusGatewayTimeout, errorBody{Error: tErr.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
	}
}

type errorBody struct {
	Error string `json:"error"`
}
