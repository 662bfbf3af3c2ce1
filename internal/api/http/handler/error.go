package handler

import (
	"errors"
	"net/http"

	"github.com/dtroode/identity-server/internal/model"
)

var errLoginRequired = model.NewUnauthorized("login required")

var statusByKind = map[model.ErrorKind]int{
	model.KindBadRequest:      http.StatusBadRequest,
	model.KindUnauthorized:    http.StatusUnauthorized,
	model.KindForbidden:       http.StatusForbidden,
	model.KindNotFound:        http.StatusNotFound,
	model.KindConflict:        http.StatusConflict,
	model.KindTooManyRequests: http.StatusTooManyRequests,
}

// StatusOf maps an error kind onto an HTTP status code.
func StatusOf(err error) int {
	if status, ok := statusByKind[model.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteError writes {"error": message}. Server errors never expose details.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusOf(err)

	msg := "internal server error"
	var typed *model.Error
	if errors.As(err, &typed) && status != http.StatusInternalServerError {
		msg = typed.Message
	}

	WriteJSON(w, status, errorResponse{Error: msg})
}
