package app

import (
	"net/http"

	"folio/engine/internal/domain"
)

// Outcome labels err for metrics and workflow results.
func Outcome(err error) string {
	switch domain.KindOf(err) {
	case "":
		return "ok"
	case domain.KindNotFound:
		return "not_found"
	case domain.KindConflict:
		return "conflict"
	case domain.KindValidation:
		return "invalid"
	default:
		return "error"
	}
}

// httpStatus maps an error kind to the status the ops surface reports.
func httpStatus(err error) int {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
