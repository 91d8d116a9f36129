// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/chatscai10/friedg-inventory/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Validation responses carry every violated field so clients can render all
// problems at once.
func RespondError(w http.ResponseWriter, err error) {
	var vErr *shared.ValidationError
	if errors.As(err, &vErr) {
		JSON(w, http.StatusBadRequest, ProblemDetail{
			Title:  "Validation Failed",
			Status: http.StatusBadRequest,
			Detail: vErr.Error(),
			Kind:   string(shared.KindValidation),
			Fields: vErr.Fields,
		})
		return
	}

	kind, ok := shared.KindOf(err)
	if !ok {
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	status := http.StatusInternalServerError
	title := "Internal Error"
	switch kind {
	case shared.KindItemNotFound, shared.KindStoreNotFound:
		status, title = http.StatusNotFound, "Not Found"
	case shared.KindConflict:
		status, title = http.StatusConflict, "Write Conflict"
	case shared.KindUnavailable:
		status, title = http.StatusServiceUnavailable, "Storage Unavailable"
	case shared.KindForbidden:
		status, title = http.StatusForbidden, "Forbidden"
	case shared.KindInvariantViolation:
		status, title = http.StatusInternalServerError, "Ledger Invariant Violated"
	}
	JSON(w, status, ProblemDetail{
		Title:  title,
		Status: status,
		Detail: err.Error(),
		Kind:   string(kind),
	})
}
