package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/domain"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindPermission:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindExhausted:
		return http.StatusUnprocessableEntity
	case domain.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError || code == http.StatusServiceUnavailable {
		// do not leak internals on server-side failures
		msg = "temporary failure, retry later"
	}
	writeJSON(w, code, map[string]string{
		"code":  domain.CodeOf(err),
		"error": msg,
	})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.E(domain.KindValidation, "INVALID_JSON", "invalid json body")
	}
	return nil
}
