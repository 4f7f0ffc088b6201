package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
)

type errorBody struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	Code       string `json:"code"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// writeError writes the standard error envelope. Middleware cannot use the
// handler package's ErrorHandler without an import cycle.
func writeError(w http.ResponseWriter, status int, code, message string, retryAfter int) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error:      message,
		Code:       code,
		RetryAfter: retryAfter,
	})
}
