package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/techbridge/authcore/ratelimit"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: errorDetail{Code: code, Message: message}})
}

type rateLimitedBody struct {
	Error      errorDetail `json:"error"`
	Limit      int         `json:"limit"`
	WindowSecs int         `json:"window_seconds"`
	RetryAfter int         `json:"retry_after_seconds"`
}

// writeRateLimited renders the 429 with a Retry-After header rounded up
// to whole seconds.
func writeRateLimited(w http.ResponseWriter, decision ratelimit.Decision) {
	retryAfter := int((decision.RetryAfter + time.Second - 1) / time.Second)
	if retryAfter < 1 {
		retryAfter = 1
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(rateLimitedBody{
		Error:      errorDetail{Code: "RATE_LIMITED", Message: "too many requests"},
		Limit:      decision.Limit,
		WindowSecs: int(decision.Window / time.Second),
		RetryAfter: retryAfter,
	})
}
