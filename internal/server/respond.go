package server

import (
	"encoding/json"
	"net/http"

	invdb "github.com/yggai/ygggo_invdb"
)

// writeJSON writes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // best-effort write; the client may be gone
		json.NewEncoder(w).Encode(v)
	}
}

// writeSuccess wraps data in a successful envelope.
func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, invdb.ExecutionResult{Success: true, Data: data})
}

// writeMessage writes a failed envelope carrying only msg.
func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, invdb.ExecutionResult{Success: false, Msg: msg})
}

// writeResult writes r's envelope. Pool unavailability maps to 503, any other
// database failure to 400.
func writeResult[T any](w http.ResponseWriter, r invdb.Result[T]) {
	writeJSON(w, statusFor(r.Err), r.Envelope())
}

func statusFor(f *invdb.Failure) int {
	switch {
	case f == nil:
		return http.StatusOK
	case f.Category == invdb.CategoryPoolUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}
