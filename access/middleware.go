package access

import (
	"encoding/json"
	"net/http"
)

type deniedBody struct {
	Success bool   `json:"success"`
	Msg     string `json:"msg"`
}

func writeDenied(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // best-effort write
	json.NewEncoder(w).Encode(deniedBody{Success: false, Msg: msg})
}

// Guard returns middleware that runs the gate before next. Requests without a
// claim in their context get 401; denied requests get 403 and next never runs.
func (g *Gate) Guard(name string, mode Mode) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claim, ok := ClaimFrom(r.Context())
			if !ok {
				writeDenied(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if d := g.Require(claim, name, mode); !d.Allowed {
				writeDenied(w, http.StatusForbidden, "access denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
