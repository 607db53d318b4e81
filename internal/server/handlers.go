package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	invdb "github.com/yggai/ygggo_invdb"
	"github.com/yggai/ygggo_invdb/access"
)

// maxBodySize caps request bodies at 1 MB.
const maxBodySize = 1 << 20

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, map[string]any{
		"service":  "ygggo_invdb",
		"version":  invdb.Version(),
		"database": s.m.State().String(),
	})
}

// handleHealth reports 200 only when the current pool answers a trivial read.
// It never creates a pool, so an absent one is reported without waiting on
// the retry budget.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.m.HealthCheck(r.Context())
	if !status.Healthy {
		writeJSON(w, http.StatusServiceUnavailable, invdb.ExecutionResult{
			Success: false,
			Data:    status,
			Msg:     invdb.MsgConnectionUnavailable,
		})
		return
	}
	writeSuccess(w, status)
}

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.m.ForceReconnect(r.Context()); err != nil {
		s.logger.Error("forced reconnect failed",
			"category", LogCategory,
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeMessage(w, http.StatusServiceUnavailable, invdb.MsgConnectionUnavailable)
		return
	}
	writeSuccess(w, map[string]any{"generation": s.m.Stats().Generation})
}

// handleAccessLevels lists the access table. Root is hidden from non-root
// callers, and asking for it by name or level is denied.
func (s *Server) handleAccessLevels(w http.ResponseWriter, r *http.Request) {
	claim, _ := access.ClaimFrom(r.Context())
	table := s.gate.Table()
	q := r.URL.Query()

	if name := q.Get("codename"); name != "" {
		lvl, ok := table.Lookup(name)
		if !ok {
			writeMessage(w, http.StatusNotFound, "access level not found")
			return
		}
		if lvl == access.RootLevel && claim.Level != access.RootLevel {
			writeMessage(w, http.StatusForbidden, invdb.MsgAccessDenied)
			return
		}
		writeSuccess(w, access.Entry{Name: strings.ToLower(name), Level: lvl})
		return
	}

	if raw := q.Get("id"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "id must be an integer")
			return
		}
		if access.Level(n) == access.RootLevel && claim.Level != access.RootLevel {
			writeMessage(w, http.StatusForbidden, invdb.MsgAccessDenied)
			return
		}
		for _, e := range table.Entries() {
			if e.Level == access.Level(n) {
				writeSuccess(w, e)
				return
			}
		}
		writeMessage(w, http.StatusNotFound, "access level not found")
		return
	}

	writeSuccess(w, table.Visible(claim))
}

const selectLocations = `SELECT loc.id, loc.name, loc.description, loc.created_at, loc.updated_at
	FROM locations AS loc`

func (s *Server) handleListLocations(w http.ResponseWriter, r *http.Request) {
	query := selectLocations
	var (
		conds []string
		args  []any
	)
	q := r.URL.Query()
	if id := q.Get("id"); id != "" {
		conds = append(conds, "loc.id = ?")
		args = append(args, id)
	}
	if q.Has("name") {
		conds = append(conds, "loc.name = ?")
		args = append(args, q.Get("name"))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY loc.name ASC"

	writeResult(w, s.e.FetchAll(r.Context(), query, args...))
}

func (s *Server) handleLocationTotal(w http.ResponseWriter, r *http.Request) {
	writeResult(w, s.e.FetchScalar(r.Context(), "SELECT COUNT(id) FROM locations"))
}

type locationForm struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// decodeLocation reads and validates a location body. It writes the error
// response itself and reports whether the handler should continue.
func decodeLocation(w http.ResponseWriter, r *http.Request) (name, description string, ok bool) {
	var form locationForm
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(&form); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON payload")
		return "", "", false
	}
	if form.Name == nil || form.Description == nil || strings.TrimSpace(*form.Name) == "" {
		writeMessage(w, http.StatusBadRequest, "Form Data Incomplete")
		return "", "", false
	}
	return strings.TrimSpace(*form.Name), *form.Description, true
}

// locationNameTaken reports whether another location already uses name.
func (s *Server) locationNameTaken(r *http.Request, name, exceptID string) invdb.Result[bool] {
	res := s.e.FetchScalar(r.Context(),
		"SELECT COUNT(*) FROM locations WHERE name = ? AND id <> ?", name, exceptID)
	if !res.OK() {
		return invdb.Fail[bool](res.Err)
	}
	// COUNT comes back as int64 or as text depending on driver protocol.
	n, _ := strconv.ParseInt(fmt.Sprint(res.Data), 10, 64)
	return invdb.Ok(n > 0)
}

func (s *Server) handleCreateLocation(w http.ResponseWriter, r *http.Request) {
	name, description, ok := decodeLocation(w, r)
	if !ok {
		return
	}
	taken := s.locationNameTaken(r, name, "")
	if !taken.OK() {
		writeResult(w, taken)
		return
	}
	if taken.Data {
		writeMessage(w, http.StatusBadRequest, "Location name already exist")
		return
	}

	id := uuid.NewString()
	res := s.e.ExecuteSingle(r.Context(),
		"INSERT INTO locations (id, name, description) VALUES (?, ?, ?)", id, name, description)
	if !res.OK() {
		writeResult(w, res)
		return
	}
	writeJSON(w, http.StatusCreated, invdb.ExecutionResult{Success: true, Data: map[string]string{"id": id}})
}

func (s *Server) handleUpdateLocation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	name, description, ok := decodeLocation(w, r)
	if !ok {
		return
	}
	taken := s.locationNameTaken(r, name, id)
	if !taken.OK() {
		writeResult(w, taken)
		return
	}
	if taken.Data {
		writeMessage(w, http.StatusBadRequest, "Location name already exist")
		return
	}

	res := s.e.ExecuteSingle(r.Context(),
		"UPDATE locations SET name = ?, description = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		name, description, id)
	if !res.OK() {
		writeResult(w, res)
		return
	}
	if res.Data.RowCount == 0 {
		writeMessage(w, http.StatusNotFound, "Location not found")
		return
	}
	writeSuccess(w, true)
}

func (s *Server) handleDeleteLocation(w http.ResponseWriter, r *http.Request) {
	res := s.e.ExecuteSingle(r.Context(), "DELETE FROM locations WHERE id = ?", chi.URLParam(r, "id"))
	if !res.OK() {
		writeResult(w, res)
		return
	}
	if res.Data.RowCount == 0 {
		writeMessage(w, http.StatusNotFound, "Location not found")
		return
	}
	writeSuccess(w, true)
}
