package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/nikhilbhutani/historyhub/internal/audit"
)

type AuditHandler struct {
	svc *audit.Service
}

func NewAuditHandler(svc *audit.Service) *AuditHandler {
	return &AuditHandler{svc: svc}
}

// List returns recorded history events. Query parameters: event, since,
// until (RFC 3339), limit, offset.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		writeError(w, http.StatusNotImplemented, "audit log not enabled")
		return
	}

	q, err := parseAuditQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.svc.List(r.Context(), q)
	if err != nil {
		slog.Error("failed to list audit entries", "error", err)
		writeError(w, http.StatusServiceUnavailable, "audit log unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func parseAuditQuery(r *http.Request) (audit.Query, error) {
	v := r.URL.Query()
	q := audit.Query{Event: v.Get("event")}

	if s := v.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 || n > 500 {
			return q, errBadParam("limit")
		}
		q.Limit = n
	}
	if s := v.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return q, errBadParam("offset")
		}
		q.Offset = n
	}
	for name, dst := range map[string]**time.Time{"since": &q.Since, "until": &q.Until} {
		s := v.Get(name)
		if s == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return q, errBadParam(name)
		}
		*dst = &ts
	}
	return q, nil
}

type errBadParam string

func (e errBadParam) Error() string { return "invalid " + string(e) + " parameter" }
