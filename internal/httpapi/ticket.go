package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"voxhall.org/internal/audit"
	"voxhall.org/internal/gateway"
)

// userHeader carries the authenticated user id set by the fronting chat
// server, which terminates end-user authentication before reaching the
// core.
const userHeader = "X-Voxhall-User"

// GatewayTicket issues a short-lived signed ticket the caller presents to
// the real-time gateway during its socket upgrade.
func (a *API) GatewayTicket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	raw := strings.TrimSpace(r.Header.Get(userHeader))
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "missing or invalid " + userHeader + " header",
		})
		return
	}

	ticket, err := gateway.IssueTicket(userID, a.ticketTTL)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "ticket issuance unavailable",
		})
		return
	}

	_ = audit.LogEvent(r.Context(), "gateway.ticket_issued", map[string]any{
		"user_id": userID,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(a.ticketTTL.Seconds()),
	})
}
