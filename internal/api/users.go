package api

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/lostfound/internal/store"
)

// UsersHandler serves the caller's synced profile.
type UsersHandler struct {
	DB *sql.DB
}

// Me handles GET /api/me.
func (h *UsersHandler) Me(w http.ResponseWriter, r *http.Request) {
	id := GetIdentity(r.Context())
	user, err := store.GetUser(r.Context(), h.DB, id.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if user == nil {
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}
	jsonResponse(w, http.StatusOK, "", user)
}
