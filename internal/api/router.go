package api

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/lostfound/internal/blob"
	"github.com/erazemk/lostfound/internal/workflow"
)

// NewRouter creates the API router with all endpoints registered. Every route
// requires a bearer token; admin-only routes are wrapped in requireAdmin.
func NewRouter(db *sql.DB, machine *workflow.Machine, images blob.Store, jwtSecret string) http.Handler {
	mux := http.NewServeMux()

	items := &ItemsHandler{Machine: machine, Images: images}
	processes := &ProcessesHandler{Machine: machine}
	claims := &ClaimsHandler{Machine: machine}
	users := &UsersHandler{DB: db}

	authMW := AuthMiddleware(jwtSecret, db)
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, authMW(h))
	}
	admin := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, authMW(requireAdmin(h)))
	}

	handle("GET /api/me", users.Me)

	// Items.
	handle("POST /api/items", items.Create)
	handle("GET /api/items", items.List)
	handle("GET /api/items/{id}", items.Get)
	handle("GET /api/items/{id}/image", items.GetImage)
	handle("PUT /api/items/{id}/details", items.UpdateDetails)
	admin("PUT /api/items/{id}", items.SetApproved)
	admin("PUT /api/items/{id}/approve", items.SetApproved)
	admin("DELETE /api/items/{id}", items.Delete)

	// Pending processes.
	handle("GET /api/items/pending/user/{userId}", processes.PendingForUser)
	admin("GET /api/items/pending/all", processes.PendingAll)
	admin("DELETE /api/items/pending/{processId}", processes.Delete)

	// Verification.
	admin("PUT /api/items/process/{itemId}/status", processes.SetStatus)
	handle("GET /api/items/process/{processId}/questions", processes.Questions)
	admin("POST /api/items/process/{processId}/questions", processes.StartVerification)
	handle("POST /api/items/process/{processId}/verify", processes.SubmitAnswers)
	admin("POST /api/items/process/{processId}/wrong-answer", processes.WrongAnswer)
	admin("POST /api/items/process/{processId}/correct-answer", processes.CorrectAnswer)
	admin("PUT /api/items/process/{processId}/cancel", processes.CancelVerification)

	// Surrender and retrieval.
	handle("POST /api/items/process/found", processes.CreateFound)
	admin("POST /api/items/process/scan", processes.Scan)
	admin("PUT /api/items/process/{processId}/hand-over", processes.HandOver)
	admin("PUT /api/items/process/{processId}/no-show", processes.NoShow)
	admin("PUT /api/items/process/{processId}/undo-retrieval", processes.UndoRetrieval)
	admin("PUT /api/items/process/{processId}/mark-handed-over", processes.MarkHandedOver)

	// Claims and matching.
	handle("POST /api/items/process/claim", claims.Submit)
	handle("POST /api/items/process/cancel-claim", claims.Cancel)
	admin("POST /api/items/process/approve-claim", claims.Approve)
	admin("POST /api/items/process/reject-claim", claims.Reject)
	admin("POST /api/items/process/match", claims.Match)

	return mux
}
