package api

import (
	"net/http"

	"github.com/erazemk/lostfound/internal/workflow"
)

// ClaimsHandler handles ownership claims and lost/found matching.
type ClaimsHandler struct {
	Machine *workflow.Machine
}

type claimRequest struct {
	ItemID  string                 `json:"itemId"`
	Answers []workflow.ClaimAnswer `json:"answers"`
}

// Submit handles POST /api/items/process/claim. The caller is the requestor.
func (h *ClaimsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id := GetIdentity(r.Context())
	var req claimRequest
	if err := decodeJSON(r, &req); err != nil || req.ItemID == "" {
		jsonError(w, http.StatusBadRequest, "validation failed", "itemId is required")
		return
	}

	p, err := h.Machine.SubmitClaim(r.Context(), workflow.ClaimInput{
		ItemID:      req.ItemID,
		RequestorID: id.UserID,
		Answers:     req.Answers,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, "claim submitted", p)
}

type processRequest struct {
	ProcessID string `json:"processId"`
}

func readProcessID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req processRequest
	if err := decodeJSON(r, &req); err != nil || req.ProcessID == "" {
		jsonError(w, http.StatusBadRequest, "validation failed", "processId is required")
		return "", false
	}
	return req.ProcessID, true
}

// Cancel handles POST /api/items/process/cancel-claim. Only the requestor or
// an admin may withdraw a claim.
func (h *ClaimsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := GetIdentity(r.Context())
	processID, ok := readProcessID(w, r)
	if !ok {
		return
	}

	p, err := h.Machine.GetProcess(r.Context(), processID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	isRequestor := p.RequestorUserID != nil && *p.RequestorUserID == id.UserID
	if !isRequestor && !id.IsAdmin() {
		jsonError(w, http.StatusForbidden, "only the requestor can cancel this claim")
		return
	}

	if p, err = h.Machine.CancelClaim(r.Context(), processID); err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, "claim cancelled", p)
}

// Approve handles POST /api/items/process/approve-claim.
func (h *ClaimsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	processID, ok := readProcessID(w, r)
	if !ok {
		return
	}
	p, err := h.Machine.ApproveClaim(r.Context(), processID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, "claim approved", p)
}

// Reject handles POST /api/items/process/reject-claim.
func (h *ClaimsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	processID, ok := readProcessID(w, r)
	if !ok {
		return
	}
	p, err := h.Machine.RejectClaim(r.Context(), processID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, "claim rejected", p)
}

type matchRequest struct {
	LostProcessID  string `json:"lostProcessId"`
	FoundProcessID string `json:"foundProcessId"`
}

// Match handles POST /api/items/process/match.
func (h *ClaimsHandler) Match(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p, err := h.Machine.MatchItems(r.Context(), req.LostProcessID, req.FoundProcessID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, "items matched", p)
}
