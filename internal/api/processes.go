package api

import (
	"context"
	"net/http"
	"time"

	"github.com/erazemk/lostfound/internal/model"
	"github.com/erazemk/lostfound/internal/workflow"
)

// ProcessesHandler handles process lifecycle endpoints.
type ProcessesHandler struct {
	Machine *workflow.Machine
}

// PendingForUser handles GET /api/items/pending/user/{userId}.
func (h *ProcessesHandler) PendingForUser(w http.ResponseWriter, r *http.Request) {
	id := GetIdentity(r.Context())
	userID := r.PathValue("userId")
	if userID != id.UserID && !id.IsAdmin() {
		jsonError(w, http.StatusForbidden, "insufficient permissions")
		return
	}

	processes, err := h.Machine.GetPendingForUser(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, "", processes)
}

// PendingAll handles GET /api/items/pending/all.
func (h *ProcessesHandler) PendingAll(w http.ResponseWriter, r *http.Request) {
	processes, err := h.Machine.GetPendingAll(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, "", processes)
}

// Delete handles DELETE /api/items/pending/{processId}.
func (h *ProcessesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Machine.DeleteProcessAndItem(r.Context(), r.PathValue("processId")); err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, "process deleted", nil)
}

type statusRequest struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// SetStatus handles PUT /api/items/process/{itemId}/status.
func (h *ProcessesHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.Machine.SetStatus(r.Context(), r.PathValue("itemId"), req.Status, req.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if p == nil {
		jsonResponse(w, http.StatusOK, "report rejected and removed", nil)
		return
	}
	jsonResponse(w, http.StatusOK, "status updated", p)
}

// Questions handles GET /api/items/process/{processId}/questions. The
// process owner, a pending requestor and admins may read them.
func (h *ProcessesHandler) Questions(w http.ResponseWriter, r *http.Request) {
	id := GetIdentity(r.Context())
	p, err := h.Machine.GetProcess(r.Context(), r.PathValue("processId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !involved(id.UserID, p) && !id.IsAdmin() {
		jsonError(w, http.StatusForbidden, "insufficient permissions")
		return
	}

	questions, err := h.Machine.ListQuestions(r.Context(), p.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, "", questions)
}

type questionsRequest struct {
	Questions []string `json:"questions"`
}

// StartVerification handles POST /api/items/process/{processId}/questions.
func (h *ProcessesHandler) StartVerification(w http.ResponseWriter, r *http.Request) {
	var req questionsRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.Machine.StartVerification(r.Context(), r.PathValue("processId"), req.Questions)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, "verification started", p)
}

type answersRequest struct {
	Answers []workflow.Answer `json:"answers"`
}

// SubmitAnswers handles POST /api/items/process/{processId}/verify.
func (h *ProcessesHandler) SubmitAnswers(w http.ResponseWriter, r *http.Request) {
	id := GetIdentity(r.Context())
	p, err := h.Machine.GetProcess(r.Context(), r.PathValue("processId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if p.UserID != id.UserID && !id.IsAdmin() {
		jsonError(w, http.StatusForbidden, "only the process owner can answer")
		return
	}

	var req answersRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err = h.Machine.SubmitAnswers(r.Context(), p.ID, req.Answers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, "answers submitted", p)
}

// WrongAnswer handles POST /api/items/process/{processId}/wrong-answer.
func (h *ProcessesHandler) WrongAnswer(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, false)
}

// CorrectAnswer handles POST /api/items/process/{processId}/correct-answer.
func (h *ProcessesHandler) CorrectAnswer(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, true)
}

func (h *ProcessesHandler) review(w http.ResponseWriter, r *http.Request, correct bool) {
	p, err := h.Machine.ReviewAnswers(r.Context(), r.PathValue("processId"), correct)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, p.Message, p)
}

// CancelVerification handles PUT /api/items/process/{processId}/cancel.
func (h *ProcessesHandler) CancelVerification(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Machine.CancelVerification)
}

type foundRequest struct {
	ItemID string `json:"itemId"`
}

// CreateFound handles POST /api/items/process/found.
func (h *ProcessesHandler) CreateFound(w http.ResponseWriter, r *http.Request) {
	id := GetIdentity(r.Context())
	var req foundRequest
	if err := decodeJSON(r, &req); err != nil || req.ItemID == "" {
		jsonError(w, http.StatusBadRequest, "validation failed", "itemId is required")
		return
	}

	p, err := h.Machine.CreateFoundProcess(r.Context(), req.ItemID, id.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, "process created", p)
}

type scanRequest struct {
	ProcessID string    `json:"processId"`
	ItemID    string    `json:"itemId"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// Scan handles POST /api/items/process/scan.
func (h *ProcessesHandler) Scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.Machine.ScanSurrenderQRCode(r.Context(), workflow.ScanInput{
		ProcessID: req.ProcessID,
		ItemID:    req.ItemID,
		Type:      req.Type,
		Timestamp: req.Timestamp,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	message := "surrender recorded"
	if res.AlreadyPendingRetrieval {
		message = "item is already pending retrieval"
	}
	jsonResponse(w, http.StatusOK, message, res.Process)
}

// HandOver handles PUT /api/items/process/{processId}/hand-over.
func (h *ProcessesHandler) HandOver(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Machine.HandOver)
}

// NoShow handles PUT /api/items/process/{processId}/no-show.
func (h *ProcessesHandler) NoShow(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Machine.NoShow)
}

// UndoRetrieval handles PUT /api/items/process/{processId}/undo-retrieval.
func (h *ProcessesHandler) UndoRetrieval(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Machine.UndoRetrieval)
}

// MarkHandedOver handles PUT /api/items/process/{processId}/mark-handed-over.
func (h *ProcessesHandler) MarkHandedOver(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Machine.MarkHandedOverFromNoShow)
}

type processOp func(ctx context.Context, processID string) (*model.Process, error)

func (h *ProcessesHandler) transition(w http.ResponseWriter, r *http.Request, op processOp) {
	p, err := op(r.Context(), r.PathValue("processId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, p.Message, p)
}

// involved reports whether userID owns p or has a claim pending on it.
func involved(userID string, p *model.Process) bool {
	if p.UserID == userID {
		return true
	}
	return p.RequestorUserID != nil && *p.RequestorUserID == userID
}
