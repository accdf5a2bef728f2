package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/erazemk/lostfound/internal/blob"
	"github.com/erazemk/lostfound/internal/imaging"
	"github.com/erazemk/lostfound/internal/model"
	"github.com/erazemk/lostfound/internal/store"
	"github.com/erazemk/lostfound/internal/workflow"
)

// ItemsHandler handles item reports.
type ItemsHandler struct {
	Machine *workflow.Machine
	Images  blob.Store
}

type itemRequest struct {
	Name                   string                        `json:"name"`
	Description            string                        `json:"description"`
	Category               string                        `json:"category"`
	Location               string                        `json:"location"`
	Status                 string                        `json:"status"`
	AdditionalDescriptions []model.AdditionalDescription `json:"additionalDescriptions"`
}

// readItemRequest accepts either JSON or a multipart form with an optional
// "image" file. A stored image key is returned when a file was uploaded.
func (h *ItemsHandler) readItemRequest(w http.ResponseWriter, r *http.Request) (*itemRequest, string, error) {
	req := &itemRequest{}
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := decodeJSON(r, req); err != nil {
			return nil, "", &workflow.ValidationError{Msg: "invalid request body"}
		}
		return req, "", nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(imaging.MaxUploadBytes); err != nil {
		return nil, "", &workflow.ValidationError{Msg: "file too large or invalid multipart form"}
	}

	req.Name = r.FormValue("name")
	req.Description = r.FormValue("description")
	req.Category = r.FormValue("category")
	req.Location = r.FormValue("location")
	req.Status = r.FormValue("status")
	if raw := r.FormValue("additionalDescriptions"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.AdditionalDescriptions); err != nil {
			return nil, "", &workflow.ValidationError{Msg: "additionalDescriptions must be a JSON array"}
		}
	}

	file, _, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return req, "", nil
	}
	if err != nil {
		return nil, "", &workflow.ValidationError{Msg: "invalid image upload"}
	}
	defer file.Close()

	photo, err := imaging.Normalize(file)
	if errors.Is(err, imaging.ErrUnsupported) || errors.Is(err, imaging.ErrTooLarge) {
		return nil, "", &workflow.ValidationError{Msg: err.Error()}
	}
	if err != nil {
		return nil, "", &workflow.ValidationError{Msg: "image could not be processed"}
	}

	key, err := h.Images.Save(r.Context(), photo.ContentType, bytes.NewReader(photo.Data))
	if err != nil {
		return nil, "", err
	}
	return req, key, nil
}

// discardImage removes an uploaded image whose report was not stored.
func (h *ItemsHandler) discardImage(r *http.Request, key string) {
	if key == "" {
		return
	}
	if err := h.Images.Delete(r.Context(), key); err != nil {
		slog.Warn("failed to remove orphaned image", "image", key, "error", err)
	}
}

// Create handles POST /api/items.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	id := GetIdentity(r.Context())

	req, imageKey, err := h.readItemRequest(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	item, p, err := h.Machine.ReportItem(r.Context(), workflow.ReportInput{
		Name:                   req.Name,
		Description:            req.Description,
		Category:               req.Category,
		Location:               req.Location,
		Image:                  imageKey,
		Status:                 req.Status,
		ReporterID:             id.UserID,
		AdditionalDescriptions: req.AdditionalDescriptions,
	})
	if err != nil {
		h.discardImage(r, imageKey)
		writeError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusCreated, "item reported", map[string]string{
		"itemId":    item.ID,
		"processId": p.ID,
	})
}

// List handles GET /api/items. Only approved items are listed.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := h.Machine.ListPublicItems(r.Context(), store.ItemFilter{
		Status:   q.Get("status"),
		Category: q.Get("category"),
		Query:    q.Get("q"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	jsonResponse(w, http.StatusOK, "", items)
}

// visibleItem loads an item the caller may see: approved items are public,
// the rest only to their reporter and admins.
func (h *ItemsHandler) visibleItem(r *http.Request) (*model.Item, error) {
	itemID := r.PathValue("id")
	item, err := h.Machine.GetItem(r.Context(), itemID)
	if err != nil {
		return nil, err
	}
	id := GetIdentity(r.Context())
	if !item.Approved && item.ReporterID != id.UserID && !id.IsAdmin() {
		return nil, &workflow.NotFoundError{Resource: "item", ID: itemID}
	}
	return item, nil
}

// Get handles GET /api/items/{id}.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, err := h.visibleItem(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, "", item)
}

// GetImage handles GET /api/items/{id}/image.
func (h *ItemsHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	item, err := h.visibleItem(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if item.Image == "" {
		jsonError(w, http.StatusNotFound, "no image")
		return
	}

	rc, contentType, err := h.Images.Get(r.Context(), item.Image)
	if errors.Is(err, blob.ErrNotFound) {
		jsonError(w, http.StatusNotFound, "no image")
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("failed to stream image", "item_id", item.ID, "error", err)
	}
}

// UpdateDetails handles PUT /api/items/{id}/details. Only the reporter or an
// admin may edit a report.
func (h *ItemsHandler) UpdateDetails(w http.ResponseWriter, r *http.Request) {
	id := GetIdentity(r.Context())
	itemID := r.PathValue("id")

	item, err := h.Machine.GetItem(r.Context(), itemID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if item.ReporterID != id.UserID && !id.IsAdmin() {
		jsonError(w, http.StatusForbidden, "only the reporter can edit this item")
		return
	}

	req, imageKey, err := h.readItemRequest(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	details := workflow.ItemDetails{
		Name:                   req.Name,
		Description:            req.Description,
		Category:               req.Category,
		Location:               req.Location,
		AdditionalDescriptions: req.AdditionalDescriptions,
	}
	if imageKey != "" {
		details.Image = &imageKey
	}

	updated, err := h.Machine.UpdateItemDetails(r.Context(), itemID, details)
	if err != nil {
		h.discardImage(r, imageKey)
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, "item updated", updated)
}

type approveRequest struct {
	Approved *bool `json:"approved"`
}

// SetApproved handles PUT /api/items/{id} and PUT /api/items/{id}/approve.
func (h *ItemsHandler) SetApproved(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := decodeJSON(r, &req); err != nil || req.Approved == nil {
		jsonError(w, http.StatusBadRequest, "validation failed", "approved is required")
		return
	}

	item, err := h.Machine.ApproveItem(r.Context(), r.PathValue("id"), *req.Approved)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, "item updated", item)
}

// Delete handles DELETE /api/items/{id}.
func (h *ItemsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Machine.DeleteItem(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, "item deleted", nil)
}
