package api

import (
	"cmp"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/erazemk/najdeno/internal/auth"
	"github.com/erazemk/najdeno/internal/feed"
	"github.com/erazemk/najdeno/internal/imaging"
	"github.com/erazemk/najdeno/internal/metrics"
	"github.com/erazemk/najdeno/internal/model"
	"github.com/erazemk/najdeno/internal/realtime"
	"github.com/erazemk/najdeno/internal/store"
)

// ItemsHandler handles item endpoints.
type ItemsHandler struct {
	DB        *sql.DB
	Publisher realtime.Publisher
	Metrics   *metrics.Metrics

	MaxImageBytes int64
	MaxImages     int
}

type itemRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Location    string `json:"location"`
	Date        string `json:"date"`
	Status      string `json:"status"`
	IsAnonymous bool   `json:"is_anonymous"`
}

type claimRequest struct {
	ClaimantName  string `json:"claimant_name"`
	ClaimantEmail string `json:"claimant_email"`
	Notes         string `json:"notes"`
}

// filterFromQuery reads the feed filter from URL query parameters.
func filterFromQuery(r *http.Request) feed.Filter {
	q := r.URL.Query()
	return feed.Filter{
		Status:   q.Get("status"),
		Category: q.Get("category"),
		Search:   strings.TrimSpace(q.Get("search")),
		SortBy:   q.Get("sort_by"),
	}
}

// visibleTo hides the submitter of anonymous items from everyone except
// the poster and staff.
func visibleTo(claims *auth.Claims, item model.Item) model.Item {
	if claims != nil && (claims.UserID == item.UserID || model.RoleAtLeast(claims.Role, model.RoleStaff)) {
		return item
	}
	return item.Masked()
}

// canManage reports whether the caller may modify the item.
func canManage(claims *auth.Claims, item *model.Item) bool {
	if claims == nil {
		return false
	}
	return (item.UserID != 0 && claims.UserID == item.UserID) || model.RoleAtLeast(claims.Role, model.RoleStaff)
}

// List handles GET /api/items: the filtered, ordered feed.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := filterFromQuery(r)
	if err := filter.Validate(); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	page := 0
	if p := r.URL.Query().Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			jsonError(w, http.StatusBadRequest, "invalid page")
			return
		}
		page = n
	}

	normalized := filter.Normalized()
	items, err := store.ListItems(r.Context(), h.DB, store.ListOptions{
		Status:   normalized.Status,
		Category: normalized.Category,
		SortBy:   normalized.SortBy,
		Page:     page,
	})
	if err != nil {
		if errors.Is(err, feed.ErrInvalidDate) {
			slog.Error("malformed item date in store", "error", err)
		} else {
			slog.Error("failed to list items", "error", err)
		}
		jsonError(w, http.StatusInternalServerError, "failed to list items")
		return
	}

	// The store already narrows by status and category; the feed stage
	// still runs so search, ordering and date checks are applied uniformly.
	result, err := feed.Compute(items, filter)
	if err != nil {
		slog.Error("failed to compute feed", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list items")
		return
	}

	claims := GetClaims(r.Context())
	for i := range result.Items {
		result.Items[i] = visibleTo(claims, result.Items[i])
	}
	if h.Metrics != nil {
		h.Metrics.ObserveFeed(result.Count)
	}
	jsonResponse(w, http.StatusOK, result)
}

// Create handles POST /api/items.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var req itemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Status != model.ItemStatusLost && req.Status != model.ItemStatusFound {
		jsonError(w, http.StatusBadRequest, "status must be lost or found")
		return
	}
	if err := model.ValidateItem(req.Title, req.Category, req.Location, req.Status); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	date, ok := parseRequestDate(w, req.Date, time.Now())
	if !ok {
		return
	}

	item, err := store.CreateItem(r.Context(), h.DB, store.NewItem{
		Title:          strings.TrimSpace(req.Title),
		Description:    strings.TrimSpace(req.Description),
		Category:       req.Category,
		Location:       strings.TrimSpace(req.Location),
		Date:           date,
		Status:         req.Status,
		UserID:         claims.UserID,
		SubmitterName:  claims.Name,
		SubmitterEmail: claims.Email,
		IsAnonymous:    req.IsAnonymous,
	})
	if err != nil {
		slog.Error("failed to create item", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to create item")
		return
	}

	if h.Publisher != nil {
		h.Publisher.Publish(*item)
	}
	if h.Metrics != nil {
		h.Metrics.ItemCreated(item.Status)
	}
	slog.Info("item created", "user", claims.Email, "item", item.ID, "status", item.Status)
	jsonResponse(w, http.StatusCreated, item)
}

// parseRequestDate parses an optional client-supplied date. An empty value
// yields fallback. On failure it writes a 400 and returns false.
func parseRequestDate(w http.ResponseWriter, value string, fallback time.Time) (time.Time, bool) {
	if strings.TrimSpace(value) == "" {
		return fallback, true
	}
	date, err := feed.ParseDate("", strings.TrimSpace(value))
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid date")
		return time.Time{}, false
	}
	if date.After(time.Now().Add(24 * time.Hour)) {
		jsonError(w, http.StatusBadRequest, "date is in the future")
		return time.Time{}, false
	}
	return date, true
}

// loadItem fetches the live item named by the {id} path value. On failure
// it writes the error response and returns nil.
func (h *ItemsHandler) loadItem(w http.ResponseWriter, r *http.Request) *model.Item {
	item, err := store.GetItem(r.Context(), h.DB, r.PathValue("id"))
	if err != nil {
		slog.Error("failed to get item", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get item")
		return nil
	}
	if item == nil || item.IsDeleted() {
		jsonError(w, http.StatusNotFound, "item not found")
		return nil
	}
	return item
}

// loadManagedItem is loadItem plus an owner-or-staff check.
func (h *ItemsHandler) loadManagedItem(w http.ResponseWriter, r *http.Request) *model.Item {
	item := h.loadItem(w, r)
	if item == nil {
		return nil
	}
	if !canManage(GetClaims(r.Context()), item) {
		jsonError(w, http.StatusForbidden, "insufficient permissions")
		return nil
	}
	return item
}

// Get handles GET /api/items/{id}.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	item := h.loadItem(w, r)
	if item == nil {
		return
	}
	jsonResponse(w, http.StatusOK, visibleTo(GetClaims(r.Context()), *item))
}

// Update handles PUT /api/items/{id}.
func (h *ItemsHandler) Update(w http.ResponseWriter, r *http.Request) {
	item := h.loadManagedItem(w, r)
	if item == nil {
		return
	}

	var req itemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	var status string
	if req.Status != "" && req.Status != item.Status {
		// Claimed items stay claimed; open items may switch between lost and found.
		if item.Status == model.ItemStatusClaimed ||
			(req.Status != model.ItemStatusLost && req.Status != model.ItemStatusFound) {
			jsonError(w, http.StatusBadRequest, "invalid status change")
			return
		}
		status = req.Status
	}
	if err := model.ValidateItem(req.Title, req.Category, req.Location, cmp.Or(status, item.Status)); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	date, ok := parseRequestDate(w, req.Date, item.Date)
	if !ok {
		return
	}

	err := store.UpdateItem(r.Context(), h.DB, item.ID, store.ItemUpdate{
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Category:    req.Category,
		Location:    strings.TrimSpace(req.Location),
		Date:        date,
		Status:      status,
		IsAnonymous: req.IsAnonymous,
	})
	if errors.Is(err, store.ErrItemNotFound) {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		slog.Error("failed to update item", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to update item")
		return
	}

	updated, err := store.GetItem(r.Context(), h.DB, item.ID)
	if err != nil || updated == nil {
		slog.Error("failed to reload item", "item", item.ID, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get item")
		return
	}
	jsonResponse(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/items/{id}.
func (h *ItemsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	item := h.loadManagedItem(w, r)
	if item == nil {
		return
	}

	if err := store.DeleteItem(r.Context(), h.DB, item.ID); err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			jsonError(w, http.StatusNotFound, "item not found")
			return
		}
		slog.Error("failed to delete item", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to delete item")
		return
	}

	// Images of deleted items are never served again.
	if err := store.DeleteItemImages(r.Context(), h.DB, item.ID); err != nil {
		slog.Warn("failed to drop images of deleted item", "item", item.ID, "error", err)
	}

	slog.Info("item deleted", "user", GetClaims(r.Context()).Email, "item", item.ID)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "item deleted"})
}

// UploadImage handles POST /api/items/{id}/images.
func (h *ItemsHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	item := h.loadManagedItem(w, r)
	if item == nil {
		return
	}

	maxBytes := h.MaxImageBytes
	if maxBytes <= 0 {
		maxBytes = imaging.MaxUploadBytes
	}
	// Leave headroom for multipart framing.
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+(1<<20))
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer file.Close()

	processed, err := imaging.Process(file, maxBytes)
	switch {
	case errors.Is(err, imaging.ErrTooLarge):
		jsonError(w, http.StatusRequestEntityTooLarge, "image too large")
		return
	case errors.Is(err, imaging.ErrUnsupportedFormat):
		jsonError(w, http.StatusBadRequest, "image must be JPEG, PNG, or WebP")
		return
	case err != nil:
		jsonError(w, http.StatusBadRequest, "invalid image")
		return
	}

	imageID, err := store.AddItemImage(r.Context(), h.DB, item.ID, processed.Data, processed.MIME, h.MaxImages)
	switch {
	case errors.Is(err, store.ErrTooManyImages):
		jsonError(w, http.StatusConflict, "image limit reached for this item")
		return
	case errors.Is(err, store.ErrItemNotFound):
		jsonError(w, http.StatusNotFound, "item not found")
		return
	case err != nil:
		slog.Error("failed to save image", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to save image")
		return
	}

	jsonResponse(w, http.StatusCreated, map[string]string{
		"id":  imageID,
		"url": store.ImageURL(imageID),
	})
}

// GetImage handles GET /api/images/{id}.
func (h *ItemsHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	data, mime, err := store.GetImage(r.Context(), h.DB, r.PathValue("id"))
	if err != nil {
		slog.Error("failed to get image", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get image")
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "image not found")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

// Claim handles POST /api/items/{id}/claim.
func (h *ItemsHandler) Claim(w http.ResponseWriter, r *http.Request) {
	item := h.loadManagedItem(w, r)
	if item == nil {
		return
	}

	var req claimRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.ClaimantName) == "" {
		jsonError(w, http.StatusBadRequest, "claimant name required")
		return
	}
	email := ""
	if req.ClaimantEmail != "" {
		normalized, err := model.NormalizeEmail(req.ClaimantEmail)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid claimant email")
			return
		}
		email = normalized
	}

	claims := GetClaims(r.Context())
	recordedBy := claims.UserID
	claim, err := store.CreateClaim(r.Context(), h.DB, store.NewClaim{
		ItemID:        item.ID,
		ClaimantName:  strings.TrimSpace(req.ClaimantName),
		ClaimantEmail: email,
		Notes:         strings.TrimSpace(req.Notes),
		RecordedBy:    &recordedBy,
	})
	switch {
	case errors.Is(err, store.ErrAlreadyClaimed):
		jsonError(w, http.StatusConflict, "item already claimed")
		return
	case errors.Is(err, store.ErrItemNotFound):
		jsonError(w, http.StatusNotFound, "item not found")
		return
	case err != nil:
		slog.Error("failed to create claim", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to claim item")
		return
	}

	slog.Info("item claimed", "user", claims.Email, "item", item.ID)
	jsonResponse(w, http.StatusCreated, claim)
}

// Claims handles GET /api/items/{id}/claims.
func (h *ItemsHandler) Claims(w http.ResponseWriter, r *http.Request) {
	item := h.loadManagedItem(w, r)
	if item == nil {
		return
	}

	history, err := store.GetItemClaims(r.Context(), h.DB, item.ID)
	if err != nil {
		slog.Error("failed to get item claims", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get item claims")
		return
	}
	if history == nil {
		history = []model.Claim{}
	}
	jsonResponse(w, http.StatusOK, history)
}

// Categories handles GET /api/categories.
func Categories(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, model.Categories)
}
