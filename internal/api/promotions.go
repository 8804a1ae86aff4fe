package api

import (
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/devops-promotions/promotions/internal/promotion"
	"github.com/devops-promotions/promotions/internal/storage"
)

const (
	contentTypeJSON = "application/json"
	maxBodyBytes    = 1 << 20
	namespace       = "promotions"
)

var filterKeys = []string{"name", "type", "discount", "customer", "start_date", "end_date"}

// Handler wires the promotion store into HTTP handlers.
type Handler struct {
	storage storage.Storage
	logger  *zap.Logger
	base    string
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(store storage.Storage, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{storage: store, logger: logger}
}

// Register adds the promotion endpoints under the router prefix.
func (h *Handler) Register(router *Router) error {
	h.base = router.Prefix() + "/promotions"

	routes := []struct {
		route   Route
		handler http.HandlerFunc
	}{
		{Route{Method: http.MethodGet, Path: "/promotions", Summary: "List all promotions", Query: filterKeys,
			Responses: map[int]string{200: "Promotions found", 400: "Unsupported or malformed query"}}, h.handleList},
		{Route{Method: http.MethodPost, Path: "/promotions", Summary: "Create a promotion", Body: true,
			Responses: map[int]string{201: "Promotion created", 400: "Invalid promotion", 409: "Name already in use", 415: "Unsupported media type"}}, h.handleCreate},
		{Route{Method: http.MethodGet, Path: "/promotions/{id}", Summary: "Retrieve a single promotion",
			Responses: map[int]string{200: "Promotion found", 400: "Invalid id", 404: "Promotion not found"}}, h.handleGet},
		{Route{Method: http.MethodPut, Path: "/promotions/{id}", Summary: "Update a promotion", Body: true,
			Responses: map[int]string{200: "Promotion updated", 400: "Invalid promotion", 404: "Promotion not found", 409: "Name already in use", 415: "Unsupported media type"}}, h.handleUpdate},
		{Route{Method: http.MethodPut, Path: "/promotions/{id}/cancel", Summary: "Cancel a promotion",
			Responses: map[int]string{200: "Promotion cancelled", 400: "Invalid id", 404: "Promotion not found"}}, h.handleCancel},
		{Route{Method: http.MethodDelete, Path: "/promotions/{id}", Summary: "Delete a promotion",
			Responses: map[int]string{204: "Promotion deleted", 400: "Invalid id"}}, h.handleDelete},
	}

	for _, rt := range routes {
		rt.route.Namespace = namespace
		if err := router.Handle(rt.route, rt.handler); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Request to list promotions")

	filter, matchable, err := parseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !matchable {
		writeJSON(w, http.StatusOK, []promotion.Document{})
		return
	}

	found, err := h.storage.List(r.Context(), filter)
	if err != nil {
		writeFailure(w, h.logger, err)
		return
	}

	out := make([]promotion.Document, 0, len(found))
	for _, p := range found {
		out = append(out, p.Serialize())
	}
	h.logger.Info("Returning promotions", zap.Int("count", len(out)))
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Request to create a promotion")

	p, ok := h.decodePromotion(w, r)
	if !ok {
		return
	}

	created, err := h.storage.Create(r.Context(), p)
	if err != nil {
		writeFailure(w, h.logger, err)
		return
	}

	h.logger.Info("Promotion created", zap.Int64("id", created.ID))
	w.Header().Set("Location", h.location(r, created.ID))
	writeJSON(w, http.StatusCreated, created.Serialize())
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := promotionID(w, r)
	if !ok {
		return
	}
	h.logger.Info("Request to find a promotion", zap.Int64("id", id))

	found, err := h.storage.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Promotion %d not found.", id))
			return
		}
		writeFailure(w, h.logger, err)
		return
	}

	w.Header().Set("Location", h.location(r, found.ID))
	writeJSON(w, http.StatusOK, found.Serialize())
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := promotionID(w, r)
	if !ok {
		return
	}
	h.logger.Info("Request to update a promotion", zap.Int64("id", id))

	p, ok := h.decodePromotion(w, r)
	if !ok {
		return
	}
	p.ID = id

	updated, err := h.storage.Update(r.Context(), p)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Promotion %d not found.", id))
			return
		}
		writeFailure(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, updated.Serialize())
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := promotionID(w, r)
	if !ok {
		return
	}
	h.logger.Info("Request to cancel a promotion", zap.Int64("id", id))

	found, err := h.storage.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Promotion %d not found.", id))
			return
		}
		writeFailure(w, h.logger, err)
		return
	}

	found.Cancel()
	updated, err := h.storage.Update(r.Context(), found)
	if err != nil {
		writeFailure(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, updated.Serialize())
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := promotionID(w, r)
	if !ok {
		return
	}
	h.logger.Info("Request to delete a promotion", zap.Int64("id", id))

	if err := h.storage.Delete(r.Context(), id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		writeFailure(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// decodePromotion enforces the JSON content type and deserializes the body.
func (h *Handler) decodePromotion(w http.ResponseWriter, r *http.Request) (promotion.Promotion, bool) {
	if !isJSON(r.Header.Get("Content-Type")) {
		h.logger.Error("Invalid Content-Type", zap.String("content_type", r.Header.Get("Content-Type")))
		writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be "+contentTypeJSON)
		return promotion.Promotion{}, false
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body is too large")
			return promotion.Promotion{}, false
		}
		writeError(w, http.StatusBadRequest, "unable to read request body")
		return promotion.Promotion{}, false
	}

	p, err := promotion.Deserialize(body)
	if err != nil {
		writeFailure(w, h.logger, err)
		return promotion.Promotion{}, false
	}
	return p, true
}

func (h *Handler) location(r *http.Request, id int64) string {
	return absoluteURL(r, h.base+"/"+strconv.FormatInt(id, 10))
}

func isJSON(header string) bool {
	if header == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(header)
	return err == nil && mediaType == contentTypeJSON
}

// promotionID parses the {id} path value as a 32-bit integer.
func promotionID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid promotion id %q: must be an integer between %d and %d", raw, math.MinInt32, math.MaxInt32))
		return 0, false
	}
	return id, true
}

// parseFilter turns query parameters into a storage filter. matchable is
// false when a value is well formed but can never match, such as an unknown
// promotion type.
func parseFilter(query url.Values) (filter storage.Filter, matchable bool, err error) {
	for key := range query {
		if !isFilterKey(key) {
			return storage.Filter{}, false, fmt.Errorf("unsupported query parameter: %s", key)
		}
	}

	if v, ok := firstValue(query, "name"); ok {
		filter.Name = &v
	}

	// Type names match exactly, as they do in request bodies.
	if v, ok := firstValue(query, "type"); ok {
		t, known := promotion.ParseType(v)
		if !known {
			return storage.Filter{}, false, nil
		}
		filter.Type = &t
	}

	if v, ok := firstValue(query, "discount"); ok {
		d, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return storage.Filter{}, false, fmt.Errorf("discount must be an integer, got %q", v)
		}
		discount := int(d)
		filter.Discount = &discount
	}

	if v, ok := firstValue(query, "customer"); ok {
		c, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return storage.Filter{}, false, fmt.Errorf("customer must be an integer, got %q", v)
		}
		filter.Customer = &c
	}

	if v, ok := firstValue(query, "start_date"); ok {
		d, err := promotion.ParseDate(v)
		if err != nil {
			return storage.Filter{}, false, fmt.Errorf("start_date must be a YYYY-MM-DD date, got %q", v)
		}
		filter.StartDate = &d
	}

	if v, ok := firstValue(query, "end_date"); ok {
		d, err := promotion.ParseDate(v)
		if err != nil {
			return storage.Filter{}, false, fmt.Errorf("end_date must be a YYYY-MM-DD date, got %q", v)
		}
		filter.EndDate = &d
	}

	return filter, true, nil
}

func isFilterKey(key string) bool {
	for _, k := range filterKeys {
		if k == key {
			return true
		}
	}
	return false
}

func firstValue(query url.Values, key string) (string, bool) {
	values, ok := query[key]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}
