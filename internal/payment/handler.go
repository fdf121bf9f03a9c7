package payment

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/frahmantamala/isp-billing/internal"
	"github.com/frahmantamala/isp-billing/internal/auth"
	"github.com/frahmantamala/isp-billing/internal/transport"
	"github.com/go-chi/chi"
)

const IdempotencyKeyHeader = "Idempotency-Key"

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(svc ServiceAPI, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(logger),
		Service:     svc,
	}
}

// InitiatePayment handles POST /api/v1/payments
func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.HandleServiceError(w, auth.ErrMissingToken)
		return
	}

	var req InitiatePaymentRequest
	if err := transport.DecodeJSON(r, &req); err != nil {
		h.Logger.Warn("InitiatePayment: failed to parse request body", "error", err, "user_id", user.ID)
		h.HandleServiceError(w, internal.NewValidationError("invalid request body", internal.ErrCodeValidationFailed))
		return
	}

	resp, err := h.Service.Initiate(r.Context(), InitiateCommand{
		CustomerID:     user.ID,
		IdempotencyKey: strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader)),
		Request:        req,
	})
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

// GetPayment handles GET /api/v1/payments/{reference}
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	if !strings.HasPrefix(reference, ReferencePrefix) {
		h.HandleServiceError(w, ErrTransactionNotFound)
		return
	}

	view, err := h.Service.GetByReference(r.Context(), reference)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, view)
}

// ListPayments handles GET /api/v1/payments
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.HandleServiceError(w, auth.ErrMissingToken)
		return
	}

	query, err := parseListQuery(r)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	views, err := h.Service.List(r.Context(), user.ID, query)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"data":   views,
		"limit":  query.Filter().Limit,
		"offset": query.Offset,
	})
}

// Stats handles GET /api/v1/payments/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.Stats(r.Context())
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"data": stats})
}

func parseListQuery(r *http.Request) (ListQuery, error) {
	q := r.URL.Query()
	query := ListQuery{Status: q.Get("status")}

	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return query, internal.NewValidationFieldError("limit", "limit must be a number", internal.ErrCodeInvalidPagination)
		}
		query.Limit = v
	}
	if raw := q.Get("offset"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return query, internal.NewValidationFieldError("offset", "offset must be a number", internal.ErrCodeInvalidPagination)
		}
		query.Offset = v
	}
	return query, nil
}
