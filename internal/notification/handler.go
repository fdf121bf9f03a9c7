package notification

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/frahmantamala/isp-billing/internal"
	"github.com/frahmantamala/isp-billing/internal/auth"
	"github.com/frahmantamala/isp-billing/internal/transport"
)

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

// List handles GET /api/v1/notifications
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.HandleServiceError(w, auth.ErrMissingToken)
		return
	}

	var limit int64
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.HandleServiceError(w, internal.NewValidationFieldError("limit", "limit must be a number", internal.ErrCodeInvalidPagination))
			return
		}
		limit = v
	}

	views, err := h.Service.ListForUser(r.Context(), user.ID, limit)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"data": views})
}
