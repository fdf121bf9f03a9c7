package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/isp-billing/internal"
	"github.com/frahmantamala/isp-billing/internal/transport"
)

type RBACAuthorization struct {
	authorizer PermissionChecker
	base       *transport.BaseHandler
	logger     *slog.Logger
}

func NewRBACAuthorization(authorizer PermissionChecker, logger *slog.Logger) *RBACAuthorization {
	base := transport.NewBaseHandler(logger)
	return &RBACAuthorization{
		authorizer: authorizer,
		base:       base,
		logger:     base.Logger,
	}
}

func (ra *RBACAuthorization) require(name string, check func(ctx context.Context, perms []string) (bool, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				ra.logger.Warn("authorization check failed: user not found in context")
				ra.base.HandleServiceError(w, ErrMissingToken)
				return
			}

			allowed, err := check(r.Context(), user.Permissions)
			if err != nil {
				ra.logger.ErrorContext(r.Context(), "authorization check failed", "check", name, "error", err, "user_id", user.ID)
				ra.base.HandleServiceError(w, internal.NewInternalError("authorization check failed", err))
				return
			}

			if !allowed {
				ra.logger.WarnContext(r.Context(), "access denied: insufficient permissions",
					"check", name,
					"user_id", user.ID,
					"user_permissions", user.Permissions)
				ra.base.HandleServiceError(w, internal.NewForbiddenError("insufficient permissions", internal.ErrCodeUnauthorizedAccess))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (ra *RBACAuthorization) Middleware(permission string) func(http.Handler) http.Handler {
	return ra.require(permission, func(ctx context.Context, perms []string) (bool, error) {
		return ra.authorizer.HasPermission(ctx, perms, permission)
	})
}

func (ra *RBACAuthorization) RequireViewReports() func(http.Handler) http.Handler {
	return ra.require("view_reports", ra.authorizer.CanViewReportsCtx)
}

func (ra *RBACAuthorization) RequireAdmin() func(http.Handler) http.Handler {
	return ra.require("admin", ra.authorizer.IsAdminCtx)
}
