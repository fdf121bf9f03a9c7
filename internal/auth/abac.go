package auth

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/frahmantamala/isp-billing/internal"
	"github.com/frahmantamala/isp-billing/internal/transport"
	"github.com/go-chi/chi"
	"github.com/jmoiron/sqlx"
)

var ErrForbidden = internal.ErrUnauthorizedAccess

// ABACPolicy is a small attribute-based access control helper.
type ABACPolicy struct{}

func (p *ABACPolicy) Allow(userAttrs map[string]string, resourceOwnerID string, action string) bool {
	if role, ok := userAttrs["role"]; ok && role == PermissionAdmin {
		return true
	}

	if permissions, ok := userAttrs["permissions"]; ok {
		for _, perm := range strings.Split(permissions, ",") {
			if perm == PermissionAdmin {
				return true
			}
		}
	}

	if uid, ok := userAttrs["user_id"]; ok && uid != "" && uid == resourceOwnerID {
		return action == "read"
	}

	return false
}

// CanViewTransaction allows the owning customer and admins.
func (p *ABACPolicy) CanViewTransaction(u *User, ownerID int64) error {
	attrs := extractUserAttributes(u)
	if attrs["user_id"] == "" {
		return ErrForbidden
	}

	if p.Allow(attrs, strconv.FormatInt(ownerID, 10), "read") {
		return nil
	}
	return ErrForbidden
}

func extractUserAttributes(u *User) map[string]string {
	if u == nil || u.ID == 0 {
		return map[string]string{}
	}

	attrs := map[string]string{
		"user_id":     strconv.FormatInt(u.ID, 10),
		"permissions": strings.Join(u.Permissions, ","),
	}
	if u.IsAdmin() {
		attrs["role"] = PermissionAdmin
	}
	return attrs
}

// RequireABAC is a generic middleware wrapper that runs an ABAC check function.
func RequireABAC(abac *ABACPolicy, base *transport.BaseHandler, check func(a *ABACPolicy, u *User, r *http.Request) error) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := UserFromContext(r.Context())
			if !ok {
				base.HandleServiceError(w, ErrMissingToken)
				return
			}
			if err := check(abac, u, r); err != nil {
				if _, isApp := internal.IsAppError(err); isApp {
					base.HandleServiceError(w, err)
					return
				}
				base.HandleServiceError(w, internal.NewInternalError("authorization check failed", err))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireCanViewTransaction resolves the owner of the {reference} transaction and
// applies CanViewTransaction.
func RequireCanViewTransaction(db *sqlx.DB, abac *ABACPolicy, base *transport.BaseHandler) func(next http.Handler) http.Handler {
	query := db.Rebind("SELECT customer_id FROM payment_transactions WHERE gateway_reference = ?")

	return RequireABAC(abac, base, func(a *ABACPolicy, u *User, r *http.Request) error {
		reference := chi.URLParam(r, "reference")
		if reference == "" {
			return internal.ErrTransactionNotFound
		}

		var ownerID int64
		if err := db.GetContext(r.Context(), &ownerID, query, reference); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return internal.ErrTransactionNotFound
			}
			return err
		}
		return a.CanViewTransaction(u, ownerID)
	})
}
