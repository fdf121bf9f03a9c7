package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/frahmantamala/isp-billing/internal/core/datamodel/payment"
	"github.com/frahmantamala/isp-billing/internal/testutil"
	"github.com/frahmantamala/isp-billing/internal/transport"
	"github.com/go-chi/chi"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

func errorBody(rec *httptest.ResponseRecorder) string {
	var body struct {
		Error string `json:"error"`
	}
	gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(gomega.Succeed())
	return body.Error
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

var _ = ginkgo.Describe("Auth HTTP", func() {
	var (
		handler  *Handler
		tokenGen *JWTTokenGenerator
		mockRepo *mockUserRepository
	)

	ginkgo.BeforeEach(func() {
		mockRepo = newMockUserRepository()
		tokenGen = NewJWTTokenGenerator("test-access-secret", "test-refresh-secret", 15*time.Minute, 24*time.Hour)
		handler = NewHandler(NewService(mockRepo, tokenGen, bcrypt.MinCost, testLogger()), testLogger())
	})

	ginkgo.Describe("Login", func() {
		ginkgo.It("should return tokens for valid credentials", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
				strings.NewReader(`{"email":"customer@example.com","password":"correct_password"}`))
			rec := httptest.NewRecorder()

			handler.Login(rec, req)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			var tokens AuthTokens
			gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &tokens)).To(gomega.Succeed())
			gomega.Expect(tokens.AccessToken).ToNot(gomega.BeEmpty())
		})

		ginkgo.It("should return 401 with an error body for a bad password", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
				strings.NewReader(`{"email":"customer@example.com","password":"nope"}`))
			rec := httptest.NewRecorder()

			handler.Login(rec, req)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
			gomega.Expect(errorBody(rec)).To(gomega.Equal("invalid email or password"))
		})

		ginkgo.It("should return 400 for malformed JSON", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{`))
			rec := httptest.NewRecorder()

			handler.Login(rec, req)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
		})
	})

	ginkgo.Describe("AuthMiddleware", func() {
		ginkgo.It("should reject a request without a bearer token", func() {
			rec := httptest.NewRecorder()
			handler.AuthMiddleware(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
			gomega.Expect(errorBody(rec)).To(gomega.Equal("missing authorization token"))
		})

		ginkgo.It("should reject an invalid token", func() {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer garbage")
			rec := httptest.NewRecorder()

			handler.AuthMiddleware(okHandler).ServeHTTP(rec, req)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
		})

		ginkgo.It("should reject a token whose user cannot be resolved", func() {
			token, err := tokenGen.GenerateAccessToken("99", "ghost@example.com")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()

			handler.AuthMiddleware(okHandler).ServeHTTP(rec, req)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
			gomega.Expect(errorBody(rec)).To(gomega.Equal("unknown identity"))
		})

		ginkgo.It("should attach the resolved user to the context", func() {
			token, err := tokenGen.GenerateAccessToken("1", "customer@example.com")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()

			handler.AuthMiddleware(http.HandlerFunc(handler.Me)).ServeHTTP(rec, req)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			var u User
			gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &u)).To(gomega.Succeed())
			gomega.Expect(u.ID).To(gomega.Equal(int64(1)))
			gomega.Expect(u.Phone).To(gomega.Equal("254700000001"))
		})
	})

	ginkgo.Describe("RequireServiceKey", func() {
		var mw http.Handler

		ginkgo.BeforeEach(func() {
			mw = RequireServiceKey("service-secret", transport.NewBaseHandler(testLogger()))(okHandler)
		})

		ginkgo.It("should accept the key in the apikey header", func() {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req.Header.Set("apikey", "service-secret")
			rec := httptest.NewRecorder()
			mw.ServeHTTP(rec, req)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
		})

		ginkgo.It("should accept the key as a bearer token", func() {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req.Header.Set("Authorization", "Bearer service-secret")
			rec := httptest.NewRecorder()
			mw.ServeHTTP(rec, req)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
		})

		ginkgo.It("should reject a wrong key", func() {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req.Header.Set("apikey", "guess")
			rec := httptest.NewRecorder()
			mw.ServeHTTP(rec, req)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
		})

		ginkgo.It("should reject everything when no key is configured", func() {
			open := RequireServiceKey("", transport.NewBaseHandler(testLogger()))(okHandler)
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			rec := httptest.NewRecorder()
			open.ServeHTTP(rec, req)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
		})
	})

	ginkgo.Describe("RBACAuthorization", func() {
		var rbac *RBACAuthorization

		ginkgo.BeforeEach(func() {
			rbac = NewRBACAuthorization(NewPermissionChecker(), testLogger())
		})

		serve := func(mw func(http.Handler) http.Handler, u *User) int {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if u != nil {
				req = req.WithContext(ContextWithUser(req.Context(), u))
			}
			rec := httptest.NewRecorder()
			mw(okHandler).ServeHTTP(rec, req)
			return rec.Code
		}

		ginkgo.It("should let report viewers and admins through RequireViewReports", func() {
			gomega.Expect(serve(rbac.RequireViewReports(), &User{ID: 1, Permissions: []string{PermissionViewReports}})).To(gomega.Equal(http.StatusOK))
			gomega.Expect(serve(rbac.RequireViewReports(), &User{ID: 2, Permissions: []string{PermissionAdmin}})).To(gomega.Equal(http.StatusOK))
		})

		ginkgo.It("should forbid plain customers", func() {
			gomega.Expect(serve(rbac.RequireViewReports(), &User{ID: 1})).To(gomega.Equal(http.StatusForbidden))
			gomega.Expect(serve(rbac.RequireAdmin(), &User{ID: 1, Permissions: []string{PermissionViewReports}})).To(gomega.Equal(http.StatusForbidden))
		})

		ginkgo.It("should answer 401 without a user", func() {
			gomega.Expect(serve(rbac.RequireAdmin(), nil)).To(gomega.Equal(http.StatusUnauthorized))
		})
	})

	ginkgo.Describe("RequireCanViewTransaction", func() {
		var router chi.Router

		ginkgo.BeforeEach(func() {
			db, err := testutil.NewDB()
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			sqlxDB, err := testutil.SQLX(db)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			gomega.Expect(db.Create(&payment.Transaction{
				CustomerID:       1,
				TransactionType:  payment.TypePayment,
				Amount:           decimal.NewFromInt(150),
				Currency:         "KES",
				Status:           payment.StatusProcessing,
				GatewayReference: "TXN1700000000000",
			}).Error).To(gomega.Succeed())

			base := transport.NewBaseHandler(testLogger())
			router = chi.NewRouter()
			router.With(RequireCanViewTransaction(sqlxDB, &ABACPolicy{}, base)).Get("/payments/{reference}", okHandler)
		})

		get := func(reference string, u *User) int {
			req := httptest.NewRequest(http.MethodGet, "/payments/"+reference, nil)
			req = req.WithContext(ContextWithUser(context.Background(), u))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			return rec.Code
		}

		ginkgo.It("should allow the owner", func() {
			gomega.Expect(get("TXN1700000000000", &User{ID: 1})).To(gomega.Equal(http.StatusOK))
		})

		ginkgo.It("should allow an admin", func() {
			gomega.Expect(get("TXN1700000000000", &User{ID: 7, Permissions: []string{PermissionAdmin}})).To(gomega.Equal(http.StatusOK))
		})

		ginkgo.It("should forbid another customer", func() {
			gomega.Expect(get("TXN1700000000000", &User{ID: 2})).To(gomega.Equal(http.StatusForbidden))
		})

		ginkgo.It("should forbid a report viewer who does not own it", func() {
			gomega.Expect(get("TXN1700000000000", &User{ID: 3, Permissions: []string{PermissionViewReports}})).To(gomega.Equal(http.StatusForbidden))
		})

		ginkgo.It("should answer 404 for an unknown reference", func() {
			gomega.Expect(get("TXN1", &User{ID: 1})).To(gomega.Equal(http.StatusNotFound))
		})
	})
})
