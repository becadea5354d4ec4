package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"badgerland/internal/common"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims Claims, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func claimsFor(sub string, expiresIn time.Duration) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		},
	}
}

// newTestServer exposes /me (any user) and /admin (admin only).
func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()
	auth, err := NewAuthenticator(AuthConfig{JWTSecret: testSecret}, zap.NewNop())
	require.NoError(t, err)

	e := echo.New()
	me := func(c echo.Context) error {
		userID, ok := common.GetUserIDFromContext(c.Request().Context())
		if !ok {
			return c.NoContent(http.StatusInternalServerError)
		}
		return c.String(http.StatusOK, userID.String())
	}
	e.GET("/me", me, auth.RequireUser())
	e.GET("/admin", me, auth.RequireUser(), RequireAdmin())
	return e
}

func do(e *echo.Echo, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRequireUser_ValidToken(t *testing.T) {
	e := newTestServer(t)
	userID := uuid.New()

	rec := do(e, "/me", signToken(t, claimsFor(userID.String(), time.Hour), testSecret))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID.String(), rec.Body.String())
}

func TestRequireUser_Rejections(t *testing.T) {
	e := newTestServer(t)
	userID := uuid.New().String()

	tests := []struct {
		name  string
		token string
	}{
		{"missing token", ""},
		{"wrong secret", signToken(t, claimsFor(userID, time.Hour), "other-secret")},
		{"expired", signToken(t, claimsFor(userID, -time.Minute), testSecret)},
		{"subject is not a uuid", signToken(t, claimsFor("user-42", time.Hour), testSecret)},
		{"garbage", "not.a.jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(e, "/me", tt.token)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	e := newTestServer(t)
	userID := uuid.New().String()

	plain := claimsFor(userID, time.Hour)
	rec := do(e, "/admin", signToken(t, plain, testSecret))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// A top-level role claim is what the provider sets for every signed-in user.
	providerRole := claimsFor(userID, time.Hour)
	providerRole.Role = "authenticated"
	rec = do(e, "/admin", signToken(t, providerRole, testSecret))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := claimsFor(userID, time.Hour)
	admin.AppMetadata.Role = common.RoleAdmin
	rec = do(e, "/admin", signToken(t, admin, testSecret))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewAuthenticator_RequiresAKeySource(t *testing.T) {
	_, err := NewAuthenticator(AuthConfig{}, zap.NewNop())
	assert.Error(t, err)
}

func TestRequestLogger_LevelsByStatus(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	e := echo.New()
	e.Use(RequestLogger(zap.New(core)))
	e.GET("/ok", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/boom", func(c echo.Context) error { return echo.NewHTTPError(http.StatusBadGateway) })
	e.GET("/health", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	for _, path := range []string{"/ok", "/boom", "/health"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "info", entries[0].Level.String())
	assert.Equal(t, "/ok", entries[0].ContextMap()["path"])
	assert.Equal(t, "error", entries[1].Level.String())
	assert.EqualValues(t, http.StatusBadGateway, entries[1].ContextMap()["status"])
}

func TestVersionHeader(t *testing.T) {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, VersionHeader(APIVersion))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, "v1", rec.Header().Get("X-API-Version"))
}
